package catalog

import (
	"errors"
	"strings"
	"testing"

	"github.com/yungbote/metricsd/internal/types"
	"github.com/yungbote/metricsd/internal/variant"
)

func wrap(v variant.Value) *variant.Value {
	wrapped := variant.NewVariant(v)
	return &wrapped
}

func TestCatalogEntries(t *testing.T) {
	cases := []struct {
		name    string
		payload string
	}{
		{"Uptime", "(xx)"},
		{"ImageVersion", "s"},
		{"DualBootBooted", ""},
		{"LiveUsbBooted", ""},
		{"EnteredDemoMode", ""},
		{"LocationLabel", "a{ss}"},
		{"OSVersion", "(sss)"},
		{"RAMSize", "u"},
		{"StartupFinished", "(tttttt)"},
		{"ParentalControlsChanged", "a{sv}"},
	}
	byName := map[string]SingularEntry{}
	for _, e := range singularByUUID {
		byName[e.Name] = e
	}
	for _, c := range cases {
		e, ok := byName[c.name]
		if !ok {
			t.Fatalf("%s not in catalog", c.name)
		}
		if e.Payload != c.payload {
			t.Fatalf("%s payload %q, want %q", c.name, e.Payload, c.payload)
		}
	}
	if len(aggregateByUUID) != 0 {
		t.Fatal("no aggregate decoders should be populated")
	}
	if _, ok := sequenceByUUID[UUIDShellAppIsOpen]; !ok {
		t.Fatal("ShellAppIsOpen missing from sequence catalog")
	}
	for id := range ignoredUUIDs {
		if _, ok := singularByUUID[id]; ok {
			t.Fatalf("%s is both ignored and decodable", id)
		}
	}
}

func TestDecodeUptime(t *testing.T) {
	entry, _ := Singular(UUIDUptime)
	model, err := entry.Decode(wrap(variant.NewTuple(variant.NewInt64(2), variant.NewInt64(1))))
	if err != nil {
		t.Fatal(err)
	}
	row := model.(*types.Uptime)
	if row.AccumulatedUptime != 2 || row.NumberOfBoots != 1 {
		t.Fatalf("row %+v", row)
	}
}

func TestDecodeWrongPayload(t *testing.T) {
	entry, _ := Singular(UUIDRAMSize)
	_, err := entry.Decode(wrap(variant.NewString("Up!")))
	var wrong *WrongPayloadError
	if !errors.As(err, &wrong) {
		t.Fatalf("expected WrongPayloadError, got %v", err)
	}
	if !strings.Contains(err.Error(), "needs a u payload, but got 'Up!' (s)") {
		t.Fatalf("message %q", err.Error())
	}
}

func TestDecodeMissingPayload(t *testing.T) {
	entry, _ := Singular(UUIDUptime)
	if _, err := entry.Decode(nil); !errors.Is(err, ErrEmptyPayload) {
		t.Fatalf("expected ErrEmptyPayload, got %v", err)
	}
}

func TestDecodeUnexpectedPayload(t *testing.T) {
	entry, _ := Singular(UUIDDualBootBooted)
	_, err := entry.Decode(wrap(variant.NewBool(true)))
	var unexpected *UnexpectedPayloadError
	if !errors.As(err, &unexpected) {
		t.Fatalf("expected UnexpectedPayloadError, got %v", err)
	}

	model, err := entry.Decode(nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := model.(*types.DualBootBooted); !ok {
		t.Fatalf("model %T", model)
	}
}

func TestDecodeDoublyWrappedPayload(t *testing.T) {
	entry, _ := Singular(UUIDRAMSize)
	inner := variant.NewVariant(variant.NewUint32(2048))
	model, err := entry.Decode(wrap(inner))
	if err != nil {
		t.Fatal(err)
	}
	if row := model.(*types.RAMSize); row.Total != 2048 {
		t.Fatalf("total %d", row.Total)
	}
}

func TestDecodeOSVersionStripsQuotes(t *testing.T) {
	entry, _ := Singular(UUIDOSVersion)
	payload := variant.NewTuple(
		variant.NewString("EOS"), variant.NewString(`"3.7.4"`), variant.NewString("unused"))
	model, err := entry.Decode(wrap(payload))
	if err != nil {
		t.Fatal(err)
	}
	if row := model.(*types.OSVersion); row.Version != "3.7.4" {
		t.Fatalf("version %q", row.Version)
	}
}

func TestDecodeLocationLabel(t *testing.T) {
	entry, _ := Singular(UUIDLocationLabel)

	payload := variant.NewArray("{ss}",
		variant.NewDictEntry(variant.NewString("facility"), variant.NewString("lab")),
		variant.NewDictEntry(variant.NewString("city"), variant.NewString("")),
	)
	model, err := entry.Decode(wrap(payload))
	if err != nil {
		t.Fatal(err)
	}
	row := model.(*types.LocationLabel)
	if string(row.Info) != `{"facility":"lab"}` {
		t.Fatalf("info %s", row.Info)
	}

	empty := variant.NewArray("{ss}",
		variant.NewDictEntry(variant.NewString("city"), variant.NewString("")))
	if _, err := entry.Decode(wrap(empty)); !errors.Is(err, ErrEmptyPayload) {
		t.Fatalf("expected ErrEmptyPayload, got %v", err)
	}
}

func TestDecodeMonitorDiscardsSerial(t *testing.T) {
	entry, _ := Singular(UUIDMonitorConnected)
	payload := variant.NewTuple(
		variant.NewString("DELL U2415"), variant.NewString("DEL"),
		variant.NewString("U2415"), variant.NewString("SN-12345"),
		variant.NewInt32(1920), variant.NewInt32(1200),
		variant.NewBytes([]byte{0x00, 0xff}),
	)
	model, err := entry.Decode(wrap(payload))
	if err != nil {
		t.Fatal(err)
	}
	row := model.(*types.MonitorConnected)
	if row.DisplayName != "DELL U2415" || row.DisplayWidth != 1920 {
		t.Fatalf("row %+v", row)
	}
}

func TestDecodeHackClubhouseProgress(t *testing.T) {
	entry, _ := Singular(UUIDHackClubhouseProgress)

	full := func(drop string) *variant.Value {
		entries := []variant.Value{}
		add := func(key string, v variant.Value) {
			if key != drop {
				entries = append(entries, variant.NewDictEntry(variant.NewString(key), variant.NewVariant(v)))
			}
		}
		add("complete", variant.NewBool(true))
		add("quest", variant.NewString("lightspeed"))
		add("pathways", variant.NewArray("s", variant.NewString("games")))
		add("progress", variant.NewDouble(0.25))
		add("ignored-extra", variant.NewString("whatever"))
		return wrap(variant.NewArray("{sv}", entries...))
	}

	model, err := entry.Decode(full(""))
	if err != nil {
		t.Fatal(err)
	}
	row := model.(*types.HackClubhouseProgress)
	if !row.Complete || row.Quest != "lightspeed" || row.Progress != 0.25 {
		t.Fatalf("row %+v", row)
	}

	_, err = entry.Decode(full("quest"))
	var missing *MissingKeyError
	if !errors.As(err, &missing) || missing.Key != "quest" {
		t.Fatalf("expected MissingKeyError for quest, got %v", err)
	}
}

func TestDecodeParentalControlsChanged(t *testing.T) {
	entry, _ := Singular(UUIDParentalControlsChanged)

	build := func(tag string, withAdmin bool) *variant.Value {
		entries := []variant.Value{
			variant.NewDictEntry(variant.NewString("AppFilter"), variant.NewVariant(
				variant.NewTuple(variant.NewBool(true), variant.NewArray("s", variant.NewString("org.gnome.Totem"))))),
			variant.NewDictEntry(variant.NewString("OarsFilter"), variant.NewVariant(
				variant.NewTuple(variant.NewString(tag), variant.NewArray("{ss}",
					variant.NewDictEntry(variant.NewString("violence-cartoon"), variant.NewString("none")))))),
			variant.NewDictEntry(variant.NewString("AllowUserInstallation"), variant.NewVariant(variant.NewBool(true))),
			variant.NewDictEntry(variant.NewString("AllowSystemInstallation"), variant.NewVariant(variant.NewBool(false))),
		}
		if withAdmin {
			entries = append(entries,
				variant.NewDictEntry(variant.NewString("IsAdministrator"), variant.NewVariant(variant.NewBool(true))))
		}
		return wrap(variant.NewArray("{sv}", entries...))
	}

	model, err := entry.Decode(build("oars-1.1", true))
	if err != nil {
		t.Fatal(err)
	}
	row := model.(*types.ParentalControlsChanged)
	if !row.AppFilterIsWhitelist || !row.AllowUserInstallation || row.AllowSystemInstallation {
		t.Fatalf("row %+v", row)
	}
	if !row.IsAdministrator || row.IsInitialSetup {
		t.Fatalf("defaulted keys wrong: %+v", row)
	}

	_, err = entry.Decode(build("oars-2.0", false))
	var oars *InvalidOarsFilterError
	if !errors.As(err, &oars) {
		t.Fatalf("expected InvalidOarsFilterError, got %v", err)
	}
}

func TestDecodeSequenceEntry(t *testing.T) {
	entry, _ := Sequence(UUIDShellAppIsOpen)
	model, err := entry.Decode(wrap(variant.NewString("org.gnome.Calculator")))
	if err != nil {
		t.Fatal(err)
	}
	if row := model.(*types.ShellAppIsOpen); row.AppID != "org.gnome.Calculator" {
		t.Fatalf("row %+v", row)
	}
}

func TestIgnoredSets(t *testing.T) {
	if !IgnoresEmptyPayload(UUIDOSVersion) {
		t.Fatal("OSVersion must tolerate empty payloads")
	}
	if IgnoresEmptyPayload(UUIDUptime) {
		t.Fatal("Uptime must not tolerate empty payloads")
	}
	for id := range ignoredUUIDs {
		if !IsIgnored(id) {
			t.Fatalf("%s not reported as ignored", id)
		}
	}
	if IsIgnored(UUIDUptime) {
		t.Fatal("Uptime reported as ignored")
	}
}
