package ingest

import (
	"context"
	"encoding/binary"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/yungbote/metricsd/internal/catalog"
	"github.com/yungbote/metricsd/internal/db"
	"github.com/yungbote/metricsd/internal/logger"
	"github.com/yungbote/metricsd/internal/repos"
	"github.com/yungbote/metricsd/internal/types"
	"github.com/yungbote/metricsd/internal/variant"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatal(err)
	}
	return gdb
}

func newTestProcessor(gdb *gorm.DB) *Processor {
	log := logger.NewNop()
	return NewProcessor(
		repos.NewRequestRepo(gdb, log),
		repos.NewEventRepo(gdb, log),
		repos.NewMachineRepo(gdb, log),
		log,
	)
}

var testMachine = []byte("0123456789abcdef")

const (
	testAbsolute = int64(1_600_000_000_000_000_000)
	testRelative = int64(2_000_000_000)
)

// buildRecord assembles a raw queue record around the given event arrays.
func buildRecord(usec int64, singulars, aggregates, sequences []variant.Value) []byte {
	envelope := variant.NewTuple(
		variant.NewInt32(7),
		variant.NewInt64(testRelative),
		variant.NewInt64(testAbsolute),
		variant.NewBytes(testMachine),
		variant.NewArray("(uayxmv)", singulars...),
		variant.NewArray("(uayxxmv)", aggregates...),
		variant.NewArray("(uaya(xmv))", sequences...),
	)
	body := variant.Encode(envelope)
	record := make([]byte, 8, 8+len(body))
	binary.LittleEndian.PutUint64(record, uint64(usec))
	return append(record, body...)
}

func wrapPayload(payload *variant.Value) variant.Value {
	if payload == nil {
		return variant.NewMaybe("v", nil)
	}
	wrapped := variant.NewVariant(*payload)
	return variant.NewMaybe("v", &wrapped)
}

func singularEvent(userID uint32, id uuid.UUID, relative int64, payload *variant.Value) variant.Value {
	return variant.NewTuple(
		variant.NewUint32(userID),
		variant.NewBytes(id[:]),
		variant.NewInt64(relative),
		wrapPayload(payload),
	)
}

func sequenceEvent(userID uint32, id uuid.UUID, elems ...variant.Value) variant.Value {
	return variant.NewTuple(
		variant.NewUint32(userID),
		variant.NewBytes(id[:]),
		variant.NewArray("(xmv)", elems...),
	)
}

func sequenceElement(relative int64, payload *variant.Value) variant.Value {
	return variant.NewTuple(variant.NewInt64(relative), wrapPayload(payload))
}

func uptimePayload(accumulated, boots int64) variant.Value {
	return variant.NewTuple(variant.NewInt64(accumulated), variant.NewInt64(boots))
}

func handle(t *testing.T, gdb *gorm.DB, record []byte) error {
	t.Helper()
	p := newTestProcessor(gdb)
	return gdb.Transaction(func(tx *gorm.DB) error {
		return p.HandleRecord(context.Background(), tx, record)
	})
}

func count(t *testing.T, gdb *gorm.DB, model any) int64 {
	t.Helper()
	var n int64
	if err := gdb.Model(model).Count(&n).Error; err != nil {
		t.Fatal(err)
	}
	return n
}

func TestDecodeRecordHeader(t *testing.T) {
	record := buildRecord(1_500_000_000_000_000, nil, nil, nil)
	rec, err := DecodeRecord(record)
	if err != nil {
		t.Fatal(err)
	}
	req := rec.Request
	if got := req.ReceivedAt; !got.Equal(time.UnixMicro(1_500_000_000_000_000)) {
		t.Fatalf("received at %v", got)
	}
	if req.AbsoluteTimestamp != testAbsolute || req.RelativeTimestamp != testRelative {
		t.Fatalf("timestamps %d %d", req.AbsoluteTimestamp, req.RelativeTimestamp)
	}
	if req.MachineID != "30313233343536373839616263646566" {
		t.Fatalf("machine id %q", req.MachineID)
	}
	if req.SendNumber != 7 {
		t.Fatalf("send number %d", req.SendNumber)
	}
	if len(req.Sha512) != 128 {
		t.Fatalf("sha512 %q", req.Sha512)
	}
}

func TestDecodeRecordMalformed(t *testing.T) {
	var malformed *MalformedRecordError
	if _, err := DecodeRecord([]byte{1, 2, 3}); !errors.As(err, &malformed) {
		t.Fatalf("short record: %v", err)
	}
	if _, err := DecodeRecord(append(make([]byte, 8), 0xff, 0xfe, 0xfd)); !errors.As(err, &malformed) {
		t.Fatalf("garbage body: %v", err)
	}

	// A 15-byte machine id decodes fine as ay but is not a UUID.
	envelope := variant.NewTuple(
		variant.NewInt32(1),
		variant.NewInt64(testRelative),
		variant.NewInt64(testAbsolute),
		variant.NewBytes(testMachine[:15]),
		variant.NewArray("(uayxmv)"),
		variant.NewArray("(uayxxmv)"),
		variant.NewArray("(uaya(xmv))"),
	)
	raw := append(make([]byte, 8), variant.Encode(envelope)...)
	if _, err := DecodeRecord(raw); !errors.As(err, &malformed) {
		t.Fatalf("bad machine id: %v", err)
	}
}

func TestHandleRecordStoresTypedEvent(t *testing.T) {
	gdb := openTestDB(t)
	payload := uptimePayload(3600, 4)
	record := buildRecord(1, []variant.Value{
		singularEvent(1001, catalog.UUIDUptime, 3_000_000_000, &payload),
	}, nil, nil)

	if err := handle(t, gdb, record); err != nil {
		t.Fatal(err)
	}

	var row types.Uptime
	if err := gdb.First(&row).Error; err != nil {
		t.Fatal(err)
	}
	if row.AccumulatedUptime != 3600 || row.NumberOfBoots != 4 {
		t.Fatalf("uptime row %+v", row)
	}
	if row.UserID != 1001 {
		t.Fatalf("user id %d", row.UserID)
	}
	want := time.Unix(0, testAbsolute-testRelative+3_000_000_000).UTC()
	if !row.OccuredAt.Equal(want) {
		t.Fatalf("occured at %v, want %v", row.OccuredAt, want)
	}
}

func TestHandleRecordIdempotent(t *testing.T) {
	gdb := openTestDB(t)
	payload := uptimePayload(1, 1)
	events := []variant.Value{singularEvent(1, catalog.UUIDUptime, 0, &payload)}

	// Same submission received twice at different times: the digest covers
	// the envelope only, so the second copy is a no-op.
	if err := handle(t, gdb, buildRecord(100, events, nil, nil)); err != nil {
		t.Fatal(err)
	}
	if err := handle(t, gdb, buildRecord(999, events, nil, nil)); err != nil {
		t.Fatal(err)
	}

	if n := count(t, gdb, &types.MetricsRequest{}); n != 1 {
		t.Fatalf("%d requests", n)
	}
	if n := count(t, gdb, &types.Uptime{}); n != 1 {
		t.Fatalf("%d uptime rows", n)
	}
}

func TestHandleRecordUnknownEvent(t *testing.T) {
	gdb := openTestDB(t)
	unknownID := uuid.MustParse("deadbeef-0000-4000-8000-000000000000")
	payload := variant.NewString("whatever")
	record := buildRecord(1, []variant.Value{
		singularEvent(5, unknownID, 42, &payload),
	}, nil, nil)

	if err := handle(t, gdb, record); err != nil {
		t.Fatal(err)
	}

	var row types.UnknownSingularEvent
	if err := gdb.First(&row).Error; err != nil {
		t.Fatal(err)
	}
	if row.EventID != unknownID {
		t.Fatalf("event id %s", row.EventID)
	}

	// The stored bytes must decode back to the original payload.
	v, err := variant.Decode("mv", row.PayloadData)
	if err != nil {
		t.Fatal(err)
	}
	inner, err := v.Maybe()
	if err != nil || inner == nil {
		t.Fatalf("stored payload: %v %v", inner, err)
	}
	unwrapped, err := inner.Variant()
	if err != nil {
		t.Fatal(err)
	}
	if s, _ := unwrapped.Str(); s != "whatever" {
		t.Fatalf("payload %q", s)
	}
}

func TestHandleRecordInvalidPayload(t *testing.T) {
	gdb := openTestDB(t)
	payload := variant.NewString("Up!")
	record := buildRecord(1, []variant.Value{
		singularEvent(5, catalog.UUIDUptime, 42, &payload),
	}, nil, nil)

	if err := handle(t, gdb, record); err != nil {
		t.Fatal(err)
	}

	var row types.InvalidSingularEvent
	if err := gdb.First(&row).Error; err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(row.Error, "needs a (xx) payload") {
		t.Fatalf("error %q", row.Error)
	}
	if n := count(t, gdb, &types.Uptime{}); n != 0 {
		t.Fatalf("%d uptime rows", n)
	}
}

func TestHandleRecordDropsIgnoredAndEmptyPayloadKinds(t *testing.T) {
	gdb := openTestDB(t)
	ignoredID := uuid.MustParse("005096c4-9444-48c6-844b-6cb693c15235")
	record := buildRecord(1, []variant.Value{
		singularEvent(1, ignoredID, 0, nil),
		// OSVersion with an absent payload is a silent drop, not an invalid row.
		singularEvent(1, catalog.UUIDOSVersion, 0, nil),
	}, nil, nil)

	if err := handle(t, gdb, record); err != nil {
		t.Fatal(err)
	}
	if n := count(t, gdb, &types.UnknownSingularEvent{}); n != 0 {
		t.Fatalf("%d unknown rows", n)
	}
	if n := count(t, gdb, &types.InvalidSingularEvent{}); n != 0 {
		t.Fatalf("%d invalid rows", n)
	}
}

func TestHandleRecordDedupsBootEvents(t *testing.T) {
	gdb := openTestDB(t)
	first := variant.NewString("eos-eos3.7-amd64-amd64.190419-225606.base")
	second := variant.NewString("eos-eos3.8-amd64-amd64.200419-225606.base")
	record := buildRecord(1, []variant.Value{
		singularEvent(1001, catalog.UUIDImageVersion, 0, &first),
		singularEvent(1002, catalog.UUIDImageVersion, 1, &second),
	}, nil, nil)

	if err := handle(t, gdb, record); err != nil {
		t.Fatal(err)
	}

	var rows []types.ImageVersion
	if err := gdb.Find(&rows).Error; err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("%d image version rows", len(rows))
	}
	if rows[0].UserID != 1001 {
		t.Fatalf("kept user %d, want the first occurrence", rows[0].UserID)
	}
}

func TestHandleRecordUpdatesMachine(t *testing.T) {
	gdb := openTestDB(t)
	image := variant.NewString("eos-eos3.7-amd64-amd64.190419-225606.base")
	label := variant.NewArray("{ss}",
		variant.NewDictEntry(variant.NewString("facility"), variant.NewString("lab")),
		variant.NewDictEntry(variant.NewString("city"), variant.NewString("Porto Alegre")),
	)
	record := buildRecord(1, []variant.Value{
		singularEvent(1, catalog.UUIDImageVersion, 0, &image),
		singularEvent(1, catalog.UUIDDualBootBooted, 1, nil),
		singularEvent(1, catalog.UUIDLiveUsbBooted, 2, nil),
		singularEvent(1, catalog.UUIDEnteredDemoMode, 3, nil),
		singularEvent(1, catalog.UUIDLocationLabel, 4, &label),
	}, nil, nil)

	if err := handle(t, gdb, record); err != nil {
		t.Fatal(err)
	}

	var m types.Machine
	if err := gdb.Where("machine_id = ?", "30313233343536373839616263646566").First(&m).Error; err != nil {
		t.Fatal(err)
	}
	if m.ImageProduct == nil || *m.ImageProduct != "eos" {
		t.Fatalf("image product %v", m.ImageProduct)
	}
	if m.ImageBranch == nil || *m.ImageBranch != "eos3.7" {
		t.Fatalf("image branch %v", m.ImageBranch)
	}
	if !m.Demo || !m.DualBoot || !m.Live {
		t.Fatalf("flags %+v", m)
	}
	if m.SiteFacility == nil || *m.SiteFacility != "lab" {
		t.Fatalf("site facility %v", m.SiteFacility)
	}
	if m.SiteCity == nil || *m.SiteCity != "Porto Alegre" {
		t.Fatalf("site city %v", m.SiteCity)
	}
	if m.SiteCountry != nil {
		t.Fatalf("site country should be absent, got %q", *m.SiteCountry)
	}
}

func TestHandleRecordUnparseableImageID(t *testing.T) {
	gdb := openTestDB(t)
	image := variant.NewString("not an image id")
	record := buildRecord(1, []variant.Value{
		singularEvent(1, catalog.UUIDImageVersion, 0, &image),
	}, nil, nil)

	if err := handle(t, gdb, record); err != nil {
		t.Fatal(err)
	}

	// The event row stays, only the derived machine columns are skipped.
	if n := count(t, gdb, &types.ImageVersion{}); n != 1 {
		t.Fatalf("%d image version rows", n)
	}
	if n := count(t, gdb, &types.Machine{}); n != 0 {
		t.Fatalf("%d machine rows", n)
	}
}

func TestHandleRecordSequences(t *testing.T) {
	gdb := openTestDB(t)
	app := variant.NewString("org.gnome.Calculator")
	record := buildRecord(1, nil, nil, []variant.Value{
		sequenceEvent(42, catalog.UUIDShellAppIsOpen,
			sequenceElement(1_000_000_000, &app),
			sequenceElement(2_000_000_000, nil), // progress, dropped
			sequenceElement(5_000_000_000, nil),
		),
		sequenceEvent(42, catalog.UUIDUserIsLoggedIn,
			sequenceElement(1_000_000_000, nil),
			sequenceElement(9_000_000_000, nil),
		),
	})

	if err := handle(t, gdb, record); err != nil {
		t.Fatal(err)
	}

	var open types.ShellAppIsOpen
	if err := gdb.First(&open).Error; err != nil {
		t.Fatal(err)
	}
	if open.AppID != "org.gnome.Calculator" {
		t.Fatalf("app id %q", open.AppID)
	}
	origin := testAbsolute - testRelative
	if want := time.Unix(0, origin+1_000_000_000).UTC(); !open.StartedAt.Equal(want) {
		t.Fatalf("started at %v, want %v", open.StartedAt, want)
	}
	if want := time.Unix(0, origin+5_000_000_000).UTC(); !open.StoppedAt.Equal(want) {
		t.Fatalf("stopped at %v, want %v", open.StoppedAt, want)
	}
	if n := count(t, gdb, &types.UserIsLoggedIn{}); n != 1 {
		t.Fatalf("%d login rows", n)
	}
}

func TestHandleRecordSequenceTooShort(t *testing.T) {
	gdb := openTestDB(t)
	app := variant.NewString("org.gnome.Calculator")
	record := buildRecord(1, nil, nil, []variant.Value{
		sequenceEvent(42, catalog.UUIDShellAppIsOpen, sequenceElement(0, &app)),
	})

	if err := handle(t, gdb, record); err != nil {
		t.Fatal(err)
	}

	var row types.InvalidSequence
	if err := gdb.First(&row).Error; err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(row.Error, "needs at least 2 elements, got 1") {
		t.Fatalf("error %q", row.Error)
	}
	if n := count(t, gdb, &types.ShellAppIsOpen{}); n != 0 {
		t.Fatalf("%d open rows", n)
	}
}

func TestHandleRecordUnknownAggregate(t *testing.T) {
	gdb := openTestDB(t)
	// Aggregate tuples carry the count before the timestamp.
	aggregate := variant.NewTuple(
		variant.NewUint32(9),
		variant.NewBytes(catalog.UUIDUptime[:]), // not an aggregate kind
		variant.NewInt64(12),
		variant.NewInt64(3_000_000_000),
		variant.NewMaybe("v", nil),
	)
	record := buildRecord(1, nil, []variant.Value{aggregate}, nil)

	if err := handle(t, gdb, record); err != nil {
		t.Fatal(err)
	}

	var row types.UnknownAggregateEvent
	if err := gdb.First(&row).Error; err != nil {
		t.Fatal(err)
	}
	if row.Count != 12 {
		t.Fatalf("count %d", row.Count)
	}
	want := time.Unix(0, testAbsolute-testRelative+3_000_000_000).UTC()
	if !row.OccuredAt.Equal(want) {
		t.Fatalf("occured at %v, want %v", row.OccuredAt, want)
	}
}

func TestHandleRecordDedupIgnoresInvalidOccurrences(t *testing.T) {
	gdb := openTestDB(t)
	bad := variant.NewUint32(1) // ImageVersion needs an s payload
	good := variant.NewString("eos-eos3.7-amd64-amd64.190419-225606.base")
	record := buildRecord(1, []variant.Value{
		singularEvent(1001, catalog.UUIDImageVersion, 0, &bad),
		singularEvent(1002, catalog.UUIDImageVersion, 1, &good),
	}, nil, nil)

	if err := handle(t, gdb, record); err != nil {
		t.Fatal(err)
	}

	// The invalid occurrence is filed but must not gate the valid one.
	if n := count(t, gdb, &types.InvalidSingularEvent{}); n != 1 {
		t.Fatalf("%d invalid rows", n)
	}
	var rows []types.ImageVersion
	if err := gdb.Find(&rows).Error; err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("%d image version rows", len(rows))
	}
	if rows[0].UserID != 1002 {
		t.Fatalf("kept user %d, want the valid occurrence", rows[0].UserID)
	}
}
