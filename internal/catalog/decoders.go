package catalog

import (
	"encoding/json"
	"math"
	"strings"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/yungbote/metricsd/internal/types"
	"github.com/yungbote/metricsd/internal/variant"
)

// mustJSON marshals values built from decoded payloads; those are plain Go
// maps, slices and scalars, for which marshalling cannot fail.
func mustJSON(v any) datatypes.JSON {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return datatypes.JSON(raw)
}

// clampUint64 narrows an unsigned 64-bit value into a signed column. Values
// at the bound never occur in this domain, so a clamp is logged as an error
// rather than failing the event.
func clampUint64(v uint64) int64 {
	if v > math.MaxInt64 {
		zap.L().Error("uint64 value clamped to INT64_MAX", zap.Uint64("value", v))
		return math.MaxInt64
	}
	return int64(v)
}

// goValue converts a decoded payload node into a JSON-friendly Go value.
func goValue(v variant.Value) any {
	switch v.Kind() {
	case variant.KindBool:
		b, _ := v.Bool()
		return b
	case variant.KindByte:
		b, _ := v.Byte()
		return b
	case variant.KindInt16:
		n, _ := v.Int16()
		return n
	case variant.KindUint16:
		n, _ := v.Uint16()
		return n
	case variant.KindInt32:
		n, _ := v.Int32()
		return n
	case variant.KindUint32:
		n, _ := v.Uint32()
		return n
	case variant.KindInt64:
		n, _ := v.Int64()
		return n
	case variant.KindUint64:
		n, _ := v.Uint64()
		return n
	case variant.KindDouble:
		f, _ := v.Double()
		return f
	case variant.KindString:
		s, _ := v.Str()
		return s
	case variant.KindBytes:
		b, _ := v.Bytes()
		return b
	case variant.KindArray:
		elems, _ := v.Array()
		if strings.HasPrefix(v.Signature(), "a{") {
			out := make(map[string]any, len(elems))
			for _, e := range elems {
				k, val, _ := e.DictEntry()
				ks, _ := k.Str()
				out[ks] = goValue(val)
			}
			return out
		}
		out := make([]any, len(elems))
		for i, e := range elems {
			out[i] = goValue(e)
		}
		return out
	case variant.KindTuple:
		elems, _ := v.Tuple()
		out := make([]any, len(elems))
		for i, e := range elems {
			out[i] = goValue(e)
		}
		return out
	case variant.KindMaybe:
		inner, _ := v.Maybe()
		if inner == nil {
			return nil
		}
		return goValue(*inner)
	case variant.KindVariant:
		inner, _ := v.Variant()
		return goValue(inner)
	}
	return nil
}

func stringSlice(v variant.Value) []string {
	elems, _ := v.Array()
	out := make([]string, len(elems))
	for i, e := range elems {
		out[i], _ = e.Str()
	}
	return out
}

func newUptime(p *variant.Value) (types.SingularModel, error) {
	members, _ := p.Tuple()
	uptime, _ := members[0].Int64()
	boots, _ := members[1].Int64()
	return &types.Uptime{AccumulatedUptime: uptime, NumberOfBoots: boots}, nil
}

func newImageVersion(p *variant.Value) (types.SingularModel, error) {
	s, _ := p.Str()
	return &types.ImageVersion{ImageID: s}, nil
}

func newDualBootBooted(*variant.Value) (types.SingularModel, error) {
	return &types.DualBootBooted{}, nil
}

func newLiveUsbBooted(*variant.Value) (types.SingularModel, error) {
	return &types.LiveUsbBooted{}, nil
}

func newEnteredDemoMode(*variant.Value) (types.SingularModel, error) {
	return &types.EnteredDemoMode{}, nil
}

func newLocationLabel(p *variant.Value) (types.SingularModel, error) {
	m, err := p.StringMap()
	if err != nil {
		return nil, err
	}
	for k, v := range m {
		if v == "" {
			delete(m, k)
		}
	}
	if len(m) == 0 {
		return nil, ErrEmptyPayload
	}
	return &types.LocationLabel{Info: mustJSON(m)}, nil
}

func newOSVersion(p *variant.Value) (types.SingularModel, error) {
	members, _ := p.Tuple()
	// Only the middle element carries information; older clients wrapped it
	// in literal quotes.
	version, _ := members[1].Str()
	version = strings.Trim(version, `"'`)
	return &types.OSVersion{Version: version}, nil
}

func monitorFields(p *variant.Value) (name, vendor, product string, width, height int32, edid []byte) {
	members, _ := p.Tuple()
	name, _ = members[0].Str()
	vendor, _ = members[1].Str()
	product, _ = members[2].Str()
	// members[3] is the serial number, discarded before storage.
	width, _ = members[4].Int32()
	height, _ = members[5].Int32()
	edid, _ = members[6].Bytes()
	return
}

func newMonitorConnected(p *variant.Value) (types.SingularModel, error) {
	name, vendor, product, width, height, edid := monitorFields(p)
	return &types.MonitorConnected{
		DisplayName: name, DisplayVendor: vendor, DisplayProduct: product,
		DisplayWidth: width, DisplayHeight: height, EDID: edid,
	}, nil
}

func newMonitorDisconnected(p *variant.Value) (types.SingularModel, error) {
	name, vendor, product, width, height, edid := monitorFields(p)
	return &types.MonitorDisconnected{
		DisplayName: name, DisplayVendor: vendor, DisplayProduct: product,
		DisplayWidth: width, DisplayHeight: height, EDID: edid,
	}, nil
}

func newRAMSize(p *variant.Value) (types.SingularModel, error) {
	size, _ := p.Uint32()
	return &types.RAMSize{Total: int64(size)}, nil
}

func diskSpaceFields(p *variant.Value) (total, used, free int64) {
	members, _ := p.Tuple()
	t, _ := members[0].Uint32()
	u, _ := members[1].Uint32()
	f, _ := members[2].Uint32()
	return int64(t), int64(u), int64(f)
}

func newDiskSpaceTotal(p *variant.Value) (types.SingularModel, error) {
	total, used, free := diskSpaceFields(p)
	return &types.DiskSpaceTotal{Total: total, Used: used, Free: free}, nil
}

func newDiskSpaceExtra(p *variant.Value) (types.SingularModel, error) {
	total, used, free := diskSpaceFields(p)
	return &types.DiskSpaceExtra{Total: total, Used: used, Free: free}, nil
}

func newCPUInfo(p *variant.Value) (types.SingularModel, error) {
	elems, _ := p.Array()
	info := make([]map[string]any, 0, len(elems))
	for _, e := range elems {
		members, _ := e.Tuple()
		model, _ := members[0].Str()
		cores, _ := members[1].Uint16()
		freq, _ := members[2].Double()
		info = append(info, map[string]any{
			"model":         model,
			"cores":         cores,
			"max_frequency": freq,
		})
	}
	return &types.CPUInfo{Info: mustJSON(info)}, nil
}

func launchedFlatpakFields(p *variant.Value) (string, datatypes.JSON) {
	members, _ := p.Tuple()
	replacement, _ := members[0].Str()
	return replacement, mustJSON(stringSlice(members[1]))
}

func newLaunchedEquivalentExistingFlatpak(p *variant.Value) (types.SingularModel, error) {
	replacement, argv := launchedFlatpakFields(p)
	return &types.LaunchedEquivalentExistingFlatpak{ReplacementAppID: replacement, Argv: argv}, nil
}

func newLaunchedEquivalentInstallerForFlatpak(p *variant.Value) (types.SingularModel, error) {
	replacement, argv := launchedFlatpakFields(p)
	return &types.LaunchedEquivalentInstallerForFlatpak{ReplacementAppID: replacement, Argv: argv}, nil
}

func newLaunchedExistingFlatpak(p *variant.Value) (types.SingularModel, error) {
	replacement, argv := launchedFlatpakFields(p)
	return &types.LaunchedExistingFlatpak{ReplacementAppID: replacement, Argv: argv}, nil
}

func newLaunchedInstallerForFlatpak(p *variant.Value) (types.SingularModel, error) {
	replacement, argv := launchedFlatpakFields(p)
	return &types.LaunchedInstallerForFlatpak{ReplacementAppID: replacement, Argv: argv}, nil
}

func newLinuxPackageOpened(p *variant.Value) (types.SingularModel, error) {
	return &types.LinuxPackageOpened{Argv: mustJSON(stringSlice(*p))}, nil
}

func newWindowsAppOpened(p *variant.Value) (types.SingularModel, error) {
	return &types.WindowsAppOpened{Argv: mustJSON(stringSlice(*p))}, nil
}

func newParentalControlsBlockedFlatpakInstall(p *variant.Value) (types.SingularModel, error) {
	app, _ := p.Str()
	return &types.ParentalControlsBlockedFlatpakInstall{App: app}, nil
}

func newParentalControlsBlockedFlatpakRun(p *variant.Value) (types.SingularModel, error) {
	app, _ := p.Str()
	return &types.ParentalControlsBlockedFlatpakRun{App: app}, nil
}

func newParentalControlsChanged(p *variant.Value) (types.SingularModel, error) {
	const event = "ParentalControlsChanged"
	m, err := p.VariantMap()
	if err != nil {
		return nil, err
	}

	appFilter, ok := m["AppFilter"]
	if !ok {
		return nil, &MissingKeyError{Event: event, Key: "AppFilter"}
	}
	if appFilter.Signature() != "(bas)" {
		return nil, &WrongPayloadError{Event: event + " AppFilter", Expected: "(bas)", Got: appFilter}
	}
	afMembers, _ := appFilter.Tuple()
	isWhitelist, _ := afMembers[0].Bool()
	filterList := stringSlice(afMembers[1])

	oarsFilter, ok := m["OarsFilter"]
	if !ok {
		return nil, &MissingKeyError{Event: event, Key: "OarsFilter"}
	}
	if oarsFilter.Signature() != "(sa{ss})" {
		return nil, &WrongPayloadError{Event: event + " OarsFilter", Expected: "(sa{ss})", Got: oarsFilter}
	}
	ofMembers, _ := oarsFilter.Tuple()
	tag, _ := ofMembers[0].Str()
	if tag != "oars-1.0" && tag != "oars-1.1" {
		return nil, &InvalidOarsFilterError{Tag: tag}
	}
	oarsMap, _ := ofMembers[1].StringMap()

	row := &types.ParentalControlsChanged{
		AppFilterIsWhitelist: isWhitelist,
		AppFilter:            mustJSON(filterList),
		OarsFilter:           mustJSON(oarsMap),
	}

	for _, key := range []string{"AllowUserInstallation", "AllowSystemInstallation"} {
		v, ok := m[key]
		if !ok {
			return nil, &MissingKeyError{Event: event, Key: key}
		}
		b, err := v.Bool()
		if err != nil {
			return nil, &WrongPayloadError{Event: event + " " + key, Expected: "b", Got: v}
		}
		if key == "AllowUserInstallation" {
			row.AllowUserInstallation = b
		} else {
			row.AllowSystemInstallation = b
		}
	}

	// IsAdministrator and IsInitialSetup were added later; old payloads
	// simply omit them.
	if v, ok := m["IsAdministrator"]; ok {
		row.IsAdministrator, _ = v.Bool()
	}
	if v, ok := m["IsInitialSetup"]; ok {
		row.IsInitialSetup, _ = v.Bool()
	}
	return row, nil
}

func newHackClubhouseProgress(p *variant.Value) (types.SingularModel, error) {
	const event = "HackClubhouseProgress"
	m, err := p.VariantMap()
	if err != nil {
		return nil, err
	}
	row := &types.HackClubhouseProgress{}

	complete, ok := m["complete"]
	if !ok {
		return nil, &MissingKeyError{Event: event, Key: "complete"}
	}
	if row.Complete, err = complete.Bool(); err != nil {
		return nil, &WrongPayloadError{Event: event + " complete", Expected: "b", Got: complete}
	}

	quest, ok := m["quest"]
	if !ok {
		return nil, &MissingKeyError{Event: event, Key: "quest"}
	}
	if row.Quest, err = quest.Str(); err != nil {
		return nil, &WrongPayloadError{Event: event + " quest", Expected: "s", Got: quest}
	}

	pathways, ok := m["pathways"]
	if !ok {
		return nil, &MissingKeyError{Event: event, Key: "pathways"}
	}
	if pathways.Signature() != "as" {
		return nil, &WrongPayloadError{Event: event + " pathways", Expected: "as", Got: pathways}
	}
	row.Pathways = mustJSON(stringSlice(pathways))

	progress, ok := m["progress"]
	if !ok {
		return nil, &MissingKeyError{Event: event, Key: "progress"}
	}
	if row.Progress, err = progress.Double(); err != nil {
		return nil, &WrongPayloadError{Event: event + " progress", Expected: "d", Got: progress}
	}

	// Unknown keys are ignored on purpose: the clubhouse adds fields faster
	// than the pipeline ships.
	return row, nil
}

func newHackClubhouseMode(p *variant.Value) (types.SingularModel, error) {
	active, _ := p.Bool()
	return &types.HackClubhouseMode{Active: active}, nil
}

func newHackClubhouseNewsQuestLink(p *variant.Value) (types.SingularModel, error) {
	members, _ := p.Tuple()
	character, _ := members[0].Str()
	quest, _ := members[1].Str()
	return &types.HackClubhouseNewsQuestLink{Character: character, Quest: quest}, nil
}

func newHackClubhouseChangePage(p *variant.Value) (types.SingularModel, error) {
	page, _ := p.Str()
	return &types.HackClubhouseChangePage{Page: page}, nil
}

func newHackClubhouseAchievement(p *variant.Value) (types.SingularModel, error) {
	members, _ := p.Tuple()
	id, _ := members[0].Str()
	name, _ := members[1].Str()
	return &types.HackClubhouseAchievement{AchievementID: id, AchievementName: name}, nil
}

func newHackClubhouseAchievementPoints(p *variant.Value) (types.SingularModel, error) {
	members, _ := p.Tuple()
	skillset, _ := members[0].Str()
	points, _ := members[1].Int32()
	newPoints, _ := members[2].Int32()
	return &types.HackClubhouseAchievementPoints{
		Skillset: skillset, Points: points, NewPoints: newPoints,
	}, nil
}

func newNetworkID(p *variant.Value) (types.SingularModel, error) {
	id, _ := p.Uint32()
	return &types.NetworkID{NetworkID: int64(id)}, nil
}

func newProgramDumpedCore(p *variant.Value) (types.SingularModel, error) {
	info, ok := goValue(*p).(map[string]any)
	if !ok || len(info) == 0 {
		return nil, ErrEmptyPayload
	}
	return &types.ProgramDumpedCore{Info: mustJSON(info)}, nil
}

func newShellAppAddedToDesktop(p *variant.Value) (types.SingularModel, error) {
	app, _ := p.Str()
	return &types.ShellAppAddedToDesktop{AppID: app}, nil
}

func newShellAppRemovedFromDesktop(p *variant.Value) (types.SingularModel, error) {
	app, _ := p.Str()
	return &types.ShellAppRemovedFromDesktop{AppID: app}, nil
}

func newUpdaterBranchSelected(p *variant.Value) (types.SingularModel, error) {
	members, _ := p.Tuple()
	vendor, _ := members[0].Str()
	product, _ := members[1].Str()
	branch, _ := members[2].Str()
	onHold, _ := members[3].Bool()
	return &types.UpdaterBranchSelected{
		HardwareVendor: vendor, HardwareProduct: product,
		OSTreeBranch: branch, OnHold: onHold,
	}, nil
}

func newStartupFinished(p *variant.Value) (types.SingularModel, error) {
	members, _ := p.Tuple()
	vals := make([]int64, 6)
	for i := range vals {
		raw, _ := members[i].Uint64()
		vals[i] = clampUint64(raw)
	}
	return &types.StartupFinished{
		Firmware: vals[0], Loader: vals[1], Kernel: vals[2],
		Initrd: vals[3], Userspace: vals[4], Total: vals[5],
	}, nil
}

func newShellAppIsOpen(p *variant.Value) (types.SequenceModel, error) {
	app, _ := p.Str()
	return &types.ShellAppIsOpen{AppID: app}, nil
}

func newUserIsLoggedIn(*variant.Value) (types.SequenceModel, error) {
	return &types.UserIsLoggedIn{}, nil
}
