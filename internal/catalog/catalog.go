package catalog

import (
	"github.com/google/uuid"

	"github.com/yungbote/metricsd/internal/types"
	"github.com/yungbote/metricsd/internal/variant"
)

// The catalog is the only source of truth mapping an event UUID to behavior:
// classification, payload signature and the decoder building the typed row.
// It is populated once at package init and read-only afterwards; tests assert
// entries directly instead of relying on registration order.

// SingularEntry describes one singular event kind.
type SingularEntry struct {
	Name string

	// Payload is the expected payload signature; empty means the event must
	// not carry a payload at all.
	Payload string

	New func(payload *variant.Value) (types.SingularModel, error)
}

// Decode validates payload presence and type, then builds the typed row.
func (e SingularEntry) Decode(payload *variant.Value) (types.SingularModel, error) {
	unwrapped, err := e.checkPayload(payload)
	if err != nil {
		return nil, err
	}
	return e.New(unwrapped)
}

func (e SingularEntry) checkPayload(payload *variant.Value) (*variant.Value, error) {
	if e.Payload == "" {
		if payload != nil {
			return nil, &UnexpectedPayloadError{Event: e.Name, Got: unwrap(*payload)}
		}
		return nil, nil
	}
	if payload == nil {
		return nil, ErrEmptyPayload
	}
	inner := unwrap(*payload)
	if inner.Signature() != e.Payload {
		return nil, &WrongPayloadError{Event: e.Name, Expected: e.Payload, Got: inner}
	}
	return &inner, nil
}

// AggregateEntry describes one aggregate event kind. No aggregate decoders
// are populated today; unknown aggregate UUIDs land in the unknown bucket.
type AggregateEntry struct {
	Name    string
	Payload string
	New     func(payload *variant.Value) (types.AggregateModel, error)
}

func (e AggregateEntry) Decode(payload *variant.Value) (types.AggregateModel, error) {
	single := SingularEntry{Name: e.Name, Payload: e.Payload}
	unwrapped, err := single.checkPayload(payload)
	if err != nil {
		return nil, err
	}
	return e.New(unwrapped)
}

// SequenceEntry describes one sequence event kind. The payload is taken from
// the sequence's start element; stop elements are assumed to carry none.
type SequenceEntry struct {
	Name    string
	Payload string
	New     func(payload *variant.Value) (types.SequenceModel, error)
}

func (e SequenceEntry) Decode(payload *variant.Value) (types.SequenceModel, error) {
	single := SingularEntry{Name: e.Name, Payload: e.Payload}
	unwrapped, err := single.checkPayload(payload)
	if err != nil {
		return nil, err
	}
	return e.New(unwrapped)
}

// unwrap removes nested variant layers; payloads are occasionally wrapped
// more than once by older clients.
func unwrap(v variant.Value) variant.Value {
	for v.Kind() == variant.KindVariant {
		inner, err := v.Variant()
		if err != nil {
			return v
		}
		v = inner
	}
	return v
}

// Event UUIDs.
var (
	UUIDUptime                = uuid.MustParse("9af2cc74-d6dd-4e27-a8a9-e129b0a1f0d5")
	UUIDImageVersion          = uuid.MustParse("6b1c1cfc-bc36-438c-0647-dacd5878f2b3")
	UUIDDualBootBooted        = uuid.MustParse("16cfc671-5525-4a99-9eb9-4f6c074803a9")
	UUIDLiveUsbBooted         = uuid.MustParse("56be0b38-e47b-4578-9599-00ff9bda54bb")
	UUIDEnteredDemoMode       = uuid.MustParse("c75af67f-cf2f-433d-a060-a670087d93a1")
	UUIDLocationLabel         = uuid.MustParse("eb0302d8-62e9-4a68-9aa3-7b2a73a279b8")
	UUIDOSVersion             = uuid.MustParse("1fa16a31-9225-467e-8502-e31806e9b4eb")
	UUIDMonitorConnected      = uuid.MustParse("fa82f422-a685-46e4-91a7-7b7bfb5b289f")
	UUIDMonitorDisconnected   = uuid.MustParse("5e8c3f40-22a2-4d5d-82f3-e3bf927b5b74")
	UUIDRAMSize               = uuid.MustParse("aee94585-07a2-4483-a090-25abda650b12")
	UUIDDiskSpaceTotal        = uuid.MustParse("5f58024f-3b99-47d3-a17f-1ec876acd97e")
	UUIDDiskSpaceExtra        = uuid.MustParse("da505554-4248-4a38-bb32-84ab58e45a6d")
	UUIDCPUInfo               = uuid.MustParse("4a75488a-0d9a-4c38-8556-148f500edaf0")
	UUIDLaunchedEquivalentExistingFlatpak    = uuid.MustParse("00d7bc1e-ec93-4c53-ae78-a6b40450be4a")
	UUIDLaunchedEquivalentInstallerForFlatpak = uuid.MustParse("7de69d43-5f6b-4bef-b5f3-a21295b79185")
	UUIDLaunchedExistingFlatpak              = uuid.MustParse("192f39dd-79b3-4497-99fa-9d8aea28760c")
	UUIDLaunchedInstallerForFlatpak          = uuid.MustParse("e98bf6d9-8511-44f9-a1bd-a1d0518934b9")
	UUIDLinuxPackageOpened    = uuid.MustParse("0bba3340-52e3-41a2-854f-e6ed36621379")
	UUIDWindowsAppOpened      = uuid.MustParse("cf09194a-3090-4782-ab03-87b2f1515aed")
	UUIDParentalControlsBlockedFlatpakInstall = uuid.MustParse("9d03daad-f1ed-41a8-bc5a-6b532c075832")
	UUIDParentalControlsBlockedFlatpakRun     = uuid.MustParse("afca2515-e9ce-43aa-b355-7663c770b4b6")
	UUIDParentalControlsChanged               = uuid.MustParse("449ec188-cb7b-45d3-a0ed-291d943b9aa6")
	UUIDHackClubhouseProgress = uuid.MustParse("3a037364-9164-4b42-8c07-73bcc00902de")
	UUIDHackClubhouseMode     = uuid.MustParse("7587784b-c3ed-4d74-b0fa-1023033698c0")
	UUIDHackClubhouseNewsQuestLink = uuid.MustParse("ebffecb9-7b31-4c30-a9a0-f896aaaa97c4")
	UUIDHackClubhouseChangePage    = uuid.MustParse("2c765b36-a4c9-40ee-b313-dc73c4fa1f0d")
	UUIDHackClubhouseAchievement   = uuid.MustParse("62ce2e93-bfdc-4cae-af4c-54068abfaf02")
	UUIDHackClubhouseAchievementPoints = uuid.MustParse("86521913-bfa3-4d13-b511-a03d4878339e")
	UUIDNetworkID             = uuid.MustParse("38eb48f8-e131-4b57-a7c6-35e0590c82fd")
	UUIDProgramDumpedCore     = uuid.MustParse("ed57b607-4a56-47f1-b1e4-5dc3e74335ec")
	UUIDShellAppAddedToDesktop     = uuid.MustParse("51640a4e-79aa-47ac-b7e2-d3106a06e129")
	UUIDShellAppRemovedFromDesktop = uuid.MustParse("683b40a7-cac0-4f9a-994c-4b274693a0a0")
	UUIDUpdaterBranchSelected = uuid.MustParse("99f48aac-b5a0-426d-95f4-18af7d081c4e")
	UUIDStartupFinished       = uuid.MustParse("bf7e8aed-2932-455c-a28e-d407cfd5aaba")

	UUIDShellAppIsOpen = uuid.MustParse("b5e11a3d-13f8-4219-84fd-c9ba0bf3d1f0")
	UUIDUserIsLoggedIn = uuid.MustParse("add052be-7b2a-4959-81a5-a7f45062ee98")
)

var singularByUUID = map[uuid.UUID]SingularEntry{
	UUIDUptime:          {Name: "Uptime", Payload: "(xx)", New: newUptime},
	UUIDImageVersion:    {Name: "ImageVersion", Payload: "s", New: newImageVersion},
	UUIDDualBootBooted:  {Name: "DualBootBooted", New: newDualBootBooted},
	UUIDLiveUsbBooted:   {Name: "LiveUsbBooted", New: newLiveUsbBooted},
	UUIDEnteredDemoMode: {Name: "EnteredDemoMode", New: newEnteredDemoMode},
	UUIDLocationLabel:   {Name: "LocationLabel", Payload: "a{ss}", New: newLocationLabel},
	UUIDOSVersion:       {Name: "OSVersion", Payload: "(sss)", New: newOSVersion},
	UUIDMonitorConnected: {
		Name: "MonitorConnected", Payload: "(ssssiiay)", New: newMonitorConnected},
	UUIDMonitorDisconnected: {
		Name: "MonitorDisconnected", Payload: "(ssssiiay)", New: newMonitorDisconnected},
	UUIDRAMSize:        {Name: "RAMSize", Payload: "u", New: newRAMSize},
	UUIDDiskSpaceTotal: {Name: "DiskSpaceTotal", Payload: "(uuu)", New: newDiskSpaceTotal},
	UUIDDiskSpaceExtra: {Name: "DiskSpaceExtra", Payload: "(uuu)", New: newDiskSpaceExtra},
	UUIDCPUInfo:        {Name: "CPUInfo", Payload: "a(sqd)", New: newCPUInfo},
	UUIDLaunchedEquivalentExistingFlatpak: {
		Name: "LaunchedEquivalentExistingFlatpak", Payload: "(sas)", New: newLaunchedEquivalentExistingFlatpak},
	UUIDLaunchedEquivalentInstallerForFlatpak: {
		Name: "LaunchedEquivalentInstallerForFlatpak", Payload: "(sas)", New: newLaunchedEquivalentInstallerForFlatpak},
	UUIDLaunchedExistingFlatpak: {
		Name: "LaunchedExistingFlatpak", Payload: "(sas)", New: newLaunchedExistingFlatpak},
	UUIDLaunchedInstallerForFlatpak: {
		Name: "LaunchedInstallerForFlatpak", Payload: "(sas)", New: newLaunchedInstallerForFlatpak},
	UUIDLinuxPackageOpened: {Name: "LinuxPackageOpened", Payload: "as", New: newLinuxPackageOpened},
	UUIDWindowsAppOpened:   {Name: "WindowsAppOpened", Payload: "as", New: newWindowsAppOpened},
	UUIDParentalControlsBlockedFlatpakInstall: {
		Name: "ParentalControlsBlockedFlatpakInstall", Payload: "s", New: newParentalControlsBlockedFlatpakInstall},
	UUIDParentalControlsBlockedFlatpakRun: {
		Name: "ParentalControlsBlockedFlatpakRun", Payload: "s", New: newParentalControlsBlockedFlatpakRun},
	UUIDParentalControlsChanged: {
		Name: "ParentalControlsChanged", Payload: "a{sv}", New: newParentalControlsChanged},
	UUIDHackClubhouseProgress: {
		Name: "HackClubhouseProgress", Payload: "a{sv}", New: newHackClubhouseProgress},
	UUIDHackClubhouseMode: {Name: "HackClubhouseMode", Payload: "b", New: newHackClubhouseMode},
	UUIDHackClubhouseNewsQuestLink: {
		Name: "HackClubhouseNewsQuestLink", Payload: "(ss)", New: newHackClubhouseNewsQuestLink},
	UUIDHackClubhouseChangePage: {
		Name: "HackClubhouseChangePage", Payload: "s", New: newHackClubhouseChangePage},
	UUIDHackClubhouseAchievement: {
		Name: "HackClubhouseAchievement", Payload: "(ss)", New: newHackClubhouseAchievement},
	UUIDHackClubhouseAchievementPoints: {
		Name: "HackClubhouseAchievementPoints", Payload: "(sii)", New: newHackClubhouseAchievementPoints},
	UUIDNetworkID:         {Name: "NetworkID", Payload: "u", New: newNetworkID},
	UUIDProgramDumpedCore: {Name: "ProgramDumpedCore", Payload: "a{sv}", New: newProgramDumpedCore},
	UUIDShellAppAddedToDesktop: {
		Name: "ShellAppAddedToDesktop", Payload: "s", New: newShellAppAddedToDesktop},
	UUIDShellAppRemovedFromDesktop: {
		Name: "ShellAppRemovedFromDesktop", Payload: "s", New: newShellAppRemovedFromDesktop},
	UUIDUpdaterBranchSelected: {
		Name: "UpdaterBranchSelected", Payload: "(sssb)", New: newUpdaterBranchSelected},
	UUIDStartupFinished: {Name: "StartupFinished", Payload: "(tttttt)", New: newStartupFinished},
}

// No aggregate event has ever shipped a decoder; the map exists so the
// dispatcher and replay treat the classification uniformly.
var aggregateByUUID = map[uuid.UUID]AggregateEntry{}

var sequenceByUUID = map[uuid.UUID]SequenceEntry{
	UUIDShellAppIsOpen: {Name: "ShellAppIsOpen", Payload: "s", New: newShellAppIsOpen},
	UUIDUserIsLoggedIn: {Name: "UserIsLoggedIn", New: newUserIsLoggedIn},
}

// ignoredUUIDs lists retired event kinds that clients still send; they are
// dropped at dispatch without leaving a row behind.
var ignoredUUIDs = map[uuid.UUID]struct{}{
	uuid.MustParse("005096c4-9444-48c6-844b-6cb693c15235"): {},
	uuid.MustParse("337fa66d-5163-46ae-ab20-dc605b5d7307"): {},
	uuid.MustParse("3c5d59d2-6c3f-474b-95f4-ac6fcc192655"): {},
	uuid.MustParse("5fae6179-e108-4962-83be-c909259c0584"): {},
	uuid.MustParse("6dad6c44-f52f-43ad-8bb7-363e7e8cb8bb"): {},
	uuid.MustParse("8f70276e-3f78-45b2-99f8-94db231d42dd"): {},
	uuid.MustParse("91de63ea-c7b7-412c-93f3-6f3d9b2f864c"): {},
	uuid.MustParse("b1f87a3f-a464-48d4-8e35-35dd45659010"): {},
	uuid.MustParse("b2b17dfd-c30e-4789-abcc-4a38323127f6"): {},
	uuid.MustParse("eaf3b917-9953-4337-b233-348fc4bd0b26"): {},
}

// ignoredEmptyPayloadUUIDs lists events that are legitimately sent without a
// payload every so often; an absent payload becomes a silent drop instead of
// an invalid row.
var ignoredEmptyPayloadUUIDs = map[uuid.UUID]struct{}{
	UUIDOSVersion:          {},
	UUIDLinuxPackageOpened: {},
	UUIDWindowsAppOpened:   {},
	UUIDNetworkID:          {},
}

func Singular(id uuid.UUID) (SingularEntry, bool) {
	e, ok := singularByUUID[id]
	return e, ok
}

func Aggregate(id uuid.UUID) (AggregateEntry, bool) {
	e, ok := aggregateByUUID[id]
	return e, ok
}

func Sequence(id uuid.UUID) (SequenceEntry, bool) {
	e, ok := sequenceByUUID[id]
	return e, ok
}

// IsIgnored reports whether the event kind is dropped unconditionally.
func IsIgnored(id uuid.UUID) bool {
	_, ok := ignoredUUIDs[id]
	return ok
}

// IgnoresEmptyPayload reports whether an absent payload on this event kind is
// a silent drop.
func IgnoresEmptyPayload(id uuid.UUID) bool {
	_, ok := ignoredEmptyPayloadUUIDs[id]
	return ok
}
