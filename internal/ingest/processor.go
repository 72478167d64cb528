package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/metricsd/internal/catalog"
	"github.com/yungbote/metricsd/internal/imageid"
	"github.com/yungbote/metricsd/internal/logger"
	"github.com/yungbote/metricsd/internal/repos"
	"github.com/yungbote/metricsd/internal/types"
	"github.com/yungbote/metricsd/internal/variant"
)

// Processor turns one queue record into database rows: the request header,
// one row per event, and the derived machine updates. It never writes outside
// the transaction it is handed.
type Processor struct {
	log      *logger.Logger
	requests repos.RequestRepo
	events   repos.EventRepo
	machines repos.MachineRepo
}

func NewProcessor(requests repos.RequestRepo, events repos.EventRepo, machines repos.MachineRepo, baseLog *logger.Logger) *Processor {
	return &Processor{
		log:      baseLog.With("component", "Processor"),
		requests: requests,
		events:   events,
		machines: machines,
	}
}

// HandleRecord ingests one raw record inside tx. A sha512 duplicate is a
// silent no-op. A MalformedRecordError means the record can never be ingested
// and belongs on the error queue.
func (p *Processor) HandleRecord(ctx context.Context, tx *gorm.DB, raw []byte) error {
	rec, err := DecodeRecord(raw)
	if err != nil {
		return err
	}

	created, err := p.requests.Insert(ctx, tx, &rec.Request)
	if err != nil {
		return fmt.Errorf("store request: %w", err)
	}
	if !created {
		p.log.Debug("Request already ingested, skipping", "sha512", rec.Request.Sha512)
		return nil
	}

	// First occurrence wins for the boot-flavor events; clients occasionally
	// send the same one several times per submission.
	seen := map[uuid.UUID]bool{}

	for i, ev := range rec.Singulars {
		if err := p.handleSingular(ctx, tx, rec, ev, seen); err != nil {
			return fmt.Errorf("singular event %d: %w", i, err)
		}
	}
	for i, ev := range rec.Aggregates {
		if err := p.handleAggregate(ctx, tx, rec, ev); err != nil {
			return fmt.Errorf("aggregate event %d: %w", i, err)
		}
	}
	for i, ev := range rec.Sequences {
		if err := p.handleSequence(ctx, tx, rec, ev); err != nil {
			return fmt.Errorf("sequence event %d: %w", i, err)
		}
	}
	return nil
}

// eventTime converts an event's monotonic timestamp to wall-clock time using
// the clock pair sent with the request.
func eventTime(req *types.MetricsRequest, relative int64) time.Time {
	return time.Unix(0, req.OriginBoot()+relative).UTC()
}

var dedupedUUIDs = map[uuid.UUID]struct{}{
	catalog.UUIDImageVersion:   {},
	catalog.UUIDDualBootBooted: {},
	catalog.UUIDLiveUsbBooted:  {},
}

func (p *Processor) handleSingular(ctx context.Context, tx *gorm.DB, rec *Record, ev variant.Value, seen map[uuid.UUID]bool) error {
	members, err := ev.Tuple()
	if err != nil {
		return err
	}
	userID, err := members[0].Uint32()
	if err != nil {
		return err
	}
	eventID, err := eventUUID(members[1])
	if err != nil {
		return err
	}
	relative, err := members[2].Int64()
	if err != nil {
		return err
	}
	payload, err := members[3].Maybe()
	if err != nil {
		return err
	}

	if catalog.IsIgnored(eventID) {
		return nil
	}
	if seen[eventID] {
		return nil
	}

	core := types.SingularCore{
		EventCore: types.EventCore{UserID: int64(userID), RequestID: rec.Request.ID},
		OccuredAt: eventTime(&rec.Request, relative),
	}

	entry, known := catalog.Singular(eventID)
	if !known {
		return p.events.Insert(ctx, tx, &types.UnknownSingularEvent{
			SingularCore: core,
			EventID:      eventID,
			PayloadData:  members[3].Raw(),
		})
	}

	model, err := entry.Decode(payload)
	if err != nil {
		if errors.Is(err, catalog.ErrEmptyPayload) && catalog.IgnoresEmptyPayload(eventID) {
			return nil
		}
		p.log.Warn("Singular event failed to decode", "event", entry.Name, "error", err)
		return p.events.Insert(ctx, tx, &types.InvalidSingularEvent{
			SingularCore: core,
			EventID:      eventID,
			PayloadData:  members[3].Raw(),
			Error:        err.Error(),
		})
	}

	// Only a successfully decoded event closes the dedup gate; an invalid
	// row must not suppress a valid later occurrence of the same kind.
	if _, deduped := dedupedUUIDs[eventID]; deduped {
		seen[eventID] = true
	}

	*model.Singular() = core
	if err := p.events.Insert(ctx, tx, model); err != nil {
		return err
	}
	return UpdateMachine(ctx, tx, p.machines, p.log, rec.Request.MachineID, model)
}

// UpdateMachine applies the machine-level side effect some events carry. It
// is shared with the replay path, which re-dispatches stored events long
// after their request was ingested.
func UpdateMachine(ctx context.Context, tx *gorm.DB, machines repos.MachineRepo, log *logger.Logger, machineID string, model types.SingularModel) error {
	switch m := model.(type) {
	case *types.ImageVersion:
		parsed, err := imageid.Parse(m.ImageID)
		if err != nil {
			// The event row stays; only the derived columns are skipped.
			log.Warn("Unparseable image id", "machine_id", machineID, "image_id", m.ImageID, "error", err)
			return nil
		}
		return machines.UpsertImage(ctx, tx, machineID, m.ImageID, parsed)
	case *types.DualBootBooted:
		return machines.SetDualBoot(ctx, tx, machineID)
	case *types.LiveUsbBooted:
		return machines.SetLive(ctx, tx, machineID)
	case *types.EnteredDemoMode:
		return machines.SetDemo(ctx, tx, machineID)
	case *types.LocationLabel:
		var info map[string]string
		if err := json.Unmarshal(m.Info, &info); err != nil {
			return fmt.Errorf("location label info: %w", err)
		}
		return machines.UpsertLocation(ctx, tx, machineID, info)
	default:
		return nil
	}
}

func (p *Processor) handleAggregate(ctx context.Context, tx *gorm.DB, rec *Record, ev variant.Value) error {
	members, err := ev.Tuple()
	if err != nil {
		return err
	}
	userID, err := members[0].Uint32()
	if err != nil {
		return err
	}
	eventID, err := eventUUID(members[1])
	if err != nil {
		return err
	}
	count, err := members[2].Int64()
	if err != nil {
		return err
	}
	relative, err := members[3].Int64()
	if err != nil {
		return err
	}
	payload, err := members[4].Maybe()
	if err != nil {
		return err
	}

	if catalog.IsIgnored(eventID) {
		return nil
	}

	core := types.AggregateCore{
		SingularCore: types.SingularCore{
			EventCore: types.EventCore{UserID: int64(userID), RequestID: rec.Request.ID},
			OccuredAt: eventTime(&rec.Request, relative),
		},
		Count: count,
	}

	entry, known := catalog.Aggregate(eventID)
	if !known {
		return p.events.Insert(ctx, tx, &types.UnknownAggregateEvent{
			AggregateCore: core,
			EventID:       eventID,
			PayloadData:   members[4].Raw(),
		})
	}

	model, err := entry.Decode(payload)
	if err != nil {
		if errors.Is(err, catalog.ErrEmptyPayload) && catalog.IgnoresEmptyPayload(eventID) {
			return nil
		}
		p.log.Warn("Aggregate event failed to decode", "event", entry.Name, "error", err)
		return p.events.Insert(ctx, tx, &types.InvalidAggregateEvent{
			AggregateCore: core,
			EventID:       eventID,
			PayloadData:   members[4].Raw(),
			Error:         err.Error(),
		})
	}

	*model.Aggregate() = core
	return p.events.Insert(ctx, tx, model)
}

func (p *Processor) handleSequence(ctx context.Context, tx *gorm.DB, rec *Record, ev variant.Value) error {
	members, err := ev.Tuple()
	if err != nil {
		return err
	}
	userID, err := members[0].Uint32()
	if err != nil {
		return err
	}
	eventID, err := eventUUID(members[1])
	if err != nil {
		return err
	}
	elems, err := members[2].Array()
	if err != nil {
		return err
	}

	if catalog.IsIgnored(eventID) {
		return nil
	}

	core := types.EventCore{UserID: int64(userID), RequestID: rec.Request.ID}

	entry, known := catalog.Sequence(eventID)
	if !known {
		return p.events.Insert(ctx, tx, &types.UnknownSequence{
			EventCore:   core,
			EventID:     eventID,
			PayloadData: members[2].Raw(),
		})
	}

	model, err := DecodeSequence(entry, &rec.Request, elems)
	if err != nil {
		if errors.Is(err, catalog.ErrEmptyPayload) && catalog.IgnoresEmptyPayload(eventID) {
			return nil
		}
		p.log.Warn("Sequence event failed to decode", "event", entry.Name, "error", err)
		return p.events.Insert(ctx, tx, &types.InvalidSequence{
			EventCore:   core,
			EventID:     eventID,
			PayloadData: members[2].Raw(),
			Error:       err.Error(),
		})
	}

	model.Sequence().EventCore = core
	return p.events.Insert(ctx, tx, model)
}

// DecodeSequence builds the typed row from a sequence's (timestamp, payload)
// elements. The first element opens the sequence and carries the payload; the
// last one closes it; anything in between is progress and is dropped.
func DecodeSequence(entry catalog.SequenceEntry, req *types.MetricsRequest, elems []variant.Value) (types.SequenceModel, error) {
	if len(elems) < 2 {
		return nil, fmt.Errorf("sequence needs at least 2 elements, got %d", len(elems))
	}

	start, err := elems[0].Tuple()
	if err != nil {
		return nil, err
	}
	startRel, err := start[0].Int64()
	if err != nil {
		return nil, err
	}
	payload, err := start[1].Maybe()
	if err != nil {
		return nil, err
	}

	stop, err := elems[len(elems)-1].Tuple()
	if err != nil {
		return nil, err
	}
	stopRel, err := stop[0].Int64()
	if err != nil {
		return nil, err
	}

	model, err := entry.Decode(payload)
	if err != nil {
		return nil, err
	}
	model.Sequence().StartedAt = eventTime(req, startRel)
	model.Sequence().StoppedAt = eventTime(req, stopRel)
	return model, nil
}

func eventUUID(v variant.Value) (uuid.UUID, error) {
	raw, err := v.Bytes()
	if err != nil {
		return uuid.UUID{}, err
	}
	id, err := uuid.FromBytes(raw)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("event id: %w", err)
	}
	return id, nil
}
