package replay

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/yungbote/metricsd/internal/catalog"
	"github.com/yungbote/metricsd/internal/ingest"
	"github.com/yungbote/metricsd/internal/logger"
	"github.com/yungbote/metricsd/internal/repos"
	"github.com/yungbote/metricsd/internal/types"
	"github.com/yungbote/metricsd/internal/variant"
)

// DefaultChunkSize bounds how many catch-all rows are re-dispatched per
// transaction.
const DefaultChunkSize = 5000

// Replayer re-dispatches stored unknown and invalid events after a catalog
// change. Rows move between tables as their classification changes:
//
//   - ignored rows are deleted,
//   - rows whose event kind gained a decoder become typed rows,
//   - invalid rows whose kind left the catalog become unknown rows,
//   - everything else stays put.
//
// Tables are walked newest first below the id observed at start, so rows
// re-filed while a pass runs are not visited again by the same pass.
type Replayer struct {
	log       *logger.Logger
	gdb       *gorm.DB
	chunkSize int
	catchalls repos.CatchallRepo
	requests  repos.RequestRepo
	events    repos.EventRepo
	machines  repos.MachineRepo
}

func New(gdb *gorm.DB, chunkSize int, log *logger.Logger) *Replayer {
	if chunkSize < 1 {
		chunkSize = DefaultChunkSize
	}
	return &Replayer{
		log:       log.With("component", "Replayer"),
		gdb:       gdb,
		chunkSize: chunkSize,
		catchalls: repos.NewCatchallRepo(gdb, log),
		requests:  repos.NewRequestRepo(gdb, log),
		events:    repos.NewEventRepo(gdb, log),
		machines:  repos.NewMachineRepo(gdb, log),
	}
}

// Run replays all six catch-all tables.
func (r *Replayer) Run(ctx context.Context) error {
	passes := []struct {
		name string
		run  func(context.Context) error
	}{
		{"unknown singular events", r.replayUnknownSingulars},
		{"invalid singular events", r.replayInvalidSingulars},
		{"unknown aggregate events", r.replayUnknownAggregates},
		{"invalid aggregate events", r.replayInvalidAggregates},
		{"unknown sequences", r.replayUnknownSequences},
		{"invalid sequences", r.replayInvalidSequences},
	}
	for _, pass := range passes {
		r.log.Info("Replaying", "table", pass.name)
		if err := pass.run(ctx); err != nil {
			return err
		}
	}
	return nil
}

// chunked drives one pass: fetch is called inside a fresh transaction per
// chunk and returns how many rows it saw plus the lowest id it visited.
func (r *Replayer) chunked(ctx context.Context, model any, fetch func(tx *gorm.DB, beforeID int64) (n int, lowest int64, err error)) error {
	before, err := r.catchalls.MaxID(ctx, nil, model)
	if err != nil {
		return err
	}
	for before > 0 {
		var n int
		var lowest int64
		err := r.gdb.Transaction(func(tx *gorm.DB) error {
			var err error
			n, lowest, err = fetch(tx, before)
			return err
		})
		if err != nil {
			return err
		}
		if n < r.chunkSize {
			break
		}
		before = lowest - 1
	}
	return nil
}

func (r *Replayer) replayUnknownSingulars(ctx context.Context) error {
	return r.chunked(ctx, &types.UnknownSingularEvent{}, func(tx *gorm.DB, before int64) (int, int64, error) {
		rows, err := r.catchalls.UnknownSingularChunk(ctx, tx, before, r.chunkSize)
		if err != nil {
			return 0, 0, err
		}
		var lowest int64
		for _, row := range rows {
			lowest = row.ID
			if err := r.replayUnknownSingular(ctx, tx, row); err != nil {
				return 0, 0, err
			}
		}
		return len(rows), lowest, nil
	})
}

func (r *Replayer) replayUnknownSingular(ctx context.Context, tx *gorm.DB, row types.UnknownSingularEvent) error {
	if catalog.IsIgnored(row.EventID) {
		return r.catchalls.Delete(ctx, tx, &types.UnknownSingularEvent{}, row.ID)
	}
	entry, known := catalog.Singular(row.EventID)
	if !known {
		return nil
	}

	core := types.SingularCore{
		EventCore: types.EventCore{UserID: row.UserID, RequestID: row.RequestID},
		OccuredAt: row.OccuredAt,
	}
	model, err := decodeStoredSingular(entry, row.PayloadData)
	if err != nil {
		if errors.Is(err, catalog.ErrEmptyPayload) && catalog.IgnoresEmptyPayload(row.EventID) {
			return r.catchalls.Delete(ctx, tx, &types.UnknownSingularEvent{}, row.ID)
		}
		invalid := &types.InvalidSingularEvent{
			SingularCore: core,
			EventID:      row.EventID,
			PayloadData:  row.PayloadData,
			Error:        err.Error(),
		}
		if err := r.events.Insert(ctx, tx, invalid); err != nil {
			return err
		}
		return r.catchalls.Delete(ctx, tx, &types.UnknownSingularEvent{}, row.ID)
	}

	*model.Singular() = core
	if err := r.events.Insert(ctx, tx, model); err != nil {
		return err
	}
	if err := r.applyMachineHooks(ctx, tx, row.RequestID, model); err != nil {
		return err
	}
	return r.catchalls.Delete(ctx, tx, &types.UnknownSingularEvent{}, row.ID)
}

func (r *Replayer) replayInvalidSingulars(ctx context.Context) error {
	return r.chunked(ctx, &types.InvalidSingularEvent{}, func(tx *gorm.DB, before int64) (int, int64, error) {
		rows, err := r.catchalls.InvalidSingularChunk(ctx, tx, before, r.chunkSize)
		if err != nil {
			return 0, 0, err
		}
		var lowest int64
		for _, row := range rows {
			lowest = row.ID
			if err := r.replayInvalidSingular(ctx, tx, row); err != nil {
				return 0, 0, err
			}
		}
		return len(rows), lowest, nil
	})
}

func (r *Replayer) replayInvalidSingular(ctx context.Context, tx *gorm.DB, row types.InvalidSingularEvent) error {
	if catalog.IsIgnored(row.EventID) {
		return r.catchalls.Delete(ctx, tx, &types.InvalidSingularEvent{}, row.ID)
	}

	core := types.SingularCore{
		EventCore: types.EventCore{UserID: row.UserID, RequestID: row.RequestID},
		OccuredAt: row.OccuredAt,
	}
	entry, known := catalog.Singular(row.EventID)
	if !known {
		// The kind left the catalog since the row was filed.
		unknown := &types.UnknownSingularEvent{
			SingularCore: core,
			EventID:      row.EventID,
			PayloadData:  row.PayloadData,
		}
		if err := r.events.Insert(ctx, tx, unknown); err != nil {
			return err
		}
		return r.catchalls.Delete(ctx, tx, &types.InvalidSingularEvent{}, row.ID)
	}

	model, err := decodeStoredSingular(entry, row.PayloadData)
	if err != nil {
		if errors.Is(err, catalog.ErrEmptyPayload) && catalog.IgnoresEmptyPayload(row.EventID) {
			return r.catchalls.Delete(ctx, tx, &types.InvalidSingularEvent{}, row.ID)
		}
		// Still invalid, keep the row.
		return nil
	}

	*model.Singular() = core
	if err := r.events.Insert(ctx, tx, model); err != nil {
		return err
	}
	if err := r.applyMachineHooks(ctx, tx, row.RequestID, model); err != nil {
		return err
	}
	return r.catchalls.Delete(ctx, tx, &types.InvalidSingularEvent{}, row.ID)
}

func (r *Replayer) replayUnknownAggregates(ctx context.Context) error {
	return r.chunked(ctx, &types.UnknownAggregateEvent{}, func(tx *gorm.DB, before int64) (int, int64, error) {
		rows, err := r.catchalls.UnknownAggregateChunk(ctx, tx, before, r.chunkSize)
		if err != nil {
			return 0, 0, err
		}
		var lowest int64
		for _, row := range rows {
			lowest = row.ID
			if err := r.replayUnknownAggregate(ctx, tx, row); err != nil {
				return 0, 0, err
			}
		}
		return len(rows), lowest, nil
	})
}

func (r *Replayer) replayUnknownAggregate(ctx context.Context, tx *gorm.DB, row types.UnknownAggregateEvent) error {
	if catalog.IsIgnored(row.EventID) {
		return r.catchalls.Delete(ctx, tx, &types.UnknownAggregateEvent{}, row.ID)
	}
	entry, known := catalog.Aggregate(row.EventID)
	if !known {
		return nil
	}

	core := types.AggregateCore{
		SingularCore: types.SingularCore{
			EventCore: types.EventCore{UserID: row.UserID, RequestID: row.RequestID},
			OccuredAt: row.OccuredAt,
		},
		Count: row.Count,
	}
	model, err := decodeStoredAggregate(entry, row.PayloadData)
	if err != nil {
		if errors.Is(err, catalog.ErrEmptyPayload) && catalog.IgnoresEmptyPayload(row.EventID) {
			return r.catchalls.Delete(ctx, tx, &types.UnknownAggregateEvent{}, row.ID)
		}
		invalid := &types.InvalidAggregateEvent{
			AggregateCore: core,
			EventID:       row.EventID,
			PayloadData:   row.PayloadData,
			Error:         err.Error(),
		}
		if err := r.events.Insert(ctx, tx, invalid); err != nil {
			return err
		}
		return r.catchalls.Delete(ctx, tx, &types.UnknownAggregateEvent{}, row.ID)
	}

	*model.Aggregate() = core
	if err := r.events.Insert(ctx, tx, model); err != nil {
		return err
	}
	return r.catchalls.Delete(ctx, tx, &types.UnknownAggregateEvent{}, row.ID)
}

func (r *Replayer) replayInvalidAggregates(ctx context.Context) error {
	return r.chunked(ctx, &types.InvalidAggregateEvent{}, func(tx *gorm.DB, before int64) (int, int64, error) {
		rows, err := r.catchalls.InvalidAggregateChunk(ctx, tx, before, r.chunkSize)
		if err != nil {
			return 0, 0, err
		}
		var lowest int64
		for _, row := range rows {
			lowest = row.ID
			if err := r.replayInvalidAggregate(ctx, tx, row); err != nil {
				return 0, 0, err
			}
		}
		return len(rows), lowest, nil
	})
}

func (r *Replayer) replayInvalidAggregate(ctx context.Context, tx *gorm.DB, row types.InvalidAggregateEvent) error {
	if catalog.IsIgnored(row.EventID) {
		return r.catchalls.Delete(ctx, tx, &types.InvalidAggregateEvent{}, row.ID)
	}

	core := types.AggregateCore{
		SingularCore: types.SingularCore{
			EventCore: types.EventCore{UserID: row.UserID, RequestID: row.RequestID},
			OccuredAt: row.OccuredAt,
		},
		Count: row.Count,
	}
	entry, known := catalog.Aggregate(row.EventID)
	if !known {
		unknown := &types.UnknownAggregateEvent{
			AggregateCore: core,
			EventID:       row.EventID,
			PayloadData:   row.PayloadData,
		}
		if err := r.events.Insert(ctx, tx, unknown); err != nil {
			return err
		}
		return r.catchalls.Delete(ctx, tx, &types.InvalidAggregateEvent{}, row.ID)
	}

	model, err := decodeStoredAggregate(entry, row.PayloadData)
	if err != nil {
		if errors.Is(err, catalog.ErrEmptyPayload) && catalog.IgnoresEmptyPayload(row.EventID) {
			return r.catchalls.Delete(ctx, tx, &types.InvalidAggregateEvent{}, row.ID)
		}
		return nil
	}

	*model.Aggregate() = core
	if err := r.events.Insert(ctx, tx, model); err != nil {
		return err
	}
	return r.catchalls.Delete(ctx, tx, &types.InvalidAggregateEvent{}, row.ID)
}

func (r *Replayer) replayUnknownSequences(ctx context.Context) error {
	return r.chunked(ctx, &types.UnknownSequence{}, func(tx *gorm.DB, before int64) (int, int64, error) {
		rows, err := r.catchalls.UnknownSequenceChunk(ctx, tx, before, r.chunkSize)
		if err != nil {
			return 0, 0, err
		}
		var lowest int64
		for _, row := range rows {
			lowest = row.ID
			if err := r.replayUnknownSequence(ctx, tx, row); err != nil {
				return 0, 0, err
			}
		}
		return len(rows), lowest, nil
	})
}

func (r *Replayer) replayUnknownSequence(ctx context.Context, tx *gorm.DB, row types.UnknownSequence) error {
	if catalog.IsIgnored(row.EventID) {
		return r.catchalls.Delete(ctx, tx, &types.UnknownSequence{}, row.ID)
	}
	entry, known := catalog.Sequence(row.EventID)
	if !known {
		return nil
	}

	core := types.EventCore{UserID: row.UserID, RequestID: row.RequestID}
	model, err := r.decodeStoredSequence(ctx, tx, entry, row.RequestID, row.PayloadData)
	if err != nil {
		if errors.Is(err, catalog.ErrEmptyPayload) && catalog.IgnoresEmptyPayload(row.EventID) {
			return r.catchalls.Delete(ctx, tx, &types.UnknownSequence{}, row.ID)
		}
		invalid := &types.InvalidSequence{
			EventCore:   core,
			EventID:     row.EventID,
			PayloadData: row.PayloadData,
			Error:       err.Error(),
		}
		if err := r.events.Insert(ctx, tx, invalid); err != nil {
			return err
		}
		return r.catchalls.Delete(ctx, tx, &types.UnknownSequence{}, row.ID)
	}

	model.Sequence().EventCore = core
	if err := r.events.Insert(ctx, tx, model); err != nil {
		return err
	}
	return r.catchalls.Delete(ctx, tx, &types.UnknownSequence{}, row.ID)
}

func (r *Replayer) replayInvalidSequences(ctx context.Context) error {
	return r.chunked(ctx, &types.InvalidSequence{}, func(tx *gorm.DB, before int64) (int, int64, error) {
		rows, err := r.catchalls.InvalidSequenceChunk(ctx, tx, before, r.chunkSize)
		if err != nil {
			return 0, 0, err
		}
		var lowest int64
		for _, row := range rows {
			lowest = row.ID
			if err := r.replayInvalidSequence(ctx, tx, row); err != nil {
				return 0, 0, err
			}
		}
		return len(rows), lowest, nil
	})
}

func (r *Replayer) replayInvalidSequence(ctx context.Context, tx *gorm.DB, row types.InvalidSequence) error {
	if catalog.IsIgnored(row.EventID) {
		return r.catchalls.Delete(ctx, tx, &types.InvalidSequence{}, row.ID)
	}

	core := types.EventCore{UserID: row.UserID, RequestID: row.RequestID}
	entry, known := catalog.Sequence(row.EventID)
	if !known {
		unknown := &types.UnknownSequence{
			EventCore:   core,
			EventID:     row.EventID,
			PayloadData: row.PayloadData,
		}
		if err := r.events.Insert(ctx, tx, unknown); err != nil {
			return err
		}
		return r.catchalls.Delete(ctx, tx, &types.InvalidSequence{}, row.ID)
	}

	model, err := r.decodeStoredSequence(ctx, tx, entry, row.RequestID, row.PayloadData)
	if err != nil {
		if errors.Is(err, catalog.ErrEmptyPayload) && catalog.IgnoresEmptyPayload(row.EventID) {
			return r.catchalls.Delete(ctx, tx, &types.InvalidSequence{}, row.ID)
		}
		return nil
	}

	model.Sequence().EventCore = core
	if err := r.events.Insert(ctx, tx, model); err != nil {
		return err
	}
	return r.catchalls.Delete(ctx, tx, &types.InvalidSequence{}, row.ID)
}

// decodeStoredSingular re-runs a singular decoder over the stored "mv" bytes.
func decodeStoredSingular(entry catalog.SingularEntry, data []byte) (types.SingularModel, error) {
	payload, err := storedPayload(data)
	if err != nil {
		return nil, err
	}
	return entry.Decode(payload)
}

func decodeStoredAggregate(entry catalog.AggregateEntry, data []byte) (types.AggregateModel, error) {
	payload, err := storedPayload(data)
	if err != nil {
		return nil, err
	}
	return entry.Decode(payload)
}

func storedPayload(data []byte) (*variant.Value, error) {
	v, err := variant.Decode("mv", data)
	if err != nil {
		return nil, err
	}
	return v.Maybe()
}

// decodeStoredSequence rebuilds the start and stop times from the stored
// a(xmv) bytes and the owning request's clock pair.
func (r *Replayer) decodeStoredSequence(ctx context.Context, tx *gorm.DB, entry catalog.SequenceEntry, requestID int64, data []byte) (types.SequenceModel, error) {
	req, err := r.requests.GetByID(ctx, tx, requestID)
	if err != nil {
		return nil, err
	}
	v, err := variant.Decode("a(xmv)", data)
	if err != nil {
		return nil, err
	}
	elems, err := v.Array()
	if err != nil {
		return nil, err
	}
	return ingest.DecodeSequence(entry, req, elems)
}

// applyMachineHooks replays the machine-level side effect of a freshly
// decoded event against its original machine.
func (r *Replayer) applyMachineHooks(ctx context.Context, tx *gorm.DB, requestID int64, model types.SingularModel) error {
	switch model.(type) {
	case *types.ImageVersion, *types.DualBootBooted, *types.LiveUsbBooted,
		*types.EnteredDemoMode, *types.LocationLabel:
	default:
		return nil
	}
	req, err := r.requests.GetByID(ctx, tx, requestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			r.log.Warn("Request gone, skipping machine update", "request_id", requestID)
			return nil
		}
		return err
	}
	return ingest.UpdateMachine(ctx, tx, r.machines, r.log, req.MachineID, model)
}
