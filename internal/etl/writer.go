package etl

import (
	"context"

	"github.com/aryanagg/si206-final/pkg/logger"
	"github.com/aryanagg/si206-final/pkg/models"
)

// keyLookupChunk bounds the number of keys sent to the store per existence
// check. SQL Server accepts at most 2100 parameters per statement.
const keyLookupChunk = 500

// Writer commits the next slice of a snapshot and advances the watermark in
// the same transaction.
type Writer struct {
	Store  RecordStore
	Policy string
	// FullLoadAfter lifts the batch cap once the watermark reaches it.
	// Zero disables the behaviour.
	FullLoadAfter int
}

func NewWriter(store RecordStore, policy string, fullLoadAfter int) *Writer {
	if policy == "" {
		policy = models.SlicingKeyExclusion
	}
	return &Writer{Store: store, Policy: policy, FullLoadAfter: fullLoadAfter}
}

// Plan is the slice a run would commit.
type Plan struct {
	Watermark int
	Candidate []models.Record
}

// Plan reads the watermark and selects the candidate slice without writing.
func (w *Writer) Plan(ctx context.Context, records []models.Record, batchCap int) (*Plan, error) {
	if batchCap <= 0 {
		return nil, invalidConfig("batch cap must be positive, got %d", batchCap)
	}

	wm, err := w.Store.ReadWatermark(ctx)
	if err != nil {
		return nil, persistenceError(err, "read watermark")
	}

	limit := batchCap
	if w.FullLoadAfter > 0 && wm >= w.FullLoadAfter {
		limit = len(records)
	}

	var candidate []models.Record
	switch w.Policy {
	case models.SlicingPositional:
		candidate = positionalSlice(records, wm, limit)
	case models.SlicingKeyExclusion:
		candidate, err = w.excludeKnown(ctx, records, limit)
		if err != nil {
			return nil, err
		}
	default:
		return nil, invalidConfig("unknown slicing policy %q", w.Policy)
	}

	return &Plan{Watermark: wm, Candidate: candidate}, nil
}

// Apply commits the planned slice and returns how many records it held.
// On error nothing has been written.
func (w *Writer) Apply(ctx context.Context, records []models.Record, batchCap int) (int, error) {
	plan, err := w.Plan(ctx, records, batchCap)
	if err != nil {
		return 0, err
	}
	if len(plan.Candidate) == 0 {
		return 0, nil
	}
	if err := w.commit(ctx, plan); err != nil {
		return 0, err
	}
	return len(plan.Candidate), nil
}

func (w *Writer) commit(ctx context.Context, plan *Plan) error {
	tx, err := w.Store.Begin(ctx)
	if err != nil {
		return persistenceError(err, "begin commit")
	}
	defer tx.Rollback()

	if err := tx.InsertRecords(ctx, plan.Candidate); err != nil {
		return persistenceError(err, "insert slice")
	}

	next := plan.Watermark + len(plan.Candidate)
	if w.Policy == models.SlicingKeyExclusion {
		if next, err = tx.CountRecords(ctx); err != nil {
			return persistenceError(err, "count after insert")
		}
	}
	if next < plan.Watermark {
		// The persisted set shrank behind our back; never move the cursor back.
		logger.Warn("persisted count below watermark", "watermark", plan.Watermark, "count", next)
		next = plan.Watermark
	}

	if err := tx.WriteWatermark(ctx, next); err != nil {
		return persistenceError(err, "advance watermark")
	}
	if err := tx.Commit(); err != nil {
		return persistenceError(err, "commit slice")
	}

	logger.Info("committed slice", "policy", w.Policy, "added", len(plan.Candidate), "from", plan.Watermark, "to", next)
	return nil
}

func positionalSlice(records []models.Record, wm, limit int) []models.Record {
	if wm >= len(records) {
		return nil
	}
	end := wm + limit
	if end > len(records) {
		end = len(records)
	}
	return records[wm:end]
}

// excludeKnown returns the first limit records, in source order, whose key is
// neither persisted nor repeated earlier in the snapshot.
func (w *Writer) excludeKnown(ctx context.Context, records []models.Record, limit int) ([]models.Record, error) {
	var out []models.Record
	seen := make(map[string]struct{})

	for start := 0; start < len(records) && len(out) < limit; start += keyLookupChunk {
		end := start + keyLookupChunk
		if end > len(records) {
			end = len(records)
		}
		chunk := records[start:end]

		keys := make([]string, 0, len(chunk))
		for _, r := range chunk {
			keys = append(keys, r.Key)
		}
		known, err := w.Store.KnownKeys(ctx, keys)
		if err != nil {
			return nil, persistenceError(err, "check existing keys")
		}

		for _, r := range chunk {
			if len(out) == limit {
				break
			}
			if _, ok := known[r.Key]; ok {
				continue
			}
			if _, ok := seen[r.Key]; ok {
				continue
			}
			seen[r.Key] = struct{}{}
			out = append(out, r)
		}
	}
	return out, nil
}
