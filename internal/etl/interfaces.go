package etl

import (
	"context"

	"github.com/aryanagg/si206-final/pkg/models"
)

// Source fetches a full snapshot of a dataset, in provider order.
type Source interface {
	Fetch(ctx context.Context) ([]models.Record, error)
}

// WatermarkStore holds the committed_count cursor of a dataset.
type WatermarkStore interface {
	ReadWatermark(ctx context.Context) (int, error)
	WriteWatermark(ctx context.Context, n int) error
}

// Tx is a store transaction. Records inserted and the watermark written
// through it become visible together on Commit, or not at all.
type Tx interface {
	WatermarkStore
	// InsertRecords appends records, silently skipping keys already stored.
	InsertRecords(ctx context.Context, records []models.Record) error
	CountRecords(ctx context.Context) (int, error)
	Commit() error
	// Rollback discards the transaction. It is safe to call after Commit.
	Rollback() error
}

// RecordStore is the durable home of one dataset's persisted record set and
// its watermark.
type RecordStore interface {
	EnsureSchema(ctx context.Context) error
	ReadWatermark(ctx context.Context) (int, error)
	CountRecords(ctx context.Context) (int, error)
	// KnownKeys returns the subset of keys already persisted.
	KnownKeys(ctx context.Context, keys []string) (map[string]struct{}, error)
	List(ctx context.Context, opts ListOptions) ([]models.Record, error)
	Begin(ctx context.Context) (Tx, error)
}

// ListOptions controls how downstream readers page through a record set.
// An empty OrderBy sorts by natural key; Limit <= 0 means no limit.
type ListOptions struct {
	OrderBy string
	Desc    bool
	Limit   int
}
