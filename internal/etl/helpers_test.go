package etl

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/aryanagg/si206-final/pkg/models"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func testSchema() *models.SourceSchema {
	return &models.SourceSchema{
		Name:      "covid_deaths",
		Kind:      models.KindJSON,
		URL:       "http://localhost/covid",
		Table:     "covid_deaths",
		KeyFields: []string{"Province_State", "Country_Region"},
		Fields: []models.FieldConfig{
			{Column: "country_region", Source: "Country_Region", Type: models.TypeString},
			{Column: "confirmed", Source: "Confirmed", Type: models.TypeInt},
			{Column: "deaths", Source: "Deaths", Type: models.TypeInt},
			{Column: "latitude", Source: "Lat", Type: models.TypeFloat},
		},
		BatchCap: 25,
	}
}

func openTestDB(t testing.TB) *sql.DB {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestStore(t testing.TB, schema *models.SourceSchema) *SQLStore {
	store := NewSQLStore(openTestDB(t), SQLite, schema)
	require.NoError(t, store.EnsureSchema(context.Background()))
	return store
}

func makeRecords(n int) []models.Record {
	out := make([]models.Record, n)
	for i := range out {
		out[i] = makeRecord(fmt.Sprintf("region-%03d", i), int64(i))
	}
	return out
}

func makeRecord(key string, deaths int64) models.Record {
	return models.Record{
		Key: key,
		Values: map[string]interface{}{
			"country_region": key,
			"confirmed":      deaths * 10,
			"deaths":         deaths,
			"latitude":       1.5,
		},
	}
}

func keysOf(records []models.Record) []string {
	keys := make([]string, len(records))
	for i, r := range records {
		keys[i] = r.Key
	}
	return keys
}

// staticSource returns the same snapshot on every fetch.
type staticSource struct {
	records []models.Record
	err     error
	calls   int
}

func (s *staticSource) Fetch(context.Context) ([]models.Record, error) {
	s.calls++
	return s.records, s.err
}

// failingStore wraps a real store and injects a failure into its
// transactions at the named step.
type failingStore struct {
	RecordStore
	failAt string
}

func (f *failingStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := f.RecordStore.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &failingTx{Tx: tx, failAt: f.failAt}, nil
}

type failingTx struct {
	Tx
	failAt string
}

var errInjected = fmt.Errorf("injected failure")

func (f *failingTx) InsertRecords(ctx context.Context, records []models.Record) error {
	if f.failAt == "insert" {
		// Write half the slice first so the rollback has something to undo.
		if err := f.Tx.InsertRecords(ctx, records[:len(records)/2]); err != nil {
			return err
		}
		return errInjected
	}
	return f.Tx.InsertRecords(ctx, records)
}

func (f *failingTx) WriteWatermark(ctx context.Context, n int) error {
	if f.failAt == "watermark" {
		return errInjected
	}
	return f.Tx.WriteWatermark(ctx, n)
}

func (f *failingTx) Commit() error {
	if f.failAt == "commit" {
		f.Tx.Rollback()
		return errInjected
	}
	return f.Tx.Commit()
}
