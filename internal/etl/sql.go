package etl

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/aryanagg/si206-final/pkg/models"
	"github.com/aryanagg/si206-final/pkg/utils"
	"github.com/cockroachdb/errors"
)

const (
	keyColumn      = "natural_key"
	watermarkTable = "ingest_watermarks"
)

// Dialect captures the statement differences between the SQL backends.
type Dialect string

const (
	SQLite    Dialect = "sqlite"
	SQLServer Dialect = "sqlserver"
)

func (d Dialect) placeholder(n int) string {
	if d == SQLServer {
		return fmt.Sprintf("@p%d", n)
	}
	return "?"
}

func (d Dialect) quote(ident string) string {
	if d == SQLServer {
		return "[" + ident + "]"
	}
	return `"` + ident + `"`
}

func (d Dialect) columnType(fieldType string) string {
	switch {
	case fieldType == models.TypeInt && d == SQLServer:
		return "BIGINT"
	case fieldType == models.TypeInt:
		return "INTEGER"
	case fieldType == models.TypeFloat && d == SQLServer:
		return "FLOAT"
	case fieldType == models.TypeFloat:
		return "REAL"
	case d == SQLServer:
		return "NVARCHAR(MAX)"
	default:
		return "TEXT"
	}
}

func (d Dialect) createTable(table, body string) string {
	if d == SQLServer {
		return fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NULL CREATE TABLE %s (%s)", table, d.quote(table), body)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", d.quote(table), body)
}

func (d Dialect) keyType() string {
	if d == SQLServer {
		// Index keys are limited to 900 bytes.
		return "NVARCHAR(450) NOT NULL PRIMARY KEY"
	}
	return "TEXT NOT NULL PRIMARY KEY"
}

// SQLStore keeps one dataset in a table keyed by natural_key and its
// watermark in the shared ingest_watermarks table.
type SQLStore struct {
	DB      *sql.DB
	Dialect Dialect
	Config  *models.SourceSchema
}

func NewSQLStore(db *sql.DB, dialect Dialect, config *models.SourceSchema) *SQLStore {
	return &SQLStore{DB: db, Dialect: dialect, Config: config}
}

func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	d := s.Dialect
	cols := []string{fmt.Sprintf("%s %s", d.quote(keyColumn), d.keyType())}
	for _, f := range s.Config.Fields {
		cols = append(cols, fmt.Sprintf("%s %s", d.quote(f.Column), d.columnType(f.Type)))
	}

	watermarkCols := strings.Join([]string{
		fmt.Sprintf("%s %s", d.quote("dataset"), d.keyType()),
		fmt.Sprintf("%s BIGINT NOT NULL", d.quote("committed_count")),
		fmt.Sprintf("%s %s", d.quote("updated_at"), d.columnType(models.TypeString)),
	}, ", ")

	for _, stmt := range []string{
		d.createTable(s.Config.Table, strings.Join(cols, ", ")),
		d.createTable(watermarkTable, watermarkCols),
	} {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return persistenceError(err, "create schema for %s", s.Config.Name)
		}
	}
	return nil
}

func (s *SQLStore) ReadWatermark(ctx context.Context) (int, error) {
	return readSQLWatermark(ctx, s.DB, s.Dialect, s.Config.Name)
}

func (s *SQLStore) CountRecords(ctx context.Context) (int, error) {
	return countSQLRecords(ctx, s.DB, s.Dialect, s.Config.Table)
}

func (s *SQLStore) KnownKeys(ctx context.Context, keys []string) (map[string]struct{}, error) {
	known := make(map[string]struct{})
	if len(keys) == 0 {
		return known, nil
	}

	placeholders := make([]string, len(keys))
	args := make([]interface{}, len(keys))
	for i, k := range keys {
		placeholders[i] = s.Dialect.placeholder(i + 1)
		args[i] = k
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s IN (%s)",
		s.Dialect.quote(keyColumn), s.Dialect.quote(s.Config.Table),
		s.Dialect.quote(keyColumn), strings.Join(placeholders, ", "))

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistenceError(err, "look up keys in %s", s.Config.Table)
	}
	defer rows.Close()

	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, persistenceError(err, "scan key from %s", s.Config.Table)
		}
		known[k] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceError(err, "look up keys in %s", s.Config.Table)
	}
	return known, nil
}

func (s *SQLStore) List(ctx context.Context, opts ListOptions) ([]models.Record, error) {
	d := s.Dialect
	orderBy := keyColumn
	if opts.OrderBy != "" && opts.OrderBy != keyColumn {
		if _, ok := s.Config.Field(opts.OrderBy); !ok {
			return nil, invalidConfig("dataset %s has no column %q", s.Config.Name, opts.OrderBy)
		}
		orderBy = opts.OrderBy
	}
	direction := "ASC"
	if opts.Desc {
		direction = "DESC"
	}

	cols := []string{d.quote(keyColumn)}
	for _, c := range s.Config.Columns() {
		cols = append(cols, d.quote(c))
	}

	top, limit := "", ""
	if opts.Limit > 0 {
		if d == SQLServer {
			top = fmt.Sprintf("TOP (%d) ", opts.Limit)
		} else {
			limit = fmt.Sprintf(" LIMIT %d", opts.Limit)
		}
	}
	query := fmt.Sprintf("SELECT %s%s FROM %s ORDER BY %s %s%s",
		top, strings.Join(cols, ", "), d.quote(s.Config.Table), d.quote(orderBy), direction, limit)

	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, persistenceError(err, "list %s", s.Config.Table)
	}
	defer rows.Close()

	var out []models.Record
	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, persistenceError(err, "scan row from %s", s.Config.Table)
		}
		out = append(out, recordFromRow(s.Config, values[0], values[1:]))
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceError(err, "list %s", s.Config.Table)
	}
	return out, nil
}

func (s *SQLStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, persistenceError(err, "begin transaction")
	}
	return &sqlTx{tx: tx, store: s}, nil
}

type sqlTx struct {
	tx    *sql.Tx
	store *SQLStore
}

func (t *sqlTx) InsertRecords(ctx context.Context, records []models.Record) error {
	d := t.store.Dialect
	table := t.store.Config.Table
	columns := t.store.Config.Columns()

	quoted := []string{d.quote(keyColumn)}
	placeholders := []string{d.placeholder(1)}
	for i, c := range columns {
		quoted = append(quoted, d.quote(c))
		placeholders = append(placeholders, d.placeholder(i+2))
	}

	var stmt string
	if d == SQLServer {
		stmt = fmt.Sprintf("INSERT INTO %s (%s) SELECT %s WHERE NOT EXISTS (SELECT 1 FROM %s WHERE %s = @p1)",
			d.quote(table), strings.Join(quoted, ", "), strings.Join(placeholders, ", "),
			d.quote(table), d.quote(keyColumn))
	} else {
		stmt = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(%s) DO NOTHING",
			d.quote(table), strings.Join(quoted, ", "), strings.Join(placeholders, ", "), d.quote(keyColumn))
	}

	for _, rec := range records {
		args := make([]interface{}, 0, len(columns)+1)
		args = append(args, rec.Key)
		for _, c := range columns {
			args = append(args, rec.Values[c])
		}
		if _, err := t.tx.ExecContext(ctx, stmt, args...); err != nil {
			return persistenceError(err, "insert %q into %s", rec.Key, table)
		}
	}
	return nil
}

func (t *sqlTx) CountRecords(ctx context.Context) (int, error) {
	return countSQLRecords(ctx, t.tx, t.store.Dialect, t.store.Config.Table)
}

func (t *sqlTx) ReadWatermark(ctx context.Context) (int, error) {
	return readSQLWatermark(ctx, t.tx, t.store.Dialect, t.store.Config.Name)
}

func (t *sqlTx) WriteWatermark(ctx context.Context, n int) error {
	if n < 0 {
		return persistenceError(nil, "watermark must not be negative, got %d", n)
	}
	d := t.store.Dialect
	now := time.Now().UTC().Format(time.RFC3339)

	var stmt string
	if d == SQLServer {
		stmt = fmt.Sprintf(`MERGE %s AS w USING (SELECT @p1 AS dataset) AS s ON w.dataset = s.dataset
WHEN MATCHED THEN UPDATE SET committed_count = @p2, updated_at = @p3
WHEN NOT MATCHED THEN INSERT (dataset, committed_count, updated_at) VALUES (@p1, @p2, @p3);`, d.quote(watermarkTable))
	} else {
		stmt = fmt.Sprintf(`INSERT INTO %s (dataset, committed_count, updated_at) VALUES (?, ?, ?)
ON CONFLICT(dataset) DO UPDATE SET committed_count = excluded.committed_count, updated_at = excluded.updated_at`, d.quote(watermarkTable))
	}

	if _, err := t.tx.ExecContext(ctx, stmt, t.store.Config.Name, int64(n), now); err != nil {
		return persistenceError(err, "write watermark for %s", t.store.Config.Name)
	}
	return nil
}

func (t *sqlTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return persistenceError(err, "commit")
	}
	return nil
}

func (t *sqlTx) Rollback() error {
	err := t.tx.Rollback()
	if err != nil && !errors.Is(err, sql.ErrTxDone) {
		return persistenceError(err, "rollback")
	}
	return nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func readSQLWatermark(ctx context.Context, q queryer, d Dialect, dataset string) (int, error) {
	query := fmt.Sprintf("SELECT committed_count FROM %s WHERE dataset = %s", d.quote(watermarkTable), d.placeholder(1))
	var n int64
	err := q.QueryRowContext(ctx, query, dataset).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, persistenceError(err, "read watermark for %s", dataset)
	}
	return int(n), nil
}

func countSQLRecords(ctx context.Context, q queryer, d Dialect, table string) (int, error) {
	var n int64
	if err := q.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", d.quote(table))).Scan(&n); err != nil {
		return 0, persistenceError(err, "count %s", table)
	}
	return int(n), nil
}

// recordFromRow normalizes driver values back to the schema's Go types.
func recordFromRow(config *models.SourceSchema, key interface{}, values []interface{}) models.Record {
	rec := models.Record{
		Key:    utils.ToString(key),
		Values: make(map[string]interface{}, len(config.Fields)),
	}
	for i, f := range config.Fields {
		if i >= len(values) {
			break
		}
		switch f.Type {
		case models.TypeInt:
			n, _ := utils.ToInt(values[i])
			rec.Values[f.Column] = n
		case models.TypeFloat:
			n, _ := utils.ToFloat(values[i])
			rec.Values[f.Column] = n
		default:
			rec.Values[f.Column] = utils.ToString(values[i])
		}
	}
	return rec
}
