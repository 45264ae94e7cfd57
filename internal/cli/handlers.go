package cli

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aryanagg/si206-final/internal/config"
	"github.com/aryanagg/si206-final/internal/etl"
	"github.com/aryanagg/si206-final/pkg/database"
	"github.com/aryanagg/si206-final/pkg/logger"
	"github.com/aryanagg/si206-final/pkg/models"
	"github.com/cockroachdb/errors"
	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
)

// session owns the connections of one command invocation.
type session struct {
	cfg         *config.Config
	catalog     *models.Catalog
	sqlDB       *sql.DB
	mongoClient *mongo.Client
}

func openSession(sourcesFile string) (*session, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.LogJSON || cfg.LogFile != "" {
		if err := logger.InitLogger(cfg.LogFile, cfg.LogJSON); err != nil {
			return nil, errors.Wrap(err, "failed to open log file")
		}
	}

	catalog, err := config.LoadMapping(sourcesFile)
	if err != nil {
		return nil, err
	}

	s := &session{cfg: cfg, catalog: catalog}
	switch cfg.StoreDriver {
	case database.DriverMongo:
		s.mongoClient, err = database.ConnectMongo(cfg.StoreDSN)
	default:
		s.sqlDB, err = database.ConnectSQL(cfg.StoreDriver, cfg.StoreDSN)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *session) Close() {
	if s.sqlDB != nil {
		if err := s.sqlDB.Close(); err != nil {
			logger.Warn("failed to close SQL store", "driver", s.cfg.StoreDriver, "err", err)
		}
	}
	if s.mongoClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.mongoClient.Disconnect(ctx); err != nil {
			logger.Warn("failed to disconnect from MongoDB", "err", err)
		}
	}
	logger.Close()
}

// schema looks up and validates a dataset definition.
func (s *session) schema(name string) (*models.SourceSchema, error) {
	schema, err := s.catalog.Lookup(name)
	if err != nil {
		return nil, err
	}
	if err := etl.NewValidator(schema).ValidateSchema(); err != nil {
		return nil, err
	}
	return schema, nil
}

// store opens the dataset's record store and creates its tables if absent.
func (s *session) store(ctx context.Context, schema *models.SourceSchema) (etl.RecordStore, error) {
	var store etl.RecordStore
	switch s.cfg.StoreDriver {
	case database.DriverMongo:
		store = etl.NewMongoStore(s.mongoClient, s.cfg.MongoDatabase, schema)
	case database.DriverSQLServer:
		store = etl.NewSQLStore(s.sqlDB, etl.SQLServer, schema)
	default:
		store = etl.NewSQLStore(s.sqlDB, etl.SQLite, schema)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *session) datasets(names []string, all bool) []string {
	if all {
		return s.catalog.Names()
	}
	return names
}

func runIngest(cmd *cobra.Command, opts *RunOptions) error {
	ctx := cmd.Context()
	s, err := openSession(opts.SourcesFile)
	if err != nil {
		return err
	}
	defer s.Close()

	client := resty.New().SetTimeout(s.cfg.HTTPTimeout)

	for _, name := range s.datasets(opts.Datasets, opts.All) {
		schema, err := s.schema(name)
		if err != nil {
			return err
		}
		if opts.BatchSize != 0 {
			schema.BatchCap = opts.BatchSize
		}
		if opts.Slicing != "" {
			schema.Slicing = opts.Slicing
		}
		if err := etl.NewValidator(schema).ValidateSchema(); err != nil {
			return err
		}

		store, err := s.store(ctx, schema)
		if err != nil {
			return err
		}
		warnOnPolicySwitch(ctx, store, schema)

		src, err := etl.NewSource(client, schema)
		if err != nil {
			return err
		}
		writer := etl.NewWriter(store, schema.SlicingPolicy(), schema.FullLoadAfter)
		pipeline := etl.NewPipeline(schema.Name, src, writer, schema.BatchCap, opts.DryRun)

		report, err := pipeline.Run(ctx)
		if err != nil {
			return err
		}

		prefix := ""
		if report.DryRun {
			prefix = "[dry run] "
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s%s: fetched %d, added %d, total %d\n",
			prefix, report.Dataset, report.Fetched, report.Added, report.TotalAfter)
	}
	return nil
}

// warnOnPolicySwitch flags a positional dataset whose watermark no longer
// matches its row count, which happens after running it with key exclusion.
func warnOnPolicySwitch(ctx context.Context, store etl.RecordStore, schema *models.SourceSchema) {
	if schema.SlicingPolicy() != models.SlicingPositional {
		return
	}
	wm, err := store.ReadWatermark(ctx)
	if err != nil {
		return
	}
	count, err := store.CountRecords(ctx)
	if err != nil {
		return
	}
	if count != wm {
		logger.Warn("positional slicing on a store whose watermark differs from its row count; records may be skipped or repeated",
			"dataset", schema.Name, "watermark", wm, "count", count)
	}
}
