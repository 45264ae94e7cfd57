package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/aryanagg/si206-final/pkg/logger"
	"github.com/cockroachdb/errors"
	_ "github.com/microsoft/go-mssqldb"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	_ "modernc.org/sqlite"
)

// Supported store drivers.
const (
	DriverSQLite    = "sqlite"
	DriverSQLServer = "sqlserver"
	DriverMongo     = "mongo"
)

// ConnectSQL opens and pings a database/sql handle for the sqlite or
// sqlserver driver.
func ConnectSQL(driver, connString string) (*sql.DB, error) {
	db, err := sql.Open(driver, connString)
	if err != nil {
		return nil, errors.Wrapf(err, "error opening %s database", driver)
	}

	if driver == DriverSQLite {
		// A single connection keeps writes serialized and makes :memory:
		// databases behave as one database.
		db.SetMaxOpenConns(1)
		for _, pragma := range []string{
			"PRAGMA journal_mode = WAL",
			"PRAGMA busy_timeout = 5000",
		} {
			if _, err := db.Exec(pragma); err != nil {
				db.Close()
				return nil, errors.Wrapf(err, "failed to apply %q", pragma)
			}
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "error connecting to %s database (ping failed)", driver)
	}

	logger.Info("connected to SQL store", "driver", driver)
	return db, nil
}

func ConnectMongo(connString string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(connString))
	if err != nil {
		return nil, errors.Wrap(err, "error creating MongoDB client")
	}

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer pingCancel()

	err = client.Ping(pingCtx, readpref.Primary())
	if err != nil {
		disconnectCtx, disconnectCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer disconnectCancel()
		_ = client.Disconnect(disconnectCtx)

		return nil, errors.Wrap(err, "error connecting to MongoDB (ping failed)")
	}

	logger.Info("connected to MongoDB")
	return client, nil
}
