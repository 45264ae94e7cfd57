package etl

import (
	"context"
	"time"

	"github.com/aryanagg/si206-final/pkg/models"
	"github.com/cockroachdb/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// namespaceExists is the server error code for creating a collection twice.
const namespaceExists = 48

// MongoStore keeps one dataset in a collection whose _id is the natural key.
// Commits use multi-document transactions, so the server must run as a
// replica set.
type MongoStore struct {
	Client   *mongo.Client
	Database string
	Config   *models.SourceSchema
}

func NewMongoStore(client *mongo.Client, database string, config *models.SourceSchema) *MongoStore {
	return &MongoStore{Client: client, Database: database, Config: config}
}

func (m *MongoStore) records() *mongo.Collection {
	return m.Client.Database(m.Database).Collection(m.Config.Table)
}

func (m *MongoStore) watermarks() *mongo.Collection {
	return m.Client.Database(m.Database).Collection(watermarkTable)
}

// EnsureSchema creates both collections up front; implicit creation inside a
// transaction is not available on every server version.
func (m *MongoStore) EnsureSchema(ctx context.Context) error {
	db := m.Client.Database(m.Database)
	for _, name := range []string{m.Config.Table, watermarkTable} {
		err := db.CreateCollection(ctx, name)
		var cmdErr mongo.CommandError
		if errors.As(err, &cmdErr) && cmdErr.Code == namespaceExists {
			continue
		}
		if err != nil {
			return persistenceError(err, "create collection %s", name)
		}
	}
	return nil
}

func (m *MongoStore) ReadWatermark(ctx context.Context) (int, error) {
	return readMongoWatermark(ctx, m.watermarks(), m.Config.Name)
}

func (m *MongoStore) CountRecords(ctx context.Context) (int, error) {
	n, err := m.records().CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, persistenceError(err, "count %s", m.Config.Table)
	}
	return int(n), nil
}

func (m *MongoStore) KnownKeys(ctx context.Context, keys []string) (map[string]struct{}, error) {
	known := make(map[string]struct{})
	if len(keys) == 0 {
		return known, nil
	}

	opts := options.Find().SetProjection(bson.M{"_id": 1})
	cursor, err := m.records().Find(ctx, bson.M{"_id": bson.M{"$in": keys}}, opts)
	if err != nil {
		return nil, persistenceError(err, "look up keys in %s", m.Config.Table)
	}
	defer cursor.Close(ctx)

	var docs []struct {
		ID string `bson:"_id"`
	}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, persistenceError(err, "decode keys from %s", m.Config.Table)
	}
	for _, d := range docs {
		known[d.ID] = struct{}{}
	}
	return known, nil
}

func (m *MongoStore) List(ctx context.Context, opts ListOptions) ([]models.Record, error) {
	sortField := "_id"
	if opts.OrderBy != "" && opts.OrderBy != keyColumn {
		if _, ok := m.Config.Field(opts.OrderBy); !ok {
			return nil, invalidConfig("dataset %s has no column %q", m.Config.Name, opts.OrderBy)
		}
		sortField = opts.OrderBy
	}
	direction := 1
	if opts.Desc {
		direction = -1
	}

	findOpts := options.Find().SetSort(bson.D{{Key: sortField, Value: direction}})
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}

	cursor, err := m.records().Find(ctx, bson.M{}, findOpts)
	if err != nil {
		return nil, persistenceError(err, "list %s", m.Config.Table)
	}
	defer cursor.Close(ctx)

	var out []models.Record
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, persistenceError(err, "decode document from %s", m.Config.Table)
		}
		values := make([]interface{}, len(m.Config.Fields))
		for i, f := range m.Config.Fields {
			values[i] = doc[f.Column]
		}
		out = append(out, recordFromRow(m.Config, doc["_id"], values))
	}
	if err := cursor.Err(); err != nil {
		return nil, persistenceError(err, "list %s", m.Config.Table)
	}
	return out, nil
}

func (m *MongoStore) Begin(ctx context.Context) (Tx, error) {
	sess, err := m.Client.StartSession()
	if err != nil {
		return nil, persistenceError(err, "start session")
	}
	if err := sess.StartTransaction(); err != nil {
		sess.EndSession(ctx)
		return nil, persistenceError(err, "begin transaction")
	}
	return &mongoTx{ctx: ctx, sess: sess, store: m}, nil
}

type mongoTx struct {
	ctx   context.Context
	sess  mongo.Session
	store *MongoStore
	done  bool
}

func (t *mongoTx) sc(ctx context.Context) mongo.SessionContext {
	return mongo.NewSessionContext(ctx, t.sess)
}

// InsertRecords upserts with $setOnInsert so existing keys are left alone; a
// duplicate-key insert would abort the whole transaction.
func (t *mongoTx) InsertRecords(ctx context.Context, records []models.Record) error {
	if len(records) == 0 {
		return nil
	}
	writes := make([]mongo.WriteModel, 0, len(records))
	for _, rec := range records {
		doc := bson.M{}
		for col, val := range rec.Values {
			doc[col] = val
		}
		model := mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": rec.Key}).
			SetUpdate(bson.M{"$setOnInsert": doc}).
			SetUpsert(true)
		writes = append(writes, model)
	}

	if _, err := t.store.records().BulkWrite(t.sc(ctx), writes); err != nil {
		return persistenceError(err, "insert into %s", t.store.Config.Table)
	}
	return nil
}

func (t *mongoTx) CountRecords(ctx context.Context) (int, error) {
	n, err := t.store.records().CountDocuments(t.sc(ctx), bson.D{})
	if err != nil {
		return 0, persistenceError(err, "count %s", t.store.Config.Table)
	}
	return int(n), nil
}

func (t *mongoTx) ReadWatermark(ctx context.Context) (int, error) {
	return readMongoWatermark(t.sc(ctx), t.store.watermarks(), t.store.Config.Name)
}

func (t *mongoTx) WriteWatermark(ctx context.Context, n int) error {
	if n < 0 {
		return persistenceError(nil, "watermark must not be negative, got %d", n)
	}
	update := bson.M{"$set": bson.M{
		"committed_count": int64(n),
		"updated_at":      time.Now().UTC(),
	}}
	_, err := t.store.watermarks().UpdateOne(t.sc(ctx), bson.M{"_id": t.store.Config.Name}, update,
		options.Update().SetUpsert(true))
	if err != nil {
		return persistenceError(err, "write watermark for %s", t.store.Config.Name)
	}
	return nil
}

func (t *mongoTx) Commit() error {
	if t.done {
		return nil
	}
	t.done = true
	defer t.sess.EndSession(t.ctx)
	if err := t.sess.CommitTransaction(t.ctx); err != nil {
		return persistenceError(err, "commit")
	}
	return nil
}

func (t *mongoTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	defer t.sess.EndSession(t.ctx)
	if err := t.sess.AbortTransaction(t.ctx); err != nil {
		return persistenceError(err, "rollback")
	}
	return nil
}

func readMongoWatermark(ctx context.Context, coll *mongo.Collection, dataset string) (int, error) {
	var doc struct {
		CommittedCount int64 `bson:"committed_count"`
	}
	err := coll.FindOne(ctx, bson.M{"_id": dataset}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, nil
	}
	if err != nil {
		return 0, persistenceError(err, "read watermark for %s", dataset)
	}
	return int(doc.CommittedCount), nil
}
