package db

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"vacunagates/models"

	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MongoConfig holds connection parameters for the document store
type MongoConfig struct {
	User     string
	Password string
	Host     string
	Database string
}

// URI builds an SRV connection string for a hosted cluster
func (c MongoConfig) URI() string {
	u := url.URL{
		Scheme: "mongodb+srv",
		User:   url.UserPassword(c.User, c.Password),
		Host:   c.Host,
		Path:   "/",
	}
	return u.String()
}

// Mongo is a document store backed by MongoDB
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
}

func NewMongo(ctx context.Context, cfg MongoConfig) (*Mongo, error) {
	return NewMongoFromURI(ctx, cfg.URI(), cfg.Database)
}

func NewMongoFromURI(ctx context.Context, uri, database string) (*Mongo, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	m := &Mongo{client: client, db: client.Database(database)}
	if err := m.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return m, nil
}

// EnsureIndexes creates the unique key index on every collection
func (m *Mongo) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	keys := map[string]string{
		CollectionPersons: "N",
		CollectionPosts:   "id",
		CollectionReposts: "id",
	}
	for collection, key := range keys {
		_, err := m.db.Collection(collection).Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys:    bson.D{{Key: key, Value: 1}},
			Options: options.Index().SetUnique(true),
		})
		if err != nil {
			return fmt.Errorf("create index on %s.%s: %w", collection, key, err)
		}
	}
	return nil
}

func keyFilter(key string, value interface{}) bson.D {
	return bson.D{{Key: key, Value: value}}
}

// setUpdate overwrites the document fields and stamps indexed_at with the
// server time so Tidy can age documents out.
func setUpdate(doc interface{}) bson.D {
	return bson.D{
		{Key: "$set", Value: doc},
		{Key: "$currentDate", Value: bson.D{{Key: "indexed_at", Value: true}}},
	}
}

func (m *Mongo) UpsertPost(ctx context.Context, collection string, post models.Post) error {
	if err := checkPostCollection(collection); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	log.WithFields(log.Fields{
		"collection": collection,
		"id":         post.ID,
		"handle":     post.AuthorHandle,
	}).Info("Upserting post")

	_, err := m.db.Collection(collection).UpdateOne(ctx,
		keyFilter("id", post.ID),
		setUpdate(post),
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("upsert post %s: %w", post.ID, err)
	}
	return nil
}

func (m *Mongo) UpsertPosts(ctx context.Context, collection string, posts []models.Post) error {
	if err := checkPostCollection(collection); err != nil {
		return err
	}
	if len(posts) == 0 {
		return nil
	}

	writes := make([]mongo.WriteModel, 0, len(posts))
	for _, post := range posts {
		writes = append(writes, mongo.NewUpdateOneModel().
			SetFilter(keyFilter("id", post.ID)).
			SetUpdate(setUpdate(post)).
			SetUpsert(true))
	}
	return m.bulkWrite(ctx, collection, writes)
}

func (m *Mongo) UpsertPersons(ctx context.Context, persons []models.Person) error {
	if len(persons) == 0 {
		return nil
	}

	writes := make([]mongo.WriteModel, 0, len(persons))
	for _, person := range persons {
		writes = append(writes, mongo.NewUpdateOneModel().
			SetFilter(keyFilter("N", person.N)).
			SetUpdate(setUpdate(person)).
			SetUpsert(true))
	}
	return m.bulkWrite(ctx, CollectionPersons, writes)
}

func (m *Mongo) bulkWrite(ctx context.Context, collection string, writes []mongo.WriteModel) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	res, err := m.db.Collection(collection).BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(true))
	if err != nil {
		return fmt.Errorf("bulk write %s: %w", collection, err)
	}

	log.WithFields(log.Fields{
		"collection": collection,
		"upserted":   res.UpsertedCount,
		"modified":   res.ModifiedCount,
	}).Info("Bulk upserted documents")
	return nil
}

// Persons returns persons in insertion order
func (m *Mongo) Persons(ctx context.Context) ([]models.Person, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	cur, err := m.db.Collection(CollectionPersons).Find(ctx, bson.D{},
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find persons: %w", err)
	}

	var persons []models.Person
	if err := cur.All(ctx, &persons); err != nil {
		return nil, fmt.Errorf("decode persons: %w", err)
	}
	return persons, nil
}

func (m *Mongo) Tidy(ctx context.Context, before time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var total int64
	for _, collection := range []string{CollectionPosts, CollectionReposts} {
		res, err := m.db.Collection(collection).DeleteMany(ctx,
			bson.D{{Key: "indexed_at", Value: bson.D{{Key: "$lt", Value: before}}}})
		if err != nil {
			return total, fmt.Errorf("tidy %s: %w", collection, err)
		}
		total += res.DeletedCount
	}
	return total, nil
}

func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
