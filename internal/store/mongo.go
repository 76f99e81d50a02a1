package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/mcmetrics/plugin-tracker/internal/plugin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const pluginCollection = "plugins"

// Mongo is the MongoDB-backed Store.
type Mongo struct {
	col *mongo.Collection
}

func NewMongo(db *mongo.Database) *Mongo {
	return &Mongo{col: db.Collection(pluginCollection)}
}

// EnsureIndexes creates the unique index backing the duplicate check, so
// concurrent creates racing past the read-then-check still cannot persist
// two plugins with the same (name, description, download_url).
func (s *Mongo) EnsureIndexes(ctx context.Context) error {
	_, err := s.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "name", Value: 1},
			{Key: "description", Value: 1},
			{Key: "download_url", Value: 1},
		},
		Options: options.Index().SetUnique(true),
	})
	return err
}

func (s *Mongo) ListPlugins(ctx context.Context, variant plugin.Variant, filter bson.M, limit int64) ([]bson.M, error) {
	f := make(bson.M, len(filter)+1)
	for k, v := range filter {
		f[k] = v
	}
	if variant == plugin.VariantSpigot {
		f["_cls"] = string(plugin.VariantSpigot)
	}
	cur, err := s.col.Find(ctx, f, options.Find().
		SetProjection(bson.M{"_id": 1, "name": 1}).
		SetLimit(limit))
	if err != nil {
		return nil, err
	}
	var docs []bson.M
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func (s *Mongo) CountDuplicates(ctx context.Context, name, description, downloadURL string) (int64, error) {
	return s.col.CountDocuments(ctx, bson.M{
		"name":         name,
		"description":  description,
		"download_url": downloadURL,
	})
}

func (s *Mongo) InsertPlugin(ctx context.Context, p *plugin.Plugin) error {
	_, err := s.col.InsertOne(ctx, p.Document())
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	return err
}

func (s *Mongo) GetPlugin(ctx context.Context, id uuid.UUID) (bson.M, error) {
	var doc bson.M
	err := s.col.FindOne(ctx, bson.M{"_id": plugin.UUIDBinary(id)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *Mongo) UpdatePlugin(ctx context.Context, id uuid.UUID, fields bson.M) (int64, error) {
	res, err := s.col.UpdateOne(ctx, bson.M{"_id": plugin.UUIDBinary(id)}, bson.M{"$set": fields})
	if err != nil {
		return 0, err
	}
	return res.MatchedCount, nil
}

func (s *Mongo) DeletePlugin(ctx context.Context, id uuid.UUID) (int64, error) {
	res, err := s.col.DeleteOne(ctx, bson.M{"_id": plugin.UUIDBinary(id)})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (s *Mongo) GetUpdates(ctx context.Context, id uuid.UUID) (bson.A, error) {
	var doc struct {
		Updates bson.A `bson:"updates"`
	}
	err := s.col.FindOne(ctx, bson.M{"_id": plugin.UUIDBinary(id)},
		options.FindOne().SetProjection(bson.M{"updates": 1})).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc.Updates, nil
}

func (s *Mongo) AppendUpdate(ctx context.Context, id uuid.UUID, u *plugin.Update) (int64, error) {
	res, err := s.col.UpdateOne(ctx, bson.M{"_id": plugin.UUIDBinary(id)},
		bson.M{"$push": bson.M{"updates": u.Document()}})
	if err != nil {
		return 0, err
	}
	return res.MatchedCount, nil
}
