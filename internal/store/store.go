// Package store persists plugin documents.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/mcmetrics/plugin-tracker/internal/plugin"
	"go.mongodb.org/mongo-driver/bson"
)

var (
	// ErrNotFound is returned when no document matches the given id.
	ErrNotFound = errors.New("document not found")
	// ErrDuplicate is returned when inserting a plugin that collides with
	// an existing one on (name, description, download_url).
	ErrDuplicate = errors.New("document already exists")
)

// Store is the document storage used by the API handlers. Read operations
// return raw documents so that responses can be normalized; counts returned
// by Update/Delete/AppendUpdate are the number of matched documents.
type Store interface {
	ListPlugins(ctx context.Context, variant plugin.Variant, filter bson.M, limit int64) ([]bson.M, error)
	CountDuplicates(ctx context.Context, name, description, downloadURL string) (int64, error)
	InsertPlugin(ctx context.Context, p *plugin.Plugin) error
	GetPlugin(ctx context.Context, id uuid.UUID) (bson.M, error)
	UpdatePlugin(ctx context.Context, id uuid.UUID, fields bson.M) (int64, error)
	DeletePlugin(ctx context.Context, id uuid.UUID) (int64, error)
	GetUpdates(ctx context.Context, id uuid.UUID) (bson.A, error)
	AppendUpdate(ctx context.Context, id uuid.UUID, u *plugin.Update) (int64, error)
}
