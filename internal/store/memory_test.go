package store

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/mcmetrics/plugin-tracker/internal/plugin"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func seedMemory(t *testing.T) (*Memory, *plugin.Plugin, *plugin.Plugin) {
	t.Helper()
	s := NewMemory()
	generic := &plugin.Plugin{
		ID:          uuid.New(),
		Name:        "worldedit",
		Description: "world editing",
		DownloadURL: "https://example.com/worldedit.jar",
	}
	spigot := &plugin.Plugin{
		ID:          uuid.New(),
		Variant:     plugin.VariantSpigot,
		Name:        "essentials",
		Description: "the essentials",
		DownloadURL: "https://example.com/essentials.jar",
		SpigotName:  "EssentialsX",
	}
	require.NoError(t, s.InsertPlugin(context.Background(), generic))
	require.NoError(t, s.InsertPlugin(context.Background(), spigot))
	return s, generic, spigot
}

func TestMemoryListPlugins(t *testing.T) {
	s, generic, spigot := seedMemory(t)
	ctx := context.Background()

	docs, err := s.ListPlugins(ctx, plugin.VariantGeneric, bson.M{}, 20)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	require.Equal(t, []string{"_id", "name"}, docKeys(docs[0]))

	docs, err = s.ListPlugins(ctx, plugin.VariantSpigot, bson.M{}, 20)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, plugin.UUIDBinary(spigot.ID), docs[0]["_id"])

	docs, err = s.ListPlugins(ctx, plugin.VariantGeneric, bson.M{"name": "worldedit"}, 20)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, plugin.UUIDBinary(generic.ID), docs[0]["_id"])

	docs, err = s.ListPlugins(ctx, plugin.VariantGeneric, bson.M{"name": "nope"}, 20)
	require.NoError(t, err)
	require.Empty(t, docs)

	docs, err = s.ListPlugins(ctx, plugin.VariantGeneric, bson.M{}, 1)
	require.NoError(t, err)
	require.Len(t, docs, 1)
}

func docKeys(doc bson.M) []string {
	keys := make([]string, 0, len(doc))
	for _, k := range []string{"_id", "name", "description", "download_url", "updates"} {
		if _, ok := doc[k]; ok {
			keys = append(keys, k)
		}
	}
	return keys
}

func TestMemoryCountDuplicates(t *testing.T) {
	s, generic, _ := seedMemory(t)
	ctx := context.Background()

	n, err := s.CountDuplicates(ctx, generic.Name, generic.Description, generic.DownloadURL)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	n, err = s.CountDuplicates(ctx, generic.Name, "other", generic.DownloadURL)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestMemoryGetUpdateDelete(t *testing.T) {
	s, generic, _ := seedMemory(t)
	ctx := context.Background()

	doc, err := s.GetPlugin(ctx, generic.ID)
	require.NoError(t, err)
	require.Equal(t, "worldedit", doc["name"])

	_, err = s.GetPlugin(ctx, uuid.New())
	require.ErrorIs(t, err, ErrNotFound)

	matched, err := s.UpdatePlugin(ctx, generic.ID, bson.M{"description": "new"})
	require.NoError(t, err)
	require.Equal(t, int64(1), matched)
	doc, err = s.GetPlugin(ctx, generic.ID)
	require.NoError(t, err)
	require.Equal(t, "new", doc["description"])

	matched, err = s.UpdatePlugin(ctx, uuid.New(), bson.M{"description": "new"})
	require.NoError(t, err)
	require.Zero(t, matched)

	deleted, err := s.DeletePlugin(ctx, generic.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)
	deleted, err = s.DeletePlugin(ctx, generic.ID)
	require.NoError(t, err)
	require.Zero(t, deleted)
}

func TestMemoryUpdatesSequence(t *testing.T) {
	s, generic, _ := seedMemory(t)
	ctx := context.Background()

	updates, err := s.GetUpdates(ctx, generic.ID)
	require.NoError(t, err)
	require.Empty(t, updates)

	matched, err := s.AppendUpdate(ctx, generic.ID, &plugin.Update{Version: "1.0.0", ServerID: "server-1"})
	require.NoError(t, err)
	require.Equal(t, int64(1), matched)

	updates, err = s.GetUpdates(ctx, generic.ID)
	require.NoError(t, err)
	require.Len(t, updates, 1)
	require.Equal(t, "1.0.0", updates[0].(bson.M)["version"])

	matched, err = s.AppendUpdate(ctx, uuid.New(), &plugin.Update{Version: "1.0.0"})
	require.NoError(t, err)
	require.Zero(t, matched)

	_, err = s.GetUpdates(ctx, uuid.New())
	require.ErrorIs(t, err, ErrNotFound)
}
