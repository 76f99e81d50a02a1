package store

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/mcmetrics/plugin-tracker/internal/plugin"
	"go.mongodb.org/mongo-driver/bson"
)

// Memory is an in-memory Store holding raw documents. It backs the handler
// tests and keeps insertion order for deterministic listings.
type Memory struct {
	mu    sync.RWMutex
	order []uuid.UUID
	docs  map[uuid.UUID]bson.M
}

func NewMemory() *Memory {
	return &Memory{docs: map[uuid.UUID]bson.M{}}
}

func (s *Memory) ListPlugins(_ context.Context, variant plugin.Variant, filter bson.M, limit int64) ([]bson.M, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]bson.M, 0)
	for _, id := range s.order {
		if int64(len(res)) >= limit {
			break
		}
		doc := s.docs[id]
		if variant == plugin.VariantSpigot && doc["_cls"] != string(plugin.VariantSpigot) {
			continue
		}
		if !matches(doc, filter) {
			continue
		}
		res = append(res, bson.M{"_id": doc["_id"], "name": doc["name"]})
	}
	return res, nil
}

func (s *Memory) CountDuplicates(_ context.Context, name, description, downloadURL string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, doc := range s.docs {
		if doc["name"] == name && doc["description"] == description && doc["download_url"] == downloadURL {
			n++
		}
	}
	return n, nil
}

func (s *Memory) InsertPlugin(_ context.Context, p *plugin.Plugin) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = append(s.order, p.ID)
	s.docs[p.ID] = p.Document()
	return nil
}

func (s *Memory) GetPlugin(_ context.Context, id uuid.UUID) (bson.M, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyDoc(doc), nil
}

func (s *Memory) UpdatePlugin(_ context.Context, id uuid.UUID, fields bson.M) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return 0, nil
	}
	for k, v := range fields {
		doc[k] = v
	}
	return 1, nil
}

func (s *Memory) DeletePlugin(_ context.Context, id uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[id]; !ok {
		return 0, nil
	}
	delete(s.docs, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return 1, nil
}

func (s *Memory) GetUpdates(_ context.Context, id uuid.UUID) (bson.A, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	updates, _ := doc["updates"].(bson.A)
	out := make(bson.A, len(updates))
	for i, u := range updates {
		if m, ok := u.(bson.M); ok {
			out[i] = copyDoc(m)
		} else {
			out[i] = u
		}
	}
	return out, nil
}

func (s *Memory) AppendUpdate(_ context.Context, id uuid.UUID, u *plugin.Update) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return 0, nil
	}
	updates, _ := doc["updates"].(bson.A)
	doc["updates"] = append(updates, u.Document())
	return 1, nil
}

// matches reports whether doc carries every filter value. Filter values are
// only strings and booleans, so interface equality is safe here.
func matches(doc bson.M, filter bson.M) bool {
	for k, v := range filter {
		if doc[k] != v {
			return false
		}
	}
	return true
}

func copyDoc(doc bson.M) bson.M {
	out := make(bson.M, len(doc))
	for k, v := range doc {
		switch val := v.(type) {
		case bson.M:
			out[k] = copyDoc(val)
		case bson.A:
			seq := make(bson.A, len(val))
			for i, e := range val {
				if m, ok := e.(bson.M); ok {
					seq[i] = copyDoc(m)
				} else {
					seq[i] = e
				}
			}
			out[k] = seq
		default:
			out[k] = v
		}
	}
	return out
}
