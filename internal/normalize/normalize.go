// Package normalize converts raw database documents into client-facing
// JSON values.
package normalize

import (
	"time"

	"github.com/google/uuid"
	"github.com/mcmetrics/plugin-tracker/internal/plugin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Value recursively cleans up a stored document value:
//
//   - empty sequences and mappings normalize to nil and are omitted from
//     their parent
//   - the _cls discriminator key is renamed to "type", any other leading
//     underscore is stripped (so _id becomes id)
//   - UUIDs render as their canonical string form
//   - timestamps render as integer Unix seconds (UTC)
//   - all other scalars pass through unchanged
//
// Normalizing an already normalized value is a no-op.
func Value(v any) any {
	switch val := v.(type) {
	case bson.M:
		return document(val)
	case map[string]any:
		return document(val)
	case bson.D:
		doc := make(bson.M, len(val))
		for _, e := range val {
			doc[e.Key] = e.Value
		}
		return document(doc)
	case bson.A:
		return sequence(val)
	case []any:
		return sequence(val)
	case []bson.M:
		seq := make(bson.A, len(val))
		for i := range val {
			seq[i] = val[i]
		}
		return sequence(seq)
	case uuid.UUID:
		return val.String()
	case primitive.Binary:
		if id, ok := plugin.UUIDFromValue(val); ok {
			return id.String()
		}
		return val
	case primitive.ObjectID:
		return val.Hex()
	case time.Time:
		return val.UTC().Unix()
	case primitive.DateTime:
		return val.Time().UTC().Unix()
	default:
		return v
	}
}

func document(doc bson.M) any {
	out := make(map[string]any, len(doc))
	for key, v := range doc {
		v = Value(v)
		if v == nil {
			continue
		}
		if key == "_cls" {
			key = "type"
		} else if len(key) > 0 && key[0] == '_' {
			key = key[1:]
		}
		out[key] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func sequence(seq bson.A) any {
	out := make([]any, 0, len(seq))
	for _, v := range seq {
		v = Value(v)
		if v == nil {
			continue
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
