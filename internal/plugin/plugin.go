package plugin

import (
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Variant discriminates generic plugins from Spigot-specific ones. It is
// resolved once while parsing the request and stored under the _cls key.
type Variant string

const (
	VariantGeneric Variant = "generic"
	VariantSpigot  Variant = "spigot"
)

// Update is one versioned update entry attached to a plugin. Version and
// changelog are opaque, caller-supplied values.
type Update struct {
	Version   string    `json:"version"`
	Changelog string    `json:"changelog"`
	ServerID  string    `json:"server_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Plugin is a tracked software package record. SpigotName is only set for
// the spigot variant.
type Plugin struct {
	ID          uuid.UUID `json:"id"`
	Variant     Variant   `json:"type"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	DownloadURL string    `json:"download_url"`
	SpigotName  string    `json:"spigot_name"`
	Updates     []Update  `json:"updates"`
}

const uuidBinarySubtype = 0x04

// UUIDBinary returns the BSON binary (subtype 4) representation of id.
func UUIDBinary(id uuid.UUID) primitive.Binary {
	return primitive.Binary{Subtype: uuidBinarySubtype, Data: id[:]}
}

// UUIDFromValue extracts a UUID from the representations it may take in a
// stored document.
func UUIDFromValue(v any) (uuid.UUID, bool) {
	switch id := v.(type) {
	case uuid.UUID:
		return id, true
	case primitive.Binary:
		if id.Subtype != uuidBinarySubtype || len(id.Data) != 16 {
			return uuid.Nil, false
		}
		parsed, err := uuid.FromBytes(id.Data)
		return parsed, err == nil
	case string:
		parsed, err := uuid.Parse(id)
		return parsed, err == nil
	}
	return uuid.Nil, false
}

// Document renders the update as a raw BSON document. The creation
// timestamp defaults to the current time when unset.
func (u *Update) Document() bson.M {
	createdAt := u.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	doc := bson.M{
		"server_id":  u.ServerID,
		"created_at": createdAt.UTC(),
	}
	if u.Version != "" {
		doc["version"] = u.Version
	}
	if u.Changelog != "" {
		doc["changelog"] = u.Changelog
	}
	return doc
}

// Document renders the plugin as the raw BSON document that is persisted.
func (p *Plugin) Document() bson.M {
	variant := p.Variant
	if variant == "" {
		variant = VariantGeneric
	}
	updates := make(bson.A, 0, len(p.Updates))
	for i := range p.Updates {
		updates = append(updates, p.Updates[i].Document())
	}
	doc := bson.M{
		"_id":          UUIDBinary(p.ID),
		"_cls":         string(variant),
		"name":         p.Name,
		"description":  p.Description,
		"download_url": p.DownloadURL,
		"updates":      updates,
	}
	if p.SpigotName != "" {
		doc["spigot_name"] = p.SpigotName
	}
	return doc
}

// FromDocument reconstructs a plugin from a raw stored document. Unknown
// keys are ignored, values of unexpected types are left at their zero value.
func FromDocument(doc bson.M) *Plugin {
	p := &Plugin{
		Variant:     Variant(docString(doc, "_cls")),
		Name:        docString(doc, "name"),
		Description: docString(doc, "description"),
		DownloadURL: docString(doc, "download_url"),
		SpigotName:  docString(doc, "spigot_name"),
	}
	if id, ok := UUIDFromValue(doc["_id"]); ok {
		p.ID = id
	}
	updates, ok := doc["updates"].(bson.A)
	if !ok {
		return p
	}
	for _, entry := range updates {
		entryDoc, ok := asDocument(entry)
		if !ok {
			continue
		}
		p.Updates = append(p.Updates, Update{
			Version:   docString(entryDoc, "version"),
			Changelog: docString(entryDoc, "changelog"),
			ServerID:  docString(entryDoc, "server_id"),
		})
	}
	return p
}

func docString(doc bson.M, key string) string {
	s, _ := doc[key].(string)
	return s
}

func asDocument(v any) (bson.M, bool) {
	switch doc := v.(type) {
	case bson.M:
		return doc, true
	case bson.D:
		m := make(bson.M, len(doc))
		for _, e := range doc {
			m[e.Key] = e.Value
		}
		return m, true
	}
	return nil, false
}
