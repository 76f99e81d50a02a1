// Package query translates HTTP query parameters into database filters.
package query

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/mcmetrics/plugin-tracker/internal/plugin"
	"go.mongodb.org/mongo-driver/bson"
)

const (
	// DefaultLimit is applied when no limit parameter is given.
	DefaultLimit = 20
	// MaxLimit caps the limit parameter.
	MaxLimit = 300
)

// Options is the result of translating the query parameters of a list
// request.
type Options struct {
	Filter  bson.M
	Limit   int64
	Variant plugin.Variant
}

// Translate converts query parameters into list options. The limit
// parameter defaults to 20, is clamped to 300 and must be numeric. A type
// parameter containing "spigot" selects the spigot variant and is excluded
// from the filter, as is limit itself. All remaining parameters become
// exact-match filters, with "true"/"false" values coerced to booleans.
func Translate(values url.Values) (*Options, error) {
	opts := &Options{
		Filter:  bson.M{},
		Limit:   DefaultLimit,
		Variant: plugin.VariantGeneric,
	}

	if raw := values.Get("limit"); raw != "" {
		limit, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("limit must be an integer: %q", raw)
		}
		if limit > MaxLimit {
			limit = MaxLimit
		}
		opts.Limit = limit
	}

	if strings.Contains(values.Get("type"), "spigot") {
		opts.Variant = plugin.VariantSpigot
	}

	for key := range values {
		if key == "limit" || key == "type" {
			continue
		}
		value := values.Get(key)
		switch strings.ToLower(value) {
		case "true":
			opts.Filter[key] = true
		case "false":
			opts.Filter[key] = false
		default:
			opts.Filter[key] = value
		}
	}
	return opts, nil
}
