package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/mcmetrics/plugin-tracker/internal/metrics"
	"github.com/mcmetrics/plugin-tracker/internal/normalize"
	"github.com/mcmetrics/plugin-tracker/internal/plugin"
	"github.com/mcmetrics/plugin-tracker/internal/query"
	"github.com/mcmetrics/plugin-tracker/internal/store"
	"go.opencensus.io/stats"
	"go.opencensus.io/tag"
)

func (s *Server) listPlugins(w http.ResponseWriter, r *http.Request) {
	opts, err := query.Translate(r.URL.Query())
	if err != nil {
		s.writeJSONError(w, r, http.StatusBadRequest, err)
		return
	}

	docs, err := s.store.ListPlugins(r.Context(), opts.Variant, opts.Filter, opts.Limit)
	if err != nil {
		s.writeJSONError(w, r, http.StatusInternalServerError, err, "could not query plugins")
		return
	}
	if len(docs) == 0 {
		s.writeJSONError(w, r, http.StatusNotFound, fmt.Errorf("query returned no response"))
		return
	}

	res := normalize.Value(docs)
	s.setInCache(r.Context(), s.getCacheKeyFromRequest(r), res)
	s.writeJSON(w, res)
}

func (s *Server) createPlugin(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1024*1024)

	p := new(plugin.Plugin)
	if err := json.NewDecoder(r.Body).Decode(p); err != nil {
		s.writeJSONError(w, r, http.StatusBadRequest, err, "could not decode request")
		return
	}

	p.Variant = plugin.VariantGeneric
	if strings.Contains(r.URL.Query().Get("type"), "spigot") || p.SpigotName != "" {
		p.Variant = plugin.VariantSpigot
	}
	p.ID = uuid.New()

	identity := identityFromContext(r.Context())
	for i := range p.Updates {
		if p.Updates[i].ServerID == "" {
			p.Updates[i].ServerID = identity
		}
	}

	duplicates, err := s.store.CountDuplicates(r.Context(), p.Name, p.Description, p.DownloadURL)
	if err != nil {
		s.writeJSONError(w, r, http.StatusInternalServerError, err, "could not check for duplicates")
		return
	}
	if duplicates > 0 {
		s.writeJSONError(w, r, http.StatusBadRequest, fmt.Errorf("document already exists"))
		return
	}

	if err := s.store.InsertPlugin(r.Context(), p); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			s.writeJSONError(w, r, http.StatusBadRequest, err)
			return
		}
		s.writeJSONError(w, r, http.StatusInternalServerError, err, "could not save plugin")
		return
	}

	ctx, _ := tag.New(r.Context(), tag.Upsert(metrics.TagVariant, string(p.Variant)))
	stats.Record(ctx, metrics.CounterPluginCreates.M(1))

	s.invalidateRequests()
	s.writeJSON(w, map[string]string{"id": p.ID.String()})
}
