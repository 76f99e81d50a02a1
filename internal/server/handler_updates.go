package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mcmetrics/plugin-tracker/internal/metrics"
	"github.com/mcmetrics/plugin-tracker/internal/normalize"
	"github.com/mcmetrics/plugin-tracker/internal/plugin"
	"github.com/mcmetrics/plugin-tracker/internal/store"
	"go.opencensus.io/stats"
)

func (s *Server) listUpdates(w http.ResponseWriter, r *http.Request) {
	id, err := pluginIDFromRequest(r)
	if err != nil {
		s.writeJSONError(w, r, http.StatusNotFound, errNoDocuments)
		return
	}

	updates, err := s.store.GetUpdates(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeJSONError(w, r, http.StatusNotFound, errNoDocuments)
		return
	}
	if err != nil {
		s.writeJSONError(w, r, http.StatusInternalServerError, err, "could not get plugin updates")
		return
	}

	// A plugin without updates normalizes to null.
	res := normalize.Value(updates)
	s.setInCache(r.Context(), s.getCacheKeyFromRequest(r), res)
	s.writeJSON(w, res)
}

func (s *Server) appendUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := pluginIDFromRequest(r)
	if err != nil {
		s.writeJSONError(w, r, http.StatusNotFound, errNoDocuments)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1024*1024)
	u := new(plugin.Update)
	if err := json.NewDecoder(r.Body).Decode(u); err != nil {
		s.writeJSONError(w, r, http.StatusBadRequest, err, "could not decode request")
		return
	}

	// The server identity always comes from the authenticated caller,
	// whatever the body claims.
	u.ServerID = identityFromContext(r.Context())

	matched, err := s.store.AppendUpdate(r.Context(), id, u)
	if err != nil {
		s.writeJSONError(w, r, http.StatusInternalServerError, err, "could not save plugin update")
		return
	}
	if matched == 0 {
		s.writeJSONError(w, r, http.StatusNotFound, errNoDocuments)
		return
	}

	stats.Record(r.Context(), metrics.CounterUpdateAppends.M(1))
	s.invalidateRequests()
	s.writeEmpty(w)
}
