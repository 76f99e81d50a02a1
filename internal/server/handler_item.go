package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/mcmetrics/plugin-tracker/internal/normalize"
	"github.com/mcmetrics/plugin-tracker/internal/plugin"
	"github.com/mcmetrics/plugin-tracker/internal/store"
	"go.mongodb.org/mongo-driver/bson"
)

var errNoDocuments = fmt.Errorf("no documents found under that id")

func (s *Server) getPlugin(w http.ResponseWriter, r *http.Request) {
	id, err := pluginIDFromRequest(r)
	if err != nil {
		s.writeJSONError(w, r, http.StatusNotFound, errNoDocuments)
		return
	}

	doc, err := s.store.GetPlugin(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeJSONError(w, r, http.StatusNotFound, errNoDocuments)
		return
	}
	if err != nil {
		s.writeJSONError(w, r, http.StatusInternalServerError, err, "could not get plugin")
		return
	}

	res := normalize.Value(doc)
	s.setInCache(r.Context(), s.getCacheKeyFromRequest(r), res)
	s.writeJSON(w, res)
}

func (s *Server) updatePlugin(w http.ResponseWriter, r *http.Request) {
	id, err := pluginIDFromRequest(r)
	if err != nil {
		s.writeJSONError(w, r, http.StatusNotFound, errNoDocuments)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1024*1024))
	if err != nil {
		s.writeJSONError(w, r, http.StatusBadRequest, err, "could not read request")
		return
	}

	// A body that does not type-check against the plugin schema counts as
	// zero updated documents.
	fields, err := buildUpdateDocument(body)
	if err != nil {
		s.requestLogger(r).Warnf("malformed update for plugin %s: %v", id, err)
		s.writeJSONError(w, r, http.StatusNotFound, errNoDocuments)
		return
	}

	matched, err := s.store.UpdatePlugin(r.Context(), id, fields)
	if err != nil {
		s.writeJSONError(w, r, http.StatusInternalServerError, err, "could not update plugin")
		return
	}
	if matched == 0 {
		s.writeJSONError(w, r, http.StatusNotFound, errNoDocuments)
		return
	}

	s.invalidateRequests()
	s.writeEmpty(w)
}

func (s *Server) deletePlugin(w http.ResponseWriter, r *http.Request) {
	id, err := pluginIDFromRequest(r)
	if err != nil {
		s.writeJSONError(w, r, http.StatusNotFound, errNoDocuments)
		return
	}

	deleted, err := s.store.DeletePlugin(r.Context(), id)
	if err != nil {
		s.writeJSONError(w, r, http.StatusInternalServerError, err, "could not delete plugin")
		return
	}
	if deleted == 0 {
		s.writeJSONError(w, r, http.StatusNotFound, errNoDocuments)
		return
	}

	s.invalidateRequests()
	s.writeEmpty(w)
}

func buildUpdateDocument(body []byte) (bson.M, error) {
	var typeCheck plugin.Plugin
	if err := json.Unmarshal(body, &typeCheck); err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	delete(fields, "id")
	delete(fields, "_id")
	if len(fields) == 0 {
		return nil, fmt.Errorf("no fields to update")
	}
	return bson.M(fields), nil
}
