package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-github/v59/github"
	"github.com/google/uuid"
	"github.com/mcmetrics/plugin-tracker/internal/auth"
	"github.com/mcmetrics/plugin-tracker/internal/config"
	"github.com/mcmetrics/plugin-tracker/internal/store"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

const testJWTSecret = "test-secret"

func newTestServer(t *testing.T, modCfgFns ...func(cfg *config.ServerConfig)) (*Server, *store.Memory) {
	t.Helper()
	log := logrus.New()
	log.Out = io.Discard

	cfg := &config.ServerConfig{
		Stage:               "test",
		JWTSecret:           testJWTSecret,
		DisableRequestCache: true,
	}
	for _, f := range modCfgFns {
		f(cfg)
	}

	st := store.NewMemory()
	return New(log, st, auth.NewJWT(cfg.JWTSecret), github.NewClient(nil), nil, cfg), st
}

func authToken(t *testing.T, identity string) string {
	t.Helper()
	token, err := auth.NewJWT(testJWTSecret).Sign(identity, time.Hour)
	require.NoError(t, err)
	return token
}

func withAuth(t *testing.T, identity string) func(req *http.Request) {
	token := authToken(t, identity)
	return func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

func sendRequest(s http.Handler, method, path string, body io.Reader, modReqFns ...func(req *http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	for _, f := range modReqFns {
		f(req)
	}
	rr := httptest.NewRecorder()
	s.ServeHTTP(rr, req)
	return rr
}

func createPlugin(t *testing.T, s *Server, body string, modReqFns ...func(req *http.Request)) string {
	t.Helper()
	if len(modReqFns) == 0 {
		modReqFns = []func(req *http.Request){withAuth(t, "server-1")}
	}
	rr := sendRequest(s, "POST", "/plugins", bytes.NewBufferString(body), modReqFns...)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var res struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	return res.ID
}

func decodeError(t *testing.T, body []byte) string {
	t.Helper()
	var errRes struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(body, &errRes))
	return errRes.Error
}

func TestIndex(t *testing.T) {
	s, _ := newTestServer(t)
	rr := sendRequest(s, "GET", "/", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var res map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	require.Equal(t, "plugin-tracker", res["service"])
}

func TestCreateAndGetPlugin(t *testing.T) {
	s, _ := newTestServer(t)
	id := createPlugin(t, s, `{
		"name": "worldedit",
		"description": "world editing",
		"download_url": "https://example.com/worldedit.jar",
		"updates": [{"version": "7.0.0"}]
	}`)
	require.Len(t, id, 36)
	_, err := uuid.Parse(id)
	require.NoError(t, err)

	rr := sendRequest(s, "GET", "/plugins/"+id, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &doc))
	require.Equal(t, id, doc["id"])
	require.Equal(t, "generic", doc["type"])
	require.Equal(t, "worldedit", doc["name"])

	updates, ok := doc["updates"].([]any)
	require.True(t, ok)
	require.Len(t, updates, 1)
	update := updates[0].(map[string]any)
	require.Equal(t, "7.0.0", update["version"])
	// the embedded update had no server id, so it defaults to the caller
	require.Equal(t, "server-1", update["server_id"])
	require.GreaterOrEqual(t, update["created_at"].(float64), float64(0))
}

func TestCreatePluginRequiresAuth(t *testing.T) {
	s, _ := newTestServer(t)

	rr := sendRequest(s, "POST", "/plugins", bytes.NewBufferString(`{"name": "x"}`))
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = sendRequest(s, "POST", "/plugins", bytes.NewBufferString(`{"name": "x"}`), func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer garbage")
	})
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Equal(t, "invalid bearer token", decodeError(t, rr.Body.Bytes()))
}

func TestCreateDuplicatePlugin(t *testing.T) {
	s, _ := newTestServer(t)
	body := `{"name": "X", "description": "Y", "download_url": "Z"}`
	createPlugin(t, s, body)

	rr := sendRequest(s, "POST", "/plugins", bytes.NewBufferString(body), withAuth(t, "server-1"))
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "document already exists", decodeError(t, rr.Body.Bytes()))
}

func TestCreateSpigotPlugin(t *testing.T) {
	s, _ := newTestServer(t)

	// variant from the spigot_name body field
	id := createPlugin(t, s, `{"name": "essentials", "spigot_name": "EssentialsX"}`)
	rr := sendRequest(s, "GET", "/plugins/"+id, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &doc))
	require.Equal(t, "spigot", doc["type"])
	require.Equal(t, "EssentialsX", doc["spigot_name"])

	// variant from the type query parameter
	rr = sendRequest(s, "POST", "/plugins?type=spigot", bytes.NewBufferString(`{"name": "towny"}`), withAuth(t, "server-1"))
	require.Equal(t, http.StatusOK, rr.Code)
	var res struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	rr = sendRequest(s, "GET", "/plugins/"+res.ID, nil)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &doc))
	require.Equal(t, "spigot", doc["type"])
}

func TestListPlugins(t *testing.T) {
	s, _ := newTestServer(t)
	createPlugin(t, s, `{"name": "worldedit", "download_url": "a"}`)
	createPlugin(t, s, `{"name": "towny", "download_url": "b"}`)
	createPlugin(t, s, `{"name": "essentials", "spigot_name": "EssentialsX"}`)

	rr := sendRequest(s, "GET", "/plugins", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var plugins []map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &plugins))
	require.Len(t, plugins, 3)
	// only id and name are projected
	require.Len(t, plugins[0], 2)
	require.Contains(t, plugins[0], "id")
	require.Contains(t, plugins[0], "name")

	rr = sendRequest(s, "GET", "/plugins?type=spigot", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &plugins))
	require.Len(t, plugins, 1)
	require.Equal(t, "essentials", plugins[0]["name"])

	rr = sendRequest(s, "GET", "/plugins?name=towny", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &plugins))
	require.Len(t, plugins, 1)

	rr = sendRequest(s, "GET", "/plugins?name=unknown", nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Equal(t, "query returned no response", decodeError(t, rr.Body.Bytes()))

	rr = sendRequest(s, "GET", "/plugins?limit=abc", nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = sendRequest(s, "GET", "/plugins?limit=1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &plugins))
	require.Len(t, plugins, 1)
}

func TestPluginNotFound(t *testing.T) {
	s, _ := newTestServer(t)
	for _, id := range []string{uuid.NewString(), "not-a-uuid"} {
		for _, req := range []struct {
			method string
			path   string
			auth   bool
		}{
			{"GET", "/plugins/%s", false},
			{"PUT", "/plugins/%s", true},
			{"DELETE", "/plugins/%s", true},
			{"GET", "/plugins/%s/updates", false},
			{"POST", "/plugins/%s/updates", true},
			{"POST", "/plugins/%s/sync", true},
			{"GET", "/plugins/%s/download", false},
		} {
			var modReqFns []func(r *http.Request)
			if req.auth {
				modReqFns = append(modReqFns, withAuth(t, "server-1"))
			}
			rr := sendRequest(s, req.method, fmt.Sprintf(req.path, id), bytes.NewBufferString(`{"name": "x"}`), modReqFns...)
			require.Equal(t, http.StatusNotFound, rr.Code, "%s %s", req.method, req.path)
			require.Equal(t, "no documents found under that id", decodeError(t, rr.Body.Bytes()))
		}
	}
}

func TestUpdatePlugin(t *testing.T) {
	s, _ := newTestServer(t)
	id := createPlugin(t, s, `{"name": "worldedit", "description": "old"}`)

	rr := sendRequest(s, "PUT", "/plugins/"+id, bytes.NewBufferString(`{"description": "new"}`), withAuth(t, "server-1"))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Empty(t, rr.Body.String())

	rr = sendRequest(s, "GET", "/plugins/"+id, nil)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &doc))
	require.Equal(t, "new", doc["description"])
	require.Equal(t, "worldedit", doc["name"])
}

func TestUpdatePluginMalformedFields(t *testing.T) {
	s, _ := newTestServer(t)
	id := createPlugin(t, s, `{"name": "worldedit"}`)

	// updates must be a list, a type mismatch counts as zero updated docs
	rr := sendRequest(s, "PUT", "/plugins/"+id, bytes.NewBufferString(`{"updates": "nope"}`), withAuth(t, "server-1"))
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = sendRequest(s, "PUT", "/plugins/"+id, bytes.NewBufferString(`{}`), withAuth(t, "server-1"))
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestDeletePlugin(t *testing.T) {
	s, _ := newTestServer(t)
	id := createPlugin(t, s, `{"name": "worldedit"}`)

	rr := sendRequest(s, "DELETE", "/plugins/"+id, nil, withAuth(t, "server-1"))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Empty(t, rr.Body.String())

	rr = sendRequest(s, "GET", "/plugins/"+id, nil)
	require.Equal(t, http.StatusNotFound, rr.Code)

	// deleted plugin has no update history either
	rr = sendRequest(s, "GET", "/plugins/"+id+"/updates", nil)
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = sendRequest(s, "DELETE", "/plugins/"+id, nil, withAuth(t, "server-1"))
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestUpdatesSubResource(t *testing.T) {
	s, _ := newTestServer(t)
	id := createPlugin(t, s, `{"name": "worldedit"}`)

	// no updates yet, empty normalizes to null
	rr := sendRequest(s, "GET", "/plugins/"+id+"/updates", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "null\n", rr.Body.String())

	rr = sendRequest(s, "POST", "/plugins/"+id+"/updates",
		bytes.NewBufferString(`{"version": "7.1.0", "changelog": "fixes", "server_id": "someone-else"}`),
		withAuth(t, "server-1"))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Empty(t, rr.Body.String())

	rr = sendRequest(s, "GET", "/plugins/"+id+"/updates", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var updates []map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &updates))
	require.Len(t, updates, 1)
	require.Equal(t, "7.1.0", updates[0]["version"])
	require.Equal(t, "fixes", updates[0]["changelog"])
	// the caller identity always wins over the supplied server_id
	require.Equal(t, "server-1", updates[0]["server_id"])
	require.GreaterOrEqual(t, updates[0]["created_at"].(float64), float64(0))
}

func TestRequestCache(t *testing.T) {
	s, _ := newTestServer(t, func(cfg *config.ServerConfig) {
		cfg.DisableRequestCache = false
	})
	id := createPlugin(t, s, `{"name": "worldedit", "description": "old"}`)

	rr := sendRequest(s, "GET", "/plugins/"+id, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Empty(t, rr.Header().Get("X-Go-Cache"))

	rr = sendRequest(s, "GET", "/plugins/"+id, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "HIT", rr.Header().Get("X-Go-Cache"))

	rr = sendRequest(s, "PUT", "/plugins/"+id, bytes.NewBufferString(`{"description": "new"}`), withAuth(t, "server-1"))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = sendRequest(s, "GET", "/plugins/"+id, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Empty(t, rr.Header().Get("X-Go-Cache"))
	var doc map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &doc))
	require.Equal(t, "new", doc["description"])
}
