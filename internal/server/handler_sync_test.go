package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/google/go-github/v59/github"
	"github.com/mcmetrics/plugin-tracker/internal/auth"
	"github.com/mcmetrics/plugin-tracker/internal/config"
	"github.com/mcmetrics/plugin-tracker/internal/store"
	"github.com/migueleliasweb/go-github-mock/src/mock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func newSyncTestServer(t *testing.T) *Server {
	t.Helper()
	log := logrus.New()
	log.Out = io.Discard

	mockedHTTPClient := mock.NewMockedHTTPClient(
		mock.WithRequestMatch(
			mock.GetReposReleasesLatestByOwnerByRepo,
			&github.RepositoryRelease{
				TagName: github.String("v2.0.0"),
				Body:    github.String("release notes"),
			},
		),
	)

	cfg := &config.ServerConfig{
		Stage:               "test",
		JWTSecret:           testJWTSecret,
		DisableRequestCache: true,
	}
	return New(log, store.NewMemory(), auth.NewJWT(cfg.JWTSecret), github.NewClient(mockedHTTPClient), nil, cfg)
}

func TestSyncPlugin(t *testing.T) {
	s := newSyncTestServer(t)
	id := createPlugin(t, s, `{"name": "worldedit", "download_url": "https://github.com/acme/worldedit"}`)

	rr := sendRequest(s, "POST", "/plugins/"+id+"/sync", nil, withAuth(t, "server-1"))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var res map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	require.Equal(t, "2.0.0", res["version"])

	rr = sendRequest(s, "GET", "/plugins/"+id+"/updates", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var updates []map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &updates))
	require.Len(t, updates, 1)
	require.Equal(t, "2.0.0", updates[0]["version"])
	require.Equal(t, "release notes", updates[0]["changelog"])
	require.Equal(t, "server-1", updates[0]["server_id"])

	// syncing again does not append the same version twice
	rr = sendRequest(s, "POST", "/plugins/"+id+"/sync", nil, withAuth(t, "server-1"))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = sendRequest(s, "GET", "/plugins/"+id+"/updates", nil)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &updates))
	require.Len(t, updates, 1)
}

func TestSyncPluginRequiresGitHubURL(t *testing.T) {
	s := newSyncTestServer(t)
	id := createPlugin(t, s, `{"name": "worldedit", "download_url": "https://example.com/worldedit.jar"}`)

	rr := sendRequest(s, "POST", "/plugins/"+id+"/sync", nil, withAuth(t, "server-1"))
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, decodeError(t, rr.Body.Bytes()), "GitHub")
}

func TestSyncPluginRequiresAuth(t *testing.T) {
	s := newSyncTestServer(t)
	id := createPlugin(t, s, `{"name": "worldedit", "download_url": "https://github.com/acme/worldedit"}`)

	rr := sendRequest(s, "POST", "/plugins/"+id+"/sync", bytes.NewBufferString(""))
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}
