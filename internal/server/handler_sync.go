package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/google/go-github/v59/github"
	"github.com/mcmetrics/plugin-tracker/internal/metrics"
	"github.com/mcmetrics/plugin-tracker/internal/plugin"
	"github.com/mcmetrics/plugin-tracker/internal/store"
	"go.opencensus.io/stats"
)

// githubOwnerRepo extracts the owner and repository from a download URL
// that points at GitHub.
func githubOwnerRepo(downloadURL string) (string, string, bool) {
	u, err := url.Parse(downloadURL)
	if err != nil || u.Host != "github.com" {
		return "", "", false
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func (s *Server) getLatestGitHubRelease(ctx context.Context, owner, repo string) (*github.RepositoryRelease, error) {
	releaseCacheKey := s.getCacheKeyWithPrefix(cacheKeyPrefixGitHub, owner+"/"+repo+"/latest")
	if cachedRelease, ok := s.getFromCache(ctx, releaseCacheKey); ok {
		return cachedRelease.(*github.RepositoryRelease), nil
	}

	if err := s.ghSemaphore.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("could not acquire semaphore")
	}
	defer s.ghSemaphore.Release(1)

	latestRelease, _, err := s.ghClient.Repositories.GetLatestRelease(ctx, owner, repo)
	if err != nil {
		return nil, err
	}
	s.setInCache(ctx, releaseCacheKey, latestRelease)
	return latestRelease, nil
}

// syncPlugin appends an update for the latest GitHub release of the
// plugin's repository. Already recorded versions are not appended again.
func (s *Server) syncPlugin(w http.ResponseWriter, r *http.Request) {
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

	p := plugin.FromDocument(doc)
	owner, repo, ok := githubOwnerRepo(p.DownloadURL)
	if !ok {
		s.writeJSONError(w, r, http.StatusBadRequest, fmt.Errorf("download URL does not point at a GitHub repository"))
		return
	}

	s.requestLogger(r).Infof("syncing plugin %s from %s/%s", id, owner, repo)

	release, err := s.getLatestGitHubRelease(r.Context(), owner, repo)
	if err != nil {
		s.writeJSONError(w, r, http.StatusInternalServerError, err, "could not get latest release")
		return
	}
	version, err := semver.NewVersion(release.GetTagName())
	if err != nil {
		s.writeJSONError(w, r, http.StatusInternalServerError, err, "could not parse release tag")
		return
	}

	for _, u := range p.Updates {
		if u.Version == version.String() {
			s.writeJSON(w, map[string]string{"version": version.String()})
			return
		}
	}

	u := &plugin.Update{
		Version:   version.String(),
		Changelog: release.GetBody(),
		ServerID:  identityFromContext(r.Context()),
	}
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
	s.writeJSON(w, map[string]string{"version": version.String()})
}
