package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/mcmetrics/plugin-tracker/internal/plugin"
	"github.com/mcmetrics/plugin-tracker/internal/store"
)

const maxArtifactSize = 64 * 1024 * 1024

var (
	artifactClientOnce sync.Once
	artifactClient     *retryablehttp.Client
)

func getArtifactClient() *retryablehttp.Client {
	artifactClientOnce.Do(func() {
		artifactClient = retryablehttp.NewClient()
		artifactClient.Logger = nil
	})
	return artifactClient
}

// downloadPlugin redirects to the plugin's download URL. When archive
// storage is configured the artifact is archived first and the redirect
// points at the public archive URL instead.
func (s *Server) downloadPlugin(w http.ResponseWriter, r *http.Request) {
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
	if p.DownloadURL == "" {
		s.writeJSONError(w, r, http.StatusNotFound, fmt.Errorf("plugin has no download URL"))
		return
	}

	if !s.config.ArchiveEnabled() || s.storage == nil {
		http.Redirect(w, r, p.DownloadURL, http.StatusFound)
		return
	}

	archiveKey := fmt.Sprintf("archives/%s", p.ID)
	publicURL, err := s.config.GetPublicArchiveDownloadURL(archiveKey)
	if err != nil {
		s.writeJSONError(w, r, http.StatusInternalServerError, err, "could not build archive URL")
		return
	}

	_, err = s.storage.HeadObject(r.Context(), &s3.HeadObjectInput{
		Bucket: s.config.GetBucket(),
		Key:    &archiveKey,
	})
	if err == nil {
		http.Redirect(w, r, publicURL, http.StatusFound)
		return
	}
	var genericAPIError *smithy.GenericAPIError
	if !errors.As(err, &genericAPIError) || genericAPIError.ErrorCode() != "NotFound" {
		s.writeJSONError(w, r, http.StatusInternalServerError, err, "could not check if archive exists")
		return
	}

	s.requestLogger(r).Infof("archive %s not found, fetching %s", archiveKey, p.DownloadURL)
	req, err := retryablehttp.NewRequestWithContext(r.Context(), http.MethodGet, p.DownloadURL, nil)
	if err != nil {
		s.writeJSONError(w, r, http.StatusInternalServerError, err, "could not fetch plugin artifact")
		return
	}
	resp, err := getArtifactClient().Do(req)
	if err != nil {
		s.writeJSONError(w, r, http.StatusBadGateway, err, "could not fetch plugin artifact")
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		s.writeJSONError(w, r, http.StatusBadGateway, fmt.Errorf("unexpected status %d fetching artifact", resp.StatusCode))
		return
	}
	artifact, err := io.ReadAll(io.LimitReader(resp.Body, maxArtifactSize))
	if err != nil {
		s.writeJSONError(w, r, http.StatusBadGateway, err, "could not fetch plugin artifact")
		return
	}

	_, err = s.storage.PutObject(r.Context(), &s3.PutObjectInput{
		Bucket:      s.config.GetBucket(),
		Key:         &archiveKey,
		Body:        bytes.NewReader(artifact),
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		s.writeJSONError(w, r, http.StatusInternalServerError, err, "could not upload plugin artifact")
		return
	}

	http.Redirect(w, r, publicURL, http.StatusFound)
}
