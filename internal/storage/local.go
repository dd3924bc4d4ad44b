package storage

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

var _ Blob = (*LocalStore)(nil)

// LocalStore keeps blobs on disk under baseDir and serves them from publicBaseURL.
type LocalStore struct {
	baseDir       string
	publicBaseURL string
}

// NewLocalStore creates a store rooted at baseDir.
func NewLocalStore(baseDir, publicBaseURL string) *LocalStore {
	return &LocalStore{
		baseDir:       baseDir,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}
}

// Upload writes data to baseDir/key, replacing any previous file.
func (s *LocalStore) Upload(_ context.Context, key string, data []byte, _ string) (string, error) {
	dstPath, err := s.path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return "", fmt.Errorf("ensure blob dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dstPath), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create tmp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("close blob: %w", err)
	}
	if err := os.Rename(tmpName, dstPath); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("rename blob: %w", err)
	}
	return s.PublicURL(key), nil
}

// Delete removes baseDir/key.
func (s *LocalStore) Delete(_ context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}

// PublicURL returns the URL a stored key is served at.
func (s *LocalStore) PublicURL(key string) string {
	return s.publicBaseURL + "/" + (&url.URL{Path: key}).EscapedPath()
}

// Handler serves stored blobs; mount it under the path of publicBaseURL.
func (s *LocalStore) Handler(prefix string) http.Handler {
	return http.StripPrefix(prefix, http.FileServer(http.Dir(s.baseDir)))
}

func (s *LocalStore) path(key string) (string, error) {
	k := strings.TrimSpace(key)
	if k == "" || strings.Contains(k, "..") || strings.HasPrefix(k, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(s.baseDir, filepath.FromSlash(k)), nil
}
