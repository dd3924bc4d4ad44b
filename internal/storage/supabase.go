package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jo-hoe/recipeimport/internal/common"
)

var _ Blob = (*SupabaseStore)(nil)

const (
	headerAPIKey = "apikey"
	headerUpsert = "x-upsert"

	objectPath       = "/storage/v1/object/"
	publicObjectPath = "/storage/v1/object/public/"
)

// SupabaseStore talks to the hosted storage REST API of one bucket.
type SupabaseStore struct {
	httpClient *http.Client
	baseURL    string
	serviceKey string
	bucket     string
}

// NewSupabaseStore creates a store for bucket.
func NewSupabaseStore(baseURL, serviceKey, bucket string, timeout time.Duration) *SupabaseStore {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if bucket == "" {
		bucket = common.RecipeImagesBucket
	}
	return &SupabaseStore{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		serviceKey: serviceKey,
		bucket:     bucket,
	}
}

// Upload posts data with upsert semantics and returns the public object URL.
func (s *SupabaseStore) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", ErrInvalidKey
	}
	u := s.baseURL + objectPath + s.bucket + "/" + key
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	s.authorize(req)
	req.Header.Set(common.HeaderContentType, contentType)
	req.Header.Set(headerUpsert, "true")

	if err := s.do(req); err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return s.PublicURL(key), nil
}

// Delete removes one object from the bucket.
func (s *SupabaseStore) Delete(ctx context.Context, key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	u := s.baseURL + objectPath + s.bucket + "/" + key
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	s.authorize(req)
	if err := s.do(req); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// PublicURL returns the public object URL for key.
func (s *SupabaseStore) PublicURL(key string) string {
	return s.baseURL + publicObjectPath + s.bucket + "/" + key
}

func (s *SupabaseStore) authorize(req *http.Request) {
	req.Header.Set(headerAPIKey, s.serviceKey)
	req.Header.Set(common.HeaderAuthorization, common.AuthSchemeBearer+" "+s.serviceKey)
}

func (s *SupabaseStore) do(req *http.Request) error {
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, common.ErrorSnippetLimit))
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("storage status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
