// Package auth resolves bearer tokens to user ids.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jo-hoe/recipeimport/internal/common"
	"github.com/jo-hoe/recipeimport/internal/config"
	"github.com/jo-hoe/recipeimport/internal/fetch"
)

var (
	// ErrMissingToken is returned when a request carries no token.
	ErrMissingToken = errors.New("missing authorization token")
	// ErrUnauthorized is returned for tokens the provider rejects.
	ErrUnauthorized = errors.New("invalid or expired token")
)

// Verifier resolves a bearer token to a user id.
type Verifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// TokenFromRequest reads "Authorization: Bearer <token>" and falls back to
// the token query parameter, which browser event streams need.
func TokenFromRequest(r *http.Request) (string, error) {
	prefix := common.AuthSchemeBearer + " "
	if h := r.Header.Get(common.HeaderAuthorization); strings.HasPrefix(h, prefix) {
		if tok := strings.TrimSpace(h[len(prefix):]); tok != "" {
			return tok, nil
		}
	}
	if tok := strings.TrimSpace(r.URL.Query().Get(common.QueryParamToken)); tok != "" {
		return tok, nil
	}
	return "", ErrMissingToken
}

// New builds the verifier selected by cfg.
func New(cfg config.AuthConfig, client *fetch.Client) (Verifier, error) {
	switch cfg.Provider {
	case "supabase":
		return NewSupabase(client, cfg.Supabase), nil
	case "static":
		return NewStatic(cfg.Static.Tokens), nil
	default:
		return nil, fmt.Errorf("unsupported auth provider: %s", cfg.Provider)
	}
}

// Supabase verifies tokens against the hosted auth user endpoint.
type Supabase struct {
	client  *fetch.Client
	baseURL string
	anonKey string
	timeout time.Duration
}

// NewSupabase creates a Supabase verifier.
func NewSupabase(client *fetch.Client, cfg config.SupabaseAuthConfig) *Supabase {
	return &Supabase{
		client:  client,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		anonKey: cfg.AnonKey,
		timeout: cfg.Timeout,
	}
}

// Verify implements Verifier.
func (s *Supabase) Verify(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrMissingToken
	}
	u, err := url.JoinPath(s.baseURL, "auth/v1/user")
	if err != nil {
		return "", fmt.Errorf("join url: %w", err)
	}
	resp, err := s.client.Get(ctx, u, s.timeout, map[string]string{
		"apikey":                   s.anonKey,
		common.HeaderAuthorization: common.AuthSchemeBearer + " " + token,
	})
	if err != nil {
		if fetch.IsStatus(err, http.StatusUnauthorized) || fetch.IsStatus(err, http.StatusForbidden) {
			return "", ErrUnauthorized
		}
		return "", fmt.Errorf("verify token: %w", err)
	}
	var user struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(resp.Body, &user); err != nil {
		return "", fmt.Errorf("parse user: %w", err)
	}
	if user.ID == "" {
		return "", ErrUnauthorized
	}
	return user.ID, nil
}

// Static maps fixed tokens to user ids. Intended for local development.
type Static struct {
	tokens map[string]string
}

// NewStatic creates a Static verifier.
func NewStatic(tokens map[string]string) *Static {
	cp := make(map[string]string, len(tokens))
	for k, v := range tokens {
		cp[k] = v
	}
	return &Static{tokens: cp}
}

// Verify implements Verifier.
func (s *Static) Verify(_ context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrMissingToken
	}
	if id, ok := s.tokens[token]; ok && id != "" {
		return id, nil
	}
	return "", ErrUnauthorized
}

type ctxKey struct{}

// WithUser stores the user id on ctx.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

// UserFromContext returns the user id stored by Middleware.
func UserFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok && id != ""
}

// Middleware authenticates every request, answering 401 with a JSON error
// when the token is missing or rejected, and 500 when the provider fails.
func Middleware(v Verifier, onError func(w http.ResponseWriter, status int, msg string)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok, err := TokenFromRequest(r)
			if err != nil {
				onError(w, http.StatusUnauthorized, "Missing authorization token")
				return
			}
			userID, err := v.Verify(r.Context(), tok)
			switch {
			case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrMissingToken):
				onError(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			case err != nil:
				onError(w, http.StatusInternalServerError, "Authentication unavailable")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), userID)))
		})
	}
}
