// Package auth resolves presented API keys into key records.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/antigravity/summarizer-gateway/internal/apierr"
	"github.com/antigravity/summarizer-gateway/internal/logger"
	"github.com/antigravity/summarizer-gateway/internal/models"
	"github.com/antigravity/summarizer-gateway/internal/storage"
	"go.uber.org/zap"
)

// HeaderAPIKey is the generic key header.
const HeaderAPIKey = "apikey"

// BodyField is the body field carrying a key on endpoints that allow it.
const BodyField = "apiKey"

// KeyStore is the subset of the key store the authenticator consumes.
type KeyStore interface {
	FindByValue(ctx context.Context, value string) (*models.APIKey, error)
	IncrementUsage(ctx context.Context, id int64) (int64, time.Time, error)
}

// Credentials is what a request presents for authentication.
type Credentials struct {
	Header http.Header
	// Body is the parsed JSON body, nil when absent or unparseable.
	Body map[string]any
	// AllowBody permits the apiKey body field as a last resort.
	AllowBody bool
}

// Authenticator verifies API keys and records their usage.
type Authenticator struct {
	store    KeyStore
	demoKeys map[string]struct{}
	logger   *zap.Logger
}

// NewAuthenticator creates a new authenticator
func NewAuthenticator(store KeyStore, demoKeys []string, log *zap.Logger) *Authenticator {
	demo := make(map[string]struct{}, len(demoKeys))
	for _, k := range demoKeys {
		if k = strings.TrimSpace(k); k != "" {
			demo[k] = struct{}{}
		}
	}
	return &Authenticator{
		store:    store,
		demoKeys: demo,
		logger:   log.With(logger.Component("auth")),
	}
}

// Extract returns the candidate key in precedence order: bearer token, the
// apikey header, then the body field when allowed.
func Extract(creds Credentials) string {
	if authHeader := creds.Header.Get("Authorization"); authHeader != "" {
		scheme, token, ok := strings.Cut(strings.TrimSpace(authHeader), " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			if token = strings.TrimSpace(token); token != "" {
				return token
			}
		}
	}

	if key := strings.TrimSpace(creds.Header.Get(HeaderAPIKey)); key != "" {
		return key
	}

	if creds.AllowBody && creds.Body != nil {
		if key, ok := creds.Body[BodyField].(string); ok {
			return strings.TrimSpace(key)
		}
	}
	return ""
}

// Authenticate resolves the presented key. The returned record never carries
// the raw key value and, for stored keys, already reflects this request's
// usage increment when it could be persisted.
func (a *Authenticator) Authenticate(ctx context.Context, creds Credentials) (*models.APIKey, error) {
	value := Extract(creds)
	if value == "" {
		return nil, apierr.New(apierr.MissingCredential, "API key is required")
	}

	if _, ok := a.demoKeys[value]; ok {
		return &models.APIKey{
			Prefix: storage.HashKey(value)[:prefixLength],
			Name:   "demo",
			Active: true,
			Demo:   true,
		}, nil
	}

	// 格式不对直接拒绝，不查库
	if _, _, err := ParseKey(value); err != nil {
		a.logger.Debug("Malformed API key", logger.KeyPrefix(value))
		return nil, invalid()
	}

	key, err := a.store.FindByValue(ctx, value)
	if errors.Is(err, storage.ErrNotFound) {
		a.logger.Debug("Unknown API key", logger.KeyPrefix(value))
		return nil, invalid()
	}
	if err != nil {
		a.logger.Error("Key lookup failed", logger.KeyPrefix(value), zap.Error(err))
		return nil, apierr.Wrap(apierr.StoreUnavailable, "Key store is unavailable", err)
	}

	if !key.Active {
		return nil, apierr.New(apierr.InactiveCredential, "API key is inactive")
	}

	// best-effort
	count, at, err := a.store.IncrementUsage(ctx, key.ID)
	if err != nil {
		a.logger.Error("Failed to update key usage",
			logger.KeyPrefix(value),
			zap.Int64("key_id", key.ID),
			zap.Error(err))
	} else {
		key.UpdateUsage(count, at)
	}

	return key.Redacted(), nil
}

func invalid() *apierr.Error {
	return apierr.New(apierr.InvalidCredential, "Invalid API key")
}
