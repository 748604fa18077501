package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/antigravity/summarizer-gateway/internal/apierr"
	"github.com/antigravity/summarizer-gateway/internal/auth"
	"github.com/antigravity/summarizer-gateway/internal/config"
	"github.com/antigravity/summarizer-gateway/internal/github"
	"github.com/antigravity/summarizer-gateway/internal/models"
	"github.com/antigravity/summarizer-gateway/internal/pipeline"
	"github.com/antigravity/summarizer-gateway/internal/ratelimit"
	"github.com/antigravity/summarizer-gateway/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubSummarizer struct{}

func (stubSummarizer) Summarize(ctx context.Context, repo models.RepositoryCoordinates, readme string) (*models.Summary, error) {
	return &models.Summary{Summary: "About " + repo.String(), CoolFacts: []string{"fact"}, ToolsUsed: []string{"Go"}}, nil
}

func (stubSummarizer) Model() string { return "stub-model" }

type testEnv struct {
	srv      *Server
	store    *storage.KeyStore
	upstream *httptest.Server
	key      string
	inactive string
	keyID    int64
}

const demoKey = "demo-public"

func newTestEnv(t *testing.T, keyLimit int) *testEnv {
	t.Helper()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/raw/octocat/Hello-World/master/readme.md":
			_, _ = w.Write([]byte("# Hello World\n"))
		case "/api/repos/octocat/Hello-World":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(upstream.Close)

	cfg := &config.Config{
		Server:   config.ServerConfig{Mode: "test", MaxRequestSize: 1024},
		Security: config.SecurityConfig{DemoKeys: []string{demoKey}},
		Database: config.DatabaseConfig{Driver: storage.DriverSQLite, Capabilities: config.CapabilitiesConfig{LastUsed: true}},
		RateLimit: config.RateLimitConfig{
			Key:   config.WindowConfig{WindowSeconds: 3600, MaxRequests: keyLimit},
			IP:    config.WindowConfig{WindowSeconds: 60, MaxRequests: 1000},
			Block: config.BlockConfig{ViolationThreshold: 5, LookbackSeconds: 600, DurationSeconds: 900},
		},
		GitHub: config.GitHubConfig{
			Host:       "github.com",
			APIBaseURL: upstream.URL + "/api",
			RawBaseURL: upstream.URL + "/raw",
			Timeout:    2 * time.Second,
			Branches:   []string{"main", "master"},
			Filenames:  []string{"README.md", "Readme.md", "readme.md", "README.MD"},
		},
	}

	db, err := storage.Open(storage.DriverSQLite, filepath.Join(t.TempDir(), "keys.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	store := storage.NewKeyStore(db, storage.DriverSQLite, cfg.Database.Capabilities)

	env := &testEnv{store: store, upstream: upstream}
	env.key, env.keyID = createKey(t, store, "ci")
	var inactiveID int64
	env.inactive, inactiveID = createKey(t, store, "old")
	require.NoError(t, store.SetActive(context.Background(), inactiveID, false))

	log := zap.NewNop()
	limiter := ratelimit.New(cfg.RateLimit)
	p := pipeline.New(pipeline.Deps{
		Auth:       auth.NewAuthenticator(store, cfg.Security.DemoKeys, log),
		Limiter:    limiter,
		Repos:      github.NewClient(cfg.GitHub, log),
		Summarizer: stubSummarizer{},
	}, log)

	env.srv, err = New(cfg, log, p, limiter)
	require.NoError(t, err)
	return env
}

func createKey(t *testing.T, store *storage.KeyStore, name string) (string, int64) {
	display, prefix, hash, err := auth.GenerateKey()
	require.NoError(t, err)
	rec, err := store.Create(context.Background(), storage.NewKey{Hash: hash, Prefix: prefix, Name: name})
	require.NoError(t, err)
	return display, rec.ID
}

func (e *testEnv) do(method, path, key, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	w := httptest.NewRecorder()
	e.srv.Router().ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) models.ErrorResponse {
	t.Helper()
	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

const repoBody = `{"githubUrl": "https://github.com/octocat/Hello-World"}`

func TestSummarize_EndToEnd(t *testing.T) {
	env := newTestEnv(t, 10)

	w := env.do(http.MethodPost, routeSummarize, env.key, repoBody)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp models.SummarizeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "stub-model", resp.ModelUsed)
	assert.Equal(t, env.upstream.URL+"/raw/octocat/Hello-World/master/readme.md", resp.ReadmeSource)
	assert.Equal(t, "About octocat/Hello-World", resp.Summary)
	assert.Equal(t, []string{"Go"}, resp.ToolsUsed)

	// metadata failed upstream
	assert.Nil(t, resp.Stars)
	assert.Equal(t, models.NotAvailable, resp.LatestVersion)
	assert.Equal(t, models.NotSpecified, resp.LicenseType)
	assert.Equal(t, models.NotSpecified, resp.WebsiteURL)

	require.NotNil(t, resp.Usage)
	assert.Equal(t, "ci", resp.Usage.KeyName)
	assert.Equal(t, int64(1), resp.Usage.TotalRequests)
	assert.NotEmpty(t, resp.Usage.LastUsed)

	assert.Equal(t, "10", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "9", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	assert.NotEmpty(t, w.Header().Get(headerRequestID))

	rec, err := env.store.Get(context.Background(), env.keyID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.UsageCount)

	assert.NotContains(t, w.Body.String(), env.key)
}

func TestSummarize_CredentialErrors(t *testing.T) {
	env := newTestEnv(t, 10)

	w := env.do(http.MethodPost, routeSummarize, "", repoBody)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "MissingCredential", decodeError(t, w).Error)

	w = env.do(http.MethodPost, routeSummarize, "sk_abcdefghijkl_doesnotexist", repoBody)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "InvalidCredential", decodeError(t, w).Error)

	w = env.do(http.MethodPost, routeSummarize, env.inactive, repoBody)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "InactiveCredential", decodeError(t, w).Error)
}

func TestSummarize_ApikeyHeader(t *testing.T) {
	env := newTestEnv(t, 10)

	req := httptest.NewRequest(http.MethodPost, routeSummarize, strings.NewReader(repoBody))
	req.Header.Set("apikey", env.key)
	w := httptest.NewRecorder()
	env.srv.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestSummarize_ValidationErrors(t *testing.T) {
	env := newTestEnv(t, 10)

	w := env.do(http.MethodPost, routeSummarize, env.key, `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeError(t, w)
	assert.Equal(t, "MissingField", resp.Error)
	assert.Equal(t, "githubUrl", resp.Field)
	assert.Equal(t, "9", w.Header().Get("X-RateLimit-Remaining"))

	w = env.do(http.MethodPost, routeSummarize, env.key, `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "MalformedBody", decodeError(t, w).Error)

	w = env.do(http.MethodPost, routeSummarize, env.key, `{"githubUrl": "https://gitlab.com/a/b"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "InvalidField", decodeError(t, w).Error)

	w = env.do(http.MethodPost, routeSummarize, env.key, `{"githubUrl": "https://github.com/nobody/nothing"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "ReadmeNotFound", decodeError(t, w).Error)
}

func TestSummarize_BodyTooLarge(t *testing.T) {
	env := newTestEnv(t, 10)

	big := `{"githubUrl": "https://github.com/octocat/Hello-World", "pad": "` + strings.Repeat("x", 2048) + `"}`
	w := env.do(http.MethodPost, routeSummarize, env.key, big)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "MalformedBody", decodeError(t, w).Error)
}

func TestSummarize_RateLimited(t *testing.T) {
	env := newTestEnv(t, 2)

	for i := 0; i < 2; i++ {
		w := env.do(http.MethodPost, routeSummarize, env.key, repoBody)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := env.do(http.MethodPost, routeSummarize, env.key, repoBody)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	resp := decodeError(t, w)
	assert.Equal(t, "RateLimited", resp.Error)
	assert.Equal(t, "key", resp.Reason)
	assert.Greater(t, resp.RetryAfterSeconds, 0)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
}

func TestSummarize_DemoKey(t *testing.T) {
	env := newTestEnv(t, 10)

	w := env.do(http.MethodPost, routeSummarize, demoKey, repoBody)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var raw map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	_, hasUsage := raw["usage"]
	assert.False(t, hasUsage)

	rec, err := env.store.Get(context.Background(), env.keyID)
	require.NoError(t, err)
	assert.Zero(t, rec.UsageCount)
}

func TestValidateKey(t *testing.T) {
	env := newTestEnv(t, 10)

	w := env.do(http.MethodPost, routeValidateKey, "", `{"apiKey": "`+env.key+`"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp models.ValidateKeyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Valid)
	require.NotNil(t, resp.Key)
	assert.Equal(t, "ci", resp.Key.Name)
	require.NotNil(t, resp.Usage)
	assert.Equal(t, int64(1), resp.Usage.TotalRequests)

	// no body at all
	w = env.do(http.MethodPost, routeValidateKey, env.key, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodPost, routeValidateKey, "", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDocsNeedNoCredentials(t *testing.T) {
	env := newTestEnv(t, 10)

	w := env.do(http.MethodGet, routeSummarize, "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "githubUrl")
	assert.Contains(t, w.Body.String(), "Authorization")

	w = env.do(http.MethodGet, routeValidateKey, "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "apiKey")
}

func TestRequestIDEcho(t *testing.T) {
	env := newTestEnv(t, 10)

	req := httptest.NewRequest(http.MethodPost, routeSummarize, bytes.NewReader([]byte(`{}`)))
	req.Header.Set(headerRequestID, "trace-123")
	w := httptest.NewRecorder()
	env.srv.Router().ServeHTTP(w, req)

	assert.Equal(t, "trace-123", w.Header().Get(headerRequestID))
	assert.Equal(t, "trace-123", decodeError(t, w).RequestID)
}

func TestHealthAndNotFound(t *testing.T) {
	env := newTestEnv(t, 10)

	w := env.do(http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)

	w = env.do(http.MethodGet, "/ping", "", "")
	assert.Contains(t, w.Body.String(), "pong")

	w = env.do(http.MethodGet, "/nope", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NotFound", decodeError(t, w).Error)
}

func TestRetrySeconds(t *testing.T) {
	for d, want := range map[time.Duration]int{
		500 * time.Millisecond:  1,
		time.Second:             1,
		1500 * time.Millisecond: 2,
		90 * time.Second:        90,
	} {
		assert.Equal(t, want, retrySeconds(apierr.Throttled(apierr.RateLimited, "key", d)), d.String())
	}
}

func TestSweeperLifecycle(t *testing.T) {
	env := newTestEnv(t, 10)
	require.NoError(t, env.srv.StartSweeper())
	env.srv.Stop()
}
