// Package github resolves repository URLs and fetches READMEs and metadata.
package github

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/antigravity/summarizer-gateway/internal/config"
	"github.com/antigravity/summarizer-gateway/internal/logger"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// maxBodySize caps any single upstream response.
const maxBodySize = 2 << 20

// Client talks to the raw content host and the REST API.
type Client struct {
	cfg    config.GitHubConfig
	http   *http.Client
	logger *zap.Logger
}

// NewClient creates a new GitHub client. A configured token authenticates
// every call through an oauth2 static token source.
func NewClient(cfg config.GitHubConfig, log *zap.Logger) *Client {
	httpClient := &http.Client{}
	if cfg.Token != "" {
		httpClient = oauth2.NewClient(context.Background(),
			oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token}))
	}
	return &Client{
		cfg:    cfg,
		http:   httpClient,
		logger: log.With(logger.Component("github")),
	}
}

type response struct {
	status int
	body   []byte
}

func (r response) ok() bool {
	return r.status >= 200 && r.status < 300
}

// get issues one GET bounded by the configured timeout.
func (c *Client) get(ctx context.Context, url, accept string) (response, error) {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return response{}, fmt.Errorf("build request: %w", err)
	}
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return response{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return response{status: resp.StatusCode}, fmt.Errorf("read body: %w", err)
	}
	return response{status: resp.StatusCode, body: body}, nil
}

func joinURL(base string, parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return strings.TrimRight(base, "/") + "/" + strings.Join(escaped, "/")
}
