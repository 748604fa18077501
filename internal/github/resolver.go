package github

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	"github.com/antigravity/summarizer-gateway/internal/apierr"
	"github.com/antigravity/summarizer-gateway/internal/logger"
	"github.com/antigravity/summarizer-gateway/internal/models"
	"go.uber.org/zap"
)

// GitHub owner and repository names
var repoSegment = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

func validSegment(s string) bool {
	return s != "." && s != ".." && repoSegment.MatchString(s)
}

// ParseRepoURL extracts owner and name from a repository URL on host or one
// of its subdomains. Path segments after the name are ignored.
func ParseRepoURL(raw, host string) (models.RepositoryCoordinates, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return models.RepositoryCoordinates{}, false
	}

	h := strings.ToLower(u.Hostname())
	host = strings.ToLower(host)
	if h != host && !strings.HasSuffix(h, "."+host) {
		return models.RepositoryCoordinates{}, false
	}

	var segments []string
	for _, s := range strings.Split(u.Path, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	if len(segments) < 2 {
		return models.RepositoryCoordinates{}, false
	}

	name := segments[1]
	if len(name) >= 4 && strings.EqualFold(name[len(name)-4:], ".git") {
		name = name[:len(name)-4]
	}
	name = strings.TrimRight(name, "/")
	if !validSegment(segments[0]) || !validSegment(name) {
		return models.RepositoryCoordinates{}, false
	}

	return models.RepositoryCoordinates{Owner: segments[0], Name: name}, true
}

// Resolve parses raw against the configured host.
func (c *Client) Resolve(raw string) (models.RepositoryCoordinates, error) {
	coords, ok := ParseRepoURL(raw, c.cfg.Host)
	if !ok {
		return coords, apierr.Field(apierr.InvalidField, "githubUrl",
			"githubUrl must point to a repository on "+c.cfg.Host)
	}
	return coords, nil
}

// ReadmeCandidates returns the raw URLs tried for a repository, in order.
func (c *Client) ReadmeCandidates(repo models.RepositoryCoordinates) []string {
	urls := make([]string, 0, len(c.cfg.Branches)*len(c.cfg.Filenames))
	for _, branch := range c.cfg.Branches {
		for _, file := range c.cfg.Filenames {
			urls = append(urls, joinURL(c.cfg.RawBaseURL, repo.Owner, repo.Name, branch, file))
		}
	}
	return urls
}

// FindReadme fetches candidates one at a time and returns the first
// successful, non-blank README.
func (c *Client) FindReadme(ctx context.Context, repo models.RepositoryCoordinates) (*models.ReadmeResult, error) {
	for _, candidate := range c.ReadmeCandidates(repo) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err := c.get(ctx, candidate, "")
		if err != nil {
			c.logger.Debug("README candidate failed",
				logger.Repo(repo.String()), zap.String("url", candidate), zap.Error(err))
			continue
		}
		if !resp.ok() {
			continue
		}
		if text := strings.TrimSpace(string(resp.body)); text != "" {
			return &models.ReadmeResult{SourceURL: candidate, Text: text}, nil
		}
	}

	return nil, apierr.New(apierr.ReadmeNotFound, "No README found for "+repo.String())
}
