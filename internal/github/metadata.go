package github

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/antigravity/summarizer-gateway/internal/apierr"
	"github.com/antigravity/summarizer-gateway/internal/logger"
	"github.com/antigravity/summarizer-gateway/internal/models"
	"go.uber.org/zap"
)

const apiAccept = "application/vnd.github+json"

type repoInfo struct {
	StargazersCount int    `json:"stargazers_count"`
	Homepage        string `json:"homepage"`
	License         *struct {
		Name   string `json:"name"`
		SPDXID string `json:"spdx_id"`
	} `json:"license"`
}

type releaseInfo struct {
	TagName string `json:"tag_name"`
}

// FetchMetadata returns stars, latest release, license and homepage. A failed
// repository lookup returns a MetadataUnavailable error; a failed release
// lookup only defaults the version.
func (c *Client) FetchMetadata(ctx context.Context, repo models.RepositoryCoordinates) (*models.RepositoryMetadata, error) {
	resp, err := c.get(ctx, joinURL(c.cfg.APIBaseURL, "repos", repo.Owner, repo.Name), apiAccept)
	if err != nil {
		return nil, apierr.Wrap(apierr.MetadataUnavailable, "repository info request failed", err)
	}
	if !resp.ok() {
		return nil, apierr.New(apierr.MetadataUnavailable,
			fmt.Sprintf("repository info returned status %d", resp.status))
	}

	var info repoInfo
	if err := json.Unmarshal(resp.body, &info); err != nil {
		return nil, apierr.Wrap(apierr.MetadataUnavailable, "decode repository info", err)
	}

	meta := &models.RepositoryMetadata{
		Stars:         info.StargazersCount,
		LatestVersion: c.latestRelease(ctx, repo),
		LicenseType:   models.NotSpecified,
		WebsiteURL:    models.NotSpecified,
	}
	if info.License != nil && info.License.Name != "" {
		meta.LicenseType = info.License.Name
	}
	if info.Homepage != "" {
		meta.WebsiteURL = info.Homepage
	}
	return meta, nil
}

func (c *Client) latestRelease(ctx context.Context, repo models.RepositoryCoordinates) string {
	resp, err := c.get(ctx, joinURL(c.cfg.APIBaseURL, "repos", repo.Owner, repo.Name, "releases", "latest"), apiAccept)
	if err != nil || !resp.ok() {
		if err != nil {
			c.logger.Debug("Latest release lookup failed", logger.Repo(repo.String()), zap.Error(err))
		}
		return models.NotAvailable
	}

	var rel releaseInfo
	if err := json.Unmarshal(resp.body, &rel); err != nil || rel.TagName == "" {
		return models.NotAvailable
	}
	return rel.TagName
}
