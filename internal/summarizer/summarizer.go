// Package summarizer hands README text to a language model and returns a
// structured summary.
package summarizer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/antigravity/summarizer-gateway/internal/apierr"
	"github.com/antigravity/summarizer-gateway/internal/models"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Summarizer is the call contract of the summarization collaborator.
type Summarizer interface {
	Summarize(ctx context.Context, repo models.RepositoryCoordinates, readme string) (*models.Summary, error)
	Model() string
}

const systemPrompt = `You summarize GitHub repositories from their README.
Reply with a JSON object with exactly these keys:
"summary": a short paragraph describing what the project does,
"cool_facts": an array of up to five interesting facts,
"tools_used": an array of languages, frameworks and tools the project uses.`

func buildPrompt(repo models.RepositoryCoordinates, readme string, maxSize int) string {
	return fmt.Sprintf("Repository: %s\n\nREADME:\n%s", repo.String(), truncate(readme, maxSize))
}

// truncate cuts s to at most max bytes on a rune boundary.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	s = s[:max]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}

// parseSummary decodes model output, tolerating a fenced code block.
func parseSummary(text string) (*models.Summary, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}

	var s models.Summary
	if err := json.Unmarshal([]byte(text), &s); err != nil {
		return nil, fmt.Errorf("decode summary: %w", err)
	}
	if strings.TrimSpace(s.Summary) == "" {
		return nil, errors.New("model returned an empty summary")
	}
	if s.CoolFacts == nil {
		s.CoolFacts = []string{}
	}
	if s.ToolsUsed == nil {
		s.ToolsUsed = []string{}
	}
	return &s, nil
}

// classify maps a model call failure onto the summarization error kinds.
// Upstream throttling stays distinct from the gateway's own rate limiting.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if IsThrottled(err) {
		return apierr.Wrap(apierr.SummarizationRateLimited, "Summarization service is rate limited, please retry later", err)
	}
	return apierr.Wrap(apierr.SummarizationFailed, "Summarization failed", err)
}

// IsThrottled reports whether err is an upstream quota or rate limit error.
func IsThrottled(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusTooManyRequests {
		return true
	}
	if s, ok := status.FromError(err); ok && s.Code() == codes.ResourceExhausted {
		return true
	}
	return false
}

// Unconfigured fails every call. It stands in when no model credentials are set.
type Unconfigured struct{}

func (Unconfigured) Summarize(context.Context, models.RepositoryCoordinates, string) (*models.Summary, error) {
	return nil, apierr.New(apierr.SummarizationFailed, "Summarization service is not configured")
}

func (Unconfigured) Model() string { return "none" }
