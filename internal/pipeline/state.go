package pipeline

import (
	"net/http"
	"time"

	"github.com/antigravity/summarizer-gateway/internal/models"
	"github.com/antigravity/summarizer-gateway/internal/ratelimit"
)

// Stage names a step of the per-request state machine.
type Stage string

const (
	StageStart         Stage = "start"
	StageAuthenticate  Stage = "authenticate"
	StageAdmission     Stage = "admission"
	StageValidate      Stage = "validate"
	StageResolve       Stage = "resolve_repository"
	StageFetchReadme   Stage = "fetch_readme"
	StageFetchMetadata Stage = "fetch_metadata"
	StageSummarize     Stage = "summarize"
	StageCompose       Stage = "compose_response"
	StageDone          Stage = "done"
)

// Request is one inbound call.
type Request struct {
	Header    http.Header
	Body      []byte
	ClientIP  string
	RequestID string
}

// State is carried through the stages of one request. Fields are filled in
// as stages complete; on failure Stage is the stage that failed.
type State struct {
	Request *Request
	Stage   Stage

	body     map[string]any
	bodyErr  error
	Key      *models.APIKey
	Decision *ratelimit.Decision
	Repo     models.RepositoryCoordinates
	Readme   *models.ReadmeResult
	Metadata *models.RepositoryMetadata
	Summary  *models.Summary

	Response any
}

func newState(req *Request) *State {
	if req.Header == nil {
		req.Header = http.Header{}
	}
	return &State{Request: req, Stage: StageStart}
}

// usage builds the usage snapshot, nil for the demo identity.
func (s *State) usage() *models.UsageSummary {
	if s.Key == nil || s.Key.Demo {
		return nil
	}
	u := &models.UsageSummary{
		KeyName:       s.Key.Name,
		TotalRequests: s.Key.UsageCount,
	}
	if s.Key.LastUsed != nil {
		u.LastUsed = s.Key.LastUsed.UTC().Format(time.RFC3339)
	}
	if s.Decision != nil {
		u.WindowLimit = s.Decision.Limit
		u.WindowRemaining = s.Decision.Remaining
		u.WindowResetAt = s.Decision.ResetAt.UTC().Format(time.RFC3339)
	}
	return u
}
