// Package pipeline runs the per-request admission and summarization flow.
package pipeline

import (
	"context"

	"github.com/antigravity/summarizer-gateway/internal/apierr"
	"github.com/antigravity/summarizer-gateway/internal/auth"
	"github.com/antigravity/summarizer-gateway/internal/logger"
	"github.com/antigravity/summarizer-gateway/internal/models"
	"github.com/antigravity/summarizer-gateway/internal/ratelimit"
	"github.com/antigravity/summarizer-gateway/internal/summarizer"
	"github.com/antigravity/summarizer-gateway/internal/validate"
	"go.uber.org/zap"
)

// FieldGithubURL is the repository URL field of the summarize body.
const FieldGithubURL = "githubUrl"

// SummarizeSchema is the body schema of the summarize endpoint.
var SummarizeSchema = validate.Schema{Fields: []validate.Field{
	{Name: FieldGithubURL, Required: true, Shape: validate.ShapeURL, Sanitize: true},
}}

type Authenticator interface {
	Authenticate(ctx context.Context, creds auth.Credentials) (*models.APIKey, error)
}

type Admission interface {
	Check(identity, ip string) ratelimit.Decision
}

// Repositories resolves repository URLs and fetches README and metadata.
type Repositories interface {
	Resolve(raw string) (models.RepositoryCoordinates, error)
	FindReadme(ctx context.Context, repo models.RepositoryCoordinates) (*models.ReadmeResult, error)
	FetchMetadata(ctx context.Context, repo models.RepositoryCoordinates) (*models.RepositoryMetadata, error)
}

// Deps are the collaborators of a pipeline.
type Deps struct {
	Auth       Authenticator
	Limiter    Admission
	Repos      Repositories
	Summarizer summarizer.Summarizer
}

// Pipeline runs requests through the stage state machine.
type Pipeline struct {
	deps      Deps
	logger    *zap.Logger
	summarize Handler
	validate  Handler
}

// New creates a new pipeline. Extra interceptors run inside the default
// recovery, security and rate limit monitors.
func New(deps Deps, log *zap.Logger, extra ...Interceptor) *Pipeline {
	p := &Pipeline{
		deps:   deps,
		logger: log.With(logger.Component("pipeline")),
	}
	interceptors := append([]Interceptor{
		Recovery(p.logger),
		SecurityMonitor(p.logger),
		RateLimitMonitor(p.logger),
	}, extra...)

	p.summarize = Chain(p.runSummarize, interceptors...)
	p.validate = Chain(p.runValidateKey, interceptors...)
	return p
}

// Summarize runs the full flow. The returned state is never nil so callers
// can render rate limit headers on failure too.
func (p *Pipeline) Summarize(ctx context.Context, req *Request) (*State, *apierr.Error) {
	return p.run(ctx, req, p.summarize)
}

// ValidateKey authenticates the caller and runs the admission check.
func (p *Pipeline) ValidateKey(ctx context.Context, req *Request) (*State, *apierr.Error) {
	return p.run(ctx, req, p.validate)
}

func (p *Pipeline) run(ctx context.Context, req *Request, h Handler) (*State, *apierr.Error) {
	st := newState(req)
	err := h(ctx, st)
	if err == nil {
		st.Stage = StageDone
		return st, nil
	}

	e := apierr.From(err)
	if e.Kind == apierr.UnexpectedFailure || e.Kind == apierr.StoreUnavailable {
		p.logger.Error("Request failed",
			zap.String("stage", string(st.Stage)),
			zap.String("request_id", req.RequestID),
			zap.Error(e))
	} else {
		p.logger.Debug("Request rejected",
			zap.String("stage", string(st.Stage)),
			zap.String("kind", string(e.Kind)),
			zap.String("request_id", req.RequestID))
	}
	return st, e
}

func (p *Pipeline) runSummarize(ctx context.Context, st *State) error {
	st.body, st.bodyErr = validate.ParseBody(st.Request.Body)

	if err := p.authenticate(ctx, st, false); err != nil {
		return err
	}
	if err := p.admit(st); err != nil {
		return err
	}

	st.Stage = StageValidate
	if st.bodyErr != nil {
		return st.bodyErr
	}
	clean, err := SummarizeSchema.Apply(st.body)
	if err != nil {
		return err
	}
	rawURL, _ := clean[FieldGithubURL].(string)

	st.Stage = StageResolve
	if st.Repo, err = p.deps.Repos.Resolve(rawURL); err != nil {
		return err
	}

	st.Stage = StageFetchReadme
	if st.Readme, err = p.deps.Repos.FindReadme(ctx, st.Repo); err != nil {
		return err
	}

	// best-effort
	st.Stage = StageFetchMetadata
	if st.Metadata, err = p.deps.Repos.FetchMetadata(ctx, st.Repo); err != nil {
		p.logger.Warn("Metadata unavailable",
			logger.Repo(st.Repo.String()),
			zap.String("request_id", st.Request.RequestID),
			zap.Error(err))
		st.Metadata = nil
	}

	st.Stage = StageSummarize
	if st.Summary, err = p.deps.Summarizer.Summarize(ctx, st.Repo, st.Readme.Text); err != nil {
		return err
	}

	st.Stage = StageCompose
	st.Response = compose(st, p.deps.Summarizer.Model())
	return nil
}

func (p *Pipeline) runValidateKey(ctx context.Context, st *State) error {
	// 该接口不要求请求体
	st.body, st.bodyErr = validate.ParseBody(st.Request.Body)

	if err := p.authenticate(ctx, st, true); err != nil {
		return err
	}
	if err := p.admit(st); err != nil {
		return err
	}

	st.Stage = StageCompose
	st.Response = &models.ValidateKeyResponse{
		Valid: true,
		Key:   st.Key,
		Usage: st.usage(),
	}
	return nil
}

func (p *Pipeline) authenticate(ctx context.Context, st *State, allowBody bool) error {
	st.Stage = StageAuthenticate
	key, err := p.deps.Auth.Authenticate(ctx, auth.Credentials{
		Header:    st.Request.Header,
		Body:      st.body,
		AllowBody: allowBody,
	})
	if err != nil {
		return err
	}
	st.Key = key
	return nil
}

func (p *Pipeline) admit(st *State) error {
	st.Stage = StageAdmission
	d := p.deps.Limiter.Check(st.Key.Identity(), st.Request.ClientIP)
	st.Decision = &d
	return d.Err()
}

func compose(st *State, model string) *models.SummarizeResponse {
	if st.Summary.Model != "" {
		model = st.Summary.Model
	}
	resp := &models.SummarizeResponse{
		ModelUsed:     model,
		ReadmeSource:  st.Readme.SourceURL,
		Summary:       st.Summary.Summary,
		CoolFacts:     nonNil(st.Summary.CoolFacts),
		ToolsUsed:     nonNil(st.Summary.ToolsUsed),
		LatestVersion: models.NotAvailable,
		LicenseType:   models.NotSpecified,
		WebsiteURL:    models.NotSpecified,
		Usage:         st.usage(),
	}
	if m := st.Metadata; m != nil {
		stars := m.Stars
		resp.Stars = &stars
		resp.LatestVersion = m.LatestVersion
		resp.LicenseType = m.LicenseType
		resp.WebsiteURL = m.WebsiteURL
	}
	return resp
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
