package summarizer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/antigravity/summarizer-gateway/internal/config"
	"github.com/antigravity/summarizer-gateway/internal/logger"
	"github.com/antigravity/summarizer-gateway/internal/models"
	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// generator is satisfied by *genai.GenerativeModel.
type generator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// Gemini summarizes through the Gemini API.
type Gemini struct {
	client *genai.Client
	model  generator
	name   string
	cfg    config.SummarizerConfig
	logger *zap.Logger
}

// NewGemini creates a Gemini summarizer. Close releases the client.
func NewGemini(ctx context.Context, cfg config.SummarizerConfig, log *zap.Logger) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("summarizer api key is required")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	model := client.GenerativeModel(cfg.Model)
	model.ResponseMIMEType = "application/json"
	model.SetTemperature(0.2)
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemPrompt)}}

	g := newGemini(model, cfg, log)
	g.client = client
	return g, nil
}

func newGemini(model generator, cfg config.SummarizerConfig, log *zap.Logger) *Gemini {
	return &Gemini{
		model:  model,
		name:   cfg.Model,
		cfg:    cfg,
		logger: log.With(logger.Component("summarizer")),
	}
}

// Model returns the model identifier.
func (g *Gemini) Model() string {
	return g.name
}

// Summarize asks the model for a JSON summary of readme.
func (g *Gemini) Summarize(ctx context.Context, repo models.RepositoryCoordinates, readme string) (*models.Summary, error) {
	if g.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
	}

	resp, err := g.model.GenerateContent(ctx, genai.Text(buildPrompt(repo, readme, g.cfg.MaxReadmeSize)))
	if err != nil {
		g.logger.Warn("Model call failed", logger.Repo(repo.String()), zap.Error(err))
		return nil, classify(err)
	}

	text := responseText(resp)
	if text == "" {
		return nil, classify(errors.New("model returned no content"))
	}

	summary, err := parseSummary(text)
	if err != nil {
		g.logger.Warn("Unparseable model output", logger.Repo(repo.String()), zap.Error(err))
		return nil, classify(err)
	}
	summary.Model = g.name
	return summary, nil
}

// Close releases the underlying client.
func (g *Gemini) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
		// 只取第一个候选
		break
	}
	return b.String()
}
