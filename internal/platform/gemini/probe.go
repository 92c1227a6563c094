package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/phrazzld/taskflow-api/internal/config"
	"github.com/phrazzld/taskflow-api/internal/redact"
	"google.golang.org/genai"
)

// DefaultModel is used when the configuration leaves the model empty.
const DefaultModel = "gemini-2.0-flash"

// ErrNotConfigured is returned when no API key is configured.
var ErrNotConfigured = errors.New("gemini api key not configured")

// tokenCounter is the part of genai.Models the probe uses.
type tokenCounter interface {
	CountTokens(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.CountTokensConfig,
	) (*genai.CountTokensResponse, error)
}

// Probe issues a CountTokens request, which is free and does not generate
// content, to verify credentials and model availability.
type Probe struct {
	models tokenCounter
	model  string
	logger *slog.Logger
}

// NewProbe creates a Probe backed by the Gemini developer API.
func NewProbe(ctx context.Context, cfg config.GeminiConfig, logger *slog.Logger) (*Probe, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrNotConfigured
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %s", redact.Error(err))
	}

	return newProbe(client.Models, cfg.Model, logger), nil
}

func newProbe(models tokenCounter, model string, logger *slog.Logger) *Probe {
	if model == "" {
		model = DefaultModel
	}
	return &Probe{
		models: models,
		model:  model,
		logger: logger.With(slog.String("component", "gemini_probe")),
	}
}

// Model returns the model the probe targets.
func (p *Probe) Model() string {
	return p.model
}

// CheckHealth returns nil when the API accepts a token count for the model.
func (p *Probe) CheckHealth(ctx context.Context) error {
	resp, err := p.models.CountTokens(ctx, p.model, genai.Text("ping"), nil)
	if err != nil {
		p.logger.WarnContext(ctx, "gemini probe failed",
			slog.String("model", p.model),
			slog.String("error", redact.Error(err)))
		return fmt.Errorf("gemini %s: %s", p.model, redact.Error(err))
	}
	if resp == nil || resp.TotalTokens <= 0 {
		return fmt.Errorf("gemini %s: empty token count", p.model)
	}
	return nil
}
