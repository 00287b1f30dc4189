// Package caption asks a vision model to describe a newly observed map state.
package caption

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/arcticwatch/arcticwatch/internal/gemini"
	"github.com/arcticwatch/arcticwatch/internal/images"
	"github.com/arcticwatch/arcticwatch/internal/ollama"
	"github.com/arcticwatch/arcticwatch/internal/openai"
	"github.com/arcticwatch/arcticwatch/internal/providers"
)

const (
	DefaultPrompt = `You are looking at a screenshot of a land-allocation map for an arctic region.
Describe in one or two short sentences what is shown in the selected area: which plots appear
allocated, free or pending, and anything that looks unusual. Reply with plain text only.`

	// DefaultMaxSide bounds the longer side of the image sent to the provider.
	DefaultMaxSide = 1024
)

type Service struct {
	Provider    providers.Provider
	Name        string
	Model       string
	Prompt      string
	Temperature float64
	MaxSide     int
}

// New returns a caption service for the named provider (gemini, ollama or
// openai). An empty name falls back to CAPTION_PROVIDER, then ollama.
func New(name, model, prompt string) (*Service, error) {
	if name == "" {
		name = os.Getenv("CAPTION_PROVIDER")
		if name == "" {
			name = "ollama"
		}
	}

	var p providers.Provider
	switch name {
	case "gemini":
		p = gemini.New()
	case "ollama":
		p = ollama.New()
	case "openai":
		p = openai.New()
	default:
		return nil, fmt.Errorf("unsupported provider: %s", name)
	}

	if model == "" {
		model = DefaultModel(name)
	}
	if prompt == "" {
		prompt = DefaultPrompt
	}

	return &Service{
		Provider:    p,
		Name:        name,
		Model:       model,
		Prompt:      prompt,
		Temperature: 0.1,
		MaxSide:     DefaultMaxSide,
	}, nil
}

// DefaultModel returns the model used when none is configured.
func DefaultModel(provider string) string {
	switch provider {
	case "gemini":
		if model := os.Getenv("GEMINI_MODEL"); model != "" {
			return model
		}
		return "gemini-1.5-flash"
	case "openai":
		if model := os.Getenv("OPENAI_MODEL"); model != "" {
			return model
		}
		return "gpt-4o"
	case "ollama":
		if model := os.Getenv("OLLAMA_MODEL"); model != "" {
			return model
		}
		return "llava:13b"
	default:
		return ""
	}
}

// Caption describes img.
func (s *Service) Caption(ctx context.Context, img *images.Capture) (string, error) {
	if img == nil {
		return "", fmt.Errorf("no image to caption")
	}

	maxSide := s.MaxSide
	if maxSide <= 0 {
		maxSide = DefaultMaxSide
	}
	data, err := images.ThumbnailPNG(img, maxSide)
	if err != nil {
		return "", err
	}

	text, err := s.Provider.Describe(ctx, providers.Config{
		Model:       s.Model,
		Temperature: s.Temperature,
		Prompt:      s.Prompt,
		Image:       data,
		MIMEType:    "image/png",
	})
	if err != nil {
		return "", fmt.Errorf("failed to caption with %s: %w", s.Name, err)
	}

	caption := clean(text)
	if caption == "" {
		return "", fmt.Errorf("%s returned an empty caption", s.Name)
	}
	slog.Info("Generated caption", "provider", s.Name, "model", s.Model, "length", len(caption))
	return caption, nil
}

// clean strips markdown fences and surrounding whitespace.
func clean(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```text")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}
