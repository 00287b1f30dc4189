package providers

import (
	"context"
)

// Config represents a single vision request to an LLM provider
type Config struct {
	Model       string
	Temperature float64
	Prompt      string
	Image       []byte
	MIMEType    string
}

// Provider defines the interface for an LLM provider that can describe an image
type Provider interface {
	Describe(ctx context.Context, config Config) (string, error)
}
