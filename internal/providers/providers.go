package providers

import (
	"context"
)

// Image is a picture sent alongside the prompt
type Image struct {
	Data     []byte
	MimeType string
}

// Config represents the configuration for an LLM provider
type Config struct {
	Model       string
	Temperature float64
	Prompt      string
	Images      []Image
	// JSON asks the provider to constrain its answer to a JSON object
	JSON bool
}

// Provider defines the interface for an LLM provider
type Provider interface {
	ExtractText(ctx context.Context, config Config) (string, error)
}
