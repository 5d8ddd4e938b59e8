package stylist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/lehigh-university-libraries/wardrobe/internal/gemini"
	"github.com/lehigh-university-libraries/wardrobe/internal/models"
	"github.com/lehigh-university-libraries/wardrobe/internal/ollama"
	"github.com/lehigh-university-libraries/wardrobe/internal/openai"
	"github.com/lehigh-university-libraries/wardrobe/internal/providers"
)

// maxRecommendations is how many suggestions are kept from the model answer
const maxRecommendations = 5

// ErrUnrecognized is returned when the model answer has no item
var ErrUnrecognized = errors.New("could not recognize a clothing item in the photo")

type Service struct {
	provider    providers.Provider
	model       string
	temperature float64
}

func NewService(provider providers.Provider, model string) *Service {
	return &Service{
		provider:    provider,
		model:       model,
		temperature: 0.2,
	}
}

// NewProvider returns the named provider. An empty name falls back to
// STYLIST_PROVIDER, then ollama.
func NewProvider(name, ollamaURL string) (providers.Provider, error) {
	if name == "" {
		name = os.Getenv("STYLIST_PROVIDER")
		if name == "" {
			name = "ollama"
		}
	}

	switch name {
	case "ollama":
		return ollama.New(ollamaURL), nil
	case "openai":
		return openai.New(), nil
	case "gemini":
		return gemini.New(), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", name)
	}
}

// DefaultModel returns the vision model used when none is configured
func DefaultModel(provider string) string {
	switch provider {
	case "openai":
		model := os.Getenv("OPENAI_MODEL")
		if model == "" {
			return "gpt-4o"
		}
		return model
	case "gemini":
		model := os.Getenv("GEMINI_MODEL")
		if model == "" {
			return "gemini-1.5-flash"
		}
		return model
	case "ollama", "":
		model := os.Getenv("OLLAMA_MODEL")
		if model == "" {
			return "llava:13b"
		}
		return model
	default:
		return ""
	}
}

// Analyze identifies the clothing item in the photo and suggests how to wear it
func (s *Service) Analyze(ctx context.Context, imageData []byte, mimeType string) (*models.AnalysisResult, error) {
	if len(imageData) == 0 {
		return nil, fmt.Errorf("empty image")
	}
	if mimeType == "" {
		mimeType = models.DefaultMimeType
	}

	raw, err := s.provider.ExtractText(ctx, providers.Config{
		Model:       s.model,
		Temperature: s.temperature,
		Prompt:      buildPrompt(),
		Images:      []providers.Image{{Data: imageData, MimeType: mimeType}},
		JSON:        true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to analyze image: %w", err)
	}

	result, err := parseResponse(raw)
	if err != nil {
		return nil, err
	}
	slog.Info("Analyzed clothing item", "model", s.model, "item", result.Item, "recommendations", len(result.Recommendations))
	return result, nil
}

func buildPrompt() string {
	return fmt.Sprintf(`You are a personal stylist. Look at the photo of a single clothing item.

INSTRUCTIONS:
1. Identify the item in a few words, including its main colour (for example "Blue denim jacket").
2. Suggest up to %d short, practical ways to wear or combine it.
3. If the photo does not show a clothing item, use an empty string for "item".

OUTPUT FORMAT:
Respond with ONLY a JSON object:

{
  "item": "...",
  "recommendations": ["...", "..."]
}`, maxRecommendations)
}

// parseResponse reads the model answer, tolerating markdown code fences
func parseResponse(response string) (*models.AnalysisResult, error) {
	response = strings.TrimSpace(response)
	response = strings.TrimPrefix(response, "```json")
	response = strings.TrimPrefix(response, "```")
	response = strings.TrimSuffix(response, "```")
	response = strings.TrimSpace(response)

	var result models.AnalysisResult
	if err := json.Unmarshal([]byte(response), &result); err != nil {
		slog.Warn("Failed to parse stylist response", "error", err, "length", len(response))
		return nil, fmt.Errorf("failed to parse model response: %w", err)
	}

	result.Item = strings.TrimSpace(result.Item)
	if result.Item == "" {
		return nil, ErrUnrecognized
	}

	recs := make([]string, 0, len(result.Recommendations))
	for _, r := range result.Recommendations {
		if r = strings.TrimSpace(r); r != "" {
			recs = append(recs, r)
		}
		if len(recs) == maxRecommendations {
			break
		}
	}
	result.Recommendations = recs
	return &result, nil
}
