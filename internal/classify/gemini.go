package classify

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// DefaultModel is the Gemini model used when none is configured.
const DefaultModel = "gemini-1.5-flash"

// Config controls the Gemini classifier.
type Config struct {
	APIKey      string
	Model       string
	Temperature float64
	Categories  []string
}

type generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Gemini classifies text with Google Gemini.
type Gemini struct {
	gen        generator
	categories []string
	close      func() error
}

// NewGemini creates a Gemini classifier with one shared client.
func NewGemini(ctx context.Context, cfg Config) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create new gemini client: %w", err)
	}

	modelName := cfg.Model
	if modelName == "" {
		modelName = DefaultModel
	}
	model := client.GenerativeModel(modelName)
	model.SetTemperature(float32(cfg.Temperature))

	g := newGemini(genaiGenerator{model: model}, cfg.Categories)
	g.close = client.Close
	return g, nil
}

func newGemini(gen generator, categories []string) *Gemini {
	return &Gemini{
		gen:        gen,
		categories: categories,
		close:      func() error { return nil },
	}
}

// Classify asks the model for a category.
func (g *Gemini) Classify(ctx context.Context, text string) (string, error) {
	out, err := g.gen.Generate(ctx, Prompt(g.categories, text))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// Close releases the underlying client.
func (g *Gemini) Close() error {
	return g.close()
}

type genaiGenerator struct {
	model *genai.GenerativeModel
}

func (g genaiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates returned from Gemini")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("empty content returned from Gemini")
	}

	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("unexpected response format from Gemini")
	}
	return sb.String(), nil
}
