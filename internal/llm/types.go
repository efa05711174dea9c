package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/loqalabs/fortune-bird/internal/config"
)

// ErrStatus is returned when the text service answers with a non-success status.
var ErrStatus = errors.New("text service returned non-success status")

// Request describes a language model prompt.
type Request struct {
	ID          string
	Prompt      string
	System      string
	Model       string
	ContextSize int
	MaxTokens   int
	Temperature float64
}

// Chunk represents streamed model output.
type Chunk struct {
	Content          string
	Partial          bool
	PromptTokens     int
	CompletionTokens int
	Latency          time.Duration
}

// Generator defines a pluggable LLM backend.
type Generator interface {
	Generate(ctx context.Context, req Request, consumer func(Chunk) error) error
}

// RequestFromConfig builds request defaults from config.
func RequestFromConfig(cfg config.LLMConfig, prompt string) Request {
	return Request{
		Prompt:      prompt,
		Model:       cfg.Model,
		ContextSize: cfg.ContextSize,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
	}
}

// Collect runs the generator and concatenates every fragment.
func Collect(ctx context.Context, gen Generator, req Request) (string, error) {
	var sb strings.Builder
	err := gen.Generate(ctx, req, func(c Chunk) error {
		sb.WriteString(c.Content)
		return nil
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(sb.String()), nil
}

// New selects the backend named by cfg.Mode.
func New(cfg config.LLMConfig) (Generator, error) {
	switch cfg.Mode {
	case "mock":
		return NewMockGenerator(), nil
	case "ollama":
		return NewOllamaGenerator(cfg.Endpoint, nil), nil
	case "openai":
		return NewOpenAIGenerator(cfg.Endpoint, cfg.APIKey), nil
	case "exec":
		return NewExecGenerator(cfg.Command)
	default:
		return nil, fmt.Errorf("unknown llm mode %q", cfg.Mode)
	}
}
