package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// openaiGenerator talks to any OpenAI-compatible server, e.g. a local llama.cpp or LM Studio instance.
type openaiGenerator struct {
	client openai.Client
}

func NewOpenAIGenerator(baseURL, apiKey string) Generator {
	if apiKey == "" {
		// local servers ignore the key but the client insists on one
		apiKey = "local"
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &openaiGenerator{client: openai.NewClient(opts...)}
}

func (g *openaiGenerator) Generate(ctx context.Context, req Request, consumer func(Chunk) error) error {
	var messages []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:    req.Model,
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}

	start := time.Now()
	stream := g.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		if err := consumer(Chunk{
			Content: choice.Delta.Content,
			Partial: choice.FinishReason == "",
			Latency: time.Since(start),
		}); err != nil {
			return err
		}
	}
	if err := stream.Err(); err != nil && !errors.Is(err, io.EOF) {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return fmt.Errorf("%w: %d", ErrStatus, apiErr.StatusCode)
		}
		return fmt.Errorf("openai stream: %w", err)
	}
	return nil
}
