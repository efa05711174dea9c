package llm

import (
	"context"
	"strings"
	"time"
)

type mockGenerator struct{}

func NewMockGenerator() Generator { return &mockGenerator{} }

func (m *mockGenerator) Generate(ctx context.Context, req Request, consumer func(Chunk) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(20 * time.Millisecond):
	}
	lines := []string{
		"A little bird once sang to me,",
		"of " + topicOf(req.Prompt) + ",",
		"it laughed and danced from tree to tree,",
		"and hummed a tune of joy,",
		"so go and smile, and you will see.",
	}
	for i, line := range lines {
		if err := consumer(Chunk{Content: line + "\n", Partial: i < len(lines)-1, Latency: 20 * time.Millisecond}); err != nil {
			return err
		}
	}
	return nil
}

func topicOf(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if i := strings.Index(prompt, " about "); i >= 0 {
		prompt = prompt[i+len(" about "):]
	}
	if i := strings.Index(prompt, "."); i >= 0 {
		prompt = prompt[:i]
	}
	if prompt == "" {
		return "nothing at all"
	}
	return prompt
}
