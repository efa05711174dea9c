package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/mattn/go-shellwords"
)

// execGenerator runs a local model wrapper once per request. The wrapper reads
// one JSON request on stdin and writes NDJSON fragments on stdout.
type execGenerator struct {
	argv []string
}

type execRequest struct {
	Prompt      string  `json:"prompt"`
	System      string  `json:"system,omitempty"`
	Model       string  `json:"model,omitempty"`
	ContextSize int     `json:"context_size,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

type execFragment struct {
	Content string `json:"content"`
	Done    bool   `json:"done,omitempty"`
	Error   string `json:"error,omitempty"`
}

func NewExecGenerator(command string) (Generator, error) {
	argv, err := shellwords.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse llm command: %w", err)
	}
	if len(argv) == 0 {
		return nil, errors.New("llm command empty")
	}
	return &execGenerator{argv: argv}, nil
}

func (g *execGenerator) Generate(ctx context.Context, req Request, consumer func(Chunk) error) error {
	input, err := json.Marshal(execRequest{
		Prompt:      req.Prompt,
		System:      req.System,
		Model:       req.Model,
		ContextSize: req.ContextSize,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, g.argv[0], g.argv[1:]...)
	cmd.Stdin = bytes.NewReader(input)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start llm command: %w", err)
	}

	start := time.Now()
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	var streamErr error
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || streamErr != nil {
			continue
		}
		var frag execFragment
		if err := json.Unmarshal(line, &frag); err != nil {
			streamErr = fmt.Errorf("decode llm fragment: %w", err)
			continue
		}
		if frag.Error != "" {
			streamErr = fmt.Errorf("llm command: %s", frag.Error)
			continue
		}
		streamErr = consumer(Chunk{Content: frag.Content, Partial: !frag.Done, Latency: time.Since(start)})
	}
	if err := scanner.Err(); err != nil && streamErr == nil {
		streamErr = fmt.Errorf("read llm output: %w", err)
	}

	if err := cmd.Wait(); err != nil {
		if tail := strings.TrimSpace(stderr.String()); tail != "" {
			return fmt.Errorf("llm command failed: %w: %s", err, tail)
		}
		return fmt.Errorf("llm command failed: %w", err)
	}
	return streamErr
}
