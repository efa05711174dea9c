package llm

import (
	"strings"

	"github.com/loqalabs/fortune-bird/internal/config"
)

func containsLine(text, line string) bool {
	for _, l := range strings.Split(text, "\n") {
		if l == line {
			return true
		}
	}
	return false
}

func configWithMode(mode string) config.LLMConfig {
	cfg := config.Default().LLM
	cfg.Mode = mode
	return cfg
}
