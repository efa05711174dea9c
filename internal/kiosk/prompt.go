package kiosk

import (
	"math/rand/v2"
	"strings"
)

// Prompter picks a topic and frames it for the text service.
type Prompter struct {
	Topics []string
	Prefix string
	Suffix string
	rand   func(int) int
}

func NewPrompter(topics []string, prefix, suffix string) *Prompter {
	return &Prompter{Topics: topics, Prefix: prefix, Suffix: suffix, rand: rand.IntN}
}

// Next returns a random topic and the full prompt built from it.
func (p *Prompter) Next() (topic, prompt string) {
	if len(p.Topics) > 0 {
		topic = p.Topics[p.rand(len(p.Topics))]
	}
	return topic, p.Prefix + strings.TrimSpace(topic) + p.Suffix
}
