// Package grok talks to the xAI chat-completion endpoint. Two transports are
// provided: the openai-go SDK against the OpenAI-compatible base URL, and a
// plain HTTP call used as the fallback path.
package grok

import (
	"context"
	"strings"
	"time"
)

const (
	DefaultBaseURL     = "https://api.x.ai/v1"
	DefaultChatModel   = "grok-2-latest"
	DefaultTemperature = 0.7
)

// Completer sends one user prompt and returns the assistant's reply text.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type Settings struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

func (s Settings) withDefaults() Settings {
	if s.BaseURL == "" {
		s.BaseURL = DefaultBaseURL
	}
	s.BaseURL = strings.TrimRight(s.BaseURL, "/")
	if s.Model == "" {
		s.Model = DefaultChatModel
	}
	if s.Timeout <= 0 {
		s.Timeout = 60 * time.Second
	}
	return s
}
