package grok

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"jobposters/poster-go/internal/utils"

	"github.com/tidwall/gjson"
)

// HTTPChat posts to {base}/chat/completions directly. It is the fallback
// transport and never requests a response format.
type HTTPChat struct {
	settings   Settings
	HTTPClient *http.Client
}

func NewHTTPChat(settings Settings) *HTTPChat {
	settings = settings.withDefaults()
	return &HTTPChat{
		settings:   settings,
		HTTPClient: &http.Client{Timeout: settings.Timeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Messages    []chatMessage `json:"messages"`
	Model       string        `json:"model"`
	Stream      bool          `json:"stream"`
	Temperature float64       `json:"temperature"`
}

func (h *HTTPChat) Complete(ctx context.Context, prompt string) (string, error) {
	payload := chatRequest{
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Model:       h.settings.Model,
		Stream:      false,
		Temperature: h.settings.Temperature,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	endpoint := h.settings.BaseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+h.settings.APIKey)

	client := h.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	utils.Debug("grok chat (http)", "url", endpoint, "model", h.settings.Model)
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("grok chat status=%d body=%s", resp.StatusCode, utils.Preview(strings.TrimSpace(string(respBody)), 200))
	}

	content := gjson.GetBytes(respBody, "choices.0.message.content")
	if !content.Exists() {
		return "", errors.New("grok chat: choices.0.message.content missing")
	}
	return content.String(), nil
}
