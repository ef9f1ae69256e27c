// Package slack posts run notices to a channel.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const chatPostMessageURL = "https://slack.com/api/chat.postMessage"

// Notifier posts plain-text messages with a bot token.
type Notifier struct {
	BotToken   string
	Channel    string
	Endpoint   string
	HTTPClient *http.Client
}

func NewNotifier(botToken, channel string, timeout time.Duration) *Notifier {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Notifier{
		BotToken:   strings.TrimSpace(botToken),
		Channel:    strings.TrimSpace(channel),
		Endpoint:   chatPostMessageURL,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// Enabled reports whether both token and channel are configured.
func (n *Notifier) Enabled() bool {
	return n != nil && n.BotToken != "" && n.Channel != ""
}

func (n *Notifier) Notify(ctx context.Context, text string) error {
	if !n.Enabled() {
		return nil
	}
	endpoint := n.Endpoint
	if endpoint == "" {
		endpoint = chatPostMessageURL
	}
	return PostMessage(ctx, n.HTTPClient, endpoint, n.BotToken, n.Channel, text)
}

func PostMessage(ctx context.Context, client *http.Client, endpoint, botToken, channel, text string) error {
	if client == nil {
		client = http.DefaultClient
	}
	if botToken == "" {
		return errors.New("bot token missing")
	}
	if channel == "" {
		return errors.New("channel missing")
	}
	if text == "" {
		return errors.New("text missing")
	}

	payload := map[string]any{
		"channel": channel,
		"text":    text,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+botToken)

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("slack chat.postMessage status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var decoded struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(respBody, &decoded); err == nil {
		if !decoded.OK {
			if decoded.Error == "" {
				decoded.Error = "chat.postMessage failed"
			}
			return errors.New(decoded.Error)
		}
	}
	return nil
}
