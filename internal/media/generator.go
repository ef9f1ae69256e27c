// Package media submits prompts to the xAI image and video generation
// endpoints and extracts the result URL from whatever envelope comes back.
package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"jobposters/poster-go/internal/grok"
	"jobposters/poster-go/internal/utils"

	openai "github.com/openai/openai-go"
	"github.com/tidwall/gjson"
)

const (
	DefaultImageModel = "grok-imagine-image-a1"
	DefaultVideoModel = "grok-imagine-video-beta"
)

type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

// Ext is the file extension persisted assets of this kind get.
func (k Kind) Ext() string {
	if k == KindVideo {
		return "mp4"
	}
	return "jpg"
}

// Asset is a generated result still living on the provider's storage.
type Asset struct {
	Kind      Kind   `json:"kind"`
	Model     string `json:"model"`
	Prompt    string `json:"prompt"`
	URL       string `json:"url"`
	SourceURL string `json:"source_url,omitempty"`
}

var ErrGeneration = errors.New("generation failed")

type GenerationError struct {
	Kind   Kind
	Model  string
	Status int
	Err    error
}

func (e *GenerationError) Error() string {
	msg := fmt.Sprintf("generate %s (model=%s)", e.Kind, e.Model)
	if e.Status != 0 {
		msg += fmt.Sprintf(" status=%d", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *GenerationError) Unwrap() error { return e.Err }

func (e *GenerationError) Is(target error) bool { return target == ErrGeneration }

// resultPaths are checked in order; the first non-empty string wins.
var resultPaths = []string{
	"url",
	"data.0.url",
	"videos.0.url",
	"images.0.url",
	"video.url",
	"image.url",
}

// ExtractURL finds the result URL in a generation response body.
func ExtractURL(body []byte) (string, bool) {
	if !gjson.ValidBytes(body) {
		return "", false
	}
	parsed := gjson.ParseBytes(body)
	for _, path := range resultPaths {
		v := parsed.Get(path)
		if v.Type == gjson.String && strings.TrimSpace(v.Str) != "" {
			return strings.TrimSpace(v.Str), true
		}
	}
	return "", false
}

type Generator struct {
	client     openai.Client
	ImageModel string
	VideoModel string
}

// NewGenerator shares the chat settings (key, base URL, timeout). Retries are
// disabled: one attempt per asset.
func NewGenerator(settings grok.Settings, imageModel, videoModel string) *Generator {
	if imageModel == "" {
		imageModel = DefaultImageModel
	}
	if videoModel == "" {
		videoModel = DefaultVideoModel
	}
	return &Generator{
		client:     openai.NewClient(grok.ClientOptions(settings)...),
		ImageModel: imageModel,
		VideoModel: videoModel,
	}
}

func (g *Generator) model(kind Kind) string {
	if kind == KindVideo {
		return g.VideoModel
	}
	return g.ImageModel
}

// Generate submits prompt to the image or video generation endpoint.
func (g *Generator) Generate(ctx context.Context, prompt string, kind Kind) (Asset, error) {
	model := g.model(kind)
	path := "images/generations"
	if kind == KindVideo {
		path = "videos/generations"
	}
	body := map[string]any{
		"model":  model,
		"prompt": prompt,
	}
	url, err := g.submit(ctx, path, body, kind, model)
	if err != nil {
		return Asset{}, err
	}
	return Asset{Kind: kind, Model: model, Prompt: prompt, URL: url}, nil
}

// Edit asks the video endpoint to rework the video at sourceURL.
func (g *Generator) Edit(ctx context.Context, prompt, sourceURL string) (Asset, error) {
	model := g.VideoModel
	if strings.TrimSpace(sourceURL) == "" {
		return Asset{}, &GenerationError{Kind: KindVideo, Model: model, Err: errors.New("source video url missing")}
	}
	body := map[string]any{
		"model":  model,
		"prompt": prompt,
		"video":  map[string]string{"url": sourceURL},
	}
	url, err := g.submit(ctx, "videos/edits", body, KindVideo, model)
	if err != nil {
		return Asset{}, err
	}
	return Asset{Kind: KindVideo, Model: model, Prompt: prompt, URL: url, SourceURL: sourceURL}, nil
}

func (g *Generator) submit(ctx context.Context, path string, body any, kind Kind, model string) (string, error) {
	utils.Info("generation submit", "kind", kind, "model", model, "endpoint", path)

	var raw json.RawMessage
	if err := g.client.Post(ctx, path, body, &raw); err != nil {
		genErr := &GenerationError{Kind: kind, Model: model, Err: err}
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			genErr.Status = apiErr.StatusCode
		}
		return "", genErr
	}

	url, ok := ExtractURL(raw)
	if !ok {
		return "", &GenerationError{
			Kind:  kind,
			Model: model,
			Err:   fmt.Errorf("no result url in response: %s", utils.Preview(string(raw), 200)),
		}
	}
	utils.Info("generation done", "kind", kind, "url", url)
	return url, nil
}
