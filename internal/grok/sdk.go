package grok

import (
	"context"
	"errors"

	"jobposters/poster-go/internal/utils"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// SDKChat is the primary chat transport.
type SDKChat struct {
	settings Settings
	client   openai.Client

	// Schema, when set, is sent as a strict json_schema response format.
	Schema      any
	SchemaName  string
	Description string
}

func NewSDKChat(settings Settings) *SDKChat {
	settings = settings.withDefaults()
	client := openai.NewClient(ClientOptions(settings)...)
	return &SDKChat{settings: settings, client: client}
}

// ClientOptions builds the SDK options for the xAI endpoint. Retries are off:
// every call is a single attempt.
func ClientOptions(settings Settings) []option.RequestOption {
	settings = settings.withDefaults()
	return []option.RequestOption{
		option.WithAPIKey(settings.APIKey),
		option.WithBaseURL(settings.BaseURL + "/"),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(settings.Timeout),
	}
}

func (s *SDKChat) Complete(ctx context.Context, prompt string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(s.settings.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(s.settings.Temperature),
	}
	if s.Schema != nil {
		name := s.SchemaName
		if name == "" {
			name = "structured_response"
		}
		schemaParam := openai.ResponseFormatJSONSchemaJSONSchemaParam{
			Name:   name,
			Schema: s.Schema,
			Strict: openai.Bool(true),
		}
		if s.Description != "" {
			schemaParam.Description = openai.String(s.Description)
		}
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{JSONSchema: schemaParam},
		}
	}

	utils.Debug("grok chat (sdk)", "model", s.settings.Model, "structured", s.Schema != nil)
	resp, err := s.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("grok: empty choices")
	}
	return resp.Choices[0].Message.Content, nil
}
