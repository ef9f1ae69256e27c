package jobs

import (
	"context"
	"fmt"
	"strings"

	"jobposters/poster-go/internal/pipeline"
)

type GenerateVideoJob struct{}

func NewGenerateVideoJob() GenerateVideoJob { return GenerateVideoJob{} }

// Run generates a video from prompt, or edits sourceURL when it is set.
func (GenerateVideoJob) Run(ctx context.Context, jctx JobContext, prompt, sourceURL string) (pipeline.ItemResult, error) {
	if jctx.Pipeline == nil {
		return pipeline.ItemResult{}, fmt.Errorf("pipeline is not configured")
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return pipeline.ItemResult{}, fmt.Errorf("prompt is required")
	}
	return jctx.Pipeline.ProcessPrompt(ctx, pipeline.MediaRequest{
		Prompt:    prompt,
		SourceURL: strings.TrimSpace(sourceURL),
	}), nil
}
