package poster

import (
	"context"
	"errors"
	"fmt"

	"jobposters/poster-go/internal/grok"
	"jobposters/poster-go/internal/outcome"
	"jobposters/poster-go/internal/utils"
)

// Composer obtains a VisualAnalysis for a post. Primary is tried first and
// its reply parsed as-is; on any failure the same instruction goes through
// Fallback and the reply is parsed after stripping a markdown fence.
type Composer struct {
	Primary  grok.Completer
	Fallback grok.Completer
}

func NewComposer(primary, fallback grok.Completer) *Composer {
	return &Composer{Primary: primary, Fallback: fallback}
}

// Analyze never fails: when both transports fail it returns the default
// analysis as a degraded outcome.
func (c *Composer) Analyze(ctx context.Context, text string, t Template) outcome.Outcome[VisualAnalysis] {
	instruction := t.Instruction(text)

	primaryErr := errors.New("no primary chat transport")
	if c.Primary != nil {
		analysis, err := c.attempt(ctx, c.Primary, instruction, false)
		if err == nil {
			utils.Info("analysis ready", "job_type", analysis.JobType, "path", "primary")
			return outcome.Ok(analysis)
		}
		primaryErr = fmt.Errorf("primary: %w", err)
		utils.Warn("analysis failed, trying fallback transport", "reason", err)
	}

	fallbackErr := errors.New("no fallback chat transport")
	if c.Fallback != nil {
		analysis, err := c.attempt(ctx, c.Fallback, instruction, true)
		if err == nil {
			utils.Info("analysis ready", "job_type", analysis.JobType, "path", "fallback")
			return outcome.Ok(analysis)
		}
		fallbackErr = fmt.Errorf("fallback: %w", err)
	}

	reason := errors.Join(primaryErr, fallbackErr)
	utils.Warn("analysis unavailable, using default analysis", "reason", reason)
	return outcome.Degraded(DefaultAnalysis(), reason)
}

func (c *Composer) attempt(ctx context.Context, chat grok.Completer, instruction string, stripFence bool) (VisualAnalysis, error) {
	reply, err := chat.Complete(ctx, instruction)
	if err != nil {
		return VisualAnalysis{}, err
	}
	utils.Debug("analysis reply", "reply", utils.Preview(reply, 200))
	if stripFence {
		reply = grok.StripFence(reply)
	}
	return ParseAnalysis(reply)
}
