package jobs

import (
	"context"
	"errors"
	"fmt"

	"jobposters/poster-go/internal/pipeline"
	"jobposters/poster-go/internal/poster"
	"jobposters/poster-go/internal/queue"
	"jobposters/poster-go/internal/utils"
)

type GeneratePosterJob struct {
	BaseJob
}

func NewGeneratePosterJob() GeneratePosterJob {
	return GeneratePosterJob{
		BaseJob: BaseJob{QueueInput: queue.RequestQueue},
	}
}

// QueueStats counts what a queue consumer handled. Per-item results are
// reported through the pipeline side channels, not kept here.
type QueueStats struct {
	Handled int
	Failed  int
}

func (s QueueStats) Succeeded() int { return s.Handled - s.Failed }

// Run processes urls as one batch.
func (j GeneratePosterJob) Run(ctx context.Context, jctx JobContext, opts JobOptions, urls []string) (pipeline.BatchResult, error) {
	if jctx.Pipeline == nil {
		return pipeline.BatchResult{}, fmt.Errorf("pipeline is not configured")
	}
	tmpl, err := poster.ParseTemplate(opts.Template)
	if err != nil {
		return pipeline.BatchResult{}, err
	}
	if len(urls) == 0 {
		return pipeline.BatchResult{}, fmt.Errorf("at least one post url is required")
	}
	return jctx.Pipeline.RunBatch(ctx, urls, tmpl), nil
}

// Consume handles poster requests from the queue until it is drained (with
// opts.QueueOnce) or ctx is cancelled. Cancellation is a normal shutdown.
func (j GeneratePosterJob) Consume(ctx context.Context, jctx JobContext, opts JobOptions) (QueueStats, error) {
	var stats QueueStats
	if jctx.Pipeline == nil {
		return stats, fmt.Errorf("pipeline is not configured")
	}
	tmpl, err := poster.ParseTemplate(opts.Template)
	if err != nil {
		return stats, err
	}

	err = j.RunQueue(ctx, jctx, opts, func(ctx context.Context, req queue.Request) error {
		itemTmpl, err := poster.ParseTemplate(req.Template)
		if err != nil {
			utils.Warn("queue request template invalid, using default", "template", req.Template, "err", err)
			itemTmpl = tmpl
		}
		item := jctx.Pipeline.Process(ctx, req.URL, itemTmpl)
		stats.Handled++
		if !item.OK() {
			stats.Failed++
		}
		return item.Err
	})
	if errors.Is(err, context.Canceled) {
		utils.Info("queue consumer stopped", "queue", j.QueueInput, "handled", stats.Handled, "failed", stats.Failed)
		return stats, nil
	}
	return stats, err
}
