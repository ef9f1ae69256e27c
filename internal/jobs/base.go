package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"jobposters/poster-go/internal/config"
	"jobposters/poster-go/internal/pipeline"
	"jobposters/poster-go/internal/queue"
	"jobposters/poster-go/internal/utils"
)

// Source is the part of the queue client the consumer loop needs.
type Source interface {
	Pop(queueName string) (*queue.Message, error)
}

type JobContext struct {
	Config   config.Config
	Pipeline *pipeline.Pipeline
	Queue    Source
}

type JobOptions struct {
	Sleep     int
	Queue     bool
	QueueOnce bool
	Template  string
}

type BaseJob struct {
	QueueInput string
}

type QueueHandler func(ctx context.Context, req queue.Request) error

// RunQueue pops one request at a time and hands it to handler. Requests that
// fail are nacked without requeue: every item gets a single attempt.
func (b BaseJob) RunQueue(ctx context.Context, jctx JobContext, opts JobOptions, handler QueueHandler) error {
	if jctx.Queue == nil {
		return fmt.Errorf("queue client is not configured")
	}

	sleep := opts.Sleep
	if sleep <= 0 {
		sleep = 30
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg, err := jctx.Queue.Pop(b.QueueInput)
		if err != nil {
			return err
		}
		if msg == nil {
			utils.Debug("queue empty", "queue", b.QueueInput, "sleep_s", sleep)
			if opts.QueueOnce {
				return nil
			}
			if err := sleepCtx(ctx, time.Duration(sleep)*time.Second); err != nil {
				return err
			}
			continue
		}

		var payload queue.Request
		if err := json.Unmarshal(msg.Body, &payload); err != nil {
			utils.Warn("queue payload json decode failed", "queue", b.QueueInput, "err", err)
			_ = msg.Ack()
			continue
		}
		payload.URL = strings.TrimSpace(payload.URL)
		if payload.URL == "" {
			utils.Warn("queue payload invalid (missing url)", "queue", b.QueueInput)
			_ = msg.Ack()
			continue
		}
		if payload.Template == "" {
			payload.Template = opts.Template
		}

		if err := handler(ctx, payload); err != nil {
			utils.Error("queue handler error", "queue", b.QueueInput, "url", payload.URL, "err", err)
			_ = msg.Nack(false)
			continue
		}
		_ = msg.Ack()
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
