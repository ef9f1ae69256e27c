package pipeline

import (
	"context"
	"fmt"
	"time"

	"jobposters/poster-go/internal/db"
	"jobposters/poster-go/internal/queue"
	"jobposters/poster-go/internal/utils"
)

// afterItem reports a finished item to the ledger, the result queue and
// Slack. Errors are logged only.
func (p *Pipeline) afterItem(ctx context.Context, res ItemResult) {
	status := "persisted"
	errText := ""
	if !res.OK() {
		status = "failed"
		if res.Err != nil {
			errText = res.Err.Error()
		}
	}

	if p.Ledger != nil {
		stage := res.Stage
		if res.FailedAt != "" {
			stage = res.FailedAt
		}
		run := db.Run{
			RunID:          res.Record.RunID,
			PostID:         res.Post.ID,
			SourceURL:      res.Input,
			Template:       res.Template,
			MediaKind:      string(res.Kind),
			Status:         status,
			Stage:          string(stage),
			FetchStatus:    res.FetchStatus,
			AnalysisStatus: res.AnalysisStatus,
			FilePath:       res.Record.FilePath,
			RemoteURL:      res.Asset.URL,
			Error:          errText,
			Hostname:       p.Hostname,
			CreatedAt:      time.Now(),
		}
		if err := p.Ledger.RecordRun(ctx, run); err != nil {
			utils.Warn("ledger record failed", "post_id", res.Post.ID, "err", err)
		}
	}

	if p.Publisher != nil {
		event := queue.Result{
			PostID:    res.Post.ID,
			URL:       res.Input,
			FilePath:  res.Record.FilePath,
			RemoteURL: res.Asset.URL,
			Hostname:  p.Hostname,
			Status:    status,
			Error:     errText,
		}
		if err := p.Publisher.PublishJSON(ctx, queue.ResultQueue, event); err != nil {
			utils.Warn("result publish failed", "post_id", res.Post.ID, "err", err)
		}
	}

	if p.Notifier != nil {
		if err := p.Notifier.Notify(ctx, noticeText(res)); err != nil {
			utils.Warn("slack notice failed", "post_id", res.Post.ID, "err", err)
		}
	}
}

func noticeText(res ItemResult) string {
	if res.OK() {
		return fmt.Sprintf("%s ready: %s (%s)", res.Kind, res.Record.FilePath, utils.Preview(res.Input, 120))
	}
	return fmt.Sprintf("%s failed at %s: %s: %v", res.Kind, res.FailedAt, utils.Preview(res.Input, 120), res.Err)
}
