// Package pipeline runs one item at a time through
// fetch → analyze → compose → generate → persist.
package pipeline

import (
	"context"
	"fmt"

	"jobposters/poster-go/internal/config"
	"jobposters/poster-go/internal/db"
	"jobposters/poster-go/internal/grok"
	"jobposters/poster-go/internal/media"
	"jobposters/poster-go/internal/outcome"
	"jobposters/poster-go/internal/persist"
	"jobposters/poster-go/internal/poster"
	"jobposters/poster-go/internal/utils"
	"jobposters/poster-go/internal/xapi"
)

type Stage string

const (
	StageStart     Stage = "start"
	StageFetched   Stage = "fetched"
	StageAnalyzed  Stage = "analyzed"
	StagePrompted  Stage = "prompted"
	StageGenerated Stage = "generated"
	StagePersisted Stage = "persisted"
	StageFailed    Stage = "failed"
)

type Fetcher interface {
	Fetch(ctx context.Context, ref xapi.Reference) outcome.Outcome[xapi.Post]
}

type Analyzer interface {
	Analyze(ctx context.Context, text string, t poster.Template) outcome.Outcome[poster.VisualAnalysis]
}

type Generator interface {
	Generate(ctx context.Context, prompt string, kind media.Kind) (media.Asset, error)
	Edit(ctx context.Context, prompt, sourceURL string) (media.Asset, error)
}

type Persister interface {
	Persist(ctx context.Context, req persist.Request) (persist.Record, error)
}

type Publisher interface {
	PublishJSON(ctx context.Context, queueName string, v any) error
}

type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Pipeline holds the stage components. Ledger, Publisher and Notifier are
// optional side channels; their failures never change an item's result.
type Pipeline struct {
	Fetcher   Fetcher
	Analyzer  Analyzer
	Generator Generator
	Persister Persister

	Ledger    db.Ledger
	Publisher Publisher
	Notifier  Notifier

	Hostname string
	VideoDir string
}

// NewFromConfig wires the stage components from configuration. Side channels
// are left for the caller to attach.
func NewFromConfig(cfg config.Config) *Pipeline {
	settings := GrokSettings(cfg)
	primary := grok.NewSDKChat(settings)
	if cfg.StructuredOutput {
		primary.Schema = poster.AnalysisSchema()
		primary.SchemaName = "visual_analysis"
		primary.Description = "Visual description of a job for a poster image"
	}
	return &Pipeline{
		Fetcher:   xapi.NewClient(cfg.XAPIBase, cfg.XBearerToken, cfg.Timeout()),
		Analyzer:  poster.NewComposer(primary, grok.NewHTTPChat(settings)),
		Generator: media.NewGenerator(settings, cfg.ImageModel, cfg.VideoModel),
		Persister: persist.NewPersister(cfg.OutputFolder, cfg.Timeout()),
		Hostname:  cfg.Hostname,
		VideoDir:  cfg.VideoOutputFolder,
	}
}

func GrokSettings(cfg config.Config) grok.Settings {
	return grok.Settings{
		APIKey:      cfg.XAIAPIKey,
		BaseURL:     cfg.XAIAPIBase,
		Model:       cfg.ChatModel,
		Temperature: cfg.Temperature,
		Timeout:     cfg.Timeout(),
	}
}

// ItemResult is the terminal state of one item.
type ItemResult struct {
	Input    string
	Kind     media.Kind
	Template string
	// Stage is StagePersisted on success and StageFailed otherwise.
	Stage Stage
	// FailedAt is the stage whose transition failed.
	FailedAt       Stage
	Post           xapi.Post
	FetchStatus    string
	AnalysisStatus string
	Analysis       *poster.VisualAnalysis
	Prompt         string
	Asset          media.Asset
	Record         persist.Record
	Warnings       []string
	Err            error
}

func (r ItemResult) OK() bool { return r.Stage == StagePersisted && r.Err == nil }

type BatchResult struct {
	Items []ItemResult
}

func (b BatchResult) Succeeded() int {
	n := 0
	for _, item := range b.Items {
		if item.OK() {
			n++
		}
	}
	return n
}

func (b BatchResult) Failed() int { return len(b.Items) - b.Succeeded() }

// Process runs one post URL end to end.
func (p *Pipeline) Process(ctx context.Context, rawURL string, t poster.Template) (res ItemResult) {
	res = ItemResult{Input: rawURL, Kind: media.KindImage, Template: t.String(), Stage: StageStart}
	defer func() { p.afterItem(ctx, res) }()

	ref, err := xapi.Resolve(rawURL)
	if err != nil {
		return p.fail(res, StageStart, err)
	}

	fetched := p.Fetcher.Fetch(ctx, ref)
	res.Post = fetched.Value
	res.FetchStatus = fetched.Status.String()
	if fetched.Degraded() {
		res.Warnings = append(res.Warnings, fmt.Sprintf("fetch degraded: %v", fetched.Reason))
	}
	res.Stage = p.advance(res, StageFetched)

	analyzed := p.Analyzer.Analyze(ctx, res.Post.Text, t)
	analysis := analyzed.Value
	res.Analysis = &analysis
	res.AnalysisStatus = analyzed.Status.String()
	if analyzed.Degraded() {
		res.Warnings = append(res.Warnings, fmt.Sprintf("analysis degraded: %v", analyzed.Reason))
	}
	res.Stage = p.advance(res, StageAnalyzed)

	res.Prompt = poster.Compose(analysis, t)
	res.Stage = p.advance(res, StagePrompted)

	asset, err := p.Generator.Generate(ctx, res.Prompt, media.KindImage)
	if err != nil {
		return p.fail(res, StageGenerated, err)
	}
	res.Asset = asset
	res.Stage = p.advance(res, StageGenerated)

	return p.persist(ctx, res, persist.Request{
		Asset:          asset,
		Post:           res.Post,
		Template:       res.Template,
		Analysis:       res.Analysis,
		FetchStatus:    res.FetchStatus,
		AnalysisStatus: res.AnalysisStatus,
	})
}

// RunBatch processes urls strictly in order. One item's failure does not
// affect the next.
func (p *Pipeline) RunBatch(ctx context.Context, urls []string, t poster.Template) BatchResult {
	batch := BatchResult{Items: make([]ItemResult, 0, len(urls))}
	for i, u := range urls {
		utils.Info("batch item", "n", i+1, "of", len(urls), "url", u)
		batch.Items = append(batch.Items, p.Process(ctx, u, t))
	}
	return batch
}

// MediaRequest is a prompt-only video run. A non-empty SourceURL turns it
// into an edit of that video.
type MediaRequest struct {
	Prompt    string
	SourceURL string
}

// ProcessPrompt generates (or edits) a video from a bare prompt. The item id
// is derived from the prompt so re-runs overwrite the same files.
func (p *Pipeline) ProcessPrompt(ctx context.Context, req MediaRequest) (res ItemResult) {
	res = ItemResult{Input: req.Prompt, Kind: media.KindVideo, Stage: StageStart}
	defer func() { p.afterItem(ctx, res) }()

	if req.Prompt == "" {
		return p.fail(res, StageStart, fmt.Errorf("prompt is empty"))
	}
	res.Post = xapi.Post{
		ID:   utils.ShortHash(req.Prompt, 12),
		Text: req.Prompt,
		URL:  req.SourceURL,
	}
	res.Prompt = req.Prompt
	res.Stage = p.advance(res, StagePrompted)

	var (
		asset media.Asset
		err   error
	)
	if req.SourceURL != "" {
		asset, err = p.Generator.Edit(ctx, req.Prompt, req.SourceURL)
	} else {
		asset, err = p.Generator.Generate(ctx, req.Prompt, media.KindVideo)
	}
	if err != nil {
		return p.fail(res, StageGenerated, err)
	}
	res.Asset = asset
	res.Stage = p.advance(res, StageGenerated)

	return p.persist(ctx, res, persist.Request{
		Asset: asset,
		Post:  res.Post,
		Dir:   p.VideoDir,
	})
}

func (p *Pipeline) persist(ctx context.Context, res ItemResult, req persist.Request) ItemResult {
	rec, err := p.Persister.Persist(ctx, req)
	if err != nil {
		return p.fail(res, StagePersisted, err)
	}
	res.Record = rec
	res.Stage = p.advance(res, StagePersisted)
	return res
}

func (p *Pipeline) advance(res ItemResult, next Stage) Stage {
	utils.Debug("stage", "id", res.Post.ID, "from", res.Stage, "to", next)
	return next
}

func (p *Pipeline) fail(res ItemResult, at Stage, err error) ItemResult {
	utils.Error("item failed", "input", utils.Preview(res.Input, 80), "stage", at, "err", err)
	res.FailedAt = at
	res.Stage = StageFailed
	res.Err = err
	return res
}
