package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"jobposters/poster-go/internal/config"
	"jobposters/poster-go/internal/db"
	"jobposters/poster-go/internal/grok"
	"jobposters/poster-go/internal/jobs"
	"jobposters/poster-go/internal/pipeline"
	"jobposters/poster-go/internal/poster"
	"jobposters/poster-go/internal/queue"
	"jobposters/poster-go/internal/slack"
	"jobposters/poster-go/internal/utils"
)

// stdout is where summaries and listings go; tests swap it.
var stdout io.Writer = os.Stdout

func Run(args []string) int {
	// Support a global --verbose flag anywhere in the argv (before or after the command).
	// This is helpful because the stdlib flag parser stops at the first non-flag argument.
	args, globalVerbose := extractGlobalVerbose(args)
	if globalVerbose {
		utils.ConfigureLogging(true)
	}

	if len(args) < 2 {
		printUsage()
		return 1
	}
	if args[1] == "-h" || args[1] == "--help" || args[1] == "help" {
		printUsage()
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return 1
	}
	utils.Logf("poster: config loaded hostname=%s output=%s ledger=%s", cfg.Hostname, cfg.OutputFolder, cfg.LedgerDriver)

	cmd := args[1]
	cmdArgs := args[2:]
	utils.Logf("poster: cmd=%s args=%v", cmd, cmdArgs)

	var runErr error
	switch cmd {
	case "poster:Generate":
		runErr = runPosterGenerate(ctx, cfg, cmdArgs)
	case "poster:List":
		runErr = runPosterList(ctx, cfg, cmdArgs)
	case "video:Generate":
		runErr = runVideoGenerate(ctx, cfg, cmdArgs)
	case "video:Edit":
		runErr = runVideoEdit(ctx, cfg, cmdArgs)
	case "grok:Chat":
		runErr = runGrokChat(ctx, cfg, cmdArgs)
	case "ledger:Migrate":
		runErr = runLedgerMigrate(ctx, cfg, cmdArgs)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		return 1
	}

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", runErr)
		return 1
	}

	return 0
}

func extractGlobalVerbose(args []string) ([]string, bool) {
	if len(args) == 0 {
		return args, false
	}
	verbose := false
	out := make([]string, 0, len(args))
	for _, arg := range args {
		switch {
		case arg == "--verbose" || arg == "-verbose":
			verbose = true
			continue
		case strings.HasPrefix(arg, "--verbose="):
			raw := strings.TrimPrefix(arg, "--verbose=")
			if parsed, err := strconv.ParseBool(raw); err == nil {
				verbose = parsed
			}
			continue
		case strings.HasPrefix(arg, "-verbose="):
			raw := strings.TrimPrefix(arg, "-verbose=")
			if parsed, err := strconv.ParseBool(raw); err == nil {
				verbose = parsed
			}
			continue
		default:
			out = append(out, arg)
		}
	}
	return out, verbose
}

// parseInterspersed lets flags follow positional arguments, which the flag
// package alone does not allow. Everything after "--" is positional.
func parseInterspersed(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		rest := fs.Args()
		if len(rest) == 0 {
			return positional, nil
		}
		if len(args) > len(rest) && args[len(args)-len(rest)-1] == "--" {
			return append(positional, rest...), nil
		}
		positional = append(positional, rest[0])
		args = rest[1:]
	}
}

// newJobContext wires the pipeline plus its side channels. The broker is only
// dialed when the command consumes the request queue or results are published.
func newJobContext(ctx context.Context, cfg config.Config, withQueue bool) (jobs.JobContext, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	p := pipeline.NewFromConfig(cfg)

	ledger, err := db.Open(ctx, db.Options{
		Driver:     cfg.LedgerDriver,
		Path:       cfg.LedgerPath,
		ConnString: cfg.DBConnString(),
	})
	if err != nil {
		return jobs.JobContext{}, cleanup, fmt.Errorf("ledger: %w", err)
	}
	closers = append(closers, func() {
		if err := ledger.Close(); err != nil {
			utils.Warn("ledger close failed", "err", err)
		}
	})
	p.Ledger = ledger
	utils.Logf("poster: ledger ready driver=%s", cfg.LedgerDriver)

	jctx := jobs.JobContext{Config: cfg, Pipeline: p}

	if withQueue || cfg.RabbitMQPublishResults {
		queueClient, err := queue.New(cfg.RabbitMQURL())
		if err != nil {
			cleanup()
			return jobs.JobContext{}, func() {}, fmt.Errorf("queue: %w", err)
		}
		closers = append(closers, queueClient.Close)
		jctx.Queue = queueClient
		if cfg.RabbitMQPublishResults {
			p.Publisher = queueClient
		}
		utils.Logf("poster: queue connected")
	}

	if notifier := slack.NewNotifier(cfg.SlackBotToken, cfg.SlackChannel, cfg.Timeout()); notifier.Enabled() {
		p.Notifier = notifier
	}

	return jctx, cleanup, nil
}

func runPosterGenerate(ctx context.Context, cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("poster:Generate", flag.ContinueOnError)
	template := fs.String("template", poster.TemplateTextOverlay.String(), "Prompt template: text-overlay or visual-only")
	sleep := fs.Int("sleep", 30, "Sleep time in seconds")
	queueFlag := fs.Bool("queue", false, "Process queue messages")
	once := fs.Bool("once", false, "With --queue, stop at the first empty poll")
	verbose := fs.Bool("verbose", utils.Verbose, "Verbose logging")
	urls, err := parseInterspersed(fs, args)
	if err != nil {
		return err
	}
	utils.ConfigureLogging(*verbose)

	if err := cfg.RequireXAI(); err != nil {
		return err
	}
	if !*queueFlag && len(urls) == 0 {
		return errors.New("at least one post url is required")
	}

	opts := jobs.JobOptions{Sleep: *sleep, Queue: *queueFlag, QueueOnce: *once, Template: *template}
	logJobStart("poster:Generate", opts)

	jctx, cleanup, err := newJobContext(ctx, cfg, *queueFlag)
	defer cleanup()
	if err != nil {
		return err
	}

	job := jobs.NewGeneratePosterJob()
	if opts.Queue {
		stats, err := job.Consume(ctx, jctx, opts)
		fmt.Fprintf(stdout, "queue: %d handled, %d failed\n", stats.Handled, stats.Failed)
		if err != nil {
			return err
		}
		if stats.Failed > 0 {
			return fmt.Errorf("%d of %d queued items failed", stats.Failed, stats.Handled)
		}
		return nil
	}

	batch, err := job.Run(ctx, jctx, opts, urls)
	printBatchSummary(stdout, batch)
	if err != nil {
		return err
	}
	if failed := batch.Failed(); failed > 0 {
		return fmt.Errorf("%d of %d items failed", failed, len(batch.Items))
	}
	return nil
}

func runVideoGenerate(ctx context.Context, cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("video:Generate", flag.ContinueOnError)
	verbose := fs.Bool("verbose", utils.Verbose, "Verbose logging")
	words, err := parseInterspersed(fs, args)
	if err != nil {
		return err
	}
	utils.ConfigureLogging(*verbose)

	prompt := strings.TrimSpace(strings.Join(words, " "))
	if prompt == "" {
		return errors.New("prompt is required")
	}
	return runVideo(ctx, cfg, "video:Generate", prompt, "")
}

func runVideoEdit(ctx context.Context, cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("video:Edit", flag.ContinueOnError)
	verbose := fs.Bool("verbose", utils.Verbose, "Verbose logging")
	words, err := parseInterspersed(fs, args)
	if err != nil {
		return err
	}
	utils.ConfigureLogging(*verbose)

	if len(words) < 2 {
		return errors.New("usage: video:Edit <video_url> <prompt>")
	}
	sourceURL := strings.TrimSpace(words[0])
	prompt := strings.TrimSpace(strings.Join(words[1:], " "))
	if sourceURL == "" || prompt == "" {
		return errors.New("video url and prompt are required")
	}
	return runVideo(ctx, cfg, "video:Edit", prompt, sourceURL)
}

func runVideo(ctx context.Context, cfg config.Config, name, prompt, sourceURL string) error {
	if err := cfg.RequireXAI(); err != nil {
		return err
	}
	logJobStart(name, jobs.JobOptions{})

	jctx, cleanup, err := newJobContext(ctx, cfg, false)
	defer cleanup()
	if err != nil {
		return err
	}

	job := jobs.NewGenerateVideoJob()
	item, err := job.Run(ctx, jctx, prompt, sourceURL)
	if err != nil {
		return err
	}
	printBatchSummary(stdout, pipeline.BatchResult{Items: []pipeline.ItemResult{item}})
	return item.Err
}

func runPosterList(ctx context.Context, cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("poster:List", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "Number of runs to show")
	verbose := fs.Bool("verbose", utils.Verbose, "Verbose logging")
	if err := fs.Parse(args); err != nil {
		return err
	}
	utils.ConfigureLogging(*verbose)

	ledger, err := db.Open(ctx, db.Options{
		Driver:     cfg.LedgerDriver,
		Path:       cfg.LedgerPath,
		ConnString: cfg.DBConnString(),
	})
	if err != nil {
		return fmt.Errorf("ledger: %w", err)
	}
	defer ledger.Close()

	runs, err := ledger.ListRuns(ctx, *limit)
	if err != nil {
		return err
	}
	printRuns(stdout, runs)
	return nil
}

func runGrokChat(ctx context.Context, cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("grok:Chat", flag.ContinueOnError)
	useHTTP := fs.Bool("http", false, "Use the plain HTTP transport instead of the SDK")
	verbose := fs.Bool("verbose", utils.Verbose, "Verbose logging")
	words, err := parseInterspersed(fs, args)
	if err != nil {
		return err
	}
	utils.ConfigureLogging(*verbose)

	message := strings.TrimSpace(strings.Join(words, " "))
	if message == "" {
		return errors.New("message is required")
	}
	if err := cfg.RequireXAI(); err != nil {
		return err
	}

	settings := pipeline.GrokSettings(cfg)
	var chat grok.Completer = grok.NewSDKChat(settings)
	if *useHTTP {
		chat = grok.NewHTTPChat(settings)
	}
	reply, err := chat.Complete(ctx, message)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, reply)
	return nil
}

func printBatchSummary(w io.Writer, batch pipeline.BatchResult) {
	for i, item := range batch.Items {
		if item.OK() {
			fmt.Fprintf(w, "[%d] ok      %s -> %s\n", i+1, item.Input, item.Record.FilePath)
			for _, warning := range item.Warnings {
				fmt.Fprintf(w, "      warning: %s\n", warning)
			}
			continue
		}
		fmt.Fprintf(w, "[%d] failed  %s (stage=%s): %v\n", i+1, item.Input, item.FailedAt, item.Err)
	}
	fmt.Fprintf(w, "%d succeeded, %d failed\n", batch.Succeeded(), batch.Failed())
}

func printRuns(w io.Writer, runs []db.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "no runs recorded")
		return
	}
	for _, run := range runs {
		target := run.FilePath
		if run.Status != "persisted" {
			target = run.Error
		}
		fmt.Fprintf(w, "%s  %-9s %-5s %-20s %s\n",
			run.CreatedAt.Format("2006-01-02 15:04:05"),
			run.Status,
			run.MediaKind,
			run.PostID,
			target,
		)
	}
}

func logJobStart(name string, opts jobs.JobOptions) {
	utils.Logf("start %s queue=%t once=%t sleep=%d template=%s", name, opts.Queue, opts.QueueOnce, opts.Sleep, opts.Template)
}

func printUsage() {
	w := stdout
	fmt.Fprintln(w, "Usage: poster <command> [args]")
	fmt.Fprintln(w, "Global flags:")
	fmt.Fprintln(w, "  --verbose   Enable diagnostic logging (can appear before or after the command).")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  poster:Generate <post_url>... [--template=text-overlay|visual-only] [--verbose]")
	fmt.Fprintln(w, "  poster:Generate --queue [--sleep=N] [--once] [--template=...] [--verbose]")
	fmt.Fprintln(w, "  poster:List [--limit=N] [--verbose]")
	fmt.Fprintln(w, "  video:Generate <prompt> [--verbose]")
	fmt.Fprintln(w, "  video:Edit <video_url> <prompt> [--verbose]")
	fmt.Fprintln(w, "  grok:Chat <message> [--http] [--verbose]")
	fmt.Fprintln(w, "  ledger:Migrate [up] [--dir=migrations] [--dry-run] [--verbose]")
}
