package cli

import (
	"bytes"
	"encoding/json"
	"flag"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"jobposters/poster-go/internal/db"
	"jobposters/poster-go/internal/pipeline"
	"jobposters/poster-go/internal/persist"
	"jobposters/poster-go/internal/utils"
)

func init() {
	utils.SetLogOutput(io.Discard)
}

func captureStdout(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := stdout
	stdout = &buf
	t.Cleanup(func() { stdout = prev })
	return &buf
}

// isolateConfig points Load at files that may not exist and blanks the
// environment fallbacks.
func isolateConfig(t *testing.T, ini string) string {
	t.Helper()
	dir := t.TempDir()
	for _, key := range []string{
		"POSTER_OUTPUT_FOLDER", "X_BEARER_TOKEN", "X_API_BASE", "XAI_API_KEY", "XAI_API_BASE",
		"DATABASE_URL", "SLACK_BOT_TOKEN", "SLACK_CHANNEL",
	} {
		t.Setenv(key, "")
	}
	t.Setenv("POSTER_DOTENV", filepath.Join(dir, "missing.env"))
	path := filepath.Join(dir, "config.ini")
	if ini != "" {
		if err := os.WriteFile(path, []byte(ini), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	t.Setenv("POSTER_CONFIG", path)
	return dir
}

func TestExtractGlobalVerbose(t *testing.T) {
	cases := []struct {
		in      []string
		out     []string
		verbose bool
	}{
		{[]string{"poster", "poster:List"}, []string{"poster", "poster:List"}, false},
		{[]string{"poster", "--verbose", "poster:List"}, []string{"poster", "poster:List"}, true},
		{[]string{"poster", "poster:List", "-verbose"}, []string{"poster", "poster:List"}, true},
		{[]string{"poster", "poster:List", "--verbose=false"}, []string{"poster", "poster:List"}, false},
		{[]string{"poster", "--verbose=nope", "poster:List"}, []string{"poster", "poster:List"}, false},
	}
	for _, tc := range cases {
		out, verbose := extractGlobalVerbose(tc.in)
		if !reflect.DeepEqual(out, tc.out) || verbose != tc.verbose {
			t.Errorf("extractGlobalVerbose(%v) = %v, %t; want %v, %t", tc.in, out, verbose, tc.out, tc.verbose)
		}
	}
}

func TestParseInterspersed(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	template := fs.String("template", "text-overlay", "")
	queueFlag := fs.Bool("queue", false, "")

	args := []string{"https://x.com/a/status/1", "--template=visual-only", "https://x.com/b/status/2", "--queue", "--", "--not-a-flag"}
	got, err := parseInterspersed(fs, args)
	if err != nil {
		t.Fatalf("parseInterspersed: %v", err)
	}
	want := []string{"https://x.com/a/status/1", "https://x.com/b/status/2", "--not-a-flag"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("positional = %v, want %v", got, want)
	}
	if *template != "visual-only" || !*queueFlag {
		t.Errorf("flags not parsed: template=%q queue=%t", *template, *queueFlag)
	}

	bad := flag.NewFlagSet("bad", flag.ContinueOnError)
	bad.SetOutput(io.Discard)
	if _, err := parseInterspersed(bad, []string{"url", "--unknown"}); err == nil {
		t.Errorf("expected error for unknown flag")
	}
}

func TestRunUsageAndUnknownCommand(t *testing.T) {
	isolateConfig(t, "")

	if code := Run([]string{"poster"}); code != 1 {
		t.Errorf("no command exit = %d, want 1", code)
	}
	buf := captureStdout(t)
	if code := Run([]string{"poster", "help"}); code != 0 {
		t.Errorf("help exit = %d, want 0", code)
	}
	if !strings.Contains(buf.String(), "poster:Generate <post_url>") || !strings.Contains(buf.String(), "ledger:Migrate") {
		t.Errorf("usage not written to stdout: %q", buf.String())
	}
	if code := Run([]string{"poster", "poster:Nope"}); code != 1 {
		t.Errorf("unknown command exit = %d, want 1", code)
	}
}

func TestLedgerMigrateNeedsPostgres(t *testing.T) {
	dir := isolateConfig(t, "[ledger]\ndriver = sqlite\n")
	t.Setenv("POSTER_OUTPUT_FOLDER", filepath.Join(dir, "out"))

	if code := Run([]string{"poster", "ledger:Migrate", "--dry-run"}); code != 1 {
		t.Fatalf("exit = %d, want 1 for the sqlite ledger", code)
	}
}

func TestGenerateRequiresAPIKey(t *testing.T) {
	dir := isolateConfig(t, "")
	t.Setenv("POSTER_OUTPUT_FOLDER", filepath.Join(dir, "out"))

	if code := Run([]string{"poster", "poster:Generate", "https://x.com/a/status/1"}); code != 1 {
		t.Fatalf("exit = %d, want 1", code)
	}
	if _, err := os.Stat(filepath.Join(dir, "out")); !os.IsNotExist(err) {
		t.Errorf("nothing should be written without credentials, stat err = %v", err)
	}
}

func TestPrintBatchSummary(t *testing.T) {
	batch := pipeline.BatchResult{Items: []pipeline.ItemResult{
		{
			Input:    "https://x.com/a/status/1",
			Stage:    pipeline.StagePersisted,
			Record:   persist.Record{FilePath: "job_posters/1_build.jpg"},
			Warnings: []string{"fetch degraded: status=503"},
		},
		{
			Input:    "not a url",
			Stage:    pipeline.StageFailed,
			FailedAt: pipeline.StageStart,
			Err:      io.ErrUnexpectedEOF,
		},
	}}

	var buf bytes.Buffer
	printBatchSummary(&buf, batch)
	out := buf.String()
	for _, want := range []string{
		"[1] ok      https://x.com/a/status/1 -> job_posters/1_build.jpg",
		"warning: fetch degraded: status=503",
		"[2] failed  not a url (stage=start)",
		"1 succeeded, 1 failed",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestPrintRunsEmpty(t *testing.T) {
	var buf bytes.Buffer
	printRuns(&buf, nil)
	if strings.TrimSpace(buf.String()) != "no runs recorded" {
		t.Errorf("output = %q", buf.String())
	}

	buf.Reset()
	printRuns(&buf, []db.Run{{
		PostID:    "123",
		Status:    "failed",
		MediaKind: "image",
		Error:     "generation failed",
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}})
	if !strings.Contains(buf.String(), "2026-01-02 03:04:05  failed") || !strings.Contains(buf.String(), "generation failed") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestGenerateBatchThenList(t *testing.T) {
	assets := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "asset:"+r.URL.Path)
	}))
	defer assets.Close()

	xsrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"data":{"text":"Looking for a plumber"},"includes":{"users":[{"username":"someone"}]}}`)
	}))
	defer xsrv.Close()

	xai := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/chat/completions":
			reply, _ := json.Marshal(map[string]any{
				"id": "c1", "object": "chat.completion", "created": 1, "model": "grok-2-latest",
				"choices": []map[string]any{{
					"index": 0, "finish_reason": "stop",
					"message": map[string]any{"role": "assistant", "content": `{"job_type":"Plumber"}`},
				}},
			})
			_, _ = w.Write(reply)
		case "/v1/images/generations":
			_, _ = io.WriteString(w, `{"data":[{"url":"`+assets.URL+`/poster.jpg"}]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer xai.Close()

	dir := t.TempDir()
	out := filepath.Join(dir, "out")
	isolateConfig(t, strings.Join([]string{
		"[app]",
		"output_folder = " + out,
		"timeout_seconds = 5",
		"[x]",
		"bearer_token = tok",
		"api_base = " + xsrv.URL,
		"[xai]",
		"api_key = key",
		"api_base = " + xai.URL + "/v1",
	}, "\n"))

	buf := captureStdout(t)
	code := Run([]string{"poster", "poster:Generate", "https://x.com/someone/status/42", "not a url", "--template=visual-only"})
	if code != 1 {
		t.Fatalf("exit = %d, want 1 when one item fails", code)
	}
	if !strings.Contains(buf.String(), "1 succeeded, 1 failed") {
		t.Errorf("summary = %q", buf.String())
	}
	entries, err := os.ReadDir(out)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	var jpgs, sidecars int
	for _, e := range entries {
		switch filepath.Ext(e.Name()) {
		case ".jpg":
			jpgs++
		case ".json":
			sidecars++
		}
	}
	if jpgs != 1 || sidecars != 1 {
		t.Errorf("found %d jpg and %d json files, want 1 each", jpgs, sidecars)
	}

	buf.Reset()
	if code := Run([]string{"poster", "poster:List", "--limit=5"}); code != 0 {
		t.Fatalf("poster:List exit = %d", code)
	}
	listing := buf.String()
	if !strings.Contains(listing, "persisted") || !strings.Contains(listing, "failed") {
		t.Errorf("listing = %q", listing)
	}
	if !strings.Contains(listing, "42") {
		t.Errorf("listing missing post id: %q", listing)
	}
}
