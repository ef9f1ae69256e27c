// Package persist downloads generated assets and writes them next to a JSON
// sidecar describing where they came from.
package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"jobposters/poster-go/internal/media"
	"jobposters/poster-go/internal/poster"
	"jobposters/poster-go/internal/utils"
	"jobposters/poster-go/internal/xapi"

	"github.com/google/uuid"
)

var ErrDownload = errors.New("download failed")

type DownloadError struct {
	URL    string
	Status int
	Err    error
}

func (e *DownloadError) Error() string {
	msg := "download " + e.URL
	if e.Status != 0 {
		msg += fmt.Sprintf(" status=%d", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DownloadError) Unwrap() error { return e.Err }

func (e *DownloadError) Is(target error) bool { return target == ErrDownload }

type Request struct {
	Asset media.Asset
	Post  xapi.Post
	// Dir overrides the persister's output folder.
	Dir            string
	Template       string
	Analysis       *poster.VisualAnalysis
	FetchStatus    string
	AnalysisStatus string
}

type Record struct {
	RunID        string    `json:"run_id"`
	FilePath     string    `json:"file_path"`
	MetadataPath string    `json:"metadata_path"`
	Post         xapi.Post `json:"job_data"`
	RemoteURL    string    `json:"remote_url"`
	Bytes        int       `json:"bytes"`
	SHA256       string    `json:"sha256"`
	Width        int       `json:"width,omitempty"`
	Height       int       `json:"height,omitempty"`
}

type sidecar struct {
	RunID          string                 `json:"run_id"`
	GeneratedAt    string                 `json:"generated_at"`
	JobData        xapi.Post              `json:"job_data"`
	RemoteURL      string                 `json:"remote_url"`
	FilePath       string                 `json:"file_path"`
	MediaKind      media.Kind             `json:"media_kind"`
	Model          string                 `json:"model"`
	Prompt         string                 `json:"prompt"`
	Template       string                 `json:"template,omitempty"`
	Analysis       *poster.VisualAnalysis `json:"analysis,omitempty"`
	FetchStatus    string                 `json:"fetch_status,omitempty"`
	AnalysisStatus string                 `json:"analysis_status,omitempty"`
	SourceURL      string                 `json:"source_url,omitempty"`
	Bytes          int                    `json:"bytes"`
	SHA256         string                 `json:"sha256"`
	ContentType    string                 `json:"content_type,omitempty"`
	Width          int                    `json:"width,omitempty"`
	Height         int                    `json:"height,omitempty"`
}

type Persister struct {
	Dir        string
	HTTPClient *http.Client
	now        func() time.Time
}

func NewPersister(dir string, timeout time.Duration) *Persister {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Persister{
		Dir:        dir,
		HTTPClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}
}

// Persist downloads the asset and writes it plus its sidecar. Nothing is
// written unless the whole body was received.
func (p *Persister) Persist(ctx context.Context, req Request) (Record, error) {
	dir := req.Dir
	if dir == "" {
		dir = p.Dir
	}
	name := Filename(req.Post.ID, req.Post.Text, req.Asset.Kind)
	filePath := filepath.Join(dir, name)
	metaPath := strings.TrimSuffix(filePath, filepath.Ext(filePath)) + ".json"

	data, contentType, err := p.download(ctx, req.Asset.URL)
	if err != nil {
		return Record{}, err
	}

	rec := Record{
		RunID:        uuid.NewString(),
		FilePath:     filePath,
		MetadataPath: metaPath,
		Post:         req.Post,
		RemoteURL:    req.Asset.URL,
		Bytes:        len(data),
		SHA256:       utils.SHA256Bytes(data),
	}
	if req.Asset.Kind == media.KindImage {
		if w, h, format, ok := imageInfo(data); ok {
			rec.Width, rec.Height = w, h
			utils.Debug("image decoded", "format", format, "width", w, "height", h)
		} else {
			utils.Warn("downloaded image could not be decoded", "url", req.Asset.URL, "content_type", contentType)
		}
	}

	now := time.Now
	if p.now != nil {
		now = p.now
	}
	meta := sidecar{
		RunID:          rec.RunID,
		GeneratedAt:    now().UTC().Format(time.RFC3339),
		JobData:        req.Post,
		RemoteURL:      req.Asset.URL,
		FilePath:       filePath,
		MediaKind:      req.Asset.Kind,
		Model:          req.Asset.Model,
		Prompt:         req.Asset.Prompt,
		Template:       req.Template,
		Analysis:       req.Analysis,
		FetchStatus:    req.FetchStatus,
		AnalysisStatus: req.AnalysisStatus,
		SourceURL:      req.Asset.SourceURL,
		Bytes:          rec.Bytes,
		SHA256:         rec.SHA256,
		ContentType:    contentType,
		Width:          rec.Width,
		Height:         rec.Height,
	}
	encoded, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return Record{}, err
	}
	if err := writePair(filePath, data, metaPath, append(encoded, '\n')); err != nil {
		return Record{}, &DownloadError{URL: req.Asset.URL, Err: err}
	}

	utils.Info("asset saved", "file", filePath, "bytes", rec.Bytes)
	return rec, nil
}

// writePair stages both files, then moves the asset and the sidecar into
// place. If the sidecar cannot be placed the previous asset is restored, so
// the pair on disk is always either the old record or the new one.
func writePair(assetPath string, asset []byte, metaPath string, meta []byte) error {
	assetTmp, err := utils.StageFile(assetPath, asset, 0o644)
	if err != nil {
		return fmt.Errorf("write asset: %w", err)
	}
	defer os.Remove(assetTmp)
	metaTmp, err := utils.StageFile(metaPath, meta, 0o644)
	if err != nil {
		return fmt.Errorf("write sidecar: %w", err)
	}
	defer os.Remove(metaTmp)

	backup := ""
	if utils.FileExists(assetPath) {
		backup = assetTmp + ".prev"
		if err := os.Rename(assetPath, backup); err != nil {
			return fmt.Errorf("set aside previous asset: %w", err)
		}
	}
	restore := func() {
		if backup == "" {
			_ = os.Remove(assetPath)
			return
		}
		if err := os.Rename(backup, assetPath); err != nil {
			utils.Error("previous asset could not be restored", "file", assetPath, "backup", backup, "err", err)
		}
	}

	if err := os.Rename(assetTmp, assetPath); err != nil {
		restore()
		return fmt.Errorf("write asset: %w", err)
	}
	if err := os.Rename(metaTmp, metaPath); err != nil {
		restore()
		return fmt.Errorf("write sidecar: %w", err)
	}
	if backup != "" {
		_ = os.Remove(backup)
	}
	return nil
}

func (p *Persister) download(ctx context.Context, url string) ([]byte, string, error) {
	if strings.TrimSpace(url) == "" {
		return nil, "", &DownloadError{URL: url, Err: errors.New("url missing")}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", &DownloadError{URL: url, Err: err}
	}
	client := p.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	utils.Debug("download", "url", url)
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", &DownloadError{URL: url, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, "", &DownloadError{
			URL:    url,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("body=%s", strings.TrimSpace(string(body))),
		}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", &DownloadError{URL: url, Err: err}
	}
	return data, resp.Header.Get("Content-Type"), nil
}
