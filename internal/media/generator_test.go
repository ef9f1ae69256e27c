package media

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"jobposters/poster-go/internal/grok"
	"jobposters/poster-go/internal/utils"
)

func init() {
	utils.SetLogOutput(io.Discard)
}

func TestExtractURLPrecedence(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
		ok   bool
	}{
		{"top level", `{"url":"https://cdn/a.jpg","data":[{"url":"https://cdn/b.jpg"}]}`, "https://cdn/a.jpg", true},
		{"data list", `{"data":[{"url":"https://cdn/b.jpg"}]}`, "https://cdn/b.jpg", true},
		{"videos list", `{"videos":[{"url":"https://cdn/v.mp4"}],"video":{"url":"https://cdn/w.mp4"}}`, "https://cdn/v.mp4", true},
		{"images list", `{"images":[{"url":"https://cdn/i.jpg"}]}`, "https://cdn/i.jpg", true},
		{"named video", `{"video":{"url":"https://cdn/e.mp4"}}`, "https://cdn/e.mp4", true},
		{"named image", `{"image":{"url":"https://cdn/n.jpg"}}`, "https://cdn/n.jpg", true},
		{"empty url skipped", `{"url":"","data":[{"url":"https://cdn/b.jpg"}]}`, "https://cdn/b.jpg", true},
		{"none", `{"data":[{"b64_json":"abc"}]}`, "", false},
		{"not json", `oops`, "", false},
	}
	for _, tc := range cases {
		got, ok := ExtractURL([]byte(tc.body))
		if got != tc.want || ok != tc.ok {
			t.Errorf("%s: ExtractURL = %q, %v; want %q, %v", tc.name, got, ok, tc.want, tc.ok)
		}
	}
}

func newTestGenerator(t *testing.T, handler http.HandlerFunc) *Generator {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewGenerator(grok.Settings{APIKey: "key", BaseURL: srv.URL + "/v1", Timeout: 5 * time.Second}, "", "")
}

func TestGenerateImage(t *testing.T) {
	var got map[string]any
	g := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/images/generations" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer key" {
			t.Errorf("Authorization = %q", auth)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"data":[{"url":"https://cdn/poster.jpg"}]}`)
	})

	asset, err := g.Generate(context.Background(), "a dark poster", KindImage)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if asset.URL != "https://cdn/poster.jpg" || asset.Kind != KindImage || asset.Model != DefaultImageModel {
		t.Errorf("asset = %+v", asset)
	}
	if got["model"] != DefaultImageModel || got["prompt"] != "a dark poster" {
		t.Errorf("request body = %v", got)
	}
}

func TestGenerateVideoAndEdit(t *testing.T) {
	g := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/videos/generations":
			_, _ = io.WriteString(w, `{"videos":[{"url":"https://cdn/dragon.mp4"}]}`)
		case "/v1/videos/edits":
			var body struct {
				Video struct {
					URL string `json:"url"`
				} `json:"video"`
				Model string `json:"model"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body.Video.URL != "https://cdn/dragon.mp4" || body.Model != DefaultVideoModel {
				t.Errorf("edit body = %+v", body)
			}
			_, _ = io.WriteString(w, `{"video":{"url":"https://cdn/winter.mp4"}}`)
		default:
			http.NotFound(w, r)
		}
	})

	video, err := g.Generate(context.Background(), "a dragon", KindVideo)
	if err != nil {
		t.Fatalf("Generate video: %v", err)
	}
	if video.URL != "https://cdn/dragon.mp4" {
		t.Errorf("video url = %q", video.URL)
	}

	edited, err := g.Edit(context.Background(), "winter wonderland", video.URL)
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if edited.URL != "https://cdn/winter.mp4" || edited.SourceURL != video.URL {
		t.Errorf("edited = %+v", edited)
	}
}

func TestGenerateFailures(t *testing.T) {
	t.Run("no url", func(t *testing.T) {
		g := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"data":[{"revised_prompt":"x"}]}`)
		})
		_, err := g.Generate(context.Background(), "p", KindImage)
		if !errors.Is(err, ErrGeneration) {
			t.Fatalf("err = %v, want ErrGeneration", err)
		}
	})

	t.Run("provider error", func(t *testing.T) {
		calls := 0
		g := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
			calls++
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error":{"message":"prompt rejected"}}`)
		})
		_, err := g.Generate(context.Background(), "p", KindImage)
		var genErr *GenerationError
		if !errors.As(err, &genErr) {
			t.Fatalf("err = %v, want *GenerationError", err)
		}
		if genErr.Status != http.StatusBadRequest {
			t.Errorf("Status = %d", genErr.Status)
		}
		if calls != 1 {
			t.Errorf("calls = %d, want 1", calls)
		}
	})

	t.Run("edit without source", func(t *testing.T) {
		g := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
			t.Errorf("no request expected")
		})
		if _, err := g.Edit(context.Background(), "p", " "); !errors.Is(err, ErrGeneration) {
			t.Fatalf("err = %v, want ErrGeneration", err)
		}
	})
}

func TestKindExt(t *testing.T) {
	if KindImage.Ext() != "jpg" || KindVideo.Ext() != "mp4" {
		t.Errorf("Ext = %q / %q", KindImage.Ext(), KindVideo.Ext())
	}
}
