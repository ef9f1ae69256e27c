// Package xapi resolves post references from URLs and looks up post text on
// the X v2 API.
package xapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"jobposters/poster-go/internal/outcome"
	"jobposters/poster-go/internal/utils"

	"github.com/tidwall/gjson"
)

const (
	DefaultBaseURL = "https://api.x.com"

	// PlaceholderText stands in for the post body when the lookup fails.
	PlaceholderText   = "Need someone to teach A levels physics"
	PlaceholderAuthor = "unknown"
)

var ErrInvalidReference = errors.New("invalid post reference")

var statusPattern = regexp.MustCompile(`status/(\d+)`)

type Reference struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type Post struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	Author     string `json:"author"`
	URL        string `json:"url"`
	AuthorName string `json:"author_name,omitempty"`
	CreatedAt  string `json:"created_at,omitempty"`
}

// Resolve extracts the numeric post id from a status URL.
func Resolve(rawURL string) (Reference, error) {
	rawURL = strings.TrimSpace(rawURL)
	match := statusPattern.FindStringSubmatch(rawURL)
	if match == nil {
		return Reference{}, fmt.Errorf("%w: no status id in %q", ErrInvalidReference, rawURL)
	}
	return Reference{ID: match[1], URL: rawURL}, nil
}

// Placeholder is the post used when the lookup cannot produce one.
func Placeholder(ref Reference) Post {
	return Post{
		ID:     ref.ID,
		URL:    ref.URL,
		Text:   PlaceholderText,
		Author: PlaceholderAuthor,
	}
}

type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// Fetch looks up the post. It never fails: any error degrades to the
// placeholder post carrying ref's id.
func (c *Client) Fetch(ctx context.Context, ref Reference) outcome.Outcome[Post] {
	post, err := c.lookup(ctx, ref)
	if err != nil {
		utils.Warn("post lookup failed, using placeholder", "id", ref.ID, "reason", err)
		return outcome.Degraded(Placeholder(ref), err)
	}
	utils.Info("post fetched", "id", post.ID, "author", post.Author, "text", utils.Preview(post.Text, 60))
	return outcome.Ok(post)
}

func (c *Client) lookup(ctx context.Context, ref Reference) (Post, error) {
	if c.Token == "" {
		utils.Warn("x bearer token missing; lookup will likely be rejected")
	}
	u, err := url.Parse(c.BaseURL + "/2/tweets/" + url.PathEscape(ref.ID))
	if err != nil {
		return Post{}, err
	}
	q := u.Query()
	q.Set("tweet.fields", "text,created_at,author_id")
	q.Set("expansions", "author_id")
	q.Set("user.fields", "username,name")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Post{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	utils.Debug("x lookup", "url", u.String())
	resp, err := client.Do(req)
	if err != nil {
		return Post{}, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Post{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Post{}, fmt.Errorf("x lookup status=%d body=%s", resp.StatusCode, utils.Preview(strings.TrimSpace(string(body)), 200))
	}
	return parseLookup(ref, body)
}

func parseLookup(ref Reference, body []byte) (Post, error) {
	if !gjson.ValidBytes(body) {
		return Post{}, errors.New("x lookup: response is not valid json")
	}
	parsed := gjson.ParseBytes(body)
	text := parsed.Get("data.text")
	username := parsed.Get("includes.users.0.username")
	if !text.Exists() {
		return Post{}, errors.New("x lookup: data.text missing")
	}
	if !username.Exists() {
		return Post{}, errors.New("x lookup: includes.users.0.username missing")
	}
	return Post{
		ID:         ref.ID,
		URL:        ref.URL,
		Text:       text.String(),
		Author:     username.String(),
		AuthorName: parsed.Get("includes.users.0.name").String(),
		CreatedAt:  parsed.Get("data.created_at").String(),
	}, nil
}
