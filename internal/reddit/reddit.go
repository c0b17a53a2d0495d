// Package reddit implements the content-platform side of collection against
// Reddit's public JSON endpoints.
package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pulse/internal/core"
)

// Client talks to the Reddit JSON search API. It carries no rate-limit state
// of its own; the collector's limiter paces every call.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
}

// Option mutates a Client during construction.
type Option func(*Client)

// WithBaseURL points the client at a different host, used by tests.
func WithBaseURL(base string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(base, "/") }
}

// WithTimeout overrides the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// NewClient creates a Reddit client with a descriptive user agent, which the
// platform requires for unauthenticated JSON access.
func NewClient(userAgent string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    "https://www.reddit.com",
		userAgent:  userAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// listing mirrors the envelope Reddit wraps around every result set.
type listing struct {
	Data struct {
		Children []struct {
			Kind string  `json:"kind"`
			Data payload `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// payload holds the fields shared by posts (t3) and comments (t1).
type payload struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Selftext    string  `json:"selftext"`
	Body        string  `json:"body"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
	CreatedUTC  float64 `json:"created_utc"`
	Author      string  `json:"author"`
	Subreddit   string  `json:"subreddit"`
	Permalink   string  `json:"permalink"`
	UpvoteRatio float64 `json:"upvote_ratio"`
}

// Search returns posts matching a keyword under one sampling vector.
func (c *Client) Search(ctx context.Context, keyword string, vector core.CollectionVector) ([]core.ContentItem, error) {
	params := url.Values{}
	params.Set("q", keyword)
	params.Set("sort", vector.SortOrder)
	params.Set("t", vector.TimeWindow)
	params.Set("limit", fmt.Sprintf("%d", vector.Limit))
	params.Set("raw_json", "1")

	var result listing
	if err := c.getJSON(ctx, "/search.json?"+params.Encode(), &result); err != nil {
		return nil, fmt.Errorf("search %q (%s): %w", keyword, vector.Name, err)
	}

	items := make([]core.ContentItem, 0, len(result.Data.Children))
	for _, child := range result.Data.Children {
		if child.Kind != "t3" {
			continue
		}
		items = append(items, c.postToItem(child.Data))
	}
	return items, nil
}

// Comments returns the top-level comments under a post.
func (c *Client) Comments(ctx context.Context, postID string, limit int) ([]core.ContentItem, error) {
	path := fmt.Sprintf("/comments/%s.json?limit=%d&depth=1&sort=top&raw_json=1", postID, limit)

	// The comments endpoint answers with a two-element array: the post
	// listing, then the comment listing.
	var result []listing
	if err := c.getJSON(ctx, path, &result); err != nil {
		return nil, fmt.Errorf("comments for %s: %w", postID, err)
	}
	if len(result) < 2 {
		return nil, nil
	}

	var items []core.ContentItem
	for _, child := range result[1].Data.Children {
		if child.Kind != "t1" || child.Data.Body == "" {
			continue
		}
		items = append(items, c.commentToItem(child.Data))
		if len(items) >= limit {
			break
		}
	}
	return items, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("request failed with status: %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) postToItem(p payload) core.ContentItem {
	ratio := p.UpvoteRatio
	if ratio == 0 {
		ratio = 0.5
	}
	return core.ContentItem{
		ID:           "t3_" + p.ID,
		Kind:         core.KindPost,
		Title:        p.Title,
		Body:         p.Selftext,
		Score:        p.Score,
		CommentCount: p.NumComments,
		CreatedAt:    time.Unix(int64(p.CreatedUTC), 0).UTC(),
		Author:       p.Author,
		CommunityID:  p.Subreddit,
		URL:          c.baseURL + p.Permalink,
		UpvoteRatio:  ratio,
		ClusterID:    -1,
	}
}

func (c *Client) commentToItem(p payload) core.ContentItem {
	return core.ContentItem{
		ID:          "t1_" + p.ID,
		Kind:        core.KindComment,
		Body:        p.Body,
		Score:       p.Score,
		CreatedAt:   time.Unix(int64(p.CreatedUTC), 0).UTC(),
		Author:      p.Author,
		CommunityID: p.Subreddit,
		URL:         c.baseURL + p.Permalink,
		UpvoteRatio: 0.5,
		ClusterID:   -1,
	}
}
