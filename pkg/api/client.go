// Package api is the typed HTTP client for the Arbor server. All calls are
// same-origin style: credentialed with a session cookie jar plus an optional
// bearer token. Timeouts are owned by the caller through context deadlines;
// the client itself never retries or degrades — that is the sync engine's job.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"github.com/arbornotes/arbor/pkg/models"
)

// ErrNotFound is returned when the server reports a missing article.
var ErrNotFound = errors.New("article not found")

// StatusError is a non-2xx server response.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Body)
}

// Client talks to one Arbor server.
type Client struct {
	baseURL *url.URL
	token   string
	http    *http.Client
}

// New creates a client for the given base URL. An empty token disables the
// Authorization header; cookie-based sessions still work through the jar.
func New(baseURL, token string) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	return &Client{
		baseURL: u,
		token:   token,
		http:    &http.Client{Jar: jar},
	}, nil
}

// FetchIndex returns the full article index.
func (c *Client) FetchIndex(ctx context.Context) ([]models.IndexEntry, error) {
	var entries []models.IndexEntry
	if err := c.do(ctx, http.MethodGet, "/api/articles", nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// FetchArticle returns one article with its full content tree.
func (c *Client) FetchArticle(ctx context.Context, id string) (*models.Article, error) {
	var a models.Article
	path := fmt.Sprintf("/api/articles/%s?include_history=0", url.PathEscape(id))
	if err := c.do(ctx, http.MethodGet, path, nil, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// FetchMeta returns only the freshness metadata for an article.
func (c *Client) FetchMeta(ctx context.Context, id string) (*models.Meta, error) {
	var m models.Meta
	path := fmt.Sprintf("/api/articles/%s/meta", url.PathEscape(id))
	if err := c.do(ctx, http.MethodGet, path, nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// SaveResult is the server's acknowledgement of a document save.
type SaveResult struct {
	UpdatedAt string `json:"updatedAt"`
}

type saveDocRequest struct {
	DocJSON                   *models.DocNode `json:"docJson"`
	CreateVersionIfStaleHours int             `json:"createVersionIfStaleHours"`
}

// SaveDoc replaces an article's content tree.
func (c *Client) SaveDoc(ctx context.Context, id string, doc *models.DocNode, createVersionIfStaleHours int) (*SaveResult, error) {
	var res SaveResult
	path := fmt.Sprintf("/api/articles/%s/doc-json/save", url.PathEscape(id))
	body := saveDocRequest{DocJSON: doc, CreateVersionIfStaleHours: createVersionIfStaleHours}
	if err := c.do(ctx, http.MethodPut, path, body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Move swaps an article with its previous or next sibling.
// Direction is "up" or "down".
func (c *Client) Move(ctx context.Context, id, direction string) error {
	path := fmt.Sprintf("/api/articles/%s/move", url.PathEscape(id))
	return c.do(ctx, http.MethodPost, path, map[string]string{"direction": direction}, nil)
}

// Indent reparents an article under its preceding sibling.
func (c *Client) Indent(ctx context.Context, id string) error {
	path := fmt.Sprintf("/api/articles/%s/indent", url.PathEscape(id))
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

// Outdent reparents an article under its grandparent.
func (c *Client) Outdent(ctx context.Context, id string) error {
	path := fmt.Sprintf("/api/articles/%s/outdent", url.PathEscape(id))
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

// MoveTreeRequest describes a subtree relocation. Exactly one of ParentID or
// AnchorID should be set; Placement is "before", "after" or "inside".
type MoveTreeRequest struct {
	ParentID  *string `json:"parentId,omitempty"`
	AnchorID  string  `json:"anchorId,omitempty"`
	Placement string  `json:"placement"`
}

// MoveTree relocates an article subtree.
func (c *Client) MoveTree(ctx context.Context, id string, req MoveTreeRequest) error {
	path := fmt.Sprintf("/api/articles/%s/move-tree", url.PathEscape(id))
	return c.do(ctx, http.MethodPost, path, req, nil)
}

// Create creates a new article.
func (c *Client) Create(ctx context.Context, a *models.Article) (*models.Article, error) {
	var created models.Article
	if err := c.do(ctx, http.MethodPost, "/api/articles", a, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// Delete soft-deletes an article on the server.
func (c *Client) Delete(ctx context.Context, id string) error {
	path := fmt.Sprintf("/api/articles/%s", url.PathEscape(id))
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
