package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// GridAPI is the server as seen by a Controller.
type GridAPI interface {
	Fetch(ctx context.Context) (Grid, error)
	Save(ctx context.Context, ids []int) (Grid, error)
	Reset(ctx context.Context) (Grid, error)
}

// StatusError reports a non-2xx answer from the grid server.
type StatusError struct {
	Op   string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: server answered %d %s", e.Op, e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("%s: server answered %d %s: %s", e.Op, e.Code, http.StatusText(e.Code), e.Body)
}

const maxErrorBody = 512

// Client talks to the grid server at a fixed base address.
type Client struct {
	base *url.URL
	http *http.Client
}

func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q: scheme must be http or https", baseURL)
	}

	return &Client{
		base: u,
		http: &http.Client{Timeout: timeout},
	}, nil
}

func (c *Client) Fetch(ctx context.Context) (Grid, error) {
	return c.do(ctx, "fetch grid", http.MethodGet, "/game", nil)
}

func (c *Client) Save(ctx context.Context, ids []int) (Grid, error) {
	if ids == nil {
		ids = []int{}
	}
	body, err := json.Marshal(ids)
	if err != nil {
		return nil, fmt.Errorf("save grid: encode ids: %w", err)
	}
	return c.do(ctx, "save grid", http.MethodPatch, "/game", body)
}

func (c *Client) Reset(ctx context.Context) (Grid, error) {
	return c.do(ctx, "reset grid", http.MethodDelete, "/reset", nil)
}

func (c *Client) do(ctx context.Context, op, method, path string, body []byte) (Grid, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.JoinPath(path).String(), rd)
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{
			Op:   op,
			Code: resp.StatusCode,
			Body: strings.TrimSpace(string(msg)),
		}
	}

	var grid Grid
	if err := json.NewDecoder(resp.Body).Decode(&grid); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", op, err)
	}
	return grid, nil
}

// LocalAPI serves a Controller straight from an in-process Game.
type LocalAPI struct {
	game *Game
}

func NewLocalAPI(game *Game) *LocalAPI {
	return &LocalAPI{game: game}
}

func (l *LocalAPI) Fetch(context.Context) (Grid, error) {
	grid, _ := l.game.Snapshot()
	return grid, nil
}

func (l *LocalAPI) Save(ctx context.Context, ids []int) (Grid, error) {
	return l.game.Toggle(ctx, ids)
}

func (l *LocalAPI) Reset(ctx context.Context) (Grid, error) {
	return l.game.Reset(ctx)
}
