package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestClientRequests(t *testing.T) {
	type seen struct {
		method, path, contentType, accept, body string
	}
	var got []seen

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got = append(got, seen{
			method:      r.Method,
			path:        r.URL.Path,
			contentType: r.Header.Get("Content-Type"),
			accept:      r.Header.Get("Accept"),
			body:        string(body),
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[[true,false],[false,true]]`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL+"/", time.Second)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	ctx := context.Background()

	grid, err := c.Fetch(ctx)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if diff := cmp.Diff(Grid{{true, false}, {false, true}}, grid); diff != "" {
		t.Fatalf("grid mismatch (-want +got):\n%s", diff)
	}
	if _, err := c.Save(ctx, []int{1, 3}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := c.Save(ctx, nil); err != nil {
		t.Fatalf("empty save: %v", err)
	}
	if _, err := c.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}

	want := []seen{
		{method: "GET", path: "/game", accept: "application/json"},
		{method: "PATCH", path: "/game", contentType: "application/json", accept: "application/json", body: "[1,3]"},
		{method: "PATCH", path: "/game", contentType: "application/json", accept: "application/json", body: "[]"},
		{method: "DELETE", path: "/reset", accept: "application/json"},
	}
	if diff := cmp.Diff(want, got, cmp.AllowUnexported(seen{})); diff != "" {
		t.Fatalf("requests mismatch (-want +got):\n%s", diff)
	}
}

func TestClientStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		jsonError(w, "nope", http.StatusBadRequest)
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL, time.Second)
	_, err := c.Save(context.Background(), []int{99})

	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected *StatusError, got %v", err)
	}
	if se.Code != http.StatusBadRequest || se.Op != "save grid" {
		t.Fatalf("unexpected status error: %+v", se)
	}
	if !strings.Contains(se.Body, "nope") {
		t.Fatalf("expected body to carry the server message, got %q", se.Body)
	}
}

func TestClientMalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"not":"a grid"`))
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL, time.Second)
	if _, err := c.Fetch(context.Background()); err == nil || !strings.Contains(err.Error(), "decode response") {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestClientUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, _ := NewClient(url, time.Second)
	if _, err := c.Reset(context.Background()); err == nil {
		t.Fatal("expected error for unreachable server")
	}
}

func TestNewClientRejectsBadURL(t *testing.T) {
	for _, u := range []string{"localhost:7878", "ftp://example.com", "://"} {
		if _, err := NewClient(u, time.Second); err == nil {
			t.Errorf("NewClient(%q): expected error", u)
		}
	}
}

func TestLocalAPI(t *testing.T) {
	game, _ := newTestGame(t, 2, 2)
	api := NewLocalAPI(game)
	ctx := context.Background()

	grid, err := api.Save(ctx, []int{0})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !grid[0][0] {
		t.Fatal("cell 0 should be enabled after save")
	}

	fetched, _ := api.Fetch(ctx)
	if diff := cmp.Diff(grid, fetched); diff != "" {
		t.Fatalf("fetch mismatch (-want +got):\n%s", diff)
	}

	if _, err := api.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
}
