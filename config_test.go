package main

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig(nil, io.Discard)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(defaultConfig(), cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
	if cfg.Listen != ":7878" || cfg.Cols != 20 || cfg.Rows != 20 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadConfigFileAndFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grid.yaml")
	yaml := `
listen: ":9000"
store: bolt
cols: 8
rows: 6
session_ttl: 5m
api_url: http://grid.internal:7878
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadConfig([]string{"-config", path, "-rows", "3"}, io.Discard)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := defaultConfig()
	want.Listen = ":9000"
	want.Store = "bolt"
	want.Cols = 8
	want.Rows = 3
	want.SessionTTL = 5 * time.Minute
	want.APIURL = "http://grid.internal:7878"
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	tests := map[string][]string{
		"unknown flag":     {"-nope"},
		"bad store":        {"-store", "redis"},
		"zero columns":     {"-cols", "0"},
		"missing file":     {"-config", filepath.Join(t.TempDir(), "missing.yaml")},
		"negative ttl":     {"-session-ttl", "-1m"},
		"tiny ttl":         {"-session-ttl", "1ns"},
		"negative timeout": {"-timeout", "-1s"},
	}
	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := loadConfig(args, io.Discard); err == nil {
				t.Fatalf("expected error for %v", args)
			}
		})
	}
}

func TestLoadConfigBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grid.yaml")
	os.WriteFile(path, []byte("cols: [1, 2"), 0o644)

	if _, err := loadConfig([]string{"-config", path}, io.Discard); err == nil {
		t.Fatal("expected parse error")
	}
}
