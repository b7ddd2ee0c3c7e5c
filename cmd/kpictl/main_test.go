package main

import (
	"context"
	"testing"
)

func TestRun_help(t *testing.T) {
	if code := Run(context.Background(), []string{"--help"}); code != 0 {
		t.Errorf("Run --help: got exit code %d", code)
	}
}

func TestRun_version(t *testing.T) {
	if code := Run(context.Background(), []string{"--version"}); code != 0 {
		t.Errorf("Run --version: got exit code %d", code)
	}
}

func TestRun_unknownKind(t *testing.T) {
	t.Chdir(t.TempDir())
	if code := Run(context.Background(), []string{"report", "nope", "--input", "x.csv"}); code != 1 {
		t.Errorf("Run report nope: got exit code %d, want 1", code)
	}
}
