package tools

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRegistryUnknownTool(t *testing.T) {
	t.Parallel()

	registry := NewRegistry(nil)
	_, err := registry.Invoke(context.Background(), "no_such_tool", nil)
	if !errors.Is(err, ErrToolUnavailable) {
		t.Fatalf("expected ErrToolUnavailable, got %v", err)
	}
}

func TestDefaultRegistryNames(t *testing.T) {
	t.Parallel()

	registry := NewDefaultRegistry(nil)
	names := registry.Names()
	if len(names) != 1 || names[0] != "list_directory" {
		t.Fatalf("unexpected names: %v", names)
	}
}

func TestListDirectoryFlat(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	mustWriteFile(t, filepath.Join(dir, "main.go"), "package main\n")
	mustWriteFile(t, filepath.Join(dir, ".hidden"), "x")
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}

	registry := NewDefaultRegistry(nil)
	out, err := registry.Invoke(context.Background(), "list_directory", map[string]any{"path": dir})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}

	if !strings.Contains(out, "main.go") {
		t.Fatalf("expected main.go in listing:\n%s", out)
	}
	if !strings.Contains(out, "sub/") {
		t.Fatalf("expected sub/ in listing:\n%s", out)
	}
	if strings.Contains(out, ".hidden") {
		t.Fatalf("hidden file must be skipped by default:\n%s", out)
	}
	if !strings.Contains(out, "Total: 1 files, 1 directories") {
		t.Fatalf("unexpected summary line:\n%s", out)
	}
}

func TestListDirectoryRecursiveDepthBound(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	deep := filepath.Join(dir, "a", "b", "c")
	if err := os.MkdirAll(deep, 0o755); err != nil {
		t.Fatal(err)
	}
	mustWriteFile(t, filepath.Join(deep, "deep.txt"), "x")
	mustWriteFile(t, filepath.Join(dir, "a", "shallow.txt"), "x")

	registry := NewDefaultRegistry(nil)
	out, err := registry.Invoke(context.Background(), "list_directory", map[string]any{
		"path":      dir,
		"recursive": true,
		"max_depth": 2,
	})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}

	if !strings.Contains(out, "shallow.txt") {
		t.Fatalf("expected shallow.txt at depth 2:\n%s", out)
	}
	if strings.Contains(out, "deep.txt") {
		t.Fatalf("deep.txt is beyond max_depth and must be skipped:\n%s", out)
	}
}

func TestListDirectoryShowHidden(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	mustWriteFile(t, filepath.Join(dir, ".env"), "SECRET=1")

	registry := NewDefaultRegistry(nil)
	out, err := registry.Invoke(context.Background(), "list_directory", map[string]any{
		"path":        dir,
		"show_hidden": true,
	})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if !strings.Contains(out, ".env") {
		t.Fatalf("expected hidden file with show_hidden:\n%s", out)
	}
}

func TestListDirectoryMissingPath(t *testing.T) {
	t.Parallel()

	registry := NewDefaultRegistry(nil)
	_, err := registry.Invoke(context.Background(), "list_directory", map[string]any{
		"path": filepath.Join(t.TempDir(), "missing"),
	})
	if err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func mustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
