package storage

import (
	"context"
	"errors"
	"testing"
)

func TestLocalStorageRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStorage failed: %v", err)
	}

	if err := s.Write(ctx, "exports/run.jsonl", []byte("data\n")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	data, err := s.Read(ctx, "exports/run.jsonl")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if string(data) != "data\n" {
		t.Errorf("unexpected content: %q", data)
	}

	exists, err := s.Exists(ctx, "exports/run.jsonl")
	if err != nil || !exists {
		t.Errorf("Exists = %v, %v; want true, nil", exists, err)
	}

	paths, err := s.List(ctx, "exports")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(paths) != 1 || paths[0] != "exports/run.jsonl" {
		t.Errorf("unexpected listing: %v", paths)
	}
}

func TestLocalStorageReadMissing(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStorage failed: %v", err)
	}

	if _, err := s.Read(ctx, "nope.jsonl"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	exists, err := s.Exists(ctx, "nope.jsonl")
	if err != nil || exists {
		t.Errorf("Exists = %v, %v; want false, nil", exists, err)
	}

	paths, err := s.List(ctx, "missing-prefix")
	if err != nil || paths != nil {
		t.Errorf("List = %v, %v; want nil, nil", paths, err)
	}
}
