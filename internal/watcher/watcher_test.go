package watcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/crewdhq/crewd/internal/coord"
	"github.com/crewdhq/crewd/internal/event"
	"github.com/crewdhq/crewd/internal/event/repositoryimpl"
)

func TestHashFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "testfile")
	content := []byte("hello world")
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}

	got, err := HashFile(path)
	if err != nil {
		t.Fatalf("HashFile failed: %v", err)
	}

	sum := sha256.Sum256(content)
	if want := hex.EncodeToString(sum[:]); got != want {
		t.Errorf("hash mismatch: got %s, want %s", got, want)
	}

	if _, err := HashFile(filepath.Join(dir, "missing")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestIgnored(t *testing.T) {
	w := New(nil, nil, nil, []string{".git", "node_modules"})

	cases := []struct {
		path string
		want bool
	}{
		{"src/auth.go", false},
		{".git/HEAD", true},
		{"vendor/node_modules/x/index.js", true},
		{"src/auth.go~", true},
		{"src/.auth.go.swp", true},
		{"build/output.tmp", true},
		{"src/gitignore.go", false},
	}
	for _, tc := range cases {
		if got := w.ignored(tc.path); got != tc.want {
			t.Errorf("ignored(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}

func TestWatcherRaisesConflictOnForeignWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "src.go")
	if err := os.WriteFile(path, []byte("package main\n"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	repo, err := repositoryimpl.NewSQLiteRepository(filepath.Join(t.TempDir(), "events.db"))
	if err != nil {
		t.Fatalf("failed to open event store: %v", err)
	}
	defer repo.Close()
	log := event.NewLog(repo)
	c := coord.New(log, coord.WithHasher(HashFile))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := c.RegisterAgent(ctx, "agent-a", "claude-code", coord.RoleWorker, nil); err != nil {
		t.Fatalf("failed to register agent: %v", err)
	}
	res, err := c.ClaimResource(ctx, path, "agent-a", "")
	if err != nil || !res.Granted {
		t.Fatalf("claim failed: granted=%v err=%v", res.Granted, err)
	}

	// Attribute every observed change to a different agent, so the write
	// below counts as foreign.
	w := New(c, log, []string{dir}, nil,
		WithDebounce(10*time.Millisecond),
		WithAttributor(func(string, *coord.Resource) string { return "agent-b" }),
	)
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Let the watcher finish registering the root before writing.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("package main\n\nfunc main() {}\n"), 0644); err != nil {
		t.Fatalf("failed to modify file: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		r, ok := c.GetResource(path)
		if ok && r.State == coord.ResourceConflicted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("resource never became conflicted")
		}
		time.Sleep(20 * time.Millisecond)
	}

	events, err := log.Query(ctx, event.Query{Action: event.ActionResourceModified})
	if err != nil {
		t.Fatalf("failed to query events: %v", err)
	}
	if len(events) == 0 {
		t.Fatal("no modification event recorded")
	}
	if events[0].ActorID != "agent-b" {
		t.Errorf("modification attributed to %s, want agent-b", events[0].ActorID)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("watcher returned error: %v", err)
	}
}

func TestWatcherOwnerWriteIsNotConflict(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "src.go")
	if err := os.WriteFile(path, []byte("v1\n"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	repo, err := repositoryimpl.NewSQLiteRepository(filepath.Join(t.TempDir(), "events.db"))
	if err != nil {
		t.Fatalf("failed to open event store: %v", err)
	}
	defer repo.Close()
	log := event.NewLog(repo)
	c := coord.New(log, coord.WithHasher(HashFile))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := c.RegisterAgent(ctx, "agent-a", "claude-code", coord.RoleWorker, nil); err != nil {
		t.Fatalf("failed to register agent: %v", err)
	}
	if _, err := c.ClaimResource(ctx, path, "agent-a", ""); err != nil {
		t.Fatalf("claim failed: %v", err)
	}

	// Default attribution assumes the owner wrote it.
	w := New(c, log, []string{dir}, nil, WithDebounce(10*time.Millisecond))
	go w.Run(ctx)

	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("v2\n"), 0644); err != nil {
		t.Fatalf("failed to modify file: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		events, err := log.Query(ctx, event.Query{Action: event.ActionResourceModified})
		if err != nil {
			t.Fatalf("failed to query events: %v", err)
		}
		if len(events) > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("no modification event recorded")
		}
		time.Sleep(20 * time.Millisecond)
	}

	r, _ := c.GetResource(path)
	if r.State == coord.ResourceConflicted {
		t.Error("owner write should not conflict")
	}
}
