package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func startWatcher(t *testing.T, root string, config Config) <-chan struct{} {
	t.Helper()
	fired := make(chan struct{}, 16)
	w, err := New(root, config, func(context.Context) { fired <- struct{}{} })
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		w.Close()
	})
	return fired
}

func waitFired(t *testing.T, fired <-chan struct{}) {
	t.Helper()
	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		t.Fatal("Expected callback")
	}
}

func expectQuiet(t *testing.T, fired <-chan struct{}, d time.Duration) {
	t.Helper()
	select {
	case <-fired:
		t.Fatal("Expected no callback")
	case <-time.After(d):
	}
}

func TestWatcher_DebouncesBurst(t *testing.T) {
	root := t.TempDir()
	fired := startWatcher(t, root, Config{Debounce: 200 * time.Millisecond})

	for i := 0; i < 5; i++ {
		os.WriteFile(filepath.Join(root, "f"+string(rune('a'+i))+".md"), []byte("x"), 0o644)
	}
	waitFired(t, fired)
	expectQuiet(t, fired, 500*time.Millisecond)
}

func TestWatcher_NewSubdirectory(t *testing.T) {
	root := t.TempDir()
	fired := startWatcher(t, root, Config{Debounce: 100 * time.Millisecond})

	sub := filepath.Join(root, "pkg")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	waitFired(t, fired)

	// Give the watcher a moment to register the new directory.
	time.Sleep(100 * time.Millisecond)
	os.WriteFile(filepath.Join(sub, "x.go"), []byte("package pkg\n"), 0o644)
	waitFired(t, fired)
}

func TestWatcher_IgnoresExcluded(t *testing.T) {
	root := t.TempDir()
	excluded := filepath.Join(root, "node_modules", "lib")
	if err := os.MkdirAll(excluded, 0o755); err != nil {
		t.Fatal(err)
	}
	os.MkdirAll(filepath.Join(root, "gen"), 0o755)

	fired := startWatcher(t, root, Config{
		Debounce:     100 * time.Millisecond,
		ExcludeDirs:  []string{"node_modules"},
		ExcludeGlobs: []string{"gen/**"},
	})

	os.WriteFile(filepath.Join(excluded, "index.js"), []byte("x"), 0o644)
	os.WriteFile(filepath.Join(root, "gen", "out.go"), []byte("x"), 0o644)
	expectQuiet(t, fired, 400*time.Millisecond)

	os.WriteFile(filepath.Join(root, "main.go"), []byte("x"), 0o644)
	waitFired(t, fired)
}

func TestNew_MissingRoot(t *testing.T) {
	if _, err := New(filepath.Join(t.TempDir(), "absent"), Config{}, func(context.Context) {}); err == nil {
		t.Error("Expected error for missing root")
	}
}
