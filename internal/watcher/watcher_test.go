package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/zenodev/zeno/internal/config"
	"github.com/zenodev/zeno/internal/pathfilter"
)

func newTestFilter(root string) *pathfilter.Filter {
	cfg := config.Defaults()
	cfg.Root = root
	cfg.Build.IncludeExt = nil
	return pathfilter.New(cfg)
}

func drain(t *testing.T, ch <-chan ChangeEvent, timeout time.Duration) []ChangeEvent {
	t.Helper()
	var got []ChangeEvent
	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return got
			}
			got = append(got, ev)
		case <-deadline:
			return got
		}
	}
}

func TestWatch_RootNotFound(t *testing.T) {
	w := New(newTestFilter("/nonexistent"), false, 0)
	_, err := w.Watch(context.Background(), "/nonexistent/root/xyz")
	if err == nil {
		t.Fatal("expected error for missing root")
	}
}

func TestWatch_NativeBackend_DetectsCreate(t *testing.T) {
	dir := t.TempDir()
	filter := newTestFilter(dir)
	w := New(filter, false, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := w.Watch(ctx, dir)
	if err != nil {
		t.Fatal(err)
	}

	time.Sleep(50 * time.Millisecond) // allow the watcher goroutine to attach

	if err := os.WriteFile(filepath.Join(dir, "new.txt"), []byte("hi"), 0644); err != nil {
		t.Fatal(err)
	}

	got := drain(t, events, time.Second)
	if len(got) == 0 {
		t.Fatal("expected at least one change event")
	}
	found := false
	for _, ev := range got {
		if filepath.Base(ev.Path) == "new.txt" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected an event for new.txt, got %+v", got)
	}

	if err := w.Stop(); err != nil {
		t.Fatal(err)
	}
}

func TestWatch_StopIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	w := New(newTestFilter(dir), false, 0)
	if _, err := w.Watch(context.Background(), dir); err != nil {
		t.Fatal(err)
	}
	if err := w.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := w.Stop(); err != nil {
		t.Fatalf("second Stop() should be a no-op, got %v", err)
	}
}

func TestPollBackend_DetectsModification(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "main.go")
	if err := os.WriteFile(target, []byte("package main"), 0644); err != nil {
		t.Fatal(err)
	}

	filter := newTestFilter(dir)
	w := New(filter, true, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := w.Watch(ctx, dir)
	if err != nil {
		t.Fatal(err)
	}

	time.Sleep(40 * time.Millisecond)
	future := time.Now().Add(time.Second)
	if err := os.Chtimes(target, future, future); err != nil {
		t.Fatal(err)
	}

	got := drain(t, events, 300*time.Millisecond)
	foundModified := false
	for _, ev := range got {
		if ev.Path == target && ev.Kind == Modified {
			foundModified = true
		}
	}
	if !foundModified {
		t.Errorf("expected a Modified event for %s, got %+v", target, got)
	}

	w.Stop()
}

func TestCollectDirs_ExcludesTmpDir(t *testing.T) {
	dir := t.TempDir()
	os.MkdirAll(filepath.Join(dir, "tmp"), 0755)
	os.MkdirAll(filepath.Join(dir, "lib"), 0755)

	cfg := config.Defaults()
	cfg.Root = dir
	cfg.TmpDir = "tmp"
	filter := pathfilter.New(cfg)

	dirs := collectDirs(dir, filter)
	for _, d := range dirs {
		if filepath.Base(d) == "tmp" {
			t.Errorf("expected tmp_dir to be excluded from collected dirs, got %v", dirs)
		}
	}
}
