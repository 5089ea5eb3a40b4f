package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func stdinWith(t *testing.T, text string) *os.File {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	go func() {
		w.WriteString(text)
		w.Close()
	}()
	t.Cleanup(func() { r.Close() })
	return r
}

func TestInitProject_WritesScaffold(t *testing.T) {
	dir := t.TempDir()
	if err := initProject(dir, false, nil); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "zeno.yml"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "build:") {
		t.Error("expected scaffold to contain a build: section")
	}
}

func TestInitProject_RefusesExistingOnDecline(t *testing.T) {
	dir := t.TempDir()
	if err := initProject(dir, false, nil); err != nil {
		t.Fatal(err)
	}
	if err := initProject(dir, false, stdinWith(t, "n\n")); err == nil {
		t.Fatal("expected declined overwrite to fail")
	}
}

func TestInitProject_OverwritesOnConfirm(t *testing.T) {
	dir := t.TempDir()
	if err := initProject(dir, false, nil); err != nil {
		t.Fatal(err)
	}
	if err := initProject(dir, false, stdinWith(t, "y\n")); err != nil {
		t.Fatalf("expected confirmed overwrite to succeed: %v", err)
	}
}

func TestInitProject_ForceOverwrites(t *testing.T) {
	dir := t.TempDir()
	if err := initProject(dir, false, nil); err != nil {
		t.Fatal(err)
	}
	if err := initProject(dir, true, nil); err != nil {
		t.Fatalf("expected --force to overwrite cleanly: %v", err)
	}
}
