// Package builder invokes the user's build command: once at startup via
// BuildInitial, and on every reload cycle via Rebuild, which rewrites the
// command to emit to a staging path instead of the live binary path.
package builder

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/zenodev/zeno/internal/config"
	"github.com/zenodev/zeno/internal/zlog"
)

// ErrBuildFailed wraps a non-zero build exit or a spawn failure.
var ErrBuildFailed = errors.New("build failed")

// Result carries the outcome of a single build invocation.
type Result struct {
	Success bool
	Stderr  string
}

// Builder runs the configured build command.
type Builder struct {
	cfg *config.Config
}

// New creates a Builder for cfg.
func New(cfg *config.Config) *Builder {
	return &Builder{cfg: cfg}
}

// BuildInitial runs Config.Build.Cmd unmodified, with Config.Root as the
// working directory. The command is split on whitespace into executable
// and argv — v1 does not support shell quoting, so arguments containing
// spaces cannot be expressed; an implementer may upgrade the tokenizer
// without changing semantics for existing configs.
func (b *Builder) BuildInitial() (*Result, error) {
	return b.run(b.cfg.Build.Cmd)
}

// Rebuild constructs the staging command by replacing every occurrence
// of Config.Build.Bin within Config.Build.Cmd with stagingPath, then runs
// it identically to BuildInitial.
func (b *Builder) Rebuild(stagingPath string) (*Result, error) {
	stagingCmd := strings.ReplaceAll(b.cfg.Build.Cmd, b.cfg.Build.Bin, stagingPath)
	return b.run(stagingCmd)
}

func (b *Builder) run(cmdline string) (*Result, error) {
	fields := strings.Fields(cmdline)
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: empty build command", ErrBuildFailed)
	}

	cmd := exec.Command(fields[0], fields[1:]...)
	cmd.Dir = b.cfg.Root

	var stderr strings.Builder
	cmd.Stdout = &stderr
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := &Result{
		Success: err == nil,
		Stderr:  stderr.String(),
	}

	if err != nil {
		b.appendBuildLog(result.Stderr, err)
		return result, fmt.Errorf("%w: %v", ErrBuildFailed, err)
	}
	return result, nil
}

// appendBuildLog appends an ISO-8601 timestamped line to the configured
// build log, creating parent directories as needed. A log-write failure
// is itself only a warning, never fatal, per spec.md §4.4.
func (b *Builder) appendBuildLog(stderrText string, buildErr error) {
	logPath := b.cfg.BuildLogPath()

	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		zlog.Warning(fmt.Sprintf("failed to create build log directory: %v", err))
		return
	}

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		zlog.Warning(fmt.Sprintf("failed to open build log: %v", err))
		return
	}
	defer f.Close()

	line := fmt.Sprintf("[%s] build failed: %v\n%s\n", time.Now().Format(time.RFC3339), buildErr, stderrText)
	if _, err := f.WriteString(line); err != nil {
		zlog.Warning(fmt.Sprintf("failed to write build log: %v", err))
	}
}
