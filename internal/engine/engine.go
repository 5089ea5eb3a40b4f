// Package engine implements the reload control loop: the coordinated
// state machine spanning the file-event stream, the debounce window, the
// build step, and the two-phase binary swap. The Engine is the sole
// mutator of its own state (running, reloading, the pending-change set,
// the debounce timer) and of the Supervisor's child. The pending-change
// set and the debounce timer are only touched from a single-consumer
// command channel so that concurrent watcher events and debounce-timer
// fires never race against each other; the running and reloading flags
// are guarded by a mutex so they can also be read outside that loop,
// matching spec.md §5's "single logical thread of control" requirement
// on a goroutine-based runtime.
package engine

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zenodev/zeno/internal/builder"
	"github.com/zenodev/zeno/internal/config"
	"github.com/zenodev/zeno/internal/pathfilter"
	"github.com/zenodev/zeno/internal/supervisor"
	"github.com/zenodev/zeno/internal/watcher"
	"github.com/zenodev/zeno/internal/zlog"
)

// Engine coordinates the Watcher, Builder, and Supervisor through the
// reload state machine described in spec.md §4.5.
type Engine struct {
	cfg     *config.Config
	filter  *pathfilter.Filter
	watch   *watcher.Watcher
	build   *builder.Builder
	super   *supervisor.Supervisor
	verbose bool

	mu        sync.Mutex
	running   bool
	reloading bool

	// pending, debounceTimer are mutated exclusively from inside the
	// command loop (see do), so they need no separate lock.
	pending       map[string]struct{}
	debounceTimer *time.Timer

	cmds     chan func()
	cancel   context.CancelFunc
	loopDone chan struct{}
}

// New constructs an Engine for cfg. verbose enables per-event debug
// logging of the kind spec.md's §9 "removed source idioms" calls out as
// diagnostic-only.
func New(cfg *config.Config, verbose bool) *Engine {
	filter := pathfilter.New(cfg)
	return &Engine{
		cfg:      cfg,
		filter:   filter,
		watch:    watcher.New(filter, cfg.Build.Poll, time.Duration(cfg.Build.PollIntervalMS)*time.Millisecond),
		build:    builder.New(cfg),
		super:    supervisor.New(cfg),
		verbose:  verbose,
		pending:  make(map[string]struct{}),
		cmds:     make(chan func(), 32),
		loopDone: make(chan struct{}),
	}
}

// IsRunning reports whether the engine has been started and not yet stopped.
func (e *Engine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// IsReloading reports whether a reload cycle is currently in flight.
func (e *Engine) IsReloading() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reloading
}

func (e *Engine) setRunning(v bool) {
	e.mu.Lock()
	e.running = v
	e.mu.Unlock()
}

func (e *Engine) setReloading(v bool) {
	e.mu.Lock()
	e.reloading = v
	e.mu.Unlock()
}

// do posts fn to the engine's single command loop and blocks until it has
// run, giving callers outside the loop (Start, Stop) the same
// serialization guarantee as the watcher-event and debounce-timer
// callbacks that post closures directly.
func (e *Engine) do(fn func()) {
	done := make(chan struct{})
	e.cmds <- func() {
		fn()
		close(done)
	}
	<-done
}

func (e *Engine) loop(ctx context.Context) {
	defer close(e.loopDone)
	for {
		select {
		case fn := <-e.cmds:
			fn()
		case <-ctx.Done():
			return
		}
	}
}

// Start runs the §4.5 start sequence: rejects a second start, ensures the
// tmp directory exists, runs pre_cmd, performs the initial build, runs
// post_cmd, spawns the initial child, and subscribes to the watcher.
func (e *Engine) Start() error {
	if e.IsRunning() {
		return fmt.Errorf("engine already running")
	}
	e.setRunning(true)

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	go e.loop(ctx)

	if err := os.MkdirAll(e.cfg.TmpPath(), 0755); err != nil {
		return fmt.Errorf("create tmp dir: %w", err)
	}

	runCmdList(e.cfg.Root, e.cfg.Build.PreCmd)

	if _, err := e.build.BuildInitial(); err != nil {
		// The start sequence carries on: StartInitial below spawns
		// whatever binary is already at build.bin, if any. With none
		// there, the engine stays running with no child, and later
		// reload cycles rebuild but SwapAndRestart refuses to swap
		// without a running child.
		zlog.Error(fmt.Sprintf("initial build failed: %v", err))
	} else {
		zlog.Success("Initial build successful")
	}

	runCmdList(e.cfg.Root, e.cfg.Build.PostCmd)

	if err := e.super.StartInitial(); err != nil {
		zlog.Error(fmt.Sprintf("failed to start initial process: %v", err))
	}

	events, err := e.watch.Watch(ctx, e.cfg.Root)
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	go e.forwardEvents(ctx, events)

	return nil
}

// forwardEvents relays watcher events into the command loop as
// onFileChanged closures, preserving arrival order. Events that arrive
// while a reload cycle is in flight are dropped, not queued.
func (e *Engine) forwardEvents(ctx context.Context, events <-chan watcher.ChangeEvent) {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			// A reload cycle occupies the command loop, so an event posted
			// now would only run after it; drop it here instead.
			if e.IsReloading() {
				continue
			}
			select {
			case e.cmds <- func() { e.onFileChanged(ev) }:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// onFileChanged runs inside the command loop. Per spec.md §4.5, events
// are dropped (not queued) when the engine is not running or a reload
// cycle is already in flight.
func (e *Engine) onFileChanged(ev watcher.ChangeEvent) {
	if !e.IsRunning() || e.IsReloading() {
		return
	}

	rel, err := filepath.Rel(e.cfg.Root, ev.Path)
	if err != nil {
		rel = ev.Path
	}
	e.pending[rel] = struct{}{}
	zlog.Debug(e.verbose, fmt.Sprintf("change detected: %s (%s)", rel, ev.Kind))

	if e.debounceTimer != nil {
		e.debounceTimer.Stop()
	}
	e.debounceTimer = time.AfterFunc(time.Duration(e.cfg.Build.DelayMS)*time.Millisecond, func() {
		e.cmds <- func() { e.reloadCycle() }
	})
}

// reloadCycle runs inside the command loop when the debounce timer
// fires. It implements spec.md §4.5's ten-step sequence, including the
// mandatory terminate→backup→copy-new→delete-staging→spawn ordering
// (enforced inside Supervisor.SwapAndRestart).
func (e *Engine) reloadCycle() {
	if len(e.pending) == 0 || e.reloading {
		return
	}

	changes := drain(e.pending)

	if e.cfg.Screen.ClearOnRebuild {
		clearScreen(e.cfg.Screen.KeepScroll)
	}

	cycleID := uuid.New().String()[:8]
	e.setReloading(true)
	t0 := time.Now()

	zlog.Info(fmt.Sprintf("[%s] Hot reloading due to changes in %s", cycleID, strings.Join(changes, ", ")))

	runCmdList(e.cfg.Root, e.cfg.Build.PreCmd)

	if _, err := e.build.Rebuild(e.cfg.StagingPath()); err != nil {
		if e.cfg.Build.StopOnError {
			zlog.Error(fmt.Sprintf("[%s] build failed, stop_on_error is set — leaving current process untouched: %v", cycleID, err))
		} else {
			zlog.Error(fmt.Sprintf("[%s] build failed — skipping reload: %v", cycleID, err))
		}
		e.setReloading(false)
		return
	}

	runCmdList(e.cfg.Root, e.cfg.Build.PostCmd)

	if ok := e.super.SwapAndRestart(e.cfg.StagingBinPath()); ok {
		zlog.Success(fmt.Sprintf("[%s] Reload complete in %s", cycleID, time.Since(t0).Round(time.Millisecond)))
	} else {
		zlog.Error(fmt.Sprintf("[%s] Reload failed", cycleID))
	}

	e.setReloading(false)
}

// Stop runs the §4.5 stop sequence: cancel the debounce timer, stop the
// watcher, stop the supervisor, optionally clean the tmp directory, then
// clear running. Idempotent — a second call is a no-op.
func (e *Engine) Stop() {
	if !e.IsRunning() {
		return
	}

	e.do(func() {
		if e.debounceTimer != nil {
			e.debounceTimer.Stop()
		}
	})

	if e.cancel != nil {
		e.cancel()
	}
	if err := e.watch.Stop(); err != nil {
		zlog.Warning(fmt.Sprintf("error stopping watcher: %v", err))
	}
	e.super.Stop()

	if e.cfg.Misc.CleanOnExit {
		if err := os.RemoveAll(e.cfg.TmpPath()); err != nil {
			zlog.Warning(fmt.Sprintf("failed to clean tmp dir: %v", err))
		}
	}

	e.setRunning(false)
	<-e.loopDone
}

func drain(pending map[string]struct{}) []string {
	out := make([]string, 0, len(pending))
	for k := range pending {
		out = append(out, k)
		delete(pending, k)
	}
	sort.Strings(out)
	return out
}

// runCmdList runs each command in list sequentially with dir as the
// working directory. Failures are logged, never fatal — matches
// spec.md §4.5's pre_cmd/post_cmd policy.
func runCmdList(dir string, list []string) {
	for _, line := range list {
		if err := runOne(dir, line); err != nil {
			zlog.Warning(fmt.Sprintf("command %q failed: %v", line, err))
		}
	}
}

func runOne(dir, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd := exec.Command(fields[0], fields[1:]...)
	cmd.Dir = dir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// clearScreen emits the configured ANSI clear sequence: ESC[2J alone
// preserves scrollback, ESC[2J ESC[H additionally homes the cursor.
func clearScreen(keepScroll bool) {
	fmt.Print("\033[2J")
	if !keepScroll {
		fmt.Print("\033[H")
	}
}
