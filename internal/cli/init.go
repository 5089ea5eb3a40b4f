package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zenodev/zeno/internal/config"
	"github.com/zenodev/zeno/internal/zlog"
)

var initFlags struct {
	force bool
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Scaffold a starter zeno.yml",
	RunE:  runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initFlags.force, "force", false, "overwrite an existing zeno.yml without prompting")
}

func runInit(cmd *cobra.Command, args []string) error {
	dir, err := os.Getwd()
	if err != nil {
		return withExitCode(ExitStartupFailure, fmt.Errorf("get working directory: %w", err))
	}
	return withExitCode(ExitStartupFailure, initProject(dir, initFlags.force, os.Stdin))
}

// initProject is the testable core of `zeno init`: it writes zeno.yml
// populated with the documented defaults, commented inline the way the
// config schema names each field. When zeno.yml already exists and force
// is false, it prompts on in for confirmation rather than refusing
// outright — grounded on the teacher's confirmation-prompt idiom for
// destructive scaffolding operations.
func initProject(dir string, force bool, in *os.File) error {
	path := dir + "/zeno.yml"
	if _, err := os.Stat(path); err == nil && !force {
		if !confirmOverwrite(in) {
			return fmt.Errorf("zeno.yml already exists — aborted")
		}
	}

	if err := os.WriteFile(path, []byte(scaffoldYAML()), 0644); err != nil {
		return fmt.Errorf("write zeno.yml: %w", err)
	}
	zlog.Success("created zeno.yml")
	zlog.Info("edit zeno.yml, then run: zeno run")
	return nil
}

func confirmOverwrite(in *os.File) bool {
	fmt.Print("zeno.yml already exists — overwrite? [y/N] ")
	scanner := bufio.NewScanner(in)
	if !scanner.Scan() {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
	return answer == "y" || answer == "yes"
}

// scaffoldYAML returns the starter zeno.yml content. It is written by
// hand, not produced by Config.Marshal, so that it can carry the same
// explanatory inline comments as the documented schema — yaml.v3's
// Marshal has no hook for per-field comments.
func scaffoldYAML() string {
	d := config.Defaults()
	return fmt.Sprintf(`# zeno.yml — hot-reload supervisor configuration
root: .                    # project root; relative to the directory zeno is run from
tmp_dir: %s                 # staging/build-log directory, relative to root

build:
  cmd: "%s"
  bin: "%s"
  log: %s
  include_ext: [dart]      # only files with these extensions trigger a reload
  exclude_dir: []           # path prefixes (relative to root) to never watch
  include_dir: []           # if non-empty, only these prefixes are watched
  exclude_file: []          # basenames to ignore
  include_file: []          # if non-empty, only these basenames trigger a reload
  exclude_regex: []          # regexes (matched against root-relative path) to ignore
  pre_cmd: []                # commands run before each build
  post_cmd: []               # commands run after each build
  args: []                   # arguments passed to the supervised binary
  delay: %d                  # debounce window in milliseconds
  kill_delay: %d             # grace period before SIGKILL escalation, in milliseconds
  stop_on_error: false       # a failed rebuild always leaves the current process running; this only changes the error message
  poll: false                # use polling instead of native filesystem notifications
  poll_interval: %d          # polling interval in milliseconds, used only when poll is true

log:
  add_time: false
  main_only: false
  silent: false

screen:
  clear_on_rebuild: false
  keep_scroll: true

misc:
  clean_on_exit: false
`, d.TmpDir, d.Build.Cmd, d.Build.Bin, d.Build.Log, d.Build.DelayMS, d.Build.KillDelayMS, d.Build.PollIntervalMS)
}
