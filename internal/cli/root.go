// Package cli implements the zeno command-line surface: `zeno run` starts
// the supervised hot-reload loop, `zeno init` scaffolds a starter
// zeno.yml. Grounded on the cobra-based command layout used elsewhere in
// the example corpus's dev-tooling CLIs.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "v0.1.0"

// ExitStartupFailure is returned as the process exit code when `zeno run`
// cannot complete its startup sequence (missing/invalid config, watcher
// or builder failure before the reload loop is established).
const ExitStartupFailure = 70

var rootCmd = &cobra.Command{
	Use:   "zeno",
	Short: "zeno is a hot-reload supervisor for compiled binaries",
}

// Execute runs the root command, exiting the process with the code
// carried by *exitCodeError if one is returned, or 1 for any other error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		var ec *exitCodeError
		if errors.As(err, &ec) {
			os.Exit(ec.code)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = version
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(initCmd)
}

// exitCodeError lets a RunE carry a specific process exit code through
// cobra's plain error-returning convention.
type exitCodeError struct {
	code int
	err  error
}

func (e *exitCodeError) Error() string { return e.err.Error() }
func (e *exitCodeError) Unwrap() error { return e.err }

func withExitCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitCodeError{code: code, err: err}
}

