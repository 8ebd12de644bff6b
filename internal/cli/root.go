// Package cli implements the syncd command-line interface.
package cli

import (
	"errors"
	"os"

	"github.com/spf13/cobra"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// rootFlags holds global flag values accessible to all subcommands.
type rootFlags struct {
	configDir string
	dataDir   string
}

var flags rootFlags

// NewRootCmd creates the top-level "syncd" command with global flags and all
// subcommands registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "syncd",
		Short: "Event-log synchronization server for shared ordered lists",
		Long: "Syncd stores list edits as an append-only event log and serves the\n" +
			"sync protocol that lets devices converge on the same list without\n" +
			"central locking.",
		// Do not print usage on errors returned by subcommands.
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flags.configDir, "config-dir", "", "configuration directory (default: .syncd)")
	root.PersistentFlags().StringVar(&flags.dataDir, "data-dir", "", "data directory (default: .syncd-db)")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newInitCmd())
	root.AddCommand(newServeCmd())

	return root
}

// Execute runs the root command and exits with the appropriate code.
func Execute() {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		code := exitUserError
		var ece *exitCodeError
		if errors.As(err, &ece) {
			code = ece.code
		}
		os.Exit(code)
	}
}

// resolveConfigDir returns the config directory from flag, env, or default.
func resolveConfigDir() string {
	if flags.configDir != "" {
		return flags.configDir
	}
	if v := os.Getenv("SYNCD_CONFIG_DIR"); v != "" {
		return v
	}
	return ".syncd"
}

// exitCodeError carries the process exit code for a failed command. Commands
// return it instead of exiting directly so their deferred cleanup still runs;
// Execute maps it to the final exit code.
type exitCodeError struct {
	code int
	msg  string
}

func (e *exitCodeError) Error() string { return e.msg }

// exitError builds the error a failing subcommand returns.
func exitError(code int, msg string) error {
	return &exitCodeError{code: code, msg: msg}
}
