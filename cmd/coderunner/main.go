// Command coderunner runs untrusted programs in throwaway containers, over
// HTTP, from the command line or as an MCP tool.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var (
	configFlag string
	debugFlag  bool
)

var rootCmd = &cobra.Command{
	Use:   "coderunner",
	Short: "Sandboxed multi-language code execution",
	Long: `coderunner executes untrusted source code in short-lived Docker containers
with no network, a read-only workspace and hard CPU, memory and time limits.

Settings come from coderunner.yaml (or --config) and CODERUNNER_* variables.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Path to a config file (default ./coderunner.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Enable debug logging")
}

func newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if debugFlag {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
