package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/sakif/coderunner/internal/config"
	"github.com/sakif/coderunner/internal/mcptool"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the code_run tool over MCP stdio",
	Long: `Serve the code_run tool over the Model Context Protocol on stdin/stdout.

Logs go to stderr so they never corrupt the protocol stream.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger(os.Stderr)

		cfg, err := config.Load(configFlag)
		if err != nil {
			return err
		}
		rt, err := buildStack(cfg, logger)
		if err != nil {
			return err
		}
		defer rt.close()

		if cfg.Runtime.PullImages {
			go rt.pullImages(context.Background(), logger)
		}

		return mcptool.ServeStdio(mcptool.NewServer(rt.engine, version, logger))
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
