package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sakif/coderunner/internal/config"
	"github.com/sakif/coderunner/internal/executor"
)

var (
	langFlag    string
	stdinFlag   string
	timeoutFlag int
)

var runCmd = &cobra.Command{
	Use:   "run [file]",
	Short: "Execute one program and print the result as JSON",
	Long: `Execute one program and print the result as JSON.

The source is read from file, or from standard input when file is "-" or
omitted.

Examples:
  coderunner run --lang python hello.py
  echo 'echo hi' | coderunner run --lang bash
  coderunner run --lang python --stdin "21" double.py`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&langFlag, "lang", "l", "", "Language of the program (required)")
	runCmd.Flags().StringVar(&stdinFlag, "stdin", "", "Text to feed the program on standard input")
	runCmd.Flags().IntVarP(&timeoutFlag, "timeout", "t", 0, "Wall clock limit in seconds")
	_ = runCmd.MarkFlagRequired("lang")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	logger := newLogger(os.Stderr)

	code, err := readSource(args, cmd.InOrStdin())
	if err != nil {
		return err
	}

	cfg, err := config.Load(configFlag)
	if err != nil {
		return err
	}

	rt, err := buildStack(cfg, logger)
	if err != nil {
		return err
	}
	defer rt.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	req := executor.ExecutionRequest{
		Language:       langFlag,
		Code:           code,
		TimeoutSeconds: timeoutFlag,
	}
	if cmd.Flags().Changed("stdin") {
		req.Stdin = &stdinFlag
	}

	result, err := rt.engine.Execute(ctx, req)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func readSource(args []string, stdin io.Reader) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("reading source from stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("reading source: %w", err)
	}
	return string(data), nil
}
