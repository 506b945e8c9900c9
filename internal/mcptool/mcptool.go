// Package mcptool exposes the execution engine as an MCP tool server, so
// agents can run code over stdio.
package mcptool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/sakif/coderunner/internal/apperror"
	"github.com/sakif/coderunner/internal/executor"
	"github.com/sakif/coderunner/internal/language"
)

const (
	serverName = "coderunner"
	toolName   = "code_run"
)

// NewServer returns an MCP server with the code_run tool registered.
func NewServer(exec executor.Executor, version string, logger *slog.Logger) *server.MCPServer {
	s := server.NewMCPServer(serverName, version)
	s.AddTool(Tool(), Handler(exec, logger))
	return s
}

// ServeStdio blocks serving s on stdin and stdout.
func ServeStdio(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

func Tool() mcp.Tool {
	names := make([]string, 0, len(language.All()))
	for _, d := range language.All() {
		names = append(names, string(d.Language))
	}
	supported := strings.Join(names, ", ")

	return mcp.NewTool(toolName,
		mcp.WithDescription(fmt.Sprintf("Execute code in an isolated container with no network. Supported languages: %s.", supported)),
		mcp.WithString("language", mcp.Required(), mcp.Description("Programming language ("+supported+")")),
		mcp.WithString("code", mcp.Required(), mcp.Description("Source code to execute")),
		mcp.WithString("stdin", mcp.Description("Standard input for the program (optional)")),
		mcp.WithNumber("timeout_seconds", mcp.Description(
			fmt.Sprintf("Wall clock limit in seconds (default %d)", executor.DefaultTimeoutSeconds))),
	)
}

// Handler adapts exec to a tool call. Program failures come back as error
// results, never as protocol errors.
func Handler(exec executor.Executor, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		lang, err := request.RequireString("language")
		if err != nil {
			return mcp.NewToolResultError("error: 'language' is required"), nil
		}
		code, err := request.RequireString("code")
		if err != nil {
			return mcp.NewToolResultError("error: 'code' is required"), nil
		}

		req := executor.ExecutionRequest{
			Language:       lang,
			Code:           code,
			TimeoutSeconds: request.GetInt("timeout_seconds", 0),
		}
		if stdin := request.GetString("stdin", ""); stdin != "" {
			req.Stdin = &stdin
		}

		result, err := exec.Execute(ctx, req)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil, err
			}
			logger.Warn("code_run failed", slog.String("language", lang), slog.String("error", err.Error()))
			return mcp.NewToolResultError("error: " + describe(err)), nil
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{mcp.NewTextContent(render(result))},
			IsError: result.TimedOut || (result.ExitCode != nil && *result.ExitCode != 0),
		}, nil
	}
}

func describe(err error) string {
	switch {
	case errors.Is(err, apperror.ErrUnsupportedLanguage), errors.Is(err, apperror.ErrValidation):
		return err.Error()
	case errors.Is(err, apperror.ErrLaunch):
		return "sandbox unavailable"
	default:
		return "internal error"
	}
}

func render(res *executor.ExecutionResult) string {
	var out strings.Builder
	out.WriteString(res.Stdout)
	if res.Stderr != "" {
		if out.Len() > 0 && !strings.HasSuffix(res.Stdout, "\n") {
			out.WriteString("\n")
		}
		out.WriteString("STDERR:\n" + res.Stderr)
	}
	if res.ExitCode != nil && *res.ExitCode != 0 {
		fmt.Fprintf(&out, "\nexit code: %d", *res.ExitCode)
	}
	return out.String()
}
