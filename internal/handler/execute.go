package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/coderunner/internal/executor"
	"github.com/sakif/coderunner/internal/language"
)

// ExecuteHandler serves the run endpoints.
type ExecuteHandler struct {
	exec   executor.Executor
	logger *slog.Logger
}

func NewExecuteHandler(exec executor.Executor, logger *slog.Logger) *ExecuteHandler {
	return &ExecuteHandler{
		exec:   exec,
		logger: logger,
	}
}

// HandleRun executes one request and returns the result.
//
// A program that fails to compile, exits non-zero or times out is still a
// 200: the outcome is in the body, and so is an empty program. Only requests
// that could not be run at all get an error status.
func (h *ExecuteHandler) HandleRun(w http.ResponseWriter, r *http.Request) {
	var req executor.ExecutionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.logger.Warn("invalid execution request body", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	result, err := h.exec.Execute(r.Context(), req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			// The client is gone; nobody will read a body.
			return
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// HandleLanguages lists the supported languages.
func (h *ExecuteHandler) HandleLanguages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, language.All())
}
