// Package service holds the business rules between the HTTP handlers and the
// repository: validation, defaults and orchestration. It knows nothing about
// HTTP or SQL.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/coderunner/internal/apperror"
	"github.com/sakif/coderunner/internal/executor"
	"github.com/sakif/coderunner/internal/language"
	"github.com/sakif/coderunner/internal/model"
	"github.com/sakif/coderunner/internal/repository"
)

const (
	MaxSnippetNameLength = 100
	MaxCodeLength        = 100000 // ~100KB of code
	DefaultListLimit     = 20
	MaxListLimit         = 100
)

// SnippetInput carries the user-editable fields of a snippet.
type SnippetInput struct {
	Name        string
	Language    string
	Code        string
	Description string
}

// SnippetService manages saved snippets and runs them through an Executor.
type SnippetService struct {
	repo   repository.SnippetRepository
	exec   executor.Executor
	logger *slog.Logger
}

func NewSnippetService(repo repository.SnippetRepository, exec executor.Executor, logger *slog.Logger) *SnippetService {
	return &SnippetService{
		repo:   repo,
		exec:   exec,
		logger: logger,
	}
}

// Create validates and stores a new snippet. The language must be one the
// registry knows; it is stored in canonical lower case.
func (s *SnippetService) Create(ctx context.Context, in SnippetInput) (*model.Snippet, error) {
	name, err := validateName(in.Name)
	if err != nil {
		return nil, err
	}
	desc, err := language.Resolve(in.Language)
	if err != nil {
		return nil, err
	}
	if err := validateCode(in.Code); err != nil {
		return nil, err
	}

	snippet := &model.Snippet{
		Name:        name,
		Language:    string(desc.Language),
		Code:        in.Code,
		Description: strings.TrimSpace(in.Description),
	}

	if err := s.repo.Create(ctx, snippet); err != nil {
		s.logger.Error("failed to create snippet",
			slog.String("name", name),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating snippet: %w", err)
	}

	s.logger.Info("snippet created",
		slog.String("id", snippet.ID),
		slog.String("language", snippet.Language),
	)
	return snippet, nil
}

func (s *SnippetService) GetByID(ctx context.Context, id string) (*model.Snippet, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "snippet ID is required")
	}
	return s.repo.GetByID(ctx, id)
}

// List pages through snippets. An empty lang lists every language.
func (s *SnippetService) List(ctx context.Context, lang string, limit, offset int) ([]model.Snippet, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	limit = min(limit, MaxListLimit)
	offset = max(offset, 0)

	opts := repository.ListOptions{Limit: limit, Offset: offset}
	if strings.TrimSpace(lang) != "" {
		desc, err := language.Resolve(lang)
		if err != nil {
			return nil, err
		}
		opts.Language = string(desc.Language)
	}

	snippets, err := s.repo.List(ctx, opts)
	if err != nil {
		s.logger.Error("failed to list snippets", slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing snippets: %w", err)
	}
	return snippets, nil
}

// Update replaces code and description. Empty name or language keep the
// stored values.
func (s *SnippetService) Update(ctx context.Context, id string, in SnippetInput) (*model.Snippet, error) {
	snippet, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(in.Name) != "" {
		name, err := validateName(in.Name)
		if err != nil {
			return nil, err
		}
		snippet.Name = name
	}
	if strings.TrimSpace(in.Language) != "" {
		desc, err := language.Resolve(in.Language)
		if err != nil {
			return nil, err
		}
		snippet.Language = string(desc.Language)
	}
	if err := validateCode(in.Code); err != nil {
		return nil, err
	}
	snippet.Code = in.Code
	snippet.Description = strings.TrimSpace(in.Description)

	if err := s.repo.Update(ctx, snippet); err != nil {
		s.logger.Error("failed to update snippet",
			slog.String("id", snippet.ID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("updating snippet: %w", err)
	}

	s.logger.Info("snippet updated", slog.String("id", snippet.ID))
	return snippet, nil
}

func (s *SnippetService) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return apperror.ValidationFailed("id", "snippet ID is required")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("snippet deleted", slog.String("id", id))
	return nil
}

// Run executes a stored snippet with optional stdin and timeout.
func (s *SnippetService) Run(ctx context.Context, id string, stdin *string, timeoutSeconds int) (*executor.ExecutionResult, error) {
	snippet, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.exec.Execute(ctx, executor.ExecutionRequest{
		Language:       snippet.Language,
		Code:           snippet.Code,
		Stdin:          stdin,
		TimeoutSeconds: timeoutSeconds,
	})
}

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperror.ValidationFailed("name", "snippet name is required")
	}
	if len(name) > MaxSnippetNameLength {
		return "", apperror.ValidationFailed("name",
			fmt.Sprintf("snippet name must be %d characters or less", MaxSnippetNameLength))
	}
	return name, nil
}

func validateCode(code string) error {
	if len(code) > MaxCodeLength {
		return apperror.ValidationFailed("code",
			fmt.Sprintf("code must be %d characters or less", MaxCodeLength))
	}
	return nil
}
