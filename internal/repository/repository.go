// Package repository declares the storage contracts the service layer depends on.
// Implementations live in subpackages (sqlite).
package repository

import (
	"context"

	"github.com/sakif/coderunner/internal/model"
)

// ListOptions pages through results, newest first.
type ListOptions struct {
	Limit    int
	Offset   int
	Language string // optional filter
}

// SnippetRepository stores snippets. Lookups of a missing ID return an
// apperror.ErrNotFound.
type SnippetRepository interface {
	Create(ctx context.Context, snippet *model.Snippet) error
	GetByID(ctx context.Context, id string) (*model.Snippet, error)
	List(ctx context.Context, opts ListOptions) ([]model.Snippet, error)
	Update(ctx context.Context, snippet *model.Snippet) error
	Delete(ctx context.Context, id string) error
}
