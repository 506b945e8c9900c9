package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"testing"

	"github.com/sakif/coderunner/internal/apperror"
	"github.com/sakif/coderunner/internal/executor"
	"github.com/sakif/coderunner/internal/model"
	"github.com/sakif/coderunner/internal/repository"
)

// mockSnippetRepo is an in-memory SnippetRepository.
type mockSnippetRepo struct {
	snippets map[string]*model.Snippet
	nextID   int
	lastOpts repository.ListOptions
}

func newMockRepo() *mockSnippetRepo {
	return &mockSnippetRepo{snippets: make(map[string]*model.Snippet)}
}

func (m *mockSnippetRepo) Create(_ context.Context, snippet *model.Snippet) error {
	m.nextID++
	snippet.ID = fmt.Sprintf("mock-%02d", m.nextID)
	stored := *snippet
	m.snippets[snippet.ID] = &stored
	return nil
}

func (m *mockSnippetRepo) GetByID(_ context.Context, id string) (*model.Snippet, error) {
	snippet, ok := m.snippets[id]
	if !ok {
		return nil, apperror.NotFound("snippet", id)
	}
	result := *snippet
	return &result, nil
}

func (m *mockSnippetRepo) List(_ context.Context, opts repository.ListOptions) ([]model.Snippet, error) {
	m.lastOpts = opts
	result := make([]model.Snippet, 0, len(m.snippets))
	for _, s := range m.snippets {
		if opts.Language == "" || s.Language == opts.Language {
			result = append(result, *s)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })

	if opts.Offset >= len(result) {
		return []model.Snippet{}, nil
	}
	result = result[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(result) {
		result = result[:opts.Limit]
	}
	return result, nil
}

func (m *mockSnippetRepo) Update(_ context.Context, snippet *model.Snippet) error {
	if _, ok := m.snippets[snippet.ID]; !ok {
		return apperror.NotFound("snippet", snippet.ID)
	}
	stored := *snippet
	m.snippets[snippet.ID] = &stored
	return nil
}

func (m *mockSnippetRepo) Delete(_ context.Context, id string) error {
	if _, ok := m.snippets[id]; !ok {
		return apperror.NotFound("snippet", id)
	}
	delete(m.snippets, id)
	return nil
}

// mockExecutor records the last request.
type mockExecutor struct {
	got    executor.ExecutionRequest
	calls  int
	result *executor.ExecutionResult
	err    error
}

func (m *mockExecutor) Execute(_ context.Context, req executor.ExecutionRequest) (*executor.ExecutionResult, error) {
	m.got = req
	m.calls++
	return m.result, m.err
}

func newTestService(t *testing.T) (*SnippetService, *mockSnippetRepo, *mockExecutor) {
	t.Helper()
	repo := newMockRepo()
	exec := &mockExecutor{}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewSnippetService(repo, exec, logger), repo, exec
}

func mustCreate(t *testing.T, svc *SnippetService, in SnippetInput) *model.Snippet {
	t.Helper()
	s, err := svc.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("setup: Create() error = %v", err)
	}
	return s
}

func TestCreate_Success(t *testing.T) {
	svc, _, _ := newTestService(t)

	snippet, err := svc.Create(context.Background(), SnippetInput{
		Name:        "  hello world  ",
		Language:    "Python",
		Code:        "print('hi')",
		Description: "  a test  ",
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if snippet.ID == "" {
		t.Error("expected snippet to have an ID")
	}
	if snippet.Name != "hello world" {
		t.Errorf("Name = %q, want trimmed %q", snippet.Name, "hello world")
	}
	if snippet.Language != "python" {
		t.Errorf("Language = %q, want canonical %q", snippet.Language, "python")
	}
	if snippet.Description != "a test" {
		t.Errorf("Description = %q, want %q", snippet.Description, "a test")
	}
}

func TestCreate_Validation(t *testing.T) {
	tests := []struct {
		name    string
		in      SnippetInput
		wantErr error
	}{
		{"empty name", SnippetInput{Name: "", Language: "python"}, apperror.ErrValidation},
		{"whitespace name", SnippetInput{Name: "   ", Language: "python"}, apperror.ErrValidation},
		{"long name", SnippetInput{Name: strings.Repeat("a", MaxSnippetNameLength+1), Language: "python"}, apperror.ErrValidation},
		{"long code", SnippetInput{Name: "x", Language: "python", Code: strings.Repeat("a", MaxCodeLength+1)}, apperror.ErrValidation},
		{"unknown language", SnippetInput{Name: "x", Language: "ocaml"}, apperror.ErrUnsupportedLanguage},
		{"missing language", SnippetInput{Name: "x"}, apperror.ErrUnsupportedLanguage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, _ := newTestService(t)

			_, err := svc.Create(context.Background(), tt.in)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
			if len(repo.snippets) != 0 {
				t.Error("invalid snippet was stored")
			}
		})
	}
}

func TestGetByID(t *testing.T) {
	svc, _, _ := newTestService(t)
	created := mustCreate(t, svc, SnippetInput{Name: "test", Language: "go"})

	found, err := svc.GetByID(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if found.Name != "test" {
		t.Errorf("Name = %q, want %q", found.Name, "test")
	}

	if _, err := svc.GetByID(context.Background(), "nonexistent"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("missing id: error = %v, want ErrNotFound", err)
	}
	if _, err := svc.GetByID(context.Background(), " "); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("empty id: error = %v, want ErrValidation", err)
	}
}

func TestList(t *testing.T) {
	svc, repo, _ := newTestService(t)
	mustCreate(t, svc, SnippetInput{Name: "a", Language: "python"})
	mustCreate(t, svc, SnippetInput{Name: "b", Language: "ruby"})

	all, err := svc.List(context.Background(), "", -5, -10)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 2 {
		t.Errorf("List() returned %d items, want 2", len(all))
	}
	if repo.lastOpts.Limit != DefaultListLimit || repo.lastOpts.Offset != 0 {
		t.Errorf("List() passed %+v, want clamped defaults", repo.lastOpts)
	}

	if _, err := svc.List(context.Background(), "", 1000, 0); err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if repo.lastOpts.Limit != MaxListLimit {
		t.Errorf("Limit = %d, want %d", repo.lastOpts.Limit, MaxListLimit)
	}

	rubies, err := svc.List(context.Background(), "RUBY", 0, 0)
	if err != nil {
		t.Fatalf("List(ruby) error = %v", err)
	}
	if len(rubies) != 1 || rubies[0].Language != "ruby" {
		t.Errorf("List(ruby) = %+v", rubies)
	}

	if _, err := svc.List(context.Background(), "cobol", 0, 0); !errors.Is(err, apperror.ErrUnsupportedLanguage) {
		t.Errorf("List(cobol) error = %v, want ErrUnsupportedLanguage", err)
	}
}

func TestUpdate(t *testing.T) {
	svc, _, _ := newTestService(t)
	created := mustCreate(t, svc, SnippetInput{Name: "original", Language: "python", Code: "old", Description: "old"})

	updated, err := svc.Update(context.Background(), created.ID, SnippetInput{Code: "puts 1", Language: "ruby"})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.Name != "original" {
		t.Errorf("Name = %q, want unchanged %q", updated.Name, "original")
	}
	if updated.Language != "ruby" || updated.Code != "puts 1" {
		t.Errorf("Update() = %+v", updated)
	}

	if _, err := svc.Update(context.Background(), created.ID, SnippetInput{Language: "brainfuck"}); !errors.Is(err, apperror.ErrUnsupportedLanguage) {
		t.Errorf("bad language: error = %v, want ErrUnsupportedLanguage", err)
	}
	if _, err := svc.Update(context.Background(), "nonexistent", SnippetInput{Name: "x"}); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("missing id: error = %v, want ErrNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	svc, _, _ := newTestService(t)
	created := mustCreate(t, svc, SnippetInput{Name: "to delete", Language: "bash"})

	if err := svc.Delete(context.Background(), created.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := svc.GetByID(context.Background(), created.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("after delete: error = %v, want ErrNotFound", err)
	}
	if err := svc.Delete(context.Background(), ""); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("empty id: error = %v, want ErrValidation", err)
	}
}

func TestRun(t *testing.T) {
	svc, _, exec := newTestService(t)
	code := 0
	exec.result = &executor.ExecutionResult{Stdout: "4\n", ExitCode: &code}
	created := mustCreate(t, svc, SnippetInput{Name: "sum", Language: "python", Code: "print(2+2)"})

	stdin := "ignored"
	res, err := svc.Run(context.Background(), created.ID, &stdin, 3)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Stdout != "4\n" {
		t.Errorf("Stdout = %q, want %q", res.Stdout, "4\n")
	}

	want := executor.ExecutionRequest{Language: "python", Code: "print(2+2)", Stdin: &stdin, TimeoutSeconds: 3}
	if exec.got.Language != want.Language || exec.got.Code != want.Code ||
		exec.got.Stdin != want.Stdin || exec.got.TimeoutSeconds != want.TimeoutSeconds {
		t.Errorf("executor got %+v, want %+v", exec.got, want)
	}
}

func TestRun_EmptySnippetIsExecuted(t *testing.T) {
	svc, _, exec := newTestService(t)
	code := 0
	exec.result = &executor.ExecutionResult{ExitCode: &code}
	empty := mustCreate(t, svc, SnippetInput{Name: "empty", Language: "python"})

	res, err := svc.Run(context.Background(), empty.ID, nil, 0)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.ExitCode == nil || *res.ExitCode != 0 {
		t.Errorf("exit code = %v, want 0", res.ExitCode)
	}
	if exec.calls != 1 || exec.got.Code != "" {
		t.Errorf("executor calls = %d, code = %q; want one call with empty code", exec.calls, exec.got.Code)
	}
}

func TestRun_Errors(t *testing.T) {
	svc, _, exec := newTestService(t)

	if _, err := svc.Run(context.Background(), "nonexistent", nil, 0); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("missing id: error = %v, want ErrNotFound", err)
	}
	if exec.calls != 0 {
		t.Errorf("executor called %d times, want 0", exec.calls)
	}

	exec.err = apperror.LaunchFailed(errors.New("daemon down"))
	runnable := mustCreate(t, svc, SnippetInput{Name: "ok", Language: "python", Code: "pass"})
	if _, err := svc.Run(context.Background(), runnable.ID, nil, 0); !errors.Is(err, apperror.ErrLaunch) {
		t.Errorf("launch failure: error = %v, want ErrLaunch", err)
	}
}
