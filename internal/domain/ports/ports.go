// Package ports defines interfaces for external dependencies.
// Clean Architecture: These are the boundaries - usecases depend on these abstractions,
// not concrete implementations. Adapters implement these interfaces.
package ports

import (
	"context"

	"github.com/0xcro3dile/shodobot-go/internal/domain/entities"
)

// CompletionService turns an ordered, role-tagged conversation into a reply.
type CompletionService interface {
	// Complete returns the assistant text for the given messages.
	Complete(ctx context.Context, messages []entities.PromptMessage) (string, error)
}

// KnowledgeSource is the lifecycle shared by every external knowledge adapter.
type KnowledgeSource interface {
	// Available reports whether the source is enabled and reachable.
	// A disabled source answers false without any network I/O.
	Available(ctx context.Context) bool

	// Ready reports the cached connectivity flag without probing.
	Ready() bool

	// Close drops the connection state. Safe to call more than once.
	Close() error
}

// WorkspaceSearchOptions narrows a workspace search.
type WorkspaceSearchOptions struct {
	Limit       int
	FilterKey   string // defaults to "object"
	FilterValue string // defaults to "page"; "*" disables the filter
}

// WorkspaceSearcher searches a hosted workspace (pages and databases).
type WorkspaceSearcher interface {
	KnowledgeSource

	// Search returns matching workspace objects. Disabled or
	// unconfigured searchers return an empty slice and no error.
	Search(ctx context.Context, query string, opts WorkspaceSearchOptions) ([]entities.SearchResult, error)
}

// DocumentRetriever searches and answers over a local document index.
type DocumentRetriever interface {
	KnowledgeSource

	// Search returns ranked passages. On failure it returns an empty
	// slice together with the error.
	Search(ctx context.Context, query string, limit int) ([]entities.RetrievalResult, error)

	// Ask returns the source's own answer plus the context it used.
	// The returned AskResult always carries a displayable Answer,
	// even when err is non-nil.
	Ask(ctx context.Context, question string) (entities.AskResult, error)
}

// FileWatcher monitors a path for changes.
type FileWatcher interface {
	// Watch starts monitoring the directory and emits events.
	Watch(ctx context.Context, dir string) (<-chan FileEvent, error)

	// Stop stops the watcher.
	Stop() error
}

// FileEvent represents a file system change.
type FileEvent struct {
	Path      string
	Operation FileOperation
}

// FileOperation is the type of file change.
type FileOperation int

const (
	FileCreated FileOperation = iota
	FileModified
	FileDeleted
)
