// Package entities contains core business entities.
// These are the enterprise business rules - pure domain objects with no external dependencies.
package entities

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies who authored a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of the conversation log.
// Messages are immutable once created; the history store only appends and evicts them.
type Message struct {
	ID        string
	Content   string
	Role      Role
	Timestamp time.Time
}

// NewMessage builds a message with a time-ordered ID and the current timestamp.
func NewMessage(role Role, content string) Message {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return Message{
		ID:        id.String(),
		Content:   content,
		Role:      role,
		Timestamp: time.Now(),
	}
}

// PromptRole is the role tag understood by the completion service.
type PromptRole string

const (
	PromptSystem    PromptRole = "system"
	PromptHuman     PromptRole = "human"
	PromptAssistant PromptRole = "assistant"
)

// PromptMessage is a role-tagged message sent to the completion service.
type PromptMessage struct {
	Role    PromptRole
	Content string
}

// ObjectKind is the kind of workspace object a search hit refers to.
type ObjectKind string

const (
	ObjectPage     ObjectKind = "page"
	ObjectDatabase ObjectKind = "database"
)

// SearchResult is a hit from the workspace search source.
type SearchResult struct {
	ID             string
	Title          string
	URL            string
	Content        string // Excerpt, empty when the source returned none
	LastEditedTime time.Time
	Object         ObjectKind
}

// RetrievalResult is a passage returned by the document retrieval source.
type RetrievalResult struct {
	ID       string
	Title    string
	Content  string
	URL      string
	Score    float64 // Relevance in [0,1]
	Metadata map[string]any
}

// FilePath returns the file_path metadata entry, or "" when absent.
func (r RetrievalResult) FilePath() string {
	if r.Metadata == nil {
		return ""
	}
	s, _ := r.Metadata["file_path"].(string)
	return s
}

// AskResult is the document source's own answer to a question.
// An empty Context means there is nothing to ground on.
type AskResult struct {
	Answer  string
	Context string
}

// RoutingDecision says which knowledge sources a turn should consult.
type RoutingDecision struct {
	SearchWorkspace     bool
	SearchDocuments     bool
	GroundWithDocuments bool
}

// Any reports whether at least one source is consulted.
func (d RoutingDecision) Any() bool {
	return d.SearchWorkspace || d.SearchDocuments || d.GroundWithDocuments
}

// Label is a short name for the decision, used in logs and metrics.
func (d RoutingDecision) Label() string {
	switch {
	case d.GroundWithDocuments && d.SearchWorkspace:
		return "ground+workspace"
	case d.GroundWithDocuments:
		return "ground"
	case d.SearchWorkspace && d.SearchDocuments:
		return "both"
	case d.SearchWorkspace:
		return "workspace"
	case d.SearchDocuments:
		return "documents"
	default:
		return "none"
	}
}
