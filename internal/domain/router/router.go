// Package router decides which knowledge sources a message should consult.
// The decision is a pure function of the message text, source availability
// and a versioned keyword configuration.
package router

import (
	"strings"

	"go.uber.org/atomic"

	"github.com/0xcro3dile/shodobot-go/internal/domain/entities"
)

// Keywords is one version of the routing vocabulary.
// Matching is case-insensitive substring matching.
type Keywords struct {
	Version   int      `yaml:"version"`
	Workspace []string `yaml:"workspace"`
	Documents []string `yaml:"documents"`
	Generic   []string `yaml:"generic"`
	Business  []string `yaml:"business"`
}

// DefaultKeywords returns the built-in vocabulary (English and French).
func DefaultKeywords() Keywords {
	return Keywords{
		Version:   1,
		Workspace: []string{"notion", "wiki", "workspace", "space", "espace"},
		Documents: []string{
			"document", "file", "fichier", "local", "leann", "retrieval",
			"pdf", "markdown", "code", "invoice", "facture", "amount", "montant",
		},
		Generic: []string{"search", "find", "list", "show", "cherche", "trouve", "liste", "montre"},
		Business: []string{
			"invoice", "facture", "amount", "montant", "total",
			"payment", "paiement", "client", "quote", "devis", "contract", "contrat",
		},
	}
}

// Availability reports which sources can be consulted for this turn.
type Availability struct {
	Workspace bool
	Documents bool
}

// Route classifies text against kw.
// Document intent is evaluated first. A message matching both workspace and
// document keywords goes to the documents only.
func Route(text string, avail Availability, kw Keywords) entities.RoutingDecision {
	lower := strings.ToLower(text)
	w := matchesAny(lower, kw.Workspace)
	d := matchesAny(lower, kw.Documents)
	g := matchesAny(lower, kw.Generic)
	b := matchesAny(lower, kw.Business)

	var dec entities.RoutingDecision
	dec.GroundWithDocuments = avail.Documents && (d || b)
	dec.SearchDocuments = avail.Documents && !dec.GroundWithDocuments && (d || (g && !w))
	dec.SearchWorkspace = avail.Workspace && !(dec.GroundWithDocuments && d) && (w || (g && !d))
	return dec
}

func matchesAny(lower string, words []string) bool {
	for _, k := range words {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" && strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// Router holds the active keyword set and lets it be swapped at runtime.
type Router struct {
	kw atomic.Pointer[Keywords]
}

// New creates a router using kw.
func New(kw Keywords) *Router {
	r := &Router{}
	r.kw.Store(&kw)
	return r
}

// Route classifies text with the currently active keywords.
func (r *Router) Route(text string, avail Availability) entities.RoutingDecision {
	return Route(text, avail, *r.kw.Load())
}

// Keywords returns the active keyword set.
func (r *Router) Keywords() Keywords {
	return *r.kw.Load()
}

// Swap replaces the active keyword set and returns the previous one.
func (r *Router) Swap(kw Keywords) Keywords {
	return *r.kw.Swap(&kw)
}
