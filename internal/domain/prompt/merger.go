package prompt

import (
	"fmt"
	"strings"

	"github.com/0xcro3dile/shodobot-go/internal/domain/entities"
)

// ExcerptLimit caps the characters shown per result excerpt.
const ExcerptLimit = 300

const indent = "   "

// WorkspaceSection is the outcome of an attempted workspace search.
type WorkspaceSection struct {
	Results []entities.SearchResult
	Failed  bool
}

// DocumentSection is the outcome of an attempted document search.
type DocumentSection struct {
	Results []entities.RetrievalResult
}

// Sections holds the blocks to append. A nil section was not attempted
// and renders nothing.
type Sections struct {
	Workspace *WorkspaceSection
	Documents *DocumentSection
}

// Merge returns answer followed by the workspace block and then the document block.
func Merge(answer string, s Sections) string {
	var b strings.Builder
	b.WriteString(answer)
	if s.Workspace != nil {
		b.WriteString(workspaceBlock(*s.Workspace))
	}
	if s.Documents != nil {
		b.WriteString(documentBlock(*s.Documents))
	}
	return b.String()
}

func workspaceBlock(s WorkspaceSection) string {
	var b strings.Builder
	b.WriteString("\n\n---\n\n### Résultats Notion\n\n")

	if s.Failed {
		b.WriteString("La recherche dans l'espace Notion a échoué. Réessayez dans quelques instants.\n")
		return b.String()
	}
	if len(s.Results) == 0 {
		b.WriteString("Aucune page trouvée dans l'espace Notion. ")
		b.WriteString("Essayez d'autres mots-clés ou vérifiez que les pages sont partagées avec l'intégration.\n")
		return b.String()
	}

	for i, r := range s.Results {
		fmt.Fprintf(&b, "%d. **%s**\n", i+1, r.Title)
		fmt.Fprintf(&b, "%s%s · %s\n", indent, objectLabel(r.Object), r.URL)
		if ex := excerpt(r.Content); ex != "" {
			fmt.Fprintf(&b, "%s%s\n", indent, ex)
		}
	}
	return b.String()
}

func documentBlock(s DocumentSection) string {
	var b strings.Builder
	b.WriteString("\n\n---\n\n### Documents locaux\n\n")

	if len(s.Results) == 0 {
		b.WriteString("Aucun document pertinent trouvé. ")
		b.WriteString("Vérifiez que le service LEANN est démarré et que vos fichiers sont indexés.\n")
		return b.String()
	}

	for i, r := range s.Results {
		fmt.Fprintf(&b, "%d. **%s**\n", i+1, r.Title)
		line := fmt.Sprintf("Pertinence: %.0f%%", r.Score*100)
		if fp := r.FilePath(); fp != "" {
			line += " · " + fp
		}
		fmt.Fprintf(&b, "%s%s\n", indent, line)
		if ex := excerpt(r.Content); ex != "" {
			fmt.Fprintf(&b, "%s%s\n", indent, ex)
		}
	}
	return b.String()
}

func objectLabel(k entities.ObjectKind) string {
	if k == entities.ObjectDatabase {
		return "Base de données"
	}
	return "Page"
}

// excerpt trims content to ExcerptLimit runes and indents continuation lines.
func excerpt(content string) string {
	content = strings.TrimSpace(content)
	if content == "" {
		return ""
	}
	if r := []rune(content); len(r) > ExcerptLimit {
		content = strings.TrimRight(string(r[:ExcerptLimit]), " \n") + "..."
	}
	return strings.ReplaceAll(content, "\n", "\n"+indent)
}
