// Package prompt builds the message list sent to the completion service
// and merges its answer with formatted knowledge-source results.
package prompt

import (
	"strings"

	"github.com/0xcro3dile/shodobot-go/internal/domain/entities"
)

// DefaultPersona is the base system instruction.
const DefaultPersona = "Tu es ShodoBot, un assistant IA utile et amical. " +
	"Tu réponds en français de manière concise et professionnelle."

const (
	workspaceNotice = "Tu peux consulter l'espace de travail Notion de l'utilisateur. " +
		"Les pages trouvées sont ajoutées après ta réponse."
	documentsNotice = "Tu peux consulter les documents locaux de l'utilisateur via LEANN. " +
		"Les documents trouvés sont ajoutés après ta réponse."
	groundingHeader = "Voici des extraits des documents de l'utilisateur. " +
		"Réponds en utilisant exactement ces informations, sans en inventer d'autres:"
)

// Input is everything the assembler needs for one turn.
type Input struct {
	WorkspaceAvailable bool
	DocumentsAvailable bool
	GroundingContext   string
	History            []entities.PromptMessage
}

// Assembler is stateless; the zero value uses DefaultPersona.
type Assembler struct {
	Persona string
}

// Assemble returns the system instruction followed by the formatted history.
func (a Assembler) Assemble(in Input) []entities.PromptMessage {
	persona := a.Persona
	if persona == "" {
		persona = DefaultPersona
	}

	var sys strings.Builder
	sys.WriteString(persona)
	if in.WorkspaceAvailable {
		sys.WriteString("\n\n")
		sys.WriteString(workspaceNotice)
	}
	if in.DocumentsAvailable {
		sys.WriteString("\n\n")
		sys.WriteString(documentsNotice)
	}
	if strings.TrimSpace(in.GroundingContext) != "" {
		sys.WriteString("\n\n")
		sys.WriteString(groundingHeader)
		sys.WriteString("\n---\n")
		sys.WriteString(in.GroundingContext)
		sys.WriteString("\n---")
	}

	out := make([]entities.PromptMessage, 0, len(in.History)+1)
	out = append(out, entities.PromptMessage{Role: entities.PromptSystem, Content: sys.String()})
	out = append(out, in.History...)
	return out
}
