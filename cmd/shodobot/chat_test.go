package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xcro3dile/shodobot-go/internal/domain/entities"
	"github.com/0xcro3dile/shodobot-go/internal/domain/ports"
	"github.com/0xcro3dile/shodobot-go/internal/domain/usecases"
)

type staticCompletion string

func (s staticCompletion) Complete(ctx context.Context, messages []entities.PromptMessage) (string, error) {
	return string(s), nil
}

func newPipeline() *usecases.ChatPipeline {
	return usecases.NewChatPipeline(usecases.ChatOptions{}, usecases.Factories{
		Completion: func() (ports.CompletionService, error) { return staticCompletion("Bienvenue"), nil },
	}, nil, nil, nil)
}

func TestRepl_Conversation(t *testing.T) {
	p := newPipeline()
	var out bytes.Buffer

	in := strings.NewReader("Salut\n\n/history\n/quit\nnever read\n")
	require.NoError(t, repl(context.Background(), p, in, &out))

	assert.Contains(t, out.String(), "Bienvenue")
	assert.Contains(t, out.String(), "user:")
	assert.Len(t, p.GetHistory(usecases.DefaultSession), 2)
}

func TestRepl_Clear(t *testing.T) {
	p := newPipeline()
	var out bytes.Buffer

	in := strings.NewReader("Salut\n/clear\n")
	require.NoError(t, repl(context.Background(), p, in, &out))

	assert.Contains(t, out.String(), "Historique effacé.")
	assert.Empty(t, p.GetHistory(usecases.DefaultSession))
}

func TestRender_PlainFallbackKeepsText(t *testing.T) {
	assert.Contains(t, render("**Roadmap**"), "Roadmap")
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, "shodobot dev\n", out.String())
}
