package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/0xcro3dile/shodobot-go/internal/app"
	"github.com/0xcro3dile/shodobot-go/internal/domain/usecases"
)

var (
	promptStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("39")).
		Bold(true)

	botStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42")).
		Bold(true)

	dimStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))
)

var askCmd = &cobra.Command{
	Use:   "ask <message>",
	Short: "Send one message and print the reply",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.New(cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		reply := a.Pipeline.ProcessMessage(cmd.Context(), strings.Join(args, " "))
		fmt.Fprint(cmd.OutOrStdout(), render(reply))
		return nil
	},
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive conversation in the terminal",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.New(cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		go a.Watch(ctx)

		return repl(ctx, a.Pipeline, os.Stdin, cmd.OutOrStdout())
	},
}

// repl reads one message per line. /clear, /history and /quit are commands.
func repl(ctx context.Context, p *usecases.ChatPipeline, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, dimStyle.Render("ShodoBot - /history, /clear, /quit"))

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for {
		fmt.Fprint(out, promptStyle.Render("vous > "))
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/clear":
			p.ClearHistory(usecases.DefaultSession)
			fmt.Fprintln(out, dimStyle.Render("Historique effacé."))
			continue
		case "/history":
			for _, m := range p.GetHistory(usecases.DefaultSession) {
				fmt.Fprintf(out, "%s %s\n", dimStyle.Render(string(m.Role)+":"), m.Content)
			}
			continue
		}

		reply := p.ProcessMessage(ctx, line)
		fmt.Fprintln(out, botStyle.Render("shodobot >"))
		fmt.Fprint(out, render(reply))
	}
}

// render formats markdown for the terminal, falling back to plain text.
func render(md string) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		return md + "\n"
	}
	out, err := r.Render(md)
	if err != nil {
		return md + "\n"
	}
	return out
}
