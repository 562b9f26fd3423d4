package mcp

import (
	"github.com/mark3labs/mcp-go/server"
)

const instructions = `ShodoBot answers in French. Use send_message for every user turn; ` +
	`pass the same session_id to keep a conversation going. get_history and clear_history ` +
	`inspect or reset that conversation.`

// NewServer registers the chat tools on a new MCP server.
func NewServer(chat ChatService, version string, maxLen int) *server.MCPServer {
	s := server.NewMCPServer(
		"shodobot",
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)

	send := NewSendMessageTool(chat, maxLen)
	s.AddTool(send.Definition(), send.Handle)

	hist := NewGetHistoryTool(chat)
	s.AddTool(hist.Definition(), hist.Handle)

	reset := NewClearHistoryTool(chat)
	s.AddTool(reset.Definition(), reset.Handle)

	return s
}

// ServeStdio serves s over stdin/stdout until the client disconnects.
func ServeStdio(s *server.MCPServer) error {
	return server.ServeStdio(s)
}
