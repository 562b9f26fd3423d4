// Package mcp exposes the chat pipeline as MCP tools.
//
// Each tool follows the same shape:
// - A struct holding the ChatService, injected via constructor
// - Definition() returns the mcp.Tool schema
// - Handle() processes the request and returns a result
package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/0xcro3dile/shodobot-go/internal/domain/entities"
	httpapi "github.com/0xcro3dile/shodobot-go/internal/infrastructure/http"
)

// ChatService is the subset of the pipeline the tools drive.
type ChatService interface {
	ProcessSessionMessage(ctx context.Context, sessionID, text string) string
	GetHistory(sessionID string) []entities.Message
	ClearHistory(sessionID string)
}

// SendMessageTool handles the send_message MCP tool.
type SendMessageTool struct {
	chat   ChatService
	maxLen int
}

// NewSendMessageTool creates a SendMessageTool.
func NewSendMessageTool(chat ChatService, maxLen int) *SendMessageTool {
	return &SendMessageTool{chat: chat, maxLen: maxLen}
}

// Definition returns the MCP tool definition for send_message.
func (t *SendMessageTool) Definition() mcp.Tool {
	return mcp.NewTool("send_message",
		mcp.WithDescription(
			"Send a message to ShodoBot and get its reply. The bot may search the Notion "+
				"workspace and the local document index before answering.",
		),
		mcp.WithString("message",
			mcp.Required(),
			mcp.Description("The user message"),
		),
		mcp.WithString("session_id",
			mcp.Description("Conversation to continue (default: the shared conversation)"),
		),
	)
}

// Handle processes the send_message tool call.
func (t *SendMessageTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	msg, err := httpapi.ValidateMessage(req.GetArguments()["message"], t.maxLen)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	reply := t.chat.ProcessSessionMessage(context.WithoutCancel(ctx), req.GetString("session_id", ""), msg)
	return mcp.NewToolResultText(reply), nil
}

// GetHistoryTool handles the get_history MCP tool.
type GetHistoryTool struct {
	chat ChatService
}

// NewGetHistoryTool creates a GetHistoryTool.
func NewGetHistoryTool(chat ChatService) *GetHistoryTool {
	return &GetHistoryTool{chat: chat}
}

// Definition returns the MCP tool definition for get_history.
func (t *GetHistoryTool) Definition() mcp.Tool {
	return mcp.NewTool("get_history",
		mcp.WithDescription("Show the retained messages of a conversation, oldest first."),
		mcp.WithString("session_id",
			mcp.Description("Conversation to read (default: the shared conversation)"),
		),
	)
}

// Handle processes the get_history tool call.
func (t *GetHistoryTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	msgs := t.chat.GetHistory(req.GetString("session_id", ""))
	if len(msgs) == 0 {
		return mcp.NewToolResultText("No messages in this conversation."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d messages:\n\n", len(msgs))
	for i, m := range msgs {
		fmt.Fprintf(&b, "[%d] %s (%s)\n%s\n\n", i+1, m.Role, m.Timestamp.Format("2006-01-02 15:04:05"), m.Content)
	}
	return mcp.NewToolResultText(b.String()), nil
}

// ClearHistoryTool handles the clear_history MCP tool.
type ClearHistoryTool struct {
	chat ChatService
}

// NewClearHistoryTool creates a ClearHistoryTool.
func NewClearHistoryTool(chat ChatService) *ClearHistoryTool {
	return &ClearHistoryTool{chat: chat}
}

// Definition returns the MCP tool definition for clear_history.
func (t *ClearHistoryTool) Definition() mcp.Tool {
	return mcp.NewTool("clear_history",
		mcp.WithDescription("Forget every message of a conversation."),
		mcp.WithString("session_id",
			mcp.Description("Conversation to clear (default: the shared conversation)"),
		),
	)
}

// Handle processes the clear_history tool call.
func (t *ClearHistoryTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("session_id", "")
	t.chat.ClearHistory(id)
	if id == "" {
		return mcp.NewToolResultText("Conversation cleared"), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Conversation %q cleared", id)), nil
}
