package mcp

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/0xcro3dile/shodobot-go/internal/domain/entities"
)

type fakeChat struct {
	mu       sync.Mutex
	sessions map[string][]entities.Message
}

func newFakeChat() *fakeChat {
	return &fakeChat{sessions: make(map[string][]entities.Message)}
}

func (f *fakeChat) ProcessSessionMessage(ctx context.Context, sessionID, text string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	reply := "Bonjour ! " + text
	f.sessions[sessionID] = append(f.sessions[sessionID],
		entities.NewMessage(entities.RoleUser, text),
		entities.NewMessage(entities.RoleAssistant, reply))
	return reply
}

func (f *fakeChat) GetHistory(sessionID string) []entities.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]entities.Message(nil), f.sessions[sessionID]...)
}

func (f *fakeChat) ClearHistory(sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, sessionID)
}

func makeReq(args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func resultText(r *mcp.CallToolResult) string {
	if r == nil {
		return ""
	}
	for _, c := range r.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestSendMessageTool_Definition(t *testing.T) {
	def := NewSendMessageTool(newFakeChat(), 0).Definition()
	if def.Name != "send_message" {
		t.Errorf("name = %q, want send_message", def.Name)
	}
	if len(def.InputSchema.Required) != 1 || def.InputSchema.Required[0] != "message" {
		t.Errorf("required = %v, want [message]", def.InputSchema.Required)
	}
}

func TestSendMessageTool_Handle(t *testing.T) {
	chat := newFakeChat()
	tool := NewSendMessageTool(chat, 0)

	res, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"message":    "Salut",
		"session_id": "s1",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(res))
	}
	if got := resultText(res); got != "Bonjour ! Salut" {
		t.Errorf("reply = %q", got)
	}
	if n := len(chat.GetHistory("s1")); n != 2 {
		t.Errorf("session s1 has %d messages, want 2", n)
	}
}

func TestSendMessageTool_Validation(t *testing.T) {
	tool := NewSendMessageTool(newFakeChat(), 10)

	tests := []struct {
		name string
		args map[string]interface{}
		want string
	}{
		{"missing", map[string]interface{}{}, "Message is required"},
		{"not a string", map[string]interface{}{"message": 3.0}, "Message must be a string"},
		{"blank", map[string]interface{}{"message": "  "}, "Message cannot be empty"},
		{"too long", map[string]interface{}{"message": strings.Repeat("x", 11)}, "Message too long (max 10 characters)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := tool.Handle(context.Background(), makeReq(tt.args))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !res.IsError {
				t.Fatal("expected a tool error")
			}
			if got := resultText(res); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGetHistoryTool_Handle(t *testing.T) {
	chat := newFakeChat()
	tool := NewGetHistoryTool(chat)

	res, _ := tool.Handle(context.Background(), makeReq(nil))
	if got := resultText(res); got != "No messages in this conversation." {
		t.Errorf("empty history = %q", got)
	}

	chat.ProcessSessionMessage(context.Background(), "", "Quoi de neuf ?")
	res, _ = tool.Handle(context.Background(), makeReq(nil))
	got := resultText(res)
	if !strings.HasPrefix(got, "2 messages:") {
		t.Errorf("expected a two-message listing, got %q", got)
	}
	if !strings.Contains(got, "[1] user") || !strings.Contains(got, "[2] assistant") {
		t.Errorf("roles missing or out of order: %q", got)
	}
}

func TestClearHistoryTool_Handle(t *testing.T) {
	chat := newFakeChat()
	chat.ProcessSessionMessage(context.Background(), "a", "one")
	chat.ProcessSessionMessage(context.Background(), "b", "two")

	res, _ := NewClearHistoryTool(chat).Handle(context.Background(), makeReq(map[string]interface{}{"session_id": "a"}))
	if got := resultText(res); got != `Conversation "a" cleared` {
		t.Errorf("got %q", got)
	}
	if len(chat.GetHistory("a")) != 0 {
		t.Error("session a should be empty")
	}
	if len(chat.GetHistory("b")) != 2 {
		t.Error("session b should be untouched")
	}
}

func TestNewServer(t *testing.T) {
	if NewServer(newFakeChat(), "test", 0) == nil {
		t.Fatal("expected a server")
	}
}
