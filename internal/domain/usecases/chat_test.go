package usecases

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/0xcro3dile/shodobot-go/internal/domain/entities"
	"github.com/0xcro3dile/shodobot-go/internal/domain/ports"
	"github.com/0xcro3dile/shodobot-go/internal/domain/router"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// mockCompletion implements ports.CompletionService for testing
type mockCompletion struct {
	mu       sync.Mutex
	response string
	err      error
	panics   bool
	calls    [][]entities.PromptMessage
}

func (m *mockCompletion) Complete(ctx context.Context, messages []entities.PromptMessage) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.panics {
		panic("provider exploded")
	}
	m.calls = append(m.calls, messages)
	if m.err != nil {
		return "", m.err
	}
	if m.response != "" {
		return m.response, nil
	}
	return "Mocked AI response", nil
}

func (m *mockCompletion) last() []entities.PromptMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[len(m.calls)-1]
}

// mockWorkspace implements ports.WorkspaceSearcher for testing
type mockWorkspace struct {
	available bool
	results   []entities.SearchResult
	err       error
	searches  int
	closed    int
}

func (m *mockWorkspace) Available(context.Context) bool { return m.available }
func (m *mockWorkspace) Ready() bool                    { return m.available }
func (m *mockWorkspace) Close() error                   { m.closed++; return nil }
func (m *mockWorkspace) Search(ctx context.Context, q string, o ports.WorkspaceSearchOptions) ([]entities.SearchResult, error) {
	m.searches++
	if m.err != nil {
		return nil, m.err
	}
	return m.results, nil
}

// mockDocuments implements ports.DocumentRetriever for testing
type mockDocuments struct {
	available bool
	results   []entities.RetrievalResult
	searchErr error
	ask       entities.AskResult
	askErr    error
	searches  int
	asks      int
	closed    int
}

func (m *mockDocuments) Available(context.Context) bool { return m.available }
func (m *mockDocuments) Ready() bool                    { return m.available }
func (m *mockDocuments) Close() error                   { m.closed++; return nil }
func (m *mockDocuments) Search(ctx context.Context, q string, limit int) ([]entities.RetrievalResult, error) {
	m.searches++
	if m.searchErr != nil {
		return []entities.RetrievalResult{}, m.searchErr
	}
	return m.results, nil
}
func (m *mockDocuments) Ask(ctx context.Context, q string) (entities.AskResult, error) {
	m.asks++
	return m.ask, m.askErr
}

type fixture struct {
	llm  *mockCompletion
	ws   *mockWorkspace
	docs *mockDocuments
	p    *ChatPipeline
}

func newFixture(t *testing.T, opt ChatOptions) *fixture {
	t.Helper()
	f := &fixture{
		llm:  &mockCompletion{},
		ws:   &mockWorkspace{},
		docs: &mockDocuments{},
	}
	f.p = NewChatPipeline(opt, Factories{
		Completion: func() (ports.CompletionService, error) { return f.llm, nil },
		Workspace:  func() ports.WorkspaceSearcher { return f.ws },
		Documents:  func() ports.DocumentRetriever { return f.docs },
	}, router.New(router.DefaultKeywords()), nil, zaptest.NewLogger(t))
	return f
}

func TestChatPipeline_PlainMessage(t *testing.T) {
	p := NewChatPipeline(ChatOptions{}, Factories{
		Completion: func() (ports.CompletionService, error) { return &mockCompletion{}, nil },
	}, nil, nil, zaptest.NewLogger(t))

	got := p.ProcessMessage(context.Background(), "Hello, how are you?")

	assert.Equal(t, "Mocked AI response", got)
	hist := p.GetHistory(DefaultSession)
	require.Len(t, hist, 2)
	assert.Equal(t, entities.RoleUser, hist[0].Role)
	assert.Equal(t, "Hello, how are you?", hist[0].Content)
	assert.Equal(t, entities.RoleAssistant, hist[1].Role)
	assert.Equal(t, "Mocked AI response", hist[1].Content)
}

func TestChatPipeline_CompletionSeesUserTurn(t *testing.T) {
	f := newFixture(t, ChatOptions{})
	f.p.ProcessMessage(context.Background(), "first")
	f.p.ProcessMessage(context.Background(), "second")

	msgs := f.llm.last()
	require.Len(t, msgs, 4)
	assert.Equal(t, entities.PromptSystem, msgs[0].Role)
	assert.Equal(t, entities.PromptMessage{Role: entities.PromptHuman, Content: "first"}, msgs[1])
	assert.Equal(t, entities.PromptAssistant, msgs[2].Role)
	assert.Equal(t, entities.PromptMessage{Role: entities.PromptHuman, Content: "second"}, msgs[3])
}

func TestChatPipeline_NoKeywordsMeansNoLookups(t *testing.T) {
	f := newFixture(t, ChatOptions{})
	f.ws.available = true
	f.docs.available = true

	got := f.p.ProcessMessage(context.Background(), "Hello, how are you?")

	assert.Equal(t, "Mocked AI response", got)
	assert.Zero(t, f.ws.searches)
	assert.Zero(t, f.docs.searches)
	assert.Zero(t, f.docs.asks)
	// capability notices are still announced
	assert.Contains(t, f.llm.last()[0].Content, "Notion")
	assert.Contains(t, f.llm.last()[0].Content, "LEANN")
}

func TestChatPipeline_WorkspaceResultsAppended(t *testing.T) {
	f := newFixture(t, ChatOptions{})
	f.ws.available = true
	f.ws.results = []entities.SearchResult{{Title: "Roadmap", URL: "https://notion.so/1", Object: entities.ObjectPage}}

	got := f.p.ProcessMessage(context.Background(), "what is in the wiki?")

	assert.True(t, strings.HasPrefix(got, "Mocked AI response"))
	assert.Contains(t, got, "**Roadmap**")
	assert.Equal(t, 1, f.ws.searches)

	hist := f.p.GetHistory(DefaultSession)
	assert.Equal(t, got, hist[len(hist)-1].Content, "history stores the merged text")
}

func TestChatPipeline_GenericSearchHitsBothSources(t *testing.T) {
	f := newFixture(t, ChatOptions{})
	f.ws.available = true
	f.docs.available = true
	f.docs.results = []entities.RetrievalResult{{Title: "notes", Score: 0.9}}

	got := f.p.ProcessMessage(context.Background(), "search onboarding")

	assert.Equal(t, 1, f.ws.searches)
	assert.Equal(t, 1, f.docs.searches)
	assert.Contains(t, got, "Aucune page trouvée")
	assert.Contains(t, got, "**notes**")
	assert.Less(t, strings.Index(got, "Résultats Notion"), strings.Index(got, "Documents locaux"))
}

func TestChatPipeline_GroundingContextReachesPrompt(t *testing.T) {
	f := newFixture(t, ChatOptions{})
	f.docs.available = true
	f.docs.ask = entities.AskResult{Answer: "x", Context: "Invoice 42 total: 100 EUR"}

	got := f.p.ProcessMessage(context.Background(), "What is the invoice total?")

	assert.Equal(t, "Mocked AI response", got, "grounding adds no result block")
	assert.Equal(t, 1, f.docs.asks)
	assert.Zero(t, f.docs.searches)
	assert.Contains(t, f.llm.last()[0].Content, "Invoice 42 total: 100 EUR")
}

func TestChatPipeline_BusinessTermGroundsAndSearchesWorkspace(t *testing.T) {
	f := newFixture(t, ChatOptions{})
	f.ws.available = true
	f.ws.results = []entities.SearchResult{{Title: "Acme", URL: "https://notion.so/2", Object: entities.ObjectPage}}
	f.docs.available = true
	f.docs.ask = entities.AskResult{Answer: "x", Context: "Client Acme: contrat 2024"}

	got := f.p.ProcessMessage(context.Background(), "show the wiki page for client Acme")

	assert.Equal(t, 1, f.ws.searches)
	assert.Equal(t, 1, f.docs.asks)
	assert.Zero(t, f.docs.searches)
	assert.Contains(t, got, "**Acme**")
	assert.Contains(t, f.llm.last()[0].Content, "Client Acme: contrat 2024")
}

func TestChatPipeline_DocumentFailuresAreAbsorbed(t *testing.T) {
	f := newFixture(t, ChatOptions{})
	f.docs.available = true
	f.docs.searchErr = errors.New("LEANN API error: 500")
	f.docs.askErr = errors.New("timeout")

	got := f.p.ProcessMessage(context.Background(), "show me onboarding")
	assert.Contains(t, got, "Aucun document pertinent trouvé")

	got = f.p.ProcessMessage(context.Background(), "read the pdf")
	assert.Equal(t, "Mocked AI response", got)
	assert.NotContains(t, f.llm.last()[0].Content, "---\n")
}

func TestChatPipeline_WorkspaceErrorPolicies(t *testing.T) {
	t.Run("absorb renders a notice", func(t *testing.T) {
		f := newFixture(t, ChatOptions{})
		f.ws.available = true
		f.ws.err = errors.New("failed to search Notion workspace")

		got := f.p.ProcessMessage(context.Background(), "check the wiki")
		assert.True(t, strings.HasPrefix(got, "Mocked AI response"))
		assert.Contains(t, got, "a échoué")
	})

	t.Run("fail apologises", func(t *testing.T) {
		f := newFixture(t, ChatOptions{WorkspaceErrors: WorkspaceFail})
		f.ws.available = true
		f.ws.err = errors.New("failed to search Notion workspace")

		got := f.p.ProcessMessage(context.Background(), "check the wiki")
		assert.Equal(t, Apology, got)
		assert.Empty(t, f.llm.calls, "completion is never reached")
	})
}

func TestChatPipeline_NeverFails(t *testing.T) {
	t.Run("completion error", func(t *testing.T) {
		f := newFixture(t, ChatOptions{})
		f.llm.err = errors.New("network down")
		assert.Equal(t, Apology, f.p.ProcessMessage(context.Background(), "hi"))
	})

	t.Run("completion panic", func(t *testing.T) {
		f := newFixture(t, ChatOptions{})
		f.llm.panics = true
		assert.Equal(t, Apology, f.p.ProcessMessage(context.Background(), "hi"))
	})

	t.Run("factory error", func(t *testing.T) {
		p := NewChatPipeline(ChatOptions{}, Factories{
			Completion: func() (ports.CompletionService, error) { return nil, errors.New("no key") },
		}, nil, nil, zaptest.NewLogger(t))
		assert.Equal(t, Apology, p.ProcessMessage(context.Background(), "hi"))
		assert.Empty(t, p.GetHistory(DefaultSession))
	})

	t.Run("no completion configured", func(t *testing.T) {
		p := NewChatPipeline(ChatOptions{}, Factories{}, nil, nil, zaptest.NewLogger(t))
		assert.Equal(t, Apology, p.ProcessMessage(context.Background(), "hi"))
	})
}

func TestChatPipeline_FailurePolicies(t *testing.T) {
	tests := []struct {
		policy string
		want   []entities.Role
	}{
		{FailureRollback, nil},
		{FailureKeep, []entities.Role{entities.RoleUser}},
		{FailurePlaceholder, []entities.Role{entities.RoleUser, entities.RoleAssistant}},
	}

	for _, tt := range tests {
		t.Run(tt.policy, func(t *testing.T) {
			f := newFixture(t, ChatOptions{OnFailure: tt.policy})
			f.llm.err = errors.New("boom")

			f.p.ProcessMessage(context.Background(), "hi")

			var roles []entities.Role
			for _, m := range f.p.GetHistory(DefaultSession) {
				roles = append(roles, m.Role)
			}
			assert.Equal(t, tt.want, roles)
		})
	}
}

func TestChatPipeline_HistoryBound(t *testing.T) {
	f := newFixture(t, ChatOptions{MaxHistorySize: 3})
	for i := 0; i < 5; i++ {
		f.p.ProcessMessage(context.Background(), fmt.Sprintf("Message %d", i))
	}
	hist := f.p.GetHistory(DefaultSession)
	require.Len(t, hist, 3)
	assert.Equal(t, entities.RoleAssistant, hist[2].Role)
}

func TestChatPipeline_SessionsAreIsolated(t *testing.T) {
	f := newFixture(t, ChatOptions{})

	f.p.ProcessSessionMessage(context.Background(), "alice", "hello from alice")
	f.p.ProcessSessionMessage(context.Background(), "bob", "hello from bob")

	alice := f.p.GetHistory("alice")
	require.Len(t, alice, 2)
	assert.Equal(t, "hello from alice", alice[0].Content)
	assert.Len(t, f.p.GetHistory("bob"), 2)
	assert.Empty(t, f.p.GetHistory(DefaultSession))

	f.p.ClearHistory("alice")
	f.p.ClearHistory("alice")
	assert.Empty(t, f.p.GetHistory("alice"))
	assert.Len(t, f.p.GetHistory("bob"), 2)
}

func TestChatPipeline_ConcurrentTurnsStayPaired(t *testing.T) {
	f := newFixture(t, ChatOptions{MaxHistorySize: 200})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			f.p.ProcessMessage(context.Background(), fmt.Sprintf("msg %d", i))
		}(i)
	}
	wg.Wait()

	hist := f.p.GetHistory(DefaultSession)
	require.Len(t, hist, 40)
	for i := 0; i < len(hist); i += 2 {
		assert.Equal(t, entities.RoleUser, hist[i].Role)
		assert.Equal(t, entities.RoleAssistant, hist[i+1].Role)
	}
}

func TestChatPipeline_SessionEviction(t *testing.T) {
	f := newFixture(t, ChatOptions{MaxSessions: 2})
	f.p.ProcessSessionMessage(context.Background(), DefaultSession, "a")
	f.p.ProcessSessionMessage(context.Background(), "one", "b")
	f.p.ProcessSessionMessage(context.Background(), "two", "c")

	assert.Equal(t, 2, f.p.Sessions())
	assert.Len(t, f.p.GetHistory(DefaultSession), 2, "default session is never evicted")
}

func TestChatPipeline_EvictionSkipsBusySessions(t *testing.T) {
	f := newFixture(t, ChatOptions{MaxSessions: 2})
	f.p.ProcessSessionMessage(context.Background(), "busy", "a")
	f.p.ProcessSessionMessage(context.Background(), "idle", "b")

	// pin the oldest session as an in-flight turn would
	busy := f.p.acquire("busy")
	f.p.sessionsMu.Lock()
	busy.lastUsed = busy.lastUsed.Add(-time.Hour)
	f.p.sessionsMu.Unlock()

	f.p.ProcessSessionMessage(context.Background(), "new", "c")
	f.p.release(busy)

	f.p.sessionsMu.Lock()
	_, busyKept := f.p.sessions["busy"]
	_, idleKept := f.p.sessions["idle"]
	f.p.sessionsMu.Unlock()

	assert.True(t, busyKept, "a session with a turn in flight must not be evicted")
	assert.False(t, idleKept)
	assert.Len(t, f.p.GetHistory("busy"), 2)
}

func TestChatPipeline_CloseAdapters(t *testing.T) {
	f := newFixture(t, ChatOptions{})
	built := 0
	f.p.factories.Documents = func() ports.DocumentRetriever {
		built++
		return f.docs
	}

	require.NoError(t, f.p.CloseDocumentAdapter(), "closing before first use is a no-op")

	f.p.ProcessMessage(context.Background(), "hi")
	require.Equal(t, 1, built)

	require.NoError(t, f.p.CloseDocumentAdapter())
	require.NoError(t, f.p.CloseDocumentAdapter())
	require.NoError(t, f.p.CloseWorkspaceAdapter())
	assert.Equal(t, 1, f.docs.closed)
	assert.Equal(t, 1, f.ws.closed)

	f.p.ProcessMessage(context.Background(), "hi again")
	assert.Equal(t, 2, built, "adapter is rebuilt lazily after close")
	assert.NoError(t, f.p.Close())
}
