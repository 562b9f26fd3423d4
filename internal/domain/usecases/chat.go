// Package usecases - chat.go runs one conversational turn end to end.
package usecases

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/0xcro3dile/shodobot-go/internal/domain/entities"
	"github.com/0xcro3dile/shodobot-go/internal/domain/history"
	"github.com/0xcro3dile/shodobot-go/internal/domain/ports"
	"github.com/0xcro3dile/shodobot-go/internal/domain/prompt"
	"github.com/0xcro3dile/shodobot-go/internal/domain/router"
	"github.com/0xcro3dile/shodobot-go/internal/metrics"
)

// Apology is returned for every failed turn.
const Apology = "Désolé, je rencontre un problème technique. Pouvez-vous réessayer ?"

// DefaultSession is the conversation used when callers pass no session ID.
const DefaultSession = ""

// History policies for a failed turn.
const (
	FailureRollback    = "rollback"
	FailureKeep        = "keep"
	FailurePlaceholder = "placeholder"
)

// Workspace error policies.
const (
	WorkspaceAbsorb = "absorb"
	WorkspaceFail   = "fail"
)

// ChatOptions tunes the pipeline. Zero values take defaults.
type ChatOptions struct {
	MaxHistorySize  int
	Persona         string
	OnFailure       string
	WorkspaceErrors string
	WorkspaceLimit  int
	DocumentLimit   int
	MaxSessions     int
}

// Factories lazily build the pipeline's collaborators. Workspace and
// Documents may be nil, or return nil, when the source is not configured.
type Factories struct {
	Completion func() (ports.CompletionService, error)
	Workspace  func() ports.WorkspaceSearcher
	Documents  func() ports.DocumentRetriever
}

type session struct {
	mu       sync.Mutex // serialises turns
	history  *history.Store
	lastUsed time.Time
	inflight int // callers between acquire and release; guarded by sessionsMu
}

// ChatPipeline owns the conversation sessions and the knowledge-source adapters.
// Turns within one session run one at a time, in call order.
type ChatPipeline struct {
	opt       ChatOptions
	factories Factories
	router    *router.Router
	assembler prompt.Assembler
	metrics   *metrics.Recorder
	logger    *zap.Logger

	mu         sync.Mutex // guards the lazy instances below
	completion ports.CompletionService
	workspace  ports.WorkspaceSearcher
	documents  ports.DocumentRetriever

	sessionsMu sync.Mutex
	sessions   map[string]*session
}

// NewChatPipeline creates a ChatPipeline with injected dependencies.
func NewChatPipeline(opt ChatOptions, f Factories, r *router.Router, rec *metrics.Recorder, logger *zap.Logger) *ChatPipeline {
	if opt.MaxHistorySize <= 0 {
		opt.MaxHistorySize = history.DefaultMaxSize
	}
	if opt.OnFailure == "" {
		opt.OnFailure = FailureRollback
	}
	if opt.WorkspaceErrors == "" {
		opt.WorkspaceErrors = WorkspaceAbsorb
	}
	if opt.WorkspaceLimit <= 0 {
		opt.WorkspaceLimit = 5
	}
	if opt.DocumentLimit <= 0 {
		opt.DocumentLimit = 5
	}
	if opt.MaxSessions <= 0 {
		opt.MaxSessions = 1000
	}
	if r == nil {
		r = router.New(router.DefaultKeywords())
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatPipeline{
		opt:       opt,
		factories: f,
		router:    r,
		assembler: prompt.Assembler{Persona: opt.Persona},
		metrics:   rec,
		logger:    logger,
		sessions:  make(map[string]*session),
	}
}

// ProcessMessage runs one turn in the default session.
func (p *ChatPipeline) ProcessMessage(ctx context.Context, text string) string {
	return p.ProcessSessionMessage(ctx, DefaultSession, text)
}

// ProcessSessionMessage runs one turn and always returns displayable text.
// Failures are logged and replaced by Apology.
func (p *ChatPipeline) ProcessSessionMessage(ctx context.Context, sessionID, text string) (reply string) {
	sess := p.acquire(sessionID)
	defer p.release(sess)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	var userID string
	defer func() {
		if r := recover(); r != nil {
			p.fail(sess, sessionID, userID, fmt.Errorf("panic: %v", r))
			reply = Apology
		}
	}()

	answer, err := p.turn(ctx, sess, text, &userID)
	if err != nil {
		p.fail(sess, sessionID, userID, err)
		return Apology
	}
	p.metrics.IncTurn("ok")
	return answer
}

// turn performs the ordered steps: append user, route, look up, complete,
// merge, append assistant. userID is set as soon as the user turn is stored.
func (p *ChatPipeline) turn(ctx context.Context, sess *session, text string, userID *string) (string, error) {
	completion, err := p.completionService()
	if err != nil {
		return "", fmt.Errorf("initializing completion service: %w", err)
	}
	ws := p.workspaceSearcher()
	docs := p.documentRetriever()

	userMsg := entities.NewMessage(entities.RoleUser, text)
	sess.history.Add(userMsg)
	*userID = userMsg.ID

	avail := router.Availability{
		Workspace: ws != nil && ws.Available(ctx),
		Documents: docs != nil && docs.Available(ctx),
	}
	decision := p.router.Route(text, avail)
	p.metrics.IncRoute(decision.Label())
	p.logger.Debug("routed message",
		zap.String("route", decision.Label()),
		zap.Bool("workspace_available", avail.Workspace),
		zap.Bool("documents_available", avail.Documents))

	var (
		sections  prompt.Sections
		grounding string
	)
	g, gctx := errgroup.WithContext(ctx)

	if decision.SearchWorkspace {
		g.Go(func() error {
			start := time.Now()
			results, err := ws.Search(gctx, text, ports.WorkspaceSearchOptions{Limit: p.opt.WorkspaceLimit})
			p.metrics.ObserveSource(metrics.SourceWorkspace, start, err)
			if err != nil {
				if p.opt.WorkspaceErrors == WorkspaceFail {
					return err
				}
				p.logger.Warn("workspace search failed", zap.Error(err))
				sections.Workspace = &prompt.WorkspaceSection{Failed: true}
				return nil
			}
			sections.Workspace = &prompt.WorkspaceSection{Results: results}
			return nil
		})
	}

	if decision.SearchDocuments {
		g.Go(func() error {
			start := time.Now()
			results, err := docs.Search(gctx, text, p.opt.DocumentLimit)
			p.metrics.ObserveSource(metrics.SourceDocuments, start, err)
			if err != nil {
				p.logger.Warn("document search failed", zap.Error(err))
			}
			sections.Documents = &prompt.DocumentSection{Results: results}
			return nil
		})
	}

	if decision.GroundWithDocuments {
		g.Go(func() error {
			start := time.Now()
			res, err := docs.Ask(gctx, text)
			p.metrics.ObserveSource(metrics.SourceDocuments, start, err)
			if err != nil {
				p.logger.Warn("document question failed", zap.Error(err), zap.String("answer", res.Answer))
				return nil
			}
			grounding = res.Context
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return "", err
	}

	messages := p.assembler.Assemble(prompt.Input{
		WorkspaceAvailable: avail.Workspace,
		DocumentsAvailable: avail.Documents,
		GroundingContext:   grounding,
		History:            sess.history.FormattedHistory(),
	})

	start := time.Now()
	answer, err := completion.Complete(ctx, messages)
	p.metrics.ObserveSource(metrics.SourceCompletion, start, err)
	if err != nil {
		return "", fmt.Errorf("generating response: %w", err)
	}

	final := prompt.Merge(answer, sections)
	sess.history.Add(entities.NewMessage(entities.RoleAssistant, final))
	return final, nil
}

// fail logs err and applies the history policy to the unpaired user turn.
func (p *ChatPipeline) fail(sess *session, sessionID, userID string, err error) {
	p.metrics.IncTurn("apology")
	p.logger.Error("Error processing message",
		zap.String("session", sessionID),
		zap.String("policy", p.opt.OnFailure),
		zap.Error(err))

	if userID == "" {
		return
	}
	switch p.opt.OnFailure {
	case FailureKeep:
	case FailurePlaceholder:
		sess.history.Add(entities.NewMessage(entities.RoleAssistant, Apology))
	default:
		sess.history.Rollback(userID)
	}
}

// GetHistory returns a copy of a session's messages.
func (p *ChatPipeline) GetHistory(sessionID string) []entities.Message {
	sess := p.acquire(sessionID)
	defer p.release(sess)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.history.History()
}

// ClearHistory empties a session, waiting for any in-flight turn.
func (p *ChatPipeline) ClearHistory(sessionID string) {
	sess := p.acquire(sessionID)
	defer p.release(sess)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.history.Clear()
}

// Sessions returns the number of live sessions.
func (p *ChatPipeline) Sessions() int {
	p.sessionsMu.Lock()
	defer p.sessionsMu.Unlock()
	return len(p.sessions)
}

// acquire returns the session for id, creating it if needed, and pins it
// against eviction until release.
func (p *ChatPipeline) acquire(id string) *session {
	p.sessionsMu.Lock()
	defer p.sessionsMu.Unlock()

	if s, ok := p.sessions[id]; ok {
		s.lastUsed = time.Now()
		s.inflight++
		return s
	}
	if len(p.sessions) >= p.opt.MaxSessions {
		p.evictOldest()
	}
	s := &session{history: history.NewStore(p.opt.MaxHistorySize), lastUsed: time.Now(), inflight: 1}
	p.sessions[id] = s
	p.metrics.SetSessions(len(p.sessions))
	return s
}

func (p *ChatPipeline) release(s *session) {
	p.sessionsMu.Lock()
	s.inflight--
	p.sessionsMu.Unlock()
}

// evictOldest drops the least recently used idle session other than the
// default. Pinned sessions are skipped, so the map may exceed MaxSessions
// while every candidate is busy. Callers hold sessionsMu.
func (p *ChatPipeline) evictOldest() {
	var (
		oldestID string
		oldest   time.Time
		found    bool
	)
	for id, s := range p.sessions {
		if id == DefaultSession {
			continue
		}
		if s.inflight > 0 {
			continue
		}
		if !found || s.lastUsed.Before(oldest) {
			oldestID, oldest, found = id, s.lastUsed, true
		}
	}
	if found {
		delete(p.sessions, oldestID)
		p.logger.Debug("evicted idle session", zap.String("session", oldestID))
	}
}

func (p *ChatPipeline) completionService() (ports.CompletionService, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.completion != nil {
		return p.completion, nil
	}
	if p.factories.Completion == nil {
		return nil, errors.New("no completion service configured")
	}
	c, err := p.factories.Completion()
	if err != nil {
		return nil, err
	}
	p.completion = c
	return c, nil
}

func (p *ChatPipeline) workspaceSearcher() ports.WorkspaceSearcher {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.workspace == nil && p.factories.Workspace != nil {
		p.workspace = p.factories.Workspace()
	}
	return p.workspace
}

func (p *ChatPipeline) documentRetriever() ports.DocumentRetriever {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.documents == nil && p.factories.Documents != nil {
		p.documents = p.factories.Documents()
	}
	return p.documents
}

// CloseWorkspaceAdapter tears down the workspace adapter. The next turn
// builds a fresh one. Safe to call repeatedly.
func (p *ChatPipeline) CloseWorkspaceAdapter() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.workspace == nil {
		return nil
	}
	err := p.workspace.Close()
	p.workspace = nil
	return err
}

// CloseDocumentAdapter tears down the document adapter. The next turn
// builds a fresh one. Safe to call repeatedly.
func (p *ChatPipeline) CloseDocumentAdapter() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.documents == nil {
		return nil
	}
	err := p.documents.Close()
	p.documents = nil
	return err
}

// Close tears down both adapters.
func (p *ChatPipeline) Close() error {
	return errors.Join(p.CloseWorkspaceAdapter(), p.CloseDocumentAdapter())
}
