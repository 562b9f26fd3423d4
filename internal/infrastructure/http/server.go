// Package http provides the HTTP server infrastructure.
// Clean Architecture: Framework/driver layer - outermost circle.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/0xcro3dile/shodobot-go/internal/domain/entities"
)

// ChatService is the conversational surface the server exposes.
type ChatService interface {
	ProcessSessionMessage(ctx context.Context, sessionID, text string) string
	GetHistory(sessionID string) []entities.Message
	ClearHistory(sessionID string)
}

// Options configures the HTTP server.
type Options struct {
	Addr             string
	FrontendURL      string
	RateLimit        int // requests per minute per client IP
	MaxMessageLength int
	Metrics          http.Handler // served on /metrics when set
}

// Server is the HTTP server for the chat API.
type Server struct {
	chat    ChatService
	opt     Options
	logger  *zap.Logger
	limiter *ipLimiter
}

type apiResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type messageRequest struct {
	Message   any    `json:"message"`
	SessionID string `json:"session_id"`
}

type messageData struct {
	ReceivedMessage string    `json:"receivedMessage"`
	Response        string    `json:"response"`
	SessionID       string    `json:"sessionId,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

type historyEntry struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// NewServer creates a new HTTP server.
func NewServer(chat ChatService, opt Options, logger *zap.Logger) *Server {
	if opt.MaxMessageLength <= 0 {
		opt.MaxMessageLength = DefaultMaxMessageLength
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		chat:    chat,
		opt:     opt,
		logger:  logger.Named("http"),
		limiter: newIPLimiter(opt.RateLimit, logger.Named("http")),
	}
}

// Handler returns the fully wrapped request handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	if s.opt.Metrics != nil {
		mux.Handle("GET /metrics", s.opt.Metrics)
	}

	api := http.NewServeMux()
	api.HandleFunc("POST /api/message", s.handleMessage)
	api.HandleFunc("GET /api/history", s.handleHistory)
	api.HandleFunc("DELETE /api/history", s.handleClearHistory)
	api.HandleFunc("/", s.handleNotFound)
	mux.Handle("/api/", s.limiter.middleware(api))

	mux.HandleFunc("/", s.handleNotFound)

	return loggingMiddleware(s.logger, securityHeaders(corsMiddleware(s.opt.FrontendURL, recoverMiddleware(s.logger, mux))))
}

// Start runs the HTTP server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:         s.opt.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // completion plus lookups
	}

	s.logger.Info("ShodoBot server starting", zap.String("addr", s.opt.Addr), zap.String("frontend", s.opt.FrontendURL))

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("shutdown", zap.Error(err))
		}
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// handleMessage validates the message and runs one chat turn.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(s.logger, w, http.StatusBadRequest, apiResponse{Success: false, Message: "Invalid JSON body"})
		return
	}

	msg, err := ValidateMessage(req.Message, s.opt.MaxMessageLength)
	if err != nil {
		writeJSON(s.logger, w, http.StatusBadRequest, apiResponse{Success: false, Message: err.Error()})
		return
	}

	// A client disconnect must not abandon a turn halfway through the history.
	reply := s.chat.ProcessSessionMessage(context.WithoutCancel(r.Context()), req.SessionID, msg)

	writeJSON(s.logger, w, http.StatusOK, apiResponse{
		Success: true,
		Message: reply,
		Data: messageData{
			ReceivedMessage: msg,
			Response:        reply,
			SessionID:       req.SessionID,
			Timestamp:       time.Now().UTC(),
		},
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	msgs := s.chat.GetHistory(r.URL.Query().Get("session_id"))
	out := make([]historyEntry, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, historyEntry{ID: m.ID, Role: string(m.Role), Content: m.Content, Timestamp: m.Timestamp})
	}
	writeJSON(s.logger, w, http.StatusOK, apiResponse{Success: true, Message: "History retrieved", Data: out})
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	s.chat.ClearHistory(r.URL.Query().Get("session_id"))
	writeJSON(s.logger, w, http.StatusOK, apiResponse{Success: true, Message: "History cleared"})
}

// handleHealth returns server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, map[string]any{
		"success":   true,
		"message":   "Server is running",
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(s.logger, w, http.StatusNotFound, apiResponse{Success: false, Message: "Route not found"})
}

func recoverMiddleware(logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("handler panic", zap.Any("panic", rec), zap.String("path", r.URL.Path))
				writeJSON(logger, w, http.StatusInternalServerError, apiResponse{Success: false, Message: "Internal server error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// writeJSON sends v with the given status. The header is already out by the
// time encoding fails, so the error can only be logged.
func writeJSON(logger *zap.Logger, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("writing response", zap.Int("status", status), zap.Error(err))
	}
}
