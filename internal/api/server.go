package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/MikeSquared-Agency/concierge/internal/bot"
	"github.com/MikeSquared-Agency/concierge/internal/transcript"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// MessageProcessor turns an inbound message into a reply.
type MessageProcessor interface {
	ProcessMessage(ctx context.Context, senderID, text string) bot.Reply
}

// TranscriptReader lists the logged exchanges of a conversation.
type TranscriptReader interface {
	ListTranscript(ctx context.Context, conversationID string) ([]transcript.Entry, error)
}

type Server struct {
	router  *chi.Mux
	auth    func(http.Handler) http.Handler
	proc    MessageProcessor
	logger  *slog.Logger
	pending func() int
	natsUp  func() bool
	httpSrv *http.Server
}

type Option func(*Server)

// WithStaticDir serves the browser chat client from dir at /.
func WithStaticDir(dir string) Option {
	return func(s *Server) {
		if dir == "" {
			return
		}
		s.router.Handle("/*", http.FileServer(http.Dir(dir)))
	}
}

// WithPendingDialogs reports the transcript backlog on the status endpoint.
func WithPendingDialogs(f func() int) Option {
	return func(s *Server) { s.pending = f }
}

// WithNATSStatus reports NATS connectivity on the status endpoint.
func WithNATSStatus(f func() bool) Option {
	return func(s *Server) { s.natsUp = f }
}

// WithTranscripts exposes conversation transcripts at
// GET /api/v1/conversations/{id}/transcript.
func WithTranscripts(tr TranscriptReader) Option {
	return func(s *Server) {
		s.router.With(s.auth).Get("/api/v1/conversations/{id}/transcript", func(w http.ResponseWriter, r *http.Request) {
			s.getTranscript(w, r, tr)
		})
	}
}

func NewServer(port int, apiToken string, proc MessageProcessor, logger *slog.Logger, opts ...Option) *Server {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router: router,
		proc:   proc,
		logger: logger,
		auth:   BearerAuthMiddleware(apiToken),
	}
	s.httpSrv = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	router.Get("/health", s.health)
	router.Get("/api/v1/concierge/status", s.status)
	router.Get("/ws", s.serveWebSocket)
	router.Route("/api/v1/messages", func(r chi.Router) {
		r.Use(s.auth)
		r.Post("/", s.postMessage)
	})

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *Server) Start() error {
	s.logger.Info("API server starting", "addr", s.httpSrv.Addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"agent":  "concierge",
		"status": "running",
	}
	if s.pending != nil {
		body["pending_dialogs"] = s.pending()
	}
	if s.natsUp != nil {
		body["nats_connected"] = s.natsUp()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(body)
}

// MessageRequest is the payload for POST /api/v1/messages.
type MessageRequest struct {
	SenderID string `json:"sender_id"`
	Text     string `json:"text"`
}

// MessageResponse is returned by POST /api/v1/messages.
type MessageResponse struct {
	Text            string `json:"text"`
	ServiceResponse any    `json:"service_response"`
}

func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf(`{"error":"invalid JSON: %v"}`, err), http.StatusBadRequest)
		return
	}
	if req.SenderID == "" || req.Text == "" {
		http.Error(w, `{"error":"sender_id and text are required"}`, http.StatusBadRequest)
		return
	}

	reply := s.proc.ProcessMessage(r.Context(), req.SenderID, req.Text)

	resp := MessageResponse{Text: reply.Text}
	if reply.Response != nil {
		resp.ServiceResponse = reply.Response
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) getTranscript(w http.ResponseWriter, r *http.Request, tr TranscriptReader) {
	id := chi.URLParam(r, "id")
	entries, err := tr.ListTranscript(r.Context(), id)
	if err != nil {
		s.logger.Warn("failed to list transcript", "conversation_id", id, "error", err)
		http.Error(w, `{"error":"transcript unavailable"}`, http.StatusNotFound)
		return
	}
	if entries == nil {
		entries = []transcript.Entry{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"conversation_id": id,
		"entries":         entries,
	})
}
