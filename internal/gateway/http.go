package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rahul/ordermind/internal/agent"
	"github.com/rahul/ordermind/internal/observability"
	"github.com/rahul/ordermind/internal/workflow"
)

// Streamer runs one conversation turn and reports its events as they happen.
type Streamer interface {
	Stream(ctx context.Context, chatID, input string, emit agent.EmitFunc) (*agent.RunResult, error)
}

// TaskService is the slice of the workflow engine the HTTP surface exposes.
type TaskService interface {
	Get(ctx context.Context, id string) (*workflow.Task, error)
	Confirm(ctx context.Context, id string, expected workflow.Step) (*workflow.Task, error)
}

type chatRequest struct {
	Type    string `json:"type,omitempty"` // "cancel" aborts the running turn (websocket only)
	ChatID  string `json:"chat_id"`
	Message string `json:"message"`
}

type confirmRequest struct {
	ExpectedStep string `json:"expected_step"`
}

// HTTPGateway serves the streaming chat API, the workflow endpoints and
// generated reports.
type HTTPGateway struct {
	Addr       string
	Brain      Streamer
	Tasks      TaskService
	ReportsDir string

	upgrader websocket.Upgrader
	srv      *http.Server
}

func NewHTTPGateway(addr string, brain Streamer, tasks TaskService, reportsDir string) *HTTPGateway {
	return &HTTPGateway{
		Addr:       addr,
		Brain:      brain,
		Tasks:      tasks,
		ReportsDir: reportsDir,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (g *HTTPGateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", g.handleChat)
	mux.HandleFunc("GET /api/chat/ws", g.handleChatWS)
	mux.HandleFunc("GET /api/tasks/{id}", g.handleGetTask)
	mux.HandleFunc("POST /api/tasks/{id}/confirm", g.handleConfirmTask)
	mux.HandleFunc("GET /healthz", g.handleHealth)
	if g.ReportsDir != "" {
		mux.Handle("GET /reports/", http.StripPrefix("/reports/", http.FileServer(http.Dir(g.ReportsDir))))
	}
	return mux
}

// Start serves until Stop.
func (g *HTTPGateway) Start() error {
	g.srv = &http.Server{
		Addr:              g.Addr,
		Handler:           g.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Printf("HTTP gateway listening on %s", g.Addr)
	if err := g.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (g *HTTPGateway) Stop() error {
	if g.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.srv.Shutdown(ctx)
}

// handleChat streams one turn as server-sent events. A client disconnect
// cancels the run.
func (g *HTTPGateway) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	chatID := ownerID(req.ChatID)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Chat-ID", chatID)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	emit := func(e agent.Event) {
		data, err := json.Marshal(e.Data)
		if err != nil {
			data, _ = json.Marshal(map[string]string{"message": err.Error()})
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Type, data)
		flusher.Flush()
	}
	if _, err := g.Brain.Stream(r.Context(), chatID, req.Message, emit); err != nil {
		log.Printf("[http] chat %s ended with error: %v", chatID, err)
	}
}

// handleChatWS runs turns for every message received on the socket. Events
// are written back as JSON objects; {"type":"cancel"} aborts the current
// turn and closing the socket aborts everything.
func (g *HTTPGateway) handleChatWS(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[http] websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	connCtx, closeConn := context.WithCancel(context.Background())
	defer closeConn()

	var mu sync.Mutex
	cancelRun := func() {}
	incoming := make(chan chatRequest, 8)

	go func() {
		defer close(incoming)
		for {
			var req chatRequest
			if err := conn.ReadJSON(&req); err != nil {
				closeConn()
				return
			}
			if req.Type == "cancel" {
				mu.Lock()
				cancelRun()
				mu.Unlock()
				continue
			}
			select {
			case incoming <- req:
			case <-connCtx.Done():
				return
			}
		}
	}()

	for req := range incoming {
		if strings.TrimSpace(req.Message) == "" {
			_ = conn.WriteJSON(agent.Event{Type: agent.EventError, Data: map[string]any{"kind": "bad_request", "message": "message is required"}})
			continue
		}
		runCtx, cancel := context.WithCancel(connCtx)
		mu.Lock()
		cancelRun = cancel
		mu.Unlock()

		chatID := ownerID(req.ChatID)
		emit := func(e agent.Event) {
			if err := conn.WriteJSON(e); err != nil {
				cancel()
			}
		}
		if _, err := g.Brain.Stream(runCtx, chatID, req.Message, emit); err != nil {
			log.Printf("[http] ws chat %s ended with error: %v", chatID, err)
		}
		cancel()
	}
}

func (g *HTTPGateway) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, err := g.Tasks.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeTaskError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task.Summary())
}

func (g *HTTPGateway) handleConfirmTask(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	expected, ok := workflow.ParseStep(req.ExpectedStep)
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown step %q", req.ExpectedStep))
		return
	}
	task, err := g.Tasks.Confirm(r.Context(), r.PathValue("id"), expected)
	if err != nil {
		writeTaskError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task.Summary())
}

func (g *HTTPGateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, observability.GetStatus())
}

// ownerID namespaces HTTP conversations under "http:" so a client cannot
// address another channel's history; a missing id starts a new one.
func ownerID(chatID string) string {
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return "http:" + uuid.NewString()
	}
	if strings.HasPrefix(chatID, "http:") {
		return chatID
	}
	return "http:" + chatID
}

func writeTaskError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, workflow.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, workflow.ErrStepMismatch):
		writeError(w, http.StatusPreconditionFailed, err.Error())
	case errors.Is(err, workflow.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
