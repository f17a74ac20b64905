package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/sjson"

	"auratask/app/core/conversation"
	"auratask/app/core/extraction"
	"auratask/app/core/orchestrator/taskstore"
	"auratask/app/pkg/logger"
	"auratask/app/pkg/types"
)

const (
	defaultUserID   = "local_user"
	defaultListSize = 50
	maxListSize     = 200
)

// Server exposes the stateless extraction proxy and the task endpoints. The
// proxy holds no conversation state: the caller sends the full transcript
// each turn and keeps the pending-confirmation machine on its side.
type Server struct {
	port            int
	server          *http.Server
	completer       conversation.Completer
	store           *taskstore.Store
	statusProvider  func(context.Context) map[string]interface{}
	shutdownTimeout time.Duration
	now             func() time.Time
}

func NewServer(port int, completer conversation.Completer, store *taskstore.Store) *Server {
	return &Server{
		port:            port,
		completer:       completer,
		store:           store,
		shutdownTimeout: 5 * time.Second,
		now:             time.Now,
	}
}

func (s *Server) SetStatusProvider(provider func(context.Context) map[string]interface{}) {
	s.statusProvider = provider
}

func (s *Server) SetShutdownTimeout(timeout time.Duration) {
	if timeout <= 0 {
		return
	}
	s.shutdownTimeout = timeout
}

// SetClock overrides the reference-date source. Tests only.
func (s *Server) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/process-task", s.handleProcessTask)
	mux.HandleFunc("/api/tasks", s.handleTasks)
	mux.HandleFunc("/api/tasks/", s.handleTasks)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			logger.Error("[HTTP] Shutdown error: %v", err)
		}
	}()

	logger.Info("[HTTP] Listening on port %d...", s.port)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

type incomingMessage struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

type processTaskRequest struct {
	Messages []incomingMessage `json:"messages"`
}

// handleProcessTask forwards the caller's transcript to the completion
// endpoint and returns the normalized reply. Contract: 200 with
// {sender, text, [type, taskData]}, 400 when the message array is missing or
// empty, 405 for non-POST, 500 on upstream transport failure.
func (s *Server) handleProcessTask(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Bad request")
		return
	}
	defer r.Body.Close()

	var req processTaskRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "Message history is required.")
		return
	}

	transcript := make([]types.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		sender := types.SenderUser
		if m.Sender == types.SenderAssistant {
			sender = types.SenderAssistant
		}
		transcript = append(transcript, types.Message{Sender: sender, Text: m.Text})
	}

	prompt := extraction.BuildSystemPrompt(s.now())
	raw, err := s.completer.Complete(r.Context(), prompt, transcript)
	if err != nil {
		logger.Error("[HTTP] Completion failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to process request with AI.")
		return
	}

	reply := extraction.Interpret(raw)

	// Shape the response the way the web client expects: the normalized
	// reply with the assistant sender attached.
	payload := "{}"
	payload, _ = sjson.Set(payload, "sender", types.SenderAssistant)
	payload, _ = sjson.Set(payload, "text", reply.Text)
	if reply.Kind == extraction.ReplyConfirmation {
		payload, _ = sjson.Set(payload, "type", "confirmation")
		if draftJSON, marshalErr := json.Marshal(reply.TaskData); marshalErr == nil {
			payload, _ = sjson.SetRaw(payload, "taskData", string(draftJSON))
		}
	}

	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/api/tasks" {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		s.handleListTasks(w, r)
		return
	}

	id, action, ok := parseTaskPath(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}

	switch action {
	case "":
		if r.Method != http.MethodDelete {
			writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		s.handleDeleteTask(w, r, id)
	case "toggle":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		s.handleToggleTask(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	userID := requestUser(r)
	limit := parseListLimit(r.URL.Query().Get("limit"))

	items, err := s.store.ListTasks(r.Context(), userID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	body, err := json.Marshal(map[string][]taskstore.Task{"tasks": items})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, string(body))
}

func (s *Server) handleToggleTask(w http.ResponseWriter, r *http.Request, taskID string) {
	task, err := s.store.ToggleComplete(r.Context(), requestUser(r), taskID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	body, marshalErr := json.Marshal(task)
	if marshalErr != nil {
		writeError(w, http.StatusInternalServerError, marshalErr.Error())
		return
	}
	writeJSON(w, http.StatusOK, string(body))
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request, taskID string) {
	if err := s.store.DeleteTask(r.Context(), requestUser(r), taskID); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	payload := "{}"
	payload, _ = sjson.Set(payload, "service", "auratask")
	if s.statusProvider != nil {
		if runtime := s.statusProvider(r.Context()); runtime != nil {
			if raw, err := json.Marshal(runtime); err == nil {
				payload, _ = sjson.SetRaw(payload, "runtime", string(raw))
			}
		}
	}
	writeJSON(w, http.StatusOK, payload)
}

func requestUser(r *http.Request) string {
	if user := strings.TrimSpace(r.Header.Get("X-User-ID")); user != "" {
		return user
	}
	if user := strings.TrimSpace(r.URL.Query().Get("user_id")); user != "" {
		return user
	}
	return defaultUserID
}

func parseTaskPath(path string) (id string, action string, ok bool) {
	if !strings.HasPrefix(path, "/api/tasks/") {
		return "", "", false
	}
	tail := strings.Trim(strings.TrimPrefix(path, "/api/tasks/"), "/")
	if tail == "" {
		return "", "", false
	}
	parts := strings.Split(tail, "/")
	if len(parts) == 1 {
		return parts[0], "", true
	}
	if len(parts) == 2 {
		return parts[0], parts[1], true
	}
	return "", "", false
}

func parseListLimit(raw string) int {
	size, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || size <= 0 {
		return defaultListSize
	}
	if size > maxListSize {
		return maxListSize
	}
	return size
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, taskstore.ErrNotFound):
		writeError(w, http.StatusNotFound, "Task not found")
	case errors.Is(err, taskstore.ErrNotAuthenticated):
		writeError(w, http.StatusUnauthorized, "User not authenticated")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	payload, _ := sjson.Set("{}", "error", message)
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(payload))
}
