package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"

	"github.com/web3buddy/server/internal/agent"
	agentmodel "github.com/web3buddy/server/internal/agent/model"
	"github.com/web3buddy/server/internal/agent/trace"
	errx "github.com/web3buddy/server/internal/core/error"
	"github.com/web3buddy/server/internal/history"
	"github.com/web3buddy/server/internal/inquiry"
	"github.com/web3buddy/server/internal/metrics"
	"github.com/web3buddy/server/internal/relay"
	logx "github.com/web3buddy/server/pkg/logger"
)

// Handler serves the turn protocol endpoints. It owns no state of its own;
// all cross-turn state lives in the history store.
type Handler struct {
	store  history.Store
	runner agent.Runner
}

func NewHandler(store history.Store, runner agent.Runner) *Handler {
	return &Handler{store: store, runner: runner}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Messages     []chatMessage `json:"messages"`
	UserID       string        `json:"userId"`
	LoadMessages bool          `json:"loadMessages"`
}

// HistoryEntry is one stored message as presented to clients, annotated with
// whether its content is an inquiry the UI should render as a form.
type HistoryEntry struct {
	Type      string              `json:"type"`
	Data      history.MessageData `json:"data"`
	Timestamp string              `json:"timestamp,omitempty"`
	Inquiry   bool                `json:"inquiry"`
}

// LoadHistory returns the conversation in chronological order, each entry
// annotated by whether it parses as an inquiry.
func LoadHistory(ctx context.Context, store history.Store, conversationID string) ([]HistoryEntry, error) {
	stored, err := store.Range(ctx, conversationID, 0, -1)
	if err != nil {
		return nil, err
	}
	entries := make([]HistoryEntry, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		entries = append(entries, annotate(stored[i]))
	}
	return entries, nil
}

func annotate(m history.Message) HistoryEntry {
	_, isInquiry := inquiry.Parse(m.Data.Content)
	return HistoryEntry{
		Type:      m.Type,
		Data:      m.Data,
		Timestamp: m.Timestamp,
		Inquiry:   isInquiry,
	}
}

// Chat runs one streamed turn. With userId and loadMessages both set it
// short-circuits to a history dump instead of running the agent.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	conversationID := r.Header.Get("conv_id")
	if conversationID == "" {
		conversationID = req.UserID
	}

	if req.UserID != "" && req.LoadMessages {
		entries, err := LoadHistory(r.Context(), h.store, conversationID)
		if err != nil {
			h.storeError(w, "load history", err)
			return
		}
		writeJSON(w, http.StatusOK, entries)
		return
	}

	query := lastUserContent(req.Messages)
	if query == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no user message in request"})
		return
	}

	// Best-effort: the turn still runs when the user append fails, the
	// context builder compensates.
	if err := h.store.Append(r.Context(), conversationID, history.NewMessage(history.RoleUser, query)); err != nil {
		metrics.StoreFailures.WithLabelValues("append_user").Inc()
		logx.Error().Str("conversation_id", conversationID).Err(err).Msg("failed to append user message")
	}

	ctx := r.Context()
	events := make(chan trace.Event, 64)
	runErrCh := make(chan error, 1)
	go func() {
		defer close(events)
		runErrCh <- h.runner.Run(ctx, agentmodel.TurnInput{
			ConversationID: conversationID,
			Query:          query,
		}, func(e trace.Event) { events <- e })
	}()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	result, pumpErr := relay.Pump(ctx, events, w)
	runErr := <-runErrCh

	if runErr != nil {
		logx.Error().
			Str("conversation_id", conversationID).
			Int("fragments_sent", result.Fragments).
			Err(runErr).
			Msg("turn failed")
		if result.Fragments == 0 && pumpErr == nil {
			// Nothing streamed yet; the client gets a uniform opaque error.
			status := http.StatusBadGateway
			var appErr *errx.AppError
			if errors.As(runErr, &appErr) {
				status = appErr.Status
			}
			writeJSON(w, status, map[string]string{"error": "the assistant is unavailable right now"})
		}
		return
	}

	if pumpErr != nil {
		// Client went away mid-stream; never persist a partial answer.
		logx.Warn().
			Str("conversation_id", conversationID).
			Int("fragments_sent", result.Fragments).
			Err(pumpErr).
			Msg("stream aborted, assistant message not persisted")
		return
	}

	if result.Content != "" {
		if err := h.store.Append(ctx, conversationID, history.NewMessage(history.RoleAssistant, result.Content)); err != nil {
			metrics.StoreFailures.WithLabelValues("append_assistant").Inc()
			logx.Error().Str("conversation_id", conversationID).Err(err).Msg("failed to append assistant message")
		}
	}
}

func lastUserContent(messages []chatMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == history.RoleUser && strings.TrimSpace(messages[i].Content) != "" {
			return messages[i].Content
		}
	}
	return ""
}

type retrieveHistoryRequest struct {
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId"`
}

// RetrieveHistory returns the conversation log in store order, newest first.
func (h *Handler) RetrieveHistory(w http.ResponseWriter, r *http.Request) {
	var req retrieveHistoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = r.Header.Get("conv_id")
	}
	if conversationID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "conversationId is required"})
		return
	}

	stored, err := h.store.Range(r.Context(), conversationID, 0, -1)
	if err != nil {
		h.storeError(w, "retrieve history", err)
		return
	}

	entries := make([]HistoryEntry, 0, len(stored))
	for _, m := range stored {
		entries = append(entries, annotate(m))
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": entries})
}

// Conversations lists the caller's conversation keys as navigable
// "{userId}:{conversationId}" identifiers. Zero conversations is an empty
// list, not an error.
func (h *Handler) Conversations(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("user_id")

	keys, err := h.store.ListKeys(r.Context(), userID)
	if err != nil {
		h.storeError(w, "list conversations", err)
		return
	}
	sort.Strings(keys)

	conversationKeys := make([]string, 0, len(keys))
	for _, k := range keys {
		conversationKeys = append(conversationKeys, userID+":"+k)
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversation_keys": conversationKeys})
}

type saveMessageRequest struct {
	UserID  string `json:"userId"`
	Message string `json:"message"`
}

// SaveMessage appends an assistant-role message directly to the log.
func (h *Handler) SaveMessage(w http.ResponseWriter, r *http.Request) {
	var req saveMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "invalid request body"})
		return
	}
	conversationID := r.Header.Get("conv_id")
	if conversationID == "" {
		conversationID = req.UserID
	}
	if conversationID == "" || req.Message == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "userId and message are required"})
		return
	}

	if err := h.store.Append(r.Context(), conversationID, history.NewMessage(history.RoleAssistant, req.Message)); err != nil {
		metrics.StoreFailures.WithLabelValues("save_message").Inc()
		logx.Error().Str("conversation_id", conversationID).Err(err).Msg("failed to save message")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": "failed to save message"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) storeError(w http.ResponseWriter, operation string, err error) {
	metrics.StoreFailures.WithLabelValues(strings.ReplaceAll(operation, " ", "_")).Inc()
	logx.Error().Err(err).Msg(operation + " failed")

	status := http.StatusBadGateway
	message := "history store unavailable"
	var appErr *errx.AppError
	if errors.As(err, &appErr) {
		status = appErr.Status
		message = appErr.Message
	}
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logx.Error().Err(err).Msg("failed to encode response")
	}
}
