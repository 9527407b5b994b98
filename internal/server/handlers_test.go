package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	agentmodel "github.com/web3buddy/server/internal/agent/model"
	"github.com/web3buddy/server/internal/agent/trace"
	"github.com/web3buddy/server/internal/history"
)

type memoryStore struct {
	mu   sync.Mutex
	logs map[string][]history.Message
}

func newMemoryStore() *memoryStore {
	return &memoryStore{logs: map[string][]history.Message{}}
}

func (s *memoryStore) Append(ctx context.Context, conversationID string, message history.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs[conversationID] = append([]history.Message{message}, s.logs[conversationID]...)
	return nil
}

func (s *memoryStore) Range(ctx context.Context, conversationID string, start, stop int64) ([]history.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	log := s.logs[conversationID]
	if stop == -1 || stop >= int64(len(log)) {
		stop = int64(len(log)) - 1
	}
	if start > stop {
		return nil, nil
	}
	out := make([]history.Message, stop-start+1)
	copy(out, log[start:stop+1])
	return out, nil
}

func (s *memoryStore) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for k := range s.logs {
		if strings.HasPrefix(k, prefix+"-") {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (s *memoryStore) Count(ctx context.Context, conversationID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.logs[conversationID])), nil
}

func (s *memoryStore) contents(conversationID string) []history.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]history.Message, len(s.logs[conversationID]))
	copy(out, s.logs[conversationID])
	return out
}

type fakeRunner struct {
	mu     sync.Mutex
	calls  []agentmodel.TurnInput
	script func(ctx context.Context, in agentmodel.TurnInput, emit trace.Emit) error
}

func (f *fakeRunner) Run(ctx context.Context, in agentmodel.TurnInput, emit trace.Emit) error {
	f.mu.Lock()
	f.calls = append(f.calls, in)
	f.mu.Unlock()
	return f.script(ctx, in, emit)
}

func (f *fakeRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestRouter(store history.Store, runner *fakeRunner) http.Handler {
	return NewRouter(NewHandler(store, runner), zerolog.Nop())
}

func TestChatStreamsAnswer(t *testing.T) {
	store := newMemoryStore()
	runner := &fakeRunner{script: func(ctx context.Context, in agentmodel.TurnInput, emit trace.Emit) error {
		emit(trace.Fragment("Hello "))
		emit(trace.Fragment("world"))
		emit(trace.Ending("Hello world"))
		return nil
	}}
	router := newTestRouter(store, runner)

	body := `{"messages":[{"role":"user","content":"say hello"}],"userId":"u1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	req.Header.Set("user_id", "u1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Hello world", rec.Body.String())

	// Newest first: assistant answer, then the user message.
	log := store.contents("u1")
	require.Len(t, log, 2)
	assert.Equal(t, history.RoleAssistant, log[0].Type)
	assert.Equal(t, "Hello world", log[0].Data.Content)
	assert.Equal(t, history.RoleUser, log[1].Type)
	assert.Equal(t, "say hello", log[1].Data.Content)
}

func TestChatDisconnectSkipsPersist(t *testing.T) {
	store := newMemoryStore()
	runner := &fakeRunner{script: func(ctx context.Context, in agentmodel.TurnInput, emit trace.Emit) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	router := newTestRouter(store, runner)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	body := `{"messages":[{"role":"user","content":"hi"}],"userId":"u1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body)).WithContext(ctx)
	req.Header.Set("user_id", "u1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	for _, m := range store.contents("u1") {
		assert.NotEqual(t, history.RoleAssistant, m.Type, "no assistant message may be persisted after a disconnect")
	}
}

func TestChatShortCircuitHistoryDump(t *testing.T) {
	store := newMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Append(ctx, "u1", history.NewMessage(history.RoleUser, "first")))
	require.NoError(t, store.Append(ctx, "u1", history.NewMessage(history.RoleAssistant, "second")))

	runner := &fakeRunner{script: func(ctx context.Context, in agentmodel.TurnInput, emit trace.Emit) error {
		emit(trace.Ending("must not run"))
		return nil
	}}
	router := newTestRouter(store, runner)

	body := `{"userId":"u1","loadMessages":true}`
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	req.Header.Set("user_id", "u1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, runner.callCount())

	var entries []HistoryEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 2)
	// Chronological order for display.
	assert.Equal(t, "first", entries[0].Data.Content)
	assert.Equal(t, "second", entries[1].Data.Content)
}

func TestRetrieveHistoryAnnotatesInquiries(t *testing.T) {
	store := newMemoryStore()
	ctx := context.Background()
	inquiryJSON := `{"content":"Need details.","params":{"contract":"string"},"input":true}`
	require.NoError(t, store.Append(ctx, "conv-1", history.NewMessage(history.RoleUser, "create a subgraph")))
	require.NoError(t, store.Append(ctx, "conv-1", history.NewMessage(history.RoleAssistant, inquiryJSON)))

	router := newTestRouter(store, &fakeRunner{})

	body := `{"userId":"u1","conversationId":"conv-1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/retrieve-history", strings.NewReader(body))
	req.Header.Set("user_id", "u1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Messages []HistoryEntry `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Messages, 2)
	// Store order, newest first.
	assert.True(t, resp.Messages[0].Inquiry)
	assert.Equal(t, inquiryJSON, resp.Messages[0].Data.Content)
	assert.False(t, resp.Messages[1].Inquiry)
}

func TestRetrieveHistoryIdempotent(t *testing.T) {
	store := newMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Append(ctx, "conv-1", history.NewMessage(history.RoleUser, "hello")))

	router := newTestRouter(store, &fakeRunner{})

	fetch := func() string {
		body := `{"userId":"u1","conversationId":"conv-1"}`
		req := httptest.NewRequest(http.MethodPost, "/api/retrieve-history", strings.NewReader(body))
		req.Header.Set("user_id", "u1")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		return rec.Body.String()
	}

	assert.Equal(t, fetch(), fetch())
}

func TestConversationsEmpty(t *testing.T) {
	router := newTestRouter(newMemoryStore(), &fakeRunner{})

	req := httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
	req.Header.Set("user_id", "u1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"conversation_keys":[]}`, rec.Body.String())
}

func TestConversationsListsSortedKeys(t *testing.T) {
	store := newMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Append(ctx, "u1-b", history.NewMessage(history.RoleUser, "x")))
	require.NoError(t, store.Append(ctx, "u1-a", history.NewMessage(history.RoleUser, "y")))
	require.NoError(t, store.Append(ctx, "u2-a", history.NewMessage(history.RoleUser, "z")))

	router := newTestRouter(store, &fakeRunner{})

	req := httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
	req.Header.Set("user_id", "u1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"conversation_keys":["u1:u1-a","u1:u1-b"]}`, rec.Body.String())
}

func TestSaveMessageAppendsAssistant(t *testing.T) {
	store := newMemoryStore()
	router := newTestRouter(store, &fakeRunner{})

	body := `{"userId":"u1","message":"saved answer"}`
	req := httptest.NewRequest(http.MethodPost, "/api/save-message", strings.NewReader(body))
	req.Header.Set("user_id", "u1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())

	log := store.contents("u1")
	require.Len(t, log, 1)
	assert.Equal(t, history.RoleAssistant, log[0].Type)
	assert.Equal(t, "saved answer", log[0].Data.Content)
	assert.NotEmpty(t, log[0].Timestamp)
}

func TestMissingUserIDHeaderForbidden(t *testing.T) {
	router := newTestRouter(newMemoryStore(), &fakeRunner{})

	req := httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHealthz(t *testing.T) {
	router := newTestRouter(newMemoryStore(), &fakeRunner{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
