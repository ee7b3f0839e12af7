package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahul/ordermind/internal/agent"
	"github.com/rahul/ordermind/internal/workflow"
)

type fakeStreamer struct {
	mu    sync.Mutex
	chats []string
	block bool
}

func (f *fakeStreamer) Stream(ctx context.Context, chatID, input string, emit agent.EmitFunc) (*agent.RunResult, error) {
	f.mu.Lock()
	f.chats = append(f.chats, chatID)
	f.mu.Unlock()

	emit(agent.Event{Type: agent.EventStatus, Data: map[string]any{"state": "AWAITING_MODEL"}})
	emit(agent.Event{Type: agent.EventDelta, Data: map[string]any{"text": "echo: "}})
	if f.block {
		<-ctx.Done()
		emit(agent.Event{Type: agent.EventError, Data: map[string]any{"kind": agent.ErrorKindCancelled}})
		return &agent.RunResult{Text: "echo: "}, ctx.Err()
	}
	emit(agent.Event{Type: agent.EventDelta, Data: map[string]any{"text": input}})
	emit(agent.Event{Type: agent.EventDone, Data: map[string]any{"iterations": 1}})
	return &agent.RunResult{Text: "echo: " + input, Iterations: 1}, nil
}

func (f *fakeStreamer) lastChat() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chats[len(f.chats)-1]
}

type fakeTasks struct {
	tasks map[string]*workflow.Task
}

func (f *fakeTasks) Get(_ context.Context, id string) (*workflow.Task, error) {
	task, ok := f.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", workflow.ErrNotFound, id)
	}
	return task, nil
}

func (f *fakeTasks) Confirm(ctx context.Context, id string, expected workflow.Step) (*workflow.Task, error) {
	task, err := f.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if expected != "" && expected != task.CurrentStep {
		return nil, fmt.Errorf("%w: at %s", workflow.ErrStepMismatch, task.CurrentStep)
	}
	task.CurrentStep = workflow.StepConfirmRemitted
	return task, nil
}

func newTestGateway(t *testing.T, streamer *fakeStreamer) (*HTTPGateway, *httptest.Server) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "orders.xlsx"), []byte("xlsx-bytes"), 0o644))
	tasks := &fakeTasks{tasks: map[string]*workflow.Task{
		"t1": {ID: "t1", Owner: "http:me", Status: workflow.StatusWaiting, CurrentStep: workflow.StepConfirmDelivery,
			CreatedAt: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)},
	}}
	g := NewHTTPGateway(":0", streamer, tasks, dir)
	srv := httptest.NewServer(g.Handler())
	t.Cleanup(srv.Close)
	return g, srv
}

func TestHTTP_ChatStreamsServerSentEvents(t *testing.T) {
	streamer := &fakeStreamer{}
	_, srv := newTestGateway(t, streamer)

	resp, err := http.Post(srv.URL+"/api/chat", "application/json", strings.NewReader(`{"chat_id":"abc","message":"hello"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "http:abc", resp.Header.Get("X-Chat-ID"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	text := string(body)
	assert.Contains(t, text, "event: delta\ndata: {\"text\":\"echo: \"}\n\n")
	assert.Contains(t, text, "event: delta\ndata: {\"text\":\"hello\"}\n\n")
	assert.True(t, strings.HasSuffix(text, "event: done\ndata: {\"iterations\":1}\n\n"))
	assert.Equal(t, "http:abc", streamer.lastChat())
}

func TestHTTP_ChatRejectsBadRequests(t *testing.T) {
	_, srv := newTestGateway(t, &fakeStreamer{})

	for _, body := range []string{`not json`, `{"message":"   "}`} {
		resp, err := http.Post(srv.URL+"/api/chat", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
	}

	resp, err := http.Get(srv.URL + "/api/chat")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHTTP_TaskEndpoints(t *testing.T) {
	_, srv := newTestGateway(t, &fakeStreamer{})

	resp, err := http.Get(srv.URL + "/api/tasks/t1")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"current_step":"confirm_delivery"`)

	resp, err = http.Get(srv.URL + "/api/tasks/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	cases := []struct {
		body   string
		status int
	}{
		{`{"expected_step":"bogus"}`, http.StatusBadRequest},
		{`{"expected_step":"confirm_remitted"}`, http.StatusPreconditionFailed},
		{`{"expected_step":"confirm_delivery"}`, http.StatusOK},
		{``, http.StatusOK},
	}
	for _, tc := range cases {
		resp, err := http.Post(srv.URL+"/api/tasks/t1/confirm", "application/json", strings.NewReader(tc.body))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, tc.status, resp.StatusCode, tc.body)
	}

	resp, err = http.Post(srv.URL+"/api/tasks/nope/confirm", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHTTP_ReportsAndHealth(t *testing.T) {
	_, srv := newTestGateway(t, &fakeStreamer{})

	resp, err := http.Get(srv.URL + "/reports/orders.xlsx")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "xlsx-bytes", string(body))

	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"state"`)
}

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/chat/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	return conn
}

func readUntil(t *testing.T, conn *websocket.Conn, want agent.EventType) []map[string]any {
	t.Helper()
	var seen []map[string]any
	for {
		var evt map[string]any
		require.NoError(t, conn.ReadJSON(&evt))
		seen = append(seen, evt)
		if evt["type"] == string(want) {
			return seen
		}
	}
}

func TestHTTP_WebSocketChat(t *testing.T) {
	streamer := &fakeStreamer{}
	_, srv := newTestGateway(t, streamer)
	conn := dialWS(t, srv)

	require.NoError(t, conn.WriteJSON(chatRequest{ChatID: "telegram:5", Message: "hi"}))
	events := readUntil(t, conn, agent.EventDone)
	require.Len(t, events, 4)
	assert.Equal(t, "delta", events[2]["type"])
	assert.Equal(t, "hi", events[2]["data"].(map[string]any)["text"])
	assert.Equal(t, "http:telegram:5", streamer.lastChat())

	require.NoError(t, conn.WriteJSON(chatRequest{Message: " "}))
	events = readUntil(t, conn, agent.EventError)
	assert.Equal(t, "bad_request", events[0]["data"].(map[string]any)["kind"])
}

func TestHTTP_WebSocketCancel(t *testing.T) {
	streamer := &fakeStreamer{block: true}
	_, srv := newTestGateway(t, streamer)
	conn := dialWS(t, srv)

	require.NoError(t, conn.WriteJSON(chatRequest{Message: "long job"}))
	readUntil(t, conn, agent.EventDelta)
	require.NoError(t, conn.WriteJSON(chatRequest{Type: "cancel"}))

	events := readUntil(t, conn, agent.EventError)
	last := events[len(events)-1]
	assert.Equal(t, agent.ErrorKindCancelled, last["data"].(map[string]any)["kind"])
	assert.True(t, strings.HasPrefix(streamer.lastChat(), "http:"))
}

func TestOwnerID(t *testing.T) {
	assert.Equal(t, "http:abc", ownerID("abc"))
	assert.Equal(t, "http:abc", ownerID(" http:abc "))
	assert.Equal(t, "http:discord:9", ownerID("discord:9"))
	assert.Equal(t, "http:telegram:1", ownerID("telegram:1"))
	assert.True(t, strings.HasPrefix(ownerID(""), "http:"))
	assert.NotEqual(t, ownerID(""), ownerID(""))
}
