package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diogenes-labs/diogenes/internal/agent"
	"github.com/diogenes-labs/diogenes/internal/coordinator"
	"github.com/diogenes-labs/diogenes/internal/health"
	"github.com/diogenes-labs/diogenes/internal/orchestrator"
	"github.com/diogenes-labs/diogenes/internal/processing"
	"github.com/diogenes-labs/diogenes/internal/protocol"
	"github.com/diogenes-labs/diogenes/internal/search"
	"github.com/diogenes-labs/diogenes/internal/session"
	"github.com/diogenes-labs/diogenes/internal/streaming"
)

func testAgents() []agent.Agent {
	researcher := agent.Func{
		AgentType: "researcher",
		Caps:      []agent.Capability{agent.CapSearching, agent.CapCrawling},
		Fn: func(_ context.Context, task protocol.TaskAssignment) (protocol.TaskResult, error) {
			switch task.Type {
			case protocol.TaskWebSearch:
				return protocol.TaskResult{
					TaskID: task.TaskID,
					Status: protocol.StatusSuccess,
					Outputs: map[string]interface{}{
						"results": []search.Result{
							{URL: "https://example.org/a", Title: "A", Snippet: "About A.", Score: 0.9},
							{URL: "https://example.org/b", Title: "B", Snippet: "About B.", Score: 0.8},
						},
					},
					Confidence: 0.9,
				}, nil
			case protocol.TaskCrawlURLs:
				urls := task.StringsInput("urls")
				pages := make([]agent.ProcessedPage, 0, len(urls))
				for i, u := range urls {
					content := strings.Repeat("Relevant facts about the topic. ", 20)
					chunk := processing.NewContentChunk(u, fmt.Sprintf("Title %d", i), content, 0, 1)
					pages = append(pages, agent.ProcessedPage{
						URL:          u,
						Title:        fmt.Sprintf("Title %d", i),
						Content:      content,
						Chunks:       []processing.ContentChunk{chunk},
						QualityScore: 0.8,
						CrawledAt:    time.Now(),
					})
				}
				return protocol.TaskResult{
					TaskID:     task.TaskID,
					Status:     protocol.StatusSuccess,
					Outputs:    map[string]interface{}{"pages": pages},
					Confidence: 1.0,
				}, nil
			}
			return protocol.TaskResult{}, fmt.Errorf("unexpected task %s", task.Type)
		},
	}
	writer := agent.Func{
		AgentType: "writer",
		Caps:      []agent.Capability{agent.CapSynthesis},
		Fn: func(_ context.Context, task protocol.TaskAssignment) (protocol.TaskResult, error) {
			answer := strings.Repeat("The topic is well documented across sources. ", 20) + "[1]"
			return protocol.TaskResult{
				TaskID:     task.TaskID,
				Status:     protocol.StatusSuccess,
				Outputs:    map[string]interface{}{"content": answer, "tokens_used": 64},
				Confidence: 0.8,
			}, nil
		},
	}
	return []agent.Agent{researcher, writer}
}

func newTestServer(t *testing.T, withSessions bool) (*Server, *session.Manager) {
	t.Helper()
	pool := agent.NewPool(nil)
	for _, a := range testAgents() {
		pool.Register(a)
	}
	coord := coordinator.New(pool, nil, "", nil, nil)

	var sessions *session.Manager
	if withSessions {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		sessions = session.NewManagerWithClient(client, time.Hour, nil)
	}

	orch := orchestrator.New(coord, pool, nil, sessions, 2, nil)
	return NewServer(orch, sessions, nil, streaming.NewManager(16, nil), nil), sessions
}

func TestResearchEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, false)
	mux := srv.Routes()

	cases := []struct {
		name     string
		body     string
		wantCode int
	}{
		{"ok", `{"query":"capital of France","mode":"quick"}`, http.StatusOK},
		{"missing query", `{"mode":"quick"}`, http.StatusBadRequest},
		{"bad json", `{`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/research", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)
			assert.Equal(t, tc.wantCode, rec.Code)
		})
	}
}

func TestResearchEndpointReturnsResult(t *testing.T) {
	srv, _ := newTestServer(t, false)
	req := httptest.NewRequest(http.MethodPost, "/research",
		strings.NewReader(`{"query":"capital of France","mode":"quick"}`))
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var result orchestrator.Result
	require.NoError(t, jsonDecode(rec.Body.String(), &result))
	assert.False(t, result.Failed)
	assert.Contains(t, result.Answer, "[1]")
	assert.NotEmpty(t, result.Sources)
	assert.Equal(t, "quick", result.Mode)
}

func TestGetResearchSession(t *testing.T) {
	srv, sessions := newTestServer(t, true)
	mux := srv.Routes()
	ctx := context.Background()

	sess, err := sessions.Create(ctx, "user-1", "quick")
	require.NoError(t, err)
	require.NoError(t, sessions.RecordResult(ctx, sess.ID, "q", "a",
		[]string{"https://example.org"}, nil, 10))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/research/"+sess.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got session.Session
	require.NoError(t, jsonDecode(rec.Body.String(), &got))
	assert.Equal(t, "a", got.LastAnswer)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/research/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetResearchWithoutStore(t *testing.T) {
	srv, _ := newTestServer(t, false)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/research/some-id", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestModesEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, false)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/modes", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var out []modeInfo
	require.NoError(t, jsonDecode(rec.Body.String(), &out))
	assert.Len(t, out, 5)
	assert.Equal(t, "quick", out[0].Mode)
}

func TestHealthEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, false)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReflectsCriticalCheckers(t *testing.T) {
	srv, _ := newTestServer(t, false)
	mgr := health.NewManager(nil)
	mgr.Register(health.CheckFunc{
		CheckName: "searx",
		Critical:  true,
		Probe:     func(context.Context) error { return fmt.Errorf("down") },
	})
	srv.health = mgr

	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestResearchStreamSSE(t *testing.T) {
	srv, _ := newTestServer(t, false)
	req := httptest.NewRequest(http.MethodPost, "/research/stream",
		strings.NewReader(`{"query":"capital of France","mode":"quick","session_id":"sess-sse"}`))
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	body := rec.Body.String()
	require.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Contains(t, body, ": session sess-sse")
	assert.Contains(t, body, "event: progress")
	assert.Contains(t, body, "event: answer_chunk")
	assert.Contains(t, body, "event: complete")

	// The same session is replayable for late observers.
	replay := srv.streams.ReplaySince("sess-sse", 0)
	require.NotEmpty(t, replay)
	assert.Equal(t, "complete", replay[len(replay)-1].Type)
}

func TestWebSocketObserverReplays(t *testing.T) {
	srv, _ := newTestServer(t, false)
	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	srv.streams.Publish("sess-ws", "progress", map[string]string{"phase": "researching"})
	srv.streams.Publish("sess-ws", "complete", map[string]string{"answer": "done"})

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/stream/ws?session_id=sess-ws&last_event_id=0"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	defer resp.Body.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var first, second streaming.Event
	require.NoError(t, conn.ReadJSON(&first))
	require.NoError(t, conn.ReadJSON(&second))
	assert.Equal(t, "progress", first.Type)
	assert.Equal(t, uint64(1), first.Seq)
	assert.Equal(t, "complete", second.Type)
	assert.Equal(t, uint64(2), second.Seq)
}

func jsonDecode(s string, v interface{}) error {
	return json.Unmarshal([]byte(s), v)
}
