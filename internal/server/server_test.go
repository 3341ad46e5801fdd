package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medchat-backend/internal/config"
	"medchat-backend/internal/dialogue"
	"medchat-backend/internal/logger"
	"medchat-backend/internal/nlu"
	"medchat-backend/internal/store"
	"medchat-backend/internal/types"
)

type stubGenerator struct {
	err   error
	reply string
	block bool
}

func (g stubGenerator) Generate(ctx context.Context, _, intent string, _ dialogue.Context) (string, error) {
	if g.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if g.err != nil {
		return "", g.err
	}
	if g.reply != "" {
		return g.reply, nil
	}
	return "reply for " + intent, nil
}

type testServer struct {
	*Server
	registry *store.Registry
}

func newTestServer(t *testing.T, gen dialogue.Generator, mutate ...func(*config.Config)) *testServer {
	t.Helper()
	return newTestServerWith(t, gen, nil, mutate...)
}

func newTestServerWith(t *testing.T, gen dialogue.Generator, opts []ServerOption, mutate ...func(*config.Config)) *testServer {
	t.Helper()
	cfg := config.Config{AllowedOrigin: "*", RateLimitRPS: 0}
	for _, m := range mutate {
		m(&cfg)
	}

	lex, err := nlu.DefaultLexicon()
	require.NoError(t, err)
	engine, err := dialogue.NewEngine(lex, gen, dialogue.WithGenerateTimeout(50*time.Millisecond))
	require.NoError(t, err)
	registry := store.NewRegistry(engine, time.Hour)

	s := NewServer(cfg, registry, nlu.NewPipeline(lex), logger.Discard(), opts...)
	s.now = func() time.Time { return time.Date(2024, 5, 1, 9, 7, 0, 0, time.UTC) }
	return &testServer{Server: s, registry: registry}
}

func (ts *testServer) do(t *testing.T, method, path, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[http.CanonicalHeaderKey(k)] = v
	}
	rec := httptest.NewRecorder()
	ts.Router().ServeHTTP(rec, req)
	return rec
}

func sessionHeader(id string) http.Header {
	return http.Header{"X-Session-Id": []string{id}}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, stubGenerator{})
	ts.registry.GetOrCreate("abc")

	rec := ts.do(t, http.MethodGet, "/api/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, types.HealthResponse{Status: "ok", Sessions: 1}, decode[types.HealthResponse](t, rec))
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

type fakeArchive struct{ err error }

func (f fakeArchive) HealthCheck(context.Context) error { return f.err }

func TestHealthReportsArchive(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want types.HealthResponse
	}{
		{name: "reachable", want: types.HealthResponse{Status: "ok", Archive: "ok"}},
		{name: "unreachable", err: errors.New("connection refused"), want: types.HealthResponse{Status: "degraded", Archive: "unavailable"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServerWith(t, stubGenerator{}, []ServerOption{WithArchiveHealth(fakeArchive{err: tt.err})})

			rec := ts.do(t, http.MethodGet, "/api/health", "", nil)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.want, decode[types.HealthResponse](t, rec))
		})
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	ts := newTestServer(t, stubGenerator{})
	rec := ts.do(t, http.MethodGet, "/api/health", "", http.Header{RequestIDHeader: []string{"req-42"}})
	assert.Equal(t, "req-42", rec.Header().Get(RequestIDHeader))
}

func TestChatCreatesSession(t *testing.T) {
	ts := newTestServer(t, stubGenerator{reply: "ألف سلامة"})

	rec := ts.do(t, http.MethodPost, "/api/chat", `{"message":"I have a fever and headache"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[types.ChatResponse](t, rec)
	assert.NotEmpty(t, resp.SessionID)
	assert.Equal(t, "ألف سلامة", resp.Reply)
	assert.Equal(t, "report_symptoms", resp.Intent.Name)
	assert.Len(t, resp.Entities, 3)
	assert.Equal(t, []string{"fever", "headache"}, resp.Context["symptoms"])
	assert.Equal(t, "09:07", resp.Timestamp)
	assert.Equal(t, resp.SessionID, rec.Header().Get("X-Session-Id"))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, CookieName, cookies[0].Name)
	assert.Equal(t, resp.SessionID, cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
}

func TestChatAccumulatesContextAcrossTurns(t *testing.T) {
	ts := newTestServer(t, stubGenerator{})

	first := ts.do(t, http.MethodPost, "/api/chat", `{"message":"I have a fever"}`, sessionHeader("abc"))
	require.Equal(t, http.StatusOK, first.Code)
	second := ts.do(t, http.MethodPost, "/api/chat", `{"message":"and a cough, should I take aspirin?"}`, sessionHeader("abc"))
	require.Equal(t, http.StatusOK, second.Code)

	resp := decode[types.ChatResponse](t, second)
	assert.Equal(t, "abc", resp.SessionID)
	assert.Equal(t, []string{"fever", "cough"}, resp.Context["symptoms"])
	assert.Equal(t, []string{"aspirin"}, resp.Context["medications"])

	cookies := second.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "abc", cookies[0].Value)
}

func TestChatRefreshesSessionCookie(t *testing.T) {
	ts := newTestServer(t, stubGenerator{}, func(c *config.Config) {
		c.SessionIdleTTL = 45 * time.Minute
	})

	first := ts.do(t, http.MethodPost, "/api/chat", `{"message":"I have a fever"}`, nil)
	require.Equal(t, http.StatusOK, first.Code)
	created := first.Result().Cookies()
	require.Len(t, created, 1)
	assert.Equal(t, 2700, created[0].MaxAge)

	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewReader([]byte(`{"message":"and a cough"}`)))
	req.AddCookie(&http.Cookie{Name: CookieName, Value: created[0].Value})
	rec := httptest.NewRecorder()
	ts.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	refreshed := rec.Result().Cookies()
	require.Len(t, refreshed, 1)
	assert.Equal(t, CookieName, refreshed[0].Name)
	assert.Equal(t, created[0].Value, refreshed[0].Value)
	assert.Equal(t, 2700, refreshed[0].MaxAge)
	assert.True(t, refreshed[0].HttpOnly)

	rec = ts.do(t, http.MethodPost, "/api/new_chat", "", sessionHeader(created[0].Value))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, rec.Result().Cookies(), 1)
	assert.Equal(t, 2700, rec.Result().Cookies()[0].MaxAge)
}

func TestChatCookieDefaultsWithoutIdleTTL(t *testing.T) {
	ts := newTestServer(t, stubGenerator{})

	rec := ts.do(t, http.MethodPost, "/api/chat", `{"message":"hello"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, int(DefaultCookieMaxAge.Seconds()), cookies[0].MaxAge)
}

func TestChatSessionFromCookie(t *testing.T) {
	ts := newTestServer(t, stubGenerator{})

	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewReader([]byte(`{"message":"hello"}`)))
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "from-cookie"})
	rec := httptest.NewRecorder()
	ts.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "from-cookie", decode[types.ChatResponse](t, rec).SessionID)
}

func TestChatRejectsBadInput(t *testing.T) {
	ts := newTestServer(t, stubGenerator{})

	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "invalid json", body: `{"message":`, want: "invalid JSON body"},
		{name: "missing message", body: `{}`, want: msgNoText},
		{name: "blank message", body: `{"message":"   "}`, want: msgNoText},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/api/chat", tt.body, sessionHeader("abc"))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.want, decode[types.ErrorResponse](t, rec).Error)
		})
	}
	assert.Equal(t, 0, ts.registry.Len())
}

func TestChatGeneratorFailures(t *testing.T) {
	tests := []struct {
		name     string
		gen      stubGenerator
		wantCode int
		wantMsg  string
	}{
		{name: "unreachable", gen: stubGenerator{err: errors.New("dial tcp 127.0.0.1:1234: connection refused")}, wantCode: http.StatusServiceUnavailable, wantMsg: msgUnreachable},
		{name: "timeout", gen: stubGenerator{block: true}, wantCode: http.StatusGatewayTimeout, wantMsg: msgTimeout},
		{name: "malformed", gen: stubGenerator{err: fmt.Errorf("%w: no choices", dialogue.ErrMalformedReply)}, wantCode: http.StatusBadGateway, wantMsg: msgBadReply},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, tt.gen)

			rec := ts.do(t, http.MethodPost, "/api/chat", `{"message":"I have a fever"}`, sessionHeader("abc"))
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantMsg, decode[types.ErrorResponse](t, rec).Error)

			history := ts.do(t, http.MethodGet, "/api/history", "", sessionHeader("abc"))
			require.Equal(t, http.StatusOK, history.Code)
			assert.Len(t, decode[types.HistoryResponse](t, history).History, 1)
		})
	}
}

func TestChatEmergencyWithoutGenerator(t *testing.T) {
	ts := newTestServer(t, stubGenerator{err: errors.New("down")})

	rec := ts.do(t, http.MethodPost, "/api/chat", `{"message":"emergency, my father collapsed"}`, sessionHeader("abc"))
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[types.ChatResponse](t, rec)
	assert.Equal(t, dialogue.EmergencyReply, resp.Reply)
	assert.Equal(t, "emergency", resp.Intent.Name)
}

func TestNewChatResetsSession(t *testing.T) {
	ts := newTestServer(t, stubGenerator{})

	rec := ts.do(t, http.MethodPost, "/api/chat", `{"message":"I have a fever"}`, sessionHeader("abc"))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/new_chat", "", sessionHeader("abc"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, types.NewChatResponse{Status: "ok", SessionID: "abc"}, decode[types.NewChatResponse](t, rec))

	history := decode[types.HistoryResponse](t, ts.do(t, http.MethodGet, "/api/history", "", sessionHeader("abc")))
	assert.Empty(t, history.History)
	ctx := decode[types.ContextResponse](t, ts.do(t, http.MethodGet, "/api/context", "", sessionHeader("abc")))
	assert.Empty(t, ctx.Context)
}

func TestNewChatWithoutSessionMintsOne(t *testing.T) {
	ts := newTestServer(t, stubGenerator{})

	rec := ts.do(t, http.MethodPost, "/api/new_chat", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[types.NewChatResponse](t, rec)
	assert.NotEmpty(t, resp.SessionID)
	require.Len(t, rec.Result().Cookies(), 1)
	assert.Equal(t, 1, ts.registry.Len())
}

func TestDeleteSession(t *testing.T) {
	ts := newTestServer(t, stubGenerator{})

	rec := ts.do(t, http.MethodPost, "/api/chat", `{"message":"I have a fever"}`, sessionHeader("abc"))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, ts.registry.Len())

	rec = ts.do(t, http.MethodDelete, "/api/session", "", sessionHeader("abc"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, types.NewChatResponse{Status: "deleted", SessionID: "abc"}, decode[types.NewChatResponse](t, rec))
	assert.Equal(t, 0, ts.registry.Len())

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, CookieName, cookies[0].Name)
	assert.Empty(t, cookies[0].Value)
	assert.Equal(t, -1, cookies[0].MaxAge)

	rec = ts.do(t, http.MethodGet, "/api/history", "", sessionHeader("abc"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteUnknownSession(t *testing.T) {
	ts := newTestServer(t, stubGenerator{})

	rec := ts.do(t, http.MethodDelete, "/api/session", "", sessionHeader("missing"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = ts.do(t, http.MethodDelete, "/api/session", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHistory(t *testing.T) {
	ts := newTestServer(t, stubGenerator{})

	rec := ts.do(t, http.MethodGet, "/api/history", "", sessionHeader("missing"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = ts.do(t, http.MethodGet, "/api/history", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	ts.do(t, http.MethodPost, "/api/chat", `{"message":"hello"}`, sessionHeader("abc"))
	rec = ts.do(t, http.MethodGet, "/api/history?sessionId=abc", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	history := decode[types.HistoryResponse](t, rec).History
	require.Len(t, history, 2)
	assert.Equal(t, dialogue.RoleUser, history[0].Role)
	assert.Equal(t, "hello", history[0].Content)
	assert.Equal(t, dialogue.RoleAssistant, history[1].Role)
}

func TestPutContext(t *testing.T) {
	ts := newTestServer(t, stubGenerator{})

	rec := ts.do(t, http.MethodPut, "/api/context", `{"context":{"symptoms":["fever"]}}`, sessionHeader("abc"))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	ts.registry.GetOrCreate("abc")
	rec = ts.do(t, http.MethodPut, "/api/context", `{"context":{"symptoms":["fever","fever"],"diseases":["asthma"]}}`, sessionHeader("abc"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, dialogue.Context{
		"symptoms": {"fever"},
		"diseases": {"asthma"},
	}, decode[types.ContextResponse](t, rec).Context)

	rec = ts.do(t, http.MethodPut, "/api/context", `{"context":{"allergies":["penicillin"]}}`, sessionHeader("abc"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPut, "/api/context", `{}`, sessionHeader("abc"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestParse(t *testing.T) {
	ts := newTestServer(t, stubGenerator{err: errors.New("never called")})

	rec := ts.do(t, http.MethodPost, "/api/nlu/parse", `{"text":"tell me about diabetes"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	res := decode[nlu.ParseResult](t, rec)
	assert.Equal(t, "ask_about_disease", res.Intent.Name)
	assert.Equal(t, []nlu.Entity{{Type: "disease", Value: "diabetes", Confidence: 0.85}}, res.Entities)
	assert.Equal(t, "tell me about diabetes", res.Text)
	assert.Equal(t, 0, ts.registry.Len())

	rec = ts.do(t, http.MethodPost, "/api/nlu/parse", `{"text":""}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, stubGenerator{}, func(c *config.Config) {
		c.RateLimitRPS = 0.001
		c.RateLimitBurst = 2
	})

	for i := 0; i < 2; i++ {
		rec := ts.do(t, http.MethodPost, "/api/nlu/parse", `{"text":"hello"}`, nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := ts.do(t, http.MethodPost, "/api/nlu/parse", `{"text":"hello"}`, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
