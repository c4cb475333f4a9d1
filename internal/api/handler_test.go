package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Atharva0506/farmer-ai-gateway/internal/cache"
	"github.com/Atharva0506/farmer-ai-gateway/internal/domain"
	"github.com/Atharva0506/farmer-ai-gateway/internal/keypool"
	"github.com/Atharva0506/farmer-ai-gateway/internal/orchestrator"
	"github.com/Atharva0506/farmer-ai-gateway/internal/provider/gemini"
	"github.com/Atharva0506/farmer-ai-gateway/internal/ratelimit"
	"github.com/Atharva0506/farmer-ai-gateway/internal/tools"
)

// stubGen answers every structured call with payload and streams chunks on
// chat turns.
type stubGen struct {
	payload string
	chunks  []string
	err     error
}

func (s *stubGen) GenerateStructured(ctx context.Context, req gemini.Request, out any) error {
	if s.err != nil {
		return s.err
	}
	return json.Unmarshal([]byte(s.payload), out)
}

func (s *stubGen) GenerateStream(ctx context.Context, req gemini.Request) (<-chan string, <-chan gemini.Turn) {
	chunks := make(chan string)
	turns := make(chan gemini.Turn, 1)
	go func() {
		defer close(turns)
		defer close(chunks)
		if s.err != nil {
			turns <- gemini.Turn{Err: s.err}
			return
		}
		for _, c := range s.chunks {
			chunks <- c
		}
		turns <- gemini.Turn{}
	}()
	return chunks, turns
}

func newTestHandler(t *testing.T, gen *stubGen) *Handler {
	t.Helper()

	pool, err := keypool.New([]string{"test-key-aaaa"})
	if err != nil {
		t.Fatal(err)
	}

	service := tools.NewService(gen, cache.NewInMemory(), nil, nil)

	return NewHandler(HandlerConfig{
		Orchestrator: orchestrator.New(gen, nil),
		Tools:        service,
		Pool:         pool,
		Limiter:      ratelimit.New(),
		ChatLimit:    ratelimit.Limit{MaxRequests: 5, Window: time.Minute},
		ReportLimit:  ratelimit.Limit{MaxRequests: 5, Window: time.Minute},
	})
}

func TestChat_StreamsSSE(t *testing.T) {
	gen := &stubGen{chunks: []string{"use ", "neem oil"}}
	h := newTestHandler(t, gen)

	body := `{"messages":[{"role":"user","content":"pest control for cotton?"}],"context":{"language":"en"}}`
	req := httptest.NewRequest("POST", "/v1/chat", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}

	out := rec.Body.String()
	if !strings.Contains(out, `"delta":"use "`) || !strings.Contains(out, `"delta":"neem oil"`) {
		t.Errorf("missing deltas: %s", out)
	}
	if !strings.Contains(out, "data: [DONE]") {
		t.Errorf("missing terminator: %s", out)
	}
}

func TestChat_EmptyTranscript(t *testing.T) {
	h := newTestHandler(t, &stubGen{})

	req := httptest.NewRequest("POST", "/v1/chat", strings.NewReader(`{"messages":[]}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestChat_ProviderFailureIsGeneric(t *testing.T) {
	gen := &stubGen{err: context.DeadlineExceeded}
	h := newTestHandler(t, gen)

	body := `{"messages":[{"role":"user","content":"hi"}]}`
	req := httptest.NewRequest("POST", "/v1/chat", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "something went wrong") {
		t.Errorf("body = %s", rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "test-key") {
		t.Error("credential material leaked into the response")
	}
}

func TestRateLimit_HeadersAndDeny(t *testing.T) {
	gen := &stubGen{payload: `{"schemes":[{"name":"PM-KISAN"}]}`}

	pool, _ := keypool.New([]string{"k"})
	h := NewHandler(HandlerConfig{
		Orchestrator: orchestrator.New(gen, nil),
		Tools:        tools.NewService(gen, cache.NewInMemory(), nil, nil),
		Pool:         pool,
		Limiter:      ratelimit.New(),
		ChatLimit:    ratelimit.Limit{MaxRequests: 5, Window: time.Minute},
		ReportLimit:  ratelimit.Limit{MaxRequests: 2, Window: time.Minute},
	})

	body := `{"income":"1-3 Lakh","land_size":"2 acres","state":"Maharashtra"}`
	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", "/v1/reports/schemes", strings.NewReader(body))
		req.RemoteAddr = "10.1.2.3:1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	first := do()
	if first.Code != 200 {
		t.Fatalf("first status = %d, body = %s", first.Code, first.Body.String())
	}
	if first.Header().Get("X-RateLimit-Limit") != "2" {
		t.Errorf("limit header = %q", first.Header().Get("X-RateLimit-Limit"))
	}
	if first.Header().Get("X-RateLimit-Remaining") != "1" {
		t.Errorf("remaining header = %q", first.Header().Get("X-RateLimit-Remaining"))
	}

	do()
	third := do()
	if third.Code != http.StatusTooManyRequests {
		t.Fatalf("third status = %d, want 429", third.Code)
	}
	if third.Header().Get("Retry-After") == "" {
		t.Error("429 must carry Retry-After")
	}

	var denied struct {
		Error struct {
			RetryAfterMs int64 `json:"retry_after_ms"`
		} `json:"error"`
	}
	if err := json.Unmarshal(third.Body.Bytes(), &denied); err != nil {
		t.Fatalf("deny body: %v", err)
	}
	if denied.Error.RetryAfterMs <= 0 {
		t.Errorf("retry_after_ms = %d", denied.Error.RetryAfterMs)
	}
}

func TestReport_InvalidInput(t *testing.T) {
	h := newTestHandler(t, &stubGen{})

	req := httptest.NewRequest("POST", "/v1/reports/disease", strings.NewReader(`{"crop":"tomato"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestReport_UnknownKind(t *testing.T) {
	h := newTestHandler(t, &stubGen{})

	req := httptest.NewRequest("POST", "/v1/reports/horoscope", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestReport_Disease(t *testing.T) {
	gen := &stubGen{payload: `{"disease":"early blight","severity":"medium","confidence":80}`}
	h := newTestHandler(t, gen)

	body := `{"crop":"tomato","symptoms":"brown rings on leaves"}`
	req := httptest.NewRequest("POST", "/v1/reports/disease", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var report struct {
		Disease  string `json:"disease"`
		Severity string `json:"severity"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatal(err)
	}
	if report.Disease != "early blight" || report.Severity != "medium" {
		t.Errorf("report = %+v", report)
	}
}

func TestWeatherAlerts_BadQuery(t *testing.T) {
	h := newTestHandler(t, &stubGen{})

	for _, target := range []string{
		"/v1/weather/alerts",
		"/v1/weather/alerts?lat=abc&lon=72",
		"/v1/weather/alerts?lat=123&lon=72",
	} {
		req := httptest.NewRequest("GET", target, nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", target, rec.Code)
		}
	}
}

func TestKeyStats_NoKeyLeakage(t *testing.T) {
	h := newTestHandler(t, &stubGen{})

	req := httptest.NewRequest("GET", "/v1/keys/stats", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "test-key-aaaa") {
		t.Error("full credential exposed in stats")
	}
	if !strings.Contains(rec.Body.String(), "key_prefix") {
		t.Errorf("stats shape: %s", rec.Body.String())
	}
}

type memHistory struct {
	msgs    []domain.StoredMessage
	records []domain.DiseaseRecord
}

func (m *memHistory) LoadMessages(ctx context.Context, userID, chatID string, limit int) ([]domain.StoredMessage, error) {
	return m.msgs, nil
}

func (m *memHistory) ListDiseaseReports(ctx context.Context, userID string, limit int) ([]domain.DiseaseRecord, error) {
	return m.records, nil
}

func TestHistoryEndpoints(t *testing.T) {
	gen := &stubGen{}
	pool, _ := keypool.New([]string{"k"})
	h := NewHandler(HandlerConfig{
		Orchestrator: orchestrator.New(gen, nil),
		Tools:        tools.NewService(gen, cache.NewInMemory(), nil, nil),
		Pool:         pool,
		Limiter:      ratelimit.New(),
		ChatLimit:    ratelimit.Limit{MaxRequests: 5, Window: time.Minute},
		ReportLimit:  ratelimit.Limit{MaxRequests: 5, Window: time.Minute},
		History: &memHistory{
			msgs: []domain.StoredMessage{{UserID: "u1", ChatID: "c1", Role: "user", Content: "pest control?"}},
		},
	})

	req := httptest.NewRequest("GET", "/v1/history/messages?user_id=u1&chat_id=c1", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != 200 {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "pest control?") {
		t.Errorf("body = %s", rec.Body.String())
	}

	req = httptest.NewRequest("GET", "/v1/history/messages?user_id=u1", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing chat_id: status = %d, want 400", rec.Code)
	}

	req = httptest.NewRequest("GET", "/v1/history/disease?user_id=u1", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != 200 {
		t.Errorf("disease history status = %d", rec.Code)
	}
}

func TestHistoryEndpoints_AbsentWithoutStore(t *testing.T) {
	h := newTestHandler(t, &stubGen{})

	req := httptest.NewRequest("GET", "/v1/history/messages?user_id=u1&chat_id=c1", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	h := newTestHandler(t, &stubGen{})

	for _, target := range []string{"/health", "/health/live", "/health/ready"} {
		req := httptest.NewRequest("GET", target, nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != 200 {
			t.Errorf("%s: status = %d", target, rec.Code)
		}
	}
}
