package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/Atharva0506/farmer-ai-gateway/internal/domain"
	"github.com/Atharva0506/farmer-ai-gateway/internal/keypool"
)

func textMsg(role, text string) domain.Message {
	return domain.Message{Role: role, Parts: []domain.Part{{Type: domain.PartText, Text: text}}}
}

func newTestClient(t *testing.T, srvURL string, keys ...string) *Client {
	t.Helper()
	pool, err := keypool.New(keys)
	if err != nil {
		t.Fatalf("build pool: %v", err)
	}
	return New(srvURL, "test-model", pool)
}

func TestGenerate_Text(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-goog-api-key") == "" {
			t.Error("missing credential header")
		}

		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["systemInstruction"] == nil {
			t.Error("expected system instruction in body")
		}

		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"role": "model", "parts": []map[string]any{
					{"text": "Sow wheat in early November."},
				}}},
			},
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, "key-a")
	result, err := c.Generate(context.Background(), Request{
		System:   "You are a farm assistant.",
		Messages: []domain.Message{textMsg(domain.RoleUser, "When do I sow wheat?")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Text != "Sow wheat in early November." {
		t.Errorf("unexpected text: %q", result.Text)
	}
	if len(result.ToolCalls) != 0 {
		t.Errorf("expected no tool calls, got %d", len(result.ToolCalls))
	}
}

func TestGenerate_ToolCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"role": "model", "parts": []map[string]any{
					{"functionCall": map[string]any{
						"name": "disease_check",
						"args": map[string]any{"crop": "tomato", "symptoms": "yellow leaves"},
					}},
				}}},
			},
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, "key-a")
	result, err := c.Generate(context.Background(), Request{
		Messages: []domain.Message{textMsg(domain.RoleUser, "what is wrong with my tomatoes")},
		Tools:    []ToolDefinition{{Name: "disease_check", Description: "diagnose crop disease"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(result.ToolCalls))
	}

	call := result.ToolCalls[0]
	if call.ToolName != "disease_check" {
		t.Errorf("tool name = %q", call.ToolName)
	}
	if call.ToolCallID == "" {
		t.Error("tool call must carry an ID")
	}

	var args map[string]string
	if err := json.Unmarshal([]byte(call.ToolArgs), &args); err != nil {
		t.Fatalf("args not valid JSON: %v", err)
	}
	if args["crop"] != "tomato" {
		t.Errorf("args crop = %q", args["crop"])
	}
}

func TestGenerate_RotatesOnThrottle(t *testing.T) {
	var calls atomic.Int32
	var firstKey, secondKey string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if n == 1 {
			firstKey = r.Header.Get("x-goog-api-key")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":{"code":429,"status":"RESOURCE_EXHAUSTED"}}`))
			return
		}
		secondKey = r.Header.Get("x-goog-api-key")
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]any{{"text": "ok"}}}},
			},
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, "key-a", "key-b")
	result, err := c.Generate(context.Background(), Request{
		Messages: []domain.Message{textMsg(domain.RoleUser, "hi")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Text != "ok" {
		t.Errorf("text = %q", result.Text)
	}
	if firstKey == secondKey {
		t.Error("throttled call must rotate to a different credential")
	}
}

func TestGenerate_NonThrottleDoesNotRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":400,"status":"INVALID_ARGUMENT"}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, "key-a", "key-b")
	_, err := c.Generate(context.Background(), Request{
		Messages: []domain.Message{textMsg(domain.RoleUser, "hi")},
	})
	if !errors.Is(err, domain.ErrUpstreamError) {
		t.Fatalf("expected ErrUpstreamError, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected exactly 1 attempt, got %d", calls.Load())
	}
}

func TestGenerateStructured(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		gc, _ := body["generationConfig"].(map[string]any)
		if gc == nil || gc["responseMimeType"] != "application/json" {
			t.Error("structured call must set responseMimeType")
		}

		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]any{
					{"text": `{"disease":"early blight","severity":"medium","confidence":82}`},
				}}},
			},
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, "key-a")

	var report domain.DiseaseReport
	err := c.GenerateStructured(context.Background(), Request{
		Messages:       []domain.Message{textMsg(domain.RoleUser, "diagnose")},
		ResponseSchema: map[string]any{"type": "object"},
	}, &report)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Disease != "early blight" || report.Severity != domain.SeverityMedium {
		t.Errorf("unexpected report: %+v", report)
	}
}

func TestGenerateStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte(`data: {"candidates":[{"content":{"parts":[{"text":"Hello "}]}}]}` + "\n\n"))
		w.Write([]byte(`data: {"candidates":[{"content":{"parts":[{"text":"farmer"}]}}]}` + "\n\n"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, "key-a")
	chunks, turns := c.GenerateStream(context.Background(), Request{
		Messages: []domain.Message{textMsg(domain.RoleUser, "hi")},
	})

	var got string
	for chunk := range chunks {
		got += chunk
	}
	turn := <-turns
	if turn.Err != nil {
		t.Fatalf("unexpected stream error: %v", turn.Err)
	}
	if got != "Hello farmer" {
		t.Errorf("streamed text = %q", got)
	}
	if len(turn.ToolCalls) != 0 {
		t.Errorf("expected no tool calls, got %d", len(turn.ToolCalls))
	}
}

func TestGenerateStream_RotatesOnThrottle(t *testing.T) {
	var calls atomic.Int32
	var firstKey, secondKey string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if n == 1 {
			firstKey = r.Header.Get("x-goog-api-key")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":{"code":429,"status":"RESOURCE_EXHAUSTED"}}`))
			return
		}
		secondKey = r.Header.Get("x-goog-api-key")
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte(`data: {"candidates":[{"content":{"parts":[{"text":"ok"}]}}]}` + "\n\n"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, "key-a", "key-b")
	chunks, turns := c.GenerateStream(context.Background(), Request{
		Messages: []domain.Message{textMsg(domain.RoleUser, "hi")},
	})

	var got string
	for chunk := range chunks {
		got += chunk
	}
	turn := <-turns
	if turn.Err != nil {
		t.Fatalf("throttled stream must recover on the next credential, got %v", turn.Err)
	}
	if got != "ok" {
		t.Errorf("streamed text = %q", got)
	}
	if firstKey == secondKey {
		t.Error("throttled stream must rotate to a different credential")
	}
}

func TestGenerateStream_CollectsToolCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte(`data: {"candidates":[{"content":{"parts":[{"functionCall":{"name":"weather_alerts","args":{"latitude":19.1,"longitude":72.9}}}]}}]}` + "\n\n"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, "key-a")
	chunks, turns := c.GenerateStream(context.Background(), Request{
		Messages: []domain.Message{textMsg(domain.RoleUser, "any storms coming?")},
		Tools:    []ToolDefinition{{Name: "weather_alerts", Description: "weather alerts"}},
	})

	for range chunks {
		t.Error("a pure tool-call turn must not emit text")
	}
	turn := <-turns
	if turn.Err != nil {
		t.Fatalf("unexpected error: %v", turn.Err)
	}
	if len(turn.ToolCalls) != 1 {
		t.Fatalf("tool calls = %d, want 1", len(turn.ToolCalls))
	}
	call := turn.ToolCalls[0]
	if call.ToolName != "weather_alerts" || call.ToolCallID == "" {
		t.Errorf("call = %+v", call)
	}

	var args map[string]float64
	if err := json.Unmarshal([]byte(call.ToolArgs), &args); err != nil {
		t.Fatalf("args not valid JSON: %v", err)
	}
	if args["latitude"] != 19.1 {
		t.Errorf("args latitude = %v", args["latitude"])
	}
}

func TestBuildBody_NormalizedParts(t *testing.T) {
	pool, _ := keypool.New([]string{"k"})
	c := New("http://x", "m", pool)

	body := c.buildBody(Request{
		Messages: []domain.Message{
			{Role: domain.RoleUser, Parts: []domain.Part{
				{Type: domain.PartText, Text: "look at this leaf"},
				{Type: domain.PartImage, ImageData: "b64data", ImageMIME: "image/jpeg"},
			}},
			{Role: domain.RoleAssistant, Parts: []domain.Part{
				{Type: domain.PartToolCall, ToolName: "disease_check", ToolArgs: `{"crop":"okra"}`},
			}},
			{Role: domain.RoleTool, Parts: []domain.Part{
				{Type: domain.PartToolResult, ToolName: "disease_check", Result: `{"disease":"wilt"}`},
			}},
		},
	})

	if len(body.Contents) != 3 {
		t.Fatalf("contents = %d, want 3", len(body.Contents))
	}
	if body.Contents[0].Parts[1].InlineData == nil {
		t.Error("image part must map to inlineData")
	}
	if body.Contents[1].Role != "model" {
		t.Errorf("assistant role maps to %q, want model", body.Contents[1].Role)
	}
	if body.Contents[2].Parts[0].FunctionResponse == nil {
		t.Error("tool result must map to functionResponse")
	}
}
