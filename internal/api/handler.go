// Package api is the HTTP surface: the streaming chat endpoint, direct
// report endpoints for each structured skill, the Telegram webhook, and
// operational endpoints (health, metrics, key pool stats).
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Atharva0506/farmer-ai-gateway/internal/domain"
	"github.com/Atharva0506/farmer-ai-gateway/internal/keypool"
	"github.com/Atharva0506/farmer-ai-gateway/internal/metrics"
	"github.com/Atharva0506/farmer-ai-gateway/internal/orchestrator"
	"github.com/Atharva0506/farmer-ai-gateway/internal/ratelimit"
	"github.com/Atharva0506/farmer-ai-gateway/internal/tools"
)

// BreakerReporter exposes an upstream circuit state for /health.
type BreakerReporter interface {
	BreakerState() string
}

// HistoryStore serves the per-user history endpoints.
type HistoryStore interface {
	LoadMessages(ctx context.Context, userID, chatID string, limit int) ([]domain.StoredMessage, error)
	ListDiseaseReports(ctx context.Context, userID string, limit int) ([]domain.DiseaseRecord, error)
}

type HandlerConfig struct {
	Orchestrator *orchestrator.Orchestrator
	Tools        *tools.Service
	Pool         *keypool.Pool
	Limiter      *ratelimit.Limiter
	ChatLimit    ratelimit.Limit
	ReportLimit  ratelimit.Limit

	// History enables GET /v1/history/* when non-nil.
	History HistoryStore

	// Weather, when non-nil, reports its circuit state on /health.
	Weather BreakerReporter

	// TelegramWebhook is mounted at POST /telegram/webhook when non-nil.
	TelegramWebhook http.HandlerFunc

	Checkers     []HealthChecker
	CheckTimeout time.Duration
}

type Handler struct {
	orch        *orchestrator.Orchestrator
	tools       *tools.Service
	pool        *keypool.Pool
	limiter     *ratelimit.Limiter
	chatLimit   ratelimit.Limit
	reportLimit ratelimit.Limit
	history     HistoryStore
	weather     BreakerReporter
	mux         *http.ServeMux
}

func NewHandler(cfg HandlerConfig) *Handler {
	h := &Handler{
		orch:        cfg.Orchestrator,
		tools:       cfg.Tools,
		pool:        cfg.Pool,
		limiter:     cfg.Limiter,
		chatLimit:   cfg.ChatLimit,
		reportLimit: cfg.ReportLimit,
		weather:     cfg.Weather,
		mux:         http.NewServeMux(),
	}

	h.mux.HandleFunc("POST /v1/chat", h.limited(h.chatLimit, h.handleChat))
	h.mux.HandleFunc("POST /v1/reports/{kind}", h.limited(h.reportLimit, h.handleReport))
	h.mux.HandleFunc("GET /v1/weather/alerts", h.limited(h.reportLimit, h.handleWeatherAlerts))
	h.mux.HandleFunc("GET /v1/keys/stats", h.handleKeyStats)
	h.mux.HandleFunc("GET /health", h.handleHealth)
	h.mux.HandleFunc("GET /health/live", handleHealthLive)
	h.mux.HandleFunc("GET /health/ready", handleHealthReady(cfg.Checkers, cfg.CheckTimeout))
	h.mux.Handle("GET /metrics", promhttp.Handler())

	if cfg.History != nil {
		h.history = cfg.History
		h.mux.HandleFunc("GET /v1/history/messages", h.limited(h.reportLimit, h.handleHistoryMessages))
		h.mux.HandleFunc("GET /v1/history/disease", h.limited(h.reportLimit, h.handleHistoryDisease))
	}

	if cfg.TelegramWebhook != nil {
		h.mux.HandleFunc("POST /telegram/webhook", cfg.TelegramWebhook)
	}

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// limited wraps a handler with the per-IP sliding window check and the
// standard rate limit headers.
func (h *Handler) limited(limit ratelimit.Limit, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result := h.limiter.Check(ratelimit.ClientIP(r), limit)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit.MaxRequests))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))

		if !result.Allowed {
			metrics.RateLimitHits.WithLabelValues(r.URL.Path).Inc()
			ratelimit.Deny(w, result)
			return
		}
		next(w, r)
	}
}

type chatRequest struct {
	Messages []orchestrator.IncomingMessage `json:"messages"`
	Context  domain.ChatContext             `json:"context"`
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	requestID := r.Header.Get("X-Request-ID")
	if requestID == "" {
		requestID = uuid.New().String()
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	chunks, errs := h.orch.Chat(ctx, orchestrator.ChatRequest{
		Messages: req.Messages,
		Context:  req.Context,
		Registry: tools.FullRegistry(h.tools, req.Context.UserID),
	})

	headersSent := false
	sendHeaders := func() {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Request-ID", requestID)
		headersSent = true
	}

	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				if err, open := <-errs; open && err != nil {
					h.chatError(w, err, requestID, headersSent)
					return
				}
				if !headersSent {
					sendHeaders()
				}
				w.Write([]byte("data: [DONE]\n\n"))
				flusher.Flush()
				metrics.RecordRequest("/v1/chat", "200", time.Since(start).Seconds())
				slog.Info("chat completed", "request_id", requestID, "latency_ms", time.Since(start).Milliseconds())
				return
			}
			if !headersSent {
				sendHeaders()
			}
			data, _ := json.Marshal(map[string]string{"delta": chunk})
			w.Write([]byte("data: " + string(data) + "\n\n"))
			flusher.Flush()

		case err, open := <-errs:
			if open && err != nil {
				h.chatError(w, err, requestID, headersSent)
				return
			}

		case <-ctx.Done():
			return
		}
	}
}

// chatError logs the real failure and sends the caller a generic one.
// Upstream error strings can embed response bodies and must not leave the
// process.
func (h *Handler) chatError(w http.ResponseWriter, err error, requestID string, headersSent bool) {
	slog.Error("chat failed", "request_id", requestID, "error", err)
	metrics.RecordRequest("/v1/chat", "502", 0)

	if headersSent {
		data, _ := json.Marshal(map[string]string{"error": "something went wrong"})
		w.Write([]byte("data: " + string(data) + "\n\n"))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		return
	}

	if errors.Is(err, domain.ErrInvalidRequest) {
		writeError(w, http.StatusBadRequest, "empty conversation")
		return
	}
	writeError(w, http.StatusBadGateway, "something went wrong")
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	kind := r.PathValue("kind")
	start := time.Now()

	var (
		report any
		err    error
	)

	switch kind {
	case "disease":
		var in tools.DiseaseInput
		if err = decodeInput(r, &in); err == nil {
			report, err = h.tools.DiseaseCheck(ctx, in, r.Header.Get("X-User-ID"))
		}
	case "schemes":
		var in tools.SchemeInput
		if err = decodeInput(r, &in); err == nil {
			report, err = h.tools.SchemeSearch(ctx, in)
		}
	case "soil":
		var in tools.SoilInput
		if err = decodeInput(r, &in); err == nil {
			report, err = h.tools.SoilAnalysis(ctx, in)
		}
	case "yield":
		var in tools.YieldInput
		if err = decodeInput(r, &in); err == nil {
			report, err = h.tools.YieldForecast(ctx, in)
		}
	case "calendar":
		var in tools.CalendarInput
		if err = decodeInput(r, &in); err == nil {
			report, err = h.tools.FarmingCalendar(ctx, in)
		}
	default:
		writeError(w, http.StatusNotFound, "unknown report kind")
		return
	}

	endpoint := "/v1/reports/" + kind
	if err != nil {
		status := reportStatus(err)
		slog.Error("report failed", "kind", kind, "error", err)
		metrics.RecordRequest(endpoint, strconv.Itoa(status), time.Since(start).Seconds())
		writeError(w, status, reportMessage(status))
		return
	}

	metrics.RecordRequest(endpoint, "200", time.Since(start).Seconds())
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) handleWeatherAlerts(w http.ResponseWriter, r *http.Request) {
	lat, errLat := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lon, errLon := strconv.ParseFloat(r.URL.Query().Get("lon"), 64)
	if errLat != nil || errLon != nil {
		writeError(w, http.StatusBadRequest, "lat and lon query parameters are required")
		return
	}

	in := tools.WeatherInput{Latitude: lat, Longitude: lon, Language: r.URL.Query().Get("lang")}
	if err := tools.ValidateInput(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid coordinates")
		return
	}

	report, err := h.tools.WeatherAlerts(r.Context(), in)
	if err != nil {
		status := reportStatus(err)
		slog.Error("weather alerts failed", "error", err)
		writeError(w, status, reportMessage(status))
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) handleHistoryMessages(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	chatID := r.URL.Query().Get("chat_id")
	if userID == "" || chatID == "" {
		writeError(w, http.StatusBadRequest, "user_id and chat_id query parameters are required")
		return
	}

	msgs, err := h.history.LoadMessages(r.Context(), userID, chatID, historyLimit(r))
	if err != nil {
		slog.Error("history load failed", "user_id", userID, "error", err)
		writeError(w, http.StatusBadGateway, "something went wrong")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

func (h *Handler) handleHistoryDisease(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id query parameter is required")
		return
	}

	records, err := h.history.ListDiseaseReports(r.Context(), userID, historyLimit(r))
	if err != nil {
		slog.Error("disease history load failed", "user_id", userID, "error", err)
		writeError(w, http.StatusBadGateway, "something went wrong")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reports": records})
}

func historyLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n < 1 || n > 200 {
		return 50
	}
	return n
}

func (h *Handler) handleKeyStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"keys": h.pool.Stats()})
}

func decodeInput(r *http.Request, in any) error {
	if err := json.NewDecoder(r.Body).Decode(in); err != nil {
		return domain.ErrInvalidToolArgs
	}
	return tools.ValidateInput(in)
}

func reportStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidToolArgs):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrWeatherUnavailable), errors.Is(err, domain.ErrCircuitOpen):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrUpstreamThrottled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func reportMessage(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "invalid input"
	case http.StatusServiceUnavailable:
		return "temporarily unavailable, try again shortly"
	default:
		return "something went wrong"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": message,
			"type":    "error",
			"code":    status,
		},
	})
}
