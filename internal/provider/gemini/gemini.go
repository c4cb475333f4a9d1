// Package gemini is the client for the upstream structured-generation API.
// Every call draws a credential from the key pool; throttling errors rotate
// to the next credential and place the failing one in cooldown.
package gemini

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Atharva0506/farmer-ai-gateway/internal/domain"
	"github.com/Atharva0506/farmer-ai-gateway/internal/httputil"
	"github.com/Atharva0506/farmer-ai-gateway/internal/keypool"
	"github.com/Atharva0506/farmer-ai-gateway/internal/metrics"
)

// ToolDefinition describes one callable function offered to the model.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// Request is one generation call.
type Request struct {
	System   string
	Messages []domain.Message
	Tools    []ToolDefinition

	// ResponseSchema switches the call to structured mode: the model must
	// emit JSON conforming to this schema.
	ResponseSchema map[string]any
}

// Result is the model's reply: text, and/or tool calls to execute.
type Result struct {
	Text      string
	ToolCalls []domain.Part
}

type Client struct {
	baseURL       string
	model         string
	pool          *keypool.Pool
	client        *http.Client
	onUnavailable func()
}

// OnUnavailable registers a callback fired when a call fails with every
// rotation attempt throttled. Runs in its own goroutine.
func (c *Client) OnUnavailable(fn func()) {
	c.onUnavailable = fn
}

func New(baseURL, model string, pool *keypool.Pool) *Client {
	return &Client{
		baseURL: baseURL,
		model:   model,
		pool:    pool,
		client:  httputil.NewClient(httputil.ModelConfig()),
	}
}

// maxAttempts bounds credential rotation on throttling. Non-throttle errors
// never retry.
const maxAttempts = 3

// Generate performs a one-shot completion.
func (c *Client) Generate(ctx context.Context, req Request) (*Result, error) {
	attempts := maxAttempts
	if n := c.pool.Size(); n < attempts {
		attempts = n
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		cred := c.pool.Next()

		result, err := c.generateOnce(ctx, cred, req)
		if err == nil {
			c.pool.MarkSuccess(cred)
			return result, nil
		}

		if !isThrottle(err) {
			metrics.UpstreamErrors.WithLabelValues("transport").Inc()
			return nil, err
		}

		c.pool.MarkError(cred)
		metrics.UpstreamErrors.WithLabelValues("throttle").Inc()
		lastErr = err
	}

	if c.onUnavailable != nil {
		go c.onUnavailable()
	}
	return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamThrottled, lastErr)
}

// GenerateStructured performs a schema-constrained call and decodes the JSON
// reply into out.
func (c *Client) GenerateStructured(ctx context.Context, req Request, out any) error {
	if req.ResponseSchema == nil {
		return fmt.Errorf("%w: structured call without schema", domain.ErrInvalidRequest)
	}

	result, err := c.Generate(ctx, req)
	if err != nil {
		return err
	}

	if err := json.Unmarshal([]byte(result.Text), out); err != nil {
		return fmt.Errorf("%w: malformed structured output: %v", domain.ErrUpstreamError, err)
	}
	return nil
}

// Turn closes one streamed generation: the tool calls the model issued, if
// any, and the terminal error. It is delivered after the text channel closes.
type Turn struct {
	ToolCalls []domain.Part
	Err       error
}

// GenerateStream streams text deltas over the first channel and delivers a
// single Turn on the second once the stream ends. Tool calls arriving
// mid-stream are collected into the Turn so callers can run the tool loop
// without buffering. Throttled credentials rotate before the first byte,
// same as Generate.
func (c *Client) GenerateStream(ctx context.Context, req Request) (<-chan string, <-chan Turn) {
	chunks := make(chan string)
	turns := make(chan Turn, 1)

	go func() {
		defer close(chunks)
		defer close(turns)

		body, err := json.Marshal(c.buildBody(req))
		if err != nil {
			turns <- Turn{Err: fmt.Errorf("marshal request: %w", err)}
			return
		}

		attempts := maxAttempts
		if n := c.pool.Size(); n < attempts {
			attempts = n
		}

		var lastErr error
		for i := 0; i < attempts; i++ {
			cred := c.pool.Next()

			resp, err := c.openStream(ctx, cred, body)
			if err != nil {
				if !isThrottle(err) {
					metrics.UpstreamErrors.WithLabelValues("transport").Inc()
					turns <- Turn{Err: err}
					return
				}
				c.pool.MarkError(cred)
				metrics.UpstreamErrors.WithLabelValues("throttle").Inc()
				lastErr = err
				continue
			}

			turn := readStream(ctx, resp, chunks)
			if turn.Err == nil {
				c.pool.MarkSuccess(cred)
			}
			turns <- turn
			return
		}

		if c.onUnavailable != nil {
			go c.onUnavailable()
		}
		turns <- Turn{Err: fmt.Errorf("%w: %v", domain.ErrUpstreamThrottled, lastErr)}
	}()

	return chunks, turns
}

func (c *Client) openStream(ctx context.Context, cred *keypool.Credential, body []byte) (*http.Response, error) {
	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse", c.baseURL, c.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", cred.Key())

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		err := statusError(resp)
		resp.Body.Close()
		return nil, err
	}
	return resp, nil
}

func readStream(ctx context.Context, resp *http.Response, chunks chan<- string) Turn {
	defer resp.Body.Close()

	var turn Turn
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}

		var chunk generateResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		turn.ToolCalls = append(turn.ToolCalls, chunk.calls()...)
		text := chunk.text()
		if text == "" {
			continue
		}

		select {
		case chunks <- text:
		case <-ctx.Done():
			return Turn{Err: ctx.Err()}
		}
	}

	if err := scanner.Err(); err != nil {
		turn.Err = fmt.Errorf("scan stream: %w", err)
	}
	return turn
}

func (c *Client) generateOnce(ctx context.Context, cred *keypool.Credential, req Request) (*Result, error) {
	body, err := json.Marshal(c.buildBody(req))
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", cred.Key())

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}

	var decoded generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return decoded.toResult()
}

func statusError(resp *http.Response) error {
	// isThrottle keys on RESOURCE_EXHAUSTED in the body.
	bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("%w: status=%d body=%s", domain.ErrUpstreamError, resp.StatusCode, string(bodyBytes))
}

func isThrottle(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "status=429") ||
		strings.Contains(msg, "RESOURCE_EXHAUSTED") ||
		strings.Contains(msg, "status=503")
}
