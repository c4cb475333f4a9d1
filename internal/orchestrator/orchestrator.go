// Package orchestrator runs one chat turn end to end: normalize the incoming
// transcript, assemble system instructions, and drive the tool loop. Every
// generation turn is streamed to the caller as tokens arrive; tool calls
// collected from a stream are executed between turns. The orchestrator holds
// no per-conversation state; history arrives with every request.
package orchestrator

import (
	"context"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"github.com/Atharva0506/farmer-ai-gateway/internal/domain"
	"github.com/Atharva0506/farmer-ai-gateway/internal/metrics"
	"github.com/Atharva0506/farmer-ai-gateway/internal/provider/gemini"
	"github.com/Atharva0506/farmer-ai-gateway/internal/telemetry"
	"github.com/Atharva0506/farmer-ai-gateway/internal/tools"
)

// Generator is the slice of the provider client the orchestrator drives.
type Generator interface {
	GenerateStream(ctx context.Context, req gemini.Request) (<-chan string, <-chan gemini.Turn)
}

// HistorySink persists a finished exchange, best effort.
type HistorySink interface {
	AppendExchange(userID, chatID, userText, assistantText string)
}

// MaxToolRounds bounds how many tool-call round trips one turn may take
// before the model is forced to answer with what it has.
const MaxToolRounds = 4

type Orchestrator struct {
	gen     Generator
	history HistorySink // nil disables persistence
	rounds  int
}

func New(gen Generator, history HistorySink) *Orchestrator {
	return &Orchestrator{gen: gen, history: history, rounds: MaxToolRounds}
}

// SetMaxToolRounds overrides the default bound. Zero or negative keeps it.
func (o *Orchestrator) SetMaxToolRounds(n int) {
	if n > 0 {
		o.rounds = n
	}
}

// ChatRequest is one chat turn: the transcript so far plus the context bag
// and the tool set for this caller.
type ChatRequest struct {
	Messages []IncomingMessage
	Context  domain.ChatContext
	Registry *tools.Registry
}

// Chat runs the turn and streams the answer as it is generated. The chunks
// channel closes when the answer is complete; errs delivers at most one
// error.
func (o *Orchestrator) Chat(ctx context.Context, req ChatRequest) (<-chan string, <-chan error) {
	chunks := make(chan string)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)

		metrics.ActiveStreams.Inc()
		defer metrics.ActiveStreams.Dec()

		ctx, span := telemetry.StartSpan(ctx, "chat.turn")
		defer span.End()

		msgs := Normalize(req.Messages)
		if len(msgs) == 0 {
			errs <- domain.ErrInvalidRequest
			return
		}
		telemetry.AddChatAttributes(span, req.Context.Language, string(req.Context.Mode), len(msgs))

		system := SystemPrompt(req.Context)

		reply, err := o.runTurns(ctx, span, system, msgs, req.Registry, chunks)
		if err != nil {
			errs <- err
			return
		}
		o.persist(req.Context, msgs, reply)
	}()

	return chunks, errs
}

// runTurns drives the conversation. Each generation turn is streamed to the
// caller as it arrives; tool calls collected from the stream are executed
// between turns. After the round budget the tools are withheld so the model
// must answer with what it has.
func (o *Orchestrator) runTurns(ctx context.Context, span trace.Span, system string, msgs []domain.Message, reg *tools.Registry, chunks chan<- string) (string, error) {
	haveTools := reg != nil && reg.Len() > 0

	var reply strings.Builder
	for round := 0; ; round++ {
		greq := gemini.Request{System: system, Messages: msgs}
		if haveTools && round < o.rounds {
			greq.Tools = reg.Definitions()
		}

		text, turn, err := o.streamTurn(ctx, greq, chunks)
		if err != nil {
			slog.Error("chat turn failed", "round", round, "error", err)
			return "", err
		}
		reply.WriteString(text)

		if len(turn.ToolCalls) == 0 || len(greq.Tools) == 0 {
			return reply.String(), nil
		}

		msgs = append(msgs, domain.Message{Role: domain.RoleAssistant, Parts: turn.ToolCalls})

		results := make([]domain.Part, 0, len(turn.ToolCalls))
		for _, call := range turn.ToolCalls {
			res := reg.Execute(ctx, call)
			telemetry.AddToolAttributes(span, call.ToolName, res.Failed)
			results = append(results, res)
		}
		msgs = append(msgs, domain.Message{Role: domain.RoleTool, Parts: results})
	}
}

// streamTurn relays one generation's tokens and returns the accumulated text
// plus the closing Turn.
func (o *Orchestrator) streamTurn(ctx context.Context, req gemini.Request, chunks chan<- string) (string, gemini.Turn, error) {
	upstream, turns := o.gen.GenerateStream(ctx, req)

	var text strings.Builder
	for {
		select {
		case chunk, ok := <-upstream:
			if !ok {
				select {
				case turn := <-turns:
					return text.String(), turn, turn.Err
				case <-ctx.Done():
					return "", gemini.Turn{}, ctx.Err()
				}
			}
			text.WriteString(chunk)
			select {
			case chunks <- chunk:
			case <-ctx.Done():
				return "", gemini.Turn{}, ctx.Err()
			}
		case <-ctx.Done():
			return "", gemini.Turn{}, ctx.Err()
		}
	}
}

func (o *Orchestrator) persist(chatCtx domain.ChatContext, msgs []domain.Message, reply string) {
	if o.history == nil || chatCtx.UserID == "" || reply == "" {
		return
	}
	o.history.AppendExchange(chatCtx.UserID, chatCtx.ChatID, lastUserText(msgs), reply)
}

func lastUserText(msgs []domain.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == domain.RoleUser {
			return msgs[i].Text()
		}
	}
	return ""
}
