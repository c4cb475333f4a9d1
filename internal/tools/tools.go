// Package tools defines the typed skills the assistant model may invoke and
// the registry that validates and dispatches its calls. Each tool carries a
// model-facing description, a JSON-schema parameter spec, and an executor;
// arguments are decoded into typed input structs and checked with validator
// tags before any executor runs.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Atharva0506/farmer-ai-gateway/internal/domain"
	"github.com/Atharva0506/farmer-ai-gateway/internal/metrics"
	"github.com/Atharva0506/farmer-ai-gateway/internal/provider/gemini"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Tool is one callable skill.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any

	// Run receives the raw JSON arguments and returns a JSON-encoded result.
	Run func(ctx context.Context, args string) (string, error)
}

// Registry holds the tool set offered to the model for one conversation.
type Registry struct {
	tools map[string]Tool
	order []string
}

func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool)}
	for _, t := range tools {
		if _, dup := r.tools[t.Name]; dup {
			continue
		}
		r.tools[t.Name] = t
		r.order = append(r.order, t.Name)
	}
	return r
}

// Definitions returns the tool declarations in registration order.
func (r *Registry) Definitions() []gemini.ToolDefinition {
	defs := make([]gemini.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		defs = append(defs, gemini.ToolDefinition{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		})
	}
	return defs
}

// Len returns the number of registered tools.
func (r *Registry) Len() int { return len(r.order) }

// Execute runs the named tool and always returns a tool-result part: errors
// become failed results carrying a descriptive message, so the model can
// recover in its next turn instead of the whole request dying.
func (r *Registry) Execute(ctx context.Context, call domain.Part) domain.Part {
	result := domain.Part{
		Type:       domain.PartToolResult,
		ToolCallID: call.ToolCallID,
		ToolName:   call.ToolName,
	}

	tool, ok := r.tools[call.ToolName]
	if !ok {
		metrics.RecordTool(call.ToolName, "unknown")
		result.Failed = true
		result.Result = fmt.Errorf("%w: %q", domain.ErrToolNotFound, call.ToolName).Error()
		return result
	}

	out, err := tool.Run(ctx, call.ToolArgs)
	if err != nil {
		metrics.RecordTool(call.ToolName, "failed")
		slog.Warn("tool execution failed", "tool", call.ToolName, "error", err)
		result.Failed = true
		result.Result = err.Error()
		return result
	}

	metrics.RecordTool(call.ToolName, "ok")
	result.Result = out
	return result
}

// decodeArgs unmarshals and validates tool arguments. Both failure modes
// come back as ErrInvalidToolArgs with a message the model can act on.
func decodeArgs(args string, in any) error {
	if args == "" {
		args = "{}"
	}
	if err := json.Unmarshal([]byte(args), in); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidToolArgs, err)
	}
	if err := validate.Struct(in); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidToolArgs, err)
	}
	return nil
}

// ValidateInput checks a typed input struct against its validator tags. The
// report endpoints share the tool argument contract.
func ValidateInput(in any) error {
	if err := validate.Struct(in); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidToolArgs, err)
	}
	return nil
}

func toJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode tool result: %w", err)
	}
	return string(data), nil
}
