package gemini

import (
	"encoding/json"
	"fmt"

	"github.com/Atharva0506/farmer-ai-gateway/internal/domain"
	"github.com/google/uuid"
)

// Wire shapes for the generateContent REST API.

type wirePart struct {
	Text             string            `json:"text,omitempty"`
	InlineData       *wireInlineData   `json:"inlineData,omitempty"`
	FunctionCall     *wireFunctionCall `json:"functionCall,omitempty"`
	FunctionResponse *wireFunctionResp `json:"functionResponse,omitempty"`
}

type wireInlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type wireFunctionCall struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

type wireFunctionResp struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type wireContent struct {
	Role  string     `json:"role,omitempty"`
	Parts []wirePart `json:"parts"`
}

type wireBody struct {
	SystemInstruction *wireContent     `json:"systemInstruction,omitempty"`
	Contents          []wireContent    `json:"contents"`
	Tools             []wireTools      `json:"tools,omitempty"`
	GenerationConfig  *wireGenConfig   `json:"generationConfig,omitempty"`
}

type wireTools struct {
	FunctionDeclarations []ToolDefinition `json:"functionDeclarations"`
}

type wireGenConfig struct {
	ResponseMIMEType string         `json:"responseMimeType,omitempty"`
	ResponseSchema   map[string]any `json:"responseSchema,omitempty"`
}

func (c *Client) buildBody(req Request) wireBody {
	body := wireBody{}

	if req.System != "" {
		body.SystemInstruction = &wireContent{Parts: []wirePart{{Text: req.System}}}
	}

	for _, msg := range req.Messages {
		content := wireContent{Role: wireRole(msg.Role)}
		for _, p := range msg.Parts {
			switch p.Type {
			case domain.PartText:
				content.Parts = append(content.Parts, wirePart{Text: p.Text})
			case domain.PartImage:
				content.Parts = append(content.Parts, wirePart{
					InlineData: &wireInlineData{MIMEType: p.ImageMIME, Data: p.ImageData},
				})
			case domain.PartToolCall:
				content.Parts = append(content.Parts, wirePart{
					FunctionCall: &wireFunctionCall{
						Name: p.ToolName,
						Args: json.RawMessage(p.ToolArgs),
					},
				})
			case domain.PartToolResult:
				resp := map[string]any{"result": p.Result}
				if p.Failed {
					resp = map[string]any{"error": p.Result}
				}
				content.Parts = append(content.Parts, wirePart{
					FunctionResponse: &wireFunctionResp{Name: p.ToolName, Response: resp},
				})
			}
		}
		if len(content.Parts) > 0 {
			body.Contents = append(body.Contents, content)
		}
	}

	if len(req.Tools) > 0 {
		body.Tools = []wireTools{{FunctionDeclarations: req.Tools}}
	}

	if req.ResponseSchema != nil {
		body.GenerationConfig = &wireGenConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   req.ResponseSchema,
		}
	}

	return body
}

func wireRole(role string) string {
	switch role {
	case domain.RoleAssistant:
		return "model"
	default:
		return "user"
	}
}

type generateResponse struct {
	Candidates []struct {
		Content wireContent `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func (r generateResponse) text() string {
	var s string
	for _, cand := range r.Candidates {
		for _, p := range cand.Content.Parts {
			s += p.Text
		}
	}
	return s
}

// calls maps every functionCall part in the response to a domain tool call.
func (r generateResponse) calls() []domain.Part {
	var out []domain.Part
	for _, cand := range r.Candidates {
		for _, p := range cand.Content.Parts {
			if call, ok := p.call(); ok {
				out = append(out, call)
			}
		}
	}
	return out
}

func (p wirePart) call() (domain.Part, bool) {
	if p.FunctionCall == nil {
		return domain.Part{}, false
	}
	args := string(p.FunctionCall.Args)
	if args == "" {
		args = "{}"
	}
	return domain.Part{
		Type:       domain.PartToolCall,
		ToolCallID: uuid.New().String(),
		ToolName:   p.FunctionCall.Name,
		ToolArgs:   args,
	}, true
}

func (r generateResponse) toResult() (*Result, error) {
	if r.Error != nil {
		return nil, fmt.Errorf("%w: %s %s", domain.ErrUpstreamError, r.Error.Status, r.Error.Message)
	}
	if len(r.Candidates) == 0 {
		return nil, fmt.Errorf("%w: empty candidates", domain.ErrUpstreamError)
	}

	result := &Result{}
	for _, p := range r.Candidates[0].Content.Parts {
		if p.Text != "" {
			result.Text += p.Text
		}
		if call, ok := p.call(); ok {
			result.ToolCalls = append(result.ToolCalls, call)
		}
	}
	return result, nil
}
