package orchestrator

import (
	"encoding/json"
	"strings"

	"github.com/Atharva0506/farmer-ai-gateway/internal/domain"
)

// IncomingMessage is the loosely-shaped message clients send. Content may be
// a plain string or an array of parts; UI clients send a parts array instead.
type IncomingMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content,omitempty"`
	Parts   []IncomingPart  `json:"parts,omitempty"`
}

// IncomingPart covers the part shapes seen in the wild: {type,text},
// {type,image} with a data URL or raw base64, and the UI's {type,data,mime}.
type IncomingPart struct {
	Type  string `json:"type,omitempty"`
	Text  string `json:"text,omitempty"`
	Image string `json:"image,omitempty"`
	Data  string `json:"data,omitempty"`
	MIME  string `json:"mime,omitempty"`
}

// Normalize flattens every incoming shape into canonical messages and drops
// messages that carry no content.
func Normalize(in []IncomingMessage) []domain.Message {
	out := make([]domain.Message, 0, len(in))
	for _, m := range in {
		role := m.Role
		if role == "" {
			role = domain.RoleUser
		}

		parts := normalizeParts(m)
		if len(parts) == 0 {
			continue
		}
		out = append(out, domain.Message{Role: role, Parts: parts})
	}
	return out
}

func normalizeParts(m IncomingMessage) []domain.Part {
	if len(m.Parts) > 0 {
		return convertParts(m.Parts)
	}
	if len(m.Content) == 0 {
		return nil
	}

	var text string
	if err := json.Unmarshal(m.Content, &text); err == nil {
		if strings.TrimSpace(text) == "" {
			return nil
		}
		return []domain.Part{{Type: domain.PartText, Text: text}}
	}

	var parts []IncomingPart
	if err := json.Unmarshal(m.Content, &parts); err == nil {
		return convertParts(parts)
	}
	return nil
}

func convertParts(in []IncomingPart) []domain.Part {
	var out []domain.Part
	for _, p := range in {
		switch {
		case p.Type == "image" || p.Image != "" || p.Data != "":
			data, mime := decodeImage(p)
			if data == "" {
				continue
			}
			out = append(out, domain.Part{Type: domain.PartImage, ImageData: data, ImageMIME: mime})
		default:
			if strings.TrimSpace(p.Text) == "" {
				continue
			}
			out = append(out, domain.Part{Type: domain.PartText, Text: p.Text})
		}
	}
	return out
}

// decodeImage accepts a data URL ("data:image/jpeg;base64,...") or raw
// base64 with a separate MIME field.
func decodeImage(p IncomingPart) (data, mime string) {
	src := p.Image
	if src == "" {
		src = p.Data
	}

	if strings.HasPrefix(src, "data:") {
		rest := strings.TrimPrefix(src, "data:")
		meta, payload, ok := strings.Cut(rest, ",")
		if !ok {
			return "", ""
		}
		mime = strings.TrimSuffix(meta, ";base64")
		return payload, mime
	}

	mime = p.MIME
	if mime == "" {
		mime = "image/jpeg"
	}
	return src, mime
}
