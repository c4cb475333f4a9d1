// Package telegram is the alternate entry point for farmers on Telegram.
// The webhook acknowledges immediately and answers asynchronously, since the
// Bot API retries webhooks that respond slowly.
package telegram

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Atharva0506/farmer-ai-gateway/internal/domain"
	"github.com/Atharva0506/farmer-ai-gateway/internal/language"
	"github.com/Atharva0506/farmer-ai-gateway/internal/metrics"
	"github.com/Atharva0506/farmer-ai-gateway/internal/orchestrator"
	"github.com/Atharva0506/farmer-ai-gateway/internal/provider/gemini"
	"github.com/Atharva0506/farmer-ai-gateway/internal/tools"
)

// Update is the webhook payload, reduced to the fields the gateway reads.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message"`
}

type Message struct {
	MessageID int64       `json:"message_id"`
	From      *User       `json:"from"`
	Chat      Chat        `json:"chat"`
	Text      string      `json:"text"`
	Caption   string      `json:"caption"`
	Photo     []PhotoSize `json:"photo"`
}

type User struct {
	ID int64 `json:"id"`
}

type Chat struct {
	ID int64 `json:"id"`
}

type PhotoSize struct {
	FileID string `json:"file_id"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// BotAPI is the slice of the Bot API client the adapter uses.
type BotAPI interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	SendChatAction(ctx context.Context, chatID int64, action string) error
	DownloadPhoto(ctx context.Context, fileID string) ([]byte, string, error)
}

// Generator is the slice of the provider client the adapter uses.
type Generator interface {
	Generate(ctx context.Context, req gemini.Request) (*gemini.Result, error)
}

const (
	// messageLimit is the Bot API ceiling for one sendMessage text.
	messageLimit = 4096

	// maxToolRounds is deliberately tighter than the web chat: Telegram
	// replies are short-form.
	maxToolRounds = 2

	replyTimeout = 2 * time.Minute
)

type Adapter struct {
	api     BotAPI
	gen     Generator
	service *tools.Service
}

func New(api BotAPI, gen Generator, service *tools.Service) *Adapter {
	return &Adapter{api: api, gen: gen, service: service}
}

// Webhook decodes the update and acks immediately; the reply happens in a
// background goroutine on a fresh context.
func (a *Adapter) Webhook(w http.ResponseWriter, r *http.Request) {
	var upd Update
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		// Malformed updates are still acked: Telegram would retry forever.
		slog.Warn("telegram webhook decode failed", "error", err)
		w.WriteHeader(http.StatusOK)
		return
	}

	w.WriteHeader(http.StatusOK)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), replyTimeout)
		defer cancel()
		a.handle(ctx, upd)
	}()
}

func (a *Adapter) handle(ctx context.Context, upd Update) {
	msg := upd.Message
	if msg == nil {
		metrics.TelegramMessages.WithLabelValues("ignored").Inc()
		return
	}

	text := msg.Text
	if text == "" {
		text = msg.Caption
	}
	if text == "" && len(msg.Photo) == 0 {
		metrics.TelegramMessages.WithLabelValues("ignored").Inc()
		return
	}

	kind := "text"
	if len(msg.Photo) > 0 {
		kind = "photo"
	}
	metrics.TelegramMessages.WithLabelValues(kind).Inc()

	if err := a.api.SendChatAction(ctx, msg.Chat.ID, "typing"); err != nil {
		slog.Warn("telegram chat action failed", "error", err)
	}

	parts := a.buildParts(ctx, msg, text)
	if len(parts) == 0 {
		return
	}

	lang := language.Detect(text)
	userID := ""
	if msg.From != nil {
		userID = strconv.FormatInt(msg.From.ID, 10)
	}

	reply, err := a.complete(ctx, lang, userID, parts)
	if err != nil {
		slog.Error("telegram reply failed", "chat", msg.Chat.ID, "error", err)
		reply = apology(lang)
	}

	for _, chunk := range splitMessage(reply, messageLimit) {
		if err := a.api.SendMessage(ctx, msg.Chat.ID, chunk); err != nil {
			slog.Error("telegram send failed", "chat", msg.Chat.ID, "error", err)
			return
		}
	}
}

func (a *Adapter) buildParts(ctx context.Context, msg *Message, text string) []domain.Part {
	var parts []domain.Part
	if text != "" {
		parts = append(parts, domain.Part{Type: domain.PartText, Text: text})
	}

	if len(msg.Photo) > 0 {
		best := largestPhoto(msg.Photo)
		data, mime, err := a.api.DownloadPhoto(ctx, best.FileID)
		if err != nil {
			slog.Warn("telegram photo download failed", "error", err)
		} else {
			parts = append(parts, domain.Part{
				Type:      domain.PartImage,
				ImageData: base64.StdEncoding.EncodeToString(data),
				ImageMIME: mime,
			})
		}
	}
	return parts
}

// complete runs a short tool loop and returns a single non-streamed answer.
func (a *Adapter) complete(ctx context.Context, lang, userID string, parts []domain.Part) (string, error) {
	system := orchestrator.SystemPrompt(domain.ChatContext{Language: lang, Mode: domain.ModeQuick})
	reg := tools.TelegramRegistry(a.service, userID)

	msgs := []domain.Message{{Role: domain.RoleUser, Parts: parts}}

	for round := 0; round < maxToolRounds; round++ {
		result, err := a.gen.Generate(ctx, gemini.Request{
			System:   system,
			Messages: msgs,
			Tools:    reg.Definitions(),
		})
		if err != nil {
			return "", err
		}
		if len(result.ToolCalls) == 0 {
			return result.Text, nil
		}

		msgs = append(msgs, domain.Message{Role: domain.RoleAssistant, Parts: result.ToolCalls})
		results := make([]domain.Part, 0, len(result.ToolCalls))
		for _, call := range result.ToolCalls {
			results = append(results, reg.Execute(ctx, call))
		}
		msgs = append(msgs, domain.Message{Role: domain.RoleTool, Parts: results})
	}

	// Rounds spent: force a plain answer from what was gathered.
	result, err := a.gen.Generate(ctx, gemini.Request{System: system, Messages: msgs})
	if err != nil {
		return "", err
	}
	return result.Text, nil
}

func largestPhoto(sizes []PhotoSize) PhotoSize {
	best := sizes[0]
	for _, s := range sizes[1:] {
		if s.Width*s.Height > best.Width*best.Height {
			best = s
		}
	}
	return best
}

// splitMessage chunks by runes so multi-byte Devanagari text never splits
// mid-character.
func splitMessage(s string, limit int) []string {
	runes := []rune(s)
	if len(runes) == 0 {
		return nil
	}

	var out []string
	for len(runes) > limit {
		out = append(out, string(runes[:limit]))
		runes = runes[limit:]
	}
	return append(out, string(runes))
}

func apology(lang string) string {
	switch lang {
	case language.Hindi:
		return "क्षमा करें, अभी जवाब नहीं दे पा रहे। कृपया थोड़ी देर बाद फिर कोशिश करें।"
	case language.Marathi:
		return "क्षमस्व, सध्या उत्तर देता येत नाही. कृपया थोड्या वेळाने पुन्हा प्रयत्न करा."
	default:
		return "Sorry, I could not answer right now. Please try again in a little while."
	}
}
