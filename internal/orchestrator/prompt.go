package orchestrator

import (
	"fmt"
	"strings"

	"github.com/Atharva0506/farmer-ai-gateway/internal/domain"
	"github.com/Atharva0506/farmer-ai-gateway/internal/language"
)

const persona = `You are Kisan Mitra, an experienced agricultural advisor for Indian smallholder farmers.
You give practical, season-aware advice on crops, diseases, soil, weather, government schemes, and market prices.
Prefer locally available inputs and low-cost methods. Quote quantities in units farmers use (acres, quintals, kg).
When a question needs live data or a structured report, call the matching tool instead of guessing.
Never invent scheme names, prices, or pesticide dosages.`

// SystemPrompt assembles the per-request system instructions from the
// persona and the caller's context bag.
func SystemPrompt(chatCtx domain.ChatContext) string {
	var b strings.Builder
	b.WriteString(persona)

	b.WriteString("\n\nRespond in ")
	b.WriteString(language.Name(chatCtx.Language))
	b.WriteString(".")

	if chatCtx.Latitude != nil && chatCtx.Longitude != nil {
		fmt.Fprintf(&b, "\nThe farmer is near latitude %.4f, longitude %.4f. Use this for weather and region-specific advice.",
			*chatCtx.Latitude, *chatCtx.Longitude)
	}

	switch chatCtx.Mode {
	case domain.ModeResearch:
		b.WriteString("\nResearch mode: be thorough. Cover causes, options with tradeoffs, costs, and cite the scheme or source name where one exists.")
	default:
		b.WriteString("\nQuick mode: lead with the single most useful action, keep the answer short and practical.")
	}

	if chatCtx.Voice {
		b.WriteString("\nYour answer will be spoken aloud. Use 2 to 4 short sentences. No lists, no markdown, no special characters. End with a short question or suggested next step.")
	}

	return b.String()
}
