// Package language guesses the user's language from script heuristics so the
// Telegram gateway can reply in kind without an explicit setting.
package language

import "strings"

// Supported language codes.
const (
	English = "en"
	Hindi   = "hi"
	Marathi = "mr"
)

// Marathi function words that do not occur in Hindi. Hindi and Marathi share
// the Devanagari script, so the script check alone cannot separate them.
var marathiStopwords = []string{
	"आहे", "आहेत", "आणि", "मला", "तुम्ही", "काय", "कसे", "माझ्या",
	"शेती", "पिकाला", "होते", "नाही", "पाहिजे", "करायचे",
}

// Detect returns the language code for the text: Devanagari codepoints mean
// Hindi unless a Marathi stopword appears, everything else is English.
func Detect(text string) string {
	if !hasDevanagari(text) {
		return English
	}
	for _, word := range marathiStopwords {
		if strings.Contains(text, word) {
			return Marathi
		}
	}
	return Hindi
}

func hasDevanagari(text string) bool {
	for _, r := range text {
		if r >= 0x0900 && r <= 0x097F {
			return true
		}
	}
	return false
}

// Name returns the English name of a supported language code, used when
// building model prompts.
func Name(code string) string {
	switch code {
	case Hindi:
		return "Hindi"
	case Marathi:
		return "Marathi"
	default:
		return "English"
	}
}
