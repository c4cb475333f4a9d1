package domain

import "time"

// Role values for conversation messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// PartType discriminates the variants of a message part.
type PartType string

const (
	PartText       PartType = "text"
	PartImage      PartType = "image"
	PartToolCall   PartType = "tool_call"
	PartToolResult PartType = "tool_result"
)

// Part is one element of a message's content. Exactly the fields for its
// Type are populated; the rest stay zero.
type Part struct {
	Type PartType `json:"type"`

	Text string `json:"text,omitempty"`

	// Image payload as base64 data plus its MIME type.
	ImageData string `json:"image_data,omitempty"`
	ImageMIME string `json:"image_mime,omitempty"`

	// Tool call requested by the model.
	ToolCallID string `json:"tool_call_id,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`
	ToolArgs   string `json:"tool_args,omitempty"`

	// Tool result fed back to the model. Failed carries the error text in
	// Result when true.
	Result string `json:"result,omitempty"`
	Failed bool   `json:"failed,omitempty"`
}

// Message is the canonical conversation message every incoming shape is
// normalized into before any downstream logic runs.
type Message struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

// Text returns the concatenated text parts of the message.
func (m Message) Text() string {
	var s string
	for _, p := range m.Parts {
		if p.Type == PartText {
			s += p.Text
		}
	}
	return s
}

// ChatMode selects how thorough the assistant should be.
type ChatMode string

const (
	ModeQuick    ChatMode = "quick"
	ModeResearch ChatMode = "research"
)

// ChatContext is the free-form context bag accompanying a chat request.
type ChatContext struct {
	Language  string   `json:"language,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Mode      ChatMode `json:"mode,omitempty"`
	Voice     bool     `json:"voice,omitempty"`
	UserID    string   `json:"user_id,omitempty"`
	ChatID    string   `json:"chat_id,omitempty"`
}

// Severity classifies how serious a diagnosed disease is. Closed set so the
// UI can render it without sanitization.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// TreatmentType classifies a recommended treatment.
type TreatmentType string

const (
	TreatmentChemical TreatmentType = "chemical"
	TreatmentOrganic  TreatmentType = "organic"
	TreatmentCultural TreatmentType = "cultural"
)

// Urgency classifies how soon the farmer should act on an alert.
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyModerate Urgency = "moderate"
	UrgencyHigh     Urgency = "high"
)

// Treatment is one recommended intervention in a disease report.
type Treatment struct {
	Type        TreatmentType `json:"type" validate:"required,oneof=chemical organic cultural"`
	Name        string        `json:"name" validate:"required"`
	Application string        `json:"application"`
}

// DiseaseReport is the structured result of a crop disease diagnosis.
type DiseaseReport struct {
	Disease    string      `json:"disease" validate:"required"`
	Crop       string      `json:"crop"`
	Severity   Severity    `json:"severity" validate:"required,oneof=low medium high"`
	Confidence float64     `json:"confidence" validate:"gte=0,lte=100"`
	Symptoms   []string    `json:"symptoms"`
	Treatments []Treatment `json:"treatments" validate:"dive"`
	Prevention []string    `json:"prevention"`
}

// Scheme is one government program matched to a farmer profile.
type Scheme struct {
	Name        string `json:"name" validate:"required"`
	Agency      string `json:"agency"`
	Benefit     string `json:"benefit"`
	Eligibility string `json:"eligibility"`
	ApplyURL    string `json:"apply_url"`
}

// SchemeReport is the structured result of a scheme search. Source records
// whether the list came from a fresh generation ("web_search") or the cache.
type SchemeReport struct {
	Schemes []Scheme `json:"schemes" validate:"dive"`
	Source  string   `json:"source"`
}

// SoilReport is the structured result of a soil analysis.
type SoilReport struct {
	SoilType        string   `json:"soil_type" validate:"required"`
	PHEstimate      float64  `json:"ph_estimate" validate:"gte=0,lte=14"`
	Deficiencies    []string `json:"deficiencies"`
	Amendments      []string `json:"amendments"`
	SuitableCrops   []string `json:"suitable_crops"`
	Recommendations []string `json:"recommendations"`
}

// YieldForecast is the structured result of a yield prediction.
type YieldForecast struct {
	Crop            string   `json:"crop" validate:"required"`
	ExpectedYield   string   `json:"expected_yield"`
	Unit            string   `json:"unit"`
	Confidence      float64  `json:"confidence" validate:"gte=0,lte=100"`
	HarvestWindow   string   `json:"harvest_window"`
	RiskFactors     []string `json:"risk_factors"`
	Recommendations []string `json:"recommendations"`
}

// WeatherAlert is one actionable alert derived from the forecast.
type WeatherAlert struct {
	Title   string  `json:"title" validate:"required"`
	Urgency Urgency `json:"urgency" validate:"required,oneof=low moderate high"`
	Advice  string  `json:"advice"`
}

// WeatherAlertReport bundles a conditions summary with derived alerts.
type WeatherAlertReport struct {
	Summary string         `json:"summary"`
	Alerts  []WeatherAlert `json:"alerts" validate:"dive"`
}

// CalendarEntry is one activity in a farming calendar.
type CalendarEntry struct {
	Period   string `json:"period" validate:"required"`
	Activity string `json:"activity" validate:"required"`
	Notes    string `json:"notes"`
}

// CalendarReport is the structured result of a farming calendar request.
type CalendarReport struct {
	Crop    string          `json:"crop" validate:"required"`
	Entries []CalendarEntry `json:"entries" validate:"min=1,dive"`
}

// StoredMessage is a persisted conversation message row.
type StoredMessage struct {
	UserID    string    `json:"user_id"`
	ChatID    string    `json:"chat_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// DiseaseRecord is a persisted disease report row, kept as diagnosis history
// for a farmer's crops.
type DiseaseRecord struct {
	ID        string        `json:"id"`
	UserID    string        `json:"user_id"`
	Crop      string        `json:"crop"`
	Severity  Severity      `json:"severity"`
	Report    DiseaseReport `json:"report"`
	CreatedAt time.Time     `json:"created_at"`
}
