package tools

// Response schemas for the structured-generation calls. These constrain the
// model's output so severity, urgency, and treatment types come back as
// closed enumerations and confidences as numbers, never free text.

func obj(required []string, props map[string]any) map[string]any {
	s := map[string]any{"type": "OBJECT", "properties": props}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func arr(items map[string]any) map[string]any {
	return map[string]any{"type": "ARRAY", "items": items}
}

func str() map[string]any { return map[string]any{"type": "STRING"} }

func strEnum(values ...string) map[string]any {
	return map[string]any{"type": "STRING", "enum": values}
}

func num() map[string]any { return map[string]any{"type": "NUMBER"} }

var diseaseSchema = obj(
	[]string{"disease", "severity", "confidence"},
	map[string]any{
		"disease":    str(),
		"crop":       str(),
		"severity":   strEnum("low", "medium", "high"),
		"confidence": num(),
		"symptoms":   arr(str()),
		"treatments": arr(obj(
			[]string{"type", "name"},
			map[string]any{
				"type":        strEnum("chemical", "organic", "cultural"),
				"name":        str(),
				"application": str(),
			},
		)),
		"prevention": arr(str()),
	},
)

var schemeSchema = obj(
	[]string{"schemes"},
	map[string]any{
		"schemes": arr(obj(
			[]string{"name"},
			map[string]any{
				"name":        str(),
				"agency":      str(),
				"benefit":     str(),
				"eligibility": str(),
				"apply_url":   str(),
			},
		)),
	},
)

var soilSchema = obj(
	[]string{"soil_type"},
	map[string]any{
		"soil_type":       str(),
		"ph_estimate":     num(),
		"deficiencies":    arr(str()),
		"amendments":      arr(str()),
		"suitable_crops":  arr(str()),
		"recommendations": arr(str()),
	},
)

var yieldSchema = obj(
	[]string{"crop", "expected_yield", "confidence"},
	map[string]any{
		"crop":            str(),
		"expected_yield":  str(),
		"unit":            str(),
		"confidence":      num(),
		"harvest_window":  str(),
		"risk_factors":    arr(str()),
		"recommendations": arr(str()),
	},
)

var weatherAlertSchema = obj(
	[]string{"summary", "alerts"},
	map[string]any{
		"summary": str(),
		"alerts": arr(obj(
			[]string{"title", "urgency"},
			map[string]any{
				"title":   str(),
				"urgency": strEnum("low", "moderate", "high"),
				"advice":  str(),
			},
		)),
	},
)

var calendarSchema = obj(
	[]string{"crop", "entries"},
	map[string]any{
		"crop": str(),
		"entries": arr(obj(
			[]string{"period", "activity"},
			map[string]any{
				"period":   str(),
				"activity": str(),
				"notes":    str(),
			},
		)),
	},
)
