package tools

import (
	"context"
	"fmt"
	"strconv"

	"github.com/Atharva0506/farmer-ai-gateway/internal/cache"
	"github.com/Atharva0506/farmer-ai-gateway/internal/domain"
	"github.com/Atharva0506/farmer-ai-gateway/internal/language"
	"github.com/Atharva0506/farmer-ai-gateway/internal/metrics"
	"github.com/Atharva0506/farmer-ai-gateway/internal/provider/gemini"
	"github.com/Atharva0506/farmer-ai-gateway/internal/weather"
)

// StructuredGenerator is the slice of the model client the skills need.
type StructuredGenerator interface {
	GenerateStructured(ctx context.Context, req gemini.Request, out any) error
}

// Forecaster is the slice of the weather client the skills need.
type Forecaster interface {
	Forecast(ctx context.Context, lat, lon float64) (*weather.Conditions, error)
}

// ReportSink receives disease diagnoses for history, best effort.
type ReportSink interface {
	SaveDiseaseReportAsync(userID string, report domain.DiseaseReport)
}

// Service implements every skill. Expensive skills are memoized through the
// response cache under keys derived from their semantic inputs.
type Service struct {
	gen     StructuredGenerator
	cache   cache.Store
	weather Forecaster
	reports ReportSink // nil disables history
}

func NewService(gen StructuredGenerator, store cache.Store, forecaster Forecaster, reports ReportSink) *Service {
	return &Service{gen: gen, cache: store, weather: forecaster, reports: reports}
}

// CropGuidance bundles the validated input into a structured note and hands
// all reasoning back to the calling model's next turn.
func (s *Service) CropGuidance(in CropGuidanceInput) map[string]any {
	return map[string]any{
		"note":     "Answer from your agronomy knowledge for Indian conditions.",
		"crop":     in.Crop,
		"stage":    in.Stage,
		"question": in.Question,
		"language": language.Name(in.Language),
	}
}

// BuyerMatch is the marketplace counterpart of CropGuidance: a synthesized
// note, no separate computation.
func (s *Service) BuyerMatch(in BuyerMatchInput) map[string]any {
	return map[string]any{
		"note":        "Suggest likely buyer categories, nearby mandis, and a fair price range.",
		"produce":     in.Produce,
		"quantity_kg": in.QuantityKg,
		"district":    in.District,
		"state":       in.State,
	}
}

// DiseaseCheck diagnoses crop disease from symptoms. Results persist to the
// user's history when a sink and user are present.
func (s *Service) DiseaseCheck(ctx context.Context, in DiseaseInput, userID string) (*domain.DiseaseReport, error) {
	key := cache.Key("disease", in.Crop, in.Symptoms, in.Language)

	var report domain.DiseaseReport
	if cache.GetJSON(ctx, s.cache, key, &report) {
		metrics.RecordCacheHit("disease")
		return &report, nil
	}
	metrics.RecordCacheMiss("disease")

	prompt := fmt.Sprintf(
		"Diagnose the most likely disease for %s showing: %s. Respond in %s. Include treatments and prevention suited to Indian smallholder farms.",
		in.Crop, in.Symptoms, language.Name(in.Language))

	if err := s.generate(ctx, prompt, diseaseSchema, &report); err != nil {
		return nil, err
	}

	report.Crop = in.Crop
	report.Confidence = clampPct(report.Confidence)
	if err := validate.Struct(&report); err != nil {
		return nil, fmt.Errorf("%w: disease report failed validation: %v", domain.ErrUpstreamError, err)
	}

	cache.SetJSON(ctx, s.cache, key, &report, cache.TTLDisease)

	if s.reports != nil && userID != "" {
		s.reports.SaveDiseaseReportAsync(userID, report)
	}
	return &report, nil
}

// SchemeSearch finds government schemes matching a farmer profile. Source is
// "web_search" on a fresh generation and "cache" on a hit.
func (s *Service) SchemeSearch(ctx context.Context, in SchemeInput) (*domain.SchemeReport, error) {
	key := cache.Key("schemes", in.Income, in.LandSize, in.Crop, in.State, in.Language)

	var report domain.SchemeReport
	if cache.GetJSON(ctx, s.cache, key, &report) {
		metrics.RecordCacheHit("schemes")
		report.Source = "cache"
		return &report, nil
	}
	metrics.RecordCacheMiss("schemes")

	prompt := fmt.Sprintf(
		"List current central and %s state government schemes for a farmer with income %s, land %s, growing %s. Respond in %s. Real scheme names and agencies only.",
		in.State, in.Income, in.LandSize, orAny(in.Crop), language.Name(in.Language))

	if err := s.generate(ctx, prompt, schemeSchema, &report); err != nil {
		return nil, err
	}

	report.Source = "web_search"
	if err := validate.Struct(&report); err != nil {
		return nil, fmt.Errorf("%w: scheme report failed validation: %v", domain.ErrUpstreamError, err)
	}

	cache.SetJSON(ctx, s.cache, key, &report, cache.TTLSchemes)
	return &report, nil
}

// SoilAnalysis estimates soil type and amendments from a description.
func (s *Service) SoilAnalysis(ctx context.Context, in SoilInput) (*domain.SoilReport, error) {
	key := cache.Key("soil", in.Description, in.District, in.Crop, in.Language)

	var report domain.SoilReport
	if cache.GetJSON(ctx, s.cache, key, &report) {
		metrics.RecordCacheHit("soil")
		return &report, nil
	}
	metrics.RecordCacheMiss("soil")

	prompt := fmt.Sprintf(
		"Analyze this soil description from %s: %s. Intended crop: %s. Respond in %s.",
		orAny(in.District), in.Description, orAny(in.Crop), language.Name(in.Language))

	if err := s.generate(ctx, prompt, soilSchema, &report); err != nil {
		return nil, err
	}

	if report.PHEstimate < 0 {
		report.PHEstimate = 0
	}
	if report.PHEstimate > 14 {
		report.PHEstimate = 14
	}
	if err := validate.Struct(&report); err != nil {
		return nil, fmt.Errorf("%w: soil report failed validation: %v", domain.ErrUpstreamError, err)
	}

	cache.SetJSON(ctx, s.cache, key, &report, cache.TTLSoil)
	return &report, nil
}

// YieldForecast predicts harvest yield for a sown crop.
func (s *Service) YieldForecast(ctx context.Context, in YieldInput) (*domain.YieldForecast, error) {
	key := cache.Key("yield", in.Crop, in.SowingDate, strconv.FormatFloat(in.AreaAcres, 'f', 2, 64), in.District, in.Language)

	var forecast domain.YieldForecast
	if cache.GetJSON(ctx, s.cache, key, &forecast) {
		metrics.RecordCacheHit("yield")
		return &forecast, nil
	}
	metrics.RecordCacheMiss("yield")

	prompt := fmt.Sprintf(
		"Forecast the yield for %.2f acres of %s sown on %s in %s, India. Respond in %s. Include harvest window and risk factors.",
		in.AreaAcres, in.Crop, in.SowingDate, orAny(in.District), language.Name(in.Language))

	if err := s.generate(ctx, prompt, yieldSchema, &forecast); err != nil {
		return nil, err
	}

	forecast.Crop = in.Crop
	forecast.Confidence = clampPct(forecast.Confidence)
	if err := validate.Struct(&forecast); err != nil {
		return nil, fmt.Errorf("%w: yield forecast failed validation: %v", domain.ErrUpstreamError, err)
	}

	cache.SetJSON(ctx, s.cache, key, &forecast, cache.TTLYield)
	return &forecast, nil
}

// WeatherAlerts turns the live forecast into actionable farm alerts.
// Coordinates are quantized to ~1km so nearby requests share a cache entry.
func (s *Service) WeatherAlerts(ctx context.Context, in WeatherInput) (*domain.WeatherAlertReport, error) {
	lat := strconv.FormatFloat(in.Latitude, 'f', 2, 64)
	lon := strconv.FormatFloat(in.Longitude, 'f', 2, 64)
	key := cache.Key("weather", lat, lon, in.Language)

	var report domain.WeatherAlertReport
	if cache.GetJSON(ctx, s.cache, key, &report) {
		metrics.RecordCacheHit("weather")
		return &report, nil
	}
	metrics.RecordCacheMiss("weather")

	cond, err := s.weather.Forecast(ctx, in.Latitude, in.Longitude)
	if err != nil {
		return nil, err
	}

	prompt := fmt.Sprintf(
		"Given this forecast for an Indian farm (%s): derive alerts a farmer must act on (spraying windows, irrigation, harvest protection). Respond in %s.",
		cond.Summary(), language.Name(in.Language))

	if err := s.generate(ctx, prompt, weatherAlertSchema, &report); err != nil {
		return nil, err
	}

	if err := validate.Struct(&report); err != nil {
		return nil, fmt.Errorf("%w: weather report failed validation: %v", domain.ErrUpstreamError, err)
	}

	cache.SetJSON(ctx, s.cache, key, &report, cache.TTLWeather)
	return &report, nil
}

// FarmingCalendar produces a season calendar for a crop.
func (s *Service) FarmingCalendar(ctx context.Context, in CalendarInput) (*domain.CalendarReport, error) {
	key := cache.Key("calendar", in.Crop, in.Region, in.SowingMonth, in.Language)

	var report domain.CalendarReport
	if cache.GetJSON(ctx, s.cache, key, &report) {
		metrics.RecordCacheHit("calendar")
		return &report, nil
	}
	metrics.RecordCacheMiss("calendar")

	prompt := fmt.Sprintf(
		"Build a season-long farming calendar for %s in %s, sowing around %s. Respond in %s. Cover land prep through post-harvest.",
		in.Crop, orAny(in.Region), orAny(in.SowingMonth), language.Name(in.Language))

	if err := s.generate(ctx, prompt, calendarSchema, &report); err != nil {
		return nil, err
	}

	report.Crop = in.Crop
	if err := validate.Struct(&report); err != nil {
		return nil, fmt.Errorf("%w: calendar failed validation: %v", domain.ErrUpstreamError, err)
	}

	cache.SetJSON(ctx, s.cache, key, &report, cache.TTLCalendar)
	return &report, nil
}

func (s *Service) generate(ctx context.Context, prompt string, schema map[string]any, out any) error {
	return s.gen.GenerateStructured(ctx, gemini.Request{
		Messages: []domain.Message{{
			Role:  domain.RoleUser,
			Parts: []domain.Part{{Type: domain.PartText, Text: prompt}},
		}},
		ResponseSchema: schema,
	}, out)
}

func clampPct(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func orAny(s string) string {
	if s == "" {
		return "unspecified"
	}
	return s
}
