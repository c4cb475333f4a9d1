package tools

import (
	"context"
	"errors"

	"github.com/Atharva0506/farmer-ai-gateway/internal/domain"
)

// weatherFallback is returned as a successful tool result when the live
// weather feed is down, so the model degrades to generic advice instead of
// failing the whole answer.
const weatherFallback = `{"note":"live weather data is unavailable right now; give general seasonal advice for the region and tell the farmer to check the local forecast"}`

// FullRegistry offers every skill; used by the web chat orchestrator.
// userID attributes disease history and may be empty for anonymous callers.
func FullRegistry(s *Service, userID string) *Registry {
	return NewRegistry(
		s.cropGuidanceTool(),
		s.buyerMatchTool(),
		s.diseaseTool(userID),
		s.schemeTool(),
		s.soilTool(),
		s.yieldTool(),
		s.weatherTool(),
		s.calendarTool(),
	)
}

// TelegramRegistry is the reduced set for short-form replies.
func TelegramRegistry(s *Service, userID string) *Registry {
	return NewRegistry(
		s.diseaseTool(userID),
		s.schemeTool(),
		s.weatherTool(),
		s.calendarTool(),
	)
}

func (s *Service) cropGuidanceTool() Tool {
	return Tool{
		Name:        "crop_guidance",
		Description: "Get context for answering a cultivation question about a specific crop and growth stage.",
		Parameters: obj([]string{"crop", "question"}, map[string]any{
			"crop":     str(),
			"stage":    str(),
			"question": str(),
			"language": strEnum("en", "hi", "mr"),
		}),
		Run: func(ctx context.Context, args string) (string, error) {
			var in CropGuidanceInput
			if err := decodeArgs(args, &in); err != nil {
				return "", err
			}
			return toJSON(s.CropGuidance(in))
		},
	}
}

func (s *Service) buyerMatchTool() Tool {
	return Tool{
		Name:        "buyer_match",
		Description: "Get context for matching a farmer's produce with likely buyers and price ranges.",
		Parameters: obj([]string{"produce"}, map[string]any{
			"produce":     str(),
			"quantity_kg": num(),
			"district":    str(),
			"state":       str(),
		}),
		Run: func(ctx context.Context, args string) (string, error) {
			var in BuyerMatchInput
			if err := decodeArgs(args, &in); err != nil {
				return "", err
			}
			return toJSON(s.BuyerMatch(in))
		},
	}
}

func (s *Service) diseaseTool(userID string) Tool {
	return Tool{
		Name:        "disease_check",
		Description: "Diagnose a crop disease from the described symptoms, with treatments and prevention.",
		Parameters: obj([]string{"crop", "symptoms"}, map[string]any{
			"crop":     str(),
			"symptoms": str(),
			"language": strEnum("en", "hi", "mr"),
		}),
		Run: func(ctx context.Context, args string) (string, error) {
			var in DiseaseInput
			if err := decodeArgs(args, &in); err != nil {
				return "", err
			}
			report, err := s.DiseaseCheck(ctx, in, userID)
			if err != nil {
				return "", err
			}
			return toJSON(report)
		},
	}
}

func (s *Service) schemeTool() Tool {
	return Tool{
		Name:        "scheme_search",
		Description: "Find government schemes and subsidies matching a farmer's income, land, crop, and state.",
		Parameters: obj([]string{"income", "land_size", "state"}, map[string]any{
			"income":    str(),
			"land_size": str(),
			"crop":      str(),
			"state":     str(),
			"language":  strEnum("en", "hi", "mr"),
		}),
		Run: func(ctx context.Context, args string) (string, error) {
			var in SchemeInput
			if err := decodeArgs(args, &in); err != nil {
				return "", err
			}
			report, err := s.SchemeSearch(ctx, in)
			if err != nil {
				return "", err
			}
			return toJSON(report)
		},
	}
}

func (s *Service) soilTool() Tool {
	return Tool{
		Name:        "soil_analysis",
		Description: "Analyze a described soil (color, texture, drainage) and recommend amendments and crops.",
		Parameters: obj([]string{"description"}, map[string]any{
			"description": str(),
			"district":    str(),
			"crop":        str(),
			"language":    strEnum("en", "hi", "mr"),
		}),
		Run: func(ctx context.Context, args string) (string, error) {
			var in SoilInput
			if err := decodeArgs(args, &in); err != nil {
				return "", err
			}
			report, err := s.SoilAnalysis(ctx, in)
			if err != nil {
				return "", err
			}
			return toJSON(report)
		},
	}
}

func (s *Service) yieldTool() Tool {
	return Tool{
		Name:        "yield_forecast",
		Description: "Forecast harvest yield for a crop given its sowing date and area.",
		Parameters: obj([]string{"crop", "sowing_date", "area_acres"}, map[string]any{
			"crop":        str(),
			"sowing_date": str(),
			"area_acres":  num(),
			"district":    str(),
			"language":    strEnum("en", "hi", "mr"),
		}),
		Run: func(ctx context.Context, args string) (string, error) {
			var in YieldInput
			if err := decodeArgs(args, &in); err != nil {
				return "", err
			}
			forecast, err := s.YieldForecast(ctx, in)
			if err != nil {
				return "", err
			}
			return toJSON(forecast)
		},
	}
}

func (s *Service) weatherTool() Tool {
	return Tool{
		Name:        "weather_alerts",
		Description: "Get weather-driven farm alerts (spraying windows, irrigation, harvest protection) for coordinates.",
		Parameters: obj([]string{"latitude", "longitude"}, map[string]any{
			"latitude":  num(),
			"longitude": num(),
			"language":  strEnum("en", "hi", "mr"),
		}),
		Run: func(ctx context.Context, args string) (string, error) {
			var in WeatherInput
			if err := decodeArgs(args, &in); err != nil {
				return "", err
			}
			report, err := s.WeatherAlerts(ctx, in)
			if errors.Is(err, domain.ErrWeatherUnavailable) {
				return weatherFallback, nil
			}
			if err != nil {
				return "", err
			}
			return toJSON(report)
		},
	}
}

func (s *Service) calendarTool() Tool {
	return Tool{
		Name:        "farming_calendar",
		Description: "Build a season-long activity calendar for a crop in a region.",
		Parameters: obj([]string{"crop"}, map[string]any{
			"crop":         str(),
			"region":       str(),
			"sowing_month": str(),
			"language":     strEnum("en", "hi", "mr"),
		}),
		Run: func(ctx context.Context, args string) (string, error) {
			var in CalendarInput
			if err := decodeArgs(args, &in); err != nil {
				return "", err
			}
			report, err := s.FarmingCalendar(ctx, in)
			if err != nil {
				return "", err
			}
			return toJSON(report)
		},
	}
}
