// Package weather fetches current conditions and a multi-day forecast from
// the Open-Meteo REST API by coordinates.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/Atharva0506/farmer-ai-gateway/internal/circuitbreaker"
	"github.com/Atharva0506/farmer-ai-gateway/internal/domain"
	"github.com/Atharva0506/farmer-ai-gateway/internal/httputil"
)

// Conditions is the subset of the forecast the farm tools care about.
type Conditions struct {
	TemperatureC  float64         `json:"temperature_c"`
	HumidityPct   float64         `json:"humidity_pct"`
	Precipitation float64         `json:"precipitation_mm"`
	WindSpeedKmh  float64         `json:"wind_speed_kmh"`
	Daily         []DailyForecast `json:"daily"`
}

// DailyForecast is one day of the multi-day outlook.
type DailyForecast struct {
	Date             string  `json:"date"`
	TempMaxC         float64 `json:"temp_max_c"`
	TempMinC         float64 `json:"temp_min_c"`
	PrecipitationSum float64 `json:"precipitation_sum_mm"`
}

type Client struct {
	baseURL string
	client  *http.Client
	breaker *circuitbreaker.Breaker
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		client:  httputil.NewClient(httputil.APIConfig()),
		breaker: circuitbreaker.New(circuitbreaker.DefaultConfig()),
	}
}

// Forecast returns current conditions plus a five-day outlook. When the
// breaker is open the call fails immediately with ErrWeatherUnavailable.
func (c *Client) Forecast(ctx context.Context, lat, lon float64) (*Conditions, error) {
	if err := c.breaker.Allow(); err != nil {
		return nil, fmt.Errorf("%w: circuit open", domain.ErrWeatherUnavailable)
	}

	cond, err := c.fetch(ctx, lat, lon)
	if err != nil {
		c.breaker.RecordFailure()
		return nil, fmt.Errorf("%w: %v", domain.ErrWeatherUnavailable, err)
	}

	c.breaker.RecordSuccess()
	return cond, nil
}

func (c *Client) fetch(ctx context.Context, lat, lon float64) (*Conditions, error) {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(lat, 'f', 4, 64))
	q.Set("longitude", strconv.FormatFloat(lon, 'f', 4, 64))
	q.Set("current", "temperature_2m,relative_humidity_2m,precipitation,wind_speed_10m")
	q.Set("daily", "temperature_2m_max,temperature_2m_min,precipitation_sum")
	q.Set("forecast_days", "5")
	q.Set("timezone", "auto")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/forecast?"+q.Encode(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("weather api: status=%d", resp.StatusCode)
	}

	var raw struct {
		Current struct {
			Temperature2m      float64 `json:"temperature_2m"`
			RelativeHumidity2m float64 `json:"relative_humidity_2m"`
			Precipitation      float64 `json:"precipitation"`
			WindSpeed10m       float64 `json:"wind_speed_10m"`
		} `json:"current"`
		Daily struct {
			Time             []string  `json:"time"`
			Temperature2mMax []float64 `json:"temperature_2m_max"`
			Temperature2mMin []float64 `json:"temperature_2m_min"`
			PrecipitationSum []float64 `json:"precipitation_sum"`
		} `json:"daily"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	cond := &Conditions{
		TemperatureC:  raw.Current.Temperature2m,
		HumidityPct:   raw.Current.RelativeHumidity2m,
		Precipitation: raw.Current.Precipitation,
		WindSpeedKmh:  raw.Current.WindSpeed10m,
	}
	for i, date := range raw.Daily.Time {
		day := DailyForecast{Date: date}
		if i < len(raw.Daily.Temperature2mMax) {
			day.TempMaxC = raw.Daily.Temperature2mMax[i]
		}
		if i < len(raw.Daily.Temperature2mMin) {
			day.TempMinC = raw.Daily.Temperature2mMin[i]
		}
		if i < len(raw.Daily.PrecipitationSum) {
			day.PrecipitationSum = raw.Daily.PrecipitationSum[i]
		}
		cond.Daily = append(cond.Daily, day)
	}

	return cond, nil
}

// OnOutage registers a callback fired when repeated failures trip the
// circuit open.
func (c *Client) OnOutage(fn func()) {
	c.breaker.OnOpen(fn)
}

// BreakerState exposes the circuit state for the health endpoint.
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}

// Summary renders the conditions as a short prompt-friendly line.
func (c *Conditions) Summary() string {
	s := fmt.Sprintf("now %.1f°C, humidity %.0f%%, wind %.0f km/h, precipitation %.1f mm",
		c.TemperatureC, c.HumidityPct, c.WindSpeedKmh, c.Precipitation)
	for _, d := range c.Daily {
		s += fmt.Sprintf("; %s %0.f–%0.f°C rain %.1fmm", d.Date, d.TempMinC, d.TempMaxC, d.PrecipitationSum)
	}
	return s
}
