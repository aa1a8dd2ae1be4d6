package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/temperature-history/internal/temperature"
)

// openMeteoProviderID identifies Open-Meteo archive records in the store.
const openMeteoProviderID = 1

// OpenMeteoProvider fetches daily temperature history from the Open-Meteo
// archive API. The archive is keyed by coordinates, so each fetch resolves the
// location through the configured geocoder first.
type OpenMeteoProvider struct {
	name     string
	baseURL  string
	client   *http.Client
	geocoder temperature.GeocodeProvider
	circuit  *gobreaker.CircuitBreaker
}

func NewOpenMeteoProvider(client *http.Client, geocoder temperature.GeocodeProvider) *OpenMeteoProvider {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "openmeteo-archive",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	return &OpenMeteoProvider{
		name:     "open-meteo",
		baseURL:  "https://archive-api.open-meteo.com/v1/archive",
		client:   client,
		geocoder: geocoder,
		circuit:  cb,
	}
}

func (p *OpenMeteoProvider) ID() int {
	return openMeteoProviderID
}

func (p *OpenMeteoProvider) Name() string {
	return p.name
}

// FetchDailyRecords returns one record per day in [start, end] for which the
// archive has both a min and a max temperature. Days with partial data are
// skipped rather than fabricated.
func (p *OpenMeteoProvider) FetchDailyRecords(ctx context.Context, location string, start, end time.Time) ([]temperature.DailyRecord, error) {
	coords, err := p.geocoder.Resolve(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", location, err)
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("latitude", fmt.Sprintf("%f", coords.Latitude))
		values.Set("longitude", fmt.Sprintf("%f", coords.Longitude))
		values.Set("start_date", start.Format(temperature.DateLayout))
		values.Set("end_date", end.Format(temperature.DateLayout))
		values.Set("daily", "temperature_2m_max,temperature_2m_min")
		values.Set("timezone", "UTC")

		u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := doRequest(ctx, p.client, p.circuit, buildRequest)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload struct {
		Daily struct {
			Time           []string   `json:"time"`
			TemperatureMax []*float64 `json:"temperature_2m_max"`
			TemperatureMin []*float64 `json:"temperature_2m_min"`
		} `json:"daily"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode archive response: %w", err)
	}

	daily := payload.Daily
	if len(daily.Time) == 0 || len(daily.TemperatureMax) != len(daily.Time) || len(daily.TemperatureMin) != len(daily.Time) {
		return nil, nil
	}

	records := make([]temperature.DailyRecord, 0, len(daily.Time))
	for i, day := range daily.Time {
		if daily.TemperatureMax[i] == nil || daily.TemperatureMin[i] == nil {
			continue
		}

		date, err := time.ParseInLocation(temperature.DateLayout, day, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("parse archive date %q: %w", day, err)
		}

		records = append(records, temperature.DailyRecord{
			Date:            date,
			MaxTemperatureC: *daily.TemperatureMax[i],
			MinTemperatureC: *daily.TemperatureMin[i],
			ProviderID:      p.ID(),
		})
	}

	return records, nil
}
