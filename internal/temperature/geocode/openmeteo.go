// Package geocode resolves city names to coordinates.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/i474232898/temperature-history/internal/temperature"
)

// OpenMeteoGeocoder resolves place names through the Open-Meteo geocoding API.
// It needs no API key, which makes it the default geocoder.
type OpenMeteoGeocoder struct {
	baseURL string
	client  *http.Client
}

func NewOpenMeteoGeocoder(client *http.Client) *OpenMeteoGeocoder {
	return &OpenMeteoGeocoder{
		baseURL: "https://geocoding-api.open-meteo.com/v1/search",
		client:  client,
	}
}

// Resolve returns the coordinates of the best match for the given name, or
// temperature.ErrLocationNotFound when the name matches nothing.
func (g *OpenMeteoGeocoder) Resolve(ctx context.Context, location string) (temperature.Coordinates, error) {
	values := url.Values{}
	values.Set("name", location)
	values.Set("count", "1")

	u := fmt.Sprintf("%s?%s", g.baseURL, values.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return temperature.Coordinates{}, err
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return temperature.Coordinates{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return temperature.Coordinates{}, fmt.Errorf("geocoding request failed: status %d", resp.StatusCode)
	}

	var payload struct {
		Results []struct {
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
		} `json:"results"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return temperature.Coordinates{}, fmt.Errorf("decode geocoding response: %w", err)
	}

	if len(payload.Results) == 0 {
		return temperature.Coordinates{}, fmt.Errorf("%w: %q", temperature.ErrLocationNotFound, location)
	}

	return temperature.Coordinates{
		Latitude:  payload.Results[0].Latitude,
		Longitude: payload.Results[0].Longitude,
	}, nil
}
