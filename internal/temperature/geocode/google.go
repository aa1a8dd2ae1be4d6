package geocode

import (
	"context"
	"fmt"

	"github.com/kelvins/geocoder"

	"github.com/i474232898/temperature-history/internal/temperature"
)

// GoogleGeocoder resolves place names through the Google Geocoding API.
// Selected when a geocoder API key is configured.
type GoogleGeocoder struct{}

// NewGoogleGeocoder configures the Google geocoding client with the API key.
// The key is package-global in the underlying library, so only one
// GoogleGeocoder configuration can be active per process.
func NewGoogleGeocoder(apiKey string) *GoogleGeocoder {
	geocoder.ApiKey = apiKey
	return &GoogleGeocoder{}
}

func (g *GoogleGeocoder) Resolve(ctx context.Context, location string) (temperature.Coordinates, error) {
	if err := ctx.Err(); err != nil {
		return temperature.Coordinates{}, err
	}

	loc, err := geocoder.Geocoding(geocoder.Address{City: location})
	if err != nil {
		return temperature.Coordinates{}, fmt.Errorf("%w: %q: %v", temperature.ErrLocationNotFound, location, err)
	}

	return temperature.Coordinates{
		Latitude:  loc.Latitude,
		Longitude: loc.Longitude,
	}, nil
}
