package temperature

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInvalidRange is returned when an end date precedes the start date.
	// It is rejected before any provider or store I/O.
	ErrInvalidRange = errors.New("end date precedes start date")

	// ErrRateLimited marks a provider failure caused by upstream throttling.
	// The fetch loop stops on it and returns the records gathered so far.
	ErrRateLimited = errors.New("provider rate limited")

	// ErrLocationNotFound is returned by geocoders for unknown place names.
	ErrLocationNotFound = errors.New("location not found")

	// ErrNotFound is returned when no city matches a metadata lookup.
	ErrNotFound = errors.New("no data for city")
)

// HistoryProvider abstracts an upstream source of daily temperature history
// (e.g. the Open-Meteo archive API).
type HistoryProvider interface {
	// ID identifies the provider in stored records.
	ID() int
	Name() string
	// FetchDailyRecords returns daily records for the inclusive range
	// [start, end]. Rate limiting is reported as an error wrapping
	// ErrRateLimited; any other error is a plain upstream failure.
	FetchDailyRecords(ctx context.Context, location string, start, end time.Time) ([]DailyRecord, error)
}

// GeocodeProvider resolves a place name to coordinates.
type GeocodeProvider interface {
	Resolve(ctx context.Context, location string) (Coordinates, error)
}

// Cache is the contract the durable record cache must satisfy. Implementations
// must enforce uniqueness of (city, date, provider) and keep city metadata
// consistent with the stored records at the end of every StoreDailyRecords call.
type Cache interface {
	// DailyRecords returns cached records for the city in [start, end],
	// inclusive, ordered by date. Unknown cities yield an empty slice.
	DailyRecords(ctx context.Context, location string, start, end time.Time) ([]DailyRecord, error)

	// StoreDailyRecords persists the given records for the city, creating the
	// city row on first use. Already-present (date, provider) pairs are
	// skipped; the insert and the metadata refresh are one atomic unit.
	StoreDailyRecords(ctx context.Context, location string, lat, lon float64, records []DailyRecord) error

	// CityMetadata returns the coverage summary for the city, or ErrNotFound.
	CityMetadata(ctx context.Context, location string) (CityMetadata, error)
}

// DisabledCache is the Cache used in pass-through mode: reads find nothing and
// writes are never attempted, so every request goes straight to the provider.
type DisabledCache struct{}

func (DisabledCache) DailyRecords(context.Context, string, time.Time, time.Time) ([]DailyRecord, error) {
	return nil, nil
}

func (DisabledCache) StoreDailyRecords(context.Context, string, float64, float64, []DailyRecord) error {
	return nil
}

func (DisabledCache) CityMetadata(context.Context, string) (CityMetadata, error) {
	return CityMetadata{}, ErrNotFound
}
