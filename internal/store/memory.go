package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/i474232898/temperature-history/internal/temperature"
)

// cityData holds one city's records keyed by (date, provider) plus its derived
// metadata.
type cityData struct {
	id      int64
	name    string
	lat     float64
	lon     float64
	records map[temperature.RecordKey]temperature.DailyRecord
	meta    temperature.CityMetadata
}

// MemoryStore is a concurrency-safe in-memory implementation of
// temperature.Cache with the same semantics as the SQLite store: write-once
// records keyed by (city, date, provider) and metadata recomputed after every
// store. Useful for tests and ephemeral deployments.
type MemoryStore struct {
	mu     sync.RWMutex
	cities map[string]*cityData // keyed by city name
	nextID int64
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cities: make(map[string]*cityData),
		nextID: 1,
	}
}

// DailyRecords returns cached records for the city in [start, end], inclusive,
// ordered by date.
func (s *MemoryStore) DailyRecords(_ context.Context, location string, start, end time.Time) ([]temperature.DailyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	city, ok := s.cities[location]
	if !ok {
		return nil, nil
	}

	start, end = temperature.Day(start), temperature.Day(end)

	var result []temperature.DailyRecord
	for _, record := range city.records {
		if record.Date.Before(start) || record.Date.After(end) {
			continue
		}
		result = append(result, record)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Date.Before(result[j].Date)
	})

	return result, nil
}

// StoreDailyRecords stores new records for the city, creating the city entry
// on first use. Records whose (date, provider) key is already present are
// skipped; metadata is recomputed afterwards.
func (s *MemoryStore) StoreDailyRecords(_ context.Context, location string, lat, lon float64, records []temperature.DailyRecord) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	city, ok := s.cities[location]
	if !ok {
		city = &cityData{
			id:      s.nextID,
			name:    location,
			lat:     lat,
			lon:     lon,
			records: make(map[temperature.RecordKey]temperature.DailyRecord),
		}
		s.nextID++
		s.cities[location] = city
	}

	for _, record := range records {
		record.Date = temperature.Day(record.Date)
		key := record.Key()
		if _, exists := city.records[key]; exists {
			continue
		}
		city.records[key] = record
	}

	city.meta = recomputeMetadata(city)
	return nil
}

// CityMetadata returns the coverage summary for the city, or
// temperature.ErrNotFound.
func (s *MemoryStore) CityMetadata(_ context.Context, location string) (temperature.CityMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	city, ok := s.cities[location]
	if !ok {
		return temperature.CityMetadata{}, fmt.Errorf("%w: %q", temperature.ErrNotFound, location)
	}
	return city.meta, nil
}

// RecordCount returns the number of stored records for the city.
func (s *MemoryStore) RecordCount(location string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	city, ok := s.cities[location]
	if !ok {
		return 0
	}
	return len(city.records)
}

func recomputeMetadata(city *cityData) temperature.CityMetadata {
	meta := temperature.CityMetadata{
		CityID:         city.id,
		CityName:       city.name,
		Latitude:       city.lat,
		Longitude:      city.lon,
		LastUpdatedUTC: time.Now().UTC(),
	}

	for _, record := range city.records {
		record := record
		if meta.OldestDate == nil || record.Date.Before(*meta.OldestDate) {
			d := record.Date
			meta.OldestDate = &d
		}
		if meta.NewestDate == nil || record.Date.After(*meta.NewestDate) {
			d := record.Date
			meta.NewestDate = &d
		}
		if meta.MinTemperatureC == nil || record.MinTemperatureC < *meta.MinTemperatureC {
			v := record.MinTemperatureC
			meta.MinTemperatureC = &v
		}
		if meta.MaxTemperatureC == nil || record.MaxTemperatureC > *meta.MaxTemperatureC {
			v := record.MaxTemperatureC
			meta.MaxTemperatureC = &v
		}
	}

	return meta
}

var _ temperature.Cache = (*MemoryStore)(nil)
