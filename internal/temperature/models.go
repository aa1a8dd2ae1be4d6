package temperature

import (
	"time"
)

// DateLayout is the calendar-day format used for record keys and query parameters.
const DateLayout = "2006-01-02"

// DailyRecord is one day's temperature extremes for a city, as reported by a
// single provider. Records are immutable once stored; a record is uniquely
// identified by (city, date, provider).
type DailyRecord struct {
	Date            time.Time `json:"date"` // midnight UTC
	MaxTemperatureC float64   `json:"maxTemperatureC"`
	MinTemperatureC float64   `json:"minTemperatureC"`
	ProviderID      int       `json:"providerId"`
}

// RecordKey identifies a record within a city.
type RecordKey struct {
	Date       string // DateLayout
	ProviderID int
}

// Key returns the dedup key for this record.
func (r DailyRecord) Key() RecordKey {
	return RecordKey{Date: r.Date.UTC().Format(DateLayout), ProviderID: r.ProviderID}
}

// Coordinates is a geocoded position in decimal degrees.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// CityMetadata summarizes the cached data for a city: the inclusive date range
// of all stored records and the temperature extremes across them. It is derived
// from the stored records and recomputed after every successful insert; the
// pointer fields are nil while the city has no records.
type CityMetadata struct {
	CityID          int64      `json:"cityId"`
	CityName        string     `json:"cityName"`
	Latitude        float64    `json:"latitude"`
	Longitude       float64    `json:"longitude"`
	OldestDate      *time.Time `json:"oldestDate,omitempty"`
	NewestDate      *time.Time `json:"newestDate,omitempty"`
	MinTemperatureC *float64   `json:"minTemperatureC,omitempty"`
	MaxTemperatureC *float64   `json:"maxTemperatureC,omitempty"`
	LastUpdatedUTC  time.Time  `json:"lastUpdatedUtc"`
}

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
