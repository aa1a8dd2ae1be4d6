package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/temperature-history/internal/store"
	"github.com/i474232898/temperature-history/internal/temperature"
)

type stubProvider struct{}

func (stubProvider) ID() int      { return 1 }
func (stubProvider) Name() string { return "stub" }

func (stubProvider) FetchDailyRecords(_ context.Context, _ string, start, end time.Time) ([]temperature.DailyRecord, error) {
	var records []temperature.DailyRecord
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		records = append(records, temperature.DailyRecord{
			Date:            d,
			MaxTemperatureC: 12,
			MinTemperatureC: 3,
			ProviderID:      1,
		})
	}
	return records, nil
}

type stubGeocoder struct{}

func (stubGeocoder) Resolve(context.Context, string) (temperature.Coordinates, error) {
	return temperature.Coordinates{Latitude: 48.85, Longitude: 2.35}, nil
}

func newTestApp(cache temperature.Cache) *fiber.App {
	app := fiber.New()
	opts := temperature.Options{ChunkDelay: time.Millisecond}
	var svc *temperature.Service
	if cache != nil {
		svc = temperature.NewService(stubProvider{}, stubGeocoder{}, cache, opts)
	} else {
		svc = temperature.NewPassthroughService(stubProvider{}, stubGeocoder{}, opts)
	}
	RegisterRoutes(app, svc)
	return app
}

func TestHistoryRequiresCity(t *testing.T) {
	app := newTestApp(nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/temperature/history", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.StatusCode)
	}
}

func TestHistoryRejectsMalformedDate(t *testing.T) {
	app := newTestApp(nil)

	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/temperature/history?city=Paris&from=January+1st", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.StatusCode)
	}
}

func TestHistoryRejectsInvertedRange(t *testing.T) {
	app := newTestApp(nil)

	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/temperature/history?city=Paris&from=2020-02-01&to=2020-01-01", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.StatusCode)
	}
}

func TestHistoryReturnsRecords(t *testing.T) {
	app := newTestApp(store.NewMemoryStore())

	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/temperature/history?city=Paris&from=2020-01-01&to=2020-01-10", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}

	var payload struct {
		City        string                    `json:"city"`
		RecordCount int                       `json:"recordCount"`
		Records     []temperature.DailyRecord `json:"records"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.City != "Paris" {
		t.Fatalf("unexpected city %q", payload.City)
	}
	if payload.RecordCount != 10 || len(payload.Records) != 10 {
		t.Fatalf("expected 10 records, got count=%d len=%d", payload.RecordCount, len(payload.Records))
	}
}

func TestMetadataRequiresCity(t *testing.T) {
	app := newTestApp(store.NewMemoryStore())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/temperature/metadata", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.StatusCode)
	}
}

func TestMetadataNotFound(t *testing.T) {
	app := newTestApp(store.NewMemoryStore())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/temperature/metadata?city=Atlantis", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, resp.StatusCode)
	}
}

func TestMetadataAfterBackfill(t *testing.T) {
	cache := store.NewMemoryStore()
	app := newTestApp(cache)

	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/temperature/history?city=Paris&from=2020-01-01&to=2020-01-10", nil)
	if _, err := app.Test(req); err != nil {
		t.Fatalf("backfill request: %v", err)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/temperature/metadata?city=Paris", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}

	var meta temperature.CityMetadata
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		t.Fatalf("decode metadata: %v", err)
	}
	if meta.OldestDate == nil || meta.OldestDate.Format(temperature.DateLayout) != "2020-01-01" {
		t.Fatalf("unexpected oldest date: %v", meta.OldestDate)
	}
	if meta.NewestDate == nil || meta.NewestDate.Format(temperature.DateLayout) != "2020-01-10" {
		t.Fatalf("unexpected newest date: %v", meta.NewestDate)
	}
}
