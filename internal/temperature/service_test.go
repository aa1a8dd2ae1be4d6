package temperature

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeProvider struct {
	mu    sync.Mutex
	calls []dateRange
	fetch func(call int, start, end time.Time) ([]DailyRecord, error)
}

func (f *fakeProvider) ID() int      { return 1 }
func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) FetchDailyRecords(_ context.Context, _ string, start, end time.Time) ([]DailyRecord, error) {
	f.mu.Lock()
	call := len(f.calls)
	f.calls = append(f.calls, dateRange{Start: start, End: end})
	f.mu.Unlock()
	return f.fetch(call, start, end)
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeGeocoder struct {
	mu     sync.Mutex
	calls  int
	coords Coordinates
	err    error
}

func (f *fakeGeocoder) Resolve(context.Context, string) (Coordinates, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return Coordinates{}, f.err
	}
	return f.coords, nil
}

type fakeCache struct {
	mu       sync.Mutex
	records  map[string]map[RecordKey]DailyRecord
	readErr  error
	writeErr error
	stores   int
}

func newFakeCache() *fakeCache {
	return &fakeCache{records: make(map[string]map[RecordKey]DailyRecord)}
}

func (f *fakeCache) DailyRecords(_ context.Context, location string, start, end time.Time) ([]DailyRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return nil, f.readErr
	}
	var out []DailyRecord
	for _, r := range f.records[location] {
		if !r.Date.Before(start) && !r.Date.After(end) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeCache) StoreDailyRecords(_ context.Context, location string, _, _ float64, records []DailyRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.stores++
	city, ok := f.records[location]
	if !ok {
		city = make(map[RecordKey]DailyRecord)
		f.records[location] = city
	}
	for _, r := range records {
		if _, exists := city[r.Key()]; !exists {
			city[r.Key()] = r
		}
	}
	return nil
}

func (f *fakeCache) CityMetadata(context.Context, string) (CityMetadata, error) {
	return CityMetadata{}, ErrNotFound
}

func (f *fakeCache) count(location string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records[location])
}

func recordsFor(start, end time.Time) []DailyRecord {
	var out []DailyRecord
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		out = append(out, DailyRecord{
			Date:            d,
			MaxTemperatureC: 10,
			MinTemperatureC: 2,
			ProviderID:      1,
		})
	}
	return out
}

func newTestService(p *fakeProvider, g *fakeGeocoder, c Cache) *Service {
	var s *Service
	if c != nil {
		s = NewService(p, g, c, Options{})
	} else {
		s = NewPassthroughService(p, g, Options{})
	}
	s.chunkDelay = time.Millisecond
	return s
}

func TestGetDailyRecordsEmptyCacheSingleChunk(t *testing.T) {
	provider := &fakeProvider{fetch: func(_ int, start, end time.Time) ([]DailyRecord, error) {
		return recordsFor(start, end), nil
	}}
	geocoder := &fakeGeocoder{coords: Coordinates{Latitude: 48.85, Longitude: 2.35}}
	cache := newFakeCache()
	svc := newTestService(provider, geocoder, cache)

	start := day(2020, time.January, 1)
	end := day(2020, time.January, 10)

	records, err := svc.GetDailyRecords(context.Background(), "Paris", start, end)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 10 {
		t.Fatalf("expected 10 records, got %d", len(records))
	}
	if provider.callCount() != 1 {
		t.Fatalf("expected 1 provider call, got %d", provider.callCount())
	}
	if !provider.calls[0].Start.Equal(start) || !provider.calls[0].End.Equal(end) {
		t.Fatalf("unexpected chunk range: %v..%v", provider.calls[0].Start, provider.calls[0].End)
	}
	if cache.count("Paris") != 10 {
		t.Fatalf("expected 10 cached records, got %d", cache.count("Paris"))
	}
	if geocoder.calls != 1 {
		t.Fatalf("expected exactly 1 geocode call, got %d", geocoder.calls)
	}
}

func TestGetDailyRecordsRateLimitReturnsPartial(t *testing.T) {
	provider := &fakeProvider{fetch: func(call int, start, end time.Time) ([]DailyRecord, error) {
		if call == 1 {
			return nil, fmt.Errorf("archive request: %w", ErrRateLimited)
		}
		return recordsFor(start, start.AddDate(0, 0, 4)), nil
	}}
	geocoder := &fakeGeocoder{}
	cache := newFakeCache()
	svc := newTestService(provider, geocoder, cache)

	// 25 years would normally be 3 chunks; rate limiting on the 2nd should
	// return chunk 1's records only and never issue a 3rd call.
	records, err := svc.GetDailyRecords(context.Background(), "Paris",
		day(2000, time.January, 1), day(2025, time.January, 1))
	if err != nil {
		t.Fatalf("rate limiting must not surface as an error, got: %v", err)
	}
	if len(records) != 5 {
		t.Fatalf("expected only chunk 1's 5 records, got %d", len(records))
	}
	if provider.callCount() != 2 {
		t.Fatalf("expected 2 provider calls, got %d", provider.callCount())
	}
}

func TestGetDailyRecordsSufficientCoverageSkipsFetch(t *testing.T) {
	provider := &fakeProvider{fetch: func(int, time.Time, time.Time) ([]DailyRecord, error) {
		return nil, errors.New("must not be called")
	}}
	geocoder := &fakeGeocoder{}
	cache := newFakeCache()

	start := day(2020, time.January, 1)
	end := start.AddDate(0, 0, 364)
	seed := recordsFor(start, start.AddDate(0, 0, 359)) // 360 of 365 days
	if err := cache.StoreDailyRecords(context.Background(), "Paris", 0, 0, seed); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	svc := newTestService(provider, geocoder, cache)

	records, err := svc.GetDailyRecords(context.Background(), "Paris", start, end)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 360 {
		t.Fatalf("expected 360 cached records, got %d", len(records))
	}
	if provider.callCount() != 0 {
		t.Fatalf("expected zero provider calls on cache hit, got %d", provider.callCount())
	}
	if geocoder.calls != 0 {
		t.Fatalf("cache hit must not geocode, got %d calls", geocoder.calls)
	}
}

func TestGetDailyRecordsInvalidRange(t *testing.T) {
	provider := &fakeProvider{fetch: func(int, time.Time, time.Time) ([]DailyRecord, error) {
		return nil, errors.New("must not be called")
	}}
	svc := newTestService(provider, &fakeGeocoder{}, newFakeCache())

	_, err := svc.GetDailyRecords(context.Background(), "Paris",
		day(2020, time.February, 1), day(2020, time.January, 1))
	if !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}
	if provider.callCount() != 0 {
		t.Fatalf("invalid range must be rejected before any I/O")
	}
}

func TestGetDailyRecordsUpstreamFailurePropagates(t *testing.T) {
	provider := &fakeProvider{fetch: func(int, time.Time, time.Time) ([]DailyRecord, error) {
		return nil, errors.New("connection reset")
	}}
	svc := newTestService(provider, &fakeGeocoder{}, newFakeCache())

	_, err := svc.GetDailyRecords(context.Background(), "Paris",
		day(2020, time.January, 1), day(2020, time.January, 10))
	if err == nil {
		t.Fatal("expected upstream failure to propagate")
	}
}

func TestGetDailyRecordsCacheWriteFailureStillReturnsRecords(t *testing.T) {
	provider := &fakeProvider{fetch: func(_ int, start, end time.Time) ([]DailyRecord, error) {
		return recordsFor(start, end), nil
	}}
	cache := newFakeCache()
	cache.writeErr = errors.New("disk full")
	svc := newTestService(provider, &fakeGeocoder{}, cache)

	records, err := svc.GetDailyRecords(context.Background(), "Paris",
		day(2020, time.January, 1), day(2020, time.January, 10))
	if err != nil {
		t.Fatalf("cache write failure must not fail the request, got: %v", err)
	}
	if len(records) != 10 {
		t.Fatalf("expected 10 fetched records despite cache failure, got %d", len(records))
	}
}

func TestGetDailyRecordsCacheReadFailureFallsThroughToFetch(t *testing.T) {
	provider := &fakeProvider{fetch: func(_ int, start, end time.Time) ([]DailyRecord, error) {
		return recordsFor(start, end), nil
	}}
	cache := newFakeCache()
	cache.readErr = errors.New("database locked")
	svc := newTestService(provider, &fakeGeocoder{}, cache)

	records, err := svc.GetDailyRecords(context.Background(), "Paris",
		day(2020, time.January, 1), day(2020, time.January, 10))
	if err != nil {
		t.Fatalf("cache read failure must degrade to a fetch, got: %v", err)
	}
	if len(records) != 10 {
		t.Fatalf("expected 10 fetched records, got %d", len(records))
	}
	if provider.callCount() != 1 {
		t.Fatalf("expected fetch fallback, got %d provider calls", provider.callCount())
	}
}

func TestBackfillGeocodesOnceAcrossChunks(t *testing.T) {
	provider := &fakeProvider{fetch: func(_ int, start, _ time.Time) ([]DailyRecord, error) {
		return recordsFor(start, start.AddDate(0, 0, 2)), nil
	}}
	geocoder := &fakeGeocoder{coords: Coordinates{Latitude: 1, Longitude: 2}}
	cache := newFakeCache()
	svc := newTestService(provider, geocoder, cache)

	_, err := svc.GetDailyRecords(context.Background(), "Paris",
		day(2000, time.January, 1), day(2025, time.January, 1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider.callCount() != 3 {
		t.Fatalf("expected 3 chunk fetches, got %d", provider.callCount())
	}
	if geocoder.calls != 1 {
		t.Fatalf("expected the location resolved once for the whole backfill, got %d", geocoder.calls)
	}
	if cache.stores != 3 {
		t.Fatalf("expected each chunk persisted separately, got %d store calls", cache.stores)
	}
}

func TestPassthroughServiceNeverGeocodesOrStores(t *testing.T) {
	provider := &fakeProvider{fetch: func(_ int, start, end time.Time) ([]DailyRecord, error) {
		return recordsFor(start, end), nil
	}}
	geocoder := &fakeGeocoder{}
	svc := newTestService(provider, geocoder, nil)

	records, err := svc.GetDailyRecords(context.Background(), "Paris",
		day(2020, time.January, 1), day(2020, time.January, 10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 10 {
		t.Fatalf("expected 10 records, got %d", len(records))
	}
	if geocoder.calls != 0 {
		t.Fatalf("pass-through mode must not geocode, got %d calls", geocoder.calls)
	}

	if _, err := svc.GetMetadata(context.Background(), "Paris"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("pass-through metadata should be not found, got %v", err)
	}
}

func TestGetDailyRecordsDefaultWindow(t *testing.T) {
	historyStart := day(2024, time.March, 1)
	provider := &fakeProvider{fetch: func(_ int, start, end time.Time) ([]DailyRecord, error) {
		return recordsFor(start, end), nil
	}}
	svc := NewPassthroughService(provider, &fakeGeocoder{}, Options{
		HistoryStart: historyStart,
		EndLag:       7 * 24 * time.Hour,
	})
	svc.chunkDelay = time.Millisecond

	_, err := svc.GetDailyRecords(context.Background(), "Paris", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider.callCount() == 0 {
		t.Fatal("expected at least one provider call")
	}
	if !provider.calls[0].Start.Equal(historyStart) {
		t.Fatalf("default window starts at %v, want %v", provider.calls[0].Start, historyStart)
	}
	wantEnd := Day(time.Now().UTC().Add(-7 * 24 * time.Hour))
	last := provider.calls[len(provider.calls)-1]
	if !last.End.Equal(wantEnd) {
		t.Fatalf("default window ends at %v, want %v", last.End, wantEnd)
	}
}
