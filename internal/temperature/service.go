package temperature

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/i474232898/temperature-history/internal/common"
)

const (
	// defaultEndLag keeps the default window clear of days the upstream
	// archive has not published yet.
	defaultEndLag = 7 * 24 * time.Hour

	// defaultChunkDelay is the pause between chunk fetches, a flat courtesy
	// delay rather than a negotiated backoff.
	defaultChunkDelay = time.Second
)

// defaultHistoryStart is the earliest day the Open-Meteo archive covers.
var defaultHistoryStart = time.Date(1940, time.January, 1, 0, 0, 0, 0, time.UTC)

// Options tunes the default request window and fetch pacing. Zero values fall
// back to the package defaults.
type Options struct {
	HistoryStart time.Time     // default window start
	EndLag       time.Duration // default window end lags now by this much
	ChunkDelay   time.Duration // pause between chunk fetches
}

// Service answers daily temperature record requests from a durable cache,
// backfilling missing ranges from the upstream history provider in bounded
// chunks. Caching is best-effort: a request never fails because the cache
// could not be read or written.
type Service struct {
	provider HistoryProvider
	geocoder GeocodeProvider
	cache    Cache
	caching  bool

	historyStart time.Time
	endLag       time.Duration
	chunkDelay   time.Duration
}

// NewService creates a Service backed by the given cache.
func NewService(provider HistoryProvider, geocoder GeocodeProvider, cache Cache, opts Options) *Service {
	s := newService(provider, geocoder, opts)
	s.cache = cache
	s.caching = true
	return s
}

// NewPassthroughService creates a Service without a cache: every request goes
// straight to the provider and nothing is persisted.
func NewPassthroughService(provider HistoryProvider, geocoder GeocodeProvider, opts Options) *Service {
	s := newService(provider, geocoder, opts)
	s.cache = DisabledCache{}
	return s
}

func newService(provider HistoryProvider, geocoder GeocodeProvider, opts Options) *Service {
	s := &Service{
		provider:     provider,
		geocoder:     geocoder,
		historyStart: opts.HistoryStart,
		endLag:       opts.EndLag,
		chunkDelay:   opts.ChunkDelay,
	}
	if s.historyStart.IsZero() {
		s.historyStart = defaultHistoryStart
	}
	if s.endLag <= 0 {
		s.endLag = defaultEndLag
	}
	if s.chunkDelay <= 0 {
		s.chunkDelay = defaultChunkDelay
	}
	return s
}

// GetDailyRecords returns daily min/max temperature records for the location
// over [start, end], inclusive. A zero start defaults to the earliest archive
// data; a zero end defaults to now minus the reporting lag. Cached data is
// served when it covers enough of the range; otherwise missing data is fetched
// in chunks and persisted as each chunk arrives.
func (s *Service) GetDailyRecords(ctx context.Context, location string, start, end time.Time) ([]DailyRecord, error) {
	if end.IsZero() {
		end = time.Now().UTC().Add(-s.endLag)
	}
	if start.IsZero() {
		start = s.historyStart
	}
	start, end = Day(start), Day(end)

	if end.Before(start) {
		return nil, fmt.Errorf("%w: %s > %s", ErrInvalidRange, start.Format(DateLayout), end.Format(DateLayout))
	}

	cached, err := s.cache.DailyRecords(ctx, location, start, end)
	if err != nil {
		// Degrade to a plain fetch; a broken cache must not fail the read.
		log.Printf("WARN: cache read failed for %s: %v", location, err)
		cached = nil
	}

	cov := evaluateCoverage(cached, start, end)
	if cov.Sufficient {
		log.Printf("cache hit for %s: %d records, %.1f%% coverage", location, len(cov.Cached), cov.Pct)
		return cov.Cached, nil
	}

	log.Printf("insufficient cache for %s: %d/%d days (%.1f%%), fetching from %s",
		location, len(cov.Cached), cov.ExpectedDays, cov.Pct, s.provider.Name())

	return s.backfill(ctx, location, start, end)
}

// GetMetadata returns the coverage summary for a city, or ErrNotFound when the
// city has never been cached.
func (s *Service) GetMetadata(ctx context.Context, location string) (CityMetadata, error) {
	return s.cache.CityMetadata(ctx, location)
}

// backfill fetches [start, end] from the provider chunk by chunk, in
// chronological order, persisting each chunk as soon as it arrives so that a
// failure later in the range does not lose earlier chunks.
func (s *Service) backfill(ctx context.Context, location string, start, end time.Time) ([]DailyRecord, error) {
	chunks := chunkRange(start, end)
	geocode := s.geocodeOnce(location)

	var all []DailyRecord
	for i, c := range chunks {
		records, err := s.provider.FetchDailyRecords(ctx, location, c.Start, c.End)
		if err != nil {
			if isRateLimited(err) {
				log.Printf("WARN: %s rate limited on %s..%s for %s; returning %d records fetched so far",
					s.provider.Name(), c.Start.Format(DateLayout), c.End.Format(DateLayout), location, len(all))
				break
			}
			return nil, fmt.Errorf("fetch %s..%s for %s: %w",
				c.Start.Format(DateLayout), c.End.Format(DateLayout), location, err)
		}

		all = append(all, records...)

		if s.caching && len(records) > 0 {
			if err := s.cacheChunk(ctx, geocode, location, records); err != nil {
				// Best-effort: serve the fetched records even if caching failed.
				log.Printf("WARN: failed to cache %d records for %s: %v", len(records), location, err)
			}
		}

		if i < len(chunks)-1 {
			if err := sleepCtx(ctx, s.chunkDelay); err != nil {
				return nil, err
			}
		}
	}

	return all, nil
}

// cacheChunk persists one chunk, resolving the location's coordinates first.
func (s *Service) cacheChunk(ctx context.Context, geocode geocodeFn, location string, records []DailyRecord) error {
	coords, err := geocode(ctx)
	if err != nil {
		return fmt.Errorf("geocode %s: %w", location, err)
	}
	return s.cache.StoreDailyRecords(ctx, location, coords.Latitude, coords.Longitude, records)
}

type geocodeFn func(ctx context.Context) (Coordinates, error)

// geocodeOnce defers geocoding until a chunk actually needs storing and
// memoizes the result so multi-chunk backfills resolve the location only once.
func (s *Service) geocodeOnce(location string) geocodeFn {
	var coords Coordinates
	resolved := false
	return func(ctx context.Context) (Coordinates, error) {
		if resolved {
			return coords, nil
		}
		c, err := s.geocoder.Resolve(ctx, location)
		if err != nil {
			return Coordinates{}, err
		}
		coords, resolved = c, true
		return coords, nil
	}
}

// isRateLimited reports whether a provider error is an upstream throttling
// signal. The message check covers providers that surface raw HTTP errors.
func isRateLimited(err error) bool {
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	return common.HasAny(err.Error(), "429", "rate limit")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
