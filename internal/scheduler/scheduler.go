package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/i474232898/temperature-history/internal/temperature"
)

// Scheduler periodically re-requests the default historical window for the
// configured cities, so their cache stays warm and newly published days are
// backfilled without waiting for a user request.
type Scheduler struct {
	scheduler *gocron.Scheduler
	service   *temperature.Service
	cities    []string
	interval  time.Duration
}

// New creates a new Scheduler.
func New(cities []string, interval time.Duration, service *temperature.Service) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	return &Scheduler{
		scheduler: s,
		service:   service,
		cities:    cities,
		interval:  interval,
	}
}

// Start schedules the periodic refresh job and starts the underlying
// scheduler. With no cities configured the job is skipped entirely.
func (s *Scheduler) Start() error {
	if len(s.cities) == 0 {
		log.Println("scheduler: no cities configured; nothing to schedule")
		return nil
	}

	interval := s.interval
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	_, err := s.scheduler.Every(interval).Do(func() {
		log.Println("scheduler: running cache refresh job")

		// Cities are refreshed one at a time; each refresh is itself a
		// rate-limited chunked backfill, so no parallel fan-out here.
		for _, city := range s.cities {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			records, err := s.service.GetDailyRecords(ctx, city, time.Time{}, time.Time{})
			cancel()
			if err != nil {
				log.Printf("scheduler: refresh failed for %s: %v", city, err)
				continue
			}
			log.Printf("scheduler: refreshed %s (%d records)", city, len(records))
		}

		log.Println("scheduler: completed cache refresh job")
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
