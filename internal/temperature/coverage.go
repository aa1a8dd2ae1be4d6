package temperature

import (
	"time"
)

// sufficientCoveragePct is the cache-hit threshold. Upstream archives have
// legitimate gaps (days a provider never reported), so demanding exactly 100%
// would re-fetch whole ranges over a handful of missing days.
const sufficientCoveragePct = 95.0

// maxChunkYears bounds a single upstream request; archives throttle or reject
// very large ranges.
const maxChunkYears = 10

// coverage is the result of evaluating the cache against a requested range.
type coverage struct {
	Cached       []DailyRecord
	ExpectedDays int
	Pct          float64
	Sufficient   bool
}

// evaluateCoverage compares cached records against the expected day count for
// the inclusive range [start, end]. Both bounds must already be normalized to
// midnight UTC and start must not exceed end.
func evaluateCoverage(cached []DailyRecord, start, end time.Time) coverage {
	expected := int(end.Sub(start).Hours()/24) + 1

	cov := coverage{Cached: cached, ExpectedDays: expected}
	if expected > 0 {
		cov.Pct = float64(len(cached)) * 100.0 / float64(expected)
	}
	cov.Sufficient = cov.Pct >= sufficientCoveragePct
	return cov
}

// dateRange is an inclusive calendar-day range.
type dateRange struct {
	Start time.Time
	End   time.Time
}

// chunkRange partitions the inclusive range [start, end] into consecutive
// non-overlapping sub-ranges of at most maxChunkYears each, in chronological
// order. The last chunk may be shorter.
func chunkRange(start, end time.Time) []dateRange {
	var chunks []dateRange

	cur := start
	for !cur.After(end) {
		chunkEnd := cur.AddDate(maxChunkYears, 0, 0)
		if chunkEnd.After(end) {
			chunkEnd = end
		}
		chunks = append(chunks, dateRange{Start: cur, End: chunkEnd})
		cur = chunkEnd.AddDate(0, 0, 1)
	}

	return chunks
}
