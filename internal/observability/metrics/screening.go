package metrics

import (
	"strconv"
	"time"

	"github.com/target/namescreen/internal/observability/statsd"
)

// RecordPassMetric summarises one record processor pass.
type RecordPassMetric struct {
	Strategy   string
	Total      int
	High       int
	Medium     int
	Low        int
	Duplicates int
	Truncated  bool
	Duration   time.Duration
}

// EmitRecordPass emits row and tier counters for a completed pass.
func EmitRecordPass(sink statsd.Sink, in RecordPassMetric) {
	if sink == nil {
		return
	}

	base := map[string]string{
		"strategy":  in.Strategy,
		"truncated": strconv.FormatBool(in.Truncated),
	}

	sink.Count("screening.rows", int64(in.Total), CloneTags(base))
	for tier, n := range map[string]int{"high": in.High, "medium": in.Medium, "low": in.Low} {
		if n == 0 {
			continue
		}
		tags := CloneTags(base)
		tags["tier"] = tier
		sink.Count("screening.tier", int64(n), tags)
	}
	if in.Duplicates > 0 {
		sink.Count("screening.duplicates", int64(in.Duplicates), CloneTags(base))
	}
	if in.Truncated {
		sink.Count("screening.truncated", 1, CloneTags(base))
	}
	if in.Duration > 0 {
		sink.Timing("screening.pass_duration", in.Duration, CloneTags(base))
	}
}

// EmitWatchlistLoad records where a watchlist came from and how many lines were skipped.
func EmitWatchlistLoad(sink statsd.Sink, source string, entries, skipped int) {
	if sink == nil {
		return
	}
	tags := map[string]string{"source": source}
	sink.Gauge("watchlist.entries", float64(entries), tags)
	if skipped > 0 {
		sink.Count("watchlist.skipped_lines", int64(skipped), CloneTags(tags))
	}
}
