package monitoring

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// latencyWindowSize is how many recent executions the health summary covers.
const latencyWindowSize = 512

// LatencySummary describes recent script execution times.
type LatencySummary struct {
	Samples  int     `json:"samples"`
	MeanMS   float64 `json:"mean_ms"`
	StdDevMS float64 `json:"stddev_ms"`
	P50MS    float64 `json:"p50_ms"`
	P95MS    float64 `json:"p95_ms"`
	MaxMS    float64 `json:"max_ms"`
}

// latencyWindow is a ring of the most recent durations in milliseconds.
// Callers synchronize.
type latencyWindow struct {
	samples []float64
	next    int
}

func (l *latencyWindow) add(ms float64) {
	if len(l.samples) < latencyWindowSize {
		l.samples = append(l.samples, ms)
		return
	}
	l.samples[l.next] = ms
	l.next = (l.next + 1) % latencyWindowSize
}

func (l *latencyWindow) summary() LatencySummary {
	n := len(l.samples)
	if n == 0 {
		return LatencySummary{}
	}
	sorted := append([]float64(nil), l.samples...)
	sort.Float64s(sorted)

	s := LatencySummary{
		Samples: n,
		P50MS:   stat.Quantile(0.5, stat.Empirical, sorted, nil),
		P95MS:   stat.Quantile(0.95, stat.Empirical, sorted, nil),
		MaxMS:   sorted[n-1],
	}
	if n > 1 {
		s.MeanMS, s.StdDevMS = stat.MeanStdDev(sorted, nil)
	} else {
		s.MeanMS = sorted[0]
	}
	return s
}
