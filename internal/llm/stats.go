package llm

import (
	"sync"
	"time"
)

const (
	// MaxConsecutiveFailures marks a provider unhealthy.
	MaxConsecutiveFailures = 5

	// HardFilterFailures removes a provider even from the fallback list.
	HardFilterFailures = 10

	// LatencyThreshold anchors the latency weight factor; sustained average
	// latency above 2x this excludes the provider.
	LatencyThreshold = 5 * time.Second

	// SelfHealAfter resets consecutive failures once a provider has gone
	// this long without an error.
	SelfHealAfter = 5 * time.Minute

	// RecentWindow is the span the recent-success-rate check looks at.
	RecentWindow = 3 * time.Minute
)

type outcome struct {
	at time.Time
	ok bool
}

// Stats tracks one provider's request history. All methods are safe for
// concurrent use.
type Stats struct {
	mu sync.Mutex

	total               int64
	successes           int64
	failures            int64
	consecutiveFailures int64
	latencySum          time.Duration
	lastErrorAt         time.Time
	lastSuccessAt       time.Time
	recent              []outcome

	now func() time.Time
}

// NewStats creates an empty stats tracker.
func NewStats() *Stats {
	return &Stats{now: time.Now}
}

// RecordSuccess notes a completed request and its latency.
func (s *Stats) RecordSuccess(latency time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.total++
	s.successes++
	s.consecutiveFailures = 0
	s.latencySum += latency
	s.lastSuccessAt = now
	s.pushRecent(outcome{at: now, ok: true})
}

// RecordFailure notes a failed request.
func (s *Stats) RecordFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.total++
	s.failures++
	s.consecutiveFailures++
	s.lastErrorAt = now
	s.pushRecent(outcome{at: now, ok: false})
}

func (s *Stats) pushRecent(o outcome) {
	s.recent = append(s.recent, o)
	cutoff := s.now().Add(-RecentWindow)
	i := 0
	for i < len(s.recent) && s.recent[i].at.Before(cutoff) {
		i++
	}
	s.recent = s.recent[i:]
}

// selfHeal resets consecutive failures after a quiet period. Caller holds mu.
func (s *Stats) selfHeal() {
	if s.consecutiveFailures > 0 && !s.lastErrorAt.IsZero() &&
		s.now().Sub(s.lastErrorAt) >= SelfHealAfter {
		s.consecutiveFailures = 0
	}
}

// IsHealthy reports whether the provider should receive primary traffic.
func (s *Stats) IsHealthy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selfHeal()

	if s.consecutiveFailures >= MaxConsecutiveFailures {
		return false
	}

	cutoff := s.now().Add(-RecentWindow)
	var recentTotal, recentOK int
	for _, o := range s.recent {
		if o.at.Before(cutoff) {
			continue
		}
		recentTotal++
		if o.ok {
			recentOK++
		}
	}
	if recentTotal >= 3 && float64(recentOK)/float64(recentTotal) < 0.5 {
		return false
	}
	return true
}

// ShouldExclude applies the stricter selection-time exclusion rules.
func (s *Stats) ShouldExclude() bool {
	if !s.IsHealthy() {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.avgLatencyLocked() > 2*LatencyThreshold
}

// HardFiltered reports whether the provider is dropped even from fallback.
func (s *Stats) HardFiltered() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selfHeal()
	return s.consecutiveFailures >= HardFilterFailures
}

// SuccessRate is successes/total; 1.0 before any traffic.
func (s *Stats) SuccessRate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.total == 0 {
		return 1.0
	}
	return float64(s.successes) / float64(s.total)
}

// AvgLatency is the mean latency over successful requests.
func (s *Stats) AvgLatency() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.avgLatencyLocked()
}

func (s *Stats) avgLatencyLocked() time.Duration {
	if s.successes == 0 {
		return 0
	}
	return s.latencySum / time.Duration(s.successes)
}

// ConsecutiveFailures returns the current failure streak.
func (s *Stats) ConsecutiveFailures() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selfHeal()
	return s.consecutiveFailures
}

// Snapshot is a point-in-time copy for metrics endpoints.
type Snapshot struct {
	Total               int64         `json:"total"`
	Successes           int64         `json:"successes"`
	Failures            int64         `json:"failures"`
	ConsecutiveFailures int64         `json:"consecutive_failures"`
	AvgLatency          time.Duration `json:"avg_latency"`
	SuccessRate         float64       `json:"success_rate"`
	Healthy             bool          `json:"healthy"`
}

// Snapshot returns a copy of the current counters.
func (s *Stats) Snapshot() Snapshot {
	healthy := s.IsHealthy()
	s.mu.Lock()
	defer s.mu.Unlock()
	rate := 1.0
	if s.total > 0 {
		rate = float64(s.successes) / float64(s.total)
	}
	return Snapshot{
		Total:               s.total,
		Successes:           s.successes,
		Failures:            s.failures,
		ConsecutiveFailures: s.consecutiveFailures,
		AvgLatency:          s.avgLatencyLocked(),
		SuccessRate:         rate,
		Healthy:             healthy,
	}
}
