package llm

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/wedosoft/project-a/internal/apperr"
	"github.com/wedosoft/project-a/internal/logging"
)

// managed pairs a provider with its stats, breaker, and selection weights.
type managed struct {
	provider   Provider
	stats      *Stats
	breaker    *gobreaker.CircuitBreaker
	baseWeight float64
	perf       float64
}

// weight computes the selection score. Providers with no traffic score at
// their base weight so cold providers still get picked.
func (m *managed) weight() float64 {
	latencyFactor := 1.0
	if avg := m.stats.AvgLatency(); avg > 0 {
		latencyFactor = min(1.0, float64(LatencyThreshold)/float64(avg))
	}
	failurePenalty := max(0.1, 1.0-float64(m.stats.ConsecutiveFailures())/float64(MaxConsecutiveFailures))
	return m.baseWeight * m.stats.SuccessRate() * latencyFactor * failurePenalty * m.perf
}

// RouterOption tunes provider registration.
type RouterOption func(*managed)

// WithBaseWeight sets a provider's base selection weight (default 1.0).
func WithBaseWeight(w float64) RouterOption {
	return func(m *managed) { m.baseWeight = w }
}

// WithPerformanceMultiplier biases selection toward a provider (default 1.0).
func WithPerformanceMultiplier(p float64) RouterOption {
	return func(m *managed) { m.perf = p }
}

// Router selects among registered providers per call and fails over in
// weight order when the chosen provider errors.
type Router struct {
	providers     []*managed
	plan          Plan
	globalTimeout time.Duration
	embedCache    *EmbedCache
	log           zerolog.Logger
}

// NewRouter creates an empty router with the given model plan.
func NewRouter(plan Plan, globalTimeout time.Duration, embedCache *EmbedCache) *Router {
	if globalTimeout <= 0 {
		globalTimeout = 5 * time.Second
	}
	return &Router{
		plan:          plan,
		globalTimeout: globalTimeout,
		embedCache:    embedCache,
		log:           logging.WithComponent("llm"),
	}
}

// Register adds a provider behind a circuit breaker.
func (r *Router) Register(p Provider, opts ...RouterOption) {
	m := &managed{
		provider:   p,
		stats:      NewStats(),
		baseWeight: 1.0,
		perf:       1.0,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    p.Name(),
		Timeout: SelfHealAfter,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= MaxConsecutiveFailures
		},
	})
	r.providers = append(r.providers, m)
}

// Stats returns per-provider snapshots keyed by provider name.
func (r *Router) Stats() map[string]Snapshot {
	out := make(map[string]Snapshot, len(r.providers))
	for _, m := range r.providers {
		out[m.provider.Name()] = m.stats.Snapshot()
	}
	return out
}

// candidates returns providers usable for this call, best weight first.
// Primary selection drops unhealthy and excluded providers; the fallback
// tail re-admits unhealthy ones unless they are hard-filtered.
func (r *Router) candidates() []*managed {
	var primary, fallback []*managed
	for _, m := range r.providers {
		if m.stats.HardFiltered() {
			continue
		}
		if m.stats.IsHealthy() && !m.stats.ShouldExclude() {
			primary = append(primary, m)
		} else {
			fallback = append(fallback, m)
		}
	}
	byWeight := func(list []*managed) {
		sort.SliceStable(list, func(i, j int) bool { return list[i].weight() > list[j].weight() })
	}
	byWeight(primary)
	byWeight(fallback)
	return append(primary, fallback...)
}

// Generate routes one generation request, failing over across providers in
// weight order. The returned Response records which attempt answered.
func (r *Router) Generate(ctx context.Context, req Request) (*Response, error) {
	taskType := req.TaskType
	if taskType == "" {
		taskType = ClassifyOperation(req.Operation)
	}
	params := r.plan.For(taskType)
	if req.Model == "" {
		req.Model = params.Model
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = params.MaxTokens
	}
	if req.Temperature == nil {
		req.Temperature = Temp(params.Temperature)
	}
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = r.globalTimeout
	}

	candidates := r.candidates()
	if len(candidates) == 0 {
		return nil, apperr.Wrap(apperr.KindLLM, "llm", "no provider available", ErrNoHealthyProvider)
	}

	var lastErr error
	for attempt, m := range candidates {
		start := time.Now()
		result, err := r.callProvider(ctx, m, req, timeout)
		elapsed := time.Since(start)

		if err != nil {
			m.stats.RecordFailure()
			lastErr = err
			r.log.Warn().Err(err).
				Str("provider", m.provider.Name()).
				Int("attempt", attempt+1).
				Msg("provider call failed, trying next")
			if ctx.Err() != nil {
				break
			}
			continue
		}

		m.stats.RecordSuccess(elapsed)
		return &Response{
			Text:       result.Text,
			Model:      req.Model,
			DurationMS: elapsed.Milliseconds(),
			TokensIn:   result.TokensIn,
			TokensOut:  result.TokensOut,
			Provider:   m.provider.Name(),
			Attempt:    attempt + 1,
			IsFallback: attempt > 0,
		}, nil
	}

	return nil, apperr.Wrap(apperr.KindLLM, "llm",
		fmt.Sprintf("all %d providers failed", len(candidates)), lastErr)
}

func (r *Router) callProvider(ctx context.Context, m *managed, req Request, timeout time.Duration) (*Result, error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := m.breaker.Execute(func() (any, error) {
		return m.provider.Generate(cctx, req)
	})
	if err != nil {
		return nil, err
	}
	return out.(*Result), nil
}

// Embed returns embeddings for texts, serving cache hits and batching the
// misses through the first usable embedding-capable provider.
func (r *Router) Embed(ctx context.Context, model string, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string
	for i, text := range texts {
		if r.embedCache != nil {
			if vec, ok := r.embedCache.Get(model, text); ok {
				out[i] = vec
				continue
			}
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	var lastErr error
	for _, m := range r.candidates() {
		emb, ok := m.provider.(Embedder)
		if !ok {
			continue
		}

		start := time.Now()
		vecs, err := emb.Embed(ctx, model, missTexts)
		if err != nil {
			m.stats.RecordFailure()
			lastErr = err
			continue
		}
		if len(vecs) != len(missTexts) {
			m.stats.RecordFailure()
			lastErr = fmt.Errorf("embedder %s returned %d vectors for %d texts",
				m.provider.Name(), len(vecs), len(missTexts))
			continue
		}
		m.stats.RecordSuccess(time.Since(start))

		for j, vec := range vecs {
			out[missIdx[j]] = vec
			if r.embedCache != nil {
				r.embedCache.Set(model, missTexts[j], vec)
			}
		}
		return out, nil
	}

	if lastErr == nil {
		lastErr = ErrNoEmbedder
	}
	return nil, apperr.Wrap(apperr.KindLLM, "llm", "embedding failed", lastErr)
}
