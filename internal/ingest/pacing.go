package ingest

import "time"

// DelayTarget is the knob the pacer drives; the Freshdesk client implements
// it on its inter-request delay.
type DelayTarget interface {
	SetRequestDelay(d time.Duration)
	RequestDelay() time.Duration
}

// pacer adapts the upstream request delay to observed rate limiting: each
// 429 multiplies the delay by (1.5 + 0.5·consecutive), and each successful
// window decays it 25% back toward the baseline.
type pacer struct {
	target   DelayTarget
	baseline time.Duration
	consec   int
}

func newPacer(target DelayTarget, baseline time.Duration) *pacer {
	if baseline <= 0 && target != nil {
		baseline = target.RequestDelay()
	}
	return &pacer{target: target, baseline: baseline}
}

func (p *pacer) on429() {
	if p.target == nil {
		return
	}
	p.consec++
	factor := 1.5 + 0.5*float64(p.consec)
	p.target.SetRequestDelay(time.Duration(float64(p.target.RequestDelay()) * factor))
}

func (p *pacer) onWindowSuccess() {
	if p.target == nil {
		return
	}
	p.consec = 0
	cur := p.target.RequestDelay()
	if cur <= p.baseline {
		return
	}
	next := time.Duration(float64(cur) * 0.75)
	if next < p.baseline {
		next = p.baseline
	}
	p.target.SetRequestDelay(next)
}
