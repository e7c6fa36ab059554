package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrBudgetExhausted is returned once the per-run call budget is used up.
var ErrBudgetExhausted = errors.New("call budget exhausted")

// Pacer spaces calls to an external service and optionally caps how many
// calls a single run may make.
type Pacer struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	budget  int // 0 = unlimited
	used    int
}

// NewPacer allows one call per interval with no burst. budget <= 0 disables
// the call cap.
func NewPacer(interval time.Duration, budget int) *Pacer {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Pacer{
		limiter: rate.NewLimiter(limit, 1),
		budget:  budget,
	}
}

// PerMinute builds a pacer from a requests-per-minute figure.
func PerMinute(rpm, budget int) *Pacer {
	if rpm <= 0 {
		return NewPacer(0, budget)
	}
	return NewPacer(time.Minute/time.Duration(rpm), budget)
}

// Wait blocks until the next call may start and counts it against the budget.
func (p *Pacer) Wait(ctx context.Context) error {
	p.mu.Lock()
	if p.budget > 0 && p.used >= p.budget {
		p.mu.Unlock()
		return fmt.Errorf("%w (%d/%d)", ErrBudgetExhausted, p.used, p.budget)
	}
	p.used++
	p.mu.Unlock()

	return p.limiter.Wait(ctx)
}

// Used reports how many calls went through Wait.
func (p *Pacer) Used() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.used
}

// Stats is shown in the run summary log.
func (p *Pacer) Stats() map[string]interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return map[string]interface{}{
		"used":  p.used,
		"limit": p.budget,
		"rate":  float64(p.limiter.Limit()),
	}
}
