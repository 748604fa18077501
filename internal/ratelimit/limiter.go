// Package ratelimit implements the admission controller: fixed window counters
// per key and per client address, escalating to temporary blocks for repeat
// offenders.
package ratelimit

import (
	"sync"
	"time"

	"github.com/antigravity/summarizer-gateway/internal/apierr"
	"github.com/antigravity/summarizer-gateway/internal/config"
)

const (
	ReasonKey = "key"
	ReasonIP  = "ip"
)

// Decision is the outcome of one admission check. Limit, Remaining and
// ResetAt describe the per-key window.
type Decision struct {
	Allowed    bool
	Kind       apierr.Kind
	Reason     string
	RetryAfter time.Duration
	Limit      int
	Remaining  int
	ResetAt    time.Time
}

// Err returns the typed denial, or nil when the request was admitted.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return apierr.Throttled(d.Kind, d.Reason, d.RetryAfter)
}

// state implements one counter. blockUntil is zero when not blocked.
type state struct {
	count          int
	windowStart    time.Time
	violations     int
	firstViolation time.Time
	blockUntil     time.Time
}

func (s *state) blocked(now time.Time) bool {
	return !s.blockUntil.IsZero() && now.Before(s.blockUntil)
}

// Limiter is safe for concurrent use. Every check is a single critical
// section, so concurrent requests cannot both slip under a capacity.
type Limiter struct {
	mu    sync.Mutex
	key   config.WindowConfig
	ip    config.WindowConfig
	block config.BlockConfig
	keys  map[string]*state
	ips   map[string]*state
	now   func() time.Time
}

// New creates a new limiter
func New(cfg config.RateLimitConfig) *Limiter {
	return &Limiter{
		key:   cfg.Key,
		ip:    cfg.IP,
		block: cfg.Block,
		keys:  make(map[string]*state),
		ips:   make(map[string]*state),
		now:   time.Now,
	}
}

// Check admits or denies one request from identity at address ip.
func (l *Limiter) Check(identity, ip string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	ks := l.lookup(l.keys, identity, now)
	is := l.lookup(l.ips, ip, now)

	// 封禁期间不计数
	if ks.blocked(now) {
		return l.blockedDecision(ks, ReasonKey, now)
	}
	if is.blocked(now) {
		return l.blockedDecision(is, ReasonIP, now)
	}

	l.roll(ks, l.key.Window(), now)
	l.roll(is, l.ip.Window(), now)
	ks.count++
	is.count++

	d := l.windowDecision(ks)

	keyOver := over(ks, l.key)
	ipOver := over(is, l.ip)
	if !keyOver && !ipOver {
		d.Allowed = true
		return d
	}

	d.Kind = apierr.RateLimited
	var escalated *state
	if keyOver {
		d.Reason = ReasonKey
		d.RetryAfter = ks.windowStart.Add(l.key.Window()).Sub(now)
		if l.violate(ks, now) {
			escalated = ks
		}
	}
	if ipOver {
		if !keyOver {
			d.Reason = ReasonIP
			d.RetryAfter = is.windowStart.Add(l.ip.Window()).Sub(now)
		}
		if l.violate(is, now) && escalated == nil {
			escalated = is
			d.Reason = ReasonIP
		}
	}
	if escalated != nil {
		d.Kind = apierr.TemporarilyBlocked
		d.RetryAfter = escalated.blockUntil.Sub(now)
	}
	return d
}

func (l *Limiter) lookup(m map[string]*state, id string, now time.Time) *state {
	s, ok := m[id]
	if !ok {
		s = &state{windowStart: now}
		m[id] = s
		return s
	}
	// 封禁到期后重新开窗口
	if !s.blockUntil.IsZero() && !now.Before(s.blockUntil) {
		s.blockUntil = time.Time{}
		s.count = 0
		s.windowStart = now
	}
	return s
}

func (l *Limiter) roll(s *state, window time.Duration, now time.Time) {
	if now.Sub(s.windowStart) >= window {
		s.count = 0
		s.windowStart = now
	}
}

func over(s *state, w config.WindowConfig) bool {
	return w.MaxRequests > 0 && s.count > w.MaxRequests
}

// violate records a denial and reports whether it installed a block.
func (l *Limiter) violate(s *state, now time.Time) bool {
	if l.block.ViolationThreshold <= 0 {
		return false
	}
	lookback := time.Duration(l.block.LookbackSeconds) * time.Second
	if s.firstViolation.IsZero() || now.Sub(s.firstViolation) > lookback {
		s.violations = 0
		s.firstViolation = now
	}
	s.violations++
	if s.violations < l.block.ViolationThreshold {
		return false
	}

	s.blockUntil = now.Add(time.Duration(l.block.DurationSeconds) * time.Second)
	s.violations = 0
	s.firstViolation = time.Time{}
	return true
}

func (l *Limiter) windowDecision(ks *state) Decision {
	remaining := 0
	if l.key.MaxRequests > 0 && ks.count < l.key.MaxRequests {
		remaining = l.key.MaxRequests - ks.count
	}
	return Decision{
		Limit:     l.key.MaxRequests,
		Remaining: remaining,
		ResetAt:   ks.windowStart.Add(l.key.Window()),
	}
}

func (l *Limiter) blockedDecision(s *state, reason string, now time.Time) Decision {
	return Decision{
		Kind:       apierr.TemporarilyBlocked,
		Reason:     reason,
		RetryAfter: s.blockUntil.Sub(now),
		Limit:      l.key.MaxRequests,
		Remaining:  0,
		ResetAt:    s.blockUntil,
	}
}

// Sweep drops idle states: not blocked, window elapsed and no violations
// within the lookback. Returns the number removed.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	lookback := time.Duration(l.block.LookbackSeconds) * time.Second
	removed := 0
	sweep := func(m map[string]*state, window time.Duration) {
		for id, s := range m {
			if s.blocked(now) {
				continue
			}
			if now.Sub(s.windowStart) < window {
				continue
			}
			if !s.firstViolation.IsZero() && now.Sub(s.firstViolation) <= lookback {
				continue
			}
			delete(m, id)
			removed++
		}
	}
	sweep(l.keys, l.key.Window())
	sweep(l.ips, l.ip.Window())
	return removed
}

// Size returns the number of tracked key and address states.
func (l *Limiter) Size() (keys, ips int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.keys), len(l.ips)
}
