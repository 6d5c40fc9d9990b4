package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// ──────────────────────────────────────────────────────────────────────────────
// Per-IP request throttle
// ──────────────────────────────────────────────────────────────────────────────

// The abuse-prone route groups (auth, ledger movement, the KYC webhook) each
// carry their own throttle; the allowances come from config.RateLimit. A
// throttled call is rejected before it reaches a handler, so no transaction
// is ever opened for it.

// visitor tracks the remaining allowance for one client IP.
type visitor struct {
	allowance float64
	lastSeen  time.Time
}

// throttle is a token bucket per client IP. Refill happens lazily on access;
// idle visitors are swept on the same lock so no background goroutine is
// needed per route group.
type throttle struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	perSec    float64
	ceiling   float64
	nextSweep time.Time
}

const (
	throttleSweepEvery = 5 * time.Minute
	throttleIdleAfter  = 10 * time.Minute
)

func newThrottle(rps int) *throttle {
	ceiling := float64(rps)
	if ceiling < 10 {
		ceiling = 10 // absorb short bursts even under a strict allowance
	}
	return &throttle{
		visitors:  make(map[string]*visitor),
		perSec:    float64(rps),
		ceiling:   ceiling,
		nextSweep: time.Now().Add(throttleSweepEvery),
	}
}

// take deducts one request from the IP's allowance, reporting whether the
// request may proceed.
func (t *throttle) take(ip string) bool {
	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	if now.After(t.nextSweep) {
		t.sweep(now)
	}

	v, ok := t.visitors[ip]
	if !ok {
		v = &visitor{allowance: t.ceiling, lastSeen: now}
		t.visitors[ip] = v
	}

	v.allowance += now.Sub(v.lastSeen).Seconds() * t.perSec
	if v.allowance > t.ceiling {
		v.allowance = t.ceiling
	}
	v.lastSeen = now

	if v.allowance < 1 {
		return false
	}
	v.allowance--
	return true
}

// sweep drops visitors idle past the cutoff. Called with the lock held.
func (t *throttle) sweep(now time.Time) {
	cutoff := now.Add(-throttleIdleAfter)
	for ip, v := range t.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(t.visitors, ip)
		}
	}
	t.nextSweep = now.Add(throttleSweepEvery)
}

// ThrottleByIP limits each client IP to rps requests per second on the
// wrapped route group. Rejected calls get a 429 in the standard error
// envelope.
func ThrottleByIP(rps int) gin.HandlerFunc {
	t := newThrottle(rps)
	return func(c *gin.Context) {
		if !t.take(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"error":   "rate limit exceeded",
				"code":    "ERR_RATE_LIMITED",
			})
			return
		}
		c.Next()
	}
}
