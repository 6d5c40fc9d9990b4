package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func throttledEngine(rps int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(ThrottleByIP(rps))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestThrottleByIP_AllowsWithinCeiling(t *testing.T) {
	r := throttledEngine(1) // ceiling floors at 10

	for i := 0; i < 10; i++ {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		r.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("request %d = %d, want 200", i+1, rr.Code)
		}
	}
}

func TestThrottleByIP_RejectsBeyondCeiling(t *testing.T) {
	r := throttledEngine(1)

	var last *httptest.ResponseRecorder
	for i := 0; i < 11; i++ {
		last = httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		r.ServeHTTP(last, req)
	}
	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("11th request = %d, want 429", last.Code)
	}
	body := last.Body.String()
	if !strings.Contains(body, "ERR_RATE_LIMITED") || !strings.Contains(body, `"success":false`) {
		t.Errorf("429 body should use the standard error envelope, got %s", body)
	}
}

func TestThrottle_RefillsOverTime(t *testing.T) {
	th := newThrottle(100)
	ip := "203.0.113.7"

	for th.take(ip) {
	}
	// Allowance exhausted; a lazy refill needs elapsed wall time, so push
	// lastSeen into the past instead of sleeping.
	th.mu.Lock()
	th.visitors[ip].lastSeen = th.visitors[ip].lastSeen.Add(-time.Second)
	th.mu.Unlock()

	if !th.take(ip) {
		t.Error("allowance should refill after idle time")
	}
}

func TestThrottle_SweepEvictsIdleVisitors(t *testing.T) {
	th := newThrottle(10)
	th.take("198.51.100.1")
	th.take("198.51.100.2")

	th.mu.Lock()
	for _, v := range th.visitors {
		v.lastSeen = v.lastSeen.Add(-2 * throttleIdleAfter)
	}
	th.nextSweep = th.nextSweep.Add(-2 * throttleSweepEvery)
	th.mu.Unlock()

	th.take("198.51.100.3")

	th.mu.Lock()
	defer th.mu.Unlock()
	if len(th.visitors) != 1 {
		t.Errorf("sweep should leave only the active visitor, got %d", len(th.visitors))
	}
}
