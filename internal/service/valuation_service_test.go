package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dpoglobal/issuance/internal/config"
	"github.com/dpoglobal/issuance/internal/domain"
	"github.com/dpoglobal/issuance/internal/service"
	"github.com/shopspring/decimal"
)

// ── Mock valuation feed ───────────────────────────────────────────────────────

// Feed shape: {"asset_id":"...","value":"102.55","currency":"USD","as_of":"..."}
func mockFeedOK(value float64, asOf time.Time) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]string{
			"asset_id": r.URL.Query().Get("asset_id"),
			"value":    decimal.NewFromFloat(value).StringFixed(2),
			"currency": "USD",
			"as_of":    asOf.Format(time.RFC3339),
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
}

func mockFeedDown() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	})
}

func buildValuationConfig(feedURL string, cacheTTL, staleAfter time.Duration) *config.Config {
	return &config.Config{
		Valuation: config.ValuationConfig{
			FeedURL:      feedURL,
			FetchTimeout: 3 * time.Second,
			CacheTTL:     cacheTTL,
			StaleAfter:   staleAfter,
		},
	}
}

// ── Tests ─────────────────────────────────────────────────────────────────────

func TestValuationService_FreshMark(t *testing.T) {
	srv := httptest.NewServer(mockFeedOK(102.55, time.Now().UTC()))
	defer srv.Close()

	cfg := buildValuationConfig(srv.URL, 30*time.Second, 15*time.Minute)
	svc := service.NewValuationService(cfg)

	mark, err := svc.CurrentMark(context.Background(), "DPO-BOND-1")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	want := decimal.NewFromFloat(102.55)
	if !mark.Value.Equal(want) {
		t.Errorf("mark value = %s, want %s", mark.Value, want)
	}
	if mark.AssetID != "DPO-BOND-1" {
		t.Errorf("mark asset = %s, want DPO-BOND-1", mark.AssetID)
	}
}

// TestValuationService_StaleMark confirms a mark older than StaleAfter is a
// hard failure even when the feed itself responds.
func TestValuationService_StaleMark(t *testing.T) {
	staleAsOf := time.Now().UTC().Add(-time.Hour)
	srv := httptest.NewServer(mockFeedOK(99.00, staleAsOf))
	defer srv.Close()

	cfg := buildValuationConfig(srv.URL, 30*time.Second, 15*time.Minute)
	svc := service.NewValuationService(cfg)

	_, err := svc.CurrentMark(context.Background(), "DPO-BOND-1")
	if !errors.Is(err, domain.ErrStaleValuation) {
		t.Errorf("err = %v, want ErrStaleValuation", err)
	}
}

func TestValuationService_FeedDown_NoCache(t *testing.T) {
	srv := httptest.NewServer(mockFeedDown())
	defer srv.Close()

	cfg := buildValuationConfig(srv.URL, 30*time.Second, 15*time.Minute)
	svc := service.NewValuationService(cfg)

	_, err := svc.CurrentMark(context.Background(), "DPO-BOND-1")
	if err == nil {
		t.Fatal("expected error with feed down and cold cache")
	}
	if errors.Is(err, domain.ErrStaleValuation) {
		t.Errorf("cold-cache feed failure should not be reported as staleness: %v", err)
	}
}

// TestValuationService_FeedDown_CacheFallback confirms that a cached mark
// still within the staleness window is served when the feed goes down.
func TestValuationService_FeedDown_CacheFallback(t *testing.T) {
	asOf := time.Now().UTC()
	okSrv := httptest.NewServer(mockFeedOK(101.00, asOf))

	// TTL 0 forces a re-fetch on the second call.
	cfg := buildValuationConfig(okSrv.URL, 0, 15*time.Minute)
	svc := service.NewValuationService(cfg)

	if _, err := svc.CurrentMark(context.Background(), "DPO-BOND-1"); err != nil {
		t.Fatalf("warm-up fetch failed: %v", err)
	}
	okSrv.Close() // feed goes down

	mark, err := svc.CurrentMark(context.Background(), "DPO-BOND-1")
	if err != nil {
		t.Fatalf("expected cache fallback, got err: %v", err)
	}
	if !mark.Value.Equal(decimal.NewFromFloat(101.00)) {
		t.Errorf("fallback mark = %s, want 101", mark.Value)
	}
}

func TestValuationService_FeedStatus(t *testing.T) {
	srv := httptest.NewServer(mockFeedOK(100.00, time.Now().UTC()))
	defer srv.Close()

	cfg := buildValuationConfig(srv.URL, 30*time.Second, 15*time.Minute)
	svc := service.NewValuationService(cfg)

	if _, err := svc.CurrentMark(context.Background(), "DPO-BOND-1"); err != nil {
		t.Fatalf("fetch failed: %v", err)
	}

	status := svc.FeedStatus()
	fresh, ok := status["DPO-BOND-1"]
	if !ok {
		t.Fatal("expected DPO-BOND-1 in feed status")
	}
	if !fresh {
		t.Error("just-fetched mark should be reported fresh")
	}
}
