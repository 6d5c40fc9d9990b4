package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/dpoglobal/issuance/internal/config"
	"github.com/dpoglobal/issuance/internal/domain"
	"github.com/shopspring/decimal"
)

// Mark is one cached valuation of an asset from the external feed.
type Mark struct {
	AssetID   string          `json:"asset_id"`
	Value     decimal.Decimal `json:"value"`
	Currency  string          `json:"currency"`
	AsOf      time.Time       `json:"as_of"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// ValuationService fetches valuation marks from the external feed and caches
// them per asset. Staleness is a hard precondition: a mark whose AsOf is
// older than the configured threshold is rejected, never silently served.
type ValuationService struct {
	client *http.Client
	cfg    *config.ValuationConfig

	mu    sync.RWMutex
	cache map[string]Mark
}

// NewValuationService constructs a ValuationService from the given config.
func NewValuationService(cfg *config.Config) *ValuationService {
	return &ValuationService{
		client: &http.Client{Timeout: cfg.Valuation.FetchTimeout},
		cfg:    &cfg.Valuation,
		cache:  make(map[string]Mark),
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Public API
// ──────────────────────────────────────────────────────────────────────────────

// CurrentMark returns a usable valuation for the asset. A fresh cache entry
// (< CacheTTL) is served immediately; otherwise the feed is queried. In both
// cases the mark's own AsOf timestamp is checked against StaleAfter and
// ErrStaleValuation is returned when the feed has fallen behind.
func (vs *ValuationService) CurrentMark(ctx context.Context, assetID string) (Mark, error) {
	now := time.Now().UTC()

	vs.mu.RLock()
	cached, ok := vs.cache[assetID]
	vs.mu.RUnlock()
	if ok && now.Sub(cached.FetchedAt) < vs.cfg.CacheTTL {
		if now.Sub(cached.AsOf) > vs.cfg.StaleAfter {
			return Mark{}, domain.ErrStaleValuation
		}
		return cached, nil
	}

	mark, err := vs.fetchMark(ctx, assetID)
	if err != nil {
		// Feed unreachable: fall back to the cache only if the cached mark
		// itself is still within the staleness window.
		if ok && now.Sub(cached.AsOf) <= vs.cfg.StaleAfter {
			return cached, nil
		}
		return Mark{}, err
	}

	vs.mu.Lock()
	vs.cache[assetID] = mark
	vs.mu.Unlock()

	if now.Sub(mark.AsOf) > vs.cfg.StaleAfter {
		return Mark{}, domain.ErrStaleValuation
	}
	return mark, nil
}

// Refresh re-fetches the marks of all cached assets. Called periodically by
// the scheduler so reporting paths mostly hit a warm cache.
func (vs *ValuationService) Refresh(ctx context.Context) error {
	vs.mu.RLock()
	assets := make([]string, 0, len(vs.cache))
	for assetID := range vs.cache {
		assets = append(assets, assetID)
	}
	vs.mu.RUnlock()

	for _, assetID := range assets {
		mark, err := vs.fetchMark(ctx, assetID)
		if err != nil {
			return fmt.Errorf("valuation_service.Refresh %s: %w", assetID, err)
		}
		vs.mu.Lock()
		vs.cache[assetID] = mark
		vs.mu.Unlock()
	}
	return nil
}

// FeedStatus reports whether each cached asset's mark is within the
// staleness window. Used by the back-office dashboard.
func (vs *ValuationService) FeedStatus() map[string]bool {
	now := time.Now().UTC()
	vs.mu.RLock()
	defer vs.mu.RUnlock()

	status := make(map[string]bool, len(vs.cache))
	for assetID, mark := range vs.cache {
		status[assetID] = now.Sub(mark.AsOf) <= vs.cfg.StaleAfter
	}
	return status
}

// ──────────────────────────────────────────────────────────────────────────────
// Feed fetcher
// ──────────────────────────────────────────────────────────────────────────────

// fetchMark fetches one asset's mark from the valuation feed.
//
//	GET /marks?asset_id=<id>
//	{"asset_id":"...","value":"102.55","currency":"USD","as_of":"2026-08-31T12:00:00Z"}
func (vs *ValuationService) fetchMark(ctx context.Context, assetID string) (Mark, error) {
	endpoint := vs.cfg.FeedURL + "/marks?asset_id=" + url.QueryEscape(assetID)
	body, err := vs.doGet(ctx, endpoint)
	if err != nil {
		return Mark{}, fmt.Errorf("valuation feed: %w", err)
	}

	var resp struct {
		AssetID  string    `json:"asset_id"`
		Value    string    `json:"value"`
		Currency string    `json:"currency"`
		AsOf     time.Time `json:"as_of"`
	}
	if err = json.Unmarshal(body, &resp); err != nil {
		return Mark{}, fmt.Errorf("valuation feed parse: %w", err)
	}
	if resp.Value == "" {
		return Mark{}, fmt.Errorf("valuation feed: empty value field")
	}
	value, err := decimal.NewFromString(resp.Value)
	if err != nil {
		return Mark{}, fmt.Errorf("valuation feed decimal: %w", err)
	}
	return Mark{
		AssetID:   assetID,
		Value:     value,
		Currency:  resp.Currency,
		AsOf:      resp.AsOf,
		FetchedAt: time.Now().UTC(),
	}, nil
}

// doGet performs an HTTP GET with the service's client and returns the body
// bytes, or an error for any non-200 status code.
func (vs *ValuationService) doGet(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "dpoglobal-issuance/1.0")

	resp, err := vs.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}
