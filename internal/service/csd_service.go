package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/dpoglobal/issuance/internal/config"
	"github.com/dpoglobal/issuance/internal/domain"
	"github.com/dpoglobal/issuance/internal/repository"
	"github.com/shopspring/decimal"
)

// CSDSystem names a supported central securities depository.
type CSDSystem string

const (
	CSDClearstream CSDSystem = "CLEARSTREAM"
	CSDEuroclear   CSDSystem = "EUROCLEAR"
)

// ReconcileResult is the outcome of verifying one settled settlement
// against a CSD.
type ReconcileResult struct {
	TradeRef string    `json:"trade_ref"`
	System   CSDSystem `json:"system"`
	Matched  bool      `json:"matched"`
	Error    string    `json:"error,omitempty"`
}

// CSDService verifies settled settlements against the books of the external
// depositories. It never mutates ledger state; discrepancies are reported
// for manual follow-up.
type CSDService struct {
	client         *http.Client
	cfg            *config.CSDConfig
	settlementRepo *repository.SettlementRepository
	offeringRepo   *repository.OfferingRepository
}

// NewCSDService constructs a CSDService from the given config.
func NewCSDService(cfg *config.Config, settlementRepo *repository.SettlementRepository, offeringRepo *repository.OfferingRepository) *CSDService {
	return &CSDService{
		client:         &http.Client{Timeout: cfg.CSD.Timeout},
		cfg:            &cfg.CSD,
		settlementRepo: settlementRepo,
		offeringRepo:   offeringRepo,
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Single-settlement reconciliation
// ──────────────────────────────────────────────────────────────────────────────

// Reconcile verifies one settlement against the given CSD. The settlement
// must be in a terminal SETTLED state; the asset's identifier registry
// supplies the CSD-specific security id.
func (s *CSDService) Reconcile(ctx context.Context, settlement *domain.Settlement, system CSDSystem) ReconcileResult {
	result := ReconcileResult{TradeRef: settlement.TradeRef, System: system}
	if settlement.Status != domain.SettlementSettled {
		result.Error = "settlement not in SETTLED state"
		return result
	}

	ident, err := s.offeringRepo.GetIdentifier(ctx, settlement.AssetID)
	if err != nil {
		result.Error = fmt.Sprintf("identifier lookup failed: %v", err)
		return result
	}

	var matched bool
	switch system {
	case CSDClearstream:
		matched, err = s.verifyClearstream(ctx, settlement, ident)
	case CSDEuroclear:
		matched, err = s.verifyEuroclear(ctx, settlement, ident)
	default:
		err = fmt.Errorf("unsupported CSD system %q", system)
	}
	if err != nil {
		result.Error = err.Error()
		slog.Warn("CSD reconciliation failed",
			"trade_ref", settlement.TradeRef, "system", system, "error", err)
		return result
	}

	result.Matched = matched
	if !matched {
		slog.Warn("CSD reconciliation mismatch", "trade_ref", settlement.TradeRef, "system", system)
	}
	return result
}

// verifyClearstream queries the Clearstream verification endpoint and
// compares the reported quantity against the settlement's.
//
//	GET /settlements/verify?reference=…&security_id=…&date=YYYY-MM-DD
//	{"quantity":"1000"}
func (s *CSDService) verifyClearstream(ctx context.Context, settlement *domain.Settlement, ident *domain.Identifier) (bool, error) {
	if s.cfg.ClearstreamURL == "" {
		return false, fmt.Errorf("clearstream not configured")
	}
	securityID := ""
	if ident.ClearstreamAssetID != nil {
		securityID = *ident.ClearstreamAssetID
	}

	params := url.Values{}
	params.Set("reference", settlement.TradeRef)
	params.Set("security_id", securityID)
	params.Set("date", settlement.ValueDate.Format("2006-01-02"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		s.cfg.ClearstreamURL+"/settlements/verify?"+params.Encode(), nil)
	if err != nil {
		return false, fmt.Errorf("clearstream: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.ClearstreamAPIKey)

	body, err := s.do(req)
	if err != nil {
		return false, fmt.Errorf("clearstream: %w", err)
	}

	var resp struct {
		Quantity string `json:"quantity"`
	}
	if err = json.Unmarshal(body, &resp); err != nil {
		return false, fmt.Errorf("clearstream parse: %w", err)
	}
	qty, err := decimal.NewFromString(resp.Quantity)
	if err != nil {
		return false, fmt.Errorf("clearstream quantity: %w", err)
	}
	return qty.Equal(settlement.Quantity), nil
}

// verifyEuroclear posts the settlement details to the Euroclear verification
// endpoint, which answers with a matched flag.
//
//	POST /v1/settlement/verify
//	{"instruction_reference":…,"isin":…,"settlement_date":…,"quantity":…}
//	→ {"matched":true} | {"matched":false,"reason":"…"}
func (s *CSDService) verifyEuroclear(ctx context.Context, settlement *domain.Settlement, ident *domain.Identifier) (bool, error) {
	if s.cfg.EuroclearURL == "" {
		return false, fmt.Errorf("euroclear not configured")
	}
	isin := ""
	if ident.ISIN != nil {
		isin = *ident.ISIN
	}

	payload := map[string]any{
		"instruction_reference": settlement.TradeRef,
		"isin":                  isin,
		"settlement_date":       settlement.ValueDate.Format(time.RFC3339),
		"quantity":              settlement.Quantity,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return false, fmt.Errorf("euroclear: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.cfg.EuroclearURL+"/v1/settlement/verify", bytes.NewReader(raw))
	if err != nil {
		return false, fmt.Errorf("euroclear: build request: %w", err)
	}
	req.Header.Set("X-API-Key", s.cfg.EuroclearAPIKey)
	req.Header.Set("Content-Type", "application/json")

	body, err := s.do(req)
	if err != nil {
		return false, fmt.Errorf("euroclear: %w", err)
	}

	var resp struct {
		Matched bool   `json:"matched"`
		Reason  string `json:"reason"`
	}
	if err = json.Unmarshal(body, &resp); err != nil {
		return false, fmt.Errorf("euroclear parse: %w", err)
	}
	if !resp.Matched && resp.Reason != "" {
		return false, fmt.Errorf("euroclear mismatch: %s", resp.Reason)
	}
	return resp.Matched, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Batch reconciliation
// ──────────────────────────────────────────────────────────────────────────────

// BatchReconcile verifies recently settled settlements against the CSD with
// bounded concurrency.
func (s *CSDService) BatchReconcile(ctx context.Context, system CSDSystem, limit int) ([]ReconcileResult, error) {
	settled, err := s.settlementRepo.ListByStatus(ctx, domain.SettlementSettled, clampLimit(limit), 0)
	if err != nil {
		return nil, fmt.Errorf("csd_service.BatchReconcile: list: %w", err)
	}
	if len(settled) == 0 {
		return nil, nil
	}

	results := make([]ReconcileResult, len(settled))
	sem := make(chan struct{}, s.cfg.MaxConcurrent)
	var wg sync.WaitGroup
	for i, settlement := range settled {
		wg.Add(1)
		go func(i int, settlement *domain.Settlement) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = s.Reconcile(ctx, settlement, system)
		}(i, settlement)
	}
	wg.Wait()

	matched := 0
	for _, r := range results {
		if r.Matched {
			matched++
		}
	}
	slog.Info("CSD batch reconciliation finished",
		"system", system, "total", len(results), "matched", matched)
	return results, nil
}

func (s *CSDService) do(req *http.Request) ([]byte, error) {
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http: %w", err)
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
