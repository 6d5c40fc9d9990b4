package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/dpoglobal/issuance/internal/config"
	"github.com/dpoglobal/issuance/internal/domain"
)

// TradeForwarder receives a durable copy of every report, correction, and
// error notice. Implemented by TradeRepoClient; tests substitute a stub.
type TradeForwarder interface {
	ForwardReport(ctx context.Context, trade *domain.DerivativeTrade) error
	ForwardCorrection(ctx context.Context, correction *domain.Correction) error
	ForwardError(ctx context.Context, report *domain.ErrorReport) error
}

// TradeRepoClient pushes registry events to the external trade repository
// over HTTPS. The repository is a downstream copy, never the source of
// truth; forwarding failures are logged and retried out of band, they do
// not fail the originating call.
type TradeRepoClient struct {
	client   *http.Client
	endpoint string
	apiKey   string
}

// NewTradeRepoClient constructs a TradeRepoClient from the given config.
func NewTradeRepoClient(cfg *config.Config) *TradeRepoClient {
	return &TradeRepoClient{
		client:   &http.Client{Timeout: cfg.TradeRepo.Timeout},
		endpoint: cfg.TradeRepo.Endpoint,
		apiKey:   cfg.TradeRepo.APIKey,
	}
}

// ForwardReport sends an immutable copy of a newly reported trade.
func (c *TradeRepoClient) ForwardReport(ctx context.Context, trade *domain.DerivativeTrade) error {
	return c.post(ctx, "/v1/trades", trade)
}

// ForwardCorrection sends one supersession record.
func (c *TradeRepoClient) ForwardCorrection(ctx context.Context, correction *domain.Correction) error {
	return c.post(ctx, "/v1/corrections", correction)
}

// ForwardError sends one error notice.
func (c *TradeRepoClient) ForwardError(ctx context.Context, report *domain.ErrorReport) error {
	return c.post(ctx, "/v1/errors", report)
}

func (c *TradeRepoClient) post(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("traderepo: marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("traderepo: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("traderepo: post %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("traderepo: post %s: unexpected status %d", path, resp.StatusCode)
	}
	return nil
}
