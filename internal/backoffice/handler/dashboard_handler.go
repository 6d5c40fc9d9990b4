package handler

import (
	"net/http"
	"time"

	"github.com/dpoglobal/issuance/internal/config"
	"github.com/dpoglobal/issuance/internal/repository"
	"github.com/dpoglobal/issuance/internal/service"
	"github.com/dpoglobal/issuance/internal/ws"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// DashboardHandler serves the /admin/dashboard endpoint.
type DashboardHandler struct {
	settlementRepo *repository.SettlementRepository
	offeringRepo   *repository.OfferingRepository
	ledgerRepo     *repository.LedgerRepository
	valuationSvc   *service.ValuationService
	hub            *ws.Hub
	cfg            *config.Config
}

// NewDashboardHandler creates a DashboardHandler.
func NewDashboardHandler(
	settlementRepo *repository.SettlementRepository,
	offeringRepo *repository.OfferingRepository,
	ledgerRepo *repository.LedgerRepository,
	valuationSvc *service.ValuationService,
	hub *ws.Hub,
	cfg *config.Config,
) *DashboardHandler {
	return &DashboardHandler{
		settlementRepo: settlementRepo,
		offeringRepo:   offeringRepo,
		ledgerRepo:     ledgerRepo,
		valuationSvc:   valuationSvc,
		hub:            hub,
		cfg:            cfg,
	}
}

// Dashboard godoc
// GET /admin/dashboard
func (h *DashboardHandler) Dashboard(c *gin.Context) {
	ctx := c.Request.Context()

	// ── Settlement pipeline ──────────────────────────────────────────────────
	statusCounts, err := h.settlementRepo.CountByStatus(ctx)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not count settlements")
		return
	}

	// ── Offerings and outstanding supply ─────────────────────────────────────
	offerings, _ := h.offeringRepo.List(ctx, 50, 0)
	type offeringRow struct {
		AssetID        string          `json:"asset_id"`
		OfferingType   string          `json:"offering_type"`
		TotalCommitted decimal.Decimal `json:"total_committed"`
		TotalSupply    decimal.Decimal `json:"total_supply"`
		IsFinalized    bool            `json:"is_finalized"`
	}
	rows := make([]offeringRow, 0, len(offerings))
	for _, o := range offerings {
		supply, _ := h.ledgerRepo.TotalSupply(ctx, o.AssetID)
		rows = append(rows, offeringRow{
			AssetID:        o.AssetID,
			OfferingType:   string(o.OfferingType),
			TotalCommitted: o.TotalCommitted,
			TotalSupply:    supply,
			IsFinalized:    o.IsFinalized,
		})
	}

	// ── Valuation feed health ────────────────────────────────────────────────
	feedStatus := h.valuationSvc.FeedStatus()

	// ── WS connections ───────────────────────────────────────────────────────
	var wsConnections int
	if h.hub != nil {
		wsConnections = h.hub.ConnectedCount()
	}

	respondSuccess(c, http.StatusOK, gin.H{
		"timestamp":       time.Now().UTC(),
		"settlements":     statusCounts,
		"offerings":       rows,
		"valuation_feed":  feedStatus,
		"ws_connections":  wsConnections,
		"stale_threshold": h.cfg.Valuation.StaleAfter.String(),
	})
}
