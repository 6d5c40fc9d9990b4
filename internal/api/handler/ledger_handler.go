package handler

import (
	"net/http"

	"github.com/dpoglobal/issuance/internal/domain"
	"github.com/dpoglobal/issuance/internal/repository"
	"github.com/dpoglobal/issuance/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LedgerHandler serves token-ledger endpoints: gated transfers, holdings,
// issuance records, and the audit trail.
type LedgerHandler struct {
	ledgerSvc    *service.LedgerService
	offeringRepo *repository.OfferingRepository
	userRepo     *repository.UserRepository
}

// NewLedgerHandler creates a LedgerHandler.
func NewLedgerHandler(ledgerSvc *service.LedgerService, offeringRepo *repository.OfferingRepository, userRepo *repository.UserRepository) *LedgerHandler {
	return &LedgerHandler{ledgerSvc: ledgerSvc, offeringRepo: offeringRepo, userRepo: userRepo}
}

// Transfer godoc
// POST /api/ledger/transfers [JWT]
// Body: {"to_id":"uuid","asset_id":"DPO-BOND-1","amount":"250.00"}
func (h *LedgerHandler) Transfer(c *gin.Context) {
	fromID, ok := investorIDForUser(c, h.userRepo)
	if !ok {
		return
	}

	var body struct {
		ToID    string `json:"to_id"    binding:"required"`
		AssetID string `json:"asset_id" binding:"required"`
		Amount  string `json:"amount"   binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	toID, err := uuid.Parse(body.ToID)
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_INVESTOR_ID", "invalid to_id format")
		return
	}
	amount, err := decimal.NewFromString(body.Amount)
	if err != nil || amount.LessThanOrEqual(decimal.Zero) {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_AMOUNT", "amount must be a positive decimal string")
		return
	}

	req := domain.TransferRequest{
		FromID:  fromID,
		ToID:    toID,
		AssetID: body.AssetID,
		Amount:  amount,
	}
	if err := h.ledgerSvc.Transfer(c.Request.Context(), req); err != nil {
		respondDomainError(c, err, "could not execute transfer")
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{
		"from_id":  fromID,
		"to_id":    toID,
		"asset_id": body.AssetID,
		"amount":   amount,
	})
}

// GetHolding godoc
// GET /api/ledger/holdings/:asset_id [JWT]
func (h *LedgerHandler) GetHolding(c *gin.Context) {
	investorID, ok := investorIDForUser(c, h.userRepo)
	if !ok {
		return
	}

	holding, err := h.ledgerSvc.GetHolding(c.Request.Context(), investorID, c.Param("asset_id"))
	if err != nil {
		respondDomainError(c, err, "could not fetch holding")
		return
	}
	respondSuccess(c, http.StatusOK, holding)
}

// GetEntries godoc
// GET /api/ledger/entries?page=1&limit=20 [JWT]
func (h *LedgerHandler) GetEntries(c *gin.Context) {
	investorID, ok := investorIDForUser(c, h.userRepo)
	if !ok {
		return
	}
	page, limit := parsePagination(c)
	offset := (page - 1) * limit

	entries, err := h.ledgerSvc.GetEntries(c.Request.Context(), investorID, limit, offset)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not fetch ledger entries")
		return
	}
	respondList(c, entries, len(entries), page, limit)
}

// GetIssuances godoc
// GET /api/ledger/issuances?page=1&limit=20 [JWT]
func (h *LedgerHandler) GetIssuances(c *gin.Context) {
	investorID, ok := investorIDForUser(c, h.userRepo)
	if !ok {
		return
	}
	page, limit := parsePagination(c)
	offset := (page - 1) * limit

	issuances, err := h.ledgerSvc.GetIssuances(c.Request.Context(), investorID, limit, offset)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not fetch issuances")
		return
	}
	respondList(c, issuances, len(issuances), page, limit)
}

// ListOfferings godoc
// GET /api/offerings?page=1&limit=20
func (h *LedgerHandler) ListOfferings(c *gin.Context) {
	page, limit := parsePagination(c)
	offset := (page - 1) * limit

	offerings, err := h.offeringRepo.List(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not list offerings")
		return
	}
	respondList(c, offerings, len(offerings), page, limit)
}

// GetOffering godoc
// GET /api/offerings/:asset_id
func (h *LedgerHandler) GetOffering(c *gin.Context) {
	assetID := c.Param("asset_id")
	offering, err := h.offeringRepo.GetByAssetID(c.Request.Context(), assetID)
	if err != nil {
		respondDomainError(c, err, "could not fetch offering")
		return
	}

	supply, err := h.ledgerSvc.TotalSupply(c.Request.Context(), assetID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not fetch supply")
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{
		"offering":     offering,
		"total_supply": supply,
	})
}
