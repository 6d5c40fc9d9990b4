package handler

import (
	"net/http"
	"time"

	"github.com/dpoglobal/issuance/internal/domain"
	"github.com/dpoglobal/issuance/internal/repository"
	"github.com/dpoglobal/issuance/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SettlementHandler serves the DvP settlement lifecycle. Lifecycle-mutating
// routes sit behind the settlement-operator role; reads are open to any
// authenticated user scoped to their own settlements.
type SettlementHandler struct {
	settlementSvc *service.SettlementService
	positionRepo  *repository.PositionRepository
	userRepo      *repository.UserRepository
}

// NewSettlementHandler creates a SettlementHandler.
func NewSettlementHandler(settlementSvc *service.SettlementService, positionRepo *repository.PositionRepository, userRepo *repository.UserRepository) *SettlementHandler {
	return &SettlementHandler{settlementSvc: settlementSvc, positionRepo: positionRepo, userRepo: userRepo}
}

// Initiate godoc
// POST /api/settlements [JWT, settlement operator]
// Body: {"trade_ref":"TR-1","asset_id":"DPO-BOND-1","buyer_id":"uuid",
//
//	"seller_id":"uuid","quantity":"100","amount":"99500.00","value_date":"2026-09-02T00:00:00Z"}
func (h *SettlementHandler) Initiate(c *gin.Context) {
	var body struct {
		TradeRef  string    `json:"trade_ref"  binding:"required"`
		AssetID   string    `json:"asset_id"   binding:"required"`
		BuyerID   string    `json:"buyer_id"   binding:"required"`
		SellerID  string    `json:"seller_id"  binding:"required"`
		Quantity  string    `json:"quantity"   binding:"required"`
		Amount    string    `json:"amount"     binding:"required"`
		ValueDate time.Time `json:"value_date" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	buyerID, err := uuid.Parse(body.BuyerID)
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_INVESTOR_ID", "invalid buyer_id format")
		return
	}
	sellerID, err := uuid.Parse(body.SellerID)
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_INVESTOR_ID", "invalid seller_id format")
		return
	}
	quantity, err := decimal.NewFromString(body.Quantity)
	if err != nil || quantity.LessThanOrEqual(decimal.Zero) {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_AMOUNT", "quantity must be a positive decimal string")
		return
	}
	amount, err := decimal.NewFromString(body.Amount)
	if err != nil || amount.LessThanOrEqual(decimal.Zero) {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_AMOUNT", "amount must be a positive decimal string")
		return
	}

	settlement, err := h.settlementSvc.Initiate(c.Request.Context(), domain.InitiateSettlementRequest{
		TradeRef:  body.TradeRef,
		AssetID:   body.AssetID,
		BuyerID:   buyerID,
		SellerID:  sellerID,
		Quantity:  quantity,
		Amount:    amount,
		ValueDate: body.ValueDate,
	})
	if err != nil {
		respondDomainError(c, err, "could not initiate settlement")
		return
	}
	respondSuccess(c, http.StatusCreated, settlement)
}

// GenerateInstructions godoc
// POST /api/settlements/:id/instruct [JWT, settlement operator]
func (h *SettlementHandler) GenerateInstructions(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_SETTLEMENT_ID", "invalid settlement id")
		return
	}

	instructions, err := h.settlementSvc.GenerateInstructions(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, err, "could not generate instructions")
		return
	}
	respondSuccess(c, http.StatusOK, instructions)
}

// Confirm godoc
// POST /api/settlements/:id/confirm [JWT, settlement operator]
func (h *SettlementHandler) Confirm(c *gin.Context) {
	h.lifecycle(c, func(ctx *gin.Context, id uuid.UUID) error {
		return h.settlementSvc.Confirm(ctx.Request.Context(), id)
	}, "could not confirm settlement")
}

// Complete godoc
// POST /api/settlements/:id/complete [JWT, settlement operator]
func (h *SettlementHandler) Complete(c *gin.Context) {
	h.lifecycle(c, func(ctx *gin.Context, id uuid.UUID) error {
		return h.settlementSvc.Complete(ctx.Request.Context(), id)
	}, "could not complete settlement")
}

// Cancel godoc
// POST /api/settlements/:id/cancel [JWT, settlement operator]
func (h *SettlementHandler) Cancel(c *gin.Context) {
	h.lifecycle(c, func(ctx *gin.Context, id uuid.UUID) error {
		return h.settlementSvc.Cancel(ctx.Request.Context(), id)
	}, "could not cancel settlement")
}

// Fail godoc
// POST /api/settlements/:id/fail [JWT, settlement operator]
// Body: {"reason":"CSD rejected instruction"}
func (h *SettlementHandler) Fail(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_SETTLEMENT_ID", "invalid settlement id")
		return
	}

	var body struct {
		Reason string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	if err := h.settlementSvc.Fail(c.Request.Context(), id, body.Reason); err != nil {
		respondDomainError(c, err, "could not fail settlement")
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"settlement_id": id, "status": domain.SettlementFailed})
}

// lifecycle is the shared skeleton for transition endpoints that carry no
// request body.
func (h *SettlementHandler) lifecycle(c *gin.Context, fn func(*gin.Context, uuid.UUID) error, fallbackMsg string) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_SETTLEMENT_ID", "invalid settlement id")
		return
	}
	if err := fn(c, id); err != nil {
		respondDomainError(c, err, fallbackMsg)
		return
	}

	settlement, _, err := h.settlementSvc.Get(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, err, fallbackMsg)
		return
	}
	respondSuccess(c, http.StatusOK, settlement)
}

// Get godoc
// GET /api/settlements/:id [JWT]
func (h *SettlementHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_SETTLEMENT_ID", "invalid settlement id")
		return
	}

	settlement, instructions, err := h.settlementSvc.Get(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, err, "could not fetch settlement")
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{
		"settlement":   settlement,
		"instructions": instructions,
	})
}

// GetMySettlements godoc
// GET /api/settlements/my?page=1&limit=20 [JWT]
func (h *SettlementHandler) GetMySettlements(c *gin.Context) {
	investorID, ok := investorIDForUser(c, h.userRepo)
	if !ok {
		return
	}
	page, limit := parsePagination(c)
	offset := (page - 1) * limit

	settlements, err := h.settlementSvc.ListByInvestor(c.Request.Context(), investorID, limit, offset)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not fetch settlements")
		return
	}
	respondList(c, settlements, len(settlements), page, limit)
}

// GetMyPositions godoc
// GET /api/positions [JWT]
func (h *SettlementHandler) GetMyPositions(c *gin.Context) {
	investorID, ok := investorIDForUser(c, h.userRepo)
	if !ok {
		return
	}

	positions, err := h.positionRepo.ListByInvestor(c.Request.Context(), investorID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not fetch positions")
		return
	}
	respondSuccess(c, http.StatusOK, positions)
}
