package handler

import (
	"net/http"
	"time"

	"github.com/dpoglobal/issuance/internal/config"
	"github.com/dpoglobal/issuance/internal/domain"
	"github.com/dpoglobal/issuance/internal/repository"
	"github.com/dpoglobal/issuance/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ComplianceHandler serves /admin/compliance endpoints: sanctions flags, QIB
// designation, transfer locks, and the audited forced-transfer path.
type ComplianceHandler struct {
	ledgerSvc    *service.LedgerService
	investorRepo *repository.InvestorRepository
	ledgerRepo   *repository.LedgerRepository
	cfg          *config.Config
}

// NewComplianceHandler creates a ComplianceHandler.
func NewComplianceHandler(
	ledgerSvc *service.LedgerService,
	investorRepo *repository.InvestorRepository,
	ledgerRepo *repository.LedgerRepository,
	cfg *config.Config,
) *ComplianceHandler {
	return &ComplianceHandler{
		ledgerSvc:    ledgerSvc,
		investorRepo: investorRepo,
		ledgerRepo:   ledgerRepo,
		cfg:          cfg,
	}
}

// ListInvestors godoc
// GET /admin/compliance/investors?page=1&limit=50
func (h *ComplianceHandler) ListInvestors(c *gin.Context) {
	page, limit := adminPagination(c)
	offset := (page - 1) * limit

	investors, err := h.investorRepo.List(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not list investors")
		return
	}
	respondList(c, investors, len(investors), page, limit)
}

// InvestorDetail godoc
// GET /admin/compliance/investors/:id
func (h *ComplianceHandler) InvestorDetail(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "invalid investor id")
		return
	}

	ctx := c.Request.Context()
	investor, err := h.investorRepo.GetByID(ctx, id)
	if err != nil {
		respondDomainError(c, err, "could not fetch investor")
		return
	}

	lock, _ := h.investorRepo.GetLock(ctx, id)
	entries, _ := h.ledgerRepo.GetEntries(ctx, id, 50, 0)

	respondSuccess(c, http.StatusOK, gin.H{
		"investor": investor,
		"lock":     lock,
		"entries":  entries,
	})
}

// SetSanction godoc
// POST /admin/compliance/investors/:id/sanction
// Body: {"sanctioned": true}
func (h *ComplianceHandler) SetSanction(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "invalid investor id")
		return
	}
	var body struct {
		Sanctioned bool `json:"sanctioned"`
	}
	if err = c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	if err = h.investorRepo.SetSanctioned(c.Request.Context(), id, body.Sanctioned); err != nil {
		respondDomainError(c, err, "could not update sanction flag")
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"investor_id": id, "sanctioned": body.Sanctioned})
}

// SetQIB godoc
// POST /admin/compliance/investors/:id/qib
// Body: {"is_qib": true}
func (h *ComplianceHandler) SetQIB(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "invalid investor id")
		return
	}
	var body struct {
		IsQIB bool `json:"is_qib"`
	}
	if err = c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	if err = h.investorRepo.SetQIB(c.Request.Context(), id, body.IsQIB); err != nil {
		respondDomainError(c, err, "could not update QIB flag")
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"investor_id": id, "is_qib": body.IsQIB})
}

// SetLock godoc
// POST /admin/compliance/investors/:id/lock
// Body: {"unlock_time":"2027-01-01T00:00:00Z"}
// Locks are superseded, never removed: set an unlock time in the past to
// clear one.
func (h *ComplianceHandler) SetLock(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "invalid investor id")
		return
	}
	var body struct {
		UnlockTime time.Time `json:"unlock_time" binding:"required"`
	}
	if err = c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	actorID := adminUserID(c)
	if err = h.investorRepo.UpsertLockDirect(c.Request.Context(), id, body.UnlockTime, actorID); err != nil {
		respondDomainError(c, err, "could not set transfer lock")
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{
		"investor_id": id,
		"unlock_time": body.UnlockTime,
		"set_by":      actorID,
	})
}

// ForceTransfer godoc
// POST /admin/compliance/force-transfer
// Body: {"from_id":"uuid","to_id":"uuid","asset_id":"DPO-BOND-1",
//
//	"amount":"100","justification":"court order 26-CV-1041"}
func (h *ComplianceHandler) ForceTransfer(c *gin.Context) {
	var body struct {
		FromID        string `json:"from_id"       binding:"required"`
		ToID          string `json:"to_id"         binding:"required"`
		AssetID       string `json:"asset_id"      binding:"required"`
		Amount        string `json:"amount"        binding:"required"`
		Justification string `json:"justification" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	fromID, err := uuid.Parse(body.FromID)
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "invalid from_id format")
		return
	}
	toID, err := uuid.Parse(body.ToID)
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "invalid to_id format")
		return
	}
	amount, err := decimal.NewFromString(body.Amount)
	if err != nil || amount.LessThanOrEqual(decimal.Zero) {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_AMOUNT", "amount must be a positive decimal string")
		return
	}

	req := domain.ForceTransferRequest{
		AuthorityID:   adminUserID(c),
		FromID:        fromID,
		ToID:          toID,
		AssetID:       body.AssetID,
		Amount:        amount,
		Justification: body.Justification,
	}
	if err := h.ledgerSvc.ForceTransfer(c.Request.Context(), req); err != nil {
		respondDomainError(c, err, "could not execute forced transfer")
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{
		"from_id":       fromID,
		"to_id":         toID,
		"asset_id":      body.AssetID,
		"amount":        amount,
		"justification": body.Justification,
	})
}

// ForcedTransferAudit godoc
// GET /admin/compliance/forced-transfers?page=1&limit=50
func (h *ComplianceHandler) ForcedTransferAudit(c *gin.Context) {
	page, limit := adminPagination(c)
	offset := (page - 1) * limit

	entries, err := h.ledgerRepo.GetForcedTransferEntries(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not fetch forced-transfer audit log")
		return
	}
	respondList(c, entries, len(entries), page, limit)
}
