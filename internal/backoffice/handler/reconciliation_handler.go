package handler

import (
	"net/http"
	"strconv"

	"github.com/dpoglobal/issuance/internal/config"
	"github.com/dpoglobal/issuance/internal/repository"
	"github.com/dpoglobal/issuance/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ReconciliationHandler serves /admin/reconciliation: verifying settled
// settlements against the external depositories' books.
type ReconciliationHandler struct {
	csdSvc         *service.CSDService
	settlementRepo *repository.SettlementRepository
	cfg            *config.Config
}

// NewReconciliationHandler creates a ReconciliationHandler.
func NewReconciliationHandler(csdSvc *service.CSDService, settlementRepo *repository.SettlementRepository, cfg *config.Config) *ReconciliationHandler {
	return &ReconciliationHandler{csdSvc: csdSvc, settlementRepo: settlementRepo, cfg: cfg}
}

// ReconcileOne godoc
// POST /admin/reconciliation/settlements/:id
// Body: {"system":"CLEARSTREAM"}
func (h *ReconciliationHandler) ReconcileOne(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "invalid settlement id")
		return
	}

	var body struct {
		System string `json:"system" binding:"required"`
	}
	if err = c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}
	system, ok := parseCSDSystem(body.System)
	if !ok {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_SYSTEM", "system must be CLEARSTREAM or EUROCLEAR")
		return
	}

	settlement, err := h.settlementRepo.GetByID(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, err, "could not fetch settlement")
		return
	}

	result := h.csdSvc.Reconcile(c.Request.Context(), settlement, system)
	respondSuccess(c, http.StatusOK, result)
}

// ReconcileBatch godoc
// POST /admin/reconciliation/batch?limit=100
// Body: {"system":"EUROCLEAR"}
func (h *ReconciliationHandler) ReconcileBatch(c *gin.Context) {
	var body struct {
		System string `json:"system" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}
	system, ok := parseCSDSystem(body.System)
	if !ok {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_SYSTEM", "system must be CLEARSTREAM or EUROCLEAR")
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if limit < 1 || limit > 500 {
		limit = 100
	}

	results, err := h.csdSvc.BatchReconcile(c.Request.Context(), system, limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "batch reconciliation failed")
		return
	}

	matched := 0
	for _, r := range results {
		if r.Matched {
			matched++
		}
	}
	respondSuccess(c, http.StatusOK, gin.H{
		"system":  system,
		"total":   len(results),
		"matched": matched,
		"results": results,
	})
}

func parseCSDSystem(s string) (service.CSDSystem, bool) {
	switch service.CSDSystem(s) {
	case service.CSDClearstream:
		return service.CSDClearstream, true
	case service.CSDEuroclear:
		return service.CSDEuroclear, true
	}
	return "", false
}
