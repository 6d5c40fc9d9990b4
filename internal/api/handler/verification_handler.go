package handler

import (
	"net/http"

	"github.com/dpoglobal/issuance/internal/repository"
	"github.com/dpoglobal/issuance/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// VerificationHandler serves the async KYC round-trip: investors open
// requests, the external provider resolves them through the callback route.
type VerificationHandler struct {
	verificationSvc *service.VerificationService
	userRepo        *repository.UserRepository
}

// NewVerificationHandler creates a VerificationHandler.
func NewVerificationHandler(verificationSvc *service.VerificationService, userRepo *repository.UserRepository) *VerificationHandler {
	return &VerificationHandler{verificationSvc: verificationSvc, userRepo: userRepo}
}

// Request godoc
// POST /api/verifications [JWT]
// Body: {"provider":"northkyc","refresh":false}
func (h *VerificationHandler) Request(c *gin.Context) {
	investorID, ok := investorIDForUser(c, h.userRepo)
	if !ok {
		return
	}

	var body struct {
		Provider string `json:"provider" binding:"required"`
		Refresh  bool   `json:"refresh"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	req, err := h.verificationSvc.RequestVerification(c.Request.Context(), investorID, body.Provider, body.Refresh)
	if err != nil {
		respondDomainError(c, err, "could not open verification request")
		return
	}
	respondSuccess(c, http.StatusCreated, req)
}

// Callback godoc
// POST /api/verifications/callback
// The provider's webhook. Delivery is at-least-once: a duplicate callback
// for an already-resolved request succeeds without releasing anything twice.
func (h *VerificationHandler) Callback(c *gin.Context) {
	var body struct {
		RequestID  string `json:"request_id" binding:"required"`
		Accredited bool   `json:"accredited"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	requestID, err := uuid.Parse(body.RequestID)
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_REQUEST_ID", "invalid request_id format")
		return
	}

	released, err := h.verificationSvc.ResolveVerification(c.Request.Context(), requestID, body.Accredited)
	if err != nil {
		respondDomainError(c, err, "could not resolve verification")
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{
		"request_id": requestID,
		"released":   released,
	})
}

// History godoc
// GET /api/verifications?page=1&limit=20 [JWT]
func (h *VerificationHandler) History(c *gin.Context) {
	investorID, ok := investorIDForUser(c, h.userRepo)
	if !ok {
		return
	}
	page, limit := parsePagination(c)
	offset := (page - 1) * limit

	requests, err := h.verificationSvc.History(c.Request.Context(), investorID, limit, offset)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not fetch verification history")
		return
	}
	respondList(c, requests, len(requests), page, limit)
}
