package handler

import (
	"errors"
	"net/http"

	"github.com/dpoglobal/issuance/internal/api/middleware"
	"github.com/dpoglobal/issuance/internal/domain"
	"github.com/dpoglobal/issuance/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// DerivativeHandler serves the derivatives trade registry: UTI-keyed
// reporting, corrections, error reports, position aggregation, and the
// bounded batch path. All writes require the reporting-agent role.
type DerivativeHandler struct {
	derivativeSvc *service.DerivativeService
}

// NewDerivativeHandler creates a DerivativeHandler.
func NewDerivativeHandler(derivativeSvc *service.DerivativeService) *DerivativeHandler {
	return &DerivativeHandler{derivativeSvc: derivativeSvc}
}

// Report godoc
// POST /api/derivatives/trades [JWT, reporting agent]
func (h *DerivativeHandler) Report(c *gin.Context) {
	var trade domain.DerivativeTrade
	if err := c.ShouldBindJSON(&trade); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}
	trade.ReportedBy = middleware.GetUserID(c)

	if err := h.derivativeSvc.Report(c.Request.Context(), &trade); err != nil {
		respondDomainError(c, err, "could not report trade")
		return
	}
	respondSuccess(c, http.StatusCreated, trade)
}

// Correct godoc
// PUT /api/derivatives/trades/:uti [JWT, reporting agent]
// The full corrected economics are submitted; the prior view is retained in
// the supersession history.
func (h *DerivativeHandler) Correct(c *gin.Context) {
	uti := c.Param("uti")

	var corrected domain.DerivativeTrade
	if err := c.ShouldBindJSON(&corrected); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	err := h.derivativeSvc.Correct(c.Request.Context(), uti, corrected.PriorUTI, &corrected, middleware.GetUserID(c))
	if err != nil {
		respondDomainError(c, err, "could not correct trade")
		return
	}
	respondSuccess(c, http.StatusOK, corrected)
}

// ReportError godoc
// POST /api/derivatives/trades/:uti/error [JWT, reporting agent]
// Body: {"reason":"duplicate submission under wrong UTI"}
func (h *DerivativeHandler) ReportError(c *gin.Context) {
	uti := c.Param("uti")

	var body struct {
		Reason string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	if err := h.derivativeSvc.ReportError(c.Request.Context(), uti, body.Reason, middleware.GetUserID(c)); err != nil {
		respondDomainError(c, err, "could not report error")
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"uti": uti, "reason": body.Reason})
}

// ReportPosition godoc
// POST /api/derivatives/positions [JWT, reporting agent]
// Body: {"position_ref":"POS-1","underlying_utis":["UTI-1","UTI-2"],"valuation":"12500.00"}
func (h *DerivativeHandler) ReportPosition(c *gin.Context) {
	var body struct {
		PositionRef    string          `json:"position_ref"    binding:"required"`
		UnderlyingUTIs []string        `json:"underlying_utis" binding:"required"`
		Valuation      decimal.Decimal `json:"valuation"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	err := h.derivativeSvc.ReportPosition(c.Request.Context(), body.PositionRef, body.UnderlyingUTIs, body.Valuation, middleware.GetUserID(c))
	if err != nil {
		respondDomainError(c, err, "could not report position")
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{
		"position_ref": body.PositionRef,
		"underlyings":  len(body.UnderlyingUTIs),
	})
}

// BatchReport godoc
// POST /api/derivatives/trades/batch [JWT, reporting agent]
// The whole batch is validated before any write; a single bad entry rejects
// everything.
func (h *DerivativeHandler) BatchReport(c *gin.Context) {
	var body struct {
		Trades      []domain.DerivativeTrade `json:"trades"      binding:"required"`
		Collaterals []decimal.Decimal        `json:"collaterals" binding:"required"`
		Valuations  []decimal.Decimal        `json:"valuations"  binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	utis, err := h.derivativeSvc.BatchReport(c.Request.Context(), body.Trades, body.Collaterals, body.Valuations, middleware.GetUserID(c))
	if err != nil {
		respondDomainError(c, err, "could not report batch")
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"utis": utis, "count": len(utis)})
}

// Revalue godoc
// POST /api/derivatives/trades/:uti/revalue [JWT, reporting agent]
// Pulls the current mark from the valuation feed; a stale feed is a hard
// precondition failure.
func (h *DerivativeHandler) Revalue(c *gin.Context) {
	uti := c.Param("uti")

	if err := h.derivativeSvc.RevalueTrade(c.Request.Context(), uti); err != nil {
		if errors.Is(err, domain.ErrStaleValuation) {
			respondError(c, http.StatusServiceUnavailable, "ERR_STALE_VALUATION", err.Error())
			return
		}
		respondDomainError(c, err, "could not revalue trade")
		return
	}

	trade, err := h.derivativeSvc.GetTrade(c.Request.Context(), uti)
	if err != nil {
		respondDomainError(c, err, "could not fetch trade")
		return
	}
	respondSuccess(c, http.StatusOK, trade)
}

// GetTrade godoc
// GET /api/derivatives/trades/:uti [JWT]
func (h *DerivativeHandler) GetTrade(c *gin.Context) {
	trade, err := h.derivativeSvc.GetTrade(c.Request.Context(), c.Param("uti"))
	if err != nil {
		respondDomainError(c, err, "could not fetch trade")
		return
	}
	respondSuccess(c, http.StatusOK, trade)
}

// GetHistory godoc
// GET /api/derivatives/trades/:uti/history [JWT]
func (h *DerivativeHandler) GetHistory(c *gin.Context) {
	history, err := h.derivativeSvc.GetHistory(c.Request.Context(), c.Param("uti"))
	if err != nil {
		respondDomainError(c, err, "could not fetch history")
		return
	}
	respondSuccess(c, http.StatusOK, history)
}

// GetErrorReports godoc
// GET /api/derivatives/trades/:uti/errors [JWT]
func (h *DerivativeHandler) GetErrorReports(c *gin.Context) {
	reports, err := h.derivativeSvc.GetErrorReports(c.Request.Context(), c.Param("uti"))
	if err != nil {
		respondDomainError(c, err, "could not fetch error reports")
		return
	}
	respondSuccess(c, http.StatusOK, reports)
}

// GetPosition godoc
// GET /api/derivatives/positions/:ref [JWT]
func (h *DerivativeHandler) GetPosition(c *gin.Context) {
	position, err := h.derivativeSvc.GetPosition(c.Request.Context(), c.Param("ref"))
	if err != nil {
		respondDomainError(c, err, "could not fetch position")
		return
	}
	respondSuccess(c, http.StatusOK, position)
}

// ListTrades godoc
// GET /api/derivatives/trades?page=1&limit=20 [JWT]
func (h *DerivativeHandler) ListTrades(c *gin.Context) {
	page, limit := parsePagination(c)
	offset := (page - 1) * limit

	trades, err := h.derivativeSvc.ListTrades(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not list trades")
		return
	}
	respondList(c, trades, len(trades), page, limit)
}
