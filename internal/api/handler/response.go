package handler

import (
	"net/http"
	"strconv"

	"github.com/dpoglobal/issuance/internal/domain"
	"github.com/gin-gonic/gin"
)

// ──────────────────────────────────────────────────────────────────────────────
// Standard response helpers
// ──────────────────────────────────────────────────────────────────────────────

// respondSuccess writes {"success": true, "data": data} with the given status.
func respondSuccess(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{
		"success": true,
		"data":    data,
	})
}

// respondError writes {"success": false, "error": msg, "code": code}.
func respondError(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error":   msg,
		"code":    code,
	})
}

// respondList writes {"success": true, "data": items, "meta": {...}}.
func respondList(c *gin.Context, items interface{}, total, page, limit int) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    items,
		"meta": gin.H{
			"total": total,
			"page":  page,
			"limit": limit,
		},
	})
}

// respondDomainError translates a wrapped domain error into the matching HTTP
// status. Handlers use it as the fallthrough after any endpoint-specific
// mapping; unknown errors become an opaque 500 so internals never leak.
func respondDomainError(c *gin.Context, err error, fallbackMsg string) {
	switch {
	case domain.IsValidation(err):
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
	case domain.IsComplianceViolation(err):
		respondError(c, http.StatusUnprocessableEntity, "ERR_COMPLIANCE", err.Error())
	case domain.IsNotFound(err):
		respondError(c, http.StatusNotFound, "ERR_NOT_FOUND", err.Error())
	case domain.IsConflict(err):
		respondError(c, http.StatusConflict, "ERR_CONFLICT", err.Error())
	case domain.IsResourceLimit(err):
		respondError(c, http.StatusRequestEntityTooLarge, "ERR_LIMIT_EXCEEDED", err.Error())
	case domain.IsAuthError(err):
		respondError(c, http.StatusForbidden, "ERR_FORBIDDEN", err.Error())
	default:
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", fallbackMsg)
	}
}

// ── helpers ──────────────────────────────────────────────────────────────────

func parsePagination(c *gin.Context) (page, limit int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return
}
