package handler

import (
	"errors"
	"net/http"

	"github.com/dpoglobal/issuance/internal/config"
	"github.com/dpoglobal/issuance/internal/domain"
	"github.com/dpoglobal/issuance/internal/repository"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// UserAdminHandler serves /admin/users endpoints.
type UserAdminHandler struct {
	userRepo     *repository.UserRepository
	investorRepo *repository.InvestorRepository
	cfg          *config.Config
}

// NewUserAdminHandler creates a UserAdminHandler.
func NewUserAdminHandler(
	userRepo *repository.UserRepository,
	investorRepo *repository.InvestorRepository,
	cfg *config.Config,
) *UserAdminHandler {
	return &UserAdminHandler{userRepo: userRepo, investorRepo: investorRepo, cfg: cfg}
}

// List godoc
// GET /admin/users?page=1&limit=50
func (h *UserAdminHandler) List(c *gin.Context) {
	page, limit := adminPagination(c)
	offset := (page - 1) * limit

	users, total, err := h.userRepo.List(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", err.Error())
		return
	}
	respondList(c, users, total, page, limit)
}

// Detail godoc
// GET /admin/users/:id
func (h *UserAdminHandler) Detail(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "invalid user id")
		return
	}

	ctx := c.Request.Context()
	user, err := h.userRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			respondError(c, http.StatusNotFound, "ERR_NOT_FOUND", err.Error())
			return
		}
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", err.Error())
		return
	}

	var investor *domain.Investor
	if user.InvestorID != nil {
		investor, _ = h.investorRepo.GetByID(ctx, *user.InvestorID)
	}

	respondSuccess(c, http.StatusOK, gin.H{
		"user":     user,
		"investor": investor,
	})
}

// Suspend godoc
// POST /admin/users/:id/suspend
func (h *UserAdminHandler) Suspend(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "invalid user id")
		return
	}
	if err = h.userRepo.SetActive(c.Request.Context(), id, false); err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", err.Error())
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"user_id": id, "is_active": false})
}

// Activate godoc
// POST /admin/users/:id/activate
func (h *UserAdminHandler) Activate(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "invalid user id")
		return
	}
	if err = h.userRepo.SetActive(c.Request.Context(), id, true); err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", err.Error())
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"user_id": id, "is_active": true})
}

// SetRole godoc
// POST /admin/users/:id/role
// Body: {"role": "settlement"}
func (h *UserAdminHandler) SetRole(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "invalid user id")
		return
	}
	var body struct {
		Role string `json:"role" binding:"required"`
	}
	if err = c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}
	role := domain.UserRole(body.Role)
	validRoles := map[domain.UserRole]bool{
		domain.RoleParticipant: true,
		domain.RoleAdmin:       true,
		domain.RoleCompliance:  true,
		domain.RoleOps:         true,
		domain.RoleSettlement:  true,
		domain.RoleReporting:   true,
		domain.RoleReadOnly:    true,
	}
	if !validRoles[role] {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ROLE", "unknown role")
		return
	}
	if err = h.userRepo.UpdateRole(c.Request.Context(), id, role); err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", err.Error())
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"user_id": id, "role": role})
}
