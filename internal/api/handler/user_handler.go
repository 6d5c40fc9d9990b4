package handler

import (
	"errors"
	"net/http"

	"github.com/dpoglobal/issuance/internal/api/middleware"
	"github.com/dpoglobal/issuance/internal/domain"
	"github.com/dpoglobal/issuance/internal/repository"
	"github.com/dpoglobal/issuance/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// UserHandler handles authentication and profile endpoints.
type UserHandler struct {
	authSvc      *service.AuthService
	userRepo     *repository.UserRepository
	investorRepo *repository.InvestorRepository
}

// NewUserHandler creates a UserHandler.
func NewUserHandler(authSvc *service.AuthService, userRepo *repository.UserRepository, investorRepo *repository.InvestorRepository) *UserHandler {
	return &UserHandler{authSvc: authSvc, userRepo: userRepo, investorRepo: investorRepo}
}

// Register godoc
// POST /api/auth/register
func (h *UserHandler) Register(c *gin.Context) {
	var req service.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	resp, err := h.authSvc.Register(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, domain.ErrEmailTaken) {
			respondError(c, http.StatusConflict, "ERR_EMAIL_TAKEN", err.Error())
			return
		}
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "registration failed")
		return
	}
	respondSuccess(c, http.StatusCreated, resp)
}

// Login godoc
// POST /api/auth/login
func (h *UserHandler) Login(c *gin.Context) {
	var body struct {
		Email    string `json:"email"    binding:"required,email"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	resp, err := h.authSvc.Login(c.Request.Context(), body.Email, body.Password)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidCredentials):
			respondError(c, http.StatusUnauthorized, "ERR_INVALID_CREDENTIALS", err.Error())
		case errors.Is(err, domain.ErrUserInactive):
			respondError(c, http.StatusForbidden, "ERR_ACCOUNT_DISABLED", err.Error())
		default:
			respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "login failed")
		}
		return
	}
	respondSuccess(c, http.StatusOK, resp)
}

// Refresh godoc
// POST /api/auth/refresh
func (h *UserHandler) Refresh(c *gin.Context) {
	var body struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	access, refresh, err := h.authSvc.RefreshToken(c.Request.Context(), body.RefreshToken)
	if err != nil {
		respondError(c, http.StatusUnauthorized, "ERR_INVALID_TOKEN", err.Error())
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{
		"access_token":  access,
		"refresh_token": refresh,
	})
}

// Me godoc
// GET /api/me [JWT required]
func (h *UserHandler) Me(c *gin.Context) {
	userID := middleware.GetUserID(c)
	user, err := h.userRepo.GetByID(c.Request.Context(), userID)
	if err != nil {
		respondError(c, http.StatusNotFound, "ERR_NOT_FOUND", "user not found")
		return
	}

	// Authority accounts carry no investor record.
	if user.InvestorID == nil {
		respondSuccess(c, http.StatusOK, gin.H{"user": user})
		return
	}

	investor, err := h.investorRepo.GetByID(c.Request.Context(), *user.InvestorID)
	if err != nil {
		respondError(c, http.StatusNotFound, "ERR_NOT_FOUND", "investor not found")
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{
		"user":     user,
		"investor": investor,
	})
}

// investorIDForUser resolves the authenticated user's linked investor id.
// Writes the error response and returns false when the user carries none.
func investorIDForUser(c *gin.Context, userRepo *repository.UserRepository) (uuid.UUID, bool) {
	user, err := userRepo.GetByID(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, http.StatusUnauthorized, "ERR_UNAUTHORIZED", "user not found")
		return uuid.Nil, false
	}
	if user.InvestorID == nil {
		respondError(c, http.StatusForbidden, "ERR_NO_INVESTOR", "account has no linked investor")
		return uuid.Nil, false
	}
	return *user.InvestorID, true
}
