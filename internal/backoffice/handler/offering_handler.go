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

// OfferingHandler serves /admin/offerings and /admin/issuances: offering
// setup, external identifier registration, finalization, and primary
// issuance.
type OfferingHandler struct {
	ledgerSvc    *service.LedgerService
	offeringRepo *repository.OfferingRepository
	cfg          *config.Config
}

// NewOfferingHandler creates an OfferingHandler.
func NewOfferingHandler(ledgerSvc *service.LedgerService, offeringRepo *repository.OfferingRepository, cfg *config.Config) *OfferingHandler {
	return &OfferingHandler{ledgerSvc: ledgerSvc, offeringRepo: offeringRepo, cfg: cfg}
}

// List godoc
// GET /admin/offerings?page=1&limit=50
func (h *OfferingHandler) List(c *gin.Context) {
	page, limit := adminPagination(c)
	offset := (page - 1) * limit

	offerings, err := h.offeringRepo.List(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not list offerings")
		return
	}
	respondList(c, offerings, len(offerings), page, limit)
}

// Create godoc
// POST /admin/offerings
// Body: {"asset_id":"DPO-BOND-1","offering_type":"REG_D_506C",
//
//	"max_raise_amount":"5000000","lockup_seconds":31536000,"base_currency":"USD"}
func (h *OfferingHandler) Create(c *gin.Context) {
	var body struct {
		AssetID        string `json:"asset_id"         binding:"required"`
		OfferingType   string `json:"offering_type"    binding:"required"`
		MaxRaiseAmount string `json:"max_raise_amount"`
		LockupSeconds  int64  `json:"lockup_seconds"`
		BaseCurrency   string `json:"base_currency"    binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	offeringType := domain.OfferingType(body.OfferingType)
	if !offeringType.IsValid() {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_OFFERING_TYPE", "unknown offering type")
		return
	}
	if !domain.ValidCurrency(body.BaseCurrency) {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_CURRENCY", domain.ErrInvalidCurrency.Error())
		return
	}

	maxRaise := decimal.Zero // zero = uncapped
	if body.MaxRaiseAmount != "" {
		var err error
		maxRaise, err = decimal.NewFromString(body.MaxRaiseAmount)
		if err != nil || maxRaise.IsNegative() {
			respondError(c, http.StatusBadRequest, "ERR_INVALID_AMOUNT", "max_raise_amount must be a non-negative decimal string")
			return
		}
	}

	now := time.Now().UTC()
	offering := &domain.Offering{
		ID:             uuid.New(),
		AssetID:        body.AssetID,
		OfferingType:   offeringType,
		MaxRaiseAmount: maxRaise,
		LockupPeriod:   time.Duration(body.LockupSeconds) * time.Second,
		LockupSeconds:  body.LockupSeconds,
		BaseCurrency:   body.BaseCurrency,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := h.offeringRepo.Create(c.Request.Context(), offering); err != nil {
		respondDomainError(c, err, "could not create offering")
		return
	}
	respondSuccess(c, http.StatusCreated, offering)
}

// Finalize godoc
// POST /admin/offerings/:asset_id/finalize
func (h *OfferingHandler) Finalize(c *gin.Context) {
	offering, err := h.offeringRepo.GetByAssetID(c.Request.Context(), c.Param("asset_id"))
	if err != nil {
		respondDomainError(c, err, "could not fetch offering")
		return
	}

	if err := h.offeringRepo.Finalize(c.Request.Context(), offering.ID, time.Now().UTC()); err != nil {
		respondDomainError(c, err, "could not finalize offering")
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"offering_id": offering.ID, "is_finalized": true})
}

// UpsertIdentifier godoc
// PUT /admin/offerings/:asset_id/identifiers
// Body: {"isin":"US0000000001","lei":null,"upi":"QZX123","cusip":null,
//
//	"clearstream_asset_id":"CS-991","euroclear_asset_id":null}
func (h *OfferingHandler) UpsertIdentifier(c *gin.Context) {
	assetID := c.Param("asset_id")

	var body struct {
		ISIN               *string `json:"isin"`
		LEI                *string `json:"lei"`
		UPI                *string `json:"upi"`
		CUSIP              *string `json:"cusip"`
		ClearstreamAssetID *string `json:"clearstream_asset_id"`
		EuroclearAssetID   *string `json:"euroclear_asset_id"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	now := time.Now().UTC()
	ident := &domain.Identifier{
		ID:                 uuid.New(),
		AssetID:            assetID,
		ISIN:               body.ISIN,
		LEI:                body.LEI,
		UPI:                body.UPI,
		CUSIP:              body.CUSIP,
		ClearstreamAssetID: body.ClearstreamAssetID,
		EuroclearAssetID:   body.EuroclearAssetID,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := h.offeringRepo.UpsertIdentifier(c.Request.Context(), ident); err != nil {
		respondDomainError(c, err, "could not register identifiers")
		return
	}
	respondSuccess(c, http.StatusOK, ident)
}

// GetIdentifier godoc
// GET /admin/offerings/:asset_id/identifiers
func (h *OfferingHandler) GetIdentifier(c *gin.Context) {
	ident, err := h.offeringRepo.GetIdentifier(c.Request.Context(), c.Param("asset_id"))
	if err != nil {
		respondDomainError(c, err, "could not fetch identifiers")
		return
	}
	respondSuccess(c, http.StatusOK, ident)
}

// Issue godoc
// POST /admin/issuances
// Body: {"investor_id":"uuid","asset_id":"DPO-BOND-1","amount":"1000",
//
//	"doc_ref":"SUBSCRIPTION-41","lockup_seconds":0,"custodial_account":"CSD-ACC-7"}
//
// Units for an unverified investor are withheld, not rejected; they release
// when the KYC callback resolves.
func (h *OfferingHandler) Issue(c *gin.Context) {
	var body struct {
		InvestorID       string `json:"investor_id"       binding:"required"`
		AssetID          string `json:"asset_id"          binding:"required"`
		Amount           string `json:"amount"            binding:"required"`
		DocRef           string `json:"doc_ref"           binding:"required"`
		LockupSeconds    int64  `json:"lockup_seconds"`
		CustodialAccount string `json:"custodial_account"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	investorID, err := uuid.Parse(body.InvestorID)
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "invalid investor_id format")
		return
	}
	amount, err := decimal.NewFromString(body.Amount)
	if err != nil || amount.LessThanOrEqual(decimal.Zero) {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_AMOUNT", "amount must be a positive decimal string")
		return
	}

	issuance, err := h.ledgerSvc.IssueTokens(c.Request.Context(), domain.IssueRequest{
		InvestorID:       investorID,
		AssetID:          body.AssetID,
		Amount:           amount,
		DocRef:           body.DocRef,
		LockupPeriod:     time.Duration(body.LockupSeconds) * time.Second,
		CustodialAccount: body.CustodialAccount,
	})
	if err != nil {
		respondDomainError(c, err, "could not issue units")
		return
	}
	respondSuccess(c, http.StatusCreated, issuance)
}
