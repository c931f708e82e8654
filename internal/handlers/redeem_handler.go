package handlers

import (
	"errors"
	"net/http"

	"tasset-backend/internal/repository"
	"tasset-backend/internal/services"

	"github.com/gin-gonic/gin"
)

// RedeemHandler exposes the redeem request lifecycle over HTTP
type RedeemHandler struct {
	redeemService *services.RedeemService
}

// NewRedeemHandler creates a new RedeemHandler instance
func NewRedeemHandler(redeemService *services.RedeemService) *RedeemHandler {
	return &RedeemHandler{redeemService: redeemService}
}

// SubmitRedeemRequest is the redeem submission payload. BurnTxHash is the
// already-confirmed EVM burn; NativeAddress is optional and resolved from
// mint history when empty.
type SubmitRedeemRequest struct {
	ChainName     string `json:"chain_name"`
	VaultID       string `json:"vault_id" binding:"required"`
	Asset         string `json:"asset" binding:"required"`
	Amount        string `json:"amount" binding:"required"`
	BurnTxHash    string `json:"burn_tx_hash" binding:"required"`
	NativeAddress string `json:"native_address"`
}

// SubmitHandler handles POST /api/v1/redeem/requests
func (h *RedeemHandler) SubmitHandler(c *gin.Context) {
	var req SubmitRedeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid request body",
			"message": err.Error(),
			"code":    "INVALID_REQUEST",
		})
		return
	}

	evmAddress := c.GetString("user_address")
	chainID := c.GetInt("chain_id")

	record, err := h.redeemService.SubmitRedeemRequest(c.Request.Context(), &services.SubmitRedeemInput{
		EVMAddress:    evmAddress,
		ChainName:     req.ChainName,
		ChainID:       chainID,
		VaultID:       req.VaultID,
		Asset:         req.Asset,
		Amount:        req.Amount,
		BurnTxHash:    req.BurnTxHash,
		NativeAddress: req.NativeAddress,
	})
	if err != nil {
		respondRedeemError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"request": record,
	})
}

// ListHandler handles GET /api/v1/redeem/requests?vault_id=
func (h *RedeemHandler) ListHandler(c *gin.Context) {
	evmAddress := c.GetString("user_address")
	vaultFilter := c.Query("vault_id")

	views, err := h.redeemService.ListByAddress(c.Request.Context(), evmAddress, vaultFilter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Failed to list redeem requests",
			"code":    "INTERNAL_ERROR",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"requests": views,
		"count":    len(views),
	})
}

// NativeAddressHandler handles GET /api/v1/redeem/native-address?vault_id=.
// The frontend pre-fills the settlement destination with this before the
// user submits a redeem.
func (h *RedeemHandler) NativeAddressHandler(c *gin.Context) {
	vaultID := c.Query("vault_id")
	if vaultID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "vault_id query parameter is required",
			"code":    "VALIDATION_FAILED",
		})
		return
	}

	evmAddress := c.GetString("user_address")
	address, err := h.redeemService.ResolveNativeAddress(c.Request.Context(), evmAddress, vaultID)
	if err != nil {
		if errors.Is(err, services.ErrMissingNativeAddress) {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"error":   "No native address on record for this vault",
				"message": err.Error(),
				"code":    "NO_NATIVE_ADDRESS",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Failed to resolve native address",
			"code":    "INTERNAL_ERROR",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"native_address": address,
	})
}

// respondRedeemError maps service errors onto the API error contract
func respondRedeemError(c *gin.Context, err error) {
	var validationErr *services.ValidationError
	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   validationErr.Error(),
			"field":   validationErr.Field,
			"code":    "VALIDATION_FAILED",
		})
	case errors.Is(err, services.ErrInvalidBurnHash):
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   err.Error(),
			"code":    "INVALID_BURN_HASH",
		})
	case errors.Is(err, services.ErrUnknownVault):
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   err.Error(),
			"code":    "UNKNOWN_VAULT",
		})
	case errors.Is(err, services.ErrAlreadyRedeemed):
		c.JSON(http.StatusConflict, gin.H{
			"success": false,
			"error":   "This burn transaction was already redeemed",
			"message": err.Error(),
			"code":    "ALREADY_REDEEMED",
		})
	case errors.Is(err, services.ErrMissingNativeAddress):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"success": false,
			"error":   "No native address available; provide one or mint first",
			"message": err.Error(),
			"code":    "NO_NATIVE_ADDRESS",
		})
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   "Redeem request not found",
			"code":    "NOT_FOUND",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Internal error",
			"message": err.Error(),
			"code":    "INTERNAL_ERROR",
		})
	}
}
