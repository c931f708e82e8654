package handlers

import (
	"errors"
	"net/http"

	"tasset-backend/internal/clients"
	"tasset-backend/internal/repository"
	"tasset-backend/internal/services"

	"github.com/gin-gonic/gin"
)

// MintHandler exposes the mint request lifecycle over HTTP
type MintHandler struct {
	mintService *services.MintService
}

// NewMintHandler creates a new MintHandler instance
func NewMintHandler(mintService *services.MintService) *MintHandler {
	return &MintHandler{mintService: mintService}
}

// SubmitMintRequest is the retail submission payload. The wallet identity
// comes from the JWT, never the body.
type SubmitMintRequest struct {
	ChainName     string `json:"chain_name"`
	VaultID       string `json:"vault_id" binding:"required"`
	TxHash        string `json:"tx_hash" binding:"required"`
	Amount        string `json:"amount" binding:"required"`
	NativeAddress string `json:"native_address"`
}

// SubmitHandler handles POST /api/v1/mint/requests
func (h *MintHandler) SubmitHandler(c *gin.Context) {
	var req SubmitMintRequest
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

	record, created, err := h.mintService.SubmitMintRequest(c.Request.Context(), &services.SubmitMintInput{
		EVMAddress:    evmAddress,
		ChainName:     req.ChainName,
		ChainID:       chainID,
		VaultID:       req.VaultID,
		TxHash:        req.TxHash,
		ClaimedAmount: req.Amount,
		NativeAddress: req.NativeAddress,
	})
	if err != nil {
		respondMintError(c, err)
		return
	}

	status := http.StatusCreated
	if !created {
		// Same hash resubmitted: idempotent read of the existing record.
		status = http.StatusOK
	}
	c.JSON(status, gin.H{
		"success": true,
		"created": created,
		"request": record,
	})
}

// ListHandler handles GET /api/v1/mint/requests (the caller's own requests)
func (h *MintHandler) ListHandler(c *gin.Context) {
	evmAddress := c.GetString("user_address")

	requests, err := h.mintService.ListByAddress(c.Request.Context(), evmAddress)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Failed to list mint requests",
			"code":    "INTERNAL_ERROR",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"requests": requests,
		"count":    len(requests),
	})
}

// GetByTxHashHandler handles GET /api/v1/mint/requests/:txHash
func (h *MintHandler) GetByTxHashHandler(c *gin.Context) {
	txHash := c.Param("txHash")

	record, err := h.mintService.GetByTxHash(c.Request.Context(), txHash)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"error":   "No mint request for this transaction hash",
				"code":    "NOT_FOUND",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Failed to look up mint request",
			"code":    "INTERNAL_ERROR",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"request": record,
	})
}

// respondMintError maps service errors onto the API error contract
func respondMintError(c *gin.Context, err error) {
	var validationErr *services.ValidationError
	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   validationErr.Error(),
			"field":   validationErr.Field,
			"code":    "VALIDATION_FAILED",
		})
	case errors.Is(err, services.ErrUnknownVault):
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   err.Error(),
			"code":    "UNKNOWN_VAULT",
		})
	case errors.Is(err, clients.ErrInvalidTransaction):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"success": false,
			"error":   "Transaction could not be proven as a valid deposit",
			"message": err.Error(),
			"code":    "INVALID_TRANSACTION",
		})
	case errors.Is(err, clients.ErrProofUnavailable):
		c.JSON(http.StatusBadGateway, gin.H{
			"success": false,
			"error":   "Proof generation unavailable, please retry the submission",
			"message": err.Error(),
			"code":    "PROOF_UNAVAILABLE",
		})
	case errors.Is(err, clients.ErrTransactionNotFound),
		errors.Is(err, clients.ErrRecipientMismatch),
		errors.Is(err, clients.ErrInsufficientConfirmations):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"success": false,
			"error":   "Deposit transaction failed verification",
			"message": err.Error(),
			"code":    "VERIFICATION_FAILED",
		})
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   "Mint request not found",
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
