package handlers

import (
	"errors"
	"net/http"

	"tasset-backend/internal/models"
	"tasset-backend/internal/repository"
	"tasset-backend/internal/services"

	"github.com/gin-gonic/gin"
)

// AdminHandler exposes the operator lifecycle actions: the whitelist gate,
// mint execution, reconciliation and settlement updates.
type AdminHandler struct {
	mintService   *services.MintService
	redeemService *services.RedeemService
}

// NewAdminHandler creates a new AdminHandler instance
func NewAdminHandler(mintService *services.MintService, redeemService *services.RedeemService) *AdminHandler {
	return &AdminHandler{
		mintService:   mintService,
		redeemService: redeemService,
	}
}

// ListMintRequestsHandler handles GET /admin/mint/requests
func (h *AdminHandler) ListMintRequestsHandler(c *gin.Context) {
	requests, err := h.mintService.ListAll(c.Request.Context())
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

// WhitelistHandler handles POST /admin/mint/requests/:id/whitelist
func (h *AdminHandler) WhitelistHandler(c *gin.Context) {
	id := c.Param("id")

	record, err := h.mintService.WhitelistMintRequest(c.Request.Context(), id)
	if err != nil {
		respondAdminError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"request": record,
	})
}

// RejectRequest carries the optional operator note for a rejection
type RejectRequest struct {
	Reason string `json:"reason"`
}

// RejectHandler handles POST /admin/mint/requests/:id/reject
func (h *AdminHandler) RejectHandler(c *gin.Context) {
	id := c.Param("id")

	var req RejectRequest
	c.ShouldBindJSON(&req) // body is optional

	record, err := h.mintService.RejectMintRequest(c.Request.Context(), id, req.Reason)
	if err != nil {
		respondAdminError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"request": record,
	})
}

// ExecuteMintHandler handles POST /admin/mint/requests/:id/execute. The
// response distinguishes a failed mint from an in-flight one: in-flight
// returns 202 and the record must be reconciled, not retried.
func (h *AdminHandler) ExecuteMintHandler(c *gin.Context) {
	id := c.Param("id")

	record, err := h.mintService.ExecuteMint(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrMintInFlight) {
			c.JSON(http.StatusAccepted, gin.H{
				"success": false,
				"error":   "Mint transaction broadcast, receipt pending",
				"message": err.Error(),
				"code":    "MINT_IN_FLIGHT",
			})
			return
		}
		var callErr *services.ContractCallError
		if errors.As(err, &callErr) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"success": false,
				"error":   "Mint execution failed on-chain",
				"message": callErr.Error(),
				"request": record,
				"code":    "MINT_FAILED",
			})
			return
		}
		respondAdminError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"request": record,
	})
}

// ReconcileMintHandler handles POST /admin/mint/requests/:id/reconcile
func (h *AdminHandler) ReconcileMintHandler(c *gin.Context) {
	id := c.Param("id")

	record, err := h.mintService.ReconcileMint(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrNothingToReconcile) {
			c.JSON(http.StatusConflict, gin.H{
				"success": false,
				"error":   err.Error(),
				"code":    "NOTHING_TO_RECONCILE",
			})
			return
		}
		if errors.Is(err, services.ErrMintInFlight) {
			c.JSON(http.StatusAccepted, gin.H{
				"success": false,
				"error":   "Transaction still unconfirmed, retry reconciliation later",
				"message": err.Error(),
				"code":    "MINT_IN_FLIGHT",
			})
			return
		}
		var callErr *services.ContractCallError
		if errors.As(err, &callErr) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"success": false,
				"error":   "Mint execution failed on-chain",
				"message": callErr.Error(),
				"request": record,
				"code":    "MINT_FAILED",
			})
			return
		}
		respondAdminError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"request": record,
	})
}

// ListRedeemRequestsHandler handles GET /admin/redeem/requests?status=
func (h *AdminHandler) ListRedeemRequestsHandler(c *gin.Context) {
	statusFilter := c.Query("status")
	if statusFilter == "" {
		statusFilter = string(models.RedeemStatusPending)
	}

	views, err := h.redeemService.ListByStatus(c.Request.Context(), models.RedeemStatus(statusFilter))
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

// SettlementRequest is the manual settlement update payload
type SettlementRequest struct {
	Status          string `json:"status" binding:"required"`
	NativeTxID      string `json:"native_tx_id"`
	SettlementError string `json:"settlement_error"`
}

// UpdateSettlementHandler handles POST /admin/redeem/requests/:id/settlement,
// the operator fallback for when the settlement processor is down.
func (h *AdminHandler) UpdateSettlementHandler(c *gin.Context) {
	id := c.Param("id")

	var req SettlementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid request body",
			"message": err.Error(),
			"code":    "INVALID_REQUEST",
		})
		return
	}

	record, err := h.redeemService.UpdateSettlement(
		c.Request.Context(), id, models.RedeemStatus(req.Status), req.NativeTxID, req.SettlementError)
	if err != nil {
		respondAdminError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"request": record,
	})
}

// respondAdminError maps lifecycle errors onto the admin API error contract
func respondAdminError(c *gin.Context, err error) {
	var validationErr *services.ValidationError
	switch {
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   "Request not found",
			"code":    "NOT_FOUND",
		})
	case errors.Is(err, services.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{
			"success": false,
			"error":   err.Error(),
			"code":    "INVALID_TRANSITION",
		})
	case errors.Is(err, services.ErrNotReadyToMint):
		c.JSON(http.StatusConflict, gin.H{
			"success": false,
			"error":   err.Error(),
			"code":    "NOT_READY_TO_MINT",
		})
	case errors.Is(err, services.ErrUnknownVault):
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   err.Error(),
			"code":    "UNKNOWN_VAULT",
		})
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   validationErr.Error(),
			"field":   validationErr.Field,
			"code":    "VALIDATION_FAILED",
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
