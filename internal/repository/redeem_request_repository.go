package repository

import (
	"context"
	"errors"
	"fmt"
	"log"

	"tasset-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RedeemRequestRepository defines the interface for RedeemRequest data access
type RedeemRequestRepository interface {
	Create(ctx context.Context, request *models.RedeemRequest) error
	GetByID(ctx context.Context, id string) (*models.RedeemRequest, error)
	GetByBurnTxHash(ctx context.Context, burnTxHash string) (*models.RedeemRequest, error)
	FindByAddress(ctx context.Context, evmAddress, vaultFilter string) ([]*models.RedeemRequest, error)
	FindByStatus(ctx context.Context, status models.RedeemStatus) ([]*models.RedeemRequest, error)
	UpdateSettlement(ctx context.Context, id string, status models.RedeemStatus, nativeTxID, settlementError string) error
}

// redeemRequestRepository implements RedeemRequestRepository
type redeemRequestRepository struct {
	db *gorm.DB
}

// NewRedeemRequestRepository creates a new RedeemRequestRepository instance
func NewRedeemRequestRepository(db *gorm.DB) RedeemRequestRepository {
	return &redeemRequestRepository{db: db}
}

// Create inserts a new redeem request. The unique index on burn_tx_hash is
// the source of truth for duplicate burns; a constraint violation becomes
// ErrDuplicateBurnTransaction.
func (r *redeemRequestRepository) Create(ctx context.Context, request *models.RedeemRequest) error {
	if request.ID == "" {
		request.ID = uuid.New().String()
	}
	if request.Status == "" {
		request.Status = models.RedeemStatusPending
	}

	err := r.db.WithContext(ctx).Create(request).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateBurnTransaction
	}
	return err
}

// GetByID retrieves a redeem request by ID
func (r *redeemRequestRepository) GetByID(ctx context.Context, id string) (*models.RedeemRequest, error) {
	var request models.RedeemRequest
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&request).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &request, nil
}

// GetByBurnTxHash retrieves a redeem request by its burn transaction hash
func (r *redeemRequestRepository) GetByBurnTxHash(ctx context.Context, burnTxHash string) (*models.RedeemRequest, error) {
	var request models.RedeemRequest
	err := r.db.WithContext(ctx).Where("burn_tx_hash = ?", burnTxHash).First(&request).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &request, nil
}

// FindByAddress finds redeem requests for an EVM address, newest first,
// optionally filtered to a single vault.
func (r *redeemRequestRepository) FindByAddress(ctx context.Context, evmAddress, vaultFilter string) ([]*models.RedeemRequest, error) {
	query := r.db.WithContext(ctx).Where("evm_address = ?", evmAddress)
	if vaultFilter != "" {
		query = query.Where("vault_id = ?", vaultFilter)
	}

	var requests []*models.RedeemRequest
	err := query.Order("created_at DESC").Find(&requests).Error
	return requests, err
}

// FindByStatus finds redeem requests by status, oldest first so the
// settlement backlog is worked through in order.
func (r *redeemRequestRepository) FindByStatus(ctx context.Context, status models.RedeemStatus) ([]*models.RedeemRequest, error) {
	var requests []*models.RedeemRequest
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at ASC").
		Find(&requests).Error
	return requests, err
}

// UpdateSettlement advances the settlement status. Completed/failed are
// terminal; the WHERE clause keeps a late update from resurrecting them.
func (r *redeemRequestRepository) UpdateSettlement(ctx context.Context, id string, status models.RedeemStatus, nativeTxID, settlementError string) error {
	updates := map[string]interface{}{
		"status": status,
	}
	if nativeTxID != "" {
		updates["native_tx_id"] = nativeTxID
	}
	if settlementError != "" {
		updates["settlement_error"] = settlementError
	}

	result := r.db.WithContext(ctx).
		Model(&models.RedeemRequest{}).
		Where("id = ? AND status NOT IN ?", id, []models.RedeemStatus{
			models.RedeemStatusCompleted,
			models.RedeemStatusFailed,
		}).
		Updates(updates)

	if result.Error != nil {
		log.Printf("❌ [UpdateSettlement] Database error for redeem request %s: %v", id, result.Error)
		return fmt.Errorf("failed to update settlement status: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		log.Printf("⚠️ [UpdateSettlement] Redeem request %s already in terminal status, skipping update to %s", id, status)
		return nil
	}

	log.Printf("✅ [UpdateSettlement] Updated redeem request %s: status=%s", id, status)
	return nil
}
