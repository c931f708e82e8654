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

// MintRequestRepository defines the interface for MintRequest data access
type MintRequestRepository interface {
	// Basic CRUD operations
	Create(ctx context.Context, request *models.MintRequest) error
	GetByID(ctx context.Context, id string) (*models.MintRequest, error)
	GetByTxHash(ctx context.Context, txHash string) (*models.MintRequest, error)
	Update(ctx context.Context, request *models.MintRequest) error

	// Query methods
	FindByAddress(ctx context.Context, evmAddress string) ([]*models.MintRequest, error)
	FindAll(ctx context.Context) ([]*models.MintRequest, error)
	FindByStatus(ctx context.Context, status models.MintStatus) ([]*models.MintRequest, error)
	LatestByAddressAndVault(ctx context.Context, evmAddress, vaultID string) (*models.MintRequest, error)

	// Status updates
	UpdateStatus(ctx context.Context, id string, status models.MintStatus, fields map[string]interface{}) error
	SetWhitelisted(ctx context.Context, id string, whitelisted bool) error
}

// mintRequestRepository implements MintRequestRepository
type mintRequestRepository struct {
	db *gorm.DB
}

// NewMintRequestRepository creates a new MintRequestRepository instance
func NewMintRequestRepository(db *gorm.DB) MintRequestRepository {
	return &mintRequestRepository{db: db}
}

// Create inserts a new mint request. A unique index on tx_hash backs the
// caller's duplicate pre-check; a constraint violation is translated into
// ErrDuplicateTransaction so racing submissions fail typed, not generic.
func (r *mintRequestRepository) Create(ctx context.Context, request *models.MintRequest) error {
	if request.ID == "" {
		request.ID = uuid.New().String()
	}
	if request.Status == "" {
		request.Status = models.MintStatusPending
	}
	if request.RequestType == "" {
		request.RequestType = models.RequestTypeRetail
	}

	err := r.db.WithContext(ctx).Create(request).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateTransaction
	}
	return err
}

// GetByID retrieves a mint request by ID
func (r *mintRequestRepository) GetByID(ctx context.Context, id string) (*models.MintRequest, error) {
	var request models.MintRequest
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&request).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &request, nil
}

// GetByTxHash retrieves a mint request by its native transaction hash
func (r *mintRequestRepository) GetByTxHash(ctx context.Context, txHash string) (*models.MintRequest, error) {
	var request models.MintRequest
	err := r.db.WithContext(ctx).Where("tx_hash = ?", txHash).First(&request).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &request, nil
}

// Update saves the full record. Last write wins for concurrent updates to
// the same request; status progression is protected by UpdateStatus instead.
func (r *mintRequestRepository) Update(ctx context.Context, request *models.MintRequest) error {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.MintRequest{}).
		Where("id = ?", request.ID).
		Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrNotFound
	}
	return r.db.WithContext(ctx).Save(request).Error
}

// FindByAddress finds mint requests for an EVM address, newest first
func (r *mintRequestRepository) FindByAddress(ctx context.Context, evmAddress string) ([]*models.MintRequest, error) {
	var requests []*models.MintRequest
	err := r.db.WithContext(ctx).
		Where("evm_address = ?", evmAddress).
		Order("created_at DESC").
		Find(&requests).Error
	return requests, err
}

// FindAll returns every mint request, newest first (admin view)
func (r *mintRequestRepository) FindAll(ctx context.Context) ([]*models.MintRequest, error) {
	var requests []*models.MintRequest
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Find(&requests).Error
	return requests, err
}

// FindByStatus finds mint requests by status, newest first
func (r *mintRequestRepository) FindByStatus(ctx context.Context, status models.MintStatus) ([]*models.MintRequest, error) {
	var requests []*models.MintRequest
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at DESC").
		Find(&requests).Error
	return requests, err
}

// LatestByAddressAndVault returns the most recently created mint request for
// (address, vault). Absence is ErrNotFound: the redeem flow needs to tell
// "no prior mint" apart from a storage failure.
func (r *mintRequestRepository) LatestByAddressAndVault(ctx context.Context, evmAddress, vaultID string) (*models.MintRequest, error) {
	var request models.MintRequest
	err := r.db.WithContext(ctx).
		Where("evm_address = ? AND vault_id = ?", evmAddress, vaultID).
		Order("created_at DESC").
		First(&request).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &request, nil
}

// UpdateStatus moves a request to a new status along with extra fields,
// guarded so a terminal status is never overwritten (optimistic locking via
// the WHERE clause, same row is never moved backwards by a racing update).
func (r *mintRequestRepository) UpdateStatus(ctx context.Context, id string, status models.MintStatus, fields map[string]interface{}) error {
	updates := map[string]interface{}{
		"status": status,
	}
	for k, v := range fields {
		updates[k] = v
	}

	result := r.db.WithContext(ctx).
		Model(&models.MintRequest{}).
		Where("id = ? AND status NOT IN ?", id, []models.MintStatus{
			models.MintStatusMinted,
			models.MintStatusRejected,
			models.MintStatusMintFailed,
		}).
		Updates(updates)

	if result.Error != nil {
		log.Printf("❌ [UpdateStatus] Database error for mint request %s: %v", id, result.Error)
		return fmt.Errorf("failed to update mint request status: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		// Either the row does not exist or it already reached a terminal
		// status. Disambiguate so the caller gets a usable error.
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		log.Printf("⚠️ [UpdateStatus] Mint request %s already in terminal status, skipping update to %s", id, status)
		return nil
	}

	log.Printf("✅ [UpdateStatus] Updated mint request %s: status=%s", id, status)
	return nil
}

// SetWhitelisted flips the admin whitelist flag
func (r *mintRequestRepository) SetWhitelisted(ctx context.Context, id string, whitelisted bool) error {
	result := r.db.WithContext(ctx).
		Model(&models.MintRequest{}).
		Where("id = ?", id).
		Update("whitelisted", whitelisted)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
