package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tasset-backend/internal/clients"
	"tasset-backend/internal/config"
	"tasset-backend/internal/metrics"
	"tasset-backend/internal/models"
	"tasset-backend/internal/repository"

	"github.com/sirupsen/logrus"
)

// RedeemService orchestrates the redeem path: native address resolution,
// burn recording, and settlement tracking. Settlement execution itself is an
// external process that reports back through UpdateSettlement.
type RedeemService struct {
	redeemRepo repository.RedeemRequestRepository
	mintRepo   repository.MintRequestRepository
	events     EventPublisher
	push       *PushService
	logger     *logrus.Logger
}

// NewRedeemService creates a new RedeemService instance
func NewRedeemService(
	redeemRepo repository.RedeemRequestRepository,
	mintRepo repository.MintRequestRepository,
	events EventPublisher,
	push *PushService,
	logger *logrus.Logger,
) *RedeemService {
	if logger == nil {
		logger = logrus.New()
	}
	return &RedeemService{
		redeemRepo: redeemRepo,
		mintRepo:   mintRepo,
		events:     events,
		push:       push,
		logger:     logger,
	}
}

// SubmitRedeemInput carries a redeem submission. NativeAddress is optional;
// when empty it is resolved from the user's most recent mint request.
type SubmitRedeemInput struct {
	EVMAddress    string
	ChainName     string
	ChainID       int
	VaultID       string
	Asset         string
	Amount        string
	BurnTxHash    string
	NativeAddress string
}

func (in *SubmitRedeemInput) validate() error {
	switch {
	case in.EVMAddress == "":
		return &ValidationError{Field: "evm_address"}
	case in.ChainID == 0:
		return &ValidationError{Field: "chain_id"}
	case in.VaultID == "":
		return &ValidationError{Field: "vault_id"}
	case in.Asset == "":
		return &ValidationError{Field: "asset"}
	case in.Amount == "":
		return &ValidationError{Field: "amount"}
	case in.BurnTxHash == "":
		return &ValidationError{Field: "burn_tx_hash"}
	}
	return nil
}

// validateBurnHash is the shape sanity check for an EVM burn tx hash.
func validateBurnHash(hash string) error {
	if !strings.HasPrefix(hash, "0x") || len(hash) < 66 {
		return fmt.Errorf("%w: %q", ErrInvalidBurnHash, hash)
	}
	return nil
}

// ResolveNativeAddress returns the native recipient for (address, vault):
// the native address of the most recent mint request, or the vault's
// configured institutional fallback. Absence of both is the user-visible
// "no prior mint" condition; it blocks only the redeem submission step.
func (s *RedeemService) ResolveNativeAddress(ctx context.Context, evmAddress, vaultID string) (string, error) {
	latest, err := s.mintRepo.LatestByAddressAndVault(ctx, evmAddress, vaultID)
	if err == nil {
		return latest.NativeAddress, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return "", fmt.Errorf("failed to look up prior mint request: %w", err)
	}

	if vault, ok := config.AppConfig.GetVault(vaultID); ok && vault.InstitutionalAddress != "" {
		return vault.InstitutionalAddress, nil
	}
	return "", fmt.Errorf("%w: address=%s vault=%s", ErrMissingNativeAddress, evmAddress, vaultID)
}

// SubmitRedeemRequest records a confirmed burn and schedules settlement.
// The burn hash is validated and deduplicated first; the unique index on
// burn_tx_hash is the source of truth under races.
func (s *RedeemService) SubmitRedeemRequest(ctx context.Context, input *SubmitRedeemInput) (*models.RedeemRequest, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	if err := validateBurnHash(input.BurnTxHash); err != nil {
		return nil, err
	}
	if _, ok := config.AppConfig.GetVault(input.VaultID); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVault, input.VaultID)
	}

	if _, err := s.redeemRepo.GetByBurnTxHash(ctx, input.BurnTxHash); err == nil {
		metrics.RedeemRequestsSubmitted.WithLabelValues(input.VaultID, "duplicate").Inc()
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRedeemed, input.BurnTxHash)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to check for existing redeem request: %w", err)
	}

	nativeAddress := input.NativeAddress
	if nativeAddress == "" {
		resolved, err := s.ResolveNativeAddress(ctx, input.EVMAddress, input.VaultID)
		if err != nil {
			return nil, err
		}
		nativeAddress = resolved
	}

	request := &models.RedeemRequest{
		EVMAddress:    input.EVMAddress,
		ChainName:     input.ChainName,
		ChainID:       input.ChainID,
		VaultID:       input.VaultID,
		Asset:         input.Asset,
		Amount:        input.Amount,
		BurnTxHash:    input.BurnTxHash,
		NativeAddress: nativeAddress,
		Status:        models.RedeemStatusPending,
	}

	if err := s.redeemRepo.Create(ctx, request); err != nil {
		if errors.Is(err, repository.ErrDuplicateBurnTransaction) {
			metrics.RedeemRequestsSubmitted.WithLabelValues(input.VaultID, "duplicate").Inc()
			return nil, fmt.Errorf("%w: %s", ErrAlreadyRedeemed, input.BurnTxHash)
		}
		return nil, fmt.Errorf("failed to persist redeem request: %w", err)
	}

	metrics.RedeemRequestsSubmitted.WithLabelValues(input.VaultID, "ok").Inc()
	s.logger.WithFields(logrus.Fields{
		"request_id":     request.ID,
		"vault":          request.VaultID,
		"burn_tx_hash":   request.BurnTxHash,
		"native_address": request.NativeAddress,
	}).Info("✅ Redeem request recorded, settlement scheduled")

	if s.events != nil {
		s.events.PublishLifecycleEvent(clients.SubjectRedeemCreated, &clients.LifecycleEvent{
			RequestID:  request.ID,
			EVMAddress: request.EVMAddress,
			VaultID:    request.VaultID,
			Status:     string(request.Status),
			TxHash:     request.BurnTxHash,
		})
	}
	if s.push != nil {
		s.push.PushStatusUpdate(request.EVMAddress, "redeem_request", request)
	}
	return request, nil
}

// RedeemRequestView is a redeem request with the derived settlement
// presentation values. Remaining time is computed, never stored; an overdue
// pending request is flagged for escalation, not auto-failed.
type RedeemRequestView struct {
	*models.RedeemRequest
	DaysRemaining int  `json:"days_remaining"`
	Overdue       bool `json:"overdue"`
}

// ListByAddress returns a user's redeem requests, newest first, optionally
// filtered by vault, with derived days-remaining/overdue indicators.
func (s *RedeemService) ListByAddress(ctx context.Context, evmAddress, vaultFilter string) ([]*RedeemRequestView, error) {
	requests, err := s.redeemRepo.FindByAddress(ctx, evmAddress, vaultFilter)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	views := make([]*RedeemRequestView, 0, len(requests))
	for _, request := range requests {
		views = append(views, newRedeemView(request, now))
	}
	return views, nil
}

// ListByStatus returns the backlog for a status, oldest first, with the same
// derived view (admin queue).
func (s *RedeemService) ListByStatus(ctx context.Context, status models.RedeemStatus) ([]*RedeemRequestView, error) {
	requests, err := s.redeemRepo.FindByStatus(ctx, status)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	views := make([]*RedeemRequestView, 0, len(requests))
	for _, request := range requests {
		views = append(views, newRedeemView(request, now))
	}
	return views, nil
}

func newRedeemView(request *models.RedeemRequest, now time.Time) *RedeemRequestView {
	view := &RedeemRequestView{RedeemRequest: request}
	if request.Status.IsTerminal() {
		return view
	}
	remaining, overdue := request.RemainingSettlement(now)
	view.Overdue = overdue
	if !overdue {
		// Round up so a request due in one hour still shows one day left.
		view.DaysRemaining = int((remaining + 24*time.Hour - 1) / (24 * time.Hour))
	}
	return view
}

// UpdateSettlement is the path the external settlement process reports
// through. Transitions are monotonic; completed and failed are terminal.
// Completion requires the native settlement transaction id.
func (s *RedeemService) UpdateSettlement(ctx context.Context, id string, status models.RedeemStatus, nativeTxID, settlementError string) (*models.RedeemRequest, error) {
	request, err := s.redeemRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !request.Status.CanTransition(status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, request.Status, status)
	}
	if status == models.RedeemStatusCompleted && nativeTxID == "" {
		return nil, &ValidationError{Field: "native_tx_id", Message: "required to complete settlement"}
	}

	if err := s.redeemRepo.UpdateSettlement(ctx, id, status, nativeTxID, settlementError); err != nil {
		return nil, err
	}

	updated, err := s.redeemRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	metrics.SettlementUpdates.WithLabelValues(string(status)).Inc()
	s.logger.WithFields(logrus.Fields{
		"request_id":   id,
		"status":       status,
		"native_tx_id": nativeTxID,
	}).Info("Settlement status updated")

	if s.events != nil && status.IsTerminal() {
		s.events.PublishLifecycleEvent(clients.SubjectRedeemSettled, &clients.LifecycleEvent{
			RequestID:  updated.ID,
			EVMAddress: updated.EVMAddress,
			VaultID:    updated.VaultID,
			Status:     string(updated.Status),
			TxHash:     updated.NativeTxID,
		})
	}
	if s.push != nil {
		s.push.PushStatusUpdate(updated.EVMAddress, "redeem_request", updated)
	}
	return updated, nil
}

// UpdateSettlementByBurnHash resolves the request by burn hash first; used
// by the NATS settlement subscriber, which keys on the burn transaction.
func (s *RedeemService) UpdateSettlementByBurnHash(ctx context.Context, burnTxHash string, status models.RedeemStatus, nativeTxID, settlementError string) (*models.RedeemRequest, error) {
	request, err := s.redeemRepo.GetByBurnTxHash(ctx, burnTxHash)
	if err != nil {
		return nil, err
	}
	return s.UpdateSettlement(ctx, request.ID, status, nativeTxID, settlementError)
}

// CountOverdue returns how many pending requests are past the SLA, for the
// escalation gauge.
func (s *RedeemService) CountOverdue(ctx context.Context) (int, error) {
	pending, err := s.redeemRepo.FindByStatus(ctx, models.RedeemStatusPending)
	if err != nil {
		return 0, err
	}

	now := time.Now()
	overdue := 0
	for _, request := range pending {
		if _, late := request.RemainingSettlement(now); late {
			overdue++
		}
	}
	return overdue, nil
}
