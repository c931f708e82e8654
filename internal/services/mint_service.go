package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"tasset-backend/internal/clients"
	"tasset-backend/internal/config"
	"tasset-backend/internal/metrics"
	"tasset-backend/internal/models"
	"tasset-backend/internal/repository"

	"github.com/sirupsen/logrus"
)

// MintService orchestrates the mint path: dedup, verify or prove, persist,
// admin whitelist gate, on-chain mint, terminal status.
type MintService struct {
	mintRepo repository.MintRequestRepository
	prover   TransactionProver
	verifier TransactionVerifier
	gateway  ContractGateway
	events   EventPublisher
	push     *PushService
	logger   *logrus.Logger
}

// NewMintService creates a new MintService instance. events and push may be
// nil; lifecycle notifications are best-effort.
func NewMintService(
	mintRepo repository.MintRequestRepository,
	prover TransactionProver,
	verifier TransactionVerifier,
	gateway ContractGateway,
	events EventPublisher,
	push *PushService,
	logger *logrus.Logger,
) *MintService {
	if logger == nil {
		logger = logrus.New()
	}
	return &MintService{
		mintRepo: mintRepo,
		prover:   prover,
		verifier: verifier,
		gateway:  gateway,
		events:   events,
		push:     push,
		logger:   logger,
	}
}

// SubmitMintInput carries everything a submission needs. Wallet identity is
// threaded explicitly; nothing is read from ambient request context.
type SubmitMintInput struct {
	EVMAddress    string
	ChainName     string
	ChainID       int
	VaultID       string
	TxHash        string
	ClaimedAmount string
	NativeAddress string // the native-chain address believed to have sent the deposit
}

func (in *SubmitMintInput) validate() error {
	switch {
	case in.EVMAddress == "":
		return &ValidationError{Field: "evm_address"}
	case in.ChainID == 0:
		return &ValidationError{Field: "chain_id"}
	case in.VaultID == "":
		return &ValidationError{Field: "vault_id"}
	case in.TxHash == "":
		return &ValidationError{Field: "tx_hash"}
	case in.ClaimedAmount == "":
		return &ValidationError{Field: "amount"}
	}
	if len(in.TxHash) < 16 {
		return &ValidationError{Field: "tx_hash", Message: "transaction hash is too short"}
	}
	return nil
}

// SubmitMintRequest runs the submission step. A hash that already has a
// record returns that record with created=false: an idempotent read, not an
// error, and never a second prover call. On proof failure nothing is
// persisted, so the user may resubmit the same hash.
func (s *MintService) SubmitMintRequest(ctx context.Context, input *SubmitMintInput) (*models.MintRequest, bool, error) {
	if err := input.validate(); err != nil {
		return nil, false, err
	}

	vault, ok := config.AppConfig.GetVault(input.VaultID)
	if !ok {
		return nil, false, fmt.Errorf("%w: %s", ErrUnknownVault, input.VaultID)
	}

	// Fast duplicate pre-check. The unique index on tx_hash remains the
	// source of truth for racing submissions.
	if existing, err := s.mintRepo.GetByTxHash(ctx, input.TxHash); err == nil {
		metrics.MintRequestsDuplicate.Inc()
		s.logger.WithFields(logrus.Fields{
			"tx_hash":    input.TxHash,
			"request_id": existing.ID,
		}).Info("Mint submission for already-used transaction hash, returning existing record")
		return existing, false, nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, false, fmt.Errorf("failed to check for existing mint request: %w", err)
	}

	request := &models.MintRequest{
		EVMAddress:  input.EVMAddress,
		ChainName:   input.ChainName,
		ChainID:     input.ChainID,
		VaultID:     input.VaultID,
		NativeChain: vault.NativeChain,
		TxHash:      input.TxHash,
		Status:      models.MintStatusVerified,
		RequestType: models.RequestTypeRetail,
	}

	start := time.Now()
	switch vault.Verification {
	case "proof":
		bundle, err := s.prover.ProveTransaction(ctx, vault.NativeChain, input.TxHash, input.EVMAddress)
		if err != nil {
			metrics.ProofGenerationDuration.WithLabelValues(vault.NativeChain, "error").Observe(time.Since(start).Seconds())
			metrics.MintRequestsSubmitted.WithLabelValues(input.VaultID, "proof_failed").Inc()
			return nil, false, err
		}
		metrics.ProofGenerationDuration.WithLabelValues(vault.NativeChain, "ok").Observe(time.Since(start).Seconds())

		proofJSON, err := json.Marshal(bundle)
		if err != nil {
			return nil, false, fmt.Errorf("failed to serialize proof bundle: %w", err)
		}
		request.NativeAddress = bundle.SenderAddress
		request.Amount = strconv.FormatUint(bundle.TotalAmount, 10)
		request.Proof = string(proofJSON)

	default:
		verification, err := s.verifier.VerifyTransaction(ctx, vault.NativeChain, input.TxHash, input.NativeAddress, vault.DepositAddress)
		if err != nil {
			metrics.MintRequestsSubmitted.WithLabelValues(input.VaultID, "verify_failed").Inc()
			return nil, false, err
		}
		request.NativeAddress = verification.FromAddress
		request.Amount = strconv.FormatUint(verification.Amount, 10)
		request.UTXO = verification.UTXO
	}

	if err := s.mintRepo.Create(ctx, request); err != nil {
		if errors.Is(err, repository.ErrDuplicateTransaction) {
			// Lost the race against a concurrent submission of the same
			// hash: the winner's record is the canonical one.
			metrics.MintRequestsDuplicate.Inc()
			if existing, lookupErr := s.mintRepo.GetByTxHash(ctx, input.TxHash); lookupErr == nil {
				return existing, false, nil
			}
			return nil, false, err
		}
		return nil, false, fmt.Errorf("failed to persist mint request: %w", err)
	}

	metrics.MintRequestsSubmitted.WithLabelValues(input.VaultID, "ok").Inc()
	s.logger.WithFields(logrus.Fields{
		"request_id": request.ID,
		"vault":      request.VaultID,
		"tx_hash":    request.TxHash,
		"amount":     request.Amount,
	}).Info("✅ Mint request verified and persisted")

	s.publish(clients.SubjectMintVerified, request)
	s.notify(request)
	return request, true, nil
}

// GetByTxHash returns the mint request for a native transaction hash.
func (s *MintService) GetByTxHash(ctx context.Context, txHash string) (*models.MintRequest, error) {
	return s.mintRepo.GetByTxHash(ctx, txHash)
}

// ListByAddress returns a user's mint requests, newest first.
func (s *MintService) ListByAddress(ctx context.Context, evmAddress string) ([]*models.MintRequest, error) {
	return s.mintRepo.FindByAddress(ctx, evmAddress)
}

// ListAll returns every mint request, newest first (admin view).
func (s *MintService) ListAll(ctx context.Context) ([]*models.MintRequest, error) {
	return s.mintRepo.FindAll(ctx)
}

// WhitelistMintRequest is the admin approval gate. It flips the whitelist
// flag and advances verified → whitelisted through the validated transition.
func (s *MintService) WhitelistMintRequest(ctx context.Context, id string) (*models.MintRequest, error) {
	request, err := s.mintRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !request.Status.CanTransition(models.MintStatusWhitelisted) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, request.Status, models.MintStatusWhitelisted)
	}

	if err := s.mintRepo.UpdateStatus(ctx, id, models.MintStatusWhitelisted, map[string]interface{}{
		"whitelisted": true,
	}); err != nil {
		return nil, err
	}

	updated, err := s.mintRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	s.logger.WithField("request_id", id).Info("✅ Mint request whitelisted by admin")
	s.publish(clients.SubjectMintWhitelisted, updated)
	s.notify(updated)
	return updated, nil
}

// RejectMintRequest is the admin decline. Allowed from any pre-minted state;
// deliberately distinct from a failed on-chain mint.
func (s *MintService) RejectMintRequest(ctx context.Context, id, reason string) (*models.MintRequest, error) {
	request, err := s.mintRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !request.Status.CanTransition(models.MintStatusRejected) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, request.Status, models.MintStatusRejected)
	}

	if err := s.mintRepo.UpdateStatus(ctx, id, models.MintStatusRejected, nil); err != nil {
		return nil, err
	}

	updated, err := s.mintRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"request_id": id,
		"reason":     reason,
	}).Warn("Mint request rejected by admin")
	s.notify(updated)
	return updated, nil
}

// ExecuteMint drives the on-chain mint for a verified, whitelisted request.
// The in-flight marker is written before broadcast so an interruption at any
// point leaves a reconcilable record. A wait interrupted after broadcast
// returns ErrMintInFlight and keeps the marker; it must not be read as
// failure, because the transaction may still confirm.
func (s *MintService) ExecuteMint(ctx context.Context, id string) (*models.MintRequest, error) {
	request, err := s.mintRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !request.ReadyToMint() {
		return nil, fmt.Errorf("%w: status=%s, whitelisted=%v", ErrNotReadyToMint, request.Status, request.Whitelisted)
	}
	if request.PendingMintTx != "" {
		return nil, fmt.Errorf("%w: tx %s", ErrMintInFlight, request.PendingMintTx)
	}

	vault, ok := config.AppConfig.GetVault(request.VaultID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVault, request.VaultID)
	}

	// In-flight marker before broadcast.
	request.PendingMintTx = models.PendingMintTxMarker
	if err := s.mintRepo.Update(ctx, request); err != nil {
		return nil, fmt.Errorf("failed to record in-flight marker: %w", err)
	}

	txHash, err := s.gateway.Mint(ctx, vault, request)
	if err != nil {
		return s.failMint(ctx, request, err)
	}

	// Broadcast succeeded: replace the marker with the real hash so a later
	// reconciliation can re-query it.
	request.PendingMintTx = txHash
	if err := s.mintRepo.Update(ctx, request); err != nil {
		s.logger.WithError(err).Error("Failed to record broadcast mint tx hash")
	}

	receipt, err := s.gateway.WaitForReceipt(ctx, vault.ChainID, txHash)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			s.logger.WithFields(logrus.Fields{
				"request_id": id,
				"tx_hash":    txHash,
			}).Warn("Mint receipt wait interrupted, leaving in-flight marker for reconciliation")
			return nil, fmt.Errorf("%w: %s", ErrMintInFlight, txHash)
		}
		return s.failMint(ctx, request, err)
	}

	return s.settleMint(ctx, request, vault, receipt)
}

// ReconcileMint re-queries an in-flight mint transaction and settles the
// request. Used after a crash or disconnect between broadcast and receipt.
func (s *MintService) ReconcileMint(ctx context.Context, id string) (*models.MintRequest, error) {
	request, err := s.mintRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if request.Status.IsTerminal() || request.PendingMintTx == "" {
		return nil, ErrNothingToReconcile
	}

	// Marked in-flight but never broadcast: clear the marker and return the
	// request to its ready state.
	if request.PendingMintTx == models.PendingMintTxMarker {
		request.PendingMintTx = ""
		if err := s.mintRepo.Update(ctx, request); err != nil {
			return nil, err
		}
		return request, nil
	}

	vault, ok := config.AppConfig.GetVault(request.VaultID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVault, request.VaultID)
	}

	receipt, err := s.gateway.WaitForReceipt(ctx, vault.ChainID, request.PendingMintTx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s", ErrMintInFlight, request.PendingMintTx)
		}
		return nil, err
	}

	return s.settleMint(ctx, request, vault, receipt)
}

// settleMint applies the receipt outcome: minted with the confirmed link, or
// mint_failed with the revert reason. mint_tx_link stays unset on failure.
func (s *MintService) settleMint(ctx context.Context, request *models.MintRequest, vault *config.VaultConfig, receipt *ReceiptResult) (*models.MintRequest, error) {
	if receipt.Success {
		if err := s.mintRepo.UpdateStatus(ctx, request.ID, models.MintStatusMinted, map[string]interface{}{
			"mint_tx_link":    receipt.TxHash,
			"pending_mint_tx": "",
		}); err != nil {
			return nil, err
		}

		updated, err := s.mintRepo.GetByID(ctx, request.ID)
		if err != nil {
			return nil, err
		}

		metrics.MintExecutions.WithLabelValues(request.VaultID, "ok").Inc()
		s.logger.WithFields(logrus.Fields{
			"request_id": request.ID,
			"tx_hash":    receipt.TxHash,
			"block":      receipt.BlockNumber,
		}).Info("✅ Mint confirmed on-chain")
		s.publish(clients.SubjectMintCompleted, updated)
		s.notify(updated)
		return updated, nil
	}

	return s.failMint(ctx, request, &ContractCallError{TxHash: receipt.TxHash, Reason: receipt.RevertReason})
}

// failMint records an execution failure. This is mint_failed, never
// rejected: rejection is reserved for admin decisions.
func (s *MintService) failMint(ctx context.Context, request *models.MintRequest, cause error) (*models.MintRequest, error) {
	message := "mint execution failed"
	var callErr *ContractCallError
	if errors.As(cause, &callErr) && callErr.Reason != "" {
		message = callErr.Reason
	} else if cause != nil {
		message = cause.Error()
	}

	if err := s.mintRepo.UpdateStatus(ctx, request.ID, models.MintStatusMintFailed, map[string]interface{}{
		"mint_error":      message,
		"pending_mint_tx": "",
	}); err != nil {
		return nil, err
	}

	updated, err := s.mintRepo.GetByID(ctx, request.ID)
	if err != nil {
		return nil, err
	}

	metrics.MintExecutions.WithLabelValues(request.VaultID, "failed").Inc()
	s.logger.WithFields(logrus.Fields{
		"request_id": request.ID,
		"error":      message,
	}).Error("❌ Mint execution failed")
	s.publish(clients.SubjectMintFailed, updated)
	s.notify(updated)
	return updated, cause
}

func (s *MintService) publish(subject string, request *models.MintRequest) {
	if s.events == nil {
		return
	}
	s.events.PublishLifecycleEvent(subject, &clients.LifecycleEvent{
		RequestID:  request.ID,
		EVMAddress: request.EVMAddress,
		VaultID:    request.VaultID,
		Status:     string(request.Status),
		TxHash:     request.TxHash,
	})
}

func (s *MintService) notify(request *models.MintRequest) {
	if s.push == nil {
		return
	}
	s.push.PushStatusUpdate(request.EVMAddress, "mint_request", request)
}
