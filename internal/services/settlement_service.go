package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"tasset-backend/internal/clients"
	"tasset-backend/internal/config"
	"tasset-backend/internal/metrics"
	"tasset-backend/internal/models"
	"tasset-backend/internal/repository"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// EventSubscriber receives messages from the external settlement processor.
// Implemented by clients.NATSClient.
type EventSubscriber interface {
	Subscribe(subject string, handler func(data []byte)) (*nats.Subscription, error)
}

// SettlementUpdateMessage is the payload the settlement processor publishes
// when it progresses a redeem. Updates are keyed by the burn transaction hash
// because the processor never sees internal request ids.
type SettlementUpdateMessage struct {
	BurnTxHash      string `json:"burn_tx_hash"`
	Status          string `json:"status"` // "processing", "completed" or "failed"
	NativeTxID      string `json:"native_tx_id,omitempty"`
	SettlementError string `json:"settlement_error,omitempty"`
}

// SettlementService consumes settlement updates from NATS and keeps the
// overdue gauge current. It owns no settlement logic of its own; state
// changes go through RedeemService so the same transition rules apply to
// message-driven and admin-driven updates.
type SettlementService struct {
	redeemService *RedeemService
	subscriber    EventSubscriber
	logger        *logrus.Logger

	subscription *nats.Subscription
	cancel       context.CancelFunc
}

// NewSettlementService creates a new SettlementService instance
func NewSettlementService(redeemService *RedeemService, subscriber EventSubscriber, logger *logrus.Logger) *SettlementService {
	if logger == nil {
		logger = logrus.New()
	}
	return &SettlementService{
		redeemService: redeemService,
		subscriber:    subscriber,
		logger:        logger,
	}
}

// Start subscribes to the settlement subject and launches the overdue
// sweeper. Safe to call once; Stop undoes both.
func (s *SettlementService) Start(ctx context.Context) error {
	subject := clients.SubjectSettlementUpdate
	if config.AppConfig != nil && config.AppConfig.NATS.SettlementSubject != "" {
		subject = config.AppConfig.NATS.SettlementSubject
	}

	if s.subscriber != nil {
		sub, err := s.subscriber.Subscribe(subject, s.handleMessage)
		if err != nil {
			return err
		}
		s.subscription = sub
	}

	sweepCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go s.sweepOverdue(sweepCtx)

	s.logger.WithField("subject", subject).Info("🚀 Settlement service started")
	return nil
}

// Stop unsubscribes and stops the sweeper
func (s *SettlementService) Stop() {
	if s.subscription != nil {
		s.subscription.Unsubscribe()
		s.subscription = nil
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *SettlementService) handleMessage(data []byte) {
	var msg SettlementUpdateMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.logger.WithError(err).Error("❌ Failed to decode settlement update")
		return
	}
	if msg.BurnTxHash == "" || msg.Status == "" {
		s.logger.WithField("payload", string(msg.marshalForLog())).Warn("⚠️ Settlement update missing burn_tx_hash or status, dropped")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	updated, err := s.redeemService.UpdateSettlementByBurnHash(
		ctx, msg.BurnTxHash, models.RedeemStatus(msg.Status), msg.NativeTxID, msg.SettlementError)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			s.logger.WithField("burn_tx_hash", msg.BurnTxHash).Warn("⚠️ Settlement update for unknown burn transaction")
		case errors.Is(err, ErrInvalidTransition):
			// Redeliveries and out-of-order messages land here; the record
			// already moved on, so this is informational only.
			s.logger.WithFields(logrus.Fields{
				"burn_tx_hash": msg.BurnTxHash,
				"status":       msg.Status,
			}).Info("Settlement update ignored, request already past this state")
		default:
			s.logger.WithError(err).WithField("burn_tx_hash", msg.BurnTxHash).Error("❌ Failed to apply settlement update")
		}
		return
	}

	s.logger.WithFields(logrus.Fields{
		"request_id": updated.ID,
		"status":     updated.Status,
	}).Info("✅ Settlement update applied")
}

func (m *SettlementUpdateMessage) marshalForLog() []byte {
	data, _ := json.Marshal(m)
	return data
}

// sweepOverdue refreshes the overdue-settlement gauge once a minute so the
// escalation alert fires without waiting for API traffic.
func (s *SettlementService) sweepOverdue(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		count, err := s.redeemService.CountOverdue(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.logger.WithError(err).Error("❌ Overdue settlement sweep failed")
			}
		} else {
			metrics.SettlementOverdue.Set(float64(count))
			if count > 0 {
				s.logger.WithField("count", count).Warn("⚠️ Redeem requests past settlement window")
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
