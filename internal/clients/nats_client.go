package clients

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"tasset-backend/internal/config"
	"tasset-backend/internal/metrics"

	"github.com/nats-io/nats.go"
)

// Lifecycle event subjects. The settlement subject is consumed, the rest are
// published for downstream services (notification, reporting).
const (
	SubjectMintVerified     = "tasset.mint.verified"
	SubjectMintWhitelisted  = "tasset.mint.whitelisted"
	SubjectMintCompleted    = "tasset.mint.completed"
	SubjectMintFailed       = "tasset.mint.failed"
	SubjectRedeemCreated    = "tasset.redeem.created"
	SubjectRedeemSettled    = "tasset.redeem.settled"
	SubjectSettlementUpdate = "tasset.settlement.updates"
)

// LifecycleEvent is the payload published for every request status change.
type LifecycleEvent struct {
	RequestID  string    `json:"request_id"`
	EVMAddress string    `json:"evm_address"`
	VaultID    string    `json:"vault_id"`
	Status     string    `json:"status"`
	TxHash     string    `json:"tx_hash,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// NATSClient wraps the NATS connection used for lifecycle events and for
// receiving settlement updates from the external settlement processor.
type NATSClient struct {
	conn *nats.Conn
}

// NewNATSClient connects to the NATS server
func NewNATSClient(url string) (*NATSClient, error) {
	connectTimeout := 10 * time.Second
	reconnectWait := 5 * time.Second
	maxReconnects := -1

	if config.AppConfig != nil {
		if config.AppConfig.NATS.Timeout > 0 {
			connectTimeout = time.Duration(config.AppConfig.NATS.Timeout) * time.Second
		}
		if config.AppConfig.NATS.ReconnectWait > 0 {
			reconnectWait = time.Duration(config.AppConfig.NATS.ReconnectWait) * time.Second
		}
		if config.AppConfig.NATS.MaxReconnects != 0 {
			maxReconnects = config.AppConfig.NATS.MaxReconnects
		}
	}

	conn, err := nats.Connect(url,
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Printf("⚠️ NATS disconnected: %v", err)
			metrics.NATSConnectionStatus.Set(0)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("✅ NATS reconnected: %s", nc.ConnectedUrl())
			metrics.NATSConnectionStatus.Set(1)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	metrics.NATSConnectionStatus.Set(1)
	log.Printf("✅ NATS client connected: %s", url)

	return &NATSClient{conn: conn}, nil
}

// PublishLifecycleEvent publishes a request status change. Publishing is
// best-effort: a delivery failure is logged and counted, never surfaced to
// the lifecycle, because the database record is the source of truth.
func (c *NATSClient) PublishLifecycleEvent(subject string, event *LifecycleEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		metrics.NATSMessagesFailed.WithLabelValues(subject, "marshal").Inc()
		log.Printf("❌ [NATS] Failed to marshal lifecycle event for %s: %v", subject, err)
		return
	}

	if err := c.conn.Publish(subject, data); err != nil {
		metrics.NATSMessagesFailed.WithLabelValues(subject, "publish").Inc()
		log.Printf("❌ [NATS] Failed to publish %s: %v", subject, err)
		return
	}

	metrics.NATSMessagesPublished.WithLabelValues(subject).Inc()
}

// Subscribe registers a handler for a subject
func (c *NATSClient) Subscribe(subject string, handler func(data []byte)) (*nats.Subscription, error) {
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}
	log.Printf("📡 [NATS] Subscribed to %s", subject)
	return sub, nil
}

// Close drains and closes the connection
func (c *NATSClient) Close() {
	if c.conn != nil {
		if err := c.conn.Drain(); err != nil {
			c.conn.Close()
		}
		metrics.NATSConnectionStatus.Set(0)
	}
}
