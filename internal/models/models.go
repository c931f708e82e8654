package models

import (
	"time"
)

// MintStatus tracks a mint request from submission to on-chain completion.
type MintStatus string

const (
	MintStatusPending     MintStatus = "pending"     // submitted, not yet verified
	MintStatusVerified    MintStatus = "verified"    // chain/proof check passed
	MintStatusWhitelisted MintStatus = "whitelisted" // admin approved for minting
	MintStatusMinted      MintStatus = "minted"      // on-chain mint confirmed

	// Terminal failure states. A rejection is an admin decision; a mint
	// failure is an on-chain execution error. The two must never be conflated.
	MintStatusRejected   MintStatus = "rejected"
	MintStatusMintFailed MintStatus = "mint_failed"
)

// RedeemStatus tracks a redeem request from burn recording to native settlement.
type RedeemStatus string

const (
	RedeemStatusPending    RedeemStatus = "pending"    // burn recorded, awaiting native settlement
	RedeemStatusProcessing RedeemStatus = "processing" // settlement in flight
	RedeemStatusCompleted  RedeemStatus = "completed"  // native funds sent
	RedeemStatusFailed     RedeemStatus = "failed"     // unrecoverable, requires manual intervention
)

// RequestType distinguishes retail submissions from institutional ones.
type RequestType string

const (
	RequestTypeRetail RequestType = "retail"
)

// SettlementSLA is the nominal window for native-asset settlement after a
// burn is recorded. Remaining time is always derived from CreatedAt, never stored.
const SettlementSLA = 7 * 24 * time.Hour

// PendingMintTxMarker is written to MintRequest.PendingMintTx before the mint
// transaction is broadcast, so an interrupted execution is visible and can be
// reconciled later by re-querying the chain.
const PendingMintTxMarker = "pending"

// MintRequest is the audit record for one native-chain deposit being wrapped
// into a t-asset. The native transaction hash is unique across all rows
// (enforced by the database, not just the duplicate pre-check).
type MintRequest struct {
	ID            string      `json:"id" gorm:"primaryKey;type:varchar(36)"`
	EVMAddress    string      `json:"evm_address" gorm:"type:varchar(42);not null;index:idx_mint_address_vault,priority:1"`
	ChainName     string      `json:"chain_name" gorm:"type:varchar(32);not null"`
	ChainID       int         `json:"chain_id" gorm:"not null"`
	VaultID       string      `json:"vault_id" gorm:"type:varchar(32);not null;index:idx_mint_address_vault,priority:2"`
	NativeChain   string      `json:"native_chain" gorm:"type:varchar(32);not null"`
	NativeAddress string      `json:"native_address" gorm:"type:varchar(128);not null"`
	Amount        string      `json:"amount" gorm:"type:varchar(78);not null"` // decimal string, no float loss
	UTXO          string      `json:"utxo" gorm:"type:varchar(128)"`
	TxHash        string      `json:"tx_hash" gorm:"type:varchar(128);not null;uniqueIndex:idx_mint_tx_hash"`
	Whitelisted   bool        `json:"whitelisted" gorm:"not null;default:false"`
	PendingMintTx string      `json:"pending_mint_tx" gorm:"type:varchar(66)"` // in-flight marker or broadcast hash
	MintTxLink    string      `json:"mint_tx_link" gorm:"type:varchar(66)"`    // set only once the mint is confirmed
	MintError     string      `json:"mint_error,omitempty" gorm:"type:text"`
	Proof         string      `json:"proof,omitempty" gorm:"type:text"` // serialized ProofBundle JSON
	Status        MintStatus  `json:"status" gorm:"type:varchar(20);not null;index"`
	RequestType   RequestType `json:"request_type" gorm:"type:varchar(16);not null;default:'retail'"`
	CreatedAt     time.Time   `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt     time.Time   `json:"updated_at" gorm:"autoUpdateTime"`
}

// ReadyToMint reports whether the request has passed both the verification
// and the admin whitelist gate.
func (m *MintRequest) ReadyToMint() bool {
	return m.Status == MintStatusWhitelisted && m.Whitelisted
}

// IsTerminal reports whether no further status transition is allowed.
func (s MintStatus) IsTerminal() bool {
	return s == MintStatusMinted || s == MintStatusRejected || s == MintStatusMintFailed
}

// CanTransition validates forward-only mint status progression. Rejection is
// an admin escape hatch from any pre-minted state; everything else moves one
// step at a time and never backwards.
func (s MintStatus) CanTransition(to MintStatus) bool {
	if s.IsTerminal() {
		return false
	}
	if to == MintStatusRejected {
		return true
	}
	switch s {
	case MintStatusPending:
		return to == MintStatusVerified
	case MintStatusVerified:
		return to == MintStatusWhitelisted
	case MintStatusWhitelisted:
		return to == MintStatusMinted || to == MintStatusMintFailed
	}
	return false
}

// RedeemRequest is the audit record for one t-asset burn awaiting native
// settlement. The burn transaction hash is unique across all rows.
type RedeemRequest struct {
	ID              string       `json:"id" gorm:"primaryKey;type:varchar(36)"`
	EVMAddress      string       `json:"evm_address" gorm:"type:varchar(42);not null;index:idx_redeem_address_vault,priority:1"`
	ChainName       string       `json:"chain_name" gorm:"type:varchar(32);not null"`
	ChainID         int          `json:"chain_id" gorm:"not null"`
	VaultID         string       `json:"vault_id" gorm:"type:varchar(32);not null;index:idx_redeem_address_vault,priority:2"`
	Asset           string       `json:"asset" gorm:"type:varchar(16);not null"`
	Amount          string       `json:"amount" gorm:"type:varchar(78);not null"`
	BurnTxHash      string       `json:"burn_tx_hash" gorm:"type:varchar(66);not null;uniqueIndex:idx_redeem_burn_tx_hash"`
	NativeAddress   string       `json:"native_address" gorm:"type:varchar(128);not null"`
	NativeTxID      string       `json:"native_tx_id" gorm:"type:varchar(128)"`
	SettlementError string       `json:"settlement_error,omitempty" gorm:"type:text"`
	Status          RedeemStatus `json:"status" gorm:"type:varchar(20);not null;index"`
	CreatedAt       time.Time    `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt       time.Time    `json:"updated_at" gorm:"autoUpdateTime"`
}

// IsTerminal reports whether the settlement reached a final state.
func (s RedeemStatus) IsTerminal() bool {
	return s == RedeemStatusCompleted || s == RedeemStatusFailed
}

// CanTransition validates monotonic settlement progression.
func (s RedeemStatus) CanTransition(to RedeemStatus) bool {
	if s.IsTerminal() {
		return false
	}
	switch s {
	case RedeemStatusPending:
		return to == RedeemStatusProcessing || to == RedeemStatusCompleted || to == RedeemStatusFailed
	case RedeemStatusProcessing:
		return to == RedeemStatusCompleted || to == RedeemStatusFailed
	}
	return false
}

// SettlementDeadline returns when the native settlement is nominally due.
func (r *RedeemRequest) SettlementDeadline() time.Time {
	return r.CreatedAt.Add(SettlementSLA)
}

// RemainingSettlement returns the time left before the settlement SLA lapses
// and whether the request is overdue. An overdue pending request is flagged
// for escalation, never auto-failed.
func (r *RedeemRequest) RemainingSettlement(now time.Time) (time.Duration, bool) {
	remaining := r.SettlementDeadline().Sub(now)
	if remaining <= 0 {
		return 0, true
	}
	return remaining, false
}

// ProofBundle is the prover's attestation that a native-chain deposit
// happened. It is produced once, serialized into MintRequest.Proof, and
// never mutated afterwards.
type ProofBundle struct {
	TotalAmount   uint64 `json:"total_amount"` // smallest native unit
	SenderAddress string `json:"sender_address"`
	VKey          string `json:"vkey"`
	PublicValues  string `json:"public_values"`
	Proof         string `json:"proof"`
}
