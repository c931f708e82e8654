package services

import (
	"context"
	"math/big"

	"tasset-backend/internal/clients"
	"tasset-backend/internal/config"
	"tasset-backend/internal/models"
)

// TransactionProver obtains a proof bundle for a native-chain deposit.
// Implemented by clients.ProverClient.
type TransactionProver interface {
	ProveTransaction(ctx context.Context, chain, txHash, ownerAddress string) (*models.ProofBundle, error)
}

// TransactionVerifier confirms a native-chain deposit without a proof.
// Implemented by clients.UTXOVerifierClient, used for non-proof-gated chains.
type TransactionVerifier interface {
	VerifyTransaction(ctx context.Context, chain, txHash, expectedFrom, expectedTo string) (*clients.UTXOVerification, error)
}

// ReceiptResult is the outcome of waiting for a transaction receipt.
type ReceiptResult struct {
	Success      bool
	TxHash       string
	BlockNumber  uint64
	RevertReason string // empty when the chain gave no reason
}

// ContractGateway abstracts the EVM contract calls the lifecycles drive.
// Implemented by ContractService; faked in tests.
type ContractGateway interface {
	Mint(ctx context.Context, vault *config.VaultConfig, request *models.MintRequest) (string, error)
	Burn(ctx context.Context, vault *config.VaultConfig, amount *big.Int) (string, error)
	Approve(ctx context.Context, vault *config.VaultConfig, spender string, amount *big.Int) (string, error)
	WaitForReceipt(ctx context.Context, chainID int, txHash string) (*ReceiptResult, error)
}

// EventPublisher publishes lifecycle transitions for downstream consumers.
// Implemented by clients.NATSClient.
type EventPublisher interface {
	PublishLifecycleEvent(subject string, event *clients.LifecycleEvent)
}
