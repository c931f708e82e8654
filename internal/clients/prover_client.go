package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"tasset-backend/internal/config"
	"tasset-backend/internal/models"
)

var (
	// ErrProofUnavailable means the prover could not be reached or errored
	// internally. Retryable only by a fresh user submission; nothing has
	// been persisted when this is returned.
	ErrProofUnavailable = errors.New("proof service unavailable")

	// ErrInvalidTransaction means the prover rejected the transaction hash
	// itself (unknown tx, wrong chain, malformed hash).
	ErrInvalidTransaction = errors.New("transaction rejected by proof service")
)

// ProverClient talks to the external proof-generation service. Proving is a
// single blocking call that can take seconds to low minutes; the client never
// retries on its own so a transaction hash is only ever spent once per
// user-initiated submission.
type ProverClient struct {
	BaseURL     string
	ProofSystem string
	Client      *http.Client
}

// NewProverClient creates a new prover client
func NewProverClient(baseURL string) *ProverClient {
	timeout := 600 * time.Second
	proofSystem := "groth16"

	if config.AppConfig != nil {
		if config.AppConfig.Prover.Timeout > 0 {
			timeout = time.Duration(config.AppConfig.Prover.Timeout) * time.Second
		}
		if config.AppConfig.Prover.ProofSystem != "" {
			proofSystem = config.AppConfig.Prover.ProofSystem
		}
	}

	return &ProverClient{
		BaseURL:     baseURL,
		ProofSystem: proofSystem,
		Client: &http.Client{
			Timeout: timeout,
		},
	}
}

// proveTransactionRequest is the prover's wire request format
type proveTransactionRequest struct {
	OwnerAddress string `json:"ownerAddress,omitempty"`
	TxHash       string `json:"txHash"`
	Chain        string `json:"chain"`
	ProofSystem  string `json:"proofSystem"`
}

// proveTransactionResponse is the prover's wire response format
type proveTransactionResponse struct {
	TotalAmount   uint64 `json:"totalAmount"`
	SenderAddress string `json:"senderAddress"`
	VKey          string `json:"vkey"`
	PublicValues  string `json:"publicValues"`
	Proof         string `json:"proof"`
	Error         string `json:"error,omitempty"`
}

// ProveTransaction requests a proof bundle for a native-chain deposit
// transaction. The caller-supplied context bounds the wait; a cancelled call
// leaves no state behind, so no compensation is needed.
func (c *ProverClient) ProveTransaction(ctx context.Context, chain, txHash, ownerAddress string) (*models.ProofBundle, error) {
	reqBody := proveTransactionRequest{
		OwnerAddress: ownerAddress,
		TxHash:       txHash,
		Chain:        chain,
		ProofSystem:  c.ProofSystem,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/proof/transaction", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	log.Printf("📤 [Prover] Requesting proof: chain=%s, txHash=%s", chain, txHash)
	start := time.Now()

	resp, err := c.Client.Do(httpReq)
	if err != nil {
		log.Printf("❌ [Prover] Request failed after %v: %v", time.Since(start), err)
		return nil, fmt.Errorf("%w: %v", ErrProofUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", ErrProofUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		message := string(body)
		var errorResp proveTransactionResponse
		if json.Unmarshal(body, &errorResp) == nil && errorResp.Error != "" {
			message = errorResp.Error
		}
		log.Printf("❌ [Prover] Service returned status %d: %s", resp.StatusCode, message)

		// 4xx means the chain rejected the hash itself; everything else is
		// an upstream availability problem.
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, fmt.Errorf("%w: %s", ErrInvalidTransaction, message)
		}
		return nil, fmt.Errorf("%w: status %d: %s", ErrProofUnavailable, resp.StatusCode, message)
	}

	var result proveTransactionResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal response: %v", ErrProofUnavailable, err)
	}
	if result.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTransaction, result.Error)
	}
	if result.Proof == "" {
		return nil, fmt.Errorf("%w: empty proof in response", ErrProofUnavailable)
	}

	log.Printf("✅ [Prover] Proof generated in %v: sender=%s, amount=%d", time.Since(start), result.SenderAddress, result.TotalAmount)

	return &models.ProofBundle{
		TotalAmount:   result.TotalAmount,
		SenderAddress: result.SenderAddress,
		VKey:          result.VKey,
		PublicValues:  result.PublicValues,
		Proof:         result.Proof,
	}, nil
}
