package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tasset-backend/internal/config"
)

var (
	// ErrTransactionNotFound means the lookup service has no record of the
	// transaction on the given chain.
	ErrTransactionNotFound = errors.New("transaction not found on native chain")

	// ErrRecipientMismatch means the transaction exists but did not pay the
	// expected custody address.
	ErrRecipientMismatch = errors.New("transaction recipient does not match deposit address")

	// ErrInsufficientConfirmations means the transaction exists but has not
	// been buried deep enough yet.
	ErrInsufficientConfirmations = errors.New("transaction has insufficient confirmations")
)

// UTXOVerification is the lookup result for one native-chain transaction.
type UTXOVerification struct {
	Amount        uint64 `json:"amount"` // smallest native unit
	FromAddress   string `json:"fromAddress"`
	ToAddress     string `json:"toAddress"`
	Confirmations int    `json:"confirmations"`
	UTXO          string `json:"utxo"`
}

// UTXOVerifierClient talks to the UTXO-chain lookup service. It is used for
// vaults whose chains are not proof-gated: it only confirms that a deposit
// transaction exists and paid the custody address.
type UTXOVerifierClient struct {
	BaseURL          string
	MinConfirmations int
	Client           *http.Client
}

// NewUTXOVerifierClient creates a new verifier client
func NewUTXOVerifierClient(baseURL string) *UTXOVerifierClient {
	timeout := 30 * time.Second
	minConfirmations := 6

	if config.AppConfig != nil {
		if config.AppConfig.Verifier.Timeout > 0 {
			timeout = time.Duration(config.AppConfig.Verifier.Timeout) * time.Second
		}
		if config.AppConfig.Verifier.MinConfirmations > 0 {
			minConfirmations = config.AppConfig.Verifier.MinConfirmations
		}
	}

	return &UTXOVerifierClient{
		BaseURL:          baseURL,
		MinConfirmations: minConfirmations,
		Client: &http.Client{
			Timeout: timeout,
		},
	}
}

// verifyResponse is the lookup service's wire format
type verifyResponse struct {
	Amount        uint64 `json:"amount"`
	FromAddress   string `json:"fromAddress"`
	ToAddress     string `json:"toAddress"`
	Confirmations int    `json:"confirmations"`
	UTXO          string `json:"utxo"`
	Error         string `json:"error,omitempty"`
}

// VerifyTransaction confirms a native-chain transaction exists and checks
// its recipient and confirmation depth. expectedFrom is optional; expectedTo
// is the vault's custody deposit address.
func (c *UTXOVerifierClient) VerifyTransaction(ctx context.Context, chain, txHash, expectedFrom, expectedTo string) (*UTXOVerification, error) {
	reqURL := fmt.Sprintf("%s/api/tx/%s/%s", c.BaseURL, url.PathEscape(chain), url.PathEscape(txHash))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.Client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s on %s", ErrTransactionNotFound, txHash, chain)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("verifier request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var result verifyResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if result.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrTransactionNotFound, result.Error)
	}

	if expectedTo != "" && !strings.EqualFold(result.ToAddress, expectedTo) {
		return nil, fmt.Errorf("%w: got %s, want %s", ErrRecipientMismatch, result.ToAddress, expectedTo)
	}
	if expectedFrom != "" && !strings.EqualFold(result.FromAddress, expectedFrom) {
		return nil, fmt.Errorf("%w: sender %s does not match claimed address %s", ErrRecipientMismatch, result.FromAddress, expectedFrom)
	}
	if result.Confirmations < c.MinConfirmations {
		return nil, fmt.Errorf("%w: %d < %d", ErrInsufficientConfirmations, result.Confirmations, c.MinConfirmations)
	}

	return &UTXOVerification{
		Amount:        result.Amount,
		FromAddress:   result.FromAddress,
		ToAddress:     result.ToAddress,
		Confirmations: result.Confirmations,
		UTXO:          result.UTXO,
	}, nil
}
