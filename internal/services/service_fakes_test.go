package services

import (
	"context"
	"math/big"
	"sort"
	"sync"
	"time"

	"tasset-backend/internal/clients"
	"tasset-backend/internal/config"
	"tasset-backend/internal/models"
	"tasset-backend/internal/repository"

	"github.com/google/uuid"
)

// setupTestConfig installs a config with one proof-gated vault and one
// UTXO-verified vault. Returns a restore func for the previous config.
func setupTestConfig() func() {
	previous := config.AppConfig
	config.AppConfig = &config.Config{
		Vaults: map[string]config.VaultConfig{
			"tdoge": {
				Name:            "Dogecoin Vault",
				Symbol:          "tDOGE",
				NativeChain:     "dogecoin",
				ChainID:         84532,
				TokenContract:   "0x1111111111111111111111111111111111111111",
				ManagerContract: "0x2222222222222222222222222222222222222222",
				Verification:    "proof",
				Decimals:        8,
				Enabled:         true,
			},
			"tbtc": {
				Name:                 "Bitcoin Vault",
				Symbol:               "tBTC",
				NativeChain:          "bitcoin",
				ChainID:              84532,
				TokenContract:        "0x3333333333333333333333333333333333333333",
				ManagerContract:      "0x4444444444444444444444444444444444444444",
				DepositAddress:       "bc1qcustody",
				Verification:         "utxo",
				InstitutionalAddress: "bc1qinstitutional",
				Decimals:             8,
				Enabled:              true,
			},
		},
		Redeem: config.RedeemConfig{SettlementDays: 7},
	}
	return func() { config.AppConfig = previous }
}

// fakeMintRepo is an in-memory MintRequestRepository with the same duplicate
// and terminal-guard semantics as the gorm implementation.
type fakeMintRepo struct {
	mu       sync.Mutex
	requests map[string]*models.MintRequest
	order    []string
}

func newFakeMintRepo() *fakeMintRepo {
	return &fakeMintRepo{requests: make(map[string]*models.MintRequest)}
}

func copyMint(r *models.MintRequest) *models.MintRequest {
	clone := *r
	return &clone
}

func (f *fakeMintRepo) Create(ctx context.Context, request *models.MintRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, existing := range f.requests {
		if existing.TxHash == request.TxHash {
			return repository.ErrDuplicateTransaction
		}
	}
	if request.ID == "" {
		request.ID = uuid.New().String()
	}
	if request.CreatedAt.IsZero() {
		request.CreatedAt = time.Now()
	}
	f.requests[request.ID] = copyMint(request)
	f.order = append(f.order, request.ID)
	return nil
}

func (f *fakeMintRepo) GetByID(ctx context.Context, id string) (*models.MintRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	request, ok := f.requests[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyMint(request), nil
}

func (f *fakeMintRepo) GetByTxHash(ctx context.Context, txHash string) (*models.MintRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, request := range f.requests {
		if request.TxHash == txHash {
			return copyMint(request), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeMintRepo) Update(ctx context.Context, request *models.MintRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.requests[request.ID]; !ok {
		return repository.ErrNotFound
	}
	f.requests[request.ID] = copyMint(request)
	return nil
}

func (f *fakeMintRepo) FindByAddress(ctx context.Context, evmAddress string) ([]*models.MintRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var result []*models.MintRequest
	for i := len(f.order) - 1; i >= 0; i-- {
		if request := f.requests[f.order[i]]; request.EVMAddress == evmAddress {
			result = append(result, copyMint(request))
		}
	}
	return result, nil
}

func (f *fakeMintRepo) FindAll(ctx context.Context) ([]*models.MintRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var result []*models.MintRequest
	for i := len(f.order) - 1; i >= 0; i-- {
		result = append(result, copyMint(f.requests[f.order[i]]))
	}
	return result, nil
}

func (f *fakeMintRepo) FindByStatus(ctx context.Context, status models.MintStatus) ([]*models.MintRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var result []*models.MintRequest
	for i := len(f.order) - 1; i >= 0; i-- {
		if request := f.requests[f.order[i]]; request.Status == status {
			result = append(result, copyMint(request))
		}
	}
	return result, nil
}

func (f *fakeMintRepo) LatestByAddressAndVault(ctx context.Context, evmAddress, vaultID string) (*models.MintRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var matches []*models.MintRequest
	for _, request := range f.requests {
		if request.EVMAddress == evmAddress && request.VaultID == vaultID {
			matches = append(matches, request)
		}
	}
	if len(matches) == 0 {
		return nil, repository.ErrNotFound
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})
	return copyMint(matches[0]), nil
}

func (f *fakeMintRepo) UpdateStatus(ctx context.Context, id string, status models.MintStatus, fields map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	request, ok := f.requests[id]
	if !ok {
		return repository.ErrNotFound
	}
	if request.Status.IsTerminal() {
		return nil
	}

	request.Status = status
	for k, v := range fields {
		switch k {
		case "whitelisted":
			request.Whitelisted = v.(bool)
		case "mint_tx_link":
			request.MintTxLink = v.(string)
		case "pending_mint_tx":
			request.PendingMintTx = v.(string)
		case "mint_error":
			request.MintError = v.(string)
		}
	}
	return nil
}

func (f *fakeMintRepo) SetWhitelisted(ctx context.Context, id string, whitelisted bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	request, ok := f.requests[id]
	if !ok {
		return repository.ErrNotFound
	}
	request.Whitelisted = whitelisted
	return nil
}

// fakeRedeemRepo is an in-memory RedeemRequestRepository
type fakeRedeemRepo struct {
	mu       sync.Mutex
	requests map[string]*models.RedeemRequest
	order    []string
}

func newFakeRedeemRepo() *fakeRedeemRepo {
	return &fakeRedeemRepo{requests: make(map[string]*models.RedeemRequest)}
}

func copyRedeem(r *models.RedeemRequest) *models.RedeemRequest {
	clone := *r
	return &clone
}

func (f *fakeRedeemRepo) Create(ctx context.Context, request *models.RedeemRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, existing := range f.requests {
		if existing.BurnTxHash == request.BurnTxHash {
			return repository.ErrDuplicateBurnTransaction
		}
	}
	if request.ID == "" {
		request.ID = uuid.New().String()
	}
	if request.CreatedAt.IsZero() {
		request.CreatedAt = time.Now()
	}
	f.requests[request.ID] = copyRedeem(request)
	f.order = append(f.order, request.ID)
	return nil
}

func (f *fakeRedeemRepo) GetByID(ctx context.Context, id string) (*models.RedeemRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	request, ok := f.requests[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyRedeem(request), nil
}

func (f *fakeRedeemRepo) GetByBurnTxHash(ctx context.Context, burnTxHash string) (*models.RedeemRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, request := range f.requests {
		if request.BurnTxHash == burnTxHash {
			return copyRedeem(request), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeRedeemRepo) FindByAddress(ctx context.Context, evmAddress, vaultFilter string) ([]*models.RedeemRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var result []*models.RedeemRequest
	for i := len(f.order) - 1; i >= 0; i-- {
		request := f.requests[f.order[i]]
		if request.EVMAddress != evmAddress {
			continue
		}
		if vaultFilter != "" && request.VaultID != vaultFilter {
			continue
		}
		result = append(result, copyRedeem(request))
	}
	return result, nil
}

func (f *fakeRedeemRepo) FindByStatus(ctx context.Context, status models.RedeemStatus) ([]*models.RedeemRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var result []*models.RedeemRequest
	for _, id := range f.order {
		if request := f.requests[id]; request.Status == status {
			result = append(result, copyRedeem(request))
		}
	}
	return result, nil
}

func (f *fakeRedeemRepo) UpdateSettlement(ctx context.Context, id string, status models.RedeemStatus, nativeTxID, settlementError string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	request, ok := f.requests[id]
	if !ok {
		return repository.ErrNotFound
	}
	if request.Status.IsTerminal() {
		return nil
	}

	request.Status = status
	if nativeTxID != "" {
		request.NativeTxID = nativeTxID
	}
	if settlementError != "" {
		request.SettlementError = settlementError
	}
	return nil
}

// fakeProver returns a canned bundle or error and counts calls
type fakeProver struct {
	bundle *models.ProofBundle
	err    error
	calls  int
}

func (f *fakeProver) ProveTransaction(ctx context.Context, chain, txHash, ownerAddress string) (*models.ProofBundle, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.bundle, nil
}

// fakeVerifier returns a canned verification or error
type fakeVerifier struct {
	verification *clients.UTXOVerification
	err          error
	calls        int
}

func (f *fakeVerifier) VerifyTransaction(ctx context.Context, chain, txHash, expectedFrom, expectedTo string) (*clients.UTXOVerification, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.verification, nil
}

// fakeGateway scripts the contract interaction per test
type fakeGateway struct {
	mintTxHash string
	mintErr    error
	receipt    *ReceiptResult
	receiptErr error
	mintCalls  int
	waitCalls  int
}

func (f *fakeGateway) Mint(ctx context.Context, vault *config.VaultConfig, request *models.MintRequest) (string, error) {
	f.mintCalls++
	if f.mintErr != nil {
		return "", f.mintErr
	}
	return f.mintTxHash, nil
}

func (f *fakeGateway) Burn(ctx context.Context, vault *config.VaultConfig, amount *big.Int) (string, error) {
	return "", nil
}

func (f *fakeGateway) Approve(ctx context.Context, vault *config.VaultConfig, spender string, amount *big.Int) (string, error) {
	return "", nil
}

func (f *fakeGateway) WaitForReceipt(ctx context.Context, chainID int, txHash string) (*ReceiptResult, error) {
	f.waitCalls++
	if f.receiptErr != nil {
		return nil, f.receiptErr
	}
	return f.receipt, nil
}

// fakePublisher records published lifecycle events
type fakePublisher struct {
	mu     sync.Mutex
	events []struct {
		Subject string
		Event   *clients.LifecycleEvent
	}
}

func (f *fakePublisher) PublishLifecycleEvent(subject string, event *clients.LifecycleEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, struct {
		Subject string
		Event   *clients.LifecycleEvent
	}{subject, event})
}

func (f *fakePublisher) subjects() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	subjects := make([]string, len(f.events))
	for i, e := range f.events {
		subjects[i] = e.Subject
	}
	return subjects
}
