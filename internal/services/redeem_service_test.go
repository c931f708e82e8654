package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"tasset-backend/internal/clients"
	"tasset-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const burnHash = "0x" + "ab12" + "0000000000000000000000000000000000000000000000000000000000ab"

func newTestRedeemService(redeemRepo *fakeRedeemRepo, mintRepo *fakeMintRepo, events *fakePublisher) *RedeemService {
	var publisher EventPublisher
	if events != nil {
		publisher = events
	}
	return NewRedeemService(redeemRepo, mintRepo, publisher, nil, nil)
}

func redeemSubmission() *SubmitRedeemInput {
	return &SubmitRedeemInput{
		EVMAddress: "0xAbCd000000000000000000000000000000000001",
		ChainName:  "base-sepolia",
		ChainID:    84532,
		VaultID:    "tdoge",
		Asset:      "tDOGE",
		Amount:     "150000000",
		BurnTxHash: burnHash,
	}
}

func seedMintHistory(t *testing.T, mintRepo *fakeMintRepo, evmAddress, vaultID, nativeAddress string) {
	t.Helper()
	require.NoError(t, mintRepo.Create(context.Background(), &models.MintRequest{
		EVMAddress:    evmAddress,
		VaultID:       vaultID,
		NativeChain:   "dogecoin",
		NativeAddress: nativeAddress,
		Amount:        "150000000",
		TxHash:        "seedhash-" + vaultID + nativeAddress,
		Status:        models.MintStatusMinted,
	}))
}

func TestSubmitRedeemRequestResolvesNativeAddressFromMintHistory(t *testing.T) {
	defer setupTestConfig()()

	mintRepo := newFakeMintRepo()
	seedMintHistory(t, mintRepo, "0xAbCd000000000000000000000000000000000001", "tdoge", "DDogeReturn1")
	events := &fakePublisher{}
	svc := newTestRedeemService(newFakeRedeemRepo(), mintRepo, events)

	record, err := svc.SubmitRedeemRequest(context.Background(), redeemSubmission())
	require.NoError(t, err)
	assert.Equal(t, models.RedeemStatusPending, record.Status)
	assert.Equal(t, "DDogeReturn1", record.NativeAddress)
	assert.Contains(t, events.subjects(), clients.SubjectRedeemCreated)
}

func TestSubmitRedeemRequestMostRecentMintWins(t *testing.T) {
	defer setupTestConfig()()

	mintRepo := newFakeMintRepo()
	older := &models.MintRequest{
		EVMAddress: "0xAbCd000000000000000000000000000000000001", VaultID: "tdoge",
		NativeAddress: "DOldAddress", TxHash: "hash-old", Status: models.MintStatusMinted,
		CreatedAt: time.Now().Add(-48 * time.Hour),
	}
	newer := &models.MintRequest{
		EVMAddress: "0xAbCd000000000000000000000000000000000001", VaultID: "tdoge",
		NativeAddress: "DNewAddress", TxHash: "hash-new", Status: models.MintStatusMinted,
		CreatedAt: time.Now().Add(-1 * time.Hour),
	}
	require.NoError(t, mintRepo.Create(context.Background(), older))
	require.NoError(t, mintRepo.Create(context.Background(), newer))

	svc := newTestRedeemService(newFakeRedeemRepo(), mintRepo, nil)

	address, err := svc.ResolveNativeAddress(context.Background(), "0xAbCd000000000000000000000000000000000001", "tdoge")
	require.NoError(t, err)
	assert.Equal(t, "DNewAddress", address)
}

func TestSubmitRedeemRequestWithoutMintHistoryIsBlocked(t *testing.T) {
	defer setupTestConfig()()

	svc := newTestRedeemService(newFakeRedeemRepo(), newFakeMintRepo(), nil)

	// tdoge has no institutional fallback configured.
	_, err := svc.SubmitRedeemRequest(context.Background(), redeemSubmission())
	assert.ErrorIs(t, err, ErrMissingNativeAddress)
}

func TestSubmitRedeemRequestInstitutionalFallback(t *testing.T) {
	defer setupTestConfig()()

	svc := newTestRedeemService(newFakeRedeemRepo(), newFakeMintRepo(), nil)

	input := redeemSubmission()
	input.VaultID = "tbtc"
	input.Asset = "tBTC"

	record, err := svc.SubmitRedeemRequest(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, "bc1qinstitutional", record.NativeAddress)
}

func TestSubmitRedeemRequestExplicitNativeAddressWins(t *testing.T) {
	defer setupTestConfig()()

	mintRepo := newFakeMintRepo()
	seedMintHistory(t, mintRepo, "0xAbCd000000000000000000000000000000000001", "tdoge", "DFromHistory")
	svc := newTestRedeemService(newFakeRedeemRepo(), mintRepo, nil)

	input := redeemSubmission()
	input.NativeAddress = "DExplicitAddress"

	record, err := svc.SubmitRedeemRequest(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, "DExplicitAddress", record.NativeAddress)
}

func TestSubmitRedeemRequestDuplicateBurnHash(t *testing.T) {
	defer setupTestConfig()()

	mintRepo := newFakeMintRepo()
	seedMintHistory(t, mintRepo, "0xAbCd000000000000000000000000000000000001", "tdoge", "DDogeReturn1")
	svc := newTestRedeemService(newFakeRedeemRepo(), mintRepo, nil)

	_, err := svc.SubmitRedeemRequest(context.Background(), redeemSubmission())
	require.NoError(t, err)

	_, err = svc.SubmitRedeemRequest(context.Background(), redeemSubmission())
	assert.ErrorIs(t, err, ErrAlreadyRedeemed)
}

func TestSubmitRedeemRequestBurnHashShape(t *testing.T) {
	defer setupTestConfig()()

	svc := newTestRedeemService(newFakeRedeemRepo(), newFakeMintRepo(), nil)

	input := redeemSubmission()
	input.BurnTxHash = "deadbeef"
	_, err := svc.SubmitRedeemRequest(context.Background(), input)
	assert.ErrorIs(t, err, ErrInvalidBurnHash)

	input.BurnTxHash = "0x1234"
	_, err = svc.SubmitRedeemRequest(context.Background(), input)
	assert.ErrorIs(t, err, ErrInvalidBurnHash)
}

func submittedRedeem(t *testing.T, svc *RedeemService) *models.RedeemRequest {
	t.Helper()
	record, err := svc.SubmitRedeemRequest(context.Background(), redeemSubmission())
	require.NoError(t, err)
	return record
}

func TestUpdateSettlementProgression(t *testing.T) {
	defer setupTestConfig()()

	mintRepo := newFakeMintRepo()
	seedMintHistory(t, mintRepo, "0xAbCd000000000000000000000000000000000001", "tdoge", "DDogeReturn1")
	events := &fakePublisher{}
	svc := newTestRedeemService(newFakeRedeemRepo(), mintRepo, events)

	record := submittedRedeem(t, svc)

	processing, err := svc.UpdateSettlement(context.Background(), record.ID, models.RedeemStatusProcessing, "", "")
	require.NoError(t, err)
	assert.Equal(t, models.RedeemStatusProcessing, processing.Status)

	completed, err := svc.UpdateSettlement(context.Background(), record.ID, models.RedeemStatusCompleted, "doge-tx-123", "")
	require.NoError(t, err)
	assert.Equal(t, models.RedeemStatusCompleted, completed.Status)
	assert.Equal(t, "doge-tx-123", completed.NativeTxID)
	assert.Contains(t, events.subjects(), clients.SubjectRedeemSettled)

	// Terminal states never move again.
	_, err = svc.UpdateSettlement(context.Background(), record.ID, models.RedeemStatusFailed, "", "late failure")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestUpdateSettlementCompletedRequiresNativeTxID(t *testing.T) {
	defer setupTestConfig()()

	mintRepo := newFakeMintRepo()
	seedMintHistory(t, mintRepo, "0xAbCd000000000000000000000000000000000001", "tdoge", "DDogeReturn1")
	svc := newTestRedeemService(newFakeRedeemRepo(), mintRepo, nil)

	record := submittedRedeem(t, svc)

	_, err := svc.UpdateSettlement(context.Background(), record.ID, models.RedeemStatusCompleted, "", "")
	var validationErr *ValidationError
	require.True(t, errors.As(err, &validationErr))
	assert.Equal(t, "native_tx_id", validationErr.Field)
}

func TestUpdateSettlementByBurnHash(t *testing.T) {
	defer setupTestConfig()()

	mintRepo := newFakeMintRepo()
	seedMintHistory(t, mintRepo, "0xAbCd000000000000000000000000000000000001", "tdoge", "DDogeReturn1")
	svc := newTestRedeemService(newFakeRedeemRepo(), mintRepo, nil)

	record := submittedRedeem(t, svc)

	updated, err := svc.UpdateSettlementByBurnHash(context.Background(), record.BurnTxHash, models.RedeemStatusProcessing, "", "")
	require.NoError(t, err)
	assert.Equal(t, record.ID, updated.ID)
	assert.Equal(t, models.RedeemStatusProcessing, updated.Status)
}

func TestListByAddressDerivesSettlementView(t *testing.T) {
	defer setupTestConfig()()

	redeemRepo := newFakeRedeemRepo()
	svc := newTestRedeemService(redeemRepo, newFakeMintRepo(), nil)

	fresh := &models.RedeemRequest{
		EVMAddress: "0xUser", VaultID: "tdoge", Asset: "tDOGE", Amount: "1",
		BurnTxHash: burnHash, NativeAddress: "D1",
		Status:    models.RedeemStatusPending,
		CreatedAt: time.Now().Add(-24 * time.Hour),
	}
	overdue := &models.RedeemRequest{
		EVMAddress: "0xUser", VaultID: "tdoge", Asset: "tDOGE", Amount: "1",
		BurnTxHash: burnHash[:64] + "ff", NativeAddress: "D1",
		Status:    models.RedeemStatusPending,
		CreatedAt: time.Now().Add(-9 * 24 * time.Hour),
	}
	done := &models.RedeemRequest{
		EVMAddress: "0xUser", VaultID: "tdoge", Asset: "tDOGE", Amount: "1",
		BurnTxHash: burnHash[:64] + "ee", NativeAddress: "D1", NativeTxID: "doge-tx",
		Status:    models.RedeemStatusCompleted,
		CreatedAt: time.Now().Add(-20 * 24 * time.Hour),
	}
	for _, r := range []*models.RedeemRequest{fresh, overdue, done} {
		require.NoError(t, redeemRepo.Create(context.Background(), r))
	}

	views, err := svc.ListByAddress(context.Background(), "0xUser", "")
	require.NoError(t, err)
	require.Len(t, views, 3)

	byHash := make(map[string]*RedeemRequestView)
	for _, v := range views {
		byHash[v.BurnTxHash] = v
	}

	// One day in: six days remain, rounded up.
	assert.Equal(t, 6, byHash[fresh.BurnTxHash].DaysRemaining)
	assert.False(t, byHash[fresh.BurnTxHash].Overdue)

	// Past the window: overdue is a flag, the status stays pending.
	assert.True(t, byHash[overdue.BurnTxHash].Overdue)
	assert.Equal(t, models.RedeemStatusPending, byHash[overdue.BurnTxHash].Status)

	// Terminal requests are never flagged regardless of age.
	assert.False(t, byHash[done.BurnTxHash].Overdue)
	assert.Zero(t, byHash[done.BurnTxHash].DaysRemaining)
}

func TestCountOverdue(t *testing.T) {
	defer setupTestConfig()()

	redeemRepo := newFakeRedeemRepo()
	svc := newTestRedeemService(redeemRepo, newFakeMintRepo(), nil)

	require.NoError(t, redeemRepo.Create(context.Background(), &models.RedeemRequest{
		EVMAddress: "0xUser", VaultID: "tdoge", BurnTxHash: burnHash,
		Status: models.RedeemStatusPending, CreatedAt: time.Now().Add(-10 * 24 * time.Hour),
	}))
	require.NoError(t, redeemRepo.Create(context.Background(), &models.RedeemRequest{
		EVMAddress: "0xUser", VaultID: "tdoge", BurnTxHash: burnHash[:64] + "ff",
		Status: models.RedeemStatusPending, CreatedAt: time.Now(),
	}))

	count, err := svc.CountOverdue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
