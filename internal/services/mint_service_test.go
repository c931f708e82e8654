package services

import (
	"context"
	"errors"
	"testing"

	"tasset-backend/internal/clients"
	"tasset-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMintService(repo *fakeMintRepo, prover *fakeProver, verifier *fakeVerifier, gateway *fakeGateway, events *fakePublisher) *MintService {
	var publisher EventPublisher
	if events != nil {
		publisher = events
	}
	return NewMintService(repo, prover, verifier, gateway, publisher, nil, nil)
}

func proofSubmission() *SubmitMintInput {
	return &SubmitMintInput{
		EVMAddress:    "0xAbCd000000000000000000000000000000000001",
		ChainName:     "base-sepolia",
		ChainID:       84532,
		VaultID:       "tdoge",
		TxHash:        "a1b2c3d4e5f6a7b8c9d0a1b2c3d4e5f6",
		ClaimedAmount: "150000000",
	}
}

func TestSubmitMintRequestProofPath(t *testing.T) {
	defer setupTestConfig()()

	repo := newFakeMintRepo()
	prover := &fakeProver{bundle: &models.ProofBundle{
		TotalAmount:   150000000,
		SenderAddress: "DDogeSender1",
		VKey:          "0xvk",
		PublicValues:  "0xdead",
		Proof:         "0xbeef",
	}}
	events := &fakePublisher{}
	svc := newTestMintService(repo, prover, &fakeVerifier{}, &fakeGateway{}, events)

	record, created, err := svc.SubmitMintRequest(context.Background(), proofSubmission())
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, models.MintStatusVerified, record.Status)
	assert.Equal(t, "DDogeSender1", record.NativeAddress)
	assert.Equal(t, "150000000", record.Amount) // prover amount wins over the claim
	assert.NotEmpty(t, record.Proof)
	assert.False(t, record.Whitelisted)
	assert.Equal(t, 1, prover.calls)
	assert.Contains(t, events.subjects(), clients.SubjectMintVerified)
}

func TestSubmitMintRequestDuplicateHashIsIdempotent(t *testing.T) {
	defer setupTestConfig()()

	repo := newFakeMintRepo()
	prover := &fakeProver{bundle: &models.ProofBundle{TotalAmount: 1, SenderAddress: "D1", Proof: "0x01"}}
	svc := newTestMintService(repo, prover, &fakeVerifier{}, &fakeGateway{}, nil)

	first, created, err := svc.SubmitMintRequest(context.Background(), proofSubmission())
	require.NoError(t, err)
	require.True(t, created)

	// Same hash again, even from a different wallet: the existing record
	// comes back and the prover is not consulted a second time.
	input := proofSubmission()
	input.EVMAddress = "0xAbCd000000000000000000000000000000000002"
	second, created, err := svc.SubmitMintRequest(context.Background(), input)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, prover.calls)
}

func TestSubmitMintRequestProofFailureLeavesNothingBehind(t *testing.T) {
	defer setupTestConfig()()

	repo := newFakeMintRepo()
	prover := &fakeProver{err: clients.ErrProofUnavailable}
	svc := newTestMintService(repo, prover, &fakeVerifier{}, &fakeGateway{}, nil)

	_, _, err := svc.SubmitMintRequest(context.Background(), proofSubmission())
	require.ErrorIs(t, err, clients.ErrProofUnavailable)

	// Nothing persisted, so the user can resubmit the same hash.
	_, err = repo.GetByTxHash(context.Background(), proofSubmission().TxHash)
	assert.Error(t, err)

	prover.err = nil
	prover.bundle = &models.ProofBundle{TotalAmount: 5, SenderAddress: "D1", Proof: "0x01"}
	_, created, err := svc.SubmitMintRequest(context.Background(), proofSubmission())
	require.NoError(t, err)
	assert.True(t, created)
}

func TestSubmitMintRequestUTXOPath(t *testing.T) {
	defer setupTestConfig()()

	repo := newFakeMintRepo()
	verifier := &fakeVerifier{verification: &clients.UTXOVerification{
		Amount:        42000,
		FromAddress:   "bc1qsender",
		ToAddress:     "bc1qcustody",
		Confirmations: 10,
		UTXO:          "txid:0",
	}}
	svc := newTestMintService(repo, &fakeProver{}, verifier, &fakeGateway{}, nil)

	input := proofSubmission()
	input.VaultID = "tbtc"
	input.NativeAddress = "bc1qsender"

	record, created, err := svc.SubmitMintRequest(context.Background(), input)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, models.MintStatusVerified, record.Status)
	assert.Equal(t, "42000", record.Amount)
	assert.Equal(t, "txid:0", record.UTXO)
	assert.Empty(t, record.Proof)
	assert.Equal(t, 1, verifier.calls)
}

func TestSubmitMintRequestUnknownVault(t *testing.T) {
	defer setupTestConfig()()

	svc := newTestMintService(newFakeMintRepo(), &fakeProver{}, &fakeVerifier{}, &fakeGateway{}, nil)

	input := proofSubmission()
	input.VaultID = "tltc"
	_, _, err := svc.SubmitMintRequest(context.Background(), input)
	assert.ErrorIs(t, err, ErrUnknownVault)
}

func TestWhitelistMintRequest(t *testing.T) {
	defer setupTestConfig()()

	repo := newFakeMintRepo()
	prover := &fakeProver{bundle: &models.ProofBundle{TotalAmount: 1, SenderAddress: "D1", Proof: "0x01"}}
	events := &fakePublisher{}
	svc := newTestMintService(repo, prover, &fakeVerifier{}, &fakeGateway{}, events)

	record, _, err := svc.SubmitMintRequest(context.Background(), proofSubmission())
	require.NoError(t, err)

	updated, err := svc.WhitelistMintRequest(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MintStatusWhitelisted, updated.Status)
	assert.True(t, updated.Whitelisted)
	assert.True(t, updated.ReadyToMint())
	assert.Contains(t, events.subjects(), clients.SubjectMintWhitelisted)

	// Whitelisting twice is an invalid transition, not a silent no-op.
	_, err = svc.WhitelistMintRequest(context.Background(), record.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestRejectIsDistinctFromMintFailed(t *testing.T) {
	defer setupTestConfig()()

	repo := newFakeMintRepo()
	prover := &fakeProver{bundle: &models.ProofBundle{TotalAmount: 1, SenderAddress: "D1", Proof: "0x01"}}
	svc := newTestMintService(repo, prover, &fakeVerifier{}, &fakeGateway{}, nil)

	record, _, err := svc.SubmitMintRequest(context.Background(), proofSubmission())
	require.NoError(t, err)

	rejected, err := svc.RejectMintRequest(context.Background(), record.ID, "suspicious deposit")
	require.NoError(t, err)
	assert.Equal(t, models.MintStatusRejected, rejected.Status)
	assert.Empty(t, rejected.MintError)

	// A rejected request can never be whitelisted or re-rejected.
	_, err = svc.WhitelistMintRequest(context.Background(), record.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = svc.RejectMintRequest(context.Background(), record.ID, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func whitelistedRequest(t *testing.T, svc *MintService) *models.MintRequest {
	t.Helper()
	record, _, err := svc.SubmitMintRequest(context.Background(), proofSubmission())
	require.NoError(t, err)
	updated, err := svc.WhitelistMintRequest(context.Background(), record.ID)
	require.NoError(t, err)
	return updated
}

func TestExecuteMintSuccess(t *testing.T) {
	defer setupTestConfig()()

	repo := newFakeMintRepo()
	prover := &fakeProver{bundle: &models.ProofBundle{TotalAmount: 1, SenderAddress: "D1", PublicValues: "0xdead", Proof: "0xbeef"}}
	gateway := &fakeGateway{
		mintTxHash: "0xminttx",
		receipt:    &ReceiptResult{Success: true, TxHash: "0xminttx", BlockNumber: 1234},
	}
	events := &fakePublisher{}
	svc := newTestMintService(repo, prover, &fakeVerifier{}, gateway, events)

	record := whitelistedRequest(t, svc)

	minted, err := svc.ExecuteMint(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MintStatusMinted, minted.Status)
	assert.Equal(t, "0xminttx", minted.MintTxLink)
	assert.Empty(t, minted.PendingMintTx)
	assert.Contains(t, events.subjects(), clients.SubjectMintCompleted)
}

func TestExecuteMintRevertRecordsMintFailed(t *testing.T) {
	defer setupTestConfig()()

	repo := newFakeMintRepo()
	prover := &fakeProver{bundle: &models.ProofBundle{TotalAmount: 1, SenderAddress: "D1", Proof: "0x01"}}
	gateway := &fakeGateway{
		mintTxHash: "0xminttx",
		receipt:    &ReceiptResult{Success: false, TxHash: "0xminttx", RevertReason: "proof already used"},
	}
	svc := newTestMintService(repo, prover, &fakeVerifier{}, gateway, nil)

	record := whitelistedRequest(t, svc)

	failed, err := svc.ExecuteMint(context.Background(), record.ID)
	require.Error(t, err)
	require.NotNil(t, failed)
	assert.Equal(t, models.MintStatusMintFailed, failed.Status)
	assert.Equal(t, "proof already used", failed.MintError)
	assert.Empty(t, failed.MintTxLink) // never set on failure
	assert.Empty(t, failed.PendingMintTx)
}

func TestExecuteMintRequiresReadyState(t *testing.T) {
	defer setupTestConfig()()

	repo := newFakeMintRepo()
	prover := &fakeProver{bundle: &models.ProofBundle{TotalAmount: 1, SenderAddress: "D1", Proof: "0x01"}}
	svc := newTestMintService(repo, prover, &fakeVerifier{}, &fakeGateway{}, nil)

	record, _, err := svc.SubmitMintRequest(context.Background(), proofSubmission())
	require.NoError(t, err)

	// verified but not whitelisted
	_, err = svc.ExecuteMint(context.Background(), record.ID)
	assert.ErrorIs(t, err, ErrNotReadyToMint)
}

func TestExecuteMintInterruptedWaitLeavesInFlightMarker(t *testing.T) {
	defer setupTestConfig()()

	repo := newFakeMintRepo()
	prover := &fakeProver{bundle: &models.ProofBundle{TotalAmount: 1, SenderAddress: "D1", Proof: "0x01"}}
	gateway := &fakeGateway{
		mintTxHash: "0xminttx",
		receiptErr: context.DeadlineExceeded,
	}
	svc := newTestMintService(repo, prover, &fakeVerifier{}, gateway, nil)

	record := whitelistedRequest(t, svc)

	_, err := svc.ExecuteMint(context.Background(), record.ID)
	require.ErrorIs(t, err, ErrMintInFlight)

	// Broadcast hash recorded, status untouched: must not be read as failure.
	stored, err := repo.GetByID(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, "0xminttx", stored.PendingMintTx)
	assert.Equal(t, models.MintStatusWhitelisted, stored.Status)
	assert.Empty(t, stored.MintError)

	// A second execution attempt is refused while the first is unresolved.
	_, err = svc.ExecuteMint(context.Background(), record.ID)
	assert.ErrorIs(t, err, ErrMintInFlight)
}

func TestReconcileMintConfirmsInFlightTransaction(t *testing.T) {
	defer setupTestConfig()()

	repo := newFakeMintRepo()
	prover := &fakeProver{bundle: &models.ProofBundle{TotalAmount: 1, SenderAddress: "D1", Proof: "0x01"}}
	gateway := &fakeGateway{
		mintTxHash: "0xminttx",
		receiptErr: context.DeadlineExceeded,
	}
	svc := newTestMintService(repo, prover, &fakeVerifier{}, gateway, nil)

	record := whitelistedRequest(t, svc)
	_, err := svc.ExecuteMint(context.Background(), record.ID)
	require.ErrorIs(t, err, ErrMintInFlight)

	// The chain later confirms the transaction.
	gateway.receiptErr = nil
	gateway.receipt = &ReceiptResult{Success: true, TxHash: "0xminttx", BlockNumber: 99}

	minted, err := svc.ReconcileMint(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MintStatusMinted, minted.Status)
	assert.Equal(t, "0xminttx", minted.MintTxLink)
}

func TestReconcileMintClearsNeverBroadcastMarker(t *testing.T) {
	defer setupTestConfig()()

	repo := newFakeMintRepo()
	prover := &fakeProver{bundle: &models.ProofBundle{TotalAmount: 1, SenderAddress: "D1", Proof: "0x01"}}
	svc := newTestMintService(repo, prover, &fakeVerifier{}, &fakeGateway{}, nil)

	record := whitelistedRequest(t, svc)

	// Simulate a crash after the marker was written but before broadcast.
	stored, err := repo.GetByID(context.Background(), record.ID)
	require.NoError(t, err)
	stored.PendingMintTx = models.PendingMintTxMarker
	require.NoError(t, repo.Update(context.Background(), stored))

	recovered, err := svc.ReconcileMint(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Empty(t, recovered.PendingMintTx)
	assert.True(t, recovered.ReadyToMint())
}

func TestReconcileMintWithNothingOutstanding(t *testing.T) {
	defer setupTestConfig()()

	repo := newFakeMintRepo()
	prover := &fakeProver{bundle: &models.ProofBundle{TotalAmount: 1, SenderAddress: "D1", Proof: "0x01"}}
	svc := newTestMintService(repo, prover, &fakeVerifier{}, &fakeGateway{}, nil)

	record := whitelistedRequest(t, svc)

	_, err := svc.ReconcileMint(context.Background(), record.ID)
	assert.ErrorIs(t, err, ErrNothingToReconcile)
}

func TestSubmitMintRequestValidation(t *testing.T) {
	defer setupTestConfig()()

	svc := newTestMintService(newFakeMintRepo(), &fakeProver{}, &fakeVerifier{}, &fakeGateway{}, nil)

	input := proofSubmission()
	input.TxHash = ""
	_, _, err := svc.SubmitMintRequest(context.Background(), input)

	var validationErr *ValidationError
	require.True(t, errors.As(err, &validationErr))
	assert.Equal(t, "tx_hash", validationErr.Field)
}
