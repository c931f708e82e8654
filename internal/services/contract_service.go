package services

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"

	"tasset-backend/internal/config"
	"tasset-backend/internal/models"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// vaultManagerABI covers the three calls the lifecycles drive. The vault
// manager verifies the proof on-chain before minting; burn and approve are
// plain ERC-20 style entry points.
const vaultManagerABI = `[
	{"name":"mint","type":"function","inputs":[{"name":"proof","type":"bytes"},{"name":"publicValues","type":"bytes"}],"outputs":[]},
	{"name":"mintVerified","type":"function","inputs":[{"name":"recipient","type":"address"},{"name":"amount","type":"uint256"},{"name":"txId","type":"bytes32"}],"outputs":[]},
	{"name":"burn","type":"function","inputs":[{"name":"amount","type":"uint256"}],"outputs":[]},
	{"name":"approve","type":"function","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

// ContractService drives the vault manager contracts over JSON-RPC. One
// ethclient per configured chain id.
type ContractService struct {
	clients    map[int]*ethclient.Client
	managerABI abi.ABI
}

// NewContractService creates the service; call InitializeClients before use.
func NewContractService() (*ContractService, error) {
	parsed, err := abi.JSON(strings.NewReader(vaultManagerABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse vault manager ABI: %w", err)
	}
	return &ContractService{
		clients:    make(map[int]*ethclient.Client),
		managerABI: parsed,
	}, nil
}

// InitializeClients dials every enabled network. Endpoints are tried in
// order; a network with no reachable endpoint is skipped with a warning so
// the rest of the service still comes up.
func (s *ContractService) InitializeClients() error {
	if config.AppConfig == nil {
		return fmt.Errorf("configuration not loaded")
	}

	for name, network := range config.AppConfig.Blockchain.Networks {
		if !network.Enabled {
			continue
		}

		var client *ethclient.Client
		var err error
		for _, endpoint := range network.RPCEndpoints {
			client, err = ethclient.Dial(endpoint)
			if err == nil {
				break
			}
			log.Printf("⚠️ [Contract] Failed to dial %s endpoint %s: %v", name, endpoint, err)
		}
		if client == nil {
			log.Printf("❌ [Contract] No reachable RPC endpoint for network %s (chain %d)", name, network.ChainID)
			continue
		}

		s.clients[network.ChainID] = client
		log.Printf("✅ [Contract] Client ready for %s (chain %d)", name, network.ChainID)
	}

	if len(s.clients) == 0 {
		return fmt.Errorf("no blockchain clients initialized")
	}
	return nil
}

// GetClientCount returns the number of connected chains
func (s *ContractService) GetClientCount() int {
	return len(s.clients)
}

// Mint submits the mint transaction for a verified, whitelisted request.
// Proof-gated vaults pass the proof bundle as calldata; UTXO-verified vaults
// go through the pre-verified mint entry point keyed by the deposit tx hash.
func (s *ContractService) Mint(ctx context.Context, vault *config.VaultConfig, request *models.MintRequest) (string, error) {
	var data []byte
	var err error

	if request.Proof != "" {
		var bundle models.ProofBundle
		if err := json.Unmarshal([]byte(request.Proof), &bundle); err != nil {
			return "", fmt.Errorf("failed to decode proof bundle: %w", err)
		}
		proofBytes, err := decodeHexField(bundle.Proof)
		if err != nil {
			return "", fmt.Errorf("failed to decode proof bytes: %w", err)
		}
		publicValues, err := decodeHexField(bundle.PublicValues)
		if err != nil {
			return "", fmt.Errorf("failed to decode public values: %w", err)
		}
		data, err = s.managerABI.Pack("mint", proofBytes, publicValues)
		if err != nil {
			return "", fmt.Errorf("failed to pack mint call: %w", err)
		}
	} else {
		amount, ok := new(big.Int).SetString(request.Amount, 10)
		if !ok {
			return "", fmt.Errorf("invalid amount %q", request.Amount)
		}
		var txID [32]byte
		copy(txID[:], common.FromHex(request.TxHash))
		data, err = s.managerABI.Pack("mintVerified", common.HexToAddress(request.EVMAddress), amount, txID)
		if err != nil {
			return "", fmt.Errorf("failed to pack mintVerified call: %w", err)
		}
	}

	return s.submitTransaction(ctx, vault.ChainID, vault.ManagerContract, data)
}

// Burn submits a burn of the t-asset through the vault manager
func (s *ContractService) Burn(ctx context.Context, vault *config.VaultConfig, amount *big.Int) (string, error) {
	data, err := s.managerABI.Pack("burn", amount)
	if err != nil {
		return "", fmt.Errorf("failed to pack burn call: %w", err)
	}
	return s.submitTransaction(ctx, vault.ChainID, vault.ManagerContract, data)
}

// Approve submits an ERC-20 approval on the vault's token contract
func (s *ContractService) Approve(ctx context.Context, vault *config.VaultConfig, spender string, amount *big.Int) (string, error) {
	data, err := s.managerABI.Pack("approve", common.HexToAddress(spender), amount)
	if err != nil {
		return "", fmt.Errorf("failed to pack approve call: %w", err)
	}
	return s.submitTransaction(ctx, vault.ChainID, vault.TokenContract, data)
}

// submitTransaction signs and broadcasts a contract call with the network's
// relayer key and returns the transaction hash.
func (s *ContractService) submitTransaction(ctx context.Context, chainID int, contractAddr string, data []byte) (string, error) {
	client, ok := s.clients[chainID]
	if !ok {
		return "", fmt.Errorf("no client for chain %d", chainID)
	}

	network, ok := config.AppConfig.GetNetworkByChainID(chainID)
	if !ok {
		return "", fmt.Errorf("chain %d is not configured", chainID)
	}

	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(network.PrivateKey, "0x"))
	if err != nil {
		return "", fmt.Errorf("invalid relayer private key for chain %d: %w", chainID, err)
	}
	fromAddress := crypto.PubkeyToAddress(privateKey.PublicKey)

	nonce, err := client.PendingNonceAt(ctx, fromAddress)
	if err != nil {
		return "", fmt.Errorf("failed to get nonce: %w", err)
	}

	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get gas price: %w", err)
	}

	gasLimit := network.GasLimit
	if gasLimit == 0 {
		gasLimit = 500000
	}

	to := common.HexToAddress(contractAddr)
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    big.NewInt(0),
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})

	signedTx, err := types.SignTx(tx, types.NewEIP155Signer(big.NewInt(int64(chainID))), privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := client.SendTransaction(ctx, signedTx); err != nil {
		return "", &ContractCallError{Err: err}
	}

	txHash := signedTx.Hash().Hex()
	log.Printf("📤 [Contract] Broadcast tx %s to %s (chain %d)", txHash, contractAddr, chainID)
	return txHash, nil
}

// WaitForReceipt polls for the receipt of a broadcast transaction. The
// caller's context bounds the wait; a context error is returned as-is so the
// lifecycle can keep its in-flight marker instead of assuming failure.
func (s *ContractService) WaitForReceipt(ctx context.Context, chainID int, txHash string) (*ReceiptResult, error) {
	client, ok := s.clients[chainID]
	if !ok {
		return nil, fmt.Errorf("no client for chain %d", chainID)
	}

	hash := common.HexToHash(txHash)
	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()

	for {
		receipt, err := client.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			result := &ReceiptResult{
				Success:     receipt.Status == types.ReceiptStatusSuccessful,
				TxHash:      txHash,
				BlockNumber: receipt.BlockNumber.Uint64(),
			}
			if !result.Success {
				result.RevertReason = s.revertReason(ctx, client, hash, receipt)
			}
			return result, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			log.Printf("⚠️ [Contract] Receipt query for %s failed: %v", txHash, err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// revertReason replays the failed call at its block to recover the revert
// string. Best effort: many nodes prune the state needed for the replay.
func (s *ContractService) revertReason(ctx context.Context, client *ethclient.Client, hash common.Hash, receipt *types.Receipt) string {
	tx, _, err := client.TransactionByHash(ctx, hash)
	if err != nil || tx == nil {
		return ""
	}

	signer := types.LatestSignerForChainID(tx.ChainId())
	from, err := types.Sender(signer, tx)
	if err != nil {
		return ""
	}

	msg := ethereum.CallMsg{
		From:     from,
		To:       tx.To(),
		Gas:      tx.Gas(),
		GasPrice: tx.GasPrice(),
		Value:    tx.Value(),
		Data:     tx.Data(),
	}
	ret, err := client.CallContract(ctx, msg, receipt.BlockNumber)
	if err != nil {
		return strings.TrimPrefix(err.Error(), "execution reverted: ")
	}
	if reason, err := abi.UnpackRevert(ret); err == nil {
		return reason
	}
	return ""
}

func decodeHexField(value string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(value, "0x"))
}
