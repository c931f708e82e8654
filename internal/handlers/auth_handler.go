package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"log"

	"tasset-backend/internal/config"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// AuthHandler issues session tokens against a wallet signature
type AuthHandler struct{}

// AuthRequest is the wallet login payload
type AuthRequest struct {
	EVMAddress string `json:"evm_address" binding:"required"`
	Message    string `json:"message" binding:"required"`
	Signature  string `json:"signature" binding:"required"`
	ChainID    int    `json:"chain_id" binding:"required"`
}

// AuthResponse is the login result
type AuthResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token,omitempty"`
	Message string `json:"message"`
}

// JWTClaims are the session claims embedded in the user token
type JWTClaims struct {
	EVMAddress string `json:"evm_address"`
	ChainID    int    `json:"chain_id"`
	jwt.RegisteredClaims
}

// NewAuthHandler creates a new AuthHandler instance
func NewAuthHandler() *AuthHandler {
	return &AuthHandler{}
}

// GenerateNonceHandler returns a fresh message for the wallet to sign
func (h *AuthHandler) GenerateNonceHandler(c *gin.Context) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "failed to generate nonce",
		})
		return
	}

	nonceStr := hex.EncodeToString(nonce)
	timestamp := time.Now().Unix()
	message := fmt.Sprintf("t-asset login\nNonce: %s\nTimestamp: %d", nonceStr, timestamp)

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"nonce":     nonceStr,
		"message":   message,
		"timestamp": timestamp,
	})
}

// AuthenticateHandler verifies a wallet signature and issues a JWT session token
func (h *AuthHandler) AuthenticateHandler(c *gin.Context) {
	var req AuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, AuthResponse{
			Success: false,
			Message: fmt.Sprintf("invalid request: %v", err),
		})
		return
	}

	if !h.validateSignature(req.EVMAddress, req.Message, req.Signature) {
		c.JSON(http.StatusUnauthorized, AuthResponse{
			Success: false,
			Message: "signature verification failed",
		})
		return
	}

	token, err := h.generateJWTToken(req.EVMAddress, req.ChainID)
	if err != nil {
		log.Printf("❌ Failed to issue session token for %s: %v", req.EVMAddress, err)
		c.JSON(http.StatusInternalServerError, AuthResponse{
			Success: false,
			Message: "failed to issue token",
		})
		return
	}

	log.Printf("✅ Wallet authenticated: %s (chain %d)", req.EVMAddress, req.ChainID)
	c.JSON(http.StatusOK, AuthResponse{
		Success: true,
		Token:   token,
		Message: "authenticated",
	})
}

// validateSignature recovers the signer of an eth_sign style message and
// compares it to the claimed address.
func (h *AuthHandler) validateSignature(evmAddress, message, signature string) bool {
	sig, err := hexutil.Decode(signature)
	if err != nil || len(sig) != 65 {
		return false
	}

	// Wallets return v as 27/28; go-ethereum expects 0/1.
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	hash := crypto.Keccak256([]byte(prefixed))

	pubKey, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return false
	}

	recovered := crypto.PubkeyToAddress(*pubKey)
	return strings.EqualFold(recovered.Hex(), evmAddress)
}

func (h *AuthHandler) generateJWTToken(evmAddress string, chainID int) (string, error) {
	expiry := 24 * time.Hour
	if config.AppConfig != nil && config.AppConfig.JWT.ExpiryHours > 0 {
		expiry = time.Duration(config.AppConfig.JWT.ExpiryHours) * time.Hour
	}

	claims := JWTClaims{
		EVMAddress: evmAddress,
		ChainID:    chainID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Issuer:    "tasset-backend",
			Subject:   evmAddress,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(userJWTSecret())
}

func userJWTSecret() []byte {
	if config.AppConfig != nil && config.AppConfig.JWT.Secret != "" {
		return []byte(config.AppConfig.JWT.Secret)
	}
	return []byte("tasset-dev-secret")
}

// ValidateJWTToken verifies a user session token and returns its claims
func ValidateJWTToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return userJWTSecret(), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, fmt.Errorf("invalid token")
}
