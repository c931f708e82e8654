package config

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config application configuration structure
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	NATS       NATSConfig       `yaml:"nats"`
	Prover     ProverConfig     `yaml:"prover"`
	Verifier   VerifierConfig   `yaml:"verifier"`
	Blockchain BlockchainConfig `yaml:"blockchain"`
	Vaults     map[string]VaultConfig `yaml:"vaults"`
	Redeem     RedeemConfig     `yaml:"redeem"`
	CORS       CORSConfig       `yaml:"cors"`
	JWT        JWTConfig        `yaml:"jwt"`
	Admin      AdminConfig      `yaml:"admin"`
}

// ServerConfig server configuration
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig database configuration
type DatabaseConfig struct {
	DSN    string `yaml:"dsn"`
	Driver string `yaml:"driver"`
}

// NATSConfig NATS message server configuration
type NATSConfig struct {
	URL               string `yaml:"url"`
	Timeout           int    `yaml:"timeout"`
	ReconnectWait     int    `yaml:"reconnect_wait"`
	MaxReconnects     int    `yaml:"max_reconnects"`
	SettlementSubject string `yaml:"settlement_subject"` // subject the external settlement processor publishes to
}

// ProverConfig proof-generation service configuration
type ProverConfig struct {
	BaseURL     string `yaml:"baseUrl"`
	Timeout     int    `yaml:"timeout"` // seconds; proving takes seconds to low minutes
	ProofSystem string `yaml:"proofSystem"`
}

// VerifierConfig UTXO-chain lookup service configuration
type VerifierConfig struct {
	BaseURL          string `yaml:"baseUrl"`
	Timeout          int    `yaml:"timeout"`
	MinConfirmations int    `yaml:"minConfirmations"`
}

// BlockchainConfig EVM network configuration
type BlockchainConfig struct {
	Networks map[string]NetworkConfig `yaml:"networks"`
}

// NetworkConfig per-EVM-network configuration
type NetworkConfig struct {
	ChainID      int      `yaml:"chainId"`
	Name         string   `yaml:"name"`
	RPCEndpoints []string `yaml:"rpcEndpoints"`
	PrivateKey   string   `yaml:"privateKey"` // relayer key, hex without 0x prefix
	GasLimit     uint64   `yaml:"gasLimit"`
	Enabled      bool     `yaml:"enabled"`
}

// VaultConfig binds a native asset to its EVM token and manager contracts.
type VaultConfig struct {
	Name            string `yaml:"name"`        // display name, e.g. "Dogecoin Vault"
	Symbol          string `yaml:"symbol"`      // t-asset symbol, e.g. "tDOGE"
	NativeChain     string `yaml:"nativeChain"` // e.g. "dogecoin"
	ChainID         int    `yaml:"chainId"`     // EVM chain the t-asset lives on
	TokenContract   string `yaml:"tokenContract"`
	ManagerContract string `yaml:"managerContract"`
	DepositAddress  string `yaml:"depositAddress"` // custody address deposits must pay to
	// Verification selects how a native deposit is checked: "proof" goes
	// through the prover, "utxo" through the plain chain lookup.
	Verification string `yaml:"verification"`
	// InstitutionalAddress is the fallback native recipient for institutional
	// redeems that have no prior mint request on record.
	InstitutionalAddress string `yaml:"institutionalAddress"`
	Decimals             uint8  `yaml:"decimals"`
	Enabled              bool   `yaml:"enabled"`
}

// RedeemConfig redeem settlement configuration
type RedeemConfig struct {
	SettlementDays int `yaml:"settlementDays"` // nominal SLA, defaults to 7
}

// CORSConfig CORS configuration
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowedOrigins"`
	AllowCredentials bool     `yaml:"allowCredentials"`
	MaxAge           int      `yaml:"maxAge"`
}

// JWTConfig user session token configuration
type JWTConfig struct {
	Secret      string `yaml:"secret"`
	ExpiryHours int    `yaml:"expiryHours"`
}

// AdminConfig admin API access control configuration
type AdminConfig struct {
	AllowedIPs []string `yaml:"allowedIPs"` // IPs or CIDR ranges; empty means localhost-only
	TOTPSecret string   `yaml:"totpSecret"`
	JWTSecret  string   `yaml:"jwtSecret"`
}

var AppConfig *Config

// LoadConfig loads the YAML configuration file, preferring config.local.yaml
// when present, and applies environment overrides.
func LoadConfig(configPath string) error {
	if configPath == "" {
		configPath = "config.yaml"
		if _, err := os.Stat("config.local.yaml"); err == nil {
			configPath = "config.local.yaml"
			log.Printf("🔧 Using local configuration file: config.local.yaml")
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	overrideFromEnv(&config)
	applyDefaults(&config)

	fmt.Printf("📋 [Config] Prover: BaseURL=%s, Timeout=%d, ProofSystem=%s\n",
		config.Prover.BaseURL, config.Prover.Timeout, config.Prover.ProofSystem)
	fmt.Printf("📋 [Config] Verifier: BaseURL=%s, Timeout=%d\n", config.Verifier.BaseURL, config.Verifier.Timeout)
	fmt.Printf("📋 [Config] Vaults configured: %d\n", len(config.Vaults))
	for id, vault := range config.Vaults {
		fmt.Printf("   %s: %s (%s, verification=%s, enabled=%v)\n",
			id, vault.Symbol, vault.NativeChain, vault.Verification, vault.Enabled)
	}
	if len(config.Admin.AllowedIPs) > 0 {
		fmt.Printf("📋 [Config] Admin IP whitelist loaded: %d IPs/CIDRs configured\n", len(config.Admin.AllowedIPs))
	} else {
		fmt.Printf("📋 [Config] Admin IP whitelist: not configured (localhost-only mode)\n")
	}

	AppConfig = &config
	return nil
}

// overrideFromEnv applies environment variable overrides
func overrideFromEnv(config *Config) {
	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		config.Database.DSN = dsn
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if prover := os.Getenv("PROVER_BASE_URL"); prover != "" {
		config.Prover.BaseURL = prover
	}
	if verifier := os.Getenv("VERIFIER_BASE_URL"); verifier != "" {
		config.Verifier.BaseURL = verifier
	}
	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		config.NATS.URL = natsURL
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		config.JWT.Secret = secret
	}
	if secret := os.Getenv("ADMIN_TOTP_SECRET"); secret != "" {
		config.Admin.TOTPSecret = secret
	}
	if secret := os.Getenv("ADMIN_JWT_SECRET"); secret != "" {
		config.Admin.JWTSecret = secret
	}
}

// applyDefaults fills in the defaults the rest of the system assumes
func applyDefaults(config *Config) {
	if config.Redeem.SettlementDays <= 0 {
		config.Redeem.SettlementDays = 7
	}
	if config.Prover.Timeout <= 0 {
		config.Prover.Timeout = 600 // proving can take minutes
	}
	if config.Verifier.Timeout <= 0 {
		config.Verifier.Timeout = 30
	}
	if config.Verifier.MinConfirmations <= 0 {
		config.Verifier.MinConfirmations = 6
	}
	if config.JWT.ExpiryHours <= 0 {
		config.JWT.ExpiryHours = 24
	}
}

// GetNetworkByChainID returns the network configuration for a chain id.
func (c *Config) GetNetworkByChainID(chainID int) (*NetworkConfig, bool) {
	for _, network := range c.Blockchain.Networks {
		if network.ChainID == chainID && network.Enabled {
			return &network, true
		}
	}
	return nil, false
}

// GetVault returns the vault configuration for a vault id.
func (c *Config) GetVault(vaultID string) (*VaultConfig, bool) {
	vault, ok := c.Vaults[vaultID]
	if !ok || !vault.Enabled {
		return nil, false
	}
	return &vault, true
}
