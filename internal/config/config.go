package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// AppConfig aggregates everything the gateway needs at startup.
type AppConfig struct {
	Server    ServerConfig
	Fees      FeeConfig
	Acquirers []AcquirerConfig
	Custodian CustodianConfig
	Chain     ChainConfig
	Escrow    EscrowConfig
	Database  DatabaseConfig
	APIKey    string
}

type ServerConfig struct {
	HTTPPort        int
	ShutdownTimeout time.Duration
}

type FeeConfig struct {
	HolderPercent   decimal.Decimal
	StandardPercent decimal.Decimal
}

// AcquirerConfig describes one payment acquirer. The order of the
// Acquirers slice is the failover priority.
type AcquirerConfig struct {
	Name     string
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

type CustodianConfig struct {
	Endpoint          string
	Environment       string
	SandboxAPIKey     string
	ProductionAPIKey  string
	PlatformRecipient string
	Timeout           time.Duration
}

// APIKey selects the credential for the configured environment.
func (c CustodianConfig) APIKey() string {
	if c.Environment == "production" {
		return c.ProductionAPIKey
	}
	return c.SandboxAPIKey
}

type ChainConfig struct {
	RPCURL          string
	TokenContract   string
	MinBalanceUnits int64
}

type EscrowConfig struct {
	StrictReleaseOrder bool
}

type DatabaseConfig struct {
	URL string
}

const (
	defaultHolderPercent   = "2.0"
	defaultStandardPercent = "5.0"
	defaultRemoteTimeout   = 30 * time.Second
)

// Load reads configuration from the environment.
func Load(logger *zap.Logger) (*AppConfig, error) {
	holderPct, err := envOrDecimal("FEE_PERCENT_HOLDER", defaultHolderPercent)
	if err != nil {
		return nil, fmt.Errorf("parse FEE_PERCENT_HOLDER: %w", err)
	}
	standardPct, err := envOrDecimal("FEE_PERCENT_STANDARD", defaultStandardPercent)
	if err != nil {
		return nil, fmt.Errorf("parse FEE_PERCENT_STANDARD: %w", err)
	}

	cfg := &AppConfig{
		Server: ServerConfig{
			HTTPPort:        envOrInt("API_HTTP_PORT", 8080),
			ShutdownTimeout: time.Duration(envOrInt("SHUTDOWN_TIMEOUT_SECONDS", 30)) * time.Second,
		},
		Fees: FeeConfig{
			HolderPercent:   holderPct,
			StandardPercent: standardPct,
		},
		Custodian: CustodianConfig{
			Endpoint:          envOr("CUSTODIAN_ENDPOINT", "https://api.provedor-escrow.com/v1"),
			Environment:       envOr("CUSTODIAN_ENVIRONMENT", "sandbox"),
			SandboxAPIKey:     envOr("CUSTODIAN_API_KEY_SANDBOX", ""),
			ProductionAPIKey:  envOr("CUSTODIAN_API_KEY_PRODUCTION", ""),
			PlatformRecipient: envOr("PLATFORM_RECIPIENT_ID", "APP_PLATFORM"),
			Timeout:           defaultRemoteTimeout,
		},
		Chain: ChainConfig{
			RPCURL:          envOr("WEB3_RPC_URL", ""),
			TokenContract:   envOr("TOKEN_CONTRACT_ADDRESS", ""),
			MinBalanceUnits: int64(envOrInt("MIN_BALANCE_UNITS", 100)),
		},
		Escrow: EscrowConfig{
			StrictReleaseOrder: envOrBool("ESCROW_STRICT_RELEASE_ORDER", false),
		},
		Database: DatabaseConfig{
			URL: envOr("DATABASE_URL", ""),
		},
		APIKey: envOr("API_SECRET_KEY", ""),
	}

	if cfg.APIKey == "" {
		logger.Warn("API_SECRET_KEY is empty, protected endpoints will reject all callers")
	}

	if err := cfg.loadAcquirers(logger); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadAcquirers reads the ordered priority list and the per-acquirer
// credentials, e.g. ACQUIRER_PRIORITY="acquirer_a,acquirer_b" with
// ACQUIRER_A_ENDPOINT / ACQUIRER_A_API_KEY.
func (c *AppConfig) loadAcquirers(logger *zap.Logger) error {
	priority := envOr("ACQUIRER_PRIORITY", "acquirer_a,acquirer_b")

	for _, name := range strings.Split(priority, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}

		prefix := strings.ToUpper(name) + "_"
		acq := AcquirerConfig{
			Name:     name,
			Endpoint: envOr(prefix+"ENDPOINT", "https://api.mercadopago.com"),
			APIKey:   envOr(prefix+"API_KEY", ""),
			Timeout:  defaultRemoteTimeout,
		}

		if acq.APIKey == "" {
			logger.Warn("acquirer API key is missing, skipping",
				zap.String("acquirer", name))
			continue
		}

		c.Acquirers = append(c.Acquirers, acq)
		logger.Info("acquirer configured",
			zap.String("acquirer", name),
			zap.Int("priority", len(c.Acquirers)))
	}

	if len(c.Acquirers) == 0 {
		return fmt.Errorf("no acquirers configured")
	}
	return nil
}

func envOr(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func envOrBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func envOrDecimal(key, fallback string) (decimal.Decimal, error) {
	return decimal.NewFromString(envOr(key, fallback))
}
