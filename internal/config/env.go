// Package config parses and validates the process environment contract
// (spec §6) before any I/O happens. A validation failure is fatal and
// surfaces a readable diagnostic — no partial Env is ever returned.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"

	"github.com/tos-network/agentwallet/internal/apperr"
)

// Network is the chain environment this process is allowed to talk to.
type Network string

const (
	NetworkDevnet  Network = "devnet"
	NetworkTestnet Network = "testnet"
)

// NodeEnvProduction is the NODE_ENV value that disables every dev/test-only
// secret-loading path (spec §4.1, §4.10 Non-goal "mainnet operation").
const NodeEnvProduction = "production"

const (
	defaultRPCURL          = "https://api.devnet.solana.com"
	defaultAgentInterval   = 5000
	minPassphraseLen       = 8
	lamportsPerSOLDecimal  = "1000000000"
	envNodeEnv             = "NODE_ENV"
	envRPCURL              = "SOLANA_RPC_URL"
	envNetwork             = "SOLANA_NETWORK"
	envWalletPassword      = "WALLET_PASSWORD"
	envWalletSecretKey     = "WALLET_SECRET_KEY"
	envMaxPerTxSol         = "MAX_PER_TX_SOL"
	envMaxSessionSol       = "MAX_SESSION_SOL"
	envLogLevel            = "LOG_LEVEL"
	envAuditDBPath         = "AUDIT_DB_PATH"
	envAgentsConfigPath    = "AGENTS_CONFIG_PATH"
	envAgentIntervalMs     = "AGENT_INTERVAL_MS"
	envWalletSecretKeyPfx  = "WALLET_SECRET_KEY_"
)

// Env is the fully validated process environment.
type Env struct {
	NodeEnv          string
	RPCURL           string
	Network          Network
	WalletPassword   string
	WalletSecretKey  string // dev/test only; empty unless set and NodeEnv != production
	MaxPerTxLamports uint64
	MaxSessionLamport uint64
	LogLevel         string
	AuditDBPath      string
	AgentsConfigPath string
	AgentIntervalMs  int
}

// mainnetHostFragment is the substring that, if present in an RPC URL's
// host, marks it as a mainnet endpoint and therefore forbidden (spec §4.10).
const mainnetHostFragment = "mainnet-beta"

// Load reads and validates the environment contract from os.Environ.
func Load() (*Env, error) {
	e := &Env{
		NodeEnv:          firstNonEmpty(os.Getenv(envNodeEnv), "development"),
		RPCURL:           firstNonEmpty(os.Getenv(envRPCURL), defaultRPCURL),
		LogLevel:         firstNonEmpty(os.Getenv(envLogLevel), "info"),
		AuditDBPath:      firstNonEmpty(os.Getenv(envAuditDBPath), "audit.db"),
		AgentsConfigPath: os.Getenv(envAgentsConfigPath),
	}

	switch e.NodeEnv {
	case "development", "test", NodeEnvProduction:
	default:
		return nil, apperr.New(apperr.CodeInvalidConfig, fmt.Sprintf("NODE_ENV must be one of development|test|production, got %q", e.NodeEnv))
	}

	netRaw := firstNonEmpty(os.Getenv(envNetwork), string(NetworkDevnet))
	switch Network(netRaw) {
	case NetworkDevnet, NetworkTestnet:
		e.Network = Network(netRaw)
	default:
		return nil, apperr.New(apperr.CodeInvalidConfig, fmt.Sprintf("SOLANA_NETWORK must be devnet|testnet, got %q", netRaw))
	}

	if err := ValidateRPCURL(e.RPCURL); err != nil {
		return nil, err
	}

	e.WalletPassword = os.Getenv(envWalletPassword)
	if e.WalletPassword != "" && utf8.RuneCountInString(e.WalletPassword) < minPassphraseLen {
		return nil, apperr.New(apperr.CodeInvalidConfig, "WALLET_PASSWORD must be at least 8 characters")
	}

	rawSecret := os.Getenv(envWalletSecretKey)
	if rawSecret != "" {
		if e.NodeEnv == NodeEnvProduction {
			return nil, apperr.New(apperr.CodeInvalidConfig, "WALLET_SECRET_KEY is not permitted when NODE_ENV=production")
		}
		e.WalletSecretKey = rawSecret
	}

	perTx, err := parseSolEnv(envMaxPerTxSol)
	if err != nil {
		return nil, err
	}
	session, err := parseSolEnv(envMaxSessionSol)
	if err != nil {
		return nil, err
	}
	e.MaxPerTxLamports = perTx
	e.MaxSessionLamport = session

	interval := defaultAgentInterval
	if raw := os.Getenv(envAgentIntervalMs); raw != "" {
		v, convErr := strconv.Atoi(raw)
		if convErr != nil || v <= 0 {
			return nil, apperr.New(apperr.CodeInvalidConfig, fmt.Sprintf("AGENT_INTERVAL_MS must be a positive integer, got %q", raw))
		}
		interval = v
	}
	e.AgentIntervalMs = interval

	return e, nil
}

// ValidateRPCURL rejects any endpoint whose host matches the mainnet
// pattern (spec §4.10/§8 mainnetBlocked invariant).
func ValidateRPCURL(rawURL string) error {
	if strings.Contains(strings.ToLower(rawURL), mainnetHostFragment) {
		return apperr.New(apperr.CodeMainnetBlocked, "mainnet RPC endpoints are not permitted on this runtime")
	}
	return nil
}

func parseSolEnv(name string) (uint64, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, apperr.New(apperr.CodeInvalidConfig, fmt.Sprintf("%s must be a decimal number, got %q", name, raw))
	}
	lamports := d.Mul(decimal.RequireFromString(lamportsPerSOLDecimal)).Round(0)
	if lamports.IsNegative() {
		return 0, apperr.New(apperr.CodeInvalidConfig, fmt.Sprintf("%s must not be negative", name))
	}
	return lamports.BigInt().Uint64(), nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// PerAgentSecretEnvVar returns the per-agent override env var name for
// agentID, e.g. WALLET_SECRET_KEY_DCA_1 for agent id "dca-1" (spec §4.8).
func PerAgentSecretEnvVar(agentID string) string {
	upper := strings.ToUpper(agentID)
	upper = strings.Map(func(r rune) rune {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, upper)
	return envWalletSecretKeyPfx + upper
}

// LoadSecretFromEnvValue parses a 64-byte ed25519 keypair from a raw
// environment value, trying base58 first and a JSON byte array as a
// fallback on parse failure (spec §4.1 last paragraph, §9 open question —
// both forms are preserved deliberately; base58 is tried first).
//
// It is dev/test only: callers must reject this path when the process is
// marked production (enforced by the caller, which has the NodeEnv value).
func LoadSecretFromEnvValue(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, apperr.New(apperr.CodeInvalidConfig, "empty secret key value")
	}
	if decoded, err := base58.Decode(raw); err == nil && len(decoded) == 64 {
		return decoded, nil
	}
	var arr []byte
	if err := json.Unmarshal([]byte(raw), &arr); err == nil && len(arr) == 64 {
		return arr, nil
	}
	return nil, apperr.New(apperr.CodeInvalidConfig, "secret key must be a base58 string or a JSON array of 64 bytes")
}
