// Package manager implements the MultiAgentManager (spec §4.8): the
// concurrent supervisor that owns the shared AuditDb, RPC client, and swap
// registry, and spawns one isolated AgentLoop per configured agent.
package manager

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/shopspring/decimal"

	"github.com/tos-network/agentwallet/internal/apperr"
	"github.com/tos-network/agentwallet/internal/guard"
)

const lamportsPerSOLDecimal = "1000000000"

// AgentConfig is one entry of the agents configuration file (spec §4.8/§6).
type AgentConfig struct {
	ID             string                 `json:"id"`
	KeystorePath   string                 `json:"keystorePath"`
	Strategy       string                 `json:"strategy"`
	StrategyParams map[string]interface{} `json:"strategyParams"`
	IntervalMs     int                    `json:"intervalMs"`
	Limits         limitsConfig           `json:"limits"`
}

// limitsConfig accepts either SOL floats or lamport integers; exactly one
// representation may be given per side (spec §6).
type limitsConfig struct {
	MaxPerTxSol          *decimalValue `json:"maxPerTxSol"`
	MaxSessionSol        *decimalValue `json:"maxSessionSol"`
	MaxPerTxLamports     *decimalValue `json:"maxPerTxLamports"`
	MaxSessionLamports   *decimalValue `json:"maxSessionLamports"`
	DestinationAllowlist []string      `json:"destinationAllowlist"`
}

// decimalValue unmarshals either a JSON number or a JSON string into a
// decimal.Decimal, matching the §6 "string or numeric" allowance for
// lamport limits.
type decimalValue struct {
	decimal.Decimal
}

func (d *decimalValue) UnmarshalJSON(b []byte) error {
	var raw interface{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		parsed, err := decimal.NewFromString(v)
		if err != nil {
			return err
		}
		d.Decimal = parsed
	case float64:
		d.Decimal = decimal.NewFromFloat(v)
	default:
		return fmt.Errorf("limit value must be a string or number")
	}
	return nil
}

var validStrategyKinds = map[string]bool{
	"dca":          true,
	"rebalancer":   true,
	"monitor":      true,
	"market_maker": true,
}

// LoadConfigFile reads and validates the agents configuration file at
// path, converting each entry's limits to lamports (spec §4.8/§6).
func LoadConfigFile(path string) ([]AgentConfig, []guard.Limits, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.CodeInvalidConfig, fmt.Sprintf("read agents config %q", path), err)
	}
	return ParseConfig(raw)
}

// ParseConfig validates a JSON array of AgentConfig entries and returns
// both the entries and their resolved lamport Limits, index-aligned.
func ParseConfig(raw []byte) ([]AgentConfig, []guard.Limits, error) {
	var entries []AgentConfig
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, nil, apperr.Wrap(apperr.CodeInvalidConfig, "agents config must be a JSON array", err)
	}
	if len(entries) == 0 {
		return nil, nil, apperr.New(apperr.CodeInvalidConfig, "agents config must contain at least one entry")
	}

	seen := make(map[string]bool, len(entries))
	limits := make([]guard.Limits, len(entries))
	for i, e := range entries {
		if e.ID == "" {
			return nil, nil, apperr.New(apperr.CodeInvalidConfig, fmt.Sprintf("agents config entry %d: id must not be empty", i))
		}
		if seen[e.ID] {
			return nil, nil, apperr.New(apperr.CodeInvalidConfig, fmt.Sprintf("agents config entry %d: duplicate agent id %q", i, e.ID))
		}
		seen[e.ID] = true

		if e.KeystorePath == "" {
			return nil, nil, apperr.New(apperr.CodeInvalidConfig, fmt.Sprintf("agent %q: keystorePath must not be empty", e.ID))
		}
		if !validStrategyKinds[e.Strategy] {
			return nil, nil, apperr.New(apperr.CodeInvalidConfig, fmt.Sprintf("agent %q: strategy must be one of dca|rebalancer|monitor|market_maker, got %q", e.ID, e.Strategy))
		}
		if e.IntervalMs <= 0 {
			return nil, nil, apperr.New(apperr.CodeInvalidConfig, fmt.Sprintf("agent %q: intervalMs must be positive", e.ID))
		}

		l, err := resolveLimits(e.ID, e.Limits)
		if err != nil {
			return nil, nil, err
		}
		limits[i] = l
	}

	return entries, limits, nil
}

// resolveLimits converts a limitsConfig to lamport-denominated guard.Limits.
// SOL and lamport forms are mutually exclusive per side; mixing is rejected
// as ambiguous rather than silently preferring one (spec §6 leaves this an
// open question — resolved here in favor of the stricter reading).
func resolveLimits(agentID string, l limitsConfig) (guard.Limits, error) {
	perTx, err := resolveOneLimit(agentID, "maxPerTx", l.MaxPerTxSol, l.MaxPerTxLamports)
	if err != nil {
		return guard.Limits{}, err
	}
	session, err := resolveOneLimit(agentID, "maxSession", l.MaxSessionSol, l.MaxSessionLamports)
	if err != nil {
		return guard.Limits{}, err
	}
	return guard.Limits{
		MaxPerTxLamports:     perTx,
		MaxSessionLamports:   session,
		DestinationAllowlist: l.DestinationAllowlist,
	}, nil
}

func resolveOneLimit(agentID, field string, sol, lamports *decimalValue) (uint64, error) {
	switch {
	case sol != nil && lamports != nil:
		return 0, apperr.New(apperr.CodeInvalidConfig, fmt.Sprintf("agent %q: specify either %sSol or %sLamports, not both", agentID, field, field))
	case sol != nil:
		if sol.IsNegative() {
			return 0, apperr.New(apperr.CodeInvalidConfig, fmt.Sprintf("agent %q: %sSol must not be negative", agentID, field))
		}
		v := sol.Mul(decimal.RequireFromString(lamportsPerSOLDecimal)).Round(0)
		return v.BigInt().Uint64(), nil
	case lamports != nil:
		if lamports.IsNegative() {
			return 0, apperr.New(apperr.CodeInvalidConfig, fmt.Sprintf("agent %q: %sLamports must not be negative", agentID, field))
		}
		return lamports.Round(0).BigInt().Uint64(), nil
	default:
		return 0, apperr.New(apperr.CodeInvalidConfig, fmt.Sprintf("agent %q: %s limit must be specified (Sol or Lamports form)", agentID, field))
	}
}
