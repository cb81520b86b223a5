// Package guard implements the synchronous pre-signing spend gate (spec
// §4.2). It is deliberately tiny and allocation-free on the hot path: a
// mutex-guarded counter, grounded on the same sync.Mutex/RWMutex-over-plain-
// struct idiom the teacher uses for its in-memory agent registry
// (agent/registry.go).
package guard

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/tos-network/agentwallet/internal/apperr"
)

const lamportsPerSOL = 1_000_000_000

// Limits is the immutable spending configuration for one wallet session.
type Limits struct {
	MaxPerTxLamports     uint64
	MaxSessionLamports   uint64
	DestinationAllowlist []string // nil means "allow any"; non-nil must be non-empty
}

// Status is a non-sensitive introspection snapshot (spec §4.4 getSpendingLimitStatus).
type Status struct {
	MaxPerTxLamports   uint64
	MaxSessionLamports uint64
	SessionSpent       uint64
	SessionRemaining   uint64
}

// Guard enforces per-transaction, per-session, and allowlist invariants
// ahead of every signing operation. check is synchronous and side-effect
// free; record is the only mutator (spec §4.2 invariant).
type Guard struct {
	limits Limits

	mu           sync.Mutex
	sessionSpent uint64
}

// New validates limits and returns a Guard with a zero session spend.
func New(limits Limits) (*Guard, error) {
	if limits.MaxPerTxLamports == 0 {
		return nil, apperr.New(apperr.CodeInvalidConfig, "maxPerTxLamports must be greater than zero")
	}
	if limits.MaxSessionLamports == 0 {
		return nil, apperr.New(apperr.CodeInvalidConfig, "maxSessionLamports must be greater than zero")
	}
	if limits.MaxPerTxLamports > limits.MaxSessionLamports {
		return nil, apperr.New(apperr.CodeInvalidConfig, "maxPerTxLamports must not exceed maxSessionLamports")
	}
	if limits.DestinationAllowlist != nil && len(limits.DestinationAllowlist) == 0 {
		return nil, apperr.New(apperr.CodeInvalidConfig, "destination allowlist must be non-empty when provided")
	}
	return &Guard{limits: limits}, nil
}

// Check reports whether estimatedLamports may be spent to destination,
// without mutating any state. destination may be empty when the caller
// has no specific recipient yet to check against an allowlist.
func (g *Guard) Check(estimatedLamports uint64, destination string) error {
	g.mu.Lock()
	spent := g.sessionSpent
	g.mu.Unlock()

	// The session cap is checked first, so an amount that breaches both
	// limits is reported as a session-cap breach.
	if spent+estimatedLamports > g.limits.MaxSessionLamports {
		return apperr.New(apperr.CodeLimitBreach, fmt.Sprintf(
			"session cap exceeded: session spend %s SOL plus requested %s SOL would exceed cap %s SOL",
			solString(spent), solString(estimatedLamports), solString(g.limits.MaxSessionLamports)))
	}

	if estimatedLamports > g.limits.MaxPerTxLamports {
		return apperr.New(apperr.CodeLimitBreach, fmt.Sprintf(
			"per-tx limit exceeded: requested %s SOL, limit %s SOL",
			solString(estimatedLamports), solString(g.limits.MaxPerTxLamports)))
	}

	if g.limits.DestinationAllowlist != nil {
		if destination == "" || !contains(g.limits.DestinationAllowlist, destination) {
			return apperr.New(apperr.CodeLimitBreach, fmt.Sprintf(
				"destination %q is not on the allowlist", destination))
		}
	}

	return nil
}

// Record increments the session spend by actualLamports. Callers MUST
// invoke this only after a confirmed TxResult (spec §4.2).
func (g *Guard) Record(actualLamports int64) error {
	if actualLamports < 0 {
		return apperr.New(apperr.CodeInvalidConfig, "record: actualLamports must not be negative")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sessionSpent += uint64(actualLamports)
	return nil
}

// GetSessionSpend returns the current session spend in lamports.
func (g *Guard) GetSessionSpend() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sessionSpent
}

// GetStatus returns a non-sensitive snapshot of the guard's state.
func (g *Guard) GetStatus() Status {
	g.mu.Lock()
	spent := g.sessionSpent
	g.mu.Unlock()

	remaining := uint64(0)
	if g.limits.MaxSessionLamports > spent {
		remaining = g.limits.MaxSessionLamports - spent
	}
	return Status{
		MaxPerTxLamports:   g.limits.MaxPerTxLamports,
		MaxSessionLamports: g.limits.MaxSessionLamports,
		SessionSpent:       spent,
		SessionRemaining:   remaining,
	}
}

// Reset zeroes the session spend. Test-only (spec §4.2).
func (g *Guard) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sessionSpent = 0
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// solString renders a lamport amount as a fixed-point SOL string with six
// decimal places, matching the format in spec §8 scenario 2 ("0.100000").
func solString(lamports uint64) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(lamports), 0).
		Div(decimal.NewFromInt(lamportsPerSOL)).
		StringFixed(6)
}
