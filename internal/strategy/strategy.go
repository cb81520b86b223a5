// Package strategy defines the Strategy contract AgentLoop drives each tick
// (spec §4.7) and the tagged-variant Action the source's dynamic-cast
// pattern is redesigned into (spec §9): an ActionKind discriminant plus a
// oneof-style struct carrying exactly one populated params field, instead
// of an interface{} requiring a type switch downstream.
package strategy

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/tos-network/agentwallet/internal/apperr"
	"github.com/tos-network/agentwallet/internal/logx"
	"github.com/tos-network/agentwallet/internal/sendengine"
	"github.com/tos-network/agentwallet/internal/swap"
	"github.com/tos-network/agentwallet/internal/wallet"
)

// ActionKind discriminates Action's populated params field.
type ActionKind string

const (
	ActionSwap             ActionKind = "swap"
	ActionTransfer         ActionKind = "transfer"
	ActionProvideLiquidity ActionKind = "provide_liquidity"
	ActionNoop             ActionKind = "noop"
)

// SwapParams parameterizes an ActionSwap.
type SwapParams struct {
	InputMint   solana.PublicKey
	OutputMint  solana.PublicKey
	AmountIn    uint64
	SlippageBps uint16
}

// TransferParams parameterizes an ActionTransfer.
type TransferParams struct {
	Mint   *solana.PublicKey // nil means native SOL
	To     solana.PublicKey
	Amount uint64
}

// LpParams parameterizes an ActionProvideLiquidity.
type LpParams struct {
	PoolID  solana.PublicKey
	MintA   solana.PublicKey
	MintB   solana.PublicKey
	AmountA uint64
	AmountB uint64
}

// Action is the tagged-variant intent a strategy's Decide returns. Exactly
// one of Swap/Transfer/ProvideLiquidity is non-nil, matching Kind; Noop
// leaves all three nil.
type Action struct {
	Kind             ActionKind
	Rationale        string
	Swap             *SwapParams
	Transfer         *TransferParams
	ProvideLiquidity *LpParams
}

// NoopAction builds the no-op Action with the given rationale.
func NoopAction(rationale string) Action {
	return Action{Kind: ActionNoop, Rationale: rationale}
}

// TokenBalance is one entry of AgentState's balances map.
type TokenBalance struct {
	Mint   solana.PublicKey
	Amount uint64
}

// State is the ephemeral per-tick snapshot the loop's gather phase builds
// and hands to Decide; it is discarded after the tick (spec §3 AgentState
// snapshot).
type State struct {
	SolBalanceLamports uint64
	TokenBalances      map[solana.PublicKey]uint64
	TickCount          uint64
	LastActionAt       int64 // unix millis, zero if never
}

// Strategy is implemented by each trading strategy (dca, rebalancer,
// monitor, marketmaker). Decide must never block on chain I/O beyond what
// State already gathered; Execute performs the chain-crossing work.
type Strategy interface {
	Name() string
	Decide(ctx context.Context, state State) (Action, error)
	Execute(ctx context.Context, action Action, w *wallet.Client, registry *swap.Registry) (*sendengine.Result, error)
}

// Config is the strategy-specific parameter bag loaded from an agent's
// configuration entry (spec §4.8); concrete strategies type-assert the
// fields they need out of Params.
type Config struct {
	Kind   string
	Params map[string]interface{}
	Log    *logx.Logger
}

// Factory constructs a Strategy from Config.
type Factory func(cfg Config) (Strategy, error)

var registry = map[string]Factory{}

// Register adds a named strategy constructor to the factory map. Intended
// to be called from each strategy subpackage's init().
func Register(kind string, f Factory) {
	registry[kind] = f
}

// New constructs the strategy named by cfg.Kind.
func New(cfg Config) (Strategy, error) {
	f, ok := registry[cfg.Kind]
	if !ok {
		return nil, apperr.New(apperr.CodeInvalidConfig, fmt.Sprintf("unknown strategy kind %q", cfg.Kind))
	}
	return f(cfg)
}

// RunSwap is the shared ActionSwap executor: it asks the registry for the
// best quote across every adapter, resolves that adapter, and runs the
// shared swap.Swap flow. Every swap-capable strategy calls this from its
// own Execute rather than reimplementing quote/adapter plumbing.
func RunSwap(ctx context.Context, p *SwapParams, w *wallet.Client, registry *swap.Registry, log *logx.Logger) (*sendengine.Result, error) {
	if p == nil {
		return nil, apperr.New(apperr.CodeInvalidConfig, "swap action is missing its params")
	}
	best, err := registry.GetBestQuote(ctx, p.InputMint, p.OutputMint, p.AmountIn)
	if err != nil {
		return nil, err
	}
	adapter, err := registry.Get(best.Provider)
	if err != nil {
		return nil, err
	}
	result, err := swap.Swap(ctx, adapter, w, best, p.SlippageBps, log)
	if err != nil {
		return nil, err
	}
	return &result.Result, nil
}
