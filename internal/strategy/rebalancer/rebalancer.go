// Package rebalancer implements a strategy that keeps a wallet's SOL
// balance near a target fraction of total tracked value by swapping the
// surplus or shortfall against one reference mint (spec §4.7/§4.8, thin
// business math per §1's scope note).
package rebalancer

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/tos-network/agentwallet/internal/apperr"
	"github.com/tos-network/agentwallet/internal/logx"
	"github.com/tos-network/agentwallet/internal/sendengine"
	"github.com/tos-network/agentwallet/internal/strategy"
	"github.com/tos-network/agentwallet/internal/swap"
	"github.com/tos-network/agentwallet/internal/wallet"
)

func init() {
	strategy.Register("rebalancer", New)
}

type rebalancer struct {
	referenceMint  solana.PublicKey
	targetSolBps   uint64 // target SOL share of SOL+reference-mint value, in basis points
	driftBps       uint64 // minimum drift before acting
	rebalanceChunk uint64 // AmountIn per rebalance swap, in the input mint's base units
	slippageBps    uint16
	log            *logx.Logger
}

// New constructs a rebalancer Strategy from cfg.Params: referenceMint,
// targetSolBps, driftBps, rebalanceChunkLamports, slippageBps.
func New(cfg strategy.Config) (strategy.Strategy, error) {
	mintStr, _ := cfg.Params["referenceMint"].(string)
	mint, err := solana.PublicKeyFromBase58(mintStr)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInvalidConfig, "rebalancer: referenceMint is not a valid public key", err)
	}
	targetBps, _ := toUint64(cfg.Params["targetSolBps"])
	driftBps, _ := toUint64(cfg.Params["driftBps"])
	chunk, _ := toUint64(cfg.Params["rebalanceChunkLamports"])
	if chunk == 0 {
		return nil, apperr.New(apperr.CodeInvalidConfig, "rebalancer: rebalanceChunkLamports must be positive")
	}
	slippage, _ := toUint64(cfg.Params["slippageBps"])

	return &rebalancer{
		referenceMint:  mint,
		targetSolBps:   targetBps,
		driftBps:       driftBps,
		rebalanceChunk: chunk,
		slippageBps:    uint16(slippage),
		log:            cfg.Log,
	}, nil
}

func (r *rebalancer) Name() string { return "rebalancer" }

func (r *rebalancer) Decide(ctx context.Context, state strategy.State) (strategy.Action, error) {
	refBalance := state.TokenBalances[r.referenceMint]
	total := state.SolBalanceLamports + refBalance
	if total == 0 {
		return strategy.NoopAction("no tracked balance to rebalance"), nil
	}

	solShareBps := (state.SolBalanceLamports * 10_000) / total
	var drift uint64
	if solShareBps > r.targetSolBps {
		drift = solShareBps - r.targetSolBps
	} else {
		drift = r.targetSolBps - solShareBps
	}
	if drift < r.driftBps {
		return strategy.NoopAction(fmt.Sprintf("sol share %d bps within drift band of target %d bps", solShareBps, r.targetSolBps)), nil
	}

	if solShareBps > r.targetSolBps {
		// over-weighted in SOL: swap SOL into the reference mint.
		return strategy.Action{
			Kind:      strategy.ActionSwap,
			Rationale: fmt.Sprintf("sol share %d bps exceeds target %d bps by more than drift band", solShareBps, r.targetSolBps),
			Swap: &strategy.SwapParams{
				InputMint:   solana.SolMint,
				OutputMint:  r.referenceMint,
				AmountIn:    r.rebalanceChunk,
				SlippageBps: r.slippageBps,
			},
		}, nil
	}
	return strategy.Action{
		Kind:      strategy.ActionSwap,
		Rationale: fmt.Sprintf("sol share %d bps below target %d bps by more than drift band", solShareBps, r.targetSolBps),
		Swap: &strategy.SwapParams{
			InputMint:   r.referenceMint,
			OutputMint:  solana.SolMint,
			AmountIn:    r.rebalanceChunk,
			SlippageBps: r.slippageBps,
		},
	}, nil
}

func (r *rebalancer) Execute(ctx context.Context, action strategy.Action, w *wallet.Client, registry *swap.Registry) (*sendengine.Result, error) {
	if action.Kind != strategy.ActionSwap {
		return nil, nil
	}
	return strategy.RunSwap(ctx, action.Swap, w, registry, r.log)
}

func toUint64(v interface{}) (uint64, bool) {
	switch n := v.(type) {
	case uint64:
		return n, true
	case int:
		return uint64(n), true
	case float64:
		return uint64(n), true
	default:
		return 0, false
	}
}
