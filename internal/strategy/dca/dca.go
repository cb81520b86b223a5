// Package dca implements a dollar-cost-averaging strategy: on every tick,
// if the wallet's SOL balance is at least the configured reserve plus the
// buy amount, swap that fixed amount into the target mint (spec §4.7/§4.8, thin business math per §1's
// scope note — the interesting work lives in the AgentLoop, not here).
package dca

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
	strategy.Register("dca", New)
}

type dca struct {
	outputMint     solana.PublicKey
	buyAmount      uint64
	reserveLamport uint64
	slippageBps    uint16
	log            *logx.Logger
}

// New constructs a dca Strategy from cfg.Params: outputMint (base58
// string), buyAmountLamports, reserveLamports, slippageBps.
func New(cfg strategy.Config) (strategy.Strategy, error) {
	mintStr, _ := cfg.Params["outputMint"].(string)
	mint, err := solana.PublicKeyFromBase58(mintStr)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInvalidConfig, "dca: outputMint is not a valid public key", err)
	}
	buyAmount, _ := toUint64(cfg.Params["buyAmountLamports"])
	if buyAmount == 0 {
		return nil, apperr.New(apperr.CodeInvalidConfig, "dca: buyAmountLamports must be positive")
	}
	reserve, _ := toUint64(cfg.Params["reserveLamports"])
	slippage, _ := toUint64(cfg.Params["slippageBps"])

	return &dca{
		outputMint:     mint,
		buyAmount:      buyAmount,
		reserveLamport: reserve,
		slippageBps:    uint16(slippage),
		log:            cfg.Log,
	}, nil
}

func (d *dca) Name() string { return "dca" }

func (d *dca) Decide(ctx context.Context, state strategy.State) (strategy.Action, error) {
	if state.SolBalanceLamports < d.reserveLamport+d.buyAmount {
		return strategy.NoopAction(fmt.Sprintf("sol balance %d below reserve+buy threshold", state.SolBalanceLamports)), nil
	}
	return strategy.Action{
		Kind:      strategy.ActionSwap,
		Rationale: "scheduled dca buy",
		Swap: &strategy.SwapParams{
			InputMint:   solana.SolMint,
			OutputMint:  d.outputMint,
			AmountIn:    d.buyAmount,
			SlippageBps: d.slippageBps,
		},
	}, nil
}

func (d *dca) Execute(ctx context.Context, action strategy.Action, w *wallet.Client, registry *swap.Registry) (*sendengine.Result, error) {
	if action.Kind != strategy.ActionSwap {
		return nil, nil
	}
	return strategy.RunSwap(ctx, action.Swap, w, registry, d.log)
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
