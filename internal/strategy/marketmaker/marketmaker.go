// Package marketmaker implements a strategy that provides liquidity to a
// fixed pool whenever both sides of the wallet's tracked balances clear a
// minimum threshold (spec §4.7/§4.8). WalletClient exposes no dedicated
// liquidity-pool instruction (§1 scope: AMM SDKs are an external
// collaborator), so ProvideLiquidity is executed as a pair of SendToken
// transfers to the pool's token accounts — thin business math, per §1's
// scope note, standing in for a real AMM deposit instruction.
package marketmaker

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
	strategy.Register("market_maker", New)
}

type marketmaker struct {
	poolID     solana.PublicKey
	mintA      solana.PublicKey
	mintB      solana.PublicKey
	minAmountA uint64
	minAmountB uint64
	depositA   uint64
	depositB   uint64
	log        *logx.Logger
}

// New constructs a marketmaker Strategy from cfg.Params: poolId, mintA,
// mintB, minAmountA, minAmountB, depositA, depositB.
func New(cfg strategy.Config) (strategy.Strategy, error) {
	pool, err := pubkeyParam(cfg.Params, "poolId")
	if err != nil {
		return nil, err
	}
	mintA, err := pubkeyParam(cfg.Params, "mintA")
	if err != nil {
		return nil, err
	}
	mintB, err := pubkeyParam(cfg.Params, "mintB")
	if err != nil {
		return nil, err
	}
	minA, _ := toUint64(cfg.Params["minAmountA"])
	minB, _ := toUint64(cfg.Params["minAmountB"])
	depA, _ := toUint64(cfg.Params["depositA"])
	depB, _ := toUint64(cfg.Params["depositB"])
	if depA == 0 || depB == 0 {
		return nil, apperr.New(apperr.CodeInvalidConfig, "marketmaker: depositA and depositB must both be positive")
	}

	return &marketmaker{
		poolID: pool, mintA: mintA, mintB: mintB,
		minAmountA: minA, minAmountB: minB,
		depositA: depA, depositB: depB,
		log: cfg.Log,
	}, nil
}

func (m *marketmaker) Name() string { return "marketmaker" }

func (m *marketmaker) Decide(ctx context.Context, state strategy.State) (strategy.Action, error) {
	balA := state.TokenBalances[m.mintA]
	balB := state.TokenBalances[m.mintB]
	if balA < m.minAmountA+m.depositA || balB < m.minAmountB+m.depositB {
		return strategy.NoopAction(fmt.Sprintf("insufficient balances for liquidity deposit: have %d/%d, need reserve+%d/%d", balA, balB, m.depositA, m.depositB)), nil
	}
	return strategy.Action{
		Kind:      strategy.ActionProvideLiquidity,
		Rationale: "both sides of the pool clear their reserve threshold",
		ProvideLiquidity: &strategy.LpParams{
			PoolID:  m.poolID,
			MintA:   m.mintA,
			MintB:   m.mintB,
			AmountA: m.depositA,
			AmountB: m.depositB,
		},
	}, nil
}

func (m *marketmaker) Execute(ctx context.Context, action strategy.Action, w *wallet.Client, registry *swap.Registry) (*sendengine.Result, error) {
	if action.Kind != strategy.ActionProvideLiquidity || action.ProvideLiquidity == nil {
		return nil, nil
	}
	p := action.ProvideLiquidity

	resA, err := w.SendToken(ctx, p.MintA, m.poolID, p.AmountA)
	if err != nil {
		return nil, err
	}
	if resA.Status != sendengine.StatusConfirmed {
		return &resA, nil
	}
	resB, err := w.SendToken(ctx, p.MintB, m.poolID, p.AmountB)
	if err != nil {
		return &resA, err
	}
	return &resB, nil
}

func pubkeyParam(params map[string]interface{}, name string) (solana.PublicKey, error) {
	s, _ := params[name].(string)
	pk, err := solana.PublicKeyFromBase58(s)
	if err != nil {
		return solana.PublicKey{}, apperr.Wrap(apperr.CodeInvalidConfig, fmt.Sprintf("marketmaker: %s is not a valid public key", name), err)
	}
	return pk, nil
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
