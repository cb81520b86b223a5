// Package monitor implements the read-only strategy: it gathers state
// every tick, logs it, and never executes a transaction (spec §4.7/§4.8).
// Used for agents that watch a wallet without ever spending from it.
package monitor

import (
	"context"

	"github.com/tos-network/agentwallet/internal/logx"
	"github.com/tos-network/agentwallet/internal/sendengine"
	"github.com/tos-network/agentwallet/internal/strategy"
	"github.com/tos-network/agentwallet/internal/swap"
	"github.com/tos-network/agentwallet/internal/wallet"
)

func init() {
	strategy.Register("monitor", New)
}

type monitor struct {
	log *logx.Logger
}

// New constructs a monitor Strategy. It takes no parameters.
func New(cfg strategy.Config) (strategy.Strategy, error) {
	return &monitor{log: cfg.Log}, nil
}

func (m *monitor) Name() string { return "monitor" }

func (m *monitor) Decide(ctx context.Context, state strategy.State) (strategy.Action, error) {
	if m.log != nil {
		m.log.Info("monitor tick", "sol_balance_lamports", state.SolBalanceLamports, "tick_count", state.TickCount)
	}
	return strategy.NoopAction("monitor strategy never trades"), nil
}

func (m *monitor) Execute(ctx context.Context, action strategy.Action, w *wallet.Client, registry *swap.Registry) (*sendengine.Result, error) {
	return nil, nil
}
