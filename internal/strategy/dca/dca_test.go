package dca

import (
	"context"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tos-network/agentwallet/internal/strategy"
)

func testConfig() strategy.Config {
	return strategy.Config{
		Kind: "dca",
		Params: map[string]interface{}{
			"outputMint":        solana.PublicKey{9, 9, 9}.String(),
			"buyAmountLamports": float64(100_000_000),
			"reserveLamports":   float64(50_000_000),
			"slippageBps":       float64(50),
		},
	}
}

func TestDecideNoopsBelowReservePlusBuy(t *testing.T) {
	s, err := New(testConfig())
	require.NoError(t, err)

	action, err := s.Decide(context.Background(), strategy.State{SolBalanceLamports: 100_000_000})
	require.NoError(t, err)
	assert.Equal(t, strategy.ActionNoop, action.Kind)
}

func TestDecideSwapsWhenAboveThreshold(t *testing.T) {
	s, err := New(testConfig())
	require.NoError(t, err)

	action, err := s.Decide(context.Background(), strategy.State{SolBalanceLamports: 1_000_000_000})
	require.NoError(t, err)
	require.Equal(t, strategy.ActionSwap, action.Kind)
	assert.Equal(t, uint64(100_000_000), action.Swap.AmountIn)
	assert.Equal(t, uint16(50), action.Swap.SlippageBps)
}

func TestNewRejectsZeroBuyAmount(t *testing.T) {
	cfg := testConfig()
	cfg.Params["buyAmountLamports"] = float64(0)
	_, err := New(cfg)
	require.Error(t, err)
}
