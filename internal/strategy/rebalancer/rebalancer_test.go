package rebalancer

import (
	"context"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tos-network/agentwallet/internal/strategy"
)

var refMint = solana.PublicKey{4, 2}

func testConfig() strategy.Config {
	return strategy.Config{
		Kind: "rebalancer",
		Params: map[string]interface{}{
			"referenceMint":          refMint.String(),
			"targetSolBps":           float64(5000),
			"driftBps":               float64(500),
			"rebalanceChunkLamports": float64(10_000_000),
			"slippageBps":            float64(25),
		},
	}
}

func TestDecideNoopsWithinDriftBand(t *testing.T) {
	s, err := New(testConfig())
	require.NoError(t, err)

	state := strategy.State{
		SolBalanceLamports: 5_100_000_000,
		TokenBalances:      map[solana.PublicKey]uint64{refMint: 4_900_000_000},
	}
	action, err := s.Decide(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, strategy.ActionNoop, action.Kind)
}

func TestDecideSwapsSolToReferenceWhenOverweightSol(t *testing.T) {
	s, err := New(testConfig())
	require.NoError(t, err)

	state := strategy.State{
		SolBalanceLamports: 9_000_000_000,
		TokenBalances:      map[solana.PublicKey]uint64{refMint: 1_000_000_000},
	}
	action, err := s.Decide(context.Background(), state)
	require.NoError(t, err)
	require.Equal(t, strategy.ActionSwap, action.Kind)
	assert.True(t, action.Swap.InputMint.Equals(solana.SolMint))
	assert.True(t, action.Swap.OutputMint.Equals(refMint))
}

func TestDecideSwapsReferenceToSolWhenUnderweightSol(t *testing.T) {
	s, err := New(testConfig())
	require.NoError(t, err)

	state := strategy.State{
		SolBalanceLamports: 1_000_000_000,
		TokenBalances:      map[solana.PublicKey]uint64{refMint: 9_000_000_000},
	}
	action, err := s.Decide(context.Background(), state)
	require.NoError(t, err)
	require.Equal(t, strategy.ActionSwap, action.Kind)
	assert.True(t, action.Swap.InputMint.Equals(refMint))
	assert.True(t, action.Swap.OutputMint.Equals(solana.SolMint))
}
