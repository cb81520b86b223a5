package manager

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tos-network/agentwallet/internal/apperr"
)

const validConfig = `[
  {
    "id": "dca-1",
    "keystorePath": "/keys/dca-1.json",
    "strategy": "dca",
    "strategyParams": {"outputMint": "So11111111111111111111111111111111111111112", "buyAmountLamports": 1000000},
    "intervalMs": 5000,
    "limits": {"maxPerTxSol": 0.5, "maxSessionSol": 2}
  },
  {
    "id": "mm-1",
    "keystorePath": "/keys/mm-1.json",
    "strategy": "market_maker",
    "strategyParams": {},
    "intervalMs": 10000,
    "limits": {"maxPerTxLamports": "500000000", "maxSessionLamports": 2000000000}
  }
]`

func TestParseConfigConvertsSolLimitsToLamports(t *testing.T) {
	entries, limits, err := ParseConfig([]byte(validConfig))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Len(t, limits, 2)

	assert.Equal(t, uint64(500_000_000), limits[0].MaxPerTxLamports)
	assert.Equal(t, uint64(2_000_000_000), limits[0].MaxSessionLamports)
}

func TestParseConfigAcceptsStringLamportLimits(t *testing.T) {
	_, limits, err := ParseConfig([]byte(validConfig))
	require.NoError(t, err)
	assert.Equal(t, uint64(500_000_000), limits[1].MaxPerTxLamports)
	assert.Equal(t, uint64(2_000_000_000), limits[1].MaxSessionLamports)
}

func TestParseConfigRejectsEmptyArray(t *testing.T) {
	_, _, err := ParseConfig([]byte(`[]`))
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, apperr.CodeInvalidConfig))
}

func TestParseConfigRejectsDuplicateIDs(t *testing.T) {
	raw := `[
	  {"id": "a", "keystorePath": "/k/a.json", "strategy": "monitor", "intervalMs": 1000, "limits": {"maxPerTxSol": 0.1, "maxSessionSol": 1}},
	  {"id": "a", "keystorePath": "/k/b.json", "strategy": "monitor", "intervalMs": 1000, "limits": {"maxPerTxSol": 0.1, "maxSessionSol": 1}}
	]`
	_, _, err := ParseConfig([]byte(raw))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate agent id")
}

func TestParseConfigRejectsUnknownStrategy(t *testing.T) {
	raw := `[{"id": "a", "keystorePath": "/k/a.json", "strategy": "moon-shot", "intervalMs": 1000, "limits": {"maxPerTxSol": 0.1, "maxSessionSol": 1}}]`
	_, _, err := ParseConfig([]byte(raw))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "strategy must be one of")
}

func TestParseConfigRejectsZeroInterval(t *testing.T) {
	raw := `[{"id": "a", "keystorePath": "/k/a.json", "strategy": "monitor", "intervalMs": 0, "limits": {"maxPerTxSol": 0.1, "maxSessionSol": 1}}]`
	_, _, err := ParseConfig([]byte(raw))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "intervalMs")
}

func TestParseConfigRejectsMixedSolAndLamportLimits(t *testing.T) {
	raw := `[{"id": "a", "keystorePath": "/k/a.json", "strategy": "monitor", "intervalMs": 1000,
	  "limits": {"maxPerTxSol": 0.1, "maxPerTxLamports": 100000000, "maxSessionSol": 1}}]`
	_, _, err := ParseConfig([]byte(raw))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not both")
}

func TestParseConfigRejectsMissingLimit(t *testing.T) {
	raw := `[{"id": "a", "keystorePath": "/k/a.json", "strategy": "monitor", "intervalMs": 1000, "limits": {"maxSessionSol": 1}}]`
	_, _, err := ParseConfig([]byte(raw))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be specified")
}
