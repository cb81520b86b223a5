package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tos-network/agentwallet/internal/apperr"
)

func TestNewRejectsUnknownKind(t *testing.T) {
	_, err := New(Config{Kind: "not-a-real-strategy"})
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, apperr.CodeInvalidConfig))
}

func TestNoopActionHasNoPopulatedParams(t *testing.T) {
	a := NoopAction("nothing to do")
	assert.Equal(t, ActionNoop, a.Kind)
	assert.Nil(t, a.Swap)
	assert.Nil(t, a.Transfer)
	assert.Nil(t, a.ProvideLiquidity)
	assert.Equal(t, "nothing to do", a.Rationale)
}

func TestRunSwapRejectsNilParams(t *testing.T) {
	_, err := RunSwap(nil, nil, nil, nil, nil)
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, apperr.CodeInvalidConfig))
}
