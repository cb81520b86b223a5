package swap

import (
	"context"
	"crypto/ed25519"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tos-network/agentwallet/internal/apperr"
	"github.com/tos-network/agentwallet/internal/chain"
	"github.com/tos-network/agentwallet/internal/guard"
	"github.com/tos-network/agentwallet/internal/logx"
	"github.com/tos-network/agentwallet/internal/sendengine"
	"github.com/tos-network/agentwallet/internal/wallet"
)

type stubAdapter struct {
	name  string
	quote Quote
	err   error
}

func (s *stubAdapter) Name() string { return s.name }

func (s *stubAdapter) Quote(ctx context.Context, inputMint, outputMint solana.PublicKey, amountIn uint64) (Quote, error) {
	if s.err != nil {
		return Quote{}, s.err
	}
	q := s.quote
	q.InputMint = inputMint
	q.OutputMint = outputMint
	q.InAmount = amountIn
	return q, nil
}

func (s *stubAdapter) BuildSwapTransaction(ctx context.Context, owner solana.PublicKey, quote Quote, slippageBps uint16) (*solana.Transaction, error) {
	return nil, nil
}

var mintA = solana.PublicKey{1}
var mintB = solana.PublicKey{2}

// TestGetBestQuotePrefersHigherOutAmount is spec §8 scenario 4: jupiter
// quotes 9_500_000 out, orca quotes 9_800_000 out; orca wins.
func TestGetBestQuotePrefersHigherOutAmount(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubAdapter{name: "jupiter", quote: Quote{OutAmount: 9_500_000, Provider: "jupiter"}})
	r.Register(&stubAdapter{name: "orca", quote: Quote{OutAmount: 9_800_000, Provider: "orca"}})

	q, err := r.GetBestQuote(context.Background(), mintA, mintB, 10_000_000)
	require.NoError(t, err)
	assert.Equal(t, "orca", q.Provider)
	assert.Equal(t, uint64(9_800_000), q.OutAmount)
}

// TestGetBestQuoteFallsBackWhenBestAdapterUnavailable is spec §8 scenario 4
// continued: if orca raises adapterUnavailable, the jupiter quote wins.
func TestGetBestQuoteFallsBackWhenBestAdapterUnavailable(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubAdapter{name: "jupiter", quote: Quote{OutAmount: 9_500_000, Provider: "jupiter"}})
	r.Register(&stubAdapter{name: "orca", err: apperr.New(apperr.CodeAdapterUnavailable, "orca is down")})

	q, err := r.GetBestQuote(context.Background(), mintA, mintB, 10_000_000)
	require.NoError(t, err)
	assert.Equal(t, "jupiter", q.Provider)
	assert.Equal(t, uint64(9_500_000), q.OutAmount)
}

// TestGetBestQuoteFailsWhenAllAdaptersFail is spec §8 scenario 4's final
// case: both adapters fail, the aggregate result is quoteFailed.
func TestGetBestQuoteFailsWhenAllAdaptersFail(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubAdapter{name: "jupiter", err: apperr.New(apperr.CodeAdapterUnavailable, "jupiter is down")})
	r.Register(&stubAdapter{name: "orca", err: apperr.New(apperr.CodeAdapterUnavailable, "orca is down")})

	_, err := r.GetBestQuote(context.Background(), mintA, mintB, 10_000_000)
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, apperr.CodeQuoteFailed))
}

func TestGetUnknownAdapterReturnsAdapterUnavailable(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get("jupiter")
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, apperr.CodeAdapterUnavailable))
}

func TestGetBestQuoteTieBreaksByRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubAdapter{name: "jupiter", quote: Quote{OutAmount: 9_000_000, Provider: "jupiter"}})
	r.Register(&stubAdapter{name: "orca", quote: Quote{OutAmount: 9_000_000, Provider: "orca"}})

	q, err := r.GetBestQuote(context.Background(), mintA, mintB, 10_000_000)
	require.NoError(t, err)
	assert.Equal(t, "jupiter", q.Provider)
}

type recordingLogger struct {
	warned bool
}

func (r *recordingLogger) Warn(msg string, ctx ...interface{}) { r.warned = true }

type buildableAdapter struct {
	stubAdapter
}

func (b *buildableAdapter) BuildSwapTransaction(ctx context.Context, owner solana.PublicKey, quote Quote, slippageBps uint16) (*solana.Transaction, error) {
	ix := system.NewTransferInstruction(1, owner, owner).Build()
	return solana.NewTransaction([]solana.Instruction{ix}, solana.Hash{}, solana.TransactionPayer(owner))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func testWallet(t *testing.T, fake *chain.FakeClient) *wallet.Client {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	identity := wallet.NewSigningIdentity(priv)
	cfg := wallet.Config{
		RPCURL:     "https://api.devnet.solana.com",
		Commitment: rpc.CommitmentConfirmed,
		Limits:     guard.Limits{MaxPerTxLamports: 1_000_000_000, MaxSessionLamports: 5_000_000_000},
		SendConfig: sendengine.DefaultConfig(),
	}
	log := logx.New(discardWriter{}, logx.LevelCrit)
	c, err := wallet.New(identity, fake, cfg, log)
	require.NoError(t, err)
	return c
}

// TestSwapWarnsWithoutFailingOnLowActualOutput preserves the source's
// explicitly flagged behavior (spec §9): a confirmed swap whose actual
// output falls below the quote's otherAmountThreshold only warns, it does
// not return an error.
func TestSwapWarnsWithoutFailingOnLowActualOutput(t *testing.T) {
	fake := new(chain.FakeClient)
	sig := solana.Signature{7}
	fake.On("GetLatestBlockhash", mock.Anything, mock.Anything).Return(solana.Hash{1}, uint64(100), nil)
	fake.On("SimulateTransaction", mock.Anything, mock.Anything).Return((*rpc.SimulateTransactionResult)(nil), nil)
	fake.On("SendTransaction", mock.Anything, mock.Anything).Return(sig, nil)
	fake.On("GetSignatureStatuses", mock.Anything, mock.Anything).Return([]*rpc.SignatureStatusesResult{
		{Slot: 10, ConfirmationStatus: rpc.ConfirmationStatusConfirmed},
	}, nil)
	// pre-swap balance then post-swap balance (only a 100-unit gain, below threshold).
	fake.On("GetTokenAccountBalance", mock.Anything, mock.Anything, mock.Anything).Return(&rpc.UiTokenAmount{Amount: "0"}, nil).Once()
	fake.On("GetTokenAccountBalance", mock.Anything, mock.Anything, mock.Anything).Return(&rpc.UiTokenAmount{Amount: "100"}, nil).Once()

	w := testWallet(t, fake)
	quote := Quote{
		InputMint:            mintA,
		OutputMint:           mintB,
		InAmount:             10_000_000,
		OutAmount:            9_800_000,
		OtherAmountThreshold: 9_500_000,
		Provider:             "orca",
	}
	a := &buildableAdapter{stubAdapter: stubAdapter{name: "orca", quote: quote}}
	log := &recordingLogger{}

	result, err := Swap(context.Background(), a, w, quote, 50, log)
	require.NoError(t, err)
	assert.Equal(t, sendengine.StatusConfirmed, result.Status)
	assert.Equal(t, uint64(100), result.ActualOutAmount)
	assert.True(t, log.warned, "expected a warning when actual output is below otherAmountThreshold")
}
