package sendengine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tos-network/agentwallet/internal/chain"
	"github.com/tos-network/agentwallet/internal/logx"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RetryDelay = time.Millisecond
	cfg.PollInterval = time.Millisecond
	cfg.PollTimeout = 20 * time.Millisecond
	return cfg
}

func noopLogger() *logx.Logger {
	return logx.New(discardWriter{}, logx.LevelCrit)
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func identitySign(tx *solana.Transaction) (*solana.Transaction, error) { return tx, nil }

func TestSendConfirmsOnSuccess(t *testing.T) {
	fake := new(chain.FakeClient)
	blockhash := solana.Hash{1}
	sig := solana.Signature{2}

	fake.On("GetLatestBlockhash", mock.Anything, mock.Anything).Return(blockhash, uint64(100), nil)
	fake.On("SimulateTransaction", mock.Anything, mock.Anything).Return((*rpc.SimulateTransactionResult)(nil), nil)
	fake.On("SendTransaction", mock.Anything, mock.Anything).Return(sig, nil)
	fake.On("GetSignatureStatuses", mock.Anything, mock.Anything).Return([]*rpc.SignatureStatusesResult{
		{Slot: 42, ConfirmationStatus: rpc.ConfirmationStatusConfirmed},
	}, nil)

	tx := &solana.Transaction{}
	result := Send(context.Background(), fake, tx, identitySign, testConfig(), noopLogger())

	assert.Equal(t, StatusConfirmed, result.Status)
	assert.Equal(t, sig, result.Signature)
	assert.Equal(t, uint64(42), result.Slot)
}

func TestSendReturnsSimulatedOnSimulationRejection(t *testing.T) {
	fake := new(chain.FakeClient)
	blockhash := solana.Hash{1}

	fake.On("GetLatestBlockhash", mock.Anything, mock.Anything).Return(blockhash, uint64(100), nil)
	fake.On("SimulateTransaction", mock.Anything, mock.Anything).Return(&rpc.SimulateTransactionResult{
		Err: "custom program error: 0x1",
	}, nil)

	tx := &solana.Transaction{}
	result := Send(context.Background(), fake, tx, identitySign, testConfig(), noopLogger())

	assert.Equal(t, StatusSimulated, result.Status)
	assert.Error(t, result.Err)
	fake.AssertNotCalled(t, "SendTransaction", mock.Anything, mock.Anything)
}

func TestSendReturnsFailedOnSignerError(t *testing.T) {
	fake := new(chain.FakeClient)
	fake.On("GetLatestBlockhash", mock.Anything, mock.Anything).Return(solana.Hash{1}, uint64(100), nil)

	failingSign := func(tx *solana.Transaction) (*solana.Transaction, error) {
		return nil, errors.New("locked keystore")
	}

	result := Send(context.Background(), fake, &solana.Transaction{}, failingSign, testConfig(), noopLogger())
	assert.Equal(t, StatusFailed, result.Status)
	assert.Error(t, result.Err)
}

func TestSendExhaustsRetriesOnPersistentRPCFailure(t *testing.T) {
	fake := new(chain.FakeClient)
	fake.On("GetLatestBlockhash", mock.Anything, mock.Anything).
		Return(solana.Hash{}, uint64(0), errors.New("connection refused"))

	cfg := testConfig()
	cfg.MaxRetries = 3
	result := Send(context.Background(), fake, &solana.Transaction{}, identitySign, cfg, noopLogger())

	assert.Equal(t, StatusTimeout, result.Status)
	require.Error(t, result.Err)
	assert.Contains(t, result.Err.Error(), "Exhausted 3 attempts")
}

func TestSendTimesOutWhenConfirmationNeverArrives(t *testing.T) {
	fake := new(chain.FakeClient)
	sig := solana.Signature{9}
	fake.On("GetLatestBlockhash", mock.Anything, mock.Anything).Return(solana.Hash{1}, uint64(100), nil)
	fake.On("SimulateTransaction", mock.Anything, mock.Anything).Return((*rpc.SimulateTransactionResult)(nil), nil)
	fake.On("SendTransaction", mock.Anything, mock.Anything).Return(sig, nil)
	fake.On("GetSignatureStatuses", mock.Anything, mock.Anything).Return([]*rpc.SignatureStatusesResult{nil}, nil)

	result := Send(context.Background(), fake, &solana.Transaction{}, identitySign, testConfig(), noopLogger())
	assert.Equal(t, StatusTimeout, result.Status)
	assert.Equal(t, sig, result.Signature)
}
