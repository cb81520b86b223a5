package chain

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/mock"
)

// FakeClient is a testify/mock Client double, in the style of the example
// pack's generated service mocks (see replay-api's MockSolanaClient).
// internal/sendengine, internal/wallet, and internal/swap tests configure
// expectations on it instead of talking to a live RPC endpoint.
type FakeClient struct {
	mock.Mock
}

func (m *FakeClient) GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (solana.Hash, uint64, error) {
	ret := m.Called(ctx, commitment)
	hash, _ := ret.Get(0).(solana.Hash)
	height, _ := ret.Get(1).(uint64)
	return hash, height, ret.Error(2)
}

func (m *FakeClient) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	ret := m.Called(ctx, tx)
	sig, _ := ret.Get(0).(solana.Signature)
	return sig, ret.Error(1)
}

func (m *FakeClient) SimulateTransaction(ctx context.Context, tx *solana.Transaction) (*rpc.SimulateTransactionResult, error) {
	ret := m.Called(ctx, tx)
	res, _ := ret.Get(0).(*rpc.SimulateTransactionResult)
	return res, ret.Error(1)
}

func (m *FakeClient) GetSignatureStatuses(ctx context.Context, signatures []solana.Signature) ([]*rpc.SignatureStatusesResult, error) {
	ret := m.Called(ctx, signatures)
	res, _ := ret.Get(0).([]*rpc.SignatureStatusesResult)
	return res, ret.Error(1)
}

func (m *FakeClient) GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (uint64, error) {
	ret := m.Called(ctx, account, commitment)
	bal, _ := ret.Get(0).(uint64)
	return bal, ret.Error(1)
}

func (m *FakeClient) GetTokenAccountBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.UiTokenAmount, error) {
	ret := m.Called(ctx, account, commitment)
	bal, _ := ret.Get(0).(*rpc.UiTokenAmount)
	return bal, ret.Error(1)
}

func (m *FakeClient) GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error) {
	ret := m.Called(ctx, account)
	res, _ := ret.Get(0).(*rpc.GetAccountInfoResult)
	return res, ret.Error(1)
}

var _ Client = (*FakeClient)(nil)
