// Package chain narrows gagliardetto/solana-go's rpc.Client down to the
// handful of calls the wallet runtime actually needs, so that
// internal/sendengine, internal/wallet, and internal/swap can be tested
// against a fake instead of a live devnet endpoint.
package chain

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"golang.org/x/time/rate"
)

// Client is the RPC surface the rest of the runtime depends on. The
// concrete implementation wraps *rpc.Client; tests substitute a fake.
type Client interface {
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (solana.Hash, uint64, error)
	SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	SimulateTransaction(ctx context.Context, tx *solana.Transaction) (*rpc.SimulateTransactionResult, error)
	GetSignatureStatuses(ctx context.Context, signatures []solana.Signature) ([]*rpc.SignatureStatusesResult, error)
	GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (uint64, error)
	GetTokenAccountBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.UiTokenAmount, error)
	GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error)
}

// defaultRequestsPerSecond bounds the client's own call rate against a
// shared public RPC endpoint (e.g. api.devnet.solana.com), which throttles
// well below what N concurrent agent loops could otherwise generate.
const defaultRequestsPerSecond = 10

// client adapts *rpc.Client to Client, self-throttled so that every agent
// loop sharing this Client (spec §4.8's "shared RPC client" isolation
// clause) cannot collectively exceed one call budget.
type client struct {
	rpc     *rpc.Client
	limiter *rate.Limiter
}

// New wraps a gagliardetto/solana-go rpc.Client at endpoint, rate-limited
// to defaultRequestsPerSecond with a matching burst allowance.
func New(endpoint string) Client {
	return &client{
		rpc:     rpc.New(endpoint),
		limiter: rate.NewLimiter(rate.Limit(defaultRequestsPerSecond), defaultRequestsPerSecond),
	}
}

func (c *client) wait(ctx context.Context) error {
	return c.limiter.Wait(ctx)
}

func (c *client) GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (solana.Hash, uint64, error) {
	if err := c.wait(ctx); err != nil {
		return solana.Hash{}, 0, err
	}
	out, err := c.rpc.GetLatestBlockhash(ctx, commitment)
	if err != nil {
		return solana.Hash{}, 0, err
	}
	return out.Value.Blockhash, out.Value.LastValidBlockHeight, nil
}

func (c *client) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	if err := c.wait(ctx); err != nil {
		return solana.Signature{}, err
	}
	return c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       true,
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
}

func (c *client) SimulateTransaction(ctx context.Context, tx *solana.Transaction) (*rpc.SimulateTransactionResult, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	out, err := c.rpc.SimulateTransactionWithOpts(ctx, tx, &rpc.SimulateTransactionOpts{
		SigVerify:  false,
		Commitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return nil, err
	}
	return out.Value, nil
}

func (c *client) GetSignatureStatuses(ctx context.Context, signatures []solana.Signature) ([]*rpc.SignatureStatusesResult, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	out, err := c.rpc.GetSignatureStatuses(ctx, true, signatures...)
	if err != nil {
		return nil, err
	}
	return out.Value, nil
}

func (c *client) GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (uint64, error) {
	if err := c.wait(ctx); err != nil {
		return 0, err
	}
	out, err := c.rpc.GetBalance(ctx, account, commitment)
	if err != nil {
		return 0, err
	}
	return out.Value, nil
}

func (c *client) GetTokenAccountBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.UiTokenAmount, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	out, err := c.rpc.GetTokenAccountBalance(ctx, account, commitment)
	if err != nil {
		return nil, err
	}
	return out.Value, nil
}

func (c *client) GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	return c.rpc.GetAccountInfo(ctx, account)
}
