// Package wallet implements the WalletClient capability object (spec §4.4):
// a factory-constructed handle that encloses a SigningIdentity in a private
// field and exposes only the operations named in the spec. No accessor,
// serialized form, or debug representation ever yields the secret bytes
// (spec §9 — "closure that owns a keypair" ported as an owned private
// field behind an opaque handle).
package wallet

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/computebudget"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/tos-network/agentwallet/internal/apperr"
	"github.com/tos-network/agentwallet/internal/chain"
	"github.com/tos-network/agentwallet/internal/config"
	"github.com/tos-network/agentwallet/internal/guard"
	"github.com/tos-network/agentwallet/internal/logx"
	"github.com/tos-network/agentwallet/internal/sendengine"
)

// rentExemptAccountEstimate is the nominal rent-sized spend estimate the
// guard sees for a token-account creation instruction (spec §4.4).
const rentExemptAccountEstimate = 5000

// priorityFeeMicroLamports is a fixed compute-unit price attached to every
// transaction this package builds, via the compute-budget program.
const priorityFeeMicroLamports = 1000

// Config parameterizes a WalletClient.
type Config struct {
	RPCURL     string
	Commitment rpc.CommitmentType
	Limits     guard.Limits
	SendConfig sendengine.Config
}

// Client is the wallet capability object. All fields are unexported:
// nothing outside this package can reach the signing identity.
type Client struct {
	identity SigningIdentity
	pub      solana.PublicKey
	rpc      chain.Client
	guard    *guard.Guard
	log      *logx.Logger
	cfg      Config
}

// New constructs a Client. Construction rejects any RPC endpoint whose
// host matches the mainnet pattern (spec §4.4/§4.10).
func New(identity SigningIdentity, rpcClient chain.Client, cfg Config, log *logx.Logger) (*Client, error) {
	if err := config.ValidateRPCURL(cfg.RPCURL); err != nil {
		return nil, err
	}
	g, err := guard.New(cfg.Limits)
	if err != nil {
		return nil, err
	}
	return &Client{
		identity: identity,
		pub:      identity.publicKey(),
		rpc:      rpcClient,
		guard:    g,
		log:      log.With("wallet_pk", identity.publicKey().String()),
		cfg:      cfg,
	}, nil
}

// PublicKey returns the wallet's public identifier.
func (c *Client) PublicKey() solana.PublicKey { return c.pub }

// String is the canonical form: the base58 public key and nothing else.
func (c *Client) String() string { return c.pub.String() }

// MarshalJSON mirrors String — serializing a Client yields the public key
// string and nothing else (spec §4.4 serialization contract).
func (c *Client) MarshalJSON() ([]byte, error) { return json.Marshal(c.pub.String()) }

// GoString satisfies fmt's %#v debug form with the same pubkey-only text.
func (c *Client) GoString() string { return fmt.Sprintf("WalletClient(%s)", c.pub.String()) }

// Close zeroes the enclosed signing identity. Call when the wallet is no
// longer needed.
func (c *Client) Close() { c.identity.zero() }

// GetSolBalance returns the wallet's lamport balance.
func (c *Client) GetSolBalance(ctx context.Context) (uint64, error) {
	bal, err := c.rpc.GetBalance(ctx, c.pub, c.cfg.Commitment)
	if err != nil {
		return 0, apperr.Wrap(apperr.CodeRPCError, "get balance failed", err)
	}
	return bal, nil
}

// GetTokenBalance returns the wallet's balance of mint, or zero if the
// associated token account does not exist.
func (c *Client) GetTokenBalance(ctx context.Context, mint solana.PublicKey) (uint64, error) {
	ata, _, err := solana.FindAssociatedTokenAddress(c.pub, mint)
	if err != nil {
		return 0, apperr.Wrap(apperr.CodeInvalidMint, "derive associated token address failed", err)
	}
	amount, err := c.rpc.GetTokenAccountBalance(ctx, ata, c.cfg.Commitment)
	if err != nil {
		return 0, nil // missing token account yields zero (spec §4.4)
	}
	if amount == nil {
		return 0, nil
	}
	var lamports uint64
	fmt.Sscan(amount.Amount, &lamports)
	return lamports, nil
}

// GetOrCreateTokenAccount returns the wallet's associated token account
// for mint, creating it if necessary. Creation passes through the
// send/confirm engine with a nominal rent-sized spend estimate.
func (c *Client) GetOrCreateTokenAccount(ctx context.Context, mint solana.PublicKey) (solana.PublicKey, error) {
	ata, _, err := solana.FindAssociatedTokenAddress(c.pub, mint)
	if err != nil {
		return solana.PublicKey{}, apperr.Wrap(apperr.CodeInvalidMint, "derive associated token address failed", err)
	}

	if _, err := c.rpc.GetAccountInfo(ctx, ata); err == nil {
		return ata, nil
	}

	ix := associatedtokenaccount.NewCreateInstruction(c.pub, c.pub, mint).Build()
	tx, err := c.buildTransaction(ix)
	if err != nil {
		return solana.PublicKey{}, err
	}
	result, err := c.signAndSend(ctx, tx, rentExemptAccountEstimate, "")
	if err != nil {
		return solana.PublicKey{}, err
	}
	if result.Status != sendengine.StatusConfirmed {
		return solana.PublicKey{}, apperr.New(apperr.CodeRPCError, fmt.Sprintf("create token account did not confirm: %s", result.Status))
	}
	return ata, nil
}

// SendSol transfers lamports to destination.
func (c *Client) SendSol(ctx context.Context, to solana.PublicKey, lamports uint64) (sendengine.Result, error) {
	if lamports == 0 {
		return sendengine.Result{}, apperr.New(apperr.CodeInvalidConfig, "sendSol: lamports must be positive")
	}
	balance, err := c.GetSolBalance(ctx)
	if err != nil {
		return sendengine.Result{}, err
	}
	if balance < lamports {
		return sendengine.Result{}, apperr.New(apperr.CodeInsufficientFund, fmt.Sprintf("balance %d is less than requested %d lamports", balance, lamports))
	}

	transferIx := system.NewTransferInstruction(lamports, c.pub, to).Build()
	tx, err := c.buildTransaction(transferIx)
	if err != nil {
		return sendengine.Result{}, err
	}
	return c.signAndSend(ctx, tx, lamports, to.String())
}

// SendToken transfers amount (in the mint's smallest unit) of mint to
// destination, creating destination's associated token account first
// when it does not already exist.
func (c *Client) SendToken(ctx context.Context, mint solana.PublicKey, to solana.PublicKey, amount uint64) (sendengine.Result, error) {
	sourceATA, err := c.GetOrCreateTokenAccount(ctx, mint)
	if err != nil {
		return sendengine.Result{}, err
	}

	destATA, _, err := solana.FindAssociatedTokenAddress(to, mint)
	if err != nil {
		return sendengine.Result{}, apperr.Wrap(apperr.CodeInvalidMint, "derive destination associated token address failed", err)
	}

	var instructions []solana.Instruction
	if _, err := c.rpc.GetAccountInfo(ctx, destATA); err != nil {
		instructions = append(instructions, associatedtokenaccount.NewCreateInstruction(c.pub, to, mint).Build())
	}

	mintInfo, err := c.rpc.GetAccountInfo(ctx, mint)
	decimals := uint8(0)
	if err == nil && mintInfo != nil {
		decimals = mintDecimalsFromAccount(mintInfo)
	}

	transferIx := token.NewTransferCheckedInstruction(amount, decimals, sourceATA, mint, destATA, c.pub, nil).Build()
	instructions = append(instructions, transferIx)

	tx, err := c.buildTransaction(instructions...)
	if err != nil {
		return sendengine.Result{}, err
	}
	return c.signAndSend(ctx, tx, 0, to.String())
}

// SignTransaction signs tx without a guard check. ONLY for adapter
// pre-submission signing paths that are then re-submitted via
// SignAndSendTransaction (spec §4.4/§4.5).
func (c *Client) SignTransaction(tx *solana.Transaction) (*solana.Transaction, error) {
	return c.signTransaction(tx)
}

// SignAndSendTransaction checks the spend guard (when estimatedLamports >
// 0) before signing, runs the send/confirm engine, and records spend on
// confirmation (spec §4.4).
func (c *Client) SignAndSendTransaction(ctx context.Context, tx *solana.Transaction, estimatedLamports uint64, destination string) (sendengine.Result, error) {
	return c.signAndSend(ctx, tx, estimatedLamports, destination)
}

// GetSpendingLimitStatus returns a non-sensitive snapshot of the guard.
func (c *Client) GetSpendingLimitStatus() guard.Status { return c.guard.GetStatus() }

func (c *Client) signAndSend(ctx context.Context, tx *solana.Transaction, estimatedLamports uint64, destination string) (sendengine.Result, error) {
	if estimatedLamports > 0 {
		if err := c.guard.Check(estimatedLamports, destination); err != nil {
			return sendengine.Result{}, err
		}
	}

	result := sendengine.Send(ctx, c.rpc, tx, c.signTransaction, c.cfg.SendConfig, c.log)
	if result.Status == sendengine.StatusConfirmed && estimatedLamports > 0 {
		if err := c.guard.Record(int64(estimatedLamports)); err != nil {
			c.log.Error("failed to record confirmed spend", "err", err)
		}
	}
	if result.Err != nil {
		return result, result.Err
	}
	return result, nil
}

func (c *Client) signTransaction(tx *solana.Transaction) (*solana.Transaction, error) {
	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeSigningFailed, "marshal transaction message failed", err)
	}
	idx := -1
	for i, key := range tx.Message.AccountKeys {
		if key.Equals(c.pub) {
			idx = i
			break
		}
	}
	if idx < 0 || idx >= int(tx.Message.Header.NumRequiredSignatures) {
		return nil, apperr.New(apperr.CodeSigningFailed, "wallet public key is not a required signer of this transaction")
	}
	for len(tx.Signatures) < int(tx.Message.Header.NumRequiredSignatures) {
		tx.Signatures = append(tx.Signatures, solana.Signature{})
	}
	tx.Signatures[idx] = solana.Signature(c.identity.sign(msg))
	return tx, nil
}

func (c *Client) buildTransaction(instructions ...solana.Instruction) (*solana.Transaction, error) {
	priceIx := computebudget.NewSetComputeUnitPriceInstruction(priorityFeeMicroLamports).Build()
	all := append([]solana.Instruction{priceIx}, instructions...)
	tx, err := solana.NewTransaction(all, solana.Hash{}, solana.TransactionPayer(c.pub))
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeRPCError, "build transaction failed", err)
	}
	return tx, nil
}

func mintDecimalsFromAccount(info *rpc.GetAccountInfoResult) uint8 {
	if info == nil || info.Value == nil {
		return 0
	}
	data := info.Value.Data.GetBinary()
	// SPL mint layout: decimals is the single byte at offset 44.
	if len(data) > 44 {
		return data[44]
	}
	return 0
}
