// Package sendengine implements the blockhash-refresh/simulate/retry/confirm
// pipeline described in spec §4.3. It never sees a raw secret key: the only
// way it obtains a signed transaction is through the caller-supplied Signer
// callback.
package sendengine

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/tos-network/agentwallet/internal/apperr"
	"github.com/tos-network/agentwallet/internal/chain"
	"github.com/tos-network/agentwallet/internal/logx"
)

// Status is the terminal classification of a send attempt (spec §4.3).
type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
	StatusTimeout   Status = "timeout"
	StatusSimulated Status = "simulated" // simulation rejected the transaction before send
)

// Result is the outcome of Send.
type Result struct {
	Status       Status
	Signature    solana.Signature
	Slot         uint64
	ComputeUnits uint64
	Err          error
}

// Signer attaches signatures to tx and returns it signed. It is the only
// channel through which the engine touches key material — it never
// receives the raw secret itself.
type Signer func(tx *solana.Transaction) (*solana.Transaction, error)

// Config parameterizes one Send call.
type Config struct {
	MaxRetries         int
	RetryDelay         time.Duration
	Commitment         rpc.CommitmentType
	SimulateBeforeSend bool
	PollInterval       time.Duration
	PollTimeout        time.Duration
	FetchComputeUnits  bool
}

// DefaultConfig mirrors the values implied by spec §4.3 (2s poll interval,
// 60s poll timeout).
func DefaultConfig() Config {
	return Config{
		MaxRetries:         5,
		RetryDelay:         500 * time.Millisecond,
		Commitment:         rpc.CommitmentConfirmed,
		SimulateBeforeSend: true,
		PollInterval:       2 * time.Second,
		PollTimeout:        60 * time.Second,
	}
}

// Send runs the algorithm from spec §4.3: refresh blockhash, sign, simulate,
// submit, retry on transient failure with exponential backoff, then poll
// for confirmation.
func Send(ctx context.Context, rpcClient chain.Client, tx *solana.Transaction, sign Signer, cfg Config, log *logx.Logger) Result {
	delay := cfg.RetryDelay
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxRetries; attempt++ {
		blockhash, _, err := rpcClient.GetLatestBlockhash(ctx, cfg.Commitment)
		if err != nil {
			log.Warn("blockhash fetch failed, retrying", "attempt", attempt, "err", err)
			lastErr = err
			sleep(ctx, delay)
			delay *= 2
			continue
		}
		tx.Message.RecentBlockhash = blockhash

		signed, err := sign(tx)
		if err != nil {
			return Result{Status: StatusFailed, Err: apperr.Wrap(apperr.CodeSigningFailed, "signer callback failed", err)}
		}

		if cfg.SimulateBeforeSend {
			simResult, simErr := rpcClient.SimulateTransaction(ctx, signed)
			if simErr == nil && simResult != nil && simResult.Err != nil {
				return Result{Status: StatusSimulated, Err: apperr.New(apperr.CodeSimulationFailed, fmt.Sprintf("simulation rejected: %v", simResult.Err))}
			}
			if simErr != nil {
				log.Warn("simulation RPC call failed, proceeding to send", "attempt", attempt, "err", simErr)
			}
		}

		sig, sendErr := rpcClient.SendTransaction(ctx, signed)
		if sendErr != nil {
			switch classifySendError(sendErr) {
			case sendErrBlockhashExpired, sendErrTransient:
				log.Warn("submission failed, retrying", "attempt", attempt, "err", sendErr)
				lastErr = sendErr
				sleep(ctx, delay)
				delay *= 2
				continue
			default:
				return Result{Status: StatusFailed, Err: apperr.Wrap(apperr.CodeRPCError, "transaction submission rejected", sendErr)}
			}
		}

		return pollForConfirmation(ctx, rpcClient, sig, cfg, log)
	}

	return Result{
		Status: StatusTimeout,
		Err:    apperr.New(apperr.CodeRPCError, fmt.Sprintf("Exhausted %d attempts: %v", cfg.MaxRetries, lastErr)),
	}
}

func pollForConfirmation(ctx context.Context, rpcClient chain.Client, sig solana.Signature, cfg Config, log *logx.Logger) Result {
	deadline := time.Now().Add(cfg.PollTimeout)
	for time.Now().Before(deadline) {
		statuses, err := rpcClient.GetSignatureStatuses(ctx, []solana.Signature{sig})
		if err == nil && len(statuses) == 1 && statuses[0] != nil {
			st := statuses[0]
			if st.Err != nil {
				return Result{Status: StatusFailed, Signature: sig, Err: apperr.New(apperr.CodeRPCError, fmt.Sprintf("transaction failed on-chain: %v", st.Err))}
			}
			if meetsCommitment(st.ConfirmationStatus, cfg.Commitment) {
				// Compute units require a follow-up GetTransaction call, which
				// the narrow chain.Client seam does not expose; ComputeUnits
				// is always left unset and cfg.FetchComputeUnits has no
				// effect.
				return Result{Status: StatusConfirmed, Signature: sig, Slot: st.Slot}
			}
		} else if err != nil {
			log.Warn("signature status poll failed", "signature", sig.String(), "err", err)
		}
		sleep(ctx, cfg.PollInterval)
	}
	return Result{Status: StatusTimeout, Signature: sig}
}

func meetsCommitment(reported rpc.ConfirmationStatusType, wanted rpc.CommitmentType) bool {
	rank := map[rpc.ConfirmationStatusType]int{
		rpc.ConfirmationStatusProcessed: 1,
		rpc.ConfirmationStatusConfirmed: 2,
		rpc.ConfirmationStatusFinalized: 3,
	}
	wantedRank := map[rpc.CommitmentType]int{
		rpc.CommitmentProcessed: 1,
		rpc.CommitmentConfirmed: 2,
		rpc.CommitmentFinalized: 3,
	}
	return rank[reported] >= wantedRank[wanted]
}

type sendErrKind int

const (
	sendErrUnknown sendErrKind = iota
	sendErrBlockhashExpired
	sendErrTransient
	sendErrTerminal
)

// classifySendError distinguishes blockhash-expired and network/transient
// submission failures (retryable) from known transaction-submission errors
// (terminal, per spec §4.3 step 5).
func classifySendError(err error) sendErrKind {
	if err == nil {
		return sendErrUnknown
	}
	msg := err.Error()
	switch {
	case containsAny(msg, "blockhash not found", "BlockhashNotFound"):
		return sendErrBlockhashExpired
	case containsAny(msg, "timeout", "connection refused", "EOF", "temporary"):
		return sendErrTransient
	case containsAny(msg, "already processed", "insufficient funds", "custom program error", "InstructionError"):
		return sendErrTerminal
	default:
		return sendErrTransient
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if len(sub) > 0 && len(s) >= len(sub) {
			for i := 0; i+len(sub) <= len(s); i++ {
				if s[i:i+len(sub)] == sub {
					return true
				}
			}
		}
	}
	return false
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
