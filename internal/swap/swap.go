// Package swap implements the SwapAdapter registry (spec §4.5): a
// concurrent best-quote race across provider adapters with all-settled
// semantics, and the guard-crossing swap flow shared by every adapter.
package swap

import (
	"context"
	"encoding/json"

	"github.com/gagliardetto/solana-go"

	"github.com/tos-network/agentwallet/internal/sendengine"
	"github.com/tos-network/agentwallet/internal/wallet"
)

// Quote is a provider's price quote for swapping amountIn of inputMint
// into outputMint (spec §4.5).
type Quote struct {
	InputMint            solana.PublicKey
	OutputMint           solana.PublicKey
	InAmount             uint64
	OutAmount            uint64
	OtherAmountThreshold uint64
	PriceImpactPct       float64
	Provider             string
	RawOpaque            json.RawMessage
}

// Result extends a send-engine result with the actual swapped amounts and
// the quote that produced it.
type Result struct {
	sendengine.Result
	ActualInAmount  uint64
	ActualOutAmount uint64
	Quote           Quote
}

// Adapter is implemented by each swap provider (Jupiter, Orca, ...).
type Adapter interface {
	Name() string
	Quote(ctx context.Context, inputMint, outputMint solana.PublicKey, amountIn uint64) (Quote, error)
	BuildSwapTransaction(ctx context.Context, owner solana.PublicKey, quote Quote, slippageBps uint16) (*solana.Transaction, error)
}

// Swap runs the flow shared by every adapter (spec §4.5 steps 1-6):
// refresh the quote, build the transaction at slippageBps, read pre-swap
// balance, sign-and-send
// through the guard, and on confirmation compute the actual amount
// swapped. The source's behavior of warning (not failing) on low actual
// output versus otherAmountThreshold is preserved verbatim — see spec §9's
// open question; this is deliberately not "fixed".
func Swap(ctx context.Context, a Adapter, w *wallet.Client, initialQuote Quote, slippageBps uint16, log warnLogger) (Result, error) {
	liveQuote, err := a.Quote(ctx, initialQuote.InputMint, initialQuote.OutputMint, initialQuote.InAmount)
	if err != nil {
		liveQuote = initialQuote
	}

	preBalance, err := w.GetTokenBalance(ctx, liveQuote.OutputMint)
	if err != nil {
		return Result{}, err
	}

	tx, err := a.BuildSwapTransaction(ctx, w.PublicKey(), liveQuote, slippageBps)
	if err != nil {
		return Result{}, err
	}

	sendResult, err := w.SignAndSendTransaction(ctx, tx, liveQuote.InAmount, "")
	if err != nil {
		return Result{Result: sendResult, Quote: liveQuote}, err
	}

	result := Result{Result: sendResult, Quote: liveQuote, ActualInAmount: liveQuote.InAmount}
	if sendResult.Status != sendengine.StatusConfirmed {
		return result, nil
	}

	postBalance, err := w.GetTokenBalance(ctx, liveQuote.OutputMint)
	if err != nil {
		return result, nil
	}
	actualOut := uint64(0)
	if postBalance > preBalance {
		actualOut = postBalance - preBalance
	}
	result.ActualOutAmount = actualOut

	if actualOut < liveQuote.OtherAmountThreshold {
		log.Warn("swap output below quoted threshold",
			"provider", liveQuote.Provider,
			"actual_out", actualOut,
			"other_amount_threshold", liveQuote.OtherAmountThreshold)
	}

	return result, nil
}

// warnLogger is the minimal logging surface Swap needs, satisfied by
// *logx.Logger.
type warnLogger interface {
	Warn(msg string, ctx ...interface{})
}
