package swap

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/go-resty/resty/v2"

	"github.com/tos-network/agentwallet/internal/apperr"
)

// jupiterAdapter is a thin SwapAdapter over Jupiter's quote/swap HTTP API
// (spec §4.5). Response bodies are kept opaque — only the fields the core
// needs (amounts, threshold) are lifted out; everything else rides in
// Quote.RawOpaque.
type jupiterAdapter struct {
	http    *resty.Client
	baseURL string
}

// NewJupiterAdapter returns an Adapter backed by the given base URL (the
// Jupiter aggregator's quote-api endpoint).
func NewJupiterAdapter(baseURL string, http *resty.Client) Adapter {
	if http == nil {
		http = resty.New()
	}
	return &jupiterAdapter{http: http, baseURL: baseURL}
}

func (a *jupiterAdapter) Name() string { return "jupiter" }

type jupiterQuoteResponse struct {
	InAmount             string          `json:"inAmount"`
	OutAmount            string          `json:"outAmount"`
	OtherAmountThreshold string          `json:"otherAmountThreshold"`
	PriceImpactPct       string          `json:"priceImpactPct"`
	Raw                  json.RawMessage `json:"-"`
}

func (a *jupiterAdapter) Quote(ctx context.Context, inputMint, outputMint solana.PublicKey, amountIn uint64) (Quote, error) {
	resp, err := a.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"inputMint":  inputMint.String(),
			"outputMint": outputMint.String(),
			"amount":     fmt.Sprintf("%d", amountIn),
		}).
		Get(a.baseURL + "/quote")
	if err != nil {
		return Quote{}, apperr.Wrap(apperr.CodeAdapterUnavailable, "jupiter quote request failed", err)
	}
	if resp.IsError() {
		return Quote{}, apperr.New(apperr.CodeAdapterUnavailable, fmt.Sprintf("jupiter quote returned status %d", resp.StatusCode()))
	}

	var body jupiterQuoteResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return Quote{}, apperr.Wrap(apperr.CodeQuoteFailed, "jupiter quote body malformed", err)
	}

	var inAmount, outAmount, threshold uint64
	fmt.Sscan(body.InAmount, &inAmount)
	fmt.Sscan(body.OutAmount, &outAmount)
	fmt.Sscan(body.OtherAmountThreshold, &threshold)
	var impact float64
	fmt.Sscan(body.PriceImpactPct, &impact)

	return Quote{
		InputMint:            inputMint,
		OutputMint:           outputMint,
		InAmount:             inAmount,
		OutAmount:            outAmount,
		OtherAmountThreshold: threshold,
		PriceImpactPct:       impact,
		Provider:             a.Name(),
		RawOpaque:            resp.Body(),
	}, nil
}

type jupiterSwapResponse struct {
	SwapTransaction string `json:"swapTransaction"`
}

func (a *jupiterAdapter) BuildSwapTransaction(ctx context.Context, owner solana.PublicKey, quote Quote, slippageBps uint16) (*solana.Transaction, error) {
	resp, err := a.http.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{
			"userPublicKey":   owner.String(),
			"quoteResponse":   json.RawMessage(quote.RawOpaque),
			"slippageBps":     slippageBps,
			"wrapAndUnwrapSl": true,
		}).
		Post(a.baseURL + "/swap")
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeAdapterUnavailable, "jupiter swap request failed", err)
	}
	if resp.IsError() {
		return nil, apperr.New(apperr.CodeAdapterUnavailable, fmt.Sprintf("jupiter swap returned status %d", resp.StatusCode()))
	}

	var body jupiterSwapResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return nil, apperr.Wrap(apperr.CodeQuoteFailed, "jupiter swap body malformed", err)
	}

	tx, err := solana.TransactionFromBase64(body.SwapTransaction)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeQuoteFailed, "jupiter swap transaction decode failed", err)
	}
	return tx, nil
}
