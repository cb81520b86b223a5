package swap

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/go-resty/resty/v2"

	"github.com/tos-network/agentwallet/internal/apperr"
)

// orcaAdapter is a thin SwapAdapter over Orca's Whirlpool quote/swap HTTP
// API (spec §4.5), mirroring jupiterAdapter's shape with Orca's own
// response field names.
type orcaAdapter struct {
	http    *resty.Client
	baseURL string
}

// NewOrcaAdapter returns an Adapter backed by the given base URL.
func NewOrcaAdapter(baseURL string, http *resty.Client) Adapter {
	if http == nil {
		http = resty.New()
	}
	return &orcaAdapter{http: http, baseURL: baseURL}
}

func (a *orcaAdapter) Name() string { return "orca" }

type orcaQuoteResponse struct {
	EstimatedAmountIn  uint64          `json:"estimatedAmountIn"`
	EstimatedAmountOut uint64          `json:"estimatedAmountOut"`
	MinimumAmountOut   uint64          `json:"minimumAmountOut"`
	PriceImpact        float64         `json:"priceImpactPercentage"`
	Raw                json.RawMessage `json:"-"`
}

func (a *orcaAdapter) Quote(ctx context.Context, inputMint, outputMint solana.PublicKey, amountIn uint64) (Quote, error) {
	resp, err := a.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"tokenIn":  inputMint.String(),
			"tokenOut": outputMint.String(),
			"amount":   fmt.Sprintf("%d", amountIn),
		}).
		Get(a.baseURL + "/v1/whirlpool/quote")
	if err != nil {
		return Quote{}, apperr.Wrap(apperr.CodeAdapterUnavailable, "orca quote request failed", err)
	}
	if resp.IsError() {
		return Quote{}, apperr.New(apperr.CodeAdapterUnavailable, fmt.Sprintf("orca quote returned status %d", resp.StatusCode()))
	}

	var body orcaQuoteResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return Quote{}, apperr.Wrap(apperr.CodeQuoteFailed, "orca quote body malformed", err)
	}

	return Quote{
		InputMint:            inputMint,
		OutputMint:           outputMint,
		InAmount:             body.EstimatedAmountIn,
		OutAmount:            body.EstimatedAmountOut,
		OtherAmountThreshold: body.MinimumAmountOut,
		PriceImpactPct:       body.PriceImpact,
		Provider:             a.Name(),
		RawOpaque:            resp.Body(),
	}, nil
}

type orcaSwapResponse struct {
	Transaction string `json:"transaction"`
}

func (a *orcaAdapter) BuildSwapTransaction(ctx context.Context, owner solana.PublicKey, quote Quote, slippageBps uint16) (*solana.Transaction, error) {
	resp, err := a.http.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{
			"wallet":      owner.String(),
			"quote":       json.RawMessage(quote.RawOpaque),
			"slippageBps": slippageBps,
		}).
		Post(a.baseURL + "/v1/whirlpool/swap")
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeAdapterUnavailable, "orca swap request failed", err)
	}
	if resp.IsError() {
		return nil, apperr.New(apperr.CodeAdapterUnavailable, fmt.Sprintf("orca swap returned status %d", resp.StatusCode()))
	}

	var body orcaSwapResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return nil, apperr.Wrap(apperr.CodeQuoteFailed, "orca swap body malformed", err)
	}

	tx, err := solana.TransactionFromBase64(body.Transaction)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeQuoteFailed, "orca swap transaction decode failed", err)
	}
	return tx, nil
}
