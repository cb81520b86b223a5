package swap

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/gagliardetto/solana-go"

	"github.com/tos-network/agentwallet/internal/apperr"
)

// Registry holds registered swap adapters, keyed by provider name. It is
// grounded on the teacher's agent/registry.go pattern — a sync.RWMutex
// guarding a plain map, with enumeration order preserved separately for
// the best-quote tie-break rule.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
	order    []string
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds an adapter under its own Name(). Registration order is
// the enumeration order used to break getBestQuote ties.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := a.Name()
	if _, exists := r.adapters[name]; !exists {
		r.order = append(r.order, name)
	}
	r.adapters[name] = a
}

// Get returns the adapter registered under name, or adapterUnavailable if
// unknown.
func (r *Registry) Get(name string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	if !ok {
		return nil, apperr.New(apperr.CodeAdapterUnavailable, fmt.Sprintf("swap adapter %q is not registered", name))
	}
	return a, nil
}

type quoteOutcome struct {
	order int
	quote Quote
	err   error
}

// GetBestQuote races every registered adapter's Quote concurrently with
// all-settled semantics: the best (maximum outAmount) successful quote
// wins, ties broken by registration order; if every adapter fails, the
// errors are aggregated into a single quoteFailed (spec §4.5).
func (r *Registry) GetBestQuote(ctx context.Context, inputMint, outputMint solana.PublicKey, amountIn uint64) (Quote, error) {
	r.mu.RLock()
	names := append([]string(nil), r.order...)
	adapters := make([]Adapter, len(names))
	for i, name := range names {
		adapters[i] = r.adapters[name]
	}
	r.mu.RUnlock()

	if len(adapters) == 0 {
		return Quote{}, apperr.New(apperr.CodeQuoteFailed, "no swap adapters registered")
	}

	results := make(chan quoteOutcome, len(adapters))
	var wg sync.WaitGroup
	for i, a := range adapters {
		wg.Add(1)
		go func(order int, a Adapter) {
			defer wg.Done()
			q, err := a.Quote(ctx, inputMint, outputMint, amountIn)
			results <- quoteOutcome{order: order, quote: q, err: err}
		}(i, a)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	outcomes := make([]quoteOutcome, len(adapters))
	for o := range results {
		outcomes[o.order] = o
	}

	best := -1
	var failures []string
	for i, o := range outcomes {
		if o.err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", names[i], o.err))
			continue
		}
		if best == -1 || o.quote.OutAmount > outcomes[best].quote.OutAmount {
			best = i
		}
	}

	if best == -1 {
		return Quote{}, apperr.New(apperr.CodeQuoteFailed, "all swap adapters failed: "+strings.Join(failures, "; "))
	}
	return outcomes[best].quote, nil
}
