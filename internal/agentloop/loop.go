// Package agentloop implements the crash-isolated tick engine (spec §4.7):
// a state machine driven by one concurrent task per agent, cooperating
// with the shared AuditDb as both an event sink and a cross-process
// remote-stop mailbox.
package agentloop

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go"
	"golang.org/x/sync/semaphore"

	"github.com/tos-network/agentwallet/internal/apperr"
	"github.com/tos-network/agentwallet/internal/audit"
	"github.com/tos-network/agentwallet/internal/logx"
	"github.com/tos-network/agentwallet/internal/sendengine"
	"github.com/tos-network/agentwallet/internal/strategy"
	"github.com/tos-network/agentwallet/internal/swap"
	"github.com/tos-network/agentwallet/internal/wallet"
)

// Status is the loop's observable lifecycle state (spec §3 AgentLoopState).
type Status string

const (
	StatusIdle    Status = "idle"
	StatusRunning Status = "running"
	StatusStopped Status = "stopped"
	StatusError   Status = "error"
)

// remoteStopSafetyBuffer is subtracted from startedAt before comparing a
// system_stop_request row's timestamp, so a stale signal from a previous
// run of this agent ID cannot halt a freshly started loop (spec §5).
const remoteStopSafetyBuffer = 2 * time.Second

// State is a read-only snapshot of a Loop's observable lifecycle fields.
type State struct {
	Status       Status
	TickCount    uint64
	StartedAt    time.Time
	LastTickAt   time.Time
	LastActionAt time.Time
	LastError    string
}

// Config binds one agent's identity and tick parameters.
type Config struct {
	AgentID      string
	Interval     time.Duration
	TrackedMints []solana.PublicKey
}

// Loop drives one agent's tick pipeline. Construction binds its config,
// WalletClient, Strategy, swap registry, logger, and the shared AuditDb
// (spec §4.7). A Loop owns its WalletClient and guard state exclusively —
// no other task touches them (spec §5).
type Loop struct {
	cfg      Config
	wallet   *wallet.Client
	strategy strategy.Strategy
	registry *swap.Registry
	log      *logx.Logger
	auditDb  *audit.Db

	mu    sync.RWMutex
	state State

	stopFlag atomic.Bool
}

// New constructs a Loop in the idle state.
func New(cfg Config, w *wallet.Client, s strategy.Strategy, registry *swap.Registry, log *logx.Logger, db *audit.Db) *Loop {
	return &Loop{
		cfg:      cfg,
		wallet:   w,
		strategy: s,
		registry: registry,
		log:      log,
		auditDb:  db,
		state:    State{Status: StatusIdle},
	}
}

// GetState returns a snapshot of the loop's current observable state.
func (l *Loop) GetState() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Start is the main driver. It MUST NOT return an error — every failure
// mode inside a tick is caught and recorded, never propagated (spec §4.7).
// It blocks until Stop is called and the in-flight tick completes; run it
// from its own goroutine.
func (l *Loop) Start(ctx context.Context) {
	l.mu.Lock()
	if l.state.Status == StatusRunning {
		l.mu.Unlock()
		return
	}
	l.state.Status = StatusRunning
	l.state.StartedAt = time.Now()
	l.mu.Unlock()

	l.emit(ctx, audit.EventAgentStart, "", nil)

	for !l.stopFlag.Load() {
		l.tick(ctx)
		if l.stopFlag.Load() {
			break
		}
		sleep(ctx, l.cfg.Interval)
	}

	l.mu.Lock()
	l.state.Status = StatusStopped
	l.mu.Unlock()
	l.emit(ctx, audit.EventAgentStop, "", map[string]interface{}{"reason": "loop stopped"})
}

// Stop flips a cooperative flag; it does not interrupt the in-flight tick
// (spec §5 cancellation policy).
func (l *Loop) Stop() { l.stopFlag.Store(true) }

// tick runs one full pipeline iteration. A panic anywhere in the pipeline
// (the Go analogue of the source's thrown exception) is recovered here and
// classified exactly like a returned error — the loop itself never dies
// (spec §4.7 crash isolation, scenario 5).
func (l *Loop) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			err, ok := r.(error)
			if !ok {
				err = fmt.Errorf("%v", r)
			}
			l.handleTickError(ctx, err)
		}
	}()

	l.mu.Lock()
	l.state.TickCount++
	l.state.LastTickAt = time.Now()
	startedAt := l.state.StartedAt
	l.mu.Unlock()

	if l.observeRemoteStop(ctx, startedAt) {
		return
	}

	st, err := l.gatherState(ctx)
	if err != nil {
		l.handleTickError(ctx, err)
		return
	}

	action, err := l.strategy.Decide(ctx, st)
	if err != nil {
		l.handleTickError(ctx, err)
		return
	}

	if action.Kind == strategy.ActionNoop {
		l.emit(ctx, audit.EventAgentNoop, "", map[string]interface{}{
			"rationale":            action.Rationale,
			"sol_balance_lamports": st.SolBalanceLamports,
		})
		return
	}

	result, err := l.strategy.Execute(ctx, action, l.wallet, l.registry)
	if err != nil {
		l.handleTickError(ctx, err)
		return
	}

	l.mu.Lock()
	l.state.LastActionAt = time.Now()
	l.mu.Unlock()

	l.emitActionResult(ctx, action, result)
}

// observeRemoteStop is tick step 2 (spec §4.7): the latest
// system_stop_request row for this agent is honored only if its timestamp
// is later than startedAt minus the safety buffer.
func (l *Loop) observeRemoteStop(ctx context.Context, startedAt time.Time) bool {
	rows, err := l.auditDb.Query(ctx, audit.Query{
		AgentID: l.cfg.AgentID,
		Event:   audit.EventSystemStopRequest,
		Limit:   1,
	})
	if err != nil {
		l.log.Error("remote stop check failed", "err", err)
		return false
	}
	if len(rows) == 0 {
		return false
	}
	ts, err := time.Parse(time.RFC3339Nano, rows[0].Timestamp)
	if err != nil {
		return false
	}
	if !ts.After(startedAt.Add(-remoteStopSafetyBuffer)) {
		return false
	}

	l.stopFlag.Store(true)
	l.emit(ctx, audit.EventAgentStop, "", map[string]interface{}{"reason": "Remote stop signal received"})
	return true
}

// maxConcurrentMintReads bounds gatherState's per-mint fan-out so a loop
// tracking many mints cannot burst past the shared chain.Client's own rate
// limiter all at once.
const maxConcurrentMintReads = 4

// gatherState is tick step 3: read SOL balance, then read every tracked
// mint's balance concurrently (bounded by a semaphore); a failed mint read
// degrades to zero rather than failing the tick (spec §4.7).
func (l *Loop) gatherState(ctx context.Context) (strategy.State, error) {
	sol, err := l.wallet.GetSolBalance(ctx)
	if err != nil {
		return strategy.State{}, err
	}

	balances := make(map[solana.PublicKey]uint64, len(l.cfg.TrackedMints))
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := semaphore.NewWeighted(maxConcurrentMintReads)
	for _, mint := range l.cfg.TrackedMints {
		if err := sem.Acquire(ctx, 1); err != nil {
			l.log.Warn("tracked mint balance read skipped, degrading to zero", "mint", mint.String(), "err", err)
			mu.Lock()
			balances[mint] = 0
			mu.Unlock()
			continue
		}
		wg.Add(1)
		go func(mint solana.PublicKey) {
			defer wg.Done()
			defer sem.Release(1)
			bal, err := l.wallet.GetTokenBalance(ctx, mint)
			if err != nil {
				l.log.Warn("tracked mint balance read failed, degrading to zero", "mint", mint.String(), "err", err)
				bal = 0
			}
			mu.Lock()
			balances[mint] = bal
			mu.Unlock()
		}(mint)
	}
	wg.Wait()

	l.mu.RLock()
	tickCount := l.state.TickCount
	lastActionAt := l.state.LastActionAt
	l.mu.RUnlock()

	var lastActionMillis int64
	if !lastActionAt.IsZero() {
		lastActionMillis = lastActionAt.UnixMilli()
	}

	return strategy.State{
		SolBalanceLamports: sol,
		TokenBalances:      balances,
		TickCount:          tickCount,
		LastActionAt:       lastActionMillis,
	}, nil
}

// handleTickError is tick step 8: classify by error code, record
// lastError, log, and emit the corresponding audit event. It never
// propagates — the loop continues to its next scheduled tick.
func (l *Loop) handleTickError(ctx context.Context, err error) {
	l.mu.Lock()
	l.state.LastError = err.Error()
	l.mu.Unlock()

	event := audit.EventAgentError
	if apperr.HasCode(err, apperr.CodeLimitBreach) {
		event = audit.EventLimitBreach
	}
	l.log.Error("agent tick failed", "agent_id", l.cfg.AgentID, "err", err)
	l.emit(ctx, event, "", map[string]interface{}{"error": err.Error()})
}

// emitActionResult is tick step 7: map a TxResult to its audit event kind.
func (l *Loop) emitActionResult(ctx context.Context, action strategy.Action, result *sendengine.Result) {
	details := actionDetails(action)
	if result == nil {
		l.emit(ctx, audit.EventAgentAction, "", details)
		return
	}
	details["status"] = string(result.Status)
	if result.Err != nil {
		details["error"] = result.Err.Error()
	}

	event := audit.EventAgentAction
	switch result.Status {
	case sendengine.StatusConfirmed:
		event = audit.EventTxConfirmed
	case sendengine.StatusFailed, sendengine.StatusSimulated:
		event = audit.EventTxFailed
	case sendengine.StatusTimeout:
		event = audit.EventTxTimeout
	}
	l.emit(ctx, event, result.Signature.String(), details)
}

func actionDetails(action strategy.Action) map[string]interface{} {
	details := map[string]interface{}{
		"kind":      string(action.Kind),
		"rationale": action.Rationale,
	}
	switch {
	case action.Swap != nil:
		details["input_mint"] = action.Swap.InputMint.String()
		details["output_mint"] = action.Swap.OutputMint.String()
		details["amount_in"] = action.Swap.AmountIn
		details["slippage_bps"] = action.Swap.SlippageBps
	case action.Transfer != nil:
		details["to"] = action.Transfer.To.String()
		details["amount"] = action.Transfer.Amount
		if action.Transfer.Mint != nil {
			details["mint"] = action.Transfer.Mint.String()
		}
	case action.ProvideLiquidity != nil:
		details["pool_id"] = action.ProvideLiquidity.PoolID.String()
		details["amount_a"] = action.ProvideLiquidity.AmountA
		details["amount_b"] = action.ProvideLiquidity.AmountB
	}
	return details
}

func (l *Loop) emit(ctx context.Context, event string, signature string, details map[string]interface{}) {
	_, err := l.auditDb.Append(ctx, audit.Event{
		AgentID:   l.cfg.AgentID,
		Event:     event,
		WalletPK:  l.wallet.String(),
		Signature: signature,
		Details:   details,
	})
	if err != nil {
		l.log.Error("audit append failed", "event", event, "err", err)
	}
}

// sleep is a context-aware timer, matching sendengine's own idiom for
// cancellable waits.
func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
