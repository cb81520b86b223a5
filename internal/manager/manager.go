package manager

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/go-resty/resty/v2"

	"github.com/tos-network/agentwallet/internal/agentloop"
	"github.com/tos-network/agentwallet/internal/apperr"
	"github.com/tos-network/agentwallet/internal/audit"
	"github.com/tos-network/agentwallet/internal/chain"
	"github.com/tos-network/agentwallet/internal/config"
	"github.com/tos-network/agentwallet/internal/guard"
	"github.com/tos-network/agentwallet/internal/keystore"
	"github.com/tos-network/agentwallet/internal/logx"
	"github.com/tos-network/agentwallet/internal/sendengine"
	"github.com/tos-network/agentwallet/internal/strategy"
	"github.com/tos-network/agentwallet/internal/swap"
	"github.com/tos-network/agentwallet/internal/wallet"

	_ "github.com/tos-network/agentwallet/internal/strategy/dca"
	_ "github.com/tos-network/agentwallet/internal/strategy/marketmaker"
	_ "github.com/tos-network/agentwallet/internal/strategy/monitor"
	_ "github.com/tos-network/agentwallet/internal/strategy/rebalancer"
)

// defaultJupiterBaseURL and defaultOrcaBaseURL are the two illustrative
// adapters' public quote/swap endpoints (spec §1's "two illustrative
// adapters ship" note).
const (
	defaultJupiterBaseURL = "https://quote-api.jup.ag"
	defaultOrcaBaseURL    = "https://api.orca.so"
)

// agent bundles one configured agent's constructed runtime pieces.
type agent struct {
	id   string
	loop *agentloop.Loop
}

// MultiAgentManager supervises N AgentLoops sharing one AuditDb, RPC
// client, and swap registry, but each owning a private WalletClient and
// GuardState (spec §4.8 isolation guarantee).
type MultiAgentManager struct {
	configs []AgentConfig
	limits  []guard.Limits
	log     *logx.Logger
	env     *config.Env

	mu      sync.RWMutex
	auditDb *audit.Db
	agents  []agent
	wg      sync.WaitGroup
}

// New constructs a MultiAgentManager from already-parsed agent configs and
// the already-validated process Env (spec §4.10: environment validation
// happens once, at startup, before any I/O — resolveSigningIdentity reuses
// env's already-checked NodeEnv/WalletPassword/WalletSecretKey fields
// rather than re-reading and re-validating os.Getenv itself).
// Use LoadConfigFile or ParseConfig to obtain configs from a JSON file.
func New(configs []AgentConfig, limits []guard.Limits, log *logx.Logger, env *config.Env) (*MultiAgentManager, error) {
	if len(configs) != len(limits) {
		return nil, apperr.New(apperr.CodeInvalidConfig, "configs and limits must be index-aligned and equal length")
	}
	if env == nil {
		return nil, apperr.New(apperr.CodeInvalidConfig, "env must not be nil")
	}
	return &MultiAgentManager{
		configs: configs,
		limits:  limits,
		log:     log,
		env:     env,
	}, nil
}

// Start opens the shared AuditDb, builds the shared RPC client and swap
// registry, then constructs and launches one AgentLoop per configured
// agent as an independent goroutine (spec §4.8 start() steps 1-3).
func (m *MultiAgentManager) Start(ctx context.Context) error {
	auditDb, err := audit.Open(m.env.AuditDBPath)
	if err != nil {
		return err
	}

	rpcClient := chain.New(m.env.RPCURL)
	registry := swap.NewRegistry()
	registry.Register(swap.NewJupiterAdapter(defaultJupiterBaseURL, resty.New()))
	registry.Register(swap.NewOrcaAdapter(defaultOrcaBaseURL, resty.New()))

	m.mu.Lock()
	m.auditDb = auditDb
	m.mu.Unlock()

	singleAgent := len(m.configs) == 1

	for i, cfg := range m.configs {
		lim := m.limits[i]
		agentLog := m.log.With("agent_id", cfg.ID)

		identity, err := m.resolveSigningIdentity(cfg, singleAgent)
		if err != nil {
			auditDb.Close()
			return apperr.Wrap(apperr.CodeInvalidConfig, fmt.Sprintf("agent %q: resolve signing identity", cfg.ID), err)
		}

		w, err := wallet.New(identity, rpcClient, wallet.Config{
			RPCURL:     m.env.RPCURL,
			Commitment: rpc.CommitmentConfirmed,
			Limits:     lim,
			SendConfig: sendengine.DefaultConfig(),
		}, agentLog)
		if err != nil {
			auditDb.Close()
			return apperr.Wrap(apperr.CodeInvalidConfig, fmt.Sprintf("agent %q: construct wallet client", cfg.ID), err)
		}

		strat, err := strategy.New(strategy.Config{
			Kind:   cfg.Strategy,
			Params: cfg.StrategyParams,
			Log:    agentLog,
		})
		if err != nil {
			auditDb.Close()
			return apperr.Wrap(apperr.CodeInvalidConfig, fmt.Sprintf("agent %q: construct strategy %q", cfg.ID, cfg.Strategy), err)
		}

		loop := agentloop.New(agentloop.Config{
			AgentID:      cfg.ID,
			Interval:     time.Duration(cfg.IntervalMs) * time.Millisecond,
			TrackedMints: trackedMints(cfg.StrategyParams),
		}, w, strat, registry, agentLog, auditDb)

		m.mu.Lock()
		m.agents = append(m.agents, agent{id: cfg.ID, loop: loop})
		m.mu.Unlock()

		m.wg.Add(1)
		go func(l *agentloop.Loop) {
			defer m.wg.Done()
			l.Start(ctx)
		}(loop)
	}

	return nil
}

// Stop flips every loop's stop flag, waits for all in-flight ticks to
// finish, then checkpoints and closes the shared AuditDb (spec §4.8
// stop()).
func (m *MultiAgentManager) Stop() error {
	m.mu.RLock()
	agents := m.agents
	m.mu.RUnlock()

	for _, a := range agents {
		a.loop.Stop()
	}
	m.wg.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.auditDb == nil {
		return nil
	}
	err := m.auditDb.Close()
	m.auditDb = nil
	return err
}

// GetAgentStates returns every agent's current observable state, keyed by
// agent id.
func (m *MultiAgentManager) GetAgentStates() map[string]agentloop.State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]agentloop.State, len(m.agents))
	for _, a := range m.agents {
		out[a.id] = a.loop.GetState()
	}
	return out
}

// GetAgentState returns one agent's state and whether that agent id
// exists.
func (m *MultiAgentManager) GetAgentState(id string) (agentloop.State, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.agents {
		if a.id == id {
			return a.loop.GetState(), true
		}
	}
	return agentloop.State{}, false
}

// GetAuditDb exposes the shared AuditDb for external inspection (spec
// §4.8 getAuditDb()).
func (m *MultiAgentManager) GetAuditDb() *audit.Db {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.auditDb
}

// resolveSigningIdentity follows the precedence in spec §4.8: a per-agent
// env var override, then the global secret-key env var if there is only a
// single configured agent, else the keystore file decrypted with
// WALLET_PASSWORD. Both raw-secret-env-var paths are dev/test only (spec
// §4.1): when the process is marked production, either one being set is an
// invalidConfig failure, not a silent fall-through to the keystore. The
// global path's env.WalletSecretKey is already cleared to "" by config.Load
// when NodeEnv is production, but NodeEnv is checked again here too, since
// this function is the one place that actually gates signing and must not
// depend on every caller constructing Env through config.Load. The
// per-agent path has no such pre-validated field (config.Load cannot
// enumerate agent IDs ahead of time), so it is checked here directly.
func (m *MultiAgentManager) resolveSigningIdentity(cfg AgentConfig, singleAgent bool) (wallet.SigningIdentity, error) {
	perAgentVar := config.PerAgentSecretEnvVar(cfg.ID)
	if raw := os.Getenv(perAgentVar); raw != "" {
		if m.env.NodeEnv == config.NodeEnvProduction {
			return wallet.SigningIdentity{}, apperr.New(apperr.CodeInvalidConfig, fmt.Sprintf("agent %q: %s is not permitted when NODE_ENV=production", cfg.ID, perAgentVar))
		}
		priv, err := config.LoadSecretFromEnvValue(raw)
		if err != nil {
			return wallet.SigningIdentity{}, err
		}
		return wallet.NewSigningIdentity(priv), nil
	}

	if singleAgent && m.env.WalletSecretKey != "" {
		if m.env.NodeEnv == config.NodeEnvProduction {
			return wallet.SigningIdentity{}, apperr.New(apperr.CodeInvalidConfig, fmt.Sprintf("agent %q: WALLET_SECRET_KEY is not permitted when NODE_ENV=production", cfg.ID))
		}
		priv, err := config.LoadSecretFromEnvValue(m.env.WalletSecretKey)
		if err != nil {
			return wallet.SigningIdentity{}, err
		}
		return wallet.NewSigningIdentity(priv), nil
	}

	if m.env.WalletPassword == "" {
		return wallet.SigningIdentity{}, apperr.New(apperr.CodeInvalidConfig, fmt.Sprintf("agent %q: no secret-key env var set and WALLET_PASSWORD is empty for keystore decryption", cfg.ID))
	}
	priv, err := keystore.Open(cfg.KeystorePath, m.env.WalletPassword)
	if err != nil {
		return wallet.SigningIdentity{}, err
	}
	return wallet.NewSigningIdentity(priv), nil
}

// trackedMintParamKeys lists the strategyParams keys that may hold a
// base58 mint address worth polling every tick (spec §4.7 gatherState).
var trackedMintParamKeys = []string{"outputMint", "referenceMint", "mintA", "mintB"}

func trackedMints(params map[string]interface{}) []solana.PublicKey {
	seen := make(map[solana.PublicKey]bool)
	var mints []solana.PublicKey
	for _, key := range trackedMintParamKeys {
		s, ok := params[key].(string)
		if !ok || s == "" {
			continue
		}
		pk, err := solana.PublicKeyFromBase58(s)
		if err != nil || seen[pk] {
			continue
		}
		seen[pk] = true
		mints = append(mints, pk)
	}
	return mints
}
