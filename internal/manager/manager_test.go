package manager

import (
	"context"
	"crypto/ed25519"
	"path/filepath"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

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

	_ "github.com/tos-network/agentwallet/internal/strategy/monitor"
)

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func testLogger() *logx.Logger {
	return logx.New(discardWriter{}, logx.LevelCrit)
}

func devEnv() *config.Env {
	return &config.Env{NodeEnv: "development"}
}

func testAuditDb(t *testing.T) *audit.Db {
	t.Helper()
	db, err := audit.Open(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func fakeWithBalance(lamports uint64) *chain.FakeClient {
	fake := new(chain.FakeClient)
	fake.On("GetBalance", mock.Anything, mock.Anything, mock.Anything).Return(lamports, nil)
	return fake
}

func testWalletClient(t *testing.T, fake *chain.FakeClient) *wallet.Client {
	t.Helper()
	_, priv, err := randomEd25519(t)
	require.NoError(t, err)
	identity := wallet.NewSigningIdentity(priv)
	cfg := wallet.Config{
		RPCURL:     "https://api.devnet.solana.com",
		Commitment: "confirmed",
		Limits:     guard.Limits{MaxPerTxLamports: 1_000_000_000, MaxSessionLamports: 5_000_000_000},
		SendConfig: sendengine.DefaultConfig(),
	}
	c, err := wallet.New(identity, fake, cfg, testLogger())
	require.NoError(t, err)
	return c
}

// TestStopWaitsForAllLoopsThenClosesAuditDb exercises Stop() directly
// against manually constructed agents, bypassing Start()'s live RPC
// client construction (spec §4.8 stop() semantics).
func TestStopWaitsForAllLoopsThenClosesAuditDb(t *testing.T) {
	db := testAuditDb(t)
	registry := swap.NewRegistry()
	m := &MultiAgentManager{log: testLogger(), env: devEnv(), auditDb: db}

	for i := 0; i < 3; i++ {
		fake := fakeWithBalance(1_000_000_000)
		w := testWalletClient(t, fake)
		s, err := strategy.New(strategy.Config{Kind: "monitor", Log: testLogger()})
		require.NoError(t, err)
		loop := agentloop.New(agentloop.Config{AgentID: agentID(i), Interval: time.Millisecond}, w, s, registry, testLogger(), db)
		m.agents = append(m.agents, agent{id: agentID(i), loop: loop})

		m.wg.Add(1)
		go func(l *agentloop.Loop) {
			defer m.wg.Done()
			l.Start(context.Background())
		}(loop)
	}

	// let every loop tick at least once before stopping.
	time.Sleep(20 * time.Millisecond)

	err := m.Stop()
	require.NoError(t, err)

	states := m.GetAgentStates()
	require.Len(t, states, 3)
	for i := 0; i < 3; i++ {
		st, ok := m.GetAgentState(agentID(i))
		require.True(t, ok)
		assert.Equal(t, agentloop.StatusStopped, st.Status)
		assert.Equal(t, states[agentID(i)].TickCount, st.TickCount)
	}

	assert.Nil(t, m.GetAuditDb())
}

func TestGetAgentStateReportsMissingAgent(t *testing.T) {
	m := &MultiAgentManager{env: devEnv()}
	_, ok := m.GetAgentState("does-not-exist")
	assert.False(t, ok)
}

func agentID(i int) string {
	return []string{"agent-A", "agent-B", "agent-C"}[i]
}

func TestResolveSigningIdentityPrefersPerAgentEnvVar(t *testing.T) {
	pub, priv := mustEd25519(t)
	t.Setenv("WALLET_SECRET_KEY_DCA_1", base58.Encode(priv))

	m := &MultiAgentManager{env: devEnv()}
	identity, err := m.resolveSigningIdentity(AgentConfig{ID: "dca-1"}, false)
	require.NoError(t, err)

	fake := fakeWithBalance(0)
	w, err := wallet.New(identity, fake, wallet.Config{
		RPCURL: "https://api.devnet.solana.com", Commitment: "confirmed",
		Limits: guard.Limits{MaxPerTxLamports: 1, MaxSessionLamports: 1}, SendConfig: sendengine.DefaultConfig(),
	}, testLogger())
	require.NoError(t, err)
	assert.Equal(t, solana.PublicKeyFromBytes(pub).String(), w.String())
}

func TestResolveSigningIdentityFallsBackToGlobalEnvVarForSingleAgent(t *testing.T) {
	pub, priv := mustEd25519(t)

	m := &MultiAgentManager{env: &config.Env{NodeEnv: "development", WalletSecretKey: base58.Encode(priv)}}
	identity, err := m.resolveSigningIdentity(AgentConfig{ID: "solo"}, true)
	require.NoError(t, err)

	fake := fakeWithBalance(0)
	w, err := wallet.New(identity, fake, wallet.Config{
		RPCURL: "https://api.devnet.solana.com", Commitment: "confirmed",
		Limits: guard.Limits{MaxPerTxLamports: 1, MaxSessionLamports: 1}, SendConfig: sendengine.DefaultConfig(),
	}, testLogger())
	require.NoError(t, err)
	assert.Equal(t, solana.PublicKeyFromBytes(pub).String(), w.String())
}

func TestResolveSigningIdentityIgnoresGlobalEnvVarWhenMultiAgent(t *testing.T) {
	_, priv := mustEd25519(t)

	m := &MultiAgentManager{env: &config.Env{NodeEnv: "development", WalletSecretKey: base58.Encode(priv)}}
	_, err := m.resolveSigningIdentity(AgentConfig{ID: "one-of-many", KeystorePath: "/does/not/exist.json"}, false)
	require.Error(t, err)
}

func TestResolveSigningIdentityFallsBackToKeystore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agent.json")
	pub, err := keystore.Create(path, "correct horse battery staple", keystore.LightScryptN, keystore.LightScryptP)
	require.NoError(t, err)

	m := &MultiAgentManager{env: &config.Env{NodeEnv: "development", WalletPassword: "correct horse battery staple"}}
	identity, err := m.resolveSigningIdentity(AgentConfig{ID: "keystore-agent", KeystorePath: path}, false)
	require.NoError(t, err)

	fake := fakeWithBalance(0)
	w, err := wallet.New(identity, fake, wallet.Config{
		RPCURL: "https://api.devnet.solana.com", Commitment: "confirmed",
		Limits: guard.Limits{MaxPerTxLamports: 1, MaxSessionLamports: 1}, SendConfig: sendengine.DefaultConfig(),
	}, testLogger())
	require.NoError(t, err)
	assert.Equal(t, solana.PublicKeyFromBytes(pub).String(), w.String())
}

func TestResolveSigningIdentityFailsWithoutAnySource(t *testing.T) {
	m := &MultiAgentManager{env: devEnv()}
	_, err := m.resolveSigningIdentity(AgentConfig{ID: "nowhere", KeystorePath: "/does/not/exist.json"}, false)
	require.Error(t, err)
}

// TestResolveSigningIdentityRejectsSecretEnvVarsInProduction exercises spec
// §4.1's "MUST fail with invalidConfig when the process is marked
// production" for both the per-agent and the global raw-secret-key paths.
func TestResolveSigningIdentityRejectsSecretEnvVarsInProduction(t *testing.T) {
	_, priv := mustEd25519(t)
	t.Setenv("WALLET_SECRET_KEY_PROD_1", base58.Encode(priv))

	m := &MultiAgentManager{env: &config.Env{NodeEnv: "production"}}
	_, err := m.resolveSigningIdentity(AgentConfig{ID: "prod-1"}, false)
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, apperr.CodeInvalidConfig))

	m = &MultiAgentManager{env: &config.Env{NodeEnv: "production", WalletSecretKey: base58.Encode(priv)}}
	_, err = m.resolveSigningIdentity(AgentConfig{ID: "solo"}, true)
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, apperr.CodeInvalidConfig))
}

func TestTrackedMintsDeduplicatesAcrossKnownParamKeys(t *testing.T) {
	mint := solana.NewWallet().PublicKey()
	params := map[string]interface{}{
		"referenceMint": mint.String(),
		"mintA":         mint.String(),
		"mintB":         solana.NewWallet().PublicKey().String(),
		"unrelated":     "ignored",
	}
	mints := trackedMints(params)
	assert.Len(t, mints, 2)
}

func mustEd25519(t *testing.T) (pub []byte, priv []byte) {
	t.Helper()
	p, pr, err := randomEd25519(t)
	require.NoError(t, err)
	return p, pr
}

func randomEd25519(t *testing.T) (pub []byte, priv []byte, err error) {
	t.Helper()
	p, pr, err := ed25519.GenerateKey(nil)
	return p, pr, err
}
