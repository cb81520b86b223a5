// Command agentd boots a MultiAgentManager from the process environment
// and an agent configuration file, then runs until it receives SIGINT or
// SIGTERM. It is deliberately not a rich CLI (spec §6 — the CLI surface is
// an external collaborator, out of this module's scope): a single binary
// that reads its configuration from the environment and one JSON file.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tos-network/agentwallet/internal/config"
	"github.com/tos-network/agentwallet/internal/logx"
	"github.com/tos-network/agentwallet/internal/manager"
)

// Exit codes per spec §6: 0 success, 1 user/validation error, 2
// internal/unexpected error.
const (
	exitOK          = 0
	exitUserError   = 1
	exitInternalErr = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	env, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "agentd: invalid environment:", err)
		return exitUserError
	}

	log := logx.NewTerminal(logx.ParseLevel(env.LogLevel))

	if env.AgentsConfigPath == "" {
		log.Crit("AGENTS_CONFIG_PATH is not set")
		return exitUserError
	}

	configs, limits, err := manager.LoadConfigFile(env.AgentsConfigPath)
	if err != nil {
		log.Crit("invalid agents configuration", "err", err)
		return exitUserError
	}

	mgr, err := manager.New(configs, limits, log, env)
	if err != nil {
		log.Crit("failed to construct manager", "err", err)
		return exitUserError
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := mgr.Start(ctx); err != nil {
		log.Crit("failed to start agents", "err", err)
		return exitInternalErr
	}
	log.Info("agentd started", "agents", len(configs), "network", string(env.Network))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("received shutdown signal", "signal", sig.String())

	cancel()
	if err := mgr.Stop(); err != nil {
		log.Crit("error during shutdown", "err", err)
		return exitInternalErr
	}

	log.Info("agentd stopped cleanly")
	return exitOK
}
