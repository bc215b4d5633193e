package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/steinwealth/easyorb/internal/advcache"
	"github.com/steinwealth/easyorb/internal/alert"
	"github.com/steinwealth/easyorb/internal/broker"
	"github.com/steinwealth/easyorb/internal/clock"
	"github.com/steinwealth/easyorb/internal/httpapi"
	"github.com/steinwealth/easyorb/internal/oauth"
	"github.com/steinwealth/easyorb/internal/odte"
	"github.com/steinwealth/easyorb/internal/session"
	"github.com/steinwealth/easyorb/internal/store"
	"github.com/steinwealth/easyorb/internal/watchlist"
)

var (
	demoCapital float64
	liveEnvFlag string
)

var runCmd = &cobra.Command{
	Use:   "run {demo|live}",
	Short: "run the engine until interrupted",
}

var runDemoCmd = &cobra.Command{
	Use:   "demo",
	Short: "run against the in-memory simulator (no broker credentials needed)",
	Run: func(cmd *cobra.Command, args []string) {
		sim := broker.NewSimulator(demoCapital, nil)
		// The simulator has no real index quote to evaluate a red day
		// against, so 0DTE always runs as if the tape is green.
		runLoop(sim, "demo-account", demoCapital, alert.NewLogSink(), odte.StaticRedDayDetector(false))
	},
}

var runLiveCmd = &cobra.Command{
	Use:   "live",
	Short: "run against the live E*TRADE adapter",
	Run: func(cmd *cobra.Command, args []string) {
		env := parseEnv(liveEnvFlag)
		mgr, err := oauth.NewManager(cfg)
		requireNoError(err)

		adapter := broker.NewETradeAdapter(cfg, mgr, env)
		ctx := context.Background()
		accounts, err := adapter.ListAccounts(ctx)
		requireNoError(err)
		if len(accounts) == 0 {
			fmt.Fprintln(os.Stderr, "error: no accounts returned for this environment")
			os.Exit(1)
		}
		bal, err := adapter.GetBalance(ctx, accounts[0].AccountIDKey)
		requireNoError(err)

		runLoop(adapter, accounts[0].AccountIDKey, bal.AccountValue, alert.NewLogSink(), odte.NewBrokerRedDayDetector(adapter))
	},
}

func runLoop(b broker.Broker, accountID string, totalCapital float64, sink alert.Sink, redDay odte.RedDayDetector) {
	symbols, err := watchlist.Load(cfg.WatchlistPath)
	requireNoError(err)

	requireNoError(os.MkdirAll(cfg.StateDir, 0o755))
	st, err := store.Open(filepath.Join(cfg.StateDir, "easyorb.db"))
	requireNoError(err)
	defer st.Close()

	adv := advcache.New(cfg.StateDir, 90, nil)
	clk := clock.New()
	runner := session.New(cfg, clk, b, accountID, symbols, totalCapital, adv, st, sink)

	if zdteSymbols, err := watchlist.Load(cfg.ZeroDTEListPath); err != nil {
		rootLog.Infof("0DTE watchlist not loaded (%v), running equity-only", err)
	} else {
		runner.EnableZeroDTE(zdteSymbols, redDay)
		rootLog.Infof("0DTE layer enabled for %d symbols", len(zdteSymbols))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go runner.RunCloseWorker(ctx)

	if cfg.AdminHTTPEnabled {
		mgr, err := oauth.NewManager(cfg)
		requireNoError(err)
		srv := httpapi.New(cfg, mgr, runner)
		go func() {
			if err := srv.Run(cfg.AdminHTTPAddr); err != nil {
				rootLog.Errorf("admin HTTP server stopped: %v", err)
			}
		}()
	}

	rootLog.Infof("EasyORB running against %d symbols, $%.2f starting capital", len(symbols), totalCapital)
	runner.Run(ctx)
	rootLog.Infof("shutdown complete")
}

func init() {
	runDemoCmd.Flags().Float64Var(&demoCapital, "capital", 100000, "starting capital for the simulator")
	runLiveCmd.Flags().StringVar(&liveEnvFlag, "env", "sandbox", "broker environment: sandbox or prod")
	runCmd.AddCommand(runDemoCmd, runLiveCmd)
}
