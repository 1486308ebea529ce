package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alejandrodnm/ctfdesk/config"
	"github.com/alejandrodnm/ctfdesk/internal/adapters/notify"
	"github.com/alejandrodnm/ctfdesk/internal/adapters/onchain"
	"github.com/alejandrodnm/ctfdesk/internal/adapters/storage"
	"github.com/alejandrodnm/ctfdesk/internal/application/market"
	"github.com/alejandrodnm/ctfdesk/internal/application/oracle"
	"github.com/alejandrodnm/ctfdesk/internal/application/trade"
)

const usage = `usage: ctfdesk [flags] <command> [args]

read commands:
  watch                          poll markets and oracle questions (default)
  markets                        show every configured market once
  questions [all|pending|ready|resolved]
  history [limit]                recent write journal

market commands (<market> is an AMM address or a title prefix):
  buy <market> <outcome> <amount>
  sell <market> <outcome> <amount>
  redeem <market>
  approve <market>
  add-liquidity <market> <amount>
  withdraw-liquidity <market>
  redeem-market <market>
  change-fee <market> <percent>
  pause|resume|close <market>
  withdraw-fees <market>
  report-payouts <market> <winning-outcome>
  wrap <amount> | unwrap <amount>

oracle commands:
  propose <question-id> <yes|no|undecided>
  dispute|settle|resolve <question-id>

flags:
`

func main() {
	os.Exit(run(os.Args[1:]))
}

// run returns the process exit code.
func run(argv []string) int {
	fs := flag.NewFlagSet("ctfdesk", flag.ContinueOnError)
	configPath := fs.String("config", "config/config.yaml", "path to config file")
	verbose := fs.Bool("verbose", false, "set log level to debug")
	logFormat := fs.String("format", "", "log format: text|json (overrides config)")
	table := fs.Bool("table", false, "print full tables (default: compact 1-line)")
	account := fs.String("account", "", "read account for watch-only mode (overrides config)")
	fs.Usage = func() {
		fmt.Fprint(fs.Output(), usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(argv); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		return 1
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	var readAccount common.Address
	if *account != "" {
		if !common.IsHexAddress(*account) {
			slog.Error("invalid account", "account", *account)
			return 2
		}
		readAccount = common.HexToAddress(*account)
	}
	setupLogger(cfg.Log)

	args := fs.Args()
	command := "watch"
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, cfg, readAccount, *table)
	if err != nil {
		slog.Error("failed to start", "err", err)
		return 1
	}
	defer a.close()

	slog.Info("ctfdesk starting",
		"config", *configPath,
		"command", command,
		"chain_id", cfg.Network.ChainID,
		"account", a.session.Account().Hex(),
		"can_sign", a.session.CanSign(),
		"markets", len(cfg.Markets),
	)

	if err := a.dispatch(ctx, command, args); err != nil {
		slog.Error("command failed", "command", command, "err", err)
		return 1
	}
	return 0
}

// app holds the wired components shared by every command.
type app struct {
	cfg      *config.Config
	session  *onchain.Session
	store    *storage.SQLiteStorage
	board    *market.Board
	oracle   *oracle.Lifecycle
	orch     *trade.Orchestrator
	notifier *notify.Console
}

// newApp wires every component. A non-zero readAccount replaces the session
// account; it is refused when a private key is configured.
func newApp(ctx context.Context, cfg *config.Config, readAccount common.Address, table bool) (*app, error) {
	gw, err := onchain.Dial(ctx, cfg.Network.RPCURL, cfg.Network.ChainID, cfg.Wallet.PrivateKey, onchain.Options{
		RatePerSec:   cfg.Network.RPCRatePerSec,
		LogChunkSize: cfg.Network.LogChunkSize,
	})
	if err != nil {
		return nil, err
	}

	addrs := onchain.Addresses{
		ConditionalTokens: common.HexToAddress(cfg.Network.ConditionalTokens),
		Collateral:        common.HexToAddress(cfg.Network.CollateralToken),
		Oracle:            common.HexToAddress(cfg.Network.OracleAddress),
		Adapter:           common.HexToAddress(cfg.Network.AdapterAddress),
		OptimisticOracle:  common.HexToAddress(cfg.Network.OptimisticOracleAddress),
		RewardToken:       common.HexToAddress(cfg.Network.RewardTokenAddress),
	}
	var account common.Address
	if cfg.Wallet.Account != "" {
		account = common.HexToAddress(cfg.Wallet.Account)
	}
	session := onchain.NewSession(gw, addrs, account)
	if readAccount != (common.Address{}) {
		if session.CanSign() {
			return nil, fmt.Errorf("-account %s: only valid without a private key", readAccount.Hex())
		}
		session = session.WithAccount(readAccount)
	}

	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		return nil, fmt.Errorf("open storage %q: %w", cfg.Storage.DSN, err)
	}

	lc := oracle.NewLifecycle(session, store, oracle.Config{
		StartBlock:      cfg.Network.StartBlock,
		PriceIdentifier: cfg.Network.Identifier(),
		Concurrency:     cfg.Polling.OracleConcurrency,
	})

	return &app{
		cfg:      cfg,
		session:  session,
		store:    store,
		board:    market.NewBoard(session, cfg.Descriptors(), addrs.Oracle),
		oracle:   lc,
		orch:     trade.NewOrchestrator(session, store, lc, addrs.Oracle),
		notifier: notify.NewConsole(table),
	}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		slog.Warn("failed to close storage", "err", err)
	}
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
