// Copyright 2025 Certen Protocol
//
// manyd is the Network's node executable: it loads a signing identity,
// opens the authenticated store, seeds it from genesis on first boot,
// registers the three built-in modules, and either serves HTTP RPC
// directly (development/single-node mode) or runs as an ABCI
// application a real CometBFT engine drives (--abci). The CLI surface
// is intentionally thin (spec.md §6): flag, not a cobra/pflag tree, the
// same choice the teacher's own main.go made.
package main

import (
	"context"
	"crypto/ed25519"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	abciserver "github.com/cometbft/cometbft/abci/server"
	dbm "github.com/cometbft/cometbft-db"

	"github.com/certenio/manynet/pkg/asynctoken"
	"github.com/certenio/manynet/pkg/bridge"
	"github.com/certenio/manynet/pkg/config"
	"github.com/certenio/manynet/pkg/crypto/bls"
	"github.com/certenio/manynet/pkg/dispatch"
	"github.com/certenio/manynet/pkg/eventlog"
	"github.com/certenio/manynet/pkg/genesis"
	"github.com/certenio/manynet/pkg/identity"
	"github.com/certenio/manynet/pkg/kvstore"
	"github.com/certenio/manynet/pkg/migrations"
	"github.com/certenio/manynet/pkg/modules/account"
	kvstoremod "github.com/certenio/manynet/pkg/modules/kvstore"
	"github.com/certenio/manynet/pkg/modules/ledger"
	"github.com/certenio/manynet/pkg/quorum"
	"github.com/certenio/manynet/pkg/server"
)

func main() {
	var (
		pemPath    = flag.String("pem", "", "path to a PKCS#8 Ed25519 PEM file naming the node's identity (ephemeral key if empty)")
		addr       = flag.String("addr", "", "listen address (overrides the config file's server.listen_addr)")
		port       = flag.Int("port", 0, "listen port (overrides the port in --addr/the config file)")
		configPath = flag.String("config", "", "path to a node configuration YAML file (defaults applied if empty)")
		statePath  = flag.String("state", "", "path to the genesis state file (overrides the config file's genesis.path)")
		persistent = flag.String("persistent", "", "path of the persistent store (overrides the config file's storage.db_path)")
		abci       = flag.Bool("abci", false, "run as an ABCI application for an external CometBFT engine, instead of serving HTTP RPC directly")
		clean      = flag.Bool("clean", false, "wipe persistent storage before starting")
		verbose    = flag.Bool("v", false, "verbose (debug-level) logging")
		quiet      = flag.Bool("q", false, "quiet (errors only) logging")
	)
	flag.Parse()

	logger := newLogger(*verbose, *quiet)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fatal(logger, "load config", err)
	}
	applyCLIOverrides(cfg, *addr, *port, *statePath, *persistent, *abci)

	if err := cfg.Validate(); err != nil {
		fatal(logger, "validate config", err)
	}

	if *clean && cfg.Storage.DBPath != "" {
		if err := os.RemoveAll(cfg.Storage.DBPath); err != nil {
			fatal(logger, "clean persistent storage", err)
		}
		logger.Printf("wiped persistent storage at %s", cfg.Storage.DBPath)
	}

	signer, serverID, err := loadIdentity(*pemPath, logger)
	if err != nil {
		fatal(logger, "load identity", err)
	}
	logger.Printf("node identity: %s", serverID.ToText())

	store, err := openStore(cfg)
	if err != nil {
		fatal(logger, "open store", err)
	}

	ledgerStorage := ledger.NewStorage(serverID, store)
	acctStorage := account.NewStorage(serverID, store, ledgerStorage)

	if err := maybeApplyGenesis(cfg, store, ledgerStorage, acctStorage, logger); err != nil {
		fatal(logger, "apply genesis", err)
	}

	migrationsRegistry, err := loadMigrations(cfg, store, logger)
	if err != nil {
		fatal(logger, "load migrations", err)
	}

	acctModule := account.NewModule(serverID, store, ledgerStorage)

	router := dispatch.NewRouter(serverID, logger)
	ledgerModule := ledger.NewModule(serverID, store)
	router.Register("ledger", ledgerModule)
	router.Register("tokens", ledgerModule)
	router.Register("account", acctModule)
	router.Register("kvstore", kvstoremod.NewModule(store))

	var index eventlog.SecondaryIndex
	if cfg.EventLog.PostgresDSN != "" {
		pgIndex, err := eventlog.OpenPostgresIndex(context.Background(), cfg.EventLog.PostgresDSN)
		if err != nil {
			fatal(logger, "open event log index", err)
		}
		defer pgIndex.Close()
		index = pgIndex
	}
	events := eventlog.NewLog(store, index)

	asyncTable := asynctoken.NewTable(cfg.Async.RetentionBlocks)
	quorumCollector := quorum.NewCollector(cfg.Quorum.Enabled)
	if cfg.Quorum.Enabled {
		if _, err := loadQuorumKey(cfg.Quorum.BLSKeyPath, logger); err != nil {
			fatal(logger, "load quorum key", err)
		}
	}

	app := bridge.NewApp(store, events, asyncTable, router, quorumCollector)
	acctModule.RegisterWith(app)
	migrationsRegistry.RegisterWith(app)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !cfg.IsDirect() {
		runABCI(ctx, logger, cfg, app)
		return
	}
	runDirect(ctx, logger, cfg, serverID, signer, router, app, asyncTable)
}

func newLogger(verbose, quiet bool) *log.Logger {
	flags := log.LstdFlags
	if verbose {
		flags |= log.Lmicroseconds
	}
	out := io.Writer(os.Stderr)
	if quiet {
		out = io.Discard
	}
	return log.New(out, "[manyd] ", flags)
}

// fatal always reports to stderr directly, bypassing -q: a startup
// failure is the one message quiet mode must never swallow, since
// spec.md's exit-1-on-startup-failure contract depends on it being
// visible.
func fatal(logger *log.Logger, step string, err error) {
	fmt.Fprintf(os.Stderr, "[manyd] %s: %v\n", step, err)
	os.Exit(1)
}

func loadConfig(path string) (*config.NodeConfig, error) {
	if path == "" {
		return config.DefaultNodeConfig(), nil
	}
	return config.LoadNodeConfig(path)
}

func applyCLIOverrides(cfg *config.NodeConfig, addr string, port int, statePath, persistent string, abci bool) {
	if addr != "" {
		cfg.Server.ListenAddr = addr
	}
	if port != 0 {
		host, _, err := splitHostPort(cfg.Server.ListenAddr)
		if err != nil {
			host = ""
		}
		cfg.Server.ListenAddr = fmt.Sprintf("%s:%d", host, port)
	}
	if statePath != "" {
		cfg.Genesis.Path = statePath
	}
	if persistent != "" {
		cfg.Storage.DBPath = persistent
	}
	if abci {
		cfg.Storage.Mode = config.StorageModeBlockchain
	}
}

func splitHostPort(addr string) (string, string, error) {
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			return addr[:i], addr[i+1:], nil
		}
	}
	return addr, "", errors.New("no port in address")
}

func loadIdentity(pemPath string, logger *log.Logger) (*identity.PublicKey, identity.Identity, error) {
	if pemPath != "" {
		return identity.LoadEd25519PEM(pemPath)
	}
	logger.Printf("no --pem given: generating an ephemeral identity for this run")
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, identity.Identity{}, err
	}
	pk := identity.NewEd25519KeyPair(pub, priv)
	id, err := identity.Addressable(pk)
	if err != nil {
		return nil, identity.Identity{}, err
	}
	return pk, id, nil
}

func openStore(cfg *config.NodeConfig) (*kvstore.Store, error) {
	if cfg.Storage.DBPath == "" {
		return kvstore.NewStore(kvstore.NewMemDB())
	}
	dir := filepath.Dir(cfg.Storage.DBPath)
	name := filepath.Base(cfg.Storage.DBPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory %s: %w", dir, err)
	}
	db, err := dbm.NewGoLevelDB(name, dir)
	if err != nil {
		return nil, fmt.Errorf("open persistent store at %s: %w", cfg.Storage.DBPath, err)
	}
	return kvstore.NewStore(kvstore.NewCometDB(db))
}

// maybeApplyGenesis seeds the store from cfg.Genesis.Path the first time
// the node boots against an empty store (height 0); a node restarting
// against an already-seeded store skips it, since genesis establishes
// the chain's starting point once, not every boot.
func maybeApplyGenesis(cfg *config.NodeConfig, store *kvstore.Store, ledgerStorage *ledger.Storage, acctStorage *account.Storage, logger *log.Logger) error {
	height, err := store.Height()
	if err != nil {
		return err
	}
	if height != 0 {
		return nil
	}
	if _, err := os.Stat(cfg.Genesis.Path); err != nil {
		logger.Printf("no genesis file at %s: starting from an empty state", cfg.Genesis.Path)
		return nil
	}
	doc, err := genesis.Load(cfg.Genesis.Path)
	if err != nil {
		return err
	}
	if !cfg.Genesis.VerifyHash {
		doc.Hash = ""
	}
	if err := genesis.Apply(doc, store, ledgerStorage, acctStorage); err != nil {
		return err
	}
	logger.Printf("applied genesis from %s (root=%x)", cfg.Genesis.Path, store.Root())
	return nil
}

// loadQuorumKey loads this node's BLS quorum-signing key from path,
// generating and persisting one on first boot. The returned key is not
// yet handed to anything that signs shares on this node's behalf
// (quorum.Sign/AddShare are driven by whatever gossips committed-block
// attestations between validators, which this executable does not
// implement); loading it at startup surfaces misconfiguration (a
// missing/corrupt key file) before the node starts serving instead of
// the first time a share is needed.
func loadQuorumKey(path string, logger *log.Logger) (*bls.PrivateKey, error) {
	km := bls.NewKeyManager(path)
	if err := km.LoadOrGenerateKey(); err != nil {
		return nil, err
	}
	logger.Printf("quorum BLS public key: %s", km.GetPublicKeyHex())
	return km.GetPrivateKey(), nil
}

func loadMigrations(cfg *config.NodeConfig, store *kvstore.Store, logger *log.Logger) (*migrations.Registry, error) {
	migCfg := migrations.Config{}
	if _, err := os.Stat(cfg.Migrations.Path); err == nil {
		loaded, err := migrations.LoadConfig(cfg.Migrations.Path)
		if err != nil {
			return nil, err
		}
		migCfg = loaded
	}
	registry := migrations.NewRegistry(migCfg, store, func(name string, err error) {
		logger.Printf("migration %q failed, will retry: %v", name, err)
	})
	return registry, nil
}

func runDirect(ctx context.Context, logger *log.Logger, cfg *config.NodeConfig, serverID identity.Identity, signer *identity.PublicKey, router *dispatch.Router, app *bridge.App, asyncTable *asynctoken.Table) {
	submitter := bridge.NewDirectSubmitter(app, time.Now)
	outer := bridge.NewOuter(serverID, router, submitter, asyncTable)
	metrics := server.NewMetrics()
	metrics.SetAsyncQueueGauge("async_queue_depth", "Number of async tokens currently tracked.", func() float64 { return float64(asyncTable.Len()) })
	srv := server.NewServer(cfg.Server.ListenAddr, outer, serverID, signer, server.WithLogger(logger), server.WithMetrics(metrics))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		logger.Printf("shutting down")
	case err := <-errCh:
		if err != nil {
			fatal(logger, "serve", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Printf("shutdown: %v", err)
	}
}

func runABCI(ctx context.Context, logger *log.Logger, cfg *config.NodeConfig, app *bridge.App) {
	svc, err := abciserver.NewServer(cfg.Server.ListenAddr, "socket", app)
	if err != nil {
		fatal(logger, "start ABCI server", err)
	}
	if err := svc.Start(); err != nil {
		fatal(logger, "start ABCI server", err)
	}
	logger.Printf("ABCI application listening on %s, waiting for the consensus engine", cfg.Server.ListenAddr)

	select {
	case <-ctx.Done():
		logger.Printf("shutting down")
	case <-svc.Quit():
		logger.Printf("consensus engine disconnected")
	}
	_ = svc.Stop()
}
