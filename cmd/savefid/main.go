package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/savefi/ledger/pkg/metrics"
	"github.com/savefi/ledger/pkg/protocol"
	"github.com/savefi/ledger/pkg/server"
	"github.com/savefi/ledger/pkg/sol"
	"github.com/savefi/ledger/pkg/store"
	"github.com/savefi/ledger/utils/pkg/logger"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const (
	defaultListenAddr  = "0.0.0.0:8080"
	defaultMetricsAddr = "0.0.0.0:0"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	listenAddrFlag := flag.String("listen-addr", defaultListenAddr, "Address to listen on for the HTTP API")
	metricsAddrFlag := flag.String("metrics-addr", defaultMetricsAddr, "Address to listen on for prometheus metrics")
	shutdownTimeoutFlag := flag.Duration("shutdown-timeout", 30*time.Second, "Maximum time to wait for in-flight requests during graceful shutdown")

	storeBackendFlag := flag.String("store", "postgres", "State store backend: 'postgres' or 'memory' (dev)")
	postgresDSNFlag := flag.String("postgres-dsn", "", "PostgreSQL connection string (or set POSTGRES_DSN env var)")
	migrateFlag := flag.Bool("migrate", true, "Run pending database migrations on startup")

	ledgerBackendFlag := flag.String("ledger", "solana", "Fund movement backend: 'solana' or 'memory' (dev)")
	rpcURLFlag := flag.String("rpc-url", solanarpc.MainNetBeta_RPC, "Solana RPC endpoint")
	authorityKeyFlag := flag.String("authority-keypair", "", "Path to the custodial authority keypair file (or set SAVEFI_AUTHORITY_KEYPAIR env var)")
	signerKeyFlags := flag.StringArray("signer-keypair", nil, "Path to a custodied account keypair (escrow, fee vault); repeatable")
	escrowFlag := flag.String("escrow-account", "", "Escrow account public key (or set SAVEFI_ESCROW_ACCOUNT env var)")
	feeVaultFlag := flag.String("fee-vault-account", "", "Fee vault account public key (or set SAVEFI_FEE_VAULT_ACCOUNT env var)")

	authDisabledFlag := flag.Bool("auth-disabled", false, "Skip request signature verification (dev only)")

	flag.Parse()

	log := logger.New(*verboseFlag)

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn("failed to load .env file", "error", err)
	}

	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              dsn,
			Release:          version,
			EnableTracing:    true,
			TracesSampleRate: 0.1,
		}); err != nil {
			return fmt.Errorf("failed to init sentry: %w", err)
		}
		defer sentry.Flush(5 * time.Second)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	escrow, err := requiredPubkey(*escrowFlag, "SAVEFI_ESCROW_ACCOUNT")
	if err != nil {
		return fmt.Errorf("escrow account: %w", err)
	}
	feeVault, err := requiredPubkey(*feeVaultFlag, "SAVEFI_FEE_VAULT_ACCOUNT")
	if err != nil {
		return fmt.Errorf("fee vault account: %w", err)
	}

	st, ready, err := newStore(ctx, log, *storeBackendFlag, *postgresDSNFlag, *migrateFlag)
	if err != nil {
		return err
	}

	ldg, err := newFundLedger(log, *ledgerBackendFlag, *rpcURLFlag, *authorityKeyFlag, *signerKeyFlags)
	if err != nil {
		return err
	}

	engine, err := protocol.NewEngine(protocol.Config{
		Logger:          log,
		Store:           st,
		Ledger:          ldg,
		EscrowAccount:   escrow,
		FeeVaultAccount: feeVault,
	})
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	srv, err := server.New(server.Config{
		Logger:          log,
		Engine:          engine,
		ListenAddr:      *listenAddrFlag,
		ShutdownTimeout: *shutdownTimeoutFlag,
		AuthDisabled:    *authDisabledFlag,
		Ready:           ready,
		VersionInfo: server.VersionInfo{
			Version: version,
			Commit:  commit,
			Date:    date,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	if *authDisabledFlag {
		log.Warn("request signature verification is DISABLED")
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.Run(ctx)
	})

	if *metricsAddrFlag != "" {
		metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)
		g.Go(func() error {
			return runMetricsServer(ctx, log, *metricsAddrFlag)
		})
	}

	return g.Wait()
}

func requiredPubkey(flagValue, envVar string) (solana.PublicKey, error) {
	value := flagValue
	if value == "" {
		value = os.Getenv(envVar)
	}
	if value == "" {
		return solana.PublicKey{}, fmt.Errorf("required (flag or %s env var)", envVar)
	}
	pk, err := solana.PublicKeyFromBase58(value)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid public key %q: %w", value, err)
	}
	return pk, nil
}

// newStore builds the state store and a readiness probe for it.
func newStore(ctx context.Context, log *slog.Logger, backend, dsn string, migrate bool) (protocol.Store, func(ctx context.Context) error, error) {
	switch backend {
	case "memory":
		log.Info("store: using in-memory backend")
		return store.NewMemoryStore(), nil, nil
	case "postgres":
		if dsn == "" {
			dsn = os.Getenv("POSTGRES_DSN")
		}
		if dsn == "" {
			return nil, nil, fmt.Errorf("postgres store requires --postgres-dsn or POSTGRES_DSN")
		}
		pg, err := store.NewPostgresStore(ctx, store.PostgresConfig{
			Logger:        log,
			DSN:           dsn,
			RunMigrations: migrate,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create postgres store: %w", err)
		}
		return pg, pg.Ping, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", backend)
	}
}

// newFundLedger builds the fund movement backend.
func newFundLedger(log *slog.Logger, backend, rpcURL, authorityKeyPath string, signerKeyPaths []string) (protocol.Ledger, error) {
	switch backend {
	case "memory":
		log.Info("ledger: using in-memory backend")
		return protocol.NewMemoryLedger(), nil
	case "solana":
		if authorityKeyPath == "" {
			authorityKeyPath = os.Getenv("SAVEFI_AUTHORITY_KEYPAIR")
		}
		if authorityKeyPath == "" {
			return nil, fmt.Errorf("solana ledger requires --authority-keypair or SAVEFI_AUTHORITY_KEYPAIR")
		}
		authority, err := solana.PrivateKeyFromSolanaKeygenFile(authorityKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load authority keypair: %w", err)
		}
		signers := make([]solana.PrivateKey, 0, len(signerKeyPaths))
		for _, path := range signerKeyPaths {
			signer, err := solana.PrivateKeyFromSolanaKeygenFile(path)
			if err != nil {
				return nil, fmt.Errorf("failed to load signer keypair %s: %w", path, err)
			}
			signers = append(signers, signer)
		}
		return sol.NewLedger(sol.Config{
			Logger:    log,
			RPC:       solanarpc.New(rpcURL),
			Authority: authority,
			Signers:   signers,
		})
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", backend)
	}
}

func runMetricsServer(ctx context.Context, log *slog.Logger, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start metrics listener: %w", err)
	}
	log.Info("prometheus metrics server listening", "address", listener.Addr().String())

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to serve metrics: %w", err)
	}
	return nil
}
