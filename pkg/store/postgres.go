package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx driver with database/sql
	"github.com/pressly/goose/v3"

	"github.com/savefi/ledger/pkg/protocol"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// PostgresConfig holds the configuration for the PostgreSQL-backed store.
type PostgresConfig struct {
	Logger *slog.Logger
	DSN    string

	// RunMigrations applies pending schema migrations on startup.
	RunMigrations bool
}

func (cfg *PostgresConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.DSN == "" {
		return errors.New("dsn is required")
	}
	return nil
}

// PostgresStore persists protocol state in PostgreSQL. WithTx maps directly
// onto a database transaction, so every protocol entry point commits or
// rolls back as one unit.
type PostgresStore struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres config: %w", err)
	}
	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(pingCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	if cfg.RunMigrations {
		if err := runMigrations(cfg.DSN); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		cfg.Logger.Info("store: migrations applied")
	}

	return &PostgresStore{log: cfg.Logger, pool: pool}, nil
}

func runMigrations(dsn string) error {
	goose.SetBaseFS(embedMigrations)

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	return goose.Up(db, "migrations")
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping reports whether the database is reachable. Used by readiness checks.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx protocol.Tx) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(pgtx pgx.Tx) error {
		return fn(ctx, &postgresTx{tx: pgtx})
	})
}

type postgresTx struct {
	tx pgx.Tx
}

func (t *postgresTx) Config(ctx context.Context) (*protocol.ProtocolConfig, error) {
	var admin, token string
	var cfg protocol.ProtocolConfig
	err := t.tx.QueryRow(ctx,
		`SELECT admin, paused, savings_token FROM protocol_config WHERE singleton`,
	).Scan(&admin, &cfg.Paused, &token)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, protocol.ErrNotFound
		}
		return nil, fmt.Errorf("failed to query config: %w", err)
	}
	if cfg.Admin, err = solana.PublicKeyFromBase58(admin); err != nil {
		return nil, fmt.Errorf("invalid admin key in config row: %w", err)
	}
	if cfg.SavingsToken, err = solana.PublicKeyFromBase58(token); err != nil {
		return nil, fmt.Errorf("invalid savings token in config row: %w", err)
	}
	return &cfg, nil
}

func (t *postgresTx) SaveConfig(ctx context.Context, cfg *protocol.ProtocolConfig) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO protocol_config (singleton, admin, paused, savings_token)
		VALUES (TRUE, $1, $2, $3)
		ON CONFLICT (singleton) DO UPDATE SET
			admin = EXCLUDED.admin,
			paused = EXCLUDED.paused,
			savings_token = EXCLUDED.savings_token`,
		cfg.Admin.String(), cfg.Paused, cfg.SavingsToken.String())
	if err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

func (t *postgresTx) FeeAccount(ctx context.Context) (*protocol.FeeAccount, error) {
	var authority string
	var fa protocol.FeeAccount
	var balance, lastCollection, collected int64
	err := t.tx.QueryRow(ctx, `
		SELECT authority, balance, fee_rate, last_collection_time, emergency_mode, collected_fees
		FROM fee_account WHERE singleton`,
	).Scan(&authority, &balance, &fa.FeeRate, &lastCollection, &fa.EmergencyMode, &collected)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, protocol.ErrNotFound
		}
		return nil, fmt.Errorf("failed to query fee account: %w", err)
	}
	if fa.Authority, err = solana.PublicKeyFromBase58(authority); err != nil {
		return nil, fmt.Errorf("invalid authority key in fee account row: %w", err)
	}
	fa.Balance = uint64(balance)
	fa.LastCollectionTime = lastCollection
	fa.CollectedFees = uint64(collected)
	return &fa, nil
}

func (t *postgresTx) SaveFeeAccount(ctx context.Context, fa *protocol.FeeAccount) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO fee_account (singleton, authority, balance, fee_rate, last_collection_time, emergency_mode, collected_fees)
		VALUES (TRUE, $1, $2, $3, $4, $5, $6)
		ON CONFLICT (singleton) DO UPDATE SET
			authority = EXCLUDED.authority,
			balance = EXCLUDED.balance,
			fee_rate = EXCLUDED.fee_rate,
			last_collection_time = EXCLUDED.last_collection_time,
			emergency_mode = EXCLUDED.emergency_mode,
			collected_fees = EXCLUDED.collected_fees`,
		fa.Authority.String(), int64(fa.Balance), fa.FeeRate,
		fa.LastCollectionTime, fa.EmergencyMode, int64(fa.CollectedFees))
	if err != nil {
		return fmt.Errorf("failed to save fee account: %w", err)
	}
	return nil
}

func (t *postgresTx) Vault(ctx context.Context, owner solana.PublicKey) (*protocol.Vault, error) {
	var v protocol.Vault
	var balance, daily int64
	err := t.tx.QueryRow(ctx, `
		SELECT savings_rate, lock_period_days, balance, lock_until, active,
		       next_payment_due, daily_savings, last_savings_reset, emergency_locked
		FROM vaults WHERE owner = $1`,
		owner.String(),
	).Scan(&v.SavingsRate, &v.LockPeriodDays, &balance, &v.LockUntil, &v.Active,
		&v.NextPaymentDue, &daily, &v.LastSavingsReset, &v.EmergencyLocked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, protocol.ErrNotFound
		}
		return nil, fmt.Errorf("failed to query vault: %w", err)
	}
	v.Owner = owner
	v.Balance = uint64(balance)
	v.DailySavings = uint64(daily)
	return &v, nil
}

func (t *postgresTx) SaveVault(ctx context.Context, v *protocol.Vault) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO vaults (owner, savings_rate, lock_period_days, balance, lock_until, active,
		                    next_payment_due, daily_savings, last_savings_reset, emergency_locked)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (owner) DO UPDATE SET
			savings_rate = EXCLUDED.savings_rate,
			lock_period_days = EXCLUDED.lock_period_days,
			balance = EXCLUDED.balance,
			lock_until = EXCLUDED.lock_until,
			active = EXCLUDED.active,
			next_payment_due = EXCLUDED.next_payment_due,
			daily_savings = EXCLUDED.daily_savings,
			last_savings_reset = EXCLUDED.last_savings_reset,
			emergency_locked = EXCLUDED.emergency_locked`,
		v.Owner.String(), v.SavingsRate, v.LockPeriodDays, int64(v.Balance), v.LockUntil,
		v.Active, v.NextPaymentDue, int64(v.DailySavings), v.LastSavingsReset, v.EmergencyLocked)
	if err != nil {
		return fmt.Errorf("failed to save vault: %w", err)
	}
	return nil
}

func (t *postgresTx) Delegation(ctx context.Context, owner solana.PublicKey) (*protocol.Delegation, error) {
	var d protocol.Delegation
	var amount int64
	err := t.tx.QueryRow(ctx,
		`SELECT delegated_amount, delegation_expiry FROM delegations WHERE owner = $1`,
		owner.String(),
	).Scan(&amount, &d.DelegationExpiry)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, protocol.ErrNotFound
		}
		return nil, fmt.Errorf("failed to query delegation: %w", err)
	}
	d.Owner = owner
	d.DelegatedAmount = uint64(amount)
	return &d, nil
}

func (t *postgresTx) SaveDelegation(ctx context.Context, d *protocol.Delegation) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO delegations (owner, delegated_amount, delegation_expiry)
		VALUES ($1, $2, $3)
		ON CONFLICT (owner) DO UPDATE SET
			delegated_amount = EXCLUDED.delegated_amount,
			delegation_expiry = EXCLUDED.delegation_expiry`,
		d.Owner.String(), int64(d.DelegatedAmount), d.DelegationExpiry)
	if err != nil {
		return fmt.Errorf("failed to save delegation: %w", err)
	}
	return nil
}
