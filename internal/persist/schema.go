package persist

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"arbmon/internal/config"
	"arbmon/pkg/retry"
)

const (
	ddlOpportunities = `CREATE TABLE IF NOT EXISTS arbitrage_opportunities (
		id            BIGSERIAL PRIMARY KEY,
		timestamp     TIMESTAMPTZ NOT NULL,
		pair          TEXT NOT NULL,
		buy_exchange  TEXT NOT NULL,
		buy_price     NUMERIC(18,4) NOT NULL,
		sell_exchange TEXT NOT NULL,
		sell_price    NUMERIC(18,4) NOT NULL,
		spread        NUMERIC(18,4) NOT NULL,
		spread_pct    NUMERIC(6,4) NOT NULL
	)`

	ddlPrices = `CREATE TABLE IF NOT EXISTS exchange_prices (
		id            BIGSERIAL PRIMARY KEY,
		pair          TEXT NOT NULL,
		exchange_name TEXT NOT NULL,
		price         NUMERIC(18,4) NOT NULL,
		timestamp     TIMESTAMPTZ NOT NULL,
		arbitrage_id  BIGINT REFERENCES arbitrage_opportunities(id) ON DELETE SET NULL
	)`

	ddlTrades = `CREATE TABLE IF NOT EXISTS trade_log (
		id               BIGSERIAL PRIMARY KEY,
		timestamp        TIMESTAMPTZ NOT NULL,
		pair             TEXT NOT NULL,
		buy_exchange     TEXT NOT NULL,
		buy_price        NUMERIC(18,4) NOT NULL,
		sell_exchange    TEXT NOT NULL,
		sell_price       NUMERIC(18,4) NOT NULL,
		spread           NUMERIC(18,4) NOT NULL,
		spread_pct       NUMERIC(6,4) NOT NULL,
		net_profit       NUMERIC(18,4) NOT NULL,
		gross_profit     NUMERIC(18,4) NOT NULL,
		event_type       TEXT NOT NULL DEFAULT 'ENTRY',
		close_timestamp  TIMESTAMPTZ,
		exit_buy_price   NUMERIC(18,4),
		exit_sell_price  NUMERIC(18,4),
		duration_seconds BIGINT,
		decision_reason  TEXT,
		metadata         JSONB
	)`
)

// EnsureTables creates the three schema tables if they don't already exist.
// Idempotent: safe to call on every startup.
func EnsureTables(db *sql.DB) error {
	for _, ddl := range []string{ddlOpportunities, ddlPrices, ddlTrades} {
		if _, err := db.Exec(ddl); err != nil {
			return fmt.Errorf("ensure tables: %w", err)
		}
	}
	return nil
}

// EnsureDatabase connects to the server's administrative "postgres"
// database and creates the target database if it is missing. Postgres has
// no CREATE DATABASE IF NOT EXISTS, so existence is checked against
// pg_database first. Only the initial administrative connection is
// retried; once a session against the target database is open, transient
// faults are the flush loop's concern, not startup's.
func EnsureDatabase(ctx context.Context, cfg config.DatabaseConfig, log *zap.Logger) error {
	adminDB, err := sql.Open(cfg.Driver, dsn(cfg, "postgres"))
	if err != nil {
		return fmt.Errorf("open administrative connection: %w", err)
	}
	defer adminDB.Close()

	err = retry.Do(ctx, func() error { return adminDB.PingContext(ctx) }, retry.NetworkConfig())
	if err != nil {
		return fmt.Errorf("ping administrative connection: %w", err)
	}

	var exists bool
	row := adminDB.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)`, cfg.Name)
	if err := row.Scan(&exists); err != nil {
		return fmt.Errorf("check database existence: %w", err)
	}
	if exists {
		return nil
	}

	log.Info("target database missing, creating", zap.String("database", cfg.Name))
	// Database identifiers cannot be bound as query parameters; cfg.Name is
	// operator-supplied configuration, not end-user input.
	if _, err := adminDB.ExecContext(ctx, fmt.Sprintf("CREATE DATABASE %s", pq.QuoteIdentifier(cfg.Name))); err != nil {
		return fmt.Errorf("create database %s: %w", cfg.Name, err)
	}
	return nil
}

// Open returns a connection pool against the target database named in cfg.
func Open(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open(cfg.Driver, dsn(cfg, cfg.Name))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return db, nil
}

func dsn(cfg config.DatabaseConfig, dbName string) string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		cfg.Host, cfg.Port, dbName, cfg.User, cfg.Password, cfg.SSLMode)
}
