package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// DB wraps the PostgreSQL connection pool used for the audit log: gate
// decisions, settled trades and risk-state snapshots. The trading loop never
// blocks on it; persistence failures are logged and dropped.
type DB struct {
	Pool *pgxpool.Pool
	log  zerolog.Logger
}

// Config holds database configuration
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// NewDB creates a new database connection
func NewDB(cfg Config, log zerolog.Logger) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	log.Info().Str("database", cfg.Database).Msg("connected to PostgreSQL")

	return &DB{Pool: pool, log: log}, nil
}

// Close closes the database connection
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		db.log.Info().Msg("database connection closed")
	}
}

// RunMigrations creates the audit tables.
func (db *DB) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS gate_decisions (
			id UUID PRIMARY KEY,
			signal_id UUID NOT NULL,
			symbol VARCHAR(20) NOT NULL,
			approved BOOLEAN NOT NULL,
			reason VARCHAR(50),
			requested_size DECIMAL(20, 8) NOT NULL,
			adjusted_size DECIMAL(20, 8) NOT NULL,
			gate_state VARCHAR(10) NOT NULL,
			decided_at TIMESTAMP NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_gate_decisions_symbol ON gate_decisions(symbol)`,
		`CREATE INDEX IF NOT EXISTS idx_gate_decisions_decided_at ON gate_decisions(decided_at)`,

		`CREATE TABLE IF NOT EXISTS trades (
			id SERIAL PRIMARY KEY,
			signal_id UUID,
			symbol VARCHAR(20) NOT NULL,
			side VARCHAR(4) NOT NULL,
			entry_price DECIMAL(20, 8) NOT NULL,
			exit_price DECIMAL(20, 8),
			quantity DECIMAL(20, 8) NOT NULL,
			stop_loss DECIMAL(20, 8),
			take_profit DECIMAL(20, 8),
			pnl DECIMAL(20, 8),
			dry_run BOOLEAN NOT NULL DEFAULT FALSE,
			status VARCHAR(20) NOT NULL DEFAULT 'OPEN',
			opened_at TIMESTAMP NOT NULL,
			closed_at TIMESTAMP,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_status ON trades(status)`,

		`CREATE TABLE IF NOT EXISTS risk_snapshots (
			id SERIAL PRIMARY KEY,
			state VARCHAR(10) NOT NULL,
			equity DECIMAL(20, 8) NOT NULL,
			peak_equity DECIMAL(20, 8) NOT NULL,
			drawdown_from_peak DECIMAL(10, 4) NOT NULL,
			daily_pnl DECIMAL(20, 8) NOT NULL,
			consecutive_losses INT NOT NULL,
			open_positions INT NOT NULL,
			trip_reason VARCHAR(50),
			trading_day VARCHAR(10) NOT NULL,
			captured_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_risk_snapshots_day ON risk_snapshots(trading_day)`,
	}

	for _, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	db.log.Info().Msg("database migrations complete")
	return nil
}
