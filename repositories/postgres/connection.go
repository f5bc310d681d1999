package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/upb/medins-agent/config"
)

// DB wraps the sql.DB connection pool. All tables live in one schema.
type DB struct {
	*sql.DB
	schema string
	logger *zap.Logger
}

// NewDB creates a new database connection pool
func NewDB(cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	conn, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(cfg.MaxOpenConns)
	conn.SetMaxIdleConns(cfg.MaxIdleConns)
	conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established",
		zap.String("connection", cfg.LogString()))

	return Wrap(conn, cfg.Schema, logger), nil
}

// Wrap adapts an open connection pool
func Wrap(conn *sql.DB, schema string, logger *zap.Logger) *DB {
	if schema == "" {
		schema = "public"
	}
	return &DB{DB: conn, schema: schema, logger: logger}
}

// Schema returns the schema every table is qualified with
func (db *DB) Schema() string {
	return db.schema
}

// Table returns the quoted, schema-qualified name of table
func (db *DB) Table(table string) string {
	return pq.QuoteIdentifier(db.schema) + "." + pq.QuoteIdentifier(table)
}

// Close closes the database connection pool
func (db *DB) Close() error {
	db.logger.Info("closing database connection")
	return db.DB.Close()
}

// HealthCheck performs a health check on the database
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	var exists bool
	err := db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.schemata WHERE schema_name = $1)`,
		db.schema,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("database query check failed: %w", err)
	}
	if !exists {
		return fmt.Errorf("schema %q does not exist", db.schema)
	}

	return nil
}

// Stats returns database connection pool statistics
func (db *DB) Stats() sql.DBStats {
	return db.DB.Stats()
}

// InitSchema creates the schema and the users table
func (db *DB) InitSchema(ctx context.Context) error {
	users := db.Table("users")
	statements := []string{
		fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, pq.QuoteIdentifier(db.schema)),
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id UUID PRIMARY KEY,
			username VARCHAR(150) NOT NULL UNIQUE,
			email VARCHAR(255) NOT NULL UNIQUE,
			hashed_password VARCHAR(255) NOT NULL,
			full_name VARCHAR(255),
			user_role VARCHAR(50) NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`, users),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_users_user_role ON %s (user_role)`, users),
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}

	db.logger.Info("database schema initialized", zap.String("schema", db.schema))
	return nil
}
