// Package warehouse opens validated sessions against the sales data warehouse.
package warehouse

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Dan9191/sales-forecast/internal/config"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"github.com/snowflakedb/gosnowflake"
	_ "modernc.org/sqlite"
)

// Session is an authenticated, validated warehouse connection.
// The caller owns it and must Close it.
type Session struct {
	db      *sql.DB
	dialect Dialect
	version string
	log     *logrus.Logger
}

// Open connects to the configured warehouse and validates the session.
// Authentication and network errors are returned as-is; there is no retry.
func Open(ctx context.Context, wh config.Warehouse, log *logrus.Logger) (*Session, error) {
	dialect, err := DialectFor(wh.Driver)
	if err != nil {
		return nil, err
	}

	dsn, err := buildDSN(wh)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(wh.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", wh.Driver, err)
	}

	s, err := OpenDB(ctx, db, dialect, log)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// OpenDB wraps an already opened database handle and validates it
func OpenDB(ctx context.Context, db *sql.DB, dialect Dialect, log *logrus.Logger) (*Session, error) {
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping warehouse: %w", err)
	}

	s := &Session{db: db, dialect: dialect, log: log}
	if err := s.validate(ctx); err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"driver":  dialect.Name,
		"version": s.version,
	}).Info("Warehouse session opened")
	return s, nil
}

// validate runs the version check query. The result only proves the session works.
func (s *Session) validate(ctx context.Context) error {
	var version sql.NullString
	if err := s.db.QueryRowContext(ctx, s.dialect.VersionQuery).Scan(&version); err != nil {
		return fmt.Errorf("failed to validate warehouse session: %w", err)
	}
	s.version = version.String
	return nil
}

// DB returns the underlying database handle
func (s *Session) DB() *sql.DB {
	return s.db
}

// Dialect returns the SQL dialect of the session
func (s *Session) Dialect() Dialect {
	return s.dialect
}

// Version returns the server version reported during validation
func (s *Session) Version() string {
	return s.version
}

// Close releases the session
func (s *Session) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close warehouse session: %w", err)
	}
	s.log.Debug("Warehouse session closed")
	return nil
}

func buildDSN(wh config.Warehouse) (string, error) {
	if wh.Driver != config.DriverSnowflake {
		return wh.DSN, nil
	}

	dsn, err := gosnowflake.DSN(&gosnowflake.Config{
		Account:   wh.Account,
		User:      wh.User,
		Password:  wh.Password,
		Role:      wh.Role,
		Warehouse: wh.Warehouse,
		Database:  wh.Database,
		Schema:    wh.Schema,
	})
	if err != nil {
		return "", fmt.Errorf("failed to build snowflake dsn: %w", err)
	}
	return dsn, nil
}
