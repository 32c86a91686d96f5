package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// Supported database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// Options tunes the connection pool.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// SQLStore implements Store on PostgreSQL or SQLite.
type SQLStore struct {
	db     *sqlx.DB
	tx     *sqlx.Tx
	driver string
	sb     sq.StatementBuilderType
}

// Open connects to the database named by driver and dsn and verifies the
// connection.
func Open(ctx context.Context, driver, dsn string, opts Options) (*SQLStore, error) {
	switch driver {
	case DriverPostgres:
	case DriverSQLite:
		if !strings.Contains(dsn, "_foreign_keys") && !strings.Contains(dsn, "_fk") {
			sep := "?"
			if strings.Contains(dsn, "?") {
				sep = "&"
			}
			dsn += sep + "_foreign_keys=on"
		}
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if driver == DriverSQLite {
		// A single connection keeps in-memory databases shared and
		// serializes writers.
		db.SetMaxOpenConns(1)
	} else {
		if opts.MaxOpenConns > 0 {
			db.SetMaxOpenConns(opts.MaxOpenConns)
		}
		if opts.MaxIdleConns > 0 {
			db.SetMaxIdleConns(opts.MaxIdleConns)
		}
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return newSQLStore(db, driver), nil
}

func newSQLStore(db *sqlx.DB, driver string) *SQLStore {
	var format sq.PlaceholderFormat = sq.Question
	if driver == DriverPostgres {
		format = sq.Dollar
	}
	return &SQLStore{
		db:     db,
		driver: driver,
		sb:     sq.StatementBuilder.PlaceholderFormat(format),
	}
}

// Driver returns the database driver name.
func (s *SQLStore) Driver() string {
	return s.driver
}

// Close closes the database connection
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// BeginTx starts a new transaction
func (s *SQLStore) BeginTx(ctx context.Context) (Store, error) {
	if s.tx != nil {
		return nil, errors.New("transaction already in progress")
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &SQLStore{db: s.db, tx: tx, driver: s.driver, sb: s.sb}, nil
}

// Commit commits the transaction
func (s *SQLStore) Commit() error {
	if s.tx == nil {
		return nil
	}
	return s.tx.Commit()
}

// Rollback rolls back the transaction. Rolling back a finished transaction
// is a no-op.
func (s *SQLStore) Rollback() error {
	if s.tx == nil {
		return nil
	}
	if err := s.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

// getDB returns tx if in transaction, otherwise db
func (s *SQLStore) getDB() sqlx.ExtContext {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// rebind converts a query written with ? placeholders to the driver's form.
func (s *SQLStore) rebind(query string) string {
	return sqlx.Rebind(sqlx.BindType(s.driver), query)
}

func (s *SQLStore) get(ctx context.Context, dest interface{}, b sq.Sqlizer) error {
	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	return translateError(sqlx.GetContext(ctx, s.getDB(), dest, query, args...))
}

func (s *SQLStore) selectRows(ctx context.Context, dest interface{}, b sq.Sqlizer) error {
	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	return translateError(sqlx.SelectContext(ctx, s.getDB(), dest, query, args...))
}

func (s *SQLStore) exec(ctx context.Context, b sq.Sqlizer) (int64, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}
	result, err := s.getDB().ExecContext(ctx, query, args...)
	if err != nil {
		return 0, translateError(err)
	}
	return result.RowsAffected()
}

func (s *SQLStore) count(ctx context.Context, b sq.SelectBuilder) (int64, error) {
	var total int64
	if err := s.get(ctx, &total, b); err != nil {
		return 0, err
	}
	return total, nil
}

// execOne runs an UPDATE expected to touch exactly one row.
func (s *SQLStore) execOne(ctx context.Context, b sq.Sqlizer) error {
	rows, err := s.exec(ctx, b)
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func paginate(b sq.SelectBuilder, page Page) sq.SelectBuilder {
	if page.Limit > 0 {
		b = b.Limit(uint64(page.Limit))
	}
	if page.Offset > 0 {
		b = b.Offset(uint64(page.Offset))
	}
	return b
}

// translateError maps driver errors to the storage sentinels.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", ErrDuplicateKey, pqErr.Constraint)
		case "23503", "23514", "23502":
			return fmt.Errorf("%w: %s", ErrInvalidData, pqErr.Message)
		}
		return err
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		switch liteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return fmt.Errorf("%w: %s", ErrDuplicateKey, liteErr.Error())
		case sqlite3.ErrConstraintForeignKey, sqlite3.ErrConstraintCheck, sqlite3.ErrConstraintNotNull:
			return fmt.Errorf("%w: %s", ErrInvalidData, liteErr.Error())
		}
	}
	return err
}
