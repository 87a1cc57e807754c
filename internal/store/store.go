// Package store is the persistence gateway for duo's item list.
//
// The gateway owns a single table:
//
//	Items(Id integer identity primary key, Name text(255) not null)
//
// Every operation checks out its own connection from the driver, runs one
// statement on it and releases it before returning. Nothing is held across
// calls, and no operation spans a transaction with another.
//
// Supported engines are selected by config.DatabaseConfig.Driver:
//   - sqlite: embedded file database (default)
//   - sqlserver: Microsoft SQL Server
//   - postgres: PostgreSQL via pgx
//   - mysql: MySQL or MariaDB (strict SQL mode for length checks)
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/duoapp/duo/internal/config"
)

// MaxNameLength is the bound on Record.Name, counted in characters.
const MaxNameLength = 255

// Record is one row of the Items table.
type Record struct {
	ID   int64  `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// Gateway issues parameterized SQL against the backing store.
type Gateway struct {
	db      atomic.Pointer[sql.DB] // nil once closed
	dialect *dialect
	logger  *zap.Logger
}

// Option customizes a Gateway.
type Option func(*Gateway)

// WithLogger sets the logger used for statement-level debug output.
func WithLogger(logger *zap.Logger) Option {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// Open prepares a gateway for cfg. It does not contact the store; the first
// failure to reach it surfaces from Initialize or whichever call comes first.
//
// The caller MUST call Close() when done.
func Open(cfg config.DatabaseConfig, opts ...Option) (*Gateway, error) {
	d, err := lookupDialect(cfg.Driver)
	if err != nil {
		return nil, err
	}

	dsn, err := d.dsn(cfg.DSN)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(d.driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", d.name, err)
	}

	g := &Gateway{
		dialect: d,
		logger:  zap.NewNop(),
	}
	g.db.Store(db)
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With(zap.String("driver", d.name))

	return g, nil
}

// Driver returns the configured driver name.
func (g *Gateway) Driver() string {
	return g.dialect.name
}

// Close releases the driver handle. For sqlite the WAL is checkpointed first.
// It may run concurrently with other calls: later calls fail with
// ErrStorageUnavailable, and in-flight ones finish or fail the same way.
func (g *Gateway) Close() error {
	db := g.db.Swap(nil)
	if db == nil {
		return nil
	}

	if g.dialect.name == config.DriverSQLite {
		if _, err := db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			g.logger.Warn("failed to checkpoint WAL", zap.Error(err))
		}
	}

	if err := db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// Initialize creates the Items table if it does not exist. It is idempotent
// and safe to call on every startup. It does not retry.
func (g *Gateway) Initialize(ctx context.Context) error {
	return g.withConn(ctx, "initialize schema", func(conn *sql.Conn) error {
		_, err := conn.ExecContext(ctx, g.dialect.createTable)
		return err
	})
}

// Ping checks that the store is reachable.
func (g *Gateway) Ping(ctx context.Context) error {
	return g.withConn(ctx, "ping", func(conn *sql.Conn) error {
		return conn.PingContext(ctx)
	})
}

// ListAll returns every record ordered by ascending id.
func (g *Gateway) ListAll(ctx context.Context) ([]Record, error) {
	records := []Record{}

	err := g.withConn(ctx, "list items", func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, g.dialect.selectAll)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var r Record
			if err := rows.Scan(&r.ID, &r.Name); err != nil {
				return fmt.Errorf("failed to scan item: %w", err)
			}
			records = append(records, r)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	return records, nil
}

// Insert adds a row and returns its store-assigned id.
func (g *Gateway) Insert(ctx context.Context, name string) (int64, error) {
	if err := validateName(name); err != nil {
		return 0, fmt.Errorf("insert item: %w", err)
	}

	var id int64
	err := g.withConn(ctx, "insert item", func(conn *sql.Conn) error {
		if g.dialect.insertReturnsID {
			return conn.QueryRowContext(ctx, g.dialect.insert, name).Scan(&id)
		}

		res, err := conn.ExecContext(ctx, g.dialect.insert, name)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, err
	}

	g.logger.Debug("inserted item", zap.Int64("id", id))
	return id, nil
}

// Update sets the name of the row with the given id. A missing id is not an
// error: the statement affects zero rows and Update returns nil.
func (g *Gateway) Update(ctx context.Context, id int64, name string) error {
	if err := validateName(name); err != nil {
		return fmt.Errorf("update item %d: %w", id, err)
	}

	return g.withConn(ctx, fmt.Sprintf("update item %d", id), func(conn *sql.Conn) error {
		res, err := conn.ExecContext(ctx, g.dialect.update, name, id)
		if err != nil {
			return err
		}
		g.logAffected("updated item", id, res)
		return nil
	})
}

// Delete removes the row with the given id. A missing id is not an error.
func (g *Gateway) Delete(ctx context.Context, id int64) error {
	return g.withConn(ctx, fmt.Sprintf("delete item %d", id), func(conn *sql.Conn) error {
		res, err := conn.ExecContext(ctx, g.dialect.delete, id)
		if err != nil {
			return err
		}
		g.logAffected("deleted item", id, res)
		return nil
	})
}

// Count returns the number of rows in Items.
func (g *Gateway) Count(ctx context.Context) (int, error) {
	var n int
	err := g.withConn(ctx, "count items", func(conn *sql.Conn) error {
		return conn.QueryRowContext(ctx, g.dialect.count).Scan(&n)
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// withConn checks out a connection for exactly one operation and classifies
// any failure.
func (g *Gateway) withConn(ctx context.Context, op string, fn func(*sql.Conn) error) error {
	db := g.db.Load()
	if db == nil {
		return fmt.Errorf("%s: %w: gateway is closed", op, ErrStorageUnavailable)
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
	}
	defer conn.Close()

	if err := fn(conn); err != nil {
		return g.classify(op, err)
	}
	return nil
}

func (g *Gateway) classify(op string, err error) error {
	if g.dialect.isConstraint(err) {
		return fmt.Errorf("%s: %w: %w", op, ErrConstraintViolation, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}

func (g *Gateway) logAffected(msg string, id int64, res sql.Result) {
	n, err := res.RowsAffected()
	if err != nil {
		return
	}
	if n == 0 {
		g.logger.Debug(msg+": no matching row", zap.Int64("id", id))
		return
	}
	g.logger.Debug(msg, zap.Int64("id", id))
}

// validateName applies the length bound before the statement is sent, so
// every engine rejects an oversized name the same way.
func validateName(name string) error {
	if n := utf8.RuneCountInString(name); n > MaxNameLength {
		return fmt.Errorf("%w: name must be %d characters or less (got %d)", ErrConstraintViolation, MaxNameLength, n)
	}
	return nil
}
