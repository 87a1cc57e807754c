package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/ncruces/go-sqlite3"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/microsoft/go-mssqldb"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/duoapp/duo/internal/config"
)

// dialect holds the statements for one database engine. Statements take
// their arguments in a fixed order: insert(name), update(name, id),
// delete(id).
type dialect struct {
	name       string
	driverName string

	createTable string
	selectAll   string
	insert      string
	update      string
	delete      string
	count       string

	// insertReturnsID is true when insert yields the new id as a row;
	// otherwise Result.LastInsertId is used.
	insertReturnsID bool

	// dsn rewrites the configured DSN before sql.Open.
	dsn func(string) (string, error)

	// isConstraint reports whether a driver error is a data rejection.
	isConstraint func(error) bool
}

var dialects = map[string]*dialect{
	config.DriverSQLite: {
		name:       config.DriverSQLite,
		driverName: "sqlite3",
		createTable: `
		CREATE TABLE IF NOT EXISTS Items (
			Id INTEGER PRIMARY KEY AUTOINCREMENT,
			Name TEXT NOT NULL CHECK (length(Name) <= 255)
		)`,
		selectAll:       `SELECT Id, Name FROM Items ORDER BY Id`,
		insert:          `INSERT INTO Items (Name) VALUES (?) RETURNING Id`,
		update:          `UPDATE Items SET Name = ? WHERE Id = ?`,
		delete:          `DELETE FROM Items WHERE Id = ?`,
		count:           `SELECT COUNT(*) FROM Items`,
		insertReturnsID: true,
		dsn:             sqliteDSN,
		isConstraint:    sqliteConstraint,
	},
	config.DriverSQLServer: {
		name:       config.DriverSQLServer,
		driverName: "sqlserver",
		createTable: `
		IF NOT EXISTS (SELECT * FROM sys.tables WHERE name = 'Items')
		BEGIN
			CREATE TABLE Items (
				Id INT IDENTITY(1,1) PRIMARY KEY,
				Name NVARCHAR(255) NOT NULL
			)
		END`,
		selectAll:       `SELECT Id, Name FROM Items ORDER BY Id`,
		insert:          `INSERT INTO Items (Name) OUTPUT INSERTED.Id VALUES (@p1)`,
		update:          `UPDATE Items SET Name = @p1 WHERE Id = @p2`,
		delete:          `DELETE FROM Items WHERE Id = @p1`,
		count:           `SELECT COUNT(*) FROM Items`,
		insertReturnsID: true,
		dsn:             passthroughDSN,
		isConstraint:    sqlServerConstraint,
	},
	config.DriverPostgres: {
		name:       config.DriverPostgres,
		driverName: "pgx",
		createTable: `
		CREATE TABLE IF NOT EXISTS items (
			id SERIAL PRIMARY KEY,
			name VARCHAR(255) NOT NULL
		)`,
		selectAll:       `SELECT id, name FROM items ORDER BY id`,
		insert:          `INSERT INTO items (name) VALUES ($1) RETURNING id`,
		update:          `UPDATE items SET name = $1 WHERE id = $2`,
		delete:          `DELETE FROM items WHERE id = $1`,
		count:           `SELECT COUNT(*) FROM items`,
		insertReturnsID: true,
		dsn:             passthroughDSN,
		isConstraint:    postgresConstraint,
	},
	config.DriverMySQL: {
		name:       config.DriverMySQL,
		driverName: "mysql",
		createTable: `
		CREATE TABLE IF NOT EXISTS Items (
			Id INT AUTO_INCREMENT PRIMARY KEY,
			Name VARCHAR(255) NOT NULL
		)`,
		selectAll:    `SELECT Id, Name FROM Items ORDER BY Id`,
		insert:       `INSERT INTO Items (Name) VALUES (?)`,
		update:       `UPDATE Items SET Name = ? WHERE Id = ?`,
		delete:       `DELETE FROM Items WHERE Id = ?`,
		count:        `SELECT COUNT(*) FROM Items`,
		dsn:          passthroughDSN,
		isConstraint: mysqlConstraint,
	},
}

func lookupDialect(driver string) (*dialect, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	return d, nil
}

func passthroughDSN(dsn string) (string, error) {
	return dsn, nil
}

// sqliteDSN turns a file path into a driver DSN with WAL and a busy timeout.
// Every operation opens its own connection, so the pragmas go in the DSN
// rather than being executed once.
func sqliteDSN(path string) (string, error) {
	if strings.HasPrefix(path, "file:") {
		return path, nil
	}
	if path == ":memory:" {
		return "", fmt.Errorf("sqlite store needs a file path: in-memory databases are per-connection")
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	return fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(wal)", path), nil
}

func sqliteConstraint(err error) bool {
	var serr *sqlite3.Error
	return errors.As(err, &serr) && serr.Code() == sqlite3.CONSTRAINT
}

// sqlServerConstraint matches go-mssqldb errors by number:
// 515 NULL into NOT NULL, 547 CHECK/FK, 2627 unique key,
// 2628 and 8152 string truncation.
func sqlServerConstraint(err error) bool {
	var numbered interface{ SQLErrorNumber() int32 }
	if !errors.As(err, &numbered) {
		return false
	}
	switch numbered.SQLErrorNumber() {
	case 515, 547, 2627, 2628, 8152:
		return true
	}
	return false
}

// postgresConstraint matches SQLSTATE class 23 (integrity constraint
// violation) and 22001 (string data right truncation).
func postgresConstraint(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return strings.HasPrefix(pgErr.Code, "23") || pgErr.Code == "22001"
}

// mysqlConstraint matches 1048 column cannot be null, 1062 duplicate entry,
// 1406 data too long. 1406 is only raised in strict SQL mode.
func mysqlConstraint(err error) bool {
	var myErr *mysql.MySQLError
	if !errors.As(err, &myErr) {
		return false
	}
	switch myErr.Number {
	case 1048, 1062, 1406:
		return true
	}
	return false
}
