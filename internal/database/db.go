package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/pressly/goose/v3"

	"skylog/internal/metrics"
)

//go:embed migrations/*.sql
var migrations embed.FS

var (
	ErrLocationNotFound  = errors.New("location not found")
	ErrDuplicateLocation = errors.New("duplicate location")
)

// mysqlDuplicateEntry is the server error number for a unique key violation.
const mysqlDuplicateEntry = 1062

// DB is the MySQL-backed store. Every method issues a single statement;
// nothing spans a transaction.
type DB struct {
	conn *sql.DB
}

// NewDB opens the pool, verifies it and applies pending migrations.
// dsn format: "username:password@tcp(host:port)/dbname?parseTime=true"
func NewDB(dsn string) (*DB, error) {
	conn, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(5)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	if err := migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &DB{conn: conn}, nil
}

// New wraps an already-open connection pool without running migrations.
func New(conn *sql.DB) *DB {
	return &DB{conn: conn}
}

func migrate(conn *sql.DB) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("mysql"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}
	if err := goose.Up(conn, "migrations"); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// Ping checks the connection.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) exec(ctx context.Context, queryType, table, query string, args ...any) (sql.Result, error) {
	defer db.recordPoolStats()

	queryStart := time.Now()
	res, err := db.conn.ExecContext(ctx, query, args...)
	metrics.RecordDBQuery(queryType, table, time.Since(queryStart), err)
	return res, err
}

func (db *DB) query(ctx context.Context, table, query string, args ...any) (*sql.Rows, error) {
	defer db.recordPoolStats()

	queryStart := time.Now()
	rows, err := db.conn.QueryContext(ctx, query, args...)
	metrics.RecordDBQuery("SELECT", table, time.Since(queryStart), err)
	return rows, err
}

func (db *DB) queryRow(ctx context.Context, table, query string, args ...any) *sql.Row {
	defer db.recordPoolStats()

	queryStart := time.Now()
	row := db.conn.QueryRowContext(ctx, query, args...)
	metrics.RecordDBQuery("SELECT", table, time.Since(queryStart), row.Err())
	return row
}

func (db *DB) recordPoolStats() {
	stats := db.conn.Stats()
	metrics.UpdateDBConnectionStats(stats.OpenConnections, stats.InUse, stats.Idle)
}

func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}

// dateArg renders a calendar date for DATE columns.
func dateArg(t time.Time) string {
	return t.Format(time.DateOnly)
}
