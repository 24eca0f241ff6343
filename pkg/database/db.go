package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"spots-pipeline/internal/constants"
	"spots-pipeline/pkg/config"
	errs "spots-pipeline/pkg/errors"

	_ "github.com/go-sql-driver/mysql"
)

// DB wraps the relational store. A single process-wide handle is reused;
// all mutations go through short transactions, and audited mutations commit
// their audit row in the same transaction.
type DB struct {
	conn         *sql.DB
	dsn          string
	stmts        map[string]*sql.Stmt
	readTimeout  time.Duration
	writeTimeout time.Duration
}

func New(databaseURL string) (*DB, error) {
	return open(databaseURL, 10, 5, 10*time.Minute, 5*time.Minute,
		constants.DBReadTimeoutDefault, constants.DBWriteTimeoutDefault)
}

// NewWithConfig creates a database connection with custom pool settings.
func NewWithConfig(databaseURL string, cfg *config.Config) (*DB, error) {
	rt := cfg.DBReadTimeout
	if rt == 0 {
		rt = constants.DBReadTimeoutDefault
	}
	wt := cfg.DBWriteTimeout
	if wt == 0 {
		wt = constants.DBWriteTimeoutDefault
	}
	return open(databaseURL, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns,
		time.Duration(cfg.DBConnMaxLifetime)*time.Minute,
		time.Duration(cfg.DBConnMaxIdleTime)*time.Minute, rt, wt)
}

func open(databaseURL string, maxOpen, maxIdle int, maxLife, maxIdleTime, rt, wt time.Duration) (*DB, error) {
	if databaseURL == "" {
		return nil, errs.NewConfig("database.open", "DATABASE_URL is required", nil)
	}
	conn, err := sql.Open("mysql", databaseURL)
	if err != nil {
		return nil, errs.NewDB("database.open", "open failed", err)
	}
	conn.SetMaxOpenConns(maxOpen)
	conn.SetMaxIdleConns(maxIdle)
	conn.SetConnMaxLifetime(maxLife)
	conn.SetConnMaxIdleTime(maxIdleTime)

	if err := conn.Ping(); err != nil {
		return nil, errs.NewDB("database.open", "ping failed", err)
	}

	db := &DB{
		conn:         conn,
		dsn:          databaseURL,
		stmts:        make(map[string]*sql.Stmt),
		readTimeout:  rt,
		writeTimeout: wt,
	}
	if err := db.EnsureSchema(context.Background()); err != nil {
		return nil, err
	}
	if err := db.prepareStatements(); err != nil {
		return nil, errs.NewDB("database.open", "failed to prepare statements", err)
	}
	return db, nil
}

// prepareStatements prepares the hot-path statements.
func (db *DB) prepareStatements() error {
	statements := map[string]string{
		"getGoldHash":  `SELECT source_hash FROM gold_meta WHERE venue_id = ?`,
		"isExcluded":   `SELECT COUNT(*) FROM watchlist WHERE venue_id = ? AND status = 'excluded'`,
		"getSpotByKey": selectSpotCols + ` FROM spots WHERE venue_id = ? AND type = ?`,
		"insertAudit":  `INSERT INTO audit_log (table_name, row_key, action, actor, diff, at) VALUES (?, ?, ?, ?, ?, ?)`,
	}
	for name, query := range statements {
		stmt, err := db.conn.Prepare(query)
		if err != nil {
			return fmt.Errorf("prepare %s: %w", name, err)
		}
		db.stmts[name] = stmt
	}
	return nil
}

// Close closes the connection and prepared statements.
func (db *DB) Close() error {
	for _, stmt := range db.stmts {
		stmt.Close()
	}
	return db.conn.Close()
}

// Conn exposes the raw handle for health checks.
func (db *DB) Conn() *sql.DB { return db.conn }

func (db *DB) withReadTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, db.readTimeout)
}

func (db *DB) withWriteTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, db.writeTimeout)
}

// WithTx runs fn inside a transaction, rolling back on error or panic.
func (db *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	ctx, cancel := db.withWriteTimeout(ctx)
	defer cancel()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return errs.NewDB("database.WithTx", "begin failed", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return errs.NewDB("database.WithTx", "commit failed", err)
	}
	return nil
}

// Flag helpers over the config table. The bulk-complete sentinel is mirrored
// here so the one-way transition survives a wiped data directory.

func (db *DB) GetFlag(ctx context.Context, name string) (string, error) {
	ctx, cancel := db.withReadTimeout(ctx)
	defer cancel()

	var v string
	err := db.conn.QueryRowContext(ctx, `SELECT value FROM config WHERE name = ?`, name).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", errs.NewDB("database.GetFlag", name, err)
	}
	return v, nil
}

func (db *DB) SetFlag(ctx context.Context, name, value string) error {
	ctx, cancel := db.withWriteTimeout(ctx)
	defer cancel()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO config (name, value) VALUES (?, ?) ON DUPLICATE KEY UPDATE value = VALUES(value)`,
		name, value)
	if err != nil {
		return errs.NewDB("database.SetFlag", name, err)
	}
	return nil
}
