package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	// Register the MySQL driver with database/sql
	_ "github.com/go-sql-driver/mysql"

	"github.com/systmms/dsload/internal/dataset"
	dserrors "github.com/systmms/dsload/internal/errors"
	"github.com/systmms/dsload/internal/logging"
)

// dialect covers the SQL differences between drivers
type dialect struct {
	name     string
	textType string
}

var dialects = map[string]dialect{
	DriverPostgres: {name: DriverPostgres, textType: "VARCHAR"},
	DriverMySQL:    {name: DriverMySQL, textType: "TEXT"},
}

func (d dialect) quoteIdent(name string) string {
	if d.name == DriverMySQL {
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	}
	return pq.QuoteIdentifier(name)
}

func (d dialect) qualified(schema, table string) string {
	if schema == "" {
		return d.quoteIdent(table)
	}
	return d.quoteIdent(schema) + "." + d.quoteIdent(table)
}

func (d dialect) placeholder(i int) string {
	if d.name == DriverMySQL {
		return "?"
	}
	return fmt.Sprintf("$%d", i)
}

func (d dialect) setRole(role string) string {
	if d.name == DriverMySQL {
		return "SET ROLE '" + strings.ReplaceAll(role, "'", "''") + "'"
	}
	return "SET ROLE " + pq.QuoteIdentifier(role)
}

// Loader appends datasets to warehouse tables
type Loader struct {
	db      *sql.DB
	dialect dialect
	timeout time.Duration
	logger  *logging.Logger
}

// Options configures Open
type Options struct {
	// Timeout bounds the connect and each statement, not a whole load
	Timeout time.Duration
	Logger  *logging.Logger
}

// Open connects to the warehouse described by c and verifies the connection.
// The pool is limited to one connection so session settings such as the
// role apply to every statement.
func Open(ctx context.Context, c *Connector, opts Options) (*Loader, error) {
	dsn, err := c.DSN(opts.Timeout)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(c.driver(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open warehouse connection: %w", err)
	}
	db.SetMaxOpenConns(1)

	l := NewLoader(db, c.driver(), opts.Timeout, opts.Logger)

	pingCtx, cancel := l.withTimeout(ctx)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, dserrors.BackendError("warehouse", "connect", err)
	}

	if c.Role != "" {
		if err := l.exec(ctx, l.dialect.setRole(c.Role)); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set role %s: %w", c.Role, err)
		}
	}

	l.logger.Debug("Connected to warehouse %s", c)
	return l, nil
}

// NewLoader wraps an open database handle
func NewLoader(db *sql.DB, driver string, timeout time.Duration, logger *logging.Logger) *Loader {
	d, ok := dialects[driver]
	if !ok {
		d = dialects[DriverPostgres]
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Loader{db: db, dialect: d, timeout: timeout, logger: logger}
}

// Close closes the connection pool
func (l *Loader) Close() error {
	return l.db.Close()
}

// EnsureTable creates schema.table with one text column per name unless it
// already exists
func (l *Loader) EnsureTable(ctx context.Context, schema, table string, columns []string) error {
	if table == "" {
		return fmt.Errorf("table name is required")
	}
	if len(columns) == 0 {
		return fmt.Errorf("cannot create table %s without columns", table)
	}

	defs := make([]string, len(columns))
	for i, col := range columns {
		defs[i] = l.dialect.quoteIdent(col) + " " + l.dialect.textType
	}
	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", l.dialect.qualified(schema, table), strings.Join(defs, ", "))

	if err := l.exec(ctx, stmt); err != nil {
		return dserrors.BackendError("warehouse", "create table", err)
	}
	return nil
}

// Append inserts every row of ds in a single transaction and returns the
// number of rows written. Values are sent as text; missing values as NULL.
func (l *Loader) Append(ctx context.Context, ds *dataset.Dataset, schema, table string) (int64, error) {
	rows := ds.Rows()
	if rows == 0 || len(ds.Columns) == 0 {
		return 0, nil
	}

	cols := make([]string, len(ds.Columns))
	marks := make([]string, len(ds.Columns))
	for i, col := range ds.Columns {
		cols[i] = l.dialect.quoteIdent(col.Name)
		marks[i] = l.dialect.placeholder(i + 1)
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		l.dialect.qualified(schema, table), strings.Join(cols, ", "), strings.Join(marks, ", "))

	// The transaction is bound to the caller's context; the timeout applies
	// to each statement so a large load is not capped as a whole.
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, dserrors.BackendError("warehouse", "begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	prepareCtx, cancel := l.withTimeout(ctx)
	prepared, err := tx.PrepareContext(prepareCtx, stmt)
	cancel()
	if err != nil {
		return 0, dserrors.BackendError("warehouse", "prepare insert", err)
	}
	defer func() { _ = prepared.Close() }()

	args := make([]any, len(ds.Columns))
	for r := 0; r < rows; r++ {
		for c, col := range ds.Columns {
			if s, ok := dataset.Text(col.Values[r]); ok {
				args[c] = s
			} else {
				args[c] = nil
			}
		}
		if err := l.insertRow(ctx, prepared, args); err != nil {
			return 0, dserrors.BackendError("warehouse", fmt.Sprintf("insert row %d", r+1), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, dserrors.BackendError("warehouse", "commit", err)
	}

	l.logger.Debug("Appended %d rows to %s", rows, l.dialect.qualified(schema, table))
	return int64(rows), nil
}

func (l *Loader) insertRow(ctx context.Context, prepared *sql.Stmt, args []any) error {
	ctx, cancel := l.withTimeout(ctx)
	defer cancel()
	_, err := prepared.ExecContext(ctx, args...)
	return err
}

func (l *Loader) exec(ctx context.Context, stmt string) error {
	ctx, cancel := l.withTimeout(ctx)
	defer cancel()
	_, err := l.db.ExecContext(ctx, stmt)
	return err
}

func (l *Loader) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if l.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, l.timeout)
}
