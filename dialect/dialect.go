// Package dialect defines the database abstraction the session and
// command builder operate against: the Driver and Tx interfaces, the
// supported dialect names, and the vendor error-classifier registry.
//
// Opening a connection:
//
//	import (
//	    "github.com/strataorm/strata/dialect"
//	    "github.com/strataorm/strata/dialect/sql"
//	)
//
//	drv, err := sql.Open(dialect.Postgres, "postgres://...")
package dialect

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Dialect names, must match the database/sql driver names in use.
const (
	MySQL    = "mysql"
	Postgres = "postgres"
	SQLite   = "sqlite"
)

// ExecQuerier wraps the Exec and Query operations.
type ExecQuerier interface {
	// Exec executes a statement that does not return rows. The v
	// argument may be nil or a *sql.Result to capture the outcome.
	Exec(ctx context.Context, query string, args, v any) error
	// Query executes a statement that returns rows, scanned into v.
	Query(ctx context.Context, query string, args, v any) error
}

// Driver is the minimal interface a database backend implements.
type Driver interface {
	ExecQuerier
	// Tx starts and returns a new transaction.
	Tx(ctx context.Context) (Tx, error)
	// Close closes the underlying connection.
	Close() error
	// Dialect returns the dialect name of the driver.
	Dialect() string
}

// Tx is a transaction scope returned by Driver.Tx.
type Tx interface {
	ExecQuerier
	Commit() error
	Rollback() error
}

// Classifier turns a raw vendor error into a structured conflict from
// the strata taxonomy. Classify returns the input unchanged when the
// error matches none of the known shapes.
type Classifier interface {
	Classify(err error) error
}

// ClassifierFunc adapts a function to the Classifier interface.
type ClassifierFunc func(err error) error

// Classify implements the Classifier interface.
func (f ClassifierFunc) Classify(err error) error { return f(err) }

var (
	classifiersMu sync.RWMutex
	classifiers   = make(map[string]Classifier)
)

// RegisterClassifier registers the conflict classifier for a dialect.
// Vendor packages call it from init, mirroring database/sql driver
// registration.
func RegisterClassifier(dialect string, c Classifier) {
	classifiersMu.Lock()
	defer classifiersMu.Unlock()
	classifiers[dialect] = c
}

// ClassifierFor returns the registered classifier for the dialect. The
// fallback classifier returns errors unchanged.
func ClassifierFor(dialect string) Classifier {
	classifiersMu.RLock()
	defer classifiersMu.RUnlock()
	if c, ok := classifiers[dialect]; ok {
		return c
	}
	return ClassifierFunc(func(err error) error { return err })
}

// DebugDriver wraps a Driver and logs every statement with slog.
type DebugDriver struct {
	Driver
	log *slog.Logger
}

// Debug wraps the driver with statement logging. A nil logger uses
// slog.Default.
func Debug(d Driver, log *slog.Logger) Driver {
	if log == nil {
		log = slog.Default()
	}
	return &DebugDriver{Driver: d, log: log}
}

// Exec logs the statement and delegates to the underlying driver.
func (d *DebugDriver) Exec(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := d.Driver.Exec(ctx, query, args, v)
	d.log.LogAttrs(ctx, slog.LevelDebug, "exec",
		slog.String("query", query),
		slog.Any("args", args),
		slog.Duration("took", time.Since(start)),
		slog.Any("err", err),
	)
	return err
}

// Query logs the statement and delegates to the underlying driver.
func (d *DebugDriver) Query(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := d.Driver.Query(ctx, query, args, v)
	d.log.LogAttrs(ctx, slog.LevelDebug, "query",
		slog.String("query", query),
		slog.Any("args", args),
		slog.Duration("took", time.Since(start)),
		slog.Any("err", err),
	)
	return err
}

// Tx starts a transaction on the underlying driver, wrapping it with
// the same logger.
func (d *DebugDriver) Tx(ctx context.Context) (Tx, error) {
	tx, err := d.Driver.Tx(ctx)
	if err != nil {
		return nil, err
	}
	return &debugTx{Tx: tx, log: d.log}, nil
}

type debugTx struct {
	Tx
	log *slog.Logger
}

func (t *debugTx) Exec(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := t.Tx.Exec(ctx, query, args, v)
	t.log.LogAttrs(ctx, slog.LevelDebug, "tx.exec",
		slog.String("query", query),
		slog.Any("args", args),
		slog.Duration("took", time.Since(start)),
		slog.Any("err", err),
	)
	return err
}

func (t *debugTx) Query(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := t.Tx.Query(ctx, query, args, v)
	t.log.LogAttrs(ctx, slog.LevelDebug, "tx.query",
		slog.String("query", query),
		slog.Any("args", args),
		slog.Duration("took", time.Since(start)),
		slog.Any("err", err),
	)
	return err
}
