package database

import (
	"context"
	"database/sql/driver"
	"math/rand"
	"strings"
	"time"
)

var busyMarkers = []string{
	"database is locked",
	"database table is locked",
	"SQLITE_BUSY",
	"SQLITE_LOCKED",
	"(5)",
	"(6)",
}

// isBusyError reports whether err is SQLite refusing work because another
// connection holds the lock. Both mattn and modernc drivers are matched on the
// message since they don't share an error type.
func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, marker := range busyMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// busyRetrier retries operations that fail with a busy error, backing off
// exponentially with jitter.
type busyRetrier struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

func newBusyRetrier(maxRetries int) busyRetrier {
	return busyRetrier{
		maxRetries: maxRetries,
		baseDelay:  50 * time.Millisecond,
		maxDelay:   2 * time.Second,
	}
}

func (r busyRetrier) delay(attempt int) time.Duration {
	d := r.baseDelay * time.Duration(1<<attempt)
	if d > r.maxDelay || d <= 0 {
		d = r.maxDelay
	}
	if quarter := int64(d / 4); quarter > 0 {
		d += time.Duration(rand.Int63n(quarter)) //nolint:gosec
	}
	if d > r.maxDelay {
		d = r.maxDelay
	}
	return d
}

func (r busyRetrier) do(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil || !isBusyError(err) || attempt >= r.maxRetries {
			return err
		}

		timer := time.NewTimer(r.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// retryConnector hands out connections whose statements go through the
// retrier.
type retryConnector struct {
	driver.Connector
	retrier busyRetrier
}

func (rc *retryConnector) Connect(ctx context.Context) (driver.Conn, error) {
	conn, err := rc.Connector.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return &retryConn{Conn: conn, retrier: rc.retrier}, nil
}

type retryConn struct {
	driver.Conn
	retrier busyRetrier
}

var (
	_ driver.ConnBeginTx        = (*retryConn)(nil)
	_ driver.ConnPrepareContext = (*retryConn)(nil)
	_ driver.ExecerContext      = (*retryConn)(nil)
	_ driver.QueryerContext     = (*retryConn)(nil)
	_ driver.Pinger             = (*retryConn)(nil)
	_ driver.SessionResetter    = (*retryConn)(nil)
	_ driver.Validator          = (*retryConn)(nil)
)

func (c *retryConn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	var tx driver.Tx
	err := c.retrier.do(ctx, func() error {
		var err error
		if b, ok := c.Conn.(driver.ConnBeginTx); ok {
			tx, err = b.BeginTx(ctx, opts)
		} else {
			tx, err = c.Conn.Begin() //nolint:staticcheck
		}
		return err
	})
	return tx, err
}

func (c *retryConn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	var (
		stmt driver.Stmt
		err  error
	)
	if p, ok := c.Conn.(driver.ConnPrepareContext); ok {
		stmt, err = p.PrepareContext(ctx, query)
	} else {
		stmt, err = c.Conn.Prepare(query)
	}
	if err != nil {
		return nil, err
	}
	return &retryStmt{Stmt: stmt, retrier: c.retrier}, nil
}

func (c *retryConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	execer, ok := c.Conn.(driver.ExecerContext)
	if !ok {
		return nil, driver.ErrSkip
	}
	var result driver.Result
	err := c.retrier.do(ctx, func() error {
		var err error
		result, err = execer.ExecContext(ctx, query, args)
		return err
	})
	return result, err
}

func (c *retryConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	queryer, ok := c.Conn.(driver.QueryerContext)
	if !ok {
		return nil, driver.ErrSkip
	}
	var rows driver.Rows
	err := c.retrier.do(ctx, func() error {
		var err error
		rows, err = queryer.QueryContext(ctx, query, args)
		return err
	})
	return rows, err
}

func (c *retryConn) Ping(ctx context.Context) error {
	if pinger, ok := c.Conn.(driver.Pinger); ok {
		return pinger.Ping(ctx)
	}
	return nil
}

func (c *retryConn) ResetSession(ctx context.Context) error {
	if resetter, ok := c.Conn.(driver.SessionResetter); ok {
		return resetter.ResetSession(ctx)
	}
	return nil
}

func (c *retryConn) IsValid() bool {
	if validator, ok := c.Conn.(driver.Validator); ok {
		return validator.IsValid()
	}
	return true
}

// retryStmt retries prepared statement execution. Only the context variants
// are wrapped; database/sql always prefers them when present.
type retryStmt struct {
	driver.Stmt
	retrier busyRetrier
}

func (s *retryStmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	var result driver.Result
	err := s.retrier.do(ctx, func() error {
		var err error
		if e, ok := s.Stmt.(driver.StmtExecContext); ok {
			result, err = e.ExecContext(ctx, args)
		} else {
			result, err = s.Stmt.Exec(namedToValues(args)) //nolint:staticcheck
		}
		return err
	})
	return result, err
}

func (s *retryStmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	var rows driver.Rows
	err := s.retrier.do(ctx, func() error {
		var err error
		if q, ok := s.Stmt.(driver.StmtQueryContext); ok {
			rows, err = q.QueryContext(ctx, args)
		} else {
			rows, err = s.Stmt.Query(namedToValues(args)) //nolint:staticcheck
		}
		return err
	})
	return rows, err
}

func namedToValues(args []driver.NamedValue) []driver.Value {
	values := make([]driver.Value, len(args))
	for i, arg := range args {
		values[i] = arg.Value
	}
	return values
}
