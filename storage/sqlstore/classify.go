package sqlstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/jackc/pgerrcode"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/goliatone/go-vocabulary-store/retry"
	"github.com/goliatone/go-vocabulary-store/vocab"
)

// classify turns a driver or repository error into the shape vocab expects:
// ErrNotFound for missing rows, a transient mark for failures a retry can
// fix, and a plain error otherwise. Repository errors are flattened so their
// own codes do not leak into the service taxonomy.
func classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case isNotFound(err):
		return vocab.ErrNotFound
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("sqlstore %s: %w", op, context.Canceled)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("sqlstore %s: %w", op, context.DeadlineExceeded)
	case isTransient(err):
		return retry.MarkTransient(fmt.Errorf("sqlstore %s: %v", op, err))
	default:
		return fmt.Errorf("sqlstore %s: %v", op, err)
	}
}

func isNotFound(err error) bool {
	if errors.Is(err, sql.ErrNoRows) || repository.IsRecordNotFound(err) {
		return true
	}
	var gerr *goerrors.Error
	return errors.As(err, &gerr) && gerr.Category == goerrors.CategoryNotFound
}

// isTransient recognises postgres connection, rollback, resource and
// operator-intervention classes, and sqlite busy or locked databases.
func isTransient(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		code := string(pqErr.Code)
		return pgerrcode.IsConnectionException(code) ||
			pgerrcode.IsTransactionRollback(code) ||
			pgerrcode.IsInsufficientResources(code) ||
			pgerrcode.IsOperatorIntervention(code)
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code == sqlite3.ErrBusy || liteErr.Code == sqlite3.ErrLocked
	}

	return retry.IsTransient(err)
}
