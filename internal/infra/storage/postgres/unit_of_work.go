package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// UnitOfWork runs several statements in one transaction, ensuring atomicity
// (all succeed or all fail).
type UnitOfWork struct {
	tx *sqlx.Tx
}

// NewUnitOfWork creates a new unit of work with an active transaction.
func (db *DB) NewUnitOfWork(ctx context.Context) (*UnitOfWork, error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &UnitOfWork{tx: tx}, nil
}

// Exec runs a statement written with ? placeholders. Slice arguments are expanded
// for IN clauses.
func (u *UnitOfWork) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	if u.tx == nil {
		return 0, fmt.Errorf("transaction already completed")
	}

	expanded, expandedArgs, err := sqlx.In(query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to expand query: %w", err)
	}

	res, err := u.tx.ExecContext(ctx, u.tx.Rebind(expanded), expandedArgs...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Commit commits the transaction.
func (u *UnitOfWork) Commit() error {
	if u.tx == nil {
		return fmt.Errorf("transaction already completed")
	}
	err := u.tx.Commit()
	u.tx = nil
	return err
}

// Rollback rolls back the transaction. Safe to call multiple times.
func (u *UnitOfWork) Rollback() error {
	if u.tx == nil {
		return nil // Already committed or rolled back
	}
	err := u.tx.Rollback()
	u.tx = nil
	return err
}

// WithUnitOfWork runs fn in a transaction and commits when fn succeeds.
func (db *DB) WithUnitOfWork(ctx context.Context, fn func(*UnitOfWork) error) error {
	uow, err := db.NewUnitOfWork(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = uow.Rollback()
	}()

	if err := fn(uow); err != nil {
		return err
	}
	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
