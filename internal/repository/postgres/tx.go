package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ctxKey int

const txKey ctxKey = iota

// DBTX is the query interface shared by *pgxpool.Pool and pgx.Tx, so a
// repository method runs against whichever the context carries.
type DBTX interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// txBeginner is the slice of *pgxpool.Pool the manager needs.
type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// TxManager groups multi-statement repository writes into one transaction,
// propagated through the context so nested calls join it via ConnFromCtx.
type TxManager struct {
	db txBeginner
}

// NewTxManager creates a TxManager over a pool.
func NewTxManager(db txBeginner) *TxManager {
	return &TxManager{db: db}
}

// WithTransaction runs fn inside a transaction: committed when fn returns
// nil, rolled back otherwise.
func (m *TxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := m.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(context.WithValue(ctx, txKey, tx)); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("rollback failed (%v) after error: %w", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ConnFromCtx returns the transaction carried by the context, or the pool
// when no transaction is open.
func ConnFromCtx(ctx context.Context, pool *pgxpool.Pool) DBTX {
	if tx, ok := ctx.Value(txKey).(pgx.Tx); ok {
		return tx
	}
	return pool
}
