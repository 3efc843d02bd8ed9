package services

import (
	"context"
	"fmt"

	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/repositories"
)

// WithTransaction executes fn within a database transaction, joining one
// already carried by ctx. A transaction it began is committed on success
// and rolled back on error or panic. fn receives the transaction's context.
func WithTransaction(ctx context.Context, txMgr repositories.TransactionManager, fn func(ctx context.Context, tx repositories.Transaction) error) error {
	_, err := WithTransactionResult(ctx, txMgr, func(ctx context.Context, tx repositories.Transaction) (struct{}, error) {
		return struct{}{}, fn(ctx, tx)
	})
	return err
}

// WithTransactionResult is WithTransaction for functions returning a value
func WithTransactionResult[T any](ctx context.Context, txMgr repositories.TransactionManager, fn func(ctx context.Context, tx repositories.Transaction) (T, error)) (T, error) {
	if tx, ok := repositories.TxFromContext(ctx); ok {
		return fn(ctx, tx)
	}

	var result T

	tx, err := txMgr.Begin(ctx)
	if err != nil {
		return result, WrapInternal("failed to begin transaction", err)
	}

	// Use defer to ensure rollback on panic
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p) // Re-panic after rollback
		}
	}()

	result, err = fn(tx.Context(), tx)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return result, fmt.Errorf("transaction error: %w, rollback error: %v", err, rbErr)
		}
		return result, err
	}

	if err := tx.Commit(); err != nil {
		return result, WrapInternal("failed to commit transaction", err)
	}

	return result, nil
}
