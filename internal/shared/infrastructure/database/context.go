package database

import "context"

type txKey struct{}

// WithTx stores a transaction in the context so repositories called within
// a unit of work join the same transaction.
func WithTx(ctx context.Context, tx Transaction) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// TxFromContext extracts the transaction from the context.
// Returns nil if no transaction is present.
func TxFromContext(ctx context.Context) Transaction {
	tx, ok := ctx.Value(txKey{}).(Transaction)
	if !ok {
		return nil
	}
	return tx
}

// ExecutorFromContext returns the transaction if present, otherwise the
// connection. This allows repositories to transparently work within or
// outside transactions.
func ExecutorFromContext(ctx context.Context, conn Connection) Executor {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}
	return conn
}

// InTx runs fn inside a transaction stored in the context. The transaction
// commits when fn returns nil and rolls back otherwise.
func InTx(ctx context.Context, conn Connection, fn func(ctx context.Context) error) error {
	if TxFromContext(ctx) != nil {
		return fn(ctx)
	}

	tx, err := conn.BeginTx(ctx)
	if err != nil {
		return err
	}

	if err := fn(WithTx(ctx, tx)); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}
