package db

import (
	"context"

	"gorm.io/gorm"
)

type txKey struct{}

// ContextWithTx attaches an open transaction to ctx so in-process handlers
// invoked from inside it write through the same connection.
func ContextWithTx(ctx context.Context, tx *gorm.DB) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey{}, tx)
}

// TxFromContext returns the transaction attached by ContextWithTx, or nil.
func TxFromContext(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return nil
	}
	tx, _ := ctx.Value(txKey{}).(*gorm.DB)
	return tx
}
