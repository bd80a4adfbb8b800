package dbctx

import (
	"context"

	"gorm.io/gorm"
)

// Context bündelt den Request-Context mit einer optionalen GORM-Transaktion.
type Context struct {
	Ctx context.Context
	Tx  *gorm.DB
}

// DB liefert die Transaktion, falls gesetzt, sonst fallback. Immer an Ctx gebunden.
func (c Context) DB(fallback *gorm.DB) *gorm.DB {
	tx := c.Tx
	if tx == nil {
		tx = fallback
	}
	ctx := c.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	return tx.WithContext(ctx)
}
