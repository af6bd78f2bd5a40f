package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/aarondl/sqlboiler/v4/boil"
)

// TxFunc 事务体; 返回错误时回滚
type TxFunc func(ctx context.Context, tx boil.ContextExecutor) error

// WithTx 在单个事务中执行 fn, 遇到 SQLite 瞬时锁冲突时整体重试
func WithTx(ctx context.Context, db boil.ContextBeginner, fn TxFunc) error {
	return retryOp(ctx, defaultRetryConfig, func() error {
		return runTx(ctx, db, fn)
	})
}

func runTx(ctx context.Context, db boil.ContextBeginner, fn TxFunc) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启事务失败: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				err = errors.Join(err, fmt.Errorf("回滚事务失败: %w", rbErr))
			}
		}
	}()

	if err = fn(ctx, tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("提交事务失败: %w", err)
	}
	return nil
}
