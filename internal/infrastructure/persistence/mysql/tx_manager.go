package mysql

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"time"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"

	apperrors "github.com/xiebiao/elibrary/pkg/errors"
	"github.com/xiebiao/elibrary/pkg/metrics"
)

// TxManager 事务管理器
// 设计说明:
// 1. 封装GORM的Transaction方法
// 2. 通过context传递事务DB(避免全局变量)
// 3. 支持嵌套事务(GORM自动使用Savepoint)
// 4. TransactionWithRetry在死锁/锁等待超时时自动重试,对调用方透明:
//    中间失败的尝试不产生任何可见副作用(事务已回滚),
//    重试耗尽后统一降级为ErrTransientConflict
type TxManager struct {
	db         *gorm.DB
	maxRetries int
}

// NewTxManager 创建事务管理器
// maxRetries为并发冲突最大重试次数(策略配置,默认3)
func NewTxManager(db *gorm.DB, maxRetries int) *TxManager {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &TxManager{db: db, maxRetries: maxRetries}
}

// Transaction 执行事务
// 设计说明:
// 1. fn函数内的所有Repository操作都会在同一事务中执行
// 2. fn返回error时自动ROLLBACK,返回nil时自动COMMIT
// 3. 通过context.WithValue传递事务DB
//
// 使用示例:
//
//	err := txManager.Transaction(ctx, func(ctx context.Context) error {
//	    item, err := bookRepo.LockItemByID(ctx, itemID)
//	    if err != nil {
//	        return err
//	    }
//	    if err := loanRepo.Create(ctx, loan); err != nil {
//	        return err // 自动回滚
//	    }
//	    return bookRepo.AdjustAvailableCopies(ctx, item.BookID, -1)
//	})
func (m *TxManager) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 将事务DB注入到Context中
		// Repository的getDB方法会从context提取事务DB
		txCtx := context.WithValue(ctx, "tx", tx)
		return fn(txCtx)
	})
}

// TransactionWithRetry 带重试的事务执行
// op为操作名(打点与日志用,如"checkout"、"return")
//
// 重试规则:
// 1. 只对MySQL死锁(1213)与锁等待超时(1205)重试,业务错误立即返回
// 2. 每次重试前短暂退避(含抖动,避免冲突双方同步重试)
// 3. 重试耗尽后返回ErrTransientConflict(调用方可安全整体重试)
func (m *TxManager) TransactionWithRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; attempt <= m.maxRetries; attempt++ {
		if attempt > 0 {
			metrics.TxRetriesTotal.WithLabelValues(op).Inc()
			log.Printf("⚠️ 事务冲突重试: op=%s attempt=%d err=%v", op, attempt, err)

			// 退避:10ms * attempt + 0~10ms抖动
			backoff := time.Duration(attempt)*10*time.Millisecond +
				time.Duration(rand.Intn(10))*time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return apperrors.Wrap(ctx.Err(), "事务被取消")
			}
		}

		err = m.Transaction(ctx, fn)
		if err == nil {
			return nil
		}
		if !isRetryableTxError(err) {
			return err
		}
	}

	log.Printf("❌ 事务冲突重试耗尽: op=%s retries=%d err=%v", op, m.maxRetries, err)
	return apperrors.ErrTransientConflict
}

// isRetryableTxError 判断是否为可重试的并发冲突错误
// MySQL错误码:
// - 1213: Deadlock found when trying to get lock
// - 1205: Lock wait timeout exceeded
func isRetryableTxError(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1213 || mysqlErr.Number == 1205
	}
	return false
}
