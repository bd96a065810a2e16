// Package testutil 提供应用层单测用的内存仓储与直通事务
//
// 单测不起真数据库:内存仓储实现domain层的Repository接口,
// 直通事务把fn(ctx)原样执行(锁语义由仓储的串行访问保证)。
// 行为约定与mysql实现对齐:NotFound错误、守卫式计数调整、FIFO次序。
package testutil

import (
	"context"
)

// PassthroughTx 直通事务执行器
// 实现各应用层包的Transactor接口;不起真事务,直接执行fn
type PassthroughTx struct{}

// NewPassthroughTx 创建直通事务执行器
func NewPassthroughTx() *PassthroughTx {
	return &PassthroughTx{}
}

// Transaction 直接执行fn
func (t *PassthroughTx) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// TransactionWithRetry 直接执行fn(单测中不模拟死锁重试)
func (t *PassthroughTx) TransactionWithRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
