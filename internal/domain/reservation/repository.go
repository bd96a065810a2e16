package reservation

import (
	"context"
	"time"
)

// Repository 预约仓储接口(依赖倒置原则)
type Repository interface {
	// Create 创建预约
	Create(ctx context.Context, r *Reservation) error

	// FindByID 根据ID查找预约
	FindByID(ctx context.Context, id uint) (*Reservation, error)

	// LockByID 悲观锁查询预约(SELECT FOR UPDATE)
	// 取书履约/取消时锁定预约行
	// 必须在事务Context中调用
	LockByID(ctx context.Context, id uint) (*Reservation, error)

	// Update 更新预约
	Update(ctx context.Context, r *Reservation) error

	// FindActiveByUserAndBook 查找用户对某书目的活跃预约
	// status ∈ {waiting, notified};不存在返回ErrReservationNotFound
	// 防重复预约校验使用
	FindActiveByUserAndBook(ctx context.Context, userID, bookID uint) (*Reservation, error)

	// LockOldestWaiting 锁定某书目最早的排队预约
	// FIFO次序:ORDER BY reserved_at ASC, id ASC,加FOR UPDATE
	// 队列为空返回ErrReservationNotFound
	// 必须在事务Context中调用
	LockOldestWaiting(ctx context.Context, bookID uint) (*Reservation, error)

	// ListByUser 分页查询用户的预约(按预约时间倒序)
	ListByUser(ctx context.Context, userID uint, page, pageSize int) ([]*Reservation, int64, error)

	// ListExpiredHolds 查询保留期已过的到书待取预约
	// 条件:status = notified AND notified_at < cutoff
	// 对账任务清理过期保留使用
	ListExpiredHolds(ctx context.Context, cutoff time.Time, limit int) ([]*Reservation, error)

	// CountActiveByBook 统计某书目的活跃预约数(排队深度)
	CountActiveByBook(ctx context.Context, bookID uint) (int64, error)
}
