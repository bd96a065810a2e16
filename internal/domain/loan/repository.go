package loan

import (
	"context"
	"time"
)

// Repository 借阅仓储接口(依赖倒置原则)
type Repository interface {
	// Create 创建借阅记录
	Create(ctx context.Context, loan *Loan) error

	// FindByID 根据ID查找借阅记录
	FindByID(ctx context.Context, id uint) (*Loan, error)

	// LockByID 悲观锁查询借阅记录(SELECT FOR UPDATE)
	// 归还/续借时锁定借阅行,防止并发重复归还
	// 必须在事务Context中调用
	LockByID(ctx context.Context, id uint) (*Loan, error)

	// Update 更新借阅记录
	Update(ctx context.Context, loan *Loan) error

	// ListByUser 分页查询用户的借阅记录(按创建时间倒序)
	// activeOnly为true时只返回在借/逾期的记录
	ListByUser(ctx context.Context, userID uint, activeOnly bool, page, pageSize int) ([]*Loan, int64, error)

	// CountActiveByUser 统计用户在借数量(status ∈ {borrowed, overdue})
	// 计数修复工具使用,热路径读User.BorrowedCount缓存
	CountActiveByUser(ctx context.Context, userID uint) (int, error)

	// HasActiveLoan 用户对某书目是否有在借记录
	// 借阅申请防重复校验使用
	HasActiveLoan(ctx context.Context, userID, bookID uint) (bool, error)

	// ListOverdueBatch 键集分页查询逾期借阅
	// 条件:status ∈ {borrowed, overdue} AND due_date < asOf AND id > afterID
	// 按id升序,最多limit条。对账任务逐批扫描使用
	ListOverdueBatch(ctx context.Context, asOf time.Time, afterID uint, limit int) ([]*Loan, error)

	// ListDueSoonBatch 键集分页查询即将到期的在借记录
	// 条件:status = borrowed AND asOf <= due_date < asOf+withinDays AND id > afterID
	ListDueSoonBatch(ctx context.Context, asOf time.Time, withinDays int, afterID uint, limit int) ([]*Loan, error)
}
