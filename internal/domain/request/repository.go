package request

import (
	"context"
)

// Repository 借阅申请仓储接口(依赖倒置原则)
type Repository interface {
	// Create 创建借阅申请
	Create(ctx context.Context, r *BorrowRequest) error

	// FindByID 根据ID查找申请
	FindByID(ctx context.Context, id uint) (*BorrowRequest, error)

	// LockByID 悲观锁查询申请(SELECT FOR UPDATE)
	// 审批/撤回时锁定申请行,防止并发重复处理
	// 必须在事务Context中调用
	LockByID(ctx context.Context, id uint) (*BorrowRequest, error)

	// Update 更新申请
	Update(ctx context.Context, r *BorrowRequest) error

	// HasPending 用户对某书目是否已有待审批申请
	HasPending(ctx context.Context, userID, bookID uint) (bool, error)

	// ListByUser 分页查询用户的申请(按申请时间倒序)
	ListByUser(ctx context.Context, userID uint, page, pageSize int) ([]*BorrowRequest, int64, error)

	// ListPending 分页查询待审批申请(按申请时间升序,先到先审)
	// 馆员工作台使用
	ListPending(ctx context.Context, page, pageSize int) ([]*BorrowRequest, int64, error)
}
