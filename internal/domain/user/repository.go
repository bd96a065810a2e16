package user

import (
	"context"
)

// Repository 用户仓储接口
// DDD设计说明：
// 1. 接口定义在domain层（依赖倒置原则）
// 2. 具体实现在infrastructure/persistence/mysql层
// 3. 这样domain层不依赖任何外部框架（GORM、sqlx等）
// 4. 便于单元测试（Mock此接口）
type Repository interface {
	// Create 创建用户
	// 注意：如果邮箱已存在，应返回errors.ErrEmailDuplicate
	Create(ctx context.Context, user *User) error

	// FindByID 根据ID查找用户
	// 如果不存在，返回errors.ErrUserNotFound
	FindByID(ctx context.Context, id uint) (*User, error)

	// FindByEmail 根据邮箱查找用户
	// 如果不存在，返回errors.ErrUserNotFound
	FindByEmail(ctx context.Context, email string) (*User, error)

	// LockByID 根据ID查找用户并加行锁（SELECT FOR UPDATE）
	// 借书/审批流程中校验借阅上限前必须锁定用户行，
	// 防止并发借书导致borrowed_count超限
	// 必须在事务Context中调用
	LockByID(ctx context.Context, id uint) (*User, error)

	// Update 更新用户信息
	Update(ctx context.Context, user *User) error

	// AdjustBorrowedCount 原子调整在借数量（delta可为负）
	// 使用 GREATEST(borrowed_count + ?, 0) 防止计数变负
	// 必须与借阅状态变更在同一事务内执行
	AdjustBorrowedCount(ctx context.Context, id uint, delta int) error

	// RecountBorrowed 按借阅表重算在借数量（运维修复入口）
	// 返回修复后的计数值
	RecountBorrowed(ctx context.Context, id uint) (int, error)
}
