package mysql

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/xiebiao/elibrary/internal/domain/user"
	apperrors "github.com/xiebiao/elibrary/pkg/errors"
)

// userRepository 用户仓储实现(MySQL)
// 设计说明:
// 1. 实现domain/user/repository.go定义的接口
// 2. 负责domain实体与GORM模型之间的转换
// 3. 处理数据库特定的错误(如邮箱重复),转换为业务错误
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository 创建用户仓储
func NewUserRepository(db *gorm.DB) user.Repository {
	return &userRepository{db: db}
}

// Create 创建用户
func (r *userRepository) Create(ctx context.Context, u *user.User) error {
	model := &UserModel{
		Email:         u.Email,
		Password:      u.Password,
		Nickname:      u.Nickname,
		Role:          int(u.Role),
		BorrowedCount: u.BorrowedCount,
	}

	if err := getDB(ctx, r.db).Create(model).Error; err != nil {
		// 邮箱唯一索引冲突
		if isDuplicateError(err) {
			return apperrors.ErrEmailDuplicate
		}
		return apperrors.Wrap(err, "创建用户失败")
	}

	// 回填自增ID
	u.ID = model.ID
	u.CreatedAt = model.CreatedAt
	u.UpdatedAt = model.UpdatedAt

	return nil
}

// FindByID 根据ID查找用户
func (r *userRepository) FindByID(ctx context.Context, id uint) (*user.User, error) {
	var model UserModel
	err := getDB(ctx, r.db).First(&model, id).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, apperrors.Wrap(err, "查询用户失败")
	}

	return toUserEntity(&model), nil
}

// FindByEmail 根据邮箱查找用户
func (r *userRepository) FindByEmail(ctx context.Context, email string) (*user.User, error) {
	var model UserModel
	err := getDB(ctx, r.db).Where("email = ?", email).First(&model).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, apperrors.Wrap(err, "查询用户失败")
	}

	return toUserEntity(&model), nil
}

// LockByID 悲观锁查询用户(SELECT FOR UPDATE)
// 借书流程中校验借阅上限前必须锁定用户行
func (r *userRepository) LockByID(ctx context.Context, id uint) (*user.User, error) {
	var model UserModel
	err := getDB(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}).First(&model, id).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, apperrors.Wrap(err, "锁定用户失败")
	}

	return toUserEntity(&model), nil
}

// Update 更新用户信息
func (r *userRepository) Update(ctx context.Context, u *user.User) error {
	model := &UserModel{
		ID:            u.ID,
		Email:         u.Email,
		Password:      u.Password,
		Nickname:      u.Nickname,
		Role:          int(u.Role),
		BorrowedCount: u.BorrowedCount,
		CreatedAt:     u.CreatedAt,
	}

	if err := getDB(ctx, r.db).Save(model).Error; err != nil {
		return apperrors.Wrap(err, "更新用户失败")
	}

	u.UpdatedAt = model.UpdatedAt
	return nil
}

// AdjustBorrowedCount 原子调整在借数量
// UPDATE users SET borrowed_count = GREATEST(borrowed_count + ?, 0) WHERE id = ?
// GREATEST兜底:归还对账修复后的账本时计数不会变负
func (r *userRepository) AdjustBorrowedCount(ctx context.Context, id uint, delta int) error {
	result := getDB(ctx, r.db).Model(&UserModel{}).
		Where("id = ?", id).
		Update("borrowed_count", gorm.Expr("GREATEST(borrowed_count + ?, 0)", delta))

	if result.Error != nil {
		return apperrors.Wrap(result.Error, "更新在借数量失败")
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrUserNotFound
	}
	return nil
}

// RecountBorrowed 按借阅表重算在借数量(运维修复入口)
func (r *userRepository) RecountBorrowed(ctx context.Context, id uint) (int, error) {
	db := getDB(ctx, r.db)

	var count int64
	err := db.Model(&LoanModel{}).
		Where("user_id = ? AND status IN ?", id, []int{1, 2}).
		Count(&count).Error
	if err != nil {
		return 0, apperrors.Wrap(err, "统计在借数量失败")
	}

	result := db.Model(&UserModel{}).
		Where("id = ?", id).
		Update("borrowed_count", count)
	if result.Error != nil {
		return 0, apperrors.Wrap(result.Error, "修复在借数量失败")
	}
	if result.RowsAffected == 0 {
		return 0, apperrors.ErrUserNotFound
	}

	return int(count), nil
}

// toUserEntity GORM模型 → 领域实体
func toUserEntity(model *UserModel) *user.User {
	return &user.User{
		ID:            model.ID,
		Email:         model.Email,
		Password:      model.Password,
		Nickname:      model.Nickname,
		Role:          user.Role(model.Role),
		BorrowedCount: model.BorrowedCount,
		CreatedAt:     model.CreatedAt,
		UpdatedAt:     model.UpdatedAt,
	}
}
