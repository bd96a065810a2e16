package mysql

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/xiebiao/elibrary/internal/domain/loan"
	apperrors "github.com/xiebiao/elibrary/pkg/errors"
)

// loanRepository 借阅仓储实现(MySQL)
type loanRepository struct {
	db *gorm.DB
}

// NewLoanRepository 创建借阅仓储
func NewLoanRepository(db *gorm.DB) loan.Repository {
	return &loanRepository{db: db}
}

// activeStatuses 在借状态集合(borrowed + overdue)
var activeStatuses = []int{int(loan.LoanStatusBorrowed), int(loan.LoanStatusOverdue)}

// Create 创建借阅记录
func (r *loanRepository) Create(ctx context.Context, l *loan.Loan) error {
	model := toLoanModel(l)

	if err := getDB(ctx, r.db).Create(model).Error; err != nil {
		return apperrors.Wrap(err, "创建借阅记录失败")
	}

	l.ID = model.ID
	l.CreatedAt = model.CreatedAt
	l.UpdatedAt = model.UpdatedAt

	return nil
}

// FindByID 根据ID查找借阅记录
func (r *loanRepository) FindByID(ctx context.Context, id uint) (*loan.Loan, error) {
	var model LoanModel
	err := getDB(ctx, r.db).First(&model, id).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, loan.ErrLoanNotFound
		}
		return nil, apperrors.Wrap(err, "查询借阅记录失败")
	}

	return toLoanEntity(&model), nil
}

// LockByID 悲观锁查询借阅记录(SELECT FOR UPDATE)
func (r *loanRepository) LockByID(ctx context.Context, id uint) (*loan.Loan, error) {
	var model LoanModel
	err := getDB(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}).First(&model, id).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, loan.ErrLoanNotFound
		}
		return nil, apperrors.Wrap(err, "锁定借阅记录失败")
	}

	return toLoanEntity(&model), nil
}

// Update 更新借阅记录
func (r *loanRepository) Update(ctx context.Context, l *loan.Loan) error {
	model := toLoanModel(l)
	model.ID = l.ID
	model.CreatedAt = l.CreatedAt

	if err := getDB(ctx, r.db).Save(model).Error; err != nil {
		return apperrors.Wrap(err, "更新借阅记录失败")
	}

	l.UpdatedAt = model.UpdatedAt
	return nil
}

// ListByUser 分页查询用户的借阅记录(按创建时间倒序)
func (r *loanRepository) ListByUser(ctx context.Context, userID uint, activeOnly bool, page, pageSize int) ([]*loan.Loan, int64, error) {
	var models []LoanModel
	var total int64

	query := getDB(ctx, r.db).Model(&LoanModel{}).Where("user_id = ?", userID)
	if activeOnly {
		query = query.Where("status IN ?", activeStatuses)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, apperrors.Wrap(err, "查询借阅总数失败")
	}

	offset := (page - 1) * pageSize
	err := query.Order("created_at DESC").Limit(pageSize).Offset(offset).Find(&models).Error
	if err != nil {
		return nil, 0, apperrors.Wrap(err, "查询借阅列表失败")
	}

	loans := make([]*loan.Loan, len(models))
	for i := range models {
		loans[i] = toLoanEntity(&models[i])
	}

	return loans, total, nil
}

// CountActiveByUser 统计用户在借数量
func (r *loanRepository) CountActiveByUser(ctx context.Context, userID uint) (int, error) {
	var count int64
	err := getDB(ctx, r.db).Model(&LoanModel{}).
		Where("user_id = ? AND status IN ?", userID, activeStatuses).
		Count(&count).Error
	if err != nil {
		return 0, apperrors.Wrap(err, "统计在借数量失败")
	}
	return int(count), nil
}

// HasActiveLoan 用户对某书目是否有在借记录
func (r *loanRepository) HasActiveLoan(ctx context.Context, userID, bookID uint) (bool, error) {
	var count int64
	err := getDB(ctx, r.db).Model(&LoanModel{}).
		Where("user_id = ? AND book_id = ? AND status IN ?", userID, bookID, activeStatuses).
		Count(&count).Error
	if err != nil {
		return false, apperrors.Wrap(err, "查询在借记录失败")
	}
	return count > 0, nil
}

// ListOverdueBatch 键集分页查询逾期借阅
// 按id升序键集翻页,避免深分页的OFFSET代价;
// 上一批的处理结果不影响本批的WHERE条件(status仍在集合内)
func (r *loanRepository) ListOverdueBatch(ctx context.Context, asOf time.Time, afterID uint, limit int) ([]*loan.Loan, error) {
	var models []LoanModel
	err := getDB(ctx, r.db).
		Where("status IN ? AND due_date < ? AND id > ?", activeStatuses, asOf, afterID).
		Order("id ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, apperrors.Wrap(err, "查询逾期借阅失败")
	}

	loans := make([]*loan.Loan, len(models))
	for i := range models {
		loans[i] = toLoanEntity(&models[i])
	}
	return loans, nil
}

// ListDueSoonBatch 键集分页查询即将到期的在借记录
func (r *loanRepository) ListDueSoonBatch(ctx context.Context, asOf time.Time, withinDays int, afterID uint, limit int) ([]*loan.Loan, error) {
	until := asOf.Add(time.Duration(withinDays) * 24 * time.Hour)

	var models []LoanModel
	err := getDB(ctx, r.db).
		Where("status = ? AND due_date >= ? AND due_date < ? AND id > ?",
			int(loan.LoanStatusBorrowed), asOf, until, afterID).
		Order("id ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, apperrors.Wrap(err, "查询即将到期借阅失败")
	}

	loans := make([]*loan.Loan, len(models))
	for i := range models {
		loans[i] = toLoanEntity(&models[i])
	}
	return loans, nil
}

// toLoanModel 领域实体 → GORM模型
func toLoanModel(l *loan.Loan) *LoanModel {
	return &LoanModel{
		UserID:        l.UserID,
		ItemID:        l.ItemID,
		BookID:        l.BookID,
		IssueDate:     l.IssueDate,
		DueDate:       l.DueDate,
		ReturnDate:    l.ReturnDate,
		Status:        int(l.Status),
		Fine:          l.Fine,
		RenewCount:    l.RenewCount,
		DaysOverdue:   l.DaysOverdue,
		LastCheckedAt: l.LastCheckedAt,
	}
}

// toLoanEntity GORM模型 → 领域实体
func toLoanEntity(model *LoanModel) *loan.Loan {
	return &loan.Loan{
		ID:            model.ID,
		UserID:        model.UserID,
		ItemID:        model.ItemID,
		BookID:        model.BookID,
		IssueDate:     model.IssueDate,
		DueDate:       model.DueDate,
		ReturnDate:    model.ReturnDate,
		Status:        loan.LoanStatus(model.Status),
		Fine:          model.Fine,
		RenewCount:    model.RenewCount,
		DaysOverdue:   model.DaysOverdue,
		LastCheckedAt: model.LastCheckedAt,
		CreatedAt:     model.CreatedAt,
		UpdatedAt:     model.UpdatedAt,
	}
}
