package mysql

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/xiebiao/elibrary/internal/domain/request"
	apperrors "github.com/xiebiao/elibrary/pkg/errors"
)

// requestRepository 借阅申请仓储实现(MySQL)
type requestRepository struct {
	db *gorm.DB
}

// NewRequestRepository 创建借阅申请仓储
func NewRequestRepository(db *gorm.DB) request.Repository {
	return &requestRepository{db: db}
}

// Create 创建借阅申请
func (r *requestRepository) Create(ctx context.Context, req *request.BorrowRequest) error {
	model := toRequestModel(req)

	if err := getDB(ctx, r.db).Create(model).Error; err != nil {
		return apperrors.Wrap(err, "创建借阅申请失败")
	}

	req.ID = model.ID
	req.CreatedAt = model.CreatedAt
	req.UpdatedAt = model.UpdatedAt

	return nil
}

// FindByID 根据ID查找申请
func (r *requestRepository) FindByID(ctx context.Context, id uint) (*request.BorrowRequest, error) {
	var model BorrowRequestModel
	err := getDB(ctx, r.db).First(&model, id).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, request.ErrRequestNotFound
		}
		return nil, apperrors.Wrap(err, "查询借阅申请失败")
	}

	return toRequestEntity(&model), nil
}

// LockByID 悲观锁查询申请(SELECT FOR UPDATE)
func (r *requestRepository) LockByID(ctx context.Context, id uint) (*request.BorrowRequest, error) {
	var model BorrowRequestModel
	err := getDB(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}).First(&model, id).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, request.ErrRequestNotFound
		}
		return nil, apperrors.Wrap(err, "锁定借阅申请失败")
	}

	return toRequestEntity(&model), nil
}

// Update 更新申请
func (r *requestRepository) Update(ctx context.Context, req *request.BorrowRequest) error {
	model := toRequestModel(req)
	model.ID = req.ID
	model.CreatedAt = req.CreatedAt

	if err := getDB(ctx, r.db).Save(model).Error; err != nil {
		return apperrors.Wrap(err, "更新借阅申请失败")
	}

	req.UpdatedAt = model.UpdatedAt
	return nil
}

// HasPending 用户对某书目是否已有待审批申请
func (r *requestRepository) HasPending(ctx context.Context, userID, bookID uint) (bool, error) {
	var count int64
	err := getDB(ctx, r.db).Model(&BorrowRequestModel{}).
		Where("user_id = ? AND book_id = ? AND status = ?", userID, bookID, int(request.RequestStatusPending)).
		Count(&count).Error
	if err != nil {
		return false, apperrors.Wrap(err, "查询待审批申请失败")
	}
	return count > 0, nil
}

// ListByUser 分页查询用户的申请(按申请时间倒序)
func (r *requestRepository) ListByUser(ctx context.Context, userID uint, page, pageSize int) ([]*request.BorrowRequest, int64, error) {
	var models []BorrowRequestModel
	var total int64

	query := getDB(ctx, r.db).Model(&BorrowRequestModel{}).Where("user_id = ?", userID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, apperrors.Wrap(err, "查询申请总数失败")
	}

	offset := (page - 1) * pageSize
	err := query.Order("requested_at DESC").Limit(pageSize).Offset(offset).Find(&models).Error
	if err != nil {
		return nil, 0, apperrors.Wrap(err, "查询申请列表失败")
	}

	requests := make([]*request.BorrowRequest, len(models))
	for i := range models {
		requests[i] = toRequestEntity(&models[i])
	}

	return requests, total, nil
}

// ListPending 分页查询待审批申请(按申请时间升序,先到先审)
func (r *requestRepository) ListPending(ctx context.Context, page, pageSize int) ([]*request.BorrowRequest, int64, error) {
	var models []BorrowRequestModel
	var total int64

	query := getDB(ctx, r.db).Model(&BorrowRequestModel{}).
		Where("status = ?", int(request.RequestStatusPending))

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, apperrors.Wrap(err, "查询待审批总数失败")
	}

	offset := (page - 1) * pageSize
	err := query.Order("requested_at ASC").Limit(pageSize).Offset(offset).Find(&models).Error
	if err != nil {
		return nil, 0, apperrors.Wrap(err, "查询待审批列表失败")
	}

	requests := make([]*request.BorrowRequest, len(models))
	for i := range models {
		requests[i] = toRequestEntity(&models[i])
	}

	return requests, total, nil
}

// toRequestModel 领域实体 → GORM模型
func toRequestModel(req *request.BorrowRequest) *BorrowRequestModel {
	return &BorrowRequestModel{
		UserID:        req.UserID,
		BookID:        req.BookID,
		ItemID:        req.ItemID,
		RequestedAt:   req.RequestedAt,
		ProcessedAt:   req.ProcessedAt,
		Status:        int(req.Status),
		MemberNote:    req.MemberNote,
		LibrarianNote: req.LibrarianNote,
		ProcessedBy:   req.ProcessedBy,
	}
}

// toRequestEntity GORM模型 → 领域实体
func toRequestEntity(model *BorrowRequestModel) *request.BorrowRequest {
	return &request.BorrowRequest{
		ID:            model.ID,
		UserID:        model.UserID,
		BookID:        model.BookID,
		ItemID:        model.ItemID,
		RequestedAt:   model.RequestedAt,
		ProcessedAt:   model.ProcessedAt,
		Status:        request.RequestStatus(model.Status),
		MemberNote:    model.MemberNote,
		LibrarianNote: model.LibrarianNote,
		ProcessedBy:   model.ProcessedBy,
		CreatedAt:     model.CreatedAt,
		UpdatedAt:     model.UpdatedAt,
	}
}
