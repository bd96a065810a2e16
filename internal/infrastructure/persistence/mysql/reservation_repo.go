package mysql

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/xiebiao/elibrary/internal/domain/reservation"
	apperrors "github.com/xiebiao/elibrary/pkg/errors"
)

// reservationRepository 预约仓储实现(MySQL)
type reservationRepository struct {
	db *gorm.DB
}

// NewReservationRepository 创建预约仓储
func NewReservationRepository(db *gorm.DB) reservation.Repository {
	return &reservationRepository{db: db}
}

// activeReservationStatuses 活跃预约状态集合(waiting + notified)
var activeReservationStatuses = []int{
	int(reservation.ReservationStatusWaiting),
	int(reservation.ReservationStatusNotified),
}

// Create 创建预约
func (r *reservationRepository) Create(ctx context.Context, rv *reservation.Reservation) error {
	model := toReservationModel(rv)

	if err := getDB(ctx, r.db).Create(model).Error; err != nil {
		return apperrors.Wrap(err, "创建预约失败")
	}

	rv.ID = model.ID
	rv.CreatedAt = model.CreatedAt
	rv.UpdatedAt = model.UpdatedAt

	return nil
}

// FindByID 根据ID查找预约
func (r *reservationRepository) FindByID(ctx context.Context, id uint) (*reservation.Reservation, error) {
	var model ReservationModel
	err := getDB(ctx, r.db).First(&model, id).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, reservation.ErrReservationNotFound
		}
		return nil, apperrors.Wrap(err, "查询预约失败")
	}

	return toReservationEntity(&model), nil
}

// LockByID 悲观锁查询预约(SELECT FOR UPDATE)
func (r *reservationRepository) LockByID(ctx context.Context, id uint) (*reservation.Reservation, error) {
	var model ReservationModel
	err := getDB(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}).First(&model, id).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, reservation.ErrReservationNotFound
		}
		return nil, apperrors.Wrap(err, "锁定预约失败")
	}

	return toReservationEntity(&model), nil
}

// Update 更新预约
func (r *reservationRepository) Update(ctx context.Context, rv *reservation.Reservation) error {
	model := toReservationModel(rv)
	model.ID = rv.ID
	model.CreatedAt = rv.CreatedAt

	if err := getDB(ctx, r.db).Save(model).Error; err != nil {
		return apperrors.Wrap(err, "更新预约失败")
	}

	rv.UpdatedAt = model.UpdatedAt
	return nil
}

// FindActiveByUserAndBook 查找用户对某书目的活跃预约
func (r *reservationRepository) FindActiveByUserAndBook(ctx context.Context, userID, bookID uint) (*reservation.Reservation, error) {
	var model ReservationModel
	err := getDB(ctx, r.db).
		Where("user_id = ? AND book_id = ? AND status IN ?", userID, bookID, activeReservationStatuses).
		First(&model).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, reservation.ErrReservationNotFound
		}
		return nil, apperrors.Wrap(err, "查询活跃预约失败")
	}

	return toReservationEntity(&model), nil
}

// LockOldestWaiting 锁定某书目最早的排队预约
// FIFO次序:ORDER BY reserved_at ASC, id ASC
// 加FOR UPDATE防止两次归还唤醒同一个排队者
func (r *reservationRepository) LockOldestWaiting(ctx context.Context, bookID uint) (*reservation.Reservation, error) {
	var model ReservationModel
	err := getDB(ctx, r.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("book_id = ? AND status = ?", bookID, int(reservation.ReservationStatusWaiting)).
		Order("reserved_at ASC, id ASC").
		First(&model).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, reservation.ErrReservationNotFound
		}
		return nil, apperrors.Wrap(err, "锁定排队预约失败")
	}

	return toReservationEntity(&model), nil
}

// ListByUser 分页查询用户的预约(按预约时间倒序)
func (r *reservationRepository) ListByUser(ctx context.Context, userID uint, page, pageSize int) ([]*reservation.Reservation, int64, error) {
	var models []ReservationModel
	var total int64

	query := getDB(ctx, r.db).Model(&ReservationModel{}).Where("user_id = ?", userID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, apperrors.Wrap(err, "查询预约总数失败")
	}

	offset := (page - 1) * pageSize
	err := query.Order("reserved_at DESC").Limit(pageSize).Offset(offset).Find(&models).Error
	if err != nil {
		return nil, 0, apperrors.Wrap(err, "查询预约列表失败")
	}

	reservations := make([]*reservation.Reservation, len(models))
	for i := range models {
		reservations[i] = toReservationEntity(&models[i])
	}

	return reservations, total, nil
}

// ListExpiredHolds 查询保留期已过的到书待取预约
func (r *reservationRepository) ListExpiredHolds(ctx context.Context, cutoff time.Time, limit int) ([]*reservation.Reservation, error) {
	var models []ReservationModel
	err := getDB(ctx, r.db).
		Where("status = ? AND notified_at < ?", int(reservation.ReservationStatusNotified), cutoff).
		Order("notified_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, apperrors.Wrap(err, "查询过期保留失败")
	}

	reservations := make([]*reservation.Reservation, len(models))
	for i := range models {
		reservations[i] = toReservationEntity(&models[i])
	}
	return reservations, nil
}

// CountActiveByBook 统计某书目的活跃预约数(排队深度)
func (r *reservationRepository) CountActiveByBook(ctx context.Context, bookID uint) (int64, error) {
	var count int64
	err := getDB(ctx, r.db).Model(&ReservationModel{}).
		Where("book_id = ? AND status IN ?", bookID, activeReservationStatuses).
		Count(&count).Error
	if err != nil {
		return 0, apperrors.Wrap(err, "统计排队深度失败")
	}
	return count, nil
}

// toReservationModel 领域实体 → GORM模型
func toReservationModel(rv *reservation.Reservation) *ReservationModel {
	return &ReservationModel{
		UserID:     rv.UserID,
		BookID:     rv.BookID,
		ItemID:     rv.ItemID,
		ReservedAt: rv.ReservedAt,
		NotifiedAt: rv.NotifiedAt,
		Status:     int(rv.Status),
	}
}

// toReservationEntity GORM模型 → 领域实体
func toReservationEntity(model *ReservationModel) *reservation.Reservation {
	return &reservation.Reservation{
		ID:         model.ID,
		UserID:     model.UserID,
		BookID:     model.BookID,
		ItemID:     model.ItemID,
		ReservedAt: model.ReservedAt,
		NotifiedAt: model.NotifiedAt,
		Status:     reservation.ReservationStatus(model.Status),
		CreatedAt:  model.CreatedAt,
		UpdatedAt:  model.UpdatedAt,
	}
}
