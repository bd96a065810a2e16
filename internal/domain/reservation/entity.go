package reservation

import (
	"time"
)

// ReservationStatus 预约状态
// 设计说明:
// 1. 状态机:waiting→{notified,canceled}, notified→{fulfilled,canceled}
//    fulfilled/canceled为终态
// 2. "活跃预约"指waiting或notified,同一用户对同一书目至多一条
type ReservationStatus int

const (
	ReservationStatusWaiting   ReservationStatus = 1 // 排队等待
	ReservationStatusNotified  ReservationStatus = 2 // 到书待取
	ReservationStatusFulfilled ReservationStatus = 3 // 已借出(终态)
	ReservationStatusCanceled  ReservationStatus = 4 // 已取消(终态)
)

// String 实现Stringer接口(方便日志输出)
func (s ReservationStatus) String() string {
	switch s {
	case ReservationStatusWaiting:
		return "排队中"
	case ReservationStatusNotified:
		return "到书待取"
	case ReservationStatusFulfilled:
		return "已借出"
	case ReservationStatusCanceled:
		return "已取消"
	default:
		return "未知状态"
	}
}

// IsActive 是否为活跃状态(占用排队名额)
func (s ReservationStatus) IsActive() bool {
	return s == ReservationStatusWaiting || s == ReservationStatusNotified
}

// Reservation 预约实体(聚合根)
// 设计说明:
// 1. 预约针对书目(Book)而非具体副本:排队时不关心拿到哪一册
// 2. 到书唤醒时才绑定ItemID,取书借出必须使用被绑定的那一册
// 3. FIFO次序以(ReservedAt, ID)为准,ID兜底保证同一时刻的稳定排序
// 4. 到书后保留期3天(策略配置),过期由对账任务取消并唤醒下一位
type Reservation struct {
	ID         uint
	UserID     uint
	BookID     uint
	ItemID     *uint // 到书唤醒时绑定的副本ID
	ReservedAt time.Time
	NotifiedAt *time.Time
	Status     ReservationStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewReservation 创建预约(工厂方法)
func NewReservation(userID, bookID uint, now time.Time) *Reservation {
	return &Reservation{
		UserID:     userID,
		BookID:     bookID,
		ReservedAt: now,
		Status:     ReservationStatusWaiting,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// CanTransitionTo 检查是否可以转换到目标状态
func (r *Reservation) CanTransitionTo(target ReservationStatus) bool {
	transitions := map[ReservationStatus][]ReservationStatus{
		ReservationStatusWaiting:   {ReservationStatusNotified, ReservationStatusCanceled},
		ReservationStatusNotified:  {ReservationStatusFulfilled, ReservationStatusCanceled},
		ReservationStatusFulfilled: {}, // 终态
		ReservationStatusCanceled:  {}, // 终态
	}

	allowedTargets, exists := transitions[r.Status]
	if !exists {
		return false
	}

	for _, allowed := range allowedTargets {
		if allowed == target {
			return true
		}
	}
	return false
}

// Notify 到书唤醒(领域行为):绑定副本,进入待取状态
func (r *Reservation) Notify(itemID uint, now time.Time) error {
	if !r.CanTransitionTo(ReservationStatusNotified) {
		return ErrInvalidTransition
	}
	r.Status = ReservationStatusNotified
	r.ItemID = &itemID
	notifiedAt := now
	r.NotifiedAt = &notifiedAt
	r.UpdatedAt = now
	return nil
}

// Fulfill 取书借出(领域行为)
// 只有到书待取状态可以履约
func (r *Reservation) Fulfill(now time.Time) error {
	if !r.CanTransitionTo(ReservationStatusFulfilled) {
		return ErrNotNotified
	}
	r.Status = ReservationStatusFulfilled
	r.UpdatedAt = now
	return nil
}

// Cancel 取消预约(领域行为)
// 排队中与到书待取均可取消;终态不可取消
func (r *Reservation) Cancel(now time.Time) error {
	if !r.CanTransitionTo(ReservationStatusCanceled) {
		return ErrInvalidTransition
	}
	r.Status = ReservationStatusCanceled
	r.UpdatedAt = now
	return nil
}

// IsOwnedBy 检查预约是否属于指定用户
func (r *Reservation) IsOwnedBy(userID uint) bool {
	return r.UserID == userID
}

// HoldExpired 到书保留期是否已过
// expiryDays为保留天数(策略配置,默认3天)
func (r *Reservation) HoldExpired(now time.Time, expiryDays int) bool {
	if r.Status != ReservationStatusNotified || r.NotifiedAt == nil {
		return false
	}
	return now.Sub(*r.NotifiedAt) > time.Duration(expiryDays)*24*time.Hour
}

// BoundTo 预约是否绑定了指定副本
func (r *Reservation) BoundTo(itemID uint) bool {
	return r.ItemID != nil && *r.ItemID == itemID
}
