// Package reservation 实现预约队列用例:排队、取消、到书唤醒、履约
package reservation

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/xiebiao/elibrary/internal/domain/book"
	"github.com/xiebiao/elibrary/internal/domain/notification"
	"github.com/xiebiao/elibrary/internal/domain/reservation"
	"github.com/xiebiao/elibrary/internal/domain/user"
	"github.com/xiebiao/elibrary/internal/infrastructure/config"
	apperrors "github.com/xiebiao/elibrary/pkg/errors"
)

// Transactor 事务执行接口(与circulation共用同一约定)
type Transactor interface {
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
	TransactionWithRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error
}

// Service 预约服务
// 同时实现circulation.Waker(归还后唤醒、凭预约取书履约)
type Service struct {
	reservationRepo reservation.Repository
	userRepo        user.Repository
	bookRepo        book.Repository
	tx              Transactor
	notifier        notification.Notifier
	policy          config.CirculationConfig
	now             func() time.Time
}

// NewService 创建预约服务
func NewService(
	reservationRepo reservation.Repository,
	userRepo user.Repository,
	bookRepo book.Repository,
	tx Transactor,
	notifier notification.Notifier,
	policy config.CirculationConfig,
) *Service {
	return &Service{
		reservationRepo: reservationRepo,
		userRepo:        userRepo,
		bookRepo:        bookRepo,
		tx:              tx,
		notifier:        notifier,
		policy:          policy,
		now:             time.Now,
	}
}

// Reserve 预约书目
// 业务规则:
// 1. 用户与书目必须存在(NotFound)
// 2. 同一用户对同一书目至多一条活跃预约(Conflict)
// 3. 有可借副本时也允许预约(用户可能在外地,先占位)
func (s *Service) Reserve(ctx context.Context, userID, bookID uint) (*reservation.Reservation, error) {
	var result *reservation.Reservation

	err := s.tx.TransactionWithRetry(ctx, "reserve", func(txCtx context.Context) error {
		if _, err := s.userRepo.FindByID(txCtx, userID); err != nil {
			return err
		}
		if _, err := s.bookRepo.FindByID(txCtx, bookID); err != nil {
			return err
		}

		// 防重复:事务内校验活跃预约
		_, err := s.reservationRepo.FindActiveByUserAndBook(txCtx, userID, bookID)
		if err == nil {
			return reservation.ErrDuplicateActive
		}
		if !errors.Is(err, reservation.ErrReservationNotFound) {
			return err
		}

		r := reservation.NewReservation(userID, bookID, s.now())
		if err := s.reservationRepo.Create(txCtx, r); err != nil {
			return err
		}

		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// Cancel 取消预约
// 本人或馆员可取消;只有活跃状态(排队中/到书待取)可取消。
// 取消到书待取的预约会释放其绑定副本,提交后顺位唤醒下一位排队者
func (s *Service) Cancel(ctx context.Context, reservationID, actorID uint, isLibrarian bool) error {
	var freedItemID *uint
	var bookID uint

	err := s.tx.TransactionWithRetry(ctx, "cancel_reservation", func(txCtx context.Context) error {
		r, err := s.reservationRepo.LockByID(txCtx, reservationID)
		if err != nil {
			return err
		}
		if !isLibrarian && !r.IsOwnedBy(actorID) {
			return reservation.ErrNotOwner
		}

		wasNotified := r.Status == reservation.ReservationStatusNotified

		if err := r.Cancel(s.now()); err != nil {
			return err
		}
		if err := s.reservationRepo.Update(txCtx, r); err != nil {
			return err
		}

		if wasNotified {
			freedItemID = r.ItemID
			bookID = r.BookID
		}
		return nil
	})
	if err != nil {
		return err
	}

	// 被取消的待取预约空出了副本,唤醒下一位并发出reservation_ready事件
	if freedItemID != nil {
		notified, err := s.NotifyNext(ctx, bookID, *freedItemID)
		if err != nil {
			log.Printf("⚠️ 取消预约后唤醒失败: book=%d item=%d err=%v", bookID, *freedItemID, err)
		} else if notified != nil {
			s.publish(ctx, notification.NewEvent(notified.UserID, notification.KindReservationReady,
				map[string]interface{}{
					"reservation_id": notified.ID,
					"book_id":        notified.BookID,
					"item_id":        *freedItemID,
					"hold_days":      s.policy.ReservationExpiryDays,
				}))
		}
	}

	return nil
}

// publish 发布通知事件(失败只记日志,不影响主流程)
func (s *Service) publish(ctx context.Context, event *notification.Event) {
	if s.notifier == nil {
		return
	}
	_ = s.notifier.Publish(ctx, event)
}

// NotifyNext 唤醒某书目最早的排队预约并绑定副本(实现circulation.Waker)
// FIFO次序以(reserved_at, id)为准;队列为空返回(nil, nil)
func (s *Service) NotifyNext(ctx context.Context, bookID, itemID uint) (*reservation.Reservation, error) {
	var result *reservation.Reservation

	err := s.tx.TransactionWithRetry(ctx, "notify_next", func(txCtx context.Context) error {
		r, err := s.reservationRepo.LockOldestWaiting(txCtx, bookID)
		if err != nil {
			if errors.Is(err, reservation.ErrReservationNotFound) {
				return nil // 队列为空,不是错误
			}
			return err
		}

		if err := r.Notify(itemID, s.now()); err != nil {
			return err
		}
		if err := s.reservationRepo.Update(txCtx, r); err != nil {
			return err
		}

		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// FulfillTx 凭预约取书的事务内履约(实现circulation.Waker)
// 必须在借出事务的Context中调用,与放贷路径同生共死
func (s *Service) FulfillTx(txCtx context.Context, reservationID, userID, itemID uint, now time.Time) error {
	r, err := s.reservationRepo.LockByID(txCtx, reservationID)
	if err != nil {
		return err
	}
	if !r.IsOwnedBy(userID) {
		return reservation.ErrNotOwner
	}
	if r.Status != reservation.ReservationStatusNotified {
		return reservation.ErrNotNotified
	}
	if !r.BoundTo(itemID) {
		return reservation.ErrItemMismatch
	}

	if err := r.Fulfill(now); err != nil {
		return err
	}
	return s.reservationRepo.Update(txCtx, r)
}

// ListMine 分页查询用户的预约
func (s *Service) ListMine(ctx context.Context, userID uint, page, pageSize int) ([]*reservation.Reservation, int64, error) {
	return s.reservationRepo.ListByUser(ctx, userID, page, pageSize)
}

// QueueDepth 查询书目的排队深度
func (s *Service) QueueDepth(ctx context.Context, bookID uint) (int64, error) {
	count, err := s.reservationRepo.CountActiveByBook(ctx, bookID)
	if err != nil {
		return 0, apperrors.Wrap(err, "查询排队深度失败")
	}
	return count, nil
}
