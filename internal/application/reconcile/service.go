// Package reconcile 实现每日对账任务:逾期标记与罚金重算、
// 过期预约保留清理、到期提醒,以及派生计数修复工具。
//
// 对账的失败语义:单条借阅处理失败只记数并继续,整批不中断;
// 只有读不出逾期集合本身时才终止本次运行。
// 对同一时刻now重复运行结果不变(幂等)。
package reconcile

import (
	"context"
	"log"
	"time"

	"github.com/xiebiao/elibrary/internal/domain/book"
	"github.com/xiebiao/elibrary/internal/domain/loan"
	"github.com/xiebiao/elibrary/internal/domain/notification"
	"github.com/xiebiao/elibrary/internal/domain/reservation"
	"github.com/xiebiao/elibrary/internal/domain/user"
	"github.com/xiebiao/elibrary/internal/infrastructure/config"
	apperrors "github.com/xiebiao/elibrary/pkg/errors"
	"github.com/xiebiao/elibrary/pkg/metrics"
	"github.com/xiebiao/elibrary/pkg/tracing"
)

// Transactor 事务执行接口
type Transactor interface {
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
	TransactionWithRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error
}

// Waker 预约唤醒接口(application/reservation.Service实现)
type Waker interface {
	NotifyNext(ctx context.Context, bookID, itemID uint) (*reservation.Reservation, error)
}

// Service 对账服务
type Service struct {
	loanRepo        loan.Repository
	reservationRepo reservation.Repository
	userRepo        user.Repository
	bookRepo        book.Repository
	tx              Transactor
	waker           Waker
	notifier        notification.Notifier
	policy          config.CirculationConfig
}

// NewService 创建对账服务
func NewService(
	loanRepo loan.Repository,
	reservationRepo reservation.Repository,
	userRepo user.Repository,
	bookRepo book.Repository,
	tx Transactor,
	waker Waker,
	notifier notification.Notifier,
	policy config.CirculationConfig,
) *Service {
	return &Service{
		loanRepo:        loanRepo,
		reservationRepo: reservationRepo,
		userRepo:        userRepo,
		bookRepo:        bookRepo,
		tx:              tx,
		waker:           waker,
		notifier:        notifier,
		policy:          policy,
	}
}

// Result 对账结果(运维可见)
type Result struct {
	Processed    int       `json:"processed"`     // 逾期处理条数
	Failed       int       `json:"failed"`        // 单条失败条数
	ExpiredHolds int       `json:"expired_holds"` // 清理的过期保留条数
	DueSoon      int       `json:"due_soon"`      // 到期提醒条数
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
}

// Run 执行一次对账
// now由调用方传入:定时任务传当前时间,测试传固定时间验证幂等
func (s *Service) Run(ctx context.Context, now time.Time) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "reconcile", "RunReconcile")
	defer span.End()

	result := &Result{StartedAt: now}
	log.Printf("🔄 对账开始: now=%s batch=%d", now.Format(time.RFC3339), s.policy.ReconcileBatchSize)

	// 1. 逾期扫描
	if err := s.sweepOverdue(ctx, now, result); err != nil {
		return nil, err
	}

	// 2. 清理过期的到书保留,顺位唤醒下一位
	if err := s.sweepExpiredHolds(ctx, now, result); err != nil {
		// 保留清理失败不影响已完成的逾期处理
		log.Printf("⚠️ 过期保留清理失败: %v", err)
	}

	// 3. 到期提醒
	if err := s.sweepDueSoon(ctx, now, result); err != nil {
		log.Printf("⚠️ 到期提醒扫描失败: %v", err)
	}

	result.FinishedAt = time.Now()
	log.Printf("✅ 对账完成: processed=%d failed=%d expired_holds=%d due_soon=%d",
		result.Processed, result.Failed, result.ExpiredHolds, result.DueSoon)

	return result, nil
}

// sweepOverdue 逾期扫描:键集分批,逐条重算
// 读不出逾期集合时返回错误终止;单条失败只计数继续
func (s *Service) sweepOverdue(ctx context.Context, now time.Time, result *Result) error {
	var afterID uint
	for {
		batch, err := s.loanRepo.ListOverdueBatch(ctx, now, afterID, s.policy.ReconcileBatchSize)
		if err != nil {
			return apperrors.Wrap(err, "读取逾期借阅集合失败")
		}
		if len(batch) == 0 {
			return nil
		}

		for _, l := range batch {
			afterID = l.ID
			if err := s.reconcileLoan(ctx, l.ID, now); err != nil {
				result.Failed++
				metrics.ReconcileFailuresTotal.Inc()
				log.Printf("⚠️ 逾期处理失败: loan=%d err=%v", l.ID, err)
				continue
			}
			result.Processed++
			metrics.ReconcileProcessedTotal.Inc()
		}

		if len(batch) < s.policy.ReconcileBatchSize {
			return nil
		}
	}
}

// reconcileLoan 处理单条逾期借阅(独立事务)
// 事务内重新加锁校验:扫描与处理之间该借阅可能已被归还
func (s *Service) reconcileLoan(ctx context.Context, loanID uint, now time.Time) error {
	var updated *loan.Loan

	err := s.tx.TransactionWithRetry(ctx, "reconcile_loan", func(txCtx context.Context) error {
		l, err := s.loanRepo.LockByID(txCtx, loanID)
		if err != nil {
			return err
		}
		// 已归还或尚未逾期(扫描后被续借)则跳过
		if !l.IsActive() || !now.After(l.DueDate) {
			return nil
		}

		if err := l.MarkOverdue(now, s.policy.FinePerDay); err != nil {
			return err
		}
		if err := s.loanRepo.Update(txCtx, l); err != nil {
			return err
		}

		updated = l
		return nil
	})
	if err != nil {
		return err
	}

	if updated != nil {
		s.publish(ctx, notification.NewEvent(updated.UserID, notification.KindOverdue,
			map[string]interface{}{
				"loan_id":      updated.ID,
				"book_id":      updated.BookID,
				"days_overdue": updated.DaysOverdue,
				"fine":         updated.Fine,
				"due_date":     updated.DueDate,
			}))
	}

	return nil
}

// sweepExpiredHolds 清理保留期已过的到书待取预约
// 取消后空出的副本顺位唤醒下一位排队者
func (s *Service) sweepExpiredHolds(ctx context.Context, now time.Time, result *Result) error {
	cutoff := now.Add(-time.Duration(s.policy.ReservationExpiryDays) * 24 * time.Hour)

	for {
		expired, err := s.reservationRepo.ListExpiredHolds(ctx, cutoff, s.policy.ReconcileBatchSize)
		if err != nil {
			return err
		}
		if len(expired) == 0 {
			return nil
		}

		progressed := false
		for _, r := range expired {
			freedItemID, err := s.expireHold(ctx, r.ID, now)
			if err != nil {
				log.Printf("⚠️ 过期保留清理失败: reservation=%d err=%v", r.ID, err)
				continue
			}
			progressed = true
			result.ExpiredHolds++
			metrics.ReconcileExpiredReservationsTotal.Inc()

			if freedItemID != nil {
				notified, err := s.waker.NotifyNext(ctx, r.BookID, *freedItemID)
				if err != nil {
					log.Printf("⚠️ 过期清理后唤醒失败: book=%d err=%v", r.BookID, err)
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
		}

		// 全部失败时退出,避免对同一批脏数据死循环
		if !progressed {
			return nil
		}
	}
}

// expireHold 取消单条过期保留(独立事务),返回释放的副本ID
func (s *Service) expireHold(ctx context.Context, reservationID uint, now time.Time) (*uint, error) {
	var freedItemID *uint

	err := s.tx.TransactionWithRetry(ctx, "expire_hold", func(txCtx context.Context) error {
		r, err := s.reservationRepo.LockByID(txCtx, reservationID)
		if err != nil {
			return err
		}
		// 加锁后复核:可能刚被取书履约或用户自行取消
		if !r.HoldExpired(now, s.policy.ReservationExpiryDays) {
			return nil
		}

		freedItemID = r.ItemID
		if err := r.Cancel(now); err != nil {
			return err
		}
		return s.reservationRepo.Update(txCtx, r)
	})
	if err != nil {
		return nil, err
	}

	return freedItemID, nil
}

// sweepDueSoon 到期提醒扫描(只发事件,不改数据)
func (s *Service) sweepDueSoon(ctx context.Context, now time.Time, result *Result) error {
	var afterID uint
	for {
		batch, err := s.loanRepo.ListDueSoonBatch(ctx, now, s.policy.DueSoonDays, afterID, s.policy.ReconcileBatchSize)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}

		for _, l := range batch {
			afterID = l.ID
			s.publish(ctx, notification.NewEvent(l.UserID, notification.KindDueSoon,
				map[string]interface{}{
					"loan_id":  l.ID,
					"book_id":  l.BookID,
					"due_date": l.DueDate,
				}))
			result.DueSoon++
		}

		if len(batch) < s.policy.ReconcileBatchSize {
			return nil
		}
	}
}

// RepairBookCounters 按副本表重算某书目的馆藏/可借册数(运维修复入口)
// 不在热路径上:派生计数平时只靠同事务的守卫UPDATE维护
func (s *Service) RepairBookCounters(ctx context.Context, bookID uint) (*book.Book, error) {
	var repaired *book.Book

	err := s.tx.Transaction(ctx, func(txCtx context.Context) error {
		b, err := s.bookRepo.LockByID(txCtx, bookID)
		if err != nil {
			return err
		}

		available, err := s.bookRepo.CountItemsByStatus(txCtx, bookID, book.ItemStatusAvailable)
		if err != nil {
			return err
		}
		borrowed, err := s.bookRepo.CountItemsByStatus(txCtx, bookID, book.ItemStatusBorrowed)
		if err != nil {
			return err
		}

		b.AvailableCopies = available
		b.TotalCopies = available + borrowed
		repaired = b
		return s.bookRepo.Update(txCtx, b)
	})
	if err != nil {
		return nil, err
	}

	return repaired, nil
}

// RepairUserCounter 按借阅表重算某用户的在借数量(运维修复入口)
func (s *Service) RepairUserCounter(ctx context.Context, userID uint) (int, error) {
	var count int
	err := s.tx.Transaction(ctx, func(txCtx context.Context) error {
		var err error
		count, err = s.userRepo.RecountBorrowed(txCtx, userID)
		return err
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Service) publish(ctx context.Context, event *notification.Event) {
	if s.notifier == nil {
		return
	}
	_ = s.notifier.Publish(ctx, event)
}
