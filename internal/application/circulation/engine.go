// Package circulation 实现借出/归还/续借三个核心用例
//
// 这是整个系统的事务核心:每个操作都是一个原子事务,
// 账本(loans)、副本状态(book_items)、派生计数(available_copies、
// borrowed_count)要么一起变,要么都不变。
package circulation

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
// 设计说明:
// 1. 生产实现为mysql.TxManager;单测注入直通实现(不起真事务)
// 2. TransactionWithRetry对死锁/锁等待超时自动重试,
//    重试耗尽降级为ErrTransientConflict
type Transactor interface {
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
	TransactionWithRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error
}

// Waker 预约协作接口
// 由application/reservation.Service实现,接口定义在使用方,避免环形依赖
type Waker interface {
	// NotifyNext 唤醒bookID最早的排队预约并绑定itemID
	// 队列为空返回(nil, nil)
	NotifyNext(ctx context.Context, bookID, itemID uint) (*reservation.Reservation, error)

	// FulfillTx 凭预约取书的事务内履约
	// 校验预约属于userID、处于到书待取状态、绑定的正是itemID
	FulfillTx(txCtx context.Context, reservationID, userID, itemID uint, now time.Time) error
}

// CacheInvalidator 书目缓存失效接口(redis.CatalogCache实现)
type CacheInvalidator interface {
	InvalidateBook(ctx context.Context, bookID uint) error
}

// Engine 流通引擎
type Engine struct {
	userRepo user.Repository
	bookRepo book.Repository
	loanRepo loan.Repository
	tx       Transactor
	waker    Waker
	notifier notification.Notifier
	cache    CacheInvalidator // 可为nil(未启用缓存)
	policy   config.CirculationConfig
	now      func() time.Time
}

// NewEngine 创建流通引擎
func NewEngine(
	userRepo user.Repository,
	bookRepo book.Repository,
	loanRepo loan.Repository,
	tx Transactor,
	waker Waker,
	notifier notification.Notifier,
	cache CacheInvalidator,
	policy config.CirculationConfig,
) *Engine {
	return &Engine{
		userRepo: userRepo,
		bookRepo: bookRepo,
		loanRepo: loanRepo,
		tx:       tx,
		waker:    waker,
		notifier: notifier,
		cache:    cache,
		policy:   policy,
		now:      time.Now,
	}
}

// CheckoutRequest 借出请求DTO
type CheckoutRequest struct {
	UserID uint // 借阅人ID(从JWT中提取)
	BookID uint // 书目ID
	ItemID uint // 副本ID
	// FulfillsReservationID 非空表示凭预约取书
	// 预约必须属于该用户、处于到书待取状态、且绑定的正是这本副本
	FulfillsReservationID *uint
}

// Checkout 借出副本
// 防止超借/超卖的完整流程(单事务):
// 1. 锁定用户行 → 校验借阅上限
// 2. 锁定副本行 → 校验属于该书目且在馆
// 3. 锁定书目行 → 校验可借册数>0
// 4. 创建借阅记录(due = now + 借期)
// 5. 副本置为借出;可借册数-1;在借数量+1
// 若凭预约取书,同一事务内将预约置为已借出
//
// 锁定次序固定为 用户→副本→书目,所有写路径一致,避免互相死锁
func (e *Engine) Checkout(ctx context.Context, req CheckoutRequest) (*loan.Loan, error) {
	ctx, span := tracing.StartSpan(ctx, "circulation", "Checkout")
	defer span.End()

	start := e.now()
	var result *loan.Loan

	err := e.tx.TransactionWithRetry(ctx, "checkout", func(txCtx context.Context) error {
		l, err := e.grantLoan(txCtx, req.UserID, req.BookID, req.ItemID)
		if err != nil {
			return err
		}

		// 凭预约取书:校验并履约
		if req.FulfillsReservationID != nil {
			if err := e.fulfillReservation(txCtx, *req.FulfillsReservationID, req.UserID, req.ItemID); err != nil {
				return err
			}
		}

		result = l
		return nil
	})

	metrics.CheckoutDuration.Observe(e.now().Sub(start).Seconds())
	if err != nil {
		metrics.CheckoutsTotal.WithLabelValues("failure", "direct").Inc()
		return nil, err
	}
	metrics.CheckoutsTotal.WithLabelValues("success", "direct").Inc()

	e.invalidateBook(ctx, req.BookID)
	return result, nil
}

// GrantLoan 放贷路径(供馆员审批复用)
// 必须在事务Context中调用;所有借书校验在调用时刻重新执行
func (e *Engine) GrantLoan(txCtx context.Context, userID, bookID, itemID uint) (*loan.Loan, error) {
	return e.grantLoan(txCtx, userID, bookID, itemID)
}

// grantLoan 共享的放贷实现
func (e *Engine) grantLoan(txCtx context.Context, userID, bookID, itemID uint) (*loan.Loan, error) {
	now := e.now()

	// 1. 锁定用户,校验借阅上限
	u, err := e.userRepo.LockByID(txCtx, userID)
	if err != nil {
		return nil, err
	}
	maxBorrow := e.policy.MaxBorrowFor(u.Role.String())
	if !u.CanBorrow(maxBorrow) {
		return nil, apperrors.Newf(apperrors.ErrCodeLimitExceeded, "已达借阅上限(最多可借%d本)", maxBorrow)
	}

	// 2. 锁定副本,校验归属与状态
	item, err := e.bookRepo.LockItemByID(txCtx, itemID)
	if err != nil {
		return nil, err
	}
	if !item.BelongsTo(bookID) {
		return nil, book.ErrItemBookMismatch
	}
	if !item.IsAvailable() {
		return nil, book.ErrItemNotAvailable
	}

	// 3. 锁定书目,校验可借册数
	b, err := e.bookRepo.LockByID(txCtx, bookID)
	if err != nil {
		return nil, err
	}
	if !b.HasAvailableCopy() {
		return nil, book.ErrNoAvailableCopy
	}

	// 4. 创建借阅记录
	l := loan.NewLoan(userID, itemID, bookID, now, e.policy.LoanPeriodDays)
	if err := e.loanRepo.Create(txCtx, l); err != nil {
		return nil, err
	}

	// 5. 副本置为借出;派生计数同事务调整
	if err := item.MarkBorrowed(); err != nil {
		return nil, err
	}
	if err := e.bookRepo.UpdateItem(txCtx, item); err != nil {
		return nil, err
	}
	if err := e.bookRepo.AdjustAvailableCopies(txCtx, bookID, -1); err != nil {
		return nil, err
	}
	if err := e.userRepo.AdjustBorrowedCount(txCtx, userID, 1); err != nil {
		return nil, err
	}

	return l, nil
}

// fulfillReservation 凭预约取书的履约校验(事务内)
func (e *Engine) fulfillReservation(txCtx context.Context, reservationID, userID, itemID uint) error {
	if e.waker == nil {
		return apperrors.New(apperrors.ErrCodeInternal, "预约服务未启用")
	}
	return e.waker.FulfillTx(txCtx, reservationID, userID, itemID, e.now())
}

// ReturnRequest 归还请求DTO
type ReturnRequest struct {
	LoanID      uint
	ActorID     uint // 操作人(从JWT中提取)
	IsLibrarian bool // 馆员可代任何人归还
}

// ReturnResponse 归还响应DTO
type ReturnResponse struct {
	Loan *loan.Loan
	// NotifiedReservation 归还后被唤醒的预约(无人排队为nil)
	NotifiedReservation *reservation.Reservation
}

// Return 归还借阅
// 事务内:锁定借阅→校验状态→重算罚金→副本回到在馆→派生计数回调
// 事务提交后(同一逻辑操作,单独事务):唤醒该书目最早的排队预约,
// 把刚空出的副本绑定给它,并发出reservation_ready事件。
// 唤醒失败只记日志:归还本身已经成功,排队者会被下一次归还或对账补救
func (e *Engine) Return(ctx context.Context, req ReturnRequest) (*ReturnResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "circulation", "ReturnLoan")
	defer span.End()

	var returned *loan.Loan

	err := e.tx.TransactionWithRetry(ctx, "return", func(txCtx context.Context) error {
		l, err := e.loanRepo.LockByID(txCtx, req.LoanID)
		if err != nil {
			return err
		}
		if !req.IsLibrarian && !l.IsOwnedBy(req.ActorID) {
			return loan.ErrNotOwner
		}

		// 罚金以归还时刻重算;非在借状态返回InvalidState
		if err := l.MarkReturned(e.now(), e.policy.FinePerDay); err != nil {
			return err
		}
		if err := e.loanRepo.Update(txCtx, l); err != nil {
			return err
		}

		// 副本回到在馆
		item, err := e.bookRepo.LockItemByID(txCtx, l.ItemID)
		if err != nil {
			return err
		}
		if err := item.MarkAvailable(); err != nil {
			return err
		}
		if err := e.bookRepo.UpdateItem(txCtx, item); err != nil {
			return err
		}

		// 派生计数回调(borrowed_count由GREATEST兜底不变负)
		if err := e.bookRepo.AdjustAvailableCopies(txCtx, l.BookID, 1); err != nil {
			return err
		}
		if err := e.userRepo.AdjustBorrowedCount(txCtx, l.UserID, -1); err != nil {
			return err
		}

		returned = l
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.ReturnsTotal.Inc()
	e.invalidateBook(ctx, returned.BookID)

	// 提交后唤醒排队预约
	resp := &ReturnResponse{Loan: returned}
	if e.waker != nil {
		notified, err := e.waker.NotifyNext(ctx, returned.BookID, returned.ItemID)
		if err != nil {
			log.Printf("⚠️ 归还后唤醒预约失败: book=%d item=%d err=%v", returned.BookID, returned.ItemID, err)
		} else if notified != nil {
			resp.NotifiedReservation = notified
			e.publish(ctx, notification.NewEvent(notified.UserID, notification.KindReservationReady,
				map[string]interface{}{
					"reservation_id": notified.ID,
					"book_id":        notified.BookID,
					"item_id":        returned.ItemID,
					"hold_days":      e.policy.ReservationExpiryDays,
				}))
		}
	}

	return resp, nil
}

// RenewRequest 续借请求DTO
type RenewRequest struct {
	LoanID      uint
	ActorID     uint
	IsLibrarian bool
}

// Renew 续借
// 事务内:锁定借阅→校验状态与续借上限→到期日从当前到期日顺延
func (e *Engine) Renew(ctx context.Context, req RenewRequest) (*loan.Loan, error) {
	var result *loan.Loan

	err := e.tx.TransactionWithRetry(ctx, "renew", func(txCtx context.Context) error {
		l, err := e.loanRepo.LockByID(txCtx, req.LoanID)
		if err != nil {
			return err
		}
		if !req.IsLibrarian && !l.IsOwnedBy(req.ActorID) {
			return loan.ErrNotOwner
		}

		if err := l.Renew(e.now(), e.policy.MaxRenewals, e.policy.RenewalExtensionDays); err != nil {
			return err
		}
		if err := e.loanRepo.Update(txCtx, l); err != nil {
			return err
		}

		result = l
		return nil
	})
	if err != nil {
		metrics.RenewalsTotal.WithLabelValues("failure").Inc()
		return nil, err
	}

	metrics.RenewalsTotal.WithLabelValues("success").Inc()
	return result, nil
}

// ListLoans 查询用户借阅记录(分页)
func (e *Engine) ListLoans(ctx context.Context, userID uint, activeOnly bool, page, pageSize int) ([]*loan.Loan, int64, error) {
	return e.loanRepo.ListByUser(ctx, userID, activeOnly, page, pageSize)
}

// publish 发布通知事件(失败只记日志,不影响主流程)
func (e *Engine) publish(ctx context.Context, event *notification.Event) {
	if e.notifier == nil {
		return
	}
	_ = e.notifier.Publish(ctx, event)
}

// invalidateBook 删除书目详情缓存(可借册数已变化)
func (e *Engine) invalidateBook(ctx context.Context, bookID uint) {
	if e.cache == nil {
		return
	}
	if err := e.cache.InvalidateBook(ctx, bookID); err != nil {
		log.Printf("⚠️ 删除书目缓存失败: book=%d err=%v", bookID, err)
	}
}
