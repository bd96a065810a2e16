// Package request 实现借阅申请工作流:提交、撤回、审批(批准/驳回)
//
// 批准动作复用流通引擎的放贷路径:所有借书校验(上限、副本状态、
// 可借册数)在批准时刻对当前状态重新执行,绝不信任申请提交时的快照。
// 放贷失败时整个事务回滚,申请留在待审批状态等待重试。
package request

import (
	"context"
	"time"

	"github.com/xiebiao/elibrary/internal/application/circulation"
	"github.com/xiebiao/elibrary/internal/domain/book"
	"github.com/xiebiao/elibrary/internal/domain/loan"
	"github.com/xiebiao/elibrary/internal/domain/notification"
	"github.com/xiebiao/elibrary/internal/domain/request"
	"github.com/xiebiao/elibrary/internal/domain/user"
	"github.com/xiebiao/elibrary/internal/infrastructure/config"
	apperrors "github.com/xiebiao/elibrary/pkg/errors"
	"github.com/xiebiao/elibrary/pkg/metrics"
)

// Transactor 事务执行接口
type Transactor interface {
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
	TransactionWithRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error
}

// Service 借阅申请服务
type Service struct {
	requestRepo request.Repository
	userRepo    user.Repository
	bookRepo    book.Repository
	loanRepo    loan.Repository
	engine      *circulation.Engine
	tx          Transactor
	notifier    notification.Notifier
	policy      config.CirculationConfig
	now         func() time.Time
}

// NewService 创建借阅申请服务
func NewService(
	requestRepo request.Repository,
	userRepo user.Repository,
	bookRepo book.Repository,
	loanRepo loan.Repository,
	engine *circulation.Engine,
	tx Transactor,
	notifier notification.Notifier,
	policy config.CirculationConfig,
) *Service {
	return &Service{
		requestRepo: requestRepo,
		userRepo:    userRepo,
		bookRepo:    bookRepo,
		loanRepo:    loanRepo,
		engine:      engine,
		tx:          tx,
		notifier:    notifier,
		policy:      policy,
		now:         time.Now,
	}
}

// SubmitRequest 提交申请DTO
type SubmitRequest struct {
	UserID     uint
	BookID     uint
	ItemID     *uint  // 副本意向(可空,仅作提示)
	MemberNote string // 会员留言
}

// Submit 提交借阅申请
// 业务规则:
// 1. 同一用户对同一书目至多一条待审批申请(Conflict)
// 2. 已在借该书目不得重复申请(Conflict)
// 3. 提交时不得已达借阅上限(LimitExceeded)——提交时刻的软校验,
//    审批时还会按当时状态重新校验
// 4. 副本意向必须属于该书目且在馆(InvalidState)
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*request.BorrowRequest, error) {
	var result *request.BorrowRequest

	err := s.tx.TransactionWithRetry(ctx, "submit_request", func(txCtx context.Context) error {
		u, err := s.userRepo.FindByID(txCtx, req.UserID)
		if err != nil {
			return err
		}
		if _, err := s.bookRepo.FindByID(txCtx, req.BookID); err != nil {
			return err
		}

		// 防重复:待审批申请
		pending, err := s.requestRepo.HasPending(txCtx, req.UserID, req.BookID)
		if err != nil {
			return err
		}
		if pending {
			return request.ErrDuplicatePending
		}

		// 防重复:已在借
		active, err := s.loanRepo.HasActiveLoan(txCtx, req.UserID, req.BookID)
		if err != nil {
			return err
		}
		if active {
			return request.ErrAlreadyBorrowed
		}

		// 借阅上限软校验
		maxBorrow := s.policy.MaxBorrowFor(u.Role.String())
		if !u.CanBorrow(maxBorrow) {
			return apperrors.Newf(apperrors.ErrCodeLimitExceeded, "已达借阅上限(最多可借%d本)", maxBorrow)
		}

		// 副本意向校验
		if req.ItemID != nil {
			item, err := s.bookRepo.FindItemByID(txCtx, *req.ItemID)
			if err != nil {
				return err
			}
			if !item.BelongsTo(req.BookID) {
				return book.ErrItemBookMismatch
			}
			if !item.IsAvailable() {
				return book.ErrItemNotAvailable
			}
		}

		r := request.NewBorrowRequest(req.UserID, req.BookID, req.ItemID, req.MemberNote, s.now())
		if err := s.requestRepo.Create(txCtx, r); err != nil {
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

// Cancel 撤回申请(申请人本人,仅待审批状态)
func (s *Service) Cancel(ctx context.Context, requestID, actorID uint) error {
	return s.tx.TransactionWithRetry(ctx, "cancel_request", func(txCtx context.Context) error {
		r, err := s.requestRepo.LockByID(txCtx, requestID)
		if err != nil {
			return err
		}
		if err := r.Cancel(actorID, s.now()); err != nil {
			return err
		}
		return s.requestRepo.Update(txCtx, r)
	})
}

// Approve 批准申请
// 单事务:锁定申请→校验待审批→执行放贷路径(全部借书校验重新执行)
// →申请置为已批准。任一步失败整体回滚,申请仍为待审批。
// 提交后发出borrow_approved事件
func (s *Service) Approve(ctx context.Context, requestID, itemID, librarianID uint, note string) (*loan.Loan, error) {
	var granted *loan.Loan
	var approved *request.BorrowRequest

	err := s.tx.TransactionWithRetry(ctx, "approve_request", func(txCtx context.Context) error {
		r, err := s.requestRepo.LockByID(txCtx, requestID)
		if err != nil {
			return err
		}
		if !r.IsPending() {
			return request.ErrNotPending
		}

		// 与直接借出共用同一条放贷路径
		l, err := s.engine.GrantLoan(txCtx, r.UserID, r.BookID, itemID)
		if err != nil {
			return err
		}

		if err := r.Approve(itemID, librarianID, note, s.now()); err != nil {
			return err
		}
		if err := s.requestRepo.Update(txCtx, r); err != nil {
			return err
		}

		granted = l
		approved = r
		return nil
	})
	if err != nil {
		metrics.CheckoutsTotal.WithLabelValues("failure", "request_approval").Inc()
		return nil, err
	}
	metrics.CheckoutsTotal.WithLabelValues("success", "request_approval").Inc()

	s.publish(ctx, notification.NewEvent(approved.UserID, notification.KindBorrowApproved,
		map[string]interface{}{
			"request_id": approved.ID,
			"book_id":    approved.BookID,
			"item_id":    itemID,
			"loan_id":    granted.ID,
			"due_date":   granted.DueDate,
		}))

	return granted, nil
}

// Reject 驳回申请
// 待审批→已驳回,记录驳回原因;提交后发出borrow_rejected事件
func (s *Service) Reject(ctx context.Context, requestID, librarianID uint, reason string) error {
	var rejected *request.BorrowRequest

	err := s.tx.TransactionWithRetry(ctx, "reject_request", func(txCtx context.Context) error {
		r, err := s.requestRepo.LockByID(txCtx, requestID)
		if err != nil {
			return err
		}
		if err := r.Reject(librarianID, reason, s.now()); err != nil {
			return err
		}
		if err := s.requestRepo.Update(txCtx, r); err != nil {
			return err
		}
		rejected = r
		return nil
	})
	if err != nil {
		return err
	}

	s.publish(ctx, notification.NewEvent(rejected.UserID, notification.KindBorrowRejected,
		map[string]interface{}{
			"request_id": rejected.ID,
			"book_id":    rejected.BookID,
			"reason":     reason,
		}))

	return nil
}

// ListMine 分页查询用户的申请
func (s *Service) ListMine(ctx context.Context, userID uint, page, pageSize int) ([]*request.BorrowRequest, int64, error) {
	return s.requestRepo.ListByUser(ctx, userID, page, pageSize)
}

// ListPending 分页查询待审批申请(馆员工作台)
func (s *Service) ListPending(ctx context.Context, page, pageSize int) ([]*request.BorrowRequest, int64, error) {
	return s.requestRepo.ListPending(ctx, page, pageSize)
}

func (s *Service) publish(ctx context.Context, event *notification.Event) {
	if s.notifier == nil {
		return
	}
	_ = s.notifier.Publish(ctx, event)
}
