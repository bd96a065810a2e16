package request

import (
	"time"
)

// RequestStatus 借阅申请状态
// 设计说明:
// 1. 状态机:pending→{approved,rejected,cancelled},其余均为终态
// 2. 审批失败(如库存被借空)不改变状态,申请留在pending等待重试
type RequestStatus int

const (
	RequestStatusPending   RequestStatus = 1 // 待审批
	RequestStatusApproved  RequestStatus = 2 // 已批准(终态)
	RequestStatusRejected  RequestStatus = 3 // 已驳回(终态)
	RequestStatusCancelled RequestStatus = 4 // 已撤回(终态)
)

// String 实现Stringer接口(方便日志输出)
func (s RequestStatus) String() string {
	switch s {
	case RequestStatusPending:
		return "待审批"
	case RequestStatusApproved:
		return "已批准"
	case RequestStatusRejected:
		return "已驳回"
	case RequestStatusCancelled:
		return "已撤回"
	default:
		return "未知状态"
	}
}

// BorrowRequest 借阅申请实体(聚合根)
// 设计说明:
// 1. 申请是"会员提出、馆员定夺"的工作流,批准动作与直接借书
//    走同一个放贷路径(所有借书校验在批准时刻重新执行)
// 2. ItemID是会员的副本意向,仅作提示;馆员批准时指定实际副本
// 3. ProcessedBy记录经办馆员,审计追踪用
type BorrowRequest struct {
	ID            uint
	UserID        uint
	BookID        uint
	ItemID        *uint // 会员指定的副本意向(可空)
	RequestedAt   time.Time
	ProcessedAt   *time.Time
	Status        RequestStatus
	MemberNote    string // 会员留言
	LibrarianNote string // 馆员批注(驳回原因等)
	ProcessedBy   *uint  // 经办馆员ID
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewBorrowRequest 创建借阅申请(工厂方法)
func NewBorrowRequest(userID, bookID uint, itemID *uint, note string, now time.Time) *BorrowRequest {
	return &BorrowRequest{
		UserID:      userID,
		BookID:      bookID,
		ItemID:      itemID,
		RequestedAt: now,
		Status:      RequestStatusPending,
		MemberNote:  note,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// IsPending 是否待审批
func (r *BorrowRequest) IsPending() bool {
	return r.Status == RequestStatusPending
}

// Approve 批准(领域行为)
// 调用方必须先完成放贷事务,再调用本方法落状态
func (r *BorrowRequest) Approve(itemID, librarianID uint, note string, now time.Time) error {
	if !r.IsPending() {
		return ErrNotPending
	}
	r.Status = RequestStatusApproved
	r.ItemID = &itemID
	r.LibrarianNote = note
	r.ProcessedBy = &librarianID
	processedAt := now
	r.ProcessedAt = &processedAt
	r.UpdatedAt = now
	return nil
}

// Reject 驳回(领域行为)
func (r *BorrowRequest) Reject(librarianID uint, reason string, now time.Time) error {
	if !r.IsPending() {
		return ErrNotPending
	}
	r.Status = RequestStatusRejected
	r.LibrarianNote = reason
	r.ProcessedBy = &librarianID
	processedAt := now
	r.ProcessedAt = &processedAt
	r.UpdatedAt = now
	return nil
}

// Cancel 撤回(领域行为)
// 只有申请人本人可以撤回待审批的申请
func (r *BorrowRequest) Cancel(byUserID uint, now time.Time) error {
	if r.UserID != byUserID {
		return ErrNotOwner
	}
	if !r.IsPending() {
		return ErrNotPending
	}
	r.Status = RequestStatusCancelled
	processedAt := now
	r.ProcessedAt = &processedAt
	r.UpdatedAt = now
	return nil
}

// IsOwnedBy 检查申请是否属于指定用户
func (r *BorrowRequest) IsOwnedBy(userID uint) bool {
	return r.UserID == userID
}
