package dto

import (
	"github.com/xiebiao/elibrary/internal/domain/loan"
	"github.com/xiebiao/elibrary/internal/domain/request"
	"github.com/xiebiao/elibrary/internal/domain/reservation"
)

// =========================================
// 借阅相关DTO
// =========================================

// CheckoutRequest HTTP借出请求
// reservation_id非空表示凭预约取书(副本必须是预约绑定的那一册)
type CheckoutRequest struct {
	BookID        uint  `json:"book_id" binding:"required" example:"1"`
	ItemID        uint  `json:"item_id" binding:"required" example:"10"`
	ReservationID *uint `json:"reservation_id" binding:"omitempty" example:"5"`
}

// LoanResponse HTTP借阅记录响应
type LoanResponse struct {
	ID          uint   `json:"id" example:"1"`
	UserID      uint   `json:"user_id" example:"1"`
	ItemID      uint   `json:"item_id" example:"10"`
	BookID      uint   `json:"book_id" example:"1"`
	IssueDate   string `json:"issue_date" example:"2024-01-15 10:30:00"`
	DueDate     string `json:"due_date" example:"2024-01-30 10:30:00"`
	ReturnDate  string `json:"return_date,omitempty" example:"2024-01-28 16:00:00"`
	Status      string `json:"status" example:"在借"`
	Fine        int64  `json:"fine" example:"0"` // 罚金(分)
	RenewCount  int    `json:"renew_count" example:"0"`
	DaysOverdue int    `json:"days_overdue" example:"0"`
}

// NewLoanResponse 领域实体 → HTTP响应
func NewLoanResponse(l *loan.Loan) *LoanResponse {
	resp := &LoanResponse{
		ID:          l.ID,
		UserID:      l.UserID,
		ItemID:      l.ItemID,
		BookID:      l.BookID,
		IssueDate:   l.IssueDate.Format(timeLayout),
		DueDate:     l.DueDate.Format(timeLayout),
		Status:      l.Status.String(),
		Fine:        l.Fine,
		RenewCount:  l.RenewCount,
		DaysOverdue: l.DaysOverdue,
	}
	if l.ReturnDate != nil {
		resp.ReturnDate = l.ReturnDate.Format(timeLayout)
	}
	return resp
}

// NewLoanResponses 领域实体列表 → HTTP响应列表
func NewLoanResponses(loans []*loan.Loan) []*LoanResponse {
	list := make([]*LoanResponse, len(loans))
	for i, l := range loans {
		list[i] = NewLoanResponse(l)
	}
	return list
}

// ReturnResponse HTTP归还响应
// notified_reservation为归还后被唤醒的预约(无人排队时省略)
type ReturnResponse struct {
	Loan                *LoanResponse        `json:"loan"`
	NotifiedReservation *ReservationResponse `json:"notified_reservation,omitempty"`
}

// ListLoansRequest HTTP借阅记录查询请求
type ListLoansRequest struct {
	ActiveOnly bool `form:"active_only" example:"true"` // 只看在借(含逾期)
	Page       int  `form:"page" binding:"omitempty,min=1" example:"1"`
	PageSize   int  `form:"page_size" binding:"omitempty,min=1,max=100" example:"20"`
}

// =========================================
// 预约相关DTO
// =========================================

// ReserveRequest HTTP预约请求
type ReserveRequest struct {
	BookID uint `json:"book_id" binding:"required" example:"1"`
}

// ReservationResponse HTTP预约响应
type ReservationResponse struct {
	ID         uint   `json:"id" example:"5"`
	UserID     uint   `json:"user_id" example:"1"`
	BookID     uint   `json:"book_id" example:"1"`
	ItemID     *uint  `json:"item_id,omitempty" example:"10"` // 到书后绑定的副本
	ReservedAt string `json:"reserved_at" example:"2024-01-15 10:30:00"`
	NotifiedAt string `json:"notified_at,omitempty" example:"2024-01-20 09:00:00"`
	Status     string `json:"status" example:"排队中"`
}

// NewReservationResponse 领域实体 → HTTP响应
func NewReservationResponse(r *reservation.Reservation) *ReservationResponse {
	resp := &ReservationResponse{
		ID:         r.ID,
		UserID:     r.UserID,
		BookID:     r.BookID,
		ItemID:     r.ItemID,
		ReservedAt: r.ReservedAt.Format(timeLayout),
		Status:     r.Status.String(),
	}
	if r.NotifiedAt != nil {
		resp.NotifiedAt = r.NotifiedAt.Format(timeLayout)
	}
	return resp
}

// NewReservationResponses 领域实体列表 → HTTP响应列表
func NewReservationResponses(reservations []*reservation.Reservation) []*ReservationResponse {
	list := make([]*ReservationResponse, len(reservations))
	for i, r := range reservations {
		list[i] = NewReservationResponse(r)
	}
	return list
}

// =========================================
// 借阅申请相关DTO
// =========================================

// SubmitRequestRequest HTTP借阅申请提交请求
type SubmitRequestRequest struct {
	BookID uint   `json:"book_id" binding:"required" example:"1"`
	ItemID *uint  `json:"item_id" binding:"omitempty" example:"10"` // 副本意向(可空)
	Note   string `json:"note" binding:"omitempty,max=500" example:"下周来馆自取"`
}

// ApproveRequestRequest HTTP批准申请请求
type ApproveRequestRequest struct {
	ItemID uint   `json:"item_id" binding:"required" example:"10"` // 实际借出的副本
	Note   string `json:"note" binding:"omitempty,max=500" example:"已备好"`
}

// RejectRequestRequest HTTP驳回申请请求
type RejectRequestRequest struct {
	Reason string `json:"reason" binding:"required,max=500" example:"该书已列入馆内保留书目"`
}

// BorrowRequestResponse HTTP借阅申请响应
type BorrowRequestResponse struct {
	ID            uint   `json:"id" example:"3"`
	UserID        uint   `json:"user_id" example:"1"`
	BookID        uint   `json:"book_id" example:"1"`
	ItemID        *uint  `json:"item_id,omitempty" example:"10"`
	RequestedAt   string `json:"requested_at" example:"2024-01-15 10:30:00"`
	ProcessedAt   string `json:"processed_at,omitempty" example:"2024-01-16 09:00:00"`
	Status        string `json:"status" example:"待审批"`
	MemberNote    string `json:"member_note,omitempty" example:"下周来馆自取"`
	LibrarianNote string `json:"librarian_note,omitempty"`
	ProcessedBy   *uint  `json:"processed_by,omitempty" example:"2"`
}

// NewBorrowRequestResponse 领域实体 → HTTP响应
func NewBorrowRequestResponse(r *request.BorrowRequest) *BorrowRequestResponse {
	resp := &BorrowRequestResponse{
		ID:            r.ID,
		UserID:        r.UserID,
		BookID:        r.BookID,
		ItemID:        r.ItemID,
		RequestedAt:   r.RequestedAt.Format(timeLayout),
		Status:        r.Status.String(),
		MemberNote:    r.MemberNote,
		LibrarianNote: r.LibrarianNote,
		ProcessedBy:   r.ProcessedBy,
	}
	if r.ProcessedAt != nil {
		resp.ProcessedAt = r.ProcessedAt.Format(timeLayout)
	}
	return resp
}

// NewBorrowRequestResponses 领域实体列表 → HTTP响应列表
func NewBorrowRequestResponses(requests []*request.BorrowRequest) []*BorrowRequestResponse {
	list := make([]*BorrowRequestResponse, len(requests))
	for i, r := range requests {
		list[i] = NewBorrowRequestResponse(r)
	}
	return list
}

// =========================================
// 运维相关DTO
// =========================================

// ReconcileResponse HTTP对账结果响应
type ReconcileResponse struct {
	Processed    int    `json:"processed" example:"12"`
	Failed       int    `json:"failed" example:"0"`
	ExpiredHolds int    `json:"expired_holds" example:"2"`
	DueSoon      int    `json:"due_soon" example:"7"`
	StartedAt    string `json:"started_at" example:"2024-01-15 02:00:00"`
	FinishedAt   string `json:"finished_at" example:"2024-01-15 02:00:03"`
}
