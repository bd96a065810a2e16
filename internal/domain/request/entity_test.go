package request

import (
	"testing"
	"time"

	apperrors "github.com/xiebiao/elibrary/pkg/errors"
)

func newTestRequest() *BorrowRequest {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	return NewBorrowRequest(1, 100, nil, "想借这本", now)
}

// TestBorrowRequest_Approve 测试批准
func TestBorrowRequest_Approve(t *testing.T) {
	r := newTestRequest()
	now := r.RequestedAt.Add(time.Hour)

	if err := r.Approve(55, 9, "已分配3F副本", now); err != nil {
		t.Fatalf("批准失败: %v", err)
	}
	if r.Status != RequestStatusApproved {
		t.Errorf("期望状态为已批准，实际%s", r.Status)
	}
	if r.ItemID == nil || *r.ItemID != 55 {
		t.Error("期望批准时记录分配的副本ID")
	}
	if r.ProcessedBy == nil || *r.ProcessedBy != 9 {
		t.Error("期望记录经办馆员ID")
	}

	// 终态不可重复处理
	err := r.Reject(9, "", now.Add(time.Hour))
	if !apperrors.IsCode(err, apperrors.ErrCodeInvalidState) {
		t.Errorf("期望InvalidState错误，实际%v", err)
	}
}

// TestBorrowRequest_Reject 测试驳回
func TestBorrowRequest_Reject(t *testing.T) {
	r := newTestRequest()
	now := r.RequestedAt.Add(time.Hour)

	if err := r.Reject(9, "馆藏维护中", now); err != nil {
		t.Fatalf("驳回失败: %v", err)
	}
	if r.Status != RequestStatusRejected {
		t.Errorf("期望状态为已驳回，实际%s", r.Status)
	}
	if r.LibrarianNote != "馆藏维护中" {
		t.Errorf("期望记录驳回原因，实际%q", r.LibrarianNote)
	}

	if err := r.Approve(55, 9, "", now.Add(time.Hour)); err == nil {
		t.Error("已驳回的申请批准期望失败")
	}
}

// TestBorrowRequest_Cancel 测试撤回
func TestBorrowRequest_Cancel(t *testing.T) {
	r := newTestRequest()
	now := r.RequestedAt.Add(time.Hour)

	// 他人不能撤回
	err := r.Cancel(2, now)
	if !apperrors.IsCode(err, apperrors.ErrCodeForbidden) {
		t.Errorf("他人撤回期望Forbidden错误，实际%v", err)
	}

	// 本人撤回
	if err := r.Cancel(1, now); err != nil {
		t.Fatalf("撤回失败: %v", err)
	}
	if r.Status != RequestStatusCancelled {
		t.Errorf("期望状态为已撤回，实际%s", r.Status)
	}

	// 已撤回不能再撤回
	if err := r.Cancel(1, now.Add(time.Hour)); err == nil {
		t.Error("重复撤回期望失败")
	}
}
