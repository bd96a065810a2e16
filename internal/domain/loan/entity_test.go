package loan

import (
	"testing"
	"time"

	apperrors "github.com/xiebiao/elibrary/pkg/errors"
)

const finePerDay = int64(100) // 每日罚金1元(100分)

func newTestLoan(t *testing.T) *Loan {
	t.Helper()
	issue := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return NewLoan(1, 10, 100, issue, 15)
}

// TestNewLoan 测试借阅记录创建
func TestNewLoan(t *testing.T) {
	l := newTestLoan(t)

	if l.Status != LoanStatusBorrowed {
		t.Errorf("期望初始状态为在借，实际%s", l.Status)
	}
	if l.RenewCount != 0 {
		t.Errorf("期望续借次数为0，实际%d", l.RenewCount)
	}
	wantDue := time.Date(2026, 3, 16, 10, 0, 0, 0, time.UTC)
	if !l.DueDate.Equal(wantDue) {
		t.Errorf("期望到期日%v，实际%v", wantDue, l.DueDate)
	}
}

// TestLoan_OverdueDays 测试逾期天数计算(向上取整)
func TestLoan_OverdueDays(t *testing.T) {
	l := newTestLoan(t)

	tests := []struct {
		name string
		now  time.Time
		want int
	}{
		{"到期前", l.DueDate.Add(-time.Hour), 0},
		{"恰好到期", l.DueDate, 0},
		{"逾期1秒算1天", l.DueDate.Add(time.Second), 1},
		{"逾期23小时算1天", l.DueDate.Add(23 * time.Hour), 1},
		{"逾期整1天算1天", l.DueDate.Add(24 * time.Hour), 1},
		{"逾期1天1秒算2天", l.DueDate.Add(24*time.Hour + time.Second), 2},
		{"逾期10天半算11天", l.DueDate.Add(252 * time.Hour), 11},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := l.OverdueDays(tt.now); got != tt.want {
				t.Errorf("期望逾期%d天，实际%d天", tt.want, got)
			}
		})
	}
}

// TestLoan_FineFor 测试罚金计算
func TestLoan_FineFor(t *testing.T) {
	l := newTestLoan(t)

	if fine := l.FineFor(l.DueDate, finePerDay); fine != 0 {
		t.Errorf("未逾期期望罚金0，实际%d", fine)
	}

	now := l.DueDate.Add(3*24*time.Hour + time.Minute) // 逾期3天1分钟 → 4天
	if fine := l.FineFor(now, finePerDay); fine != 400 {
		t.Errorf("期望罚金400分，实际%d", fine)
	}
}

// TestLoan_MarkReturned 测试归还
func TestLoan_MarkReturned(t *testing.T) {
	l := newTestLoan(t)

	// 逾期2天1小时归还 → 3天罚金
	now := l.DueDate.Add(49 * time.Hour)
	if err := l.MarkReturned(now, finePerDay); err != nil {
		t.Fatalf("归还失败: %v", err)
	}

	if l.Status != LoanStatusReturned {
		t.Errorf("期望状态为已归还，实际%s", l.Status)
	}
	if l.ReturnDate == nil || !l.ReturnDate.Equal(now) {
		t.Errorf("期望归还时间%v，实际%v", now, l.ReturnDate)
	}
	if l.Fine != 300 {
		t.Errorf("期望罚金300分，实际%d", l.Fine)
	}

	// 重复归还应返回InvalidState
	err := l.MarkReturned(now.Add(time.Hour), finePerDay)
	if !apperrors.IsCode(err, apperrors.ErrCodeInvalidState) {
		t.Errorf("重复归还期望InvalidState错误，实际%v", err)
	}
}

// TestLoan_MarkReturned_OnTime 测试按期归还无罚金
func TestLoan_MarkReturned_OnTime(t *testing.T) {
	l := newTestLoan(t)

	now := l.DueDate.Add(-time.Hour)
	if err := l.MarkReturned(now, finePerDay); err != nil {
		t.Fatalf("归还失败: %v", err)
	}
	if l.Fine != 0 {
		t.Errorf("按期归还期望罚金0，实际%d", l.Fine)
	}
}

// TestLoan_MarkOverdue 测试对账标记逾期(幂等)
func TestLoan_MarkOverdue(t *testing.T) {
	l := newTestLoan(t)
	now := l.DueDate.Add(5 * 24 * time.Hour)

	if err := l.MarkOverdue(now, finePerDay); err != nil {
		t.Fatalf("标记逾期失败: %v", err)
	}
	if l.Status != LoanStatusOverdue {
		t.Errorf("期望状态为逾期，实际%s", l.Status)
	}
	if l.DaysOverdue != 5 || l.Fine != 500 {
		t.Errorf("期望逾期5天罚金500分，实际%d天%d分", l.DaysOverdue, l.Fine)
	}

	// 同一now重复执行,结果不变(幂等)
	if err := l.MarkOverdue(now, finePerDay); err != nil {
		t.Fatalf("重复标记失败: %v", err)
	}
	if l.DaysOverdue != 5 || l.Fine != 500 {
		t.Errorf("重复标记后期望不变，实际%d天%d分", l.DaysOverdue, l.Fine)
	}

	// 已归还的借阅不能标记逾期
	_ = l.MarkReturned(now, finePerDay)
	if err := l.MarkOverdue(now.Add(24*time.Hour), finePerDay); err == nil {
		t.Error("已归还借阅标记逾期期望失败")
	}
}

// TestLoan_OverdueThenReturn 测试逾期后归还罚金以归还时刻重算
func TestLoan_OverdueThenReturn(t *testing.T) {
	l := newTestLoan(t)

	// 对账时逾期2天
	checked := l.DueDate.Add(2 * 24 * time.Hour)
	if err := l.MarkOverdue(checked, finePerDay); err != nil {
		t.Fatalf("标记逾期失败: %v", err)
	}

	// 又过3天才归还 → 罚金按5天算,覆盖对账结果
	returned := l.DueDate.Add(5 * 24 * time.Hour)
	if err := l.MarkReturned(returned, finePerDay); err != nil {
		t.Fatalf("归还失败: %v", err)
	}
	if l.Fine != 500 {
		t.Errorf("期望归还时罚金重算为500分，实际%d", l.Fine)
	}
}

// TestLoan_Renew 测试续借
func TestLoan_Renew(t *testing.T) {
	l := newTestLoan(t)
	originalDue := l.DueDate
	now := l.IssueDate.Add(24 * time.Hour)

	// 第1次续借
	if err := l.Renew(now, 2, 15); err != nil {
		t.Fatalf("第1次续借失败: %v", err)
	}
	wantDue := originalDue.AddDate(0, 0, 15)
	if !l.DueDate.Equal(wantDue) {
		t.Errorf("期望到期日顺延至%v，实际%v", wantDue, l.DueDate)
	}
	if !l.UpdatedAt.Equal(now) {
		t.Errorf("期望更新时间取注入时钟%v，实际%v", now, l.UpdatedAt)
	}

	// 第2次续借
	if err := l.Renew(now, 2, 15); err != nil {
		t.Fatalf("第2次续借失败: %v", err)
	}
	if l.RenewCount != 2 {
		t.Errorf("期望续借次数2，实际%d", l.RenewCount)
	}

	// 第3次续借应触发上限
	err := l.Renew(now, 2, 15)
	if !apperrors.IsCode(err, apperrors.ErrCodeLimitExceeded) {
		t.Errorf("期望LimitExceeded错误，实际%v", err)
	}
	appErr := apperrors.GetAppError(err)
	if appErr.Message != "续借次数已达上限(最多2次)" {
		t.Errorf("期望提示语携带上限值，实际%q", appErr.Message)
	}
}

// TestLoan_Renew_Overdue 测试逾期借阅允许续借且罚金不清零
func TestLoan_Renew_Overdue(t *testing.T) {
	l := newTestLoan(t)
	now := l.DueDate.Add(3 * 24 * time.Hour)
	_ = l.MarkOverdue(now, finePerDay)

	if err := l.Renew(now, 2, 15); err != nil {
		t.Fatalf("逾期借阅续借失败: %v", err)
	}
	if l.Fine != 300 {
		t.Errorf("续借不应清零已累计罚金，期望300分实际%d", l.Fine)
	}
}

// TestLoan_Renew_Returned 测试已归还借阅不可续借
func TestLoan_Renew_Returned(t *testing.T) {
	l := newTestLoan(t)
	_ = l.MarkReturned(l.DueDate, finePerDay)

	err := l.Renew(l.DueDate, 2, 15)
	if !apperrors.IsCode(err, apperrors.ErrCodeInvalidState) {
		t.Errorf("期望InvalidState错误，实际%v", err)
	}
}

// TestLoan_CanTransitionTo 测试状态机转换规则
func TestLoan_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from LoanStatus
		to   LoanStatus
		want bool
	}{
		{LoanStatusBorrowed, LoanStatusOverdue, true},
		{LoanStatusBorrowed, LoanStatusReturned, true},
		{LoanStatusOverdue, LoanStatusReturned, true},
		{LoanStatusOverdue, LoanStatusBorrowed, false},
		{LoanStatusReturned, LoanStatusBorrowed, false},
		{LoanStatusReturned, LoanStatusOverdue, false},
	}

	for _, tt := range tests {
		l := newTestLoan(t)
		l.Status = tt.from
		if got := l.CanTransitionTo(tt.to); got != tt.want {
			t.Errorf("%s→%s 期望%v，实际%v", tt.from, tt.to, tt.want, got)
		}
	}
}

// TestLoan_DueWithin 测试即将到期判断
func TestLoan_DueWithin(t *testing.T) {
	l := newTestLoan(t)

	if !l.DueWithin(l.DueDate.Add(-24*time.Hour), 2) {
		t.Error("到期前1天期望命中2天窗口")
	}
	if l.DueWithin(l.DueDate.Add(-5*24*time.Hour), 2) {
		t.Error("到期前5天不应命中2天窗口")
	}
	if l.DueWithin(l.DueDate.Add(time.Hour), 2) {
		t.Error("已逾期不算即将到期")
	}
}
