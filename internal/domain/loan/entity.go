package loan

import (
	"time"
)

// LoanStatus 借阅状态
// 设计说明:
// 1. 使用int类型而非string(节省存储空间,便于索引)
// 2. 状态机:borrowed→{overdue,returned}, overdue→{returned}, returned为终态
// 3. overdue是borrowed的细分:两者都表示"在借",都占用借阅额度
type LoanStatus int

const (
	LoanStatusBorrowed LoanStatus = 1 // 在借
	LoanStatusOverdue  LoanStatus = 2 // 逾期在借
	LoanStatusReturned LoanStatus = 3 // 已归还(终态)
)

// String 实现Stringer接口(方便日志输出)
func (s LoanStatus) String() string {
	switch s {
	case LoanStatusBorrowed:
		return "在借"
	case LoanStatusOverdue:
		return "逾期"
	case LoanStatusReturned:
		return "已归还"
	default:
		return "未知状态"
	}
}

// Loan 借阅记录实体(聚合根)
// 设计说明:
// 1. 借阅记录是流通引擎的事实账本,只追加不删除
// 2. Fine以"分"为单位存储(int64,避免浮点数精度问题)
// 3. DaysOverdue/LastCheckedAt由对账任务维护,归还时罚金以
//    归还时刻重算为准,与对账结果无关
// 4. 同时冗余ItemID与BookID:副本决定物理归还,书目决定预约唤醒
type Loan struct {
	ID            uint
	UserID        uint
	ItemID        uint // 借出的副本ID
	BookID        uint // 副本所属书目ID(冗余,预约唤醒用)
	IssueDate     time.Time
	DueDate       time.Time
	ReturnDate    *time.Time
	Status        LoanStatus
	Fine          int64 // 累计罚金(分)
	RenewCount    int   // 已续借次数
	DaysOverdue   int   // 对账任务记录的逾期天数
	LastCheckedAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewLoan 创建借阅记录(工厂方法)
// periodDays为借期天数(策略配置,默认15天)
func NewLoan(userID, itemID, bookID uint, now time.Time, periodDays int) *Loan {
	return &Loan{
		UserID:     userID,
		ItemID:     itemID,
		BookID:     bookID,
		IssueDate:  now,
		DueDate:    now.AddDate(0, 0, periodDays),
		Status:     LoanStatusBorrowed,
		Fine:       0,
		RenewCount: 0,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// IsActive 是否在借(占用借阅额度)
func (l *Loan) IsActive() bool {
	return l.Status == LoanStatusBorrowed || l.Status == LoanStatusOverdue
}

// CanTransitionTo 检查是否可以转换到目标状态
// 状态机设计,防止非法状态跳转(如归还已归还的借阅)
func (l *Loan) CanTransitionTo(target LoanStatus) bool {
	transitions := map[LoanStatus][]LoanStatus{
		LoanStatusBorrowed: {LoanStatusOverdue, LoanStatusReturned},
		LoanStatusOverdue:  {LoanStatusReturned},
		LoanStatusReturned: {}, // 终态
	}

	allowedTargets, exists := transitions[l.Status]
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

// OverdueDays 计算截至now的逾期天数(向上取整)
// 逾期1秒也算逾期1天;未逾期返回0
// 归还与对账共用这一个计算口径,保证罚金一致
func (l *Loan) OverdueDays(now time.Time) int {
	if !now.After(l.DueDate) {
		return 0
	}
	elapsed := now.Sub(l.DueDate)
	days := int(elapsed / (24 * time.Hour))
	if elapsed%(24*time.Hour) > 0 {
		days++
	}
	return days
}

// FineFor 计算截至now应收罚金(分)
// finePerDay为每日罚金(策略配置,默认100分)
func (l *Loan) FineFor(now time.Time, finePerDay int64) int64 {
	return int64(l.OverdueDays(now)) * finePerDay
}

// MarkReturned 归还(领域行为)
// 业务规则:
// 1. 只有在借/逾期状态可以归还
// 2. 罚金以归还时刻重算(逾期1秒也收1天)
func (l *Loan) MarkReturned(now time.Time, finePerDay int64) error {
	if !l.CanTransitionTo(LoanStatusReturned) {
		return ErrAlreadyReturned
	}
	l.Fine = l.FineFor(now, finePerDay)
	l.Status = LoanStatusReturned
	returnDate := now
	l.ReturnDate = &returnDate
	l.UpdatedAt = now
	return nil
}

// MarkOverdue 对账任务标记逾期并重算罚金(领域行为)
// 幂等:对同一now重复执行结果不变
func (l *Loan) MarkOverdue(now time.Time, finePerDay int64) error {
	if l.Status == LoanStatusReturned {
		return ErrAlreadyReturned
	}
	l.DaysOverdue = l.OverdueDays(now)
	l.Fine = int64(l.DaysOverdue) * finePerDay
	l.Status = LoanStatusOverdue
	checkedAt := now
	l.LastCheckedAt = &checkedAt
	l.UpdatedAt = now
	return nil
}

// Renew 续借(领域行为)
// 业务规则:
// 1. 已归还的借阅不可续借
// 2. 续借次数不得超过maxRenewals(超出返回ErrRenewLimitReached)
// 3. 新到期日 = 当前到期日 + extensionDays(不是从now起算)
// 4. 逾期借阅允许续借,已累计的罚金不清零
func (l *Loan) Renew(now time.Time, maxRenewals, extensionDays int) error {
	if l.Status == LoanStatusReturned {
		return ErrAlreadyReturned
	}
	if l.RenewCount >= maxRenewals {
		return ErrRenewLimitReached(maxRenewals)
	}
	l.DueDate = l.DueDate.AddDate(0, 0, extensionDays)
	l.RenewCount++
	l.UpdatedAt = now
	return nil
}

// IsOwnedBy 检查借阅记录是否属于指定用户
func (l *Loan) IsOwnedBy(userID uint) bool {
	return l.UserID == userID
}

// DueWithin 是否将在days天内到期(即将到期提醒用)
// 已逾期的不算"即将到期"
func (l *Loan) DueWithin(now time.Time, days int) bool {
	if now.After(l.DueDate) {
		return false
	}
	return l.DueDate.Sub(now) <= time.Duration(days)*24*time.Hour
}
