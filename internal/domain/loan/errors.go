package loan

import (
	apperrors "github.com/xiebiao/elibrary/pkg/errors"
)

// 借阅领域错误定义
var (
	// ErrLoanNotFound 借阅记录不存在
	ErrLoanNotFound = apperrors.ErrLoanNotFound

	// ErrAlreadyReturned 借阅已归还(终态,不允许归还/续借)
	ErrAlreadyReturned = apperrors.New(apperrors.ErrCodeInvalidState, "该借阅记录已归还")

	// ErrNotOwner 借阅记录不属于当前用户
	ErrNotOwner = apperrors.New(apperrors.ErrCodeForbidden, "无权操作他人的借阅记录")
)

// ErrRenewLimitReached 续借次数已达上限(上限值带进提示语)
func ErrRenewLimitReached(max int) *apperrors.AppError {
	return apperrors.Newf(apperrors.ErrCodeLimitExceeded, "续借次数已达上限(最多%d次)", max)
}
