package request

import (
	apperrors "github.com/xiebiao/elibrary/pkg/errors"
)

// 借阅申请领域错误定义
var (
	// ErrRequestNotFound 借阅申请不存在
	ErrRequestNotFound = apperrors.ErrRequestNotFound

	// ErrDuplicatePending 同一用户对同一书目已有待审批申请
	ErrDuplicatePending = apperrors.New(apperrors.ErrCodeConflict, "您已提交过该图书的借阅申请,请等待审批")

	// ErrAlreadyBorrowed 用户已在借该书目
	ErrAlreadyBorrowed = apperrors.New(apperrors.ErrCodeConflict, "您已借阅该图书,无需重复申请")

	// ErrNotPending 申请不在待审批状态(终态不可再处理)
	ErrNotPending = apperrors.New(apperrors.ErrCodeInvalidState, "该申请已处理,不能重复操作")

	// ErrNotOwner 申请不属于当前用户
	ErrNotOwner = apperrors.New(apperrors.ErrCodeForbidden, "无权操作他人的借阅申请")
)
