package reservation

import (
	apperrors "github.com/xiebiao/elibrary/pkg/errors"
)

// 预约领域错误定义
var (
	// ErrReservationNotFound 预约不存在
	ErrReservationNotFound = apperrors.ErrReservationNotFound

	// ErrDuplicateActive 同一用户对同一书目已有活跃预约
	ErrDuplicateActive = apperrors.New(apperrors.ErrCodeConflict, "您已预约过该图书,请查看已有预约")

	// ErrInvalidTransition 当前状态不允许此操作
	ErrInvalidTransition = apperrors.New(apperrors.ErrCodeInvalidState, "预约当前状态不允许此操作")

	// ErrNotNotified 预约未到待取状态,不能履约
	ErrNotNotified = apperrors.New(apperrors.ErrCodeInvalidState, "预约未到待取状态")

	// ErrNotOwner 预约不属于当前用户
	ErrNotOwner = apperrors.New(apperrors.ErrCodeForbidden, "无权操作他人的预约")

	// ErrItemMismatch 取书使用的副本与预约绑定的副本不一致
	ErrItemMismatch = apperrors.New(apperrors.ErrCodeInvalidState, "请使用预约指定的副本取书")
)
