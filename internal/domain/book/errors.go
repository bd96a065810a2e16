package book

import (
	apperrors "github.com/xiebiao/elibrary/pkg/errors"
)

// 图书领域错误定义
var (
	// ErrBookNotFound 图书不存在
	ErrBookNotFound = apperrors.ErrBookNotFound

	// ErrItemNotFound 图书副本不存在
	ErrItemNotFound = apperrors.ErrItemNotFound

	// ErrISBNDuplicate ISBN已存在
	ErrISBNDuplicate = apperrors.New(apperrors.ErrCodeDuplicateEntry, "ISBN号已存在")

	// ErrBarcodeDuplicate 馆藏条码已存在
	ErrBarcodeDuplicate = apperrors.New(apperrors.ErrCodeDuplicateEntry, "馆藏条码已存在")

	// ErrInvalidISBN ISBN格式不正确
	ErrInvalidISBN = apperrors.New(apperrors.ErrCodeInvalidParams, "ISBN格式不正确")

	// ErrItemNotAvailable 副本当前不可借
	ErrItemNotAvailable = apperrors.New(apperrors.ErrCodeInvalidState, "该副本当前不可借出")

	// ErrItemNotBorrowed 副本并非借出状态
	ErrItemNotBorrowed = apperrors.New(apperrors.ErrCodeInvalidState, "该副本并非借出状态")

	// ErrNoAvailableCopy 无可借副本
	ErrNoAvailableCopy = apperrors.New(apperrors.ErrCodeInvalidState, "该图书暂无可借副本")

	// ErrItemBookMismatch 副本不属于该图书
	ErrItemBookMismatch = apperrors.New(apperrors.ErrCodeInvalidState, "副本不属于该图书")
)
