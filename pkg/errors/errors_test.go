package errors

import (
	"errors"
	"testing"
)

// TestAppError_Unwrap 测试errors.Is/As能穿透AppError
func TestAppError_Unwrap(t *testing.T) {
	inner := errors.New("driver: bad connection")
	wrapped := Wrap(inner, "数据库错误")

	if !errors.Is(wrapped, inner) {
		t.Errorf("期望errors.Is能找到内部错误")
	}

	var appErr *AppError
	if !errors.As(wrapped, &appErr) {
		t.Fatalf("期望errors.As能提取AppError")
	}
	if appErr.Code != ErrCodeInternal {
		t.Errorf("期望Code=%d, 实际=%d", ErrCodeInternal, appErr.Code)
	}
}

// TestIsCode 测试按业务错误码分类
func TestIsCode(t *testing.T) {
	limitErr := Newf(ErrCodeLimitExceeded, "最多可借%d本", 3)

	if !IsCode(limitErr, ErrCodeLimitExceeded) {
		t.Errorf("期望识别为LimitExceeded")
	}
	if IsCode(limitErr, ErrCodeConflict) {
		t.Errorf("不应识别为Conflict")
	}
	if IsCode(errors.New("plain"), ErrCodeInternal) {
		t.Errorf("普通错误不应匹配任何业务码")
	}

	// 上限值必须出现在提示语中，调用方据此渲染精确信息
	if limitErr.Message != "最多可借3本" {
		t.Errorf("提示语错误: %s", limitErr.Message)
	}
}

// TestGetAppError_PlainError 测试普通错误兜底包装
func TestGetAppError_PlainError(t *testing.T) {
	appErr := GetAppError(errors.New("boom"))
	if appErr.Code != ErrCodeInternal {
		t.Errorf("普通错误应包装为Internal, 实际Code=%d", appErr.Code)
	}
}
