package reservation

import (
	"testing"
	"time"
)

func newTestReservation() *Reservation {
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	return NewReservation(1, 100, now)
}

// TestReservation_Lifecycle 测试 waiting→notified→fulfilled 正常流转
func TestReservation_Lifecycle(t *testing.T) {
	r := newTestReservation()

	if r.Status != ReservationStatusWaiting {
		t.Fatalf("期望初始状态为排队中，实际%s", r.Status)
	}

	// 到书唤醒,绑定副本
	notifiedAt := r.ReservedAt.Add(48 * time.Hour)
	if err := r.Notify(55, notifiedAt); err != nil {
		t.Fatalf("唤醒失败: %v", err)
	}
	if r.Status != ReservationStatusNotified {
		t.Errorf("期望状态为到书待取，实际%s", r.Status)
	}
	if !r.BoundTo(55) {
		t.Error("期望预约绑定副本55")
	}
	if r.NotifiedAt == nil || !r.NotifiedAt.Equal(notifiedAt) {
		t.Errorf("期望唤醒时间%v，实际%v", notifiedAt, r.NotifiedAt)
	}

	// 取书履约
	if err := r.Fulfill(notifiedAt.Add(time.Hour)); err != nil {
		t.Fatalf("履约失败: %v", err)
	}
	if r.Status != ReservationStatusFulfilled {
		t.Errorf("期望状态为已借出，实际%s", r.Status)
	}

	// 终态不可再取消
	if err := r.Cancel(notifiedAt.Add(2 * time.Hour)); err == nil {
		t.Error("终态取消期望失败")
	}
}

// TestReservation_FulfillWaiting 测试排队中不能直接履约
func TestReservation_FulfillWaiting(t *testing.T) {
	r := newTestReservation()

	if err := r.Fulfill(time.Now()); err == nil {
		t.Error("排队中直接履约期望失败")
	}
}

// TestReservation_Cancel 测试取消
func TestReservation_Cancel(t *testing.T) {
	// 排队中可取消
	r := newTestReservation()
	if err := r.Cancel(r.ReservedAt.Add(time.Hour)); err != nil {
		t.Fatalf("排队中取消失败: %v", err)
	}
	if r.Status != ReservationStatusCanceled {
		t.Errorf("期望状态为已取消，实际%s", r.Status)
	}

	// 到书待取也可取消
	r2 := newTestReservation()
	_ = r2.Notify(55, r2.ReservedAt.Add(time.Hour))
	if err := r2.Cancel(r2.ReservedAt.Add(2 * time.Hour)); err != nil {
		t.Fatalf("待取状态取消失败: %v", err)
	}
}

// TestReservation_HoldExpired 测试到书保留期判断
func TestReservation_HoldExpired(t *testing.T) {
	r := newTestReservation()

	// 排队中没有保留期概念
	if r.HoldExpired(r.ReservedAt.Add(100*24*time.Hour), 3) {
		t.Error("排队中不应判定保留期过期")
	}

	notifiedAt := r.ReservedAt.Add(time.Hour)
	_ = r.Notify(55, notifiedAt)

	if r.HoldExpired(notifiedAt.Add(3*24*time.Hour), 3) {
		t.Error("恰好3天不应过期")
	}
	if !r.HoldExpired(notifiedAt.Add(3*24*time.Hour+time.Second), 3) {
		t.Error("超过3天应判定过期")
	}
}

// TestReservationStatus_IsActive 测试活跃状态判断
func TestReservationStatus_IsActive(t *testing.T) {
	if !ReservationStatusWaiting.IsActive() || !ReservationStatusNotified.IsActive() {
		t.Error("waiting/notified应为活跃状态")
	}
	if ReservationStatusFulfilled.IsActive() || ReservationStatusCanceled.IsActive() {
		t.Error("fulfilled/canceled不应为活跃状态")
	}
}
