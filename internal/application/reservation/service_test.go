package reservation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiebiao/elibrary/internal/domain/book"
	"github.com/xiebiao/elibrary/internal/domain/notification"
	"github.com/xiebiao/elibrary/internal/domain/reservation"
	"github.com/xiebiao/elibrary/internal/domain/user"
	"github.com/xiebiao/elibrary/internal/infrastructure/config"
	"github.com/xiebiao/elibrary/internal/testutil"
	apperrors "github.com/xiebiao/elibrary/pkg/errors"
)

var testNow = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

// recordingNotifier 记录发布的事件,供测试断言
type recordingNotifier struct {
	events []*notification.Event
}

func (n *recordingNotifier) Publish(_ context.Context, event *notification.Event) error {
	n.events = append(n.events, event)
	return nil
}

type testEnv struct {
	svc             *Service
	userRepo        *testutil.MemUserRepo
	bookRepo        *testutil.MemBookRepo
	reservationRepo *testutil.MemReservationRepo
	notifier        *recordingNotifier
}

func newTestEnv() *testEnv {
	userRepo := testutil.NewMemUserRepo()
	bookRepo := testutil.NewMemBookRepo()
	reservationRepo := testutil.NewMemReservationRepo()
	notifier := &recordingNotifier{}

	svc := NewService(reservationRepo, userRepo, bookRepo, testutil.NewPassthroughTx(),
		notifier, config.CirculationConfig{ReservationExpiryDays: 3})
	svc.now = func() time.Time { return testNow }

	return &testEnv{
		svc:             svc,
		userRepo:        userRepo,
		bookRepo:        bookRepo,
		reservationRepo: reservationRepo,
		notifier:        notifier,
	}
}

func (env *testEnv) seedMember(email string) uint {
	return env.userRepo.Seed(&user.User{Email: email, Role: user.RoleMember})
}

func (env *testEnv) seedBook(isbn string) uint {
	return env.bookRepo.SeedBook(&book.Book{ISBN: isbn, Title: "测试书目"})
}

func TestReserve(t *testing.T) {
	ctx := context.Background()

	t.Run("正常预约进入排队", func(t *testing.T) {
		env := newTestEnv()
		userID := env.seedMember("reader@example.com")
		bookID := env.seedBook("9787111558422")

		r, err := env.svc.Reserve(ctx, userID, bookID)
		require.NoError(t, err)

		assert.Equal(t, reservation.ReservationStatusWaiting, r.Status)
		assert.Equal(t, testNow, r.ReservedAt)
		assert.Nil(t, r.ItemID)

		t.Logf("✓ 预约成功: reservation=%d", r.ID)
	})

	t.Run("重复预约同一书目被拒", func(t *testing.T) {
		env := newTestEnv()
		userID := env.seedMember("reader@example.com")
		bookID := env.seedBook("9787111558422")

		_, err := env.svc.Reserve(ctx, userID, bookID)
		require.NoError(t, err)

		_, err = env.svc.Reserve(ctx, userID, bookID)
		assert.ErrorIs(t, err, reservation.ErrDuplicateActive)
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeConflict))
	})

	t.Run("预约被取消后可再次预约", func(t *testing.T) {
		env := newTestEnv()
		userID := env.seedMember("reader@example.com")
		bookID := env.seedBook("9787111558422")

		r, err := env.svc.Reserve(ctx, userID, bookID)
		require.NoError(t, err)
		require.NoError(t, env.svc.Cancel(ctx, r.ID, userID, false))

		_, err = env.svc.Reserve(ctx, userID, bookID)
		assert.NoError(t, err)
	})

	t.Run("引用的资源不存在", func(t *testing.T) {
		env := newTestEnv()
		userID := env.seedMember("reader@example.com")
		bookID := env.seedBook("9787111558422")

		_, err := env.svc.Reserve(ctx, 999, bookID)
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeUserNotFound))

		_, err = env.svc.Reserve(ctx, userID, 999)
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeBookNotFound))
	})
}

func TestNotifyNext(t *testing.T) {
	ctx := context.Background()

	t.Run("按先来后到唤醒最早排队者", func(t *testing.T) {
		env := newTestEnv()
		bookID := env.seedBook("9787111558422")

		// 倒序预置:最早预约的是第三条记录
		env.reservationRepo.Seed(&reservation.Reservation{
			UserID: 1, BookID: bookID, ReservedAt: testNow.Add(-time.Hour),
			Status: reservation.ReservationStatusWaiting,
		})
		env.reservationRepo.Seed(&reservation.Reservation{
			UserID: 2, BookID: bookID, ReservedAt: testNow.Add(-2 * time.Hour),
			Status: reservation.ReservationStatusWaiting,
		})
		earliestID := env.reservationRepo.Seed(&reservation.Reservation{
			UserID: 3, BookID: bookID, ReservedAt: testNow.Add(-3 * time.Hour),
			Status: reservation.ReservationStatusWaiting,
		})

		notified, err := env.svc.NotifyNext(ctx, bookID, 42)
		require.NoError(t, err)
		require.NotNil(t, notified)

		assert.Equal(t, earliestID, notified.ID)
		assert.Equal(t, reservation.ReservationStatusNotified, notified.Status)
		require.NotNil(t, notified.ItemID)
		assert.Equal(t, uint(42), *notified.ItemID)
		require.NotNil(t, notified.NotifiedAt)
		assert.Equal(t, testNow, *notified.NotifiedAt)

		t.Logf("✓ FIFO唤醒: reservation=%d", notified.ID)
	})

	t.Run("同一时刻预约按ID兜底排序", func(t *testing.T) {
		env := newTestEnv()
		bookID := env.seedBook("9787111558422")
		sameTime := testNow.Add(-time.Hour)

		firstID := env.reservationRepo.Seed(&reservation.Reservation{
			UserID: 1, BookID: bookID, ReservedAt: sameTime,
			Status: reservation.ReservationStatusWaiting,
		})
		env.reservationRepo.Seed(&reservation.Reservation{
			UserID: 2, BookID: bookID, ReservedAt: sameTime,
			Status: reservation.ReservationStatusWaiting,
		})

		notified, err := env.svc.NotifyNext(ctx, bookID, 42)
		require.NoError(t, err)
		require.NotNil(t, notified)
		assert.Equal(t, firstID, notified.ID)
	})

	t.Run("队列为空返回nil", func(t *testing.T) {
		env := newTestEnv()
		bookID := env.seedBook("9787111558422")

		notified, err := env.svc.NotifyNext(ctx, bookID, 42)
		require.NoError(t, err)
		assert.Nil(t, notified)
	})
}

func TestCancelReservation(t *testing.T) {
	ctx := context.Background()

	t.Run("取消排队中的预约", func(t *testing.T) {
		env := newTestEnv()
		userID := env.seedMember("reader@example.com")
		bookID := env.seedBook("9787111558422")

		r, err := env.svc.Reserve(ctx, userID, bookID)
		require.NoError(t, err)

		require.NoError(t, env.svc.Cancel(ctx, r.ID, userID, false))

		canceled, err := env.reservationRepo.FindByID(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, reservation.ReservationStatusCanceled, canceled.Status)
	})

	t.Run("取消待取预约后唤醒下一位", func(t *testing.T) {
		env := newTestEnv()
		bookID := env.seedBook("9787111558422")
		itemID := uint(42)

		notifiedAt := testNow.Add(-time.Hour)
		holderID := env.reservationRepo.Seed(&reservation.Reservation{
			UserID: 1, BookID: bookID, ItemID: &itemID,
			ReservedAt: testNow.Add(-3 * time.Hour), NotifiedAt: &notifiedAt,
			Status: reservation.ReservationStatusNotified,
		})
		waiterID := env.reservationRepo.Seed(&reservation.Reservation{
			UserID: 2, BookID: bookID, ReservedAt: testNow.Add(-2 * time.Hour),
			Status: reservation.ReservationStatusWaiting,
		})

		require.NoError(t, env.svc.Cancel(ctx, holderID, 1, false))

		// 空出的副本顺位绑定给下一位排队者
		next, err := env.reservationRepo.FindByID(ctx, waiterID)
		require.NoError(t, err)
		assert.Equal(t, reservation.ReservationStatusNotified, next.Status)
		require.NotNil(t, next.ItemID)
		assert.Equal(t, itemID, *next.ItemID)

		// 唤醒伴随reservation_ready事件,与归还唤醒同一口径
		require.Len(t, env.notifier.events, 1)
		event := env.notifier.events[0]
		assert.Equal(t, notification.KindReservationReady, event.Kind)
		assert.Equal(t, uint(2), event.UserID)
		assert.Equal(t, next.ID, event.Payload["reservation_id"])
		assert.Equal(t, itemID, event.Payload["item_id"])

		t.Logf("✓ 顺位唤醒: %d → %d", holderID, waiterID)
	})

	t.Run("取消排队预约不发事件", func(t *testing.T) {
		env := newTestEnv()
		userID := env.seedMember("reader@example.com")
		bookID := env.seedBook("9787111558422")

		r, err := env.svc.Reserve(ctx, userID, bookID)
		require.NoError(t, err)
		require.NoError(t, env.svc.Cancel(ctx, r.ID, userID, false))

		assert.Empty(t, env.notifier.events, "排队中取消没有副本空出,不应发事件")
	})

	t.Run("非本人取消被拒而馆员可代取消", func(t *testing.T) {
		env := newTestEnv()
		userID := env.seedMember("reader@example.com")
		bookID := env.seedBook("9787111558422")

		r, err := env.svc.Reserve(ctx, userID, bookID)
		require.NoError(t, err)

		err = env.svc.Cancel(ctx, r.ID, userID+1, false)
		assert.ErrorIs(t, err, reservation.ErrNotOwner)

		err = env.svc.Cancel(ctx, r.ID, userID+1, true)
		assert.NoError(t, err)
	})

	t.Run("终态预约不可取消", func(t *testing.T) {
		env := newTestEnv()
		bookID := env.seedBook("9787111558422")

		resID := env.reservationRepo.Seed(&reservation.Reservation{
			UserID: 1, BookID: bookID, ReservedAt: testNow,
			Status: reservation.ReservationStatusFulfilled,
		})

		err := env.svc.Cancel(ctx, resID, 1, false)
		assert.ErrorIs(t, err, reservation.ErrInvalidTransition)
	})
}

func TestFulfillTx(t *testing.T) {
	ctx := context.Background()

	seedNotified := func(env *testEnv, userID, bookID, itemID uint) uint {
		notifiedAt := testNow.Add(-time.Hour)
		return env.reservationRepo.Seed(&reservation.Reservation{
			UserID: userID, BookID: bookID, ItemID: &itemID,
			ReservedAt: testNow.Add(-48 * time.Hour), NotifiedAt: &notifiedAt,
			Status: reservation.ReservationStatusNotified,
		})
	}

	t.Run("正常履约", func(t *testing.T) {
		env := newTestEnv()
		bookID := env.seedBook("9787111558422")
		resID := seedNotified(env, 1, bookID, 42)

		require.NoError(t, env.svc.FulfillTx(ctx, resID, 1, 42, testNow))

		r, err := env.reservationRepo.FindByID(ctx, resID)
		require.NoError(t, err)
		assert.Equal(t, reservation.ReservationStatusFulfilled, r.Status)
	})

	t.Run("他人预约不可履约", func(t *testing.T) {
		env := newTestEnv()
		bookID := env.seedBook("9787111558422")
		resID := seedNotified(env, 1, bookID, 42)

		err := env.svc.FulfillTx(ctx, resID, 2, 42, testNow)
		assert.ErrorIs(t, err, reservation.ErrNotOwner)
	})

	t.Run("排队中的预约不可履约", func(t *testing.T) {
		env := newTestEnv()
		bookID := env.seedBook("9787111558422")
		resID := env.reservationRepo.Seed(&reservation.Reservation{
			UserID: 1, BookID: bookID, ReservedAt: testNow,
			Status: reservation.ReservationStatusWaiting,
		})

		err := env.svc.FulfillTx(ctx, resID, 1, 42, testNow)
		assert.ErrorIs(t, err, reservation.ErrNotNotified)
	})

	t.Run("副本与绑定不符不可履约", func(t *testing.T) {
		env := newTestEnv()
		bookID := env.seedBook("9787111558422")
		resID := seedNotified(env, 1, bookID, 42)

		err := env.svc.FulfillTx(ctx, resID, 1, 43, testNow)
		assert.ErrorIs(t, err, reservation.ErrItemMismatch)
	})
}

func TestQueueDepth(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	bookID := env.seedBook("9787111558422")

	itemID := uint(42)
	notifiedAt := testNow.Add(-time.Hour)
	env.reservationRepo.Seed(&reservation.Reservation{
		UserID: 1, BookID: bookID, ReservedAt: testNow.Add(-2 * time.Hour),
		Status: reservation.ReservationStatusWaiting,
	})
	env.reservationRepo.Seed(&reservation.Reservation{
		UserID: 2, BookID: bookID, ItemID: &itemID,
		ReservedAt: testNow.Add(-3 * time.Hour), NotifiedAt: &notifiedAt,
		Status: reservation.ReservationStatusNotified,
	})
	// 终态不计入排队深度
	env.reservationRepo.Seed(&reservation.Reservation{
		UserID: 3, BookID: bookID, ReservedAt: testNow.Add(-4 * time.Hour),
		Status: reservation.ReservationStatusCanceled,
	})

	depth, err := env.svc.QueueDepth(ctx, bookID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), depth)
}
