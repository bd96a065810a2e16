package circulation

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appreservation "github.com/xiebiao/elibrary/internal/application/reservation"
	"github.com/xiebiao/elibrary/internal/domain/book"
	"github.com/xiebiao/elibrary/internal/domain/loan"
	"github.com/xiebiao/elibrary/internal/domain/reservation"
	"github.com/xiebiao/elibrary/internal/domain/user"
	"github.com/xiebiao/elibrary/internal/infrastructure/config"
	"github.com/xiebiao/elibrary/internal/testutil"
	apperrors "github.com/xiebiao/elibrary/pkg/errors"
	"github.com/xiebiao/elibrary/pkg/metrics"
)

func TestMain(m *testing.M) {
	metrics.InitMetrics()
	os.Exit(m.Run())
}

// 测试基准时间:固定时钟,到期日/罚金可精确断言
var testNow = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

func testPolicy() config.CirculationConfig {
	return config.CirculationConfig{
		LoanPeriodDays:        15,
		MaxRenewals:           2,
		RenewalExtensionDays:  15,
		FinePerDay:            100,
		MaxBorrowMember:       3,
		MaxBorrowLibrarian:    10,
		ReservationExpiryDays: 3,
		ReconcileBatchSize:    100,
		DueSoonDays:           2,
		TxMaxRetries:          3,
	}
}

// testEnv 引擎测试夹具:内存仓储 + 真实的预约服务作Waker
type testEnv struct {
	engine          *Engine
	userRepo        *testutil.MemUserRepo
	bookRepo        *testutil.MemBookRepo
	loanRepo        *testutil.MemLoanRepo
	reservationRepo *testutil.MemReservationRepo
}

func newTestEnv() *testEnv {
	userRepo := testutil.NewMemUserRepo()
	bookRepo := testutil.NewMemBookRepo()
	loanRepo := testutil.NewMemLoanRepo()
	reservationRepo := testutil.NewMemReservationRepo()
	tx := testutil.NewPassthroughTx()

	waker := appreservation.NewService(reservationRepo, userRepo, bookRepo, tx, nil, testPolicy())
	engine := NewEngine(userRepo, bookRepo, loanRepo, tx, waker, nil, nil, testPolicy())
	engine.now = func() time.Time { return testNow }

	return &testEnv{
		engine:          engine,
		userRepo:        userRepo,
		bookRepo:        bookRepo,
		loanRepo:        loanRepo,
		reservationRepo: reservationRepo,
	}
}

func (env *testEnv) seedMember(email string) uint {
	return env.userRepo.Seed(&user.User{Email: email, Nickname: "测试会员", Role: user.RoleMember})
}

func (env *testEnv) seedBookWithItem(isbn, barcode string) (bookID, itemID uint) {
	bookID = env.bookRepo.SeedBook(&book.Book{ISBN: isbn, Title: "Go程序设计语言"})
	itemID = env.bookRepo.SeedItem(&book.BookItem{
		BookID:  bookID,
		Barcode: barcode,
		Status:  book.ItemStatusAvailable,
	})
	return bookID, itemID
}

func TestCheckout(t *testing.T) {
	ctx := context.Background()

	t.Run("正常借出", func(t *testing.T) {
		env := newTestEnv()
		userID := env.seedMember("reader@example.com")
		bookID, itemID := env.seedBookWithItem("9787111558422", "LIB-0001")

		l, err := env.engine.Checkout(ctx, CheckoutRequest{UserID: userID, BookID: bookID, ItemID: itemID})
		require.NoError(t, err)
		require.NotNil(t, l)

		assert.Equal(t, userID, l.UserID)
		assert.Equal(t, itemID, l.ItemID)
		assert.Equal(t, loan.LoanStatusBorrowed, l.Status)
		assert.Equal(t, testNow.AddDate(0, 0, 15), l.DueDate)

		// 副本、派生计数同事务联动
		item, err := env.bookRepo.FindItemByID(ctx, itemID)
		require.NoError(t, err)
		assert.Equal(t, book.ItemStatusBorrowed, item.Status)

		b, err := env.bookRepo.FindByID(ctx, bookID)
		require.NoError(t, err)
		assert.Equal(t, 0, b.AvailableCopies)

		u, err := env.userRepo.FindByID(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, 1, u.BorrowedCount)

		t.Logf("✓ 借出成功: loan=%d due=%s", l.ID, l.DueDate.Format("2006-01-02"))
	})

	t.Run("超出借阅上限", func(t *testing.T) {
		env := newTestEnv()
		userID := env.userRepo.Seed(&user.User{
			Email:         "busy@example.com",
			Role:          user.RoleMember,
			BorrowedCount: 3, // 会员上限3本
		})
		bookID, itemID := env.seedBookWithItem("9787111558422", "LIB-0001")

		_, err := env.engine.Checkout(ctx, CheckoutRequest{UserID: userID, BookID: bookID, ItemID: itemID})
		require.Error(t, err)
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeLimitExceeded))
		assert.Contains(t, apperrors.GetAppError(err).Message, "3")

		// 失败的借出不留痕迹
		count, err := env.loanRepo.CountActiveByUser(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, 0, count)

		t.Logf("✓ 上限拦截: %v", err)
	})

	t.Run("馆员上限高于会员", func(t *testing.T) {
		env := newTestEnv()
		userID := env.userRepo.Seed(&user.User{
			Email:         "staff@example.com",
			Role:          user.RoleLibrarian,
			BorrowedCount: 3, // 对馆员(上限10)不构成拦截
		})
		bookID, itemID := env.seedBookWithItem("9787111558422", "LIB-0001")

		_, err := env.engine.Checkout(ctx, CheckoutRequest{UserID: userID, BookID: bookID, ItemID: itemID})
		assert.NoError(t, err)
	})

	t.Run("副本不属于该书目", func(t *testing.T) {
		env := newTestEnv()
		userID := env.seedMember("reader@example.com")
		bookID, _ := env.seedBookWithItem("9787111558422", "LIB-0001")
		_, otherItemID := env.seedBookWithItem("9787115428028", "LIB-0002")

		_, err := env.engine.Checkout(ctx, CheckoutRequest{UserID: userID, BookID: bookID, ItemID: otherItemID})
		assert.ErrorIs(t, err, book.ErrItemBookMismatch)
	})

	t.Run("副本已被借出", func(t *testing.T) {
		env := newTestEnv()
		aliceID := env.seedMember("alice@example.com")
		bobID := env.seedMember("bob@example.com")
		bookID, itemID := env.seedBookWithItem("9787111558422", "LIB-0001")

		_, err := env.engine.Checkout(ctx, CheckoutRequest{UserID: aliceID, BookID: bookID, ItemID: itemID})
		require.NoError(t, err)

		// 同一副本第二人借出被拒
		_, err = env.engine.Checkout(ctx, CheckoutRequest{UserID: bobID, BookID: bookID, ItemID: itemID})
		assert.ErrorIs(t, err, book.ErrItemNotAvailable)
	})

	t.Run("计数漂移时守卫兜底", func(t *testing.T) {
		env := newTestEnv()
		userID := env.seedMember("reader@example.com")
		bookID, itemID := env.seedBookWithItem("9787111558422", "LIB-0001")

		// 模拟可借册数与副本状态不一致(副本在馆但计数已归零)
		require.NoError(t, env.bookRepo.AdjustAvailableCopies(ctx, bookID, -1))

		_, err := env.engine.Checkout(ctx, CheckoutRequest{UserID: userID, BookID: bookID, ItemID: itemID})
		assert.ErrorIs(t, err, book.ErrNoAvailableCopy)
	})

	t.Run("引用的资源不存在", func(t *testing.T) {
		env := newTestEnv()
		userID := env.seedMember("reader@example.com")
		bookID, itemID := env.seedBookWithItem("9787111558422", "LIB-0001")

		_, err := env.engine.Checkout(ctx, CheckoutRequest{UserID: 999, BookID: bookID, ItemID: itemID})
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeUserNotFound))

		_, err = env.engine.Checkout(ctx, CheckoutRequest{UserID: userID, BookID: bookID, ItemID: 999})
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeItemNotFound))
	})
}

func TestCheckoutFulfillingReservation(t *testing.T) {
	ctx := context.Background()

	t.Run("凭预约取书", func(t *testing.T) {
		env := newTestEnv()
		userID := env.seedMember("reader@example.com")
		bookID, itemID := env.seedBookWithItem("9787111558422", "LIB-0001")

		notifiedAt := testNow.Add(-time.Hour)
		resID := env.reservationRepo.Seed(&reservation.Reservation{
			UserID:     userID,
			BookID:     bookID,
			ItemID:     &itemID,
			ReservedAt: testNow.Add(-48 * time.Hour),
			NotifiedAt: &notifiedAt,
			Status:     reservation.ReservationStatusNotified,
		})

		l, err := env.engine.Checkout(ctx, CheckoutRequest{
			UserID:                userID,
			BookID:                bookID,
			ItemID:                itemID,
			FulfillsReservationID: &resID,
		})
		require.NoError(t, err)
		assert.Equal(t, loan.LoanStatusBorrowed, l.Status)

		// 同一事务内预约转为已借出
		r, err := env.reservationRepo.FindByID(ctx, resID)
		require.NoError(t, err)
		assert.Equal(t, reservation.ReservationStatusFulfilled, r.Status)

		t.Logf("✓ 预约履约: reservation=%d loan=%d", resID, l.ID)
	})

	t.Run("取书副本与预约绑定不符", func(t *testing.T) {
		env := newTestEnv()
		userID := env.seedMember("reader@example.com")
		bookID, itemID := env.seedBookWithItem("9787111558422", "LIB-0001")
		boundItemID := itemID + 100 // 预约绑定的是另一册

		notifiedAt := testNow.Add(-time.Hour)
		resID := env.reservationRepo.Seed(&reservation.Reservation{
			UserID:     userID,
			BookID:     bookID,
			ItemID:     &boundItemID,
			ReservedAt: testNow.Add(-48 * time.Hour),
			NotifiedAt: &notifiedAt,
			Status:     reservation.ReservationStatusNotified,
		})

		_, err := env.engine.Checkout(ctx, CheckoutRequest{
			UserID:                userID,
			BookID:                bookID,
			ItemID:                itemID,
			FulfillsReservationID: &resID,
		})
		assert.ErrorIs(t, err, reservation.ErrItemMismatch)
	})

	t.Run("他人的预约不能代取", func(t *testing.T) {
		env := newTestEnv()
		aliceID := env.seedMember("alice@example.com")
		bobID := env.seedMember("bob@example.com")
		bookID, itemID := env.seedBookWithItem("9787111558422", "LIB-0001")

		notifiedAt := testNow.Add(-time.Hour)
		resID := env.reservationRepo.Seed(&reservation.Reservation{
			UserID:     aliceID,
			BookID:     bookID,
			ItemID:     &itemID,
			ReservedAt: testNow.Add(-48 * time.Hour),
			NotifiedAt: &notifiedAt,
			Status:     reservation.ReservationStatusNotified,
		})

		_, err := env.engine.Checkout(ctx, CheckoutRequest{
			UserID:                bobID,
			BookID:                bookID,
			ItemID:                itemID,
			FulfillsReservationID: &resID,
		})
		assert.ErrorIs(t, err, reservation.ErrNotOwner)
	})
}

func TestReturn(t *testing.T) {
	ctx := context.Background()

	t.Run("按期归还无罚金", func(t *testing.T) {
		env := newTestEnv()
		userID := env.seedMember("reader@example.com")
		bookID, itemID := env.seedBookWithItem("9787111558422", "LIB-0001")

		l, err := env.engine.Checkout(ctx, CheckoutRequest{UserID: userID, BookID: bookID, ItemID: itemID})
		require.NoError(t, err)

		resp, err := env.engine.Return(ctx, ReturnRequest{LoanID: l.ID, ActorID: userID})
		require.NoError(t, err)

		assert.Equal(t, loan.LoanStatusReturned, resp.Loan.Status)
		assert.Equal(t, int64(0), resp.Loan.Fine)
		assert.Nil(t, resp.NotifiedReservation)

		// 副本回到在馆,计数回调
		item, err := env.bookRepo.FindItemByID(ctx, itemID)
		require.NoError(t, err)
		assert.Equal(t, book.ItemStatusAvailable, item.Status)

		b, err := env.bookRepo.FindByID(ctx, bookID)
		require.NoError(t, err)
		assert.Equal(t, 1, b.AvailableCopies)

		u, err := env.userRepo.FindByID(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, 0, u.BorrowedCount)

		t.Logf("✓ 归还成功: loan=%d fine=%d", resp.Loan.ID, resp.Loan.Fine)
	})

	t.Run("逾期归还按天计罚金", func(t *testing.T) {
		env := newTestEnv()
		userID := env.userRepo.Seed(&user.User{
			Email:         "late@example.com",
			Role:          user.RoleMember,
			BorrowedCount: 1,
		})
		bookID := env.bookRepo.SeedBook(&book.Book{ISBN: "9787111558422", Title: "Go程序设计语言"})
		itemID := env.bookRepo.SeedItem(&book.BookItem{
			BookID: bookID, Barcode: "LIB-0001", Status: book.ItemStatusBorrowed,
		})

		// 逾期2天1小时:向上取整计3天,罚金300分
		loanID := env.loanRepo.Seed(&loan.Loan{
			UserID:    userID,
			ItemID:    itemID,
			BookID:    bookID,
			IssueDate: testNow.AddDate(0, 0, -18),
			DueDate:   testNow.Add(-49 * time.Hour),
			Status:    loan.LoanStatusBorrowed,
		})

		resp, err := env.engine.Return(ctx, ReturnRequest{LoanID: loanID, ActorID: userID})
		require.NoError(t, err)
		assert.Equal(t, int64(300), resp.Loan.Fine)
		assert.Equal(t, loan.LoanStatusReturned, resp.Loan.Status)

		t.Logf("✓ 逾期罚金: fine=%d分", resp.Loan.Fine)
	})

	t.Run("重复归还被拒", func(t *testing.T) {
		env := newTestEnv()
		userID := env.seedMember("reader@example.com")
		bookID, itemID := env.seedBookWithItem("9787111558422", "LIB-0001")

		l, err := env.engine.Checkout(ctx, CheckoutRequest{UserID: userID, BookID: bookID, ItemID: itemID})
		require.NoError(t, err)

		_, err = env.engine.Return(ctx, ReturnRequest{LoanID: l.ID, ActorID: userID})
		require.NoError(t, err)

		_, err = env.engine.Return(ctx, ReturnRequest{LoanID: l.ID, ActorID: userID})
		assert.ErrorIs(t, err, loan.ErrAlreadyReturned)
	})

	t.Run("非本人归还被拒而馆员可代还", func(t *testing.T) {
		env := newTestEnv()
		userID := env.seedMember("reader@example.com")
		otherID := env.seedMember("other@example.com")
		bookID, itemID := env.seedBookWithItem("9787111558422", "LIB-0001")

		l, err := env.engine.Checkout(ctx, CheckoutRequest{UserID: userID, BookID: bookID, ItemID: itemID})
		require.NoError(t, err)

		_, err = env.engine.Return(ctx, ReturnRequest{LoanID: l.ID, ActorID: otherID})
		assert.ErrorIs(t, err, loan.ErrNotOwner)

		_, err = env.engine.Return(ctx, ReturnRequest{LoanID: l.ID, ActorID: otherID, IsLibrarian: true})
		assert.NoError(t, err)
	})

	t.Run("归还唤醒排队预约", func(t *testing.T) {
		env := newTestEnv()
		readerID := env.seedMember("reader@example.com")
		waiterID := env.seedMember("waiter@example.com")
		bookID, itemID := env.seedBookWithItem("9787111558422", "LIB-0001")

		l, err := env.engine.Checkout(ctx, CheckoutRequest{UserID: readerID, BookID: bookID, ItemID: itemID})
		require.NoError(t, err)

		resID := env.reservationRepo.Seed(&reservation.Reservation{
			UserID:     waiterID,
			BookID:     bookID,
			ReservedAt: testNow.Add(-time.Hour),
			Status:     reservation.ReservationStatusWaiting,
		})

		resp, err := env.engine.Return(ctx, ReturnRequest{LoanID: l.ID, ActorID: readerID})
		require.NoError(t, err)

		require.NotNil(t, resp.NotifiedReservation)
		assert.Equal(t, resID, resp.NotifiedReservation.ID)
		assert.Equal(t, reservation.ReservationStatusNotified, resp.NotifiedReservation.Status)
		require.NotNil(t, resp.NotifiedReservation.ItemID)
		assert.Equal(t, itemID, *resp.NotifiedReservation.ItemID)

		t.Logf("✓ 唤醒排队者: reservation=%d item=%d", resID, itemID)
	})
}

func TestRenew(t *testing.T) {
	ctx := context.Background()

	t.Run("正常续借顺延到期日", func(t *testing.T) {
		env := newTestEnv()
		userID := env.seedMember("reader@example.com")
		bookID, itemID := env.seedBookWithItem("9787111558422", "LIB-0001")

		l, err := env.engine.Checkout(ctx, CheckoutRequest{UserID: userID, BookID: bookID, ItemID: itemID})
		require.NoError(t, err)
		originalDue := l.DueDate

		renewed, err := env.engine.Renew(ctx, RenewRequest{LoanID: l.ID, ActorID: userID})
		require.NoError(t, err)

		// 新到期日从当前到期日顺延,不从续借时刻起算
		assert.Equal(t, originalDue.AddDate(0, 0, 15), renewed.DueDate)
		assert.Equal(t, 1, renewed.RenewCount)

		t.Logf("✓ 续借成功: due %s → %s", originalDue.Format("2006-01-02"), renewed.DueDate.Format("2006-01-02"))
	})

	t.Run("续借次数达上限被拒", func(t *testing.T) {
		env := newTestEnv()
		userID := env.seedMember("reader@example.com")
		bookID, itemID := env.seedBookWithItem("9787111558422", "LIB-0001")

		loanID := env.loanRepo.Seed(&loan.Loan{
			UserID:     userID,
			ItemID:     itemID,
			BookID:     bookID,
			DueDate:    testNow.AddDate(0, 0, 10),
			Status:     loan.LoanStatusBorrowed,
			RenewCount: 2, // 已达上限
		})

		_, err := env.engine.Renew(ctx, RenewRequest{LoanID: loanID, ActorID: userID})
		require.Error(t, err)
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeLimitExceeded))
		assert.Contains(t, apperrors.GetAppError(err).Message, "2")
	})

	t.Run("已归还不可续借", func(t *testing.T) {
		env := newTestEnv()
		userID := env.seedMember("reader@example.com")
		bookID, itemID := env.seedBookWithItem("9787111558422", "LIB-0001")

		l, err := env.engine.Checkout(ctx, CheckoutRequest{UserID: userID, BookID: bookID, ItemID: itemID})
		require.NoError(t, err)
		_, err = env.engine.Return(ctx, ReturnRequest{LoanID: l.ID, ActorID: userID})
		require.NoError(t, err)

		_, err = env.engine.Renew(ctx, RenewRequest{LoanID: l.ID, ActorID: userID})
		assert.ErrorIs(t, err, loan.ErrAlreadyReturned)
	})

	t.Run("非本人续借被拒", func(t *testing.T) {
		env := newTestEnv()
		userID := env.seedMember("reader@example.com")
		otherID := env.seedMember("other@example.com")
		bookID, itemID := env.seedBookWithItem("9787111558422", "LIB-0001")

		l, err := env.engine.Checkout(ctx, CheckoutRequest{UserID: userID, BookID: bookID, ItemID: itemID})
		require.NoError(t, err)

		_, err = env.engine.Renew(ctx, RenewRequest{LoanID: l.ID, ActorID: otherID})
		assert.ErrorIs(t, err, loan.ErrNotOwner)
	})

	t.Run("逾期借阅续借不清罚金", func(t *testing.T) {
		env := newTestEnv()
		userID := env.seedMember("reader@example.com")
		bookID, itemID := env.seedBookWithItem("9787111558422", "LIB-0001")

		loanID := env.loanRepo.Seed(&loan.Loan{
			UserID:      userID,
			ItemID:      itemID,
			BookID:      bookID,
			DueDate:     testNow.AddDate(0, 0, -2),
			Status:      loan.LoanStatusOverdue,
			Fine:        200,
			DaysOverdue: 2,
		})

		renewed, err := env.engine.Renew(ctx, RenewRequest{LoanID: loanID, ActorID: userID})
		require.NoError(t, err)
		assert.Equal(t, int64(200), renewed.Fine)
		assert.Equal(t, testNow.AddDate(0, 0, 13), renewed.DueDate)
	})
}

func TestListLoans(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	userID := env.seedMember("reader@example.com")
	bookID, itemID := env.seedBookWithItem("9787111558422", "LIB-0001")

	l, err := env.engine.Checkout(ctx, CheckoutRequest{UserID: userID, BookID: bookID, ItemID: itemID})
	require.NoError(t, err)
	_, err = env.engine.Return(ctx, ReturnRequest{LoanID: l.ID, ActorID: userID})
	require.NoError(t, err)

	all, total, err := env.engine.ListLoans(ctx, userID, false, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, all, 1)

	active, total, err := env.engine.ListLoans(ctx, userID, true, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
	assert.Empty(t, active)
}
