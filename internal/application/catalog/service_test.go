package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiebiao/elibrary/internal/domain/book"
	"github.com/xiebiao/elibrary/internal/testutil"
)

// fakeCache 记录式缓存:断言Cache-Aside的读写与失效
type fakeCache struct {
	store       map[uint]*book.Book
	hits        int
	misses      int
	invalidated []uint
}

func newFakeCache() *fakeCache {
	return &fakeCache{store: make(map[uint]*book.Book)}
}

func (c *fakeCache) GetBook(ctx context.Context, bookID uint) (*book.Book, error) {
	b, ok := c.store[bookID]
	if !ok {
		c.misses++
		return nil, nil
	}
	c.hits++
	clone := *b
	return &clone, nil
}

func (c *fakeCache) SetBook(ctx context.Context, b *book.Book) error {
	clone := *b
	c.store[b.ID] = &clone
	return nil
}

func (c *fakeCache) InvalidateBook(ctx context.Context, bookID uint) error {
	delete(c.store, bookID)
	c.invalidated = append(c.invalidated, bookID)
	return nil
}

func newTestService() (*Service, *testutil.MemBookRepo, *fakeCache) {
	bookRepo := testutil.NewMemBookRepo()
	cache := newFakeCache()
	svc := NewService(bookRepo, testutil.NewPassthroughTx(), cache)
	return svc, bookRepo, cache
}

func TestCreateBook(t *testing.T) {
	ctx := context.Background()

	t.Run("建档并归一化ISBN", func(t *testing.T) {
		svc, _, _ := newTestService()

		b, err := svc.CreateBook(ctx, CreateBookRequest{
			ISBN:      "978-7-111-55842-2",
			Title:     "Go程序设计语言",
			Authors:   []string{"Alan Donovan", "Brian Kernighan"},
			Publisher: "机械工业出版社",
		})
		require.NoError(t, err)

		// 连字符剥离后落库
		assert.Equal(t, "9787111558422", b.ISBN)
		assert.Equal(t, 0, b.TotalCopies)
		assert.Equal(t, 0, b.AvailableCopies)

		t.Logf("✓ 建档成功: book=%d isbn=%s", b.ID, b.ISBN)
	})

	t.Run("ISBN-10带校验位X合法", func(t *testing.T) {
		svc, _, _ := newTestService()

		b, err := svc.CreateBook(ctx, CreateBookRequest{ISBN: "7-5063-3392-X", Title: "活着"})
		require.NoError(t, err)
		assert.Equal(t, "750633392X", b.ISBN)
	})

	t.Run("非法ISBN被拒", func(t *testing.T) {
		svc, _, _ := newTestService()

		for _, isbn := range []string{"12345", "97871115584221", "abcdefghij"} {
			_, err := svc.CreateBook(ctx, CreateBookRequest{ISBN: isbn, Title: "无效"})
			assert.ErrorIs(t, err, book.ErrInvalidISBN, "isbn=%s", isbn)
		}
	})

	t.Run("重复ISBN被拒", func(t *testing.T) {
		svc, _, _ := newTestService()

		_, err := svc.CreateBook(ctx, CreateBookRequest{ISBN: "9787111558422", Title: "第一本"})
		require.NoError(t, err)

		_, err = svc.CreateBook(ctx, CreateBookRequest{ISBN: "978-7-111-55842-2", Title: "第二本"})
		assert.ErrorIs(t, err, book.ErrISBNDuplicate)
	})
}

func TestAddItem(t *testing.T) {
	ctx := context.Background()

	t.Run("登记副本同步计数并删缓存", func(t *testing.T) {
		svc, bookRepo, cache := newTestService()

		b, err := svc.CreateBook(ctx, CreateBookRequest{ISBN: "9787111558422", Title: "Go程序设计语言"})
		require.NoError(t, err)

		item, err := svc.AddItem(ctx, AddItemRequest{
			BookID: b.ID, Barcode: "LIB-0001", Location: "3F-A12", Condition: "new",
		})
		require.NoError(t, err)
		assert.Equal(t, book.ItemStatusAvailable, item.Status)

		updated, err := bookRepo.FindByID(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, updated.TotalCopies)
		assert.Equal(t, 1, updated.AvailableCopies)

		assert.Contains(t, cache.invalidated, b.ID)

		t.Logf("✓ 副本登记: item=%d barcode=%s", item.ID, item.Barcode)
	})

	t.Run("条码重复被拒", func(t *testing.T) {
		svc, _, _ := newTestService()

		b, err := svc.CreateBook(ctx, CreateBookRequest{ISBN: "9787111558422", Title: "Go程序设计语言"})
		require.NoError(t, err)

		_, err = svc.AddItem(ctx, AddItemRequest{BookID: b.ID, Barcode: "LIB-0001"})
		require.NoError(t, err)
		_, err = svc.AddItem(ctx, AddItemRequest{BookID: b.ID, Barcode: "LIB-0001"})
		assert.ErrorIs(t, err, book.ErrBarcodeDuplicate)
	})

	t.Run("书目不存在被拒", func(t *testing.T) {
		svc, _, _ := newTestService()

		_, err := svc.AddItem(ctx, AddItemRequest{BookID: 999, Barcode: "LIB-0001"})
		assert.ErrorIs(t, err, book.ErrBookNotFound)
	})
}

func TestGetBook(t *testing.T) {
	ctx := context.Background()

	t.Run("未命中回源并回填", func(t *testing.T) {
		svc, _, cache := newTestService()

		b, err := svc.CreateBook(ctx, CreateBookRequest{ISBN: "9787111558422", Title: "Go程序设计语言"})
		require.NoError(t, err)

		got, err := svc.GetBook(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, b.ID, got.ID)
		assert.Equal(t, 1, cache.misses)

		// 第二次命中缓存
		_, err = svc.GetBook(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, cache.hits)

		t.Logf("✓ Cache-Aside: misses=%d hits=%d", cache.misses, cache.hits)
	})

	t.Run("书目不存在", func(t *testing.T) {
		svc, _, _ := newTestService()

		_, err := svc.GetBook(ctx, 999)
		assert.ErrorIs(t, err, book.ErrBookNotFound)
	})

	t.Run("未启用缓存时直接回源", func(t *testing.T) {
		bookRepo := testutil.NewMemBookRepo()
		svc := NewService(bookRepo, testutil.NewPassthroughTx(), nil)

		b, err := svc.CreateBook(ctx, CreateBookRequest{ISBN: "9787111558422", Title: "Go程序设计语言"})
		require.NoError(t, err)

		got, err := svc.GetBook(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, b.ID, got.ID)
	})
}

func TestUpdateBook(t *testing.T) {
	ctx := context.Background()
	svc, _, cache := newTestService()

	b, err := svc.CreateBook(ctx, CreateBookRequest{ISBN: "9787111558422", Title: "旧书名", Publisher: "旧出版社"})
	require.NoError(t, err)

	updated, err := svc.UpdateBook(ctx, b.ID, "新书名", "", "新描述")
	require.NoError(t, err)

	assert.Equal(t, "新书名", updated.Title)
	assert.Equal(t, "旧出版社", updated.Publisher) // 空串表示不更新
	assert.Equal(t, "新描述", updated.Description)
	assert.Contains(t, cache.invalidated, b.ID)
}

func TestListBooks(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()

	for _, isbn := range []string{"9787111558422", "9787115428028", "9787121362132"} {
		_, err := svc.CreateBook(ctx, CreateBookRequest{ISBN: isbn, Title: "书目" + isbn})
		require.NoError(t, err)
	}

	t.Run("分页查询", func(t *testing.T) {
		books, total, err := svc.ListBooks(ctx, book.ListParams{Page: 1, PageSize: 2})
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)
		assert.Len(t, books, 2)
	})

	t.Run("非法分页参数回退默认值", func(t *testing.T) {
		books, total, err := svc.ListBooks(ctx, book.ListParams{Page: 0, PageSize: -1})
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)
		assert.Len(t, books, 3)
	})
}

func TestAvailableItems(t *testing.T) {
	ctx := context.Background()
	svc, bookRepo, _ := newTestService()

	b, err := svc.CreateBook(ctx, CreateBookRequest{ISBN: "9787111558422", Title: "Go程序设计语言"})
	require.NoError(t, err)

	_, err = svc.AddItem(ctx, AddItemRequest{BookID: b.ID, Barcode: "LIB-0001"})
	require.NoError(t, err)
	bookRepo.SeedItem(&book.BookItem{BookID: b.ID, Barcode: "LIB-0002", Status: book.ItemStatusBorrowed})

	items, err := svc.AvailableItems(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "LIB-0001", items[0].Barcode)

	found, err := svc.FindItemByBarcode(ctx, "LIB-0002")
	require.NoError(t, err)
	assert.Equal(t, book.ItemStatusBorrowed, found.Status)
}
