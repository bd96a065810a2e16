// Package catalog 实现书目管理用例:建档、登记副本、列表与详情查询
//
// 详情查询走Cache-Aside:先读Redis,未命中回源数据库再回填;
// 改变可借册数的写路径在事务提交后删除缓存(删除优于更新)。
package catalog

import (
	"context"
	"log"
	"regexp"
	"time"

	"github.com/xiebiao/elibrary/internal/domain/book"
)

// Transactor 事务执行接口
type Transactor interface {
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
	TransactionWithRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error
}

// Cache 书目缓存接口(redis.CatalogCache实现)
// GetBook未命中返回(nil, nil),调用方回源数据库
type Cache interface {
	GetBook(ctx context.Context, bookID uint) (*book.Book, error)
	SetBook(ctx context.Context, b *book.Book) error
	InvalidateBook(ctx context.Context, bookID uint) error
}

// isbnRegex ISBN-10或ISBN-13(允许连字符,校验前先剥掉)
var isbnRegex = regexp.MustCompile(`^(\d{9}[\dXx]|\d{13})$`)

var hyphenRegex = regexp.MustCompile(`[-\s]`)

// Service 书目管理服务
type Service struct {
	bookRepo book.Repository
	tx       Transactor
	cache    Cache // 可为nil(未启用缓存)
}

// NewService 创建书目管理服务
func NewService(bookRepo book.Repository, tx Transactor, cache Cache) *Service {
	return &Service{
		bookRepo: bookRepo,
		tx:       tx,
		cache:    cache,
	}
}

// CreateBookRequest 书目建档请求DTO
type CreateBookRequest struct {
	ISBN        string
	Title       string
	Authors     []string
	Categories  []string
	Publisher   string
	PublishedAt *time.Time
	CoverURL    string
	Description string
}

// CreateBook 书目建档(馆员操作)
// 业务规则:
// 1. ISBN必须是合法的ISBN-10/ISBN-13(DuplicateEntry由唯一索引兜底)
// 2. 新书目册数从0开始,馆藏通过AddItem逐册登记
func (s *Service) CreateBook(ctx context.Context, req CreateBookRequest) (*book.Book, error) {
	normalized := hyphenRegex.ReplaceAllString(req.ISBN, "")
	if !isbnRegex.MatchString(normalized) {
		return nil, book.ErrInvalidISBN
	}

	b := book.NewBook(normalized, req.Title, req.Authors, req.Categories,
		req.Publisher, req.PublishedAt, req.CoverURL, req.Description)

	if err := s.bookRepo.Create(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// AddItemRequest 副本登记请求DTO
type AddItemRequest struct {
	BookID    uint
	Barcode   string
	Location  string // 馆藏位置(如 3F-A12)
	Condition string // 品相(new/good/worn)
}

// AddItem 登记新副本(馆员操作)
// 事务内:校验书目存在→插入副本→TotalCopies/AvailableCopies同步+1
// 提交后删除书目详情缓存
func (s *Service) AddItem(ctx context.Context, req AddItemRequest) (*book.BookItem, error) {
	var item *book.BookItem

	err := s.tx.TransactionWithRetry(ctx, "add_item", func(txCtx context.Context) error {
		if _, err := s.bookRepo.FindByID(txCtx, req.BookID); err != nil {
			return err
		}

		item = book.NewBookItem(req.BookID, req.Barcode, req.Location, req.Condition)
		return s.bookRepo.AddItem(txCtx, item)
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, req.BookID)
	return item, nil
}

// UpdateBook 更新书目基本信息(馆员操作)
func (s *Service) UpdateBook(ctx context.Context, bookID uint, title, publisher, description string) (*book.Book, error) {
	var updated *book.Book

	err := s.tx.Transaction(ctx, func(txCtx context.Context) error {
		b, err := s.bookRepo.LockByID(txCtx, bookID)
		if err != nil {
			return err
		}
		b.UpdateInfo(title, publisher, description)
		updated = b
		return s.bookRepo.Update(txCtx, b)
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, bookID)
	return updated, nil
}

// GetBook 查询书目详情(Cache-Aside)
// 缓存回填失败只记日志,详情照常返回
func (s *Service) GetBook(ctx context.Context, bookID uint) (*book.Book, error) {
	if s.cache != nil {
		cached, err := s.cache.GetBook(ctx, bookID)
		if err != nil {
			log.Printf("⚠️ 读取书目缓存失败: book=%d err=%v", bookID, err)
		} else if cached != nil {
			return cached, nil
		}
	}

	b, err := s.bookRepo.FindByID(ctx, bookID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetBook(ctx, b); err != nil {
			log.Printf("⚠️ 回填书目缓存失败: book=%d err=%v", bookID, err)
		}
	}
	return b, nil
}

// ListBooks 分页查询书目列表
// 参数默认值:page默认1,pageSize默认20,最大100
func (s *Service) ListBooks(ctx context.Context, params book.ListParams) ([]*book.Book, int64, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 {
		params.PageSize = 20
	}
	if params.PageSize > 100 {
		params.PageSize = 100
	}
	return s.bookRepo.List(ctx, params)
}

// AvailableItems 查询书目的可借副本(借出前选取副本用)
func (s *Service) AvailableItems(ctx context.Context, bookID uint) ([]*book.BookItem, error) {
	return s.bookRepo.AvailableItems(ctx, bookID)
}

// FindItemByBarcode 按馆藏条码查找副本(馆员扫码入口)
func (s *Service) FindItemByBarcode(ctx context.Context, barcode string) (*book.BookItem, error) {
	return s.bookRepo.FindItemByBarcode(ctx, barcode)
}

func (s *Service) invalidate(ctx context.Context, bookID uint) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateBook(ctx, bookID); err != nil {
		log.Printf("⚠️ 删除书目缓存失败: book=%d err=%v", bookID, err)
	}
}
