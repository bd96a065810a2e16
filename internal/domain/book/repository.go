package book

import (
	"context"
)

// Repository 图书仓储接口(依赖倒置原则)
// 设计说明:
// 1. 由domain层定义接口,infrastructure层实现
// 2. 便于Mock测试,不依赖具体数据库实现
// 3. 书目(Book)与副本(BookItem)同属一个聚合,共用一个仓储
type Repository interface {
	// Create 创建书目
	Create(ctx context.Context, book *Book) error

	// FindByID 根据ID查找书目
	FindByID(ctx context.Context, id uint) (*Book, error)

	// FindByISBN 根据ISBN查找书目
	FindByISBN(ctx context.Context, isbn string) (*Book, error)

	// Update 更新书目信息
	Update(ctx context.Context, book *Book) error

	// List 分页查询书目列表
	// params包含:page, pageSize, keyword, sortBy等
	List(ctx context.Context, params ListParams) ([]*Book, int64, error)

	// LockByID 悲观锁查询书目(SELECT FOR UPDATE)
	// 借书/归还时锁定书目行,防止可借册数并发错乱
	// 必须在事务Context中调用
	LockByID(ctx context.Context, id uint) (*Book, error)

	// AdjustAvailableCopies 原子调整可借册数(delta可为负)
	// 守卫表达式 available_copies + ? >= 0,扣减至负数时返回ErrNoAvailableCopy
	// 只允许在改变副本状态的同一事务内调用
	AdjustAvailableCopies(ctx context.Context, id uint, delta int) error

	// AddItem 登记新副本并同步递增TotalCopies/AvailableCopies
	// 条码冲突返回ErrBarcodeDuplicate
	AddItem(ctx context.Context, item *BookItem) error

	// FindItemByID 根据ID查找副本
	FindItemByID(ctx context.Context, id uint) (*BookItem, error)

	// FindItemByBarcode 根据条码查找副本
	FindItemByBarcode(ctx context.Context, barcode string) (*BookItem, error)

	// LockItemByID 悲观锁查询副本
	// 必须在事务Context中调用
	LockItemByID(ctx context.Context, id uint) (*BookItem, error)

	// UpdateItem 更新副本(状态流转在同一事务内落库)
	UpdateItem(ctx context.Context, item *BookItem) error

	// AvailableItems 查询书目的可借副本,按条码升序
	// 预约到书绑定副本时取第一个
	AvailableItems(ctx context.Context, bookID uint) ([]*BookItem, error)

	// CountItemsByStatus 按状态统计副本数(计数修复工具使用)
	CountItemsByStatus(ctx context.Context, bookID uint, status ItemStatus) (int, error)
}

// ListParams 列表查询参数
type ListParams struct {
	Page     int    // 页码(从1开始)
	PageSize int    // 每页数量
	Keyword  string // 搜索关键词(搜索标题、作者、出版社)
	SortBy   string // 排序字段(title_asc, created_at_desc)
}
