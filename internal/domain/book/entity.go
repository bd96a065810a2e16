package book

import (
	"time"
)

// ItemStatus 图书副本状态
type ItemStatus int

const (
	ItemStatusAvailable ItemStatus = 1 // 在馆可借
	ItemStatusBorrowed  ItemStatus = 2 // 已借出
)

// String 实现Stringer接口
func (s ItemStatus) String() string {
	switch s {
	case ItemStatusAvailable:
		return "available"
	case ItemStatusBorrowed:
		return "borrowed"
	default:
		return "unknown"
	}
}

// Book 图书实体(聚合根)
// DDD设计说明:
// 1. Book是书目层面的记录,物理馆藏由BookItem表示(一书多册)
// 2. AvailableCopies是派生缓存,不变量:
//    AvailableCopies == count(BookItem where bookId=ID and status=available)
//    只允许在改变副本状态的同一事务内调整
// 3. ISBN作为业务唯一标识(数据库层保证唯一性)
// 4. Authors/Categories为多值字段,存储层以JSON列落库
type Book struct {
	ID              uint
	ISBN            string   // ISBN号(国际标准书号)
	Title           string   // 书名
	Authors         []string // 作者(可多人)
	Categories      []string // 分类标签
	Publisher       string   // 出版社
	TotalCopies     int      // 馆藏总册数
	AvailableCopies int      // 可借册数(派生缓存)
	PublishedAt     *time.Time
	CoverURL        string // 封面图片URL
	Description     string // 图书描述
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewBook 创建新书目(工厂方法)
// 新建书目时尚无馆藏副本,册数从0开始,通过AddItem逐册登记
func NewBook(isbn, title string, authors, categories []string, publisher string, publishedAt *time.Time, coverURL, description string) *Book {
	now := time.Now()
	return &Book{
		ISBN:            isbn,
		Title:           title,
		Authors:         authors,
		Categories:      categories,
		Publisher:       publisher,
		TotalCopies:     0,
		AvailableCopies: 0,
		PublishedAt:     publishedAt,
		CoverURL:        coverURL,
		Description:     description,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// HasAvailableCopy 是否还有可借副本
func (b *Book) HasAvailableCopy() bool {
	return b.AvailableCopies > 0
}

// UpdateInfo 更新书目基本信息
func (b *Book) UpdateInfo(title, publisher, description string) {
	if title != "" {
		b.Title = title
	}
	if publisher != "" {
		b.Publisher = publisher
	}
	if description != "" {
		b.Description = description
	}
	b.UpdatedAt = time.Now()
}

// BookItem 图书副本实体(物理馆藏)
// 设计说明:
// 1. Barcode是馆藏条码,业务唯一标识(数据库UNIQUE索引)
// 2. 状态机只有两态:available ⇄ borrowed
//    处于borrowed的副本恰好被一条{borrowed,overdue}状态的借阅记录引用
// 3. 预约到书时副本并不改变状态,而是被Reservation.ItemID绑定,
//    该副本仍按available计数(持有期内其他人仍可直接借走它之外的副本)
type BookItem struct {
	ID        uint
	BookID    uint
	Barcode   string     // 馆藏条码
	Status    ItemStatus // 副本状态
	Location  string     // 馆藏位置(如 3F-A12)
	Condition string     // 品相(new/good/worn)
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewBookItem 登记新副本(工厂方法)
func NewBookItem(bookID uint, barcode, location, condition string) *BookItem {
	now := time.Now()
	return &BookItem{
		BookID:    bookID,
		Barcode:   barcode,
		Status:    ItemStatusAvailable,
		Location:  location,
		Condition: condition,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsAvailable 副本是否可借
func (i *BookItem) IsAvailable() bool {
	return i.Status == ItemStatusAvailable
}

// MarkBorrowed 标记为已借出(领域行为)
// 业务规则:只有available状态的副本可以借出
func (i *BookItem) MarkBorrowed() error {
	if i.Status != ItemStatusAvailable {
		return ErrItemNotAvailable
	}
	i.Status = ItemStatusBorrowed
	i.UpdatedAt = time.Now()
	return nil
}

// MarkAvailable 标记为在馆(归还时调用)
func (i *BookItem) MarkAvailable() error {
	if i.Status != ItemStatusBorrowed {
		return ErrItemNotBorrowed
	}
	i.Status = ItemStatusAvailable
	i.UpdatedAt = time.Now()
	return nil
}

// BelongsTo 副本是否属于指定书目
func (i *BookItem) BelongsTo(bookID uint) bool {
	return i.BookID == bookID
}
