package mysql

import (
	"context"
	"encoding/json"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/xiebiao/elibrary/internal/domain/book"
	apperrors "github.com/xiebiao/elibrary/pkg/errors"
)

// bookRepository 图书仓储实现(MySQL)
// 设计说明:
// 1. 实现domain/book/repository.go定义的接口
// 2. 书目与副本同属一个聚合,共用一个仓储
// 3. 处理数据库特定的错误(如ISBN/条码重复),转换为业务错误
type bookRepository struct {
	db *gorm.DB
}

// NewBookRepository 创建图书仓储
func NewBookRepository(db *gorm.DB) book.Repository {
	return &bookRepository{db: db}
}

// Create 创建书目
func (r *bookRepository) Create(ctx context.Context, b *book.Book) error {
	model, err := toBookModel(b)
	if err != nil {
		return err
	}

	if err := getDB(ctx, r.db).Create(model).Error; err != nil {
		if isDuplicateError(err) {
			return book.ErrISBNDuplicate
		}
		return apperrors.Wrap(err, "创建图书失败")
	}

	b.ID = model.ID
	b.CreatedAt = model.CreatedAt
	b.UpdatedAt = model.UpdatedAt

	return nil
}

// FindByID 根据ID查找书目
func (r *bookRepository) FindByID(ctx context.Context, id uint) (*book.Book, error) {
	var model BookModel
	err := getDB(ctx, r.db).First(&model, id).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, book.ErrBookNotFound
		}
		return nil, apperrors.Wrap(err, "查询图书失败")
	}

	return toBookEntity(&model), nil
}

// FindByISBN 根据ISBN查找书目
func (r *bookRepository) FindByISBN(ctx context.Context, isbn string) (*book.Book, error) {
	var model BookModel
	err := getDB(ctx, r.db).Where("isbn = ?", isbn).First(&model).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, book.ErrBookNotFound
		}
		return nil, apperrors.Wrap(err, "查询图书失败")
	}

	return toBookEntity(&model), nil
}

// Update 更新书目信息
func (r *bookRepository) Update(ctx context.Context, b *book.Book) error {
	model, err := toBookModel(b)
	if err != nil {
		return err
	}
	model.ID = b.ID
	model.CreatedAt = b.CreatedAt

	if err := getDB(ctx, r.db).Save(model).Error; err != nil {
		return apperrors.Wrap(err, "更新图书失败")
	}

	b.UpdatedAt = model.UpdatedAt
	return nil
}

// List 分页查询书目列表
func (r *bookRepository) List(ctx context.Context, params book.ListParams) ([]*book.Book, int64, error) {
	var models []BookModel
	var total int64

	query := getDB(ctx, r.db).Model(&BookModel{})

	// 关键词搜索(搜索标题、作者、出版社)
	if params.Keyword != "" {
		keyword := "%" + params.Keyword + "%"
		query = query.Where("title LIKE ? OR authors LIKE ? OR publisher LIKE ?", keyword, keyword, keyword)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, apperrors.Wrap(err, "查询图书总数失败")
	}

	switch params.SortBy {
	case "title_asc":
		query = query.Order("title ASC")
	case "created_at_desc":
		query = query.Order("created_at DESC")
	default:
		query = query.Order("created_at DESC")
	}

	offset := (params.Page - 1) * params.PageSize
	query = query.Limit(params.PageSize).Offset(offset)

	if err := query.Find(&models).Error; err != nil {
		return nil, 0, apperrors.Wrap(err, "查询图书列表失败")
	}

	books := make([]*book.Book, len(models))
	for i := range models {
		books[i] = toBookEntity(&models[i])
	}

	return books, total, nil
}

// LockByID 悲观锁查询书目(SELECT FOR UPDATE)
func (r *bookRepository) LockByID(ctx context.Context, id uint) (*book.Book, error) {
	var model BookModel
	err := getDB(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}).First(&model, id).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, book.ErrBookNotFound
		}
		return nil, apperrors.Wrap(err, "锁定图书失败")
	}

	return toBookEntity(&model), nil
}

// AdjustAvailableCopies 原子调整可借册数
// UPDATE books SET available_copies = available_copies + delta
// WHERE id = ? AND available_copies + delta >= 0
func (r *bookRepository) AdjustAvailableCopies(ctx context.Context, id uint, delta int) error {
	db := getDB(ctx, r.db)
	result := db.Model(&BookModel{}).
		Where("id = ?", id).
		Where("available_copies + ? >= 0", delta). // 防止可借册数为负
		Update("available_copies", gorm.Expr("available_copies + ?", delta))

	if result.Error != nil {
		return apperrors.Wrap(result.Error, "更新可借册数失败")
	}

	if result.RowsAffected == 0 {
		// 可能是书目不存在,或者可借册数不足,再查一次确定原因
		var model BookModel
		if err := db.First(&model, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return book.ErrBookNotFound
			}
			return apperrors.Wrap(err, "查询图书失败")
		}
		return book.ErrNoAvailableCopy
	}

	return nil
}

// AddItem 登记新副本并同步递增TotalCopies/AvailableCopies
// 两步写在同一调用里,由上层保证在事务内执行
func (r *bookRepository) AddItem(ctx context.Context, item *book.BookItem) error {
	db := getDB(ctx, r.db)

	model := &BookItemModel{
		BookID:    item.BookID,
		Barcode:   item.Barcode,
		Status:    int(item.Status),
		Location:  item.Location,
		Condition: item.Condition,
	}

	if err := db.Create(model).Error; err != nil {
		if isDuplicateError(err) {
			return book.ErrBarcodeDuplicate
		}
		return apperrors.Wrap(err, "登记副本失败")
	}

	result := db.Model(&BookModel{}).
		Where("id = ?", item.BookID).
		Updates(map[string]interface{}{
			"total_copies":     gorm.Expr("total_copies + 1"),
			"available_copies": gorm.Expr("available_copies + 1"),
		})
	if result.Error != nil {
		return apperrors.Wrap(result.Error, "更新馆藏册数失败")
	}
	if result.RowsAffected == 0 {
		return book.ErrBookNotFound
	}

	item.ID = model.ID
	item.CreatedAt = model.CreatedAt
	item.UpdatedAt = model.UpdatedAt

	return nil
}

// FindItemByID 根据ID查找副本
func (r *bookRepository) FindItemByID(ctx context.Context, id uint) (*book.BookItem, error) {
	var model BookItemModel
	err := getDB(ctx, r.db).First(&model, id).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, book.ErrItemNotFound
		}
		return nil, apperrors.Wrap(err, "查询副本失败")
	}

	return toItemEntity(&model), nil
}

// FindItemByBarcode 根据条码查找副本
func (r *bookRepository) FindItemByBarcode(ctx context.Context, barcode string) (*book.BookItem, error) {
	var model BookItemModel
	err := getDB(ctx, r.db).Where("barcode = ?", barcode).First(&model).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, book.ErrItemNotFound
		}
		return nil, apperrors.Wrap(err, "查询副本失败")
	}

	return toItemEntity(&model), nil
}

// LockItemByID 悲观锁查询副本
func (r *bookRepository) LockItemByID(ctx context.Context, id uint) (*book.BookItem, error) {
	var model BookItemModel
	err := getDB(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}).First(&model, id).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, book.ErrItemNotFound
		}
		return nil, apperrors.Wrap(err, "锁定副本失败")
	}

	return toItemEntity(&model), nil
}

// UpdateItem 更新副本
func (r *bookRepository) UpdateItem(ctx context.Context, item *book.BookItem) error {
	model := &BookItemModel{
		ID:        item.ID,
		BookID:    item.BookID,
		Barcode:   item.Barcode,
		Status:    int(item.Status),
		Location:  item.Location,
		Condition: item.Condition,
		CreatedAt: item.CreatedAt,
	}

	if err := getDB(ctx, r.db).Save(model).Error; err != nil {
		return apperrors.Wrap(err, "更新副本失败")
	}

	item.UpdatedAt = model.UpdatedAt
	return nil
}

// AvailableItems 查询书目的可借副本,按条码升序
func (r *bookRepository) AvailableItems(ctx context.Context, bookID uint) ([]*book.BookItem, error) {
	var models []BookItemModel
	err := getDB(ctx, r.db).
		Where("book_id = ? AND status = ?", bookID, int(book.ItemStatusAvailable)).
		Order("barcode ASC").
		Find(&models).Error
	if err != nil {
		return nil, apperrors.Wrap(err, "查询可借副本失败")
	}

	items := make([]*book.BookItem, len(models))
	for i := range models {
		items[i] = toItemEntity(&models[i])
	}
	return items, nil
}

// CountItemsByStatus 按状态统计副本数(计数修复工具使用)
func (r *bookRepository) CountItemsByStatus(ctx context.Context, bookID uint, status book.ItemStatus) (int, error) {
	var count int64
	err := getDB(ctx, r.db).Model(&BookItemModel{}).
		Where("book_id = ? AND status = ?", bookID, int(status)).
		Count(&count).Error
	if err != nil {
		return 0, apperrors.Wrap(err, "统计副本数失败")
	}
	return int(count), nil
}

// =========================================
// 辅助函数:模型转换
// =========================================

// toBookModel 领域实体 → GORM模型(多值字段序列化为JSON)
func toBookModel(b *book.Book) (*BookModel, error) {
	authors, err := json.Marshal(b.Authors)
	if err != nil {
		return nil, apperrors.Wrap(err, "序列化作者列表失败")
	}
	categories, err := json.Marshal(b.Categories)
	if err != nil {
		return nil, apperrors.Wrap(err, "序列化分类列表失败")
	}

	return &BookModel{
		ISBN:            b.ISBN,
		Title:           b.Title,
		Authors:         string(authors),
		Categories:      string(categories),
		Publisher:       b.Publisher,
		TotalCopies:     b.TotalCopies,
		AvailableCopies: b.AvailableCopies,
		PublishedAt:     b.PublishedAt,
		CoverURL:        b.CoverURL,
		Description:     b.Description,
	}, nil
}

// toBookEntity GORM模型 → 领域实体
// JSON列损坏时按空列表处理,不让单条脏数据拖垮整页查询
func toBookEntity(model *BookModel) *book.Book {
	var authors, categories []string
	_ = json.Unmarshal([]byte(model.Authors), &authors)
	_ = json.Unmarshal([]byte(model.Categories), &categories)

	return &book.Book{
		ID:              model.ID,
		ISBN:            model.ISBN,
		Title:           model.Title,
		Authors:         authors,
		Categories:      categories,
		Publisher:       model.Publisher,
		TotalCopies:     model.TotalCopies,
		AvailableCopies: model.AvailableCopies,
		PublishedAt:     model.PublishedAt,
		CoverURL:        model.CoverURL,
		Description:     model.Description,
		CreatedAt:       model.CreatedAt,
		UpdatedAt:       model.UpdatedAt,
	}
}

// toItemEntity GORM模型 → 领域实体
func toItemEntity(model *BookItemModel) *book.BookItem {
	return &book.BookItem{
		ID:        model.ID,
		BookID:    model.BookID,
		Barcode:   model.Barcode,
		Status:    book.ItemStatus(model.Status),
		Location:  model.Location,
		Condition: model.Condition,
		CreatedAt: model.CreatedAt,
		UpdatedAt: model.UpdatedAt,
	}
}
