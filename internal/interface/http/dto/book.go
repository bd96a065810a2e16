package dto

import (
	"time"

	"github.com/xiebiao/elibrary/internal/domain/book"
)

// timeLayout 对外统一的时间格式
const timeLayout = "2006-01-02 15:04:05"

// CreateBookRequest HTTP书目建档请求
// validator tag说明:
// - required: 必填字段
// - dive: 逐个校验切片元素
type CreateBookRequest struct {
	ISBN        string   `json:"isbn" binding:"required,max=20" example:"9787111558422"`
	Title       string   `json:"title" binding:"required,max=200" example:"Go程序设计语言"`
	Authors     []string `json:"authors" binding:"required,min=1,dive,max=100" example:"艾伦·多诺万,布莱恩·柯尼汉"`
	Categories  []string `json:"categories" binding:"omitempty,dive,max=50" example:"计算机,编程语言"`
	Publisher   string   `json:"publisher" binding:"required,max=100" example:"机械工业出版社"`
	PublishedAt string   `json:"published_at" binding:"omitempty" example:"2017-01-01"` // 出版日期(YYYY-MM-DD)
	CoverURL    string   `json:"cover_url" binding:"omitempty,url,max=500" example:"https://example.com/cover.jpg"`
	Description string   `json:"description" binding:"max=5000" example:"Go语言圣经"`
}

// ParsePublishedAt 解析出版日期(空串返回nil)
func (r *CreateBookRequest) ParsePublishedAt() (*time.Time, error) {
	if r.PublishedAt == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", r.PublishedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// UpdateBookRequest HTTP书目信息更新请求(字段为空表示不更新)
type UpdateBookRequest struct {
	Title       string `json:"title" binding:"omitempty,max=200"`
	Publisher   string `json:"publisher" binding:"omitempty,max=100"`
	Description string `json:"description" binding:"omitempty,max=5000"`
}

// AddItemRequest HTTP副本登记请求
type AddItemRequest struct {
	Barcode   string `json:"barcode" binding:"required,max=50" example:"LIB-2024-000123"`
	Location  string `json:"location" binding:"omitempty,max=50" example:"3F-A12"`
	Condition string `json:"condition" binding:"omitempty,oneof=new good worn" example:"good"`
}

// BookResponse HTTP书目详情响应
type BookResponse struct {
	ID              uint     `json:"id" example:"1"`
	ISBN            string   `json:"isbn" example:"9787111558422"`
	Title           string   `json:"title" example:"Go程序设计语言"`
	Authors         []string `json:"authors"`
	Categories      []string `json:"categories"`
	Publisher       string   `json:"publisher" example:"机械工业出版社"`
	TotalCopies     int      `json:"total_copies" example:"5"`
	AvailableCopies int      `json:"available_copies" example:"3"`
	PublishedAt     string   `json:"published_at,omitempty" example:"2017-01-01"`
	CoverURL        string   `json:"cover_url" example:"https://example.com/cover.jpg"`
	Description     string   `json:"description" example:"Go语言圣经"`
	CreatedAt       string   `json:"created_at" example:"2024-01-15 10:30:00"`
	UpdatedAt       string   `json:"updated_at" example:"2024-01-15 10:30:00"`
}

// NewBookResponse 领域实体 → HTTP响应
func NewBookResponse(b *book.Book) *BookResponse {
	resp := &BookResponse{
		ID:              b.ID,
		ISBN:            b.ISBN,
		Title:           b.Title,
		Authors:         b.Authors,
		Categories:      b.Categories,
		Publisher:       b.Publisher,
		TotalCopies:     b.TotalCopies,
		AvailableCopies: b.AvailableCopies,
		CoverURL:        b.CoverURL,
		Description:     b.Description,
		CreatedAt:       b.CreatedAt.Format(timeLayout),
		UpdatedAt:       b.UpdatedAt.Format(timeLayout),
	}
	if b.PublishedAt != nil {
		resp.PublishedAt = b.PublishedAt.Format("2006-01-02")
	}
	return resp
}

// BookListItem HTTP书目列表项
// 列表查询不返回Description字段(减少数据传输量)
type BookListItem struct {
	ID              uint     `json:"id" example:"1"`
	ISBN            string   `json:"isbn" example:"9787111558422"`
	Title           string   `json:"title" example:"Go程序设计语言"`
	Authors         []string `json:"authors"`
	Publisher       string   `json:"publisher" example:"机械工业出版社"`
	TotalCopies     int      `json:"total_copies" example:"5"`
	AvailableCopies int      `json:"available_copies" example:"3"`
	CoverURL        string   `json:"cover_url" example:"https://example.com/cover.jpg"`
	CreatedAt       string   `json:"created_at" example:"2024-01-15 10:30:00"`
}

// NewBookListItems 领域实体列表 → HTTP列表项
func NewBookListItems(books []*book.Book) []BookListItem {
	list := make([]BookListItem, len(books))
	for i, b := range books {
		list[i] = BookListItem{
			ID:              b.ID,
			ISBN:            b.ISBN,
			Title:           b.Title,
			Authors:         b.Authors,
			Publisher:       b.Publisher,
			TotalCopies:     b.TotalCopies,
			AvailableCopies: b.AvailableCopies,
			CoverURL:        b.CoverURL,
			CreatedAt:       b.CreatedAt.Format(timeLayout),
		}
	}
	return list
}

// ListBooksRequest HTTP书目列表请求
type ListBooksRequest struct {
	Page     int    `form:"page" binding:"omitempty,min=1" example:"1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100" example:"20"`
	Keyword  string `form:"keyword" binding:"omitempty,max=100" example:"Go"`
	SortBy   string `form:"sort_by" binding:"omitempty,oneof=title_asc created_at_desc" example:"created_at_desc"`
}

// ItemResponse HTTP副本响应
type ItemResponse struct {
	ID        uint   `json:"id" example:"10"`
	BookID    uint   `json:"book_id" example:"1"`
	Barcode   string `json:"barcode" example:"LIB-2024-000123"`
	Status    string `json:"status" example:"available"` // available | borrowed
	Location  string `json:"location" example:"3F-A12"`
	Condition string `json:"condition" example:"good"`
	CreatedAt string `json:"created_at" example:"2024-01-15 10:30:00"`
}

// NewItemResponse 领域实体 → HTTP响应
func NewItemResponse(i *book.BookItem) *ItemResponse {
	return &ItemResponse{
		ID:        i.ID,
		BookID:    i.BookID,
		Barcode:   i.Barcode,
		Status:    i.Status.String(),
		Location:  i.Location,
		Condition: i.Condition,
		CreatedAt: i.CreatedAt.Format(timeLayout),
	}
}

// NewItemResponses 领域实体列表 → HTTP响应列表
func NewItemResponses(items []*book.BookItem) []*ItemResponse {
	list := make([]*ItemResponse, len(items))
	for i, item := range items {
		list[i] = NewItemResponse(item)
	}
	return list
}
