package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	appcatalog "github.com/xiebiao/elibrary/internal/application/catalog"
	"github.com/xiebiao/elibrary/internal/domain/book"
	"github.com/xiebiao/elibrary/internal/interface/http/dto"
	apperrors "github.com/xiebiao/elibrary/pkg/errors"
	"github.com/xiebiao/elibrary/pkg/response"
)

// BookHandler 书目HTTP处理器
type BookHandler struct {
	catalogService *appcatalog.Service
}

// NewBookHandler 创建书目处理器
func NewBookHandler(catalogService *appcatalog.Service) *BookHandler {
	return &BookHandler{
		catalogService: catalogService,
	}
}

// CreateBook 书目建档
// @Summary      书目建档
// @Description  馆员创建新书目(馆藏册数从0开始,通过登记副本增加)
// @Tags         书目
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body dto.CreateBookRequest true "书目信息"
// @Success      200 {object} response.Response{data=dto.BookResponse}
// @Failure      400 {object} response.Response "参数错误"
// @Failure      403 {object} response.Response "非馆员"
// @Failure      409 {object} response.Response "ISBN已存在"
// @Router       /api/v1/books [post]
func (h *BookHandler) CreateBook(c *gin.Context) {
	var req dto.CreateBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithCode(c, apperrors.ErrCodeInvalidParams, "参数错误: "+err.Error())
		return
	}

	publishedAt, err := req.ParsePublishedAt()
	if err != nil {
		response.ErrorWithCode(c, apperrors.ErrCodeInvalidParams, "出版日期格式错误(YYYY-MM-DD)")
		return
	}

	result, err := h.catalogService.CreateBook(c.Request.Context(), appcatalog.CreateBookRequest{
		ISBN:        req.ISBN,
		Title:       req.Title,
		Authors:     req.Authors,
		Categories:  req.Categories,
		Publisher:   req.Publisher,
		PublishedAt: publishedAt,
		CoverURL:    req.CoverURL,
		Description: req.Description,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto.NewBookResponse(result))
}

// UpdateBook 更新书目信息
// @Summary      更新书目基本信息
// @Tags         书目
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "书目ID"
// @Param        request body dto.UpdateBookRequest true "更新字段(空字段不更新)"
// @Success      200 {object} response.Response{data=dto.BookResponse}
// @Failure      404 {object} response.Response "书目不存在"
// @Router       /api/v1/books/{id} [put]
func (h *BookHandler) UpdateBook(c *gin.Context) {
	bookID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req dto.UpdateBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithCode(c, apperrors.ErrCodeInvalidParams, "参数错误: "+err.Error())
		return
	}

	result, err := h.catalogService.UpdateBook(c.Request.Context(), bookID, req.Title, req.Publisher, req.Description)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto.NewBookResponse(result))
}

// AddItem 登记副本
// @Summary      登记馆藏副本
// @Description  馆员为书目登记一册新副本,馆藏/可借册数同步+1
// @Tags         书目
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "书目ID"
// @Param        request body dto.AddItemRequest true "副本信息"
// @Success      200 {object} response.Response{data=dto.ItemResponse}
// @Failure      404 {object} response.Response "书目不存在"
// @Failure      409 {object} response.Response "条码已存在"
// @Router       /api/v1/books/{id}/items [post]
func (h *BookHandler) AddItem(c *gin.Context) {
	bookID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req dto.AddItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithCode(c, apperrors.ErrCodeInvalidParams, "参数错误: "+err.Error())
		return
	}

	result, err := h.catalogService.AddItem(c.Request.Context(), appcatalog.AddItemRequest{
		BookID:    bookID,
		Barcode:   req.Barcode,
		Location:  req.Location,
		Condition: req.Condition,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto.NewItemResponse(result))
}

// GetBook 书目详情
// @Summary      查询书目详情
// @Description  公开接口;详情走缓存,可借册数允许短暂陈旧
// @Tags         书目
// @Produce      json
// @Param        id path int true "书目ID"
// @Success      200 {object} response.Response{data=dto.BookResponse}
// @Failure      404 {object} response.Response "书目不存在"
// @Router       /api/v1/books/{id} [get]
func (h *BookHandler) GetBook(c *gin.Context) {
	bookID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	result, err := h.catalogService.GetBook(c.Request.Context(), bookID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto.NewBookResponse(result))
}

// ListBooks 书目列表
// @Summary      分页查询书目列表
// @Description  公开接口;支持关键词搜索(书名/作者/出版社)与排序
// @Tags         书目
// @Produce      json
// @Param        page query int false "页码" default(1)
// @Param        page_size query int false "每页数量" default(20)
// @Param        keyword query string false "搜索关键词"
// @Param        sort_by query string false "排序方式" Enums(title_asc, created_at_desc)
// @Success      200 {object} response.Response{data=response.PageData}
// @Router       /api/v1/books [get]
func (h *BookHandler) ListBooks(c *gin.Context) {
	var req dto.ListBooksRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.ErrorWithCode(c, apperrors.ErrCodeInvalidParams, "参数错误: "+err.Error())
		return
	}

	books, total, err := h.catalogService.ListBooks(c.Request.Context(), book.ListParams{
		Page:     req.Page,
		PageSize: req.PageSize,
		Keyword:  req.Keyword,
		SortBy:   req.SortBy,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	page := req.Page
	if page < 1 {
		page = 1
	}
	pageSize := req.PageSize
	if pageSize < 1 {
		pageSize = 20
	}

	response.Success(c, response.NewPageData(dto.NewBookListItems(books), total, page, pageSize))
}

// ListAvailableItems 可借副本列表
// @Summary      查询书目的可借副本
// @Description  借出前选取副本;按条码升序
// @Tags         书目
// @Produce      json
// @Param        id path int true "书目ID"
// @Success      200 {object} response.Response{data=[]dto.ItemResponse}
// @Failure      404 {object} response.Response "书目不存在"
// @Router       /api/v1/books/{id}/items [get]
func (h *BookHandler) ListAvailableItems(c *gin.Context) {
	bookID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	items, err := h.catalogService.AvailableItems(c.Request.Context(), bookID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto.NewItemResponses(items))
}

// GetItemByBarcode 扫码查副本
// @Summary      按馆藏条码查找副本
// @Description  馆员扫码入口
// @Tags         书目
// @Produce      json
// @Security     BearerAuth
// @Param        barcode path string true "馆藏条码"
// @Success      200 {object} response.Response{data=dto.ItemResponse}
// @Failure      404 {object} response.Response "副本不存在"
// @Router       /api/v1/items/barcode/{barcode} [get]
func (h *BookHandler) GetItemByBarcode(c *gin.Context) {
	barcode := c.Param("barcode")
	if barcode == "" {
		response.ErrorWithCode(c, apperrors.ErrCodeInvalidParams, "条码不能为空")
		return
	}

	item, err := h.catalogService.FindItemByBarcode(c.Request.Context(), barcode)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto.NewItemResponse(item))
}

// parseIDParam 解析路径中的数字ID参数(共享辅助)
func parseIDParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		response.ErrorWithCode(c, apperrors.ErrCodeInvalidParams, "无效的"+name+"参数")
		return 0, false
	}
	return uint(id), true
}
