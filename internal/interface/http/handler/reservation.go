package handler

import (
	"github.com/gin-gonic/gin"

	appreservation "github.com/xiebiao/elibrary/internal/application/reservation"
	"github.com/xiebiao/elibrary/internal/interface/http/dto"
	"github.com/xiebiao/elibrary/internal/interface/http/middleware"
	apperrors "github.com/xiebiao/elibrary/pkg/errors"
	"github.com/xiebiao/elibrary/pkg/response"
)

// ReservationHandler 预约HTTP处理器
type ReservationHandler struct {
	reservationService *appreservation.Service
}

// NewReservationHandler 创建预约处理器
func NewReservationHandler(reservationService *appreservation.Service) *ReservationHandler {
	return &ReservationHandler{
		reservationService: reservationService,
	}
}

// Reserve 预约书目
// @Summary      预约书目
// @Description  按书目排队(FIFO);同一用户对同一书目至多一条有效预约
// @Tags         预约
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body dto.ReserveRequest true "预约信息"
// @Success      200 {object} response.Response{data=dto.ReservationResponse}
// @Failure      404 {object} response.Response "书目不存在"
// @Failure      409 {object} response.Response "已有有效预约"
// @Router       /api/v1/reservations [post]
func (h *ReservationHandler) Reserve(c *gin.Context) {
	var req dto.ReserveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithCode(c, apperrors.ErrCodeInvalidParams, "参数错误: "+err.Error())
		return
	}

	result, err := h.reservationService.Reserve(c.Request.Context(), middleware.MustGetUserID(c), req.BookID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto.NewReservationResponse(result))
}

// Cancel 取消预约
// @Summary      取消预约
// @Description  本人或馆员可取消;取消到书待取的预约会唤醒下一位排队者
// @Tags         预约
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "预约ID"
// @Success      200 {object} response.Response "取消成功"
// @Failure      400 {object} response.Response "预约已是终态"
// @Failure      403 {object} response.Response "非本人预约"
// @Failure      404 {object} response.Response "预约不存在"
// @Router       /api/v1/reservations/{id}/cancel [post]
func (h *ReservationHandler) Cancel(c *gin.Context) {
	reservationID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	err := h.reservationService.Cancel(c.Request.Context(), reservationID,
		middleware.MustGetUserID(c), middleware.IsLibrarian(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, gin.H{"message": "预约已取消"})
}

// ListMine 我的预约
// @Summary      分页查询我的预约
// @Tags         预约
// @Produce      json
// @Security     BearerAuth
// @Param        page query int false "页码" default(1)
// @Param        page_size query int false "每页数量" default(20)
// @Success      200 {object} response.Response{data=response.PageData}
// @Router       /api/v1/reservations [get]
func (h *ReservationHandler) ListMine(c *gin.Context) {
	page, pageSize := parsePageParams(c)

	reservations, total, err := h.reservationService.ListMine(c.Request.Context(),
		middleware.MustGetUserID(c), page, pageSize)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, response.NewPageData(dto.NewReservationResponses(reservations), total, page, pageSize))
}

// QueueDepth 排队深度
// @Summary      查询书目的排队深度
// @Description  公开接口;返回waiting+notified的有效预约数
// @Tags         预约
// @Produce      json
// @Param        id path int true "书目ID"
// @Success      200 {object} response.Response
// @Router       /api/v1/books/{id}/queue [get]
func (h *ReservationHandler) QueueDepth(c *gin.Context) {
	bookID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	depth, err := h.reservationService.QueueDepth(c.Request.Context(), bookID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, gin.H{"book_id": bookID, "queue_depth": depth})
}

// parsePageParams 解析分页查询参数(共享辅助)
func parsePageParams(c *gin.Context) (int, int) {
	page := 1
	pageSize := 20
	var req struct {
		Page     int `form:"page" binding:"omitempty,min=1"`
		PageSize int `form:"page_size" binding:"omitempty,min=1,max=100"`
	}
	if err := c.ShouldBindQuery(&req); err == nil {
		if req.Page > 0 {
			page = req.Page
		}
		if req.PageSize > 0 {
			pageSize = req.PageSize
		}
	}
	return page, pageSize
}
