package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	appreconcile "github.com/xiebiao/elibrary/internal/application/reconcile"
	"github.com/xiebiao/elibrary/internal/interface/http/dto"
	"github.com/xiebiao/elibrary/pkg/response"
)

// AdminHandler 运维HTTP处理器(对账触发、计数修复)
// 定时任务之外的手动入口,仅馆员可用
type AdminHandler struct {
	reconcileService *appreconcile.Service
}

// NewAdminHandler 创建运维处理器
func NewAdminHandler(reconcileService *appreconcile.Service) *AdminHandler {
	return &AdminHandler{
		reconcileService: reconcileService,
	}
}

// RunReconcile 手动触发对账
// @Summary      手动触发一次对账
// @Description  逾期标记与罚金重算、过期保留清理、到期提醒;幂等,可重复触发
// @Tags         运维
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} response.Response{data=dto.ReconcileResponse}
// @Failure      403 {object} response.Response "非馆员"
// @Router       /api/v1/admin/reconcile [post]
func (h *AdminHandler) RunReconcile(c *gin.Context) {
	result, err := h.reconcileService.Run(c.Request.Context(), time.Now())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, &dto.ReconcileResponse{
		Processed:    result.Processed,
		Failed:       result.Failed,
		ExpiredHolds: result.ExpiredHolds,
		DueSoon:      result.DueSoon,
		StartedAt:    result.StartedAt.Format("2006-01-02 15:04:05"),
		FinishedAt:   result.FinishedAt.Format("2006-01-02 15:04:05"),
	})
}

// RepairBookCounters 修复书目计数
// @Summary      按副本表重算书目的馆藏/可借册数
// @Description  派生计数平时由事务内守卫UPDATE维护;此接口仅用于异常修复
// @Tags         运维
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "书目ID"
// @Success      200 {object} response.Response{data=dto.BookResponse}
// @Failure      403 {object} response.Response "非馆员"
// @Failure      404 {object} response.Response "书目不存在"
// @Router       /api/v1/admin/books/{id}/repair [post]
func (h *AdminHandler) RepairBookCounters(c *gin.Context) {
	bookID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	repaired, err := h.reconcileService.RepairBookCounters(c.Request.Context(), bookID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto.NewBookResponse(repaired))
}

// RepairUserCounter 修复用户在借计数
// @Summary      按借阅表重算用户的在借数量
// @Tags         运维
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "用户ID"
// @Success      200 {object} response.Response
// @Failure      403 {object} response.Response "非馆员"
// @Failure      404 {object} response.Response "用户不存在"
// @Router       /api/v1/admin/users/{id}/repair [post]
func (h *AdminHandler) RepairUserCounter(c *gin.Context) {
	userID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	count, err := h.reconcileService.RepairUserCounter(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, gin.H{"user_id": userID, "borrowed_count": count})
}
