package handler

import (
	"github.com/gin-gonic/gin"

	apprequest "github.com/xiebiao/elibrary/internal/application/request"
	"github.com/xiebiao/elibrary/internal/interface/http/dto"
	"github.com/xiebiao/elibrary/internal/interface/http/middleware"
	apperrors "github.com/xiebiao/elibrary/pkg/errors"
	"github.com/xiebiao/elibrary/pkg/response"
)

// RequestHandler 借阅申请HTTP处理器
// 会员提交/撤回申请,馆员审批(批准/驳回)
type RequestHandler struct {
	requestService *apprequest.Service
}

// NewRequestHandler 创建借阅申请处理器
func NewRequestHandler(requestService *apprequest.Service) *RequestHandler {
	return &RequestHandler{
		requestService: requestService,
	}
}

// Submit 提交申请
// @Summary      提交借阅申请
// @Description  同一用户对同一书目至多一条待审批申请;已在借该书目不得重复申请
// @Tags         借阅申请
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body dto.SubmitRequestRequest true "申请信息"
// @Success      200 {object} response.Response{data=dto.BorrowRequestResponse}
// @Failure      404 {object} response.Response "书目不存在"
// @Failure      409 {object} response.Response "已有待审批申请/已在借"
// @Router       /api/v1/requests [post]
func (h *RequestHandler) Submit(c *gin.Context) {
	var req dto.SubmitRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithCode(c, apperrors.ErrCodeInvalidParams, "参数错误: "+err.Error())
		return
	}

	result, err := h.requestService.Submit(c.Request.Context(), apprequest.SubmitRequest{
		UserID:     middleware.MustGetUserID(c),
		BookID:     req.BookID,
		ItemID:     req.ItemID,
		MemberNote: req.Note,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto.NewBorrowRequestResponse(result))
}

// Cancel 撤回申请
// @Summary      撤回借阅申请
// @Description  申请人本人撤回待审批的申请
// @Tags         借阅申请
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "申请ID"
// @Success      200 {object} response.Response "撤回成功"
// @Failure      400 {object} response.Response "申请已处理"
// @Failure      403 {object} response.Response "非本人申请"
// @Router       /api/v1/requests/{id}/cancel [post]
func (h *RequestHandler) Cancel(c *gin.Context) {
	requestID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.requestService.Cancel(c.Request.Context(), requestID, middleware.MustGetUserID(c)); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, gin.H{"message": "申请已撤回"})
}

// ListMine 我的申请
// @Summary      分页查询我的借阅申请
// @Tags         借阅申请
// @Produce      json
// @Security     BearerAuth
// @Param        page query int false "页码" default(1)
// @Param        page_size query int false "每页数量" default(20)
// @Success      200 {object} response.Response{data=response.PageData}
// @Router       /api/v1/requests [get]
func (h *RequestHandler) ListMine(c *gin.Context) {
	page, pageSize := parsePageParams(c)

	requests, total, err := h.requestService.ListMine(c.Request.Context(),
		middleware.MustGetUserID(c), page, pageSize)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, response.NewPageData(dto.NewBorrowRequestResponses(requests), total, page, pageSize))
}

// ListPending 待审批申请(馆员工作台)
// @Summary      分页查询待审批申请
// @Description  馆员接口;按提交时间升序(先到先审)
// @Tags         借阅申请
// @Produce      json
// @Security     BearerAuth
// @Param        page query int false "页码" default(1)
// @Param        page_size query int false "每页数量" default(20)
// @Success      200 {object} response.Response{data=response.PageData}
// @Failure      403 {object} response.Response "非馆员"
// @Router       /api/v1/admin/requests [get]
func (h *RequestHandler) ListPending(c *gin.Context) {
	page, pageSize := parsePageParams(c)

	requests, total, err := h.requestService.ListPending(c.Request.Context(), page, pageSize)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, response.NewPageData(dto.NewBorrowRequestResponses(requests), total, page, pageSize))
}

// Approve 批准申请
// @Summary      批准借阅申请
// @Description  馆员接口;批准与放贷在同一事务,放贷失败时申请留在待审批状态
// @Tags         借阅申请
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "申请ID"
// @Param        request body dto.ApproveRequestRequest true "批准信息(指定实际副本)"
// @Success      200 {object} response.Response{data=dto.LoanResponse}
// @Failure      400 {object} response.Response "申请已处理/副本不可借/超出上限"
// @Failure      403 {object} response.Response "非馆员"
// @Router       /api/v1/admin/requests/{id}/approve [post]
func (h *RequestHandler) Approve(c *gin.Context) {
	requestID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req dto.ApproveRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithCode(c, apperrors.ErrCodeInvalidParams, "参数错误: "+err.Error())
		return
	}

	granted, err := h.requestService.Approve(c.Request.Context(), requestID, req.ItemID,
		middleware.MustGetUserID(c), req.Note)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto.NewLoanResponse(granted))
}

// Reject 驳回申请
// @Summary      驳回借阅申请
// @Description  馆员接口;记录驳回原因并通知申请人
// @Tags         借阅申请
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "申请ID"
// @Param        request body dto.RejectRequestRequest true "驳回原因"
// @Success      200 {object} response.Response "驳回成功"
// @Failure      400 {object} response.Response "申请已处理"
// @Failure      403 {object} response.Response "非馆员"
// @Router       /api/v1/admin/requests/{id}/reject [post]
func (h *RequestHandler) Reject(c *gin.Context) {
	requestID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req dto.RejectRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithCode(c, apperrors.ErrCodeInvalidParams, "参数错误: "+err.Error())
		return
	}

	if err := h.requestService.Reject(c.Request.Context(), requestID,
		middleware.MustGetUserID(c), req.Reason); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, gin.H{"message": "申请已驳回"})
}
