package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xiebiao/elibrary/internal/application/circulation"
	"github.com/xiebiao/elibrary/internal/interface/http/dto"
	"github.com/xiebiao/elibrary/internal/interface/http/middleware"
	apperrors "github.com/xiebiao/elibrary/pkg/errors"
	"github.com/xiebiao/elibrary/pkg/response"
)

// LoanHandler 流通HTTP处理器(借出/归还/续借/借阅记录)
type LoanHandler struct {
	engine *circulation.Engine
}

// NewLoanHandler 创建流通处理器
func NewLoanHandler(engine *circulation.Engine) *LoanHandler {
	return &LoanHandler{
		engine: engine,
	}
}

// Checkout 借出
// @Summary      借出副本
// @Description  单事务完成:上限校验、副本锁定、可借册数扣减、账本记账。reservation_id非空表示凭预约取书
// @Tags         流通
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body dto.CheckoutRequest true "借出信息"
// @Success      200 {object} response.Response{data=dto.LoanResponse}
// @Failure      400 {object} response.Response "副本不可借/超出借阅上限"
// @Failure      404 {object} response.Response "书目或副本不存在"
// @Router       /api/v1/loans [post]
func (h *LoanHandler) Checkout(c *gin.Context) {
	var req dto.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithCode(c, apperrors.ErrCodeInvalidParams, "参数错误: "+err.Error())
		return
	}

	result, err := h.engine.Checkout(c.Request.Context(), circulation.CheckoutRequest{
		UserID:                middleware.MustGetUserID(c),
		BookID:                req.BookID,
		ItemID:                req.ItemID,
		FulfillsReservationID: req.ReservationID,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto.NewLoanResponse(result))
}

// Return 归还
// @Summary      归还借阅
// @Description  罚金以归还时刻重算;归还后自动唤醒该书目最早的排队预约
// @Tags         流通
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "借阅记录ID"
// @Success      200 {object} response.Response{data=dto.ReturnResponse}
// @Failure      400 {object} response.Response "已归还"
// @Failure      404 {object} response.Response "借阅记录不存在"
// @Router       /api/v1/loans/{id}/return [post]
func (h *LoanHandler) Return(c *gin.Context) {
	loanID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	result, err := h.engine.Return(c.Request.Context(), circulation.ReturnRequest{
		LoanID:      loanID,
		ActorID:     middleware.MustGetUserID(c),
		IsLibrarian: middleware.IsLibrarian(c),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	resp := &dto.ReturnResponse{Loan: dto.NewLoanResponse(result.Loan)}
	if result.NotifiedReservation != nil {
		resp.NotifiedReservation = dto.NewReservationResponse(result.NotifiedReservation)
	}

	response.Success(c, resp)
}

// Renew 续借
// @Summary      续借借阅
// @Description  新到期日从当前到期日顺延;超过续借上限返回错误(提示中带上限值)
// @Tags         流通
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "借阅记录ID"
// @Success      200 {object} response.Response{data=dto.LoanResponse}
// @Failure      400 {object} response.Response "已归还/续借次数已达上限"
// @Failure      404 {object} response.Response "借阅记录不存在"
// @Router       /api/v1/loans/{id}/renew [post]
func (h *LoanHandler) Renew(c *gin.Context) {
	loanID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	result, err := h.engine.Renew(c.Request.Context(), circulation.RenewRequest{
		LoanID:      loanID,
		ActorID:     middleware.MustGetUserID(c),
		IsLibrarian: middleware.IsLibrarian(c),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto.NewLoanResponse(result))
}

// ListLoans 借阅记录
// @Summary      分页查询我的借阅记录
// @Tags         流通
// @Produce      json
// @Security     BearerAuth
// @Param        active_only query bool false "只看在借(含逾期)"
// @Param        page query int false "页码" default(1)
// @Param        page_size query int false "每页数量" default(20)
// @Success      200 {object} response.Response{data=response.PageData}
// @Router       /api/v1/loans [get]
func (h *LoanHandler) ListLoans(c *gin.Context) {
	var req dto.ListLoansRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.ErrorWithCode(c, apperrors.ErrCodeInvalidParams, "参数错误: "+err.Error())
		return
	}
	if req.Page < 1 {
		req.Page = 1
	}
	if req.PageSize < 1 {
		req.PageSize = 20
	}

	loans, total, err := h.engine.ListLoans(c.Request.Context(),
		middleware.MustGetUserID(c), req.ActiveOnly, req.Page, req.PageSize)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, response.NewPageData(dto.NewLoanResponses(loans), total, req.Page, req.PageSize))
}
