package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Dhoini/job-tracker/internal/domain"
	"github.com/Dhoini/job-tracker/internal/service"
	"github.com/Dhoini/job-tracker/pkg/logger"
	"github.com/Dhoini/job-tracker/pkg/req"
	"github.com/Dhoini/job-tracker/pkg/res"
)

type checkoutRequest struct {
	UserID string      `json:"userId" validate:"required"`
	Email  string      `json:"email"`
	Name   string      `json:"name"`
	Plan   domain.Plan `json:"plan" validate:"omitempty,oneof=pro team"`
}

type cancelRequest struct {
	UserID    string `json:"userId" validate:"required"`
	Email     string `json:"email"`
	Immediate bool   `json:"immediate"`
}

type reactivateRequest struct {
	UserID string `json:"userId" validate:"required"`
	Email  string `json:"email"`
}

// BillingResponse - снимок Billing и производные от него права.
type BillingResponse struct {
	Billing       domain.Billing `json:"billing"`
	Entitled      bool           `json:"entitled"`
	EffectivePlan domain.Plan    `json:"effectivePlan"`
}

func billingResponse(b domain.Billing) BillingResponse {
	return BillingResponse{Billing: b, Entitled: b.Entitled(), EffectivePlan: b.EffectivePlan()}
}

// BillingHandler обработчик для подписок
type BillingHandler struct {
	service service.BillingService
	log     *logger.Logger
}

// NewBillingHandler создает новый обработчик подписок
func NewBillingHandler(svc service.BillingService, log *logger.Logger) *BillingHandler {
	return &BillingHandler{service: svc, log: log}
}

// Checkout создает сессию оплаты и возвращает ее URL
func (h *BillingHandler) Checkout(c *gin.Context) {
	body, err := req.DecodeValid[checkoutRequest](c.Request.Body)
	if err != nil {
		badRequest(c, h.log, req.Describe(err))
		return
	}

	url, err := h.service.Checkout(c.Request.Context(), service.CheckoutRequest{
		UserID: body.UserID,
		Email:  body.Email,
		Name:   body.Name,
		Plan:   body.Plan,
	})
	if err != nil {
		abortWithError(c, h.log, err)
		return
	}
	res.JSON(c, http.StatusOK, gin.H{"url": url})
}

// Status возвращает текущий Billing пользователя
func (h *BillingHandler) Status(c *gin.Context) {
	refresh, _ := strconv.ParseBool(c.DefaultQuery("refresh", "false"))

	b, err := h.service.Status(c.Request.Context(), c.Query("userId"), c.Query("email"), refresh)
	if err != nil {
		abortWithError(c, h.log, err)
		return
	}
	res.JSON(c, http.StatusOK, billingResponse(b))
}

// Cancel отменяет подписку сразу или в конце периода
func (h *BillingHandler) Cancel(c *gin.Context) {
	body, err := req.DecodeValid[cancelRequest](c.Request.Body)
	if err != nil {
		badRequest(c, h.log, req.Describe(err))
		return
	}

	b, err := h.service.Cancel(c.Request.Context(), body.UserID, body.Immediate)
	if err != nil {
		abortWithError(c, h.log, err)
		return
	}
	res.JSON(c, http.StatusOK, billingResponse(b))
}

// Reactivate снимает запланированную отмену
func (h *BillingHandler) Reactivate(c *gin.Context) {
	body, err := req.DecodeValid[reactivateRequest](c.Request.Body)
	if err != nil {
		badRequest(c, h.log, req.Describe(err))
		return
	}

	b, err := h.service.Reactivate(c.Request.Context(), body.UserID)
	if err != nil {
		abortWithError(c, h.log, err)
		return
	}
	res.JSON(c, http.StatusOK, billingResponse(b))
}
