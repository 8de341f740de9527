package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Dhoini/job-tracker/internal/domain"
	"github.com/Dhoini/job-tracker/internal/service"
	"github.com/Dhoini/job-tracker/pkg/logger"
	"github.com/Dhoini/job-tracker/pkg/req"
	"github.com/Dhoini/job-tracker/pkg/res"
)

type upsertUserRequest struct {
	User domain.UserIdentity `json:"user" validate:"required"`
}

type profileRequest struct {
	Profile domain.Profile `json:"profile" validate:"required"`
}

type profileResponse struct {
	Profile domain.Profile `json:"profile"`
}

// UserHandler обработчик для пользователей и профилей
type UserHandler struct {
	service service.UserService
	log     *logger.Logger
}

// NewUserHandler создает новый обработчик пользователей
func NewUserHandler(svc service.UserService, log *logger.Logger) *UserHandler {
	return &UserHandler{service: svc, log: log}
}

// UpsertUser создает или обновляет пользователя при входе
func (h *UserHandler) UpsertUser(c *gin.Context) {
	body, err := req.DecodeValid[upsertUserRequest](c.Request.Body)
	if err != nil {
		badRequest(c, h.log, req.Describe(err))
		return
	}

	if err := h.service.UpsertUser(c.Request.Context(), body.User); err != nil {
		abortWithError(c, h.log, err)
		return
	}
	res.Ok(c)
}

// GetProfile возвращает профиль пользователя (null, если его нет)
func (h *UserHandler) GetProfile(c *gin.Context) {
	profile, err := h.service.GetProfile(c.Request.Context(), c.Param("userId"))
	if err != nil {
		abortWithError(c, h.log, err)
		return
	}
	res.JSON(c, http.StatusOK, profileResponse{Profile: profile})
}

// PutProfile сливает присланный профиль с сохраненным
func (h *UserHandler) PutProfile(c *gin.Context) {
	body, err := req.DecodeValid[profileRequest](c.Request.Body)
	if err != nil {
		badRequest(c, h.log, req.Describe(err))
		return
	}

	if err := h.service.PutProfile(c.Request.Context(), c.Param("userId"), body.Profile); err != nil {
		abortWithError(c, h.log, err)
		return
	}
	res.Ok(c)
}
