package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Dhoini/job-tracker/internal/domain"
	"github.com/Dhoini/job-tracker/pkg/logger"
	"github.com/Dhoini/job-tracker/pkg/res"
)

// StatusFor переводит категорию ошибки ядра в HTTP-статус.
func StatusFor(err error) int {
	switch domain.KindOf(err) {
	case domain.KindValidation, domain.KindUnverified:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// abortWithError логирует ошибку и отвечает безопасным для клиента сообщением.
func abortWithError(c *gin.Context, log *logger.Logger, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		log.Errorw("Request failed", "path", c.FullPath(), "error", err)
	} else {
		log.Warnw("Request rejected", "path", c.FullPath(), "status", status, "error", err)
	}
	res.Error(c, status, domain.PublicMessage(err), nil)
}

// badRequest отвечает 400 на неразбираемое или невалидное тело.
func badRequest(c *gin.Context, log *logger.Logger, message string) {
	log.Warnw("Invalid request", "path", c.FullPath(), "error", message)
	res.Error(c, http.StatusBadRequest, message, nil)
}
