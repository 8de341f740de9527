package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/Dhoini/job-tracker/pkg/res"
)

// HealthCheck обработчик для проверки работоспособности сервиса
func HealthCheck(c *gin.Context) {
	res.Ok(c)
}
