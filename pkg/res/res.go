package res

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorResponse представляет формат JSON-ответа для ошибок.
type ErrorResponse struct {
	Error   string `json:"error"`             // Сообщение об ошибке (для пользователя)
	Details any    `json:"details,omitempty"` // Детали ошибки (например, ошибки валидации)
}

// OK - стандартный ответ об успехе.
type OK struct {
	OK    bool `json:"ok"`
	Count *int `json:"count,omitempty"`
}

// JSON отправляет JSON-ответ с заданным статусом.
func JSON(c *gin.Context, status int, data any) {
	c.JSON(status, data)
}

// Ok отвечает {"ok":true}.
func Ok(c *gin.Context) {
	c.JSON(http.StatusOK, OK{OK: true})
}

// OkCount отвечает {"ok":true,"count":n}.
func OkCount(c *gin.Context, n int) {
	c.JSON(http.StatusOK, OK{OK: true, Count: &n})
}

// Error прерывает обработку и отправляет JSON ошибки.
func Error(c *gin.Context, status int, message string, details any) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: message, Details: details})
}
