package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Dhoini/job-tracker/internal/domain"
	"github.com/Dhoini/job-tracker/internal/service"
	"github.com/Dhoini/job-tracker/pkg/logger"
	"github.com/Dhoini/job-tracker/pkg/req"
	"github.com/Dhoini/job-tracker/pkg/res"
)

// CollectionHandler обработчик синхронизации и списков заявок и документов
type CollectionHandler struct {
	collections service.CollectionService
	workspace   service.WorkspaceService
	log         *logger.Logger
}

// NewCollectionHandler создает новый обработчик коллекций
func NewCollectionHandler(collections service.CollectionService, workspace service.WorkspaceService, log *logger.Logger) *CollectionHandler {
	return &CollectionHandler{collections: collections, workspace: workspace, log: log}
}

// Sync возвращает обработчик PUT /api/<collection>/sync/:userId.
// Тело: {"<collection>": [...]}; пустой массив удаляет все записи.
func (h *CollectionHandler) Sync(collection domain.Collection) gin.HandlerFunc {
	key := string(collection)
	return func(c *gin.Context) {
		body, err := req.Decode[map[string]json.RawMessage](c.Request.Body)
		if err != nil {
			badRequest(c, h.log, "invalid JSON body: "+err.Error())
			return
		}
		raw, ok := body[key]
		if !ok || string(raw) == "null" {
			badRequest(c, h.log, key+" must be an array")
			return
		}
		var items []domain.Item
		if err := json.Unmarshal(raw, &items); err != nil {
			badRequest(c, h.log, key+" must be an array of objects")
			return
		}

		count, err := h.collections.Sync(c.Request.Context(), collection, c.Param("userId"), items)
		if err != nil {
			abortWithError(c, h.log, err)
			return
		}
		res.OkCount(c, count)
	}
}

// List возвращает обработчик GET /api/<collection>?userId=&<filter>=&q=.
func (h *CollectionHandler) List(collection domain.Collection) gin.HandlerFunc {
	key := string(collection)
	return func(c *gin.Context) {
		filter := domain.ListFilter{
			Equals: c.Query(collection.FilterField()),
			Query:  c.Query("q"),
		}
		items, err := h.collections.List(c.Request.Context(), collection, c.Query("userId"), filter)
		if err != nil {
			abortWithError(c, h.log, err)
			return
		}
		res.JSON(c, http.StatusOK, gin.H{key: items})
	}
}

// Workspace возвращает профиль и обе коллекции пользователя
func (h *CollectionHandler) Workspace(c *gin.Context) {
	ws, err := h.workspace.Get(c.Request.Context(), c.Param("userId"))
	if err != nil {
		abortWithError(c, h.log, err)
		return
	}
	res.JSON(c, http.StatusOK, ws)
}
