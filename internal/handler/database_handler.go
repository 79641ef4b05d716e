package handler

import (
	"net/http"

	"spec-mc/internal/service"

	"github.com/gin-gonic/gin"
)

type DatabaseHandler struct {
	registry *service.DatabaseRegistry
}

func NewDatabaseHandler(registry *service.DatabaseRegistry) *DatabaseHandler {
	return &DatabaseHandler{registry: registry}
}

// ListDatabases 列出可选的热力学数据库
func (h *DatabaseHandler) ListDatabases(c *gin.Context) {
	names, err := h.registry.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	defaultRef, _ := h.registry.Default()
	c.JSON(http.StatusOK, gin.H{
		"databases": names,
		"default":   defaultRef.Name,
	})
}
