package catalog

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	catalog *Catalog
}

func NewHandler(catalog *Catalog) *Handler {
	return &Handler{catalog: catalog}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/search", h.search)
}

type SearchRequest struct {
	Query string `json:"query" binding:"required"`
}

func (h *Handler) search(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Search query is required"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"results": h.catalog.Search(req.Query),
	})
}
