package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"scanhub/internal/database"
	"scanhub/internal/notifier"
)

type HealthHandler struct {
	db  *gorm.DB
	hub *notifier.Hub
}

func NewHealthHandler(db *gorm.DB, hub *notifier.Hub) *HealthHandler {
	return &HealthHandler{db: db, hub: hub}
}

func (h *HealthHandler) Health(c *gin.Context) {
	dbStatus := "connected"
	status := "healthy"
	code := http.StatusOK
	if err := database.Ping(h.db); err != nil {
		dbStatus = "disconnected"
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"database":  dbStatus,
		"websocket": "active",
		"clients":   h.hub.ClientCount(),
	})
}
