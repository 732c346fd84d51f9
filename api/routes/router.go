package routes

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"scanhub/internal/handlers"
	"scanhub/internal/notifier"
	"scanhub/internal/services"
)

func InitRouter(db *gorm.DB, scanService services.ScanServiceMethods, hub *notifier.Hub) *gin.Engine {
	router := gin.Default()
	router.Use(cors.Default())

	scanHandlers := handlers.NewScanHandler(scanService)
	healthHandlers := handlers.NewHealthHandler(db, hub)

	// REST APIs
	api := router.Group("/api")
	{
		InitScanRoutes(api, scanHandlers)
	}

	router.GET("/health", healthHandlers.Health)
	router.GET("/ws", func(c *gin.Context) {
		hub.ServeWS(c.Writer, c.Request)
	})

	// dashboard
	router.Static("/static", "./static")
	router.StaticFile("/", "./static/index.html")

	return router
}
