package routes

import (
	"github.com/gin-gonic/gin"

	"scanhub/internal/handlers"
)

func InitScanRoutes(router *gin.RouterGroup, h *handlers.ScanHandler) {
	scanRoutes := router.Group("/scans")
	{
		scanRoutes.POST("", h.StartScan)
		scanRoutes.POST("/callback", h.ReceiveCallback)
		scanRoutes.GET("", h.ListScans)
		// DELETE /scans/all is routed through the :id wildcard; the handler
		// dispatches on the literal "all" since gin's tree cannot hold both.
		scanRoutes.GET("/:id", h.GetScan)
		scanRoutes.DELETE("/:id", h.DeleteScan)
		scanRoutes.DELETE("", h.DeleteScans)
	}

	router.GET("/stats", h.GetStats)
	router.GET("/scan-depths", h.GetScanDepths)
}
