package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"scanhub/internal/dao"
	"scanhub/internal/models"
	"scanhub/internal/services"
	"scanhub/pkg/apierrors"
	"scanhub/pkg/logger"
)

type ScanHandler struct {
	scanService services.ScanServiceMethods
	logger      *logger.Logger
}

func NewScanHandler(scanService services.ScanServiceMethods) *ScanHandler {
	return &ScanHandler{scanService: scanService, logger: logger.NewLogger(logrus.InfoLevel)}
}

// respondError translates service-layer errors to the HTTP taxonomy. Store
// failures and other unclassified errors are masked with a generic message.
func (h *ScanHandler) respondError(c *gin.Context, err error) {
	status := apierrors.HTTPStatus(err)

	message := err.Error()
	var upstream *apierrors.UpstreamError
	if status == http.StatusInternalServerError && !errors.As(err, &upstream) {
		message = "Internal server error"
	}

	c.JSON(status, gin.H{"success": false, "error": message})
}

func (h *ScanHandler) StartScan(c *gin.Context) {
	var req StartScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithError(err).Error("Failed to bind scan request")
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "repository_url is required"})
		return
	}

	scan, err := h.scanService.StartScan(c.Request.Context(), services.StartScanRequest{
		RepositoryURL: req.RepositoryURL,
		ScanDepth:     req.ScanDepth,
	})
	if err != nil {
		h.logger.WithFields(logger.Fields{"repository_url": req.RepositoryURL, "error": err}).Error("Failed to start scan")
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, StartScanResponse{
		Success: true,
		Scan:    scan,
		Message: "Scan started",
	})
}

func (h *ScanHandler) ReceiveCallback(c *gin.Context) {
	var req CallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithError(err).Error("Failed to bind callback payload")
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "scan_id and status are required"})
		return
	}

	scan, err := h.scanService.HandleCallback(c.Request.Context(), services.CallbackRequest{
		ScanID:          req.ScanID,
		Status:          models.Status(req.Status),
		Results:         req.Results,
		ErrorMessage:    req.ErrorMessage,
		DurationSeconds: req.DurationSeconds,
		FilesScanned:    req.FilesScanned,
	})
	if err != nil {
		h.logger.WithFields(logger.Fields{"scan_id": req.ScanID, "error": err}).Error("Callback rejected")
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, CallbackResponse{
		Success: true,
		Scan:    scan,
		Message: "Results recorded",
	})
}

func (h *ScanHandler) ListScans(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	scans, err := h.scanService.ListScans(dao.ListFilter{
		Status: models.Status(c.Query("status")),
		Search: c.Query("search"),
		Limit:  limit,
	})
	if err != nil {
		h.logger.WithError(err).Error("Failed to list scans")
		h.respondError(c, err)
		return
	}

	if scans == nil {
		scans = []models.Scan{}
	}
	c.JSON(http.StatusOK, scans)
}

func (h *ScanHandler) GetScan(c *gin.Context) {
	scan, err := h.scanService.GetScan(c.Param("id"))
	if err != nil {
		h.logger.WithFields(logger.Fields{"scan_id": c.Param("id"), "error": err}).Error("Failed to get scan")
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, scan)
}

func (h *ScanHandler) DeleteScan(c *gin.Context) {
	if c.Param("id") == "all" {
		h.DeleteAllScans(c)
		return
	}

	scan, err := h.scanService.DeleteScan(c.Param("id"))
	if err != nil {
		h.logger.WithFields(logger.Fields{"scan_id": c.Param("id"), "error": err}).Error("Failed to delete scan")
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, DeleteResponse{
		Success:      true,
		Message:      fmt.Sprintf("Scan %s deleted", scan.ID),
		DeletedCount: 1,
	})
}

func (h *ScanHandler) DeleteScans(c *gin.Context) {
	var req BulkDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "ids list is required"})
		return
	}

	result, err := h.scanService.DeleteScans(req.IDs)
	if err != nil {
		h.logger.WithFields(logger.Fields{"ids": len(req.IDs), "error": err}).Error("Bulk delete refused")
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, DeleteResponse{
		Success:      true,
		Message:      fmt.Sprintf("%d scan(s) deleted", result.DeletedCount),
		DeletedCount: result.DeletedCount,
	})
}

func (h *ScanHandler) DeleteAllScans(c *gin.Context) {
	var req DeleteAllRequest
	_ = c.ShouldBindJSON(&req)

	result, err := h.scanService.DeleteAllScans(req.Confirm)
	if err != nil {
		h.logger.WithError(err).Error("Delete all refused")
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, DeleteResponse{
		Success:      true,
		Message:      fmt.Sprintf("All scans deleted (%d)", result.DeletedCount),
		DeletedCount: result.DeletedCount,
	})
}

func (h *ScanHandler) GetStats(c *gin.Context) {
	stats, err := h.scanService.Stats()
	if err != nil {
		h.logger.WithError(err).Error("Failed to compute stats")
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *ScanHandler) GetScanDepths(c *gin.Context) {
	c.JSON(http.StatusOK, h.scanService.DepthProfiles())
}
