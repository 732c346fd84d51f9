package handlers

import "scanhub/internal/models"

type StartScanRequest struct {
	RepositoryURL string `json:"repository_url" binding:"required"`
	ScanDepth     string `json:"scan_depth"`
}

type StartScanResponse struct {
	Success bool         `json:"success"`
	Scan    *models.Scan `json:"scan"`
	Message string       `json:"message,omitempty"`
}

type CallbackRequest struct {
	ScanID          string                       `json:"scan_id" binding:"required"`
	Status          string                       `json:"status" binding:"required"`
	Results         *models.VulnerabilitySummary `json:"results"`
	ErrorMessage    string                       `json:"error_message"`
	DurationSeconds int                          `json:"duration"`
	FilesScanned    int                          `json:"files_scanned"`
}

type CallbackResponse struct {
	Success bool         `json:"success"`
	Scan    *models.Scan `json:"scan,omitempty"`
	Message string       `json:"message,omitempty"`
}

type BulkDeleteRequest struct {
	IDs []string `json:"ids" binding:"required"`
}

type DeleteAllRequest struct {
	Confirm string `json:"confirm"`
}

type DeleteResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message,omitempty"`
	DeletedCount int64  `json:"deleted_count,omitempty"`
}
