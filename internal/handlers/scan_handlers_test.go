package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"scanhub/internal/dao"
	"scanhub/internal/models"
	"scanhub/internal/services"
	"scanhub/pkg/apierrors"
)

type MockScanService struct {
	mock.Mock
}

func (m *MockScanService) StartScan(ctx context.Context, req services.StartScanRequest) (*models.Scan, error) {
	args := m.Called(req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Scan), args.Error(1)
}

func (m *MockScanService) HandleCallback(ctx context.Context, req services.CallbackRequest) (*models.Scan, error) {
	args := m.Called(req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Scan), args.Error(1)
}

func (m *MockScanService) GetScan(id string) (*models.Scan, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Scan), args.Error(1)
}

func (m *MockScanService) ListScans(filter dao.ListFilter) ([]models.Scan, error) {
	args := m.Called(filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Scan), args.Error(1)
}

func (m *MockScanService) DeleteScan(id string) (*models.Scan, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Scan), args.Error(1)
}

func (m *MockScanService) DeleteScans(ids []string) (*services.DeleteResult, error) {
	args := m.Called(ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.DeleteResult), args.Error(1)
}

func (m *MockScanService) DeleteAllScans(confirm string) (*services.DeleteResult, error) {
	args := m.Called(confirm)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.DeleteResult), args.Error(1)
}

func (m *MockScanService) Stats() (*services.Stats, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.Stats), args.Error(1)
}

func (m *MockScanService) DepthProfiles() []services.DepthProfile {
	args := m.Called()
	return args.Get(0).([]services.DepthProfile)
}

func newTestRouter(service services.ScanServiceMethods) *gin.Engine {
	gin.SetMode(gin.TestMode)
	handler := NewScanHandler(service)
	router := gin.New()
	router.POST("/api/scans", handler.StartScan)
	router.POST("/api/scans/callback", handler.ReceiveCallback)
	router.GET("/api/scans", handler.ListScans)
	router.GET("/api/scans/:id", handler.GetScan)
	router.DELETE("/api/scans/:id", handler.DeleteScan)
	router.DELETE("/api/scans", handler.DeleteScans)
	router.GET("/api/stats", handler.GetStats)
	return router
}

func doJSON(router *gin.Engine, method, url, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req, _ = http.NewRequest(method, url, nil)
	} else {
		req, _ = http.NewRequest(method, url, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestStartScan(t *testing.T) {
	startedAt, _ := time.Parse(time.RFC3339, "2024-03-01T10:00:00Z")

	tests := []struct {
		name           string
		requestBody    string
		setupMock      func(*MockScanService)
		expectedStatus int
		checkBody      func(*testing.T, string)
	}{
		{
			name:        "Valid Request - Success",
			requestBody: `{"repository_url":"https://github.com/acme/widget"}`,
			setupMock: func(m *MockScanService) {
				m.On("StartScan", mock.MatchedBy(func(req services.StartScanRequest) bool {
					return req.RepositoryURL == "https://github.com/acme/widget"
				})).Return(&models.Scan{
					ID:         "scan-1",
					Repository: "acme/widget",
					Status:     models.StatusRunning,
					StartedAt:  startedAt,
				}, nil)
			},
			expectedStatus: 201,
			checkBody: func(t *testing.T, body string) {
				assert.Contains(t, body, `"acme/widget"`)
				assert.Contains(t, body, `"running"`)
			},
		},
		{
			name:           "Invalid JSON - Malformed",
			requestBody:    `{"repository_url":}`,
			setupMock:      func(m *MockScanService) {},
			expectedStatus: 400,
		},
		{
			name:           "Missing Required Field",
			requestBody:    `{"scan_depth":"quick"}`,
			setupMock:      func(m *MockScanService) {},
			expectedStatus: 400,
		},
		{
			name:        "Malformed URL - InvalidInput",
			requestBody: `{"repository_url":"ftp://github.com/acme/widget"}`,
			setupMock: func(m *MockScanService) {
				m.On("StartScan", mock.Anything).
					Return(nil, fmt.Errorf("%w: bad url", apierrors.ErrInvalidInput))
			},
			expectedStatus: 400,
		},
		{
			name:        "Repository Missing - NotFound",
			requestBody: `{"repository_url":"https://github.com/acme/ghost"}`,
			setupMock: func(m *MockScanService) {
				m.On("StartScan", mock.Anything).
					Return(nil, fmt.Errorf("%w: repository acme/ghost not found", apierrors.ErrNotFound))
			},
			expectedStatus: 404,
		},
		{
			name:        "Dispatch Failure - UpstreamFailure",
			requestBody: `{"repository_url":"https://github.com/acme/widget"}`,
			setupMock: func(m *MockScanService) {
				m.On("StartScan", mock.Anything).
					Return(&models.Scan{ID: "scan-2", Status: models.StatusFailed},
						apierrors.NewUpstreamError("workflow dispatch", errors.New("api unreachable")))
			},
			expectedStatus: 500,
			checkBody: func(t *testing.T, body string) {
				assert.Contains(t, body, "workflow dispatch")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockScanService)
			tt.setupMock(mockService)

			router := newTestRouter(mockService)
			w := doJSON(router, "POST", "/api/scans", tt.requestBody)

			assert.Equal(t, tt.expectedStatus, w.Code,
				"Expected status %d, got %d. Response: %s", tt.expectedStatus, w.Code, w.Body.String())
			if tt.checkBody != nil {
				tt.checkBody(t, w.Body.String())
			}
			mockService.AssertExpectations(t)
		})
	}
}

func TestReceiveCallback(t *testing.T) {
	tests := []struct {
		name           string
		requestBody    string
		setupMock      func(*MockScanService)
		expectedStatus int
	}{
		{
			name:        "Completed Callback",
			requestBody: `{"scan_id":"scan-1","status":"completed","results":{"critical":1,"high":2,"medium":0,"low":0},"duration":42,"files_scanned":120}`,
			setupMock: func(m *MockScanService) {
				m.On("HandleCallback", mock.MatchedBy(func(req services.CallbackRequest) bool {
					return req.ScanID == "scan-1" &&
						req.Status == models.StatusCompleted &&
						req.Results != nil && req.Results.Critical == 1 && req.Results.High == 2 &&
						req.DurationSeconds == 42 && req.FilesScanned == 120
				})).Return(&models.Scan{ID: "scan-1", Status: models.StatusCompleted}, nil)
			},
			expectedStatus: 200,
		},
		{
			name:           "Missing scan_id",
			requestBody:    `{"status":"completed"}`,
			setupMock:      func(m *MockScanService) {},
			expectedStatus: 400,
		},
		{
			name:        "Unknown Scan",
			requestBody: `{"scan_id":"missing","status":"completed"}`,
			setupMock: func(m *MockScanService) {
				m.On("HandleCallback", mock.Anything).
					Return(nil, fmt.Errorf("%w: scan missing", apierrors.ErrNotFound))
			},
			expectedStatus: 404,
		},
		{
			name:        "Already Terminal - Conflict",
			requestBody: `{"scan_id":"scan-1","status":"failed"}`,
			setupMock: func(m *MockScanService) {
				m.On("HandleCallback", mock.Anything).
					Return(nil, fmt.Errorf("%w: scan scan-1 already completed", apierrors.ErrConflict))
			},
			expectedStatus: 409,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockScanService)
			tt.setupMock(mockService)

			router := newTestRouter(mockService)
			w := doJSON(router, "POST", "/api/scans/callback", tt.requestBody)

			assert.Equal(t, tt.expectedStatus, w.Code, "Response: %s", w.Body.String())
			mockService.AssertExpectations(t)
		})
	}
}

func TestListScans(t *testing.T) {
	t.Run("Status Filter Passed Through", func(t *testing.T) {
		mockService := new(MockScanService)
		mockService.On("ListScans", dao.ListFilter{
			Status: models.StatusCompleted,
			Search: "widget",
			Limit:  10,
		}).Return([]models.Scan{
			{ID: "a", Status: models.StatusCompleted},
		}, nil)

		router := newTestRouter(mockService)
		w := doJSON(router, "GET", "/api/scans?status=completed&search=widget&limit=10", "")

		assert.Equal(t, 200, w.Code)
		assert.Contains(t, w.Body.String(), `"completed"`)
		mockService.AssertExpectations(t)
	})

	t.Run("Invalid Limit Rejected", func(t *testing.T) {
		mockService := new(MockScanService)
		router := newTestRouter(mockService)
		w := doJSON(router, "GET", "/api/scans?limit=zero", "")

		assert.Equal(t, 400, w.Code)
		mockService.AssertNotCalled(t, "ListScans", mock.Anything)
	})

	t.Run("Empty Result Is An Array", func(t *testing.T) {
		mockService := new(MockScanService)
		mockService.On("ListScans", mock.Anything).Return([]models.Scan(nil), nil)

		router := newTestRouter(mockService)
		w := doJSON(router, "GET", "/api/scans", "")

		assert.Equal(t, 200, w.Code)
		assert.JSONEq(t, `[]`, w.Body.String())
	})
}

func TestGetScan(t *testing.T) {
	tests := []struct {
		name           string
		scanID         string
		setupMock      func(*MockScanService)
		expectedStatus int
	}{
		{
			name:   "Scan Found",
			scanID: "scan-1",
			setupMock: func(m *MockScanService) {
				m.On("GetScan", "scan-1").Return(&models.Scan{
					ID: "scan-1", Repository: "acme/widget", Status: models.StatusRunning,
				}, nil)
			},
			expectedStatus: 200,
		},
		{
			name:   "Scan Not Found",
			scanID: "missing",
			setupMock: func(m *MockScanService) {
				m.On("GetScan", "missing").
					Return(nil, fmt.Errorf("%w: scan missing", apierrors.ErrNotFound))
			},
			expectedStatus: 404,
		},
		{
			name:   "Store Failure Masked",
			scanID: "scan-9",
			setupMock: func(m *MockScanService) {
				m.On("GetScan", "scan-9").Return(nil, errors.New("pq: connection reset"))
			},
			expectedStatus: 500,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockScanService)
			tt.setupMock(mockService)

			router := newTestRouter(mockService)
			w := doJSON(router, "GET", "/api/scans/"+tt.scanID, "")

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.name == "Store Failure Masked" {
				assert.NotContains(t, w.Body.String(), "pq:")
			}
			mockService.AssertExpectations(t)
		})
	}
}

func TestDeleteScan(t *testing.T) {
	tests := []struct {
		name           string
		scanID         string
		setupMock      func(*MockScanService)
		expectedStatus int
	}{
		{
			name:   "Successful Deletion",
			scanID: "scan-1",
			setupMock: func(m *MockScanService) {
				m.On("DeleteScan", "scan-1").Return(&models.Scan{
					ID: "scan-1", Status: models.StatusCompleted,
				}, nil)
			},
			expectedStatus: 200,
		},
		{
			name:   "Running Scan Refused",
			scanID: "scan-2",
			setupMock: func(m *MockScanService) {
				m.On("DeleteScan", "scan-2").
					Return(nil, fmt.Errorf("%w: cannot delete a running scan", apierrors.ErrConflict))
			},
			expectedStatus: 409,
		},
		{
			name:   "Scan Not Found",
			scanID: "missing",
			setupMock: func(m *MockScanService) {
				m.On("DeleteScan", "missing").
					Return(nil, fmt.Errorf("%w: scan missing", apierrors.ErrNotFound))
			},
			expectedStatus: 404,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockScanService)
			tt.setupMock(mockService)

			router := newTestRouter(mockService)
			w := doJSON(router, "DELETE", "/api/scans/"+tt.scanID, "")

			assert.Equal(t, tt.expectedStatus, w.Code)
			mockService.AssertExpectations(t)
		})
	}
}

func TestDeleteScanAllKeyword(t *testing.T) {
	mockService := new(MockScanService)
	mockService.On("DeleteAllScans", "DELETE_ALL").
		Return(&services.DeleteResult{DeletedCount: 3}, nil)

	router := newTestRouter(mockService)
	w := doJSON(router, "DELETE", "/api/scans/all", `{"confirm":"DELETE_ALL"}`)

	assert.Equal(t, 200, w.Code)
	assert.Contains(t, w.Body.String(), `"deleted_count":3`)
	mockService.AssertNotCalled(t, "DeleteScan", mock.Anything)
	mockService.AssertExpectations(t)
}

func TestDeleteAllWithoutToken(t *testing.T) {
	mockService := new(MockScanService)
	mockService.On("DeleteAllScans", "").
		Return(nil, fmt.Errorf("%w: confirmation required", apierrors.ErrInvalidInput))

	router := newTestRouter(mockService)
	w := doJSON(router, "DELETE", "/api/scans/all", `{}`)

	assert.Equal(t, 400, w.Code)
	mockService.AssertExpectations(t)
}

func TestDeleteScansBulk(t *testing.T) {
	t.Run("Batch Refused On Running", func(t *testing.T) {
		mockService := new(MockScanService)
		mockService.On("DeleteScans", []string{"a", "b"}).
			Return(nil, fmt.Errorf("%w: 1 of the targeted scans are running", apierrors.ErrConflict))

		router := newTestRouter(mockService)
		w := doJSON(router, "DELETE", "/api/scans", `{"ids":["a","b"]}`)

		assert.Equal(t, 409, w.Code)
		mockService.AssertExpectations(t)
	})

	t.Run("Batch Success", func(t *testing.T) {
		mockService := new(MockScanService)
		mockService.On("DeleteScans", []string{"a", "b"}).
			Return(&services.DeleteResult{DeletedCount: 2}, nil)

		router := newTestRouter(mockService)
		w := doJSON(router, "DELETE", "/api/scans", `{"ids":["a","b"]}`)

		assert.Equal(t, 200, w.Code)
		assert.Contains(t, w.Body.String(), `"deleted_count":2`)
	})

	t.Run("Missing ids", func(t *testing.T) {
		mockService := new(MockScanService)
		router := newTestRouter(mockService)
		w := doJSON(router, "DELETE", "/api/scans", `{}`)

		assert.Equal(t, 400, w.Code)
		mockService.AssertNotCalled(t, "DeleteScans", mock.Anything)
	})
}

func TestGetStats(t *testing.T) {
	mockService := new(MockScanService)
	mockService.On("Stats").Return(&services.Stats{
		TotalScans:     5,
		CompletedScans: 3,
		FailedScans:    1,
		RunningScans:   1,
		Severity: &dao.SeverityAggregate{
			TotalCritical: 2,
			TotalHigh:     4,
		},
	}, nil)

	router := newTestRouter(mockService)
	w := doJSON(router, "GET", "/api/stats", "")

	assert.Equal(t, 200, w.Code)
	assert.Contains(t, w.Body.String(), `"total_scans":5`)
	assert.Contains(t, w.Body.String(), `"total_critical":2`)
	mockService.AssertExpectations(t)
}
