package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"scanhub/internal/dao"
	gh "scanhub/internal/github"
	"scanhub/internal/models"
	"scanhub/internal/notifier"
	"scanhub/pkg/apierrors"
	"scanhub/pkg/logger"
	"scanhub/pkg/parsers"
)

const dispatchTimeout = 30 * time.Second

type StartScanRequest struct {
	RepositoryURL string
	ScanDepth     string
}

type CallbackRequest struct {
	ScanID          string
	Status          models.Status
	Results         *models.VulnerabilitySummary
	ErrorMessage    string
	DurationSeconds int
	FilesScanned    int
}

// Stats is the aggregate projection served by the stats endpoint.
type Stats struct {
	TotalScans     int64                  `json:"total_scans"`
	CompletedScans int64                  `json:"completed_scans"`
	FailedScans    int64                  `json:"failed_scans"`
	RunningScans   int64                  `json:"running_scans"`
	PendingScans   int64                  `json:"pending_scans"`
	Severity       *dao.SeverityAggregate `json:"severity"`
}

type DeleteResult struct {
	DeletedCount int64         `json:"deleted_count"`
	Deleted      []models.Scan `json:"deleted,omitempty"`
}

// TerminalNotifier receives scans that reached a terminal status. Optional.
type TerminalNotifier interface {
	NotifyScanFinished(scan *models.Scan) error
}

type ScanServiceMethods interface {
	StartScan(ctx context.Context, req StartScanRequest) (*models.Scan, error)
	HandleCallback(ctx context.Context, req CallbackRequest) (*models.Scan, error)
	GetScan(id string) (*models.Scan, error)
	ListScans(filter dao.ListFilter) ([]models.Scan, error)
	DeleteScan(id string) (*models.Scan, error)
	DeleteScans(ids []string) (*DeleteResult, error)
	DeleteAllScans(confirm string) (*DeleteResult, error)
	Stats() (*Stats, error)
	DepthProfiles() []DepthProfile
}

type scanService struct {
	scanDao     dao.ScanDAO
	statDao     dao.StatDAO
	verifier    gh.RepoVerifier
	dispatcher  gh.WorkflowDispatcher
	broadcaster notifier.Broadcaster
	terminal    TerminalNotifier
	depths      *DepthProfiles
	callbackURL string
	logger      *logger.Logger
}

type ScanServiceOptions struct {
	ScanDAO     dao.ScanDAO
	StatDAO     dao.StatDAO
	Verifier    gh.RepoVerifier
	Dispatcher  gh.WorkflowDispatcher
	Broadcaster notifier.Broadcaster
	Terminal    TerminalNotifier
	Depths      *DepthProfiles
	CallbackURL string
	Logger      *logger.Logger
}

func NewScanService(opts ScanServiceOptions) ScanServiceMethods {
	log := opts.Logger
	if log == nil {
		log = logger.NewLogger(logrus.InfoLevel)
	}
	return &scanService{
		scanDao:     opts.ScanDAO,
		statDao:     opts.StatDAO,
		verifier:    opts.Verifier,
		dispatcher:  opts.Dispatcher,
		broadcaster: opts.Broadcaster,
		terminal:    opts.Terminal,
		depths:      opts.Depths,
		callbackURL: opts.CallbackURL,
		logger:      log,
	}
}

// StartScan validates the repository URL, confirms the repository exists,
// persists a pending record and dispatches the scan workflow. The record is
// created before the dispatch so a dispatch failure stays visible in history
// as a failed scan.
func (s *scanService) StartScan(ctx context.Context, req StartScanRequest) (*models.Scan, error) {
	ref, err := parsers.ParseRepoURL(req.RepositoryURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apierrors.ErrInvalidInput, err)
	}

	depth, err := s.depths.Resolve(req.ScanDepth)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apierrors.ErrInvalidInput, err)
	}

	exists, err := s.verifier.RepositoryExists(ctx, ref.Owner, ref.Name)
	if err != nil {
		return nil, apierrors.NewUpstreamError("repository check", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: repository %s not found or not accessible", apierrors.ErrNotFound, ref.FullName())
	}

	scan := &models.Scan{
		ID:          uuid.New().String(),
		SourceURL:   req.RepositoryURL,
		Repository:  ref.FullName(),
		Status:      models.StatusPending,
		ScanDepth:   depth,
		CallbackURL: s.callbackURL,
		StartedAt:   time.Now().UTC(),
	}

	if err := s.scanDao.SaveScan(scan); err != nil {
		s.logger.WithError(err).Error("SaveScan failed")
		return nil, err
	}

	s.broadcaster.Broadcast(notifier.Event{Type: notifier.EventScanStarted, Scan: scan})

	dispatchCtx, cancel := context.WithTimeout(ctx, dispatchTimeout)
	defer cancel()

	dispatchErr := s.dispatcher.DispatchScanWorkflow(dispatchCtx, gh.DispatchRequest{
		TargetRepo:  req.RepositoryURL,
		ScanID:      scan.ID,
		CallbackURL: s.callbackURL,
		ScanDepth:   depth,
	})
	if dispatchErr != nil {
		s.logger.WithFields(logger.Fields{"scan_id": scan.ID, "error": dispatchErr}).Error("Workflow dispatch failed")
		now := time.Now().UTC()
		scan.Status = models.StatusFailed
		scan.ErrorMessage = fmt.Sprintf("workflow dispatch failed: %v", dispatchErr)
		scan.CompletedAt = &now
		if err := s.scanDao.UpdateScan(scan); err != nil {
			s.logger.WithFields(logger.Fields{"scan_id": scan.ID, "error": err}).Error("Failed to persist dispatch failure")
		}
		s.broadcaster.Broadcast(notifier.Event{Type: notifier.EventScanUpdate, Scan: scan})
		return scan, apierrors.NewUpstreamError("workflow dispatch", dispatchErr)
	}

	scan.Status = models.StatusRunning
	if err := s.scanDao.UpdateScan(scan); err != nil {
		s.logger.WithFields(logger.Fields{"scan_id": scan.ID, "error": err}).Error("Failed to persist running status")
		return nil, err
	}

	s.broadcaster.Broadcast(notifier.Event{Type: notifier.EventScanUpdate, Scan: scan})

	s.logger.WithFields(logger.Fields{
		"scan_id":    scan.ID,
		"repository": scan.Repository,
		"depth":      depth,
	}).Info("Scan dispatched")

	return scan, nil
}

// HandleCallback applies a terminal status reported by the scan workflow.
// A callback for a scan that is already terminal is rejected so duplicate or
// out-of-order callbacks cannot rewrite history or double-count stats.
func (s *scanService) HandleCallback(ctx context.Context, req CallbackRequest) (*models.Scan, error) {
	if req.ScanID == "" {
		return nil, fmt.Errorf("%w: scan_id is required", apierrors.ErrInvalidInput)
	}
	if !req.Status.Valid() || !req.Status.Terminal() {
		return nil, fmt.Errorf("%w: callback status must be completed or failed, got %q", apierrors.ErrInvalidInput, req.Status)
	}

	scan, err := s.scanDao.GetScanByID(req.ScanID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: scan %s", apierrors.ErrNotFound, req.ScanID)
		}
		return nil, err
	}

	if !scan.Status.CanTransitionTo(req.Status) {
		return nil, fmt.Errorf("%w: scan %s already %s", apierrors.ErrConflict, scan.ID, scan.Status)
	}

	now := time.Now().UTC()
	scan.Status = req.Status
	scan.CompletedAt = &now
	scan.DurationSeconds = req.DurationSeconds
	scan.FilesScanned = req.FilesScanned
	if req.Status == models.StatusCompleted {
		scan.Results = req.Results
	} else {
		scan.ErrorMessage = req.ErrorMessage
	}

	if err := s.scanDao.UpdateScan(scan); err != nil {
		s.logger.WithFields(logger.Fields{"scan_id": scan.ID, "error": err}).Error("Failed to persist callback update")
		return nil, err
	}

	if req.Status == models.StatusCompleted && req.Results != nil {
		stat := &models.ScanStat{
			ScanID:          scan.ID,
			Vulnerabilities: req.Results.Total(),
			CriticalCount:   req.Results.Critical,
			HighCount:       req.Results.High,
			MediumCount:     req.Results.Medium,
			LowCount:        req.Results.Low,
		}
		if err := s.statDao.SaveStat(stat); err != nil {
			// The scan itself is already terminal; a lost stat row only skews
			// aggregates.
			s.logger.WithFields(logger.Fields{"scan_id": scan.ID, "error": err}).Error("Failed to save scan stats")
		}
	}

	s.broadcaster.Broadcast(notifier.Event{Type: notifier.EventScanUpdate, Scan: scan})
	if scan.Status == models.StatusCompleted && scan.Results != nil {
		s.broadcaster.Broadcast(notifier.Event{
			Type: notifier.EventScanCompleted,
			Scan: scan,
			Summary: &notifier.CompletionSummary{
				Repository:           scan.Repository,
				TotalVulnerabilities: scan.Results.Total(),
				DurationSeconds:      scan.DurationSeconds,
				FilesScanned:         scan.FilesScanned,
			},
		})
	}

	if s.terminal != nil {
		go func(scan models.Scan) {
			if err := s.terminal.NotifyScanFinished(&scan); err != nil {
				s.logger.WithFields(logger.Fields{"scan_id": scan.ID, "error": err}).Warn("Terminal notification failed")
			}
		}(*scan)
	}

	s.logger.WithFields(logger.Fields{"scan_id": scan.ID, "status": scan.Status}).Info("Callback processed")
	return scan, nil
}

func (s *scanService) GetScan(id string) (*models.Scan, error) {
	scan, err := s.scanDao.GetScanByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: scan %s", apierrors.ErrNotFound, id)
		}
		return nil, err
	}
	return scan, nil
}

func (s *scanService) ListScans(filter dao.ListFilter) ([]models.Scan, error) {
	return s.scanDao.ListScans(filter)
}

func (s *scanService) DeleteScan(id string) (*models.Scan, error) {
	scan, err := s.scanDao.GetScanByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: scan %s", apierrors.ErrNotFound, id)
		}
		return nil, err
	}

	if scan.Status == models.StatusRunning {
		return nil, fmt.Errorf("%w: cannot delete a running scan", apierrors.ErrConflict)
	}

	if err := s.scanDao.DeleteScan(id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: scan %s", apierrors.ErrNotFound, id)
		}
		return nil, err
	}

	s.broadcaster.Broadcast(notifier.Event{
		Type:       notifier.EventScanDeleted,
		ScanID:     scan.ID,
		Repository: scan.Repository,
	})
	return scan, nil
}

// DeleteScans refuses the whole batch when any target is running; there is no
// partial deletion.
func (s *scanService) DeleteScans(ids []string) (*DeleteResult, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: ids list is required", apierrors.ErrInvalidInput)
	}

	existing, err := s.scanDao.ListByIDs(ids)
	if err != nil {
		return nil, err
	}
	if len(existing) == 0 {
		return nil, fmt.Errorf("%w: no matching scans", apierrors.ErrNotFound)
	}

	running := 0
	for _, scan := range existing {
		if scan.Status == models.StatusRunning {
			running++
		}
	}
	if running > 0 {
		return nil, fmt.Errorf("%w: %d of the targeted scans are running", apierrors.ErrConflict, running)
	}

	deleted, err := s.scanDao.DeleteScans(ids)
	if err != nil {
		return nil, err
	}

	for _, scan := range existing {
		s.broadcaster.Broadcast(notifier.Event{
			Type:       notifier.EventScanDeleted,
			ScanID:     scan.ID,
			Repository: scan.Repository,
		})
	}

	return &DeleteResult{DeletedCount: deleted, Deleted: existing}, nil
}

const deleteAllConfirmToken = "DELETE_ALL"

func (s *scanService) DeleteAllScans(confirm string) (*DeleteResult, error) {
	if confirm != deleteAllConfirmToken {
		return nil, fmt.Errorf("%w: confirmation required: {\"confirm\": %q}", apierrors.ErrInvalidInput, deleteAllConfirmToken)
	}

	running, err := s.scanDao.CountRunning()
	if err != nil {
		return nil, err
	}
	if running > 0 {
		return nil, fmt.Errorf("%w: %d scan(s) still running", apierrors.ErrConflict, running)
	}

	deleted, err := s.scanDao.DeleteAllScans()
	if err != nil {
		return nil, err
	}

	if deleted > 0 {
		s.broadcaster.Broadcast(notifier.Event{
			Type:         notifier.EventAllScansDeleted,
			DeletedCount: deleted,
		})
	}

	return &DeleteResult{DeletedCount: deleted}, nil
}

func (s *scanService) Stats() (*Stats, error) {
	counts, err := s.scanDao.CountByStatus()
	if err != nil {
		return nil, err
	}

	severity, err := s.statDao.Aggregate()
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		CompletedScans: counts[models.StatusCompleted],
		FailedScans:    counts[models.StatusFailed],
		RunningScans:   counts[models.StatusRunning],
		PendingScans:   counts[models.StatusPending],
		Severity:       severity,
	}
	for _, count := range counts {
		stats.TotalScans += count
	}
	return stats, nil
}

func (s *scanService) DepthProfiles() []DepthProfile {
	return s.depths.List()
}
