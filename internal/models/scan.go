package models

import "time"

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether a scan in this status can never change again.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s is one of the four known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// CanTransitionTo enforces the forward-only lifecycle:
// pending -> running -> {completed, failed}.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusRunning || next == StatusCompleted || next == StatusFailed
	case StatusRunning:
		return next == StatusCompleted || next == StatusFailed
	}
	return false
}

// VulnerabilitySummary is the structured result payload reported by the scan
// workflow callback.
type VulnerabilitySummary struct {
	Critical int    `json:"critical"`
	High     int    `json:"high"`
	Medium   int    `json:"medium"`
	Low      int    `json:"low"`
	Detail   string `json:"detail,omitempty"`
}

func (v VulnerabilitySummary) Total() int {
	return v.Critical + v.High + v.Medium + v.Low
}

type Scan struct {
	ID              string                `gorm:"primaryKey;type:varchar(36)" json:"id"`
	SourceURL       string                `gorm:"not null" json:"source_url"`
	Repository      string                `gorm:"not null;index" json:"repository"`
	Status          Status                `gorm:"type:varchar(16);index;default:pending" json:"status"`
	ScanDepth       string                `json:"scan_depth"`
	CallbackURL     string                `json:"callback_url,omitempty"`
	StartedAt       time.Time             `gorm:"index" json:"started_at"`
	CompletedAt     *time.Time            `json:"completed_at,omitempty"`
	Results         *VulnerabilitySummary `gorm:"serializer:json" json:"results,omitempty"`
	ErrorMessage    string                `json:"error_message,omitempty"`
	DurationSeconds int                   `json:"duration_seconds,omitempty"`
	FilesScanned    int                   `json:"files_scanned,omitempty"`
	CreatedAt       int64                 `json:"created_at"`
	UpdatedAt       int64                 `json:"updated_at"`
}

// ScanStat is one severity-breakdown row per completed scan, written exactly
// once on the terminal callback and summed by the stats endpoint.
type ScanStat struct {
	ID              uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	ScanID          string `gorm:"type:varchar(36);index" json:"scan_id"`
	Vulnerabilities int    `json:"vulnerabilities"`
	CriticalCount   int    `json:"critical_count"`
	HighCount       int    `json:"high_count"`
	MediumCount     int    `json:"medium_count"`
	LowCount        int    `json:"low_count"`
	CreatedAt       int64  `json:"created_at"`
}
