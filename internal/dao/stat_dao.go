package dao

import (
	"scanhub/internal/models"

	"gorm.io/gorm"
)

// SeverityAggregate is the read-time projection over scan_stats rows.
type SeverityAggregate struct {
	TotalVulnerabilities int64   `json:"total_vulnerabilities"`
	TotalCritical        int64   `json:"total_critical"`
	TotalHigh            int64   `json:"total_high"`
	TotalMedium          int64   `json:"total_medium"`
	TotalLow             int64   `json:"total_low"`
	ScansWithStats       int64   `json:"scans_with_stats"`
	AvgVulnerabilities   float64 `json:"avg_vulnerabilities"`
}

type StatDAO interface {
	SaveStat(stat *models.ScanStat) error
	Aggregate() (*SeverityAggregate, error)
}

type statDAO struct {
	db *gorm.DB
}

func NewStatDAO(db *gorm.DB) StatDAO {
	return &statDAO{db: db}
}

func (dao *statDAO) SaveStat(stat *models.ScanStat) error {
	return dao.db.Create(stat).Error
}

func (dao *statDAO) Aggregate() (*SeverityAggregate, error) {
	var agg SeverityAggregate
	err := dao.db.Model(&models.ScanStat{}).
		Select(`COALESCE(SUM(vulnerabilities), 0) as total_vulnerabilities,
			COALESCE(SUM(critical_count), 0) as total_critical,
			COALESCE(SUM(high_count), 0) as total_high,
			COALESCE(SUM(medium_count), 0) as total_medium,
			COALESCE(SUM(low_count), 0) as total_low,
			COUNT(*) as scans_with_stats`).
		Scan(&agg).Error
	if err != nil {
		return nil, err
	}

	if agg.ScansWithStats > 0 {
		agg.AvgVulnerabilities = float64(agg.TotalVulnerabilities) / float64(agg.ScansWithStats)
	}
	return &agg, nil
}
