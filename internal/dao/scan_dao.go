package dao

import (
	"scanhub/internal/models"

	"gorm.io/gorm"
)

// ListFilter narrows the scan listing. Status "" or "all" means no status
// filter; Search matches a repository name substring.
type ListFilter struct {
	Status models.Status
	Search string
	Limit  int
}

type ScanDAO interface {
	SaveScan(scan *models.Scan) error
	GetScanByID(id string) (*models.Scan, error)
	ListScans(filter ListFilter) ([]models.Scan, error)
	UpdateScan(scan *models.Scan) error
	DeleteScan(id string) error
	DeleteScans(ids []string) (int64, error)
	DeleteAllScans() (int64, error)
	CountByStatus() (map[models.Status]int64, error)
	CountRunning() (int64, error)
	ListByIDs(ids []string) ([]models.Scan, error)
}

type scanDAO struct {
	db *gorm.DB
}

func NewScanDAO(db *gorm.DB) ScanDAO {
	return &scanDAO{db: db}
}

func (dao *scanDAO) SaveScan(scan *models.Scan) error {
	return dao.db.Create(scan).Error
}

func (dao *scanDAO) UpdateScan(scan *models.Scan) error {
	return dao.db.Save(scan).Error
}

func (dao *scanDAO) GetScanByID(id string) (*models.Scan, error) {
	var scan models.Scan
	if err := dao.db.Where("id = ?", id).First(&scan).Error; err != nil {
		return nil, err
	}
	return &scan, nil
}

func (dao *scanDAO) ListScans(filter ListFilter) ([]models.Scan, error) {
	limit := filter.Limit
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	query := dao.db.Model(&models.Scan{})
	if filter.Status != "" && filter.Status != "all" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Search != "" {
		query = query.Where("repository LIKE ?", "%"+filter.Search+"%")
	}

	var scans []models.Scan
	if err := query.Order("started_at desc").Limit(limit).Find(&scans).Error; err != nil {
		return nil, err
	}
	return scans, nil
}

func (dao *scanDAO) ListByIDs(ids []string) ([]models.Scan, error) {
	var scans []models.Scan
	if err := dao.db.Where("id IN ?", ids).Find(&scans).Error; err != nil {
		return nil, err
	}
	return scans, nil
}

func (dao *scanDAO) DeleteScan(id string) error {
	result := dao.db.Where("id = ?", id).Delete(&models.Scan{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteScans removes the given records in one transaction so a store failure
// cannot leave the batch half deleted.
func (dao *scanDAO) DeleteScans(ids []string) (int64, error) {
	var deleted int64
	err := dao.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id IN ?", ids).Delete(&models.Scan{})
		if result.Error != nil {
			return result.Error
		}
		deleted = result.RowsAffected
		return nil
	})
	return deleted, err
}

func (dao *scanDAO) DeleteAllScans() (int64, error) {
	result := dao.db.Where("1 = 1").Delete(&models.Scan{})
	return result.RowsAffected, result.Error
}

func (dao *scanDAO) CountByStatus() (map[models.Status]int64, error) {
	type statusCount struct {
		Status models.Status
		Count  int64
	}

	var rows []statusCount
	if err := dao.db.Model(&models.Scan{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := make(map[models.Status]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

func (dao *scanDAO) CountRunning() (int64, error) {
	var count int64
	err := dao.db.Model(&models.Scan{}).
		Where("status = ?", models.StatusRunning).
		Count(&count).Error
	return count, err
}
