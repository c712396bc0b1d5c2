package repository

import (
	"github.com/DriveMint/DriveMint/app/models"
	"gorm.io/gorm"
)

// featureRepository implements the FeatureRepository interface
type featureRepository struct {
	db *gorm.DB
}

// NewFeatureRepository creates a new feature repository instance
func NewFeatureRepository(db *gorm.DB) FeatureRepository {
	return &featureRepository{db: db}
}

func (r *featureRepository) Create(feature *models.Feature) error {
	return r.db.Create(feature).Error
}

func (r *featureRepository) GetByID(id uint) (*models.Feature, error) {
	var feature models.Feature
	err := r.db.First(&feature, id).Error
	if err != nil {
		return nil, err
	}
	return &feature, nil
}

func (r *featureRepository) GetByCode(code string) (*models.Feature, error) {
	var feature models.Feature
	err := r.db.Where("code = ?", code).First(&feature).Error
	if err != nil {
		return nil, err
	}
	return &feature, nil
}

func (r *featureRepository) Update(feature *models.Feature) error {
	return r.db.Save(feature).Error
}

func (r *featureRepository) ListActive() ([]models.Feature, error) {
	var features []models.Feature
	err := r.db.Where("is_active = ?", true).Order("code ASC").Find(&features).Error
	return features, err
}

func (r *featureRepository) List(offset, limit int) ([]models.Feature, error) {
	var features []models.Feature
	err := r.db.Order("code ASC").Offset(offset).Limit(limit).Find(&features).Error
	return features, err
}

func (r *featureRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.Feature{}).Count(&count).Error
	return count, err
}
