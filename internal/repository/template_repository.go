package repository

import (
	"context"

	"github.com/mautops/site-editor/internal/model"
	"gorm.io/gorm"
)

// TemplateRepository 模板仓储接口
type TemplateRepository interface {
	Save(ctx context.Context, template *model.TemplateModel) error
	FindByID(ctx context.Context, storeID, id string, version int) (*model.TemplateModel, error)
	FindLatestPublished(ctx context.Context, storeID, id string) (*model.TemplateModel, error)
	LatestVersion(ctx context.Context, storeID, id string) (int, error)
	ListVersions(ctx context.Context, storeID, id string) ([]int, error)
	Delete(ctx context.Context, storeID, id string) error
}

// templateRepository 模板仓储实现
type templateRepository struct {
	db *gorm.DB
}

// NewTemplateRepository 创建模板仓储
func NewTemplateRepository(db *gorm.DB) TemplateRepository {
	return &templateRepository{db: db}
}

// Save 保存模板版本
func (r *templateRepository) Save(ctx context.Context, template *model.TemplateModel) error {
	return r.db.WithContext(ctx).Create(template).Error
}

// FindByID 根据 ID 查找模板,version 为 0 时返回最新版本
func (r *templateRepository) FindByID(ctx context.Context, storeID, id string, version int) (*model.TemplateModel, error) {
	var template model.TemplateModel
	query := r.db.WithContext(ctx).Where("store_id = ? AND id = ?", storeID, id)

	if version > 0 {
		query = query.Where("version = ?", version)
	} else {
		// 获取最新版本
		query = query.Order("version DESC").Limit(1)
	}

	if err := query.First(&template).Error; err != nil {
		return nil, err
	}

	return &template, nil
}

// FindLatestPublished 查找最新的已发布版本
func (r *templateRepository) FindLatestPublished(ctx context.Context, storeID, id string) (*model.TemplateModel, error) {
	var template model.TemplateModel
	err := r.db.WithContext(ctx).
		Where("store_id = ? AND id = ? AND published = ?", storeID, id, true).
		Order("version DESC").
		First(&template).Error
	if err != nil {
		return nil, err
	}
	return &template, nil
}

// LatestVersion 返回最新版本号,不存在时返回 0
func (r *templateRepository) LatestVersion(ctx context.Context, storeID, id string) (int, error) {
	var version int
	err := r.db.WithContext(ctx).Model(&model.TemplateModel{}).
		Where("store_id = ? AND id = ?", storeID, id).
		Select("COALESCE(MAX(version), 0)").
		Scan(&version).Error
	return version, err
}

// ListVersions 列出模板版本
func (r *templateRepository) ListVersions(ctx context.Context, storeID, id string) ([]int, error) {
	var versions []int
	err := r.db.WithContext(ctx).Model(&model.TemplateModel{}).
		Where("store_id = ? AND id = ?", storeID, id).
		Order("version ASC").
		Pluck("version", &versions).Error
	return versions, err
}

// Delete 删除模板的所有版本
func (r *templateRepository) Delete(ctx context.Context, storeID, id string) error {
	return r.db.WithContext(ctx).Where("store_id = ? AND id = ?", storeID, id).Delete(&model.TemplateModel{}).Error
}
