package repository

import (
	"context"

	"github.com/mautops/site-editor/internal/model"
	"gorm.io/gorm"
)

// SaveRecordRepository 保存记录仓储接口
type SaveRecordRepository interface {
	Save(ctx context.Context, record *model.SaveRecordModel) error
	FindByTemplateID(ctx context.Context, storeID, templateID string, limit int) ([]*model.SaveRecordModel, error)
}

// saveRecordRepository 保存记录仓储实现
type saveRecordRepository struct {
	db *gorm.DB
}

// NewSaveRecordRepository 创建保存记录仓储
func NewSaveRecordRepository(db *gorm.DB) SaveRecordRepository {
	return &saveRecordRepository{db: db}
}

// Save 保存记录
func (r *saveRecordRepository) Save(ctx context.Context, record *model.SaveRecordModel) error {
	return r.db.WithContext(ctx).Create(record).Error
}

// FindByTemplateID 按时间倒序查找模板的保存记录,limit <= 0 表示不限制
func (r *saveRecordRepository) FindByTemplateID(ctx context.Context, storeID, templateID string, limit int) ([]*model.SaveRecordModel, error) {
	var records []*model.SaveRecordModel
	query := r.db.WithContext(ctx).Where("store_id = ? AND template_id = ?", storeID, templateID).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&records).Error
	return records, err
}
