package model

import (
	"errors"
	"time"
)

// 保存记录状态
const (
	SaveStatusSucceeded = "succeeded"
	SaveStatusFailed    = "failed"
)

// SaveRecordModel 保存/发布记录数据模型
type SaveRecordModel struct {
	ID         string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	TemplateID string    `gorm:"type:varchar(64);not null" json:"template_id"`
	StoreID    string    `gorm:"type:varchar(64);not null" json:"store_id"`
	Version    int       `gorm:"type:int" json:"version"` // 失败时为 0
	Published  bool      `gorm:"not null;default:false" json:"published"`
	Status     string    `gorm:"type:varchar(32);not null" json:"status"`
	Error      string    `gorm:"type:text" json:"error,omitempty"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
}

// TableName 指定表名
func (SaveRecordModel) TableName() string {
	return "save_records"
}

// Validate 验证保存记录模型
func (m *SaveRecordModel) Validate() error {
	if m.ID == "" {
		return errors.New("record ID is required")
	}
	if m.TemplateID == "" {
		return errors.New("template ID is required")
	}
	if m.Status != SaveStatusSucceeded && m.Status != SaveStatusFailed {
		return errors.New("status must be succeeded or failed")
	}
	return nil
}
