package model

import (
	"errors"
	"time"
)

// TemplateModel 模板版本数据模型
// 每次保存/发布都会追加一个版本,主键组合 (store_id, id, version)
type TemplateModel struct {
	StoreID   string    `gorm:"primaryKey;type:varchar(64)"`
	ID        string    `gorm:"primaryKey;type:varchar(64)"`
	Version   int       `gorm:"primaryKey;type:int;not null;default:1"`
	Published bool      `gorm:"not null;default:false"`
	Data      []byte    `gorm:"type:jsonb;not null"` // 序列化后的 document.Template
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
	CreatedBy string    `gorm:"type:varchar(64)"` // 保存人 ID
}

// TableName 指定表名
func (TemplateModel) TableName() string {
	return "templates"
}

// Validate 验证模板模型
func (tm *TemplateModel) Validate() error {
	if tm.ID == "" {
		return errors.New("template ID is required")
	}
	if tm.StoreID == "" {
		return errors.New("store ID is required")
	}
	if tm.Version <= 0 {
		return errors.New("template version must be positive")
	}
	if len(tm.Data) == 0 {
		return errors.New("template data is required")
	}
	return nil
}
