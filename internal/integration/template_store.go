package integration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mautops/site-editor/internal/document"
	"github.com/mautops/site-editor/internal/model"
	"github.com/mautops/site-editor/internal/repository"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ErrTemplateNotFound 模板（或其已发布版本）不存在
var ErrTemplateNotFound = errors.New("template not found")

// TemplateVersion 一个已保存的模板版本
type TemplateVersion struct {
	Version   int                `json:"version"`
	Published bool               `json:"published"`
	SavedAt   time.Time          `json:"saved_at"`
	Template  *document.Template `json:"template"`
}

// TemplateStore 基于数据库的模板持久化协作者
// 每次保存追加一个新版本,读取时取最新版本
type TemplateStore struct {
	db     *gorm.DB
	logger logrus.FieldLogger
}

// NewTemplateStore 创建模板存储
func NewTemplateStore(db *gorm.DB, logger logrus.FieldLogger) *TemplateStore {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &TemplateStore{db: db, logger: logger}
}

// LoadTemplate 加载最新版本（草稿或已发布）
// 模板不存在时返回一个空模板,首次编辑直接从空文档开始
func (s *TemplateStore) LoadTemplate(ctx context.Context, storeID, templateID string) (*document.Template, error) {
	tm, err := repository.NewTemplateRepository(s.db).FindByID(ctx, storeID, templateID, 0)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return document.New(templateID), nil
		}
		return nil, fmt.Errorf("failed to load template: %w", err)
	}
	return decode(tm)
}

// LoadPublished 加载最新的已发布版本
func (s *TemplateStore) LoadPublished(ctx context.Context, storeID, templateID string) (*TemplateVersion, error) {
	tm, err := repository.NewTemplateRepository(s.db).FindLatestPublished(ctx, storeID, templateID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s has no published version", ErrTemplateNotFound, templateID)
		}
		return nil, fmt.Errorf("failed to load published template: %w", err)
	}
	tpl, err := decode(tm)
	if err != nil {
		return nil, err
	}
	return &TemplateVersion{
		Version:   tm.Version,
		Published: tm.Published,
		SavedAt:   tm.CreatedAt,
		Template:  tpl,
	}, nil
}

// ListVersions 列出模板版本号
func (s *TemplateStore) ListVersions(ctx context.Context, storeID, templateID string) ([]int, error) {
	versions, err := repository.NewTemplateRepository(s.db).ListVersions(ctx, storeID, templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	return versions, nil
}

// SaveRecords 返回模板最近的保存记录
func (s *TemplateStore) SaveRecords(ctx context.Context, storeID, templateID string, limit int) ([]*model.SaveRecordModel, error) {
	records, err := repository.NewSaveRecordRepository(s.db).FindByTemplateID(ctx, storeID, templateID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list save records: %w", err)
	}
	return records, nil
}

// SaveTemplate 保存模板,追加一个新版本并记录保存结果
func (s *TemplateStore) SaveTemplate(ctx context.Context, storeID, templateID string, tpl *document.Template, published bool) error {
	version, err := s.saveVersion(ctx, storeID, templateID, tpl, published)
	s.record(ctx, storeID, templateID, version, published, err)
	return err
}

func (s *TemplateStore) saveVersion(ctx context.Context, storeID, templateID string, tpl *document.Template, published bool) (int, error) {
	// 1. 序列化模板数据
	if tpl == nil {
		return 0, fmt.Errorf("template is nil")
	}
	data, err := json.Marshal(tpl)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal template: %w", err)
	}

	// 2. 在事务中分配版本号并写入
	var version int
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := repository.NewTemplateRepository(tx)
		latest, err := repo.LatestVersion(ctx, storeID, templateID)
		if err != nil {
			return fmt.Errorf("failed to get latest version: %w", err)
		}

		now := time.Now()
		tm := &model.TemplateModel{
			ID:        templateID,
			Version:   latest + 1,
			StoreID:   storeID,
			Published: published,
			Data:      data,
			CreatedAt: now,
			UpdatedAt: now,
			CreatedBy: getUserIDFromContext(ctx),
		}
		if err := tm.Validate(); err != nil {
			return err
		}
		if err := repo.Save(ctx, tm); err != nil {
			return fmt.Errorf("failed to save template: %w", err)
		}
		version = tm.Version
		return nil
	})
	if err != nil {
		return 0, err
	}
	return version, nil
}

// record 写入保存记录,记录失败只打日志
func (s *TemplateStore) record(ctx context.Context, storeID, templateID string, version int, published bool, saveErr error) {
	rec := &model.SaveRecordModel{
		ID:         uuid.New().String(),
		TemplateID: templateID,
		StoreID:    storeID,
		Version:    version,
		Published:  published,
		Status:     model.SaveStatusSucceeded,
		CreatedAt:  time.Now(),
	}
	if saveErr != nil {
		rec.Status = model.SaveStatusFailed
		rec.Error = saveErr.Error()
	}
	// 请求上下文可能已取消,记录使用独立的上下文
	recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := repository.NewSaveRecordRepository(s.db).Save(recCtx, rec); err != nil {
		s.logger.WithError(err).WithField("template_id", templateID).Warn("failed to write save record")
	}
}

// decode 反序列化模板并补齐空集合
func decode(tm *model.TemplateModel) (*document.Template, error) {
	var tpl document.Template
	if err := json.Unmarshal(tm.Data, &tpl); err != nil {
		return nil, fmt.Errorf("failed to unmarshal template: %w", err)
	}
	if tpl.ID == "" {
		tpl.ID = tm.ID
	}
	if tpl.Styles == nil {
		tpl.Styles = document.Fields{}
	}
	if tpl.Pages == nil {
		tpl.Pages = map[string][]document.Block{}
	}
	for name := range tpl.Pages {
		document.SortBlocks(tpl.Pages[name])
	}
	if err := document.Validate(&tpl); err != nil {
		return nil, fmt.Errorf("stored template %s v%d is corrupted: %w", tm.ID, tm.Version, err)
	}
	return &tpl, nil
}

type contextKey string

// UserIDKey 上下文中保存人 ID 的键
const UserIDKey contextKey = "user_id"

// getUserIDFromContext 从 context 中获取用户ID
func getUserIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if userID, ok := ctx.Value(UserIDKey).(string); ok {
		return userID
	}
	return ""
}
