package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mautops/site-editor/internal/integration"
	"github.com/mautops/site-editor/internal/model"
	"github.com/mautops/site-editor/internal/utils"
)

// TemplateReader 模板只读查询
type TemplateReader interface {
	ListVersions(ctx context.Context, storeID, templateID string) ([]int, error)
	LoadPublished(ctx context.Context, storeID, templateID string) (*integration.TemplateVersion, error)
	SaveRecords(ctx context.Context, storeID, templateID string, limit int) ([]*model.SaveRecordModel, error)
}

// TemplateController 模板查询控制器
type TemplateController struct {
	templates TemplateReader
}

// NewTemplateController 创建模板查询控制器
func NewTemplateController(templates TemplateReader) *TemplateController {
	return &TemplateController{templates: templates}
}

// ListVersions 列出模板的保存版本
// GET /api/v1/templates/:id/versions?order=desc
func (c *TemplateController) ListVersions(ctx *gin.Context) {
	id, ok := templateID(ctx)
	if !ok {
		return
	}
	order, err := utils.ParseSortOrder(ctx.Query("order"), utils.SortAsc)
	if err != nil {
		Error(ctx, http.StatusBadRequest, "invalid order", err.Error())
		return
	}

	versions, err := c.templates.ListVersions(ctx.Request.Context(), storeID(ctx), id)
	if err != nil {
		fail(ctx, err)
		return
	}
	if order == utils.SortDesc {
		for i, j := 0, len(versions)-1; i < j; i, j = i+1, j-1 {
			versions[i], versions[j] = versions[j], versions[i]
		}
	}
	if versions == nil {
		versions = []int{}
	}
	Success(ctx, gin.H{"template_id": id, "versions": versions})
}

// GetPublished 获取最新的已发布版本
// GET /api/v1/templates/:id/published
func (c *TemplateController) GetPublished(ctx *gin.Context) {
	id, ok := templateID(ctx)
	if !ok {
		return
	}
	version, err := c.templates.LoadPublished(ctx.Request.Context(), storeID(ctx), id)
	if err != nil {
		fail(ctx, err)
		return
	}
	Success(ctx, version)
}

// ListSaves 列出模板最近的保存记录
// GET /api/v1/templates/:id/saves?limit=20
func (c *TemplateController) ListSaves(ctx *gin.Context) {
	id, ok := templateID(ctx)
	if !ok {
		return
	}
	limit := 20
	if raw := ctx.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 100 {
			Error(ctx, http.StatusBadRequest, "invalid limit", "limit must be between 1 and 100")
			return
		}
		limit = n
	}
	records, err := c.templates.SaveRecords(ctx.Request.Context(), storeID(ctx), id, limit)
	if err != nil {
		fail(ctx, err)
		return
	}
	Success(ctx, records)
}

func templateID(ctx *gin.Context) (string, bool) {
	id := ctx.Param("id")
	if err := utils.ValidateID(id); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid template id", err.Error())
		return "", false
	}
	return id, true
}
