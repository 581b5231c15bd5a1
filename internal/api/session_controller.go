package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mautops/site-editor/internal/document"
	"github.com/mautops/site-editor/internal/editor"
	"github.com/mautops/site-editor/internal/service"
	"github.com/mautops/site-editor/internal/utils"
)

// OpenSessionRequest 打开会话请求
type OpenSessionRequest struct {
	TemplateID string `json:"template_id" binding:"required"`
}

// SelectPageRequest 切换页面请求
type SelectPageRequest struct {
	Page string `json:"page" binding:"required"`
}

// SelectBlockRequest 选择区块请求,block_id 为空表示取消选择
type SelectBlockRequest struct {
	BlockID string `json:"block_id"`
}

// ViewModeRequest 视图模式请求
type ViewModeRequest struct {
	ViewMode editor.ViewMode `json:"view_mode" binding:"required"`
}

// AddBlockRequest 添加区块请求
type AddBlockRequest struct {
	AfterID string          `json:"after_id"`
	Type    string          `json:"type" binding:"required"`
	Content document.Fields `json:"content"`
	Styles  document.Fields `json:"styles"`
}

// UpdateBlockRequest 更新区块请求,值为 null 的键会被删除
type UpdateBlockRequest struct {
	Content document.Fields `json:"content"`
	Styles  document.Fields `json:"styles"`
}

// MoveBlockRequest 移动区块请求
type MoveBlockRequest struct {
	ToIndex *int `json:"to_index" binding:"required"`
}

// HistoryResponse 撤销/重做响应
type HistoryResponse struct {
	Applied bool                `json:"applied"`
	State   service.SessionView `json:"state"`
}

// SessionController 编辑会话控制器
type SessionController struct {
	sessions service.SessionService
}

// NewSessionController 创建编辑会话控制器
func NewSessionController(sessions service.SessionService) *SessionController {
	return &SessionController{sessions: sessions}
}

// Open 打开模板的编辑会话
// POST /api/v1/sessions
func (c *SessionController) Open(ctx *gin.Context) {
	var req OpenSessionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	if err := utils.ValidateID(req.TemplateID); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid template id", err.Error())
		return
	}

	sess, err := c.sessions.Open(ctx.Request.Context(), storeID(ctx), req.TemplateID)
	if err != nil {
		fail(ctx, err)
		return
	}
	Created(ctx, sess.View())
}

// Get 获取会话状态
// GET /api/v1/sessions/:id
func (c *SessionController) Get(ctx *gin.Context) {
	sess, ok := c.session(ctx)
	if !ok {
		return
	}
	Success(ctx, sess.View())
}

// Close 关闭会话,待保存的修改会先写出
// DELETE /api/v1/sessions/:id
func (c *SessionController) Close(ctx *gin.Context) {
	id := ctx.Param("id")
	if err := c.sessions.Close(ctx.Request.Context(), storeID(ctx), id); err != nil {
		fail(ctx, err)
		return
	}
	Success(ctx, gin.H{"id": id, "closed": true})
}

// SelectPage 切换当前页面
// PUT /api/v1/sessions/:id/page
func (c *SessionController) SelectPage(ctx *gin.Context) {
	var req SelectPageRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	if err := utils.ValidatePageName(req.Page); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid page name", err.Error())
		return
	}
	c.do(ctx, func(sess *service.OpenSession) error {
		return sess.SelectPage(req.Page)
	})
}

// SelectBlock 选择区块
// PUT /api/v1/sessions/:id/selection
func (c *SessionController) SelectBlock(ctx *gin.Context) {
	var req SelectBlockRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	c.do(ctx, func(sess *service.OpenSession) error {
		return sess.SelectBlock(req.BlockID)
	})
}

// SetViewMode 设置预览视图模式
// PUT /api/v1/sessions/:id/view-mode
func (c *SessionController) SetViewMode(ctx *gin.Context) {
	var req ViewModeRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	c.do(ctx, func(sess *service.OpenSession) error {
		return sess.SetViewMode(req.ViewMode)
	})
}

// AddBlock 在当前页面添加区块
// POST /api/v1/sessions/:id/blocks
func (c *SessionController) AddBlock(ctx *gin.Context) {
	var req AddBlockRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	if err := utils.ValidateBlockType(req.Type); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid block type", err.Error())
		return
	}

	sess, ok := c.session(ctx)
	if !ok {
		return
	}
	blk, err := sess.AddBlock(req.AfterID, document.Block{
		Type:    req.Type,
		Content: req.Content,
		Styles:  req.Styles,
	})
	if err != nil {
		fail(ctx, err)
		return
	}
	Created(ctx, gin.H{"block": blk, "state": sess.View()})
}

// UpdateBlock 浅合并更新区块
// PATCH /api/v1/sessions/:id/blocks/:blockId
func (c *SessionController) UpdateBlock(ctx *gin.Context) {
	var req UpdateBlockRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	blockID := ctx.Param("blockId")
	c.do(ctx, func(sess *service.OpenSession) error {
		return sess.UpdateBlock(blockID, req.Content, req.Styles)
	})
}

// DeleteBlock 删除区块
// DELETE /api/v1/sessions/:id/blocks/:blockId
func (c *SessionController) DeleteBlock(ctx *gin.Context) {
	blockID := ctx.Param("blockId")
	c.do(ctx, func(sess *service.OpenSession) error {
		return sess.DeleteBlock(blockID)
	})
}

// MoveBlock 移动区块到指定位置
// POST /api/v1/sessions/:id/blocks/:blockId/move
func (c *SessionController) MoveBlock(ctx *gin.Context) {
	var req MoveBlockRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	blockID := ctx.Param("blockId")
	c.do(ctx, func(sess *service.OpenSession) error {
		return sess.ReorderBlock(blockID, *req.ToIndex)
	})
}

// Undo 撤销
// POST /api/v1/sessions/:id/undo
func (c *SessionController) Undo(ctx *gin.Context) {
	c.travel(ctx, (*service.OpenSession).Undo)
}

// Redo 重做
// POST /api/v1/sessions/:id/redo
func (c *SessionController) Redo(ctx *gin.Context) {
	c.travel(ctx, (*service.OpenSession).Redo)
}

// Save 立即保存草稿
// POST /api/v1/sessions/:id/save
func (c *SessionController) Save(ctx *gin.Context) {
	c.do(ctx, func(sess *service.OpenSession) error {
		return sess.Save(ctx.Request.Context())
	})
}

// Publish 发布当前模板
// POST /api/v1/sessions/:id/publish
func (c *SessionController) Publish(ctx *gin.Context) {
	c.do(ctx, func(sess *service.OpenSession) error {
		return sess.Publish(ctx.Request.Context())
	})
}

func (c *SessionController) session(ctx *gin.Context) (*service.OpenSession, bool) {
	sess, err := c.sessions.Get(storeID(ctx), ctx.Param("id"))
	if err != nil {
		fail(ctx, err)
		return nil, false
	}
	return sess, true
}

// do 执行会话操作并返回最新状态
func (c *SessionController) do(ctx *gin.Context, op func(*service.OpenSession) error) {
	sess, ok := c.session(ctx)
	if !ok {
		return
	}
	if err := op(sess); err != nil {
		fail(ctx, err)
		return
	}
	Success(ctx, sess.View())
}

func (c *SessionController) travel(ctx *gin.Context, op func(*service.OpenSession) (bool, error)) {
	sess, ok := c.session(ctx)
	if !ok {
		return
	}
	applied, err := op(sess)
	if err != nil {
		fail(ctx, err)
		return
	}
	Success(ctx, HistoryResponse{Applied: applied, State: sess.View()})
}

// fail 交给 ErrorHandlerMiddleware 统一转换为响应
func fail(ctx *gin.Context, err error) {
	_ = ctx.Error(err)
	ctx.Abort()
}
