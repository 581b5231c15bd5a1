package editor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mautops/site-editor/internal/autosave"
	"github.com/mautops/site-editor/internal/document"
	"github.com/mautops/site-editor/internal/history"
	"github.com/mautops/site-editor/internal/mutation"
	"github.com/sirupsen/logrus"
)

// DefaultPage 会话打开时默认编辑的页面
const DefaultPage = "home"

var (
	// ErrClosed 会话已关闭
	ErrClosed = errors.New("editor session closed")
	// ErrInvalidArgument 参数不合法（页面名为空、未知的视图模式等）
	ErrInvalidArgument = errors.New("invalid argument")
)

// ViewMode 预览视图模式,仅作为渲染提示
type ViewMode string

const (
	ViewDesktop ViewMode = "desktop"
	ViewTablet  ViewMode = "tablet"
	ViewMobile  ViewMode = "mobile"
)

// Valid 判断视图模式是否合法
func (m ViewMode) Valid() bool {
	switch m {
	case ViewDesktop, ViewTablet, ViewMobile:
		return true
	}
	return false
}

// Recorder 编辑指标记录器
type Recorder interface {
	RecordEdit(kind string, err error)
	RecordHistory(action string, applied bool)
	RecordSave(published bool, err error)
}

// State 提供给渲染层的只读会话状态
type State struct {
	StoreID           string             `json:"store_id"`
	TemplateID        string             `json:"template_id"`
	Template          *document.Template `json:"template"`
	CurrentPage       string             `json:"current_page"`
	SelectedBlockID   string             `json:"selected_block_id,omitempty"`
	ViewMode          ViewMode           `json:"view_mode"`
	HasUnsavedChanges bool               `json:"has_unsaved_changes"`
	SavePending       bool               `json:"save_pending"` // 修改尚未发出,等待防抖计时
	Saving            bool               `json:"saving"`       // 保存/发布请求进行中
	CanUndo           bool               `json:"can_undo"`
	CanRedo           bool               `json:"can_redo"`
	UndoDepth         int                `json:"undo_depth"`
	RedoDepth         int                `json:"redo_depth"`
	Revision          uint64             `json:"revision"`
	LastSavedAt       *time.Time         `json:"last_saved_at,omitempty"`
	LastPublishedAt   *time.Time         `json:"last_published_at,omitempty"`
	LastError         string             `json:"last_error,omitempty"`
}

// Options 会话配置
// 店铺与模板标识由调用方显式传入,会话不做任何全局查找
type Options struct {
	StoreID    string
	TemplateID string
	Template   *document.Template
	Store      autosave.Store

	Page           string
	HistoryDepth   int
	CoalesceWindow time.Duration
	AutosaveDelay  time.Duration
	SaveTimeout    time.Duration

	Operators *mutation.Operators
	Recorder  Recorder
	Observer  func(State)
	Logger    logrus.FieldLogger
	Now       func() time.Time
}

// Session 编辑会话控制器,当前模板值的唯一持有者
type Session struct {
	storeID    string
	templateID string

	ops      *mutation.Operators
	history  *history.Stack
	gateway  *autosave.Gateway
	recorder Recorder
	observer func(State)
	logger   logrus.FieldLogger
	now      func() time.Time

	mu              sync.Mutex
	tpl             *document.Template
	page            string
	selected        string
	viewMode        ViewMode
	revision        uint64
	dirty           bool
	closed          bool
	lastSavedAt     *time.Time
	lastPublishedAt *time.Time
	lastError       string
}

// NewSession 创建编辑会话
func NewSession(opts Options) (*Session, error) {
	if opts.StoreID == "" || opts.TemplateID == "" {
		return nil, fmt.Errorf("%w: store id and template id are required", ErrInvalidArgument)
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidArgument)
	}
	// 会话持有独立副本,调用方之后对传入模板的修改不影响会话
	tpl := document.Clone(opts.Template)
	if tpl == nil {
		tpl = document.New(opts.TemplateID)
	}
	if err := document.Validate(tpl); err != nil {
		return nil, fmt.Errorf("%w: %v", mutation.ErrInvariant, err)
	}
	if opts.Page == "" {
		opts.Page = DefaultPage
	}
	if opts.Operators == nil {
		opts.Operators = mutation.NewOperators()
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	logger := opts.Logger.WithFields(logrus.Fields{
		"store_id":    opts.StoreID,
		"template_id": opts.TemplateID,
	})
	s := &Session{
		storeID:    opts.StoreID,
		templateID: opts.TemplateID,
		ops:        opts.Operators,
		history:    history.New(opts.HistoryDepth, opts.CoalesceWindow),
		recorder:   opts.Recorder,
		observer:   opts.Observer,
		logger:     logger,
		now:        opts.Now,
		tpl:        tpl,
		page:       opts.Page,
		viewMode:   ViewDesktop,
	}
	s.gateway = autosave.NewGateway(opts.Store, s, autosave.Options{
		Delay:   opts.AutosaveDelay,
		Timeout: opts.SaveTimeout,
		Logger:  logger,
	})
	return s, nil
}

// State 返回当前只读状态
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// SelectPage 切换当前页面（不进入历史）
func (s *Session) SelectPage(name string) error {
	if name == "" {
		return fmt.Errorf("%w: page name is required", ErrInvalidArgument)
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.page != name {
		s.page = name
		s.selected = ""
		s.history.Seal()
	}
	state := s.stateLocked()
	s.mu.Unlock()

	s.emit(state)
	return nil
}

// SelectBlock 选择当前页面上的区块,空 ID 取消选择
func (s *Session) SelectBlock(blockID string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if blockID != "" {
		if _, _, ok := document.GetBlock(s.tpl, s.page, blockID); !ok {
			s.mu.Unlock()
			s.logger.WithField("block_id", blockID).Warn("select on missing block ignored")
			return fmt.Errorf("%w: %q on page %q", mutation.ErrNotFound, blockID, s.page)
		}
	}
	s.selected = blockID
	state := s.stateLocked()
	s.mu.Unlock()

	s.emit(state)
	return nil
}

// SetViewMode 设置预览视图模式
func (s *Session) SetViewMode(mode ViewMode) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: unknown view mode %q", ErrInvalidArgument, mode)
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.viewMode = mode
	state := s.stateLocked()
	s.mu.Unlock()

	s.emit(state)
	return nil
}

// AddBlock 在当前页面插入新区块,afterID 为空时追加到页尾
// 新区块会成为当前选中区块
func (s *Session) AddBlock(afterID string, blk document.Block) (document.Block, error) {
	blk.ID = ""
	res, err := s.mutate(mutation.AddBlock{AfterID: afterID, Block: blk})
	if err != nil {
		return document.Block{}, err
	}

	s.mu.Lock()
	created, _, _ := document.GetBlock(s.tpl, s.page, res.BlockID)
	s.selected = res.BlockID
	state := s.stateLocked()
	s.mu.Unlock()

	s.emit(state)
	return created, nil
}

// UpdateBlock 浅合并区块的 content / styles
func (s *Session) UpdateBlock(blockID string, content, styles document.Fields) error {
	_, err := s.mutate(mutation.UpdateBlock{BlockID: blockID, Content: content, Styles: styles})
	return err
}

// DeleteBlock 删除区块
func (s *Session) DeleteBlock(blockID string) error {
	_, err := s.mutate(mutation.DeleteBlock{BlockID: blockID})
	return err
}

// ReorderBlock 将区块移动到当前页面的 toIndex 位置
func (s *Session) ReorderBlock(blockID string, toIndex int) error {
	_, err := s.mutate(mutation.ReorderBlock{BlockID: blockID, ToIndex: toIndex})
	return err
}

// Undo 撤销最近一步,没有可撤销的步骤时返回 false
func (s *Session) Undo() (bool, error) {
	return s.travel(false)
}

// Redo 重做最近撤销的一步,没有可重做的步骤时返回 false
func (s *Session) Redo() (bool, error) {
	return s.travel(true)
}

// Save 立即保存草稿,成功后才清除未保存标记
func (s *Session) Save(ctx context.Context) error {
	if s.isClosed() {
		return ErrClosed
	}
	return s.gateway.Save(ctx)
}

// Publish 立即发布,等待进行中的自动保存结束后发送
func (s *Session) Publish(ctx context.Context) error {
	if s.isClosed() {
		return ErrClosed
	}
	return s.gateway.Publish(ctx)
}

// Close 关闭会话并写出待保存的修改
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	return s.gateway.Close(ctx)
}

// Snapshot 实现 autosave.Source
func (s *Session) Snapshot() autosave.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return autosave.Snapshot{
		StoreID:    s.storeID,
		TemplateID: s.templateID,
		Template:   s.tpl,
		Revision:   s.revision,
	}
}

// SaveSucceeded 实现 autosave.Source
func (s *Session) SaveSucceeded(revision uint64, published bool) {
	s.mu.Lock()
	now := s.now()
	if revision == s.revision {
		s.dirty = false
	}
	s.lastSavedAt = &now
	if published {
		s.lastPublishedAt = &now
	}
	s.lastError = ""
	state := s.stateLocked()
	s.mu.Unlock()

	if s.recorder != nil {
		s.recorder.RecordSave(published, nil)
	}
	s.emit(state)
}

// SaveFailed 实现 autosave.Source,未保存标记保持不变,文档不回滚
func (s *Session) SaveFailed(revision uint64, published bool, err error) {
	s.mu.Lock()
	s.lastError = err.Error()
	state := s.stateLocked()
	s.mu.Unlock()

	if s.recorder != nil {
		s.recorder.RecordSave(published, err)
	}
	s.emit(state)
}

// mutate 应用意图、压入历史、替换文档并触发自动保存
func (s *Session) mutate(intent mutation.Intent) (*mutation.Result, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}

	res, err := s.ops.Apply(s.tpl, s.page, intent)
	if err != nil {
		page := s.page
		s.mu.Unlock()
		s.record(intent.Kind(), err)
		entry := s.logger.WithFields(logrus.Fields{"page": page, "intent": intent.Kind()})
		if errors.Is(err, mutation.ErrNotFound) {
			entry.WithError(err).Warn("edit ignored")
		} else {
			entry.WithError(err).Error("edit rejected")
		}
		return nil, err
	}
	if !res.Changed {
		s.mu.Unlock()
		s.record(intent.Kind(), nil)
		return res, nil
	}

	s.history.Push(history.Entry{
		Page:    s.page,
		Forward: res.Forward,
		Inverse: res.Inverse,
	}, s.now())
	s.commitLocked(res.Template)
	if _, del := intent.(mutation.DeleteBlock); del && s.selected == res.BlockID {
		s.selected = ""
	}
	state := s.stateLocked()
	s.mu.Unlock()

	s.record(intent.Kind(), nil)
	s.gateway.Notify()
	s.emit(state)
	return res, nil
}

// travel 撤销或重做,通过同一组算子应用逆向/正向意图
func (s *Session) travel(redo bool) (bool, error) {
	action := "undo"
	if redo {
		action = "redo"
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false, ErrClosed
	}

	var (
		entry history.Entry
		ok    bool
	)
	if redo {
		entry, ok = s.history.Redo()
	} else {
		entry, ok = s.history.Undo()
	}
	if !ok {
		s.mu.Unlock()
		if s.recorder != nil {
			s.recorder.RecordHistory(action, false)
		}
		return false, nil
	}

	intent := entry.Inverse
	if redo {
		intent = entry.Forward
	}
	res, err := s.ops.Apply(s.tpl, entry.Page, intent)
	if err != nil {
		s.history.Rollback(redo)
		s.mu.Unlock()
		s.logger.WithError(err).WithField("action", action).Error("history entry could not be applied")
		return false, fmt.Errorf("failed to %s: %w", action, err)
	}

	s.commitLocked(res.Template)
	s.page = entry.Page
	if s.selected != "" {
		if _, _, found := document.GetBlock(s.tpl, s.page, s.selected); !found {
			s.selected = ""
		}
	}
	state := s.stateLocked()
	s.mu.Unlock()

	if s.recorder != nil {
		s.recorder.RecordHistory(action, true)
	}
	s.gateway.Notify()
	s.emit(state)
	return true, nil
}

func (s *Session) commitLocked(tpl *document.Template) {
	s.tpl = tpl
	s.revision++
	s.dirty = true
}

func (s *Session) stateLocked() State {
	canUndo, canRedo := s.history.CanUndo(), s.history.CanRedo()
	undoDepth, redoDepth := s.history.Len()
	return State{
		StoreID:           s.storeID,
		TemplateID:        s.templateID,
		Template:          s.tpl,
		CurrentPage:       s.page,
		SelectedBlockID:   s.selected,
		ViewMode:          s.viewMode,
		HasUnsavedChanges: s.dirty,
		SavePending:       s.gateway.Pending(),
		Saving:            s.gateway.InFlight(),
		CanUndo:           canUndo,
		CanRedo:           canRedo,
		UndoDepth:         undoDepth,
		RedoDepth:         redoDepth,
		Revision:          s.revision,
		LastSavedAt:       s.lastSavedAt,
		LastPublishedAt:   s.lastPublishedAt,
		LastError:         s.lastError,
	}
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) record(kind string, err error) {
	if s.recorder != nil {
		s.recorder.RecordEdit(kind, err)
	}
}

func (s *Session) emit(state State) {
	if s.observer != nil {
		s.observer(state)
	}
}
