package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mautops/site-editor/internal/autosave"
	"github.com/mautops/site-editor/internal/config"
	"github.com/mautops/site-editor/internal/document"
	"github.com/mautops/site-editor/internal/editor"
	"github.com/mautops/site-editor/internal/metrics"
	"github.com/sirupsen/logrus"
)

// ErrSessionNotFound 会话不存在或不属于当前店铺
var ErrSessionNotFound = errors.New("session not found")

// TemplateStore 会话服务依赖的持久化协作者
type TemplateStore interface {
	autosave.Store
	LoadTemplate(ctx context.Context, storeID, templateID string) (*document.Template, error)
}

// StatePublisher 会话状态推送（WebSocket Hub）
type StatePublisher interface {
	Publish(sessionID string, data []byte) bool
	Disconnect(sessionID string)
}

// SessionView 会话状态的对外表示
type SessionView struct {
	ID string `json:"id"`
	editor.State
}

// OpenSession 一个打开的编辑会话
type OpenSession struct {
	ID string
	*editor.Session

	mu       sync.Mutex
	lastUsed time.Time
}

// View 返回会话当前状态
func (s *OpenSession) View() SessionView {
	return SessionView{ID: s.ID, State: s.State()}
}

func (s *OpenSession) touch(now time.Time) {
	s.mu.Lock()
	s.lastUsed = now
	s.mu.Unlock()
}

func (s *OpenSession) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// SessionService 会话管理服务接口
type SessionService interface {
	Open(ctx context.Context, storeID, templateID string) (*OpenSession, error)
	Get(storeID, id string) (*OpenSession, error)
	Close(ctx context.Context, storeID, id string) error
	CloseIdle(ctx context.Context, now time.Time) int
	CloseAll(ctx context.Context) error
	Count() int
	StateJSON(id string) ([]byte, bool)
	UpdateOptions(cfg config.EditorConfig)
}

// sessionService 会话管理服务实现
type sessionService struct {
	store     TemplateStore
	publisher StatePublisher
	recorder  editor.Recorder
	logger    logrus.FieldLogger

	mu       sync.RWMutex
	sessions map[string]*OpenSession
	byKey    map[string]string // store/template -> session id
	opts     config.EditorConfig
}

// NewSessionService 创建会话管理服务,publisher 和 recorder 可以为 nil
func NewSessionService(store TemplateStore, publisher StatePublisher, recorder editor.Recorder, cfg config.EditorConfig, logger logrus.FieldLogger) SessionService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &sessionService{
		store:     store,
		publisher: publisher,
		recorder:  recorder,
		logger:    logger,
		sessions:  make(map[string]*OpenSession),
		byKey:     make(map[string]string),
		opts:      cfg,
	}
}

func sessionKey(storeID, templateID string) string {
	return storeID + "/" + templateID
}

// Open 打开模板的编辑会话,同一店铺同一模板复用已打开的会话
func (s *sessionService) Open(ctx context.Context, storeID, templateID string) (*OpenSession, error) {
	key := sessionKey(storeID, templateID)
	if existing := s.lookup(key); existing != nil {
		existing.touch(time.Now())
		return existing, nil
	}

	// 1. 加载模板（不持锁）
	tpl, err := s.store.LoadTemplate(ctx, storeID, templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to load template: %w", err)
	}

	// 2. 创建会话
	s.mu.RLock()
	opts := s.opts
	s.mu.RUnlock()

	id := uuid.New().String()
	sess, err := editor.NewSession(editor.Options{
		StoreID:        storeID,
		TemplateID:     templateID,
		Template:       tpl,
		Store:          s.store,
		Page:           opts.DefaultPage,
		HistoryDepth:   opts.HistoryDepth,
		CoalesceWindow: opts.CoalesceWindow,
		AutosaveDelay:  opts.AutosaveDelay,
		SaveTimeout:    opts.SaveTimeout,
		Recorder:       s.recorder,
		Observer:       s.observer(id),
		Logger:         s.logger.WithField("session_id", id),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	open := &OpenSession{ID: id, Session: sess, lastUsed: time.Now()}

	// 3. 注册（并发打开时以先注册的为准）
	s.mu.Lock()
	if existingID, ok := s.byKey[key]; ok {
		existing := s.sessions[existingID]
		s.mu.Unlock()
		_ = sess.Close(ctx)
		return existing, nil
	}
	s.sessions[id] = open
	s.byKey[key] = id
	count := len(s.sessions)
	s.mu.Unlock()

	metrics.SetActiveSessions(count)
	s.logger.WithFields(logrus.Fields{
		"session_id":  id,
		"store_id":    storeID,
		"template_id": templateID,
	}).Info("editor session opened")
	return open, nil
}

// Get 获取会话,会话必须属于 storeID
func (s *sessionService) Get(storeID, id string) (*OpenSession, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok || sess.State().StoreID != storeID {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	sess.touch(time.Now())
	return sess, nil
}

// Close 关闭会话并写出待保存的修改
func (s *sessionService) Close(ctx context.Context, storeID, id string) error {
	sess, err := s.Get(storeID, id)
	if err != nil {
		return err
	}
	return s.closeSession(ctx, sess)
}

// CloseIdle 关闭空闲超过 idle_timeout 的会话,返回关闭数量
func (s *sessionService) CloseIdle(ctx context.Context, now time.Time) int {
	s.mu.RLock()
	timeout := s.opts.IdleTimeout
	var idle []*OpenSession
	if timeout > 0 {
		for _, sess := range s.sessions {
			if now.Sub(sess.idleSince()) > timeout {
				idle = append(idle, sess)
			}
		}
	}
	s.mu.RUnlock()

	for _, sess := range idle {
		if err := s.closeSession(ctx, sess); err != nil {
			s.logger.WithError(err).WithField("session_id", sess.ID).Warn("idle session closed with unsaved changes")
		}
	}
	return len(idle)
}

// CloseAll 关闭所有会话（服务退出时调用）
func (s *sessionService) CloseAll(ctx context.Context) error {
	s.mu.RLock()
	all := make([]*OpenSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		all = append(all, sess)
	}
	s.mu.RUnlock()

	var errs []error
	for _, sess := range all {
		if err := s.closeSession(ctx, sess); err != nil {
			errs = append(errs, fmt.Errorf("session %s: %w", sess.ID, err))
		}
	}
	return errors.Join(errs...)
}

// Count 返回打开的会话数
func (s *sessionService) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// StateJSON 返回会话当前状态的 JSON,供 WebSocket 首次推送
func (s *sessionService) StateJSON(id string) ([]byte, bool) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	data, err := json.Marshal(sess.View())
	if err != nil {
		return nil, false
	}
	return data, true
}

// UpdateOptions 更新编辑器配置,只影响之后打开的会话
func (s *sessionService) UpdateOptions(cfg config.EditorConfig) {
	s.mu.Lock()
	s.opts = cfg
	s.mu.Unlock()
	s.logger.WithFields(logrus.Fields{
		"history_depth":   cfg.HistoryDepth,
		"coalesce_window": cfg.CoalesceWindow.String(),
		"autosave_delay":  cfg.AutosaveDelay.String(),
	}).Info("editor options updated")
}

func (s *sessionService) lookup(key string) *OpenSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id, ok := s.byKey[key]; ok {
		return s.sessions[id]
	}
	return nil
}

func (s *sessionService) closeSession(ctx context.Context, sess *OpenSession) error {
	state := sess.State()

	s.mu.Lock()
	if _, ok := s.sessions[sess.ID]; !ok {
		s.mu.Unlock()
		return nil
	}
	delete(s.sessions, sess.ID)
	delete(s.byKey, sessionKey(state.StoreID, state.TemplateID))
	count := len(s.sessions)
	s.mu.Unlock()

	metrics.SetActiveSessions(count)
	err := sess.Close(ctx)
	if s.publisher != nil {
		s.publisher.Disconnect(sess.ID)
	}
	s.logger.WithFields(logrus.Fields{
		"session_id":  sess.ID,
		"template_id": state.TemplateID,
	}).Info("editor session closed")
	return err
}

// observer 会话状态变化时推送给订阅者
func (s *sessionService) observer(id string) func(editor.State) {
	return func(state editor.State) {
		if s.publisher == nil {
			return
		}
		data, err := json.Marshal(SessionView{ID: id, State: state})
		if err != nil {
			s.logger.WithError(err).WithField("session_id", id).Warn("failed to encode session state")
			return
		}
		s.publisher.Publish(id, data)
	}
}
