package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mautops/site-editor/internal/config"
	"github.com/mautops/site-editor/internal/document"
	"github.com/mautops/site-editor/internal/service"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryStore 内存模板存储
type memoryStore struct {
	mu      sync.Mutex
	saved   map[string]*document.Template
	loads   int
	loadErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{saved: map[string]*document.Template{}}
}

func (m *memoryStore) LoadTemplate(_ context.Context, storeID, templateID string) (*document.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads++
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	if tpl, ok := m.saved[storeID+"/"+templateID]; ok {
		return tpl, nil
	}
	return document.New(templateID), nil
}

func (m *memoryStore) SaveTemplate(_ context.Context, storeID, templateID string, tpl *document.Template, _ bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved[storeID+"/"+templateID] = tpl
	return nil
}

func (m *memoryStore) get(key string) *document.Template {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saved[key]
}

// recordingPublisher 记录推送与断开
type recordingPublisher struct {
	mu           sync.Mutex
	published    map[string][][]byte
	disconnected []string
}

func newPublisher() *recordingPublisher {
	return &recordingPublisher{published: map[string][][]byte{}}
}

func (p *recordingPublisher) Publish(sessionID string, data []byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published[sessionID] = append(p.published[sessionID], data)
	return true
}

func (p *recordingPublisher) Disconnect(sessionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disconnected = append(p.disconnected, sessionID)
}

func (p *recordingPublisher) messages(sessionID string) [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]byte(nil), p.published[sessionID]...)
}

func testConfig() config.EditorConfig {
	return config.EditorConfig{
		HistoryDepth:   50,
		CoalesceWindow: time.Second,
		AutosaveDelay:  time.Hour,
		IdleTimeout:    30 * time.Minute,
		DefaultPage:    "home",
	}
}

func newService(t *testing.T) (service.SessionService, *memoryStore, *recordingPublisher) {
	store := newMemoryStore()
	pub := newPublisher()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	svc := service.NewSessionService(store, pub, nil, testConfig(), logger)
	t.Cleanup(func() { _ = svc.CloseAll(context.Background()) })
	return svc, store, pub
}

// TestSessionService_OpenReusesSession 测试同一模板复用会话
func TestSessionService_OpenReusesSession(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()

	first, err := svc.Open(ctx, "store-1", "tpl-001")
	require.NoError(t, err)
	second, err := svc.Open(ctx, "store-1", "tpl-001")
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, store.loads)

	other, err := svc.Open(ctx, "store-2", "tpl-001")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)
	assert.Equal(t, 2, svc.Count())
}

// TestSessionService_OpenLoadError 测试加载失败
func TestSessionService_OpenLoadError(t *testing.T) {
	svc, store, _ := newService(t)
	store.loadErr = errors.New("db down")

	_, err := svc.Open(context.Background(), "store-1", "tpl-001")
	assert.Error(t, err)
	assert.Equal(t, 0, svc.Count())
}

// TestSessionService_OpenDefaultPage 测试会话打开时的默认页面
func TestSessionService_OpenDefaultPage(t *testing.T) {
	svc, _, _ := newService(t)

	sess, err := svc.Open(context.Background(), "store-1", "tpl-001")
	require.NoError(t, err)

	view := sess.View()
	assert.Equal(t, sess.ID, view.ID)
	assert.Equal(t, "home", view.CurrentPage)
	assert.Equal(t, "store-1", view.StoreID)
	assert.Equal(t, "tpl-001", view.TemplateID)
	assert.False(t, view.HasUnsavedChanges)
}

// TestSessionService_GetStoreMismatch 测试其他店铺无法访问会话
func TestSessionService_GetStoreMismatch(t *testing.T) {
	svc, _, _ := newService(t)

	sess, err := svc.Open(context.Background(), "store-1", "tpl-001")
	require.NoError(t, err)

	got, err := svc.Get("store-1", sess.ID)
	require.NoError(t, err)
	assert.Same(t, sess, got)

	_, err = svc.Get("store-2", sess.ID)
	assert.ErrorIs(t, err, service.ErrSessionNotFound)

	_, err = svc.Get("store-1", "missing")
	assert.ErrorIs(t, err, service.ErrSessionNotFound)
}

// TestSessionService_CloseFlushesPending 测试关闭会话写出未保存的修改
func TestSessionService_CloseFlushesPending(t *testing.T) {
	svc, store, pub := newService(t)
	ctx := context.Background()

	sess, err := svc.Open(ctx, "store-1", "tpl-001")
	require.NoError(t, err)
	_, err = sess.AddBlock("", document.Block{Type: "hero"})
	require.NoError(t, err)

	require.NoError(t, svc.Close(ctx, "store-1", sess.ID))
	assert.Equal(t, 0, svc.Count())
	assert.Contains(t, pub.disconnected, sess.ID)

	saved := store.get("store-1/tpl-001")
	require.NotNil(t, saved)
	assert.Len(t, document.GetPage(saved, "home"), 1)

	_, err = svc.Get("store-1", sess.ID)
	assert.ErrorIs(t, err, service.ErrSessionNotFound)

	// 关闭后重新打开得到新会话
	reopened, err := svc.Open(ctx, "store-1", "tpl-001")
	require.NoError(t, err)
	assert.NotEqual(t, sess.ID, reopened.ID)
	assert.Len(t, document.GetPage(reopened.State().Template, "home"), 1)
}

// TestSessionService_CloseWrongStore 测试其他店铺不能关闭会话
func TestSessionService_CloseWrongStore(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	sess, err := svc.Open(ctx, "store-1", "tpl-001")
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Close(ctx, "store-2", sess.ID), service.ErrSessionNotFound)
	assert.Equal(t, 1, svc.Count())
}

// TestSessionService_CloseIdle 测试回收空闲会话
func TestSessionService_CloseIdle(t *testing.T) {
	svc, _, pub := newService(t)
	ctx := context.Background()

	sess, err := svc.Open(ctx, "store-1", "tpl-001")
	require.NoError(t, err)

	assert.Equal(t, 0, svc.CloseIdle(ctx, time.Now()))
	assert.Equal(t, 1, svc.Count())

	assert.Equal(t, 1, svc.CloseIdle(ctx, time.Now().Add(31*time.Minute)))
	assert.Equal(t, 0, svc.Count())
	assert.Contains(t, pub.disconnected, sess.ID)
}

// TestSessionService_CloseIdleDisabled 测试 idle_timeout 为 0 时不回收
func TestSessionService_CloseIdleDisabled(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	cfg := testConfig()
	cfg.IdleTimeout = 0
	svc.UpdateOptions(cfg)

	_, err := svc.Open(ctx, "store-1", "tpl-001")
	require.NoError(t, err)
	assert.Equal(t, 0, svc.CloseIdle(ctx, time.Now().Add(24*time.Hour)))
}

// TestSessionService_CloseAll 测试关闭所有会话
func TestSessionService_CloseAll(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()

	for _, id := range []string{"tpl-001", "tpl-002"} {
		sess, err := svc.Open(ctx, "store-1", id)
		require.NoError(t, err)
		_, err = sess.AddBlock("", document.Block{Type: "text"})
		require.NoError(t, err)
	}

	require.NoError(t, svc.CloseAll(ctx))
	assert.Equal(t, 0, svc.Count())
	assert.NotNil(t, store.get("store-1/tpl-001"))
	assert.NotNil(t, store.get("store-1/tpl-002"))
}

// TestSessionService_PublishesState 测试状态变化推送给订阅者
func TestSessionService_PublishesState(t *testing.T) {
	svc, _, pub := newService(t)

	sess, err := svc.Open(context.Background(), "store-1", "tpl-001")
	require.NoError(t, err)
	blk, err := sess.AddBlock("", document.Block{Type: "hero"})
	require.NoError(t, err)

	msgs := pub.messages(sess.ID)
	require.NotEmpty(t, msgs)

	var view struct {
		ID                string `json:"id"`
		SelectedBlockID   string `json:"selected_block_id"`
		HasUnsavedChanges bool   `json:"has_unsaved_changes"`
		CanUndo           bool   `json:"can_undo"`
	}
	require.NoError(t, json.Unmarshal(msgs[len(msgs)-1], &view))
	assert.Equal(t, sess.ID, view.ID)
	assert.Equal(t, blk.ID, view.SelectedBlockID)
	assert.True(t, view.HasUnsavedChanges)
	assert.True(t, view.CanUndo)
}

// TestSessionService_StateJSON 测试首次推送的状态
func TestSessionService_StateJSON(t *testing.T) {
	svc, _, _ := newService(t)

	_, ok := svc.StateJSON("missing")
	assert.False(t, ok)

	sess, err := svc.Open(context.Background(), "store-1", "tpl-001")
	require.NoError(t, err)

	data, ok := svc.StateJSON(sess.ID)
	require.True(t, ok)
	assert.Contains(t, string(data), `"current_page":"home"`)
	assert.Contains(t, string(data), `"id":"`+sess.ID+`"`)
}

// TestSessionService_UpdateOptions 测试配置只影响新会话
func TestSessionService_UpdateOptions(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	before, err := svc.Open(ctx, "store-1", "tpl-001")
	require.NoError(t, err)

	cfg := testConfig()
	cfg.DefaultPage = "landing"
	svc.UpdateOptions(cfg)

	after, err := svc.Open(ctx, "store-1", "tpl-002")
	require.NoError(t, err)
	assert.Equal(t, "home", before.State().CurrentPage)
	assert.Equal(t, "landing", after.State().CurrentPage)
}
