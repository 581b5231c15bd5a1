package autosave

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mautops/site-editor/internal/document"
	"github.com/sirupsen/logrus"
)

// DefaultDelay 默认防抖延迟
const DefaultDelay = 3 * time.Second

var (
	// ErrPersistence 保存或发布调用失败
	ErrPersistence = errors.New("persistence failure")
	// ErrClosed 网关已关闭
	ErrClosed = errors.New("autosave gateway closed")
)

// Store 外部持久化协作者
type Store interface {
	SaveTemplate(ctx context.Context, storeID, templateID string, tpl *document.Template, published bool) error
}

// Snapshot 发送时刻的文档快照
type Snapshot struct {
	StoreID    string
	TemplateID string
	Template   *document.Template
	// Revision 快照对应的编辑修订号,用于判断保存后是否仍有未保存的修改
	Revision uint64
}

// Source 快照来源（编辑会话）
type Source interface {
	Snapshot() Snapshot
	SaveSucceeded(revision uint64, published bool)
	SaveFailed(revision uint64, published bool, err error)
}

// Options 网关配置
type Options struct {
	// Delay 防抖延迟,<= 0 使用默认值
	Delay time.Duration
	// Timeout 单次自动保存的超时,0 表示不限制
	Timeout time.Duration
	Logger  logrus.FieldLogger
}

// Gateway 防抖自动保存与发布网关
// 任意时刻最多只有一个保存/发布请求在进行
type Gateway struct {
	store   Store
	src     Source
	delay   time.Duration
	timeout time.Duration
	logger  logrus.FieldLogger

	mu       sync.Mutex
	timer    *time.Timer
	inFlight bool
	pending  bool
	closed   bool
	// waiting 排队等待发送的显式保存/发布数量
	waiting int

	// sendMu 串行化所有发送,发布会等待进行中的自动保存结束
	sendMu sync.Mutex
}

// NewGateway 创建网关
func NewGateway(store Store, src Source, opts Options) *Gateway {
	if opts.Delay <= 0 {
		opts.Delay = DefaultDelay
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Gateway{
		store:   store,
		src:     src,
		delay:   opts.Delay,
		timeout: opts.Timeout,
		logger:  opts.Logger,
	}
}

// Notify 文档发生变化,重新开始防抖计时
// 保存进行中时只记录待保存标记,待请求结束后再重新计时
func (g *Gateway) Notify() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return
	}
	g.pending = true
	if g.inFlight {
		return
	}
	g.resetTimerLocked()
}

// Pending 是否有尚未发送的修改
func (g *Gateway) Pending() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pending
}

// InFlight 是否有请求正在进行
func (g *Gateway) InFlight() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inFlight
}

// Save 立即保存草稿（不经过防抖）
func (g *Gateway) Save(ctx context.Context) error {
	return g.explicit(ctx, false)
}

// Publish 立即发布,如果有自动保存在进行则等待其结束后再发送
func (g *Gateway) Publish(ctx context.Context) error {
	return g.explicit(ctx, true)
}

// Close 停止计时器并把待保存的修改作为草稿写出
func (g *Gateway) Close(ctx context.Context) error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	g.stopTimerLocked()
	g.mu.Unlock()

	g.sendMu.Lock()
	defer g.sendMu.Unlock()

	g.mu.Lock()
	pending := g.pending
	g.mu.Unlock()
	if !pending {
		return nil
	}
	return g.sendLocked(ctx, false)
}

func (g *Gateway) explicit(ctx context.Context, published bool) error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return ErrClosed
	}
	g.stopTimerLocked()
	g.waiting++
	g.mu.Unlock()

	g.sendMu.Lock()
	defer g.sendMu.Unlock()

	g.mu.Lock()
	g.waiting--
	g.mu.Unlock()
	return g.sendLocked(ctx, published)
}

// fire 防抖计时到期
func (g *Gateway) fire() {
	g.sendMu.Lock()
	defer g.sendMu.Unlock()

	g.mu.Lock()
	skip := g.closed || !g.pending
	g.mu.Unlock()
	if skip {
		return
	}

	ctx := context.Background()
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	if err := g.sendLocked(ctx, false); err != nil {
		g.logger.WithError(err).Warn("autosave failed")
	}
}

// sendLocked 发送当前快照,调用方必须持有 sendMu
func (g *Gateway) sendLocked(ctx context.Context, published bool) error {
	g.mu.Lock()
	g.inFlight = true
	g.pending = false
	g.mu.Unlock()

	snap := g.src.Snapshot()
	err := g.store.SaveTemplate(ctx, snap.StoreID, snap.TemplateID, snap.Template, published)

	g.mu.Lock()
	g.inFlight = false
	// 请求期间到达的修改在请求结束后重新计时,已有显式发送排队时由它发送
	if g.pending && !g.closed && g.waiting == 0 {
		g.resetTimerLocked()
	}
	if err != nil {
		// 失败不重试,修改保持待保存,等下一次编辑重新计时
		g.pending = true
	}
	g.mu.Unlock()

	entry := g.logger.WithFields(logrus.Fields{
		"store_id":    snap.StoreID,
		"template_id": snap.TemplateID,
		"revision":    snap.Revision,
		"published":   published,
	})
	if err != nil {
		entry.WithError(err).Error("template save failed")
		g.src.SaveFailed(snap.Revision, published, err)
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	entry.Debug("template saved")
	g.src.SaveSucceeded(snap.Revision, published)
	return nil
}

func (g *Gateway) resetTimerLocked() {
	g.stopTimerLocked()
	g.timer = time.AfterFunc(g.delay, g.fire)
}

func (g *Gateway) stopTimerLocked() {
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
}
