package mutation

import (
	"errors"

	"github.com/mautops/site-editor/internal/document"
)

var (
	// ErrNotFound 意图引用的区块在应用时不存在
	ErrNotFound = errors.New("block not found")
	// ErrInvalidIntent 意图本身不完整（例如缺少区块类型）
	ErrInvalidIntent = errors.New("invalid intent")
	// ErrInvariant 文档不变量被破坏（order 冲突、ID 冲突）,属于硬错误
	ErrInvariant = errors.New("document invariant violated")
)

// Intent 对一个页面的结构化修改请求
type Intent interface {
	// Kind 意图类型名称,用于日志和指标
	Kind() string
}

// AddBlock 插入区块
// Block.ID 为空时生成新区块: 插入到 AfterID 之后,AfterID 为空则追加到页尾。
// Block.ID 非空时按原样重新插入（id、order、content、styles 全部保留）,
// 用于删除的撤销以及新增的重做。
type AddBlock struct {
	AfterID string
	Block   document.Block
}

// UpdateBlock 浅合并 content / styles,值为 nil 的键表示删除该字段
type UpdateBlock struct {
	BlockID string
	Content document.Fields
	Styles  document.Fields
}

// DeleteBlock 删除区块
type DeleteBlock struct {
	BlockID string
}

// ReorderBlock 移动区块
// Order 非空时直接使用该排序值,否则移动到 ToIndex 所在的可视位置
type ReorderBlock struct {
	BlockID string
	ToIndex int
	Order   *float64
}

// Renumber 重写指定区块的 order
type Renumber struct {
	Orders map[string]float64
}

// Batch 按顺序应用的组合意图
type Batch []Intent

func (AddBlock) Kind() string     { return "add_block" }
func (UpdateBlock) Kind() string  { return "update_block" }
func (DeleteBlock) Kind() string  { return "delete_block" }
func (ReorderBlock) Kind() string { return "reorder_block" }
func (Renumber) Kind() string     { return "renumber" }
func (Batch) Kind() string        { return "batch" }

// Result 应用意图的结果
type Result struct {
	// Template 新文档,输入文档保持不变
	Template *document.Template
	// Forward 解析后的正向意图,重放它可以得到完全相同的文档（新区块的 id/order 已确定）
	Forward Intent
	// Inverse 逆向意图,对 Template 应用后恢复输入文档
	Inverse Intent
	// BlockID 受影响的区块（批量意图时为最后一个）
	BlockID string
	// Changed 文档是否发生了变化
	Changed bool
}

// Float 返回 order 指针,方便构造 ReorderBlock
func Float(v float64) *float64 {
	return &v
}
