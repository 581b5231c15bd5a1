package mutation

import (
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/mautops/site-editor/internal/document"
)

// Operators 变更算子
// 所有算子只构造新文档,从不修改输入文档及其中的切片和字段集合
type Operators struct {
	// NewID 生成区块 ID,同一会话内不得重复
	NewID func() string
}

// NewOperators 创建使用 UUID 生成区块 ID 的算子
func NewOperators() *Operators {
	return &Operators{NewID: func() string { return uuid.New().String() }}
}

var defaultOperators = NewOperators()

// Apply 使用默认算子应用意图
func Apply(tpl *document.Template, pageName string, intent Intent) (*Result, error) {
	return defaultOperators.Apply(tpl, pageName, intent)
}

// Apply 对页面应用意图
// 页面不存在时视为空页面（新增第一个区块时会隐式创建该页面）
func (o *Operators) Apply(tpl *document.Template, pageName string, intent Intent) (*Result, error) {
	if tpl == nil {
		return nil, fmt.Errorf("%w: template is nil", ErrInvalidIntent)
	}
	if pageName == "" {
		return nil, fmt.Errorf("%w: page name is required", ErrInvalidIntent)
	}

	switch in := intent.(type) {
	case AddBlock:
		return o.addBlock(tpl, pageName, in)
	case *AddBlock:
		return o.addBlock(tpl, pageName, *in)
	case UpdateBlock:
		return o.updateBlock(tpl, pageName, in)
	case *UpdateBlock:
		return o.updateBlock(tpl, pageName, *in)
	case DeleteBlock:
		return o.deleteBlock(tpl, pageName, in)
	case *DeleteBlock:
		return o.deleteBlock(tpl, pageName, *in)
	case ReorderBlock:
		return o.reorderBlock(tpl, pageName, in)
	case *ReorderBlock:
		return o.reorderBlock(tpl, pageName, *in)
	case Renumber:
		return o.renumber(tpl, pageName, in)
	case Batch:
		return o.batch(tpl, pageName, in)
	case nil:
		return nil, fmt.Errorf("%w: intent is nil", ErrInvalidIntent)
	default:
		return nil, fmt.Errorf("%w: unsupported intent %T", ErrInvalidIntent, intent)
	}
}

func (o *Operators) addBlock(tpl *document.Template, pageName string, in AddBlock) (*Result, error) {
	blocks := document.GetPage(tpl, pageName)

	// 1. 按原样重新插入
	if in.Block.ID != "" {
		for _, b := range blocks {
			if b.ID == in.Block.ID {
				return nil, fmt.Errorf("%w: block id %q already on page %q", ErrInvariant, b.ID, pageName)
			}
			if b.Order == in.Block.Order {
				return nil, fmt.Errorf("%w: order %v already taken on page %q", ErrInvariant, b.Order, pageName)
			}
		}
		block := document.CloneBlock(in.Block)
		next := make([]document.Block, 0, len(blocks)+1)
		next = append(next, blocks...)
		next = append(next, block)
		document.SortBlocks(next)
		return &Result{
			Template: document.WithPage(tpl, pageName, next),
			Forward:  AddBlock{Block: document.CloneBlock(block)},
			Inverse:  DeleteBlock{BlockID: block.ID},
			BlockID:  block.ID,
			Changed:  true,
		}, nil
	}

	// 2. 新区块
	if in.Block.Type == "" {
		return nil, fmt.Errorf("%w: block type is required", ErrInvalidIntent)
	}

	insertAt := len(blocks)
	order := 0.0
	if in.AfterID != "" {
		_, idx, ok := document.GetBlock(tpl, pageName, in.AfterID)
		if !ok {
			return nil, fmt.Errorf("%w: %q on page %q", ErrNotFound, in.AfterID, pageName)
		}
		insertAt = idx + 1
		prev := blocks[idx].Order
		if insertAt < len(blocks) {
			var fits bool
			order, fits = between(prev, blocks[insertAt].Order)
			if !fits {
				return o.renormalizeThen(tpl, pageName, blocks, in)
			}
		} else {
			var fits bool
			if order, fits = after(prev); !fits {
				return o.renormalizeThen(tpl, pageName, blocks, in)
			}
		}
	} else if len(blocks) > 0 {
		var fits bool
		if order, fits = after(blocks[len(blocks)-1].Order); !fits {
			return o.renormalizeThen(tpl, pageName, blocks, in)
		}
	}

	block := document.Block{
		ID:      o.NewID(),
		Type:    in.Block.Type,
		Content: document.CloneFields(in.Block.Content),
		Styles:  document.CloneFields(in.Block.Styles),
		Order:   order,
	}
	if block.Content == nil {
		block.Content = document.Fields{}
	}
	if block.Styles == nil {
		block.Styles = document.Fields{}
	}

	next := make([]document.Block, 0, len(blocks)+1)
	next = append(next, blocks[:insertAt]...)
	next = append(next, block)
	next = append(next, blocks[insertAt:]...)

	return &Result{
		Template: document.WithPage(tpl, pageName, next),
		Forward:  AddBlock{Block: document.CloneBlock(block)},
		Inverse:  DeleteBlock{BlockID: block.ID},
		BlockID:  block.ID,
		Changed:  true,
	}, nil
}

// renormalizeThen 相邻 order 之间已无浮点空隙时,先将页面重新编号为 0..n-1 再插入
func (o *Operators) renormalizeThen(tpl *document.Template, pageName string, blocks []document.Block, then Intent) (*Result, error) {
	orders := make(map[string]float64, len(blocks))
	for i, b := range blocks {
		orders[b.ID] = float64(i)
	}
	return o.batch(tpl, pageName, Batch{Renumber{Orders: orders}, then})
}

func (o *Operators) updateBlock(tpl *document.Template, pageName string, in UpdateBlock) (*Result, error) {
	block, idx, ok := document.GetBlock(tpl, pageName, in.BlockID)
	if !ok {
		return nil, fmt.Errorf("%w: %q on page %q", ErrNotFound, in.BlockID, pageName)
	}

	content, prevContent := merge(block.Content, in.Content)
	styles, prevStyles := merge(block.Styles, in.Styles)

	updated := block
	updated.Content = content
	updated.Styles = styles

	blocks := document.GetPage(tpl, pageName)
	next := make([]document.Block, len(blocks))
	copy(next, blocks)
	next[idx] = updated

	return &Result{
		Template: document.WithPage(tpl, pageName, next),
		Forward: UpdateBlock{
			BlockID: in.BlockID,
			Content: document.CloneFields(in.Content),
			Styles:  document.CloneFields(in.Styles),
		},
		Inverse: UpdateBlock{BlockID: in.BlockID, Content: prevContent, Styles: prevStyles},
		BlockID: in.BlockID,
		Changed: len(in.Content) > 0 || len(in.Styles) > 0,
	}, nil
}

// merge 浅合并 partial 到 base,返回新集合以及被覆盖字段的旧值（原本不存在的字段记为 nil）
func merge(base, partial document.Fields) (document.Fields, document.Fields) {
	if len(partial) == 0 {
		return base, nil
	}
	out := make(document.Fields, len(base)+len(partial))
	for k, v := range base {
		out[k] = v
	}
	prev := make(document.Fields, len(partial))
	for k, v := range partial {
		if old, ok := base[k]; ok {
			prev[k] = old
		} else {
			prev[k] = nil
		}
		if v == nil {
			delete(out, k)
			continue
		}
		out[k] = document.CloneValue(v)
	}
	return out, prev
}

func (o *Operators) deleteBlock(tpl *document.Template, pageName string, in DeleteBlock) (*Result, error) {
	block, idx, ok := document.GetBlock(tpl, pageName, in.BlockID)
	if !ok {
		return nil, fmt.Errorf("%w: %q on page %q", ErrNotFound, in.BlockID, pageName)
	}

	blocks := document.GetPage(tpl, pageName)
	next := make([]document.Block, 0, len(blocks)-1)
	next = append(next, blocks[:idx]...)
	next = append(next, blocks[idx+1:]...)

	return &Result{
		Template: document.WithPage(tpl, pageName, next),
		Forward:  in,
		Inverse:  AddBlock{Block: document.CloneBlock(block)},
		BlockID:  in.BlockID,
		Changed:  true,
	}, nil
}

func (o *Operators) reorderBlock(tpl *document.Template, pageName string, in ReorderBlock) (*Result, error) {
	block, idx, ok := document.GetBlock(tpl, pageName, in.BlockID)
	if !ok {
		return nil, fmt.Errorf("%w: %q on page %q", ErrNotFound, in.BlockID, pageName)
	}
	blocks := document.GetPage(tpl, pageName)

	target := block.Order
	if in.Order != nil {
		target = *in.Order
	} else {
		rest := make([]document.Block, 0, len(blocks)-1)
		rest = append(rest, blocks[:idx]...)
		rest = append(rest, blocks[idx+1:]...)

		to := in.ToIndex
		if to < 0 {
			to = 0
		}
		if to > len(rest) {
			to = len(rest)
		}
		if to == idx {
			return &Result{
				Template: tpl,
				Forward:  ReorderBlock{BlockID: in.BlockID, Order: Float(block.Order)},
				Inverse:  ReorderBlock{BlockID: in.BlockID, Order: Float(block.Order)},
				BlockID:  in.BlockID,
			}, nil
		}

		fits := true
		switch {
		case to > 0 && to < len(rest):
			target, fits = between(rest[to-1].Order, rest[to].Order)
		case to > 0:
			target, fits = after(rest[to-1].Order)
		case len(rest) > 0:
			target, fits = before(rest[0].Order)
		}
		if !fits {
			// 没有可用的 order,按目标顺序整页重新编号
			seq := make([]document.Block, 0, len(blocks))
			seq = append(seq, rest[:to]...)
			seq = append(seq, block)
			seq = append(seq, rest[to:]...)
			orders := make(map[string]float64, len(seq))
			for i, b := range seq {
				orders[b.ID] = float64(i)
			}
			res, err := o.renumber(tpl, pageName, Renumber{Orders: orders})
			if err != nil {
				return nil, err
			}
			res.BlockID = in.BlockID
			return res, nil
		}
	}

	for _, b := range blocks {
		if b.ID != block.ID && b.Order == target {
			return nil, fmt.Errorf("%w: order %v already taken on page %q", ErrInvariant, target, pageName)
		}
	}

	moved := block
	moved.Order = target
	next := make([]document.Block, len(blocks))
	copy(next, blocks)
	next[idx] = moved
	document.SortBlocks(next)

	return &Result{
		Template: document.WithPage(tpl, pageName, next),
		Forward:  ReorderBlock{BlockID: in.BlockID, Order: Float(target)},
		Inverse:  ReorderBlock{BlockID: in.BlockID, Order: Float(block.Order)},
		BlockID:  in.BlockID,
		Changed:  target != block.Order,
	}, nil
}

func (o *Operators) renumber(tpl *document.Template, pageName string, in Renumber) (*Result, error) {
	blocks := document.GetPage(tpl, pageName)
	prev := make(map[string]float64, len(in.Orders))
	next := make([]document.Block, len(blocks))
	copy(next, blocks)

	for id, order := range in.Orders {
		_, idx, ok := document.GetBlock(tpl, pageName, id)
		if !ok {
			return nil, fmt.Errorf("%w: %q on page %q", ErrNotFound, id, pageName)
		}
		prev[id] = next[idx].Order
		next[idx].Order = order
	}
	document.SortBlocks(next)
	for i := 1; i < len(next); i++ {
		if next[i-1].Order == next[i].Order {
			return nil, fmt.Errorf("%w: order %v assigned twice on page %q", ErrInvariant, next[i].Order, pageName)
		}
	}

	forward := make(map[string]float64, len(in.Orders))
	for id, order := range in.Orders {
		forward[id] = order
	}
	return &Result{
		Template: document.WithPage(tpl, pageName, next),
		Forward:  Renumber{Orders: forward},
		Inverse:  Renumber{Orders: prev},
		Changed:  len(in.Orders) > 0,
	}, nil
}

func (o *Operators) batch(tpl *document.Template, pageName string, in Batch) (*Result, error) {
	current := tpl
	forward := make(Batch, 0, len(in))
	inverse := make(Batch, 0, len(in))
	out := &Result{}

	for _, step := range in {
		res, err := o.Apply(current, pageName, step)
		if err != nil {
			return nil, err
		}
		current = res.Template
		forward = append(forward, res.Forward)
		inverse = append(Batch{res.Inverse}, inverse...)
		if res.BlockID != "" {
			out.BlockID = res.BlockID
		}
		out.Changed = out.Changed || res.Changed
	}

	out.Template = current
	out.Forward = forward
	out.Inverse = inverse
	return out, nil
}

// between 返回 (lo, hi) 之间的中点,没有可用空隙时 fits 为 false
func between(lo, hi float64) (float64, bool) {
	mid := lo + (hi-lo)/2
	return mid, mid > lo && mid < hi
}

// after 返回排在 prev 之后的 order,prev 过大导致 +1 无法表示时 ok 为 false
func after(prev float64) (float64, bool) {
	next := prev + 1
	return next, next > prev && !math.IsInf(next, 0)
}

// before 返回排在 first 之前的 order
func before(first float64) (float64, bool) {
	next := first - 1
	return next, next < first && !math.IsInf(next, 0)
}
