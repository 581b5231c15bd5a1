package document

import (
	"fmt"
	"reflect"
	"sort"
)

// Fields 区块的自由字段集合（content / styles）
// 核心只存储、复制、合并，不解释具体字段
type Fields map[string]any

// Block 页面中的一个内容区块
type Block struct {
	ID      string  `json:"id"`
	Type    string  `json:"type"`    // hero, gallery, products, ... 由渲染层解释
	Content Fields  `json:"content"` // 区块业务字段
	Styles  Fields  `json:"styles"`  // 区块展示字段
	Order   float64 `json:"order"`   // 排序键,页面内唯一,允许间隙
}

// Template 店铺模板文档
type Template struct {
	ID     string             `json:"id"`
	Styles Fields             `json:"styles"`
	Pages  map[string][]Block `json:"pages"`
}

// New 创建空模板
func New(id string) *Template {
	return &Template{
		ID:     id,
		Styles: Fields{},
		Pages:  map[string][]Block{},
	}
}

// GetPage 返回页面的区块序列,页面不存在时返回空序列
// 返回的切片属于文档,调用方不得修改
func GetPage(tpl *Template, pageName string) []Block {
	if tpl == nil {
		return nil
	}
	return tpl.Pages[pageName]
}

// GetBlock 查找区块,返回区块及其在页面中的位置
func GetBlock(tpl *Template, pageName, blockID string) (Block, int, bool) {
	for i, b := range GetPage(tpl, pageName) {
		if b.ID == blockID {
			return b, i, true
		}
	}
	return Block{}, -1, false
}

// WithPage 返回替换了指定页面的新模板
// 只复制页面 map,其他页面切片和 styles 直接复用
func WithPage(tpl *Template, pageName string, blocks []Block) *Template {
	next := &Template{Pages: map[string][]Block{}}
	if tpl != nil {
		next.ID = tpl.ID
		next.Styles = tpl.Styles
		for name, page := range tpl.Pages {
			next.Pages[name] = page
		}
	}
	if blocks == nil {
		blocks = []Block{}
	}
	next.Pages[pageName] = blocks
	return next
}

// PageNames 返回排序后的页面名称
func PageNames(tpl *Template) []string {
	if tpl == nil {
		return nil
	}
	names := make([]string, 0, len(tpl.Pages))
	for name := range tpl.Pages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SortBlocks 按 order 升序排序（就地）
func SortBlocks(blocks []Block) {
	sort.SliceStable(blocks, func(i, j int) bool {
		return blocks[i].Order < blocks[j].Order
	})
}

// Validate 检查文档不变量: 每个页面的 order 严格递增且 ID 唯一
func Validate(tpl *Template) error {
	if tpl == nil {
		return fmt.Errorf("template is nil")
	}
	for _, name := range PageNames(tpl) {
		seen := make(map[string]struct{})
		blocks := tpl.Pages[name]
		for i, b := range blocks {
			if b.ID == "" {
				return fmt.Errorf("page %q: block at %d has empty id", name, i)
			}
			if _, dup := seen[b.ID]; dup {
				return fmt.Errorf("page %q: duplicate block id %q", name, b.ID)
			}
			seen[b.ID] = struct{}{}
			if i > 0 && !(blocks[i-1].Order < b.Order) {
				return fmt.Errorf("page %q: order not strictly increasing at %d (%v >= %v)",
					name, i, blocks[i-1].Order, b.Order)
			}
		}
	}
	return nil
}

// Clone 深拷贝模板
func Clone(tpl *Template) *Template {
	if tpl == nil {
		return nil
	}
	out := &Template{
		ID:     tpl.ID,
		Styles: CloneFields(tpl.Styles),
		Pages:  make(map[string][]Block, len(tpl.Pages)),
	}
	for name, blocks := range tpl.Pages {
		cp := make([]Block, len(blocks))
		for i, b := range blocks {
			cp[i] = CloneBlock(b)
		}
		out.Pages[name] = cp
	}
	return out
}

// CloneBlock 深拷贝区块
func CloneBlock(b Block) Block {
	b.Content = CloneFields(b.Content)
	b.Styles = CloneFields(b.Styles)
	return b
}

// CloneFields 深拷贝字段集合
func CloneFields(f Fields) Fields {
	if f == nil {
		return nil
	}
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = CloneValue(v)
	}
	return out
}

// CloneValue 深拷贝单个字段值（嵌套 map / slice）
func CloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return map[string]any(CloneFields(Fields(t)))
	case Fields:
		return CloneFields(t)
	case []any:
		cp := make([]any, len(t))
		for i := range t {
			cp[i] = CloneValue(t[i])
		}
		return cp
	default:
		return v
	}
}

// Equal 深度比较两个模板,nil 与空集合视为相等
func Equal(a, b *Template) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.ID != b.ID || !fieldsEqual(a.Styles, b.Styles) {
		return false
	}
	for _, name := range PageNames(a) {
		if !blocksEqual(a.Pages[name], b.Pages[name]) {
			return false
		}
	}
	for _, name := range PageNames(b) {
		if _, ok := a.Pages[name]; !ok && len(b.Pages[name]) > 0 {
			return false
		}
	}
	return true
}

func blocksEqual(a, b []Block) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].Type != b[i].Type || a[i].Order != b[i].Order {
			return false
		}
		if !fieldsEqual(a[i].Content, b[i].Content) || !fieldsEqual(a[i].Styles, b[i].Styles) {
			return false
		}
	}
	return true
}

func fieldsEqual(a, b Fields) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return reflect.DeepEqual(a, b)
}
