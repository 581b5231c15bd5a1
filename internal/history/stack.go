package history

import (
	"time"

	"github.com/mautops/site-editor/internal/document"
	"github.com/mautops/site-editor/internal/mutation"
)

const (
	// DefaultDepth 默认最大撤销深度
	DefaultDepth = 50
	// DefaultCoalesceWindow 默认合并窗口,接近文本输入的按键节奏
	DefaultCoalesceWindow = time.Second
)

// Entry 一个可撤销的步骤
// Forward 用于重做,Inverse 用于撤销,二者都通过 mutation 算子应用
type Entry struct {
	Page    string
	Forward mutation.Intent
	Inverse mutation.Intent
	At      time.Time
	// Edits 合并进该条目的编辑次数
	Edits int
}

// Stack 有界的撤销/重做栈
// 不是并发安全的,由编辑会话串行调用
type Stack struct {
	undo   []Entry
	redo   []Entry
	depth  int
	window time.Duration

	// coalescing 为 true 时栈顶条目仍可吸收后续的同区块更新
	coalescing bool
}

// New 创建历史栈
// depth <= 0 使用默认深度; window 为 0 使用默认窗口,小于 0 关闭合并
func New(depth int, window time.Duration) *Stack {
	if depth <= 0 {
		depth = DefaultDepth
	}
	if window == 0 {
		window = DefaultCoalesceWindow
	}
	return &Stack{
		undo:   make([]Entry, 0, depth),
		depth:  depth,
		window: window,
	}
}

// Push 压入新条目,丢弃重做分支
// 返回 true 表示条目被合并进了栈顶条目
func (s *Stack) Push(entry Entry, now time.Time) bool {
	s.redo = nil
	entry.At = now
	if entry.Edits == 0 {
		entry.Edits = 1
	}

	if s.canCoalesce(entry, now) {
		top := &s.undo[len(s.undo)-1]
		top.Forward, top.Inverse = coalesce(top.Forward, top.Inverse, entry.Forward, entry.Inverse)
		top.At = now
		top.Edits += entry.Edits
		return true
	}

	s.undo = append(s.undo, entry)
	if len(s.undo) > s.depth {
		// 超出深度时淘汰最旧的条目
		copy(s.undo, s.undo[1:])
		s.undo[len(s.undo)-1] = Entry{}
		s.undo = s.undo[:len(s.undo)-1]
	}
	_, s.coalescing = entry.Forward.(mutation.UpdateBlock)
	return false
}

// Undo 弹出最近的条目并移入重做栈,栈为空时返回 false
func (s *Stack) Undo() (Entry, bool) {
	s.coalescing = false
	if len(s.undo) == 0 {
		return Entry{}, false
	}
	entry := s.undo[len(s.undo)-1]
	s.undo = s.undo[:len(s.undo)-1]
	s.redo = append(s.redo, entry)
	return entry, true
}

// Redo 弹出最近撤销的条目并移回撤销栈,栈为空时返回 false
func (s *Stack) Redo() (Entry, bool) {
	s.coalescing = false
	if len(s.redo) == 0 {
		return Entry{}, false
	}
	entry := s.redo[len(s.redo)-1]
	s.redo = s.redo[:len(s.redo)-1]
	s.undo = append(s.undo, entry)
	return entry, true
}

// Rollback 撤销/重做应用失败时将条目放回原来的栈
func (s *Stack) Rollback(redone bool) {
	if redone {
		if n := len(s.undo); n > 0 {
			s.redo = append(s.redo, s.undo[n-1])
			s.undo = s.undo[:n-1]
		}
		return
	}
	if n := len(s.redo); n > 0 {
		s.undo = append(s.undo, s.redo[n-1])
		s.redo = s.redo[:n-1]
	}
}

// Seal 结束当前合并链,下一次更新会生成新的条目
func (s *Stack) Seal() {
	s.coalescing = false
}

// CanUndo 是否可以撤销
func (s *Stack) CanUndo() bool {
	return len(s.undo) > 0
}

// CanRedo 是否可以重做
func (s *Stack) CanRedo() bool {
	return len(s.redo) > 0
}

// Len 返回撤销栈与重做栈的长度
func (s *Stack) Len() (int, int) {
	return len(s.undo), len(s.redo)
}

func (s *Stack) canCoalesce(entry Entry, now time.Time) bool {
	if !s.coalescing || s.window < 0 || len(s.undo) == 0 {
		return false
	}
	top := s.undo[len(s.undo)-1]
	if top.Page != entry.Page || now.Sub(top.At) > s.window {
		return false
	}
	prev, ok := top.Forward.(mutation.UpdateBlock)
	if !ok {
		return false
	}
	next, ok := entry.Forward.(mutation.UpdateBlock)
	if !ok {
		return false
	}
	if _, ok := entry.Inverse.(mutation.UpdateBlock); !ok {
		return false
	}
	return prev.BlockID == next.BlockID
}

// coalesce 合并两次连续的更新: 正向取后者的值,逆向保留最早的旧值
func coalesce(fwd1, inv1, fwd2, inv2 mutation.Intent) (mutation.Intent, mutation.Intent) {
	f1 := fwd1.(mutation.UpdateBlock)
	f2 := fwd2.(mutation.UpdateBlock)
	i1 := inv1.(mutation.UpdateBlock)
	i2 := inv2.(mutation.UpdateBlock)

	forward := mutation.UpdateBlock{
		BlockID: f1.BlockID,
		Content: union(f1.Content, f2.Content),
		Styles:  union(f1.Styles, f2.Styles),
	}
	inverse := mutation.UpdateBlock{
		BlockID: i1.BlockID,
		Content: union(i2.Content, i1.Content),
		Styles:  union(i2.Styles, i1.Styles),
	}
	return forward, inverse
}

// union 返回 a 与 b 的并集,键冲突时 b 优先
func union(a, b document.Fields) document.Fields {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	out := make(document.Fields, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}
