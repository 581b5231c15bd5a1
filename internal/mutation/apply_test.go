package mutation_test

import (
	"fmt"
	"math"
	"testing"

	"github.com/mautops/site-editor/internal/document"
	"github.com/mautops/site-editor/internal/mutation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sequentialOperators 生成 b1, b2, ... 形式的区块 ID
func sequentialOperators() *mutation.Operators {
	n := 0
	return &mutation.Operators{NewID: func() string {
		n++
		return fmt.Sprintf("b%d", n)
	}}
}

func pageOf(blocks ...document.Block) *document.Template {
	tpl := document.New("tpl-001")
	tpl.Pages["home"] = blocks
	return tpl
}

func ids(tpl *document.Template, page string) []string {
	var out []string
	for _, b := range document.GetPage(tpl, page) {
		out = append(out, b.ID)
	}
	return out
}

// TestAddBlock_EmptyPage 测试在不存在的页面添加第一个区块
func TestAddBlock_EmptyPage(t *testing.T) {
	ops := sequentialOperators()
	tpl := document.New("tpl-001")

	res, err := ops.Apply(tpl, "home", mutation.AddBlock{Block: document.Block{Type: "hero"}})
	require.NoError(t, err)

	blocks := document.GetPage(res.Template, "home")
	require.Len(t, blocks, 1)
	assert.Equal(t, "b1", blocks[0].ID)
	assert.Equal(t, 0.0, blocks[0].Order)
	assert.NotNil(t, blocks[0].Content)
	assert.NotNil(t, blocks[0].Styles)
	assert.True(t, res.Changed)
	assert.Equal(t, "b1", res.BlockID)
	assert.Equal(t, mutation.DeleteBlock{BlockID: "b1"}, res.Inverse)
	assert.NotContains(t, tpl.Pages, "home", "input must not change")
}

// TestAddBlock_Append 测试追加到页尾时 order 为最大值 + 1
func TestAddBlock_Append(t *testing.T) {
	ops := sequentialOperators()
	tpl := pageOf(
		document.Block{ID: "x", Type: "text", Order: 0},
		document.Block{ID: "y", Type: "text", Order: 4.5},
	)

	res, err := ops.Apply(tpl, "home", mutation.AddBlock{Block: document.Block{Type: "hero"}})
	require.NoError(t, err)

	blocks := document.GetPage(res.Template, "home")
	require.Len(t, blocks, 3)
	assert.Equal(t, "b1", blocks[2].ID)
	assert.Equal(t, 5.5, blocks[2].Order)
}

// TestAddBlock_AfterMidpoint 测试插入到两个区块之间使用中点
func TestAddBlock_AfterMidpoint(t *testing.T) {
	ops := sequentialOperators()
	tpl := pageOf(
		document.Block{ID: "x", Type: "text", Order: 0},
		document.Block{ID: "y", Type: "text", Order: 1},
	)

	res, err := ops.Apply(tpl, "home", mutation.AddBlock{AfterID: "x", Block: document.Block{Type: "hero"}})
	require.NoError(t, err)

	assert.Equal(t, []string{"x", "b1", "y"}, ids(res.Template, "home"))
	blk, _, _ := document.GetBlock(res.Template, "home", "b1")
	assert.Equal(t, 0.5, blk.Order)
}

// TestAddBlock_AfterLast 测试插入到最后一个区块之后
func TestAddBlock_AfterLast(t *testing.T) {
	ops := sequentialOperators()
	tpl := pageOf(document.Block{ID: "x", Type: "text", Order: 2})

	res, err := ops.Apply(tpl, "home", mutation.AddBlock{AfterID: "x", Block: document.Block{Type: "hero"}})
	require.NoError(t, err)

	blk, idx, ok := document.GetBlock(res.Template, "home", "b1")
	require.True(t, ok)
	assert.Equal(t, 1, idx)
	assert.Equal(t, 3.0, blk.Order)
}

// TestAddBlock_Errors 测试非法的新增请求
func TestAddBlock_Errors(t *testing.T) {
	ops := sequentialOperators()
	tpl := pageOf(document.Block{ID: "x", Type: "text", Order: 0})

	_, err := ops.Apply(tpl, "home", mutation.AddBlock{AfterID: "missing", Block: document.Block{Type: "hero"}})
	assert.ErrorIs(t, err, mutation.ErrNotFound)

	_, err = ops.Apply(tpl, "home", mutation.AddBlock{})
	assert.ErrorIs(t, err, mutation.ErrInvalidIntent)

	_, err = ops.Apply(tpl, "home", mutation.AddBlock{Block: document.Block{ID: "x", Type: "text", Order: 5}})
	assert.ErrorIs(t, err, mutation.ErrInvariant, "duplicate id")

	_, err = ops.Apply(tpl, "home", mutation.AddBlock{Block: document.Block{ID: "z", Type: "text", Order: 0}})
	assert.ErrorIs(t, err, mutation.ErrInvariant, "duplicate order")
}

// TestAddBlock_Renormalize 测试相邻 order 没有浮点空隙时重新编号,且逆向可精确恢复
func TestAddBlock_Renormalize(t *testing.T) {
	ops := sequentialOperators()
	lo := 1.0
	hi := math.Nextafter(lo, 2)
	tpl := pageOf(
		document.Block{ID: "x", Type: "text", Order: lo},
		document.Block{ID: "y", Type: "text", Order: hi},
	)

	res, err := ops.Apply(tpl, "home", mutation.AddBlock{AfterID: "x", Block: document.Block{Type: "hero"}})
	require.NoError(t, err)
	require.NoError(t, document.Validate(res.Template))
	assert.Equal(t, []string{"x", "b1", "y"}, ids(res.Template, "home"))
	assert.IsType(t, mutation.Batch{}, res.Forward)

	undone, err := ops.Apply(res.Template, "home", res.Inverse)
	require.NoError(t, err)
	assert.True(t, document.Equal(tpl, undone.Template))

	redone, err := ops.Apply(undone.Template, "home", res.Forward)
	require.NoError(t, err)
	assert.True(t, document.Equal(res.Template, redone.Template))
}

// TestUpdateBlock_MergeAndInverse 测试浅合并、nil 删除字段以及逆向恢复
func TestUpdateBlock_MergeAndInverse(t *testing.T) {
	ops := sequentialOperators()
	tpl := pageOf(document.Block{
		ID:      "x",
		Type:    "hero",
		Content: document.Fields{"title": "Hi", "subtitle": "old"},
		Styles:  document.Fields{},
		Order:   0,
	})

	res, err := ops.Apply(tpl, "home", mutation.UpdateBlock{
		BlockID: "x",
		Content: document.Fields{"title": "Hello", "subtitle": nil, "cta": "Buy"},
		Styles:  document.Fields{"padding": 8.0},
	})
	require.NoError(t, err)
	assert.True(t, res.Changed)

	blk, _, _ := document.GetBlock(res.Template, "home", "x")
	assert.Equal(t, document.Fields{"title": "Hello", "cta": "Buy"}, blk.Content)
	assert.Equal(t, document.Fields{"padding": 8.0}, blk.Styles)

	orig, _, _ := document.GetBlock(tpl, "home", "x")
	assert.Equal(t, "Hi", orig.Content["title"], "input must not change")

	inv := res.Inverse.(mutation.UpdateBlock)
	assert.Equal(t, document.Fields{"title": "Hi", "subtitle": "old", "cta": nil}, inv.Content)

	undone, err := ops.Apply(res.Template, "home", res.Inverse)
	require.NoError(t, err)
	assert.True(t, document.Equal(tpl, undone.Template))
}

// TestUpdateBlock_Empty 测试空的更新不改变文档
func TestUpdateBlock_Empty(t *testing.T) {
	ops := sequentialOperators()
	tpl := pageOf(document.Block{ID: "x", Type: "hero", Order: 0})

	res, err := ops.Apply(tpl, "home", mutation.UpdateBlock{BlockID: "x"})
	require.NoError(t, err)
	assert.False(t, res.Changed)

	_, err = ops.Apply(tpl, "home", mutation.UpdateBlock{BlockID: "missing", Content: document.Fields{"a": 1}})
	assert.ErrorIs(t, err, mutation.ErrNotFound)
}

// TestDeleteBlock_UndoRestoresBlock 测试删除后逆向恢复完全相同的区块
func TestDeleteBlock_UndoRestoresBlock(t *testing.T) {
	ops := sequentialOperators()
	tpl := pageOf(
		document.Block{ID: "x", Type: "hero", Content: document.Fields{"title": "Hi"}, Styles: document.Fields{"bg": "red"}, Order: 0},
		document.Block{ID: "y", Type: "text", Content: document.Fields{}, Styles: document.Fields{}, Order: 0.25},
		document.Block{ID: "z", Type: "text", Content: document.Fields{}, Styles: document.Fields{}, Order: 7},
	)

	res, err := ops.Apply(tpl, "home", mutation.DeleteBlock{BlockID: "y"})
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "z"}, ids(res.Template, "home"))

	undone, err := ops.Apply(res.Template, "home", res.Inverse)
	require.NoError(t, err)
	assert.True(t, document.Equal(tpl, undone.Template))

	_, err = ops.Apply(res.Template, "home", mutation.DeleteBlock{BlockID: "y"})
	assert.ErrorIs(t, err, mutation.ErrNotFound)
}

// TestReorderBlock 测试移动区块到指定位置
func TestReorderBlock(t *testing.T) {
	base := pageOf(
		document.Block{ID: "a", Type: "text", Order: 0},
		document.Block{ID: "b", Type: "text", Order: 1},
		document.Block{ID: "c", Type: "text", Order: 2},
	)
	tests := []struct {
		name    string
		id      string
		to      int
		want    []string
		changed bool
	}{
		{"to front", "c", 0, []string{"c", "a", "b"}, true},
		{"to end", "a", 2, []string{"b", "c", "a"}, true},
		{"to middle", "a", 1, []string{"b", "a", "c"}, true},
		{"same index", "b", 1, []string{"a", "b", "c"}, false},
		{"clamped high", "a", 99, []string{"b", "c", "a"}, true},
		{"clamped low", "b", -3, []string{"b", "a", "c"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ops := sequentialOperators()
			res, err := ops.Apply(base, "home", mutation.ReorderBlock{BlockID: tt.id, ToIndex: tt.to})
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(res.Template, "home"))
			assert.Equal(t, tt.changed, res.Changed)
			require.NoError(t, document.Validate(res.Template))

			undone, err := ops.Apply(res.Template, "home", res.Inverse)
			require.NoError(t, err)
			assert.True(t, document.Equal(base, undone.Template))
		})
	}
}

// TestReorderBlock_PinnedOrderCollision 测试指定 order 与其他区块冲突
func TestReorderBlock_PinnedOrderCollision(t *testing.T) {
	tpl := pageOf(
		document.Block{ID: "a", Type: "text", Order: 0},
		document.Block{ID: "b", Type: "text", Order: 1},
	)
	_, err := mutation.Apply(tpl, "home", mutation.ReorderBlock{BlockID: "a", Order: mutation.Float(1)})
	assert.ErrorIs(t, err, mutation.ErrInvariant)
}

// TestReorderBlock_Renormalize 测试移动时没有空隙会重新编号
func TestReorderBlock_Renormalize(t *testing.T) {
	lo := 1.0
	tpl := pageOf(
		document.Block{ID: "a", Type: "text", Order: lo},
		document.Block{ID: "b", Type: "text", Order: math.Nextafter(lo, 2)},
		document.Block{ID: "c", Type: "text", Order: 3},
	)
	res, err := mutation.Apply(tpl, "home", mutation.ReorderBlock{BlockID: "c", ToIndex: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c", "b"}, ids(res.Template, "home"))
	assert.Equal(t, "c", res.BlockID)

	undone, err := mutation.Apply(res.Template, "home", res.Inverse)
	require.NoError(t, err)
	assert.True(t, document.Equal(tpl, undone.Template))
}

// TestAddBlock_LargeOrderKeys 测试末尾 order 过大、+1 无法表示时先重新编号
func TestAddBlock_LargeOrderKeys(t *testing.T) {
	for _, afterID := range []string{"", "a"} {
		ops := sequentialOperators()
		tpl := pageOf(document.Block{ID: "a", Type: "hero", Order: 1e17})

		res, err := ops.Apply(tpl, "home", mutation.AddBlock{AfterID: afterID, Block: document.Block{Type: "text"}})
		require.NoError(t, err)
		require.NoError(t, document.Validate(res.Template))
		assert.Equal(t, []string{"a", "b1"}, ids(res.Template, "home"))
		assert.IsType(t, mutation.Batch{}, res.Forward)

		undone, err := ops.Apply(res.Template, "home", res.Inverse)
		require.NoError(t, err)
		assert.True(t, document.Equal(tpl, undone.Template))
	}
}

// TestReorderBlock_LargeOrderKeys 测试移动到两端时 order 无法表示则整页重新编号
func TestReorderBlock_LargeOrderKeys(t *testing.T) {
	first := pageOf(
		document.Block{ID: "a", Type: "text", Order: -1e17},
		document.Block{ID: "b", Type: "text", Order: 0},
	)
	res, err := mutation.Apply(first, "home", mutation.ReorderBlock{BlockID: "b", ToIndex: 0})
	require.NoError(t, err)
	require.NoError(t, document.Validate(res.Template))
	assert.Equal(t, []string{"b", "a"}, ids(res.Template, "home"))

	undone, err := mutation.Apply(res.Template, "home", res.Inverse)
	require.NoError(t, err)
	assert.True(t, document.Equal(first, undone.Template))

	last := pageOf(
		document.Block{ID: "a", Type: "text", Order: 0},
		document.Block{ID: "b", Type: "text", Order: 1e17},
	)
	res, err = mutation.Apply(last, "home", mutation.ReorderBlock{BlockID: "a", ToIndex: 1})
	require.NoError(t, err)
	require.NoError(t, document.Validate(res.Template))
	assert.Equal(t, []string{"b", "a"}, ids(res.Template, "home"))
}

// TestRenumber_Collision 测试重新编号产生重复 order
func TestRenumber_Collision(t *testing.T) {
	tpl := pageOf(
		document.Block{ID: "a", Type: "text", Order: 0},
		document.Block{ID: "b", Type: "text", Order: 1},
	)
	_, err := mutation.Apply(tpl, "home", mutation.Renumber{Orders: map[string]float64{"a": 1}})
	assert.ErrorIs(t, err, mutation.ErrInvariant)
}

// TestApply_InvalidInput 测试非法输入
func TestApply_InvalidInput(t *testing.T) {
	_, err := mutation.Apply(nil, "home", mutation.DeleteBlock{BlockID: "a"})
	assert.ErrorIs(t, err, mutation.ErrInvalidIntent)

	_, err = mutation.Apply(document.New("tpl"), "", mutation.DeleteBlock{BlockID: "a"})
	assert.ErrorIs(t, err, mutation.ErrInvalidIntent)

	_, err = mutation.Apply(document.New("tpl"), "home", nil)
	assert.ErrorIs(t, err, mutation.ErrInvalidIntent)
}

// TestApply_PointerIntents 测试指针形式的意图
func TestApply_PointerIntents(t *testing.T) {
	ops := sequentialOperators()
	res, err := ops.Apply(document.New("tpl"), "home", &mutation.AddBlock{Block: document.Block{Type: "hero"}})
	require.NoError(t, err)
	res, err = ops.Apply(res.Template, "home", &mutation.UpdateBlock{BlockID: "b1", Content: document.Fields{"t": "x"}})
	require.NoError(t, err)
	res, err = ops.Apply(res.Template, "home", &mutation.ReorderBlock{BlockID: "b1"})
	require.NoError(t, err)
	res, err = ops.Apply(res.Template, "home", &mutation.DeleteBlock{BlockID: "b1"})
	require.NoError(t, err)
	assert.Empty(t, document.GetPage(res.Template, "home"))
}

// TestIntentKinds 测试意图类型名称
func TestIntentKinds(t *testing.T) {
	assert.Equal(t, "add_block", mutation.AddBlock{}.Kind())
	assert.Equal(t, "update_block", mutation.UpdateBlock{}.Kind())
	assert.Equal(t, "delete_block", mutation.DeleteBlock{}.Kind())
	assert.Equal(t, "reorder_block", mutation.ReorderBlock{}.Kind())
	assert.Equal(t, "renumber", mutation.Renumber{}.Kind())
	assert.Equal(t, "batch", mutation.Batch{}.Kind())
}
