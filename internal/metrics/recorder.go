package metrics

import (
	"errors"
	"strconv"

	"github.com/mautops/site-editor/internal/mutation"
)

// EditorRecorder 将编辑会话事件写入 Prometheus 指标
type EditorRecorder struct{}

// NewEditorRecorder 创建编辑指标记录器
func NewEditorRecorder() *EditorRecorder {
	return &EditorRecorder{}
}

// RecordEdit 记录一次编辑
func (EditorRecorder) RecordEdit(kind string, err error) {
	editsTotal.WithLabelValues(kind, editResult(err)).Inc()
}

// RecordHistory 记录一次撤销/重做
func (EditorRecorder) RecordHistory(action string, applied bool) {
	historyTotal.WithLabelValues(action, strconv.FormatBool(applied)).Inc()
}

// RecordSave 记录一次保存/发布
func (EditorRecorder) RecordSave(published bool, err error) {
	kind := "draft"
	if published {
		kind = "publish"
	}
	result := "ok"
	if err != nil {
		result = "failed"
	}
	savesTotal.WithLabelValues(kind, result).Inc()
}

func editResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, mutation.ErrNotFound):
		return "not_found"
	default:
		return "rejected"
	}
}
