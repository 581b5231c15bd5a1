package utils

import (
	"strings"
)

// 排序方向
const (
	SortAsc  = "ASC"
	SortDesc = "DESC"
)

// ErrInvalidSortOrder 排序方向不合法
var ErrInvalidSortOrder = &ValidationError{Code: "INVALID_SORT_ORDER", Message: "sort order must be ASC or DESC"}

// ParseSortOrder 解析排序方向,空字符串返回 def
func ParseSortOrder(order, def string) (string, error) {
	upper := strings.ToUpper(strings.TrimSpace(order))
	switch upper {
	case "":
		return def, nil
	case SortAsc, SortDesc:
		return upper, nil
	default:
		return "", ErrInvalidSortOrder
	}
}
