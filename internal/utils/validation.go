package utils

import (
	"regexp"
	"strings"
)

var (
	idPattern        = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	pagePattern      = regexp.MustCompile(`^[a-zA-Z0-9_/-]+$`)
	blockTypePattern = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)
)

// ValidateID 验证店铺、模板、区块 ID 格式
func ValidateID(id string) error {
	// 1. 检查是否为空
	if id == "" {
		return ErrEmptyID
	}

	// 2. 检查长度（最大 64 字符）
	if len(id) > 64 {
		return ErrIDTooLong
	}

	// 3. 检查格式（只允许字母、数字、连字符、下划线）
	if !idPattern.MatchString(id) {
		return ErrInvalidIDFormat
	}

	return nil
}

// ValidatePageName 验证页面名,允许 "/" 以支持 "products/detail" 这样的层级页面
func ValidatePageName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return ErrEmptyName
	}
	if len(trimmed) > 128 {
		return ErrNameTooLong
	}
	if trimmed != name || !pagePattern.MatchString(name) {
		return ErrInvalidName
	}
	return nil
}

// ValidateBlockType 验证区块类型（hero、text、image ...）
func ValidateBlockType(kind string) error {
	if kind == "" {
		return ErrEmptyName
	}
	if len(kind) > 64 {
		return ErrNameTooLong
	}
	if !blockTypePattern.MatchString(kind) {
		return ErrInvalidName
	}
	return nil
}

// 错误定义
var (
	ErrEmptyName       = &ValidationError{Code: "EMPTY_NAME", Message: "name cannot be empty"}
	ErrNameTooLong     = &ValidationError{Code: "NAME_TOO_LONG", Message: "name exceeds maximum length"}
	ErrInvalidName     = &ValidationError{Code: "INVALID_NAME", Message: "name contains invalid characters"}
	ErrEmptyID         = &ValidationError{Code: "EMPTY_ID", Message: "id cannot be empty"}
	ErrInvalidIDFormat = &ValidationError{Code: "INVALID_ID_FORMAT", Message: "id contains invalid characters"}
	ErrIDTooLong       = &ValidationError{Code: "ID_TOO_LONG", Message: "id exceeds maximum length"}
)

// ValidationError 验证错误
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
