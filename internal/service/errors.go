package service

import (
	"fmt"
)

// 业务错误类型
// 处理器按类型映射 HTTP 状态码，服务层用 fmt.Errorf("...: %w", err) 包装底层错误

// ValidationError 校验失败（日期区间、比例、候选勾选等）
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError 创建校验错误
func NewValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// PermissionError 权限不足（角色或归属校验）
type PermissionError struct {
	Message string
}

func (e *PermissionError) Error() string {
	return e.Message
}

// NewPermissionError 创建权限错误
func NewPermissionError(format string, args ...interface{}) *PermissionError {
	return &PermissionError{Message: fmt.Sprintf(format, args...)}
}

// InvalidTransitionError 非法状态流转，报错信息带上 from/to
type InvalidTransitionError struct {
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status change from %s to %s", e.From, e.To)
}

// ConflictError 并发守卫命中（同一申请单重复生成分配）
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

// Actor 操作者身份
// 每个流程操作显式传入，不读任何全局会话态
type Actor struct {
	ID    string
	Name  string
	Roles []string
}

// HasRole 判断操作者是否持有指定角色
func (a Actor) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}
