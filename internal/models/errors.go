package models

import (
	"errors"
	"fmt"
)

// ErrorKind 错误种类,向上层(CLI/渲染层)暴露的失败分类
type ErrorKind string

const (
	// KindConnection 调试端点不可达或控制连接中断,整次调用致命
	KindConnection ErrorKind = "connection"
	// KindNavigation 页面导航失败
	KindNavigation ErrorKind = "navigation"
	// KindTimeout 导航或就绪条件在超时内未满足
	KindTimeout ErrorKind = "timeout"
	// KindBlocked 命中反爬信号(验证页/可疑空结果)
	KindBlocked ErrorKind = "blocked"
	// KindLoginRequired 需要登录态但标签页未登录
	KindLoginRequired ErrorKind = "login_required"
	// KindEvaluation 页面上下文脚本执行失败
	KindEvaluation ErrorKind = "evaluation"
	// KindRead 通用读取(read命令)失败
	KindRead ErrorKind = "read"
	// KindUnknown 未分类错误
	KindUnknown ErrorKind = "unknown"
)

// SourceError 带来源与种类的类型化失败
type SourceError struct {
	Source Source
	Kind   ErrorKind
	Err    error
}

// NewSourceError 创建类型化失败
func NewSourceError(source Source, kind ErrorKind, err error) *SourceError {
	return &SourceError{Source: source, Kind: kind, Err: err}
}

// Error 实现error接口
func (e *SourceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Source, e.Kind, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Source, e.Kind)
}

// Unwrap 支持errors.Is/As链
func (e *SourceError) Unwrap() error {
	return e.Err
}

// ReadError read命令的类型化失败
type ReadError struct {
	Kind ErrorKind
	Err  error
}

// Error 实现error接口
func (e *ReadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("read %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("read %s", e.Kind)
}

// Unwrap 支持errors.Is/As链
func (e *ReadError) Unwrap() error {
	return e.Err
}

// KindOf 提取错误的种类,无法识别时返回KindUnknown
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var se *SourceError
	if errors.As(err, &se) {
		return se.Kind
	}
	var re *ReadError
	if errors.As(err, &re) {
		return re.Kind
	}
	return KindUnknown
}

// Retryable 该种类的失败是否值得用新标签页重试一次
// Blocked/LoginRequired重试无益且可能加重风控,绝不自动重试
func Retryable(kind ErrorKind) bool {
	return kind == KindNavigation || kind == KindTimeout
}

// Fatal 该种类的失败是否应中止整次聚合调用
// 只有共享控制连接本身的故障才会升级,其余失败都只影响单个来源
func Fatal(kind ErrorKind) bool {
	return kind == KindConnection
}
