package diag

import (
	"context"
	"errors"
	"net"
	"os"
	"time"

	"dipex/pkg/contract"
)

// Code 是最小错误分类代码。
// 仅用于日志/指标汇总，与退出码解耦。
type Code string

const (
	CodeUnknown   Code = "unknown"
	CodeNetwork   Code = "network"
	CodeProtocol  Code = "protocol"
	CodeFormat    Code = "format"
	CodeInvariant Code = "invariant"
	CodeTransient Code = "transient"
	CodeCancel    Code = "cancel"
	CodeIO        Code = "io"
)

// Classify 将错误归为最小分类。
// 说明：仅依赖哨兵错误与标准库错误类型，不做字符串匹配。
func Classify(err error) Code {
	if err == nil {
		return CodeUnknown
	}
	// 取消/超时优先
	if errors.Is(err, contract.ErrCancelled) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return CodeCancel
	}
	// 限流/瞬时
	if errors.Is(err, contract.ErrBackendTransient) {
		return CodeTransient
	}
	// 协议/响应
	if errors.Is(err, contract.ErrBackendFailure) || errors.Is(err, contract.ErrDocumentInvalid) {
		return CodeProtocol
	}
	// 输入格式
	if errors.Is(err, contract.ErrExamplesFormat) || errors.Is(err, contract.ErrDocumentParse) {
		return CodeFormat
	}
	// 不变量
	if errors.Is(err, contract.ErrInvalidInput) {
		return CodeInvariant
	}
	// I/O
	var perr *os.PathError
	if errors.As(err, &perr) {
		return CodeIO
	}
	// 网络（连接/超时等）
	var nerr net.Error
	if errors.As(err, &nerr) {
		return CodeNetwork
	}
	return CodeUnknown
}

// NowUTC 返回 RFC3339 UTC 时间字符串（用于结构化日志字段 ts）。
func NowUTC() string { return time.Now().UTC().Format(time.RFC3339) }
