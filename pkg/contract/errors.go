package contract

import "errors"

// 最小错误分类（用于上层策略判定）。
var (
	// ErrExamplesFormat: 示例文件顶层结构非法。对加载调用致命，不得静默视为空。
	ErrExamplesFormat = errors.New("examples format invalid")
	// ErrDocumentParse: 文档无法解析为标记文本；在任何扩写尝试前上抛。
	ErrDocumentParse = errors.New("document parse failed")
	// ErrDocumentInvalid: 整文档模式的后端响应无法重新解析为同根良构 XML。
	ErrDocumentInvalid = errors.New("document response invalid")
	// ErrBackendTransient: 限流/超时等可恢复失败；有界重试后升级为 ErrBackendFailure。
	ErrBackendTransient = errors.New("backend transient failure")
	// ErrBackendFailure: 不可重试的后端失败（响应畸形、重试耗尽等）。
	ErrBackendFailure = errors.New("backend failure")
	// ErrCancelled: 取消是干净停止而非失败；在块分派间隙观察到取消时返回。
	ErrCancelled = errors.New("expansion cancelled")
	// ErrInvalidInput: 领域输入非法（通用哨兵）。
	ErrInvalidInput = errors.New("invalid input")
)
