package contract

import "context"

// Backend: 扩写后端的最小能力。单块同步调用；应尊重 ctx 取消/超时。
// 实现为闭合集合 {rules, local, remote}（另有 mock/flaky 调试实现），
// 通过注册表按名分发，不做运行期类型探测。
type Backend interface {
	ExpandBlock(ctx context.Context, text string, set RuleSet, m Modality) (string, error)
}

// DocumentBackend: 可选能力——整文档单次扩写。
// 输入为序列化 XML；返回值必须能重新解析为同根结构的良构 XML，
// 校验由编排器完成（失败时原文档保持不变）。
type DocumentBackend interface {
	Backend
	ExpandDocument(ctx context.Context, doc []byte, set RuleSet, m Modality) ([]byte, error)
}
