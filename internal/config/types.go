package config

import (
	"encoding/json"
)

// Config: 运行期只读配置（一次解析，运行期不变）。
// JSON 使用 snake_case；未知字段在解析期失败。
type Config struct {
	// Examples: 基准示例文件路径（examples.json）。
	Examples string `json:"examples"`
	// Backend: 后端实现名（注册表键：rules/local/remote/mock/flaky）。
	Backend string `json:"backend"`
	// Modality: 展开强度（conservative/normalize/full/aggressive）。
	Modality string `json:"modality"`
	// Schema: 块定位模式（auto/tei/page）。
	Schema      string `json:"schema"`
	Concurrency int    `json:"concurrency"`
	// MaxRetries: 瞬时失败的最大重试次数（>=0）。0 表示不重试。
	MaxRetries int `json:"max_retries"`
	// WholeDocument: 整文档单请求模式（仅文档级后端支持）。
	WholeDocument bool `json:"whole_document"`
	// Learn: 展开后从输出提取新对入复核队列。
	Learn   bool    `json:"learn"`
	Logging Logging `json:"logging"`

	// Options: 各后端的原样 JSON Options，键为后端名。
	Options map[string]json.RawMessage `json:"options"`
}

// Logging: 仅保留日志等级可配置；输出到 stderr 为固定行为。
type Logging struct {
	Level string `json:"level"`
}
