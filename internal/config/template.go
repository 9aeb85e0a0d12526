package config

import "encoding/json"

// DefaultTemplateConfig 返回一个“可运行”的默认配置模板：
// - rules 后端（离线、确定性，无需任何服务）；
// - 各后端选项给出全部键与安全中性默认值。
func DefaultTemplateConfig() Config {
	cfg := Defaults()
	cfg.Options = map[string]json.RawMessage{
		"rules": json.RawMessage(`{}`),
		"local": json.RawMessage(`{
  "base_url": "",
  "model": "",
  "timeout_seconds": 120,
  "large_context": false,
  "max_examples": 0
}`),
		"remote": json.RawMessage(`{
  "model": "",
  "api_key_env": "",
  "api_key": "",
  "timeout_seconds": 120,
  "temperature": 0.2,
  "max_output_tokens": 8192,
  "max_examples": 0,
  "example_token_budget": 0,
  "rpm": 0,
  "tpm": 0
}`),
		"mock": json.RawMessage(`{"prefix":"","response_mode":""}`),
	}
	return cfg
}
