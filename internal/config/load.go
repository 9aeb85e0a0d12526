package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"strconv"
	"strings"
)

// Defaults 返回带有安全默认值的 Config 雏形。
func Defaults() Config {
	return Config{
		Examples:    "examples.json",
		Backend:     "rules",
		Modality:    "full",
		Schema:      "auto",
		Concurrency: 1,
		MaxRetries:  2,
		Logging:     Logging{Level: "info"},
	}
}

// LoadJSON 从文件路径或原样 JSON 解析 Config（严格拒绝未知字段）。
func LoadJSON(path string, raw []byte) (Config, error) {
	var cfg Config
	// 未写 max_retries 的文件不应覆盖默认值（0 有禁用语义）
	cfg.MaxRetries = -1
	var r io.Reader
	switch {
	case len(raw) > 0:
		r = bytes.NewReader(raw)
	case path != "":
		f, err := os.Open(path)
		if err != nil {
			return cfg, err
		}
		defer f.Close()
		r = f
	default:
		return cfg, errors.New("no config source provided")
	}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Merge 按优先级合并（后者覆盖前者）。
// 仅标量/字符串/原样 JSON 为“替换”；不做深度合并。
func Merge(base, over Config) Config {
	out := base
	if strings.TrimSpace(over.Examples) != "" {
		out.Examples = strings.TrimSpace(over.Examples)
	}
	if strings.TrimSpace(over.Backend) != "" {
		out.Backend = strings.TrimSpace(over.Backend)
	}
	if strings.TrimSpace(over.Modality) != "" {
		out.Modality = strings.TrimSpace(over.Modality)
	}
	if strings.TrimSpace(over.Schema) != "" {
		out.Schema = strings.TrimSpace(over.Schema)
	}
	if over.Concurrency != 0 {
		out.Concurrency = over.Concurrency
	}
	// MaxRetries 的 0 具有语义（禁用重试）：约定 -1 表示未覆盖。
	if over.MaxRetries >= 0 {
		out.MaxRetries = over.MaxRetries
	}
	if over.WholeDocument {
		out.WholeDocument = true
	}
	if over.Learn {
		out.Learn = true
	}
	if strings.TrimSpace(over.Logging.Level) != "" {
		out.Logging.Level = strings.TrimSpace(over.Logging.Level)
	}
	// Options（完整替换对应键）
	if len(over.Options) > 0 {
		if out.Options == nil {
			out.Options = make(map[string]json.RawMessage, len(over.Options))
		}
		for k, v := range over.Options {
			out.Options[k] = cloneRaw(v)
		}
	}
	return out
}

// EnvOverlay 从环境变量构建一个 Config 覆盖（仅解析有限键集合）。
// 规则：前缀 DIPEX_；匹配集合之外的键忽略。
// 支持：EXAMPLES, BACKEND, MODALITY, SCHEMA, CONCURRENCY, MAX_RETRIES,
// WHOLE_DOCUMENT, LEARN, LOG_LEVEL 以及 OPTIONS__<backend>__JSON。
func EnvOverlay(environ []string) Config {
	var over Config
	over.MaxRetries = -1
	opts := map[string]json.RawMessage{}
	for _, kv := range environ {
		if !strings.HasPrefix(kv, "DIPEX_") {
			continue
		}
		eq := strings.IndexByte(kv, '=')
		if eq <= len("DIPEX_") {
			continue
		}
		nk := strings.TrimPrefix(kv[:eq], "DIPEX_")
		val := kv[eq+1:]
		switch nk {
		case "EXAMPLES":
			over.Examples = strings.TrimSpace(val)
		case "BACKEND":
			over.Backend = strings.TrimSpace(val)
		case "MODALITY":
			over.Modality = strings.TrimSpace(val)
		case "SCHEMA":
			over.Schema = strings.TrimSpace(val)
		case "CONCURRENCY":
			if v, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
				over.Concurrency = v
			}
		case "MAX_RETRIES":
			if v, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
				over.MaxRetries = v
			}
		case "WHOLE_DOCUMENT":
			over.WholeDocument = isTrue(val)
		case "LEARN":
			over.Learn = isTrue(val)
		case "LOG_LEVEL":
			over.Logging.Level = strings.TrimSpace(val)
		default:
			// OPTIONS__<backend>__JSON：原样 JSON；空值视为未设置
			if strings.HasPrefix(nk, "OPTIONS__") {
				parts := strings.Split(nk, "__")
				if len(parts) == 3 && parts[2] == "JSON" && strings.TrimSpace(val) != "" {
					opts[strings.ToLower(parts[1])] = json.RawMessage(val)
				}
			}
		}
	}
	if len(opts) > 0 {
		over.Options = opts
	}
	return over
}

func isTrue(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes":
		return true
	}
	return false
}

func cloneRaw(in json.RawMessage) json.RawMessage {
	if len(in) == 0 {
		return nil
	}
	out := make([]byte, len(in))
	copy(out, in)
	return out
}
