package mock

import (
	"context"
	"encoding/json"
	"strings"

	"dipex/internal/rules"
	"dipex/pkg/contract"
)

// Options: 最小调试配置（可选）。
type Options struct {
	Prefix string `json:"prefix"` // 输出前缀，默认 "MOCK"
	// ResponseMode: 可选的响应模式（用于流程联调，无任何网络请求）。
	//  - "": 留空默认 "rules"。
	//  - "rules": 对输入执行确定性规则替换后返回（与真实后端输出形态一致）。
	//  - "echo": 原样回显输入文本。
	//  - "prefix": 返回 Prefix + ": " + 输入，便于在输出文档中肉眼定位替换点。
	//  - "upper": 返回输入的大写形式。
	ResponseMode string `json:"response_mode,omitempty"`
}

type Backend struct {
	prefix string
	mode   string
}

func New(raw json.RawMessage) (*Backend, error) {
	var o Options
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &o)
	}
	if o.Prefix == "" {
		o.Prefix = "MOCK"
	}
	mode := strings.TrimSpace(o.ResponseMode)
	if mode == "" {
		mode = "rules"
	}
	return &Backend{prefix: o.Prefix, mode: mode}, nil
}

// ExpandBlock 仅用于模块/流程调试：按模式确定性变换输入。
func (b *Backend) ExpandBlock(ctx context.Context, text string, set contract.RuleSet, m contract.Modality) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	switch b.mode {
	case "echo":
		return text, nil
	case "prefix":
		return b.prefix + ": " + text, nil
	case "upper":
		return strings.ToUpper(text), nil
	default:
		return rules.Apply(text, set), nil
	}
}

var _ contract.Backend = (*Backend)(nil)
