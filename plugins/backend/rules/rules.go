// 基于示例对的纯规则后端：无网络、无随机性，力度档位不生效。
package rules

import (
	"context"
	"encoding/json"

	"dipex/internal/rules"
	"dipex/pkg/contract"
)

// Options: 预留（当前无可配置项，保持工厂签名一致）。
type Options struct{}

type Backend struct{}

// New 构造规则后端。
func New(raw json.RawMessage) (*Backend, error) {
	var o Options
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &o); err != nil {
			return nil, err
		}
	}
	return &Backend{}, nil
}

// ExpandBlock 做一趟确定性替换。仅在示例数据畸形时失败，而示例集在
// 合并阶段已完成校验，故此处恒定成功。
func (b *Backend) ExpandBlock(ctx context.Context, text string, set contract.RuleSet, _ contract.Modality) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return rules.Apply(text, set), nil
}

var _ contract.Backend = (*Backend)(nil)
