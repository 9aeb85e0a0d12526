package flaky

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"dipex/internal/rules"
	"dipex/pkg/contract"
)

// Options 定义可选项。
type Options struct {
	// FailFirst: 前 N 次调用返回瞬时错误，之后成功；默认 1。
	FailFirst int `json:"fail_first,omitempty"`
	// Permanent: 为 true 时错误为不可重试的后端失败。
	Permanent bool `json:"permanent,omitempty"`
}

// Backend 是带状态的调试实现：
// 前 FailFirst 次 ExpandBlock 返回错误，之后按规则替换返回。
// 用于验证重试与部分失败路径。
type Backend struct {
	failFirst int32
	permanent bool
	count     atomic.Int32
}

// New 构造 Backend。
func New(raw json.RawMessage) (*Backend, error) {
	var o Options
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &o); err != nil {
			return nil, err
		}
	}
	if o.FailFirst <= 0 {
		o.FailFirst = 1
	}
	return &Backend{failFirst: int32(o.FailFirst), permanent: o.Permanent}, nil
}

// Calls 返回累计调用次数（测试用）。
func (b *Backend) Calls() int { return int(b.count.Load()) }

func (b *Backend) ExpandBlock(ctx context.Context, text string, set contract.RuleSet, m contract.Modality) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if n := b.count.Add(1); n <= b.failFirst {
		if b.permanent {
			return "", fmt.Errorf("%w: scripted failure %d", contract.ErrBackendFailure, n)
		}
		return "", fmt.Errorf("%w: scripted failure %d", contract.ErrBackendTransient, n)
	}
	return rules.Apply(text, set), nil
}

var _ contract.Backend = (*Backend)(nil)
