// 本地推理后端：Ollama /api/generate，失败时确定性回退到规则替换。
// 回退是硬性要求——本地进程不可用绝不让块保持未扩写。
package local

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"dipex/internal/prompt"
	"dipex/internal/rules"
	"dipex/pkg/contract"
)

// Options: 最小必需。
type Options struct {
	BaseURL string `json:"base_url"` // 默认 http://localhost:11434
	Model   string `json:"model"`    // 默认 llama3.2
	// TimeoutSeconds: 单次请求超时（秒）。未设置或 <=0 时取 OLLAMA_TIMEOUT 或 120。
	TimeoutSeconds int `json:"timeout_seconds,omitempty"`
	// LargeContext: 检测到充足本地算力时由调用方置位；请求更大上下文窗口。
	LargeContext bool `json:"large_context,omitempty"`
	// MaxExamples: 注入提示的示例上限；<=0 表示全量。
	MaxExamples int `json:"max_examples,omitempty"`
}

type Backend struct {
	baseURL  string
	model    string
	client   *http.Client
	largeCtx bool
	maxEx    int
}

// New 构造本地后端。
func New(raw json.RawMessage) (*Backend, error) {
	var o Options
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &o); err != nil {
			return nil, err
		}
	}
	return NewWithOptions(&o), nil
}

// NewWithOptions 以显式选项构造（CLI 路径）。
func NewWithOptions(o *Options) *Backend {
	base := strings.TrimRight(o.BaseURL, "/")
	if base == "" {
		base = "http://localhost:11434"
	}
	model := o.Model
	if model == "" {
		model = "llama3.2"
	}
	timeout := o.TimeoutSeconds
	if timeout <= 0 {
		timeout = envTimeout()
	}
	return &Backend{
		baseURL:  base,
		model:    model,
		client:   &http.Client{Timeout: time.Duration(timeout) * time.Second},
		largeCtx: o.LargeContext,
		maxEx:    o.MaxExamples,
	}
}

func envTimeout() int {
	if v := strings.TrimSpace(os.Getenv("OLLAMA_TIMEOUT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 10 {
			return n
		}
	}
	return 120
}

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	System  string         `json:"system,omitempty"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
	Error    string `json:"error"`
}

// ExpandBlock 优先走本地进程；任何失败（不可达、畸形回复、超时）都回退到
// 规则替换。成功时仍将示例对作为 ground truth 套用在模型输出上：输出中残留的
// diplomatic 形一律替换为权威 Full 形（覆盖模型猜测）。
func (b *Backend) ExpandBlock(ctx context.Context, text string, set contract.RuleSet, m contract.Modality) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	raw, err := b.generate(ctx, text, set, m)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return rules.Apply(text, set), nil
	}
	return rules.Apply(raw, set), nil
}

func (b *Backend) generate(ctx context.Context, text string, set contract.RuleSet, m contract.Modality) (string, error) {
	few := set
	if b.maxEx > 0 && b.maxEx < len(few) {
		few = few[:b.maxEx]
	}
	req := generateRequest{
		Model:  b.model,
		Prompt: prompt.Build(text, few, m),
		System: prompt.System(m),
		Stream: false,
	}
	if b.largeCtx {
		req.Options = map[string]any{"num_ctx": 8192}
	}
	body, err := json.Marshal(&req)
	if err != nil {
		return "", err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("local process status %d", resp.StatusCode)
	}
	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.Error != "" {
		return "", errors.New(out.Error)
	}
	return strings.TrimSpace(out.Response), nil
}

// Ping 探测本地进程是否可达（GET /api/tags）并确认所选模型已拉取。
func (b *Backend) Ping(ctx context.Context) (bool, string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/api/tags", nil)
	if err != nil {
		return false, err.Error()
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return false, fmt.Sprintf("Cannot reach local process at %s. Is it running? (%v)", b.baseURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Sprintf("Local process at %s returned status %d.", b.baseURL, resp.StatusCode)
	}
	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return false, "Local process reachable but tag list is malformed."
	}
	for _, m := range tags.Models {
		if m.Name == b.model || strings.HasPrefix(m.Name, b.model+":") {
			return true, fmt.Sprintf("Connection OK. Model %q is available.", b.model)
		}
	}
	return true, fmt.Sprintf("Connection OK, but model %q is not pulled yet.", b.model)
}

var _ contract.Backend = (*Backend)(nil)
