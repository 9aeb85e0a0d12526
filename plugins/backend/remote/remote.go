// 远程模型后端：Google Generative Language API（Gemini），经官方 genai SDK。
// 支持整文档与逐块两种模式；限流/超时映射为瞬时失败交由编排器重试。
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"google.golang.org/genai"

	"dipex/internal/prompt"
	"dipex/internal/rate"
	"dipex/pkg/contract"
)

// Options: 最小必需。
type Options struct {
	Model string `json:"model"` // 默认 gemini-2.5-flash
	// APIKeyEnv: 读取密钥的环境变量名；默认依次尝试 GEMINI_API_KEY、GOOGLE_API_KEY。
	APIKeyEnv string `json:"api_key_env,omitempty"`
	APIKey    string `json:"api_key,omitempty"`
	// TimeoutSeconds: 单请求超时（秒）。未设置或 <=0 采用 120。
	TimeoutSeconds int     `json:"timeout_seconds,omitempty"`
	Temperature    float64 `json:"temperature,omitempty"`
	// MaxOutputTokens: 响应 token 上限；<=0 采用 8192。
	MaxOutputTokens int `json:"max_output_tokens,omitempty"`
	// MaxExamples: 注入提示的示例上限；<=0 表示全量。
	MaxExamples int `json:"max_examples,omitempty"`
	// ExampleTokenBudget: 示例部分的 token 预算；<=0 不设预算。
	ExampleTokenBudget int `json:"example_token_budget,omitempty"`
	// RPM/TPM: 客户端自律限流；<=0 表示该维度不启用。
	RPM int `json:"rpm,omitempty"`
	TPM int `json:"tpm,omitempty"`
}

const (
	defaultModel     = "gemini-2.5-flash"
	defaultTimeout   = 120
	defaultMaxTokens = 8192
)

type Backend struct {
	client      *genai.Client
	model       string
	temperature float32
	maxTokens   int32
	maxEx       int
	tokenBudget int
	gate        *rate.Gate
	// filePart: Files API 会话上传的输入文档；非 nil 时附在每次请求前。
	filePart *genai.Part
	fileName string
}

// APIKey 解析密钥：显式值 > 指定 ENV > GEMINI_API_KEY > GOOGLE_API_KEY。
func APIKey(o *Options) (string, error) {
	if o != nil && strings.TrimSpace(o.APIKey) != "" {
		return strings.TrimSpace(o.APIKey), nil
	}
	if o != nil && o.APIKeyEnv != "" {
		if v := strings.TrimSpace(os.Getenv(o.APIKeyEnv)); v != "" {
			return v, nil
		}
	}
	if v := strings.TrimSpace(os.Getenv("GEMINI_API_KEY")); v != "" {
		return v, nil
	}
	if v := strings.TrimSpace(os.Getenv("GOOGLE_API_KEY")); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("%w: set GEMINI_API_KEY or GOOGLE_API_KEY (or pass api_key)", contract.ErrInvalidInput)
}

// New 构造远程后端（注册表工厂签名）。
func New(raw json.RawMessage) (*Backend, error) {
	var o Options
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &o); err != nil {
			return nil, err
		}
	}
	return NewWithOptions(context.Background(), &o)
}

// NewWithOptions 以显式选项构造。
func NewWithOptions(ctx context.Context, o *Options) (*Backend, error) {
	key, err := APIKey(o)
	if err != nil {
		return nil, err
	}
	timeout := o.TimeoutSeconds
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     key,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: time.Duration(timeout) * time.Second},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contract.ErrBackendFailure, err)
	}
	model := o.Model
	if model == "" {
		model = defaultModel
	}
	temp := float32(o.Temperature)
	if o.Temperature <= 0 {
		temp = 0.2
	}
	maxTok := int32(o.MaxOutputTokens)
	if maxTok <= 0 {
		maxTok = defaultMaxTokens
	}
	b := &Backend{
		client:      client,
		model:       model,
		temperature: temp,
		maxTokens:   maxTok,
		maxEx:       o.MaxExamples,
		tokenBudget: o.ExampleTokenBudget,
	}
	if o.RPM > 0 || o.TPM > 0 {
		b.gate = rate.NewGate(rate.Limits{RPM: o.RPM, TPM: o.TPM}, nil)
	}
	return b, nil
}

// BeginFileSession 经 Files API 上传输入文档一次，此后每次请求附带其为上下文。
func (b *Backend) BeginFileSession(ctx context.Context, path string) error {
	f, err := b.client.Files.UploadFromPath(ctx, path, &genai.UploadFileConfig{})
	if err != nil {
		return classify(err)
	}
	b.filePart = genai.NewPartFromURI(f.URI, f.MIMEType)
	b.fileName = f.Name
	return nil
}

// CloseFileSession 删除上传的文件（尽力而为）。
func (b *Backend) CloseFileSession(ctx context.Context) {
	if b.fileName != "" {
		_, _ = b.client.Files.Delete(ctx, b.fileName, &genai.DeleteFileConfig{})
		b.fileName = ""
		b.filePart = nil
	}
}

func (b *Backend) fewShot(set contract.RuleSet) contract.RuleSet {
	few := set
	if b.maxEx > 0 && b.maxEx < len(few) {
		few = few[:b.maxEx]
	}
	return prompt.CapExamples(few, b.tokenBudget, 4)
}

// ExpandBlock 发起单块请求。
func (b *Backend) ExpandBlock(ctx context.Context, text string, set contract.RuleSet, m contract.Modality) (string, error) {
	return b.generate(ctx, prompt.Build(text, b.fewShot(set), m), "")
}

// ExpandDocument 发起整文档请求：指示模型仅重写目标文本并原样保留结构。
// 响应的良构/同根校验由编排器完成。
func (b *Backend) ExpandDocument(ctx context.Context, doc []byte, set contract.RuleSet, m contract.Modality) ([]byte, error) {
	out, err := b.generate(ctx, prompt.Build(string(doc), b.fewShot(set), m), prompt.DocumentSystem(m))
	if err != nil {
		return nil, err
	}
	return []byte(stripFence(out)), nil
}

func (b *Backend) generate(ctx context.Context, body, system string) (string, error) {
	if b.gate != nil {
		if err := b.gate.Wait(ctx, prompt.ApproxTokens(body, 4)); err != nil {
			return "", err
		}
	}
	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr[float32](b.temperature),
		MaxOutputTokens: b.maxTokens,
	}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	var contents []*genai.Content
	if b.filePart != nil {
		contents = []*genai.Content{genai.NewContentFromParts(
			[]*genai.Part{b.filePart, genai.NewPartFromText(body)}, genai.RoleUser)}
	} else {
		contents = genai.Text(body)
	}
	resp, err := b.client.Models.GenerateContent(ctx, b.model, contents, cfg)
	if err != nil {
		return "", classify(err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("%w: empty model response", contract.ErrBackendFailure)
	}
	return text, nil
}

// classify 把 SDK/传输错误映射为最小分类：
// 429/503 与网络超时为瞬时（可重试），其余为后端失败；取消原样上抛。
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var ae genai.APIError
	if errors.As(err, &ae) {
		// 保留 APIError 在链上，供 pingMessage 等读取状态码
		switch ae.Code {
		case http.StatusTooManyRequests, http.StatusServiceUnavailable:
			return fmt.Errorf("%w: %w", contract.ErrBackendTransient, err)
		default:
			return fmt.Errorf("%w: %w", contract.ErrBackendFailure, err)
		}
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return fmt.Errorf("%w: request timed out: %w", contract.ErrBackendTransient, err)
	}
	return fmt.Errorf("%w: %v", contract.ErrBackendFailure, err)
}

// stripFence 剥掉模型偶发包裹的 Markdown 代码栅栏。
func stripFence(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") {
		return t
	}
	t = strings.TrimPrefix(t, "```xml")
	t = strings.TrimPrefix(t, "```")
	t = strings.TrimSuffix(strings.TrimSpace(t), "```")
	return strings.TrimSpace(t)
}

// Ping 以最小请求验证连通性；返回面向人的结论。
func (b *Backend) Ping(ctx context.Context) (bool, string) {
	out, err := b.generate(ctx, "Reply with exactly: OK", "")
	if err != nil {
		return false, pingMessage(err)
	}
	_ = out
	return true, "Connection OK. Model responded successfully."
}

func pingMessage(err error) string {
	var ae genai.APIError
	if errors.As(err, &ae) {
		switch ae.Code {
		case http.StatusBadRequest, http.StatusUnauthorized:
			return fmt.Sprintf("Invalid or missing API key (%d). Set GEMINI_API_KEY or GOOGLE_API_KEY.", ae.Code)
		case http.StatusForbidden:
			return "Permission denied (403). Key may lack access or be restricted."
		case http.StatusNotFound:
			return "Not found (404). Model or resource may be unavailable."
		case http.StatusTooManyRequests:
			return "Rate limit exceeded (429). Lower concurrency, wait and retry, or use the local backend."
		case http.StatusInternalServerError, http.StatusServiceUnavailable:
			return fmt.Sprintf("Server error (%d). Retry later or try a different model.", ae.Code)
		}
		return fmt.Sprintf("API error %d %s. %s", ae.Code, ae.Status, ae.Message)
	}
	if errors.Is(err, contract.ErrBackendTransient) {
		return "Connection timed out. Check your network, or use the local backend."
	}
	return err.Error()
}

// ListModels 拉取当前可用的远程模型名（去掉 models/ 前缀）。
func ListModels(ctx context.Context, apiKey string, timeout time.Duration) ([]string, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: timeout},
	})
	if err != nil {
		return nil, classify(err)
	}
	page, err := client.Models.List(ctx, &genai.ListModelsConfig{})
	if err != nil {
		return nil, classify(err)
	}
	var out []string
	for _, m := range page.Items {
		name := m.Name
		if i := strings.LastIndexByte(name, '/'); i >= 0 {
			name = name[i+1:]
		}
		if strings.HasPrefix(name, "gemini-") {
			out = append(out, name)
		}
	}
	return out, nil
}

var _ contract.DocumentBackend = (*Backend)(nil)
