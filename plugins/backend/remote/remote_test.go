package remote

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"google.golang.org/genai"

	"dipex/pkg/contract"
)

// 429/503 归为瞬时，可由编排器重试；其余 API 错误为后端失败
func TestClassify(t *testing.T) {
	for _, code := range []int{429, 503} {
		err := classify(genai.APIError{Code: code, Message: "busy"})
		if !errors.Is(err, contract.ErrBackendTransient) {
			t.Fatalf("code %d: %v", code, err)
		}
		// 状态码必须保留在错误链上
		var ae genai.APIError
		if !errors.As(err, &ae) || ae.Code != code {
			t.Fatalf("code %d: APIError 丢失: %v", code, err)
		}
	}
	for _, code := range []int{400, 401, 404, 500} {
		err := classify(genai.APIError{Code: code, Message: "nope"})
		if !errors.Is(err, contract.ErrBackendFailure) {
			t.Fatalf("code %d: %v", code, err)
		}
		if errors.Is(err, contract.ErrBackendTransient) {
			t.Fatalf("code %d 误判为瞬时", code)
		}
	}
}

// 取消原样上抛，不被重新分类
func TestClassifyCancellation(t *testing.T) {
	if err := classify(context.Canceled); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if err := classify(fmt.Errorf("wrap: %w", context.DeadlineExceeded)); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
	if classify(nil) != nil {
		t.Fatalf("nil 输入应返回 nil")
	}
}

// 未知传输错误兜底为后端失败
func TestClassifyGeneric(t *testing.T) {
	err := classify(errors.New("connection reset"))
	if !errors.Is(err, contract.ErrBackendFailure) {
		t.Fatalf("err = %v", err)
	}
}

func TestStripFence(t *testing.T) {
	cases := []struct{ in, want string }{
		{"<root>x</root>", "<root>x</root>"},
		{"```xml\n<root>x</root>\n```", "<root>x</root>"},
		{"```\n<root>x</root>\n```", "<root>x</root>"},
		{"  <root>x</root>  ", "<root>x</root>"},
		{"```xml\n<a/>\n```\n", "<a/>"},
	}
	for _, c := range cases {
		if got := stripFence(c.in); got != c.want {
			t.Fatalf("stripFence(%q) = %q", c.in, got)
		}
	}
}

// API key 解析顺序：显式选项 > 指定环境变量 > GEMINI > GOOGLE
func TestAPIKeyResolution(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")

	if _, err := APIKey(nil); !errors.Is(err, contract.ErrInvalidInput) {
		t.Fatalf("无 key 应报无效输入: %v", err)
	}

	t.Setenv("GOOGLE_API_KEY", "g2")
	if k, _ := APIKey(nil); k != "g2" {
		t.Fatalf("k = %q", k)
	}
	t.Setenv("GEMINI_API_KEY", "g1")
	if k, _ := APIKey(nil); k != "g1" {
		t.Fatalf("k = %q", k)
	}
	t.Setenv("CUSTOM_KEY", "c")
	if k, _ := APIKey(&Options{APIKeyEnv: "CUSTOM_KEY"}); k != "c" {
		t.Fatalf("k = %q", k)
	}
	if k, _ := APIKey(&Options{APIKey: " explicit "}); k != "explicit" {
		t.Fatalf("k = %q", k)
	}
}
