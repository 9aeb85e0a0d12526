package registry

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"dipex/internal/examples"
	"dipex/pkg/contract"
)

// 全部注册名都能以空选项构造
func TestAllFactoriesConstruct(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")
	for name, factory := range Backend {
		b, err := factory(nil)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if b == nil {
			t.Fatalf("%s: 返回 nil 后端", name)
		}
	}
}

// 未知选项键被严格拒绝
func TestUnknownOptionRejected(t *testing.T) {
	for _, name := range []string{"rules", "local", "remote"} {
		_, err := Backend[name](json.RawMessage(`{"bogus": 1}`))
		if err == nil || !strings.Contains(err.Error(), "bogus") {
			t.Fatalf("%s: err = %v", name, err)
		}
	}
}

func TestUnregisteredName(t *testing.T) {
	if _, ok := Backend["nope"]; ok {
		t.Fatalf("未注册名存在")
	}
}

// rules 工厂产出可用的后端
func TestRulesFactoryWorks(t *testing.T) {
	b, err := Backend["rules"](nil)
	if err != nil {
		t.Fatalf("构造失败: %v", err)
	}
	set := examples.Merge([]contract.Pair{{Diplomatic: "dns", Full: "dominus"}}, nil)
	out, err := b.ExpandBlock(context.Background(), "dns amen", set, contract.ModalityFull)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if out != "dominus amen" {
		t.Fatalf("out = %q", out)
	}
}
