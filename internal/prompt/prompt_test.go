package prompt

import (
	"strings"
	"testing"

	"dipex/pkg/contract"
)

// 少样本版式：示例对成段出现，结尾以 "Full:" 收口
func TestBuildLayout(t *testing.T) {
	set := contract.RuleSet{{Diplomatic: "dns", Full: "dominus"}}
	p := Build("dns amen", set, contract.ModalityFull)
	if !strings.HasSuffix(p, "Diplomatic:\ndns amen\nFull:") {
		t.Fatalf("收口错误:\n%s", p)
	}
	if !strings.Contains(p, "Diplomatic:\ndns\nFull:\ndominus\n") {
		t.Fatalf("示例缺失:\n%s", p)
	}
}

// Full 为空的规则不进入提示
func TestBuildSkipsInertRules(t *testing.T) {
	set := contract.RuleSet{{Diplomatic: "dns", Full: ""}}
	p := Build("x", set, contract.ModalityFull)
	if strings.Count(p, "Diplomatic:") != 1 {
		t.Fatalf("惰性规则进入提示:\n%s", p)
	}
}

// 各档位指令互不相同，且都带拉丁语约束
func TestSystemModalities(t *testing.T) {
	seen := map[string]bool{}
	for _, m := range []contract.Modality{
		contract.ModalityConservative, contract.ModalityNormalize,
		contract.ModalityFull, contract.ModalityAggressive,
	} {
		s := System(m)
		if !strings.Contains(s, "Latin") {
			t.Fatalf("%s 缺少语言约束", m)
		}
		if seen[s] {
			t.Fatalf("%s 与其他档位指令重复", m)
		}
		seen[s] = true
	}
}

func TestApproxTokens(t *testing.T) {
	if ApproxTokens("", 4) != 0 {
		t.Fatalf("空串应为 0")
	}
	if got := ApproxTokens("abcde", 4); got != 2 {
		t.Fatalf("got %d", got)
	}
}

// 预算内截取前缀；预算为 0 不限制
func TestCapExamples(t *testing.T) {
	set := contract.RuleSet{
		{Diplomatic: "aaaa", Full: "bbbb"}, // 2 tokens
		{Diplomatic: "cccc", Full: "dddd"}, // 2 tokens
	}
	if got := CapExamples(set, 3, 4); len(got) != 1 {
		t.Fatalf("got %d 条", len(got))
	}
	if got := CapExamples(set, 0, 4); len(got) != 2 {
		t.Fatalf("无预算被截取")
	}
}
