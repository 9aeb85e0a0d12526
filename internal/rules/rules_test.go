package rules

import (
	"testing"

	"dipex/pkg/contract"
)

func set(pairs ...[2]string) contract.RuleSet {
	var s contract.RuleSet
	for _, p := range pairs {
		s = append(s, contract.Rule{Diplomatic: p[0], Full: p[1]})
	}
	return s
}

// 基础替换：缩写形逐一展开，周边文本原样
func TestApplyBasic(t *testing.T) {
	s := set([2]string{"dns", "dominus"}, [2]string{"xps", "christus"})
	got := Apply("dns et xps amen", s)
	if got != "dominus et christus amen" {
		t.Fatalf("got %q", got)
	}
}

// 组合记号输入与预组合规则键必须命中同一规则
func TestApplyNFCInput(t *testing.T) {
	s := set([2]string{"grã", "gratia"})
	if got := Apply("grã", s); got != "gratia" {
		t.Fatalf("组合记号未命中: %q", got)
	}
	if got := Apply("grã", s); got != "gratia" {
		t.Fatalf("预组合未命中: %q", got)
	}
}

// 前缀护栏：已是全文形的词不得被二次改写
func TestApplyPrefixGuard(t *testing.T) {
	s := set([2]string{"gra", "gratia"})
	if got := Apply("gratia magna", s); got != "gratia magna" {
		t.Fatalf("全文形被破坏: %q", got)
	}
	if got := Apply("gra magna", s); got != "gratia magna" {
		t.Fatalf("缩写形未展开: %q", got)
	}
}

// 不级联：扩写产物即使自身构成缩写形也不再二次扩写
func TestApplyNoCascade(t *testing.T) {
	s := set([2]string{"a", "ab"}, [2]string{"ab", "abc"})
	// "a"→"ab" 被护栏拦下（文本已延续为 full 形），随后 "ab"→"abc" 命中一次
	if got := Apply("ab", s); got != "abc" {
		t.Fatalf("got %q", got)
	}
}

// 最长匹配优先依赖集合有序；等价调用两次结果一致
func TestApplyDeterministic(t *testing.T) {
	s := set([2]string{"dnsq", "dominusque"}, [2]string{"dns", "dominus"})
	a := Apply("dnsq dns", s)
	b := Apply("dnsq dns", s)
	if a != b || a != "dominusque dominus" {
		t.Fatalf("got %q / %q", a, b)
	}
}

// Full 为空的规则必须惰性：不替换也不删除
func TestApplyEmptyFullInert(t *testing.T) {
	s := set([2]string{"dns", ""})
	if got := Apply("dns", s); got != "dns" {
		t.Fatalf("空 full 被应用: %q", got)
	}
}

// 空输入与空规则集原样返回
func TestApplyNoop(t *testing.T) {
	if got := Apply("", set([2]string{"a", "b"})); got != "" {
		t.Fatalf("got %q", got)
	}
	if got := Apply("text", nil); got != "text" {
		t.Fatalf("got %q", got)
	}
}
