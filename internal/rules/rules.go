// Package rules 实现确定性的示例替换引擎：单趟、最长匹配优先、不级联。
package rules

import (
	"strings"
	"unicode/utf8"

	"dipex/internal/norm"
	"dipex/pkg/contract"
)

// Apply 对文本做一趟替换。无 I/O、无随机性，两次运行结果必然一致。
// 算法：自左向右扫描；每个位置按规则集顺序（长度降序、等长 curated 先）
// 尝试匹配，命中则写出 Full 并跳过匹配区间；未命中写出一个符文前进。
// 不迭代到不动点：扩写结果若自身构成另一 diplomatic 形，不再二次扩写。
// Full 为空的规则惰性跳过（不作为删除）。
func Apply(text string, set contract.RuleSet) string {
	if text == "" || len(set) == 0 {
		return text
	}
	src := norm.NFC(text)
	var b strings.Builder
	b.Grow(len(src))
	for i := 0; i < len(src); {
		rest := src[i:]
		matched := false
		for _, r := range set {
			if r.Diplomatic == "" || r.Full == "" {
				continue
			}
			if !strings.HasPrefix(rest, r.Diplomatic) {
				continue
			}
			if guarded(rest, r) {
				continue
			}
			b.WriteString(r.Full)
			i += len(r.Diplomatic)
			matched = true
			break
		}
		if !matched {
			_, sz := utf8.DecodeRuneInString(rest)
			if sz == 0 {
				break
			}
			b.WriteString(rest[:sz])
			i += sz
		}
	}
	return b.String()
}

// guarded: 前缀护栏。当 diplomatic 是 full 的前缀（如 "gra"/"gratia"），
// 且当前位置的文本本就延续为完整的 full 时跳过匹配，避免破坏已扩写的词。
func guarded(rest string, r contract.Rule) bool {
	if len(r.Full) <= len(r.Diplomatic) || !strings.HasPrefix(r.Full, r.Diplomatic) {
		return false
	}
	return strings.HasPrefix(rest[len(r.Diplomatic):], r.Full[len(r.Diplomatic):])
}
