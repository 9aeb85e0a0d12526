// 自动学习：从「原文块 ↔ 展开块」对齐出新的替换对，过质量闸后入复核队列。
package learn

import (
	"regexp"
	"strings"
	"unicode"

	"dipex/internal/norm"
	"dipex/pkg/contract"
)

// 提示泄漏标记：full 疑似回显了提示本身。
var leakage = regexp.MustCompile(`(?i)(Diplomatic\s*:\s*|Full\s*:\s*|Output\s*:\s*|Here\s+is\s+the\s+expanded)`)

// 非字母占比阈值：超过视为垃圾对。
const punctRatioThreshold = 0.8

// punctRatio 统计非空白字符中非字母的占比。
func punctRatio(s string) float64 {
	var total, nonLetter int
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if !unicode.IsLetter(r) {
			nonLetter++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(nonLetter) / float64(total)
}

// DeriveBlockPairs 对齐同一文档展开前后的块文本，产出块级替换对。
// 两侧块数不一致时（结构被改写）返回 nil：宁缺毋滥。
func DeriveBlockPairs(before, after []contract.Block) []contract.Pair {
	if len(before) == 0 || len(before) != len(after) {
		return nil
	}
	var out []contract.Pair
	for i := range before {
		d := strings.TrimSpace(before[i].Text)
		f := strings.TrimSpace(after[i].Text)
		if d == "" || f == "" || d == f {
			continue
		}
		out = append(out, contract.Pair{Diplomatic: d, Full: f})
	}
	return out
}

// PairsToWordLevel 把块级对细化为词级对：逐空白分词，词数相同时按位配对，
// 只保留发生变化的词；词数不同的块保留块级对（模型可能合并或拆分了词）。
func PairsToWordLevel(pairs []contract.Pair) []contract.Pair {
	var out []contract.Pair
	for _, p := range pairs {
		dw := strings.Fields(p.Diplomatic)
		fw := strings.Fields(p.Full)
		if len(dw) != len(fw) || len(dw) == 0 {
			out = append(out, p)
			continue
		}
		for i := range dw {
			if dw[i] == fw[i] {
				continue
			}
			out = append(out, contract.Pair{
				Diplomatic: strings.Trim(dw[i], ".,;:!?()[]"),
				Full:       strings.Trim(fw[i], ".,;:!?()[]"),
			})
		}
	}
	return out
}

// FilterQuality 过滤可能劣化数据的对：空、泄漏、高标点占比、d==f；
// 按外观键去重（先到先得）。
func FilterQuality(pairs []contract.Pair) []contract.Pair {
	seen := make(map[string]struct{}, len(pairs))
	var out []contract.Pair
	for _, p := range pairs {
		d := strings.TrimSpace(p.Diplomatic)
		f := strings.TrimSpace(p.Full)
		if d == "" || f == "" || d == f {
			continue
		}
		if punctRatio(d) >= punctRatioThreshold || punctRatio(f) >= punctRatioThreshold {
			continue
		}
		if leakage.MatchString(f) {
			continue
		}
		key := norm.AppearanceKey(d)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, contract.Pair{Diplomatic: d, Full: f, Pro: p.Pro})
	}
	return out
}

// ExcludeKnown 剔除已在现有规则集中（按外观键）的对。
func ExcludeKnown(pairs []contract.Pair, set contract.RuleSet) []contract.Pair {
	known := make(map[string]struct{}, len(set))
	for _, r := range set {
		known[norm.AppearanceKey(r.Diplomatic)] = struct{}{}
	}
	var out []contract.Pair
	for _, p := range pairs {
		if _, ok := known[norm.AppearanceKey(strings.TrimSpace(p.Diplomatic))]; ok {
			continue
		}
		out = append(out, p)
	}
	return out
}
