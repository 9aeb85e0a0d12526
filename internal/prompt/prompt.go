// Package prompt 构造确定性的模型提示：力度档位系统指令 + 少样本示例 + 目标文本。
// 纯计算，不做 I/O。
package prompt

import (
	"strings"

	"dipex/pkg/contract"
)

const latinTail = " Keep the full (expanded) form in Latin. Do not translate to English or any other language." +
	" Output only the expanded text, no XML, no commentary."

// System 返回力度档位对应的系统指令。未知档位回落到 full。
func System(m contract.Modality) string {
	switch m {
	case contract.ModalityConservative:
		return "Expand abbreviations and superscripts only. Keep original wording, punctuation, and spelling where possible. " +
			"Do not modernize or paraphrase." + latinTail
	case contract.ModalityNormalize:
		return "Normalize spacing and punctuation; expand common abbreviations and superscripts. " +
			"Keep the text close to the diplomatic form." + latinTail
	case contract.ModalityAggressive:
		return "Fully expand to modern, readable Latin prose. Resolve all abbreviations, expand superscripts, " +
			"normalize punctuation and spacing, and lightly modernize wording where it aids clarity." + latinTail
	default:
		return "You expand diplomatic transcriptions into full, readable form. " +
			"Resolve abbreviations, expand superscripts, normalize punctuation and spacing." + latinTail
	}
}

// DocumentSystem 返回整文档模式的系统指令：仅重写目标文本，结构原样保留。
func DocumentSystem(m contract.Modality) string {
	return System(m) +
		" The input is a complete XML document. Rewrite only the text content of text blocks;" +
		" return the whole document with every tag, attribute, and namespace unchanged."
}

// Build 组装块级少样本提示。示例按规则集顺序注入（已是最长优先），
// 结尾以 "Full:" 收口引导续写。
func Build(text string, set contract.RuleSet, m contract.Modality) string {
	var b strings.Builder
	b.WriteString(System(m))
	b.WriteString("\n\n")
	for _, r := range set {
		if r.Diplomatic == "" || r.Full == "" {
			continue
		}
		b.WriteString("Diplomatic:\n")
		b.WriteString(r.Diplomatic)
		b.WriteString("\nFull:\n")
		b.WriteString(r.Full)
		b.WriteString("\n\n")
	}
	b.WriteString("Diplomatic:\n")
	b.WriteString(text)
	b.WriteString("\nFull:")
	return b.String()
}

// ApproxTokens: 近似估算 tokens ≈ ceil(bytes / bytesPerToken)；bpt<=0 用 4。
func ApproxTokens(s string, bytesPerToken int) int {
	if s == "" {
		return 0
	}
	if bytesPerToken <= 0 {
		bytesPerToken = 4
	}
	return (len(s) + bytesPerToken - 1) / bytesPerToken
}

// CapExamples 在 token 预算内截取示例前缀（集合已按价值排序）。
// maxTokens<=0 表示不设预算。
func CapExamples(set contract.RuleSet, maxTokens, bytesPerToken int) contract.RuleSet {
	if maxTokens <= 0 {
		return set
	}
	used := 0
	for i, r := range set {
		used += ApproxTokens(r.Diplomatic, bytesPerToken) + ApproxTokens(r.Full, bytesPerToken)
		if used > maxTokens {
			return set[:i]
		}
	}
	return set
}
