package contract

// Pair: 一条替换示例（缩写形 → 全文形）。
// 约束：
// - Diplomatic 归一化后非空；
// - Full 为空的对是惰性的，任何后端不得将其作为删除应用。
type Pair struct {
	Diplomatic string `json:"diplomatic"`
	Full       string `json:"full"`
	// Pro: 由高质量（pro 级）模型派生；冲突与淘汰时优先保留。
	Pro bool `json:"pro,omitempty"`
}

// Tier 标识示例层。curated 权威（用户/仓库所有）；learned 暂定（实例所有）。
type Tier int

const (
	TierCurated Tier = iota
	TierLearned
)

// Rule: 合并后的一条生效规则。Diplomatic 已做 NFC 归一。
type Rule struct {
	Diplomatic string
	Full       string
	Tier       Tier
}

// RuleSet: 每次扩写请求派生的只读合并视图。
// 约束：
//  1. 同一 Diplomatic 键 curated 覆盖 learned；
//  2. 按 Diplomatic 长度降序；等长时 curated 在前，同层保持加入顺序；
//  3. 派生后不得原地修改。
type RuleSet []Rule

// Block: 文档中一个最内层可扩写元素的文本区间。
// Start/End 为原始文档的字节偏移（含起不含止），指向元素起始标签之后、
// 结束标签之前的内部区域；Text 为实体解码后的扁平内文。
// 约束：Block 互不重叠；存在可扩写后代的祖先不产生 Block；
// 空白内文仍产生 Block（扩写为幂等空操作）。
type Block struct {
	Index   int
	Element string
	Start   int64
	End     int64
	Text    string
}

// Modality: 扩写指令的力度档位。仅影响模型后端；Rules 后端始终做精确替换。
type Modality string

const (
	ModalityConservative Modality = "conservative"
	ModalityNormalize    Modality = "normalize"
	ModalityFull         Modality = "full"
	ModalityAggressive   Modality = "aggressive"
)

// ParseModality 校验并归一力度档位；空串取默认 full。
func ParseModality(s string) (Modality, error) {
	switch Modality(s) {
	case ModalityConservative, ModalityNormalize, ModalityFull, ModalityAggressive:
		return Modality(s), nil
	case "":
		return ModalityFull, nil
	}
	return "", ErrInvalidInput
}

// Progress: 进度回调（completed, total）。仅由编排器自身的收集路径调用，
// 核心不依赖任何 UI 线程模型。
type Progress func(done, total int)
