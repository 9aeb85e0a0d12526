package examples

import (
	"fmt"
	"sort"
	"strings"

	"dipex/internal/norm"
	"dipex/pkg/contract"
)

// AddPair 向一个层追加一对示例：键做 NFC 归一，拒绝空 diplomatic/full，
// 以 AppearanceKey 去重（层内后写覆盖）。
func AddPair(pairs []contract.Pair, diplomatic, full string) ([]contract.Pair, error) {
	d := strings.TrimSpace(norm.NFC(diplomatic))
	f := strings.TrimSpace(full)
	if d == "" || f == "" {
		return pairs, contract.ErrInvalidInput
	}
	key := norm.AppearanceKey(d)
	for i := range pairs {
		if norm.AppearanceKey(pairs[i].Diplomatic) == key {
			pairs[i].Full = f
			return pairs, nil
		}
	}
	return append(pairs, contract.Pair{Diplomatic: d, Full: f}), nil
}

// ProtectKeys 由 curated 层构建保护键集合（AppearanceKey）。
func ProtectKeys(curated []contract.Pair) map[string]bool {
	out := make(map[string]bool, len(curated))
	for _, p := range curated {
		d := strings.TrimSpace(p.Diplomatic)
		if d == "" {
			continue
		}
		out[norm.AppearanceKey(d)] = true
	}
	return out
}

// AddLearnedPairs 将新对合并进 learned 层。
// 规则：
//  1. 保护键（curated 已定义的 diplomatic 形）一律丢弃——learned 永不覆盖 curated；
//  2. 层内按 AppearanceKey 去重；pro 派生的对（批参数 pro 或条目自身 Pro）
//     覆盖非 pro，反向不覆盖；
//  3. 超出 max 时先淘汰非 pro 的最旧条目。
//
// 返回合并结果与新增计数。
func AddLearnedPairs(existing, incoming []contract.Pair, protect map[string]bool, pro bool, max int) ([]contract.Pair, int) {
	if max <= 0 {
		max = DefaultMaxLearned
	}
	type slot struct {
		pair contract.Pair
	}
	index := make(map[string]*slot, len(existing))
	order := make([]string, 0, len(existing))
	for _, e := range existing {
		d := strings.TrimSpace(e.Diplomatic)
		if d == "" {
			continue
		}
		k := norm.AppearanceKey(d)
		if _, ok := index[k]; ok {
			continue
		}
		index[k] = &slot{pair: e}
		order = append(order, k)
	}

	added := 0
	for _, in := range incoming {
		d := strings.TrimSpace(norm.NFC(in.Diplomatic))
		f := strings.TrimSpace(in.Full)
		if d == "" || f == "" || d == f {
			continue
		}
		inPro := pro || in.Pro
		k := norm.AppearanceKey(d)
		if protect[k] {
			continue
		}
		if old, ok := index[k]; ok {
			if old.pair.Pro && !inPro {
				continue // 不用低质猜测覆盖 pro 结果
			}
			if inPro && !old.pair.Pro {
				added++
			}
			old.pair = contract.Pair{Diplomatic: d, Full: f, Pro: inPro}
			continue
		}
		index[k] = &slot{pair: contract.Pair{Diplomatic: d, Full: f, Pro: inPro}}
		order = append(order, k)
		added++
	}

	out := make([]contract.Pair, 0, len(order))
	for _, k := range order {
		out = append(out, index[k].pair)
	}
	if len(out) > max {
		out = evict(out, max)
	}
	return out, added
}

// evict 容量裁剪：pro 全保留优先；非 pro 自最旧起淘汰。
func evict(items []contract.Pair, max int) []contract.Pair {
	var pro, flash []contract.Pair
	for _, it := range items {
		if it.Pro {
			pro = append(pro, it)
		} else {
			flash = append(flash, it)
		}
	}
	if len(pro) >= max {
		return pro[len(pro)-max:]
	}
	keep := max - len(pro)
	out := make([]contract.Pair, 0, max)
	out = append(out, pro...)
	return append(out, flash[len(flash)-keep:]...)
}

// Merge 派生一次请求的只读生效规则集。
// curated 先入（跨层首见的 AppearanceKey 获胜，即 curated 覆盖 learned）；
// 排序为 diplomatic 长度降序，等长时 curated 在前、层内保持加入顺序，
// 用以稳定最长匹配行为。
func Merge(curated, learned []contract.Pair) contract.RuleSet {
	seen := make(map[string]bool, len(curated)+len(learned))
	set := make(contract.RuleSet, 0, len(curated)+len(learned))

	addLayer := func(pairs []contract.Pair, tier contract.Tier) {
		for _, p := range pairs {
			d := strings.TrimSpace(norm.NFC(p.Diplomatic))
			if d == "" {
				continue
			}
			k := norm.AppearanceKey(d)
			if seen[k] {
				continue
			}
			seen[k] = true
			set = append(set, contract.Rule{Diplomatic: d, Full: strings.TrimSpace(p.Full), Tier: tier})
		}
	}
	addLayer(curated, contract.TierCurated)
	addLayer(learned, contract.TierLearned)

	sort.SliceStable(set, func(i, j int) bool {
		if len(set[i].Diplomatic) != len(set[j].Diplomatic) {
			return len(set[i].Diplomatic) > len(set[j].Diplomatic)
		}
		return set[i].Tier < set[j].Tier
	})
	return set
}

// SelectForPrompt 为少样本提示选取子集。
// strategy: "longest-first"（默认，取最长的 diplomatic 形）或
// "most-recent"（取集合尾部 N 条，保持原序）。max<=0 表示全量。
func SelectForPrompt(set contract.RuleSet, max int, strategy string) contract.RuleSet {
	if max <= 0 || max >= len(set) {
		return set
	}
	if strategy == "most-recent" {
		return set[len(set)-max:]
	}
	// 集合已按长度降序：前缀即最长优先
	return set[:max]
}

// Promote 将 learned 层中匹配 diplomatic 形的一对迁入 curated 层。
// 匹配按 AppearanceKey；curated 写入后从 learned 删除该对（curated 接管后
// learned 副本只会被保护键屏蔽，留着是死数据）。未命中返回 ErrInvalidInput。
func Promote(curated, learned []contract.Pair, diplomatic string) ([]contract.Pair, []contract.Pair, error) {
	key := norm.AppearanceKey(diplomatic)
	if key == "" {
		return curated, learned, contract.ErrInvalidInput
	}
	for i := range learned {
		if norm.AppearanceKey(learned[i].Diplomatic) != key {
			continue
		}
		cur, err := AddPair(curated, learned[i].Diplomatic, learned[i].Full)
		if err != nil {
			return curated, learned, err
		}
		rest := append(append([]contract.Pair{}, learned[:i]...), learned[i+1:]...)
		return cur, rest, nil
	}
	return curated, learned, fmt.Errorf("%w: no learned pair for %q", contract.ErrInvalidInput, diplomatic)
}
