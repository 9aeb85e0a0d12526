package learn

import (
	"testing"
	"time"

	"dipex/internal/examples"
	"dipex/pkg/contract"
)

// 质量闸：空对、d==f、提示泄漏、高标点占比都被拦下
func TestFilterQuality(t *testing.T) {
	in := []contract.Pair{
		{Diplomatic: "dns", Full: "dominus"},
		{Diplomatic: "", Full: "x"},
		{Diplomatic: "same", Full: "same"},
		{Diplomatic: "ok", Full: "Here is the expanded text"},
		{Diplomatic: ".,;:!", Full: "word"},
		{Diplomatic: "dup", Full: "a"},
		{Diplomatic: "dup", Full: "b"},
	}
	out := FilterQuality(in)
	if len(out) != 2 {
		t.Fatalf("got %+v", out)
	}
	if out[0].Diplomatic != "dns" || out[1].Diplomatic != "dup" || out[1].Full != "a" {
		t.Fatalf("过滤结果错误: %+v", out)
	}
}

// 块级对齐：同位块文本不同才产出对；块数不一致宁缺毋滥
func TestDeriveBlockPairs(t *testing.T) {
	before := []contract.Block{{Text: "dns amen"}, {Text: "unchanged"}}
	after := []contract.Block{{Text: "dominus amen"}, {Text: "unchanged"}}
	pairs := DeriveBlockPairs(before, after)
	if len(pairs) != 1 || pairs[0].Diplomatic != "dns amen" {
		t.Fatalf("pairs: %+v", pairs)
	}
	if DeriveBlockPairs(before, after[:1]) != nil {
		t.Fatalf("块数不一致应返回 nil")
	}
}

// 词级细化：词数相同按位配对，仅保留变化的词
func TestPairsToWordLevel(t *testing.T) {
	pairs := PairsToWordLevel([]contract.Pair{{Diplomatic: "dns amen dixit", Full: "dominus amen dixit"}})
	if len(pairs) != 1 || pairs[0].Diplomatic != "dns" || pairs[0].Full != "dominus" {
		t.Fatalf("pairs: %+v", pairs)
	}
	// 词数不同：保留块级对
	pairs = PairsToWordLevel([]contract.Pair{{Diplomatic: "⁊c", Full: "et cetera"}})
	if len(pairs) != 1 || pairs[0].Diplomatic != "⁊c" {
		t.Fatalf("pairs: %+v", pairs)
	}
}

// 已在生效规则集中的键不再入队
func TestExcludeKnown(t *testing.T) {
	set := examples.Merge([]contract.Pair{{Diplomatic: "dns", Full: "dominus"}}, nil)
	out := ExcludeKnown([]contract.Pair{
		{Diplomatic: "dns", Full: "dominus"},
		{Diplomatic: "xps", Full: "christus"},
	}, set)
	if len(out) != 1 || out[0].Diplomatic != "xps" {
		t.Fatalf("got %+v", out)
	}
}

func TestQueueAddAndStates(t *testing.T) {
	q, err := OpenQueue(t.TempDir())
	if err != nil {
		t.Fatalf("打开失败: %v", err)
	}
	n := q.Add([]contract.Pair{
		{Diplomatic: "dns", Full: "dominus"},
		{Diplomatic: "xps", Full: "christus"},
	}, "gemini-2.5-pro", "doc.xml", true)
	if n != 2 || len(q.Pending()) != 2 {
		t.Fatalf("入队失败: n=%d", n)
	}
	// 重复键不再入队
	if n := q.Add([]contract.Pair{{Diplomatic: "dns", Full: "other"}}, "m", "", false); n != 0 {
		t.Fatalf("重复键入队: %d", n)
	}
	if err := q.Accept(0); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if err := q.Reject(1); err != nil {
		t.Fatalf("reject: %v", err)
	}
	acc := q.TakeAccepted()
	if len(acc) != 1 || acc[0].Diplomatic != "dns" || !acc[0].Pro {
		t.Fatalf("accepted: %+v", acc)
	}
	q.Compact()
	if len(q.Items) != 0 {
		t.Fatalf("compact 后残留: %+v", q.Items)
	}
}

// 被拒的外观键在冷静期内不再入队
func TestQueueRejectCooldown(t *testing.T) {
	dir := t.TempDir()
	q, err := OpenQueue(dir)
	if err != nil {
		t.Fatalf("打开失败: %v", err)
	}
	q.Add([]contract.Pair{{Diplomatic: "dns", Full: "dominus"}}, "m", "", false)
	if err := q.Reject(0); err != nil {
		t.Fatalf("reject: %v", err)
	}
	q.Compact()
	if err := q.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}

	q2, err := OpenQueue(dir)
	if err != nil {
		t.Fatalf("重开失败: %v", err)
	}
	if n := q2.Add([]contract.Pair{{Diplomatic: "dns", Full: "dominus"}}, "m", "", false); n != 0 {
		t.Fatalf("冷静期内入队: %d", n)
	}
	// 冷静期过后允许再次入队
	q2.clk = func() time.Time { return time.Now().Add(rejectCooldown + time.Hour) }
	if n := q2.Add([]contract.Pair{{Diplomatic: "dns", Full: "dominus"}}, "m", "", false); n != 1 {
		t.Fatalf("冷静期后被拒: %d", n)
	}
}

// 队列跨进程持久化
func TestQueuePersistence(t *testing.T) {
	dir := t.TempDir()
	q, _ := OpenQueue(dir)
	q.Add([]contract.Pair{{Diplomatic: "dns", Full: "dominus"}}, "gemini-2.5-flash", "a.xml", false)
	if err := q.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}
	q2, err := OpenQueue(dir)
	if err != nil || len(q2.Items) != 1 {
		t.Fatalf("重载失败: %v, %+v", err, q2.Items)
	}
	s := q2.Items[0]
	if s.Origin != "gemini-2.5-flash" || s.DocPath != "a.xml" || s.State != StatePending {
		t.Fatalf("字段丢失: %+v", s)
	}
}
