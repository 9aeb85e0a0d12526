package stress

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"testing"
	"time"

	"dipex/internal/blocks"
	"dipex/internal/diag"
	"dipex/internal/examples"
	"dipex/internal/expander"
	"dipex/pkg/contract"
	bmock "dipex/plugins/backend/mock"
)

// buildDoc 生成 n 个块的 TEI 文档，交替使用缩写词。
func buildDoc(n int) []byte {
	var b strings.Builder
	b.WriteString("<TEI><text><body>\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "<ab>dns amen dixit xps %d</ab>\n", i)
	}
	b.WriteString("</body></text></TEI>\n")
	return []byte(b.String())
}

func testSet() contract.RuleSet {
	return examples.Merge([]contract.Pair{
		{Diplomatic: "dns", Full: "dominus"},
		{Diplomatic: "xps", Full: "christus"},
	}, nil)
}

// TestStress 在不同并发度下运行编排器并记录延迟统计。
func TestStress(t *testing.T) {
	doc := buildDoc(500)
	set := testSet()
	backend, err := bmock.New(nil)
	if err != nil {
		t.Fatalf("mock: %v", err)
	}
	levels := []int{1, 8, 16, 32, 64}
	for _, conc := range levels {
		t.Run(fmt.Sprintf("concurrency_%d", conc), func(t *testing.T) {
			const runs = 5
			successes := 0
			latencies := make([]time.Duration, 0, runs)
			var ref []byte
			for i := 0; i < runs; i++ {
				start := time.Now()
				res, err := expander.Expand(context.Background(), doc, expander.Options{
					Backend:     backend,
					Modality:    contract.ModalityFull,
					Rules:       set,
					Schema:      blocks.SchemaAuto,
					Concurrency: conc,
				}, diag.Nop())
				dur := time.Since(start)
				if err != nil {
					t.Errorf("run %d: %v", i, err)
					continue
				}
				// 并发不得影响输出
				if ref == nil {
					ref = res.Doc
				} else if string(ref) != string(res.Doc) {
					t.Errorf("run %d: 输出不确定", i)
					continue
				}
				successes++
				latencies = append(latencies, dur)
			}
			if successes == 0 {
				t.Fatalf("全部运行失败")
			}
			sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
			var total time.Duration
			for _, d := range latencies {
				total += d
			}
			avg := total / time.Duration(len(latencies))
			idx := int(math.Ceil(float64(len(latencies))*0.95)) - 1
			if idx < 0 {
				idx = 0
			}
			p95 := latencies[idx]
			t.Logf("并发%d 成功率%.2f 平均%v 95%%延迟%v", conc, float64(successes)/float64(runs), avg, p95)
		})
	}
}
