package expander

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"dipex/internal/blocks"
	"dipex/internal/diag"
	"dipex/internal/examples"
	"dipex/pkg/contract"
	bflaky "dipex/plugins/backend/flaky"
	brules "dipex/plugins/backend/rules"
)

func rulesBackend(t *testing.T) contract.Backend {
	t.Helper()
	b, err := brules.New(nil)
	if err != nil {
		t.Fatalf("构造失败: %v", err)
	}
	return b
}

func testSet() contract.RuleSet {
	return examples.Merge([]contract.Pair{
		{Diplomatic: "dns", Full: "dominus"},
		{Diplomatic: "xps", Full: "christus"},
	}, nil)
}

// 端到端：块内文替换，块外每个字节原样保留
func TestExpandBytePreservation(t *testing.T) {
	doc := []byte(`<?xml version="1.0" encoding="UTF-8"?>
<TEI xmlns="http://www.tei-c.org/ns/1.0"><!-- scribal -->
  <body><p rend="x">dns amen</p><l>xps</l></body>
</TEI>`)
	res, err := Expand(context.Background(), doc, Options{
		Backend:  rulesBackend(t),
		Modality: contract.ModalityFull,
		Rules:    testSet(),
		Schema:   blocks.SchemaAuto,
	}, diag.Nop())
	if err != nil {
		t.Fatalf("expand 失败: %v", err)
	}
	want := []byte(`<?xml version="1.0" encoding="UTF-8"?>
<TEI xmlns="http://www.tei-c.org/ns/1.0"><!-- scribal -->
  <body><p rend="x">dominus amen</p><l>christus</l></body>
</TEI>`)
	if !bytes.Equal(res.Doc, want) {
		t.Fatalf("输出不符:\n got: %s\nwant: %s", res.Doc, want)
	}
}

// 未变化的块保持原字节（含原始实体写法）
func TestExpandUnchangedKeepsEntities(t *testing.T) {
	doc := []byte(`<r><p>salt &amp; bread</p></r>`)
	res, err := Expand(context.Background(), doc, Options{
		Backend: rulesBackend(t),
		Rules:   testSet(),
		Schema:  blocks.SchemaAuto,
	}, diag.Nop())
	if err != nil {
		t.Fatalf("expand 失败: %v", err)
	}
	if !bytes.Equal(res.Doc, doc) {
		t.Fatalf("无变化文档被改写: %s", res.Doc)
	}
}

// 替换文本里的保留字符需要最小转义
func TestExpandEscapesReplacement(t *testing.T) {
	set := examples.Merge([]contract.Pair{{Diplomatic: "⁊", Full: "& cetera"}}, nil)
	doc := []byte(`<r><p>⁊</p></r>`)
	res, err := Expand(context.Background(), doc, Options{
		Backend: rulesBackend(t),
		Rules:   set,
		Schema:  blocks.SchemaAuto,
	}, diag.Nop())
	if err != nil {
		t.Fatalf("expand 失败: %v", err)
	}
	if !bytes.Contains(res.Doc, []byte("&amp; cetera")) {
		t.Fatalf("未转义: %s", res.Doc)
	}
	if err := blocks.WellFormed(res.Doc); err != nil {
		t.Fatalf("输出非良构: %v", err)
	}
}

// 并发下输出仍按文档序拼接，两次运行字节一致
func TestExpandConcurrentDeterministic(t *testing.T) {
	var sb strings.Builder
	sb.WriteString(`<r>`)
	for i := 0; i < 40; i++ {
		sb.WriteString(`<p>dns xps</p>`)
	}
	sb.WriteString(`</r>`)
	doc := []byte(sb.String())

	run := func() []byte {
		res, err := Expand(context.Background(), doc, Options{
			Backend:     rulesBackend(t),
			Rules:       testSet(),
			Schema:      blocks.SchemaAuto,
			Concurrency: 4,
		}, diag.Nop())
		if err != nil {
			t.Fatalf("expand 失败: %v", err)
		}
		return res.Doc
	}
	a, b := run(), run()
	if !bytes.Equal(a, b) {
		t.Fatalf("两次运行结果不一致")
	}
	if bytes.Contains(a, []byte("dns")) {
		t.Fatalf("存在未展开的块: %s", a)
	}
}

// 空白块不触发后端调用
func TestExpandSkipsBlankBlocks(t *testing.T) {
	fb, err := bflaky.New(json.RawMessage(`{"fail_first":100,"permanent":true}`))
	if err != nil {
		t.Fatalf("构造失败: %v", err)
	}
	doc := []byte("<r><p>  </p><ab></ab></r>")
	res, rerr := Expand(context.Background(), doc, Options{
		Backend: fb,
		Schema:  blocks.SchemaAuto,
	}, diag.Nop())
	if rerr != nil {
		t.Fatalf("空白块触发了后端: %v", rerr)
	}
	if fb.Calls() != 0 {
		t.Fatalf("后端被调用 %d 次", fb.Calls())
	}
	if !bytes.Equal(res.Doc, doc) {
		t.Fatalf("文档被改写: %s", res.Doc)
	}
}

// 单块永久失败不中止兄弟块：文档照常产出，失败块保持原文
func TestExpandPartialFailure(t *testing.T) {
	fb, err := bflaky.New(json.RawMessage(`{"fail_first":1,"permanent":true}`))
	if err != nil {
		t.Fatalf("构造失败: %v", err)
	}
	doc := []byte(`<r><p>dns</p><p>xps</p></r>`)
	res, rerr := Expand(context.Background(), doc, Options{
		Backend: fb,
		Rules:   testSet(),
		Schema:  blocks.SchemaAuto,
	}, diag.Nop())
	var pe *PartialError
	if !errors.As(rerr, &pe) {
		t.Fatalf("期望 PartialError，得到 %v", rerr)
	}
	if len(pe.Failures) != 1 || pe.Failures[0].Index != 0 {
		t.Fatalf("failures: %+v", pe.Failures)
	}
	want := []byte(`<r><p>dns</p><p>christus</p></r>`)
	if !bytes.Equal(res.Doc, want) {
		t.Fatalf("输出不符:\n got: %s\nwant: %s", res.Doc, want)
	}
}

// 瞬时失败重试后成功
func TestExpandRetriesTransient(t *testing.T) {
	fb, err := bflaky.New(json.RawMessage(`{"fail_first":2}`))
	if err != nil {
		t.Fatalf("构造失败: %v", err)
	}
	doc := []byte(`<r><p>dns</p></r>`)
	res, rerr := Expand(context.Background(), doc, Options{
		Backend:    fb,
		Rules:      testSet(),
		Schema:     blocks.SchemaAuto,
		MaxRetries: 2,
	}, diag.Nop())
	if rerr != nil {
		t.Fatalf("重试未成功: %v", rerr)
	}
	if fb.Calls() != 3 {
		t.Fatalf("调用次数 %d", fb.Calls())
	}
	if !bytes.Contains(res.Doc, []byte("dominus")) {
		t.Fatalf("未展开: %s", res.Doc)
	}
}

// 重试耗尽升级为后端失败
func TestExpandRetriesExhausted(t *testing.T) {
	fb, err := bflaky.New(json.RawMessage(`{"fail_first":10}`))
	if err != nil {
		t.Fatalf("构造失败: %v", err)
	}
	_, rerr := Expand(context.Background(), []byte(`<r><p>dns</p></r>`), Options{
		Backend:    fb,
		Rules:      testSet(),
		Schema:     blocks.SchemaAuto,
		MaxRetries: 1,
	}, diag.Nop())
	if !errors.Is(rerr, contract.ErrBackendFailure) {
		t.Fatalf("期望 ErrBackendFailure，得到 %v", rerr)
	}
}

// 取消在任何块完成前被观察到：不产出文档
func TestExpandCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := Expand(ctx, []byte(`<r><p>dns</p></r>`), Options{
		Backend: rulesBackend(t),
		Rules:   testSet(),
		Schema:  blocks.SchemaAuto,
	}, diag.Nop())
	if !errors.Is(err, contract.ErrCancelled) {
		t.Fatalf("期望 ErrCancelled，得到 %v", err)
	}
	if res != nil {
		t.Fatalf("取消后不应产出结果")
	}
}

// 整文档模式的响应校验
type docBackend struct {
	out []byte
	err error
}

func (d *docBackend) ExpandBlock(ctx context.Context, text string, set contract.RuleSet, m contract.Modality) (string, error) {
	return text, nil
}

func (d *docBackend) ExpandDocument(ctx context.Context, doc []byte, set contract.RuleSet, m contract.Modality) ([]byte, error) {
	return d.out, d.err
}

func TestExpandWholeDocumentValid(t *testing.T) {
	doc := []byte(`<TEI><p>dns</p></TEI>`)
	db := &docBackend{out: []byte(`<TEI><p>dominus</p></TEI>`)}
	res, err := Expand(context.Background(), doc, Options{
		Backend:       db,
		Schema:        blocks.SchemaAuto,
		WholeDocument: true,
	}, diag.Nop())
	if err != nil {
		t.Fatalf("expand 失败: %v", err)
	}
	if !bytes.Equal(res.Doc, db.out) {
		t.Fatalf("输出不符: %s", res.Doc)
	}
	if len(res.Expanded) != 1 || res.Expanded[0] != "dominus" {
		t.Fatalf("对齐失败: %+v", res.Expanded)
	}
}

func TestExpandWholeDocumentInvalidResponse(t *testing.T) {
	doc := []byte(`<TEI><p>dns</p></TEI>`)
	for _, bad := range [][]byte{
		[]byte(`<TEI><p>busted`),        // 非良构
		[]byte(`<html><p>x</p></html>`), // 根不一致
	} {
		db := &docBackend{out: bad}
		_, err := Expand(context.Background(), doc, Options{
			Backend:       db,
			Schema:        blocks.SchemaAuto,
			WholeDocument: true,
		}, diag.Nop())
		if !errors.Is(err, contract.ErrDocumentInvalid) {
			t.Fatalf("期望 ErrDocumentInvalid，得到 %v", err)
		}
	}
}
