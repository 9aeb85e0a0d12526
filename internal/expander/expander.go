// Package expander 编排一次扩写运行：定位 Block → 分派后端 → 按原位拼接。
// - 单点并发：仅此层管理并发与背压；后端均为同步调用。
// - 顺序保证：结果可乱序完成，拼接按 Block 原始字节区间进行，输出顺序恒等于输入顺序。
// - 合作取消：仅在块分派间隙检查取消；在途调用任其完成或超时，结果丢弃。
// - 瞬时重试：限流/超时类失败带退避有界重试，耗尽后升级为后端失败。
package expander

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"dipex/internal/blocks"
	"dipex/internal/diag"
	"dipex/pkg/contract"
)

// Options 驱动一次扩写运行；启动后不可变（取消经由 ctx）。
type Options struct {
	Backend     contract.Backend
	Modality    contract.Modality
	Rules       contract.RuleSet
	Schema      blocks.Schema
	Concurrency int
	// MaxRetries: 瞬时失败的最大重试次数（>=0）。0 表示不重试。
	MaxRetries int
	// WholeDocument: 后端支持时以单次调用覆盖整个序列化文档。
	WholeDocument bool
	Progress      contract.Progress
	// DocID: 仅用于日志/终端标识。
	DocID string
}

// BlockError 记录单块失败（块不中止兄弟块）。
type BlockError struct {
	Index   int
	Element string
	Err     error
}

// PartialError 汇总部分失败：文档已产出，失败块保持原文。
type PartialError struct {
	Total    int
	Failures []BlockError
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("expansion incomplete: %d/%d block(s) failed: %v",
		len(e.Failures), e.Total, e.Failures[0].Err)
}

func (e *PartialError) Unwrap() error { return e.Failures[0].Err }

// Result 承载一次运行的全部产物；Expanded 与 Blocks 一一对应（失败块为原文）。
type Result struct {
	Doc      []byte
	Blocks   []contract.Block
	Expanded []string
	Failures []BlockError
}

// Expand 执行一次扩写。
// 取消在任何块完成前被观察到时返回 ErrCancelled 且不产出文档；
// 部分块失败时产出文档并返回 *PartialError。
func Expand(ctx context.Context, doc []byte, o Options, logger *diag.Logger) (*Result, error) {
	if o.Backend == nil {
		return nil, fmt.Errorf("%w: nil backend", contract.ErrInvalidInput)
	}
	if o.Concurrency < 1 {
		o.Concurrency = 1
	}

	ltimer := logger.StartWith("locator", "find", o.DocID, "")
	blks, err := blocks.Find(doc, o.Schema)
	if err != nil {
		logger.ErrorWith("locator", diag.Classify(err), "find failed", err, o.DocID, "")
		return nil, err
	}
	ltimer.Finish("find", int64(len(blks)))

	if t := diag.GetTerminal(); t != nil {
		t.DocStart(o.DocID, len(blks))
	}
	start := time.Now()

	if db, ok := o.Backend.(contract.DocumentBackend); ok && o.WholeDocument {
		res, err := expandWhole(ctx, doc, blks, db, o, logger)
		if t := diag.GetTerminal(); t != nil {
			t.DocFinish(err == nil, time.Since(start))
		}
		return res, err
	}

	res, err := expandBlocks(ctx, doc, blks, o, logger)
	if t := diag.GetTerminal(); t != nil {
		t.DocFinish(err == nil, time.Since(start))
	}
	return res, err
}

// expandWhole: 整文档单次调用；响应必须重新解析为同根良构 XML，
// 否则返回 ErrDocumentInvalid 且原文档不受影响。
func expandWhole(ctx context.Context, doc []byte, blks []contract.Block, db contract.DocumentBackend, o Options, logger *diag.Logger) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, contract.ErrCancelled
	}
	timer := logger.StartWith("backend", "expand_document", o.DocID, "")
	out, err := withRetry(ctx, o.MaxRetries, func() ([]byte, error) {
		return db.ExpandDocument(ctx, doc, o.Rules, o.Modality)
	})
	if err != nil {
		logger.ErrorWith("backend", diag.Classify(err), "expand_document failed", err, o.DocID, "")
		return nil, err
	}
	timer.Finish("expand_document", 1)

	if err := blocks.WellFormed(out); err != nil {
		return nil, fmt.Errorf("%w: response is not well-formed markup", contract.ErrDocumentInvalid)
	}
	wantRoot, err := blocks.RootName(doc)
	if err != nil {
		return nil, err
	}
	gotRoot, err := blocks.RootName(out)
	if err != nil || gotRoot != wantRoot {
		return nil, fmt.Errorf("%w: root %q != %q", contract.ErrDocumentInvalid, gotRoot, wantRoot)
	}
	if o.Progress != nil {
		o.Progress(1, 1)
	}
	res := &Result{Doc: out, Blocks: blks}
	// 响应同根良构时按新文档重定位，给自动学习对齐用；块数不一致则不对齐
	if outBlks, ferr := blocks.Find(out, o.Schema); ferr == nil && len(outBlks) == len(blks) {
		res.Expanded = make([]string, len(outBlks))
		for i, b := range outBlks {
			res.Expanded[i] = b.Text
		}
	}
	return res, nil
}

func expandBlocks(ctx context.Context, doc []byte, blks []contract.Block, o Options, logger *diag.Logger) (*Result, error) {
	expanded := make([]string, len(blks))
	okMask := make([]bool, len(blks))
	var failures []BlockError

	if len(blks) > 0 {
		type res struct {
			idx  int
			text string
			err  error
		}
		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		jobs := make(chan contract.Block)
		out := make(chan res, o.Concurrency*2)

		g := new(errgroup.Group)
		for w := 0; w < o.Concurrency; w++ {
			g.Go(func() error {
				for b := range jobs {
					if strings.TrimSpace(b.Text) == "" {
						out <- res{idx: b.Index, text: b.Text}
						continue
					}
					timer := logger.StartWith("backend", "expand_block", o.DocID, fmt.Sprintf("%d", b.Index))
					text, err := withRetry(runCtx, o.MaxRetries, func() (string, error) {
						return o.Backend.ExpandBlock(runCtx, b.Text, o.Rules, o.Modality)
					})
					if err != nil {
						logger.ErrorWith("backend", diag.Classify(err), "expand_block failed", err, o.DocID, fmt.Sprintf("%d", b.Index))
						out <- res{idx: b.Index, err: err}
						continue
					}
					timer.Finish("expand_block", 1)
					out <- res{idx: b.Index, text: text}
				}
				return nil
			})
		}

		// 生产者：分派间隙为唯一的取消观察点
		go func() {
			defer close(jobs)
			for _, b := range blks {
				select {
				case <-ctx.Done():
					return
				case jobs <- b:
				}
			}
		}()
		go func() {
			_ = g.Wait()
			close(out)
		}()

		done := 0
		for r := range out {
			done++
			if r.err != nil {
				failures = append(failures, BlockError{Index: r.idx, Element: blks[r.idx].Element, Err: r.err})
			} else {
				expanded[r.idx] = r.text
				okMask[r.idx] = true
			}
			if o.Progress != nil {
				o.Progress(done, len(blks))
			}
			if t := diag.GetTerminal(); t != nil {
				t.BlockProgress(done, len(blks), len(failures))
			}
		}

		if err := ctx.Err(); err != nil {
			// 取消是干净停止：丢弃在途结果，不产出文档
			return nil, contract.ErrCancelled
		}
		sort.Slice(failures, func(i, j int) bool { return failures[i].Index < failures[j].Index })
	}

	res := &Result{
		Doc:      splice(doc, blks, expanded, okMask),
		Blocks:   blks,
		Expanded: expanded,
		Failures: failures,
	}
	for i := range blks {
		if !okMask[i] {
			res.Expanded[i] = blks[i].Text
		}
	}
	if len(failures) > 0 {
		return res, &PartialError{Total: len(blks), Failures: failures}
	}
	return res, nil
}

// splice 在原始字节流上按区间替换成功块的内文；
// 失败块、空区间与未变化的内文保持原字节。
func splice(doc []byte, blks []contract.Block, expanded []string, okMask []bool) []byte {
	var b strings.Builder
	b.Grow(len(doc) + 256)
	prev := int64(0)
	for i, blk := range blks {
		if !okMask[i] || blk.Start == blk.End && expanded[i] == "" {
			continue
		}
		if expanded[i] == blk.Text {
			continue
		}
		b.Write(doc[prev:blk.Start])
		escapeText(&b, expanded[i])
		prev = blk.End
	}
	b.Write(doc[prev:])
	return []byte(b.String())
}

// escapeText 做文本节点的最小转义（&、<、>），不动引号与换行。
func escapeText(b *strings.Builder, s string) {
	for _, r := range s {
		switch r {
		case '&':
			b.WriteString("&amp;")
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		default:
			b.WriteRune(r)
		}
	}
}

// withRetry: 瞬时失败带退避重试；耗尽后升级为后端失败。
// 取消/超时不重试。
func withRetry[T any](ctx context.Context, maxRetries int, call func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepWithCtx(ctx, time.Duration(attempt)*200*time.Millisecond); err != nil {
				return zero, err
			}
		}
		v, err := call()
		if err == nil {
			return v, nil
		}
		lastErr = err
		if !errors.Is(err, contract.ErrBackendTransient) || ctx.Err() != nil {
			return zero, err
		}
	}
	return zero, fmt.Errorf("%w: retries exhausted: %v", contract.ErrBackendFailure, lastErr)
}

// sleepWithCtx: 可取消的 sleep（最小实现）。
func sleepWithCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
