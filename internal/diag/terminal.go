package diag

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Terminal 是面向人的进度输出（stderr 单行覆盖）。
// 与结构化日志解耦：日志面向机器，Terminal 面向操作者；未启用时全部为 no-op。
type Terminal struct {
	mu    sync.Mutex
	out   io.Writer
	doc   string
	total int
}

// NewTerminal 以指定写出口构造。
func NewTerminal(w io.Writer) *Terminal {
	return &Terminal{out: w}
}

var (
	tmu  sync.Mutex
	term *Terminal
)

// EnableTerminal 启用进度输出（写 stderr）。
func EnableTerminal() {
	tmu.Lock()
	term = NewTerminal(os.Stderr)
	tmu.Unlock()
}

// GetTerminal 返回当前 Terminal；未启用时为 nil。
func GetTerminal() *Terminal {
	tmu.Lock()
	defer tmu.Unlock()
	return term
}

// DocStart 宣告一个文档开始处理（即使 total=0 也要发）。
func (t *Terminal) DocStart(doc string, total int) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.doc, t.total = doc, total
	fmt.Fprintf(t.out, "%s: %d block(s)\n", doc, total)
	t.mu.Unlock()
}

// BlockProgress 覆盖输出 done/total 与错误数。
func (t *Terminal) BlockProgress(done, total, errs int) {
	if t == nil {
		return
	}
	t.mu.Lock()
	if errs > 0 {
		fmt.Fprintf(t.out, "\r%s: %d/%d (%d failed)", t.doc, done, total, errs)
	} else {
		fmt.Fprintf(t.out, "\r%s: %d/%d", t.doc, done, total)
	}
	t.mu.Unlock()
}

// DocFinish 收尾一行（成功与耗时）。
func (t *Terminal) DocFinish(ok bool, dur time.Duration) {
	if t == nil {
		return
	}
	t.mu.Lock()
	state := "done"
	if !ok {
		state = "failed"
	}
	fmt.Fprintf(t.out, "\r%s: %s in %s\n", t.doc, state, dur.Round(time.Millisecond))
	t.mu.Unlock()
}
