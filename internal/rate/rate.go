// 远程请求限流：RPM/TPM 双维度令牌桶（并发安全）。
package rate

import (
	"context"
	"sync"
	"time"

	"dipex/pkg/contract"
)

// Limits: 限额配置。0 表示该维度不启用。
type Limits struct {
	RPM int // requests per minute
	TPM int // tokens per minute
}

// Gate: 单提供方限流闸门。
type Gate struct {
	clk func() time.Time
	mu  sync.Mutex
	req bucket
	tok bucket
}

// NewGate 从静态配置构造；clk 为空则使用 time.Now。
func NewGate(lim Limits, clk func() time.Time) *Gate {
	if clk == nil {
		clk = time.Now
	}
	now := clk()
	g := &Gate{clk: clk}
	if lim.RPM > 0 {
		g.req = newBucket(lim.RPM, now)
	}
	if lim.TPM > 0 {
		g.tok = newBucket(lim.TPM, now)
	}
	return g
}

type bucket struct {
	cap   int
	level float64
	rate  float64
	last  time.Time
}

func newBucket(capacity int, now time.Time) bucket {
	return bucket{cap: capacity, level: float64(capacity), rate: float64(capacity) / 60.0, last: now}
}

func (b *bucket) enabled() bool { return b.cap > 0 }

func (b *bucket) refill(now time.Time) {
	if !b.enabled() || !now.After(b.last) {
		// 时钟回拨视为无时间流逝
		return
	}
	b.level += now.Sub(b.last).Seconds() * b.rate
	if b.level > float64(b.cap) {
		b.level = float64(b.cap)
	}
	b.last = now
}

func (b *bucket) canTake(n int) bool {
	return !b.enabled() || n <= 0 || b.level >= float64(n)
}

func (b *bucket) take(n int) {
	if !b.enabled() || n <= 0 {
		return
	}
	b.level -= float64(n)
	if b.level < 0 {
		b.level = 0
	}
}

// waitSecFor 返回可消费 n 前还需等待的秒数。
func (b *bucket) waitSecFor(n int) float64 {
	if !b.enabled() || n <= 0 {
		return 0
	}
	deficit := float64(n) - b.level
	if deficit <= 0 {
		return 0
	}
	return deficit / b.rate
}

// Wait 阻塞直到一次请求（约 tokens 输入 token）的额度可用或 ctx 取消。
func (g *Gate) Wait(ctx context.Context, tokens int) error {
	if tokens < 0 {
		return contract.ErrInvalidInput
	}
	const minSleep = 10 * time.Millisecond
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		now := g.clk()
		g.mu.Lock()
		g.req.refill(now)
		g.tok.refill(now)
		if g.req.canTake(1) && g.tok.canTake(tokens) {
			g.req.take(1)
			g.tok.take(tokens)
			g.mu.Unlock()
			return nil
		}
		waitSec := g.req.waitSecFor(1)
		if wt := g.tok.waitSecFor(tokens); wt > waitSec {
			waitSec = wt
		}
		g.mu.Unlock()

		d := time.Duration(waitSec*float64(time.Second)) + minSleep
		if err := sleepCtx(ctx, d); err != nil {
			return err
		}
	}
}

// Try 非阻塞尝试；额度不足返回 false。
func (g *Gate) Try(tokens int) bool {
	if tokens < 0 {
		return false
	}
	now := g.clk()
	g.mu.Lock()
	defer g.mu.Unlock()
	g.req.refill(now)
	g.tok.refill(now)
	if g.req.canTake(1) && g.tok.canTake(tokens) {
		g.req.take(1)
		g.tok.take(tokens)
		return true
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	// 分片睡眠以及时响应取消
	const step = 200 * time.Millisecond
	for d > 0 {
		s := d
		if s > step {
			s = step
		}
		t := time.NewTimer(s)
		select {
		case <-ctx.Done():
			if !t.Stop() {
				<-t.C
			}
			return ctx.Err()
		case <-t.C:
		}
		d -= s
	}
	return nil
}
