package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// 速度排序：lite 最快，pro 最慢，未知系列垫底
func TestSpeedSort(t *testing.T) {
	in := []string{
		"gemini-3-pro-preview",
		"experimental-x",
		"gemini-2.5-flash",
		"gemini-2.5-flash-lite",
		"gemini-3-flash-preview",
	}
	got := SpeedSort(in)
	want := []string{
		"gemini-2.5-flash-lite",
		"gemini-3-flash-preview",
		"gemini-2.5-flash",
		"gemini-3-pro-preview",
		"experimental-x",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("排序不符 (-want +got):\n%s", diff)
	}
	// 原切片不被改动
	if in[0] != "gemini-3-pro-preview" {
		t.Fatalf("SpeedSort 原地修改了输入")
	}
}

// API 成功：结果排序并写入缓存；第二次调用命中缓存不再拉取
func TestModelsFetchAndCache(t *testing.T) {
	c, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	calls := 0
	fetch := func(ctx context.Context) ([]string, error) {
		calls++
		return []string{"gemini-2.5-pro", "gemini-2.5-flash-lite"}, nil
	}
	got := c.Models(context.Background(), fetch, false)
	if len(got) != 2 || got[0] != "gemini-2.5-flash-lite" {
		t.Fatalf("got %v", got)
	}
	got = c.Models(context.Background(), fetch, false)
	if calls != 1 {
		t.Fatalf("缓存未命中，拉取了 %d 次", calls)
	}
	if len(got) != 2 || got[0] != "gemini-2.5-flash-lite" {
		t.Fatalf("缓存内容错误: %v", got)
	}
	// forceRefresh 跳过缓存
	c.Models(context.Background(), fetch, true)
	if calls != 2 {
		t.Fatalf("forceRefresh 未拉取")
	}
}

// API 失败且无缓存：静默回退到固定表
func TestModelsFallback(t *testing.T) {
	c, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	fetch := func(ctx context.Context) ([]string, error) {
		return nil, errors.New("unreachable")
	}
	got := c.Models(context.Background(), fetch, false)
	if len(got) != len(FallbackModels) || got[0] != FallbackModels[0] {
		t.Fatalf("got %v", got)
	}
	// nil fetcher 同样回退
	got = c.Models(context.Background(), nil, true)
	if len(got) != len(FallbackModels) {
		t.Fatalf("got %v", got)
	}
}

// 超过 TTL 的缓存视为过期
func TestCacheTTL(t *testing.T) {
	c, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	fetch := func(ctx context.Context) ([]string, error) {
		return []string{"gemini-2.5-flash"}, nil
	}
	c.Models(context.Background(), fetch, false)

	c.clk = func() time.Time { return time.Now().Add(cacheTTL + time.Minute) }
	calls := 0
	fetch2 := func(ctx context.Context) ([]string, error) {
		calls++
		return []string{"gemini-2.0-flash"}, nil
	}
	got := c.Models(context.Background(), fetch2, false)
	if calls != 1 || got[0] != "gemini-2.0-flash" {
		t.Fatalf("过期缓存仍被使用: calls=%d got=%v", calls, got)
	}
}

// ClearCache 后重新拉取
func TestClearCache(t *testing.T) {
	c, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	calls := 0
	fetch := func(ctx context.Context) ([]string, error) {
		calls++
		return []string{"gemini-2.5-flash"}, nil
	}
	c.Models(context.Background(), fetch, false)
	c.ClearCache()
	c.Models(context.Background(), fetch, false)
	if calls != 2 {
		t.Fatalf("清缓存后未重新拉取: %d", calls)
	}
}

func TestIsPro(t *testing.T) {
	if !IsPro("gemini-2.5-pro") || !IsPro("gemini-3-pro-preview") {
		t.Fatalf("pro 档判定失败")
	}
	if IsPro("gemini-2.5-flash") || IsPro("") {
		t.Fatalf("非 pro 误判")
	}
}
