// 远程模型目录：API 拉取 + 本地缓存（24h TTL）+ 固定回退表，按速度排序。
package catalog

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const cacheTTL = 24 * time.Hour

// FallbackModels: API 不可达时的固定回退表（最快在前）。
var FallbackModels = []string{
	"gemini-2.5-flash-lite",
	"gemini-3-flash-preview",
	"gemini-2.0-flash",
	"gemini-2.5-flash",
	"gemini-2.5-pro",
	"gemini-3-pro-preview",
}

// DefaultModel: 未指定模型时的默认值。
const DefaultModel = "gemini-3-flash-preview"

// Fetcher 拉取当前可用模型名；失败返回错误，由目录回退处理。
type Fetcher func(ctx context.Context) ([]string, error)

// Catalog: 模型目录。零值不可用，经 New 构造。
type Catalog struct {
	cachePath string
	clk       func() time.Time
}

// New 构造目录；cacheDir 为空时使用用户缓存目录下的 dipex/。
func New(cacheDir string) (*Catalog, error) {
	if cacheDir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			return nil, err
		}
		cacheDir = filepath.Join(base, "dipex")
	}
	return &Catalog{cachePath: filepath.Join(cacheDir, "models.txt"), clk: time.Now}, nil
}

// Models 返回可用模型（最快在前）：有效缓存 > API > 固定回退。
// forceRefresh 跳过缓存。API 失败不报错，静默回退。
func (c *Catalog) Models(ctx context.Context, fetch Fetcher, forceRefresh bool) []string {
	if !forceRefresh {
		if cached := c.readCache(); len(cached) > 0 {
			return cached
		}
	}
	if fetch != nil {
		if models, err := fetch(ctx); err == nil && len(models) > 0 {
			models = SpeedSort(models)
			c.writeCache(models)
			return models
		}
	}
	return append([]string(nil), FallbackModels...)
}

// ClearCache 删除缓存文件，下次调用强制拉取。
func (c *Catalog) ClearCache() {
	_ = os.Remove(c.cachePath)
}

func (c *Catalog) readCache() []string {
	fi, err := os.Stat(c.cachePath)
	if err != nil || c.clk().Sub(fi.ModTime()) >= cacheTTL {
		return nil
	}
	data, err := os.ReadFile(c.cachePath)
	if err != nil {
		return nil
	}
	var out []string
	for _, line := range strings.Split(string(data), "\n") {
		if s := strings.TrimSpace(line); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// 缓存写失败不致命，忽略。
func (c *Catalog) writeCache(models []string) {
	if err := os.MkdirAll(filepath.Dir(c.cachePath), 0o755); err != nil {
		return
	}
	_ = os.WriteFile(c.cachePath, []byte(strings.Join(models, "\n")+"\n"), 0o644)
}

// SpeedSort 按经验速度排序（最快在前），未知系列排末尾。
func SpeedSort(models []string) []string {
	out := append([]string(nil), models...)
	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := speedRank(out[i]), speedRank(out[j])
		if pi != pj {
			return pi < pj
		}
		return out[i] < out[j]
	})
	return out
}

func speedRank(name string) int {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "flash-lite"):
		return 0
	case strings.Contains(n, "flash") && strings.Contains(n, "3"):
		return 1
	case strings.Contains(n, "flash") && strings.Contains(n, "2.0"):
		return 2
	case strings.Contains(n, "flash") && strings.Contains(n, "2.5"):
		return 3
	case strings.Contains(n, "pro") && strings.Contains(n, "2.5"):
		return 4
	case strings.Contains(n, "pro") && strings.Contains(n, "3"):
		return 5
	}
	return 99
}

// IsPro 判断模型是否为高质量（pro）档；学习层以此加权。
func IsPro(model string) bool {
	return strings.Contains(strings.ToLower(model), "pro")
}
