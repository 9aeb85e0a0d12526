// Package examples 管理两层示例（curated 权威 / learned 暂定）的加载、
// 保存与合并。文件格式为 JSON 数组 [{"diplomatic":...,"full":...}]。
package examples

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"dipex/pkg/contract"
)

// DefaultMaxLearned: learned 层默认容量上限。
const DefaultMaxLearned = 2000

// cacheSlots: 读缓存保留的最近路径数上限（约束内存）。
const cacheSlots = 8

type cacheEntry struct {
	mtime time.Time
	pairs []contract.Pair
}

// Store 是带失效感知读缓存的示例存取器。
// 缓存键为路径，按文件 mtime 失效；显式对象而非进程级全局态。
type Store struct {
	mu    sync.Mutex
	cache map[string]cacheEntry
	order []string // 最近使用在尾部
}

// NewStore 创建空 Store。
func NewStore() *Store {
	return &Store{cache: make(map[string]cacheEntry, cacheSlots)}
}

// Load 读取一个层的全部示例对。
// - 文件不存在：返回空集（非错误，调用方可提示）；
// - 顶层结构非法：ErrExamplesFormat（致命，不得静默视为空）；
// - 单条目畸形（缺键/类型不符）：跳过该条目。
func (s *Store) Load(path string) ([]contract.Pair, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	fi, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	s.mu.Lock()
	if e, ok := s.cache[abs]; ok && e.mtime.Equal(fi.ModTime()) {
		out := make([]contract.Pair, len(e.pairs))
		copy(out, e.pairs)
		s.touch(abs)
		s.mu.Unlock()
		return out, nil
	}
	s.mu.Unlock()

	raw, err := os.ReadFile(abs)
	if err != nil {
		return nil, err
	}
	pairs, err := ParsePairs(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", contract.ErrExamplesFormat, path, err)
	}

	s.mu.Lock()
	s.put(abs, cacheEntry{mtime: fi.ModTime(), pairs: pairs})
	s.mu.Unlock()

	out := make([]contract.Pair, len(pairs))
	copy(out, pairs)
	return out, nil
}

// ParsePairs 解析示例 JSON 字节。顶层必须是数组；未知键忽略；
// diplomatic 为空的条目跳过。
func ParsePairs(raw []byte) ([]contract.Pair, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	out := make([]contract.Pair, 0, len(items))
	for _, it := range items {
		var p contract.Pair
		if err := json.Unmarshal(it, &p); err != nil {
			continue // 单条目畸形：跳过
		}
		if p.Diplomatic == "" {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// Save 原子写出（同目录临时文件 + rename），并使该路径的读缓存失效。
func (s *Store) Save(path string, pairs []contract.Pair) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(pairs, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(abs), ".dipex-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, abs); err != nil {
		os.Remove(tmpPath)
		return err
	}
	s.Invalidate(abs)
	return nil
}

// Invalidate 丢弃某路径的缓存条目。
func (s *Store) Invalidate(path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	s.mu.Lock()
	if _, ok := s.cache[abs]; ok {
		delete(s.cache, abs)
		for i, k := range s.order {
			if k == abs {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	}
	s.mu.Unlock()
}

// put/touch: 持 s.mu 调用。
func (s *Store) put(key string, e cacheEntry) {
	if _, ok := s.cache[key]; !ok && len(s.cache) >= cacheSlots {
		// 淘汰最久未用
		old := s.order[0]
		s.order = s.order[1:]
		delete(s.cache, old)
	}
	s.cache[key] = e
	s.touch(key)
}

func (s *Store) touch(key string) {
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.order = append(s.order, key)
}

// LearnedPath 返回与 curated 文件同目录的 learned 文件路径。
func LearnedPath(examplesPath string) string {
	return filepath.Join(filepath.Dir(examplesPath), "learned_examples.json")
}
