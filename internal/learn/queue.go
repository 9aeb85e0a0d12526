package learn

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dipex/internal/norm"
	"dipex/pkg/contract"
)

// Suggestion 状态。
const (
	StatePending  = "pending"
	StateAccepted = "accepted"
	StateRejected = "rejected"
	StatePromoted = "promoted"
)

// 被拒对的冷静期：期内同外观键不再入队。
const rejectCooldown = 30 * 24 * time.Hour

// Suggestion: 复核队列中的一条候选对。
type Suggestion struct {
	Diplomatic string `json:"diplomatic"`
	Full       string `json:"full"`
	// Origin: 产生来源（模型名或 "local"）。
	Origin string `json:"source,omitempty"`
	// DocPath: 产生该对的输入文档（可选）。
	DocPath   string `json:"path,omitempty"`
	State     string `json:"state,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	// Pro: 来源是否为高质量（pro 档）模型。
	Pro bool `json:"pro,omitempty"`
}

// reject 记录：外观键 → 拒绝时刻（RFC3339）。
type rejectLog map[string]string

// Queue: 复核队列（磁盘为权威，本结构只是一次加载的快照）。
type Queue struct {
	path       string
	rejectPath string
	Items      []Suggestion
	rejects    rejectLog
	clk        func() time.Time
}

// DefaultDir 返回队列与个人学习数据所在目录。
func DefaultDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "dipex"), nil
}

// OpenQueue 加载复核队列；文件缺失视为空队列。
func OpenQueue(dir string) (*Queue, error) {
	if dir == "" {
		var err error
		dir, err = DefaultDir()
		if err != nil {
			return nil, err
		}
	}
	q := &Queue{
		path:       filepath.Join(dir, "review_queue.json"),
		rejectPath: filepath.Join(dir, "rejected_keys.json"),
		rejects:    rejectLog{},
		clk:        time.Now,
	}
	if err := loadJSON(q.path, &q.Items); err != nil {
		return nil, err
	}
	if err := loadJSON(q.rejectPath, &q.rejects); err != nil {
		return nil, err
	}
	if q.rejects == nil {
		q.rejects = rejectLog{}
	}
	return q, nil
}

func loadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		// 损坏的队列不应阻断主流程：按空处理
		return nil
	}
	return nil
}

// Save 原子持久化（临时文件 + 重命名）。
func (q *Queue) Save() error {
	if err := writeJSON(q.path, q.Items); err != nil {
		return err
	}
	return writeJSON(q.rejectPath, q.rejects)
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".dipex-*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	return os.Rename(name, path)
}

// Add 将过滤后的候选对入队：按外观键对现有队列去重，冷静期内的键跳过。
// 返回实际新增条数。
func (q *Queue) Add(pairs []contract.Pair, origin, docPath string, pro bool) int {
	existing := make(map[string]struct{}, len(q.Items))
	for _, s := range q.Items {
		existing[norm.AppearanceKey(s.Diplomatic)] = struct{}{}
	}
	now := q.clk().UTC()
	added := 0
	for _, p := range FilterQuality(pairs) {
		key := norm.AppearanceKey(p.Diplomatic)
		if _, ok := existing[key]; ok {
			continue
		}
		if q.inCooldown(key, now) {
			continue
		}
		existing[key] = struct{}{}
		q.Items = append(q.Items, Suggestion{
			Diplomatic: p.Diplomatic,
			Full:       p.Full,
			Origin:     origin,
			DocPath:    docPath,
			State:      StatePending,
			Timestamp:  now.Format(time.RFC3339),
			Pro:        pro || p.Pro,
		})
		added++
	}
	return added
}

func (q *Queue) inCooldown(key string, now time.Time) bool {
	ts, ok := q.rejects[key]
	if !ok {
		return false
	}
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		delete(q.rejects, key)
		return false
	}
	return now.Before(t.Add(rejectCooldown))
}

// Pending 返回待复核条目的索引。
func (q *Queue) Pending() []int {
	var idx []int
	for i, s := range q.Items {
		if s.State == "" || s.State == StatePending {
			idx = append(idx, i)
		}
	}
	return idx
}

// Accept 标记通过；i 为 Items 下标。
func (q *Queue) Accept(i int) error {
	if i < 0 || i >= len(q.Items) {
		return fmt.Errorf("%w: queue index %d", contract.ErrInvalidInput, i)
	}
	q.Items[i].State = StateAccepted
	return nil
}

// Reject 标记拒绝并记录冷静期；条目保留以供审计。
func (q *Queue) Reject(i int) error {
	if i < 0 || i >= len(q.Items) {
		return fmt.Errorf("%w: queue index %d", contract.ErrInvalidInput, i)
	}
	q.Items[i].State = StateRejected
	key := norm.AppearanceKey(q.Items[i].Diplomatic)
	q.rejects[key] = q.clk().UTC().Format(time.RFC3339)
	return nil
}

// Edit 替换条目文本（复核中人工修订）。
func (q *Queue) Edit(i int, diplomatic, full string) error {
	if i < 0 || i >= len(q.Items) {
		return fmt.Errorf("%w: queue index %d", contract.ErrInvalidInput, i)
	}
	d := strings.TrimSpace(diplomatic)
	f := strings.TrimSpace(full)
	if d == "" || f == "" {
		return fmt.Errorf("%w: empty pair text", contract.ErrInvalidInput)
	}
	q.Items[i].Diplomatic = d
	q.Items[i].Full = f
	return nil
}

// TakeAccepted 取出全部已通过的条目并标记为已晋升；调用方负责写入学习层。
func (q *Queue) TakeAccepted() []contract.Pair {
	var out []contract.Pair
	for i := range q.Items {
		if q.Items[i].State == StateAccepted {
			out = append(out, contract.Pair{
				Diplomatic: q.Items[i].Diplomatic,
				Full:       q.Items[i].Full,
				Pro:        q.Items[i].Pro,
			})
			q.Items[i].State = StatePromoted
		}
	}
	return out
}

// Compact 清除已晋升/已拒绝的条目（保留 pending 与 accepted）。
func (q *Queue) Compact() {
	kept := q.Items[:0]
	for _, s := range q.Items {
		if s.State == StatePromoted || s.State == StateRejected {
			continue
		}
		kept = append(kept, s)
	}
	q.Items = kept
}
