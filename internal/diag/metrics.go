package diag

import "sync"

// 最小进程内指标：
// - op_total{comp,stage,result}
// - error_total{comp,code}
// - op_duration_ms{comp,stage}（仅累计和，便于均值估算）

var (
	mmu       sync.Mutex
	opTotal   = map[[3]string]int64{}
	errTotal  = map[[2]string]int64{}
	durTotal  = map[[2]string]int64{}
	durEvents = map[[2]string]int64{}
)

// IncOp 累加操作计数（result=success|error）。
func IncOp(comp, stage, result string) {
	mmu.Lock()
	opTotal[[3]string{comp, stage, result}]++
	mmu.Unlock()
}

// IncError 按分类累加错误计数。
func IncError(comp, code string) {
	mmu.Lock()
	errTotal[[2]string{comp, code}]++
	mmu.Unlock()
}

// ObserveDuration 记录阶段耗时（毫秒）。
func ObserveDuration(comp, stage string, durMS int64) {
	mmu.Lock()
	durTotal[[2]string{comp, stage}] += durMS
	durEvents[[2]string{comp, stage}]++
	mmu.Unlock()
}

// ErrorCount 返回某组件某分类的累计错误数（测试与终端摘要用）。
func ErrorCount(comp, code string) int64 {
	mmu.Lock()
	defer mmu.Unlock()
	return errTotal[[2]string{comp, code}]
}
