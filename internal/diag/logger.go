package diag

import (
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger 是组件事件日志器：单行 JSON 输出到 stderr，zap 核心承载编码与级别。
// 事件形状固定：comp/stage(start|finish|error)/code/dur_ms/count/doc_id/block_id。
type Logger struct {
	z      *zap.Logger
	corrID string
}

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// NewLogger 通过配置的 level 初始化。corrID 贯穿一次运行的全部事件。
func NewLogger(corrID, level string) *Logger {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(level))
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.MessageKey = "msg"
	cfg.EncoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		zapcore.RFC3339TimeEncoder(t.UTC(), enc)
	}
	cfg.DisableStacktrace = true
	cfg.DisableCaller = true
	z, err := cfg.Build()
	if err != nil {
		z = zap.NewNop()
	}
	return &Logger{z: z.With(zap.String("corr_id", corrID)), corrID: corrID}
}

// Nop 返回丢弃一切的日志器（测试与可选注入用）。
func Nop() *Logger { return &Logger{z: zap.NewNop()} }

// Sync 冲刷底层缓冲。进程退出前调用一次。
func (l *Logger) Sync() {
	if l != nil && l.z != nil {
		_ = l.z.Sync()
	}
}

func (l *Logger) fields(comp, stage string, extra ...zap.Field) []zap.Field {
	fs := make([]zap.Field, 0, 2+len(extra))
	fs = append(fs, zap.String("comp", comp), zap.String("stage", stage))
	return append(fs, extra...)
}

// Start 记录 start 事件；返回计时器用于 Finish。
func (l *Logger) Start(comp, msg string) *Timer {
	if l == nil {
		return nil
	}
	l.z.Info(msg, l.fields(comp, "start")...)
	return &Timer{l: l, comp: comp, t0: time.Now()}
}

// StartWith 记录带 doc_id/block_id 的 start。
func (l *Logger) StartWith(comp, msg, docID, block string) *Timer {
	if l == nil {
		return nil
	}
	l.z.Info(msg, l.fields(comp, "start", zap.String("doc_id", docID), zap.String("block_id", block))...)
	return &Timer{l: l, comp: comp, docID: docID, block: block, t0: time.Now()}
}

// Error 记录 error 事件（不采样）。
func (l *Logger) Error(comp string, code Code, msg string, err error) {
	if l == nil {
		return
	}
	l.z.Error(msg, l.fields(comp, "error", zap.String("code", string(code)), zap.Error(err))...)
	IncOp(comp, "error", "error")
	if code != CodeUnknown {
		IncError(comp, string(code))
	}
}

// ErrorWith 支持 doc_id/block_id。
func (l *Logger) ErrorWith(comp string, code Code, msg string, err error, docID, block string) {
	if l == nil {
		return
	}
	l.z.Error(msg, l.fields(comp, "error",
		zap.String("code", string(code)), zap.Error(err),
		zap.String("doc_id", docID), zap.String("block_id", block))...)
	IncOp(comp, "error", "error")
	if code != CodeUnknown {
		IncError(comp, string(code))
	}
}

// Debug 输出调试级别事件（仅在 level=debug 时生效）。
func (l *Logger) Debug(comp, msg string, kv map[string]string) {
	if l == nil {
		return
	}
	fs := l.fields(comp, "start")
	for k, v := range kv {
		fs = append(fs, zap.String(k, v))
	}
	l.z.Debug(msg, fs...)
}

// Timer 用于 start→finish 计时。
type Timer struct {
	l     *Logger
	comp  string
	docID string
	block string
	t0    time.Time
}

// Finish 记录 finish；可选 count。
func (t *Timer) Finish(msg string, count int64) {
	if t == nil || t.l == nil {
		return
	}
	dur := time.Since(t.t0).Milliseconds()
	t.l.z.Info(msg, t.l.fields(t.comp, "finish",
		zap.Int64("dur_ms", dur), zap.Int64("count", count),
		zap.String("doc_id", t.docID), zap.String("block_id", t.block))...)
	IncOp(t.comp, "finish", "success")
	ObserveDuration(t.comp, "finish", dur)
}
