package main

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"dipex/internal/config"
	"dipex/internal/diag"
	"dipex/internal/examples"
	"dipex/pkg/contract"
	"dipex/pkg/registry"
)

// resolveConfig 按优先级装配运行配置：Defaults → 文件 → ENV → CLI 覆盖。
func resolveConfig(overlay config.Config) (config.Config, error) {
	cfg := config.Defaults()

	path := flagConfig
	var raw []byte
	if s := os.Getenv("DIPEX_CONFIG_JSON"); s != "" {
		raw = []byte(s)
	}
	if path == "" {
		if s := os.Getenv("DIPEX_CONFIG_FILE"); s != "" {
			path = s
		}
	}
	if path == "" && len(raw) == 0 {
		if _, err := os.Stat("config.json"); err == nil {
			path = "config.json"
		}
	}
	if path != "" || len(raw) > 0 {
		base, err := config.LoadJSON(path, raw)
		if err != nil {
			return cfg, fmt.Errorf("config: %w", err)
		}
		cfg = config.Merge(cfg, base)
	}
	cfg = config.Merge(cfg, config.EnvOverlay(os.Environ()))
	cfg = config.Merge(cfg, overlay)
	if flagLogLevel != "" {
		cfg.Logging.Level = flagLogLevel
	}
	return cfg, nil
}

func newLogger(cfg config.Config) *diag.Logger {
	return diag.NewLogger(genCorrID(), cfg.Logging.Level)
}

func genCorrID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// loadRuleSet 读取基准层与学习层并合并（基准优先，长形优先）。
// 学习层缺失不报错。
func loadRuleSet(store *examples.Store, path string) (contract.RuleSet, []contract.Pair, error) {
	curated, err := store.Load(path)
	if err != nil {
		return nil, nil, err
	}
	learned, err := store.Load(examples.LearnedPath(path))
	if err != nil {
		return nil, nil, err
	}
	return examples.Merge(curated, learned), curated, nil
}

// buildBackend 经注册表构造后端；override 不为空时注入/替换 options 的对应键。
func buildBackend(cfg config.Config, override map[string]any) (contract.Backend, error) {
	factory, ok := registry.Backend[cfg.Backend]
	if !ok {
		return nil, fmt.Errorf("%w: unknown backend %q", contract.ErrInvalidInput, cfg.Backend)
	}
	raw := cfg.Options[cfg.Backend]
	if len(override) > 0 {
		merged := map[string]any{}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &merged); err != nil {
				return nil, fmt.Errorf("options[%s]: %w", cfg.Backend, err)
			}
		}
		for k, v := range override {
			merged[k] = v
		}
		var err error
		raw, err = json.Marshal(merged)
		if err != nil {
			return nil, err
		}
	}
	return factory(raw)
}
