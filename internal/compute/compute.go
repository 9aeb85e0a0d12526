// 本地算力探测：高配 GPU + 市电供电时才放开激进的本地并发/上下文。
package compute

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"
)

const defaultVRAMThresholdMB = 8192

var memPattern = regexp.MustCompile(`(?i)(\d+)\s*(?:MiB|MB|M)\b`)

// parseBool 宽松解析环境开关；非法值返回 (false, false)。
func parseBool(s string) (val, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes":
		return true, true
	case "0", "false", "no":
		return false, true
	}
	return false, false
}

// AggressiveLocal 判定是否启用激进本地模式。
// 覆盖规则：
//
//	DIPEX_AGGRESSIVE_LOCAL=1/0      强制开/关
//	DIPEX_AGGRESSIVE_ON_BATTERY=1   电池供电下也允许（GPU 仍需达标）
func AggressiveLocal(ctx context.Context) bool {
	if v, ok := parseBool(os.Getenv("DIPEX_AGGRESSIVE_LOCAL")); ok {
		return v
	}
	if !OnACPower() {
		return false
	}
	threshold := defaultVRAMThresholdMB
	if s := strings.TrimSpace(os.Getenv("DIPEX_GPU_VRAM_MB")); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n >= 1024 {
			threshold = n
		}
	}
	return nvidiaVRAM(ctx, threshold) || amdVRAM(ctx, threshold)
}

// OnACPower 探测是否市电供电；未知按电池处理（保守）。
func OnACPower() bool {
	if v, ok := parseBool(os.Getenv("DIPEX_AGGRESSIVE_ON_BATTERY")); ok && v {
		return true
	}
	switch runtime.GOOS {
	case "darwin":
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		out, err := exec.CommandContext(ctx, "pmset", "-g", "batt").Output()
		return err == nil && strings.Contains(string(out), "AC Power")
	case "linux":
		for _, p := range []string{
			"/sys/class/power_supply/AC/online",
			"/sys/class/power_supply/AC0/online",
		} {
			if data, err := os.ReadFile(p); err == nil {
				return strings.TrimSpace(string(data)) == "1"
			}
		}
		// 无电源供给节点的台式机视为市电
		if matches, _ := filepath.Glob("/sys/class/power_supply/BAT*"); len(matches) == 0 {
			return true
		}
		return false
	}
	return false
}

func nvidiaVRAM(ctx context.Context, thresholdMB int) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, "nvidia-smi",
		"--query-gpu=memory.total", "--format=csv,noheader,nounits").Output()
	if err != nil {
		return false
	}
	for _, line := range strings.Split(string(out), "\n") {
		f := strings.Fields(strings.NewReplacer("MiB", "", "MB", "").Replace(line))
		if len(f) == 0 {
			continue
		}
		if n, err := strconv.Atoi(f[0]); err == nil && n >= thresholdMB {
			return true
		}
	}
	return false
}

func amdVRAM(ctx context.Context, thresholdMB int) bool {
	probes := [][]string{
		{"rocm-smi", "--showmeminfo", "vram"},
		{"/opt/rocm/bin/rocm-smi", "--showmeminfo", "vram"},
		{"amd-smi", "info", "-t"},
	}
	for _, argv := range probes {
		cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		out, err := exec.CommandContext(cctx, argv[0], argv[1:]...).Output()
		cancel()
		if err != nil {
			continue
		}
		for _, m := range memPattern.FindAllStringSubmatch(string(out), -1) {
			if n, err := strconv.Atoi(m[1]); err == nil && n >= thresholdMB {
				return true
			}
		}
	}
	if runtime.GOOS == "linux" {
		paths, _ := filepath.Glob("/sys/class/drm/card*/device/mem_info_vram_total")
		for _, p := range paths {
			data, err := os.ReadFile(p)
			if err != nil {
				continue
			}
			if b, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64); err == nil {
				if int(b/(1024*1024)) >= thresholdMB {
					return true
				}
			}
		}
	}
	return false
}

// LocalConcurrency 返回本地后端建议并发：激进模式取 CPU 数（上限 8），否则 1。
func LocalConcurrency(aggressive bool) int {
	if !aggressive {
		return 1
	}
	n := runtime.NumCPU()
	if n > 8 {
		n = 8
	}
	if n < 1 {
		n = 1
	}
	return n
}
