// dipex: 中世纪手稿缩写展开工具。
// 子命令：expand / train / review / models / ping / config。
package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"dipex/internal/expander"
	"dipex/pkg/contract"
)

var rootCmd = &cobra.Command{
	Use:           "dipex",
	Short:         "Expand abbreviated (diplomatic) transcriptions in TEI/PAGE XML",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file path (JSON); defaults to ./config.json if present")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level: debug/info/warn/error")
	rootCmd.AddCommand(expandCmd, trainCmd, reviewCmd, modelsCmd, pingCmd, configCmd)
}

var (
	flagConfig   string
	flagLogLevel string
)

func main() {
	// 在任何 ENV 读取前加载工作目录下的 .env（不覆盖已有 ENV）。
	_ = loadDotEnv(".env")
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
}

// exitCode: 0 成功；2 部分失败（文档已产出）；3 取消；其余 1。
func exitCode(err error) int {
	var pe *expander.PartialError
	if errors.As(err, &pe) {
		return 2
	}
	if errors.Is(err, contract.ErrCancelled) {
		return 3
	}
	return 1
}

// loadDotEnv 读取 KEY=VALUE 行写入进程环境；已存在的键不覆盖。
func loadDotEnv(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		eq := strings.IndexByte(line, '=')
		if eq <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:eq])
		val := strings.TrimSpace(line[eq+1:])
		val = strings.Trim(val, `"'`)
		if key == "" {
			continue
		}
		if _, exists := os.LookupEnv(key); !exists {
			_ = os.Setenv(key, val)
		}
	}
	return sc.Err()
}
