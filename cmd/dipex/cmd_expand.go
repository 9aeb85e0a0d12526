package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"dipex/internal/blocks"
	"dipex/internal/catalog"
	"dipex/internal/compute"
	"dipex/internal/config"
	"dipex/internal/diag"
	"dipex/internal/examples"
	"dipex/internal/expander"
	"dipex/internal/learn"
	"dipex/pkg/contract"
	bmock "dipex/plugins/backend/mock"
	bremote "dipex/plugins/backend/remote"
)

var (
	expandFile     string
	expandText     string
	expandBatchDir string
	expandOut      string
	expandOutDir   string
	expandExamples string
	expandBackend  string
	expandModality string
	expandSchema   string
	expandModel    string
	expandConc     int
	expandRetries  int
	expandWholeDoc bool
	expandDryRun   bool
	expandLearn    bool
	expandFilesAPI bool
)

var expandCmd = &cobra.Command{
	Use:   "expand",
	Short: "Expand diplomatic abbreviations in one or more XML documents",
	RunE:  runExpand,
}

func init() {
	f := expandCmd.Flags()
	f.StringVar(&expandFile, "file", "", "single input XML file")
	f.StringVar(&expandText, "text", "", "raw XML string to process (writes to stdout)")
	f.StringVar(&expandBatchDir, "batch-dir", "", "process all .xml files under directory")
	f.StringVar(&expandOut, "out", "", "output path for --file/--text (default: <name>_expanded.xml)")
	f.StringVar(&expandOutDir, "out-dir", "", "output directory for --batch-dir")
	f.StringVar(&expandExamples, "examples", "", "examples JSON path (default: examples.json)")
	f.StringVar(&expandBackend, "backend", "", "backend: rules/local/remote/mock")
	f.StringVar(&expandModality, "modality", "", "expansion style: conservative/normalize/full/aggressive")
	f.StringVar(&expandSchema, "schema", "", "document schema: auto/tei/page")
	f.StringVar(&expandModel, "model", "", "model name (local or remote backend)")
	f.IntVar(&expandConc, "concurrency", 0, "max concurrent block requests")
	f.IntVar(&expandRetries, "max-retries", -1, "max retries for transient failures (0 disables)")
	f.BoolVar(&expandWholeDoc, "whole-document", false, "single-request whole-document mode (remote backend)")
	f.BoolVar(&expandDryRun, "dry-run", false, "run the full pipeline without a real backend; output equals input")
	f.BoolVar(&expandLearn, "learn", false, "stage newly observed pairs for review (remote backend)")
	f.BoolVar(&expandFilesAPI, "files-api", false, "upload the input document once as shared context (remote backend)")
}

func runExpand(cmd *cobra.Command, args []string) error {
	overlay := config.Config{
		Examples:      expandExamples,
		Backend:       expandBackend,
		Modality:      expandModality,
		Schema:        expandSchema,
		Concurrency:   expandConc,
		MaxRetries:    expandRetries,
		WholeDocument: expandWholeDoc,
		Learn:         expandLearn,
	}
	cfg, err := resolveConfig(overlay)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	defer logger.Sync()
	diag.EnableTerminal()

	modality, err := contract.ParseModality(cfg.Modality)
	if err != nil {
		return fmt.Errorf("modality %q: %w", cfg.Modality, err)
	}
	schema := blocks.Schema(cfg.Schema)
	switch schema {
	case blocks.SchemaAuto, blocks.SchemaTEI, blocks.SchemaPAGE:
	default:
		return fmt.Errorf("%w: unknown schema %q", contract.ErrInvalidInput, cfg.Schema)
	}

	store := examples.NewStore()
	set, _, err := loadRuleSet(store, cfg.Examples)
	if err != nil {
		return err
	}
	if len(set) == 0 && !expandDryRun {
		fmt.Fprintf(os.Stderr, "Warning: no examples loaded. Add pairs via `dipex train` or edit %s\n", cfg.Examples)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	inputs, err := collectInputs()
	if err != nil {
		return err
	}
	if expandDryRun {
		return dryRun(ctx, inputs, set, modality, schema, logger)
	}

	model := resolvedModel(cfg)
	override := map[string]any{}
	if expandModel != "" {
		override["model"] = expandModel
	}
	if cfg.Backend == "local" && compute.AggressiveLocal(ctx) {
		override["large_context"] = true
		if cfg.Concurrency <= 1 {
			cfg.Concurrency = compute.LocalConcurrency(true)
		}
	}
	backend, err := buildBackend(cfg, override)
	if err != nil {
		return err
	}

	var firstErr error
	for _, in := range inputs {
		if err := expandOne(ctx, in, backend, set, modality, schema, cfg, model, logger); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			fmt.Fprintf(os.Stderr, "%s: %v\n", in.name, err)
		}
	}
	return firstErr
}

// input: 一份待处理文档。
type input struct {
	name string // 日志/输出命名用
	path string // 磁盘来源；--text 时为空
	doc  []byte
	out  string // 输出路径；空表示 stdout
}

func collectInputs() ([]input, error) {
	switch {
	case expandText != "":
		return []input{{name: "(text)", doc: []byte(expandText), out: expandOut}}, nil
	case expandFile != "":
		doc, err := os.ReadFile(expandFile)
		if err != nil {
			return nil, err
		}
		out := expandOut
		if out == "" {
			out = derivedOut(expandFile, "")
		}
		return []input{{name: filepath.Base(expandFile), path: expandFile, doc: doc, out: out}}, nil
	case expandBatchDir != "":
		var ins []input
		err := filepath.WalkDir(expandBatchDir, func(path string, d os.DirEntry, err error) error {
			if err != nil || d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".xml") {
				return err
			}
			doc, rerr := os.ReadFile(path)
			if rerr != nil {
				return rerr
			}
			ins = append(ins, input{
				name: filepath.Base(path),
				path: path,
				doc:  doc,
				out:  derivedOut(path, expandOutDir),
			})
			return nil
		})
		if err != nil {
			return nil, err
		}
		sort.Slice(ins, func(i, j int) bool { return ins[i].path < ins[j].path })
		if len(ins) == 0 {
			return nil, fmt.Errorf("no .xml files under %s", expandBatchDir)
		}
		return ins, nil
	}
	return nil, fmt.Errorf("%w: provide one of --text, --file, --batch-dir", contract.ErrInvalidInput)
}

func derivedOut(in, outDir string) string {
	base := strings.TrimSuffix(filepath.Base(in), filepath.Ext(in)) + "_expanded.xml"
	if outDir != "" {
		return filepath.Join(outDir, base)
	}
	return filepath.Join(filepath.Dir(in), base)
}

// dryRun 走完整的定位/回插管线，但用回显后端代替真实扩展：
// 输出文档与输入逐字节一致，用于事先验证文档能被处理。
func dryRun(ctx context.Context, inputs []input, set contract.RuleSet, modality contract.Modality, schema blocks.Schema, logger *diag.Logger) error {
	backend, err := bmock.New(json.RawMessage(`{"response_mode":"echo"}`))
	if err != nil {
		return err
	}
	for _, in := range inputs {
		res, err := expander.Expand(ctx, in.doc, expander.Options{
			Backend:  backend,
			Modality: modality,
			Rules:    set,
			Schema:   schema,
			DocID:    in.name,
		}, logger)
		if err != nil {
			return fmt.Errorf("%s: %w", in.name, err)
		}
		fmt.Fprintf(os.Stderr, "%s: %d block(s)\n", in.name, len(res.Blocks))
		for _, b := range res.Blocks {
			excerpt := strings.TrimSpace(b.Text)
			if len(excerpt) > 60 {
				excerpt = excerpt[:60] + "…"
			}
			fmt.Fprintf(os.Stderr, "  %3d <%s> [%d:%d] %q\n", b.Index, b.Element, b.Start, b.End, excerpt)
		}
		if err := writeOut(in.out, res.Doc); err != nil {
			return err
		}
		if in.out != "" {
			fmt.Fprintf(os.Stderr, "Wrote %s (dry run, unchanged)\n", in.out)
		}
	}
	return nil
}

func expandOne(ctx context.Context, in input, backend contract.Backend, set contract.RuleSet, modality contract.Modality, schema blocks.Schema, cfg config.Config, model string, logger *diag.Logger) error {
	// Files API 会话：整输入作为共享上下文上传一次，结束时清理。
	if rb, ok := backend.(*bremote.Backend); ok && expandFilesAPI && in.path != "" {
		if err := rb.BeginFileSession(ctx, in.path); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: file upload failed, continuing without shared context: %v\n", err)
		} else {
			defer rb.CloseFileSession(context.WithoutCancel(ctx))
		}
	}

	res, runErr := expander.Expand(ctx, in.doc, expander.Options{
		Backend:       backend,
		Modality:      modality,
		Rules:         set,
		Schema:        schema,
		Concurrency:   cfg.Concurrency,
		MaxRetries:    cfg.MaxRetries,
		WholeDocument: cfg.WholeDocument,
		DocID:         in.name,
	}, logger)
	if res == nil {
		return runErr
	}

	if err := writeOut(in.out, res.Doc); err != nil {
		return err
	}
	if in.out != "" {
		fmt.Fprintf(os.Stderr, "Wrote %s\n", in.out)
	}

	if cfg.Learn && cfg.Backend == "remote" {
		stageLearned(res, set, model, in.path)
	}
	return runErr
}

// resolvedModel 解析本次生效的模型名：--model 旗标优先，
// 其次配置 options.remote 的 model，最后落到目录默认。
func resolvedModel(cfg config.Config) string {
	if expandModel != "" {
		return expandModel
	}
	if raw, ok := cfg.Options["remote"]; ok {
		var o struct {
			Model string `json:"model"`
		}
		if json.Unmarshal(raw, &o) == nil && o.Model != "" {
			return o.Model
		}
	}
	return catalog.DefaultModel
}

func writeOut(path string, doc []byte) error {
	if path == "" {
		_, err := os.Stdout.Write(doc)
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, doc, 0o644)
}

// stageLearned 从本次成功块提取新对，过质量闸后入复核队列。失败不致命。
func stageLearned(res *expander.Result, set contract.RuleSet, model, docPath string) {
	failed := make(map[int]bool, len(res.Failures))
	for _, f := range res.Failures {
		failed[f.Index] = true
	}
	var before, after []contract.Block
	for i, b := range res.Blocks {
		if failed[b.Index] || i >= len(res.Expanded) {
			continue
		}
		before = append(before, b)
		ab := b
		ab.Text = res.Expanded[i]
		after = append(after, ab)
	}
	pairs := learn.PairsToWordLevel(learn.DeriveBlockPairs(before, after))
	pairs = learn.ExcludeKnown(pairs, set)
	if len(pairs) == 0 {
		return
	}
	q, err := learn.OpenQueue("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: review queue unavailable: %v\n", err)
		return
	}
	n := q.Add(pairs, model, docPath, catalog.IsPro(model))
	if n > 0 {
		if err := q.Save(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: review queue save failed: %v\n", err)
			return
		}
		fmt.Fprintf(os.Stderr, "%d pair(s) staged for review (dipex review list).\n", n)
	}
}
