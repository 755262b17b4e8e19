package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"github.com/BaSui01/skillflow/config"
	"github.com/BaSui01/skillflow/skill"
	"github.com/BaSui01/skillflow/skill/event"
)

// =============================================================================
// ▶️ run 命令：在终端执行一次技能，事件逐行输出为 JSON
// =============================================================================

func runSkill(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	name := fs.String("skill", "commonQnA", "Skill to invoke")
	query := fs.String("query", "", "User query (defaults to the remaining arguments)")
	locale := fs.String("locale", "", "Output locale")
	var sets configFlags
	fs.Var(&sets, "set", "Skill config value as key=value (repeatable)")
	_ = fs.Parse(args)

	q := *query
	if q == "" {
		q = strings.Join(fs.Args(), " ")
	}

	loader := config.NewLoader()
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 标准输出留给事件流
	cfg.Log.OutputPaths = []string{"stderr"}
	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := NewServer(cfg, logger)
	defer srv.Shutdown()
	if err := srv.Init(ctx); err != nil {
		logger.Error("Failed to initialize", zap.Error(err))
		os.Exit(1)
	}

	out, err := invokeOnce(ctx, srv.Registry(), os.Stdout, *name, &skill.Input{Query: q}, &skill.RunConfig{
		Locale:  *locale,
		Models:  cfg.LLM.ModelMap(),
		Runtime: skill.DefaultRuntimeFlags(),
		Config:  sets.values(),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invocation failed: %v\n", err)
		os.Exit(1)
	}
	logger.Info("invocation finished", zap.String("run_id", out.RunID), zap.Int("steps", out.Steps))
}

// invokeOnce 执行技能并把每个事件写成一行 JSON
func invokeOnce(ctx context.Context, registry *skill.Registry, w io.Writer, name string, in *skill.Input, cfg *skill.RunConfig) (*skill.Output, error) {
	var mu sync.Mutex
	enc := json.NewEncoder(w)
	cfg.Emitter = event.EmitterFunc(func(_ context.Context, ev event.Event) {
		mu.Lock()
		defer mu.Unlock()
		_ = enc.Encode(ev)
	})
	return registry.Invoke(ctx, name, in, cfg)
}

// configFlags 收集重复的 --set key=value。
// true/false 解析为布尔值，其余保持字符串。
type configFlags []string

func (c *configFlags) String() string { return strings.Join(*c, ",") }

func (c *configFlags) Set(v string) error {
	if !strings.Contains(v, "=") {
		return fmt.Errorf("expected key=value, got %q", v)
	}
	*c = append(*c, v)
	return nil
}

func (c configFlags) values() map[string]any {
	if len(c) == 0 {
		return nil
	}
	out := make(map[string]any, len(c))
	for _, kv := range c {
		k, v, _ := strings.Cut(kv, "=")
		switch v {
		case "true":
			out[k] = true
		case "false":
			out[k] = false
		default:
			out[k] = v
		}
	}
	return out
}
