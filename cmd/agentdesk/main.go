// =============================================================================
// AgentDesk 主入口
// =============================================================================
// 人机交互台：Agent 挂起请求，操作员在终端中逐个作答。
//
// 使用方法:
//
//	agentdesk serve                          # 启动交互台服务
//	agentdesk serve --config config.yaml     # 指定配置文件（变更时自动重载日志级别）
//	agentdesk attend --server http://host:8080
//	agentdesk ask --type confirmation --prompt "Deploy to prod?"
//	agentdesk health                         # 健康检查
//	agentdesk version                        # 显示版本信息
// =============================================================================

package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/agentdesk/config"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(os.Args[2:])
	case "attend":
		err = runAttend(os.Args[2:])
	case "ask":
		err = runAsk(os.Args[2:], os.Stdout)
	case "health":
		err = runHealthCheck(os.Args[2:], os.Stdout)
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

// loadConfig 加载并校验配置。返回的 Loader 供配置监听器复用。
func loadConfig(path string) (*config.Loader, *config.Config, error) {
	loader := config.NewLoader()
	if path != "" {
		loader = loader.WithConfigPath(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}
	return loader, cfg, nil
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion() {
	fmt.Printf("AgentDesk %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`AgentDesk - human-in-the-loop interaction desk

Usage:
  agentdesk <command> [options]

Commands:
  serve     Start the interaction desk server
  attend    Answer pending requests in this terminal
  ask       Create a request and wait for the answer
  health    Check server readiness
  version   Show version information
  help      Show this help message

Options for 'serve':
  --config <path>     Path to configuration file (YAML)

Options for 'attend':
  --config <path>     Path to configuration file (YAML)
  --server <url>      Server address (overrides delivery.server_url)
  --interval <dur>    Poll interval (overrides delivery.poll_interval)
  --no-push           Disable websocket push, rely on polling only

Options for 'ask':
  --server <url>      Server address
  --type <kind>       text_input, login, confirmation, selection, custom
  --prompt <text>     Question shown to the operator
  --description <t>   Additional context
  --option <value>    Selection option (repeatable)
  --timeout <dur>     Give up and cancel after this long (0 waits forever)

Examples:
  agentdesk serve --config /etc/agentdesk/config.yaml
  agentdesk attend --server http://localhost:8080
  agentdesk ask --type selection --prompt "Pick a region" --option eu --option us
  agentdesk health --addr http://localhost:8080
  agentdesk version`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

// initLogger 按配置构建 logger。返回的 AtomicLevel 可在配置重载时调整级别。
func initLogger(cfg config.LogConfig) (*zap.Logger, zap.AtomicLevel) {
	level := zap.NewAtomicLevelAt(parseLevel(cfg.Level))

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	zapConfig := zap.Config{
		Level:             level,
		Development:       encoding == "console",
		Encoding:          encoding,
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: true,
	}

	var opts []zap.Option
	if cfg.EnableStacktrace {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	logger, err := zapConfig.Build(opts...)
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}
	return logger, level
}

func parseLevel(s string) zapcore.Level {
	switch s {
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
