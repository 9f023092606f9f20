package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/agentdesk/client"
	"github.com/BaSui01/agentdesk/config"
	"github.com/BaSui01/agentdesk/delivery"
	"github.com/BaSui01/agentdesk/delivery/terminal"
)

var errInputClosed = errors.New("terminal input closed")

// =============================================================================
// 🙋 attend 命令：终端投递循环
// =============================================================================

func runAttend(args []string) error {
	fs := flag.NewFlagSet("attend", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	serverURL := fs.String("server", "", "Server address")
	interval := fs.Duration("interval", 0, "Poll interval")
	noPush := fs.Bool("no-push", false, "Disable websocket push")
	fs.Parse(args)

	_, cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *serverURL != "" {
		cfg.Delivery.ServerURL = *serverURL
	}
	if *interval > 0 {
		cfg.Delivery.PollInterval = *interval
	}
	if *noPush {
		cfg.Delivery.PushEnabled = false
	}

	// 终端被渲染器占用，日志写到 stderr
	if len(cfg.Log.OutputPaths) == 0 || cfg.Log.OutputPaths[0] == "stdout" {
		cfg.Log.OutputPaths = []string{"stderr"}
	}
	logger, _ := initLogger(cfg.Log)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return attend(ctx, cfg.Delivery, os.Stdin, os.Stdout, logger)
}

// attend 运行投递循环、推送监听与终端输入，任一退出则全部停止。
func attend(ctx context.Context, cfg config.DeliveryConfig, in io.Reader, out io.Writer, logger *zap.Logger) error {
	c := client.New(client.Config{
		BaseURL: cfg.ServerURL,
		Timeout: cfg.RequestTimeout,
	}, logger)
	renderer := terminal.NewRenderer(out, cfg.Width)
	loop := delivery.NewLoop(c, renderer, delivery.LoopConfig{
		PollInterval:   cfg.PollInterval,
		RequestTimeout: cfg.RequestTimeout,
	}, logger)

	logger.Info("attending interaction desk",
		zap.String("server", cfg.ServerURL),
		zap.Duration("poll_interval", cfg.PollInterval),
		zap.Bool("push", cfg.PushEnabled),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return loop.Run(gctx) })
	if cfg.PushEnabled {
		g.Go(func() error { return watchWithRetry(gctx, c, loop.Wake, cfg.PollInterval, logger) })
	}
	g.Go(func() error {
		err := terminal.Attend(gctx, in, loop, renderer, logger)
		if err != nil {
			return err
		}
		// 输入结束（EOF）视为操作员离开，停止其余协程
		return errInputClosed
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errInputClosed) {
		return err
	}
	return nil
}

// watchWithRetry 保持推送订阅。连接失败时退回纯轮询并在间隔后重连，
// 推送只是提前唤醒，从不影响正确性。
func watchWithRetry(ctx context.Context, c *client.Client, wake func(), backoff time.Duration, logger *zap.Logger) error {
	if backoff <= 0 {
		backoff = 2 * time.Second
	}
	for {
		err := c.Watch(ctx, wake)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			logger.Debug("push channel unavailable, polling only", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
	}
}
