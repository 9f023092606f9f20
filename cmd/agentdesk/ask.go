package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/BaSui01/agentdesk/client"
	"github.com/BaSui01/agentdesk/hitl"
)

// askPollWait 是每次长轮询在服务端等待的时长
const askPollWait = 25 * time.Second

// stringList 收集可重复的命令行参数
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// =============================================================================
// ❓ ask 命令：Agent 侧创建请求并等待结果
// =============================================================================

func runAsk(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "Server address")
	kind := fs.String("type", string(hitl.KindTextInput), "Request type")
	prompt := fs.String("prompt", "", "Question shown to the operator")
	description := fs.String("description", "", "Additional context")
	timeout := fs.Duration("timeout", 0, "Cancel the request after this long (0 waits forever)")
	var options stringList
	fs.Var(&options, "option", "Selection option (repeatable)")
	fs.Parse(args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := client.New(client.Config{BaseURL: *serverURL}, nil)
	return ask(ctx, c, hitl.CreateOptions{
		Kind:        hitl.Kind(*kind),
		Prompt:      *prompt,
		Description: *description,
		Options:     options,
	}, *timeout, out)
}

// ask 创建请求并阻塞到终态，结果以 JSON 写出。
// 超时或中断时请求会被取消，不在挂起集合中残留。
func ask(ctx context.Context, c *client.Client, opts hitl.CreateOptions, timeout time.Duration, out io.Writer) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	id, err := c.Create(ctx, opts)
	if err != nil {
		return err
	}

	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	outcome, err := c.Await(waitCtx, id, askPollWait)
	if err != nil {
		if waitCtx.Err() != nil {
			cancelCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if cerr := c.Cancel(cancelCtx, id); cerr != nil && !errors.Is(cerr, hitl.ErrNotFound) {
				return fmt.Errorf("gave up waiting for %s, cancel failed: %w", id, cerr)
			}
			return fmt.Errorf("gave up waiting for %s: %w", id, waitCtx.Err())
		}
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(outcome)
}

// =============================================================================
// 🏥 健康检查命令
// =============================================================================

func runHealthCheck(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8080", "Server address")
	timeout := fs.Duration("timeout", 5*time.Second, "Request timeout")
	fs.Parse(args)

	return checkHealth(context.Background(), *addr, *timeout, out)
}

// checkHealth 查询 /ready，存储等依赖全部可用时输出 OK。
func checkHealth(ctx context.Context, addr string, timeout time.Duration, out io.Writer) error {
	c := client.New(client.Config{
		BaseURL:    addr,
		Timeout:    timeout,
		HTTPClient: &http.Client{Timeout: timeout},
	}, nil)
	if err := c.Ready(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	fmt.Fprintln(out, "OK")
	return nil
}
