package terminal

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/agentdesk/delivery"
	"github.com/BaSui01/agentdesk/hitl"
)

// CancelCommand 取消当前请求的输入。
const CancelCommand = ":cancel"

// MaxLineBytes 是单行输入的上限，超出的行被丢弃并提示重新输入。
const MaxLineBytes = 1 << 20

// Command 是一行用户输入解析后的动作。
type Command struct {
	Cancel bool
	Input  delivery.Input
}

// ParseInput 按请求的输入形式解析一行用户输入。
// 返回错误时表示输入无效，请求保持展示状态。
func ParseInput(req *hitl.Request, line string) (Command, error) {
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == CancelCommand {
		return Command{Cancel: true}, nil
	}

	switch delivery.AffordanceFor(req.Kind) {
	case delivery.AffordanceText:
		return Command{Input: delivery.Input{Text: line}}, nil

	case delivery.AffordanceExternal:
		if strings.EqualFold(strings.TrimSpace(line), "done") {
			return Command{}, nil
		}
		return Command{}, fmt.Errorf("type 'done' once you have finished")

	case delivery.AffordanceToggle:
		return Command{Input: delivery.Input{Toggle: parseYes(line)}}, nil

	case delivery.AffordanceChoice:
		choice := strings.TrimSpace(line)
		if choice == "" {
			return Command{}, nil
		}
		if n, err := strconv.Atoi(choice); err == nil {
			if n < 1 || n > len(req.Options) {
				return Command{}, fmt.Errorf("choose a number between 1 and %d", len(req.Options))
			}
			opt := req.Options[n-1]
			return Command{Input: delivery.Input{Choice: &opt}}, nil
		}
		for _, opt := range req.Options {
			if opt == choice {
				picked := opt
				return Command{Input: delivery.Input{Choice: &picked}}, nil
			}
		}
		return Command{}, fmt.Errorf("%q is not one of the options", choice)

	default:
		return Command{}, nil
	}
}

func parseYes(line string) bool {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "yes", "y", "true", "t", "1":
		return true
	default:
		return false
	}
}

// Controller 是终端输入驱动的投递循环。
type Controller interface {
	Snapshot() delivery.State
	Submit(requestID string, in delivery.Input) bool
	Cancel(requestID string) bool
}

// Attend 逐行读取用户输入并交给当前展示的请求，直到输入结束或 ctx 结束。
func Attend(ctx context.Context, in io.Reader, ctl Controller, renderer delivery.Renderer, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "terminal_input"))

	lines := make(chan inputLine)
	errs := make(chan error, 1)
	go func() {
		reader := bufio.NewReader(in)
		for {
			line, err := readLine(reader, MaxLineBytes)
			if err != nil {
				if errors.Is(err, io.EOF) {
					err = nil
				}
				errs <- err
				return
			}
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errs:
			return err
		case line := <-lines:
			if line.tooLong {
				renderer.Status(delivery.StatusMessage{
					Level: delivery.StatusWarn,
					Text:  fmt.Sprintf("input longer than %d bytes was ignored, try again", MaxLineBytes),
				})
				continue
			}
			handleLine(ctl, renderer, logger, line.text)
		}
	}
}

type inputLine struct {
	text    string
	tooLong bool
}

// readLine 读取一行（不含行尾），超过 max 的部分被丢弃并标记 tooLong。
// 最后一行没有换行符时照常返回，随后的调用返回 io.EOF。
func readLine(r *bufio.Reader, max int) (inputLine, error) {
	var (
		buf     []byte
		tooLong bool
		read    bool
	)
	for {
		chunk, err := r.ReadSlice('\n')
		if len(chunk) > 0 {
			read = true
		}
		if !tooLong {
			buf = append(buf, chunk...)
			// 预留 \r\n
			if len(buf) > max+2 {
				tooLong = true
				buf = nil
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if err != nil && !(errors.Is(err, io.EOF) && read) {
			return inputLine{}, err
		}
		text := strings.TrimSuffix(string(buf), "\n")
		text = strings.TrimSuffix(text, "\r")
		if tooLong || len(text) > max {
			return inputLine{tooLong: true}, nil
		}
		return inputLine{text: text}, nil
	}
}

func handleLine(ctl Controller, renderer delivery.Renderer, logger *zap.Logger, line string) {
	state := ctl.Snapshot()
	if state.Phase != delivery.PhaseDisplaying || state.Current == nil {
		logger.Debug("input ignored, nothing awaiting an answer", zap.String("phase", state.Phase.String()))
		return
	}

	req := state.Current
	cmd, err := ParseInput(req, line)
	if err != nil {
		renderer.Status(delivery.StatusMessage{Level: delivery.StatusWarn, Text: err.Error()})
		return
	}
	if cmd.Cancel {
		ctl.Cancel(req.ID)
		return
	}
	ctl.Submit(req.ID, cmd.Input)
}
