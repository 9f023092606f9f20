package terminal

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/BaSui01/agentdesk/delivery"
	"github.com/BaSui01/agentdesk/hitl"
)

const defaultWidth = 78

// Renderer 在终端中展示交互请求。
type Renderer struct {
	mu     sync.Mutex
	out    io.Writer
	styles styles
}

// NewRenderer 创建终端渲染器。width <= 0 时使用默认宽度。
func NewRenderer(out io.Writer, width int) *Renderer {
	if width <= 0 {
		width = defaultWidth
	}
	return &Renderer{
		out:    out,
		styles: newStyles(lipgloss.NewRenderer(out), width),
	}
}

// Show 以边框盒子展示请求及其输入提示。
func (r *Renderer) Show(req *hitl.Request, affordance delivery.Affordance) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.styles
	lines := []string{
		s.header.Render("AGENT NEEDS YOUR HELP"),
		"",
		s.prompt.Render(req.Prompt),
	}
	if req.Description != "" {
		lines = append(lines, "", s.description.Render(req.Description))
	}
	if url, ok := req.Metadata["url"].(string); ok && url != "" {
		lines = append(lines, "", s.description.Render("Open: "+url))
	}
	if affordance == delivery.AffordanceChoice {
		lines = append(lines, "")
		for i, opt := range req.Options {
			lines = append(lines, s.option.Render(fmt.Sprintf("%d. %s", i+1, opt)))
		}
	}
	lines = append(lines, "", s.hint.Render(Hint(req, affordance)))

	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, s.box.Render(strings.Join(lines, "\n")))
	fmt.Fprint(r.out, "> ")
}

// Clear 在请求结束后输出分隔行。
func (r *Renderer) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.out, r.styles.muted.Render(strings.Repeat("─", 40)))
}

// Status 输出带样式的状态行。
func (r *Renderer) Status(msg delivery.StatusMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var (
		style  lipgloss.Style
		prefix string
	)
	switch msg.Level {
	case delivery.StatusError:
		style, prefix = r.styles.err, "✗"
	case delivery.StatusWarn:
		style, prefix = r.styles.warn, "!"
	default:
		style, prefix = r.styles.info, "✓"
	}
	fmt.Fprintln(r.out, style.Render(prefix+" "+msg.Text))
}

// Hint 返回输入形式对应的操作提示。
func Hint(req *hitl.Request, affordance delivery.Affordance) string {
	var hint string
	switch affordance {
	case delivery.AffordanceText:
		hint = "Type your answer and press Enter"
	case delivery.AffordanceExternal:
		hint = "Complete the step outside this window, then type 'done'"
	case delivery.AffordanceToggle:
		hint = "Confirm? (yes/no)"
	case delivery.AffordanceChoice:
		if len(req.Options) == 0 {
			hint = "No options offered, press Enter to continue"
		} else {
			hint = fmt.Sprintf("Choose 1-%d (or type the option), Enter for no choice", len(req.Options))
		}
	default:
		hint = "Press Enter to acknowledge"
	}
	return hint + "  [" + CancelCommand + " to cancel]"
}
