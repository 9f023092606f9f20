package terminal

import "github.com/charmbracelet/lipgloss"

var (
	colorCyan   = lipgloss.Color("#56B6C2")
	colorYellow = lipgloss.Color("#E5C07B")
	colorBlue   = lipgloss.Color("#61AFEF")
	colorGreen  = lipgloss.Color("#98C379")
	colorRed    = lipgloss.Color("#E06C75")
	colorMuted  = lipgloss.Color("#636B78")
	colorText   = lipgloss.Color("#ABB2BF")
)

// styles 绑定到具体输出的样式集合。
type styles struct {
	box         lipgloss.Style
	header      lipgloss.Style
	prompt      lipgloss.Style
	description lipgloss.Style
	option      lipgloss.Style
	hint        lipgloss.Style
	info        lipgloss.Style
	warn        lipgloss.Style
	err         lipgloss.Style
	muted       lipgloss.Style
}

func newStyles(r *lipgloss.Renderer, width int) styles {
	return styles{
		box: r.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(colorCyan).
			Padding(0, 1).
			Width(width),
		header:      r.NewStyle().Foreground(colorYellow).Bold(true),
		prompt:      r.NewStyle().Foreground(colorText).Bold(true),
		description: r.NewStyle().Foreground(colorBlue),
		option:      r.NewStyle().Foreground(colorText).PaddingLeft(2),
		hint:        r.NewStyle().Foreground(colorGreen),
		info:        r.NewStyle().Foreground(colorGreen),
		warn:        r.NewStyle().Foreground(colorYellow),
		err:         r.NewStyle().Foreground(colorRed).Bold(true),
		muted:       r.NewStyle().Foreground(colorMuted),
	}
}
