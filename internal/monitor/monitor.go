// Package monitor 终端只读监控：每秒从 OMS 刷新活跃订单、持仓、账户和最新行情。
package monitor

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/betbot/fxcore/internal/domain"
)

// Source 监控读取的数据
type Source interface {
	Ticks() []*domain.Tick
	Positions() []*domain.Position
	Accounts() []*domain.Account
	ActiveOrders(vtSymbol string) []*domain.Order
}

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15"))

	bidStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("2")) // 绿色

	askStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("1")) // 红色

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1)
)

type tickMsg time.Time

type snapshot struct {
	ticks     []*domain.Tick
	positions []*domain.Position
	accounts  []*domain.Account
	orders    []*domain.Order
	at        time.Time
}

type model struct {
	src      Source
	title    string
	interval time.Duration
	snap     snapshot
	width    int
}

func newModel(src Source, title string, interval time.Duration) model {
	m := model{src: src, title: title, interval: interval}
	m.snap = take(src)
	return m
}

func take(src Source) snapshot {
	s := snapshot{
		ticks:     src.Ticks(),
		positions: src.Positions(),
		accounts:  src.Accounts(),
		orders:    src.ActiveOrders(""),
		at:        time.Now(),
	}
	sort.Slice(s.ticks, func(i, j int) bool { return s.ticks[i].VtSymbol() < s.ticks[j].VtSymbol() })
	return s
}

func (m model) tickCmd() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Init() tea.Cmd {
	return m.tickCmd()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case tickMsg:
		m.snap = take(m.src)
		return m, m.tickCmd()
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("%s  %s", m.title, m.snap.at.Format("15:04:05"))))
	b.WriteString("\n\n")

	b.WriteString(borderStyle.Render(m.renderTicks()))
	b.WriteString("\n")
	b.WriteString(borderStyle.Render(m.renderOrders()))
	b.WriteString("\n")
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		borderStyle.Render(m.renderPositions()),
		borderStyle.Render(m.renderAccounts()),
	))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("按 q 退出"))
	return b.String()
}

func (m model) renderTicks() string {
	lines := []string{titleStyle.Render("行情")}
	if len(m.snap.ticks) == 0 {
		return strings.Join(append(lines, dimStyle.Render("暂无行情")), "\n")
	}
	for _, t := range m.snap.ticks {
		bid, ask := t.Bid(1), t.Ask(1)
		lines = append(lines, fmt.Sprintf("%-20s last %-12s %s %s",
			t.VtSymbol(), t.LastPrice.String(),
			bidStyle.Render(fmt.Sprintf("bid %s@%s", bid.Volume, bid.Price)),
			askStyle.Render(fmt.Sprintf("ask %s@%s", ask.Volume, ask.Price)),
		))
	}
	return strings.Join(lines, "\n")
}

func (m model) renderOrders() string {
	lines := []string{titleStyle.Render(fmt.Sprintf("活跃订单 (%d)", len(m.snap.orders)))}
	for _, o := range m.snap.orders {
		style := bidStyle
		if o.Direction == domain.DirectionShort {
			style = askStyle
		}
		lines = append(lines, fmt.Sprintf("%-28s %-16s %s %s/%s %s",
			o.VtOrderID(), o.VtSymbol(),
			style.Render(string(o.Direction)),
			o.Traded, o.Volume, o.Status))
	}
	return strings.Join(lines, "\n")
}

func (m model) renderPositions() string {
	lines := []string{titleStyle.Render("持仓")}
	for _, p := range m.snap.positions {
		lines = append(lines, fmt.Sprintf("%-20s %-6s %s (frozen %s)", p.VtSymbol(), p.Direction, p.Volume, p.Frozen))
	}
	return strings.Join(lines, "\n")
}

func (m model) renderAccounts() string {
	lines := []string{titleStyle.Render("账户")}
	for _, a := range m.snap.accounts {
		lines = append(lines, fmt.Sprintf("%-20s %s (可用 %s)", a.VtAccountID(), a.Balance, a.Available()))
	}
	return strings.Join(lines, "\n")
}

// Run 阻塞运行监控界面，ctx 取消或按 q 时返回
func Run(ctx context.Context, src Source, title string) error {
	p := tea.NewProgram(newModel(src, title, time.Second), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
