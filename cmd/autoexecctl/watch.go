package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/betbot/autoexec/internal/domain"
	"github.com/betbot/autoexec/internal/execution"
	"github.com/betbot/autoexec/internal/monitoring"
)

const watchOrders = 10

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	badStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

// snapshot 一次刷新拉取的数据
type snapshot struct {
	status statusResponse
	orders []execution.HistoryEntry
	alerts []monitoring.Alert
	at     time.Time
}

type tickMsg time.Time

type snapshotMsg struct {
	snap snapshot
	err  error
}

// actionMsg 按键操作的结果提示
type actionMsg struct {
	text string
	err  error
}

// watchModel 控制面状态看板
type watchModel struct {
	ctx      context.Context
	c        *client
	interval time.Duration

	snap    *snapshot
	err     error
	notice  string
	loading bool
}

func newWatchModel(ctx context.Context, c *client, interval time.Duration) watchModel {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return watchModel{ctx: ctx, c: c, interval: interval, loading: true}
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(fetchCmd(m.ctx, m.c), tickCmd(m.interval))
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "r":
			m.loading = true
			return m, fetchCmd(m.ctx, m.c)
		case "t":
			return m, actionCmd(func() (string, error) {
				return "已触发一轮扫描", m.c.TriggerPass(m.ctx)
			})
		case "h":
			halted := m.snap != nil && m.snap.status.Engine.CircuitBreaker
			return m, actionCmd(func() (string, error) {
				st, err := m.c.SetTradingHalted(m.ctx, !halted)
				return fmt.Sprintf("下单熔断 open=%v", st.CircuitBreaker), err
			})
		case "s":
			running := m.snap != nil && m.snap.status.Executor != nil && m.snap.status.Executor.Running
			return m, actionCmd(func() (string, error) {
				st, err := m.c.SetExecutorRunning(m.ctx, !running)
				return fmt.Sprintf("执行器 running=%v", st.Running), err
			})
		}

	case tickMsg:
		return m, tea.Batch(fetchCmd(m.ctx, m.c), tickCmd(m.interval))

	case snapshotMsg:
		m.loading = false
		m.err = msg.err
		if msg.err == nil {
			s := msg.snap
			m.snap = &s
		}
		return m, nil

	case actionMsg:
		if msg.err != nil {
			m.notice = badStyle.Render("操作失败: " + msg.err.Error())
		} else {
			m.notice = okStyle.Render(msg.text)
		}
		return m, fetchCmd(m.ctx, m.c)
	}
	return m, nil
}

func (m watchModel) View() string {
	if m.snap == nil {
		if m.err != nil {
			return fmt.Sprintf("错误: %v\n\n按 q 退出", m.err)
		}
		return "正在连接控制面...\n\n按 q 退出"
	}
	st := m.snap.status
	var b strings.Builder

	state := okStyle.Render("正常")
	if m.err != nil {
		state = badStyle.Render("刷新失败: " + m.err.Error())
	}
	b.WriteString(headerStyle.Render(fmt.Sprintf("autoexec | uptime %s | 更新于 %s", st.Uptime, m.snap.at.Format("15:04:05"))))
	b.WriteString(" " + state + "\n\n")

	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, enginePanel(st), "  ", executorPanel(st)))
	b.WriteString("\n\n")
	b.WriteString(ordersPanel(m.snap.orders))
	b.WriteString("\n")
	b.WriteString(alertsPanel(m.snap.alerts))
	b.WriteString("\n")
	if m.notice != "" {
		b.WriteString(m.notice + "\n")
	}
	b.WriteString(dimStyle.Render("q 退出 · r 刷新 · t 触发扫描 · s 启停执行器 · h 熔断/恢复下单"))
	return b.String()
}

func enginePanel(st statusResponse) string {
	e := st.Engine
	breaker := okStyle.Render("closed")
	if e.CircuitBreaker {
		breaker = badStyle.Render("OPEN")
	}
	lines := []string{
		titleStyle.Render("执行引擎"),
		fmt.Sprintf("gateways      %s", strings.Join(e.Gateways, ",")),
		fmt.Sprintf("active orders %d", e.ActiveOrders),
		fmt.Sprintf("history       %d", e.OrderHistorySize),
		fmt.Sprintf("daily notional %s", e.Risk.DailyNotional.StringFixed(2)),
		fmt.Sprintf("large orders  %d (>= %.2f)", e.LargeOrders.MemoryCount, e.LargeOrders.Threshold),
		"breaker       " + breaker,
	}
	return panelStyle.Render(strings.Join(lines, "\n"))
}

func executorPanel(st statusResponse) string {
	lines := []string{titleStyle.Render("策略执行器")}
	x := st.Executor
	if x == nil {
		lines = append(lines, dimStyle.Render("未配置"))
		return panelStyle.Render(strings.Join(lines, "\n"))
	}
	running := badStyle.Render("stopped")
	if x.Running {
		running = okStyle.Render("running")
	}
	lines = append(lines,
		"state     "+running,
		fmt.Sprintf("markets   %d", len(x.Markets)),
		fmt.Sprintf("passes    %d", x.PassCount),
		fmt.Sprintf("cooldowns %d", len(x.Cooldowns)),
	)
	if x.LastPassAt != nil {
		lines = append(lines, "last pass "+x.LastPassAt.Local().Format(timeLayout))
	}
	if x.LastError != "" {
		lines = append(lines, badStyle.Render("error "+x.LastError))
	}
	return panelStyle.Render(strings.Join(lines, "\n"))
}

func ordersPanel(orders []execution.HistoryEntry) string {
	lines := []string{titleStyle.Render("最近订单")}
	if len(orders) == 0 {
		lines = append(lines, dimStyle.Render("暂无"))
	}
	for _, h := range orders {
		status := string(h.Result.Status)
		switch h.Result.Status {
		case domain.OrderStatusRejected, domain.OrderStatusError:
			status = badStyle.Render(status)
		case domain.OrderStatusFilled, domain.OrderStatusSubmitted:
			status = okStyle.Render(status)
		}
		lines = append(lines, fmt.Sprintf("%s  %-24s %-16s %-4s %8.2f  %s",
			h.Timestamp.Local().Format(timeLayout), h.Order.OrderID, h.Order.Instrument.Symbol,
			h.Order.Side, h.Order.Quantity, status))
	}
	return panelStyle.Render(strings.Join(lines, "\n"))
}

func alertsPanel(alerts []monitoring.Alert) string {
	if len(alerts) == 0 {
		return okStyle.Render("无未解决告警")
	}
	lines := []string{badStyle.Render(fmt.Sprintf("未解决告警 %d", len(alerts)))}
	for i, a := range alerts {
		if i == 3 {
			lines = append(lines, dimStyle.Render(fmt.Sprintf("... 另有 %d 条", len(alerts)-3)))
			break
		}
		lines = append(lines, fmt.Sprintf("[%s] %s %s", a.Level, a.Type, a.Message))
	}
	return strings.Join(lines, "\n")
}

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// fetchCmd 拉取状态、最近订单与告警；告警未配置时忽略
func fetchCmd(ctx context.Context, c *client) tea.Cmd {
	return func() tea.Msg {
		st, err := c.Status(ctx)
		if err != nil {
			return snapshotMsg{err: err}
		}
		orders, err := c.Orders(ctx, watchOrders)
		if err != nil {
			return snapshotMsg{err: err}
		}
		snap := snapshot{status: st, orders: orders, at: time.Now()}
		if st.Alerts != nil {
			if alerts, err := c.Alerts(ctx, ""); err == nil {
				snap.alerts = alerts
			}
		}
		return snapshotMsg{snap: snap}
	}
}

func actionCmd(fn func() (string, error)) tea.Cmd {
	return func() tea.Msg {
		text, err := fn()
		return actionMsg{text: text, err: err}
	}
}

// runWatch 全屏看板，阻塞到用户退出
func runWatch(ctx context.Context, c *client, interval time.Duration) error {
	p := tea.NewProgram(newWatchModel(ctx, c, interval), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
