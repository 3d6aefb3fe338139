package tui

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mqy/greetboard/page"
)

var (
	appStyle     = lipgloss.NewStyle().Padding(1, 2)
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4")).PaddingBottom(1)
	statusStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#5A5A5A")).PaddingTop(1)
	accountStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))
	labelStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	timeStyle    = lipgloss.NewStyle().Faint(true)
	inputStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	noticeStyles = map[page.NoticeKind]lipgloss.Style{
		page.NoticeUnavailable: lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87")).Bold(true),
		page.NoticeCancelled:   lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB86C")),
		page.NoticeFailed:      lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87")),
	}
)

var (
	keySend    = key.NewBinding(key.WithKeys("ctrl+s"), key.WithHelp("ctrl+s", "send"))
	keyRefresh = key.NewBinding(key.WithKeys("ctrl+r"), key.WithHelp("ctrl+r", "refresh"))
	keyConnect = key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "connect"))
	keyQuit    = key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit"))
)

// Views hands page views to the terminal program. Only the newest unread view is kept.
type Views struct {
	sync.Mutex
	v *page.View
	c chan struct{}
}

func NewViews() *Views {
	return &Views{c: make(chan struct{}, 1)}
}

// Push is the page's view callback.
func (s *Views) Push(v *page.View) {
	s.Lock()
	s.v = v
	s.Unlock()
	select {
	case s.c <- struct{}{}:
	default:
	}
}

type viewMsg struct {
	v *page.View
}

func (s *Views) wait() tea.Cmd {
	return func() tea.Msg {
		<-s.c
		s.Lock()
		defer s.Unlock()
		return viewMsg{v: s.v}
	}
}

type model struct {
	page  *page.Controller
	views *Views

	pass    textinput.Model
	input   textarea.Model
	feed    viewport.Model
	spinner spinner.Model

	view  *page.View
	sent  int
	ready bool
	width int
}

// Run shows the page in the terminal until the user quits or ctx is done.
func Run(ctx context.Context, c *page.Controller, views *Views) error {
	p := tea.NewProgram(newModel(c, views), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("error running program: %v", err)
	}
	return nil
}

func newModel(c *page.Controller, views *Views) model {
	pass := textinput.New()
	pass.Placeholder = "wallet passphrase"
	pass.EchoMode = textinput.EchoPassword
	pass.EchoCharacter = '*'
	pass.Focus()

	ta := textarea.New()
	ta.Placeholder = "Say hello..."
	ta.Prompt = "│ "
	ta.ShowLineNumbers = false
	ta.CharLimit = page.MaxInputLen
	ta.KeyMap.InsertNewline.SetEnabled(false)
	ta.SetWidth(50)
	ta.SetHeight(2)

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return model{
		page:    c,
		views:   views,
		pass:    pass,
		input:   ta,
		feed:    viewport.New(50, 10),
		spinner: sp,
		view:    &page.View{Remaining: page.MaxInputLen},
		width:   54,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, m.views.wait())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keyQuit):
			return m, tea.Quit
		case key.Matches(msg, keyRefresh):
			m.page.Refresh()
			return m, nil
		case !m.view.Connected():
			if key.Matches(msg, keyConnect) {
				if !m.view.Connecting {
					m.page.Connect(m.pass.Value())
					m.pass.Reset()
				}
				return m, nil
			}
			var cmd tea.Cmd
			m.pass, cmd = m.pass.Update(msg)
			return m, cmd
		case key.Matches(msg, keySend):
			m.page.SetInput(m.input.Value())
			m.page.Submit()
			return m, nil
		}

		if m.view.Submitting {
			return m, nil
		}
		before := m.input.Value()
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		if v := m.input.Value(); v != before {
			m.page.SetInput(v)
		}
		cmds = append(cmds, cmd)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.ready = true
		m.feed.Width = msg.Width - 6
		m.feed.Height = msg.Height - 14
		if m.feed.Height < 3 {
			m.feed.Height = 3
		}
		m.input.SetWidth(msg.Width - 8)
		m.feed.SetContent(formatFeed(m.view.Feed, m.feed.Width))

	case viewMsg:
		m.apply(msg.v)
		cmds = append(cmds, m.views.wait())

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	default:
		var cmd tea.Cmd
		m.feed, cmd = m.feed.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *model) apply(v *page.View) {
	if v == nil {
		return
	}
	if v.Connected() && !m.view.Connected() {
		m.pass.Blur()
		m.input.Focus()
	}
	if v.Sent != m.sent {
		m.sent = v.Sent
		m.input.Reset()
	}
	if v.Submitting {
		m.input.Blur()
	} else if v.Connected() {
		m.input.Focus()
	}
	m.view = v
	m.feed.SetContent(formatFeed(v.Feed, m.feed.Width))
}

func (m model) busy() string {
	switch {
	case m.view.Connecting:
		return m.spinner.View() + " connecting"
	case m.view.Submitting:
		return m.spinner.View() + " sending"
	case m.view.Loading:
		return m.spinner.View() + " loading"
	}
	return ""
}

func (m model) View() string {
	parts := []string{titleStyle.Render("greetboard")}

	if m.view.Connected() {
		parts = append(parts, "connected as "+accountStyle.Render(m.view.Short))
	} else {
		parts = append(parts, inputStyle.Render(m.pass.View()), statusStyle.Render("enter to connect your wallet"))
	}

	if n := m.view.Notice; n != nil {
		parts = append(parts, noticeStyles[n.Kind].Render(n.Text))
	}

	if m.view.Connected() {
		parts = append(parts,
			inputStyle.Render(m.input.View()),
			timeStyle.Render(fmt.Sprintf("%d characters left", m.view.Remaining)),
		)
	}

	parts = append(parts, m.feed.View())

	status := "ctrl+s send • ctrl+r refresh • ctrl+c quit"
	if b := m.busy(); b != "" {
		status = b + " • " + status
	}
	parts = append(parts, statusStyle.Render(status))

	return appStyle.Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

func formatFeed(items []page.Item, width int) string {
	if len(items) == 0 {
		return timeStyle.Render("No greetings yet.")
	}

	textWidth := width - 4
	if textWidth < 10 {
		textWidth = 10
	}

	var b strings.Builder
	for _, it := range items {
		head := fmt.Sprintf("%s [%s] %s %s",
			labelStyle.Render(fmt.Sprintf("#%d", it.Label)),
			it.Initials,
			accountStyle.Render(it.Short),
			timeStyle.Render(it.When))
		b.WriteString(head)
		b.WriteString("\n")
		b.WriteString(lipgloss.NewStyle().PaddingLeft(2).Width(textWidth).Render(it.Text))
		b.WriteString("\n\n")
	}
	return b.String()
}
