package replay

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fsnotify/fsnotify"
	"github.com/muesli/reflow/wordwrap"
)

var (
	pagerTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	pagerInfoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))
)

// Pager is an interactive terminal pager for task timelines.
type Pager struct {
	title string
}

// NewPager creates a pager with the given title.
func NewPager(title string) *Pager {
	return &Pager{title: title}
}

// Run shows static content until the user quits.
func (p *Pager) Run(content string) error {
	prog := tea.NewProgram(
		&pagerModel{title: p.title, content: content},
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)
	_, err := prog.Run()
	return err
}

// RunLive shows content that re-renders whenever the watched file changes.
func (p *Pager) RunLive(path string, render func() (string, error)) error {
	content, err := render()
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	prog := tea.NewProgram(
		&pagerModel{
			title:   p.title,
			content: content,
			live:    true,
			render:  render,
			watcher: watcher,
		},
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)
	_, err = prog.Run()
	return err
}

// refreshMsg is sent when the watched journal file changes.
type refreshMsg struct{}

type pagerModel struct {
	viewport viewport.Model
	title    string
	content  string
	wrapped  string
	ready    bool

	live    bool
	render  func() (string, error)
	watcher *fsnotify.Watcher

	searching   bool
	searchInput textinput.Model
	searchQuery string
	matches     []int
	matchIndex  int
}

func (m *pagerModel) Init() tea.Cmd {
	if m.live && m.watcher != nil {
		return m.waitForChange()
	}
	return nil
}

func (m *pagerModel) waitForChange() tea.Cmd {
	return func() tea.Msg {
		for {
			select {
			case event, ok := <-m.watcher.Events:
				if !ok {
					return nil
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					// Let the append settle before re-reading.
					time.Sleep(100 * time.Millisecond)
					return refreshMsg{}
				}
			case _, ok := <-m.watcher.Errors:
				if !ok {
					return nil
				}
			}
		}
	}
}

func (m *pagerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	if m.searching {
		if key, ok := msg.(tea.KeyMsg); ok {
			switch key.String() {
			case "enter":
				m.searchQuery = m.searchInput.Value()
				m.searching = false
				m.findMatches()
				m.jumpToMatch(0)
				return m, nil
			case "esc", "ctrl+c":
				m.searching = false
				m.clearSearch()
				return m, nil
			}
		}
		m.searchInput, cmd = m.searchInput.Update(msg)
		return m, cmd
	}

	switch msg := msg.(type) {
	case refreshMsg:
		if m.render != nil {
			if content, err := m.render(); err == nil {
				offset := m.viewport.YOffset
				m.content = content
				m.rewrap(m.viewport.Width)
				m.viewport.YOffset = offset
				if m.searchQuery != "" {
					m.findMatches()
				}
			}
		}
		cmds = append(cmds, m.waitForChange())

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "esc":
			if m.searchQuery != "" {
				m.clearSearch()
			} else {
				return m, tea.Quit
			}
		case "g":
			m.viewport.GotoTop()
		case "G":
			m.viewport.GotoBottom()
		case "f":
			if m.live {
				m.viewport.GotoBottom()
			}
		case "/":
			m.searching = true
			m.searchInput = textinput.New()
			m.searchInput.Placeholder = "Search..."
			m.searchInput.Focus()
			m.searchInput.CharLimit = 100
			m.searchInput.Width = 40
			return m, textinput.Blink
		case "n":
			if len(m.matches) > 0 {
				m.jumpToMatch((m.matchIndex + 1) % len(m.matches))
			}
		case "N":
			if len(m.matches) > 0 {
				m.jumpToMatch((m.matchIndex - 1 + len(m.matches)) % len(m.matches))
			}
		}

	case tea.WindowSizeMsg:
		const chromeHeight = 2 // header + footer
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-chromeHeight)
			m.viewport.YPosition = 1
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - chromeHeight
		}
		m.rewrap(msg.Width)
		if m.searchQuery != "" {
			m.findMatches()
		}
	}

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *pagerModel) rewrap(width int) {
	if width <= 0 {
		m.wrapped = m.content
	} else {
		m.wrapped = wordwrap.String(m.content, width)
	}
	m.viewport.SetContent(m.wrapped)
}

func (m *pagerModel) clearSearch() {
	m.searchQuery = ""
	m.matches = nil
	m.matchIndex = 0
}

func (m *pagerModel) findMatches() {
	m.matches = nil
	m.matchIndex = 0
	if m.searchQuery == "" {
		return
	}
	query := strings.ToLower(m.searchQuery)
	for i, line := range strings.Split(m.wrapped, "\n") {
		if strings.Contains(strings.ToLower(line), query) {
			m.matches = append(m.matches, i)
		}
	}
}

func (m *pagerModel) jumpToMatch(index int) {
	if index < 0 || index >= len(m.matches) {
		return
	}
	m.matchIndex = index
	offset := m.matches[index] - m.viewport.Height/2
	if offset < 0 {
		offset = 0
	}
	if limit := m.viewport.TotalLineCount() - m.viewport.Height; offset > limit && limit >= 0 {
		offset = limit
	}
	m.viewport.YOffset = offset
}

func (m *pagerModel) View() string {
	if !m.ready {
		return "\n  Loading..."
	}

	title := pagerTitleStyle.Render(m.title)
	pad := pagerInfoStyle.Render(strings.Repeat("─", maxInt(0, m.viewport.Width-lipgloss.Width(title))))
	header := lipgloss.JoinHorizontal(lipgloss.Center, title, pad)

	var footer string
	if m.searching {
		footer = warnStyle.Render("/") + m.searchInput.View()
	} else {
		help := " q: quit │ /: search │ n/N: next/prev │ g/G: top/bottom "
		if m.live {
			help = " " + successStyle.Render("● LIVE") + " │ q: quit │ /: search │ f: follow │ g/G: top/bottom "
		} else if len(m.matches) > 0 {
			help = fmt.Sprintf(" %s │ n/N: next/prev │ esc: clear ",
				warnStyle.Render(fmt.Sprintf("[%d/%d]", m.matchIndex+1, len(m.matches))))
		} else if m.searchQuery != "" {
			help = " " + errorStyle.Render("Pattern not found") + " │ /: search "
		}

		position := fmt.Sprintf(" %d%% ", m.scrollPercent())
		pad := strings.Repeat("─", maxInt(0, m.viewport.Width-lipgloss.Width(help)-lipgloss.Width(position)))
		footer = pagerInfoStyle.Render(help) + pagerInfoStyle.Render(pad) + pagerInfoStyle.Render(position)
	}

	return header + "\n" + m.viewport.View() + "\n" + footer
}

func (m *pagerModel) scrollPercent() int {
	scrollable := m.viewport.TotalLineCount() - m.viewport.Height
	if scrollable <= 0 {
		return 100
	}
	percent := m.viewport.YOffset * 100 / scrollable
	if percent > 100 {
		percent = 100
	}
	return percent
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
