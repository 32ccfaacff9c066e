package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dd0wney/cluso-bfi/pkg/bfi"
	"github.com/dd0wney/cluso-bfi/pkg/keymap"
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF00FF")).
			MarginLeft(2).
			MarginTop(1)

	activeTabStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#FF00FF")).
			Padding(0, 2)

	inactiveTabStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#666666")).
				Padding(0, 2)

	contentStyle = lipgloss.NewStyle().
			MarginLeft(2).
			MarginTop(1)

	statsBoxStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#00FF00")).
			Padding(1, 2).
			MarginRight(2)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00FF00")).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			MarginTop(1).
			MarginLeft(2)
)

type view int

const (
	statView view = iota
	lookupView
	viewCount
)

type keyMap struct {
	Tab   key.Binding
	Enter key.Binding
	Quit  key.Binding
}

var defaultKeys = keyMap{
	Tab: key.NewBinding(
		key.WithKeys("tab"),
		key.WithHelp("tab", "next view"),
	),
	Enter: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "lookup"),
	),
	Quit: key.NewBinding(
		key.WithKeys("ctrl+c", "esc"),
		key.WithHelp("esc", "quit"),
	),
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Tab, k.Enter, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Tab, k.Enter, k.Quit}}
}

type model struct {
	index       *bfi.Index
	keys        *keymap.Store
	currentView view
	input       textinput.Model
	results     table.Model
	help        help.Model
	bindings    keyMap
	width       int
	stat        bfi.Stat
	message     string
	messageErr  bool
}

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func initialModel(index *bfi.Index, pks *keymap.Store) model {
	ti := textinput.New()
	ti.Placeholder = "red square"
	ti.CharLimit = 512
	ti.Width = 60

	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Record", Width: 16},
			{Title: "Values", Width: 60},
		}),
		table.WithFocused(true),
		table.WithHeight(12),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("#00FFFF")).
		BorderBottom(true).
		Bold(true)
	t.SetStyles(s)

	m := model{
		index:    index,
		keys:     pks,
		input:    ti,
		results:  t,
		help:     help.New(),
		bindings: defaultKeys,
	}
	m.refresh()
	return m
}

func (m *model) refresh() {
	st, err := m.index.Stat()
	if err != nil {
		m.message, m.messageErr = err.Error(), true
		return
	}
	m.stat = st
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, tickCmd())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width

	case tickMsg:
		m.refresh()
		return m, tickCmd()

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.bindings.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.bindings.Tab):
			m.currentView = (m.currentView + 1) % viewCount
			if m.currentView == lookupView {
				m.input.Focus()
			} else {
				m.input.Blur()
			}
			return m, nil
		case key.Matches(msg, m.bindings.Enter):
			if m.currentView == lookupView {
				m.runLookup()
				return m, nil
			}
		}
	}

	if m.currentView == lookupView {
		m.input, cmd = m.input.Update(msg)
		var tcmd tea.Cmd
		m.results, tcmd = m.results.Update(msg)
		return m, tea.Batch(cmd, tcmd)
	}
	return m, nil
}

func (m *model) runLookup() {
	terms := strings.Fields(m.input.Value())
	start := time.Now()
	ids, err := m.index.Lookup(terms)
	if err != nil {
		m.message, m.messageErr = err.Error(), true
		return
	}
	elapsed := time.Since(start)

	rows := make([]table.Row, 0, len(ids))
	for _, id := range ids {
		values, err := m.index.Get(id)
		if err != nil {
			m.message, m.messageErr = err.Error(), true
			return
		}
		rows = append(rows, table.Row{m.label(id), strings.Join(values, " ")})
	}
	m.results.SetRows(rows)
	m.message = fmt.Sprintf("%d matches in %s", len(ids), elapsed.Round(time.Microsecond))
	m.messageErr = false
}

// label shows the primary key from the key table when there is one
func (m model) label(id bfi.ID) string {
	if m.keys != nil {
		if pk, ok := m.keys.Key(uint32(id)); ok {
			return pk
		}
	}
	return strconv.FormatUint(uint64(id), 10)
}

func (m model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	var s strings.Builder
	s.WriteString(titleStyle.Render("Bloom filter index: " + m.stat.Path))
	s.WriteString("\n\n")
	s.WriteString(m.renderTabs())
	s.WriteString("\n\n")

	switch m.currentView {
	case statView:
		s.WriteString(contentStyle.Render(m.renderStat()))
	case lookupView:
		s.WriteString(contentStyle.Render(m.input.View() + "\n\n" + m.results.View()))
	}

	if m.message != "" {
		s.WriteString("\n\n")
		if m.messageErr {
			s.WriteString(errorStyle.Render("x " + m.message))
		} else {
			s.WriteString(successStyle.Render(m.message))
		}
	}

	s.WriteString("\n\n")
	s.WriteString(helpStyle.Render(m.help.ShortHelpView(m.bindings.ShortHelp())))
	return s.String()
}

func (m model) renderTabs() string {
	tabs := []string{"Stat", "Lookup"}
	rendered := make([]string, 0, len(tabs))
	for i, tab := range tabs {
		if view(i) == m.currentView {
			rendered = append(rendered, activeTabStyle.Render(tab))
		} else {
			rendered = append(rendered, inactiveTabStyle.Render(tab))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, rendered...)
}

func (m model) renderStat() string {
	st := m.stat
	records := fmt.Sprintf(`Records
Live:       %d
Capacity:   %d
Free slots: %d`, st.Records, st.Capacity, st.FreeSlots)

	layout := fmt.Sprintf(`Layout
Version:    %d (%s)
Pages:      %d x %d slots
Slot size:  %d bytes
Signature:  %d bits, %d hashes
File size:  %d bytes`,
		st.Version, st.Addressing, st.Pages, st.RecordsPerPage, st.SlotSize,
		st.SignatureBits, st.Hashes, st.Size)

	return lipgloss.JoinHorizontal(lipgloss.Top,
		statsBoxStyle.Render(records),
		statsBoxStyle.Render(layout))
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: bfi-tui <file>\n")
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	opts := bfi.DefaultOptions()
	opts.ReadOnly = true
	opts.Create = false
	index, err := bfi.Open(flag.Arg(0), opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open index: %v\n", err)
		os.Exit(1)
	}
	defer index.Close()

	var pks *keymap.Store
	if index.Addressing() == bfi.SlotAddressed {
		pks, err = keymap.OpenStore(index.Path()+keymap.TableSuffix, nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open key table: %v\n", err)
			os.Exit(1)
		}
	}

	p := tea.NewProgram(initialModel(index, pks), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
