package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rmax-ai/facetgraph/pkg/client"
)

const (
	pollRate       = 2 * time.Second
	viewportHeight = 20
)

var (
	subtleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	cursorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			Width(100)

	paneStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1).
			Width(100)

	actionStyles = map[string]lipgloss.Style{
		"initial search":  lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		"modified search": lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		"trim":            lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		"restore":         lipgloss.NewStyle().Foreground(lipgloss.Color("99")),
	}
	defaultActionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
)

type tickMsg time.Time

type historyMsg struct {
	entries []client.HistoryEntry
	err     error
}

type restoredMsg struct {
	entryID string
	err     error
}

type model struct {
	api       *client.Client
	studyID   string
	sessionID string

	spinner  spinner.Model
	viewport viewport.Model
	entries  []client.HistoryEntry
	depth    map[string]int
	cursor   int
	status   string
	err      error
	ready    bool
}

func initialModel(api *client.Client, studyID, sessionID string) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return model{
		api:       api,
		studyID:   studyID,
		sessionID: sessionID,
		spinner:   s,
		viewport:  newViewport(100),
		depth:     make(map[string]int),
	}
}

func newViewport(width int) viewport.Model {
	vp := viewport.New(width, viewportHeight)
	vp.Style = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		PaddingRight(2)
	return vp
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.fetchHistory(),
		tick(),
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
			m.render()
		case "down", "j":
			if m.cursor < len(m.entries)-1 {
				m.cursor++
			}
			m.render()
		case "r":
			if m.sessionID != "" && m.cursor < len(m.entries) {
				cmds = append(cmds, m.restore(m.entries[m.cursor].ID))
			}
		default:
			m.viewport, cmd = m.viewport.Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)

	case spinner.TickMsg:
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case tickMsg:
		cmds = append(cmds, m.fetchHistory(), tick())

	case historyMsg:
		m.ready = true
		if msg.err != nil {
			m.err = msg.err
			break
		}
		m.err = nil
		m.setEntries(msg.entries)
		m.render()

	case restoredMsg:
		if msg.err != nil {
			m.status = errorStyle.Render(fmt.Sprintf("Restore failed: %v", msg.err))
		} else {
			m.status = okStyle.Render(fmt.Sprintf("Restored %s into session %s", msg.entryID, m.sessionID))
		}

	case tea.WindowSizeMsg:
		m.viewport.Width = msg.Width
		m.viewport.Height = viewportHeight
	}

	return m, tea.Batch(cmds...)
}

// setEntries keeps the cursor on the same entry across refreshes.
func (m *model) setEntries(entries []client.HistoryEntry) {
	var selected string
	if m.cursor < len(m.entries) {
		selected = m.entries[m.cursor].ID
	}
	m.entries = entries
	m.depth = make(map[string]int, len(entries))
	m.cursor = 0
	for i, e := range entries {
		if e.ParentID != "" {
			m.depth[e.ID] = m.depth[e.ParentID] + 1
		}
		if e.ID == selected {
			m.cursor = i
		}
	}
}

func (m *model) render() {
	var sb strings.Builder
	for i, e := range m.entries {
		style, ok := actionStyles[e.Action]
		if !ok {
			style = defaultActionStyle
		}
		marker := "  "
		if i == m.cursor {
			marker = cursorStyle.Render("> ")
		}
		line := fmt.Sprintf("%s%s%s %s %s",
			marker,
			strings.Repeat("  ", m.depth[e.ID]),
			style.Render(e.Action),
			subtleStyle.Render(string(e.GraphType)),
			subtleStyle.Render(fmt.Sprintf("%d nodes · %d edges · %d comments", e.NodeCount, e.EdgeCount, len(e.Comments))),
		)
		sb.WriteString(line + "\n")
	}
	m.viewport.SetContent(sb.String())
}

func (m model) detail() string {
	if m.cursor >= len(m.entries) {
		return subtleStyle.Render("No history yet.")
	}
	e := m.entries[m.cursor]
	var sb strings.Builder
	sb.WriteString(lipgloss.NewStyle().Bold(true).Underline(true).Render(e.Action) + "\n\n")
	sb.WriteString(fmt.Sprintf("Entry:      %s\n", e.ID))
	sb.WriteString(fmt.Sprintf("Session:    %s\n", e.SessionID))
	sb.WriteString(fmt.Sprintf("Created:    %s\n", e.CreatedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Dimensions: %s\n", strings.Join(e.Dimensions, ", ")))
	for _, c := range e.Comments {
		sb.WriteString(fmt.Sprintf("• %s: %s\n", c.Author, c.Body))
	}
	return sb.String()
}

func (m model) View() string {
	if !m.ready {
		return fmt.Sprintf("\n%s Loading history of %s...", m.spinner.View(), m.studyID)
	}

	header := headerStyle.Render(fmt.Sprintf("%s Study %s", m.spinner.View(), m.studyID))
	detailPane := paneStyle.Render(m.detail())

	var status string
	if m.err != nil {
		status = errorStyle.Render(fmt.Sprintf("Offline: %v", m.err))
	} else {
		status = okStyle.Render(fmt.Sprintf("Online • %d Entries", len(m.entries)))
	}
	if m.status != "" {
		status += "\n" + m.status
	}
	help := "↑/↓ select • q quit"
	if m.sessionID != "" {
		help = "↑/↓ select • r restore into " + m.sessionID + " • q quit"
	}
	footer := subtleStyle.Render(fmt.Sprintf("\n%s\n%s", status, help))

	return lipgloss.JoinVertical(lipgloss.Left, header, m.viewport.View(), detailPane, footer)
}

func (m model) fetchHistory() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), pollRate)
		defer cancel()
		entries, err := m.api.GetHistory(ctx, m.studyID)
		return historyMsg{entries: entries, err: err}
	}
}

func (m model) restore(entryID string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, err := m.api.Restore(ctx, m.studyID, entryID, m.sessionID)
		return restoredMsg{entryID: entryID, err: err}
	}
}

func tick() tea.Cmd {
	return tea.Tick(pollRate, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func main() {
	study := flag.String("study", "", "study to browse")
	session := flag.String("session", "", "session to restore entries into")
	endpoint := flag.String("url", os.Getenv("FACETGRAPH_URL"), "daemon URL")
	flag.Parse()

	if *study == "" {
		fmt.Println("Usage: facetgraph-tui -study <id> [-session <id>] [-url <daemon>]")
		os.Exit(1)
	}

	api := client.NewClient(*endpoint, client.WithBackoff(client.DefaultBackoff(), 0))
	p := tea.NewProgram(initialModel(api, *study, *session), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Printf("Alas, there's been an error: %v", err)
		os.Exit(1)
	}
}
