// Package ui renders a terminal dashboard over the daemon RPC client:
// project stats, watcher status, and an interactive search view.
package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ccengram/ccengram/internal/daemon"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))
	sectionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	hitStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
)

// refreshInterval paces the stats poll.
const refreshInterval = 2 * time.Second

type view int

const (
	viewDashboard view = iota
	viewSearch
)

// Model is the bubbletea model for the dashboard.
type Model struct {
	client *daemon.Client
	cwd    string

	view    view
	spin    spinner.Model
	input   textinput.Model
	stats   map[string]any
	results []searchHit
	err     error
	width   int
}

type searchHit struct {
	Domain     string  `json:"domain"`
	ID         string  `json:"id"`
	Similarity float64 `json:"similarity"`
}

type statsMsg struct {
	stats map[string]any
	err   error
}

type searchMsg struct {
	results []searchHit
	err     error
}

type tickMsg struct{}

// New creates the dashboard model.
func New(client *daemon.Client, cwd string) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	input := textinput.New()
	input.Placeholder = "search code, memories, docs..."
	input.CharLimit = 200

	return Model{client: client, cwd: cwd, spin: sp, input: input}
}

// Init starts the spinner and the first stats fetch.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, m.fetchStats(), tick())
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg { return tickMsg{} })
}

func (m Model) fetchStats() tea.Cmd {
	return func() tea.Msg {
		var stats map[string]any
		err := m.client.Call(context.Background(), "project_stats", m.cwd, map[string]any{}, &stats)
		return statsMsg{stats: stats, err: err}
	}
}

func (m Model) runSearch(query string) tea.Cmd {
	return func() tea.Msg {
		var resp struct {
			Results []searchHit `json:"results"`
		}
		err := m.client.Call(context.Background(), "explore_search", m.cwd, map[string]any{
			"query": query,
			"scope": "all",
			"limit": 10,
		}, &resp)
		return searchMsg{results: resp.Results, err: err}
	}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.view == viewSearch && m.input.Focused() && msg.String() == "q" {
				break // let "q" type into the search box
			}
			return m, tea.Quit
		case "/":
			if m.view == viewDashboard {
				m.view = viewSearch
				m.input.Focus()
				return m, textinput.Blink
			}
		case "esc":
			m.view = viewDashboard
			m.input.Blur()
			return m, nil
		case "enter":
			if m.view == viewSearch {
				query := strings.TrimSpace(m.input.Value())
				if query != "" {
					return m, m.runSearch(query)
				}
			}
		}

	case statsMsg:
		m.stats, m.err = msg.stats, msg.err
		return m, nil

	case searchMsg:
		m.results, m.err = msg.results, msg.err
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.fetchStats(), tick())

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	if m.view == viewSearch {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View renders the active view.
func (m Model) View() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("ccengram"))
	sb.WriteString(dimStyle.Render("  " + m.cwd))
	sb.WriteString("\n\n")

	if m.err != nil {
		sb.WriteString(errorStyle.Render("error: " + m.err.Error()))
		sb.WriteString("\n\n")
	}

	switch m.view {
	case viewSearch:
		sb.WriteString(sectionStyle.Render("Search"))
		sb.WriteString("\n")
		sb.WriteString(m.input.View())
		sb.WriteString("\n\n")
		for _, r := range m.results {
			sb.WriteString(fmt.Sprintf("  %s %s %s\n",
				hitStyle.Render(fmt.Sprintf("%-6s", r.Domain)),
				dimStyle.Render(shortID(r.ID)),
				fmt.Sprintf("%.2f", r.Similarity)))
		}
		sb.WriteString(dimStyle.Render("\nenter: search  esc: back  ctrl+c: quit"))

	default:
		sb.WriteString(sectionStyle.Render("Project"))
		sb.WriteString("\n")
		if m.stats == nil {
			sb.WriteString(m.spin.View() + " loading...\n")
		} else {
			for _, key := range []string{"code_chunks", "memories", "doc_chunks"} {
				if v, ok := m.stats[key]; ok {
					sb.WriteString(fmt.Sprintf("  %-12s %v\n", key, v))
				}
			}
			if ws, ok := m.stats["watch_status"].(map[string]any); ok {
				sb.WriteString(fmt.Sprintf("  %-12s running=%v pending=%v\n",
					"watcher", ws["running"], ws["pending_changes"]))
			}
		}
		sb.WriteString(dimStyle.Render("\n/: search  q: quit"))
	}

	return sb.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Run starts the TUI program.
func Run(client *daemon.Client, cwd string) error {
	_, err := tea.NewProgram(New(client, cwd), tea.WithAltScreen()).Run()
	return err
}
