package cli

import (
	"context"
	"fmt"
	"sort"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	plugindomain "github.com/latticehq/lattice-cli/internal/core/domain/plugin"
	"github.com/latticehq/lattice-cli/internal/core/ports/plugins"
)

// DashboardFlags holds command-line flags for the dashboard command
type DashboardFlags struct {
	RefreshRate time.Duration
}

// newDashboardCommand creates the dashboard command
func newDashboardCommand() *cobra.Command {
	flags := &DashboardFlags{}

	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Live terminal view of plugin lifecycle state",
		Long: `Launch an interactive terminal dashboard showing every registered plugin,
its lifecycle status, and the current activation order. The view refreshes
from the workspace state file, so changes made by other lattice commands
show up live.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDashboard(cmd, flags)
		},
	}

	cmd.Flags().DurationVar(&flags.RefreshRate, "refresh", time.Second, "Refresh rate for live updates")

	return cmd
}

// runDashboard starts the terminal dashboard
func runDashboard(cmd *cobra.Command, flags *DashboardFlags) error {
	container, err := buildContainer(cmd.Context(), cmd)
	if err != nil {
		return err
	}

	model := newDashboardModel(cmd.Context(), container, flags)

	program := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("dashboard failed: %w", err)
	}

	return nil
}

// pluginRow is one plugin rendered in the dashboard table
type pluginRow struct {
	Name        string
	Version     string
	Status      plugindomain.Status
	Activations int
	LastChange  string
}

// dashboardModel holds the state for the Bubble Tea dashboard
type dashboardModel struct {
	ctx          context.Context
	container    *Container
	flags        *DashboardFlags
	rows         []pluginRow
	order        []string
	selectedRow  int
	paused       bool
	lastUpdate   time.Time
	windowWidth  int
	windowHeight int
	err          error
}

func newDashboardModel(ctx context.Context, container *Container, flags *DashboardFlags) dashboardModel {
	return dashboardModel{
		ctx:        ctx,
		container:  container,
		flags:      flags,
		lastUpdate: time.Now(),
	}
}

// Init implements the Bubble Tea init method
func (m dashboardModel) Init() tea.Cmd {
	return tea.Batch(
		m.tickCmd(),
		m.loadStateCmd(),
	)
}

// Update implements the Bubble Tea update method
func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.windowWidth = msg.Width
		m.windowHeight = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit

		case " ":
			m.paused = !m.paused
			return m, nil

		case "up", "k":
			if m.selectedRow > 0 {
				m.selectedRow--
			}
			return m, nil

		case "down", "j":
			if m.selectedRow < len(m.rows)-1 {
				m.selectedRow++
			}
			return m, nil

		case "r":
			return m, m.loadStateCmd()
		}

	case tickMsg:
		if !m.paused {
			return m, tea.Batch(m.tickCmd(), m.loadStateCmd())
		}
		return m, m.tickCmd()

	case stateLoadedMsg:
		m.rows = msg.rows
		m.order = msg.order
		m.lastUpdate = time.Now()
		if m.selectedRow >= len(m.rows) {
			m.selectedRow = 0
		}
		return m, nil

	case errMsg:
		m.err = msg.err
		return m, nil
	}

	return m, nil
}

// View implements the Bubble Tea view method
func (m dashboardModel) View() string {
	if m.err != nil {
		return fmt.Sprintf("Error: %v\n\nPress 'q' to quit", m.err)
	}

	header := m.renderHeader()
	table := m.renderPluginTable()
	order := m.renderOrder()
	footer := m.renderFooter()

	return lipgloss.JoinVertical(lipgloss.Left, header, table, order, footer)
}

func (m dashboardModel) renderHeader() string {
	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("86")).
		Render("🧩 Lattice Plugins")

	active := 0
	for _, row := range m.rows {
		if row.Status == plugindomain.StatusActive {
			active++
		}
	}

	summary := fmt.Sprintf("Plugins: %d | Active: %d", len(m.rows), active)

	status := "LIVE"
	statusStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("46"))
	if m.paused {
		status = "PAUSED"
		statusStyle = statusStyle.Foreground(lipgloss.Color("196"))
	}

	line1 := lipgloss.JoinHorizontal(lipgloss.Left,
		title, "  ", summary, "  ", statusStyle.Render(status),
	)

	line2 := fmt.Sprintf("Last update: %s | Refresh: %v",
		m.lastUpdate.Format("15:04:05"),
		m.flags.RefreshRate,
	)

	return lipgloss.JoinVertical(lipgloss.Left, line1, line2, "")
}

func (m dashboardModel) renderPluginTable() string {
	if len(m.rows) == 0 {
		return lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Render("\n  No plugins registered. Run 'lattice plugins sync' first.\n")
	}

	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("86")).
		Render(fmt.Sprintf("%-32s │ %-10s │ %-10s │ %-6s │ %s",
			"NAME", "VERSION", "STATUS", "ACTIV.", "LAST CHANGE"))

	rows := []string{header}
	for i, row := range m.rows {
		rowStyle := lipgloss.NewStyle()
		if i == m.selectedRow {
			rowStyle = rowStyle.Background(lipgloss.Color("240"))
		}

		line := fmt.Sprintf("%-32s │ %-10s │ %-10s │ %-6d │ %s",
			truncateString(row.Name, 32),
			truncateString(row.Version, 10),
			row.Status,
			row.Activations,
			row.LastChange,
		)

		rows = append(rows, rowStyle.Render(line))
	}

	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func (m dashboardModel) renderOrder() string {
	if len(m.order) == 0 {
		return ""
	}

	label := lipgloss.NewStyle().
		Foreground(lipgloss.Color("245")).
		Render("Activation order: " + joinLines(m.order))

	return "\n" + label
}

func (m dashboardModel) renderFooter() string {
	controls := lipgloss.NewStyle().
		Foreground(lipgloss.Color("245")).
		Render("Controls: [Space] Pause/Resume | [↑↓] Navigate | [r] Refresh | [q] Quit")

	return "\n" + controls
}

// tickMsg is sent every refresh interval
type tickMsg time.Time

func (m dashboardModel) tickCmd() tea.Cmd {
	return tea.Tick(m.flags.RefreshRate, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// stateLoadedMsg is sent when the state file has been re-read
type stateLoadedMsg struct {
	rows  []pluginRow
	order []string
}

// errMsg is sent when a refresh fails
type errMsg struct {
	err error
}

// loadStateCmd re-reads the workspace state file. The dashboard is a pure
// reader, so it goes through the store directly rather than holding the
// manager's registry stale in memory.
func (m dashboardModel) loadStateCmd() tea.Cmd {
	return func() tea.Msg {
		snapshot, err := m.container.Store.Load(m.ctx)
		if err != nil {
			return errMsg{err: fmt.Errorf("failed to load plugin state: %w", err)}
		}

		return stateLoadedMsg{
			rows:  snapshotRows(snapshot),
			order: append([]string(nil), snapshot.ActivationOrder...),
		}
	}
}

func snapshotRows(snapshot *plugins.Snapshot) []pluginRow {
	rows := make([]pluginRow, 0, len(snapshot.States))
	for _, rec := range snapshot.States {
		lastChange := "-"
		if rec.LastActivatedAt != nil {
			lastChange = rec.LastActivatedAt.Local().Format("15:04:05")
		}
		if rec.LastDeactivatedAt != nil && (rec.LastActivatedAt == nil || rec.LastDeactivatedAt.After(*rec.LastActivatedAt)) {
			lastChange = rec.LastDeactivatedAt.Local().Format("15:04:05")
		}

		rows = append(rows, pluginRow{
			Name:        rec.Name,
			Version:     rec.Version,
			Status:      rec.Status,
			Activations: rec.ActivationCount,
			LastChange:  lastChange,
		})
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].Name < rows[j].Name })
	return rows
}

// truncateString truncates a string to the specified length
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
