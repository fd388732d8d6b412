// Package tui provides a Bubble Tea terminal user interface for slooh-downloader.
package tui

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sloohtools/slooh-downloader/internal/batch"
	"github.com/sloohtools/slooh-downloader/internal/config"
	"github.com/sloohtools/slooh-downloader/internal/fetch"
	"github.com/sloohtools/slooh-downloader/internal/ledger"
	"github.com/sloohtools/slooh-downloader/internal/logging"
	"github.com/sloohtools/slooh-downloader/internal/model"
	"github.com/sloohtools/slooh-downloader/internal/organize"
	"github.com/sloohtools/slooh-downloader/internal/slooh"
)

// Styles for the TUI
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#6B8BFF")).
			MarginBottom(1)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#4ECDC4"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#95E1A3"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#A8DADC"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6C757D"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#4ECDC4")).
			Padding(1, 2)
)

// State represents the current UI state.
type State int

const (
	StateLogin State = iota
	StateConnecting
	StateDownloading
	StateComplete
	StateError
)

// runState is shared between the orchestrator's callback goroutines and
// the Bubble Tea update loop, which polls it on a tick.
type runState struct {
	mu       sync.Mutex
	progress model.Progress
	recent   []string
}

func (rs *runState) onProgress(p model.Progress) {
	rs.mu.Lock()
	rs.progress = p
	rs.mu.Unlock()
}

func (rs *runState) onTaskComplete(t *model.Task) {
	rs.note(fmt.Sprintf("✓ %s", t.Meta.ObjectName))
}

func (rs *runState) onTaskError(t *model.Task) {
	rs.note(fmt.Sprintf("✗ %s: %v", t.Meta.ObjectName, t.Err))
}

func (rs *runState) note(line string) {
	rs.mu.Lock()
	rs.recent = append(rs.recent, line)
	if len(rs.recent) > 10 {
		rs.recent = rs.recent[len(rs.recent)-10:]
	}
	rs.mu.Unlock()
}

func (rs *runState) snapshot() (model.Progress, []string) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	recent := make([]string, len(rs.recent))
	copy(recent, rs.recent)
	return rs.progress, recent
}

// Model is the Bubble Tea model for the TUI.
type Model struct {
	state    State
	username textinput.Model
	password textinput.Model
	spinner  spinner.Model
	progress progress.Model
	settings *config.Settings

	ctx    context.Context
	cancel context.CancelFunc

	orch  *batch.Orchestrator
	run   *runState
	stats model.SessionStats
	err   error

	// Options
	dryRun bool
	force  bool
	paused bool

	width  int
	height int
}

// NewModel creates a new TUI model.
func NewModel(settings *config.Settings) Model {
	user := textinput.New()
	user.Placeholder = "you@example.com"
	user.Focus()
	user.CharLimit = 200
	user.Width = 40
	user.SetValue(settings.Username)

	pass := textinput.New()
	pass.Placeholder = "password"
	pass.EchoMode = textinput.EchoPassword
	pass.CharLimit = 200
	pass.Width = 40
	pass.SetValue(settings.Password)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B8BFF"))

	prog := progress.New(progress.WithDefaultGradient())
	prog.Width = 50

	ctx, cancel := context.WithCancel(context.Background())

	return Model{
		state:    StateLogin,
		username: user,
		password: pass,
		spinner:  sp,
		progress: prog,
		settings: settings,
		ctx:      ctx,
		cancel:   cancel,
		run:      &runState{},
	}
}

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

// Message types
type (
	// LoginDoneMsg is sent when authentication finishes.
	LoginDoneMsg struct {
		Orch *batch.Orchestrator
		Err  error
	}

	// RunDoneMsg is sent when the batch run finishes.
	RunDoneMsg struct {
		Stats model.SessionStats
		Err   error
	}

	// TickMsg is for periodic progress updates.
	TickMsg struct{}
)

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.progress.Width = msg.Width - 20
		if m.progress.Width > 80 {
			m.progress.Width = 80
		}
		if m.progress.Width < 20 {
			m.progress.Width = 20
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.cancel()
			return m, tea.Quit

		case "esc":
			if m.state == StateLogin {
				return m, tea.Quit
			}
			if m.state == StateConnecting || m.state == StateDownloading {
				if m.orch != nil {
					m.orch.Cancel()
				}
				m.cancel()
			}

		case "tab":
			if m.state == StateLogin {
				if m.username.Focused() {
					m.username.Blur()
					m.password.Focus()
				} else {
					m.password.Blur()
					m.username.Focus()
				}
			}

		case "enter":
			if m.state == StateLogin && m.username.Value() != "" && m.password.Value() != "" {
				m.state = StateConnecting
				return m, tea.Batch(m.login(), m.spinner.Tick)
			}

		case "d":
			if m.state == StateLogin {
				m.dryRun = !m.dryRun
			}

		case "f":
			if m.state == StateLogin {
				m.force = !m.force
			}

		case "p":
			if m.state == StateDownloading && m.orch != nil {
				m.paused = !m.paused
				if m.paused {
					m.orch.Pause()
				} else {
					m.orch.Resume()
				}
			}

		case "q":
			if m.state == StateComplete || m.state == StateError {
				return m, tea.Quit
			}
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case LoginDoneMsg:
		if msg.Err != nil {
			m.state = StateError
			m.err = msg.Err
		} else {
			m.orch = msg.Orch
			m.state = StateDownloading
			cmds = append(cmds, m.startRun(), m.tickProgress())
		}

	case RunDoneMsg:
		m.stats = msg.Stats
		if msg.Err != nil && m.ctx.Err() == nil {
			m.state = StateError
			m.err = msg.Err
		} else if m.ctx.Err() != nil {
			m.state = StateError
			m.err = fmt.Errorf("cancelled by user")
		} else {
			m.state = StateComplete
		}

	case TickMsg:
		if m.state == StateDownloading {
			p, _ := m.run.snapshot()
			var percent float64
			if p.Total > 0 {
				percent = float64(p.Completed+p.Failed+p.Cancelled) / float64(p.Total)
			}
			cmds = append(cmds, m.progress.SetPercent(percent), m.tickProgress())
		}

	case progress.FrameMsg:
		progressModel, cmd := m.progress.Update(msg)
		m.progress = progressModel.(progress.Model)
		cmds = append(cmds, cmd)
	}

	// Update text inputs
	if m.state == StateLogin {
		var cmd tea.Cmd
		if m.username.Focused() {
			m.username, cmd = m.username.Update(msg)
		} else {
			m.password, cmd = m.password.Update(msg)
		}
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// tickProgress returns a command to tick progress updates.
func (m Model) tickProgress() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(_ time.Time) tea.Msg {
		return TickMsg{}
	})
}

// View renders the UI.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("🔭 Slooh Downloader"))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("Batch download your Slooh images"))
	b.WriteString("\n\n")

	switch m.state {
	case StateLogin:
		b.WriteString(m.viewLogin())
	case StateConnecting:
		b.WriteString(m.viewConnecting())
	case StateDownloading:
		b.WriteString(m.viewDownloading())
	case StateComplete:
		b.WriteString(m.viewComplete())
	case StateError:
		b.WriteString(m.viewError())
	}

	b.WriteString("\n")
	b.WriteString(dimStyle.Render(m.getHelpText()))

	return b.String()
}

func (m Model) viewLogin() string {
	var b strings.Builder

	b.WriteString(subtitleStyle.Render("Slooh account:"))
	b.WriteString("\n\n")
	b.WriteString("  " + m.username.View())
	b.WriteString("\n")
	b.WriteString("  " + m.password.View())
	b.WriteString("\n\n")

	dryRunCheck := "[ ]"
	if m.dryRun {
		dryRunCheck = "[×]"
	}
	forceCheck := "[ ]"
	if m.force {
		forceCheck = "[×]"
	}

	b.WriteString(infoStyle.Render("Options:"))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("  %s Dry run (d)\n", dryRunCheck))
	b.WriteString(fmt.Sprintf("  %s Force re-download (f)\n", forceCheck))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(fmt.Sprintf("Download path: %s", m.settings.BasePath)))
	b.WriteString("\n")

	return b.String()
}

func (m Model) viewConnecting() string {
	return m.spinner.View() + " " + subtitleStyle.Render("Logging in to Slooh...") + "\n"
}

func (m Model) viewDownloading() string {
	var b strings.Builder

	p, recent := m.run.snapshot()

	label := "Downloading"
	if m.paused {
		label = "Paused"
	}
	if p.BatchNumber > 0 {
		b.WriteString(subtitleStyle.Render(fmt.Sprintf("%s batch #%d (%d files)", label, p.BatchNumber, p.BatchSize)))
	} else {
		b.WriteString(m.spinner.View() + " " + subtitleStyle.Render("Scanning photoroll..."))
	}
	b.WriteString("\n\n")

	var percent float64
	if p.Total > 0 {
		percent = float64(p.Completed+p.Failed+p.Cancelled) / float64(p.Total)
	}
	b.WriteString(m.progress.ViewAs(percent))
	b.WriteString("\n")
	b.WriteString(infoStyle.Render(fmt.Sprintf(
		"Completed: %d/%d | Failed: %d | Active: %d",
		p.Completed, p.Total, p.Failed, p.Active,
	)))
	b.WriteString("\n\n")

	for _, line := range recent {
		style := dimStyle
		if strings.HasPrefix(line, "✗") {
			style = errorStyle
		}
		b.WriteString(style.Render(line))
		b.WriteString("\n")
	}

	return b.String()
}

func (m Model) viewComplete() string {
	headline := "✨ Download Complete!"
	if m.stats.DryRun {
		headline = "✨ Dry Run Complete!"
	}
	return boxStyle.Render(fmt.Sprintf(
		"%s\n\n"+
			"Scanned: %d\n"+
			"Already tracked: %d\n"+
			"Downloaded: %d\n"+
			"Failed: %d\n"+
			"Size: %.2f MB",
		headline,
		m.stats.Scanned,
		m.stats.AlreadyTracked,
		m.stats.Downloaded,
		m.stats.Failed,
		float64(m.stats.TotalBytes)/1024/1024,
	))
}

func (m Model) viewError() string {
	var b strings.Builder
	b.WriteString(errorStyle.Render("❌ Error occurred:"))
	b.WriteString("\n\n")
	if m.err != nil {
		b.WriteString(fmt.Sprintf("  %s", m.err.Error()))
	}
	return b.String()
}

func (m Model) getHelpText() string {
	switch m.state {
	case StateLogin:
		return "enter: start • tab: switch field • d: dry run • f: force • esc: quit"
	case StateConnecting:
		return "esc: cancel"
	case StateDownloading:
		return "p: pause/resume • esc: cancel"
	case StateComplete, StateError:
		return "q: quit"
	}
	return ""
}

// login authenticates and assembles the download pipeline.
func (m *Model) login() tea.Cmd {
	return func() tea.Msg {
		// The TUI owns the terminal; keep the pipeline's logging silent.
		log := logging.Nop()

		client := slooh.NewClient(m.settings.BaseURL, m.settings.Timeout(), log)
		if err := client.Login(m.ctx, m.username.Value(), m.password.Value()); err != nil {
			return LoginDoneMsg{Err: err}
		}

		lgr := ledger.New(m.settings.LedgerFile, log)
		if err := lgr.Load(); err != nil {
			return LoginDoneMsg{Err: err}
		}

		resolver := organize.NewResolver(
			m.settings.BasePath,
			m.settings.FolderTemplate,
			m.settings.FilenameTemplate,
			m.settings.UnknownObject,
			log,
		)

		httpClient := client.HTTP()
		newEngine := func(cb fetch.Callbacks) batch.Downloader {
			return fetch.NewEngine(httpClient, fetch.Config{
				WorkerCount:        m.settings.WorkerCount,
				MaxRetries:         m.settings.MaxRetries,
				RetryDelay:         m.settings.RetryDelay(),
				RateLimitPerMinute: m.settings.RateLimitPerMin,
				VerifyHash:         m.settings.VerifyHash,
			}, cb, log)
		}

		orch := batch.New(client, lgr, resolver, newEngine, m.settings, batch.Callbacks{
			OnProgress:     m.run.onProgress,
			OnTaskComplete: m.run.onTaskComplete,
			OnTaskError:    m.run.onTaskError,
		}, log)

		return LoginDoneMsg{Orch: orch}
	}
}

// startRun runs the batch download in the background.
func (m *Model) startRun() tea.Cmd {
	return func() tea.Msg {
		stats, err := m.orch.Run(m.ctx, batch.Options{
			DryRun: m.dryRun,
			Force:  m.force,
		})
		return RunDoneMsg{Stats: stats, Err: err}
	}
}

// Run starts the TUI application.
func Run(settings *config.Settings) error {
	p := tea.NewProgram(NewModel(settings), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
