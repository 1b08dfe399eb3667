package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	spectrav1 "github.com/jamesainslie/spectra/pkg/api/spectra/v1"
	"github.com/jamesainslie/spectra/pkg/spectra/logging"
)

// Source is the daemon connection the monitor reads from and commands.
// *client.Client implements it.
type Source interface {
	Status(ctx context.Context) (*spectrav1.Status, error)
	PumpDown(ctx context.Context) (*spectrav1.Status, error)
	Operate(ctx context.Context) (*spectrav1.Status, error)
	Standby(ctx context.Context) (*spectrav1.Status, error)
	Vent(ctx context.Context) (*spectrav1.Status, error)
	StopAcquisition(ctx context.Context) error
	RecentLog(ctx context.Context, n int) ([]spectrav1.LogEntry, error)
	WatchEvents(ctx context.Context, sessionID string) (<-chan spectrav1.Event, error)
}

// Options configures the monitor.
type Options struct {
	Source Source
	// Refresh is the status polling interval.
	Refresh time.Duration
	// LogLines is how many daemon log entries the log pane keeps.
	LogLines int
	// Scans is how many recent scans are listed.
	Scans int
	// SessionID restricts scan events to one session.
	SessionID string
}

func (o Options) withDefaults() Options {
	if o.Refresh <= 0 {
		o.Refresh = time.Second
	}
	if o.LogLines <= 0 {
		o.LogLines = 200
	}
	if o.Scans <= 0 {
		o.Scans = 8
	}
	return o
}

type (
	statusMsg struct {
		status *spectrav1.Status
		err    error
	}
	logMsg struct {
		entries []spectrav1.LogEntry
		err     error
	}
	subscribedMsg struct {
		events <-chan spectrav1.Event
		err    error
	}
	eventMsg struct {
		event spectrav1.Event
		ok    bool
	}
	commandMsg struct {
		name   string
		status *spectrav1.Status
		err    error
	}
	tickMsg time.Time
)

// Model is the Bubble Tea model of the monitor.
type Model struct {
	opts   Options
	ctx    context.Context
	cancel context.CancelFunc

	status    *spectrav1.Status
	statusErr error
	events    <-chan spectrav1.Event
	live      bool
	scans     *ringBuffer[spectrav1.Event]
	finished  *spectrav1.Event
	logs      *LogViewerState

	pending     string
	message     string
	messageErr  bool
	confirmVent bool

	spinner spinner.Model
	help    help.Model

	width  int
	height int
}

// NewModel creates a monitor over opts.Source.
func NewModel(opts Options) Model {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	s := spinner.New()
	s.Spinner = spinner.Points
	s.Style = lipgloss.NewStyle().Foreground(primaryColor)

	return Model{
		opts:    opts,
		ctx:     ctx,
		cancel:  cancel,
		scans:   newRingBuffer[spectrav1.Event](opts.Scans),
		logs:    NewLogViewerState(opts.LogLines),
		spinner: s,
		help:    help.New(),
		width:   80,
		height:  24,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.fetchStatus(), m.subscribe(), m.tick())
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.opts.Refresh, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) fetchStatus() tea.Cmd {
	src, ctx := m.opts.Source, m.ctx
	return func() tea.Msg {
		st, err := src.Status(ctx)
		return statusMsg{status: st, err: err}
	}
}

func (m Model) fetchLog() tea.Cmd {
	src, ctx, n := m.opts.Source, m.ctx, m.opts.LogLines
	return func() tea.Msg {
		entries, err := src.RecentLog(ctx, n)
		return logMsg{entries: entries, err: err}
	}
}

func (m Model) subscribe() tea.Cmd {
	src, ctx, session := m.opts.Source, m.ctx, m.opts.SessionID
	return func() tea.Msg {
		ch, err := src.WatchEvents(ctx, session)
		return subscribedMsg{events: ch, err: err}
	}
}

func (m Model) listen() tea.Cmd {
	ch := m.events
	return func() tea.Msg {
		ev, ok := <-ch
		return eventMsg{event: ev, ok: ok}
	}
}

// command runs a state command against the daemon.
func (m Model) command(name string, fn func(context.Context) (*spectrav1.Status, error)) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		st, err := fn(ctx)
		return commandMsg{name: name, status: st, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tickMsg:
		cmds := []tea.Cmd{m.fetchStatus(), m.tick()}
		if m.logs.Open {
			cmds = append(cmds, m.fetchLog())
		}
		return m, tea.Batch(cmds...)

	case statusMsg:
		m.statusErr = msg.err
		if msg.err == nil {
			m.status = msg.status
		}
		return m, nil

	case logMsg:
		if msg.err == nil {
			m.logs.Buffer.Replace(msg.entries)
		}
		return m, nil

	case subscribedMsg:
		if msg.err != nil {
			m.live = false
			m.setMessage("event stream unavailable: "+msg.err.Error(), true)
			return m, nil
		}
		m.events = msg.events
		m.live = true
		return m, m.listen()

	case eventMsg:
		if !msg.ok {
			m.live = false
			return m, nil
		}
		cmd := m.handleEvent(msg.event)
		return m, tea.Batch(cmd, m.listen())

	case commandMsg:
		m.pending = ""
		if msg.err != nil {
			m.setMessage(fmt.Sprintf("%s: %v", msg.name, msg.err), true)
			return m, nil
		}
		m.setMessage(msg.name+" accepted", false)
		if msg.status != nil {
			m.status = msg.status
			return m, nil
		}
		return m, m.fetchStatus()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) setMessage(text string, isErr bool) {
	m.message = text
	m.messageErr = isErr
}

// handleEvent records a streamed event. State changes refresh the status.
func (m *Model) handleEvent(ev spectrav1.Event) tea.Cmd {
	switch ev.Type {
	case "scan":
		m.scans.Add(ev)
	case "finished":
		m.finished = &ev
		return m.fetchStatus()
	case "state":
		return m.fetchStatus()
	}
	return nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		m.cancel()
		return m, tea.Quit
	}

	if m.confirmVent {
		switch msg.String() {
		case "y", "enter":
			m.confirmVent = false
			m.pending = "vent"
			return m, m.command("vent", m.opts.Source.Vent)
		case "n", "esc", "q":
			m.confirmVent = false
		}
		return m, nil
	}

	src := m.opts.Source
	switch {
	case key.Matches(msg, keys.Quit):
		m.cancel()
		return m, tea.Quit
	case key.Matches(msg, keys.PumpDown):
		m.pending = "pump down"
		return m, m.command("pump down", src.PumpDown)
	case key.Matches(msg, keys.Operate):
		m.pending = "operate"
		return m, m.command("operate", src.Operate)
	case key.Matches(msg, keys.Standby):
		m.pending = "standby"
		return m, m.command("standby", src.Standby)
	case key.Matches(msg, keys.Vent):
		m.confirmVent = true
	case key.Matches(msg, keys.Stop):
		m.pending = "stop"
		return m, m.command("stop", func(ctx context.Context) (*spectrav1.Status, error) {
			return nil, src.StopAcquisition(ctx)
		})
	case key.Matches(msg, keys.Logs):
		m.logs.Toggle()
		if m.logs.Open {
			return m, m.fetchLog()
		}
	case key.Matches(msg, keys.Up):
		m.logs.ScrollUp()
	case key.Matches(msg, keys.Down):
		m.logs.ScrollDown(m.logRows())
	default:
		switch msg.String() {
		case "1", "2", "3", "4":
			m.logs.SetFilterLevel(logging.Level(msg.String()[0] - '1'))
		}
	}
	return m, nil
}

func (m Model) logRows() int {
	return max(m.height/2-2, 3)
}

func (m Model) View() string {
	if m.confirmVent {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, m.renderConfirmVent())
	}

	contentWidth := max(m.width-4, 40)

	var b strings.Builder
	b.WriteString(renderAppHeader(m.status, m.live))
	b.WriteString("\n")
	if m.status != nil {
		if p := renderPreventers(m.status.Preventers); p != "" {
			b.WriteString(p)
			b.WriteString("\n")
		}
	}
	b.WriteString(renderDivider(contentWidth))
	b.WriteString("\n")

	if m.statusErr != nil {
		b.WriteString(errorTextStyle.Render("  " + m.statusErr.Error()))
		b.WriteString("\n")
	}
	if m.status != nil {
		b.WriteString(renderAcquisitionMetrics(m.status.Acquisition))
		b.WriteString("\n")
		if last, ok := m.lastScan(); ok && m.status.Acquisition.State != "Idle" {
			if bar := renderProgress(last.RetentionTime, m.status.Acquisition.DurationSeconds, contentWidth); bar != "" {
				b.WriteString(bar)
				b.WriteString("\n")
			}
		}
	}
	b.WriteString("\n")
	b.WriteString(m.renderScans())

	if m.finished != nil {
		f := m.finished
		line := fmt.Sprintf("  Last run %s: %d spectra (%s) %s", f.SessionID, f.NumSpectra, f.Reason,
			truncatePath(f.Path, max(contentWidth-40, 10)))
		if f.Error != "" {
			b.WriteString(errorTextStyle.Render(line + " " + f.Error))
		} else {
			b.WriteString(successTextStyle.Render(line))
		}
		b.WriteString("\n")
	}

	if m.logs.Open {
		b.WriteString("\n")
		b.WriteString(renderLogViewer(m.logs.Buffer.Entries(), m.logs.FilterLevel, m.logs.ScrollOffset, contentWidth, m.logRows()))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	switch {
	case m.pending != "":
		b.WriteString(fmt.Sprintf("  %s %s...\n", m.spinner.View(), m.pending))
	case m.message != "" && m.messageErr:
		b.WriteString(errorTextStyle.Render("  "+m.message) + "\n")
	case m.message != "":
		b.WriteString(mutedTextStyle.Render("  "+m.message) + "\n")
	}
	b.WriteString("  " + m.help.ShortHelpView(keys.ShortHelp()))

	return outerBoxStyle.Width(max(m.width-2, 42)).Render(b.String())
}

func (m Model) lastScan() (spectrav1.Event, bool) {
	scans := m.scans.Entries()
	if len(scans) == 0 {
		return spectrav1.Event{}, false
	}
	return scans[len(scans)-1], true
}

// renderScans lists the most recent scans, newest first.
func (m Model) renderScans() string {
	scans := m.scans.Entries()
	if len(scans) == 0 {
		return mutedTextStyle.Render("  No scans yet") + "\n"
	}

	var b strings.Builder
	b.WriteString(statsLabelStyle.Render(fmt.Sprintf("  %6s %10s %10s %12s", "SCAN", "RT (s)", "TIC", "BASE PEAK")))
	b.WriteString("\n")
	for i := len(scans) - 1; i >= 0; i-- {
		s := scans[i]
		line := fmt.Sprintf("  %6d %10.2f %s %12s",
			s.Index, s.RetentionTime,
			ticStyle.Render(humanize.SIWithDigits(s.TIC, 3, "")),
			padLeft(fmt.Sprintf("%.2f", s.BasePeakMass), 12))
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderConfirmVent() string {
	var b strings.Builder
	b.WriteString(dialogTitleStyle.Render("Vent the instrument?"))
	b.WriteString("\n\n")
	b.WriteString(dialogTextStyle.Render("The vacuum will be released."))
	b.WriteString("\n\n")
	hint := keyStyle.Render("[y]") + " " + keyDescStyle.Render("vent") + "   " +
		keyStyle.Render("[n]") + " " + keyDescStyle.Render("cancel")
	b.WriteString(center(hint, 46))
	return dialogBoxStyle.Render(b.String())
}

// Run starts the monitor and blocks until the user quits.
func Run(opts Options) error {
	model := NewModel(opts)
	defer model.cancel()

	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
