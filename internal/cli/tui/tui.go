package tui

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ccheshirecat/renderd/internal/cli/client"
)

const refreshInterval = 5 * time.Second

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	labelStyle  = lipgloss.NewStyle().Bold(true)
	failedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	dimStyle    = lipgloss.NewStyle().Faint(true)
)

type jobListMsg struct {
	jobs []client.Job
}

type statusMsg struct {
	status *client.Status
}

type jobEventMsg struct {
	event client.JobEvent
}

type errMsg struct {
	err error
}

type eventsClosedMsg struct{}

type tickMsg struct{}

// Run launches the Bubble Tea dashboard.
func Run() error {
	base := os.Getenv("RENDERD_API_BASE")
	api, err := client.New(base)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := newModel(ctx, cancel, api)
	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		cancel()
		return err
	}
	return nil
}

type model struct {
	ctx       context.Context
	cancel    context.CancelFunc
	api       *client.Client
	spin      spinner.Model
	jobs      []client.Job
	status    *client.Status
	logs      []string
	err       error
	eventCh   chan client.JobEvent
	streamEOF bool
}

func newModel(ctx context.Context, cancel context.CancelFunc, api *client.Client) model {
	spin := spinner.New()
	spin.Spinner = spinner.Dot
	return model{
		ctx:     ctx,
		cancel:  cancel,
		api:     api,
		spin:    spin,
		eventCh: make(chan client.JobEvent, 16),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		m.spin.Tick,
		fetchJobsCmd(m.api, m.ctx),
		fetchStatusCmd(m.api, m.ctx),
		watchEventsCmd(m.api, m.ctx, m.eventCh),
		waitEventCmd(m.eventCh),
		tickCmd(),
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.cancel()
			return m, tea.Quit
		}
	case jobListMsg:
		m.jobs = msg.jobs
		m.err = nil
		return m, nil
	case statusMsg:
		m.status = msg.status
		return m, nil
	case jobEventMsg:
		ts := msg.event.Timestamp.Format("15:04:05")
		line := fmt.Sprintf("%s %-13s job=%d %s", ts, msg.event.Type, msg.event.JobID, msg.event.URL)
		m.logs = append([]string{line}, m.logs...)
		if len(m.logs) > 100 {
			m.logs = m.logs[:100]
		}
		// refresh after each event
		return m, tea.Batch(fetchJobsCmd(m.api, m.ctx), fetchStatusCmd(m.api, m.ctx), waitEventCmd(m.eventCh))
	case errMsg:
		m.err = msg.err
		return m, nil
	case eventsClosedMsg:
		m.streamEOF = true
		return m, nil
	case tickMsg:
		return m, tea.Batch(tickCmd(), fetchJobsCmd(m.api, m.ctx), fetchStatusCmd(m.api, m.ctx))
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m model) View() string {
	header := headerStyle.Render("RENDERD :: Render Dashboard") + dimStyle.Render("  (q to quit)") + "\n"

	var body string
	if m.status != nil {
		capacity := "unbounded"
		if m.status.MaxTabs > 0 {
			capacity = fmt.Sprintf("%d", m.status.MaxTabs)
		}
		body += fmt.Sprintf("\n%s %s %d active / %s tabs, signal timeout %dms\n",
			labelStyle.Render("Pool:"), m.spin.View(), m.status.ActiveRenders, capacity, m.status.RenderTimeoutMS)
	}

	body += "\n" + labelStyle.Render("Jobs:") + "\n"
	if len(m.jobs) == 0 {
		body += dimStyle.Render("  (no jobs yet)") + "\n"
	} else {
		body += fmt.Sprintf("  %-6s %-10s %-8s %-9s %s\n", "ID", "STATUS", "MS", "BYTES", "URL")
		for i, job := range m.jobs {
			if i >= 15 {
				break
			}
			status := job.Status
			switch job.Status {
			case "failed":
				status = failedStyle.Render(job.Status)
			case "succeeded":
				status = okStyle.Render(job.Status)
			}
			body += fmt.Sprintf("  %-6d %-10s %-8d %-9d %s\n", job.ID, status, job.DurationMS, job.HTMLBytes, job.URL)
		}
	}

	body += "\n" + labelStyle.Render("Events:") + "\n"
	if len(m.logs) == 0 {
		body += dimStyle.Render("  (waiting for events)") + "\n"
	} else {
		for i, line := range m.logs {
			if i >= 10 {
				break
			}
			body += "  " + line + "\n"
		}
	}

	if m.err != nil {
		body += failedStyle.Render(fmt.Sprintf("\nError: %v", m.err)) + "\n"
	}
	if m.streamEOF {
		body += dimStyle.Render("\nEvent stream closed.") + "\n"
	}

	return header + body
}

func fetchJobsCmd(api *client.Client, parent context.Context) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, 5*time.Second)
		defer cancel()
		jobs, err := api.ListJobs(ctx, 15)
		if err != nil {
			return errMsg{err: err}
		}
		return jobListMsg{jobs: jobs}
	}
}

func fetchStatusCmd(api *client.Client, parent context.Context) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, 5*time.Second)
		defer cancel()
		status, err := api.SystemStatus(ctx)
		if err != nil {
			return errMsg{err: err}
		}
		return statusMsg{status: status}
	}
}

func watchEventsCmd(api *client.Client, ctx context.Context, ch chan<- client.JobEvent) tea.Cmd {
	return func() tea.Msg {
		go func() {
			err := api.WatchJobEvents(ctx, func(ev client.JobEvent) {
				select {
				case ch <- ev:
				case <-ctx.Done():
				}
			})
			if err != nil && ctx.Err() == nil {
				select {
				case ch <- client.JobEvent{Type: "ERROR", Message: err.Error(), Timestamp: time.Now().UTC()}:
				default:
				}
			}
			close(ch)
		}()
		return nil
	}
}

func waitEventCmd(ch <-chan client.JobEvent) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return eventsClosedMsg{}
		}
		return jobEventMsg{event: ev}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg { return tickMsg{} })
}
