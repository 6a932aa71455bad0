package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"vk-archive-loader/internal/archive"
	"vk-archive-loader/internal/model"
)

const progressRefresh = 250 * time.Millisecond

type progressTickMsg time.Time

type runDoneMsg struct {
	err error
}

type progressModel struct {
	snapshot    func() archive.TallySnapshot
	cancel      context.CancelFunc
	snap        archive.TallySnapshot
	spinner     spinner.Model
	bar         progress.Model
	done        bool
	interrupted bool
	err         error
}

func newProgressModel(snapshot func() archive.TallySnapshot, cancel context.CancelFunc) progressModel {
	sp := spinner.New(spinner.WithSpinner(spinner.Dot))
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	return progressModel{
		snapshot: snapshot,
		cancel:   cancel,
		spinner:  sp,
		bar:      progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
	}
}

func progressTick() tea.Cmd {
	return tea.Tick(progressRefresh, func(t time.Time) tea.Msg {
		return progressTickMsg(t)
	})
}

func (m progressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, progressTick())
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		width := msg.Width - 4
		if width > 60 {
			width = 60
		}
		if width < 10 {
			width = 10
		}
		m.bar.Width = width
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.interrupted = true
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}
		return m, nil
	case progressTickMsg:
		m.snap = m.snapshot()
		return m, progressTick()
	case runDoneMsg:
		m.snap = m.snapshot()
		m.done = true
		m.err = msg.err
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m progressModel) View() string {
	s := m.snap
	var b strings.Builder

	title := m.spinner.View() + " " + titleStyle.Render("downloading")
	switch {
	case m.interrupted:
		title = warnStyle.Render("interrupted, finishing in-flight links")
	case m.done && m.err != nil:
		title = errorStyle.Render("run failed")
	case m.done:
		title = okStyle.Render("run finished")
	}
	b.WriteString(title + "\n")

	percent := 0.0
	if s.Total > 0 {
		percent = float64(s.Processed) / float64(s.Total)
	}
	b.WriteString(m.bar.ViewAs(percent) + "\n")

	line := fmt.Sprintf("links %d/%d  owners %d/%d  %s", s.Processed, s.Total, s.OwnersDone, s.Owners, formatBytesIEC(s.Bytes))
	if s.ETA != "" && !m.done {
		line += "  eta " + s.ETA
	}
	b.WriteString(line + "\n")
	if s.Owner != "" && !m.done {
		b.WriteString(mutedStyle.Render("owner "+s.Owner) + "\n")
	}

	kinds := []string{model.OutcomeDownloaded, model.OutcomeSkipped, model.OutcomeUnparsed, model.OutcomeFailed}
	parts := make([]string, 0, len(kinds))
	for _, k := range kinds {
		parts = append(parts, fmt.Sprintf("%s %d", k, s.ByKind[k]))
	}
	b.WriteString(mutedStyle.Render(strings.Join(parts, "  ")) + "\n")

	for _, e := range s.Events {
		b.WriteString(mutedStyle.Render("  "+e) + "\n")
	}
	return b.String()
}

// runWithProgress runs the archive run while the live view owns the
// terminal. Quitting the view cancels the run; the run result is still
// awaited so the manifest and run.json are settled before returning.
func runWithProgress(tally *archive.Tally, cancel context.CancelFunc, run func() (archive.RunResult, error)) (archive.RunResult, error) {
	p := tea.NewProgram(newProgressModel(tally.Snapshot, cancel))

	var (
		result archive.RunResult
		runErr error
	)
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		result, runErr = run()
		p.Send(runDoneMsg{err: runErr})
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		<-finished
		if runErr != nil {
			return result, runErr
		}
		return result, fmt.Errorf("progress view: %w", err)
	}
	<-finished
	return result, runErr
}
