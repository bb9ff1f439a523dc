package cli

import (
	"context"
	"fmt"
	"time"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"

	"github.com/enkerewpo/paperfinder/internal/models"
	"github.com/enkerewpo/paperfinder/internal/task"
)

const pollInterval = 250 * time.Millisecond

// Theme holds the color scheme for the progress display.
type Theme struct {
	Status  lipgloss.Color
	Success lipgloss.Color
	Error   lipgloss.Color
	Hint    lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Status:  lipgloss.Color("#5FAFD7"), // light blue
	Success: lipgloss.Color("#00D787"), // green
	Error:   lipgloss.Color("#FF005F"), // red
	Hint:    lipgloss.Color("#6C6C6C"), // dim gray
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// tickMsg triggers polling the task status
type tickMsg time.Time

// taskUpdateMsg carries the polled task state
type taskUpdateMsg struct {
	task models.Task
}

// runDoneMsg arrives when the runner goroutine finishes.
type runDoneMsg runOutcome

// ingestModel is the bubbletea model for ingestion progress.
type ingestModel struct {
	manager  *task.Manager
	taskID   string
	task     models.Task
	cancel   context.CancelFunc
	done     <-chan runOutcome
	progress progress.Model
	theme    Theme
	outcome  *runOutcome
	canceled bool
}

func newIngestModel(m *task.Manager, taskID string, cancel context.CancelFunc, done <-chan runOutcome) ingestModel {
	prog := progress.New(
		progress.WithDefaultBlend(),
		progress.WithWidth(40),
	)
	return ingestModel{
		manager:  m,
		taskID:   taskID,
		cancel:   cancel,
		done:     done,
		progress: prog,
		theme:    defaultTheme,
	}
}

// Init starts polling and the done watcher.
func (m ingestModel) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		m.waitForDone(),
		m.progress.Init(),
	)
}

// Update handles messages and returns the updated model.
func (m ingestModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			// Cancel the run but keep the UI open until the runner
			// confirms it stopped, so the final offsets are durable.
			m.canceled = true
			m.cancel()
			return m, nil
		}

	case tickMsg:
		return m, m.fetchTaskState()

	case taskUpdateMsg:
		m.task = msg.task
		if m.outcome == nil {
			return m, tickCmd()
		}
		return m, nil

	case runDoneMsg:
		o := runOutcome(msg)
		m.outcome = &o
		m.task = o.task
		return m, tea.Quit

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the progress display.
func (m ingestModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m ingestModel) renderContent() string {
	if m.outcome != nil {
		return m.finalView()
	}

	var pct float64
	counts := fmt.Sprintf("%d papers", m.task.Progress)
	if m.task.Total != nil && *m.task.Total > 0 {
		pct = float64(m.task.Progress) / float64(*m.task.Total)
		counts = fmt.Sprintf("%d/%d papers", m.task.Progress, *m.task.Total)
	}

	status := m.theme.statusStyle().Render(fmt.Sprintf("[%s]", m.task.Status))
	progressBar := m.progress.ViewAs(pct)
	hint := m.theme.hintStyle().Render("Press Ctrl+C to stop; the task stays resumable")
	if m.canceled {
		hint = m.theme.hintStyle().Render("Stopping after the current page...")
	}

	return fmt.Sprintf("%s %s %s\n%s\n", status, progressBar, counts, hint)
}

// finalView renders the completion message.
func (m ingestModel) finalView() string {
	t := m.outcome.task

	if m.outcome.err != nil && t.Status == models.TaskRunning {
		msg := fmt.Sprintf("\nTask %s interrupted at %d papers.\nResume with 'paperfinder fetch --resume-task %s'.\n",
			m.taskID, t.Progress, m.taskID)
		return m.theme.hintStyle().Render(msg)
	}

	if t.Status == models.TaskFailed {
		return m.theme.errorStyle().Render(fmt.Sprintf("\n✗ Task failed: %s\n", t.Error))
	}

	var output string
	output += m.theme.completedStyle().Render("✓ Completed") + "\n\n"
	if t.Result != nil {
		output += fmt.Sprintf("  New papers: %d\n", t.Result.NewPapers)
		if t.Result.Capped {
			output += "  Stopped at the entry budget.\n"
		}
		if len(t.Result.SourceErrors) > 0 {
			output += m.theme.errorStyle().Render(fmt.Sprintf("\nSource errors (%d):\n", len(t.Result.SourceErrors)))
			for _, se := range t.Result.SourceErrors {
				output += fmt.Sprintf("  • %s: %s\n", se.Source, se.Reason)
			}
		}
	}
	return output
}

// fetchTaskState reads the task from the store.
// Runs as a command to avoid blocking Update().
func (m ingestModel) fetchTaskState() tea.Cmd {
	return func() tea.Msg {
		t, err := m.manager.Get(m.taskID)
		if err != nil {
			return taskUpdateMsg{task: m.task}
		}
		return taskUpdateMsg{task: t}
	}
}

// waitForDone blocks on the runner's completion channel.
func (m ingestModel) waitForDone() tea.Cmd {
	return func() tea.Msg {
		return runDoneMsg(<-m.done)
	}
}

// tickCmd returns a command that sends a tick after the poll interval.
func tickCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// runIngestProgress runs the interactive progress UI over a running ingest.
// Returns nil on completion or interruption (the task stays resumable),
// an error when the task failed.
func runIngestProgress(m *task.Manager, taskID string, cancel context.CancelFunc, done <-chan runOutcome) error {
	p := tea.NewProgram(newIngestModel(m, taskID, cancel, done))

	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("progress UI error: %w", err)
	}

	im, ok := finalModel.(ingestModel)
	if !ok || im.outcome == nil {
		return nil
	}
	if im.outcome.task.Status == models.TaskFailed {
		return fmt.Errorf("task %s failed: %s", taskID, im.outcome.task.Error)
	}
	// Interrupted runs are not an error, the hint view already explained how
	// to resume.
	return nil
}
