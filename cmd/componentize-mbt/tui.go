package main

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	doneStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	pendingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))
)

type buildModel struct {
	ctx     context.Context
	cancel  context.CancelFunc
	title   string
	steps   []step
	results []string
	current int
	err     error
	spinner spinner.Model
}

type stepDoneMsg struct {
	result string
	err    error
}

func newBuildModel(ctx context.Context, b *builder) *buildModel {
	ctx, cancel := context.WithCancel(ctx)
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = resultStyle
	return &buildModel{
		ctx:     ctx,
		cancel:  cancel,
		title:   b.project.String(),
		steps:   b.steps(),
		spinner: s,
	}
}

func (m *buildModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.runStep())
}

func (m *buildModel) runStep() tea.Cmd {
	s := m.steps[m.current]
	return func() tea.Msg {
		result, err := s.run(m.ctx)
		return stepDoneMsg{result: result, err: err}
	}
}

func (m *buildModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.cancel()
			m.err = context.Canceled
			return m, tea.Quit
		}

	case stepDoneMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, tea.Quit
		}
		m.results = append(m.results, msg.result)
		m.current++
		if m.current == len(m.steps) {
			return m, tea.Quit
		}
		return m, m.runStep()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *buildModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("componentize-mbt"))
	b.WriteString(" ")
	b.WriteString(m.title)
	b.WriteString("\n\n")

	for i, s := range m.steps {
		switch {
		case i < m.current:
			b.WriteString(doneStyle.Render("✓ " + s.title))
			if r := m.results[i]; r != "" {
				b.WriteString("\n  ")
				b.WriteString(resultStyle.Render(r))
			}
		case i == m.current && m.err != nil:
			b.WriteString(errorStyle.Render("✗ " + s.title))
		case i == m.current:
			b.WriteString(m.spinner.View())
			b.WriteString(s.title)
		default:
			b.WriteString(pendingStyle.Render("  " + s.title))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// runTUI runs the build steps under a spinner. The step error, if any,
// is returned after the program exits so main prints it in full.
func runTUI(ctx context.Context, b *builder) error {
	m := newBuildModel(ctx, b)
	defer m.cancel()
	if _, err := tea.NewProgram(m).Run(); err != nil {
		return err
	}
	return m.err
}
