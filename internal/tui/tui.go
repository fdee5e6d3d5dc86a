// Package tui is the terminal front end: a URL field, a status line and the
// transcript and summary panels, driven by client.Consumer.
package tui

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jo-hoe/khmerscribe/internal/client"
	"github.com/jo-hoe/khmerscribe/internal/pipeline"
)

// Submitter runs one job and reports intermediate state through onUpdate.
type Submitter interface {
	Submit(ctx context.Context, url string, onUpdate func(client.State)) (client.State, error)
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	panelStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	buttonStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("230")).Background(lipgloss.Color("62")).Bold(true).Padding(0, 1)
	busyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("250")).Background(lipgloss.Color("238")).Padding(0, 1)
)

const (
	defaultWidth  = 100
	defaultHeight = 30
	chromeHeight  = 10
)

type stateMsg struct {
	job   int
	state client.State
}

type doneMsg struct {
	job   int
	state client.State
	err   error
}

// Model is the bubbletea model for one interactive session.
type Model struct {
	submitter Submitter
	input     textinput.Model
	spinner   spinner.Model
	body      viewport.Model
	width     int
	height    int

	state   client.State
	job     int
	updates chan tea.Msg
	cancel  context.CancelFunc
}

// New builds the model. initialURL pre-fills the input.
func New(submitter Submitter, initialURL string) Model {
	input := textinput.New()
	input.Prompt = "> "
	input.Placeholder = "https://www.youtube.com/watch?v=..."
	input.CharLimit = 2048
	input.Width = clampInt(defaultWidth-24, 20, 120)
	input.SetValue(initialURL)
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		submitter: submitter,
		input:     input,
		spinner:   sp,
		body:      viewport.New(defaultWidth-4, defaultHeight-chromeHeight),
		state:     client.State{Step: pipeline.StepIdle},
	}
}

// State returns the last observed job state.
func (m Model) State() client.State {
	return m.state
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = clampInt(m.width-24, 20, 120)
		m.body.Width = maxInt(m.width-4, 20)
		m.body.Height = maxInt(m.height-chromeHeight, 3)
		m.body.SetContent(m.renderBody())
		return m, nil
	case stateMsg:
		if msg.job != m.job {
			return m, nil
		}
		m.state = msg.state
		m.body.SetContent(m.renderBody())
		return m, waitForUpdate(m.updates)
	case doneMsg:
		if msg.job != m.job {
			return m, nil
		}
		m.state = msg.state
		m.cancel = nil
		m.body.SetContent(m.renderBody())
		return m, nil
	case spinner.TickMsg:
		if !m.state.Processing() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		return m.updateKey(msg)
	}
	return m, nil
}

func (m Model) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		if m.cancel != nil {
			m.cancel()
			m.cancel = nil
		}
		return m, tea.Quit
	case "enter":
		return m.submit()
	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.body, cmd = m.body.Update(msg)
		return m, cmd
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	if m.state.Processing() {
		return m, nil
	}
	url := strings.TrimSpace(m.input.Value())
	if url == "" {
		m.state = client.State{Step: pipeline.StepIdle, Error: client.ErrEmptyURL.Error()}
		m.body.SetContent(m.renderBody())
		return m, nil
	}

	m.job++
	m.state = client.State{Step: pipeline.StepDownloading}
	m.body.SetContent(m.renderBody())

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.updates = make(chan tea.Msg, 8)
	go runJob(ctx, m.submitter, m.job, url, m.updates)

	return m, tea.Batch(waitForUpdate(m.updates), m.spinner.Tick)
}

// runJob forwards consumer callbacks as messages and closes updates when done.
func runJob(ctx context.Context, sub Submitter, job int, url string, updates chan<- tea.Msg) {
	defer close(updates)
	st, err := sub.Submit(ctx, url, func(s client.State) {
		select {
		case updates <- stateMsg{job: job, state: s}:
		case <-ctx.Done():
		}
	})
	if errors.Is(err, context.Canceled) {
		return
	}
	select {
	case updates <- doneMsg{job: job, state: st, err: err}:
	case <-ctx.Done():
	}
}

func waitForUpdate(updates <-chan tea.Msg) tea.Cmd {
	if updates == nil {
		return nil
	}
	return func() tea.Msg {
		msg, ok := <-updates
		if !ok {
			return nil
		}
		return msg
	}
}

func (m Model) View() string {
	width := m.width
	if width <= 0 {
		width = defaultWidth
	}

	header := titleStyle.Render("khmerscribe") + "\n" +
		mutedStyle.Render("enter: transcribe | pgup/pgdown: scroll | esc: quit")

	button := buttonStyle.Render("Transcribe")
	if m.state.Processing() {
		button = busyStyle.Render("Processing")
	}
	form := lipgloss.JoinHorizontal(lipgloss.Center, m.input.View(), "  ", button)

	lines := []string{header, "", form, m.renderStatusLine()}
	if m.state.Error != "" {
		lines = append(lines, errorStyle.Render("error: "+m.state.Error))
	}
	lines = append(lines, panelStyle.Width(width-2).Render(m.body.View()))
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m Model) renderStatusLine() string {
	text := client.StepMessage(m.state.Step)
	switch {
	case m.state.Processing():
		return m.spinner.View() + " " + text
	case m.state.Step == pipeline.StepComplete:
		return okStyle.Render(text)
	default:
		return mutedStyle.Render("paste a YouTube link and press enter")
	}
}

func (m Model) renderBody() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Transcript"))
	sb.WriteString("\n")
	if m.state.Transcription == "" {
		sb.WriteString(mutedStyle.Render("(none yet)"))
	} else {
		sb.WriteString(m.state.Transcription)
	}
	sb.WriteString("\n\n")
	sb.WriteString(titleStyle.Render("Summary"))
	sb.WriteString("\n")
	if m.state.Summary == "" {
		sb.WriteString(mutedStyle.Render("(none yet)"))
	} else {
		sb.WriteString(m.state.Summary)
	}
	return lipgloss.NewStyle().Width(maxInt(m.body.Width, 20)).Render(sb.String())
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
