package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/inletlabs/inlet/types"
)

// StateMsg delivers a streaming-state snapshot to the model.
type StateMsg types.StreamingState

// closedMsg signals that the state channel has closed.
type closedMsg struct{}

// keyMap defines key bindings.
type keyMap struct {
	Quit key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// RevealModel is a Bubble Tea model showing the live text reveal,
// session stage, and progress line for one stream session.
type RevealModel struct {
	title    string
	states   <-chan types.StreamingState
	state    types.StreamingState
	spin     spinner.Model
	width    int
	height   int
	quitting bool
	closed   bool
}

// NewRevealModel creates a reveal model over a state channel. The
// channel must be closed once the session reaches a terminal state.
func NewRevealModel(title string, states <-chan types.StreamingState) RevealModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = WarningStyle

	return RevealModel{
		title:  title,
		states: states,
		spin:   sp,
		state:  types.StreamingState{Stage: types.StatusConnecting},
	}
}

// Init implements tea.Model.
func (m RevealModel) Init() tea.Cmd {
	return tea.Batch(m.waitForState(), m.spin.Tick)
}

// waitForState reads the next snapshot off the channel.
func (m RevealModel) waitForState() tea.Cmd {
	return func() tea.Msg {
		state, ok := <-m.states
		if !ok {
			return closedMsg{}
		}
		return StateMsg(state)
	}
}

// Update implements tea.Model.
func (m RevealModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil

	case StateMsg:
		m.state = types.StreamingState(msg)
		return m, m.waitForState()

	case closedMsg:
		m.closed = true
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	return m, nil
}

// Quit reports whether the user quit before the session finished.
func (m RevealModel) Quit() bool {
	return m.quitting && !m.closed
}

// View implements tea.Model.
func (m RevealModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render(m.title))
	b.WriteString("\n\n")

	stage := string(m.state.Stage)
	if stage == "" {
		stage = string(types.StatusConnecting)
	}
	stageLine := StageStyle(m.state.Stage).Render(stage)
	if !m.state.Stage.IsTerminal() {
		stageLine = m.spin.View() + stageLine
	}
	b.WriteString(fmt.Sprintf("%s %s\n", LabelStyle.Render("Stage:"), stageLine))

	if m.state.Progress != "" {
		b.WriteString(fmt.Sprintf("%s %s\n", LabelStyle.Render("Progress:"), ValueStyle.Render(m.state.Progress)))
	}
	if m.state.ArtifactID != "" {
		b.WriteString(fmt.Sprintf("%s %s\n", LabelStyle.Render("Artifact:"), ValueStyle.Render(m.state.ArtifactID)))
	}
	if m.state.Err != nil {
		b.WriteString(fmt.Sprintf("%s %s\n", LabelStyle.Render("Error:"), ErrorStyle.Render(m.state.Err.Message)))
	}

	if m.state.StreamingText != "" {
		b.WriteString("\n")
		text := m.state.StreamingText
		width := m.width - 8
		if width < 20 {
			width = 72
		}
		b.WriteString(TextStyle.Width(width).Render(text))
		b.WriteString("\n")
	}

	content := BoxStyle.Render(b.String())
	help := HelpStyle.Render("Press q or Ctrl+C to abort")
	if m.state.Stage.IsTerminal() {
		help = HelpStyle.Render("Press q to quit")
	}
	return lipgloss.JoinVertical(lipgloss.Left, content, help)
}

// RunReveal runs the live reveal view until the state channel closes or
// the user quits. Returns true if the user quit before the terminal
// state arrived.
func RunReveal(title string, states <-chan types.StreamingState) (bool, error) {
	model := NewRevealModel(title, states)
	p := tea.NewProgram(model, tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return false, err
	}
	if m, ok := final.(RevealModel); ok {
		return m.Quit(), nil
	}
	return false, nil
}
