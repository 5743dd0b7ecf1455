package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"research-assistant/internal/models"
	"research-assistant/internal/session"
)

// SessionPort is the TUI-facing subset of the session controller.
type SessionPort interface {
	Upload(ctx context.Context, apiKey, filename string, data []byte) error
	SelectMode(ctx context.Context, mode session.Mode) error
	Ask(ctx context.Context, query string) (*models.Answer, error)
	SubmitAnswers(ctx context.Context, a1, a2, a3 string) (string, error)
	View() session.View
}

// actionDoneMsg is sent when a session action returns
type actionDoneMsg struct{ err error }

// Model is the Bubble Tea model for the terminal front end.
type Model struct {
	ctx      context.Context
	session  SessionPort
	apiKey   string
	filename string
	data     []byte

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	view      session.View
	busy      string
	answers   [3]string
	answerIdx int
	ready     bool
}

// New creates a model that uploads the given document on start.
func New(ctx context.Context, sess SessionPort, apiKey, filename string, data []byte) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.CharLimit = 0
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = busyStyle

	m := Model{
		ctx:      ctx,
		session:  sess,
		apiKey:   apiKey,
		filename: filename,
		data:     data,
		input:    ti,
		viewport: viewport.New(0, 0),
		spinner:  sp,
		view:     sess.View(),
		busy:     "Indexing " + filename,
	}
	m.updatePlaceholder()
	return m
}

// Init starts the upload, the busy spinner and the cursor blink.
func (m Model) Init() tea.Cmd {
	apiKey, filename, data := m.apiKey, m.filename, m.data
	return tea.Batch(textinput.Blink, m.spinner.Tick, func() tea.Msg {
		return actionDoneMsg{err: m.session.Upload(m.ctx, apiKey, filename, data)}
	})
}

// Update handles key, window and action events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, vh := contentBoxStyle.GetFrameSize()
		_, ih := inputBoxStyle.GetFrameSize()
		reserved := 3 + ih + 1 // header, status, help + input box
		m.viewport.Width = max(20, msg.Width-4)
		m.viewport.Height = max(3, msg.Height-reserved-vh)
		m.viewport.SetContent(m.renderContent())
		return m, nil

	case actionDoneMsg:
		m.busy = ""
		m.data = nil
		m.view = m.session.View()
		if !m.view.InChallengeMode() {
			m.answers = [3]string{}
			m.answerIdx = 0
		}
		m.updatePlaceholder()
		m.viewport.SetContent(m.renderContent())
		m.viewport.GotoTop()
		return m, nil

	case spinner.TickMsg:
		if m.busy == "" {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyEsc {
			return m, tea.Quit
		}
		if m.busy != "" {
			return m, nil
		}
		switch msg.String() {
		case "ctrl+a":
			return m.start("Switching to Ask Anything", func(ctx context.Context) error {
				return m.session.SelectMode(ctx, session.ModeAsk)
			})
		case "ctrl+t":
			return m.start("Generating questions", func(ctx context.Context) error {
				return m.session.SelectMode(ctx, session.ModeChallenge)
			})
		case "enter":
			return m.submit()
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit sends the query, or collects answers one by one and sends all three
// after the last
func (m Model) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	switch {
	case m.view.InAskMode():
		if text == "" {
			return m, nil
		}
		m.input.Reset()
		return m.start("Thinking", func(ctx context.Context) error {
			_, err := m.session.Ask(ctx, text)
			return err
		})

	case m.view.InChallengeMode():
		m.answers[m.answerIdx] = text
		m.input.Reset()
		if m.answerIdx < len(m.answers)-1 {
			m.answerIdx++
			m.updatePlaceholder()
			return m, nil
		}
		answers := m.answers
		m.answers = [3]string{}
		m.answerIdx = 0
		return m.start("Evaluating", func(ctx context.Context) error {
			_, err := m.session.SubmitAnswers(ctx, answers[0], answers[1], answers[2])
			return err
		})
	}
	return m, nil
}

func (m Model) start(label string, action func(ctx context.Context) error) (tea.Model, tea.Cmd) {
	m.busy = label
	ctx := m.ctx
	return m, tea.Batch(m.spinner.Tick, func() tea.Msg {
		return actionDoneMsg{err: action(ctx)}
	})
}

func (m *Model) updatePlaceholder() {
	switch {
	case m.view.InAskMode():
		m.input.Placeholder = "Ask a question and press Enter"
	case m.view.InChallengeMode():
		m.input.Placeholder = fmt.Sprintf("Answer %d of 3, Enter for next", m.answerIdx+1)
	case m.view.Ready():
		m.input.Placeholder = "Ctrl+A to ask, Ctrl+T for a challenge"
	default:
		m.input.Placeholder = ""
	}
}

// View renders the layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	title := "Research Assistant"
	if m.view.Filename != "" {
		title += " · " + m.view.Filename
	}
	header := titleStyle.Render(title)
	content := contentBoxStyle.Render(m.viewport.View())
	input := inputBoxStyle.Render(m.input.View())
	help := helpStyle.Render("ctrl+a ask · ctrl+t challenge · pgup/pgdown scroll · esc quit")
	return header + "\n" + m.status() + "\n" + content + "\n" + input + "\n" + help
}

func (m Model) status() string {
	switch {
	case m.busy != "":
		return m.spinner.View() + " " + busyStyle.Render(m.busy+"...")
	case m.view.Err != nil:
		return errorStyle.Render(m.view.Message)
	case m.view.Message != "":
		return statusStyle.Render(m.view.Message)
	default:
		return statusStyle.Render(fmt.Sprintf("%s · %d segments", modeLabel(m.view), m.view.Segments))
	}
}

func (m Model) renderContent() string {
	v := m.view
	if !v.Ready() {
		if m.busy != "" {
			return ""
		}
		return models.InstructionMessage
	}
	width := max(20, m.viewport.Width)
	wrap := lipgloss.NewStyle().Width(width)

	var b strings.Builder
	b.WriteString(sectionStyle.Render("Summary") + "\n")
	b.WriteString(wrap.Render(v.Summary) + "\n")

	switch {
	case v.InAskMode():
		if v.Answer != nil {
			b.WriteString("\n" + sectionStyle.Render("Q: "+v.Query) + "\n")
			b.WriteString(wrap.Render(v.Answer.Content) + "\n")
			if top, ok := v.Citation(); ok {
				b.WriteString("\n" + citationStyle.Render("Source: page "+top.Segment.PageLabel()) + "\n")
				b.WriteString(wrap.Render(excerptStyle.Render(models.PageNote)) + "\n")
				b.WriteString(wrap.Render(excerptStyle.Render(top.Segment.Text)) + "\n")
			}
		}
	case v.InChallengeMode():
		b.WriteString("\n" + sectionStyle.Render("Questions") + "\n")
		b.WriteString(wrap.Render(v.Questions) + "\n")
		if v.Evaluation != "" {
			b.WriteString("\n" + sectionStyle.Render("Your answers") + "\n")
			for i, a := range v.Answers {
				b.WriteString(wrap.Render(fmt.Sprintf("%d. %s", i+1, a)) + "\n")
			}
			b.WriteString("\n" + sectionStyle.Render("Feedback") + "\n")
			b.WriteString(wrap.Render(v.Evaluation) + "\n")
		}
	}
	return b.String()
}

func modeLabel(v session.View) string {
	switch {
	case v.InAskMode():
		return "Ask Anything"
	case v.InChallengeMode():
		return "Challenge Me"
	default:
		return "Document loaded"
	}
}

var (
	titleStyle      = lipgloss.NewStyle().Bold(true)
	statusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	busyStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	helpStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	sectionStyle    = lipgloss.NewStyle().Bold(true).Underline(true)
	citationStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	excerptStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
	contentBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputBoxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)
