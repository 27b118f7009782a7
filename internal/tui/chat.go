// Package tui is the interactive chat interface over the retrieval engine.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"docrag/internal/rag"
)

type chatState int

const (
	chatIdle chatState = iota
	chatAnswering
)

type chatMessage struct {
	role    string
	content string
	sources []rag.Candidate
}

// answerMsg is sent when a query completes.
type answerMsg struct {
	answer  string
	sources []rag.Candidate
	err     error
}

// Model is the chat screen: a scrollback viewport, an input line, and a
// status bar.
type Model struct {
	viewport    viewport.Model
	input       textinput.Model
	spinner     spinner.Model
	renderer    *glamour.TermRenderer
	engine      *rag.Engine
	maxTurns    int
	messages    []chatMessage
	history     []rag.Turn
	state       chatState
	width       int
	height      int
	initialized bool
}

// New creates the chat model. maxTurns caps the conversation window handed
// to retrieval and prompting.
func New(engine *rag.Engine, maxTurns int) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	ti := textinput.New()
	ti.Placeholder = "Ask a question about your documents..."
	ti.CharLimit = 2000
	ti.Focus()

	return Model{
		spinner:  sp,
		input:    ti,
		engine:   engine,
		maxTurns: maxTurns,
		state:    chatIdle,
	}
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m *Model) initViewport(width, height int) {
	m.width = width
	m.height = height

	// Layout: viewport + status bar (1 line) + input (1 line) + gap (1 line).
	vpHeight := height - 3
	if vpHeight < 5 {
		vpHeight = 5
	}
	m.viewport = viewport.New(width, vpHeight)
	m.viewport.SetContent(dimStyle.Render("Welcome to docrag chat! Ask a question about your documents.\n\nCommands: /help, /docs, /clear, /exit"))

	m.input.Width = width - 4

	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width-2),
	)
	if err == nil {
		m.renderer = r
	}

	m.initialized = true
}

func askQuestion(engine *rag.Engine, question string, history []rag.Turn) tea.Cmd {
	return func() tea.Msg {
		answer, sources, err := engine.Answer(context.Background(), question, rag.Options{History: history})
		if err != nil {
			return answerMsg{err: err}
		}
		return answerMsg{answer: answer, sources: sources}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.initViewport(msg.Width, msg.Height)
		if len(m.messages) > 0 {
			m.viewport.SetContent(m.renderMessages())
			m.viewport.GotoBottom()
		}
		return m, nil

	case answerMsg:
		m.state = chatIdle
		if msg.err != nil {
			m.messages = append(m.messages, chatMessage{role: "error", content: msg.err.Error()})
		} else {
			m.messages = append(m.messages, chatMessage{role: "assistant", content: msg.answer, sources: msg.sources})
			if len(m.history) > 0 {
				m.history[len(m.history)-1].Assistant = msg.answer
			}
			if len(m.history) > m.maxTurns {
				m.history = m.history[len(m.history)-m.maxTurns:]
			}
		}
		m.viewport.SetContent(m.renderMessages())
		m.viewport.GotoBottom()
		return m, nil

	case spinner.TickMsg:
		if m.state != chatIdle {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			m.viewport.SetContent(m.renderMessages())
			m.viewport.GotoBottom()
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		if m.state != chatIdle {
			return m, nil
		}
		if msg.Type == tea.KeyEnter {
			question := strings.TrimSpace(m.input.Value())
			if question == "" {
				return m, nil
			}
			m.input.Reset()

			switch question {
			case "/exit", "/quit":
				return m, tea.Quit
			case "/clear":
				m.messages = nil
				m.history = nil
				m.viewport.SetContent(dimStyle.Render("Conversation cleared."))
				return m, nil
			case "/docs":
				m.messages = append(m.messages, chatMessage{role: "system", content: m.documentList()})
				m.viewport.SetContent(m.renderMessages())
				m.viewport.GotoBottom()
				return m, nil
			case "/help":
				helpText := "Commands:\n  /docs   - list indexed documents\n  /clear  - clear conversation history\n  /exit   - quit\n  /help   - show this help"
				m.messages = append(m.messages, chatMessage{role: "system", content: helpText})
				m.viewport.SetContent(m.renderMessages())
				m.viewport.GotoBottom()
				return m, nil
			}

			// History handed to retrieval excludes the turn being asked;
			// its Assistant half is filled in when the answer arrives.
			priorTurns := append([]rag.Turn(nil), m.history...)
			m.messages = append(m.messages, chatMessage{role: "user", content: question})
			m.history = append(m.history, rag.Turn{User: question})
			m.state = chatAnswering
			m.viewport.SetContent(m.renderMessages())
			m.viewport.GotoBottom()

			return m, tea.Batch(
				m.spinner.Tick,
				askQuestion(m.engine, question, priorTurns),
			)
		}
	}

	if m.state == chatIdle {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m Model) documentList() string {
	docs := m.engine.Store().Documents()
	if len(docs) == 0 {
		return "No documents indexed yet. Run `docrag ingest <path>` first."
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d document(s) indexed:\n", len(docs))
	for _, d := range docs {
		fmt.Fprintf(&sb, "  %s (%d chunks)\n", d.FilePath, d.Chunks)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (m Model) renderMarkdown(content string) string {
	if m.renderer == nil {
		return assistantMsgStyle.Render(content)
	}
	rendered, err := m.renderer.Render(content)
	if err != nil {
		return assistantMsgStyle.Render(content)
	}
	return strings.TrimRight(rendered, "\n")
}

func (m Model) renderMessages() string {
	var sb strings.Builder
	for _, msg := range m.messages {
		switch msg.role {
		case "user":
			sb.WriteString(userMsgStyle.Render("You: ") + msg.content + "\n\n")
		case "assistant":
			sb.WriteString(m.renderMarkdown(msg.content) + "\n")
			if len(msg.sources) > 0 {
				var srcs []string
				for _, s := range msg.sources {
					srcs = append(srcs, fmt.Sprintf("%s#%d (%.4f)", s.FilePath, s.ChunkIndex, s.Score))
				}
				sb.WriteString(sourceStyle.Render("Sources: "+strings.Join(srcs, ", ")) + "\n")
			}
			sb.WriteString("\n")
		case "error":
			sb.WriteString(errorStyle.Render("Error: "+msg.content) + "\n\n")
		case "system":
			sb.WriteString(dimStyle.Render(msg.content) + "\n\n")
		}
	}

	if m.state != chatIdle {
		sb.WriteString(m.spinner.View() + " " + dimStyle.Render("Answering...") + "\n")
	}

	return sb.String()
}

func (m Model) View() string {
	if !m.initialized {
		return ""
	}

	statusText := "idle"
	if m.state == chatAnswering {
		statusText = "answering..."
	}
	statusBar := statusBarStyle.
		Width(m.width).
		Render(fmt.Sprintf(" docrag chat | %d docs | %s", len(m.engine.Store().Documents()), statusText))

	return lipgloss.JoinVertical(
		lipgloss.Left,
		m.viewport.View(),
		statusBar,
		m.input.View(),
	)
}

// Run starts the chat program in the alternate screen.
func Run(engine *rag.Engine, maxTurns int) error {
	p := tea.NewProgram(New(engine, maxTurns), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
