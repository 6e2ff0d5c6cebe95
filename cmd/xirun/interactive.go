package main

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/isolates/isolate"
	"github.com/wippyai/isolates/session"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type modelState int

const (
	stateSelectIsolate modelState = iota
	stateInputShare
	stateShowResult
)

// input fields, in tab order
const (
	fieldSet = iota
	fieldShare
	fieldExport
	fieldRaise
)

type interactiveModel struct {
	err      error
	env      *env
	result   *runResult
	isolates []*isolate.Isolate
	inputs   []textinput.Model
	selected int
	focusIdx int
	state    modelState
	busy     bool
}

type execResultMsg struct {
	err    error
	result *runResult
}

func newInteractiveModel(e *env) *interactiveModel {
	isos := e.order
	if len(isos) == 0 {
		isos = []*isolate.Isolate{e.rt.Main()}
	}
	return &interactiveModel{env: e, isolates: isos, state: stateSelectIsolate}
}

func (m *interactiveModel) Init() tea.Cmd {
	return nil
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit

		case "q":
			if m.state != stateInputShare {
				return m, tea.Quit
			}

		case "up", "k":
			if m.state == stateSelectIsolate && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectIsolate && m.selected < len(m.isolates)-1 {
				m.selected++
			}

		case "enter":
			switch m.state {
			case stateSelectIsolate:
				m.prepareInputs()
				m.state = stateInputShare
				return m, textinput.Blink

			case stateInputShare:
				if m.busy {
					return m, nil
				}
				m.busy = true
				return m, m.execute

			case stateShowResult:
				m.state = stateSelectIsolate
				m.result = nil
				m.err = nil
			}

		case "tab":
			if m.state == stateInputShare {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
			}

		case "esc":
			switch m.state {
			case stateInputShare:
				m.state = stateSelectIsolate
				m.inputs = nil
			case stateShowResult:
				m.state = stateSelectIsolate
				m.result = nil
				m.err = nil
			}
		}

	case execResultMsg:
		m.busy = false
		m.result = msg.result
		m.err = msg.err
		m.state = stateShowResult
	}

	if m.state == stateInputShare {
		var cmds []tea.Cmd
		for i := range m.inputs {
			var cmd tea.Cmd
			m.inputs[i], cmd = m.inputs[i].Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	}

	return m, nil
}

func (m *interactiveModel) prepareInputs() {
	fields := []struct{ prompt, placeholder string }{
		fieldSet:    {"set: ", "name:kind=value"},
		fieldShare:  {"share: ", strings.Join(m.env.set, ",")},
		fieldExport: {"export: ", "names to hand back"},
		fieldRaise:  {"raise: ", "Type: message"},
	}
	m.inputs = make([]textinput.Model, len(fields))
	for i, f := range fields {
		ti := textinput.New()
		ti.Prompt = f.prompt
		ti.Placeholder = f.placeholder
		ti.Width = 40
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

// execute runs one session. Commands run one at a time, so the env's
// thread is never shared.
func (m *interactiveModel) execute() tea.Msg {
	if set := strings.TrimSpace(m.inputs[fieldSet].Value()); set != "" {
		if err := m.env.applySets([]string{set}); err != nil {
			return execResultMsg{err: err}
		}
	}
	res, err := m.env.execute(
		m.isolates[m.selected].Name(),
		splitList(m.inputs[fieldShare].Value()),
		splitList(m.inputs[fieldExport].Value()),
		strings.TrimSpace(m.inputs[fieldRaise].Value()),
	)
	return execResultMsg{result: res, err: err}
}

func (m *interactiveModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Isolates"))
	b.WriteString(fmt.Sprintf(" %d running\n\n", len(m.env.rt.Isolates())))

	switch m.state {
	case stateSelectIsolate:
		b.WriteString("Select an isolate to run in:\n\n")
		for i, iso := range m.isolates {
			line := fmt.Sprintf("%s %s", iso.Name(), kindStyle.Render(fmt.Sprintf("#%d", iso.ID())))
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + iso.Name()))
			} else {
				b.WriteString("  " + line)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter choose • q quit"))

	case stateInputShare:
		b.WriteString("Run in ")
		b.WriteString(nameStyle.Render(m.isolates[m.selected].Name()))
		b.WriteString("\n\n")
		for _, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString("\n")
		}
		b.WriteString("\n")
		if m.busy {
			b.WriteString(helpStyle.Render("running..."))
		} else {
			b.WriteString(helpStyle.Render("tab next field • enter run • esc back"))
		}

	case stateShowResult:
		if m.result != nil {
			b.WriteString("Bindings in ")
			b.WriteString(nameStyle.Render(m.result.iso))
			b.WriteString(":\n")
			writeBindings(&b, m.result.target)
			if len(m.result.exported) > 0 {
				b.WriteString("\nExported to main:\n")
				writeBindings(&b, m.result.exported)
			}
			b.WriteString("\n")
		}
		if m.err != nil {
			var rf *session.RunFailedError
			if stderrors.As(m.err, &rf) {
				b.WriteString(failStyle.Render("Failed: " + rf.Error()))
				b.WriteString("\n")
				b.WriteString(helpStyle.Render(rf.Detail()))
			} else {
				b.WriteString(failStyle.Render(fmt.Sprintf("Error: %v", m.err)))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("enter continue • esc back • q quit"))
	}

	return b.String()
}

func writeBindings(b *strings.Builder, bs []binding) {
	if len(bs) == 0 {
		b.WriteString("  (none)\n")
		return
	}
	for _, x := range bs {
		fmt.Fprintf(b, "  %s %s = %s\n", nameStyle.Render(x.name), kindStyle.Render(x.kind), valueStyle.Render(x.value))
	}
}

func runInteractive(e *env) error {
	p := tea.NewProgram(newInteractiveModel(e), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
