package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	promptTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.AdaptiveColor{Light: "#7D56F4", Dark: "#AD8EE6"})

	promptSelectedStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.AdaptiveColor{Light: "#00AA00", Dark: "#00FF00"})

	promptUnselectedStyle = lipgloss.NewStyle().
				Foreground(lipgloss.AdaptiveColor{Light: "#666666", Dark: "#888888"})

	promptCursorStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.AdaptiveColor{Light: "#7D56F4", Dark: "#AD8EE6"})

	promptDimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#999999", Dark: "#666666"})
)

const cursorMark = "❯ "

func promptHeader(b *strings.Builder, title, description string) {
	b.WriteString(promptTitleStyle.Render("? "+title) + "\n")
	if description != "" {
		b.WriteString(promptDimStyle.Render("  "+description) + "\n")
	}
	b.WriteString("\n")
}

// YesNoPrompt asks a yes/no question
type YesNoPrompt struct {
	question    string
	description string
	selected    bool // true = Yes
	confirmed   bool
}

// NewYesNoPrompt creates a new yes/no prompt
func NewYesNoPrompt(question, description string, defaultYes bool) YesNoPrompt {
	return YesNoPrompt{question: question, description: description, selected: defaultYes}
}

func (m YesNoPrompt) Init() tea.Cmd { return nil }

func (m YesNoPrompt) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if k, ok := msg.(tea.KeyMsg); ok {
		switch k.String() {
		case "left", "h":
			m.selected = true
		case "right", "l":
			m.selected = false
		case "tab":
			m.selected = !m.selected
		case "y", "Y":
			m.selected, m.confirmed = true, true
			return m, tea.Quit
		case "n", "N":
			m.selected, m.confirmed = false, true
			return m, tea.Quit
		case "enter":
			m.confirmed = true
			return m, tea.Quit
		case "ctrl+c", "esc", "q":
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m YesNoPrompt) View() string {
	var b strings.Builder
	promptHeader(&b, m.question, m.description)

	option := func(label string, on bool) string {
		if on {
			return promptCursorStyle.Render(cursorMark) + promptSelectedStyle.Render(label)
		}
		return "  " + promptUnselectedStyle.Render(label)
	}
	b.WriteString(option("Yes", m.selected) + "    " + option("No", !m.selected) + "\n\n")
	b.WriteString(promptDimStyle.Render("  y/n or ← → and enter • esc to cancel"))
	return b.String()
}

// Result returns the answer and whether it was given.
func (m YesNoPrompt) Result() (bool, bool) {
	return m.selected, m.confirmed
}

// RunYesNoPrompt asks the question; a cancelled prompt answers no.
func RunYesNoPrompt(question, description string, defaultYes bool) (bool, error) {
	model, err := tea.NewProgram(NewYesNoPrompt(question, description, defaultYes)).Run()
	if err != nil {
		return false, err
	}
	answer, ok := model.(YesNoPrompt).Result()
	return answer && ok, nil
}

// SelectOption represents an option in the select prompt
type SelectOption struct {
	Label       string
	Value       string
	Description string
}

// SelectPrompt picks one option from a list
type SelectPrompt struct {
	title       string
	description string
	options     []SelectOption
	cursor      int
	confirmed   bool
}

// NewSelectPrompt creates a new selection prompt
func NewSelectPrompt(title, description string, options []SelectOption) SelectPrompt {
	return SelectPrompt{title: title, description: description, options: options}
}

func (m SelectPrompt) Init() tea.Cmd { return nil }

func (m SelectPrompt) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if k, ok := msg.(tea.KeyMsg); ok {
		switch k.String() {
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.options)-1 {
				m.cursor++
			}
		case "enter":
			m.confirmed = true
			return m, tea.Quit
		case "ctrl+c", "esc", "q":
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m SelectPrompt) View() string {
	var b strings.Builder
	promptHeader(&b, m.title, m.description)

	for i, opt := range m.options {
		if i != m.cursor {
			b.WriteString("  " + promptUnselectedStyle.Render(opt.Label) + "\n")
			continue
		}
		b.WriteString(promptCursorStyle.Render(cursorMark) + promptSelectedStyle.Render(opt.Label))
		if opt.Description != "" {
			b.WriteString(promptDimStyle.Render(" - " + opt.Description))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n" + promptDimStyle.Render("  ↑ ↓ to navigate • enter to select • esc to cancel"))
	return b.String()
}

// Result returns the option under the cursor and whether it was chosen.
func (m SelectPrompt) Result() (SelectOption, bool) {
	if m.cursor < 0 || m.cursor >= len(m.options) {
		return SelectOption{}, false
	}
	return m.options[m.cursor], m.confirmed
}

// RunSelectPrompt runs the prompt. ok is false when the user cancelled.
func RunSelectPrompt(title, description string, options []SelectOption) (opt SelectOption, ok bool, err error) {
	model, err := tea.NewProgram(NewSelectPrompt(title, description, options)).Run()
	if err != nil {
		return SelectOption{}, false, err
	}
	opt, ok = model.(SelectPrompt).Result()
	return opt, ok, nil
}

// TextInputPrompt reads one line of text
type TextInputPrompt struct {
	title       string
	description string
	defaultVal  string
	input       textinput.Model
	confirmed   bool
}

// NewTextInputPrompt creates a new text input prompt. An empty answer
// takes defaultVal.
func NewTextInputPrompt(title, description, defaultVal string) TextInputPrompt {
	ti := textinput.New()
	ti.Placeholder = defaultVal
	ti.CharLimit = 256
	ti.Width = 50
	ti.Focus()
	return TextInputPrompt{title: title, description: description, defaultVal: defaultVal, input: ti}
}

func (m TextInputPrompt) Init() tea.Cmd {
	return textinput.Blink
}

func (m TextInputPrompt) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if k, ok := msg.(tea.KeyMsg); ok {
		switch k.String() {
		case "enter":
			m.confirmed = true
			return m, tea.Quit
		case "ctrl+c", "esc":
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m TextInputPrompt) View() string {
	var b strings.Builder
	promptHeader(&b, m.title, m.description)
	b.WriteString("  " + m.input.View() + "\n")
	if m.defaultVal != "" && m.input.Value() == "" {
		b.WriteString(promptDimStyle.Render("  enter keeps "+m.defaultVal) + "\n")
	}
	b.WriteString("\n" + promptDimStyle.Render("  enter to confirm • esc to cancel"))
	return b.String()
}

// Result returns the entered value and whether it was confirmed
func (m TextInputPrompt) Result() (string, bool) {
	value := strings.TrimSpace(m.input.Value())
	if value == "" {
		value = m.defaultVal
	}
	return value, m.confirmed
}

// RunTextInputPrompt runs the prompt. ok is false when the user cancelled.
func RunTextInputPrompt(title, description, defaultVal string) (value string, ok bool, err error) {
	model, err := tea.NewProgram(NewTextInputPrompt(title, description, defaultVal)).Run()
	if err != nil {
		return "", false, err
	}
	value, ok = model.(TextInputPrompt).Result()
	return value, ok, nil
}

// PrintHeader prints a styled header
func PrintHeader(text string) {
	style := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.AdaptiveColor{Light: "#7D56F4", Dark: "#AD8EE6"}).
		MarginBottom(1)
	fmt.Println(style.Render("  " + text))
}

// PrintSuccess prints a success message with checkmark
func PrintSuccess(text string) {
	fmt.Println(eventOKStyle.Render("✔") + " " + text)
}

// PrintWarning prints a warning message
func PrintWarning(text string) {
	style := lipgloss.NewStyle().
		Foreground(lipgloss.AdaptiveColor{Light: "#CC6600", Dark: "#FFAA00"})
	fmt.Println(style.Render("⚠") + " " + text)
}

// PrintError prints an error message
func PrintError(text string) {
	fmt.Println(eventFailStyle.Render("✖") + " " + text)
}

// PrintInfo prints an info message
func PrintInfo(text string) {
	fmt.Println(eventInfoStyle.Render("ℹ") + " " + text)
}

// PrintHighlight prints a label and value pair
func PrintHighlight(label, value string) {
	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.AdaptiveColor{Light: "#666666", Dark: "#999999"})
	valueStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.AdaptiveColor{Light: "#333333", Dark: "#FFFFFF"})
	fmt.Println("  " + labelStyle.Render(label+":") + " " + valueStyle.Render(value))
}

// StatusBadge renders a service status green when running, red otherwise.
func StatusBadge(running bool) string {
	if running {
		return eventOKStyle.Bold(true).Render("● running")
	}
	return eventFailStyle.Bold(true).Render("○ stopped")
}
