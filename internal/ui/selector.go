package ui

import (
	"fmt"
	"strings"

	"charm.land/bubbles/v2/list"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/nwp-tools/gribfetch/internal/apperr"
)

// DataTypeChoice is one selectable entry in the data-type selector.
type DataTypeChoice struct {
	Name       string
	CoverageID string
	// Offsets describes the configured static window, empty when the
	// window is resolved from the server.
	Offsets string
}

// dataTypeItem adapts a DataTypeChoice to the bubbles list item interface
type dataTypeItem struct {
	choice DataTypeChoice
}

func (i dataTypeItem) Title() string { return i.choice.Name }

func (i dataTypeItem) Description() string {
	desc := Dim.Render(i.choice.CoverageID)
	if i.choice.Offsets != "" {
		desc += " " + Muted.Render("window "+i.choice.Offsets)
	}
	return desc
}

func (i dataTypeItem) FilterValue() string { return i.choice.Name }

// dataTypeSelectorModel is the Bubble Tea model for the interactive selector
type dataTypeSelectorModel struct {
	list      list.Model
	model     string
	chosen    string
	confirmed bool
	quitting  bool
	width     int
	height    int
}

// NewDataTypeSelector creates a new interactive data-type selector for the
// given model's configured data types.
func NewDataTypeSelector(model string, choices []DataTypeChoice) *dataTypeSelectorModel {
	delegate := list.NewDefaultDelegate()
	delegate.SetHeight(2)
	delegate.SetSpacing(0)

	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.
		Foreground(ColorSecondary).
		BorderForeground(ColorPrimary)
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.
		Foreground(ColorTextDim).
		BorderForeground(ColorPrimary)

	items := make([]list.Item, len(choices))
	for i, c := range choices {
		items[i] = dataTypeItem{choice: c}
	}

	l := list.New(items, delegate, 0, 0)
	l.Title = "Select a data type"
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(true)
	l.SetShowHelp(true)
	l.Styles.Title = lipgloss.NewStyle().
		Foreground(ColorPrimary).
		Bold(true).
		Padding(0, 0, 1, 0)

	return &dataTypeSelectorModel{
		list:   l,
		model:  model,
		width:  80,
		height: 24,
	}
}

// Init initializes the model
func (m *dataTypeSelectorModel) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m *dataTypeSelectorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		// Let the list consume keys while its filter input is active
		if m.list.FilterState() == list.Filtering {
			break
		}
		switch msg.String() {
		case "ctrl+c", "esc", "q":
			m.quitting = true
			return m, tea.Quit
		case "enter":
			if i, ok := m.list.SelectedItem().(dataTypeItem); ok {
				m.chosen = i.choice.Name
				m.confirmed = true
			}
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(msg.Width-4, msg.Height-6)
		return m, nil
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View renders the model
func (m *dataTypeSelectorModel) View() tea.View {
	if m.quitting {
		return tea.NewView("")
	}

	var b strings.Builder

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorPrimary).
		Padding(1, 0)
	b.WriteString(titleStyle.Render(fmt.Sprintf("Data types for %s", m.model)))
	b.WriteString("\n\n")

	b.WriteString(m.list.View())
	b.WriteString("\n")

	helpStyle := lipgloss.NewStyle().Foreground(ColorTextDim)
	b.WriteString(helpStyle.Render("↑/↓: navigate · enter: confirm · /: filter · esc: cancel"))

	return tea.NewView(b.String())
}

// RunDataTypeSelector runs the interactive selector and returns the chosen
// data-type name. Aborting the selector returns apperr.ErrCancelled.
func RunDataTypeSelector(model string, choices []DataTypeChoice) (string, error) {
	p := tea.NewProgram(NewDataTypeSelector(model, choices))
	m, err := p.Run()
	if err != nil {
		return "", err
	}

	sel := m.(*dataTypeSelectorModel)
	if !sel.confirmed {
		return "", apperr.ErrCancelled
	}

	return sel.chosen, nil
}
