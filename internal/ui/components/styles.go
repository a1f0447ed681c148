package components

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/lipgloss"
)

// --- Palette based on the Gopher Bubble Tea Image ---
var (
	// The vibrant purple from the window header and straw
	colorPrimary = lipgloss.Color("#974FD7")
	// The cyan/blue from the Gopher's skin and "ssh" text
	colorSecondary = lipgloss.Color("#00ADD8")
	// The cream/beige from the tea drink (used for headers and highlights)
	colorAccent = lipgloss.Color("#F0D8B2")
	// Standard text colors
	colorText     = lipgloss.Color("#FAFAFA")
	colorSubText  = lipgloss.Color("#7D7D7D")
	colorError    = lipgloss.Color("#FF5555")
	colorInactive = lipgloss.Color("#4D4D4D")
	colorSuccess  = lipgloss.Color("42")
	colorDanger   = lipgloss.Color("196")
)

var (
	// --- General Layout Styles ---

	titleStyle = lipgloss.NewStyle().
			MarginLeft(2).
			Foreground(colorPrimary).
			Bold(true)

	sectionTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(colorPrimary).
				MarginBottom(1)

	labelStyle = lipgloss.NewStyle().Foreground(colorSubText)
	hintStyle  = lipgloss.NewStyle().Foreground(colorInactive)

	// Centered bordered box used by every form.
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorPrimary).
			Padding(1, 3).
			Width(60)

	// --- List Styles ---

	paginationStyle = list.DefaultStyles().PaginationStyle.PaddingLeft(4)
	helpStyle       = list.DefaultStyles().HelpStyle.PaddingLeft(4).PaddingBottom(1)
	groupTagStyle   = lipgloss.NewStyle().Foreground(colorSecondary)

	// --- Form & Input Styles ---

	focusedStyle = lipgloss.NewStyle().Foreground(colorPrimary)
	blurredStyle = lipgloss.NewStyle().Foreground(colorInactive)

	focusedButton = focusedStyle.Render("[ Submit ]")
	blurredButton = fmt.Sprintf("[ %s ]", blurredStyle.Render("Submit"))

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorError).
			Padding(0, 2)

	// --- File Manager Styles ---

	fmHeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Background(colorPrimary).
			Foreground(colorText).
			Align(lipgloss.Center).
			Padding(0, 1)

	fmPanelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorInactive).
			Padding(0, 1)

	fmActivePanelStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(colorSecondary).
				Padding(0, 1)

	fmDirStyle = lipgloss.NewStyle().
			Foreground(colorSecondary).
			Bold(true)

	fmSelectedStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("237")).
			Foreground(colorAccent).
			Bold(true)

	fmStatusStyle = lipgloss.NewStyle().
			Foreground(colorSubText).
			Background(lipgloss.Color("235")).
			Padding(0, 2)

	fmSuccessStyle = lipgloss.NewStyle().Foreground(colorSuccess).Bold(true)
)

// centered places a form box in the middle of the available area.
func centered(width, height int, box string) string {
	return lipgloss.Place(width, max(height-3, 0), lipgloss.Center, lipgloss.Center, box)
}
