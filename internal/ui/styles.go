package ui

import (
	"image/color"

	"charm.land/lipgloss/v2"
	"github.com/charmbracelet/fang"
)

// Color palette for the application (single source of truth)
var (
	// Primary colors
	ColorPrimary   = lipgloss.Color("#2563EB") // Blue
	ColorSecondary = lipgloss.Color("#06B6D4") // Cyan
	ColorSuccess   = lipgloss.Color("#10B981") // Green
	ColorWarning   = lipgloss.Color("#F59E0B") // Amber
	ColorError     = lipgloss.Color("#EF4444") // Red
	ColorMuted     = lipgloss.Color("#6B7280") // Gray

	// Text colors
	ColorText     = lipgloss.Color("#F9FAFB") // White
	ColorTextDim  = lipgloss.Color("#9CA3AF") // Light gray
	ColorTextMute = lipgloss.Color("#6B7280") // Muted gray
)

// styleWrapper wraps a lipgloss style
type styleWrapper struct {
	style lipgloss.Style
}

// Render renders the string with the style
func (s styleWrapper) Render(str string) string {
	return s.style.Render(str)
}

// Text styles using lipgloss
var (
	// Bold text
	Bold = styleWrapper{lipgloss.NewStyle().Bold(true)}

	// Dimmed text for secondary information
	Dim = styleWrapper{lipgloss.NewStyle().Foreground(ColorTextDim)}

	// Muted text for hints
	Muted = styleWrapper{lipgloss.NewStyle().Foreground(ColorTextMute)}

	// Success text (green)
	Success = styleWrapper{lipgloss.NewStyle().Foreground(ColorSuccess)}

	// Warning text (amber)
	Warning = styleWrapper{lipgloss.NewStyle().Foreground(ColorWarning)}

	// Error text (red)
	Error = styleWrapper{lipgloss.NewStyle().Foreground(ColorError)}

	// Primary accent text (blue)
	Primary = styleWrapper{lipgloss.NewStyle().Foreground(ColorPrimary)}

	// Secondary accent text (cyan)
	Secondary = styleWrapper{lipgloss.NewStyle().Foreground(ColorSecondary)}

	// Main title style
	Title = styleWrapper{lipgloss.NewStyle().Foreground(ColorPrimary).Bold(true)}

	// Section header
	SectionHeader = styleWrapper{lipgloss.NewStyle().Foreground(ColorSecondary).Bold(true)}
)

// Step status styles
var (
	// Pending step (not started)
	StepPending = styleWrapper{lipgloss.NewStyle().Foreground(ColorMuted)}

	// Running step (in progress)
	StepRunning = styleWrapper{lipgloss.NewStyle().Foreground(ColorSecondary)}

	// Completed step
	StepComplete = styleWrapper{lipgloss.NewStyle().Foreground(ColorSuccess)}

	// Failed step
	StepFailed = styleWrapper{lipgloss.NewStyle().Foreground(ColorError)}

	// Skipped step
	StepSkipped = styleWrapper{lipgloss.NewStyle().Foreground(ColorWarning)}
)

// Status indicators (functions to ensure fresh rendering)

// GetCheckMark returns a styled check mark
func GetCheckMark() string { return Success.Render("✓") }

// GetCrossMark returns a styled cross mark
func GetCrossMark() string { return Error.Render("✗") }

// GetWarnMark returns a styled warning mark
func GetWarnMark() string { return Warning.Render("⚠") }

// GetInfoMark returns a styled info mark
func GetInfoMark() string { return Secondary.Render("ℹ") }

// GetBullet returns a styled bullet point
func GetBullet() string { return Muted.Render("•") }

// FormatKeyValue formats a key-value pair with styling
func FormatKeyValue(key, value string) string {
	return Dim.Render(key+": ") + value
}

// FangColorScheme returns a Fang color scheme based on the application's color palette
func FangColorScheme(c lipgloss.LightDarkFunc) fang.ColorScheme {
	return fang.ColorScheme{
		Base:           ColorText,
		Title:          ColorPrimary,
		Description:    ColorTextDim,
		Codeblock:      c(lipgloss.Color("#1F2937"), lipgloss.Color("#2F2E36")),
		Program:        ColorSecondary,
		DimmedArgument: ColorMuted,
		Comment:        ColorMuted,
		Flag:           ColorSuccess,
		FlagDefault:    ColorTextDim,
		Command:        ColorSecondary,
		QuotedString:   ColorSecondary,
		Argument:       ColorText,
		Help:           ColorTextDim,
		Dash:           ColorMuted,
		ErrorHeader:    [2]color.Color{ColorText, ColorError},
		ErrorDetails:   ColorError,
	}
}

// BannerASCII is the ASCII art banner for the application
const BannerASCII = `
              _ _      __      _       _
   __ _ _ __ (_) |__  / _| ___| |_ ___| |__
  / _` + "`" + ` | '__|| | '_ \| |_ / _ \ __/ __| '_ \
 | (_| | |   | | |_) |  _|  __/ || (__| | | |
  \__, |_|   |_|_.__/|_|  \___|\__\___|_| |_|
  |___/
`

// RenderBanner renders the banner with the secondary color (cyan)
func RenderBanner(banner string) string {
	return Secondary.Render(banner)
}
