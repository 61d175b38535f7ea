// Package tui implements the storefront terminal interface using Bubble Tea.
package tui

import "github.com/charmbracelet/lipgloss"

// Color palette
var (
	colorPaper     = lipgloss.Color("#FAF7F2")
	colorInk       = lipgloss.Color("#2E2A26")
	colorGold      = lipgloss.Color("#B8860B")
	colorSlate     = lipgloss.Color("#6B7B8C")
	colorHighlight = lipgloss.Color("#E67E22")
	colorSuccess   = lipgloss.Color("#27AE60")
	colorHeart     = lipgloss.Color("#E74C3C")
	colorError     = lipgloss.Color("#C0392B")
	colorMuted     = lipgloss.Color("#9E9E9E")
)

// Styles holds all the lipgloss styles for the TUI.
type Styles struct {
	App lipgloss.Style

	// Header
	Header      lipgloss.Style
	HeaderTitle lipgloss.Style
	Badge       lipgloss.Style

	// List delegate
	ListItemSelected lipgloss.Style
	ListItemDesc     lipgloss.Style

	// Product
	ProductName        lipgloss.Style
	ProductBrand       lipgloss.Style
	ProductPrice       lipgloss.Style
	ProductDescription lipgloss.Style
	Liked              lipgloss.Style

	// Totals
	Discount lipgloss.Style
	Total    lipgloss.Style
	Link     lipgloss.Style

	// General
	Subtle    lipgloss.Style
	Highlight lipgloss.Style
	Error     lipgloss.Style
	Success   lipgloss.Style
	Box       lipgloss.Style
	HelpBar   lipgloss.Style
}

// DefaultStyles returns the default TUI styles.
func DefaultStyles() Styles {
	return Styles{
		App: lipgloss.NewStyle().
			Padding(1, 2),

		Header: lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(colorSlate).
			MarginBottom(1).
			Padding(0, 1),

		HeaderTitle: lipgloss.NewStyle().
			Foreground(colorGold).
			Bold(true),

		Badge: lipgloss.NewStyle().
			Foreground(colorInk).
			Background(colorGold).
			Padding(0, 1),

		ListItemSelected: lipgloss.NewStyle().
			Foreground(colorHighlight).
			Bold(true).
			PaddingLeft(1),

		ListItemDesc: lipgloss.NewStyle().
			Foreground(colorMuted),

		ProductName: lipgloss.NewStyle().
			Foreground(colorGold).
			Bold(true),

		ProductBrand: lipgloss.NewStyle().
			Foreground(colorSlate).
			Italic(true),

		ProductPrice: lipgloss.NewStyle().
			Foreground(colorSuccess).
			Bold(true),

		ProductDescription: lipgloss.NewStyle().
			Foreground(colorPaper).
			MarginTop(1).
			MarginBottom(1),

		Liked: lipgloss.NewStyle().
			Foreground(colorHeart),

		Discount: lipgloss.NewStyle().
			Foreground(colorGold),

		Total: lipgloss.NewStyle().
			Foreground(colorSuccess).
			Bold(true),

		Link: lipgloss.NewStyle().
			Foreground(colorHighlight).
			Underline(true),

		Subtle: lipgloss.NewStyle().
			Foreground(colorMuted),

		Highlight: lipgloss.NewStyle().
			Foreground(colorHighlight).
			Bold(true),

		Error: lipgloss.NewStyle().
			Foreground(colorError).
			Bold(true),

		Success: lipgloss.NewStyle().
			Foreground(colorSuccess),

		Box: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(colorSlate).
			Padding(1, 2),

		HelpBar: lipgloss.NewStyle().
			Foreground(colorMuted).
			MarginTop(1),
	}
}
