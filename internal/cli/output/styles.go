package output

import "github.com/charmbracelet/lipgloss"

// Styles are the lipgloss styles used for text output.
type Styles struct {
	Header1 lipgloss.Style
	Header2 lipgloss.Style
	Bold    lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Info    lipgloss.Style
	// LotID highlights lot identifiers.
	LotID lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) *Styles {
	return &Styles{
		Header1: r.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Underline(true),
		Header2: r.NewStyle().Bold(true).Foreground(lipgloss.Color("14")),
		Bold:    r.NewStyle().Bold(true),
		Muted:   r.NewStyle().Foreground(lipgloss.Color("8")),
		Success: r.NewStyle().Foreground(lipgloss.Color("10")),
		Warning: r.NewStyle().Foreground(lipgloss.Color("11")),
		Error:   r.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		Info:    r.NewStyle().Foreground(lipgloss.Color("12")),
		LotID:   r.NewStyle().Foreground(lipgloss.Color("13")),
	}
}

// Status renders s in the colour matching its tone: "ok", "warn", "bad" or
// anything else for plain.
func (s *Styles) Status(text, tone string) string {
	switch tone {
	case "ok":
		return s.Success.Render(text)
	case "warn":
		return s.Warning.Render(text)
	case "bad":
		return s.Error.Render(text)
	}
	return text
}
