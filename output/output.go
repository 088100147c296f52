package output

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
)

var (
	colorSuccess = lipgloss.Color("#10B981")
	colorWarning = lipgloss.Color("#F59E0B")
	colorError   = lipgloss.Color("#EF4444")
	colorInfo    = lipgloss.Color("#3B82F6")
	colorMuted   = lipgloss.Color("#6B7280")
	colorBrand   = lipgloss.Color("#B45309")

	successStyle = lipgloss.NewStyle().Foreground(colorSuccess).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(colorWarning).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(colorError).Bold(true)
	infoStyle    = lipgloss.NewStyle().Foreground(colorInfo)
	mutedStyle   = lipgloss.NewStyle().Foreground(colorMuted)
	brandStyle   = lipgloss.NewStyle().Foreground(colorBrand).Bold(true)
)

// Writer is where all helpers print. Tests swap it out.
var Writer io.Writer = os.Stdout

func line(style lipgloss.Style, icon, format string, args ...any) {
	fmt.Fprint(Writer, style.Render(icon+" "))
	fmt.Fprintf(Writer, format+"\n", args...)
}

// Success prints a success message
func Success(format string, args ...any) {
	line(successStyle, "✓", format, args...)
}

// Warning prints a warning message
func Warning(format string, args ...any) {
	line(warningStyle, "⚠", format, args...)
}

// Error prints an error message
func Error(format string, args ...any) {
	line(errorStyle, "✗", format, args...)
}

// Info prints an info message
func Info(format string, args ...any) {
	line(infoStyle, "ℹ", format, args...)
}

func Muted(format string, args ...any) {
	fmt.Fprintln(Writer, mutedStyle.Render(fmt.Sprintf(format, args...)))
}

// Section prints a header with an underline the width of the title.
func Section(title string) {
	fmt.Fprintln(Writer)
	fmt.Fprintln(Writer, brandStyle.Render(title))
	fmt.Fprintln(Writer, mutedStyle.Render(underline(len([]rune(title)))))
}

func underline(n int) string {
	s := make([]rune, n)
	for i := range s {
		s[i] = '═'
	}
	return string(s)
}

// KeyValue prints an aligned "key: value" pair.
func KeyValue(key string, value any) {
	fmt.Fprintf(Writer, "  %s %v\n", mutedStyle.Width(18).Render(key+":"), value)
}
