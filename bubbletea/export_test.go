package bubbletea

// Truncate exports truncate for testing.
func Truncate(s string, width int) string {
	return truncate(s, width)
}

// FormatElapsed exports formatElapsed for testing.
var FormatElapsed = formatElapsed

// RenderContent exports renderContent for testing.
func RenderContent(m Model) string {
	return m.renderContent()
}
