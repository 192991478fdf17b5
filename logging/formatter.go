package logging

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/sirupsen/logrus"
)

// shortTokenLen is how much of a tracker token the text format shows.
const shortTokenLen = 8

var (
	componentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	levelStyles    = map[logrus.Level]lipgloss.Style{
		logrus.WarnLevel:  lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		logrus.ErrorLevel: lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		logrus.FatalLevel: lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
	}
)

// TextFormatter renders entries as one line: timestamp, level, component,
// caller, message, then the remaining fields sorted by key.
type TextFormatter struct {
	Config FormatConfig
}

// Format renders a single log entry.
func (f *TextFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b strings.Builder

	if !f.Config.DisableTimestamp {
		b.WriteString(entry.Time.Format("2006-01-02 15:04:05"))
		b.WriteString(" ")
	}

	levelStr := entry.Level.String()
	if levelStr == "warning" {
		levelStr = "warn"
	}
	level := fmt.Sprintf("[%s]", strings.ToUpper(levelStr))
	if style, ok := levelStyles[entry.Level]; ok {
		level = style.Render(level)
	}
	b.WriteString(level)

	if component, ok := entry.Data["component"]; ok && !f.Config.DisableComponent {
		b.WriteString(fmt.Sprintf(" [%s]", componentStyle.Render(fmt.Sprintf("%v", component))))
	}

	if entry.HasCaller() {
		fileName := filepath.Base(entry.Caller.File)
		funcName := filepath.Base(entry.Caller.Function)
		b.WriteString(fmt.Sprintf(" [%s:%d %s]", fileName, entry.Caller.Line, funcName))
	}

	b.WriteString(" ")
	b.WriteString(entry.Message)

	keys := make([]string, 0, len(entry.Data))
	for key := range entry.Data {
		if key != "component" {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	for _, key := range keys {
		b.WriteString(fmt.Sprintf(" %s=%s", key, formatValue(key, entry.Data[key])))
	}

	b.WriteString("\n")
	return []byte(b.String()), nil
}

// formatValue shortens tracker tokens and quotes values with whitespace,
// such as shell commands.
func formatValue(key string, value interface{}) string {
	s := fmt.Sprintf("%v", value)
	if err, ok := value.(error); ok {
		s = err.Error()
	}
	if key == "token" && len(s) > shortTokenLen {
		s = s[:shortTokenLen]
	}
	if strings.ContainsAny(s, " \t\n\"") {
		return fmt.Sprintf("%q", s)
	}
	return s
}
