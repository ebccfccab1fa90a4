package logging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// TextFormatter renders entries as human-readable text lines.
type TextFormatter struct {
	// TimestampFormat overrides the timestamp layout.
	TimestampFormat string
	// DisableColors disables terminal colors.
	DisableColors bool
	// DisableTimestamp drops the leading timestamp.
	DisableTimestamp bool
}

// NewTextFormatter creates a text formatter with default settings.
func NewTextFormatter() *TextFormatter {
	return &TextFormatter{
		TimestampFormat: "2006-01-02 15:04:05.000",
	}
}

// Format renders one entry.
func (f *TextFormatter) Format(entry *Entry) ([]byte, error) {
	var buf bytes.Buffer

	if !f.DisableTimestamp {
		buf.WriteString(entry.Timestamp.Format(f.TimestampFormat))
		buf.WriteByte(' ')
	}

	levelText := fmt.Sprintf("[%s]", entry.Level.String())
	if !f.DisableColors {
		levelText = colorLevel(entry.Level, levelText)
	}
	buf.WriteString(levelText)
	buf.WriteByte(' ')

	if entry.RequestID != "" {
		fmt.Fprintf(&buf, "[%s] ", entry.RequestID)
	}
	if entry.Component != "" {
		buf.WriteString(entry.Component)
		buf.WriteString(": ")
	}

	buf.WriteString(entry.Message)

	if pairs := formatFields(entry); pairs != "" {
		buf.WriteString(" | ")
		buf.WriteString(pairs)
	}

	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func formatFields(entry *Entry) string {
	skip := map[string]bool{"request_id": true}
	if entry.Component != "" {
		skip["component"] = true
	}

	pairs := make([]string, 0, len(entry.Fields))
	for k, v := range entry.Fields {
		if skip[k] {
			continue
		}
		var value string
		switch val := v.(type) {
		case error:
			value = val.Error()
		case string:
			if strings.Contains(val, " ") {
				value = fmt.Sprintf("%q", val)
			} else {
				value = val
			}
		default:
			value = fmt.Sprintf("%v", v)
		}
		pairs = append(pairs, k+"="+value)
	}
	sort.Strings(pairs)
	return strings.Join(pairs, " ")
}

func colorLevel(level Level, text string) string {
	const (
		red    = "\033[31m"
		yellow = "\033[33m"
		blue   = "\033[34m"
		gray   = "\033[90m"
		reset  = "\033[0m"
	)
	switch level {
	case DebugLevel:
		return gray + text + reset
	case InfoLevel:
		return blue + text + reset
	case WarnLevel:
		return yellow + text + reset
	case ErrorLevel, FatalLevel:
		return red + text + reset
	default:
		return text
	}
}

// JSONFormatter renders entries as one JSON object per line.
type JSONFormatter struct {
	// TimestampFormat overrides the timestamp layout.
	TimestampFormat string
	// DisableTimestamp drops the timestamp member.
	DisableTimestamp bool
}

// NewJSONFormatter creates a JSON formatter with default settings.
func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	}
}

// Format renders one entry.
func (f *JSONFormatter) Format(entry *Entry) ([]byte, error) {
	data := make(map[string]interface{}, len(entry.Fields)+3)
	data["level"] = entry.Level.String()
	data["message"] = entry.Message
	if !f.DisableTimestamp {
		data["timestamp"] = entry.Timestamp.Format(f.TimestampFormat)
	}
	for k, v := range entry.Fields {
		if err, ok := v.(error); ok {
			data[k] = err.Error()
		} else {
			data[k] = v
		}
	}

	out, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal log entry: %w", err)
	}
	return append(out, '\n'), nil
}
