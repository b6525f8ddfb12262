package logging

import (
	"bytes"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gookit/color"
)

// Renders a record and its qualified attributes into a single line.
type Formatter interface {
	Format(r slog.Record, attrs []slog.Attr) []byte
}

// Writes logfmt-style lines: time=... level=... msg=... key=value.
type PlainFormatter struct{}

// Creates a new [PlainFormatter].
func NewPlainFormatter() *PlainFormatter {
	return &PlainFormatter{}
}

// Formats a record as a logfmt line. Attribute keys carry every group.
func (f *PlainFormatter) Format(r slog.Record, attrs []slog.Attr) []byte {
	var buf bytes.Buffer
	if !r.Time.IsZero() {
		buf.WriteString("time=")
		buf.WriteString(r.Time.Format(time.RFC3339))
		buf.WriteByte(' ')
	}
	buf.WriteString("level=")
	buf.WriteString(r.Level.String())
	buf.WriteString(" msg=")
	buf.WriteString(quote(r.Message))

	for _, a := range attrs {
		writeAttr(&buf, "", a, 0)
	}
	buf.WriteByte('\n')
	return buf.Bytes()
}

// Writes human-oriented lines with coloured levels.
//
// The outermost group (the program name) is dropped from keys. In verbose
// mode each line is prefixed with a timestamp.
type PrettyFormatter struct {
	colored bool
	verbose bool
}

// Creates a new [PrettyFormatter]. Colours are used only if colored is set,
// typically when the output stream is a terminal.
func NewPrettyFormatter(colored bool) *PrettyFormatter {
	return &PrettyFormatter{colored: colored}
}

// Enables or disables timestamps.
func (f *PrettyFormatter) SetVerbose(verbose bool) {
	f.verbose = verbose
}

// Formats a record for a terminal.
func (f *PrettyFormatter) Format(r slog.Record, attrs []slog.Attr) []byte {
	var buf bytes.Buffer
	if f.verbose && !r.Time.IsZero() {
		buf.WriteString(r.Time.Format("15:04:05.000"))
		buf.WriteByte(' ')
	}
	buf.WriteString(f.level(r.Level))
	buf.WriteByte(' ')
	buf.WriteString(r.Message)

	for _, a := range attrs {
		writeAttr(&buf, "", a, 1)
	}
	buf.WriteByte('\n')
	return buf.Bytes()
}

// Returns the fixed-width, optionally coloured level label.
func (f *PrettyFormatter) level(l slog.Level) string {
	label := fmt.Sprintf("%-5s", l.String())
	if !f.colored {
		return label
	}
	switch {
	case l >= slog.LevelError:
		return color.Red.Sprint(label)
	case l >= slog.LevelWarn:
		return color.Yellow.Sprint(label)
	case l >= slog.LevelInfo:
		return color.Cyan.Sprint(label)
	default:
		return color.Gray.Sprint(label)
	}
}

// Writes " key=value" pairs, flattening groups into dotted keys. The first
// skip group levels are not included in the key.
func writeAttr(buf *bytes.Buffer, prefix string, a slog.Attr, skip int) {
	v := a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}

	if v.Kind() == slog.KindGroup {
		next := prefix
		if skip > 0 {
			skip--
		} else if a.Key != "" {
			next = join(prefix, a.Key)
		}
		for _, child := range v.Group() {
			writeAttr(buf, next, child, skip)
		}
		return
	}

	buf.WriteByte(' ')
	buf.WriteString(join(prefix, a.Key))
	buf.WriteByte('=')
	buf.WriteString(quote(formatValue(v)))
}

// Formats a scalar value.
func formatValue(v slog.Value) string {
	switch v.Kind() {
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	case slog.KindDuration:
		return v.Duration().String()
	default:
		return v.String()
	}
}

// Joins a dotted key prefix and a key.
func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// Quotes s if it is empty or contains spaces, quotes, or '='.
func quote(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\n\"=") {
		return strconv.Quote(s)
	}
	return s
}
