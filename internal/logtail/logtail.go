package logtail

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Read returns at most maxLines from the end of the file at path.
func Read(path string, maxLines int) ([]string, error) {
	if maxLines <= 0 {
		return nil, nil
	}
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer file.Close()

	ring := make([]string, maxLines)
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	count := 0
	idx := 0
	for scanner.Scan() {
		ring[idx] = scanner.Text()
		idx = (idx + 1) % maxLines
		if count < maxLines {
			count++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}

	lines := make([]string, count)
	if count == maxLines {
		for i := 0; i < count; i++ {
			lines[i] = ring[(idx+i)%maxLines]
		}
	} else {
		copy(lines, ring[:count])
	}
	return lines, nil
}

// Level is the severity parsed out of a log line.
type Level int

const (
	LevelUnknown Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

// lineRE matches the text format of charmbracelet/log:
//
//	2026/10/16 14:32:15 INFO <poller/poller.go:88> status changed component=poller
var lineRE = regexp.MustCompile(`^(\d{4}[/-]\d{2}[/-]\d{2}[ T]\d{2}:\d{2}:\d{2}\S*)\s+(DEBU|INFO|WARN|ERRO|FATA)\s+(.*)$`)

var fieldRE = regexp.MustCompile(`(\w+)=("(?:[^"\\]|\\.)*"|\S+)`)

// ParseLevel returns the severity of a line, or LevelUnknown for lines that
// are not log records (continuations, stack traces).
func ParseLevel(line string) Level {
	m := lineRE.FindStringSubmatch(line)
	if m == nil {
		return LevelUnknown
	}
	switch m[2] {
	case "DEBU":
		return LevelDebug
	case "INFO":
		return LevelInfo
	case "WARN":
		return LevelWarn
	default:
		return LevelError
	}
}

// Filter keeps lines at or above min. Unparsed lines follow the record they
// continue.
func Filter(lines []string, min Level) []string {
	if min <= LevelDebug {
		return lines
	}
	var out []string
	keep := false
	for _, line := range lines {
		if lvl := ParseLevel(line); lvl != LevelUnknown {
			keep = lvl >= min
		}
		if keep {
			out = append(out, line)
		}
	}
	return out
}

// Palette styles the parts of a log line.
type Palette struct {
	Timestamp lipgloss.Style
	Debug     lipgloss.Style
	Info      lipgloss.Style
	Warn      lipgloss.Style
	Error     lipgloss.Style
	Caller    lipgloss.Style
	Key       lipgloss.Style
	Detail    lipgloss.Style
}

// ColorizeLine styles one line. Lines that do not parse are rendered as
// detail text.
func (p Palette) ColorizeLine(line string) string {
	m := lineRE.FindStringSubmatch(line)
	if m == nil {
		return p.Detail.Render(line)
	}
	var b strings.Builder
	b.WriteString(p.Timestamp.Render(m[1]))
	b.WriteString(" ")
	b.WriteString(p.levelStyle(m[2]).Render(m[2]))
	b.WriteString(" ")

	rest := m[3]
	if strings.HasPrefix(rest, "<") {
		if end := strings.Index(rest, ">"); end > 0 {
			b.WriteString(p.Caller.Render(rest[:end+1]))
			rest = rest[end+1:]
		}
	}
	last := 0
	for _, loc := range fieldRE.FindAllStringSubmatchIndex(rest, -1) {
		b.WriteString(rest[last:loc[0]])
		b.WriteString(p.Key.Render(rest[loc[2]:loc[3]] + "="))
		b.WriteString(rest[loc[4]:loc[5]])
		last = loc[1]
	}
	b.WriteString(rest[last:])
	return b.String()
}

// ColorizeLines styles every line.
func (p Palette) ColorizeLines(lines []string) []string {
	out := make([]string, len(lines))
	for i, line := range lines {
		out[i] = p.ColorizeLine(line)
	}
	return out
}

func (p Palette) levelStyle(level string) lipgloss.Style {
	switch level {
	case "DEBU":
		return p.Debug
	case "INFO":
		return p.Info
	case "WARN":
		return p.Warn
	default:
		return p.Error
	}
}
