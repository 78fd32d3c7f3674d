package notifier

import (
	"strings"
	"time"

	"quorum/internal/pkg/text"
)

const maxStructuredMessageLen = 3800

type MessageSection struct {
	Title string
	Lines []string
}

// StructuredMessage is the common layout of every push: header, fenced sections, footer.
type StructuredMessage struct {
	Icon      string
	Title     string
	Sections  []MessageSection
	Footer    string
	Timestamp time.Time
}

// RenderMarkdown renders the message and truncates it to Telegram's practical limit.
func (m StructuredMessage) RenderMarkdown() string {
	var b strings.Builder
	if header := strings.TrimSpace(m.Icon + " " + m.Title); header != "" {
		b.WriteString(header + "\n\n")
	}
	b.WriteString(renderSections(m.Sections))
	if footer := strings.TrimSpace(m.Footer); footer != "" {
		b.WriteString(sanitize(footer) + "\n")
	}
	if !m.Timestamp.IsZero() {
		b.WriteString("at " + m.Timestamp.Format("2006-01-02 15:04:05 MST"))
	}
	return text.Truncate(strings.TrimSpace(b.String()), maxStructuredMessageLen)
}

func renderSections(secs []MessageSection) string {
	var b strings.Builder
	for _, sec := range secs {
		lines := sanitizeLines(sec.Lines)
		if len(lines) == 0 {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		if title := strings.TrimSpace(sec.Title); title != "" {
			b.WriteString(sanitize(title) + "\n")
		}
		for _, line := range lines {
			b.WriteString("- " + sanitize(line) + "\n")
		}
	}
	if b.Len() == 0 {
		return ""
	}
	return "```\n" + b.String() + "```\n\n"
}

func sanitizeLines(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func sanitize(s string) string {
	return strings.ReplaceAll(s, "```", "'''")
}
