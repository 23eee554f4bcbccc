package views

import (
	"fmt"
	"strings"
)

type CapturedItemData struct {
	ID     string
	Kind   string
	Text   string
	DueAt  string
	Tags   []string
	People []string
	Queued bool
}

func RenderCapturePanel(inputView string, last *CapturedItemData) string {
	var b strings.Builder
	b.WriteString("Capture\n")
	b.WriteString(inputView)
	b.WriteString("\n")
	if last == nil {
		b.WriteString("\n(nothing captured yet)")
		return b.String()
	}
	b.WriteString("\nlast capture:\n")
	if last.Queued {
		b.WriteString("  queued for sync (offline)\n")
		b.WriteString(fmt.Sprintf("  text: %s\n", last.Text))
		return strings.TrimRight(b.String(), "\n")
	}
	b.WriteString(fmt.Sprintf("  [%s] %s\n", last.Kind, last.Text))
	if last.DueAt != "" {
		b.WriteString(fmt.Sprintf("  due: %s\n", last.DueAt))
	}
	if len(last.Tags) > 0 {
		b.WriteString(fmt.Sprintf("  tags: %s\n", strings.Join(last.Tags, ", ")))
	}
	if len(last.People) > 0 {
		b.WriteString(fmt.Sprintf("  people: %s\n", strings.Join(last.People, ", ")))
	}
	return strings.TrimRight(b.String(), "\n")
}

type RecordRowData struct {
	ID       string
	Text     string
	DueAt    string
	Priority string
	Done     bool
}

func RenderRecordsPanel(title string, rows []RecordRowData, cursor int) string {
	var b strings.Builder
	b.WriteString(title)
	b.WriteString("\n")
	if len(rows) == 0 {
		b.WriteString("(empty)")
		return b.String()
	}
	for i, row := range rows {
		marker := "  "
		if i == cursor {
			marker = "> "
		}
		check := "[ ]"
		if row.Done {
			check = "[x]"
		}
		line := fmt.Sprintf("%s%s %s", marker, check, row.Text)
		if row.DueAt != "" {
			line += " | due " + row.DueAt
		}
		if row.Priority != "" && row.Priority != "med" {
			line += " | " + row.Priority
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func RenderQueueBadge(count int, offline bool) string {
	mode := "online"
	if offline {
		mode = "OFFLINE"
	}
	if count == 0 {
		return fmt.Sprintf("%s | queue empty", mode)
	}
	return fmt.Sprintf("%s | %d queued write(s) pending", mode, count)
}

func RenderCommandPalette(active bool, input string) string {
	if !active {
		return ""
	}
	return "command> /" + input
}

const helpMarkdown = `## Keys

- **enter** capture the input line
- **/** command palette (capture, done, sync, offline, find)
- **tab** switch tasks / memories pane
- **j / k** move cursor
- **d** toggle done on selected task
- **s** sync queued writes
- **o** toggle simulated offline
- **r** refresh listings
- **?** toggle help
- **q** quit
`

func RenderHelpPanel() string {
	return RenderMarkdown(helpMarkdown)
}
