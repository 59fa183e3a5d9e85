package summarizer

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/tiermem/internal/memory"
)

// maxPromptEntries caps how many entries are listed in a prompt.
const maxPromptEntries = 20

// BuildPrompt renders the instruction sent to a language model.
func BuildPrompt(entries []*memory.Entry, mode Mode) string {
	var sb strings.Builder

	if mode == ModeDeepArchive {
		sb.WriteString("Condense the following memory summaries into one long-term archive record.\n")
	} else {
		sb.WriteString("Summarize the following memories.\n")
	}
	sb.WriteString("\nMemories:\n")

	n := 0
	for _, e := range entries {
		if e == nil {
			continue
		}
		if n == maxPromptEntries {
			break
		}
		n++
		fmt.Fprintf(&sb, "%d. %s\n", n, normalize(e.Content))
	}

	sb.WriteString("\nRequirements:\n")
	if mode == ModeDeepArchive {
		sb.WriteString("1. Keep only what has lasting significance: relationships, turning points, losses\n")
		sb.WriteString("2. Drop routine detail\n")
		sb.WriteString("3. At most 60 characters\n")
	} else {
		sb.WriteString("1. Extract the places, people and events\n")
		sb.WriteString("2. Merge similar events and mark their frequency as ×N\n")
		sb.WriteString("3. At most 80 characters\n")
	}
	sb.WriteString("4. Output the summary text only, no JSON or other formatting\n")

	return sb.String()
}
