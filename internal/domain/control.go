package domain

import "strings"

// Control file formats as HEC-HMS writes them: day-first date without a
// leading zero on the day, 24-hour minutes. The four window lines carry a
// five-space indent.
const (
	controlDateLayout = "2 January 2006"
	controlTimeLayout = "15:04"
	controlIndent     = "     "
)

// PatchControlText splices a run window into control-specification text.
//
// A line whose content (after leading whitespace) starts with one of the four
// window labels is replaced wholesale; every other line, including comments
// and blank lines, passes through byte-identical in its original position.
// Applying the same window twice yields identical output.
func PatchControlText(text string, w RunWindow) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		body := strings.TrimSuffix(line, "\r")
		switch {
		case labelled(body, "Start Date:"):
			lines[i] = controlIndent + "Start Date: " + w.Start.Format(controlDateLayout)
		case labelled(body, "End Date:"):
			lines[i] = controlIndent + "End Date: " + w.End.Format(controlDateLayout)
		case labelled(body, "Start Time:"):
			lines[i] = controlIndent + "Start Time: " + w.Start.Format(controlTimeLayout)
		case labelled(body, "End Time:"):
			lines[i] = controlIndent + "End Time: " + w.End.Format(controlTimeLayout)
		}
	}
	return strings.Join(lines, "\n")
}

func labelled(line, label string) bool {
	return strings.HasPrefix(strings.TrimLeft(line, " \t"), label)
}
