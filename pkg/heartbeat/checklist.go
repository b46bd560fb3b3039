package heartbeat

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	uncheckedPrefix = "- [ ] "
	checkedPrefix   = "- [x] "
)

// Item is one checklist entry: a tool name with optional JSON arguments.
type Item struct {
	// Raw is the exact line the item was parsed from.
	Raw  string
	Tool string
	Args map[string]interface{}
	Done bool
}

// ParseChecklist extracts checklist items from markdown content. Lines that
// are not checkbox items (headings, prose, blanks) are ignored and preserved.
// Checkbox lines whose body cannot be parsed are returned separately so the
// caller can report them; one bad line never hides the rest of the checklist.
func ParseChecklist(content string) (items []Item, malformed []string) {
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)

		var done bool
		var rest string
		switch {
		case strings.HasPrefix(trimmed, uncheckedPrefix):
			rest = strings.TrimPrefix(trimmed, uncheckedPrefix)
		case strings.HasPrefix(trimmed, checkedPrefix):
			done = true
			rest = strings.TrimPrefix(trimmed, checkedPrefix)
		default:
			continue
		}

		tool, args, err := parseItemBody(rest)
		if err != nil {
			malformed = append(malformed, trimmed)
			continue
		}

		items = append(items, Item{
			Raw:  line,
			Tool: tool,
			Args: args,
			Done: done,
		})
	}

	return items, malformed
}

// parseItemBody splits "tool_name {json args}" into its parts. Arguments are
// optional.
func parseItemBody(body string) (string, map[string]interface{}, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return "", nil, fmt.Errorf("item has no tool name")
	}

	tool := body
	var rawArgs string
	if idx := strings.Index(body, "{"); idx >= 0 {
		tool = strings.TrimSpace(body[:idx])
		rawArgs = body[idx:]
	}
	if tool == "" {
		return "", nil, fmt.Errorf("item has no tool name")
	}

	if rawArgs == "" {
		return tool, nil, nil
	}

	var args map[string]interface{}
	if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
		return "", nil, fmt.Errorf("malformed arguments: %w", err)
	}
	return tool, args, nil
}

// MarkDone returns content with the item's exact line checked off. Only the
// first matching unchecked line changes; everything else, including item
// order, is preserved.
func MarkDone(content string, item Item) string {
	lines := strings.Split(content, "\n")

	for i, line := range lines {
		if line != item.Raw {
			continue
		}
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, uncheckedPrefix) {
			continue
		}
		lines[i] = strings.Replace(line, uncheckedPrefix, checkedPrefix, 1)
		return strings.Join(lines, "\n")
	}

	return content
}
