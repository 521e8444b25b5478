package parse

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	listMarkerPattern = regexp.MustCompile(`^(?:[-*•+>]+\s*|\(\d{1,3}\)\s*|\d{1,3}[.):]\s+)`)
	stoplistPattern   = regexp.MustCompile(`(?i)^(?:keywords?|extracted?|here|are|the|json)$`)
	sectionPattern    = regexp.MustCompile(`^\s*[#*]*\s*([A-Z][A-Z0-9]*(?:[ _][A-Z0-9]+)*)\s*[*]*\s*:\s*(.*)$`)
)

const itemTrimChars = "\"'`[]{}“”‘’ \t"

// repairList salvages list items from free-form text.
func repairList(raw string) []string {
	var items []string
	for _, line := range strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "```") || isHeaderLine(line) {
			continue
		}
		for _, part := range strings.Split(line, ",") {
			if item := cleanItem(part); item != "" {
				items = append(items, item)
			}
		}
	}
	return items
}

func cleanItem(part string) string {
	item := strings.Trim(strings.TrimSpace(part), itemTrimChars)
	item = listMarkerPattern.ReplaceAllString(item, "")
	item = strings.Trim(item, itemTrimChars)
	item = strings.TrimRight(item, ".;")
	if item == "" || stoplistPattern.MatchString(item) {
		return ""
	}
	return item
}

// isHeaderLine matches introductory lines such as "Here are the keywords:".
func isHeaderLine(line string) bool {
	return strings.HasSuffix(line, ":") && !strings.Contains(line, ",")
}

// repairObject rebuilds an object from SECTION_NAME: headers. Content before
// the first header is ignored.
func repairObject(raw string, keys []string) map[string]any {
	type section struct {
		key  string
		body []string
	}
	var sections []*section
	var current *section

	for _, line := range strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n") {
		if match := sectionPattern.FindStringSubmatch(line); match != nil {
			current = &section{key: sectionKey(match[1], keys)}
			sections = append(sections, current)
			if inline := strings.TrimSpace(match[2]); inline != "" {
				current.body = append(current.body, inline)
			}
			continue
		}
		if current != nil {
			current.body = append(current.body, line)
		}
	}

	out := make(map[string]any, len(sections))
	for _, s := range sections {
		body := strings.TrimSpace(strings.Join(s.body, "\n"))
		if body == "" {
			continue
		}
		if _, exists := out[s.key]; exists {
			continue
		}
		out[s.key] = sectionValue(body)
	}
	return out
}

func sectionValue(body string) any {
	if payload := extractJSON(body, '{'); payload != "" {
		if decoded, err := decodeJSON(payload); err == nil {
			return decoded
		}
	}
	return stripCodeFence(body)
}

// sectionKey maps a header such as WORK_EXPERIENCE to an expected key like
// workExperience, falling back to snake_case.
func sectionKey(header string, keys []string) string {
	folded := foldKey(header)
	for _, key := range keys {
		if foldKey(key) == folded {
			return key
		}
	}
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(header), " ", "_"))
}

func foldKey(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}
