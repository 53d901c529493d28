package utils

import "strings"

// ParseBool reports whether s spells an enabled flag ("true", "1", "yes", "on", "enabled").
func ParseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "on", "enabled":
		return true
	}
	return false
}

// TrimQuotes strips one matching pair of surrounding single or double quotes.
func TrimQuotes(s string) string {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return s
	}
	first, last := s[0], s[len(s)-1]
	if first == last && (first == '"' || first == '\'') {
		return s[1 : len(s)-1]
	}
	return s
}

// IsComment reports whether line is blank or a # comment.
func IsComment(line string) bool {
	trimmed := strings.TrimSpace(line)
	return trimmed == "" || trimmed[0] == '#'
}

// scanValue walks s honoring quotes and backslash escapes. It returns the
// index of the first unquoted '#' (or -1) and, when s opens with a quote,
// the index of the matching closing quote (or -1).
func scanValue(s string) (commentIdx, closeIdx int) {
	commentIdx, closeIdx = -1, -1
	var quote byte
	escaped := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case escaped:
			escaped = false
		case ch == '\\':
			escaped = true
		case quote != 0:
			if ch == quote {
				quote = 0
				if closeIdx < 0 && i > 0 && (s[0] == '"' || s[0] == '\'') {
					closeIdx = i
				}
			}
		case ch == '"' || ch == '\'':
			quote = ch
		case ch == '#':
			return i, closeIdx
		}
	}
	return commentIdx, closeIdx
}

// SplitKeyValue splits a KEY=VALUE line, dropping trailing inline comments
// and surrounding quotes. An "export " prefix on the key is accepted.
func SplitKeyValue(line string) (string, string, bool) {
	key, rest, found := strings.Cut(line, "=")
	if !found {
		return "", "", false
	}
	key = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(key), "export "))
	if key == "" {
		return "", "", false
	}

	value := strings.TrimSpace(rest)
	commentIdx, closeIdx := scanValue(value)
	switch {
	case closeIdx >= 0:
		value = value[:closeIdx+1]
	case commentIdx >= 0:
		value = strings.TrimSpace(value[:commentIdx])
	}
	return key, TrimQuotes(value), true
}

// SplitList splits a list value on commas, semicolons, pipes and newlines,
// trimming whitespace and quotes and dropping empty elements.
func SplitList(value string) []string {
	parts := strings.FieldsFunc(value, func(r rune) bool {
		return r == ',' || r == ';' || r == '|' || r == '\n'
	})
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := TrimQuotes(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// UniqueStrings returns values without duplicates, keeping first occurrences in order.
func UniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
