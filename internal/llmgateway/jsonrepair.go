package llmgateway

import (
	"encoding/json"
	"strings"
)

// repairJSON implements the §4.1 repair pipeline: strip surrounding
// prose/markdown fences, then extract the largest balanced {...} or [...]
// substring, validating that the result parses. The caller is responsible
// for the "re-issue with stricter instruction" retry step.
func repairJSON(raw string) (string, bool) {
	candidate := stripFences(raw)
	if json.Valid([]byte(candidate)) {
		return candidate, true
	}

	if extracted, ok := extractBalanced(candidate); ok && json.Valid([]byte(extracted)) {
		return extracted, true
	}

	return "", false
}

// stripFences removes ``` / ```json code fences and surrounding whitespace.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
	}
	return strings.TrimSpace(s)
}

// extractBalanced scans s for the largest balanced {...} or [...] substring,
// tolerating leading/trailing prose the LLM may have added despite
// instructions. Braces/brackets inside string literals are respected so a
// stray "}" in a text field doesn't truncate the match early.
func extractBalanced(s string) (string, bool) {
	bestStart, bestEnd := -1, -1

	for i, r := range s {
		if r != '{' && r != '[' {
			continue
		}
		open := r
		close := '}'
		if open == '[' {
			close = ']'
		}
		end, ok := matchClose(s, i, open, close)
		if !ok {
			continue
		}
		if bestStart == -1 || end-i > bestEnd-bestStart {
			bestStart, bestEnd = i, end
		}
	}

	if bestStart == -1 {
		return "", false
	}
	return s[bestStart : bestEnd+1], true
}

// matchClose finds the index of the rune that closes the bracket opened at
// start, honoring string literals and escape sequences, or false if the
// bracket never closes within s.
func matchClose(s string, start int, open, close rune) (int, bool) {
	depth := 0
	inString := false
	escaped := false

	runes := []rune(s)
	// Convert start (a byte index from range) to a rune index.
	runeStart := len([]rune(s[:start]))

	for i := runeStart; i < len(runes); i++ {
		r := runes[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}
		switch r {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				// Recompute the byte offset of rune i for slicing s.
				byteIdx := len(string(runes[:i+1]))
				return byteIdx - 1, true
			}
		}
	}
	return 0, false
}
