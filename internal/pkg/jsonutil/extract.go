// Package jsonutil pulls JSON payloads out of free-form model output.
package jsonutil

import "strings"

const fence = "```"

// ExtractJSON returns the first JSON object or array found in raw, looking
// inside markdown code fences first. ok is false when nothing parseable-looking
// is present; validity is the caller's concern.
func ExtractJSON(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if block, ok := fromFence(raw); ok {
		return block, true
	}
	return firstBalanced(raw)
}

func fromFence(raw string) (string, bool) {
	start := strings.Index(raw, fence)
	if start == -1 {
		return "", false
	}
	rest := raw[start+len(fence):]
	end := strings.Index(rest, fence)
	if end == -1 {
		return "", false
	}
	block := strings.TrimLeft(rest[:end], "\r\n")
	// Drop a language tag line such as "json".
	if idx := strings.Index(block, "\n"); idx != -1 {
		first := strings.TrimSpace(block[:idx])
		if first != "" && !strings.ContainsAny(first, "[{") {
			block = block[idx+1:]
		}
	}
	block = strings.TrimSpace(block)
	if block == "" {
		return "", false
	}
	if inner, ok := firstBalanced(block); ok {
		return inner, true
	}
	return block, true
}

// firstBalanced scans for the first '{' or '[' and returns the substring up to
// its balanced closer, skipping brackets inside JSON strings.
func firstBalanced(raw string) (string, bool) {
	start := strings.IndexAny(raw, "[{")
	if start == -1 {
		return "", false
	}
	open := raw[start]
	var closer byte = '}'
	if open == '[' {
		closer = ']'
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case closer:
			depth--
			if depth == 0 {
				return raw[start : i+1], true
			}
		}
	}
	return "", false
}
