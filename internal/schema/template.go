package schema

import "strings"

// Placeholders returns the distinct {identifier} names in s, in order of
// first appearance. Braces without a valid identifier are ignored.
func Placeholders(s string) []string {
	var names []string
	seen := map[string]bool{}
	for {
		open := strings.IndexByte(s, '{')
		if open < 0 {
			return names
		}
		rest := s[open+1:]
		end := strings.IndexByte(rest, '}')
		if end < 0 {
			return names
		}
		name := rest[:end]
		if isIdentifier(name) {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
			s = rest[end+1:]
		} else {
			s = rest
		}
	}
}

// Expand replaces each {identifier} in s with lookup(identifier).
// Identifiers lookup cannot resolve are left verbatim, braces included.
func Expand(s string, lookup func(name string) (string, bool)) string {
	var b strings.Builder
	for {
		open := strings.IndexByte(s, '{')
		if open < 0 {
			b.WriteString(s)
			return b.String()
		}
		rest := s[open+1:]
		end := strings.IndexByte(rest, '}')
		if end < 0 {
			b.WriteString(s)
			return b.String()
		}
		name := rest[:end]
		if !isIdentifier(name) {
			b.WriteString(s[:open+1])
			s = rest
			continue
		}
		b.WriteString(s[:open])
		if v, ok := lookup(name); ok {
			b.WriteString(v)
		} else {
			b.WriteString("{" + name + "}")
		}
		s = rest[end+1:]
	}
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}
