package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// innerSingleQuoted matches single-quoted string literals inside a Lua
// expression, e.g. 'http://a' in loadstring(game:HttpGet('http://a')).
var innerSingleQuoted = regexp.MustCompile(`'([^']+)'`)

// SanitizeLoadstring normalizes a Load field to the canonical external
// form: the whole expression wrapped in single quotes with every inner
// string literal double-quoted, e.g.
//
//	loadstring(game:HttpGet('http://a'))  ->  'loadstring(game:HttpGet("http://a"))'
//
// The function is idempotent: applying it to its own output is a no-op.
func SanitizeLoadstring(s string) string {
	s = strings.TrimSpace(s)

	// Strip one layer of matching wrapper quotes, if any.
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			s = strings.TrimSpace(s[1 : len(s)-1])
		}
	}

	// Inner string literals must use double quotes so the single-quote
	// wrapper below cannot collide with them.
	s = innerSingleQuoted.ReplaceAllString(s, `"$1"`)

	return "'" + s + "'"
}

// ContainsBlockedTerm scans a script body case-insensitively against
// the submission denylist. The "ad" entry matches inside unrelated
// words; that tolerance is intentional.
func ContainsBlockedTerm(script string) (string, bool) {
	lower := strings.ToLower(script)
	for _, term := range []string{"key", "linkvertise", "ad"} {
		if strings.Contains(lower, term) {
			return term, true
		}
	}
	return "", false
}

// FormatLua renders a saved script table as the Lua fragment users
// paste into the loader.
func FormatLua(gamename string, scripts []ScriptEntry) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "    [%q] = {\n", gamename)
	for _, script := range scripts {
		sb.WriteString("        {\n")
		fmt.Fprintf(&sb, "            Name = %q,\n", script.Name)
		fmt.Fprintf(&sb, "            Icon = %q,\n", script.Icon)
		fmt.Fprintf(&sb, "            Description = %q,\n", script.Description)
		fmt.Fprintf(&sb, "            Load = %s\n", script.Load)
		sb.WriteString("        },\n")
	}
	sb.WriteString("    },")
	return sb.String()
}
