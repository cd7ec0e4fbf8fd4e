// Package sqlscript turns multi-statement SQL scripts into individual statements.
package sqlscript

import "strings"

// Split breaks a SQL script into trimmed statements separated by ';'.
//
// Lines starting with "--" (ignoring leading blanks) are dropped before scanning.
// Semicolons inside single- or double-quoted strings do not terminate a statement;
// a quote preceded by a backslash does not close the string. This is intentionally
// simpler than full SQL quoting rules.
func Split(script string) []string {
	lines := strings.Split(script, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimLeft(line, " \t\r"), "--") {
			continue
		}
		kept = append(kept, line)
	}

	text := strings.TrimSpace(strings.Join(kept, "\n"))
	if text == "" {
		return nil
	}

	var (
		statements []string
		buf        strings.Builder
		quote      rune
		prev       rune
	)

	flush := func() {
		if stmt := strings.TrimSpace(buf.String()); stmt != "" {
			statements = append(statements, stmt)
		}
		buf.Reset()
	}

	for _, ch := range text {
		switch {
		case ch == '\'' || ch == '"':
			if quote == 0 {
				quote = ch
			} else if quote == ch && prev != '\\' {
				quote = 0
			}
			buf.WriteRune(ch)
		case ch == ';' && quote == 0:
			flush()
		default:
			buf.WriteRune(ch)
		}
		prev = ch
	}
	flush()

	return statements
}
