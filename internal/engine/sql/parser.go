package sql

import (
	"strings"

	"github.com/alecthomas/participle/v2"
)

var parser = participle.MustBuild[Statement](
	participle.Lexer(sqlLexer),
	participle.Unquote("String"),
	participle.CaseInsensitive("Ident"),
	participle.Elide("Whitespace", "Comment"),
	participle.UseLookahead(2),
)

// Parse parses a single SQL statement (spec §4's six statement forms,
// optionally wrapped in EXPLAIN / EXPLAIN RUN). Trailing whitespace and
// at most one trailing ';' are tolerated; Split (below) is what
// separates a multi-statement batch before each piece reaches Parse.
func Parse(stmt string) (*Statement, error) {
	stmt = strings.TrimRight(stmt, " \t\r\n")
	stmt = strings.TrimSuffix(stmt, ";")
	return parser.ParseString("", stmt)
}

// Split breaks a batch of ';'-separated statements apart, honoring
// quoted string literals so a ';' inside a TEXT value never ends a
// statement early. Empty fragments (a trailing ';', blank lines between
// statements) are dropped.
func Split(batch string) []string {
	var out []string
	var cur []rune
	inString := false
	runes := []rune(batch)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		cur = append(cur, r)
		switch {
		case r == '\'':
			if inString && i+1 < len(runes) && runes[i+1] == '\'' {
				cur = append(cur, runes[i+1])
				i++
				continue
			}
			inString = !inString
		case r == ';' && !inString:
			cur = cur[:len(cur)-1]
			if s := trimmed(cur); s != "" {
				out = append(out, s)
			}
			cur = cur[:0]
		}
	}
	if s := trimmed(cur); s != "" {
		out = append(out, s)
	}
	return out
}

func trimmed(r []rune) string {
	s := string(r)
	start, end := 0, len(s)
	for start < end && isSpace(s[start]) {
		start++
	}
	for end > start && isSpace(s[end-1]) {
		end--
	}
	return s[start:end]
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
