package gate

import (
	"regexp"
	"strings"

	"github.com/georgeshao/fleetctx/internal/opserr"
)

// blocked keywords reject a statement wherever they appear outside literals.
var blocked = map[string]bool{
	"insert":   true,
	"update":   true,
	"delete":   true,
	"drop":     true,
	"alter":    true,
	"create":   true,
	"replace":  true,
	"attach":   true,
	"detach":   true,
	"pragma":   true,
	"vacuum":   true,
	"reindex":  true,
	"truncate": true,
}

var wordRe = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)

// Statement is a validated single read statement.
type Statement struct {
	// SQL is the statement with comments removed and the trailing
	// terminator dropped. Literals are preserved.
	SQL string
	// Normalized is SQL with whitespace collapsed.
	Normalized string
}

// Validate accepts exactly one SELECT or WITH statement containing no
// data-modifying keyword outside string literals and quoted identifiers.
func Validate(query string) (*Statement, error) {
	code, blanked, err := scan(query)
	if err != nil {
		return nil, err
	}

	code = strings.TrimSpace(code)
	blanked = strings.TrimSpace(blanked)
	if strings.HasSuffix(blanked, ";") {
		code = strings.TrimSpace(strings.TrimSuffix(code, ";"))
		blanked = strings.TrimSpace(strings.TrimSuffix(blanked, ";"))
	}
	if blanked == "" {
		return nil, opserr.New(opserr.Rejected, "empty statement")
	}
	if strings.Contains(blanked, ";") {
		return nil, opserr.New(opserr.Rejected, "multiple statements are not allowed")
	}

	head := strings.TrimLeft(blanked, "( \t\r\n")
	first := strings.ToLower(wordRe.FindString(head))
	if first == "" || !strings.HasPrefix(strings.ToLower(head), first) || (first != "select" && first != "with") {
		return nil, opserr.New(opserr.Rejected, "only SELECT or WITH statements are allowed")
	}

	for _, w := range wordRe.FindAllString(blanked, -1) {
		if blocked[strings.ToLower(w)] {
			return nil, opserr.New(opserr.Rejected, "write keyword %q is not allowed", strings.ToUpper(w))
		}
	}

	return &Statement{
		SQL:        code,
		Normalized: Normalize(code),
	}, nil
}

// Normalize collapses runs of whitespace in query.
func Normalize(query string) string {
	return strings.Join(strings.Fields(query), " ")
}

// scan walks query once and returns two renderings with comments replaced
// by a space: code keeps literals verbatim, blanked empties them.
func scan(query string) (code, blanked string, err error) {
	var c, b strings.Builder
	c.Grow(len(query))
	b.Grow(len(query))

	for i := 0; i < len(query); {
		ch := query[i]
		switch {
		case ch == '-' && i+1 < len(query) && query[i+1] == '-':
			end := strings.IndexByte(query[i:], '\n')
			if end < 0 {
				i = len(query)
			} else {
				i += end
			}
			c.WriteByte(' ')
			b.WriteByte(' ')

		case ch == '/' && i+1 < len(query) && query[i+1] == '*':
			end := strings.Index(query[i+2:], "*/")
			if end < 0 {
				return "", "", opserr.New(opserr.Rejected, "unterminated block comment")
			}
			i += 2 + end + 2
			c.WriteByte(' ')
			b.WriteByte(' ')

		case ch == '\'' || ch == '"' || ch == '`' || ch == '[':
			closer := ch
			if ch == '[' {
				closer = ']'
			}
			end, ok := literalEnd(query, i, closer)
			if !ok {
				return "", "", opserr.New(opserr.Rejected, "unterminated quoted literal")
			}
			c.WriteString(query[i : end+1])
			b.WriteByte(ch)
			b.WriteByte(closer)
			i = end + 1

		default:
			c.WriteByte(ch)
			b.WriteByte(ch)
			i++
		}
	}

	return c.String(), b.String(), nil
}

// literalEnd returns the index of the closing quote of the literal opened at
// start. A doubled quote inside the literal is an escape.
func literalEnd(s string, start int, closer byte) (int, bool) {
	for i := start + 1; i < len(s); i++ {
		if s[i] != closer {
			continue
		}
		if closer != ']' && i+1 < len(s) && s[i+1] == closer {
			i++
			continue
		}
		return i, true
	}
	return 0, false
}
