package generation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var errNoArray = errors.New("no statement array found")

// decodeStatements accepts a JSON array of statements, or a JSON string
// that either holds an array literal or is itself a single statement.
func decodeStatements(raw json.RawMessage) ([]string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, errors.New("missing statements")
	}

	switch raw[0] {
	case '[':
		var list []string
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, err
		}
		return clean(list), nil
	case '"':
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return nil, err
		}
		return statementsFromText(text), nil
	default:
		return nil, fmt.Errorf("unexpected statements value %.40s", raw)
	}
}

// statementsFromText reads text as an array literal only when it starts with
// '[' (directly or as the body of a ``` fence). Anything else, including a
// literal that fails to parse, is one statement, so SQL containing brackets
// is never cut apart.
func statementsFromText(text string) []string {
	body := strings.TrimSpace(text)
	if fenced, ok := fenceBody(body); ok {
		body = fenced
	}
	if strings.HasPrefix(body, "[") {
		if list, err := parseStatementArray(body); err == nil {
			return list
		}
		return clean([]string{text})
	}
	return clean([]string{body})
}

// fenceBody returns the contents of the first ``` block in text, without
// the language tag.
func fenceBody(text string) (string, bool) {
	_, rest, ok := strings.Cut(text, "```")
	if !ok {
		return "", false
	}
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 && !strings.HasPrefix(strings.TrimSpace(rest[:nl]), "[") {
		rest = rest[nl+1:]
	}
	body, _, ok := strings.Cut(rest, "```")
	if !ok {
		return "", false
	}
	return strings.TrimSpace(body), true
}

// parseStatementArray reads a complete [...] literal as a list of quoted
// strings. Both JSON and single-quoted literals, as produced by language
// models echoing Python lists, are accepted.
func parseStatementArray(literal string) ([]string, error) {
	literal = strings.TrimSpace(literal)
	if !strings.HasPrefix(literal, "[") || !strings.HasSuffix(literal, "]") || len(literal) < 2 {
		return nil, errNoArray
	}

	var list []string
	if err := json.Unmarshal([]byte(literal), &list); err == nil {
		return clean(list), nil
	}

	list, err := splitQuoted(literal[1 : len(literal)-1])
	if err != nil {
		return nil, fmt.Errorf("parse statement array: %w", err)
	}
	return clean(list), nil
}

func splitQuoted(body string) ([]string, error) {
	var out []string
	for i := 0; i < len(body); {
		switch c := body[i]; c {
		case ' ', '\t', '\n', '\r', ',':
			i++
		case '\'', '"':
			s, n, err := readQuoted(body[i:])
			if err != nil {
				return nil, fmt.Errorf("at offset %d: %w", i, err)
			}
			out = append(out, s)
			i += n
		default:
			return nil, fmt.Errorf("unexpected %q at offset %d", c, i)
		}
	}
	return out, nil
}

// readQuoted reads one quoted string starting at s[0] and returns its
// unescaped value and the number of bytes consumed.
func readQuoted(s string) (string, int, error) {
	quote := s[0]
	var b strings.Builder
	for i := 1; i < len(s); i++ {
		c := s[i]
		switch c {
		case '\\':
			i++
			if i >= len(s) {
				return "", 0, errors.New("unterminated escape")
			}
			switch s[i] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			default:
				b.WriteByte(s[i])
			}
		case quote:
			return b.String(), i + 1, nil
		default:
			b.WriteByte(c)
		}
	}
	return "", 0, errors.New("unterminated string")
}

func clean(list []string) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func joinScript(stmts []string) string {
	return strings.Join(stmts, "\n\n")
}
