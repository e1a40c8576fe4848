package builder

import (
	"strings"
	"unicode"

	"github.com/Lumos-Labs-HQ/flashgate/internal/schema"
)

// Named catalog relations blocked on every dialect, on top of the reserved
// table names.
var catalogIdentifiers = []string{
	"pg_catalog",
	"information_schema",
}

// Exec validates a caller supplied statement. It bypasses the column
// whitelist; values must still travel as bound params.
func (b *Builder) Exec(text string, params []any) (Statement, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Statement{}, invalid("sql", "statement is required")
	}
	if b.ReferencesInternalTable(text) {
		return Statement{}, invalid("sql", "statement references an internal table")
	}

	args := make([]any, 0, len(params))
	for _, p := range params {
		v, err := scalar("params", p)
		if err != nil {
			return Statement{}, err
		}
		args = append(args, v)
	}
	return Statement{Text: text, Args: args}, nil
}

// ReferencesInternalTable reports whether text mentions a reserved table in
// any letter case, including when split by whitespace, or any identifier in
// the dialect's catalog namespace.
func (b *Builder) ReferencesInternalTable(text string) bool {
	lower := strings.ToLower(text)
	compact := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, lower)

	for _, ident := range append(schema.ReservedTables(), catalogIdentifiers...) {
		if strings.Contains(lower, ident) || strings.Contains(compact, ident) {
			return true
		}
	}

	for _, word := range words(lower) {
		for _, prefix := range b.cfg.catalogPrefixes {
			if strings.HasPrefix(word, prefix) {
				return true
			}
		}
	}
	return false
}

// IsQuery reports whether a raw statement produces rows: it starts with a
// row-producing keyword or carries a RETURNING clause outside literals and
// comments.
func IsQuery(text string) bool {
	tokens := words(strings.ToLower(stripLiterals(text)))
	if len(tokens) == 0 {
		return false
	}
	switch tokens[0] {
	case "select", "with", "pragma", "explain", "values", "show":
		return true
	}
	for _, tok := range tokens[1:] {
		if tok == "returning" {
			return true
		}
	}
	return false
}

// words splits text into identifier-like tokens.
func words(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '$')
	})
}

// stripLiterals blanks out quoted strings, quoted identifiers and comments.
func stripLiterals(text string) string {
	var sb strings.Builder
	for i := 0; i < len(text); i++ {
		ch := text[i]
		switch {
		case ch == '\'' || ch == '"' || ch == '`':
			end := strings.IndexByte(text[i+1:], ch)
			if end < 0 {
				return sb.String()
			}
			i += end + 1
			sb.WriteByte(' ')
		case ch == '-' && i+1 < len(text) && text[i+1] == '-':
			end := strings.IndexByte(text[i:], '\n')
			if end < 0 {
				return sb.String()
			}
			i += end
			sb.WriteByte(' ')
		case ch == '/' && i+1 < len(text) && text[i+1] == '*':
			end := strings.Index(text[i+2:], "*/")
			if end < 0 {
				return sb.String()
			}
			i += end + 3
			sb.WriteByte(' ')
		default:
			sb.WriteByte(ch)
		}
	}
	return sb.String()
}
