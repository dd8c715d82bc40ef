package sqlguard

import (
	"errors"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokenWord tokenKind = iota
	tokenQuotedWord
	tokenSemicolon
	tokenOpenParen
	tokenOther
)

type token struct {
	kind tokenKind
	text string
}

// tokenize splits comment-free SQL into upper-cased words and punctuation.
// String literals and dollar-quoted bodies become opaque tokens. Quoted
// identifiers keep their text but are never read as keywords.
func tokenize(sql string) ([]token, error) {
	var tokens []token
	runes := []rune(sql)
	n := len(runes)

	for i := 0; i < n; {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '\'' || r == '"' || r == '`':
			j, ok := skipQuoted(runes, i, r, isEscapeString(runes, i))
			if !ok {
				return nil, errors.New("unterminated quoted text")
			}
			if r == '\'' {
				tokens = append(tokens, token{kind: tokenOther})
			} else {
				inner := strings.ReplaceAll(string(runes[i+1:j-1]), string([]rune{r, r}), string(r))
				tokens = append(tokens, token{kind: tokenQuotedWord, text: strings.ToUpper(inner)})
			}
			i = j
		case r == '$':
			if j, ok := skipDollarQuoted(runes, i); ok {
				tokens = append(tokens, token{kind: tokenOther})
				i = j
				continue
			}
			i++
		case r == ';':
			tokens = append(tokens, token{kind: tokenSemicolon, text: ";"})
			i++
		case r == '(':
			tokens = append(tokens, token{kind: tokenOpenParen, text: "("})
			i++
		case unicode.IsDigit(r):
			j := i + 1
			for j < n && (unicode.IsDigit(runes[j]) || runes[j] == '.' || runes[j] == 'e' || runes[j] == 'E') {
				j++
			}
			tokens = append(tokens, token{kind: tokenOther, text: string(runes[i:j])})
			i = j
		case isWordStart(r):
			j := i + 1
			for j < n && isWordPart(runes[j]) {
				j++
			}
			tokens = append(tokens, token{kind: tokenWord, text: strings.ToUpper(string(runes[i:j]))})
			i = j
		default:
			tokens = append(tokens, token{kind: tokenOther, text: string(r)})
			i++
		}
	}
	return tokens, nil
}

// skipQuoted returns the index after the closing quote. Doubled quotes
// inside are escapes, and so is any backslash pair when backslash is set.
func skipQuoted(runes []rune, start int, quote rune, backslash bool) (int, bool) {
	for i := start + 1; i < len(runes); i++ {
		if backslash && runes[i] == '\\' {
			i++
			continue
		}
		if runes[i] != quote {
			continue
		}
		if i+1 < len(runes) && runes[i+1] == quote {
			i++
			continue
		}
		return i + 1, true
	}
	return 0, false
}

// isEscapeString reports whether the single quote at i opens a Postgres
// escape string such as E'it\'s', where a backslash escapes the quote.
func isEscapeString(runes []rune, i int) bool {
	if runes[i] != '\'' || i == 0 {
		return false
	}
	if prefix := runes[i-1]; prefix != 'E' && prefix != 'e' {
		return false
	}
	return i < 2 || !isWordPart(runes[i-2])
}

// skipDollarQuoted handles $$...$$ and $tag$...$tag$ bodies. A lone $ such
// as a $1 placeholder is not a dollar quote.
func skipDollarQuoted(runes []rune, start int) (int, bool) {
	j := start + 1
	for j < len(runes) && (unicode.IsLetter(runes[j]) || runes[j] == '_') {
		j++
	}
	if j >= len(runes) || runes[j] != '$' {
		return 0, false
	}
	tag := string(runes[start : j+1])
	rest := string(runes[j+1:])
	end := strings.Index(rest, tag)
	if end < 0 {
		return 0, false
	}
	return j + 1 + len([]rune(rest[:end])) + len([]rune(tag)), true
}

func isWordStart(r rune) bool {
	return unicode.IsLetter(r) || r == '_'
}

func isWordPart(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '$'
}

// stripComments removes -- and /* */ comments outside quoted text. Each
// comment becomes a single space so adjacent tokens stay separated.
func stripComments(sql string) (string, error) {
	var b strings.Builder
	runes := []rune(sql)
	n := len(runes)
	for i := 0; i < n; {
		r := runes[i]
		switch {
		case r == '-' && i+1 < n && runes[i+1] == '-':
			for i < n && runes[i] != '\n' {
				i++
			}
			b.WriteRune(' ')
		case r == '/' && i+1 < n && runes[i+1] == '*':
			j := i + 2
			for j+1 < n && !(runes[j] == '*' && runes[j+1] == '/') {
				j++
			}
			if j+1 >= n {
				return "", errors.New("unterminated block comment")
			}
			i = j + 2
			b.WriteRune(' ')
		case r == '\'' || r == '"' || r == '`':
			j, ok := skipQuoted(runes, i, r, isEscapeString(runes, i))
			if !ok {
				return "", errors.New("unterminated quoted text")
			}
			b.WriteString(string(runes[i:j]))
			i = j
		case r == '$':
			if j, ok := skipDollarQuoted(runes, i); ok {
				b.WriteString(string(runes[i:j]))
				i = j
				continue
			}
			b.WriteRune(r)
			i++
		default:
			b.WriteRune(r)
			i++
		}
	}
	return b.String(), nil
}
