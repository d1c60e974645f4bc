package token

import (
	"fmt"
	"unicode"
)

type Type int

const (
	LParen Type = iota
	RParen
	Ident
	String
	Number
)

func (t Type) String() string {
	switch t {
	case LParen:
		return "'('"
	case RParen:
		return "')'"
	case Ident:
		return "identifier"
	case String:
		return "string"
	case Number:
		return "number"
	}
	return "unknown"
}

// Token is a lexical unit. String tokens keep their escaped source text
// without the surrounding quotes so they can be printed back verbatim.
type Token struct {
	Value string
	Type  Type
	Line  int
}

// Tokenize splits WAT source into tokens. Keywords, $ids and numbers are
// maximal runs of idchars; the compiler emits ids such as
// $@moonbitlang/core/builtin.Show::output or $*init*/2, so every printable
// character other than parens, quotes and ';' is accepted.
func Tokenize(input string) ([]Token, error) {
	var tokens []Token
	line := 1
	runes := []rune(input)

	for i := 0; i < len(runes); i++ {
		r := runes[i]

		if r == '\n' {
			line++
			continue
		}
		if unicode.IsSpace(r) {
			continue
		}

		if r == ';' {
			if i+1 >= len(runes) || runes[i+1] != ';' {
				return nil, fmt.Errorf("line %d: unexpected ';'", line)
			}
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
			line++
			continue
		}

		if r == '(' {
			if i+1 < len(runes) && runes[i+1] == ';' {
				startLine := line
				depth := 1
				i += 2
				for i < len(runes) && depth > 0 {
					switch {
					case runes[i] == '(' && i+1 < len(runes) && runes[i+1] == ';':
						depth++
						i++
					case runes[i] == ';' && i+1 < len(runes) && runes[i+1] == ')':
						depth--
						i++
					case runes[i] == '\n':
						line++
					}
					i++
				}
				if depth > 0 {
					return nil, fmt.Errorf("line %d: unterminated block comment", startLine)
				}
				i--
				continue
			}
			tokens = append(tokens, Token{"(", LParen, line})
			continue
		}

		if r == ')' {
			tokens = append(tokens, Token{")", RParen, line})
			continue
		}

		if r == '"' {
			start := i + 1
			startLine := line
			i++
			for i < len(runes) && runes[i] != '"' {
				if runes[i] == '\\' {
					i++
				} else if runes[i] == '\n' {
					line++
				}
				i++
			}
			if i >= len(runes) {
				return nil, fmt.Errorf("line %d: unterminated string", startLine)
			}
			tokens = append(tokens, Token{string(runes[start:i]), String, startLine})
			continue
		}

		start := i
		for i < len(runes) && isIDChar(runes[i]) {
			i++
		}
		if i == start {
			return nil, fmt.Errorf("line %d: unexpected character %q", line, r)
		}
		word := string(runes[start:i])
		tokens = append(tokens, Token{word, classify(runes[start:i]), line})
		i--
	}

	return tokens, nil
}

func isIDChar(r rune) bool {
	switch r {
	case '(', ')', '"', ';', ',', '[', ']', '{', '}':
		return false
	}
	return !unicode.IsSpace(r) && unicode.IsPrint(r)
}

// classify reports Number for words that begin with a digit, optionally
// after a sign. inf and nan spellings stay identifiers; the float parsers
// handle them.
func classify(word []rune) Type {
	first := word[0]
	if first == '+' || first == '-' {
		if len(word) > 1 && unicode.IsDigit(word[1]) {
			return Number
		}
		return Ident
	}
	if first >= '0' && first <= '9' {
		return Number
	}
	return Ident
}
