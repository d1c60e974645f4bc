package sexpr

import (
	"strings"
	"unicode/utf8"
)

// Quote escapes s for use inside a WAT string literal.
func Quote(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"' || c == '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		case c == '\n':
			b.WriteString(`\n`)
		case c == '\t':
			b.WriteString(`\t`)
		case c < 0x20 || c == 0x7F:
			b.WriteByte('\\')
			b.WriteByte(hexDigits[c>>4])
			b.WriteByte(hexDigits[c&0x0F])
		case c < utf8.RuneSelf:
			b.WriteByte(c)
		default:
			r, size := utf8.DecodeRuneInString(s[i:])
			if r == utf8.RuneError && size == 1 {
				b.WriteByte('\\')
				b.WriteByte(hexDigits[c>>4])
				b.WriteByte(hexDigits[c&0x0F])
				continue
			}
			b.WriteString(s[i : i+size])
			i += size - 1
		}
	}
	return b.String()
}

const hexDigits = "0123456789abcdef"

// Unquote decodes the escaped body of a WAT string literal into bytes.
func Unquote(s string) []byte {
	result := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 >= len(s) {
			result = append(result, s[i])
			continue
		}
		next := s[i+1]
		if next == 'u' && i+2 < len(s) && s[i+2] == '{' {
			end := strings.IndexByte(s[i+3:], '}')
			if end >= 0 {
				if cp, ok := parseHex(s[i+3 : i+3+end]); ok {
					result = utf8.AppendRune(result, cp)
				}
				i += 3 + end
				continue
			}
		}
		if i+2 < len(s) && isHexDigit(next) && isHexDigit(s[i+2]) {
			result = append(result, hexValue(next)<<4|hexValue(s[i+2]))
			i += 2
			continue
		}
		switch next {
		case 'n':
			result = append(result, '\n')
		case 't':
			result = append(result, '\t')
		case 'r':
			result = append(result, '\r')
		case '\\', '"', '\'':
			result = append(result, next)
		default:
			result = append(result, '\\', next)
		}
		i++
	}
	return result
}

func parseHex(s string) (rune, bool) {
	if s == "" {
		return 0, false
	}
	var val rune
	for i := 0; i < len(s); i++ {
		if s[i] == '_' {
			continue
		}
		if !isHexDigit(s[i]) {
			return 0, false
		}
		val = val*16 + rune(hexValue(s[i]))
	}
	return val, true
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func hexValue(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	}
	return 0
}
