package extractor

import (
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
)

// staticString returns the value of a string literal or of a template literal
// without substitutions. Any other expression has no static value.
func staticString(n *sitter.Node, source []byte) (string, bool) {
	if n == nil {
		return "", false
	}
	switch n.Type() {
	case "string":
		raw := n.Content(source)
		if len(raw) < 2 {
			return "", false
		}
		return cook(raw[1:len(raw)-1], false)
	case "template_string":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			if child := n.NamedChild(i); child != nil && child.Type() == "template_substitution" {
				return "", false
			}
		}
		raw := n.Content(source)
		if len(raw) < 2 {
			return "", false
		}
		return cook(raw[1:len(raw)-1], true)
	}
	return "", false
}

// cook resolves escape sequences in the body of a string or template literal.
// Template bodies have their line endings normalized to \n and reject legacy
// octal escapes; a malformed escape leaves the literal without a cooked value.
func cook(raw string, template bool) (string, bool) {
	if template {
		raw = strings.ReplaceAll(raw, "\r\n", "\n")
		raw = strings.ReplaceAll(raw, "\r", "\n")
	}
	if !strings.ContainsRune(raw, '\\') {
		return raw, true
	}

	var b strings.Builder
	b.Grow(len(raw))
	var pendingHigh rune = -1

	flushHigh := func() {
		if pendingHigh >= 0 {
			b.WriteRune(utf8.RuneError)
			pendingHigh = -1
		}
	}
	writeUnit := func(r rune) {
		switch {
		case utf16.IsSurrogate(r) && r < 0xDC00:
			flushHigh()
			pendingHigh = r
		case utf16.IsSurrogate(r):
			if pendingHigh >= 0 {
				b.WriteRune(utf16.DecodeRune(pendingHigh, r))
				pendingHigh = -1
				return
			}
			b.WriteRune(utf8.RuneError)
		default:
			flushHigh()
			b.WriteRune(r)
		}
	}

	for i := 0; i < len(raw); {
		c := raw[i]
		if c != '\\' {
			flushHigh()
			r, size := utf8.DecodeRuneInString(raw[i:])
			b.WriteRune(r)
			i += size
			continue
		}
		i++
		if i >= len(raw) {
			return "", false
		}
		c = raw[i]
		switch c {
		case 'n':
			writeUnit('\n')
			i++
		case 't':
			writeUnit('\t')
			i++
		case 'r':
			writeUnit('\r')
			i++
		case 'b':
			writeUnit('\b')
			i++
		case 'f':
			writeUnit('\f')
			i++
		case 'v':
			writeUnit('\v')
			i++
		case '\r':
			// Line continuation.
			i++
			if i < len(raw) && raw[i] == '\n' {
				i++
			}
		case '\n':
			i++
		case 'x':
			v, ok := hexValue(raw, i+1, 2)
			if !ok {
				return "", false
			}
			writeUnit(v)
			i += 3
		case 'u':
			v, n, ok := unicodeEscape(raw, i+1)
			if !ok {
				return "", false
			}
			writeUnit(v)
			i += 1 + n
		case '0', '1', '2', '3', '4', '5', '6', '7':
			if c == '0' && (i+1 >= len(raw) || !isDigit(raw[i+1])) {
				writeUnit(0)
				i++
				continue
			}
			if template {
				return "", false
			}
			v, n := legacyOctal(raw, i)
			writeUnit(v)
			i += n
		case '8', '9':
			if template {
				return "", false
			}
			writeUnit(rune(c))
			i++
		default:
			r, size := utf8.DecodeRuneInString(raw[i:])
			// \ followed by U+2028 or U+2029 is a line continuation too.
			if r != '\u2028' && r != '\u2029' {
				writeUnit(r)
			}
			i += size
		}
	}
	flushHigh()
	return b.String(), true
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func hexDigit(c byte) (rune, bool) {
	switch {
	case c >= '0' && c <= '9':
		return rune(c - '0'), true
	case c >= 'a' && c <= 'f':
		return rune(c-'a') + 10, true
	case c >= 'A' && c <= 'F':
		return rune(c-'A') + 10, true
	}
	return 0, false
}

// hexValue reads exactly n hex digits starting at raw[at]
func hexValue(raw string, at, n int) (rune, bool) {
	if at+n > len(raw) {
		return 0, false
	}
	var v rune
	for i := at; i < at+n; i++ {
		d, ok := hexDigit(raw[i])
		if !ok {
			return 0, false
		}
		v = v<<4 | d
	}
	return v, true
}

// unicodeEscape parses the part after \u: either four hex digits or a braced
// code point. It returns the value and the number of bytes consumed.
func unicodeEscape(raw string, at int) (rune, int, bool) {
	if at < len(raw) && raw[at] == '{' {
		end := strings.IndexByte(raw[at:], '}')
		if end < 2 {
			return 0, 0, false
		}
		var v rune
		for i := at + 1; i < at+end; i++ {
			d, ok := hexDigit(raw[i])
			if !ok {
				return 0, 0, false
			}
			v = v<<4 | d
			if v > utf8.MaxRune {
				return 0, 0, false
			}
		}
		return v, end + 1, true
	}
	v, ok := hexValue(raw, at, 4)
	if !ok {
		return 0, 0, false
	}
	return v, 4, true
}

// legacyOctal reads up to three octal digits with a value of at most 0377
func legacyOctal(raw string, at int) (rune, int) {
	var v rune
	n := 0
	for at+n < len(raw) && n < 3 {
		c := raw[at+n]
		if c < '0' || c > '7' {
			break
		}
		next := v*8 + rune(c-'0')
		if next > 0377 {
			break
		}
		v = next
		n++
	}
	return v, n
}
