// Package jslit lit des littéraux JavaScript (objets, tableaux, chaînes,
// nombres, booléens, null) sans jamais exécuter de code.
//
// Les valeurs produites suivent la convention de encoding/json :
// map[string]any, []any, string, float64, bool et nil.
package jslit

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// ErrNotFound est renvoyée par FindObject quand la propriété est absente.
var ErrNotFound = errors.New("jslit: literal not found")

const maxDepth = 512

// SyntaxError décrit une entrée qui sort de la grammaire supportée.
type SyntaxError struct {
	Offset int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("jslit: %s at offset %d", e.Msg, e.Offset)
}

// Parse lit exactement un littéral. Espaces et commentaires autour sont tolérés.
func Parse(src string) (any, error) {
	p := &parser{src: src}
	v, err := p.value(0)
	if err != nil {
		return nil, err
	}
	if err := p.skipSpace(); err != nil {
		return nil, err
	}
	if !p.eof() {
		return nil, p.errorf("unexpected trailing %q", p.src[p.pos])
	}
	return v, nil
}

// ParsePrefix lit un littéral au début de src et renvoie le nombre d'octets consommés.
// Le reste de src est ignoré.
func ParsePrefix(src string) (any, int, error) {
	p := &parser{src: src}
	v, err := p.value(0)
	if err != nil {
		return nil, p.pos, err
	}
	return v, p.pos, nil
}

type parser struct {
	src string
	pos int
}

func (p *parser) eof() bool { return p.pos >= len(p.src) }

func (p *parser) errorf(format string, args ...any) error {
	return &SyntaxError{Offset: p.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) skipSpace() error {
	for !p.eof() {
		c := p.src[p.pos]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v':
			p.pos++
		case strings.HasPrefix(p.src[p.pos:], "//"):
			end := strings.IndexAny(p.src[p.pos:], "\n\r")
			if end < 0 {
				p.pos = len(p.src)
			} else {
				p.pos += end
			}
		case strings.HasPrefix(p.src[p.pos:], "/*"):
			end := strings.Index(p.src[p.pos+2:], "*/")
			if end < 0 {
				return p.errorf("unterminated comment")
			}
			p.pos += end + 4
		default:
			// espaces insécables et BOM fréquents dans les bundles minifiés
			r, size := utf8.DecodeRuneInString(p.src[p.pos:])
			if r == '\u00a0' || r == '\ufeff' || r == '\u2028' || r == '\u2029' {
				p.pos += size
				continue
			}
			return nil
		}
	}
	return nil
}

func (p *parser) value(depth int) (any, error) {
	if depth > maxDepth {
		return nil, p.errorf("nesting too deep")
	}
	if err := p.skipSpace(); err != nil {
		return nil, err
	}
	if p.eof() {
		return nil, p.errorf("unexpected end of input")
	}
	c := p.src[p.pos]
	switch {
	case c == '{':
		return p.object(depth)
	case c == '[':
		return p.array(depth)
	case c == '"' || c == '\'' || c == '`':
		return p.string()
	case c == '!':
		return p.negation()
	case c == '-' || c == '+' || c == '.' || isDigit(c):
		return p.number()
	case isIdentStart(c):
		start := p.pos
		switch word := p.ident(); word {
		case "true":
			return true, nil
		case "false":
			return false, nil
		case "null", "undefined":
			return nil, nil
		case "NaN":
			return math.NaN(), nil
		case "Infinity":
			return math.Inf(1), nil
		default:
			p.pos = start
			return nil, p.errorf("unsupported identifier %q", word)
		}
	}
	return nil, p.errorf("unexpected character %q", c)
}

func (p *parser) object(depth int) (map[string]any, error) {
	p.pos++ // {
	out := map[string]any{}
	for {
		if err := p.skipSpace(); err != nil {
			return nil, err
		}
		if p.eof() {
			return nil, p.errorf("unterminated object")
		}
		if p.src[p.pos] == '}' {
			p.pos++
			return out, nil
		}

		key, err := p.key()
		if err != nil {
			return nil, err
		}
		if err := p.skipSpace(); err != nil {
			return nil, err
		}
		if p.eof() || p.src[p.pos] != ':' {
			return nil, p.errorf("expected ':' after key %q", key)
		}
		p.pos++

		v, err := p.value(depth + 1)
		if err != nil {
			return nil, err
		}
		out[key] = v

		if err := p.skipSpace(); err != nil {
			return nil, err
		}
		if p.eof() {
			return nil, p.errorf("unterminated object")
		}
		switch p.src[p.pos] {
		case ',':
			p.pos++
		case '}':
			p.pos++
			return out, nil
		default:
			return nil, p.errorf("expected ',' or '}' in object")
		}
	}
}

func (p *parser) key() (string, error) {
	c := p.src[p.pos]
	switch {
	case c == '"' || c == '\'':
		return p.string()
	case isDigit(c) || c == '.':
		v, err := p.number()
		if err != nil {
			return "", err
		}
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case isIdentStart(c):
		return p.ident(), nil
	case c == '[':
		return "", p.errorf("computed keys are not supported")
	}
	return "", p.errorf("unexpected character %q in object key", c)
}

func (p *parser) array(depth int) ([]any, error) {
	p.pos++ // [
	out := []any{}
	for {
		if err := p.skipSpace(); err != nil {
			return nil, err
		}
		if p.eof() {
			return nil, p.errorf("unterminated array")
		}
		switch p.src[p.pos] {
		case ']':
			p.pos++
			return out, nil
		case ',':
			// trou : [1,,2]
			p.pos++
			out = append(out, nil)
			continue
		}

		v, err := p.value(depth + 1)
		if err != nil {
			return nil, err
		}
		out = append(out, v)

		if err := p.skipSpace(); err != nil {
			return nil, err
		}
		if p.eof() {
			return nil, p.errorf("unterminated array")
		}
		switch p.src[p.pos] {
		case ',':
			p.pos++
		case ']':
			p.pos++
			return out, nil
		default:
			return nil, p.errorf("expected ',' or ']' in array")
		}
	}
}

func (p *parser) string() (string, error) {
	quote := p.src[p.pos]
	start := p.pos
	p.pos++
	var b strings.Builder
	for {
		if p.eof() {
			p.pos = start
			return "", p.errorf("unterminated string")
		}
		c := p.src[p.pos]
		switch {
		case c == quote:
			p.pos++
			return b.String(), nil
		case c == '\\':
			if err := p.escape(&b); err != nil {
				return "", err
			}
		case quote == '`' && c == '$' && strings.HasPrefix(p.src[p.pos:], "${"):
			return "", p.errorf("template substitutions are not supported")
		case quote != '`' && (c == '\n' || c == '\r'):
			return "", p.errorf("newline in string")
		default:
			b.WriteByte(c)
			p.pos++
		}
	}
}

func (p *parser) escape(b *strings.Builder) error {
	p.pos++ // backslash
	if p.eof() {
		return p.errorf("unterminated escape")
	}
	c := p.src[p.pos]
	p.pos++
	switch c {
	case 'n':
		b.WriteByte('\n')
	case 't':
		b.WriteByte('\t')
	case 'r':
		b.WriteByte('\r')
	case 'b':
		b.WriteByte('\b')
	case 'f':
		b.WriteByte('\f')
	case 'v':
		b.WriteByte('\v')
	case '0':
		b.WriteByte(0)
	case '\r':
		// continuation de ligne \r\n
		if !p.eof() && p.src[p.pos] == '\n' {
			p.pos++
		}
	case '\n':
	case 'x':
		n, err := p.hex(2)
		if err != nil {
			return err
		}
		b.WriteRune(rune(n))
	case 'u':
		r, err := p.unicodeEscape()
		if err != nil {
			return err
		}
		b.WriteRune(r)
	default:
		// \' \" \\ \/ et tout autre caractère échappé valent eux-mêmes.
		b.WriteByte(c)
	}
	return nil
}

func (p *parser) unicodeEscape() (rune, error) {
	if !p.eof() && p.src[p.pos] == '{' {
		end := strings.IndexByte(p.src[p.pos:], '}')
		if end < 0 {
			return 0, p.errorf("unterminated unicode escape")
		}
		n, err := strconv.ParseUint(p.src[p.pos+1:p.pos+end], 16, 32)
		if err != nil || n > utf8.MaxRune {
			return 0, p.errorf("invalid unicode escape")
		}
		p.pos += end + 1
		return rune(n), nil
	}
	n, err := p.hex(4)
	if err != nil {
		return 0, err
	}
	r := rune(n)
	if utf16.IsSurrogate(r) && strings.HasPrefix(p.src[p.pos:], `\u`) {
		save := p.pos
		p.pos += 2
		lo, err := p.hex(4)
		if err == nil {
			if pair := utf16.DecodeRune(r, rune(lo)); pair != utf8.RuneError {
				return pair, nil
			}
		}
		p.pos = save
	}
	return r, nil
}

func (p *parser) hex(n int) (uint64, error) {
	if p.pos+n > len(p.src) {
		return 0, p.errorf("short hex escape")
	}
	v, err := strconv.ParseUint(p.src[p.pos:p.pos+n], 16, 32)
	if err != nil {
		return 0, p.errorf("invalid hex escape")
	}
	p.pos += n
	return v, nil
}

// negation couvre la forme minifiée des booléens : !0 vaut true, !1 vaut false.
func (p *parser) negation() (bool, error) {
	p.pos++ // !
	if p.eof() || !(isDigit(p.src[p.pos]) || p.src[p.pos] == '.') {
		return false, p.errorf("only numeric negations are supported")
	}
	v, err := p.number()
	if err != nil {
		return false, err
	}
	return v == 0, nil
}

func (p *parser) number() (float64, error) {
	start := p.pos
	neg := false
	if c := p.src[p.pos]; c == '-' || c == '+' {
		neg = c == '-'
		p.pos++
	}
	if strings.HasPrefix(p.src[p.pos:], "Infinity") {
		p.pos += len("Infinity")
		if neg {
			return math.Inf(-1), nil
		}
		return math.Inf(1), nil
	}

	if rest := p.src[p.pos:]; len(rest) > 2 && rest[0] == '0' && (rest[1] == 'x' || rest[1] == 'X') {
		p.pos += 2
		digits := p.pos
		for !p.eof() && isHexDigit(p.src[p.pos]) {
			p.pos++
		}
		n, err := strconv.ParseUint(p.src[digits:p.pos], 16, 64)
		if err != nil {
			p.pos = start
			return 0, p.errorf("invalid hex number")
		}
		if neg {
			return -float64(n), nil
		}
		return float64(n), nil
	}

	digits := p.pos
	for !p.eof() && isDigit(p.src[p.pos]) {
		p.pos++
	}
	if !p.eof() && p.src[p.pos] == '.' {
		p.pos++
		for !p.eof() && isDigit(p.src[p.pos]) {
			p.pos++
		}
	}
	if !p.eof() && (p.src[p.pos] == 'e' || p.src[p.pos] == 'E') {
		p.pos++
		if !p.eof() && (p.src[p.pos] == '+' || p.src[p.pos] == '-') {
			p.pos++
		}
		for !p.eof() && isDigit(p.src[p.pos]) {
			p.pos++
		}
	}
	text := p.src[digits:p.pos]
	if text == "" || text == "." {
		p.pos = start
		return 0, p.errorf("invalid number")
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		p.pos = start
		return 0, p.errorf("invalid number %q", text)
	}
	if neg {
		v = -v
	}
	return v, nil
}

func (p *parser) ident() string {
	start := p.pos
	for !p.eof() && isIdentPart(p.src[p.pos]) {
		p.pos++
	}
	return p.src[start:p.pos]
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isHexDigit(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= 0x80
}

func isIdentPart(c byte) bool { return isIdentStart(c) || isDigit(c) }
