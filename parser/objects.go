package parser

import (
	"fmt"
	"strconv"
)

// Object is a parsed COS object.
type Object interface{}

type Null struct{}

type Bool bool

type Number float64

func (n Number) Int() int { return int(n) }

type Name string

type String []byte

type Array []Object

type Dict map[Name]Object

// Get resolves key, following one level of indirection through the resolver.
func (d Dict) Get(key Name) (Object, bool) {
	obj, ok := d[key]
	return obj, ok
}

type Ref struct {
	Num int
	Gen int
}

type Stream struct {
	Dict Dict
	Raw  []byte // undecoded stream bytes
}

// lexer walks raw PDF bytes producing COS objects.
type lexer struct {
	data []byte
	pos  int
}

func (lx *lexer) skipSpace() {
	for lx.pos < len(lx.data) {
		c := lx.data[lx.pos]
		if isWhite(c) {
			lx.pos++
			continue
		}
		if c == '%' {
			for lx.pos < len(lx.data) && lx.data[lx.pos] != '\n' && lx.data[lx.pos] != '\r' {
				lx.pos++
			}
			continue
		}
		break
	}
}

// parseObject reads the next object. Keywords (obj, endobj, stream, R) are
// handled by the caller via peekKeyword/expectKeyword; here a bare number
// followed by a generation and R collapses into a Ref.
func (lx *lexer) parseObject() (Object, error) {
	lx.skipSpace()
	if lx.pos >= len(lx.data) {
		return nil, fmt.Errorf("unexpected end of data at %d", lx.pos)
	}
	c := lx.data[lx.pos]
	switch {
	case c == '/':
		return lx.parseName()
	case c == '(':
		return lx.parseLiteralString()
	case c == '<':
		if lx.pos+1 < len(lx.data) && lx.data[lx.pos+1] == '<' {
			return lx.parseDictOrStream()
		}
		return lx.parseHexString()
	case c == '[':
		return lx.parseArray()
	case c == ']' || c == '>' || c == ')' || c == '{' || c == '}':
		return nil, fmt.Errorf("unexpected delimiter %q at %d", c, lx.pos)
	case c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9'):
		return lx.parseNumberOrRef()
	default:
		kw := lx.readKeyword()
		switch kw {
		case "true":
			return Bool(true), nil
		case "false":
			return Bool(false), nil
		case "null":
			return Null{}, nil
		}
		return nil, fmt.Errorf("unexpected keyword %q at %d", kw, lx.pos)
	}
}

func (lx *lexer) readKeyword() string {
	start := lx.pos
	for lx.pos < len(lx.data) && !isWhite(lx.data[lx.pos]) && !isDelim(lx.data[lx.pos]) {
		lx.pos++
	}
	return string(lx.data[start:lx.pos])
}

// peekKeyword reports whether the next token is the given keyword, consuming
// it when it is.
func (lx *lexer) peekKeyword(kw string) bool {
	lx.skipSpace()
	save := lx.pos
	if lx.readKeyword() == kw {
		return true
	}
	lx.pos = save
	return false
}

func (lx *lexer) parseName() (Name, error) {
	lx.pos++ // consume '/'
	var out []byte
	for lx.pos < len(lx.data) {
		c := lx.data[lx.pos]
		if isWhite(c) || isDelim(c) {
			break
		}
		if c == '#' && lx.pos+2 < len(lx.data) {
			hi, okH := hexVal(lx.data[lx.pos+1])
			lo, okL := hexVal(lx.data[lx.pos+2])
			if okH && okL {
				out = append(out, byte(hi<<4|lo))
				lx.pos += 3
				continue
			}
		}
		out = append(out, c)
		lx.pos++
	}
	return Name(out), nil
}

func (lx *lexer) parseLiteralString() (String, error) {
	lx.pos++ // consume '('
	var out []byte
	depth := 1
	for lx.pos < len(lx.data) {
		c := lx.data[lx.pos]
		lx.pos++
		switch c {
		case '\\':
			if lx.pos >= len(lx.data) {
				return nil, fmt.Errorf("unterminated escape at %d", lx.pos)
			}
			e := lx.data[lx.pos]
			lx.pos++
			switch e {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			case 'b':
				out = append(out, '\b')
			case 'f':
				out = append(out, '\f')
			case '(', ')', '\\':
				out = append(out, e)
			case '\r':
				if lx.pos < len(lx.data) && lx.data[lx.pos] == '\n' {
					lx.pos++
				}
			case '\n':
				// line continuation
			default:
				if e >= '0' && e <= '7' {
					v := int(e - '0')
					for k := 0; k < 2 && lx.pos < len(lx.data); k++ {
						d := lx.data[lx.pos]
						if d < '0' || d > '7' {
							break
						}
						v = v*8 + int(d-'0')
						lx.pos++
					}
					out = append(out, byte(v))
				} else {
					out = append(out, e)
				}
			}
		case '(':
			depth++
			out = append(out, c)
		case ')':
			depth--
			if depth == 0 {
				return out, nil
			}
			out = append(out, c)
		default:
			out = append(out, c)
		}
	}
	return nil, fmt.Errorf("unterminated string at %d", lx.pos)
}

func (lx *lexer) parseHexString() (String, error) {
	lx.pos++ // consume '<'
	var out []byte
	var hi int
	haveHi := false
	for lx.pos < len(lx.data) {
		c := lx.data[lx.pos]
		lx.pos++
		if c == '>' {
			if haveHi {
				out = append(out, byte(hi<<4))
			}
			return out, nil
		}
		if v, ok := hexVal(c); ok {
			if haveHi {
				out = append(out, byte(hi<<4|v))
				haveHi = false
			} else {
				hi = v
				haveHi = true
			}
		}
	}
	return nil, fmt.Errorf("unterminated hex string at %d", lx.pos)
}

func (lx *lexer) parseArray() (Array, error) {
	lx.pos++ // consume '['
	var out Array
	for {
		lx.skipSpace()
		if lx.pos >= len(lx.data) {
			return nil, fmt.Errorf("unterminated array at %d", lx.pos)
		}
		if lx.data[lx.pos] == ']' {
			lx.pos++
			return out, nil
		}
		obj, err := lx.parseObject()
		if err != nil {
			return nil, err
		}
		out = append(out, obj)
	}
}

func (lx *lexer) parseDictOrStream() (Object, error) {
	lx.pos += 2 // consume '<<'
	dict := Dict{}
	for {
		lx.skipSpace()
		if lx.pos+1 < len(lx.data) && lx.data[lx.pos] == '>' && lx.data[lx.pos+1] == '>' {
			lx.pos += 2
			break
		}
		if lx.pos >= len(lx.data) || lx.data[lx.pos] != '/' {
			return nil, fmt.Errorf("expected name key at %d", lx.pos)
		}
		key, err := lx.parseName()
		if err != nil {
			return nil, err
		}
		val, err := lx.parseObject()
		if err != nil {
			return nil, err
		}
		dict[key] = val
	}

	lx.skipSpace()
	if !lx.peekKeyword("stream") {
		return dict, nil
	}
	// stream keyword is followed by CRLF or LF
	if lx.pos < len(lx.data) && lx.data[lx.pos] == '\r' {
		lx.pos++
	}
	if lx.pos < len(lx.data) && lx.data[lx.pos] == '\n' {
		lx.pos++
	}
	return &streamMarker{dict: dict, start: lx.pos}, nil
}

// streamMarker defers stream data extraction to the parser, which can resolve
// an indirect /Length.
type streamMarker struct {
	dict  Dict
	start int
}

func (lx *lexer) parseNumberOrRef() (Object, error) {
	first, isInt, err := lx.readNumber()
	if err != nil {
		return nil, err
	}
	if !isInt || first < 0 {
		return Number(first), nil
	}
	// lookahead for "<gen> R"
	save := lx.pos
	lx.skipSpace()
	if lx.pos < len(lx.data) && lx.data[lx.pos] >= '0' && lx.data[lx.pos] <= '9' {
		gen, genInt, err := lx.readNumber()
		if err == nil && genInt {
			lx.skipSpace()
			kwSave := lx.pos
			if lx.readKeyword() == "R" {
				return Ref{Num: int(first), Gen: int(gen)}, nil
			}
			lx.pos = kwSave
		}
	}
	lx.pos = save
	return Number(first), nil
}

func (lx *lexer) readNumber() (float64, bool, error) {
	start := lx.pos
	isInt := true
	if lx.pos < len(lx.data) && (lx.data[lx.pos] == '+' || lx.data[lx.pos] == '-') {
		lx.pos++
	}
	for lx.pos < len(lx.data) {
		c := lx.data[lx.pos]
		if c >= '0' && c <= '9' {
			lx.pos++
		} else if c == '.' {
			isInt = false
			lx.pos++
		} else {
			break
		}
	}
	v, err := strconv.ParseFloat(string(lx.data[start:lx.pos]), 64)
	if err != nil {
		return 0, false, fmt.Errorf("bad number at %d: %w", start, err)
	}
	return v, isInt, nil
}

func isWhite(c byte) bool {
	return c == 0 || c == '\t' || c == '\n' || c == '\f' || c == '\r' || c == ' '
}

func isDelim(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func hexVal(c byte) (int, bool) {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0'), true
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10, true
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10, true
	}
	return 0, false
}
