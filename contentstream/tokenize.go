package contentstream

import (
	"fmt"

	"github.com/moduluz/pdf-redactor/document"
)

// Parse tokenizes raw content-stream bytes into an operator sequence.
// Inline images (BI..EI) are skipped: the pipeline redacts image XObjects,
// and inline image data must not be misread as operators.
func Parse(data []byte) ([]document.Operation, error) {
	t := &tokenizer{src: data}
	var ops []document.Operation
	var operands []document.Operand

	for {
		t.skipWhitespace()
		if t.done() {
			break
		}
		c := t.peek()
		switch {
		case c == '%':
			t.skipComment()
		case c == '(':
			s, err := t.readLiteralString()
			if err != nil {
				return nil, err
			}
			operands = append(operands, document.StringOperand{Value: s})
		case c == '<' && t.peekAt(1) == '<':
			d, err := t.readDict()
			if err != nil {
				return nil, err
			}
			operands = append(operands, d)
		case c == '<':
			s, err := t.readHexString()
			if err != nil {
				return nil, err
			}
			operands = append(operands, document.StringOperand{Value: s})
		case c == '[':
			a, err := t.readArray()
			if err != nil {
				return nil, err
			}
			operands = append(operands, a)
		case c == '/':
			operands = append(operands, document.NameOperand{Value: t.readName()})
		case c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9'):
			n, err := t.readNumber()
			if err != nil {
				return nil, err
			}
			operands = append(operands, document.NumberOperand{Value: n})
		default:
			kw := t.readKeyword()
			switch kw {
			case "true":
				operands = append(operands, document.BoolOperand{Value: true})
			case "false":
				operands = append(operands, document.BoolOperand{Value: false})
			case "null":
				// discarded; no operator consumes null in practice
			case "BI":
				if err := t.skipInlineImage(); err != nil {
					return nil, err
				}
				operands = operands[:0]
			case "":
				return nil, fmt.Errorf("content stream: unexpected byte %q at %d", t.peek(), t.pos)
			default:
				ops = append(ops, document.Operation{Operator: kw, Operands: operands})
				operands = nil
			}
		}
	}
	return ops, nil
}

type tokenizer struct {
	src []byte
	pos int
}

func (t *tokenizer) done() bool { return t.pos >= len(t.src) }

func (t *tokenizer) peek() byte {
	if t.done() {
		return 0
	}
	return t.src[t.pos]
}

func (t *tokenizer) peekAt(off int) byte {
	if t.pos+off >= len(t.src) {
		return 0
	}
	return t.src[t.pos+off]
}

func isWhite(c byte) bool {
	switch c {
	case 0, '\t', '\n', '\f', '\r', ' ':
		return true
	}
	return false
}

func isDelim(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func (t *tokenizer) skipWhitespace() {
	for !t.done() && isWhite(t.src[t.pos]) {
		t.pos++
	}
}

func (t *tokenizer) skipComment() {
	for !t.done() && t.src[t.pos] != '\n' && t.src[t.pos] != '\r' {
		t.pos++
	}
}

func (t *tokenizer) readKeyword() string {
	start := t.pos
	for !t.done() && !isWhite(t.src[t.pos]) && !isDelim(t.src[t.pos]) {
		t.pos++
	}
	return string(t.src[start:t.pos])
}

func (t *tokenizer) readName() string {
	t.pos++ // consume '/'
	start := t.pos
	for !t.done() && !isWhite(t.src[t.pos]) && !isDelim(t.src[t.pos]) {
		t.pos++
	}
	return string(t.src[start:t.pos])
}

func (t *tokenizer) readNumber() (float64, error) {
	start := t.pos
	if c := t.peek(); c == '+' || c == '-' {
		t.pos++
	}
	for !t.done() {
		c := t.src[t.pos]
		if (c >= '0' && c <= '9') || c == '.' {
			t.pos++
			continue
		}
		break
	}
	var v float64
	if _, err := fmt.Sscanf(string(t.src[start:t.pos]), "%g", &v); err != nil {
		return 0, fmt.Errorf("content stream: bad number %q", t.src[start:t.pos])
	}
	return v, nil
}

func (t *tokenizer) readLiteralString() ([]byte, error) {
	t.pos++ // consume '('
	var out []byte
	depth := 1
	for !t.done() {
		c := t.src[t.pos]
		t.pos++
		switch c {
		case '\\':
			if t.done() {
				return nil, fmt.Errorf("content stream: unterminated escape")
			}
			e := t.src[t.pos]
			t.pos++
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
			case '\n':
				// line continuation
			case '\r':
				if t.peek() == '\n' {
					t.pos++
				}
			default:
				if e >= '0' && e <= '7' {
					v := int(e - '0')
					for i := 0; i < 2 && t.peek() >= '0' && t.peek() <= '7'; i++ {
						v = v*8 + int(t.src[t.pos]-'0')
						t.pos++
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
	return nil, fmt.Errorf("content stream: unterminated string")
}

func (t *tokenizer) readHexString() ([]byte, error) {
	t.pos++ // consume '<'
	var out []byte
	var hi byte
	haveHi := false
	for !t.done() {
		c := t.src[t.pos]
		t.pos++
		if c == '>' {
			if haveHi {
				out = append(out, hi<<4)
			}
			return out, nil
		}
		if isWhite(c) {
			continue
		}
		v, ok := hexVal(c)
		if !ok {
			return nil, fmt.Errorf("content stream: bad hex digit %q", c)
		}
		if haveHi {
			out = append(out, hi<<4|v)
			haveHi = false
		} else {
			hi = v
			haveHi = true
		}
	}
	return nil, fmt.Errorf("content stream: unterminated hex string")
}

func hexVal(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

func (t *tokenizer) readArray() (document.ArrayOperand, error) {
	t.pos++ // consume '['
	var values []document.Operand
	for {
		t.skipWhitespace()
		if t.done() {
			return document.ArrayOperand{}, fmt.Errorf("content stream: unterminated array")
		}
		c := t.peek()
		switch {
		case c == ']':
			t.pos++
			return document.ArrayOperand{Values: values}, nil
		case c == '(':
			s, err := t.readLiteralString()
			if err != nil {
				return document.ArrayOperand{}, err
			}
			values = append(values, document.StringOperand{Value: s})
		case c == '<' && t.peekAt(1) == '<':
			d, err := t.readDict()
			if err != nil {
				return document.ArrayOperand{}, err
			}
			values = append(values, d)
		case c == '<':
			s, err := t.readHexString()
			if err != nil {
				return document.ArrayOperand{}, err
			}
			values = append(values, document.StringOperand{Value: s})
		case c == '[':
			a, err := t.readArray()
			if err != nil {
				return document.ArrayOperand{}, err
			}
			values = append(values, a)
		case c == '/':
			values = append(values, document.NameOperand{Value: t.readName()})
		default:
			n, err := t.readNumber()
			if err != nil {
				return document.ArrayOperand{}, err
			}
			values = append(values, document.NumberOperand{Value: n})
		}
	}
}

func (t *tokenizer) readDict() (document.DictOperand, error) {
	t.pos += 2 // consume '<<'
	values := make(map[string]document.Operand)
	for {
		t.skipWhitespace()
		if t.done() {
			return document.DictOperand{}, fmt.Errorf("content stream: unterminated dict")
		}
		if t.peek() == '>' && t.peekAt(1) == '>' {
			t.pos += 2
			return document.DictOperand{Values: values}, nil
		}
		if t.peek() != '/' {
			return document.DictOperand{}, fmt.Errorf("content stream: dict key must be a name")
		}
		key := t.readName()
		t.skipWhitespace()
		c := t.peek()
		switch {
		case c == '(':
			s, err := t.readLiteralString()
			if err != nil {
				return document.DictOperand{}, err
			}
			values[key] = document.StringOperand{Value: s}
		case c == '<' && t.peekAt(1) == '<':
			d, err := t.readDict()
			if err != nil {
				return document.DictOperand{}, err
			}
			values[key] = d
		case c == '<':
			s, err := t.readHexString()
			if err != nil {
				return document.DictOperand{}, err
			}
			values[key] = document.StringOperand{Value: s}
		case c == '[':
			a, err := t.readArray()
			if err != nil {
				return document.DictOperand{}, err
			}
			values[key] = a
		case c == '/':
			values[key] = document.NameOperand{Value: t.readName()}
		default:
			kw := t.readKeyword()
			switch kw {
			case "true":
				values[key] = document.BoolOperand{Value: true}
			case "false":
				values[key] = document.BoolOperand{Value: false}
			case "null":
				// omit
			default:
				t.pos -= len(kw)
				n, err := t.readNumber()
				if err != nil {
					return document.DictOperand{}, err
				}
				values[key] = document.NumberOperand{Value: n}
			}
		}
	}
}

// skipInlineImage consumes everything through the EI keyword.
func (t *tokenizer) skipInlineImage() error {
	for t.pos+1 < len(t.src) {
		if t.src[t.pos] == 'E' && t.src[t.pos+1] == 'I' &&
			(t.pos == 0 || isWhite(t.src[t.pos-1])) &&
			(t.pos+2 >= len(t.src) || isWhite(t.src[t.pos+2]) || isDelim(t.src[t.pos+2])) {
			t.pos += 2
			return nil
		}
		t.pos++
	}
	return fmt.Errorf("content stream: unterminated inline image")
}
