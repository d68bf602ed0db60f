package extractor

import (
	"strings"
	"unicode/utf16"
)

// ToUnicode is a parsed ToUnicode CMap: character code bytes to Unicode text.
type ToUnicode struct {
	entries map[string]string
	lengths []int // distinct code byte lengths, longest first
}

// ParseToUnicode reads bfchar and bfrange sections. The parser is tolerant:
// malformed entries are skipped rather than failing the whole map.
func ParseToUnicode(data []byte) *ToUnicode {
	m := &ToUnicode{entries: map[string]string{}}
	toks := cmapTokens(string(data))
	lengthSet := map[int]bool{}

	for i := 0; i < len(toks); i++ {
		switch toks[i].kind {
		case tokKeyword:
			switch toks[i].text {
			case "beginbfchar":
				i = m.readBFChar(toks, i+1, lengthSet)
			case "beginbfrange":
				i = m.readBFRange(toks, i+1, lengthSet)
			case "begincodespacerange":
				for i++; i < len(toks) && toks[i].kind == tokHex; i += 2 {
					lengthSet[len(toks[i].bytes)] = true
				}
				i--
			}
		}
	}

	for l := range lengthSet {
		m.lengths = append(m.lengths, l)
	}
	for i := 0; i < len(m.lengths); i++ {
		for j := i + 1; j < len(m.lengths); j++ {
			if m.lengths[j] > m.lengths[i] {
				m.lengths[i], m.lengths[j] = m.lengths[j], m.lengths[i]
			}
		}
	}
	return m
}

func (m *ToUnicode) readBFChar(toks []cmapToken, i int, lengthSet map[int]bool) int {
	for ; i+1 < len(toks); i += 2 {
		if toks[i].kind != tokHex {
			break
		}
		if toks[i+1].kind != tokHex {
			break
		}
		src := toks[i].bytes
		m.entries[string(src)] = utf16be(toks[i+1].bytes)
		lengthSet[len(src)] = true
	}
	return i - 1
}

func (m *ToUnicode) readBFRange(toks []cmapToken, i int, lengthSet map[int]bool) int {
	for i+2 < len(toks) {
		if toks[i].kind != tokHex || toks[i+1].kind != tokHex {
			break
		}
		lo := toks[i].bytes
		hi := toks[i+1].bytes
		size := len(lo)
		lengthSet[size] = true
		loVal := beInt(lo)
		hiVal := beInt(hi)

		switch toks[i+2].kind {
		case tokHex:
			dst := beInt(toks[i+2].bytes)
			dstLen := len(toks[i+2].bytes)
			for v := loVal; v <= hiVal; v++ {
				m.entries[string(beBytes(v, size))] = utf16be(beBytes(dst+(v-loVal), dstLen))
			}
			i += 3
		case tokArrayOpen:
			i += 3
			for v := loVal; v <= hiVal && i < len(toks) && toks[i].kind == tokHex; v++ {
				m.entries[string(beBytes(v, size))] = utf16be(toks[i].bytes)
				i++
			}
			if i < len(toks) && toks[i].kind == tokArrayClose {
				i++
			}
		default:
			return i - 1
		}
	}
	return i - 1
}

// Decode maps one character code of the given byte size. The second return
// reports whether the CMap had a mapping.
func (m *ToUnicode) Decode(code, size int) (string, bool) {
	if m == nil {
		return "", false
	}
	s, ok := m.entries[string(beBytes(code, size))]
	return s, ok
}

// --- tokenizer ------------------------------------------------------------

type cmapTokenKind int

const (
	tokKeyword cmapTokenKind = iota
	tokHex
	tokArrayOpen
	tokArrayClose
)

type cmapToken struct {
	kind  cmapTokenKind
	text  string
	bytes []byte
}

func cmapTokens(src string) []cmapToken {
	var out []cmapToken
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == '%':
			for i < len(src) && src[i] != '\n' {
				i++
			}
		case c == '<':
			end := strings.IndexByte(src[i+1:], '>')
			if end < 0 {
				return out
			}
			out = append(out, cmapToken{kind: tokHex, bytes: hexBytes(src[i+1 : i+1+end])})
			i += end + 2
		case c == '[':
			out = append(out, cmapToken{kind: tokArrayOpen})
			i++
		case c == ']':
			out = append(out, cmapToken{kind: tokArrayClose})
			i++
		case c <= ' ':
			i++
		default:
			start := i
			for i < len(src) && src[i] > ' ' && src[i] != '<' && src[i] != '[' && src[i] != ']' && src[i] != '%' {
				i++
			}
			out = append(out, cmapToken{kind: tokKeyword, text: src[start:i]})
		}
	}
	return out
}

func hexBytes(s string) []byte {
	var digits []byte
	for i := 0; i < len(s); i++ {
		if v, ok := hexDigit(s[i]); ok {
			digits = append(digits, byte(v))
		}
	}
	if len(digits)%2 == 1 {
		digits = append(digits, 0)
	}
	out := make([]byte, len(digits)/2)
	for i := 0; i < len(out); i++ {
		out[i] = digits[2*i]<<4 | digits[2*i+1]
	}
	return out
}

func hexDigit(c byte) (int, bool) {
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

func beInt(b []byte) int {
	v := 0
	for _, c := range b {
		v = v<<8 | int(c)
	}
	return v
}

func beBytes(v, size int) []byte {
	out := make([]byte, size)
	for i := size - 1; i >= 0; i-- {
		out[i] = byte(v)
		v >>= 8
	}
	return out
}

func utf16be(b []byte) string {
	if len(b)%2 == 1 {
		b = b[:len(b)-1]
	}
	units := make([]uint16, len(b)/2)
	for i := range units {
		units[i] = uint16(b[2*i])<<8 | uint16(b[2*i+1])
	}
	return string(utf16.Decode(units))
}
