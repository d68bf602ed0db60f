package contentstream

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"

	"github.com/moduluz/pdf-redactor/document"
)

// Encode serializes an operator sequence back to content-stream bytes.
// Encode(Parse(b)) is semantically equivalent to b for the operator set the
// tracer understands; whitespace is normalized.
func Encode(ops []document.Operation) []byte {
	var buf bytes.Buffer
	for _, op := range ops {
		for _, operand := range op.Operands {
			writeOperand(&buf, operand)
			buf.WriteByte(' ')
		}
		buf.WriteString(op.Operator)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

func writeOperand(buf *bytes.Buffer, operand document.Operand) {
	switch v := operand.(type) {
	case document.NumberOperand:
		buf.WriteString(formatNumber(v.Value))
	case document.NameOperand:
		buf.WriteByte('/')
		buf.WriteString(v.Value)
	case document.StringOperand:
		writeString(buf, v.Value)
	case document.BoolOperand:
		buf.WriteString(strconv.FormatBool(v.Value))
	case document.ArrayOperand:
		buf.WriteByte('[')
		for i, item := range v.Values {
			if i > 0 {
				buf.WriteByte(' ')
			}
			writeOperand(buf, item)
		}
		buf.WriteByte(']')
	case document.DictOperand:
		buf.WriteString("<<")
		keys := make([]string, 0, len(v.Values))
		for key := range v.Values {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			buf.WriteByte('/')
			buf.WriteString(key)
			buf.WriteByte(' ')
			writeOperand(buf, v.Values[key])
			buf.WriteByte(' ')
		}
		buf.WriteString(">>")
	default:
		buf.WriteString("null")
	}
}

func formatNumber(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', 4, 64)
}

func writeString(buf *bytes.Buffer, data []byte) {
	buf.WriteByte('(')
	for _, c := range data {
		switch c {
		case '(', ')', '\\':
			buf.WriteByte('\\')
			buf.WriteByte(c)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if c < 0x20 || c > 0x7e {
				fmt.Fprintf(buf, `\%03o`, c)
			} else {
				buf.WriteByte(c)
			}
		}
	}
	buf.WriteByte(')')
}
