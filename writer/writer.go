// Package writer serializes the document model back to PDF bytes. Content
// streams are re-encoded from their operator sequences and Flate-compressed,
// so glyphs removed by the editor are gone from the output file, not hidden.
package writer

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"sort"
	"strconv"

	"github.com/moduluz/pdf-redactor/contentstream"
	"github.com/moduluz/pdf-redactor/coords"
	"github.com/moduluz/pdf-redactor/document"
)

type name string
type ref int
type dict map[string]any
type array []any
type stream struct {
	dict dict
	data []byte
}

// Writer serializes documents as classic PDF 1.7 files with an uncompressed
// cross-reference table.
type Writer struct {
	Compress bool // Flate content streams and raw image data
}

func New() *Writer { return &Writer{Compress: true} }

// Write renders the document. Object numbering is stable for a given
// document, so writing twice yields identical bytes.
func (w *Writer) Write(doc *document.Document) ([]byte, error) {
	b := &builder{objects: map[int]any{}}

	catalogNum := b.reserve()
	pagesNum := b.reserve()

	var infoNum int
	if doc.Info != (document.Info{}) {
		infoNum = b.add(infoDict(doc.Info))
	}
	var metaNum int
	if len(doc.Metadata) > 0 {
		metaNum = b.add(stream{
			dict: dict{
				"Type":    name("Metadata"),
				"Subtype": name("XML"),
				"Length":  len(doc.Metadata),
			},
			data: doc.Metadata,
		})
	}

	kids := make(array, 0, len(doc.Pages))
	for _, page := range doc.Pages {
		pageNum, err := w.addPage(b, page, pagesNum)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page.Index, err)
		}
		kids = append(kids, ref(pageNum))
	}

	b.objects[pagesNum] = dict{
		"Type":  name("Pages"),
		"Count": len(doc.Pages),
		"Kids":  kids,
	}

	catalog := dict{"Type": name("Catalog"), "Pages": ref(pagesNum)}
	if doc.Lang != "" {
		catalog["Lang"] = []byte(doc.Lang)
	}
	if metaNum != 0 {
		catalog["Metadata"] = ref(metaNum)
	}
	b.objects[catalogNum] = catalog

	return b.serialize(doc.Version, catalogNum, infoNum)
}

func (w *Writer) addPage(b *builder, page *document.Page, parent int) (int, error) {
	var contentRefs array
	for _, cs := range page.Contents {
		data := contentstream.Encode(cs.Operations)
		sd := dict{}
		if w.Compress {
			data = flate(data)
			sd["Filter"] = name("FlateDecode")
		}
		sd["Length"] = len(data)
		contentRefs = append(contentRefs, ref(b.add(stream{dict: sd, data: data})))
	}

	resNum, err := w.addResources(b, page.Resources)
	if err != nil {
		return 0, err
	}

	pd := dict{
		"Type":     name("Page"),
		"Parent":   ref(parent),
		"MediaBox": rectArray(page.MediaBox),
	}
	if !page.CropBox.IsEmpty() {
		pd["CropBox"] = rectArray(page.CropBox)
	}
	if page.Rotate != 0 {
		pd["Rotate"] = page.Rotate
	}
	if resNum != 0 {
		pd["Resources"] = ref(resNum)
	}
	switch len(contentRefs) {
	case 0:
	case 1:
		pd["Contents"] = contentRefs[0]
	default:
		pd["Contents"] = contentRefs
	}
	return b.add(pd), nil
}

func (w *Writer) addResources(b *builder, res *document.Resources) (int, error) {
	if res == nil || (len(res.Fonts) == 0 && len(res.XObjects) == 0) {
		return 0, nil
	}
	rd := dict{}
	if len(res.Fonts) > 0 {
		fonts := dict{}
		for fname, font := range res.Fonts {
			fonts[fname] = ref(w.addFont(b, font))
		}
		rd["Font"] = fonts
	}
	if len(res.XObjects) > 0 {
		xobjs := dict{}
		for xname, xo := range res.XObjects {
			num, err := w.addXObject(b, xo)
			if err != nil {
				return 0, err
			}
			xobjs[xname] = ref(num)
		}
		rd["XObject"] = xobjs
	}
	return b.add(rd), nil
}

func (w *Writer) addFont(b *builder, font *document.Font) int {
	fd := dict{"Type": name("Font")}
	if font.Subtype != "" {
		fd["Subtype"] = name(font.Subtype)
	}
	if font.BaseFont != "" {
		fd["BaseFont"] = name(font.BaseFont)
	}
	if len(font.ToUnicodeCMap) > 0 {
		data := font.ToUnicodeCMap
		sd := dict{}
		if w.Compress {
			data = flate(data)
			sd["Filter"] = name("FlateDecode")
		}
		sd["Length"] = len(data)
		fd["ToUnicode"] = ref(b.add(stream{dict: sd, data: data}))
	}

	if font.TwoByte {
		cid := dict{
			"Type":     name("Font"),
			"Subtype":  name("CIDFontType2"),
			"BaseFont": name(font.BaseFont),
			"CIDSystemInfo": dict{
				"Registry":   []byte("Adobe"),
				"Ordering":   []byte("Identity"),
				"Supplement": 0,
			},
		}
		if font.DefaultWidth > 0 {
			cid["DW"] = font.DefaultWidth
		}
		if len(font.Widths) > 0 {
			cid["W"] = cidWidthArray(font.Widths)
		}
		fd["Subtype"] = name("Type0")
		fd["Encoding"] = name("Identity-H")
		fd["DescendantFonts"] = array{ref(b.add(cid))}
		return b.add(fd)
	}

	if len(font.Widths) > 0 {
		first, last := widthRange(font.Widths)
		widths := make(array, 0, last-first+1)
		for c := first; c <= last; c++ {
			if v, ok := font.Widths[c]; ok {
				widths = append(widths, v)
			} else {
				widths = append(widths, font.WidthOf(c))
			}
		}
		fd["FirstChar"] = first
		fd["LastChar"] = last
		fd["Widths"] = widths
	}
	return b.add(fd)
}

func widthRange(widths map[int]int) (first, last int) {
	init := false
	for c := range widths {
		if !init || c < first {
			first = c
		}
		if !init || c > last {
			last = c
		}
		init = true
	}
	return first, last
}

// cidWidthArray emits /W as cFirst cLast w for uniform consecutive runs and
// c [w...] for mixed ones.
func cidWidthArray(widths map[int]int) array {
	codes := make([]int, 0, len(widths))
	for c := range widths {
		codes = append(codes, c)
	}
	sort.Ints(codes)

	var out array
	for i := 0; i < len(codes); {
		j := i
		for j+1 < len(codes) && codes[j+1] == codes[j]+1 {
			j++
		}
		uniform := true
		for k := i + 1; k <= j; k++ {
			if widths[codes[k]] != widths[codes[i]] {
				uniform = false
				break
			}
		}
		if uniform && j > i {
			out = append(out, codes[i], codes[j], widths[codes[i]])
		} else {
			run := make(array, 0, j-i+1)
			for k := i; k <= j; k++ {
				run = append(run, widths[codes[k]])
			}
			out = append(out, codes[i], run)
		}
		i = j + 1
	}
	return out
}

func (w *Writer) addXObject(b *builder, xo *document.XObject) (int, error) {
	sd := dict{
		"Type":    name("XObject"),
		"Subtype": name(xo.Subtype),
	}
	data := xo.Data
	if xo.Subtype == "Image" {
		sd["Width"] = xo.Width
		sd["Height"] = xo.Height
		sd["BitsPerComponent"] = xo.BitsPerComponent
		if xo.ColorSpace != "" {
			sd["ColorSpace"] = name(xo.ColorSpace)
		}
		switch {
		case len(xo.Filters) > 0:
			// still carries its original codec (e.g. DCTDecode)
			filters := make(array, len(xo.Filters))
			for i, f := range xo.Filters {
				filters[i] = name(f)
			}
			sd["Filter"] = filters
		case w.Compress:
			data = flate(data)
			sd["Filter"] = name("FlateDecode")
		}
	}
	sd["Length"] = len(data)
	return b.add(stream{dict: sd, data: data}), nil
}

func infoDict(info document.Info) dict {
	d := dict{}
	set := func(key, val string) {
		if val != "" {
			d[key] = textString(val)
		}
	}
	set("Title", info.Title)
	set("Author", info.Author)
	set("Subject", info.Subject)
	set("Creator", info.Creator)
	set("Producer", info.Producer)
	return d
}

// textString encodes a Go string as a PDF text string: Latin-1 when it fits,
// UTF-16BE with BOM otherwise.
func textString(s string) []byte {
	ascii := true
	for _, r := range s {
		if r > 0xFF {
			ascii = false
			break
		}
	}
	if ascii {
		out := make([]byte, 0, len(s))
		for _, r := range s {
			out = append(out, byte(r))
		}
		return out
	}
	out := []byte{0xFE, 0xFF}
	for _, r := range s {
		out = append(out, byte(r>>8), byte(r))
	}
	return out
}

func rectArray(r coords.Rect) array {
	return array{r.LLX, r.LLY, r.URX, r.URY}
}

func flate(data []byte) []byte {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	zw.Write(data)
	zw.Close()
	return buf.Bytes()
}

// --- builder --------------------------------------------------------------

type builder struct {
	objects map[int]any
	next    int
}

func (b *builder) reserve() int {
	b.next++
	return b.next
}

func (b *builder) add(obj any) int {
	num := b.reserve()
	b.objects[num] = obj
	return num
}

func (b *builder) serialize(version string, rootNum, infoNum int) ([]byte, error) {
	if version == "" {
		version = "1.7"
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%%PDF-%s\n%%\xE2\xE3\xCF\xD3\n", version)

	nums := make([]int, 0, len(b.objects))
	for num := range b.objects {
		nums = append(nums, num)
	}
	sort.Ints(nums)

	offsets := make(map[int]int, len(nums))
	for _, num := range nums {
		offsets[num] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n", num)
		if err := writeObject(&buf, b.objects[num]); err != nil {
			return nil, fmt.Errorf("object %d: %w", num, err)
		}
		buf.WriteString("\nendobj\n")
	}

	xrefOffset := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", b.next+1)
	buf.WriteString("0000000000 65535 f \n")
	for i := 1; i <= b.next; i++ {
		if off, ok := offsets[i]; ok {
			fmt.Fprintf(&buf, "%010d 00000 n \n", off)
		} else {
			buf.WriteString("0000000000 65535 f \n")
		}
	}

	trailer := dict{"Size": b.next + 1, "Root": ref(rootNum)}
	if infoNum != 0 {
		trailer["Info"] = ref(infoNum)
	}
	buf.WriteString("trailer\n")
	if err := writeObject(&buf, trailer); err != nil {
		return nil, err
	}
	fmt.Fprintf(&buf, "\nstartxref\n%d\n%%%%EOF\n", xrefOffset)
	return buf.Bytes(), nil
}

func writeObject(buf *bytes.Buffer, obj any) error {
	switch v := obj.(type) {
	case name:
		buf.WriteByte('/')
		buf.WriteString(string(v))
	case ref:
		fmt.Fprintf(buf, "%d 0 R", int(v))
	case int:
		buf.WriteString(strconv.Itoa(v))
	case float64:
		buf.WriteString(formatFloat(v))
	case bool:
		if v {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case []byte:
		writeLiteralString(buf, v)
	case array:
		buf.WriteByte('[')
		for i, item := range v {
			if i > 0 {
				buf.WriteByte(' ')
			}
			if err := writeObject(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case dict:
		buf.WriteString("<<")
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			buf.WriteByte('/')
			buf.WriteString(k)
			buf.WriteByte(' ')
			if err := writeObject(buf, v[k]); err != nil {
				return err
			}
		}
		buf.WriteString(">>")
	case stream:
		if err := writeObject(buf, v.dict); err != nil {
			return err
		}
		buf.WriteString("\nstream\n")
		buf.Write(v.data)
		buf.WriteString("\nendstream")
	case nil:
		buf.WriteString("null")
	default:
		return fmt.Errorf("unsupported object type %T", obj)
	}
	return nil
}

func writeLiteralString(buf *bytes.Buffer, s []byte) {
	buf.WriteByte('(')
	for _, c := range s {
		switch {
		case c == '(' || c == ')' || c == '\\':
			buf.WriteByte('\\')
			buf.WriteByte(c)
		case c == '\n':
			buf.WriteString(`\n`)
		case c == '\r':
			buf.WriteString(`\r`)
		case c < 0x20:
			fmt.Fprintf(buf, `\%03o`, c)
		default:
			buf.WriteByte(c)
		}
	}
	buf.WriteByte(')')
}

func formatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', 5, 64)
	s = trimTrailingZeros(s)
	return s
}

func trimTrailingZeros(s string) string {
	if !bytes.ContainsRune([]byte(s), '.') {
		return s
	}
	i := len(s)
	for i > 0 && s[i-1] == '0' {
		i--
	}
	if i > 0 && s[i-1] == '.' {
		i--
	}
	return s[:i]
}
