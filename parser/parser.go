// Package parser reads classic-PDF files into the document model. It resolves
// the cross-reference table (with a brute-force object scan as the recovery
// path), loads the page tree with attribute inheritance, and decodes the
// streams the redaction pipeline needs to rewrite.
package parser

import (
	"bytes"
	"compress/zlib"
	"context"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/moduluz/pdf-redactor/contentstream"
	"github.com/moduluz/pdf-redactor/coords"
	"github.com/moduluz/pdf-redactor/document"
)

// Parser turns raw PDF bytes into a document.Document.
type Parser struct {
	data    []byte
	offsets map[int]int // object number -> byte offset
	trailer Dict
	cache   map[Ref]Object
}

func New() *Parser { return &Parser{} }

// Parse loads the whole document. The byte slice is retained until Parse
// returns; the resulting Document owns copies of everything it needs.
func (p *Parser) Parse(ctx context.Context, data []byte) (*document.Document, error) {
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		return nil, fmt.Errorf("not a PDF: missing header")
	}
	p.data = data
	p.cache = make(map[Ref]Object)

	if err := p.resolveXRef(); err != nil {
		// damaged or stream-based xref: fall back to scanning for objects
		if scanErr := p.scanObjects(); scanErr != nil {
			return nil, fmt.Errorf("resolve xref: %w", err)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	doc := &document.Document{Version: headerVersion(data)}
	p.populateInfo(doc)

	rootObj, ok := p.trailer["Root"]
	if !ok {
		return nil, fmt.Errorf("trailer has no /Root")
	}
	catalog, ok := p.resolve(rootObj).(Dict)
	if !ok {
		return nil, fmt.Errorf("catalog is not a dictionary")
	}
	if lang, ok := p.resolve(catalog["Lang"]).(String); ok {
		doc.Lang = string(lang)
	}
	if meta, ok := p.resolve(catalog["Metadata"]).(*Stream); ok {
		if data, err := p.decodeStream(meta); err == nil {
			doc.Metadata = data
		}
	}

	pagesObj, ok := catalog["Pages"]
	if !ok {
		return nil, fmt.Errorf("catalog has no /Pages")
	}
	if err := p.walkPages(ctx, doc, p.resolve(pagesObj), inherited{}, 0); err != nil {
		return nil, err
	}
	if len(doc.Pages) == 0 {
		return nil, fmt.Errorf("document has no pages")
	}
	return doc, nil
}

func headerVersion(data []byte) string {
	end := bytes.IndexAny(data, "\r\n")
	if end < 0 || end > 16 {
		end = 16
	}
	return strings.TrimPrefix(string(data[:end]), "%PDF-")
}

// --- xref -----------------------------------------------------------------

func (p *Parser) resolveXRef() error {
	tail := p.data
	if len(tail) > 2048 {
		tail = tail[len(tail)-2048:]
	}
	idx := bytes.LastIndex(tail, []byte("startxref"))
	if idx < 0 {
		return fmt.Errorf("startxref not found")
	}
	lx := &lexer{data: tail, pos: idx + len("startxref")}
	off, isInt, err := numberAfterSpace(lx)
	if err != nil || !isInt {
		return fmt.Errorf("bad startxref offset")
	}

	p.offsets = make(map[int]int)
	seen := map[int]bool{}
	for {
		offset := int(off)
		if offset < 0 || offset >= len(p.data) || seen[offset] {
			return fmt.Errorf("bad xref offset %d", offset)
		}
		seen[offset] = true
		trailer, err := p.readXRefSection(offset)
		if err != nil {
			return err
		}
		if p.trailer == nil {
			p.trailer = trailer
		}
		prev, ok := trailer["Prev"]
		if !ok {
			return nil
		}
		n, ok := prev.(Number)
		if !ok {
			return fmt.Errorf("bad /Prev")
		}
		off = float64(n)
	}
}

func numberAfterSpace(lx *lexer) (float64, bool, error) {
	lx.skipSpace()
	return lx.readNumber()
}

// readXRefSection parses one classic xref table and its trailer. Entries from
// earlier (deeper /Prev) sections never override later ones.
func (p *Parser) readXRefSection(offset int) (Dict, error) {
	lx := &lexer{data: p.data, pos: offset}
	if !lx.peekKeyword("xref") {
		return nil, fmt.Errorf("no xref table at %d", offset)
	}
	for {
		if lx.peekKeyword("trailer") {
			break
		}
		start, ok1, err := numberAfterSpace(lx)
		if err != nil || !ok1 {
			return nil, fmt.Errorf("bad xref subsection header at %d", lx.pos)
		}
		count, ok2, err := numberAfterSpace(lx)
		if err != nil || !ok2 {
			return nil, fmt.Errorf("bad xref subsection count at %d", lx.pos)
		}
		for i := 0; i < int(count); i++ {
			lx.skipSpace()
			if lx.pos+18 > len(lx.data) {
				return nil, fmt.Errorf("truncated xref entry at %d", lx.pos)
			}
			entry := string(lx.data[lx.pos : lx.pos+18])
			lx.pos += 18
			num := int(start) + i
			if entry[17] != 'n' {
				continue // free entry
			}
			objOff, err := strconv.Atoi(strings.TrimLeft(entry[:10], "0 "))
			if err != nil {
				if strings.Trim(entry[:10], "0 ") == "" {
					objOff = 0
				} else {
					return nil, fmt.Errorf("bad xref entry %q", entry)
				}
			}
			if _, exists := p.offsets[num]; !exists {
				p.offsets[num] = objOff
			}
		}
	}
	obj, err := lx.parseObject()
	if err != nil {
		return nil, fmt.Errorf("parse trailer: %w", err)
	}
	trailer, ok := obj.(Dict)
	if !ok {
		return nil, fmt.Errorf("trailer is not a dictionary")
	}
	return trailer, nil
}

var objHeaderRe = regexp.MustCompile(`(?m)^[\r\n]?(\d+)\s+(\d+)\s+obj\b`)

// scanObjects rebuilds the offset table by scanning the whole file for object
// headers, then takes the trailer from the last trailer keyword or, failing
// that, synthesizes one by locating the catalog.
func (p *Parser) scanObjects() error {
	p.offsets = make(map[int]int)
	for _, m := range objHeaderRe.FindAllSubmatchIndex(p.data, -1) {
		num, err := strconv.Atoi(string(p.data[m[2]:m[3]]))
		if err != nil {
			continue
		}
		p.offsets[num] = m[0] // later definitions win
	}
	if len(p.offsets) == 0 {
		return fmt.Errorf("no objects found")
	}

	if idx := bytes.LastIndex(p.data, []byte("trailer")); idx >= 0 {
		lx := &lexer{data: p.data, pos: idx + len("trailer")}
		if obj, err := lx.parseObject(); err == nil {
			if dict, ok := obj.(Dict); ok {
				p.trailer = dict
				return nil
			}
		}
	}
	// no trailer: find an object whose dict is /Type /Catalog
	for num := range p.offsets {
		obj := p.resolve(Ref{Num: num})
		if dict, ok := obj.(Dict); ok {
			if t, _ := dict["Type"].(Name); t == "Catalog" {
				p.trailer = Dict{"Root": Ref{Num: num}}
				return nil
			}
		}
	}
	return fmt.Errorf("no trailer and no catalog found")
}

// --- object loading -------------------------------------------------------

// resolve follows indirect references until a direct object is reached.
func (p *Parser) resolve(obj Object) Object {
	for i := 0; i < 32; i++ {
		ref, ok := obj.(Ref)
		if !ok {
			return obj
		}
		loaded, err := p.load(ref)
		if err != nil {
			return Null{}
		}
		obj = loaded
	}
	return Null{}
}

func (p *Parser) load(ref Ref) (Object, error) {
	if obj, ok := p.cache[ref]; ok {
		return obj, nil
	}
	offset, ok := p.offsets[ref.Num]
	if !ok {
		return nil, fmt.Errorf("object %d not in xref", ref.Num)
	}
	lx := &lexer{data: p.data, pos: offset}
	num, ok1, err := numberAfterSpace(lx)
	if err != nil || !ok1 || int(num) != ref.Num {
		return nil, fmt.Errorf("object %d: header mismatch at %d", ref.Num, offset)
	}
	if _, _, err := numberAfterSpace(lx); err != nil {
		return nil, fmt.Errorf("object %d: bad generation", ref.Num)
	}
	if !lx.peekKeyword("obj") {
		return nil, fmt.Errorf("object %d: missing obj keyword", ref.Num)
	}
	obj, err := lx.parseObject()
	if err != nil {
		return nil, fmt.Errorf("object %d: %w", ref.Num, err)
	}
	if marker, ok := obj.(*streamMarker); ok {
		obj, err = p.materializeStream(marker)
		if err != nil {
			return nil, fmt.Errorf("object %d: %w", ref.Num, err)
		}
	}
	p.cache[ref] = obj
	return obj, nil
}

func (p *Parser) materializeStream(marker *streamMarker) (*Stream, error) {
	lengthObj := p.resolve(marker.dict["Length"])
	n, ok := lengthObj.(Number)
	if !ok {
		// unusable /Length: search for endstream
		end := bytes.Index(p.data[marker.start:], []byte("endstream"))
		if end < 0 {
			return nil, fmt.Errorf("stream without endstream")
		}
		return &Stream{Dict: marker.dict, Raw: p.data[marker.start : marker.start+end]}, nil
	}
	end := marker.start + n.Int()
	if end > len(p.data) {
		return nil, fmt.Errorf("stream length %d exceeds file", n.Int())
	}
	return &Stream{Dict: marker.dict, Raw: p.data[marker.start:end]}, nil
}

// decodeStream applies the stream's filter chain. FlateDecode (with PNG
// predictors) is decoded; image-only filters such as DCTDecode are left for
// the image decoder and reported through filterNames.
func (p *Parser) decodeStream(s *Stream) ([]byte, error) {
	data := s.Raw
	names, parms := p.filterChain(s.Dict)
	for i, name := range names {
		switch name {
		case "FlateDecode", "Fl":
			zr, err := zlib.NewReader(bytes.NewReader(data))
			if err != nil {
				return nil, fmt.Errorf("flate: %w", err)
			}
			decoded, err := io.ReadAll(zr)
			zr.Close()
			if err != nil {
				return nil, fmt.Errorf("flate: %w", err)
			}
			if i < len(parms) && parms[i] != nil {
				decoded, err = applyPredictor(decoded, parms[i], p)
				if err != nil {
					return nil, err
				}
			}
			data = decoded
		case "ASCIIHexDecode", "AHx":
			out := make([]byte, 0, len(data)/2)
			var hi int
			haveHi := false
			for _, c := range data {
				if c == '>' {
					break
				}
				if v, ok := hexVal(c); ok {
					if haveHi {
						out = append(out, byte(hi<<4|v))
						haveHi = false
					} else {
						hi, haveHi = v, true
					}
				}
			}
			if haveHi {
				out = append(out, byte(hi<<4))
			}
			data = out
		default:
			return nil, fmt.Errorf("unsupported filter %s", name)
		}
	}
	return data, nil
}

func (p *Parser) filterChain(dict Dict) ([]string, []Dict) {
	var names []string
	switch f := p.resolve(dict["Filter"]).(type) {
	case Name:
		names = []string{string(f)}
	case Array:
		for _, item := range f {
			if n, ok := p.resolve(item).(Name); ok {
				names = append(names, string(n))
			}
		}
	}
	parms := make([]Dict, len(names))
	switch dp := p.resolve(dict["DecodeParms"]).(type) {
	case Dict:
		if len(parms) > 0 {
			parms[0] = dp
		}
	case Array:
		for i, item := range dp {
			if i >= len(parms) {
				break
			}
			if d, ok := p.resolve(item).(Dict); ok {
				parms[i] = d
			}
		}
	}
	return names, parms
}

// applyPredictor reverses PNG predictors (values 10..15) on flate output.
func applyPredictor(data []byte, parms Dict, p *Parser) ([]byte, error) {
	pred := dictInt(parms, "Predictor", p, 1)
	if pred < 10 {
		return data, nil
	}
	columns := dictInt(parms, "Columns", p, 1)
	colors := dictInt(parms, "Colors", p, 1)
	bpc := dictInt(parms, "BitsPerComponent", p, 8)
	bpp := (colors*bpc + 7) / 8
	rowLen := (columns*colors*bpc+7)/8 + 1
	if rowLen <= 1 || len(data)%rowLen != 0 {
		return nil, fmt.Errorf("predictor: bad row length %d for %d bytes", rowLen, len(data))
	}
	out := make([]byte, 0, len(data))
	prev := make([]byte, rowLen-1)
	for r := 0; r < len(data); r += rowLen {
		tag := data[r]
		row := append([]byte(nil), data[r+1:r+rowLen]...)
		for i := range row {
			var left, up, upLeft byte
			if i >= bpp {
				left = row[i-bpp]
				upLeft = prev[i-bpp]
			}
			up = prev[i]
			switch tag {
			case 0:
			case 1:
				row[i] += left
			case 2:
				row[i] += up
			case 3:
				row[i] += byte((int(left) + int(up)) / 2)
			case 4:
				row[i] += paeth(left, up, upLeft)
			default:
				return nil, fmt.Errorf("predictor: unknown row tag %d", tag)
			}
		}
		out = append(out, row...)
		prev = row
	}
	return out, nil
}

func paeth(a, b, c byte) byte {
	pa := abs(int(b) - int(c))
	pb := abs(int(a) - int(c))
	pc := abs(int(a) + int(b) - 2*int(c))
	if pa <= pb && pa <= pc {
		return a
	}
	if pb <= pc {
		return b
	}
	return c
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func dictInt(d Dict, key Name, p *Parser, def int) int {
	if n, ok := p.resolve(d[key]).(Number); ok {
		return n.Int()
	}
	return def
}

// --- document building ----------------------------------------------------

// inherited carries attributes that flow down the page tree.
type inherited struct {
	mediaBox  *coords.Rect
	cropBox   *coords.Rect
	rotate    *int
	resources Dict
}

func (p *Parser) walkPages(ctx context.Context, doc *document.Document, node Object, inh inherited, depth int) error {
	if depth > 64 {
		return fmt.Errorf("page tree deeper than 64 levels")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	dict, ok := node.(Dict)
	if !ok {
		return fmt.Errorf("page tree node is not a dictionary")
	}

	if r := p.rectValue(dict["MediaBox"]); r != nil {
		inh.mediaBox = r
	}
	if r := p.rectValue(dict["CropBox"]); r != nil {
		inh.cropBox = r
	}
	if n, ok := p.resolve(dict["Rotate"]).(Number); ok {
		v := ((n.Int() % 360) + 360) % 360
		inh.rotate = &v
	}
	if res, ok := p.resolve(dict["Resources"]).(Dict); ok {
		inh.resources = res
	}

	nodeType, _ := p.resolve(dict["Type"]).(Name)
	if nodeType == "Pages" || (nodeType == "" && dict["Kids"] != nil) {
		kids, ok := p.resolve(dict["Kids"]).(Array)
		if !ok {
			return fmt.Errorf("pages node has no /Kids array")
		}
		for _, kid := range kids {
			if err := p.walkPages(ctx, doc, p.resolve(kid), inh, depth+1); err != nil {
				return err
			}
		}
		return nil
	}

	page := &document.Page{Index: len(doc.Pages)}
	if inh.mediaBox != nil {
		page.MediaBox = *inh.mediaBox
	} else {
		page.MediaBox = coords.Rect{URX: 612, URY: 792} // US Letter default
	}
	if inh.cropBox != nil {
		page.CropBox = *inh.cropBox
	}
	if inh.rotate != nil {
		page.Rotate = *inh.rotate
	}

	res, err := p.buildResources(inh.resources)
	if err != nil {
		return fmt.Errorf("page %d resources: %w", page.Index, err)
	}
	page.Resources = res

	streams, err := p.pageContents(dict["Contents"])
	if err != nil {
		return fmt.Errorf("page %d contents: %w", page.Index, err)
	}
	page.Contents = streams

	doc.Pages = append(doc.Pages, page)
	return nil
}

func (p *Parser) rectValue(obj Object) *coords.Rect {
	arr, ok := p.resolve(obj).(Array)
	if !ok || len(arr) != 4 {
		return nil
	}
	vals := make([]float64, 4)
	for i, item := range arr {
		n, ok := p.resolve(item).(Number)
		if !ok {
			return nil
		}
		vals[i] = float64(n)
	}
	r := coords.Rect{LLX: vals[0], LLY: vals[1], URX: vals[2], URY: vals[3]}
	if r.LLX > r.URX {
		r.LLX, r.URX = r.URX, r.LLX
	}
	if r.LLY > r.URY {
		r.LLY, r.URY = r.URY, r.LLY
	}
	return &r
}

func (p *Parser) pageContents(obj Object) ([]document.ContentStream, error) {
	var raws [][]byte
	switch v := p.resolve(obj).(type) {
	case *Stream:
		data, err := p.decodeStream(v)
		if err != nil {
			return nil, err
		}
		raws = append(raws, data)
	case Array:
		// multiple streams form one logical stream
		var joined []byte
		for _, item := range v {
			s, ok := p.resolve(item).(*Stream)
			if !ok {
				continue
			}
			data, err := p.decodeStream(s)
			if err != nil {
				return nil, err
			}
			joined = append(joined, data...)
			joined = append(joined, '\n')
		}
		raws = append(raws, joined)
	case Null:
		return nil, nil
	default:
		return nil, fmt.Errorf("unexpected /Contents type %T", v)
	}

	out := make([]document.ContentStream, 0, len(raws))
	for _, raw := range raws {
		ops, err := contentstream.Parse(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, document.ContentStream{Operations: ops})
	}
	return out, nil
}

func (p *Parser) buildResources(res Dict) (*document.Resources, error) {
	out := &document.Resources{
		Fonts:    map[string]*document.Font{},
		XObjects: map[string]*document.XObject{},
	}
	if res == nil {
		return out, nil
	}
	if fonts, ok := p.resolve(res["Font"]).(Dict); ok {
		for name, obj := range fonts {
			dict, ok := p.resolve(obj).(Dict)
			if !ok {
				continue
			}
			out.Fonts[string(name)] = p.buildFont(string(name), dict)
		}
	}
	if xobjs, ok := p.resolve(res["XObject"]).(Dict); ok {
		for name, obj := range xobjs {
			s, ok := p.resolve(obj).(*Stream)
			if !ok {
				continue
			}
			xo, err := p.buildXObject(string(name), s)
			if err != nil {
				return nil, fmt.Errorf("xobject %s: %w", name, err)
			}
			out.XObjects[string(name)] = xo
		}
	}
	return out, nil
}

func (p *Parser) buildFont(name string, dict Dict) *document.Font {
	font := &document.Font{Name: name, Widths: map[int]int{}}
	if st, ok := p.resolve(dict["Subtype"]).(Name); ok {
		font.Subtype = string(st)
	}
	if bf, ok := p.resolve(dict["BaseFont"]).(Name); ok {
		font.BaseFont = string(bf)
	}
	if tu, ok := p.resolve(dict["ToUnicode"]).(*Stream); ok {
		if data, err := p.decodeStream(tu); err == nil {
			font.ToUnicodeCMap = data
		}
	}

	if font.Subtype == "Type0" {
		font.TwoByte = true
		p.fillCIDWidths(font, dict)
		return font
	}

	first := dictInt(dict, "FirstChar", p, 0)
	if widths, ok := p.resolve(dict["Widths"]).(Array); ok {
		for i, item := range widths {
			if n, ok := p.resolve(item).(Number); ok {
				font.Widths[first+i] = n.Int()
			}
		}
	}
	return font
}

// fillCIDWidths reads the /W array of the descendant CIDFont. Identity
// encoding is assumed, so CIDs double as character codes.
func (p *Parser) fillCIDWidths(font *document.Font, dict Dict) {
	font.DefaultWidth = 1000
	desc, ok := p.resolve(dict["DescendantFonts"]).(Array)
	if !ok || len(desc) == 0 {
		return
	}
	cid, ok := p.resolve(desc[0]).(Dict)
	if !ok {
		return
	}
	font.DefaultWidth = dictInt(cid, "DW", p, 1000)
	w, ok := p.resolve(cid["W"]).(Array)
	if !ok {
		return
	}
	for i := 0; i < len(w); {
		start, ok := p.resolve(w[i]).(Number)
		if !ok {
			return
		}
		if i+1 >= len(w) {
			return
		}
		switch next := p.resolve(w[i+1]).(type) {
		case Array:
			// c [w1 w2 ...]
			for j, item := range next {
				if n, ok := p.resolve(item).(Number); ok {
					font.Widths[start.Int()+j] = n.Int()
				}
			}
			i += 2
		case Number:
			// cFirst cLast w
			if i+2 >= len(w) {
				return
			}
			wv, ok := p.resolve(w[i+2]).(Number)
			if !ok {
				return
			}
			for c := start.Int(); c <= next.Int(); c++ {
				font.Widths[c] = wv.Int()
			}
			i += 3
		default:
			return
		}
	}
}

func (p *Parser) buildXObject(name string, s *Stream) (*document.XObject, error) {
	xo := &document.XObject{Name: name}
	if st, ok := p.resolve(s.Dict["Subtype"]).(Name); ok {
		xo.Subtype = string(st)
	}
	if xo.Subtype != "Image" {
		return xo, nil
	}
	xo.Width = dictInt(s.Dict, "Width", p, 0)
	xo.Height = dictInt(s.Dict, "Height", p, 0)
	xo.BitsPerComponent = dictInt(s.Dict, "BitsPerComponent", p, 8)
	if cs, ok := p.resolve(s.Dict["ColorSpace"]).(Name); ok {
		xo.ColorSpace = string(cs)
	}

	names, _ := p.filterChain(s.Dict)
	// peel decodable filters, keep image codecs for the image layer
	decodable := 0
	for _, n := range names {
		if n == "FlateDecode" || n == "Fl" || n == "ASCIIHexDecode" || n == "AHx" {
			decodable++
		} else {
			break
		}
	}
	if decodable == len(names) {
		data, err := p.decodeStream(s)
		if err != nil {
			return nil, err
		}
		xo.Data = data
	} else {
		xo.Data = s.Raw
		xo.Filters = names
	}
	return xo, nil
}

func (p *Parser) populateInfo(doc *document.Document) {
	info, ok := p.resolve(p.trailer["Info"]).(Dict)
	if !ok {
		return
	}
	get := func(key Name) string {
		if s, ok := p.resolve(info[key]).(String); ok {
			return decodeTextString(s)
		}
		return ""
	}
	doc.Info = document.Info{
		Title:    get("Title"),
		Author:   get("Author"),
		Subject:  get("Subject"),
		Creator:  get("Creator"),
		Producer: get("Producer"),
	}
}

// decodeTextString handles the two PDF text-string encodings: UTF-16BE with
// BOM, else PDFDocEncoding (treated as Latin-1).
func decodeTextString(s []byte) string {
	if len(s) >= 2 && s[0] == 0xFE && s[1] == 0xFF {
		var sb strings.Builder
		for i := 2; i+1 < len(s); i += 2 {
			sb.WriteRune(rune(int(s[i])<<8 | int(s[i+1])))
		}
		return sb.String()
	}
	var sb strings.Builder
	for _, b := range s {
		sb.WriteRune(rune(b))
	}
	return sb.String()
}
