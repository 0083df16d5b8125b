package docx

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"unicode/utf8"

	"github.com/Lllllllleong/medicalrecordflow/internal/models"
)

const hyperlinkRelType = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/hyperlink"

// hyperlinkColor is the standard Office hyperlink blue.
const hyperlinkColor = "0563C1"

var (
	relIDRe      = regexp.MustCompile(`Id="rId(\d+)"`)
	relTagRe     = regexp.MustCompile(`<Relationship\b[^>]*/?>`)
	relTargetRe  = regexp.MustCompile(`Target="([^"]*)"`)
	rStyleRe     = regexp.MustCompile(`<w:rStyle\b[^>]*/>`)
	rColorRe     = regexp.MustCompile(`<w:color\b[^>]*/>`)
	rUnderlineRe = regexp.MustCompile(`<w:u\b[^>]*/>`)
)

// InsertHyperlink rewrites the text run at pos into a hyperlink targeting
// url. The run's original formatting is preserved; the hyperlink style, blue
// color and underline are layered on top. expectedText guards against the
// document having mutated since the position was computed: a mismatch yields
// ErrRunNotFound.
//
// An insertion splices bytes into the document body, shifting every later
// paragraph; spans are re-based after each edit, but callers that insert
// multiple links should still proceed in reverse document order so positions
// computed against the original document stay directly usable.
func (d *Document) InsertHyperlink(pos models.SourcePosition, url, expectedText string) error {
	if pos.Paragraph < 0 || pos.Paragraph >= len(d.paragraphs) {
		return fmt.Errorf("%w: paragraph %d of %d", ErrRunNotFound, pos.Paragraph, len(d.paragraphs))
	}
	p := d.paragraphs[pos.Paragraph]

	runes := []rune(p.text)
	if pos.Offset < 0 || pos.Offset+pos.Length > len(runes) {
		return fmt.Errorf("%w: offset %d+%d beyond paragraph of %d runes",
			ErrRunNotFound, pos.Offset, pos.Length, len(runes))
	}
	linkText := string(runes[pos.Offset : pos.Offset+pos.Length])
	if expectedText != "" && linkText != expectedText {
		return fmt.Errorf("%w: text at position no longer matches", ErrRunNotFound)
	}

	paraXML := d.docXML[p.start:p.end]
	openTag, pPr, rPr, err := dissectParagraph(paraXML, pos.Offset)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRunNotFound, err)
	}

	relID, err := d.addRelationship(url)
	if err != nil {
		return err
	}

	var b bytes.Buffer
	b.Write(openTag)
	b.Write(pPr)
	writeTextRun(&b, rPr, string(runes[:pos.Offset]))
	writeHyperlink(&b, relID, rPr, linkText)
	writeTextRun(&b, rPr, string(runes[pos.Offset+pos.Length:]))
	b.WriteString("</w:p>")

	d.splice(pos.Paragraph, b.Bytes())
	return nil
}

// HyperlinkTarget re-reads the written hyperlink starting at pos and resolves
// its relationship to the target URL. Used by the verification step after
// insertion.
func (d *Document) HyperlinkTarget(pos models.SourcePosition) (string, error) {
	if pos.Paragraph < 0 || pos.Paragraph >= len(d.paragraphs) {
		return "", fmt.Errorf("%w: paragraph %d of %d", ErrRunNotFound, pos.Paragraph, len(d.paragraphs))
	}
	p := d.paragraphs[pos.Paragraph]

	links, err := scanHyperlinks(d.docXML[p.start:p.end])
	if err != nil {
		return "", err
	}
	for _, link := range links {
		if link.textStart == pos.Offset {
			target, ok := d.relationshipTarget(link.relID)
			if !ok {
				return "", fmt.Errorf("relationship %s not found", link.relID)
			}
			return target, nil
		}
	}
	return "", fmt.Errorf("%w: no hyperlink at rune offset %d", ErrRunNotFound, pos.Offset)
}

// splice replaces a paragraph's XML and re-bases the spans of everything
// after it.
func (d *Document) splice(index int, newXML []byte) {
	p := d.paragraphs[index]
	delta := len(newXML) - (p.end - p.start)

	var buf bytes.Buffer
	buf.Grow(len(d.docXML) + delta)
	buf.Write(d.docXML[:p.start])
	buf.Write(newXML)
	buf.Write(d.docXML[p.end:])
	d.docXML = buf.Bytes()

	d.paragraphs[index].end += delta
	for i := index + 1; i < len(d.paragraphs); i++ {
		d.paragraphs[i].start += delta
		d.paragraphs[i].end += delta
	}
}

// addRelationship appends an external hyperlink relationship and returns its
// ID.
func (d *Document) addRelationship(target string) (string, error) {
	maxID := 0
	for _, m := range relIDRe.FindAllSubmatch(d.relsXML, -1) {
		if n, err := strconv.Atoi(string(m[1])); err == nil && n > maxID {
			maxID = n
		}
	}
	relID := fmt.Sprintf("rId%d", maxID+1)

	entry := fmt.Sprintf(`<Relationship Id="%s" Type="%s" Target="%s" TargetMode="External"/>`,
		relID, hyperlinkRelType, escapeAttr(target))

	closing := []byte("</Relationships>")
	idx := bytes.LastIndex(d.relsXML, closing)
	if idx < 0 {
		return "", fmt.Errorf("malformed relationships part")
	}

	var buf bytes.Buffer
	buf.Write(d.relsXML[:idx])
	buf.WriteString(entry)
	buf.Write(d.relsXML[idx:])
	d.relsXML = buf.Bytes()
	return relID, nil
}

// relationshipTarget resolves a relationship ID to its Target attribute.
func (d *Document) relationshipTarget(relID string) (string, bool) {
	needle := []byte(`Id="` + relID + `"`)
	for _, tag := range relTagRe.FindAll(d.relsXML, -1) {
		if !bytes.Contains(tag, needle) {
			continue
		}
		if m := relTargetRe.FindSubmatch(tag); m != nil {
			return unescapeAttr(string(m[1])), true
		}
	}
	return "", false
}

// dissectParagraph extracts the paragraph's opening tag, its pPr block and
// the rPr of the run containing rune offset runeOffset.
func dissectParagraph(paraXML []byte, runeOffset int) (openTag, pPr, rPr []byte, err error) {
	gt := bytes.IndexByte(paraXML, '>')
	if gt < 0 {
		return nil, nil, nil, fmt.Errorf("malformed paragraph element")
	}
	openTag = paraXML[:gt+1]

	decoder := xml.NewDecoder(bytes.NewReader(paraXML))
	depth := 0
	runes := 0
	inRun, inText := false, false
	var runRPrStart int64 = -1
	var runRPr []byte
	var pPrStart int64 = -1

	for {
		tokenStart := decoder.InputOffset()
		tok, terr := decoder.Token()
		if terr == io.EOF {
			break
		}
		if terr != nil {
			return nil, nil, nil, terr
		}

		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			switch t.Name.Local {
			case "pPr":
				if depth == 2 {
					pPrStart = tokenStart
				}
			case "r":
				inRun = true
				runRPr = nil
			case "rPr":
				if inRun {
					runRPrStart = tokenStart
				}
			case "t":
				inText = true
			case "tab":
				if inRun {
					runes++
				}
			}

		case xml.CharData:
			if inText {
				count := utf8.RuneCount(t)
				if runes <= runeOffset && runeOffset < runes+count {
					rPr = runRPr
				}
				runes += count
			}

		case xml.EndElement:
			switch t.Name.Local {
			case "pPr":
				if depth == 2 && pPrStart >= 0 && pPr == nil {
					pPr = paraXML[pPrStart:decoder.InputOffset()]
				}
			case "r":
				inRun = false
			case "rPr":
				if inRun && runRPrStart >= 0 {
					runRPr = paraXML[runRPrStart:decoder.InputOffset()]
					runRPrStart = -1
				}
			case "t":
				inText = false
			}
			depth--
		}
	}

	// An empty paragraph or an offset at the very end still inserts with
	// default formatting.
	return openTag, pPr, rPr, nil
}

// writeTextRun emits a plain run carrying the original formatting. Empty text
// writes nothing.
func writeTextRun(b *bytes.Buffer, rPr []byte, text string) {
	if text == "" {
		return
	}
	b.WriteString("<w:r>")
	b.Write(rPr)
	b.WriteString(`<w:t xml:space="preserve">`)
	xml.EscapeText(b, []byte(text))
	b.WriteString("</w:t></w:r>")
}

// writeHyperlink emits the hyperlink element: the run keeps its original
// formatting with the Hyperlink style, link color and underline layered on.
func writeHyperlink(b *bytes.Buffer, relID string, rPr []byte, text string) {
	b.WriteString(`<w:hyperlink r:id="` + relID + `" w:history="1"><w:r><w:rPr>`)
	b.WriteString(`<w:rStyle w:val="Hyperlink"/>`)
	b.Write(innerRPr(rPr))
	b.WriteString(`<w:color w:val="` + hyperlinkColor + `"/><w:u w:val="single"/>`)
	b.WriteString(`</w:rPr><w:t xml:space="preserve">`)
	xml.EscapeText(b, []byte(text))
	b.WriteString("</w:t></w:r></w:hyperlink>")
}

// innerRPr strips the wrapping <w:rPr> tags plus any style, color or
// underline children that the hyperlink styling replaces.
func innerRPr(rPr []byte) []byte {
	if len(rPr) == 0 {
		return nil
	}
	gt := bytes.IndexByte(rPr, '>')
	lt := bytes.LastIndexByte(rPr, '<')
	if gt < 0 || lt <= gt {
		return nil
	}
	inner := rPr[gt+1 : lt]
	inner = rStyleRe.ReplaceAll(inner, nil)
	inner = rColorRe.ReplaceAll(inner, nil)
	inner = rUnderlineRe.ReplaceAll(inner, nil)
	return inner
}

type hyperlinkSpan struct {
	relID     string
	textStart int // rune offset of the hyperlink's first text rune
}

// scanHyperlinks lists the hyperlinks in a paragraph with the rune offset at
// which their text begins.
func scanHyperlinks(paraXML []byte) ([]hyperlinkSpan, error) {
	decoder := xml.NewDecoder(bytes.NewReader(paraXML))

	var links []hyperlinkSpan
	runes := 0
	inRun, inText := false, false
	pendingRelID := ""

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "hyperlink":
				for _, attr := range t.Attr {
					if attr.Name.Local == "id" {
						pendingRelID = attr.Value
					}
				}
			case "r":
				inRun = true
			case "t":
				inText = true
			case "tab":
				if inRun {
					runes++
				}
			}

		case xml.CharData:
			if inText {
				if pendingRelID != "" {
					links = append(links, hyperlinkSpan{relID: pendingRelID, textStart: runes})
					pendingRelID = ""
				}
				runes += utf8.RuneCount(t)
			}

		case xml.EndElement:
			switch t.Name.Local {
			case "hyperlink":
				pendingRelID = ""
			case "r":
				inRun = false
			case "t":
				inText = false
			}
		}
	}

	return links, nil
}

func escapeAttr(s string) string {
	var b bytes.Buffer
	xml.EscapeText(&b, []byte(s))
	return b.String()
}

func unescapeAttr(s string) string {
	r := bytes.NewReader([]byte("<a>" + s + "</a>"))
	decoder := xml.NewDecoder(r)
	var out bytes.Buffer
	for {
		tok, err := decoder.Token()
		if err != nil {
			break
		}
		if cd, ok := tok.(xml.CharData); ok {
			out.Write(cd)
		}
	}
	return out.String()
}
