// Package docx reads and rewrites Word documents for hyperlink insertion.
// The document body is treated as an arena of paragraphs addressed by stable
// (paragraph index, rune offset) positions; edits are byte-level splices of
// word/document.xml so all untouched content survives losslessly.
package docx

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
)

// ErrRunNotFound marks a source position that no longer resolves to the text
// it was computed from, e.g. when the document mutated between the parse and
// link phases.
var ErrRunNotFound = errors.New("text run not found at source position")

const (
	documentEntry = "word/document.xml"
	relsEntry     = "word/_rels/document.xml.rels"

	emptyRels = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n" +
		`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"></Relationships>`
)

type paragraph struct {
	start int // byte offset of "<w:p" in docXML
	end   int // byte offset just past "</w:p>"
	text  string
}

// Document is an opened .docx file. Not safe for concurrent use.
type Document struct {
	raw        []byte
	docXML     []byte
	relsXML    []byte
	paragraphs []paragraph
}

// Open parses a .docx archive and indexes its paragraphs (body and table
// cells, in document order).
func Open(raw []byte) (*Document, error) {
	reader, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, fmt.Errorf("open docx archive: %w", err)
	}

	var docXML, relsXML []byte
	for _, f := range reader.File {
		switch f.Name {
		case documentEntry:
			if docXML, err = readZipEntry(f); err != nil {
				return nil, fmt.Errorf("read %s: %w", documentEntry, err)
			}
		case relsEntry:
			if relsXML, err = readZipEntry(f); err != nil {
				return nil, fmt.Errorf("read %s: %w", relsEntry, err)
			}
		}
	}
	if docXML == nil {
		return nil, fmt.Errorf("%s not found in archive", documentEntry)
	}
	if relsXML == nil {
		relsXML = []byte(emptyRels)
	}

	paragraphs, err := scanParagraphs(docXML)
	if err != nil {
		return nil, fmt.Errorf("scan paragraphs: %w", err)
	}

	return &Document{
		raw:        raw,
		docXML:     docXML,
		relsXML:    relsXML,
		paragraphs: paragraphs,
	}, nil
}

// Paragraphs returns the plain text of every paragraph in document order.
// Index i here is the paragraph index used in source positions.
func (d *Document) Paragraphs() []string {
	out := make([]string, len(d.paragraphs))
	for i, p := range d.paragraphs {
		out[i] = p.text
	}
	return out
}

// Bytes rebuilds the .docx archive with the edited document body and
// relationship table; all other entries are copied through unchanged.
func (d *Document) Bytes() ([]byte, error) {
	reader, err := zip.NewReader(bytes.NewReader(d.raw), int64(len(d.raw)))
	if err != nil {
		return nil, fmt.Errorf("reopen docx archive: %w", err)
	}

	var buf bytes.Buffer
	writer := zip.NewWriter(&buf)

	wroteRels := false
	for _, f := range reader.File {
		var content []byte
		switch f.Name {
		case documentEntry:
			content = d.docXML
		case relsEntry:
			content = d.relsXML
			wroteRels = true
		default:
			if content, err = readZipEntry(f); err != nil {
				return nil, fmt.Errorf("read %s: %w", f.Name, err)
			}
		}

		w, err := writer.CreateHeader(&zip.FileHeader{Name: f.Name, Method: zip.Deflate})
		if err != nil {
			return nil, fmt.Errorf("write %s: %w", f.Name, err)
		}
		if _, err := w.Write(content); err != nil {
			return nil, fmt.Errorf("write %s: %w", f.Name, err)
		}
	}

	// A document without relationships gains the entry once a hyperlink
	// needs it.
	if !wroteRels {
		w, err := writer.CreateHeader(&zip.FileHeader{Name: relsEntry, Method: zip.Deflate})
		if err != nil {
			return nil, fmt.Errorf("write %s: %w", relsEntry, err)
		}
		if _, err := w.Write(d.relsXML); err != nil {
			return nil, fmt.Errorf("write %s: %w", relsEntry, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalize docx archive: %w", err)
	}
	return buf.Bytes(), nil
}

// scanParagraphs walks word/document.xml and records the byte span and
// concatenated run text of each paragraph.
func scanParagraphs(docXML []byte) ([]paragraph, error) {
	decoder := xml.NewDecoder(bytes.NewReader(docXML))

	var paragraphs []paragraph
	var current *paragraph
	var text bytes.Buffer
	inRun, inText := false, false

	for {
		tokenStart := decoder.InputOffset()
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
			case "p":
				if current == nil {
					current = &paragraph{start: int(tokenStart)}
					text.Reset()
				}
			case "r":
				inRun = true
			case "t":
				if current != nil {
					inText = true
				}
			case "tab":
				// Only a tab inside a run is content; a w:tab under
				// w:pPr/w:tabs is a tab-stop definition.
				if current != nil && inRun {
					text.WriteByte('\t')
				}
			}

		case xml.CharData:
			if inText {
				text.Write(t)
			}

		case xml.EndElement:
			switch t.Name.Local {
			case "r":
				inRun = false
			case "t":
				inText = false
			case "p":
				if current != nil {
					current.end = int(decoder.InputOffset())
					current.text = text.String()
					paragraphs = append(paragraphs, *current)
					current = nil
				}
			}
		}
	}

	return paragraphs, nil
}

func readZipEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
