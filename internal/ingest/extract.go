package ingest

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"

	"docchat/internal/models"
	"docchat/internal/util"
)

// Extract returns the sanitized text of every page of f, in order. Pages
// without text are kept as empty strings so numbering stays aligned.
func Extract(f models.UploadedFile) ([]string, error) {
	typ := f.Type
	if typ == "" {
		typ = models.DetectType(f.Name)
	}
	var pages []string
	var err error
	switch typ {
	case models.DocumentPDF:
		pages, err = extractPDF(f.Content)
	case models.DocumentDOCX:
		pages, err = extractDOCX(f.Content)
	case models.DocumentTXT:
		pages = strings.Split(string(f.Content), "\f")
	default:
		return nil, util.Errorf(util.ErrIngestion, "ingest.Extract", "unsupported file type: %s", f.Name)
	}
	if err != nil {
		return nil, util.Errorf(util.ErrIngestion, "ingest.Extract", "%s: %w", f.Name, err)
	}
	empty := true
	for i := range pages {
		pages[i] = util.SanitizeText(pages[i])
		if pages[i] != "" {
			empty = false
		}
	}
	if empty {
		return nil, util.Errorf(util.ErrIngestion, "ingest.Extract", "%s: %w", f.Name, util.ErrNoExtractableText)
	}
	return pages, nil
}

func extractPDF(content []byte) (pages []string, err error) {
	// the pdf reader panics on some malformed cross-reference tables
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("malformed pdf: %v", r)
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		if errors.Is(err, pdf.ErrInvalidPassword) {
			return nil, fmt.Errorf("pdf is encrypted and cannot be read")
		}
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	n := r.NumPage()
	pages = make([]string, 0, n)
	for i := 1; i <= n; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extract page %d: %w", i, err)
		}
		pages = append(pages, text)
	}
	return pages, nil
}

// extractDOCX reads word/document.xml. Explicit page breaks and the page
// boundaries Word recorded at last render both start a new page.
func extractDOCX(content []byte) ([]string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("open docx: %w", err)
	}
	var doc *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return nil, fmt.Errorf("docx has no word/document.xml")
	}
	rc, err := doc.Open()
	if err != nil {
		return nil, fmt.Errorf("open document.xml: %w", err)
	}
	defer rc.Close()

	var pages []string
	var cur strings.Builder
	flush := func() {
		pages = append(pages, cur.String())
		cur.Reset()
	}
	dec := xml.NewDecoder(rc)
	inText := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse document.xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				cur.WriteByte('\t')
			case "br", "cr":
				if attr(t, "type") == "page" {
					flush()
				} else {
					cur.WriteByte('\n')
				}
			case "lastRenderedPageBreak":
				if strings.TrimSpace(cur.String()) != "" {
					flush()
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				cur.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				cur.Write(t)
			}
		}
	}
	flush()
	return pages, nil
}

func attr(e xml.StartElement, local string) string {
	for _, a := range e.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}
