package materials

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// ExtractText pulls plain text out of an uploaded document and reports
// its page count. The format is decided by extension: .pdf, .docx/.doc
// and .txt are supported. Formats without pages count as one page.
func ExtractText(filename string, data []byte) (string, int, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return extractPDF(data)
	case ".docx", ".doc":
		text, err := extractDOCX(data)
		return text, 1, err
	case ".txt":
		if !utf8.Valid(data) {
			return "", 0, fmt.Errorf("%w: not valid UTF-8 text", ErrExtraction)
		}
		return string(data), 1, nil
	default:
		return "", 0, fmt.Errorf("%w: unsupported format %q", ErrValidation, filepath.Ext(filename))
	}
}

func extractPDF(data []byte) (string, int, error) {
	rdr, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	n := rdr.NumPage()
	var out strings.Builder
	for i := 1; i <= n; i++ {
		pg := rdr.Page(i)
		txt, err := pg.GetPlainText(nil)
		if err != nil {
			// Image-only or damaged page, keep going.
			continue
		}
		s := strings.TrimSpace(txt)
		if s == "" {
			continue
		}
		out.WriteString("Page " + strconv.Itoa(i) + "\n")
		out.WriteString(s)
		out.WriteString("\n")
	}
	text := strings.TrimSpace(out.String())
	if text == "" {
		return "", 0, fmt.Errorf("%w: no extractable text in pdf", ErrExtraction)
	}
	return text, n, nil
}

// extractDOCX reads word/document.xml from the OpenXML container and
// gathers the contents of every <w:t> element.
func extractDOCX(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: not a valid docx container: %v", ErrExtraction, err)
	}
	var docXML []byte
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			rc, err := f.Open()
			if err != nil {
				return "", fmt.Errorf("%w: %v", ErrExtraction, err)
			}
			docXML, err = io.ReadAll(rc)
			rc.Close()
			if err != nil {
				return "", fmt.Errorf("%w: %v", ErrExtraction, err)
			}
			break
		}
	}
	if docXML == nil {
		return "", fmt.Errorf("%w: word/document.xml missing", ErrExtraction)
	}

	dec := xml.NewDecoder(bytes.NewReader(docXML))
	var out strings.Builder
	inText := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrExtraction, err)
		}
		switch el := tok.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "t":
				inText = true
			case "p", "br":
				out.WriteString("\n")
			}
		case xml.EndElement:
			if el.Name.Local == "t" {
				inText = false
			}
		case xml.CharData:
			if inText {
				out.Write(el)
			}
		}
	}
	text := strings.TrimSpace(out.String())
	if text == "" {
		return "", fmt.Errorf("%w: no text in document", ErrExtraction)
	}
	return text, nil
}
