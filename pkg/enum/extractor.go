package enum

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/bodgit/sevenzip"
	"github.com/ledongthuc/pdf"
)

// ExtractedContent is one member or text layer pulled out of a container
// file.
type ExtractedContent struct {
	Name    string // member path, e.g. "xl/sharedStrings.xml" or "content"
	Content []byte
}

// extractors maps a lower-case extension (without the dot) to its extractor.
var extractors = map[string]func([]byte) ([]ExtractedContent, error){
	"7z":   extract7z,
	"zip":  extractZIP,
	"pdf":  extractPDF,
	"docx": extractDOCX,
	"xlsx": extractXLSX,
}

// CanExtract reports whether path has an extension with an extractor.
func CanExtract(path string) bool {
	_, ok := extractors[extension(path)]
	return ok
}

// ExtractText pulls members or text out of a supported container file.
func ExtractText(path string, content []byte) ([]ExtractedContent, error) {
	ext := extension(path)
	fn, ok := extractors[ext]
	if !ok {
		return nil, fmt.Errorf("unsupported file type: .%s", ext)
	}
	return fn(content)
}

func extension(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}

// extract7z returns every regular file of a 7z archive.
func extract7z(content []byte) ([]ExtractedContent, error) {
	r, err := sevenzip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("failed to open 7z archive: %w", err)
	}

	var results []ExtractedContent
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open 7z member %s: %w", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read 7z member %s: %w", f.Name, err)
		}
		results = append(results, ExtractedContent{Name: f.Name, Content: data})
	}
	return results, nil
}

// extractZIP returns every regular file of a zip archive.
func extractZIP(content []byte) ([]ExtractedContent, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("failed to open zip archive: %w", err)
	}

	var results []ExtractedContent
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		data, err := readZipFile(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read zip member %s: %w", f.Name, err)
		}
		results = append(results, ExtractedContent{Name: f.Name, Content: data})
	}
	return results, nil
}

// extractXLSX extracts text from shared strings and worksheets.
func extractXLSX(content []byte) ([]ExtractedContent, error) {
	return extractOfficeXML(content, func(name string) bool {
		return name == "xl/sharedStrings.xml" ||
			(strings.HasPrefix(name, "xl/worksheets/sheet") && strings.HasSuffix(name, ".xml"))
	})
}

// extractDOCX extracts text from the document body.
func extractDOCX(content []byte) ([]ExtractedContent, error) {
	return extractOfficeXML(content, func(name string) bool {
		return name == "word/document.xml"
	})
}

func extractOfficeXML(content []byte, want func(string) bool) ([]ExtractedContent, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("failed to open office document as zip: %w", err)
	}

	var results []ExtractedContent
	for _, f := range zr.File {
		if !want(f.Name) {
			continue
		}
		data, err := readZipFile(f)
		if err != nil {
			continue
		}
		if text := extractXMLText(data); len(text) > 0 {
			results = append(results, ExtractedContent{Name: f.Name, Content: []byte(text)})
		}
	}
	return results, nil
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// extractPDF extracts the plain text of every page.
func extractPDF(content []byte) ([]ExtractedContent, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}

	var text strings.Builder
	for pageNum := 1; pageNum <= r.NumPage(); pageNum++ {
		page := r.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			// Keep what the other pages yield.
			continue
		}
		text.WriteString(pageText)
		text.WriteString("\n")
	}

	extracted := text.String()
	if len(strings.TrimSpace(extracted)) == 0 {
		return nil, nil
	}
	return []ExtractedContent{{Name: "content", Content: []byte(extracted)}}, nil
}

// extractXMLText joins the non-blank text nodes of an XML document.
func extractXMLText(data []byte) string {
	var text strings.Builder
	decoder := xml.NewDecoder(bytes.NewReader(data))

	for {
		token, err := decoder.Token()
		if err != nil {
			break
		}
		if cd, ok := token.(xml.CharData); ok {
			content := string(cd)
			if strings.TrimSpace(content) == "" {
				continue
			}
			if text.Len() > 0 {
				text.WriteString(" ")
			}
			text.WriteString(cleanText(content))
		}
	}
	return text.String()
}

// cleanText collapses whitespace and drops non-printable characters.
func cleanText(s string) string {
	var result strings.Builder
	lastSpace := false

	for _, r := range s {
		if unicode.IsSpace(r) {
			if !lastSpace {
				result.WriteRune(' ')
				lastSpace = true
			}
		} else if unicode.IsPrint(r) {
			result.WriteRune(r)
			lastSpace = false
		}
	}
	return strings.TrimSpace(result.String())
}
