package docconv

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// convertDocx parses a .docx container and extracts the body text from
// word/document.xml. The first heading-styled paragraph becomes the title.
func convertDocx(in Input) (*Result, error) {
	rc, err := openZipEntry(in.Data, "word/document.xml")
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	decoder := xml.NewDecoder(rc)
	var (
		lines     []string
		title     string
		current   strings.Builder
		inPara    bool
		paraStyle string
	)

	for {
		tok, err := decoder.Token()
		if err != nil {
			break
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch {
			case t.Name.Local == "p":
				inPara = true
				current.Reset()
				paraStyle = ""
			case t.Name.Local == "pStyle" && inPara:
				for _, attr := range t.Attr {
					if attr.Name.Local == "val" {
						paraStyle = attr.Value
					}
				}
			case t.Name.Local == "tab" && inPara:
				current.WriteByte('\t')
			case t.Name.Local == "br" && inPara:
				current.WriteByte('\n')
			}

		case xml.CharData:
			if inPara {
				current.Write(t)
			}

		case xml.EndElement:
			if t.Name.Local == "p" && inPara {
				inPara = false
				text := strings.TrimSpace(current.String())
				if text == "" {
					continue
				}
				if title == "" && docxHeadingLevel(paraStyle) > 0 {
					title = text
				}
				lines = append(lines, text)
			}
		}
	}

	res, err := finishOffice(in, title, lines)
	if err != nil {
		return nil, err
	}
	res.Author = archiveCreator(in.Data, "docProps/core.xml")
	return res, nil
}

// convertODT parses an OpenDocument Text container and extracts content.xml.
func convertODT(in Input) (*Result, error) {
	rc, err := openZipEntry(in.Data, "content.xml")
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	decoder := xml.NewDecoder(rc)
	var (
		lines     []string
		title     string
		current   strings.Builder
		inHeading bool
		inPara    bool
	)

	for {
		tok, err := decoder.Token()
		if err != nil {
			break
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "h": // <text:h>
				inHeading = true
				current.Reset()
			case "p": // <text:p>
				inPara = true
				current.Reset()
			case "tab":
				if inHeading || inPara {
					current.WriteByte('\t')
				}
			case "line-break":
				if inHeading || inPara {
					current.WriteByte('\n')
				}
			}

		case xml.CharData:
			if inHeading || inPara {
				current.Write(t)
			}

		case xml.EndElement:
			switch {
			case t.Name.Local == "h" && inHeading:
				inHeading = false
				text := strings.TrimSpace(current.String())
				if text == "" {
					continue
				}
				if title == "" {
					title = text
				}
				lines = append(lines, text)

			case t.Name.Local == "p" && inPara:
				inPara = false
				text := strings.TrimSpace(current.String())
				if text == "" {
					continue
				}
				lines = append(lines, text)
			}
		}
	}

	res, err := finishOffice(in, title, lines)
	if err != nil {
		return nil, err
	}
	res.Author = archiveCreator(in.Data, "meta.xml")
	return res, nil
}

func finishOffice(in Input, title string, lines []string) (*Result, error) {
	content := strings.TrimSpace(strings.Join(lines, "\n"))
	if content == "" {
		return nil, ErrNoTextExtracted
	}
	if title == "" {
		title = firstLine(content)
	}
	return &Result{
		Title:       title,
		Content:     content,
		ChunkSource: in.Name,
	}, nil
}

// openZipEntry opens one named file inside a ZIP held in memory. A missing
// entry means the container is the wrong variant, not corrupt.
func openZipEntry(data []byte, name string) (io.ReadCloser, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: open zip: %v", ErrCorruptInput, err)
	}
	for _, f := range zr.File {
		if f.Name == name {
			rc, err := f.Open()
			if err != nil {
				return nil, fmt.Errorf("%w: open %s: %v", ErrCorruptInput, name, err)
			}
			return rc, nil
		}
	}
	return nil, fmt.Errorf("%w: %s not found in archive", ErrUnsupportedSubformat, name)
}

// archiveCreator reads the dc:creator element from an optional metadata
// entry inside the container (docProps/core.xml for docx, meta.xml for odt).
// Not every producer writes one; absence is not an error.
func archiveCreator(data []byte, entry string) string {
	rc, err := openZipEntry(data, entry)
	if err != nil {
		return ""
	}
	defer rc.Close()

	decoder := xml.NewDecoder(rc)
	inCreator := false
	for {
		tok, err := decoder.Token()
		if err != nil {
			return ""
		}
		switch t := tok.(type) {
		case xml.StartElement:
			inCreator = t.Name.Local == "creator"
		case xml.CharData:
			if inCreator {
				if s := strings.TrimSpace(string(t)); s != "" {
					return s
				}
			}
		case xml.EndElement:
			inCreator = false
		}
	}
}

// docxHeadingLevel extracts the heading level from a paragraph style name,
// e.g. "Heading1" → 1, "Title" → 1.
func docxHeadingLevel(style string) int {
	lower := strings.ToLower(style)
	if lower == "title" {
		return 1
	}
	if lower == "subtitle" {
		return 2
	}
	for _, prefix := range []string{"heading", "titre", "überschrift"} {
		if strings.HasPrefix(lower, prefix) {
			rest := lower[len(prefix):]
			if len(rest) == 1 && rest[0] >= '1' && rest[0] <= '6' {
				return int(rest[0] - '0')
			}
		}
	}
	return 0
}
