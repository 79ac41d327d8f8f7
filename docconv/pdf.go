package docconv

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// convertPDF runs structured text extraction and falls back to OCR when the
// quality gate says the result is unusable. The fallback is page-parallel:
// pages render to images, recognitions run on the registry pool, and the
// output reassembles in page order regardless of completion order.
func (r *Registry) convertPDF(ctx context.Context, in Input, opts Options) (*Result, error) {
	doc, err := extractPDFText(in.Data)
	if err != nil {
		return nil, err
	}

	if !doc.quality.NeedsOCR() {
		content := strings.Join(doc.pages, "\n")
		if strings.TrimSpace(content) == "" {
			return nil, ErrNoTextExtracted
		}
		return &Result{
			Title:       doc.title,
			Author:      doc.author,
			Content:     content,
			ChunkSource: in.Name,
			PageCount:   doc.quality.PageCount,
		}, nil
	}

	r.logger.Info("pdf extraction below quality gate, trying ocr",
		"name", in.Name,
		"chars_per_page", doc.quality.CharsPerPage,
		"printable_ratio", doc.quality.PrintableRatio)

	if r.cfg.OCR == nil {
		// No fallback available; poor structured text is better than none.
		content := strings.Join(doc.pages, "\n")
		if strings.TrimSpace(content) == "" {
			return nil, fmt.Errorf("%w: scanned pdf and no OCR engine", ErrNoTextExtracted)
		}
		return &Result{
			Title:       doc.title,
			Author:      doc.author,
			Content:     content,
			ChunkSource: in.Name,
			PageCount:   doc.quality.PageCount,
		}, nil
	}

	content, err := r.ocrPDF(ctx, in.Data, opts.OCRLanguages)
	if err != nil {
		return nil, fmt.Errorf("pdf ocr fallback: %w", err)
	}
	if strings.TrimSpace(content) == "" {
		return nil, ErrNoTextExtracted
	}
	title := doc.title
	if title == "" {
		title = firstLine(content)
	}
	return &Result{
		Title:       title,
		Author:      doc.author,
		Content:     content,
		ChunkSource: in.Name,
		PageCount:   doc.quality.PageCount,
		OCRUsed:     true,
	}, nil
}

// pdfText is the outcome of structured extraction over a whole document.
type pdfText struct {
	title   string
	author  string
	pages   []string
	quality *ExtractionQuality
}

// extractPDFText parses the document and pulls text page by page. Title and
// author come from the Info dictionary when present; title falls back to the
// first extracted line.
func extractPDFText(data []byte) (*pdfText, error) {
	conf := model.NewDefaultConfiguration()
	pctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err != nil {
		return nil, fmt.Errorf("%w: pdfcpu read: %v", ErrCorruptInput, err)
	}

	doc := &pdfText{
		title:  strings.TrimSpace(pctx.Title),
		author: strings.TrimSpace(pctx.Author),
	}
	totalChars := 0
	for pageNr := 1; pageNr <= pctx.PageCount; pageNr++ {
		pageText := extractPageText(pctx, pageNr)
		if pageText == "" {
			continue
		}
		totalChars += len([]rune(pageText))
		if doc.title == "" {
			doc.title = firstLine(pageText)
		}
		doc.pages = append(doc.pages, pageText)
	}

	fullText := strings.Join(doc.pages, "\n")
	var charsPerPage float64
	if pctx.PageCount > 0 {
		charsPerPage = float64(totalChars) / float64(pctx.PageCount)
	}
	doc.quality = &ExtractionQuality{
		PageCount:       pctx.PageCount,
		CharsPerPage:    charsPerPage,
		PrintableRatio:  computePrintableRatio(fullText),
		WordlikeRatio:   computeWordlikeRatio(fullText),
		HasImageStreams: detectImageStreams(pctx),
	}
	return doc, nil
}

// extractPageText extracts text from a single PDF page via its content stream.
func extractPageText(pctx *model.Context, pageNr int) string {
	r, err := pdfcpu.ExtractPageContent(pctx, pageNr)
	if err != nil {
		return ""
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil || buf.Len() == 0 {
		return ""
	}
	return extractTextFromStream(buf.Bytes())
}

// detectImageStreams checks if the PDF contains image XObjects.
func detectImageStreams(pctx *model.Context) bool {
	if pctx.Optimize != nil {
		for pageNr := 1; pageNr <= pctx.PageCount; pageNr++ {
			if len(pdfcpu.ImageObjNrs(pctx, pageNr)) > 0 {
				return true
			}
		}
	}
	for _, entry := range pctx.Table {
		if entry == nil || entry.Free || entry.Compressed {
			continue
		}
		sd, ok := entry.Object.(types.StreamDict)
		if !ok {
			continue
		}
		if subtype, found := sd.Find("Subtype"); found {
			if name, isName := subtype.(types.Name); isName && name == "Image" {
				return true
			}
		}
	}
	return false
}

// ocrPDF renders every page to PNG and recognizes them in parallel on the
// registry pool. Output is reassembled by page index.
func (r *Registry) ocrPDF(ctx context.Context, data []byte, languages []string) (string, error) {
	dir, err := os.MkdirTemp("", "pdfocr-")
	if err != nil {
		return "", fmt.Errorf("tempdir: %w", err)
	}
	defer os.RemoveAll(dir)

	pdfPath := filepath.Join(dir, "in.pdf")
	if err := os.WriteFile(pdfPath, data, 0o600); err != nil {
		return "", fmt.Errorf("write temp pdf: %w", err)
	}

	// 200 DPI is the tesseract sweet spot for print-size scans.
	cmd := exec.CommandContext(ctx, r.cfg.PDFRenderBinary,
		"-png", "-r", "200", pdfPath, filepath.Join(dir, "page"))
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("%s: %w (%s)", r.cfg.PDFRenderBinary, err, strings.TrimSpace(stderr.String()))
	}

	images, err := filepath.Glob(filepath.Join(dir, "page-*.png"))
	if err != nil || len(images) == 0 {
		return "", fmt.Errorf("no pages rendered")
	}
	// Glob order is lexical; pdftoppm zero-pads page numbers so this is
	// page order.
	sort.Strings(images)

	type pageResult struct {
		idx  int
		text string
		err  error
	}
	results := make([]pageResult, len(images))
	var wg sync.WaitGroup
	for i, img := range images {
		i, img := i, img
		wg.Add(1)
		submitErr := r.ocrPool.Submit(func() {
			defer wg.Done()
			imgData, err := os.ReadFile(img)
			if err != nil {
				results[i] = pageResult{idx: i, err: err}
				return
			}
			text, err := r.cfg.OCR.Recognize(ctx, imgData, languages)
			results[i] = pageResult{idx: i, text: text, err: err}
		})
		if submitErr != nil {
			wg.Done()
			results[i] = pageResult{idx: i, err: submitErr}
		}
	}
	wg.Wait()

	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	var sb strings.Builder
	recognized := 0
	for _, res := range results {
		if res.err != nil {
			r.logger.Warn("pdf ocr page failed", "page", res.idx+1, "error", res.err)
			continue
		}
		if strings.TrimSpace(res.text) == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(res.text)
		recognized++
	}
	if recognized == 0 {
		return "", fmt.Errorf("all %d pages failed recognition", len(images))
	}
	return sb.String(), nil
}

// pdfStringRe matches PDF string literals in parentheses: (text here)
var pdfStringRe = regexp.MustCompile(`\(([^)]*)\)`)

// extractTextFromStream parses PDF content stream operators for text.
func extractTextFromStream(data []byte) string {
	var sb strings.Builder

	for _, line := range bytes.Split(data, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		// Tj / TJ show-text operators.
		if bytes.HasSuffix(line, []byte("Tj")) || bytes.HasSuffix(line, []byte("TJ")) {
			for _, m := range pdfStringRe.FindAllSubmatch(line, -1) {
				sb.WriteString(decodePDFString(m[1]))
			}
		}

		// ' operator: move to next line and show text.
		if bytes.HasSuffix(line, []byte("'")) && bytes.Contains(line, []byte("(")) {
			for _, m := range pdfStringRe.FindAllSubmatch(line, -1) {
				if text := decodePDFString(m[1]); text != "" {
					sb.WriteByte('\n')
					sb.WriteString(text)
				}
			}
		}

		// Td/TD positioning operators separate runs.
		if bytes.HasSuffix(line, []byte("Td")) || bytes.HasSuffix(line, []byte("TD")) {
			if sb.Len() > 0 {
				sb.WriteByte(' ')
			}
		}

		// T*: move to start of next line.
		if bytes.Equal(line, []byte("T*")) {
			sb.WriteByte('\n')
		}
	}

	return cleanPDFText(sb.String())
}

// decodePDFString handles basic PDF escape sequences.
func decodePDFString(raw []byte) string {
	var sb strings.Builder
	for i := 0; i < len(raw); i++ {
		if raw[i] != '\\' || i+1 >= len(raw) {
			sb.WriteByte(raw[i])
			continue
		}
		i++
		switch raw[i] {
		case 'n':
			sb.WriteByte('\n')
		case 'r':
			sb.WriteByte('\r')
		case 't':
			sb.WriteByte('\t')
		case '\\', '(', ')':
			sb.WriteByte(raw[i])
		default:
			// Octal escape, e.g. \040 for space.
			if raw[i] >= '0' && raw[i] <= '7' {
				val := int(raw[i] - '0')
				for n := 0; n < 2 && i+1 < len(raw) && raw[i+1] >= '0' && raw[i+1] <= '7'; n++ {
					i++
					val = val*8 + int(raw[i]-'0')
				}
				sb.WriteByte(byte(val))
			} else {
				sb.WriteByte(raw[i])
			}
		}
	}
	return sb.String()
}

// cleanPDFText normalises whitespace in extracted PDF text.
func cleanPDFText(text string) string {
	var sb strings.Builder
	prevSpace := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			if !prevSpace && sb.Len() > 0 {
				sb.WriteByte(' ')
				prevSpace = true
			}
		} else if unicode.IsPrint(r) {
			sb.WriteRune(r)
			prevSpace = false
		}
	}
	return strings.TrimSpace(sb.String())
}
