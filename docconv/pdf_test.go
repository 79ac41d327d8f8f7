package docconv

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// streamOCR is a fake engine that tags the image bytes it was handed, so
// tests can tell which rendered page produced which text.
type streamOCR struct{}

func (streamOCR) Recognize(_ context.Context, image []byte, _ []string) (string, error) {
	return "OCR:" + strings.TrimSpace(string(image)), nil
}

// renderStub writes a shell script standing in for pdftoppm. It ignores the
// input PDF and emits fixed page images under the output prefix (last arg).
func renderStub(t *testing.T, pages []string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell stub not portable to windows")
	}
	var sb strings.Builder
	sb.WriteString("#!/bin/sh\nout=\"$5\"\n")
	for i, content := range pages {
		fmt.Fprintf(&sb, "printf '%s' > \"$out-%d.png\"\n", content, i+1)
	}
	path := filepath.Join(t.TempDir(), "fake-pdftoppm")
	if err := os.WriteFile(path, []byte(sb.String()), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestConvertPDFPagesInOrder(t *testing.T) {
	raw := buildTextPDF(t, []string{"alpha page one content here", "beta page two content here"}, "")

	r := newTestRegistry(t, Config{})
	res, err := r.convertPDF(context.Background(), Input{Name: "doc.pdf", Data: raw}, Options{})
	if err != nil {
		t.Fatalf("convertPDF: %v", err)
	}
	if res.OCRUsed {
		t.Error("extractable text must not trigger OCR")
	}
	if res.PageCount != 2 {
		t.Errorf("PageCount = %d, want 2", res.PageCount)
	}
	first := strings.Index(res.Content, "alpha page one")
	second := strings.Index(res.Content, "beta page two")
	if first < 0 || second < 0 {
		t.Fatalf("Content = %q, want both pages", res.Content)
	}
	if first > second {
		t.Errorf("pages out of order: %q", res.Content)
	}
}

func TestConvertPDFAuthorFromInfoDict(t *testing.T) {
	raw := buildTextPDF(t, []string{"body text with enough words to pass"}, "Ada Lovelace")

	r := newTestRegistry(t, Config{})
	res, err := r.convertPDF(context.Background(), Input{Name: "doc.pdf", Data: raw}, Options{})
	if err != nil {
		t.Fatalf("convertPDF: %v", err)
	}
	if res.Author != "Ada Lovelace" {
		t.Errorf("Author = %q, want Ada Lovelace", res.Author)
	}
}

func TestConvertPDFScannedFallsBackToOCR(t *testing.T) {
	raw := buildImageOnlyPDF(t)

	r := newTestRegistry(t, Config{
		OCR:             streamOCR{},
		PDFRenderBinary: renderStub(t, []string{"scanned page text"}),
	})
	res, err := r.convertPDF(context.Background(), Input{Name: "scan.pdf", Data: raw}, Options{})
	if err != nil {
		t.Fatalf("convertPDF: %v", err)
	}
	if !res.OCRUsed {
		t.Fatal("image-only PDF must go through OCR")
	}
	if res.Content != "OCR:scanned page text" {
		t.Errorf("Content = %q, want the OCR output", res.Content)
	}
}

func TestConvertPDFScannedWithoutEngine(t *testing.T) {
	raw := buildImageOnlyPDF(t)

	r := newTestRegistry(t, Config{})
	if _, err := r.convertPDF(context.Background(), Input{Name: "scan.pdf", Data: raw}, Options{}); !errors.Is(err, ErrNoTextExtracted) {
		t.Errorf("err = %v, want ErrNoTextExtracted when no engine is configured", err)
	}
}

func TestConvertPDFCorrupt(t *testing.T) {
	r := newTestRegistry(t, Config{})
	if _, err := r.convertPDF(context.Background(), Input{Name: "x.pdf", Data: []byte("not a pdf")}, Options{}); !errors.Is(err, ErrCorruptInput) {
		t.Errorf("err = %v, want ErrCorruptInput", err)
	}
}

func TestOCRPDFReassemblesPageOrder(t *testing.T) {
	r := newTestRegistry(t, Config{
		OCR:             streamOCR{},
		OCRWorkers:      3,
		PDFRenderBinary: renderStub(t, []string{"page one", "page two", "page three"}),
	})

	out, err := r.ocrPDF(context.Background(), []byte("%PDF-ignored"), nil)
	if err != nil {
		t.Fatalf("ocrPDF: %v", err)
	}
	want := "OCR:page one\n\nOCR:page two\n\nOCR:page three"
	if out != want {
		t.Errorf("out = %q, want pages joined in index order %q", out, want)
	}
}

func TestOCRPDFRenderFailure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on the false(1) binary")
	}
	r := newTestRegistry(t, Config{
		OCR:             streamOCR{},
		PDFRenderBinary: "false",
	})
	if _, err := r.ocrPDF(context.Background(), []byte("%PDF"), nil); err == nil {
		t.Error("failing renderer must surface an error")
	}
}

// --- synthetic PDF builders ---

// buildTextPDF assembles a valid PDF with correct xref offsets: one content
// stream per page, a shared Type1 font, and an optional Info dict author.
func buildTextPDF(t *testing.T, pages []string, author string) []byte {
	t.Helper()

	type object struct{ body string }
	var objs []object
	add := func(body string) int {
		objs = append(objs, object{body})
		return len(objs)
	}

	n := len(pages)
	fontRef := 3 + 2*n

	kids := make([]string, n)
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 3+2*i)
	}

	add("<< /Type /Catalog /Pages 2 0 R >>")
	add(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), n))
	for i, text := range pages {
		escaped := strings.NewReplacer(`\`, `\\`, "(", `\(`, ")", `\)`).Replace(text)
		stream := "BT\n/F1 12 Tf\n72 720 Td\n(" + escaped + ") Tj\nET"
		add(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents %d 0 R /Resources << /Font << /F1 %d 0 R >> >> >>",
			4+2*i, fontRef))
		add(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream))
	}
	add("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>")

	infoRef := 0
	if author != "" {
		infoRef = add(fmt.Sprintf("<< /Author (%s) >>", author))
	}

	var b strings.Builder
	b.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs)+1)
	for i, obj := range objs {
		offsets[i+1] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", i+1, obj.body)
	}

	xrefOffset := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n", len(objs)+1)
	b.WriteString("0000000000 65535 f \n")
	for i := 1; i <= len(objs); i++ {
		fmt.Fprintf(&b, "%010d 00000 n \n", offsets[i])
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R", len(objs)+1)
	if infoRef > 0 {
		fmt.Fprintf(&b, " /Info %d 0 R", infoRef)
	}
	fmt.Fprintf(&b, " >>\nstartxref\n%d\n%%%%EOF\n", xrefOffset)

	return []byte(b.String())
}

// buildImageOnlyPDF assembles a single-page PDF whose only content is an
// image XObject draw, no text operators at all.
func buildImageOnlyPDF(t *testing.T) []byte {
	t.Helper()

	imgData := "\xff\xd8\xff\xe0"
	drawStream := "q 100 0 0 100 72 692 cm /Im1 Do Q"

	bodies := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /XObject << /Im1 4 0 R >> >> /Contents 5 0 R >>",
		fmt.Sprintf("<< /Type /XObject /Subtype /Image /Width 1 /Height 1 /ColorSpace /DeviceRGB /BitsPerComponent 8 /Length %d >>\nstream\n%s\nendstream", len(imgData), imgData),
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(drawStream), drawStream),
	}

	var b strings.Builder
	b.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(bodies)+1)
	for i, body := range bodies {
		offsets[i+1] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}

	xrefOffset := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n", len(bodies)+1)
	b.WriteString("0000000000 65535 f \n")
	for i := 1; i <= len(bodies); i++ {
		fmt.Fprintf(&b, "%010d 00000 n \n", offsets[i])
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(bodies)+1, xrefOffset)

	return []byte(b.String())
}
