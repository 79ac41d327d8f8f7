package docconv

import "time"

// Format identifies a source family handled by one converter.
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
	FormatPDF      Format = "pdf"
	FormatDocx     Format = "docx"
	FormatODT      Format = "odt"
	FormatXLSX     Format = "xlsx"
	FormatCSV      Format = "csv"
	FormatImage    Format = "image"
	FormatAudio    Format = "audio"
	FormatWeb      Format = "web"
	FormatRepo     Format = "repo"
)

// Input is a resolved input handle for one conversion. For file-backed
// formats Data holds the full content and Name the original filename; for
// remote formats (web, repo) Name holds the locator and Data is empty.
type Input struct {
	Name string
	Data []byte

	// ModTime is the source modification time when known (uploads).
	ModTime time.Time
}

// Options is the per-request options bag passed to every converter.
type Options struct {
	// OCRLanguages are the target languages for OCR fallback.
	// Empty means the engine default.
	OCRLanguages []string

	// ParseOnly requests a preview conversion: the caller receives the
	// document but is instructed not to persist it.
	ParseOnly bool

	// CaptureMode selects the web capture strategy: "text", "html", or a
	// JavaScript extraction expression. Web converter only.
	CaptureMode string

	// Headers are extra request headers for web fetches.
	Headers map[string]string
}

// Result is the pre-normalization output of a converter.
type Result struct {
	Title       string
	Author      string
	Content     string
	PublishedAt time.Time
	ChunkSource string

	// PageCount is the number of pages contributing to Content (PDF only).
	PageCount int

	// OCRUsed reports whether content came from the OCR fallback.
	OCRUsed bool
}
