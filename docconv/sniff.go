package docconv

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"
)

// printableThreshold is the minimum printable-character ratio for a byte
// sample to be classified as plain text when the extension is unknown.
const printableThreshold = 0.85

// sniffSampleSize caps how much of the content the sniffer inspects.
const sniffSampleSize = 8192

// extFormats maps known filename extensions to formats. The supported set is
// static and enumerable; anything else goes through the content sniff.
var extFormats = map[string]Format{
	".txt":      FormatText,
	".text":     FormatText,
	".log":      FormatText,
	".md":       FormatMarkdown,
	".markdown": FormatMarkdown,
	".html":     FormatHTML,
	".htm":      FormatHTML,
	".pdf":      FormatPDF,
	".docx":     FormatDocx,
	".odt":      FormatODT,
	".xlsx":     FormatXLSX,
	".csv":      FormatCSV,
	".png":      FormatImage,
	".jpg":      FormatImage,
	".jpeg":     FormatImage,
	".tiff":     FormatImage,
	".tif":      FormatImage,
	".bmp":      FormatImage,
	".webp":     FormatImage,
	".mp3":      FormatAudio,
	".wav":      FormatAudio,
	".m4a":      FormatAudio,
	".ogg":      FormatAudio,
	".flac":     FormatAudio,
}

// Detect classifies an input into a format. The extension mapping wins when
// known; otherwise the content sample is sniffed and classified as plain text
// if it decodes as UTF-8 with a high enough printable ratio. Unclassifiable
// input returns ErrUnsupportedFormat — the caller must report failure, not
// attempt extraction.
func Detect(name string, sample []byte) (Format, error) {
	ext := strings.ToLower(filepath.Ext(name))
	if f, ok := extFormats[ext]; ok {
		return f, nil
	}

	if len(sample) > sniffSampleSize {
		sample = sample[:sniffSampleSize]
	}
	if looksLikeText(sample) {
		return FormatText, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
}

// looksLikeText reports whether sample decodes as valid UTF-8 with a
// printable-character ratio above printableThreshold.
func looksLikeText(sample []byte) bool {
	if len(sample) == 0 {
		return false
	}
	if !utf8.Valid(sample) {
		return false
	}
	total := 0
	printable := 0
	for _, r := range string(sample) {
		total++
		if unicode.IsPrint(r) || r == '\n' || r == '\r' || r == '\t' {
			printable++
		}
	}
	return float64(printable)/float64(total) >= printableThreshold
}
