package docconv

import "errors"

// Failure taxonomy. Converters return these sentinels (wrapped with context)
// instead of panicking or inventing ad hoc errors; the service layer maps
// them onto the external response shape with errors.Is.
var (
	// ErrUnsupportedFormat means the sniffer could not classify the input.
	// Fatal for the request, never retried.
	ErrUnsupportedFormat = errors.New("docconv: unsupported format")

	// ErrNoTextExtracted means the converter, including any OCR or fetch
	// fallback, produced no usable content.
	ErrNoTextExtracted = errors.New("docconv: no text extracted")

	// ErrCorruptInput means the underlying file or stream failed to parse
	// structurally.
	ErrCorruptInput = errors.New("docconv: corrupt input")

	// ErrUnsupportedSubformat means the container parsed but holds a
	// variant the converter does not handle.
	ErrUnsupportedSubformat = errors.New("docconv: unsupported subformat")
)
