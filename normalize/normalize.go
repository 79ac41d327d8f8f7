// Package normalize turns converter output into the canonical document shape
// handed to downstream consumers.
//
// Normalization is deterministic: the same content always produces the same
// word and token counts. The only impure inputs, ID generation and the
// current time, are injected so tests can pin them.
package normalize

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/clipperhouse/uax29/v2/words"

	"github.com/hazyhaar/collector/docconv"
	"github.com/hazyhaar/collector/idgen"
)

// Kind classifies where a document came from.
type Kind string

const (
	KindUploadedFile Kind = "uploaded-file"
	KindWebLink      Kind = "web-link"
	KindRawText      Kind = "raw-text"
	KindRepository   Kind = "repository"
)

// tokenBytesPerToken is the fixed chars-per-token ratio for the estimate.
// Real tokenizer vocabularies average close to 4 bytes per token on English
// prose; the estimate must stay cheap and deterministic, not exact.
const tokenBytesPerToken = 4

// Document is the canonical normalized form.
type Document struct {
	ID                 string    `json:"id"`
	SourceURI          string    `json:"sourceUri"`
	Title              string    `json:"title"`
	Author             string    `json:"author"`
	PageContent        string    `json:"pageContent"`
	WordCount          int       `json:"wordCount"`
	TokenCountEstimate int       `json:"tokenCountEstimate"`
	PublishedAt        time.Time `json:"publishedAt"`
	SourceKind         Kind      `json:"sourceKind"`
	ChunkSource        string    `json:"chunkSource,omitempty"`
}

// Meta carries request-level facts the converter result does not know.
type Meta struct {
	SourceURI  string
	SourceKind Kind

	// Title and Author override the converter's extraction when set
	// (raw-text uploads carry caller metadata).
	Title  string
	Author string

	// ModTime is the source modification time, used for PublishedAt when
	// the converter found no publication date.
	ModTime time.Time
}

// Config configures a Normalizer.
type Config struct {
	// NewID generates document IDs. Default: "doc_" + UUIDv7.
	NewID idgen.Generator

	// Now supplies the PublishedAt fallback. Default: time.Now UTC.
	Now func() time.Time
}

func (c *Config) defaults() {
	if c.NewID == nil {
		c.NewID = idgen.Prefixed("doc_", idgen.UUIDv7)
	}
	if c.Now == nil {
		c.Now = func() time.Time { return time.Now().UTC() }
	}
}

// Normalizer builds Documents from converter results.
type Normalizer struct {
	cfg Config
}

// New creates a Normalizer.
func New(cfg Config) *Normalizer {
	cfg.defaults()
	return &Normalizer{cfg: cfg}
}

// Normalize builds the canonical document. The content is taken as-is from
// the converter; counts are computed here so every source family gets the
// same accounting.
func (n *Normalizer) Normalize(res *docconv.Result, meta Meta) *Document {
	title := meta.Title
	if title == "" {
		title = res.Title
	}
	if title == "" {
		title = meta.SourceURI
	}

	author := meta.Author
	if author == "" {
		author = res.Author
	}
	if author == "" {
		author = "unknown"
	}

	published := res.PublishedAt
	if published.IsZero() {
		published = meta.ModTime
	}
	if published.IsZero() {
		published = n.cfg.Now()
	}

	return &Document{
		ID:                 n.cfg.NewID(),
		SourceURI:          meta.SourceURI,
		Title:              title,
		Author:             author,
		PageContent:        res.Content,
		WordCount:          WordCount(res.Content),
		TokenCountEstimate: TokenEstimate(res.Content),
		PublishedAt:        published.UTC(),
		SourceKind:         meta.SourceKind,
		ChunkSource:        res.ChunkSource,
	}
}

// WordCount counts words by Unicode word boundaries (UAX #29). Segments with
// no letter or digit (bare punctuation, whitespace) don't count. Same input,
// same count, on every platform.
func WordCount(text string) int {
	count := 0
	tokens := words.FromString(text)
	for tokens.Next() {
		if isWordlike(tokens.Value()) {
			count++
		}
	}
	return count
}

func isWordlike(segment string) bool {
	for _, r := range segment {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// TokenEstimate approximates the token count as ceil(byteLen/4). A fixed
// ratio keeps the estimate pure; callers needing exact counts run a real
// tokenizer downstream.
func TokenEstimate(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + tokenBytesPerToken - 1) / tokenBytesPerToken
}

// RawTextURI builds the synthetic source URI for raw text submissions:
// "raw://" + first 16 hex chars of the content's SHA-256.
func RawTextURI(content string) string {
	sum := sha256.Sum256([]byte(content))
	return fmt.Sprintf("raw://%x", sum[:8])
}

// CleanContent trims outer whitespace and collapses runs of 3+ newlines to
// a blank line, preserving paragraph structure.
func CleanContent(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	for strings.Contains(s, "\n\n\n") {
		s = strings.ReplaceAll(s, "\n\n\n", "\n\n")
	}
	return strings.TrimSpace(s)
}
