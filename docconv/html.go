package docconv

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// skipElements are containers whose text is never document content.
var skipElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"head":     true,
	"nav":      true,
	"footer":   true,
	"iframe":   true,
}

// blockElements get a newline after their text so paragraphs stay separated.
var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"blockquote": true, "pre": true, "section": true, "article": true,
}

// convertHTML extracts readable text from an HTML document: title and author
// from metadata, body text from the DOM with chrome elements skipped.
func convertHTML(in Input) (*Result, error) {
	root, err := html.Parse(bytes.NewReader(in.Data))
	if err != nil {
		return nil, fmt.Errorf("%w: parse html: %v", ErrCorruptInput, err)
	}

	meta := htmlMeta{}
	var sb strings.Builder
	walkHTML(root, &sb, &meta)

	content := collapseBlankLines(sb.String())
	if strings.TrimSpace(content) == "" {
		return nil, ErrNoTextExtracted
	}

	title := strings.TrimSpace(meta.title)
	if title == "" {
		title = firstLine(content)
	}

	res := &Result{
		Title:       title,
		Author:      meta.author,
		Content:     content,
		ChunkSource: in.Name,
	}
	if meta.published != "" {
		if t, err := time.Parse(time.RFC3339, meta.published); err == nil {
			res.PublishedAt = t
		}
	}
	return res, nil
}

type htmlMeta struct {
	title     string
	author    string
	published string
}

func walkHTML(n *html.Node, sb *strings.Builder, meta *htmlMeta) {
	switch n.Type {
	case html.ElementNode:
		if skipElements[n.Data] {
			// Head still carries metadata worth keeping.
			if n.Data == "head" {
				collectMeta(n, meta)
			}
			return
		}
	case html.TextNode:
		text := strings.TrimSpace(n.Data)
		if text != "" {
			if sb.Len() > 0 && !strings.HasSuffix(sb.String(), "\n") {
				sb.WriteByte(' ')
			}
			sb.WriteString(text)
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkHTML(c, sb, meta)
	}

	if n.Type == html.ElementNode && blockElements[n.Data] {
		sb.WriteByte('\n')
	}
}

func collectMeta(head *html.Node, meta *htmlMeta) {
	for c := head.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		switch c.Data {
		case "title":
			if c.FirstChild != nil && meta.title == "" {
				meta.title = c.FirstChild.Data
			}
		case "meta":
			var name, property, content string
			for _, a := range c.Attr {
				switch a.Key {
				case "name":
					name = strings.ToLower(a.Val)
				case "property":
					property = strings.ToLower(a.Val)
				case "content":
					content = a.Val
				}
			}
			switch {
			case name == "author" && meta.author == "":
				meta.author = content
			case property == "article:published_time" && meta.published == "":
				meta.published = content
			case property == "og:title" && meta.title == "":
				meta.title = content
			}
		}
	}
}

// collapseBlankLines squeezes runs of blank lines down to one.
func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, l := range lines {
		trimmed := strings.TrimRight(l, " \t")
		if strings.TrimSpace(trimmed) == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		out = append(out, trimmed)
		blank = false
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
