package model

import (
	"strings"
)

// Document is one rendered card bound for the chat surface. A turn may
// span several documents; only the first carries the banner.
type Document struct {
	Banner string   `json:"banner,omitempty"`
	Blocks []string `json:"blocks"`
}

// ComponentCount is the number of rendered components the chat surface
// will lay out for this document. The banner counts as one.
func (d *Document) ComponentCount() int {
	n := len(d.Blocks)
	if d.Banner != "" {
		n++
	}
	return n
}

// Body flattens the document into plain text for transports without a
// block concept.
func (d *Document) Body() string {
	parts := make([]string, 0, len(d.Blocks)+1)
	if d.Banner != "" {
		parts = append(parts, d.Banner)
	}
	parts = append(parts, d.Blocks...)
	return strings.Join(parts, "\n\n")
}
