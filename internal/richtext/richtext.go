// Package richtext flattens the content service's block rich-text format
// into plain text.
package richtext

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Node is a block or inline node. Inline text nodes carry Text; every other
// node carries Children.
type Node struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Format   string `json:"format,omitempty"`
	Children []Node `json:"children,omitempty"`
}

// Normalize converts raw rich text to plain text. raw may be a JSON string,
// which is returned trimmed, or an array of block nodes. Anything else,
// including malformed JSON, yields "".
func Normalize(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return strings.TrimSpace(s)
	case '[':
		var blocks []Node
		if err := json.Unmarshal(raw, &blocks); err != nil {
			return ""
		}
		return FromBlocks(blocks)
	}
	return ""
}

// FromBlocks renders blocks as paragraphs separated by a blank line. Blocks
// of unknown type render as nothing.
func FromBlocks(blocks []Node) string {
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if s := renderBlock(b); strings.TrimSpace(s) != "" {
			parts = append(parts, s)
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n\n"))
}

func renderBlock(b Node) string {
	switch b.Type {
	case "paragraph", "heading", "quote", "code":
		return inline(b.Children)
	case "list":
		lines := make([]string, 0, len(b.Children))
		for i, item := range b.Children {
			text := strings.TrimSpace(inline(item.Children))
			if text == "" {
				continue
			}
			marker := "- "
			if b.Format == "ordered" {
				marker = strconv.Itoa(i+1) + ". "
			}
			lines = append(lines, marker+text)
		}
		return strings.Join(lines, "\n")
	}
	return ""
}

func inline(nodes []Node) string {
	var sb strings.Builder
	for _, n := range nodes {
		switch {
		case n.Type == "text" || (n.Type == "" && n.Text != ""):
			sb.WriteString(n.Text)
		case len(n.Children) > 0:
			sb.WriteString(inline(n.Children))
		}
	}
	return sb.String()
}
