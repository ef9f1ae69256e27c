package grok

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var markdown = goldmark.New()

// StripFence returns the contents of the first ```json (or untagged ```)
// fenced block in reply, or reply trimmed when there is no fence.
func StripFence(reply string) string {
	if !strings.Contains(reply, "```") {
		return strings.TrimSpace(reply)
	}
	if inner, ok := fencedBlock([]byte(reply)); ok {
		return strings.TrimSpace(inner)
	}

	// Fences that are not on their own line (```json {...}```) parse as code
	// spans, so cut them by hand.
	s := reply
	if _, after, ok := strings.Cut(s, "```json"); ok {
		s = after
	} else if _, after, ok := strings.Cut(s, "```"); ok {
		s = after
	}
	if before, _, ok := strings.Cut(s, "```"); ok {
		s = before
	}
	return strings.TrimSpace(s)
}

func fencedBlock(src []byte) (string, bool) {
	doc := markdown.Parser().Parse(text.NewReader(src))

	var (
		found bool
		buf   bytes.Buffer
	)
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || found {
			return ast.WalkContinue, nil
		}
		block, ok := n.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}
		lang := strings.ToLower(string(block.Language(src)))
		if lang != "" && lang != "json" {
			return ast.WalkContinue, nil
		}
		lines := block.Lines()
		for i := 0; i < lines.Len(); i++ {
			segment := lines.At(i)
			buf.Write(segment.Value(src))
		}
		found = true
		return ast.WalkStop, nil
	})
	return buf.String(), found
}
