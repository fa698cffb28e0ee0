// ABOUTME: Renders offer descriptions from markdown to HTML
// ABOUTME: Raw HTML and dangerous link targets are dropped by the renderer

package offers

import (
	"bytes"
	"fmt"

	"github.com/yuin/goldmark"
)

// markdown keeps goldmark's safe defaults: no raw HTML passthrough.
var markdown = goldmark.New()

// RenderDescription converts a markdown description to an HTML fragment.
func RenderDescription(src string) (string, error) {
	if src == "" {
		return "", nil
	}
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("rendering description: %w", err)
	}
	return buf.String(), nil
}
