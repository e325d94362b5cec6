package turns

import "regexp"

var (
	fencedCodeRe = regexp.MustCompile("```[\\s\\S]*?```")
	inlineCodeRe = regexp.MustCompile("`[^`]+`")
)

// ContainsCode reports whether content carries a fenced code block or inline
// code span.
func ContainsCode(content string) bool {
	return fencedCodeRe.MatchString(content) || inlineCodeRe.MatchString(content)
}

// ExtractCodeBlocks returns the fenced code blocks in content followed by the
// inline code spans, fences and backticks included.
func ExtractCodeBlocks(content string) []string {
	blocks := fencedCodeRe.FindAllString(content, -1)
	// Strip fenced regions before scanning for inline spans so the fence
	// backticks are not re-matched as inline code.
	stripped := fencedCodeRe.ReplaceAllString(content, "")
	return append(blocks, inlineCodeRe.FindAllString(stripped, -1)...)
}
