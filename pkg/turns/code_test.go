package turns

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContainsCode(t *testing.T) {
	assert.True(t, ContainsCode("use `fmt.Println` here"))
	assert.True(t, ContainsCode("```go\nfunc main() {}\n```"))
	assert.False(t, ContainsCode("plain prose with no markers"))
	assert.False(t, ContainsCode(""))
}

func TestExtractCodeBlocks(t *testing.T) {
	content := "intro\n```go\nfunc a() {}\n```\ntext with `x := 1` inline\n```\nraw\n```"
	blocks := ExtractCodeBlocks(content)
	require.Len(t, blocks, 3)
	assert.Equal(t, "```go\nfunc a() {}\n```", blocks[0])
	assert.Equal(t, "```\nraw\n```", blocks[1])
	assert.Equal(t, "`x := 1`", blocks[2])
}

func TestTurnCoverWeight(t *testing.T) {
	assert.Equal(t, 1, Turn{Role: RoleUser}.CoverWeight())
	assert.Equal(t, 1, Turn{Role: RoleSummary, IsSummary: true, Covers: []int64{4}}.CoverWeight())
	assert.Equal(t, 3, Turn{Role: RoleSummary, IsSummary: true, Covers: []int64{4, 5, 6}}.CoverWeight())
}
