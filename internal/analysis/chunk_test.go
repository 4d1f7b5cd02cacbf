package analysis

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit_ShortTextIsSingleChunk(t *testing.T) {
	chunks := Split("hello world", 100)
	require.Len(t, chunks, 1)
	assert.Equal(t, Chunk{Text: "hello world"}, chunks[0])
}

func TestSplit_CutsAfterWhitespace(t *testing.T) {
	chunks := Split("aaaa bbbb cccc", 7)

	require.Len(t, chunks, 3)
	assert.Equal(t, Chunk{Text: "aaaa ", Offset: 0}, chunks[0])
	assert.Equal(t, Chunk{Text: "bbbb ", Offset: 5}, chunks[1])
	assert.Equal(t, Chunk{Text: "cccc", Offset: 10}, chunks[2])
}

func TestSplit_HardCutWithoutWhitespace(t *testing.T) {
	chunks := Split("abcdefghij", 4)

	require.Len(t, chunks, 3)
	assert.Equal(t, "abcd", chunks[0].Text)
	assert.Equal(t, "efgh", chunks[1].Text)
	assert.Equal(t, 8, chunks[2].Offset)
}

func TestSplit_RuneOffsets(t *testing.T) {
	text := "\u00e9\u00e9\u00e9 \u00fc\u00fc\u00fc \u00f1\u00f1\u00f1"
	chunks := Split(text, 5)

	require.Len(t, chunks, 3)
	assert.Equal(t, 4, chunks[1].Offset)
	assert.Equal(t, 8, chunks[2].Offset)
}

func TestSplit_ReassemblesAndRespectsSize(t *testing.T) {
	text := strings.Repeat("lorem ipsum dolor sit amet ", 500)
	chunks := Split(text, 450)

	var b strings.Builder
	offset := 0
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c.Text), 450)
		assert.Equal(t, offset, c.Offset)
		offset += utf8.RuneCountInString(c.Text)
		b.WriteString(c.Text)
	}
	assert.Equal(t, text, b.String())
}
