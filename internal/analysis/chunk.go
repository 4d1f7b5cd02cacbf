package analysis

import "unicode"

// Chunk is a slice of a larger text. Offset is the rune offset of the chunk's first
// character in that text.
type Chunk struct {
	Text   string
	Offset int
}

// Split cuts text into chunks of at most size runes, preferring to cut after the last
// whitespace inside the window. Concatenating the chunks yields text again.
func Split(text string, size int) []Chunk {
	runes := []rune(text)
	if size <= 0 || len(runes) <= size {
		return []Chunk{{Text: text}}
	}

	var chunks []Chunk
	for start := 0; start < len(runes); {
		end := min(start+size, len(runes))
		if end < len(runes) {
			for k := end - 1; k > start; k-- {
				if unicode.IsSpace(runes[k]) {
					end = k + 1
					break
				}
			}
		}
		chunks = append(chunks, Chunk{Text: string(runes[start:end]), Offset: start})
		start = end
	}
	return chunks
}
