package chat

import "unicode/utf8"

// DefaultChunkSize is the longest message sent in one piece.
const DefaultChunkSize = 2000

// Split cuts text into chunks of at most n characters, counted in runes so
// multi-byte characters are never cut in half. n <= 0 uses DefaultChunkSize.
// Empty text yields no chunks.
func Split(text string, n int) []string {
	if n <= 0 {
		n = DefaultChunkSize
	}
	var chunks []string
	for len(text) > 0 {
		if utf8.RuneCountInString(text) <= n {
			chunks = append(chunks, text)
			break
		}
		cut, count := 0, 0
		for i := range text {
			if count == n {
				cut = i
				break
			}
			count++
		}
		chunks = append(chunks, text[:cut])
		text = text[cut:]
	}
	return chunks
}
