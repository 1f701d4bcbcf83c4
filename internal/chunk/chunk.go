// Package chunk splits file content into fixed-size slices and computes the
// content-addressed hashes used to identify files, file versions and chunks.
package chunk

import "unicode/utf8"

// DefaultSize is the chunk length, in characters, used when none is configured.
const DefaultSize = 1000

// Chunk is one ordered slice of a file's text.
type Chunk struct {
	Index int
	Text  string
	Hash  string
}

// Split slices text into consecutive, non-overlapping pieces of at most size
// characters. Lengths are counted in runes so a multi-byte character is never
// cut in half. The last piece may be shorter. Empty text yields no pieces.
// A non-positive size falls back to DefaultSize.
func Split(text string, size int) []string {
	if size <= 0 {
		size = DefaultSize
	}
	if text == "" {
		return nil
	}

	n := utf8.RuneCountInString(text)
	out := make([]string, 0, (n+size-1)/size)

	start, count := 0, 0
	for i := range text {
		if count == size {
			out = append(out, text[start:i])
			start, count = i, 0
		}
		count++
	}
	out = append(out, text[start:])
	return out
}

// Chunks splits text and hashes each piece.
func Chunks(text string, size int) []Chunk {
	parts := Split(text, size)
	chunks := make([]Chunk, len(parts))
	for i, p := range parts {
		chunks[i] = Chunk{Index: i, Text: p, Hash: Hash(p)}
	}
	return chunks
}
