package retrieval

import "strings"

// ChunkLines splits extracted document text into retrieval units, one per
// non-empty line with surrounding whitespace trimmed. Line granularity keeps
// chunks small enough that top-k retrieval returns focused passages.
func ChunkLines(text string) []string {
	var chunks []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			chunks = append(chunks, line)
		}
	}
	return chunks
}
