package materials

import (
	"fmt"
	"strings"
)

// ChunkWords splits text into overlapping word windows. Each chunk holds
// up to size words; consecutive chunks share overlap words so sentences
// straddling a boundary survive retrieval.
func ChunkWords(text string, size, overlap int) ([]string, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("overlap %d must be in [0, %d)", overlap, size)
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil, nil
	}

	step := size - overlap
	var chunks []string
	for start := 0; start < len(words); start += step {
		end := start + size
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}
	return chunks, nil
}
