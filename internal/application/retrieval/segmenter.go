package retrieval

import "strings"

const (
	DefaultChunkMaxLength = 8000
	DefaultChunkOverlap   = 200

	// sentenceLookback is how far back from a window end a sentence break is searched for.
	sentenceLookback = 500
)

// Segment splits text into overlapping chunks of at most maxLength runes,
// preferring to cut just after a sentence terminator.
func Segment(text string, maxLength, overlap int) []string {
	chunks := SplitChunks(text, maxLength, overlap)
	out := make([]string, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, c.Text)
	}
	return out
}

// SplitChunks is Segment with sequence numbers and rune offsets.
func SplitChunks(text string, maxLength, overlap int) []Chunk {
	runes := []rune(text)
	if maxLength <= 0 || len(runes) <= maxLength {
		t := strings.TrimSpace(text)
		if t == "" {
			return nil
		}
		return []Chunk{{SequenceIndex: 0, Text: t, CharStart: 0, CharEnd: len(runes)}}
	}
	if overlap < 0 {
		overlap = 0
	}

	out := make([]Chunk, 0, len(runes)/maxLength+1)
	start := 0
	for start < len(runes) {
		end := start + maxLength
		if end < len(runes) {
			if br := lastSentenceEnd(runes, end-sentenceLookback, end); br > start {
				end = br + 1
			}
		} else {
			end = len(runes)
		}

		if t := strings.TrimSpace(string(runes[start:end])); t != "" {
			out = append(out, Chunk{
				SequenceIndex: len(out),
				Text:          t,
				CharStart:     start,
				CharEnd:       end,
			})
		}

		if end >= len(runes) {
			break
		}
		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return out
}

// lastSentenceEnd returns the index of the last '.', '!' or '?' in runes[lo:hi], or -1.
func lastSentenceEnd(runes []rune, lo, hi int) int {
	if lo < 0 {
		lo = 0
	}
	for i := hi - 1; i >= lo; i-- {
		switch runes[i] {
		case '.', '!', '?':
			return i
		}
	}
	return -1
}
