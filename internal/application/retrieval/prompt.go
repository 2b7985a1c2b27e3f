package retrieval

import (
	"fmt"
	"strings"
)

// promptContextHits is the number of top hits placed into the prompt.
const promptContextHits = 3

// NoHitAnswer is returned when retrieval finds nothing.
const NoHitAnswer = "I couldn't find any relevant information in your meetings to answer that question."

const promptTemplate = `You are an AI assistant helping users understand their meeting content. Based on the following meeting excerpts, please answer the user's question accurately and concisely.

Meeting Context:
%s

User Question: %s

Please provide a helpful answer based on the meeting content above. If the context doesn't contain enough information to fully answer the question, please say so and provide what information you can find. Always cite which meeting(s) your answer comes from.

Answer:`

// BuildPrompt renders the generation prompt from the question and the best hits.
func BuildPrompt(query string, hits []SearchHit) string {
	n := len(hits)
	if n > promptContextHits {
		n = promptContextHits
	}
	blocks := make([]string, 0, n)
	for _, h := range hits[:n] {
		blocks = append(blocks, fmt.Sprintf("Meeting %s (%s): %s",
			h.Document.MeetingID, h.Document.ContentType, h.Document.Content))
	}
	return fmt.Sprintf(promptTemplate, strings.Join(blocks, "\n\n"), query)
}

// BuildCitations turns every hit into a Citation, in hit order.
func BuildCitations(hits []SearchHit) []Citation {
	out := make([]Citation, 0, len(hits))
	for _, h := range hits {
		out = append(out, Citation{
			MeetingID:   h.Document.MeetingID,
			ContentType: h.Document.ContentType,
			Score:       h.Score,
			Snippet:     Snippet(h.Document.Content),
		})
	}
	return out
}
