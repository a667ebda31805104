package query

import (
	"regexp"
	"strings"

	"github.com/ternarybob/conspectus/internal/models"
)

// Trigger phrases for retrieval strategy selection, evaluated top to bottom
// with first match wins. Structured phrasing still classifies as hybrid:
// count and lookup questions benefit from semantic grounding alongside the
// exact numbers.
var structuredPatterns = []*regexp.Regexp{
	regexp.MustCompile(`how many`),
	regexp.MustCompile(`count of`),
	regexp.MustCompile(`list all`),
	regexp.MustCompile(`show me all`),
	regexp.MustCompile(`what is the status of`),
	regexp.MustCompile(`which programs are`),
	regexp.MustCompile(`programs in .* status`),
	regexp.MustCompile(`programs launching (this|next|in)`),
}

var semanticPatterns = []*regexp.Regexp{
	regexp.MustCompile(`what are the (main|key|biggest|top)`),
	regexp.MustCompile(`summarize`),
	regexp.MustCompile(`explain`),
	regexp.MustCompile(`why is`),
	regexp.MustCompile(`tell me about`),
	regexp.MustCompile(`risks? (across|for|in)`),
	regexp.MustCompile(`health of`),
}

// DetectQueryType classifies a question to pick its retrieval strategy:
// hybrid (both retrievers), semantic (vector search only), or structured.
// Unmatched questions default to hybrid for best coverage.
func DetectQueryType(question string) string {
	q := strings.ToLower(question)

	for _, pattern := range structuredPatterns {
		if pattern.MatchString(q) {
			return models.QueryTypeHybrid
		}
	}

	for _, pattern := range semanticPatterns {
		if pattern.MatchString(q) {
			return models.QueryTypeSemantic
		}
	}

	return models.QueryTypeHybrid
}
