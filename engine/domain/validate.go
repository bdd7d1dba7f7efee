package domain

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Cypher/SQL fragments that should never appear in a user question.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(MATCH|MERGE|DETACH|DELETE|CREATE|DROP)\b.*\b(RETURN|SET|NODE|INDEX|TABLE|WHERE)\b`),
	regexp.MustCompile(`(?i)(--|;|//)\s*(MATCH|DELETE|DROP|SELECT)`),
	regexp.MustCompile(`(?i)\$\{.*\}`),
	regexp.MustCompile(`(?i)\{\s*"\$[a-z]+"\s*:`),
}

// Hangul syllables carry a whole word in two or three runes, so the minimum
// is counted in runes rather than bytes.
const minQuestionLength = 2

// Question is a free-text user question scoped to a product.
type Question struct {
	Text       string `json:"text"`
	Product    string `json:"product"`
	SubProduct string `json:"sub_product,omitempty"`
	Model      string `json:"model"`
	Section    string `json:"section"`
}

// ValidateQuestion validates a user question before it reaches the
// similarity pipeline.
func ValidateQuestion(q Question) error {
	text := strings.TrimSpace(q.Text)

	if utf8.RuneCountInString(text) < minQuestionLength {
		return NewValidationError("text", text, ErrQueryTooShort)
	}

	for _, pat := range injectionPatterns {
		if pat.MatchString(text) {
			return NewValidationError("text", text, ErrQueryInjection)
		}
	}

	if strings.TrimSpace(q.Product) == "" {
		return NewValidationError("product", q.Product, ErrInvalidQuery)
	}
	if strings.TrimSpace(q.Section) == "" {
		return NewValidationError("section", q.Section, ErrInvalidQuery)
	}
	return nil
}
