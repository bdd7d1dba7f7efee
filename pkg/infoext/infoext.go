// Package infoext computes a compact information summary of a user question:
// error codes, content keywords and a normalized phrase used for literal
// matching against canonical phrasings. Korean and English are supported.
package infoext

import (
	"regexp"
	"strings"
	"unicode"
)

// Summary is the extracted view of one question.
type Summary struct {
	Text     string   // normalized question, lower-case, punctuation stripped
	Phrase   string   // keywords joined by single spaces
	Codes    []string // appliance error codes such as "IE", "UE", "dE2"
	Keywords []string
}

// codeRe matches short upper-case error codes, optionally with a digit,
// standing alone as a token ("IE", "OE", "dE2", "tCL").
var codeRe = regexp.MustCompile(`\b[A-Za-z]?[A-Z][A-Z0-9]{0,2}\b`)

var punctRe = regexp.MustCompile(`[^\p{L}\p{N}\s\-]+`)

var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "is": true, "are": true, "am": true,
	"my": true, "me": true, "i": true, "it": true, "its": true, "on": true,
	"in": true, "of": true, "to": true, "for": true, "with": true, "and": true,
	"or": true, "what": true, "does": true, "do": true, "how": true, "why": true,
	"can": true, "please": true, "mean": true, "means": true, "this": true,
	"that": true, "there": true, "when": true, "be": true, "was": true,
	"뭐야": true, "뭔가요": true, "무엇인가요": true, "어떻게": true, "왜": true,
	"해요": true, "하나요": true, "해야": true, "하나": true, "알려줘": true,
	"알려주세요": true, "있어요": true,
}

// Korean particles stripped from the end of a token, longest first.
var particles = []string{"에서는", "에서", "으로", "부터", "까지", "이랑", "은", "는", "이", "가", "을", "를", "에", "의", "도", "로", "와", "과"}

// codeWords are upper-case tokens that are never error codes.
var codeWords = map[string]bool{"I": true, "A": true, "OK": true, "LG": true, "TV": true, "AC": true, "DC": true, "WIFI": true, "LED": true}

// Extract builds the Summary for text.
func Extract(text string) Summary {
	s := Summary{Codes: extractCodes(text)}

	clean := strings.ToLower(punctRe.ReplaceAllString(text, " "))
	s.Text = strings.Join(strings.Fields(clean), " ")

	seen := make(map[string]bool)
	for _, tok := range strings.Fields(clean) {
		tok = strings.Trim(tok, "-")
		if hasHangul(tok) {
			tok = stripParticle(tok)
		}
		if tok == "" || stopwords[tok] || seen[tok] {
			continue
		}
		seen[tok] = true
		s.Keywords = append(s.Keywords, tok)
	}
	s.Phrase = strings.Join(s.Keywords, " ")
	return s
}

func extractCodes(text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range codeRe.FindAllString(text, -1) {
		if codeWords[m] || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}

func stripParticle(tok string) string {
	for _, p := range particles {
		if strings.HasSuffix(tok, p) && len([]rune(tok)) > len([]rune(p)) {
			return strings.TrimSuffix(tok, p)
		}
	}
	return tok
}

func hasHangul(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Hangul, r) {
			return true
		}
	}
	return false
}
