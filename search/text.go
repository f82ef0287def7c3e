package search

import (
	"strings"
	"unicode"

	"github.com/poiesic/answerbank/core"
)

// DedupKey maps a record to the key results are deduplicated on. Records
// with equal non-empty keys collapse into the best-scoring one; an empty
// key never collapses.
type DedupKey func(*core.AnswerRecord) string

// DedupByAnswer treats answers that differ only in case, punctuation or
// spacing as the same answer.
func DedupByAnswer(r *core.AnswerRecord) string {
	return normalizeText(r.Answer)
}

// DedupByCode collapses records sharing a code.
func DedupByCode(r *core.AnswerRecord) string {
	return r.Code
}

// DedupByMetadata returns a DedupKey reading the given metadata field.
func DedupByMetadata(field string) DedupKey {
	return func(r *core.AnswerRecord) string {
		return r.Metadata[field]
	}
}

// normalizeText lowercases text, drops punctuation and collapses whitespace.
func normalizeText(text string) string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return strings.Join(words, " ")
}

// matchesKeyword reports whether the record's question or answer contains
// keyword, ignoring case. keyword must already be lowercased.
func matchesKeyword(r *core.AnswerRecord, keyword string) bool {
	return strings.Contains(strings.ToLower(r.Question), keyword) ||
		strings.Contains(strings.ToLower(r.Answer), keyword)
}
