// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package semantic derives search text and vectors from registry entries
// and answers similarity queries over them.
package semantic

import (
	"regexp"
	"strings"
)

var tokenRe = regexp.MustCompile(`[a-zA-Zа-яА-ЯёЁ0-9]+`)

// NormalizeText lowercases the input, extracts alphanumeric tokens
// (Latin and Cyrillic), and joins them deduplicated in first-seen order.
// This is the canonical search-text shape for both stored entries and
// incoming queries; matching on both sides must go through the same
// function.
func NormalizeText(text string) string {
	tokens := Tokens(text)
	return strings.Join(tokens, " ")
}

// Tokens returns the deduplicated token list of text, lowercased, in
// first-seen order.
func Tokens(text string) []string {
	raw := tokenRe.FindAllString(strings.ToLower(text), -1)
	seen := make(map[string]struct{}, len(raw))
	var tokens []string
	for _, tok := range raw {
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		tokens = append(tokens, tok)
	}
	return tokens
}
