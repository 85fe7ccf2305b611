// Copyright 2024 AI SA Assistant Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package textnorm folds free-text prompts into a canonical form shared by
// every classifier: lower-cased, diacritic-free, single-spaced.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Text is a normalized prompt. It is a value type; classifiers receive it by
// value and never modify it.
type Text struct {
	Raw    string   `json:"raw"`
	Value  string   `json:"value"`
	Tokens []string `json:"tokens"`
}

// stopWords are dropped from Content. English and French, since prompts come in both.
var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "and": {}, "or": {}, "of": {}, "to": {}, "in": {},
	"on": {}, "for": {}, "with": {}, "my": {}, "me": {}, "i": {}, "please": {}, "is": {},
	"it": {}, "this": {}, "that": {}, "at": {}, "by": {}, "be": {}, "from": {}, "into": {},
	"le": {}, "la": {}, "les": {}, "un": {}, "une": {}, "des": {}, "de": {}, "du": {},
	"et": {}, "ou": {}, "sur": {}, "avec": {}, "pour": {}, "dans": {}, "en": {}, "je": {},
	"mon": {}, "ma": {}, "mes": {}, "au": {}, "aux": {}, "svp": {}, "moi": {}, "veux": {},
}

// Normalize lower-cases s, strips combining diacritical marks and collapses
// whitespace. Hyphens and other punctuation are kept.
func Normalize(s string) Text {
	value := strings.Join(strings.Fields(fold(s)), " ")
	return Text{Raw: s, Value: value, Tokens: tokens(value)}
}

// NormalizeStrict is Normalize with every rune that is not a letter or digit
// turned into a space, so "multi-cloud" becomes "multi cloud".
func NormalizeStrict(s string) Text {
	folded := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, fold(s))
	value := strings.Join(strings.Fields(folded), " ")
	return Text{Raw: s, Value: value, Tokens: tokens(value)}
}

// Content returns the tokens with stop-words removed.
func (t Text) Content() []string {
	content := make([]string, 0, len(t.Tokens))
	for _, tok := range t.Tokens {
		if isStopWord(tok) {
			continue
		}
		content = append(content, tok)
	}
	return content
}

// ContentString joins Content with single spaces.
func (t Text) ContentString() string {
	return strings.Join(t.Content(), " ")
}

// IsEmpty reports whether the normalized text has no tokens.
func (t Text) IsEmpty() bool {
	return len(t.Tokens) == 0
}

// Padded returns the value surrounded by single spaces, for whole-token
// phrase tests with ContainsTerm.
func (t Text) Padded() string {
	return " " + t.Value + " "
}

// ContainsTerm reports whether term occurs in padded as a whole-token phrase.
// padded must come from Text.Padded of a strict-normalized text; term is
// strict-normalized here.
func ContainsTerm(padded, term string) bool {
	needle := NormalizeStrict(term).Value
	if needle == "" {
		return false
	}
	return strings.Contains(padded, " "+needle+" ")
}

func isStopWord(tok string) bool {
	_, ok := stopWords[tok]
	return ok
}

func fold(s string) string {
	// A new chain per call: transform.Chain keeps internal buffers.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	lowered := strings.ToLower(s)
	out, _, err := transform.String(t, lowered)
	if err != nil {
		return lowered
	}
	return out
}

func tokens(value string) []string {
	if value == "" {
		return []string{}
	}
	return strings.Fields(value)
}
