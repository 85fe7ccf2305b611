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

package textnorm

import (
	"testing"
	"unicode"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
		tokens   []string
	}{
		{
			name:     "French accents",
			input:    "Déployer  un Serveur Élastique",
			expected: "deployer un serveur elastique",
			tokens:   []string{"deployer", "un", "serveur", "elastique"},
		},
		{
			name:     "Hyphen kept",
			input:    "Multi-Cloud setup",
			expected: "multi-cloud setup",
			tokens:   []string{"multi-cloud", "setup"},
		},
		{
			name:     "Whitespace collapsed",
			input:    "  nginx\t\n  ssl ",
			expected: "nginx ssl",
			tokens:   []string{"nginx", "ssl"},
		},
		{
			name:     "Empty",
			input:    "",
			expected: "",
			tokens:   []string{},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := Normalize(tc.input)
			assert.Equal(t, tc.expected, got.Value)
			assert.Equal(t, tc.tokens, got.Tokens)
			assert.Equal(t, tc.input, got.Raw)
		})
	}
}

func TestNormalizeStrict(t *testing.T) {
	got := NormalizeStrict("Multi-cloud: AWS/GCP, rôle «web»!")
	assert.Equal(t, "multi cloud aws gcp role web", got.Value)
}

func TestNormalize_NoCombiningMarksAndIdempotent(t *testing.T) {
	inputs := []string{
		"Installer nginx avec SSL sur Ubuntu",
		"Crème brûlée à la façon d'İstanbul",
		"ÀÉÎÕÜ ñ ç ø å",
		"été (decomposed)",
		"日本語 テキスト",
	}

	for _, input := range inputs {
		first := Normalize(input)
		for _, r := range first.Value {
			assert.False(t, unicode.Is(unicode.Mn, r), "combining mark %q left in %q", r, first.Value)
		}
		second := Normalize(first.Value)
		assert.Equal(t, first.Value, second.Value)
		assert.Equal(t, first.Tokens, second.Tokens)

		strict := NormalizeStrict(input)
		assert.Equal(t, strict.Value, NormalizeStrict(strict.Value).Value)
	}
}

func TestContent_RemovesStopWords(t *testing.T) {
	text := NormalizeStrict("Installer le serveur nginx avec SSL sur Ubuntu")
	assert.Equal(t, []string{"installer", "serveur", "nginx", "ssl", "ubuntu"}, text.Content())
	assert.Equal(t, "installer serveur nginx ssl ubuntu", text.ContentString())
	assert.True(t, isStopWord("avec"))
	assert.False(t, isStopWord("nginx"))
}

func TestContainsTerm(t *testing.T) {
	padded := NormalizeStrict("Deploy podman containers then restart nginx").Padded()

	assert.True(t, ContainsTerm(padded, "podman"))
	assert.True(t, ContainsTerm(padded, "restart nginx"))
	assert.False(t, ContainsTerm(padded, "pod"))
	assert.False(t, ContainsTerm(padded, ""))
	assert.True(t, NormalizeStrict("   ").IsEmpty())
}
