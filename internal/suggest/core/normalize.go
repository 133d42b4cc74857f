// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
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

package core

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// MaxPhraseLen is the maximum length of a normalized phrase in code points.
const MaxPhraseLen = 80

// Normalize canonicalizes raw text into the lookup key used everywhere:
// ingest, query, moderation and history all go through this one
// function. Divergence between call sites would break cache hits and
// index lookups, so there is exactly one implementation.
//
// Rules, applied in order: Unicode NFKC, lowercase, trim, collapse
// internal whitespace runs to a single space. The result is rejected if
// it is empty, longer than MaxPhraseLen code points, or contains
// control characters.
func Normalize(text string) (string, error) {
	s := norm.NFKC.String(text)
	s = strings.ToLower(s)
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return "", fmt.Errorf("%w: empty after normalization", ErrInvalidInput)
	}
	n := 0
	for _, r := range s {
		if unicode.IsControl(r) {
			return "", fmt.Errorf("%w: control character", ErrInvalidInput)
		}
		n++
	}
	if n > MaxPhraseLen {
		return "", fmt.Errorf("%w: phrase longer than %d code points", ErrInvalidInput, MaxPhraseLen)
	}
	return s, nil
}
