// Package textutil holds the UTF-8-safe text chunking helpers used by the
// synthesis engine's content-delta emission. Every byte-index operation here must snap to a
// valid rune boundary; real model output routinely contains multi-byte
// runes (emoji, combining marks, non-breaking spaces) at arbitrary
// offsets, and an off-by-one here is a crash, not a cosmetic bug.
package textutil

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// FloorCharBoundary returns the largest index <= i that lies on a UTF-8
// rune boundary of s. It never returns a value above len(s) and never
// below 0.
func FloorCharBoundary(s string, i int) int {
	if i <= 0 {
		return 0
	}
	if i >= len(s) {
		return len(s)
	}
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}

// whitespaceSearchWindow bounds how far ChunkText will look backward from
// a proposed cut point for a whitespace rune before giving up and cutting
// mid-word at the char boundary instead.
const whitespaceSearchWindow = 16

// ChunkText splits s into a sequence of substrings, each targeting
// approximately `target` bytes, such that concatenating the returned
// slice reproduces s exactly. Every returned chunk is non-empty and ends
// on a valid UTF-8 boundary.
//
// Algorithm, per byte position p: propose end = p + target, floor it to
// the nearest rune boundary <= end. If that collapses back onto p (target
// smaller than the rune at p), advance by one full rune instead. Then
// search backward within a small window for a whitespace rune and, if
// found, cut after it instead — preferring word boundaries without ever
// advancing by a partial multi-byte rune.
func ChunkText(s string, target int) []string {
	if s == "" {
		return nil
	}
	if target <= 0 {
		target = 1
	}

	var chunks []string
	p := 0
	for p < len(s) {
		end := p + target
		end = FloorCharBoundary(s, end)
		if end <= p {
			_, size := utf8.DecodeRuneInString(s[p:])
			end = p + size
		}

		if end < len(s) {
			if ws, ok := lastWhitespaceEnd(s, p, end); ok {
				end = ws
			}
		}

		chunks = append(chunks, s[p:end])
		p = end
	}
	return chunks
}

// lastWhitespaceEnd searches s[lo:hi] backward for the last whitespace
// rune within whitespaceSearchWindow bytes of hi, returning the byte
// offset immediately after that rune. It reports false if no whitespace
// rune was found in the window, or if the window would reach back past
// lo (leaving nothing in the chunk).
func lastWhitespaceEnd(s string, lo, hi int) (int, bool) {
	windowStart := hi - whitespaceSearchWindow
	if windowStart < lo {
		windowStart = lo
	}
	if windowStart >= hi {
		return 0, false
	}
	window := s[windowStart:hi]

	idx := strings.LastIndexFunc(window, unicode.IsSpace)
	if idx < 0 {
		return 0, false
	}
	r, size := utf8.DecodeRuneInString(window[idx:])
	if r == utf8.RuneError {
		return 0, false
	}
	end := windowStart + idx + size
	if end <= lo {
		return 0, false
	}
	return end, true
}
