package fixes

import (
	"fmt"
	"strings"
)

// objectPair is one key/value slice recovered from a (possibly broken)
// JSON object's top level. ValueRaw is the exact JSON text that should
// follow "key": in the repaired object, including surrounding quotes for
// string values.
type objectPair struct {
	Key          string
	ValueRaw     string
	ColonMissing bool
}

// scanObjectPairs walks buf, which is expected to begin with '{', and
// recovers as many complete top-level key/value pairs as the buffer
// currently contains. It tolerates two corruption patterns: a value
// whose separating colon was dropped (the value text runs straight from
// the key's closing quote to its own closing quote), and a truncated
// trailing pair from a still-arriving stream, which is simply omitted
// from the returned pairs (never retroactively altered once a pair is
// returned, so callers that treat the result as a growing prefix stay
// safe). complete reports whether a closing '}' was found.
func scanObjectPairs(buf string) (pairs []objectPair, complete bool) {
	i := strings.IndexByte(buf, '{')
	if i < 0 {
		return nil, false
	}
	p := i + 1
	n := len(buf)

	for {
		for p < n && (buf[p] == ' ' || buf[p] == '\t' || buf[p] == '\n' || buf[p] == '\r' || buf[p] == ',') {
			p++
		}
		if p >= n {
			return pairs, false
		}
		if buf[p] == '}' {
			return pairs, true
		}
		if buf[p] != '"' {
			return pairs, false
		}

		keyStart := p
		keyEnd, ok := scanString(buf, keyStart)
		if !ok {
			return pairs, false
		}
		key := buf[keyStart+1 : keyEnd-1]

		q := keyEnd
		for q < n && (buf[q] == ' ' || buf[q] == '\t' || buf[q] == '\n' || buf[q] == '\r') {
			q++
		}

		colonMissing := true
		if q < n && buf[q] == ':' {
			colonMissing = false
			q++
			for q < n && (buf[q] == ' ' || buf[q] == '\t' || buf[q] == '\n' || buf[q] == '\r') {
				q++
			}
		}
		if q >= n {
			return pairs, false
		}

		var valueRaw string
		var valueEnd int
		if colonMissing {
			// The colon was missing, so the value's own opening quote
			// was lost too: scan a raw string body from q to the next
			// unescaped quote rather than expecting one at q.
			vEnd, ok := scanRawStringBody(buf, q)
			if !ok {
				return pairs, false
			}
			valueRaw = fmt.Sprintf("%q", buf[q:vEnd])
			valueEnd = vEnd + 1
		} else {
			vEnd, ok := scanValue(buf, q)
			if !ok {
				return pairs, false
			}
			valueRaw = buf[q:vEnd]
			valueEnd = vEnd
		}

		pairs = append(pairs, objectPair{Key: key, ValueRaw: valueRaw, ColonMissing: colonMissing})
		p = valueEnd
	}
}

// scanString returns the index just past a JSON string literal starting
// at s[start] (which must be '"'), or ok=false if it runs off the end of
// the buffer unterminated.
func scanString(s string, start int) (end int, ok bool) {
	if start >= len(s) || s[start] != '"' {
		return 0, false
	}
	i := start + 1
	for i < len(s) {
		switch s[i] {
		case '\\':
			i += 2
			continue
		case '"':
			return i + 1, true
		}
		i++
	}
	return 0, false
}

// scanRawStringBody finds the next unescaped '"' at or after start,
// returning its index (exclusive end of the body). Used to recover a
// string value whose opening quote was lost to the missing-colon
// corruption.
func scanRawStringBody(s string, start int) (end int, ok bool) {
	i := start
	for i < len(s) {
		if s[i] == '\\' {
			i += 2
			continue
		}
		if s[i] == '"' {
			return i, true
		}
		i++
	}
	return 0, false
}

// scanValue returns the index just past a JSON value (string, number,
// true/false/null, object, or array) starting at s[start].
func scanValue(s string, start int) (end int, ok bool) {
	if start >= len(s) {
		return 0, false
	}
	switch s[start] {
	case '"':
		return scanString(s, start)
	case '{', '[':
		open, close := byte('{'), byte('}')
		if s[start] == '[' {
			open, close = '[', ']'
		}
		depth := 0
		i := start
		for i < len(s) {
			switch s[i] {
			case '"':
				se, ok := scanString(s, i)
				if !ok {
					return 0, false
				}
				i = se
				continue
			case open:
				depth++
			case close:
				depth--
				if depth == 0 {
					return i + 1, true
				}
			}
			i++
		}
		return 0, false
	default:
		i := start
		for i < len(s) {
			c := s[i]
			if c == ',' || c == '}' || c == ']' {
				break
			}
			i++
		}
		if i >= len(s) {
			return 0, false
		}
		return i, true
	}
}
