package codec

// TrimToValidJSON returns the longest prefix of s that ends exactly where a
// top-level JSON object or array closes. Keystream decoding past a noisy
// tail leaves garbage after the real payload; the scanner walks the string
// once, honoring string literals and escapes, and cuts at the last position
// where nesting returned to depth zero. Input with no complete value is
// returned unchanged.
func TrimToValidJSON(s string) string {
	depth := 0
	inString := false
	escaped := false
	opened := false
	last := -1

	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{', '[':
			depth++
			opened = true
		case '}', ']':
			depth--
			if depth == 0 && opened {
				last = i
			}
			if depth < 0 {
				// More closers than openers: everything before this
				// point is the best we have.
				if last >= 0 {
					return s[:last+1]
				}
				return s
			}
		}
	}
	if last >= 0 {
		return s[:last+1]
	}
	return s
}
