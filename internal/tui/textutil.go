package tui

// truncateEnd shortens s to at most limit runes, ending in an ellipsis when cut.
func truncateEnd(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	if limit == 1 {
		return "…"
	}
	return string(r[:limit-1]) + "…"
}

// truncateMiddle keeps both ends of s, which is what matters for server URLs
// and long topic names.
func truncateMiddle(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	if limit == 1 {
		return "…"
	}
	keep := limit - 1
	left := keep / 2
	right := keep - left
	if left == 0 {
		return "…" + string(r[len(r)-right:])
	}
	return string(r[:left]) + "…" + string(r[len(r)-right:])
}
