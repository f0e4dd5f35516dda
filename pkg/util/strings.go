package util

// TruncateExact caps a string at max runes, not bytes, so multi-byte
// characters are never split. Used for database and vector-store field
// length limits.
func TruncateExact(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
