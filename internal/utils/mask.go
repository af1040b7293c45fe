package utils

// MaskSecret keeps the first four characters of a secret for log lines.
// Secrets of eight characters or fewer are masked completely.
func MaskSecret(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 8:
		return "*****"
	default:
		return s[:4] + "*****"
	}
}
