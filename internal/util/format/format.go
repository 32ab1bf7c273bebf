// Package format renders sizes and ratios for terminal output.
package format

import "strconv"

// HumanizeBytes converts a byte count into a human-readable string (e.g., "1.5 KB").
func HumanizeBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return strconv.FormatInt(b, 10) + " B"
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	var buf [20]byte
	frac := float64(b) / float64(div)
	s := strconv.AppendFloat(buf[:0], frac, 'f', 1, 64)
	suffix := []string{"KB", "MB", "GB", "TB"}[exp]
	return string(s) + " " + suffix
}

// Ratio renders a 0..1 fraction as a percentage with one decimal. Values
// above 1 are taken to be percentages already.
func Ratio(f float64) string {
	if f < 0 {
		f = 0
	}
	if f <= 1 {
		f *= 100
	}
	return strconv.FormatFloat(f, 'f', 1, 64) + "%"
}

// Percent renders an integer percentage, clamped to 0..100.
func Percent(p int) string {
	p = max(0, min(100, p))
	return strconv.Itoa(p) + "%"
}
