package streaming

import "fmt"

// Classify maps a level height onto the five-step label ladder.
func Classify(height int) string {
	switch {
	case height >= 1080:
		return "1080p"
	case height >= 720:
		return "720p"
	case height >= 480:
		return "480p"
	case height >= 360:
		return "360p"
	default:
		return "240p"
	}
}

// qualityLabels returns "Auto" followed by one label per level, in order.
// Levels sharing a label keep their own entry.
func qualityLabels(levels []Level) []string {
	out := make([]string, 0, len(levels)+1)
	out = append(out, AutoQuality)
	for _, l := range levels {
		out = append(out, Classify(l.Height))
	}
	return out
}

// levelIndex resolves a label to a zero-based engine level index. The
// result is negative when the label is unknown or is AutoQuality.
func levelIndex(available []string, label string) int {
	for i, q := range available {
		if q == label {
			return i - 1
		}
	}
	return -2
}

// FormatBitrate renders a bitrate the way the quality selector shows it:
// "1.5M" at or above one megabit, "800K" below.
func FormatBitrate(bps int) string {
	if bps >= 1000000 {
		return fmt.Sprintf("%.1fM", float64(bps)/1000000)
	}
	return fmt.Sprintf("%.0fK", float64(bps)/1000)
}

// FormatSpeed renders a network speed estimate in Mbps or Kbps.
func FormatSpeed(bps float64) string {
	if bps >= 1000000 {
		return fmt.Sprintf("%.1f Mbps", bps/1000000)
	}
	return fmt.Sprintf("%.0f Kbps", bps/1000)
}
