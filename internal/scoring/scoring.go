// Package scoring ranks a session against the same-day comparison set and
// picks an encouragement message.
package scoring

import "fmt"

// defaultPercentile is used when there is no same-day data to compare to.
const defaultPercentile = 50

// Percentile returns the share of prior same-day sessions strictly shorter
// than the new duration, as an integer 0-100. Ties count as not-shorter.
func Percentile(duration int, priors []int) int {
	if len(priors) == 0 {
		return defaultPercentile
	}

	shorter := 0
	for _, d := range priors {
		if d < duration {
			shorter++
		}
	}

	return (shorter * 100) / len(priors)
}

// Message selects an encouragement for the percentile. Tiers are evaluated
// top-down; boundary values belong to the higher tier.
func Message(duration, percentile int) string {
	switch {
	case percentile >= 99:
		return "welcome to the nothing club - you are in the top 1% of users."
	case percentile >= 95:
		return fmt.Sprintf("stillness like this is rare - you're in the top %d%% of users.", 100-percentile)
	case percentile >= 90:
		return fmt.Sprintf("exceptional focus - you outlasted %d%% of users today.", percentile)
	case percentile >= 75:
		return fmt.Sprintf("you were more still than %d%% of users today.", percentile)
	case percentile >= 50:
		return fmt.Sprintf("good practice - you were more still than %d%% of users today.", percentile)
	case percentile >= 25:
		return "every moment of stillness counts. keep practicing."
	default:
		return "stillness is a practice. this is a beautiful start."
	}
}

// FormatDuration renders seconds as a short human-readable h/m/s string.
func FormatDuration(seconds int) string {
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	secs := seconds % 60

	switch {
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, secs)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, secs)
	default:
		return fmt.Sprintf("%ds", secs)
	}
}
