package content

import "time"

// IsOutsideThresholdPeriod reports whether t is older than the given duration
// expression, e.g. "24h".
func IsOutsideThresholdPeriod(t time.Time, expression string) (bool, error) {
	window, err := time.ParseDuration(expression)
	if err != nil {
		return false, err
	}

	return time.Since(t) > window, nil
}
