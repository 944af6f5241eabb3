package delivery

import "time"

// Escalating retry delays, indexed by the attempt that just failed. Attempts
// past the table fall back to a flat hourly delay.
var retrySchedule = []time.Duration{
	1 * time.Minute,
	5 * time.Minute,
	30 * time.Minute,
}

const fallbackDelay = 60 * time.Minute

// requeueDelay reschedules deliveries that could not be attempted at all
// (storage glitch, lapsed circuit state). No retry slot is consumed.
const requeueDelay = time.Minute

// RetryDelay returns how long to wait after failed attempt number
// failedAttempt (1-indexed) before the next attempt.
func RetryDelay(failedAttempt int) time.Duration {
	if failedAttempt < 1 {
		failedAttempt = 1
	}
	if failedAttempt <= len(retrySchedule) {
		return retrySchedule[failedAttempt-1]
	}
	return fallbackDelay
}

func IsSuccess(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}
