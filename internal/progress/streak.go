package progress

import "cloud.google.com/go/civil"

// NextStreak returns the streak after a completion on today, given the
// current streak and the date of the previous completion (nil if none).
//
// A completion on the same day keeps the streak, one on the following day
// extends it, and any longer gap starts over at 1. A last date after today
// (clock skew) counts as the same day.
func NextStreak(current int, last *civil.Date, today civil.Date) int {
	if last == nil {
		return 1
	}
	switch gap := today.DaysSince(*last); {
	case gap <= 0:
		return current
	case gap == 1:
		return current + 1
	default:
		return 1
	}
}
