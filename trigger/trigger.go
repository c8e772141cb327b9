// Package trigger implements the two trigger shapes a backup definition can
// carry: a small natural-language wall-clock DSL ("6am and 18:00 every
// weekday except wednesday") and a cron expression paired with a timezone.
package trigger

import "time"

// Trigger computes, given an instant, the earliest instant strictly after it
// at which the trigger fires, or the zero time if it never will.
type Trigger interface {
	NextSchedule(after time.Time) time.Time
}
