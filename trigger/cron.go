package trigger

import (
	"fmt"
	"strings"
	"time"

	"oss.nandlabs.io/cirrusd/chrono"
)

// Cron wraps a standard 5-field cron expression with an explicit timezone.
//
// Only "utc" and "local" are actually evaluated: a named zone (e.g.
// "America/New_York") parses successfully, since rejecting it outright would
// reject configuration that may become valid in a later build, but
// NextSchedule returns the zero time for it and Err reports the error. This mirrors the narrower timezone handling available
// through the standard library's cron adaptation versus a full IANA-aware
// scheduler.
type Cron struct {
	schedule *chrono.CronSchedule
	tz       string
	loc      *time.Location
	locErr   error
}

// ParseCron parses a cron expression and an associated timezone name.
// tz must be "utc", "local", or an IANA zone name; empty defaults to "local".
func ParseCron(expr, tz string) (*Cron, error) {
	schedule, err := chrono.NewCronSchedule(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
	}

	tz = strings.TrimSpace(tz)
	if tz == "" {
		tz = "local"
	}

	c := &Cron{schedule: schedule, tz: tz}
	switch strings.ToLower(tz) {
	case "utc":
		c.loc = time.UTC
	case "local":
		c.loc = time.Local
	default:
		// Deliberately not resolved via time.LoadLocation: this build only
		// evaluates "utc" and "local", see the doc comment above. Any other
		// zone name parses (so config that may become valid in a later
		// build is not rejected outright) but always reports Err().
		c.locErr = fmt.Errorf("trigger: timezone %q is not supported by this build: only \"utc\" and \"local\" are evaluated", tz)
	}
	return c, nil
}

// NextSchedule returns the next firing instant after after, converted into
// the trigger's configured timezone before evaluating the cron fields. The
// returned instant's own location matches after's, so callers never need to
// reason about the trigger's internal timezone.
//
// If the configured timezone could not be resolved at parse time, this
// always returns the zero time; callers should check Err at configuration
// load time instead of relying on this signal alone.
func (c *Cron) NextSchedule(after time.Time) time.Time {
	if c.locErr != nil {
		return time.Time{}
	}
	next := c.schedule.Next(after.In(c.loc))
	if next.IsZero() {
		return next
	}
	return next.In(after.Location())
}

// Err reports whether the trigger's configured timezone is unusable.
func (c *Cron) Err() error { return c.locErr }

// String returns the cron expression and configured timezone.
func (c *Cron) String() string { return fmt.Sprintf("%s %s", c.schedule.String(), c.tz) }
