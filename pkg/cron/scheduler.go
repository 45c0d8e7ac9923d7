package cron

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Standard five fields plus @hourly/@daily/@every descriptors.
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// NextRun returns the first instant matching expr strictly after from.
func NextRun(expr, tz string, from time.Time) (time.Time, error) {
	sched, loc, err := parse(expr, tz)
	if err != nil {
		return time.Time{}, err
	}
	return next(sched, loc, from)
}

func parse(expr, tz string) (cron.Schedule, *time.Location, error) {
	if expr == "" {
		return nil, nil, fmt.Errorf("cron expression is required")
	}

	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid cron expression: %w", err)
	}

	loc := time.Local
	if tz != "" {
		loc, err = time.LoadLocation(tz)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid timezone: %w", err)
		}
	}

	return sched, loc, nil
}

func next(sched cron.Schedule, loc *time.Location, from time.Time) (time.Time, error) {
	n := sched.Next(from.In(loc))
	// robfig returns the zero time when nothing matches within five years.
	if n.IsZero() {
		return time.Time{}, fmt.Errorf("cron expression never fires")
	}
	return n, nil
}
