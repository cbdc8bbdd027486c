package scheduler

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// CronSchedule is a robfig/cron schedule that remembers its source spec.
type CronSchedule struct {
	spec     string
	schedule cron.Schedule
}

// ParseSchedule accepts any standard 5-field cron spec or descriptor
// (@daily, @every 15m). Field-based specs are evaluated in loc unless the
// spec carries its own CRON_TZ= prefix.
func ParseSchedule(spec string, loc *time.Location) (*CronSchedule, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, fmt.Errorf("%w: empty spec", ErrInvalidSchedule)
	}

	full := spec
	if loc != nil && !strings.HasPrefix(spec, "CRON_TZ=") && !strings.HasPrefix(spec, "TZ=") && !strings.HasPrefix(spec, "@every") {
		full = "CRON_TZ=" + loc.String() + " " + spec
	}

	sched, err := cron.ParseStandard(full)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidSchedule, spec, err)
	}
	return &CronSchedule{spec: spec, schedule: sched}, nil
}

// MustParseSchedule is ParseSchedule that panics, for fixed specs.
func MustParseSchedule(spec string, loc *time.Location) *CronSchedule {
	s, err := ParseSchedule(spec, loc)
	if err != nil {
		panic(err)
	}
	return s
}

func (c *CronSchedule) Next(t time.Time) time.Time { return c.schedule.Next(t) }
func (c *CronSchedule) String() string             { return c.spec }

// IntervalSchedule runs a job at a fixed interval without rounding to seconds.
type IntervalSchedule struct {
	Interval time.Duration
}

// Every creates an IntervalSchedule.
func Every(interval time.Duration) IntervalSchedule {
	return IntervalSchedule{Interval: interval}
}

func (s IntervalSchedule) Next(t time.Time) time.Time { return t.Add(s.Interval) }
func (s IntervalSchedule) String() string             { return "@every " + s.Interval.String() }

// ErrInvalidSchedule is returned for specs robfig/cron rejects.
var ErrInvalidSchedule = errors.New("invalid schedule")
