// Package triggers evaluates scheduled-task trigger predicates against a
// point in time. All evaluation happens in UTC.
package triggers

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/agentrun/agentrun/internal/scheduler/models"
)

// Margins bound how far past its target moment a task remains dispatchable.
// A tick loop is coarse, so an exact-time comparison would miss every firing.
type Margins struct {
	Once  time.Duration // window after a once datetime
	Daily time.Duration // window after the wall-clock match (daily/weekly/monthly)
	Tick  time.Duration // look-back window for cron expressions
}

// DefaultMargins matches a 60 second tick loop.
func DefaultMargins() Margins {
	return Margins{
		Once:  5 * time.Minute,
		Daily: 5 * time.Minute,
		Tick:  90 * time.Second,
	}
}

// datetime layouts accepted in trigger configs, tried in order.
var datetimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseDatetime parses a once-trigger datetime in any accepted layout.
func ParseDatetime(value string) (time.Time, error) {
	for _, layout := range datetimeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized datetime %q", value)
}

// Due reports whether the task's trigger fires at now.
func Due(task *models.Task, now time.Time, m Margins) (bool, error) {
	now = now.UTC()
	switch task.TriggerType {
	case models.TriggerOnce:
		return dueOnce(task, now, m.Once)
	case models.TriggerDaily:
		return dueAtWallClock(task, now, m.Daily)
	case models.TriggerWeekly:
		match, err := weekdayMatches(task, now)
		if err != nil || !match {
			return false, err
		}
		return dueAtWallClock(task, now, m.Daily)
	case models.TriggerMonthly:
		day, ok := task.ConfigInt("day")
		if !ok {
			return false, fmt.Errorf("monthly trigger needs trigger_config.day")
		}
		if now.Day() != day {
			return false, nil
		}
		return dueAtWallClock(task, now, m.Daily)
	case models.TriggerInterval:
		return dueInterval(task, now)
	case models.TriggerCron:
		return dueCron(task, now, m.Tick)
	default:
		return false, fmt.Errorf("unknown trigger type %q", task.TriggerType)
	}
}

// dueOnce matches trigger_config.datetime within the margin. A task can
// narrow or widen its own window with trigger_config.margin_seconds.
func dueOnce(task *models.Task, now time.Time, margin time.Duration) (bool, error) {
	raw := task.ConfigString("datetime")
	if raw == "" {
		return false, fmt.Errorf("once trigger needs trigger_config.datetime")
	}
	target, err := ParseDatetime(raw)
	if err != nil {
		return false, err
	}
	if seconds, ok := task.ConfigInt("margin_seconds"); ok && seconds > 0 {
		margin = time.Duration(seconds) * time.Second
	}
	if now.Before(target) {
		return false, nil
	}
	return now.Sub(target) <= margin, nil
}

// dueAtWallClock matches trigger_config.time ("15:04" or "15:04:05") within
// the margin after the target moment.
func dueAtWallClock(task *models.Task, now time.Time, margin time.Duration) (bool, error) {
	raw := task.ConfigString("time")
	if raw == "" {
		return false, fmt.Errorf("%s trigger needs trigger_config.time", task.TriggerType)
	}
	var clock time.Time
	var err error
	if clock, err = time.Parse("15:04:05", raw); err != nil {
		if clock, err = time.Parse("15:04", raw); err != nil {
			return false, fmt.Errorf("unrecognized time %q", raw)
		}
	}
	target := time.Date(now.Year(), now.Month(), now.Day(),
		clock.Hour(), clock.Minute(), clock.Second(), 0, time.UTC)
	if now.Before(target) {
		return false, nil
	}
	return now.Sub(target) <= margin, nil
}

// weekdayMatches checks trigger_config.day (0 = Sunday). A task may instead
// carry trigger_config.weekdays, a list of weekday numbers.
func weekdayMatches(task *models.Task, now time.Time) (bool, error) {
	if day, ok := task.ConfigInt("day"); ok {
		return time.Weekday(day) == now.Weekday(), nil
	}
	raw, ok := task.TriggerConfig["weekdays"]
	if !ok {
		return false, fmt.Errorf("weekly trigger needs trigger_config.day")
	}
	list, ok := raw.([]any)
	if !ok {
		return false, fmt.Errorf("trigger_config.weekdays must be a list")
	}
	for _, item := range list {
		var day int
		switch v := item.(type) {
		case int:
			day = v
		case int32:
			day = int(v)
		case int64:
			day = int(v)
		case float64:
			day = int(v)
		default:
			return false, fmt.Errorf("trigger_config.weekdays entries must be numbers")
		}
		if time.Weekday(day) == now.Weekday() {
			return true, nil
		}
	}
	return false, nil
}

// dueInterval fires every trigger_config.interval_minutes, not before the
// optional trigger_config.start_time. A never-executed task fires on the
// first tick past start_time.
func dueInterval(task *models.Task, now time.Time) (bool, error) {
	minutes, ok := task.ConfigInt("interval_minutes")
	if !ok {
		minutes, ok = task.ConfigInt("minutes")
	}
	if !ok || minutes <= 0 {
		return false, fmt.Errorf("interval trigger needs a positive trigger_config.interval_minutes")
	}
	if raw := task.ConfigString("start_time"); raw != "" {
		start, err := ParseDatetime(raw)
		if err != nil {
			return false, fmt.Errorf("interval trigger start_time: %w", err)
		}
		if now.Before(start) {
			return false, nil
		}
	}
	if task.LastExecutedAt == nil {
		return true, nil
	}
	return now.Sub(task.LastExecutedAt.UTC()) >= time.Duration(minutes)*time.Minute, nil
}

func dueCron(task *models.Task, now time.Time, window time.Duration) (bool, error) {
	expr := task.ConfigString("expr")
	if expr == "" {
		return false, fmt.Errorf("cron trigger needs trigger_config.expr")
	}
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return false, fmt.Errorf("parse cron expr %q: %w", expr, err)
	}
	next := schedule.Next(now.Add(-window))
	return !next.After(now), nil
}

// Validate checks a trigger config without evaluating it.
func Validate(task *models.Task) error {
	_, err := Due(task, time.Now(), DefaultMargins())
	return err
}
