package triggers

import (
	"testing"
	"time"

	"github.com/agentrun/agentrun/internal/scheduler/models"
)

// noon is a Wednesday.
var noon = time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)

func onceTask(datetime string) *models.Task {
	return &models.Task{
		TriggerType:   models.TriggerOnce,
		TriggerConfig: map[string]any{"datetime": datetime},
	}
}

func TestDueOnce(t *testing.T) {
	m := DefaultMargins()

	cases := []struct {
		name     string
		datetime string
		want     bool
	}{
		{"exact moment", "2024-05-15T12:00:00Z", true},
		{"one minute past", "2024-05-15T11:59:00Z", true},
		{"inside margin", "2024-05-15T11:56:00Z", true},
		{"beyond margin", "2024-05-15T11:00:00Z", false},
		{"still in the future", "2024-05-15T12:01:00Z", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			due, err := Due(onceTask(tc.datetime), noon, m)
			if err != nil {
				t.Fatalf("Due failed: %v", err)
			}
			if due != tc.want {
				t.Fatalf("expected %t", tc.want)
			}
		})
	}
}

func TestDueOnce_AcceptsSpaceSeparatedLayout(t *testing.T) {
	due, err := Due(onceTask("2024-05-15 11:58:00"), noon, DefaultMargins())
	if err != nil {
		t.Fatalf("Due failed: %v", err)
	}
	if !due {
		t.Fatalf("expected due")
	}
}

func TestDueOnce_RejectsGarbageDatetime(t *testing.T) {
	if _, err := Due(onceTask("whenever"), noon, DefaultMargins()); err == nil {
		t.Fatalf("expected error")
	}
}

func TestDueOnce_PerTaskMarginSeconds(t *testing.T) {
	// ten minutes past the target, outside the default 5 minute window
	task := onceTask("2024-05-15T11:50:00Z")

	task.TriggerConfig["margin_seconds"] = float64(900)
	due, err := Due(task, noon, DefaultMargins())
	if err != nil {
		t.Fatalf("Due failed: %v", err)
	}
	if !due {
		t.Fatalf("a 900 second margin should still cover 11:50 at noon")
	}

	task.TriggerConfig["margin_seconds"] = float64(60)
	if due, _ := Due(task, noon, DefaultMargins()); due {
		t.Fatalf("a 60 second margin should not cover 11:50 at noon")
	}
}

func TestDueDaily(t *testing.T) {
	task := &models.Task{
		TriggerType:   models.TriggerDaily,
		TriggerConfig: map[string]any{"time": "11:58"},
	}
	due, err := Due(task, noon, DefaultMargins())
	if err != nil {
		t.Fatalf("Due failed: %v", err)
	}
	if !due {
		t.Fatalf("11:58 should be due at 12:00 with a 5 minute margin")
	}

	task.TriggerConfig["time"] = "11:00"
	if due, _ := Due(task, noon, DefaultMargins()); due {
		t.Fatalf("11:00 should no longer be due at 12:00")
	}

	task.TriggerConfig["time"] = "13:00"
	if due, _ := Due(task, noon, DefaultMargins()); due {
		t.Fatalf("13:00 should not yet be due at 12:00")
	}
}

func TestDueWeekly(t *testing.T) {
	task := &models.Task{
		TriggerType: models.TriggerWeekly,
		TriggerConfig: map[string]any{
			// noon is a Wednesday (weekday 3)
			"day":  float64(3),
			"time": "12:00",
		},
	}
	due, err := Due(task, noon, DefaultMargins())
	if err != nil {
		t.Fatalf("Due failed: %v", err)
	}
	if !due {
		t.Fatalf("expected due on the matching weekday")
	}

	task.TriggerConfig["day"] = float64(6)
	if due, _ := Due(task, noon, DefaultMargins()); due {
		t.Fatalf("should not fire on a non-matching weekday")
	}
}

func TestDueWeekly_WeekdayListAlias(t *testing.T) {
	task := &models.Task{
		TriggerType: models.TriggerWeekly,
		TriggerConfig: map[string]any{
			"weekdays": []any{float64(1), float64(3)},
			"time":     "12:00",
		},
	}
	due, err := Due(task, noon, DefaultMargins())
	if err != nil {
		t.Fatalf("Due failed: %v", err)
	}
	if !due {
		t.Fatalf("expected due on a listed weekday")
	}

	task.TriggerConfig["weekdays"] = []any{float64(0), float64(6)}
	if due, _ := Due(task, noon, DefaultMargins()); due {
		t.Fatalf("should not fire on an unlisted weekday")
	}
}

func TestDueMonthly(t *testing.T) {
	task := &models.Task{
		TriggerType: models.TriggerMonthly,
		TriggerConfig: map[string]any{
			"day":  float64(15),
			"time": "12:00",
		},
	}
	due, err := Due(task, noon, DefaultMargins())
	if err != nil {
		t.Fatalf("Due failed: %v", err)
	}
	if !due {
		t.Fatalf("expected due on day 15")
	}

	task.TriggerConfig["day"] = float64(16)
	if due, _ := Due(task, noon, DefaultMargins()); due {
		t.Fatalf("should not fire on day 16")
	}
}

func TestDueInterval(t *testing.T) {
	task := &models.Task{
		TriggerType:   models.TriggerInterval,
		TriggerConfig: map[string]any{"interval_minutes": float64(30)},
	}

	due, err := Due(task, noon, DefaultMargins())
	if err != nil {
		t.Fatalf("Due failed: %v", err)
	}
	if !due {
		t.Fatalf("never-executed interval task should fire")
	}

	recent := noon.Add(-10 * time.Minute)
	task.LastExecutedAt = &recent
	if due, _ := Due(task, noon, DefaultMargins()); due {
		t.Fatalf("should not fire 10 minutes after the last run")
	}

	stale := noon.Add(-45 * time.Minute)
	task.LastExecutedAt = &stale
	if due, _ := Due(task, noon, DefaultMargins()); !due {
		t.Fatalf("should fire 45 minutes after the last run")
	}
}

func TestDueInterval_MinutesAlias(t *testing.T) {
	task := &models.Task{
		TriggerType:   models.TriggerInterval,
		TriggerConfig: map[string]any{"minutes": float64(30)},
	}
	due, err := Due(task, noon, DefaultMargins())
	if err != nil {
		t.Fatalf("Due failed: %v", err)
	}
	if !due {
		t.Fatalf("minutes alias should be accepted")
	}
}

func TestDueInterval_StartTime(t *testing.T) {
	task := &models.Task{
		TriggerType: models.TriggerInterval,
		TriggerConfig: map[string]any{
			"interval_minutes": float64(5),
			"start_time":       "2024-05-15T13:00:00Z",
		},
	}

	due, err := Due(task, noon, DefaultMargins())
	if err != nil {
		t.Fatalf("Due failed: %v", err)
	}
	if due {
		t.Fatalf("should not fire before start_time")
	}

	task.TriggerConfig["start_time"] = "2024-05-15T11:00:00Z"
	if due, _ := Due(task, noon, DefaultMargins()); !due {
		t.Fatalf("should fire on the first tick past start_time")
	}

	task.TriggerConfig["start_time"] = "later"
	if _, err := Due(task, noon, DefaultMargins()); err == nil {
		t.Fatalf("expected error for a bad start_time")
	}
}

func TestDueInterval_RejectsMissingMinutes(t *testing.T) {
	task := &models.Task{
		TriggerType:   models.TriggerInterval,
		TriggerConfig: map[string]any{},
	}
	if _, err := Due(task, noon, DefaultMargins()); err == nil {
		t.Fatalf("expected error")
	}
}

func TestDueCron(t *testing.T) {
	task := &models.Task{
		TriggerType:   models.TriggerCron,
		TriggerConfig: map[string]any{"expr": "0 12 * * *"},
	}
	due, err := Due(task, noon, DefaultMargins())
	if err != nil {
		t.Fatalf("Due failed: %v", err)
	}
	if !due {
		t.Fatalf("noon cron should fire at noon")
	}

	task.TriggerConfig["expr"] = "0 9 * * *"
	if due, _ := Due(task, noon, DefaultMargins()); due {
		t.Fatalf("9am cron should not fire at noon")
	}

	task.TriggerConfig["expr"] = "not a cron"
	if _, err := Due(task, noon, DefaultMargins()); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestDue_UnknownTriggerType(t *testing.T) {
	task := &models.Task{TriggerType: "sometimes"}
	if _, err := Due(task, noon, DefaultMargins()); err == nil {
		t.Fatalf("expected error")
	}
}
