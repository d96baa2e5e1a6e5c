package utils

import (
	"fmt"
	"strings"
	"time"

	"cdmsuite/models"
)

// Minutes per delay unit
var delayUnitMinutes = map[string]int{
	models.DelayUnitMinutes: 1,
	models.DelayUnitHours:   60,
	models.DelayUnitDays:    1440,
	models.DelayUnitWeeks:   10080,
}

// FormatDelay renders a step delay for display: "Immediately" at zero,
// otherwise "Wait {n} {unit}" with the unit singularized for n=1.
func FormatDelay(amount int, unit string) string {
	if amount == 0 {
		return "Immediately"
	}
	if amount == 1 {
		unit = strings.TrimSuffix(unit, "s")
	}
	return fmt.Sprintf("Wait %d %s", amount, unit)
}

// EstimateSequenceDuration sums every step's delay into total minutes and a
// short "1d 2h" style string. Delays are treated as additive regardless of
// the step's DelayFrom anchor.
func EstimateSequenceDuration(steps []models.SequenceStep) (int, string) {
	totalMinutes := 0
	for _, step := range steps {
		totalMinutes += step.DelayAmount * delayUnitMinutes[step.DelayUnit]
	}

	days := totalMinutes / 1440
	hours := (totalMinutes % 1440) / 60
	minutes := totalMinutes % 60

	var parts []string
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	if len(parts) == 0 {
		return totalMinutes, "0m"
	}
	return totalMinutes, strings.Join(parts, " ")
}

// StepDelay converts a step's relative delay into a duration for scheduling.
func StepDelay(step models.SequenceStep) time.Duration {
	return time.Duration(step.DelayAmount*delayUnitMinutes[step.DelayUnit]) * time.Minute
}

// NextRunTime resolves when a step should fire given its anchor: "start"
// counts from the assignment start, "previous" from the prior step's fire
// time.
func NextRunTime(step models.SequenceStep, startedAt, previousFiredAt time.Time) time.Time {
	if step.DelayFrom == models.DelayFromStart {
		return startedAt.Add(StepDelay(step))
	}
	return previousFiredAt.Add(StepDelay(step))
}

// ValidateSequenceSteps checks the structural correctness of a step list
// before activation. Every violation is collected so the user sees the full
// list; positions are 1-indexed for display.
func ValidateSequenceSteps(steps []models.SequenceStep) (bool, []string) {
	var errors []string

	if len(steps) == 0 {
		errors = append(errors, "sequence must have at least one step")
		return false, errors
	}

	for i, step := range steps {
		pos := i + 1
		if strings.TrimSpace(step.Title) == "" {
			errors = append(errors, fmt.Sprintf("step %d: title is required", pos))
		}
		if step.StepType == models.StepTypeEmail {
			if strings.TrimSpace(step.Subject) == "" {
				errors = append(errors, fmt.Sprintf("step %d: email steps require a subject", pos))
			}
			if strings.TrimSpace(step.Content) == "" {
				errors = append(errors, fmt.Sprintf("step %d: email steps require content", pos))
			}
		}
		if step.StepType == models.StepTypeTask && strings.TrimSpace(step.Content) == "" {
			errors = append(errors, fmt.Sprintf("step %d: task steps require content", pos))
		}
		if step.DelayAmount < 0 {
			errors = append(errors, fmt.Sprintf("step %d: delay amount cannot be negative", pos))
		}
	}

	return len(errors) == 0, errors
}
