package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cdmsuite/models"
)

func TestFormatDelay(t *testing.T) {
	tests := []struct {
		name   string
		amount int
		unit   string
		want   string
	}{
		{name: "zero is immediate", amount: 0, unit: models.DelayUnitDays, want: "Immediately"},
		{name: "singular unit", amount: 1, unit: models.DelayUnitDays, want: "Wait 1 day"},
		{name: "plural days", amount: 2, unit: models.DelayUnitDays, want: "Wait 2 days"},
		{name: "plural hours", amount: 3, unit: models.DelayUnitHours, want: "Wait 3 hours"},
		{name: "single minute", amount: 1, unit: models.DelayUnitMinutes, want: "Wait 1 minute"},
		{name: "weeks", amount: 2, unit: models.DelayUnitWeeks, want: "Wait 2 weeks"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatDelay(tt.amount, tt.unit))
		})
	}
}

func mustStep(t *testing.T, order int, stepType, title, subject, content string, delayAmount int, delayUnit, delayFrom string) models.SequenceStep {
	t.Helper()
	step, err := models.NewSequenceStep(order, stepType, title, subject, content, delayAmount, delayUnit, delayFrom)
	require.NoError(t, err)
	return step
}

func TestEstimateSequenceDuration(t *testing.T) {
	steps := []models.SequenceStep{
		mustStep(t, 1, models.StepTypeEmail, "Intro", "Hi", "Hello", 0, models.DelayUnitDays, models.DelayFromPrevious),
		mustStep(t, 2, models.StepTypeEmail, "Follow up", "Re: Hi", "Following up", 1, models.DelayUnitDays, models.DelayFromPrevious),
		mustStep(t, 3, models.StepTypeTask, "Call", "", "Call the lead", 2, models.DelayUnitHours, models.DelayFromPrevious),
	}

	totalMinutes, formatted := EstimateSequenceDuration(steps)
	assert.Equal(t, 1560, totalMinutes)
	assert.Equal(t, "1d 2h", formatted)
}

func TestEstimateSequenceDurationAllImmediate(t *testing.T) {
	steps := []models.SequenceStep{
		mustStep(t, 1, models.StepTypeEmail, "Intro", "Hi", "Hello", 0, models.DelayUnitDays, models.DelayFromPrevious),
	}

	totalMinutes, formatted := EstimateSequenceDuration(steps)
	assert.Equal(t, 0, totalMinutes)
	assert.Equal(t, "0m", formatted)
}

func TestNextRunTime(t *testing.T) {
	startedAt := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	previousFiredAt := time.Date(2025, 3, 3, 14, 0, 0, 0, time.UTC)

	fromPrevious := mustStep(t, 2, models.StepTypeEmail, "Follow up", "Re", "Body", 2, models.DelayUnitDays, models.DelayFromPrevious)
	fromStart := mustStep(t, 3, models.StepTypeEmail, "Last call", "Re", "Body", 1, models.DelayUnitWeeks, models.DelayFromStart)

	assert.Equal(t, previousFiredAt.Add(48*time.Hour), NextRunTime(fromPrevious, startedAt, previousFiredAt))
	assert.Equal(t, startedAt.Add(7*24*time.Hour), NextRunTime(fromStart, startedAt, previousFiredAt))
}

func TestValidateSequenceSteps(t *testing.T) {
	t.Run("empty sequence", func(t *testing.T) {
		valid, errs := ValidateSequenceSteps(nil)
		assert.False(t, valid)
		assert.Equal(t, []string{"sequence must have at least one step"}, errs)
	})

	t.Run("valid steps", func(t *testing.T) {
		steps := []models.SequenceStep{
			mustStep(t, 1, models.StepTypeEmail, "Intro", "Hi", "Hello", 0, models.DelayUnitDays, models.DelayFromPrevious),
			mustStep(t, 2, models.StepTypeTask, "Call", "", "Call the lead", 1, models.DelayUnitDays, models.DelayFromPrevious),
		}
		valid, errs := ValidateSequenceSteps(steps)
		assert.True(t, valid)
		assert.Empty(t, errs)
	})

	t.Run("collects every violation", func(t *testing.T) {
		// Built by hand to bypass the constructor's own validation
		steps := []models.SequenceStep{
			{Order: 1, StepType: models.StepTypeEmail, Title: "", Subject: "", Content: "", DelayAmount: 0, DelayUnit: models.DelayUnitDays, DelayFrom: models.DelayFromPrevious, Active: true},
			{Order: 2, StepType: models.StepTypeTask, Title: "Call", Content: "", DelayAmount: -1, DelayUnit: models.DelayUnitDays, DelayFrom: models.DelayFromPrevious, Active: true},
		}

		valid, errs := ValidateSequenceSteps(steps)
		assert.False(t, valid)
		assert.Equal(t, []string{
			"step 1: title is required",
			"step 1: email steps require a subject",
			"step 1: email steps require content",
			"step 2: task steps require content",
			"step 2: delay amount cannot be negative",
		}, errs)
	})
}
