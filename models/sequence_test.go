package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func activeStep(order int) SequenceStep {
	return SequenceStep{
		Order:     order,
		StepType:  StepTypeEmail,
		Title:     "Step",
		Subject:   "Subject",
		Content:   "Content",
		DelayUnit: DelayUnitDays,
		DelayFrom: DelayFromPrevious,
		Active:    true,
	}
}

func TestSequenceActivate(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	t.Run("pending with steps activates and approves", func(t *testing.T) {
		seq := Sequence{Status: SequenceStatusPending, Steps: []SequenceStep{activeStep(1)}}

		require.NoError(t, seq.Activate(7, now))

		assert.Equal(t, SequenceStatusActive, seq.Status)
		require.NotNil(t, seq.ApprovedAt)
		assert.Equal(t, now, *seq.ApprovedAt)
		require.NotNil(t, seq.ApprovedByID)
		assert.Equal(t, uint(7), *seq.ApprovedByID)
		require.NotNil(t, seq.ActivatedAt)
		assert.Nil(t, seq.DeactivatedAt)
	})

	t.Run("no active steps is rejected", func(t *testing.T) {
		inactive := activeStep(1)
		inactive.Active = false
		seq := Sequence{Status: SequenceStatusPending, Steps: []SequenceStep{inactive}}

		err := seq.Activate(7, now)
		require.Error(t, err)

		var coded *CodedError
		require.True(t, errors.As(err, &coded))
		assert.Equal(t, "SEQUENCE_NO_STEPS", coded.Code)
		assert.Equal(t, SequenceStatusPending, seq.Status)
	})

	t.Run("active cannot be re-activated", func(t *testing.T) {
		seq := Sequence{Status: SequenceStatusActive, Steps: []SequenceStep{activeStep(1)}}

		err := seq.Activate(7, now)
		require.Error(t, err)

		var coded *CodedError
		require.True(t, errors.As(err, &coded))
		assert.Equal(t, "INVALID_STATUS_TRANSITION", coded.Code)
	})

	t.Run("archived cannot be activated", func(t *testing.T) {
		seq := Sequence{Status: SequenceStatusArchived, Steps: []SequenceStep{activeStep(1)}}
		assert.ErrorIs(t, seq.Activate(7, now), ErrInvalidStatusTransition)
	})

	t.Run("reactivation preserves original approval", func(t *testing.T) {
		approvedAt := now.Add(-48 * time.Hour)
		seq := Sequence{
			Status:       SequenceStatusPaused,
			Steps:        []SequenceStep{activeStep(1)},
			ApprovedAt:   &approvedAt,
			ApprovedByID: uintPtr(3),
		}

		require.NoError(t, seq.Activate(9, now))

		assert.Equal(t, SequenceStatusActive, seq.Status)
		assert.Equal(t, approvedAt, *seq.ApprovedAt)
		assert.Equal(t, uint(3), *seq.ApprovedByID)
		assert.Nil(t, seq.DeactivatedAt)
	})
}

func TestSequencePauseAndArchive(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	t.Run("pause from any non-archived status", func(t *testing.T) {
		for _, status := range []string{
			SequenceStatusPending,
			SequenceStatusApproved,
			SequenceStatusActive,
			SequenceStatusPaused,
		} {
			seq := Sequence{Status: status}
			require.NoError(t, seq.Pause(now), "from %s", status)
			assert.Equal(t, SequenceStatusPaused, seq.Status)
			assert.Equal(t, now, *seq.DeactivatedAt)
		}
	})

	t.Run("archived cannot be paused", func(t *testing.T) {
		seq := Sequence{Status: SequenceStatusArchived}
		assert.ErrorIs(t, seq.Pause(now), ErrInvalidStatusTransition)
	})

	t.Run("archive is terminal", func(t *testing.T) {
		seq := Sequence{Status: SequenceStatusActive}
		require.NoError(t, seq.Archive(now))
		assert.Equal(t, SequenceStatusArchived, seq.Status)

		assert.ErrorIs(t, seq.Archive(now), ErrInvalidStatusTransition)
	})
}

func TestAssignmentLifecycle(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	t.Run("start only from pending", func(t *testing.T) {
		a := SequenceAssignment{Status: AssignmentStatusPending}
		require.NoError(t, a.Start(now))
		assert.Equal(t, AssignmentStatusActive, a.Status)
		assert.Equal(t, now, *a.StartedAt)

		assert.ErrorIs(t, a.Start(now), ErrInvalidStatusTransition)
	})

	t.Run("pause and resume", func(t *testing.T) {
		a := SequenceAssignment{Status: AssignmentStatusActive}
		require.NoError(t, a.PauseRun(now))
		assert.Equal(t, AssignmentStatusPaused, a.Status)
		assert.Equal(t, now, *a.PausedAt)

		require.NoError(t, a.Resume())
		assert.Equal(t, AssignmentStatusActive, a.Status)
		assert.Nil(t, a.PausedAt)
	})

	t.Run("resume requires paused", func(t *testing.T) {
		a := SequenceAssignment{Status: AssignmentStatusActive}
		assert.ErrorIs(t, a.Resume(), ErrInvalidStatusTransition)
	})

	t.Run("cancel from any live state", func(t *testing.T) {
		next := now.Add(time.Hour)
		a := SequenceAssignment{Status: AssignmentStatusPaused, NextRunAt: &next}
		require.NoError(t, a.Cancel(now))
		assert.Equal(t, AssignmentStatusCancelled, a.Status)
		assert.Nil(t, a.NextRunAt)

		assert.ErrorIs(t, a.Cancel(now), ErrInvalidStatusTransition)
	})

	t.Run("completed cannot be cancelled", func(t *testing.T) {
		a := SequenceAssignment{Status: AssignmentStatusCompleted}
		assert.ErrorIs(t, a.Cancel(now), ErrInvalidStatusTransition)
	})
}

func TestAssignmentAdvanceStep(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	next := now.Add(time.Hour)

	a := SequenceAssignment{Status: AssignmentStatusActive, CurrentStep: 0, NextRunAt: &next}

	assert.False(t, a.AdvanceStep(3, now))
	assert.Equal(t, 1, a.CurrentStep)
	assert.Equal(t, AssignmentStatusActive, a.Status)

	assert.False(t, a.AdvanceStep(3, now))

	assert.True(t, a.AdvanceStep(3, now))
	assert.Equal(t, 3, a.CurrentStep)
	assert.Equal(t, AssignmentStatusCompleted, a.Status)
	assert.Equal(t, now, *a.CompletedAt)
	assert.Nil(t, a.NextRunAt)
}

func TestNewSequenceStepDefaults(t *testing.T) {
	step, err := NewSequenceStep(1, StepTypeSMS, "Text", "", "Hi there", 2, "", "")
	require.NoError(t, err)

	assert.Equal(t, DelayUnitDays, step.DelayUnit)
	assert.Equal(t, DelayFromPrevious, step.DelayFrom)
	assert.True(t, step.Active)
}

func TestNewSequenceStepRejectsMalformed(t *testing.T) {
	tests := []struct {
		name     string
		stepType string
		title    string
		subject  string
		content  string
		delay    int
	}{
		{name: "unknown type", stepType: "carrier-pigeon", title: "T", content: "C"},
		{name: "missing title", stepType: StepTypeNote, title: " ", content: "C"},
		{name: "email without subject", stepType: StepTypeEmail, title: "T", content: "C"},
		{name: "email without content", stepType: StepTypeEmail, title: "T", subject: "S"},
		{name: "task without content", stepType: StepTypeTask, title: "T"},
		{name: "negative delay", stepType: StepTypeNote, title: "T", content: "C", delay: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSequenceStep(1, tt.stepType, tt.title, tt.subject, tt.content, tt.delay, DelayUnitDays, DelayFromPrevious)
			assert.Error(t, err)
		})
	}
}

func TestDecodeSequenceSteps(t *testing.T) {
	t.Run("valid payload", func(t *testing.T) {
		raw := []byte(`[{"order":1,"step_type":"email","title":"Intro","subject":"Hi","content":"Hello","delay_amount":0,"delay_unit":"days","delay_from":"previous","active":true}]`)

		steps, err := DecodeSequenceSteps(raw)
		require.NoError(t, err)
		require.Len(t, steps, 1)
		assert.Equal(t, StepTypeEmail, steps[0].StepType)
	})

	t.Run("malformed step is rejected with its position", func(t *testing.T) {
		raw := []byte(`[{"order":1,"step_type":"email","title":"Intro","content":"Hello","delay_unit":"days","delay_from":"previous"}]`)

		_, err := DecodeSequenceSteps(raw)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "step 1")
	})

	t.Run("invalid json", func(t *testing.T) {
		_, err := DecodeSequenceSteps([]byte("not json"))
		assert.Error(t, err)
	})
}

func TestSequenceStepsScan(t *testing.T) {
	raw := `[{"order":1,"step_type":"sms","title":"Nudge","content":"Quick question","delay_amount":1,"delay_unit":"days","delay_from":"previous","active":true}]`

	t.Run("loads valid jsonb", func(t *testing.T) {
		var steps SequenceSteps
		require.NoError(t, steps.Scan([]byte(raw)))
		require.Len(t, steps, 1)
		assert.Equal(t, StepTypeSMS, steps[0].StepType)
	})

	t.Run("string form", func(t *testing.T) {
		var steps SequenceSteps
		require.NoError(t, steps.Scan(raw))
		assert.Len(t, steps, 1)
	})

	t.Run("nil column", func(t *testing.T) {
		var steps SequenceSteps
		require.NoError(t, steps.Scan(nil))
		assert.Nil(t, steps)
	})

	t.Run("corrupt blob is a read error", func(t *testing.T) {
		var steps SequenceSteps
		err := steps.Scan([]byte(`[{"order":1,"step_type":"carrier-pigeon","title":"T"}]`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "step 1")
	})

	t.Run("nil slice stores empty array", func(t *testing.T) {
		v, err := SequenceSteps(nil).Value()
		require.NoError(t, err)
		assert.Equal(t, "[]", v)
	})
}

func uintPtr(v uint) *uint {
	return &v
}
