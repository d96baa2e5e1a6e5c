package controller

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"cdmsuite/models"
)

func TestScoreCapturedLead(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		phone    string
		interest string
		budget   string
		source   string
		want     int
	}{
		{name: "bare minimum", want: 50},
		{name: "email only", email: "a@b.com", want: 65},
		{name: "website form with contact details", email: "a@b.com", phone: "555-123-4567", source: models.LeadSourceWebsite, want: 80},
		{name: "referral with everything caps at 100", email: "a@b.com", phone: "555-123-4567", interest: "seo", budget: "$2000", source: models.LeadSourceReferral, want: 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := scoreCapturedLead(tt.email, tt.phone, tt.interest, tt.budget, tt.source)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPriorityForScore(t *testing.T) {
	assert.Equal(t, models.LeadPriorityHigh, priorityForScore(80))
	assert.Equal(t, models.LeadPriorityMedium, priorityForScore(79))
	assert.Equal(t, models.LeadPriorityMedium, priorityForScore(60))
	assert.Equal(t, models.LeadPriorityLow, priorityForScore(59))
}

func TestAppendTimestampedNote(t *testing.T) {
	assert.Equal(t, "existing", appendTimestampedNote("existing", "  "))

	first := appendTimestampedNote("", "came in via website")
	assert.True(t, strings.HasPrefix(first, "["))
	assert.True(t, strings.HasSuffix(first, "] came in via website"))

	second := appendTimestampedNote(first, "called back")
	lines := strings.Split(second, "\n")
	assert.Len(t, lines, 2)
	assert.Equal(t, first, lines[0])
	assert.Contains(t, lines[1], "called back")
}

func TestMergeCapturedLead(t *testing.T) {
	t.Run("keeps max score and appends note", func(t *testing.T) {
		lead := models.Lead{
			Name:  "John Smith",
			Email: "john@acme.com",
			Score: 80,
			Notes: "[2025-05-01 09:00] first contact",
			Tags:  []string{"seo"},
		}

		mergeCapturedLead(&lead, capturedFields{
			Email:  "john@acme.com",
			Source: models.LeadSourceWebsite,
			Notes:  "downloaded pricing sheet",
			Tags:   []string{"seo", "pricing"},
			Score:  65,
		})

		assert.Equal(t, 80, lead.Score)
		lines := strings.Split(lead.Notes, "\n")
		assert.Len(t, lines, 2)
		assert.Equal(t, "[2025-05-01 09:00] first contact", lines[0])
		assert.Contains(t, lines[1], "Captured again via website")
		assert.Contains(t, lines[1], "downloaded pricing sheet")
		assert.Equal(t, []string{"seo", "pricing"}, lead.Tags)
	})

	t.Run("higher score wins", func(t *testing.T) {
		lead := models.Lead{Email: "a@b.com", Score: 50}
		mergeCapturedLead(&lead, capturedFields{Email: "a@b.com", Source: models.LeadSourceReferral, Score: 90})
		assert.Equal(t, 90, lead.Score)
	})

	t.Run("backfills blank identity fields only", func(t *testing.T) {
		lead := models.Lead{Name: "Jane Doe", Email: "jane@b.com", Score: 70, Interest: "branding"}
		mergeCapturedLead(&lead, capturedFields{
			Name:     "J. Doe",
			Email:    "jane@b.com",
			Phone:    "(555) 123-4567",
			Source:   models.LeadSourceWebsite,
			Interest: "seo audit",
			Score:    70,
		})

		assert.Equal(t, "Jane Doe", lead.Name)
		assert.Equal(t, "(555) 123-4567", lead.Phone)
		assert.Equal(t, "seo audit", lead.Interest)

		mergeCapturedLead(&lead, capturedFields{Email: "jane@b.com", Source: models.LeadSourceWebsite, Score: 70})
		assert.Equal(t, "seo audit", lead.Interest, "empty interest does not clobber")
	})
}

func TestMergeTags(t *testing.T) {
	merged := mergeTags([]string{"seo", "website"}, []string{"website", "", "branding"})
	assert.Equal(t, []string{"seo", "website", "branding"}, merged)
}

func TestStepsArePrefix(t *testing.T) {
	existing := []models.SequenceStep{
		{Order: 1, StepType: models.StepTypeEmail, Title: "Intro", Subject: "Hi", Content: "Hello", DelayUnit: models.DelayUnitDays, DelayFrom: models.DelayFromPrevious},
	}

	appended := append(append([]models.SequenceStep{}, existing...), models.SequenceStep{
		Order: 2, StepType: models.StepTypeTask, Title: "Call", Content: "Call the lead", DelayUnit: models.DelayUnitDays, DelayFrom: models.DelayFromPrevious,
	})
	assert.True(t, stepsArePrefix(existing, appended))

	modified := append([]models.SequenceStep{}, existing...)
	modified[0].Subject = "Changed"
	assert.False(t, stepsArePrefix(existing, modified))

	assert.False(t, stepsArePrefix(existing, nil))
}
