package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Sequence types
const (
	SequenceTypeEmail = "email"
	SequenceTypeSMS   = "sms"
	SequenceTypeTask  = "task"
	SequenceTypeMixed = "mixed"
)

// Sequence statuses
const (
	SequenceStatusPending  = "pending"
	SequenceStatusApproved = "approved"
	SequenceStatusActive   = "active"
	SequenceStatusPaused   = "paused"
	SequenceStatusArchived = "archived"
)

// Step types
const (
	StepTypeEmail    = "email"
	StepTypeSMS      = "sms"
	StepTypeTask     = "task"
	StepTypeReminder = "reminder"
	StepTypeNote     = "note"
	StepTypeDelay    = "delay"
)

// Delay units
const (
	DelayUnitMinutes = "minutes"
	DelayUnitHours   = "hours"
	DelayUnitDays    = "days"
	DelayUnitWeeks   = "weeks"
)

// Delay anchors
const (
	DelayFromPrevious = "previous"
	DelayFromStart    = "start"
)

// Sequence represents a reusable, ordered set of nurture steps for a lead
type Sequence struct {
	gorm.Model
	CreatedByID uint `gorm:"index" json:"created_by_id"`

	Name           string `gorm:"not null" json:"name"`
	Description    string `json:"description"`
	Type           string `gorm:"default:'email'" json:"type"` // email, sms, task, mixed
	TargetAudience string `json:"target_audience"`

	AIGenerated bool   `gorm:"default:false" json:"ai_generated"`
	AIPrompt    string `gorm:"type:text" json:"ai_prompt"`

	// Lifecycle
	Status        string     `gorm:"default:'pending'" json:"status"` // pending, approved, active, paused, archived
	ApprovedByID  *uint      `json:"approved_by_id,omitempty"`
	ApprovedAt    *time.Time `json:"approved_at,omitempty"`
	ActivatedAt   *time.Time `json:"activated_at,omitempty"`
	DeactivatedAt *time.Time `json:"deactivated_at,omitempty"`

	// Usage statistics (denormalized)
	TimesUsed   int     `gorm:"default:0" json:"times_used"`
	SuccessRate float64 `gorm:"default:0" json:"success_rate"`

	// Steps stored as JSON - flexible schema over normalized rows
	Steps SequenceSteps `gorm:"type:jsonb" json:"steps"`

	// Relations
	Assignments []SequenceAssignment `gorm:"foreignKey:SequenceID" json:"assignments,omitempty"`
}

// SequenceStep is one unit of action in a sequence. Steps live inside the
// sequence's JSON column and are append-only once assignments have progressed
// past them.
type SequenceStep struct {
	Order    int    `json:"order"` // 1-based, dense
	StepType string `json:"step_type"`
	Title    string `json:"title"`
	Subject  string `json:"subject,omitempty"` // email steps only
	Content  string `json:"content"`

	DelayAmount int    `json:"delay_amount"`
	DelayUnit   string `json:"delay_unit"` // minutes, hours, days, weeks
	DelayFrom   string `json:"delay_from"` // previous, start

	Active bool `json:"active"`

	AISuggested bool     `json:"ai_suggested,omitempty"`
	AIReasoning string   `json:"ai_reasoning,omitempty"`
	MergeTags   []string `json:"merge_tags,omitempty"`
}

// NewSequenceStep builds a step and enforces the per-type required fields so
// malformed steps cannot enter a sequence.
func NewSequenceStep(order int, stepType, title, subject, content string, delayAmount int, delayUnit, delayFrom string) (SequenceStep, error) {
	step := SequenceStep{
		Order:       order,
		StepType:    stepType,
		Title:       title,
		Subject:     subject,
		Content:     content,
		DelayAmount: delayAmount,
		DelayUnit:   delayUnit,
		DelayFrom:   delayFrom,
		Active:      true,
	}
	if step.DelayUnit == "" {
		step.DelayUnit = DelayUnitDays
	}
	if step.DelayFrom == "" {
		step.DelayFrom = DelayFromPrevious
	}
	if err := step.Validate(); err != nil {
		return SequenceStep{}, err
	}
	return step, nil
}

// Validate checks the per-type required fields of a single step.
func (s SequenceStep) Validate() error {
	switch s.StepType {
	case StepTypeEmail, StepTypeSMS, StepTypeTask, StepTypeReminder, StepTypeNote, StepTypeDelay:
	default:
		return fmt.Errorf("unknown step type %q", s.StepType)
	}
	if strings.TrimSpace(s.Title) == "" {
		return fmt.Errorf("step title is required")
	}
	if s.StepType == StepTypeEmail {
		if strings.TrimSpace(s.Subject) == "" {
			return fmt.Errorf("email step requires a subject")
		}
		if strings.TrimSpace(s.Content) == "" {
			return fmt.Errorf("email step requires content")
		}
	}
	if s.StepType == StepTypeTask && strings.TrimSpace(s.Content) == "" {
		return fmt.Errorf("task step requires content")
	}
	if s.DelayAmount < 0 {
		return fmt.Errorf("delay amount cannot be negative")
	}
	switch s.DelayUnit {
	case DelayUnitMinutes, DelayUnitHours, DelayUnitDays, DelayUnitWeeks:
	default:
		return fmt.Errorf("unknown delay unit %q", s.DelayUnit)
	}
	return nil
}

// SequenceSteps is the jsonb column type for a sequence's step list. Loading
// goes through DecodeSequenceSteps so a blob edited outside the API surfaces
// as a read error instead of a silent bad run.
type SequenceSteps []SequenceStep

func (s *SequenceSteps) Scan(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*s = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into SequenceSteps", value)
	}
	steps, err := DecodeSequenceSteps(raw)
	if err != nil {
		return err
	}
	*s = steps
	return nil
}

func (s SequenceSteps) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	return json.Marshal(s)
}

// DecodeSequenceSteps deserializes a steps blob, validating each step
// explicitly rather than trusting the stored JSON.
func DecodeSequenceSteps(raw []byte) ([]SequenceStep, error) {
	var steps []SequenceStep
	if err := json.Unmarshal(raw, &steps); err != nil {
		return nil, fmt.Errorf("invalid steps payload: %w", err)
	}
	for i, step := range steps {
		if err := step.Validate(); err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	return steps, nil
}

// ActiveSteps returns the ordered subset of steps with Active=true.
func (s *Sequence) ActiveSteps() []SequenceStep {
	var active []SequenceStep
	for _, step := range s.Steps {
		if step.Active {
			active = append(active, step)
		}
	}
	return active
}

// Approve stamps the approval fields. Idempotent: an existing approval is
// never overwritten.
func (s *Sequence) Approve(actorID uint, now time.Time) {
	if s.ApprovedAt == nil {
		s.ApprovedAt = &now
	}
	if s.ApprovedByID == nil {
		s.ApprovedByID = &actorID
	}
	if s.Status == SequenceStatusPending {
		s.Status = SequenceStatusApproved
	}
}

// Activate moves the sequence to active. Activation from pending implies
// approval, so Approve is called internally when no approval exists yet.
func (s *Sequence) Activate(actorID uint, now time.Time) error {
	if len(s.ActiveSteps()) == 0 {
		return ErrSequenceNoSteps
	}
	switch s.Status {
	case SequenceStatusPending, SequenceStatusApproved, SequenceStatusPaused:
	default:
		return ErrInvalidStatusTransition
	}
	s.Approve(actorID, now)
	s.Status = SequenceStatusActive
	s.ActivatedAt = &now
	s.DeactivatedAt = nil
	return nil
}

// Pause takes the sequence out of rotation without losing approval state.
// Allowed from any non-archived status; archived is terminal.
func (s *Sequence) Pause(now time.Time) error {
	if s.Status == SequenceStatusArchived {
		return ErrInvalidStatusTransition
	}
	s.Status = SequenceStatusPaused
	s.DeactivatedAt = &now
	return nil
}

// Archive retires the sequence. Archiving is terminal and allowed from any
// non-archived status.
func (s *Sequence) Archive(now time.Time) error {
	if s.Status == SequenceStatusArchived {
		return ErrInvalidStatusTransition
	}
	s.Status = SequenceStatusArchived
	s.DeactivatedAt = &now
	return nil
}

// Assignment statuses
const (
	AssignmentStatusPending   = "pending"
	AssignmentStatusActive    = "active"
	AssignmentStatusPaused    = "paused"
	AssignmentStatusCompleted = "completed"
	AssignmentStatusCancelled = "cancelled"
)

// SequenceAssignment is the running instance of a sequence bound to one lead.
// It owns all mutable execution state; the parent sequence stays immutable
// during a run.
type SequenceAssignment struct {
	gorm.Model
	SequenceID uint `gorm:"not null;index" json:"sequence_id"`
	LeadID     uint `gorm:"not null;index" json:"lead_id"`

	Status      string `gorm:"default:'pending'" json:"status"` // pending, active, paused, completed, cancelled
	CurrentStep int    `gorm:"default:0" json:"current_step"`   // index into the ordered active steps

	// Engagement counters
	EmailsSent     int `gorm:"default:0" json:"emails_sent"`
	EmailsOpened   int `gorm:"default:0" json:"emails_opened"`
	EmailsClicked  int `gorm:"default:0" json:"emails_clicked"`
	EmailsReplied  int `gorm:"default:0" json:"emails_replied"`
	TasksCreated   int `gorm:"default:0" json:"tasks_created"`
	TasksCompleted int `gorm:"default:0" json:"tasks_completed"`

	Converted      bool   `gorm:"default:false" json:"converted"`
	ConversionType string `json:"conversion_type"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	PausedAt    *time.Time `json:"paused_at,omitempty"`
	NextRunAt   *time.Time `gorm:"index" json:"next_run_at,omitempty"`

	// Relations
	Sequence   Sequence           `json:"-"`
	Lead       Lead               `json:"-"`
	Activities []SequenceActivity `gorm:"foreignKey:AssignmentID" json:"activities,omitempty"`
}

// StepsCompleted mirrors CurrentStep; steps only advance forward.
func (a *SequenceAssignment) StepsCompleted() int {
	return a.CurrentStep
}

// Start transitions a pending assignment to active.
func (a *SequenceAssignment) Start(now time.Time) error {
	if a.Status != AssignmentStatusPending {
		return ErrInvalidStatusTransition
	}
	a.Status = AssignmentStatusActive
	a.StartedAt = &now
	return nil
}

// PauseRun suspends an active assignment, independently of the parent
// sequence's own pause state.
func (a *SequenceAssignment) PauseRun(now time.Time) error {
	if a.Status != AssignmentStatusActive {
		return ErrInvalidStatusTransition
	}
	a.Status = AssignmentStatusPaused
	a.PausedAt = &now
	return nil
}

// Resume reactivates a paused assignment.
func (a *SequenceAssignment) Resume() error {
	if a.Status != AssignmentStatusPaused {
		return ErrInvalidStatusTransition
	}
	a.Status = AssignmentStatusActive
	a.PausedAt = nil
	return nil
}

// Cancel is the only terminal exit besides completion; soft, no hard delete.
func (a *SequenceAssignment) Cancel(now time.Time) error {
	switch a.Status {
	case AssignmentStatusCompleted, AssignmentStatusCancelled:
		return ErrInvalidStatusTransition
	}
	a.Status = AssignmentStatusCancelled
	a.CompletedAt = &now
	a.NextRunAt = nil
	return nil
}

// AdvanceStep moves progress forward by one and completes the assignment once
// the last active step has fired. Returns true on completion.
func (a *SequenceAssignment) AdvanceStep(totalActiveSteps int, now time.Time) bool {
	a.CurrentStep++
	if a.CurrentStep >= totalActiveSteps {
		a.Status = AssignmentStatusCompleted
		a.CompletedAt = &now
		a.NextRunAt = nil
		return true
	}
	return false
}

// SequenceActivity is the append-only event log for one assignment step.
// Rows are written once and never mutated afterwards, except for engagement
// timestamps filled in by the tracking endpoints.
type SequenceActivity struct {
	gorm.Model
	AssignmentID uint `gorm:"not null;index" json:"assignment_id"`
	StepOrder    int  `json:"step_order"`

	ActionType string `gorm:"not null" json:"action_type"` // email_sent, sms_sent, task_created, reminder, note, delay
	Result     string `json:"result"`                      // sent, failed, skipped
	MessageID  string `gorm:"index" json:"message_id"`

	OpenedAt  *time.Time `json:"opened_at,omitempty"`
	ClickedAt *time.Time `json:"clicked_at,omitempty"`
	RepliedAt *time.Time `json:"replied_at,omitempty"`

	Error      string `json:"error,omitempty"`
	RetryCount int    `gorm:"default:0" json:"retry_count"`

	// Relations
	Assignment SequenceAssignment `json:"-"`
}
