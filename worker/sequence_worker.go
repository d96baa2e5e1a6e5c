package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"cdmsuite/config"
	"cdmsuite/models"
	"cdmsuite/utils"
)

const maxStepRetries = 3

// SequenceWorker drives active assignments: on each tick it picks the ones
// whose next run time has come due, executes the current step, logs the
// activity and schedules the following step.
type SequenceWorker struct {
	DB     *gorm.DB
	Mailer *utils.Mailer
	SMS    *utils.SMSClient
	Logger *log.Logger
}

func NewSequenceWorker(db *gorm.DB, mailer *utils.Mailer, sms *utils.SMSClient, logger *log.Logger) *SequenceWorker {
	return &SequenceWorker{
		DB:     db,
		Mailer: mailer,
		SMS:    sms,
		Logger: logger,
	}
}

func (sw *SequenceWorker) Start(ctx context.Context) {
	// Initial delay to let the server start up
	time.Sleep(10 * time.Second)

	sw.Logger.Println("Sequence worker started")

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			sw.Logger.Println("Sequence worker shutting down...")
			return
		case <-ticker.C:
			sw.processDueAssignments(ctx)
		}
	}
}

func (sw *SequenceWorker) processDueAssignments(ctx context.Context) {
	var due []models.SequenceAssignment
	err := sw.DB.Preload("Sequence").Preload("Lead").
		Where("status = ? AND next_run_at IS NOT NULL AND next_run_at <= ?",
			models.AssignmentStatusActive, time.Now().UTC()).
		Limit(100).
		Find(&due).Error
	if err != nil {
		sw.Logger.Printf("Error fetching due assignments: %v", err)
		return
	}

	for i := range due {
		if ctx.Err() != nil {
			return
		}
		if err := sw.executeStep(ctx, &due[i]); err != nil {
			sw.Logger.Printf("Error executing step for assignment %d: %v", due[i].ID, err)
		}
	}
}

// executeStep runs the assignment's current step. A paused or archived parent
// sequence freezes its runs in place without touching their own status.
func (sw *SequenceWorker) executeStep(ctx context.Context, assignment *models.SequenceAssignment) error {
	if assignment.Sequence.Status != models.SequenceStatusActive {
		return nil
	}

	steps := assignment.Sequence.ActiveSteps()
	now := time.Now().UTC()

	if assignment.CurrentStep >= len(steps) {
		// Step list shrank under a running assignment; close it out
		assignment.AdvanceStep(len(steps), now)
		return sw.DB.Save(assignment).Error
	}

	step := steps[assignment.CurrentStep]
	activity := models.SequenceActivity{
		AssignmentID: assignment.ID,
		StepOrder:    step.Order,
	}

	var execErr error
	switch step.StepType {
	case models.StepTypeEmail:
		execErr = sw.sendEmail(assignment, step, &activity)
	case models.StepTypeSMS:
		execErr = sw.sendSMS(ctx, assignment, step, &activity)
	case models.StepTypeTask, models.StepTypeReminder, models.StepTypeNote:
		activity.ActionType = step.StepType
		activity.Result = "created"
		if step.StepType == models.StepTypeTask {
			assignment.TasksCreated++
		}
	default:
		activity.ActionType = step.StepType
		activity.Result = "skipped"
	}

	if execErr != nil {
		return sw.handleStepFailure(assignment, step, activity, execErr, now)
	}

	completed := assignment.AdvanceStep(len(steps), now)
	if !completed {
		next := utils.NextRunTime(steps[assignment.CurrentStep], *assignment.StartedAt, now)
		assignment.NextRunAt = &next
	}

	return sw.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&activity).Error; err != nil {
			return err
		}
		return tx.Save(assignment).Error
	})
}

// handleStepFailure reschedules with backoff up to the retry cap, after which
// the step is recorded as failed and the run moves on.
func (sw *SequenceWorker) handleStepFailure(assignment *models.SequenceAssignment, step models.SequenceStep, activity models.SequenceActivity, execErr error, now time.Time) error {
	var retries int64
	sw.DB.Model(&models.SequenceActivity{}).
		Where("assignment_id = ? AND step_order = ? AND result = ?", assignment.ID, step.Order, "failed").
		Count(&retries)

	activity.Result = "failed"
	activity.Error = execErr.Error()
	activity.RetryCount = int(retries) + 1

	if activity.RetryCount < maxStepRetries {
		// Exponential-ish backoff: 5m, 10m
		delay := time.Duration(activity.RetryCount) * 5 * time.Minute
		next := now.Add(delay)
		assignment.NextRunAt = &next
	} else {
		// Give up on this step and move on
		sw.Logger.Printf("Step %d of assignment %d failed %d times, skipping: %v", step.Order, assignment.ID, activity.RetryCount, execErr)
		completed := assignment.AdvanceStep(len(assignment.Sequence.ActiveSteps()), now)
		if !completed {
			steps := assignment.Sequence.ActiveSteps()
			next := utils.NextRunTime(steps[assignment.CurrentStep], *assignment.StartedAt, now)
			assignment.NextRunAt = &next
		}
	}

	return sw.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&activity).Error; err != nil {
			return err
		}
		return tx.Save(assignment).Error
	})
}

func (sw *SequenceWorker) sendEmail(assignment *models.SequenceAssignment, step models.SequenceStep, activity *models.SequenceActivity) error {
	activity.ActionType = "email_sent"

	if assignment.Lead.Email == "" {
		activity.Result = "skipped"
		activity.Error = "lead has no email address"
		return nil
	}

	messageID := uuid.NewString()
	subject := utils.ResolveMergeTags(step.Subject, &assignment.Lead)
	body := utils.ResolveMergeTags(step.Content, &assignment.Lead)
	body = utils.InjectTracking(body, config.AppConfig.BaseURL, messageID)

	if err := sw.Mailer.Send(utils.Email{
		To:      assignment.Lead.Email,
		Subject: subject,
		Body:    body,
		HTML:    true,
	}, messageID); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	activity.Result = "sent"
	activity.MessageID = messageID
	assignment.EmailsSent++
	return nil
}

func (sw *SequenceWorker) sendSMS(ctx context.Context, assignment *models.SequenceAssignment, step models.SequenceStep, activity *models.SequenceActivity) error {
	activity.ActionType = "sms_sent"

	if assignment.Lead.Phone == "" {
		activity.Result = "skipped"
		activity.Error = "lead has no phone number"
		return nil
	}

	body := utils.ResolveMergeTags(step.Content, &assignment.Lead)
	messageID, err := sw.SMS.Send(ctx, assignment.Lead.Phone, body)
	if err != nil {
		return fmt.Errorf("send sms: %w", err)
	}

	activity.Result = "sent"
	activity.MessageID = messageID
	return nil
}
