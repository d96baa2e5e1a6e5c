package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"cdmsuite/models"
	"cdmsuite/utils"
)

const maxJobAttempts = 5

// retryBackoff doubles per attempt: 1m, 2m, 4m, 8m.
func retryBackoff(attempts int) time.Duration {
	return time.Duration(1<<(attempts-1)) * time.Minute
}

// OutboxWorker drains the persisted job queue: proposal generation for bulk
// imports and internal notification emails. Jobs are retried with backoff and
// parked as failed once the attempt cap is reached.
type OutboxWorker struct {
	DB     *gorm.DB
	Mailer *utils.Mailer
	Logger *log.Logger
}

func NewOutboxWorker(db *gorm.DB, mailer *utils.Mailer, logger *log.Logger) *OutboxWorker {
	return &OutboxWorker{
		DB:     db,
		Mailer: mailer,
		Logger: logger,
	}
}

func (ow *OutboxWorker) Start(ctx context.Context) {
	time.Sleep(10 * time.Second)

	ow.Logger.Println("Outbox worker started")

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			ow.Logger.Println("Outbox worker shutting down...")
			return
		case <-ticker.C:
			ow.processPendingJobs(ctx)
		}
	}
}

func (ow *OutboxWorker) processPendingJobs(ctx context.Context) {
	var jobs []models.OutboxJob
	err := ow.DB.
		Where("status = ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)",
			models.OutboxStatusPending, time.Now().UTC()).
		Order("created_at ASC").
		Limit(50).
		Find(&jobs).Error
	if err != nil {
		ow.Logger.Printf("Error fetching outbox jobs: %v", err)
		return
	}

	for i := range jobs {
		if ctx.Err() != nil {
			return
		}
		ow.runJob(&jobs[i])
	}
}

func (ow *OutboxWorker) runJob(job *models.OutboxJob) {
	var err error
	switch job.JobType {
	case models.OutboxJobProposalGenerate:
		err = ow.generateProposal(job)
	case models.OutboxJobNotificationEmail:
		err = ow.sendNotification(job)
	default:
		err = fmt.Errorf("unknown job type %q", job.JobType)
	}

	job.Attempts++
	if err == nil {
		job.Status = models.OutboxStatusDone
		job.NextAttemptAt = nil
		job.LastError = ""
	} else {
		job.LastError = err.Error()
		if job.Attempts >= maxJobAttempts {
			job.Status = models.OutboxStatusFailed
			job.NextAttemptAt = nil
			ow.Logger.Printf("Outbox job %d (%s) failed permanently after %d attempts: %v", job.ID, job.JobType, job.Attempts, err)
		} else {
			delay := retryBackoff(job.Attempts)
			job.NextAttemptAt = utils.Pointer(time.Now().UTC().Add(delay))
			ow.Logger.Printf("Outbox job %d (%s) attempt %d failed, retrying in %s: %v", job.ID, job.JobType, job.Attempts, delay, err)
		}
	}

	if saveErr := ow.DB.Save(job).Error; saveErr != nil {
		ow.Logger.Printf("Error saving outbox job %d: %v", job.ID, saveErr)
	}
}

// generateProposal builds a draft proposal from a lead's matched service
// keywords. Skips quietly when a proposal already exists for the lead so
// re-imports do not pile up duplicates.
func (ow *OutboxWorker) generateProposal(job *models.OutboxJob) error {
	leadID, err := payloadUint(job.Payload, "lead_id")
	if err != nil {
		return err
	}
	createdByID, _ := payloadUint(job.Payload, "created_by_id")

	var lead models.Lead
	if err := ow.DB.First(&lead, leadID).Error; err != nil {
		return fmt.Errorf("lead %d: %w", leadID, err)
	}

	var existing int64
	if err := ow.DB.Model(&models.Proposal{}).Where("lead_id = ?", lead.ID).Count(&existing).Error; err != nil {
		return err
	}
	if existing > 0 {
		return nil
	}

	proposal := utils.BuildProposalForLead(&lead, createdByID)

	if err := ow.DB.Create(proposal).Error; err != nil {
		return fmt.Errorf("create proposal for lead %d: %w", lead.ID, err)
	}

	ow.Logger.Printf("Generated proposal %d for lead %d (%d items, total %d)", proposal.ID, lead.ID, len(proposal.Items), proposal.Total)
	return nil
}

func (ow *OutboxWorker) sendNotification(job *models.OutboxJob) error {
	subject, _ := job.Payload["subject"].(string)
	body, _ := job.Payload["body"].(string)
	if subject == "" {
		return fmt.Errorf("notification job %d has no subject", job.ID)
	}
	return ow.Mailer.SendNotification(subject, body)
}

// payloadUint reads a numeric payload field. JSON round-tripping turns
// numbers into float64, so both forms are accepted.
func payloadUint(payload map[string]interface{}, key string) (uint, error) {
	switch v := payload[key].(type) {
	case float64:
		return uint(v), nil
	case int:
		return uint(v), nil
	case uint:
		return v, nil
	default:
		return 0, fmt.Errorf("payload field %q missing or not numeric", key)
	}
}
