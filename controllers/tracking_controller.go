package controller

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"cdmsuite/models"
	"cdmsuite/utils"
)

// TrackingController handles the public engagement endpoints hit by email
// clients and the inbound-reply webhook. These routes are unauthenticated;
// an unknown message ID is answered the same as a known one so the endpoint
// leaks nothing about which IDs exist.
type TrackingController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewTrackingController(db *gorm.DB, logger *log.Logger) *TrackingController {
	return &TrackingController{DB: db, Logger: logger}
}

// HandleOpenTracking serves the tracking pixel and records the first open.
func (tc *TrackingController) HandleOpenTracking(c *fiber.Ctx) error {
	messageID := c.Params("messageID")

	tc.recordEngagement(messageID, "open")

	return c.Type("gif").Send(transparentPixel())
}

// HandleClickTracking records a link click and redirects to the wrapped URL.
func (tc *TrackingController) HandleClickTracking(c *fiber.Ctx) error {
	messageID := c.Params("messageID")
	originalURL := c.Query("url")
	if originalURL == "" {
		return c.Status(fiber.StatusBadRequest).SendString("Missing url")
	}

	tc.recordEngagement(messageID, "click")

	return c.Redirect(originalURL, fiber.StatusFound)
}

// HandleReplyWebhook processes inbound-reply notifications posted by the mail
// provider.
func (tc *TrackingController) HandleReplyWebhook(c *fiber.Ctx) error {
	var input struct {
		MessageID string `json:"message_id"`
		Email     string `json:"email"`
		Timestamp int64  `json:"timestamp"`
	}
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if input.MessageID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "message_id is required"})
	}

	tc.recordEngagement(input.MessageID, "reply")

	return c.JSON(fiber.Map{"message": "Webhook processed successfully"})
}

// recordEngagement stamps the activity timestamp and bumps the assignment
// counter on the first event of each kind. Repeat opens of the same message
// do not inflate counters. Failures are logged and swallowed; tracking must
// never break mail rendering or redirects.
func (tc *TrackingController) recordEngagement(messageID, event string) {
	var activity models.SequenceActivity
	if err := tc.DB.Where("message_id = ?", messageID).First(&activity).Error; err != nil {
		tc.Logger.Printf("Tracking: no activity for message %s (%s)", messageID, event)
		return
	}

	now := time.Now().UTC()
	var stampField string
	var counterField string

	switch event {
	case "open":
		if activity.OpenedAt != nil {
			return
		}
		activity.OpenedAt = utils.Pointer(now)
		stampField = "opened_at"
		counterField = "emails_opened"
	case "click":
		if activity.ClickedAt != nil {
			return
		}
		activity.ClickedAt = utils.Pointer(now)
		stampField = "clicked_at"
		counterField = "emails_clicked"

		// A click implies the message was opened even if the pixel was blocked
		if activity.OpenedAt == nil {
			tc.recordEngagement(messageID, "open")
		}
	case "reply":
		if activity.RepliedAt != nil {
			return
		}
		activity.RepliedAt = utils.Pointer(now)
		stampField = "replied_at"
		counterField = "emails_replied"
	default:
		return
	}

	err := tc.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.SequenceActivity{}).
			Where("id = ?", activity.ID).
			UpdateColumn(stampField, now).Error; err != nil {
			return err
		}
		return tx.Model(&models.SequenceAssignment{}).
			Where("id = ?", activity.AssignmentID).
			UpdateColumn(counterField, gorm.Expr(counterField+" + 1")).Error
	})
	if err != nil {
		tc.Logger.Printf("Tracking: failed to record %s for message %s: %v", event, messageID, err)
	}
}

func transparentPixel() []byte {
	// 1x1 transparent GIF
	return []byte{
		0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00,
		0x80, 0x00, 0x00, 0xff, 0xff, 0xff, 0x00, 0x00, 0x00, 0x21,
		0xf9, 0x04, 0x01, 0x00, 0x00, 0x00, 0x00, 0x2c, 0x00, 0x00,
		0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0x02, 0x02, 0x44,
		0x01, 0x00, 0x3b,
	}
}
