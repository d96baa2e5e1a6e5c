package controller

import (
	"log"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"cdmsuite/models"
	"cdmsuite/utils"
)

type AssignmentController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewAssignmentController(db *gorm.DB, logger *log.Logger) *AssignmentController {
	return &AssignmentController{DB: db, Logger: logger}
}

// AssignSequence binds a lead to a sequence. The sequence must be active.
// With auto_start the assignment begins immediately and its first run time is
// scheduled; otherwise it sits pending until started explicitly.
func (ac *AssignmentController) AssignSequence(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var input struct {
		LeadID    uint `json:"lead_id" validate:"required"`
		AutoStart bool `json:"auto_start"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.FailWarn(c, fiber.StatusBadRequest, utils.CodeValidationFailed, "Invalid request body", logrus.Fields{"user_id": user.ID})
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.FailWarn(c, fiber.StatusBadRequest, utils.CodeValidationFailed, err.Error(), logrus.Fields{"user_id": user.ID})
	}

	var sequence models.Sequence
	if err := ac.DB.First(&sequence, c.Params("id")).Error; err != nil {
		return utils.FailWarn(c, fiber.StatusNotFound, utils.CodeRecordNotFound, "Sequence not found", logrus.Fields{"user_id": user.ID})
	}
	if sequence.Status != models.SequenceStatusActive {
		return utils.FailWarn(c, fiber.StatusBadRequest, utils.CodeInvalidStatusTransition,
			"Only an active sequence can be assigned to leads", logrus.Fields{"user_id": user.ID, "sequence_id": sequence.ID, "status": sequence.Status})
	}

	var lead models.Lead
	if err := ac.DB.First(&lead, input.LeadID).Error; err != nil {
		return utils.FailWarn(c, fiber.StatusNotFound, utils.CodeRecordNotFound, "Lead not found", logrus.Fields{"user_id": user.ID, "lead_id": input.LeadID})
	}

	// One live run per lead per sequence
	var existing int64
	if err := ac.DB.Model(&models.SequenceAssignment{}).
		Where("sequence_id = ? AND lead_id = ? AND status IN ?", sequence.ID, lead.ID,
			[]string{models.AssignmentStatusPending, models.AssignmentStatusActive, models.AssignmentStatusPaused}).
		Count(&existing).Error; err != nil {
		return utils.FailError(c, fiber.StatusInternalServerError, utils.CodeDatabaseError, "Failed to check existing assignments", err, logrus.Fields{"user_id": user.ID})
	}
	if existing > 0 {
		return utils.FailWarn(c, fiber.StatusConflict, utils.CodeDuplicateEntry,
			"Lead already has a running assignment for this sequence", logrus.Fields{"user_id": user.ID, "sequence_id": sequence.ID, "lead_id": lead.ID})
	}

	assignment := models.SequenceAssignment{
		SequenceID: sequence.ID,
		LeadID:     lead.ID,
		Status:     models.AssignmentStatusPending,
	}

	if input.AutoStart {
		if err := startAssignment(&assignment, &sequence); err != nil {
			return utils.FailTransition(c, err, logrus.Fields{"user_id": user.ID, "sequence_id": sequence.ID})
		}
	}

	err := ac.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&assignment).Error; err != nil {
			return err
		}
		return tx.Model(&models.Sequence{}).Where("id = ?", sequence.ID).
			UpdateColumn("times_used", gorm.Expr("times_used + 1")).Error
	})
	if err != nil {
		return utils.FailError(c, fiber.StatusInternalServerError, utils.CodeDatabaseError, "Failed to create assignment", err, logrus.Fields{"user_id": user.ID, "sequence_id": sequence.ID})
	}

	ac.Logger.Printf("Lead %d assigned to sequence %d by user %d (auto_start=%v)", lead.ID, sequence.ID, user.ID, input.AutoStart)
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(assignment))
}

// startAssignment flips the assignment to active and schedules the first
// active step. Both anchors resolve against the start time here since no
// previous step exists yet.
func startAssignment(assignment *models.SequenceAssignment, sequence *models.Sequence) error {
	now := nowUTC()
	if err := assignment.Start(now); err != nil {
		return err
	}
	steps := sequence.ActiveSteps()
	if len(steps) == 0 {
		return models.ErrSequenceNoSteps
	}
	next := utils.NextRunTime(steps[0], now, now)
	assignment.NextRunAt = &next
	return nil
}

// StartAssignment starts a pending assignment.
func (ac *AssignmentController) StartAssignment(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var assignment models.SequenceAssignment
	if err := ac.DB.Preload("Sequence").First(&assignment, c.Params("id")).Error; err != nil {
		return utils.FailWarn(c, fiber.StatusNotFound, utils.CodeRecordNotFound, "Assignment not found", logrus.Fields{"user_id": user.ID})
	}

	if err := startAssignment(&assignment, &assignment.Sequence); err != nil {
		return utils.FailTransition(c, err, logrus.Fields{"user_id": user.ID, "assignment_id": assignment.ID, "status": assignment.Status})
	}

	if err := ac.DB.Save(&assignment).Error; err != nil {
		return utils.FailError(c, fiber.StatusInternalServerError, utils.CodeDatabaseError, "Failed to start assignment", err, logrus.Fields{"user_id": user.ID, "assignment_id": assignment.ID})
	}

	return c.JSON(utils.SuccessResponse(assignment))
}

// PauseAssignment suspends an active assignment. The pending run time is kept
// so Resume can reschedule relative to it.
func (ac *AssignmentController) PauseAssignment(c *fiber.Ctx) error {
	return ac.transition(c, func(a *models.SequenceAssignment) error {
		return a.PauseRun(nowUTC())
	})
}

// ResumeAssignment reactivates a paused assignment. A run time that came due
// while paused is pushed to now so the worker picks it up on its next tick
// instead of firing a backlog.
func (ac *AssignmentController) ResumeAssignment(c *fiber.Ctx) error {
	return ac.transition(c, func(a *models.SequenceAssignment) error {
		if err := a.Resume(); err != nil {
			return err
		}
		now := nowUTC()
		if a.NextRunAt != nil && a.NextRunAt.Before(now) {
			a.NextRunAt = &now
		}
		return nil
	})
}

// CancelAssignment terminates an assignment without deleting its history.
func (ac *AssignmentController) CancelAssignment(c *fiber.Ctx) error {
	return ac.transition(c, func(a *models.SequenceAssignment) error {
		return a.Cancel(nowUTC())
	})
}

func (ac *AssignmentController) transition(c *fiber.Ctx, apply func(*models.SequenceAssignment) error) error {
	user := c.Locals("user").(*models.User)

	var assignment models.SequenceAssignment
	if err := ac.DB.First(&assignment, c.Params("id")).Error; err != nil {
		return utils.FailWarn(c, fiber.StatusNotFound, utils.CodeRecordNotFound, "Assignment not found", logrus.Fields{"user_id": user.ID})
	}

	if err := apply(&assignment); err != nil {
		return utils.FailTransition(c, err, logrus.Fields{"user_id": user.ID, "assignment_id": assignment.ID, "status": assignment.Status})
	}

	if err := ac.DB.Save(&assignment).Error; err != nil {
		return utils.FailError(c, fiber.StatusInternalServerError, utils.CodeDatabaseError, "Failed to update assignment", err, logrus.Fields{"user_id": user.ID, "assignment_id": assignment.ID})
	}

	return c.JSON(utils.SuccessResponse(assignment))
}

// GetAssignments lists assignments with optional sequence/lead/status filters.
func (ac *AssignmentController) GetAssignments(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	if limit > 100 {
		limit = 100
	}
	if page < 1 {
		page = 1
	}

	query := ac.DB.Model(&models.SequenceAssignment{})
	if seqID := c.Query("sequence_id"); seqID != "" {
		query = query.Where("sequence_id = ?", seqID)
	}
	if leadID := c.Query("lead_id"); leadID != "" {
		query = query.Where("lead_id = ?", leadID)
	}
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.FailError(c, fiber.StatusInternalServerError, utils.CodeDatabaseError, "Failed to count assignments", err, nil)
	}

	var assignments []models.SequenceAssignment
	if err := query.Order("created_at DESC").
		Offset((page - 1) * limit).Limit(limit).
		Find(&assignments).Error; err != nil {
		return utils.FailError(c, fiber.StatusInternalServerError, utils.CodeDatabaseError, "Failed to fetch assignments", err, nil)
	}

	return c.JSON(utils.PaginatedResponse{Data: assignments, Total: total, Page: page, Limit: limit})
}

// GetAssignment returns one assignment with its full activity log.
func (ac *AssignmentController) GetAssignment(c *fiber.Ctx) error {
	var assignment models.SequenceAssignment
	if err := ac.DB.Preload("Activities").First(&assignment, c.Params("id")).Error; err != nil {
		return utils.FailWarn(c, fiber.StatusNotFound, utils.CodeRecordNotFound, "Assignment not found", nil)
	}
	return c.JSON(utils.SuccessResponse(assignment))
}

// MarkConversion records that an assignment led to a conversion and folds the
// outcome back into the sequence success rate.
func (ac *AssignmentController) MarkConversion(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var input struct {
		ConversionType string `json:"conversion_type" validate:"required,oneof=meeting_booked proposal_accepted deal_closed reply_received"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.FailWarn(c, fiber.StatusBadRequest, utils.CodeValidationFailed, "Invalid request body", logrus.Fields{"user_id": user.ID})
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.FailWarn(c, fiber.StatusBadRequest, utils.CodeValidationFailed, err.Error(), logrus.Fields{"user_id": user.ID})
	}

	var assignment models.SequenceAssignment
	if err := ac.DB.First(&assignment, utils.ParseUint(c.Params("id"))).Error; err != nil {
		return utils.FailWarn(c, fiber.StatusNotFound, utils.CodeRecordNotFound, "Assignment not found", logrus.Fields{"user_id": user.ID})
	}

	assignment.Converted = true
	assignment.ConversionType = input.ConversionType

	err := ac.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(&assignment).Error; err != nil {
			return err
		}
		return recalcSuccessRate(tx, assignment.SequenceID)
	})
	if err != nil {
		return utils.FailError(c, fiber.StatusInternalServerError, utils.CodeDatabaseError, "Failed to record conversion", err, logrus.Fields{"user_id": user.ID, "assignment_id": assignment.ID})
	}

	return c.JSON(utils.SuccessResponse(assignment))
}

// recalcSuccessRate recomputes the conversion percentage over all finished
// runs of a sequence.
func recalcSuccessRate(tx *gorm.DB, sequenceID uint) error {
	var finished, converted int64
	base := tx.Model(&models.SequenceAssignment{}).
		Where("sequence_id = ? AND status IN ?", sequenceID,
			[]string{models.AssignmentStatusCompleted, models.AssignmentStatusCancelled})
	if err := base.Count(&finished).Error; err != nil {
		return err
	}
	if err := tx.Model(&models.SequenceAssignment{}).
		Where("sequence_id = ? AND converted = ?", sequenceID, true).
		Count(&converted).Error; err != nil {
		return err
	}

	rate := 0.0
	if finished > 0 {
		rate = float64(converted) / float64(finished) * 100
	}
	return tx.Model(&models.Sequence{}).Where("id = ?", sequenceID).
		UpdateColumn("success_rate", rate).Error
}
