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

type SequenceController struct {
	DB        *gorm.DB
	Logger    *log.Logger
	Generator *utils.SequenceGenerator
}

func NewSequenceController(db *gorm.DB, logger *log.Logger) *SequenceController {
	return &SequenceController{
		DB:        db,
		Logger:    logger,
		Generator: utils.NewSequenceGenerator(logger),
	}
}

type sequenceStepInput struct {
	StepType    string `json:"step_type" validate:"required,oneof=email sms task reminder note delay"`
	Title       string `json:"title" validate:"required,max=200"`
	Subject     string `json:"subject" validate:"omitempty,max=200"`
	Content     string `json:"content"`
	DelayAmount int    `json:"delay_amount"`
	DelayUnit   string `json:"delay_unit" validate:"omitempty,oneof=minutes hours days weeks"`
	DelayFrom   string `json:"delay_from" validate:"omitempty,oneof=previous start"`
	Active      *bool  `json:"active"`
}

// buildSteps converts step inputs through the validating constructor so no
// malformed step reaches storage.
func buildSteps(inputs []sequenceStepInput) ([]models.SequenceStep, error) {
	steps := make([]models.SequenceStep, 0, len(inputs))
	for i, in := range inputs {
		step, err := models.NewSequenceStep(i+1, in.StepType, in.Title, in.Subject, in.Content, in.DelayAmount, in.DelayUnit, in.DelayFrom)
		if err != nil {
			return nil, err
		}
		if in.Active != nil {
			step.Active = *in.Active
		}
		steps = append(steps, step)
	}
	return steps, nil
}

// CreateSequence creates a manual (non-AI) sequence in pending status.
func (sc *SequenceController) CreateSequence(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var input struct {
		Name           string              `json:"name" validate:"required,max=200"`
		Description    string              `json:"description" validate:"omitempty,max=1000"`
		Type           string              `json:"type" validate:"required,oneof=email sms task mixed"`
		TargetAudience string              `json:"target_audience" validate:"omitempty,max=500"`
		Steps          []sequenceStepInput `json:"steps" validate:"required,min=1,dive"`
	}

	if err := c.BodyParser(&input); err != nil {
		return utils.FailWarn(c, fiber.StatusBadRequest, utils.CodeValidationFailed, "Invalid request body", logrus.Fields{"user_id": user.ID})
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.FailWarn(c, fiber.StatusBadRequest, utils.CodeValidationFailed, err.Error(), logrus.Fields{"user_id": user.ID})
	}

	steps, err := buildSteps(input.Steps)
	if err != nil {
		return utils.FailWarn(c, fiber.StatusBadRequest, utils.CodeValidationFailed, err.Error(), logrus.Fields{"user_id": user.ID})
	}

	// Structural validation mirrors the activation gate so problems surface
	// at creation time, with every violation reported
	if valid, violations := utils.ValidateSequenceSteps(steps); !valid {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Sequence steps are invalid",
			"code":    utils.CodeValidationFailed,
			"errors":  violations,
		})
	}

	sequence := models.Sequence{
		CreatedByID:    user.ID,
		Name:           input.Name,
		Description:    input.Description,
		Type:           input.Type,
		TargetAudience: input.TargetAudience,
		Status:         models.SequenceStatusPending,
		Steps:          steps,
	}

	if err := sc.DB.Create(&sequence).Error; err != nil {
		return utils.FailError(c, fiber.StatusInternalServerError, utils.CodeDatabaseError, "Failed to create sequence", err, logrus.Fields{"user_id": user.ID})
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(sequence))
}

// GenerateSequence runs AI-assisted generation for a lead. The response is
// always a well-formed pending sequence; generation failures silently fall
// back to deterministic templates.
func (sc *SequenceController) GenerateSequence(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var input struct {
		LeadID uint   `json:"lead_id" validate:"required"`
		Type   string `json:"type" validate:"required,oneof=email sms task mixed"`
		Save   bool   `json:"save"`
	}

	if err := c.BodyParser(&input); err != nil {
		return utils.FailWarn(c, fiber.StatusBadRequest, utils.CodeValidationFailed, "Invalid request body", logrus.Fields{"user_id": user.ID})
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.FailWarn(c, fiber.StatusBadRequest, utils.CodeValidationFailed, err.Error(), logrus.Fields{"user_id": user.ID})
	}

	var lead models.Lead
	if err := sc.DB.First(&lead, input.LeadID).Error; err != nil {
		return utils.FailWarn(c, fiber.StatusNotFound, utils.CodeRecordNotFound, "Lead not found", logrus.Fields{"user_id": user.ID, "lead_id": input.LeadID})
	}

	sequence := sc.Generator.GenerateSequence(c.Context(), &lead, input.Type)
	sequence.CreatedByID = user.ID

	if input.Save {
		if err := sc.DB.Create(sequence).Error; err != nil {
			return utils.FailError(c, fiber.StatusInternalServerError, utils.CodeDatabaseError, "Failed to save generated sequence", err, logrus.Fields{"user_id": user.ID})
		}
	}

	return c.JSON(utils.SuccessResponse(sequence))
}

// GetSequences lists sequences with optional status/type filters.
func (sc *SequenceController) GetSequences(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	if limit > 100 {
		limit = 100
	}
	if page < 1 {
		page = 1
	}

	query := sc.DB.Model(&models.Sequence{})
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if seqType := c.Query("type"); seqType != "" {
		query = query.Where("type = ?", seqType)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.FailError(c, fiber.StatusInternalServerError, utils.CodeDatabaseError, "Failed to count sequences", err, nil)
	}

	var sequences []models.Sequence
	if err := query.Order("created_at DESC").
		Offset((page - 1) * limit).Limit(limit).
		Find(&sequences).Error; err != nil {
		return utils.FailError(c, fiber.StatusInternalServerError, utils.CodeDatabaseError, "Failed to fetch sequences", err, nil)
	}

	return c.JSON(utils.PaginatedResponse{Data: sequences, Total: total, Page: page, Limit: limit})
}

// GetSequence returns one sequence along with step validation state and an
// estimated duration for display.
func (sc *SequenceController) GetSequence(c *fiber.Ctx) error {
	var sequence models.Sequence
	if err := sc.DB.Preload("Assignments").First(&sequence, c.Params("id")).Error; err != nil {
		return utils.FailWarn(c, fiber.StatusNotFound, utils.CodeRecordNotFound, "Sequence not found", nil)
	}

	totalMinutes, formatted := utils.EstimateSequenceDuration(sequence.Steps)
	valid, violations := utils.ValidateSequenceSteps(sequence.Steps)

	timeline := make([]fiber.Map, 0, len(sequence.Steps))
	for _, step := range sequence.Steps {
		timeline = append(timeline, fiber.Map{
			"order": step.Order,
			"title": step.Title,
			"delay": utils.FormatDelay(step.DelayAmount, step.DelayUnit),
		})
	}

	return c.JSON(fiber.Map{
		"success":  true,
		"sequence": sequence,
		"duration": fiber.Map{
			"total_minutes": totalMinutes,
			"formatted":     formatted,
		},
		"timeline": timeline,
		"valid":    valid,
		"errors":   violations,
	})
}

// UpdateSequence edits metadata and, while no assignment has progressed,
// steps. Once any assignment is past step zero the step list is append-only.
func (sc *SequenceController) UpdateSequence(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var sequence models.Sequence
	if err := sc.DB.First(&sequence, c.Params("id")).Error; err != nil {
		return utils.FailWarn(c, fiber.StatusNotFound, utils.CodeRecordNotFound, "Sequence not found", logrus.Fields{"user_id": user.ID})
	}

	var input struct {
		Name           *string             `json:"name" validate:"omitempty,max=200"`
		Description    *string             `json:"description" validate:"omitempty,max=1000"`
		TargetAudience *string             `json:"target_audience" validate:"omitempty,max=500"`
		Steps          []sequenceStepInput `json:"steps" validate:"omitempty,dive"`
	}

	if err := c.BodyParser(&input); err != nil {
		return utils.FailWarn(c, fiber.StatusBadRequest, utils.CodeValidationFailed, "Invalid request body", logrus.Fields{"user_id": user.ID})
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.FailWarn(c, fiber.StatusBadRequest, utils.CodeValidationFailed, err.Error(), logrus.Fields{"user_id": user.ID})
	}

	if input.Name != nil {
		sequence.Name = *input.Name
	}
	if input.Description != nil {
		sequence.Description = *input.Description
	}
	if input.TargetAudience != nil {
		sequence.TargetAudience = *input.TargetAudience
	}

	if input.Steps != nil {
		steps, err := buildSteps(input.Steps)
		if err != nil {
			return utils.FailWarn(c, fiber.StatusBadRequest, utils.CodeValidationFailed, err.Error(), logrus.Fields{"user_id": user.ID})
		}

		var progressed int64
		if err := sc.DB.Model(&models.SequenceAssignment{}).
			Where("sequence_id = ? AND current_step > 0", sequence.ID).
			Count(&progressed).Error; err != nil {
			return utils.FailError(c, fiber.StatusInternalServerError, utils.CodeDatabaseError, "Failed to check assignments", err, logrus.Fields{"user_id": user.ID})
		}

		// Fired steps are immutable; only appends are allowed once an
		// assignment has progressed
		if progressed > 0 && !stepsArePrefix(sequence.Steps, steps) {
			return utils.FailWarn(c, fiber.StatusConflict, utils.CodeValidationFailed,
				"Steps already executed by assignments can only be appended to, not modified", logrus.Fields{"user_id": user.ID, "sequence_id": sequence.ID})
		}
		sequence.Steps = steps
	}

	if err := sc.DB.Save(&sequence).Error; err != nil {
		return utils.FailError(c, fiber.StatusInternalServerError, utils.CodeDatabaseError, "Failed to update sequence", err, logrus.Fields{"user_id": user.ID, "sequence_id": sequence.ID})
	}

	return c.JSON(utils.SuccessResponse(sequence))
}

// stepsArePrefix reports whether the existing steps survive unchanged at the
// head of the new list.
func stepsArePrefix(existing, updated []models.SequenceStep) bool {
	if len(updated) < len(existing) {
		return false
	}
	for i, step := range existing {
		u := updated[i]
		if step.StepType != u.StepType || step.Title != u.Title || step.Subject != u.Subject ||
			step.Content != u.Content || step.DelayAmount != u.DelayAmount ||
			step.DelayUnit != u.DelayUnit || step.DelayFrom != u.DelayFrom {
			return false
		}
	}
	return true
}

// DeleteSequence archives rather than hard-deletes when assignments exist.
func (sc *SequenceController) DeleteSequence(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var sequence models.Sequence
	if err := sc.DB.First(&sequence, c.Params("id")).Error; err != nil {
		return utils.FailWarn(c, fiber.StatusNotFound, utils.CodeRecordNotFound, "Sequence not found", logrus.Fields{"user_id": user.ID})
	}

	var assignmentCount int64
	if err := sc.DB.Model(&models.SequenceAssignment{}).Where("sequence_id = ?", sequence.ID).Count(&assignmentCount).Error; err != nil {
		return utils.FailError(c, fiber.StatusInternalServerError, utils.CodeDatabaseError, "Failed to check assignments", err, logrus.Fields{"user_id": user.ID})
	}

	if assignmentCount > 0 {
		if err := sequence.Archive(nowUTC()); err != nil {
			return utils.FailTransition(c, err, logrus.Fields{"user_id": user.ID, "sequence_id": sequence.ID, "status": sequence.Status})
		}
		if err := sc.DB.Save(&sequence).Error; err != nil {
			return utils.FailError(c, fiber.StatusInternalServerError, utils.CodeDatabaseError, "Failed to archive sequence", err, logrus.Fields{"user_id": user.ID, "sequence_id": sequence.ID})
		}
		return c.JSON(fiber.Map{"success": true, "message": "Sequence has assignments and was archived instead of deleted"})
	}

	if err := sc.DB.Delete(&sequence).Error; err != nil {
		return utils.FailError(c, fiber.StatusInternalServerError, utils.CodeDatabaseError, "Failed to delete sequence", err, logrus.Fields{"user_id": user.ID, "sequence_id": sequence.ID})
	}

	return c.JSON(fiber.Map{"success": true, "message": "Sequence deleted"})
}
