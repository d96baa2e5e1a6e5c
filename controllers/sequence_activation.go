package controller

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"cdmsuite/models"
	"cdmsuite/utils"
)

func nowUTC() time.Time {
	return time.Now().UTC()
}

// ActivateSequence moves a sequence into active status. Activation implies
// approval, so an un-approved pending sequence is approved by the same call
// and a re-activation of an already-approved sequence leaves the original
// approval record untouched.
func (sc *SequenceController) ActivateSequence(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var sequence models.Sequence
	if err := sc.DB.First(&sequence, c.Params("id")).Error; err != nil {
		return utils.FailWarn(c, fiber.StatusNotFound, utils.CodeRecordNotFound, "Sequence not found", logrus.Fields{"user_id": user.ID})
	}

	if err := sequence.Activate(user.ID, nowUTC()); err != nil {
		return utils.FailTransition(c, err, logrus.Fields{
			"user_id":     user.ID,
			"sequence_id": sequence.ID,
			"status":      sequence.Status,
		})
	}

	if err := sc.DB.Save(&sequence).Error; err != nil {
		return utils.FailError(c, fiber.StatusInternalServerError, utils.CodeDatabaseError, "Failed to activate sequence", err, logrus.Fields{"user_id": user.ID, "sequence_id": sequence.ID})
	}

	sc.Logger.Printf("Sequence %d activated by user %d", sequence.ID, user.ID)
	return c.JSON(utils.SuccessResponse(sequence))
}

// UpdateActivation pauses or archives an active sequence.
func (sc *SequenceController) UpdateActivation(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var input struct {
		Action string `json:"action" validate:"required,oneof=pause archive"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.FailWarn(c, fiber.StatusBadRequest, utils.CodeValidationFailed, "Invalid request body", logrus.Fields{"user_id": user.ID})
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.FailWarn(c, fiber.StatusBadRequest, utils.CodeValidationFailed, err.Error(), logrus.Fields{"user_id": user.ID})
	}

	var sequence models.Sequence
	if err := sc.DB.First(&sequence, c.Params("id")).Error; err != nil {
		return utils.FailWarn(c, fiber.StatusNotFound, utils.CodeRecordNotFound, "Sequence not found", logrus.Fields{"user_id": user.ID})
	}

	var err error
	switch input.Action {
	case "pause":
		err = sequence.Pause(nowUTC())
	case "archive":
		err = sequence.Archive(nowUTC())
	}
	if err != nil {
		return utils.FailTransition(c, err, logrus.Fields{
			"user_id":     user.ID,
			"sequence_id": sequence.ID,
			"status":      sequence.Status,
			"action":      input.Action,
		})
	}

	if err := sc.DB.Save(&sequence).Error; err != nil {
		return utils.FailError(c, fiber.StatusInternalServerError, utils.CodeDatabaseError, "Failed to update sequence status", err, logrus.Fields{"user_id": user.ID, "sequence_id": sequence.ID})
	}

	return c.JSON(utils.SuccessResponse(sequence))
}
