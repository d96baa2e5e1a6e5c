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

type ProposalController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewProposalController(db *gorm.DB, logger *log.Logger) *ProposalController {
	return &ProposalController{DB: db, Logger: logger}
}

// GenerateProposal builds a draft proposal for a lead from its matched
// service keywords. Leads without keywords still get a consultation line so
// the proposal is never empty.
func (pc *ProposalController) GenerateProposal(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var input struct {
		LeadID uint `json:"lead_id" validate:"required"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.FailWarn(c, fiber.StatusBadRequest, utils.CodeValidationFailed, "Invalid request body", logrus.Fields{"user_id": user.ID})
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.FailWarn(c, fiber.StatusBadRequest, utils.CodeValidationFailed, err.Error(), logrus.Fields{"user_id": user.ID})
	}

	var lead models.Lead
	if err := pc.DB.First(&lead, input.LeadID).Error; err != nil {
		return utils.FailWarn(c, fiber.StatusNotFound, utils.CodeRecordNotFound, "Lead not found", logrus.Fields{"user_id": user.ID, "lead_id": input.LeadID})
	}

	proposal := utils.BuildProposalForLead(&lead, user.ID)
	if err := pc.DB.Create(proposal).Error; err != nil {
		return utils.FailError(c, fiber.StatusInternalServerError, utils.CodeDatabaseError, "Failed to create proposal", err, logrus.Fields{"user_id": user.ID, "lead_id": lead.ID})
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(proposal))
}

// GetProposals lists proposals filtered by lead or status.
func (pc *ProposalController) GetProposals(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	if limit > 100 {
		limit = 100
	}
	if page < 1 {
		page = 1
	}

	query := pc.DB.Model(&models.Proposal{})
	if leadID := c.Query("lead_id"); leadID != "" {
		query = query.Where("lead_id = ?", leadID)
	}
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.FailError(c, fiber.StatusInternalServerError, utils.CodeDatabaseError, "Failed to count proposals", err, nil)
	}

	var proposals []models.Proposal
	if err := query.Order("created_at DESC").
		Offset((page - 1) * limit).Limit(limit).
		Find(&proposals).Error; err != nil {
		return utils.FailError(c, fiber.StatusInternalServerError, utils.CodeDatabaseError, "Failed to fetch proposals", err, nil)
	}

	return c.JSON(utils.PaginatedResponse{Data: proposals, Total: total, Page: page, Limit: limit})
}

// GetProposal returns one proposal.
func (pc *ProposalController) GetProposal(c *fiber.Ctx) error {
	var proposal models.Proposal
	if err := pc.DB.First(&proposal, c.Params("id")).Error; err != nil {
		return utils.FailWarn(c, fiber.StatusNotFound, utils.CodeRecordNotFound, "Proposal not found", nil)
	}
	return c.JSON(utils.SuccessResponse(proposal))
}

// UpdateProposal edits a draft's title and line items, or moves the proposal
// through its lifecycle via the status field. Accepted and declined are
// terminal.
func (pc *ProposalController) UpdateProposal(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var proposal models.Proposal
	if err := pc.DB.First(&proposal, c.Params("id")).Error; err != nil {
		return utils.FailWarn(c, fiber.StatusNotFound, utils.CodeRecordNotFound, "Proposal not found", logrus.Fields{"user_id": user.ID})
	}

	var input struct {
		Title  *string               `json:"title" validate:"omitempty,max=200"`
		Items  []models.ProposalItem `json:"items"`
		Status *string               `json:"status" validate:"omitempty,oneof=draft sent accepted declined"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.FailWarn(c, fiber.StatusBadRequest, utils.CodeValidationFailed, "Invalid request body", logrus.Fields{"user_id": user.ID})
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.FailWarn(c, fiber.StatusBadRequest, utils.CodeValidationFailed, err.Error(), logrus.Fields{"user_id": user.ID})
	}

	if proposal.Status == models.ProposalStatusAccepted || proposal.Status == models.ProposalStatusDeclined {
		return utils.FailWarn(c, fiber.StatusConflict, utils.CodeInvalidStatusTransition,
			"Accepted or declined proposals cannot be modified", logrus.Fields{"user_id": user.ID, "proposal_id": proposal.ID, "status": proposal.Status})
	}

	// Content edits only while still a draft
	if proposal.Status == models.ProposalStatusDraft {
		if input.Title != nil {
			proposal.Title = *input.Title
		}
		if input.Items != nil {
			proposal.Items = input.Items
			proposal.RecalculateTotal()
		}
	} else if input.Title != nil || input.Items != nil {
		return utils.FailWarn(c, fiber.StatusConflict, utils.CodeInvalidStatusTransition,
			"Only draft proposals can be edited", logrus.Fields{"user_id": user.ID, "proposal_id": proposal.ID, "status": proposal.Status})
	}

	if input.Status != nil {
		proposal.Status = *input.Status
	}

	if err := pc.DB.Save(&proposal).Error; err != nil {
		return utils.FailError(c, fiber.StatusInternalServerError, utils.CodeDatabaseError, "Failed to update proposal", err, logrus.Fields{"user_id": user.ID, "proposal_id": proposal.ID})
	}

	return c.JSON(utils.SuccessResponse(proposal))
}

// DeleteProposal removes a proposal; non-draft proposals are kept for record
// and cannot be deleted.
func (pc *ProposalController) DeleteProposal(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var proposal models.Proposal
	if err := pc.DB.First(&proposal, c.Params("id")).Error; err != nil {
		return utils.FailWarn(c, fiber.StatusNotFound, utils.CodeRecordNotFound, "Proposal not found", logrus.Fields{"user_id": user.ID})
	}

	if proposal.Status != models.ProposalStatusDraft {
		return utils.FailWarn(c, fiber.StatusConflict, utils.CodeInvalidStatusTransition,
			"Only draft proposals can be deleted", logrus.Fields{"user_id": user.ID, "proposal_id": proposal.ID, "status": proposal.Status})
	}

	if err := pc.DB.Delete(&proposal).Error; err != nil {
		return utils.FailError(c, fiber.StatusInternalServerError, utils.CodeDatabaseError, "Failed to delete proposal", err, logrus.Fields{"user_id": user.ID, "proposal_id": proposal.ID})
	}

	return c.JSON(fiber.Map{"success": true, "message": "Proposal deleted"})
}
