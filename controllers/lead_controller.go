package controller

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/badoux/checkmail"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"cdmsuite/models"
	"cdmsuite/utils"
)

type LeadController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewLeadController(db *gorm.DB, logger *log.Logger) *LeadController {
	return &LeadController{
		DB:     db,
		Logger: logger,
	}
}

// CaptureLead handles the public lead-capture endpoint. It requires at least
// one of email/phone/name, dedups by email then phone, and never creates a
// duplicate - an existing lead is updated instead.
func (lc *LeadController) CaptureLead(c *fiber.Ctx) error {
	var input struct {
		Email    string   `json:"email" validate:"omitempty,max=254"`
		Name     string   `json:"name" validate:"omitempty,max=200"`
		Phone    string   `json:"phone" validate:"omitempty,max=30"`
		Source   string   `json:"source" validate:"required,max=50"`
		Interest string   `json:"interest" validate:"omitempty,max=500"`
		Budget   string   `json:"budget" validate:"omitempty,max=100"`
		Timeline string   `json:"timeline" validate:"omitempty,max=100"`
		Notes    string   `json:"notes" validate:"omitempty,max=2000"`
		Tags     []string `json:"tags"`
	}

	if err := c.BodyParser(&input); err != nil {
		return utils.FailWarn(c, fiber.StatusBadRequest, utils.CodeValidationFailed, "Invalid request body", nil)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.FailWarn(c, fiber.StatusBadRequest, utils.CodeValidationFailed, err.Error(), nil)
	}

	if input.Email == "" && input.Phone == "" && input.Name == "" {
		return utils.FailWarn(c, fiber.StatusBadRequest, utils.CodeMissingRequiredField, "At least one of email, phone or name is required", nil)
	}
	if input.Email != "" {
		if err := checkmail.ValidateFormat(input.Email); err != nil {
			return utils.FailWarn(c, fiber.StatusBadRequest, utils.CodeInvalidFormat, "Invalid email format", nil)
		}
		input.Email = strings.ToLower(input.Email)
	}

	score := scoreCapturedLead(input.Email, input.Phone, input.Interest, input.Budget, input.Source)

	// Dedup by email first, phone second
	var existing models.Lead
	found := false
	if input.Email != "" {
		if err := lc.DB.Where("email = ?", input.Email).First(&existing).Error; err == nil {
			found = true
		}
	}
	if !found && input.Phone != "" {
		if err := lc.DB.Where("phone = ?", input.Phone).First(&existing).Error; err == nil {
			found = true
		}
	}

	if found {
		mergeCapturedLead(&existing, capturedFields{
			Name:     input.Name,
			Email:    input.Email,
			Phone:    input.Phone,
			Source:   input.Source,
			Interest: input.Interest,
			Notes:    input.Notes,
			Tags:     input.Tags,
			Score:    score,
		})

		if err := lc.DB.Save(&existing).Error; err != nil {
			return utils.FailError(c, fiber.StatusInternalServerError, utils.CodeDatabaseError, "Failed to update lead", err, nil)
		}

		return c.JSON(fiber.Map{
			"success": true,
			"lead":    existing,
			"message": "updated",
		})
	}

	lead := models.Lead{
		Name:            input.Name,
		Email:           input.Email,
		Phone:           input.Phone,
		Source:          input.Source,
		Interest:        input.Interest,
		Budget:          input.Budget,
		Timeline:        input.Timeline,
		Notes:           appendTimestampedNote("", input.Notes),
		Tags:            input.Tags,
		Score:           score,
		Priority:        priorityForScore(score),
		ServiceKeywords: utils.ExtractServiceKeywords(input.Interest),
	}

	if err := lc.DB.Create(&lead).Error; err != nil {
		return utils.FailError(c, fiber.StatusInternalServerError, utils.CodeDatabaseError, "Failed to create lead", err, nil)
	}

	// New-lead notification goes through the outbox, not the response path
	lc.enqueueJob(models.OutboxJobNotificationEmail, map[string]interface{}{
		"subject": fmt.Sprintf("New lead captured: %s", firstNonEmpty(lead.Name, lead.Email, lead.Phone)),
		"body":    fmt.Sprintf("Source: %s\nInterest: %s\nScore: %d", lead.Source, lead.Interest, lead.Score),
		"lead_id": lead.ID,
	})

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"lead":    lead,
	})
}

// CreateLead is the stricter authenticated creation path used by the CRM
// console.
func (lc *LeadController) CreateLead(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var input struct {
		Name         string   `json:"name" validate:"required,max=200"`
		Email        string   `json:"email" validate:"required,max=254"`
		Phone        string   `json:"phone" validate:"omitempty,max=30"`
		Company      string   `json:"company" validate:"omitempty,max=200"`
		Interest     string   `json:"interest" validate:"omitempty,max=500"`
		Budget       string   `json:"budget" validate:"omitempty,max=100"`
		Timeline     string   `json:"timeline" validate:"omitempty,max=100"`
		Priority     string   `json:"priority" validate:"omitempty,oneof=low medium high"`
		Tags         []string `json:"tags"`
		AssignedToID *uint    `json:"assigned_to_id"`
	}

	if err := c.BodyParser(&input); err != nil {
		return utils.FailWarn(c, fiber.StatusBadRequest, utils.CodeValidationFailed, "Invalid request body", logrus.Fields{"user_id": user.ID})
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.FailWarn(c, fiber.StatusBadRequest, utils.CodeValidationFailed, err.Error(), logrus.Fields{"user_id": user.ID})
	}
	if err := checkmail.ValidateFormat(input.Email); err != nil {
		return utils.FailWarn(c, fiber.StatusBadRequest, utils.CodeInvalidFormat, "Invalid email format", logrus.Fields{"user_id": user.ID})
	}
	input.Email = strings.ToLower(input.Email)

	var existing models.Lead
	if err := lc.DB.Where("email = ?", input.Email).First(&existing).Error; err == nil {
		logrus.WithFields(logrus.Fields{"user_id": user.ID, "existing_lead_id": existing.ID}).Warn("duplicate lead email")
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"success":          false,
			"error":            "Lead with this email already exists",
			"code":             utils.CodeDuplicateEntry,
			"existing_lead_id": existing.ID,
		})
	}

	priority := input.Priority
	if priority == "" {
		priority = models.LeadPriorityMedium
	}

	lead := models.Lead{
		Name:            input.Name,
		Email:           input.Email,
		Phone:           input.Phone,
		Company:         input.Company,
		Source:          models.LeadSourceManual,
		Interest:        input.Interest,
		Budget:          input.Budget,
		Timeline:        input.Timeline,
		Priority:        priority,
		Tags:            input.Tags,
		AssignedToID:    input.AssignedToID,
		ServiceKeywords: utils.ExtractServiceKeywords(input.Interest),
	}

	if err := lc.DB.Create(&lead).Error; err != nil {
		return utils.FailError(c, fiber.StatusInternalServerError, utils.CodeDatabaseError, "Failed to create lead", err, logrus.Fields{"user_id": user.ID})
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(lead))
}

// GetLeads returns a paginated, filterable list.
func (lc *LeadController) GetLeads(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	if limit > 100 {
		limit = 100
	}
	if page < 1 {
		page = 1
	}

	query := lc.DB.Model(&models.Lead{})
	if source := c.Query("source"); source != "" {
		query = query.Where("source = ?", source)
	}
	if priority := c.Query("priority"); priority != "" {
		query = query.Where("priority = ?", priority)
	}
	if search := c.Query("search"); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(email) LIKE ? OR LOWER(company) LIKE ?", like, like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.FailError(c, fiber.StatusInternalServerError, utils.CodeDatabaseError, "Failed to count leads", err, nil)
	}

	var leads []models.Lead
	if err := query.Order("score DESC, created_at DESC").
		Offset((page - 1) * limit).Limit(limit).
		Find(&leads).Error; err != nil {
		return utils.FailError(c, fiber.StatusInternalServerError, utils.CodeDatabaseError, "Failed to fetch leads", err, nil)
	}

	return c.JSON(utils.PaginatedResponse{Data: leads, Total: total, Page: page, Limit: limit})
}

func (lc *LeadController) GetLead(c *fiber.Ctx) error {
	var lead models.Lead
	if err := lc.DB.Preload("Assignments").Preload("Proposals").First(&lead, c.Params("id")).Error; err != nil {
		return utils.FailWarn(c, fiber.StatusNotFound, utils.CodeRecordNotFound, "Lead not found", nil)
	}
	return c.JSON(utils.SuccessResponse(lead))
}

func (lc *LeadController) UpdateLead(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var lead models.Lead
	if err := lc.DB.First(&lead, c.Params("id")).Error; err != nil {
		return utils.FailWarn(c, fiber.StatusNotFound, utils.CodeRecordNotFound, "Lead not found", logrus.Fields{"user_id": user.ID})
	}

	var input struct {
		Name         *string  `json:"name"`
		Phone        *string  `json:"phone"`
		Company      *string  `json:"company"`
		Interest     *string  `json:"interest"`
		Budget       *string  `json:"budget"`
		Timeline     *string  `json:"timeline"`
		Priority     *string  `json:"priority" validate:"omitempty,oneof=low medium high"`
		Score        *int     `json:"score" validate:"omitempty,min=0,max=100"`
		Tags         []string `json:"tags"`
		Note         string   `json:"note"`
		AssignedToID *uint    `json:"assigned_to_id"`
	}

	if err := c.BodyParser(&input); err != nil {
		return utils.FailWarn(c, fiber.StatusBadRequest, utils.CodeValidationFailed, "Invalid request body", logrus.Fields{"user_id": user.ID})
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.FailWarn(c, fiber.StatusBadRequest, utils.CodeValidationFailed, err.Error(), logrus.Fields{"user_id": user.ID})
	}

	if input.Name != nil {
		lead.Name = *input.Name
	}
	if input.Phone != nil {
		lead.Phone = *input.Phone
	}
	if input.Company != nil {
		lead.Company = *input.Company
	}
	if input.Interest != nil {
		lead.Interest = *input.Interest
		lead.ServiceKeywords = utils.ExtractServiceKeywords(*input.Interest)
	}
	if input.Budget != nil {
		lead.Budget = *input.Budget
	}
	if input.Timeline != nil {
		lead.Timeline = *input.Timeline
	}
	if input.Priority != nil {
		lead.Priority = *input.Priority
	}
	if input.Score != nil {
		lead.Score = *input.Score
	}
	if input.Tags != nil {
		lead.Tags = input.Tags
	}
	if input.Note != "" {
		lead.Notes = appendTimestampedNote(lead.Notes, input.Note)
	}
	if input.AssignedToID != nil {
		lead.AssignedToID = input.AssignedToID
	}

	if err := lc.DB.Save(&lead).Error; err != nil {
		return utils.FailError(c, fiber.StatusInternalServerError, utils.CodeDatabaseError, "Failed to update lead", err, logrus.Fields{"user_id": user.ID, "lead_id": lead.ID})
	}

	return c.JSON(utils.SuccessResponse(lead))
}

func (lc *LeadController) DeleteLead(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var lead models.Lead
	if err := lc.DB.First(&lead, c.Params("id")).Error; err != nil {
		return utils.FailWarn(c, fiber.StatusNotFound, utils.CodeRecordNotFound, "Lead not found", logrus.Fields{"user_id": user.ID})
	}

	if err := lc.DB.Delete(&lead).Error; err != nil {
		return utils.FailError(c, fiber.StatusInternalServerError, utils.CodeDatabaseError, "Failed to delete lead", err, logrus.Fields{"user_id": user.ID, "lead_id": lead.ID})
	}

	return c.JSON(fiber.Map{"success": true, "message": "Lead deleted"})
}

// ImportLeads parses free-text bulk input, one lead per line, dedups against
// existing leads, and queues proposal generation for lines with matched
// service keywords.
func (lc *LeadController) ImportLeads(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var input struct {
		Text              string `json:"text" validate:"required"`
		GenerateProposals bool   `json:"generate_proposals"`
	}

	if err := c.BodyParser(&input); err != nil {
		return utils.FailWarn(c, fiber.StatusBadRequest, utils.CodeValidationFailed, "Invalid request body", logrus.Fields{"user_id": user.ID})
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.FailWarn(c, fiber.StatusBadRequest, utils.CodeValidationFailed, err.Error(), logrus.Fields{"user_id": user.ID})
	}

	parsed := utils.ParseBulkLeadData(input.Text)
	if len(parsed) == 0 {
		return utils.FailWarn(c, fiber.StatusBadRequest, utils.CodeValidationFailed, "No parseable leads found in input", logrus.Fields{"user_id": user.ID})
	}

	imported, updated := 0, 0
	var leadIDs []uint

	for _, p := range parsed {
		var existing models.Lead
		found := false
		if p.Email != "" {
			if err := lc.DB.Where("email = ?", strings.ToLower(p.Email)).First(&existing).Error; err == nil {
				found = true
			}
		}
		if !found && p.Phone != "" {
			if err := lc.DB.Where("phone = ?", p.Phone).First(&existing).Error; err == nil {
				found = true
			}
		}

		if found {
			if existing.Company == "" {
				existing.Company = p.Company
			}
			existing.ServiceKeywords = mergeTags(existing.ServiceKeywords, p.ServiceKeywords)
			existing.Notes = appendTimestampedNote(existing.Notes, "Bulk import: "+p.Line)
			if err := lc.DB.Save(&existing).Error; err != nil {
				lc.Logger.Printf("bulk import: failed to update lead %d: %v", existing.ID, err)
				continue
			}
			updated++
			leadIDs = append(leadIDs, existing.ID)
			continue
		}

		score := scoreCapturedLead(p.Email, p.Phone, strings.Join(p.ServiceKeywords, ", "), "", models.LeadSourceBulkImport)
		lead := models.Lead{
			Name:            p.Name,
			Email:           strings.ToLower(p.Email),
			Phone:           p.Phone,
			Company:         p.Company,
			Source:          models.LeadSourceBulkImport,
			Interest:        strings.Join(p.ServiceKeywords, ", "),
			Score:           score,
			Priority:        priorityForScore(score),
			ServiceKeywords: p.ServiceKeywords,
			Notes:           appendTimestampedNote("", "Bulk import: "+p.Line),
		}
		if err := lc.DB.Create(&lead).Error; err != nil {
			lc.Logger.Printf("bulk import: failed to create lead %q: %v", p.Name, err)
			continue
		}
		imported++
		leadIDs = append(leadIDs, lead.ID)

		if input.GenerateProposals && len(p.ServiceKeywords) > 0 {
			lc.enqueueJob(models.OutboxJobProposalGenerate, map[string]interface{}{
				"lead_id":       lead.ID,
				"created_by_id": user.ID,
			})
		}
	}

	return c.JSON(fiber.Map{
		"success":  true,
		"imported": imported,
		"updated":  updated,
		"skipped":  len(strings.Split(strings.TrimSpace(input.Text), "\n")) - imported - updated,
		"lead_ids": leadIDs,
	})
}

// enqueueJob writes a background side effect to the outbox. Failures are
// logged and swallowed: the caller's response never depends on them.
func (lc *LeadController) enqueueJob(jobType string, payload map[string]interface{}) {
	job := models.OutboxJob{
		JobType:       jobType,
		Payload:       payload,
		Status:        models.OutboxStatusPending,
		NextAttemptAt: utils.Pointer(time.Now()),
	}
	if err := lc.DB.Create(&job).Error; err != nil {
		lc.Logger.Printf("failed to enqueue %s job: %v", jobType, err)
	}
}

// scoreCapturedLead assigns a 0-100 quality score from field completeness and
// source.
func scoreCapturedLead(email, phone, interest, budget, source string) int {
	score := 50
	if email != "" {
		score += 15
	}
	if phone != "" {
		score += 10
	}
	if interest != "" {
		score += 10
	}
	if budget != "" {
		score += 10
	}
	switch source {
	case models.LeadSourceReferral:
		score += 15
	case models.LeadSourceWebsite:
		score += 5
	}
	if score > 100 {
		score = 100
	}
	return score
}

func priorityForScore(score int) string {
	switch {
	case score >= 80:
		return models.LeadPriorityHigh
	case score >= 60:
		return models.LeadPriorityMedium
	default:
		return models.LeadPriorityLow
	}
}

// capturedFields carries one capture submission into the dedup-merge path.
type capturedFields struct {
	Name     string
	Email    string
	Phone    string
	Source   string
	Interest string
	Notes    string
	Tags     []string
	Score    int
}

// mergeCapturedLead folds a repeat capture into an existing lead: the score
// keeps the max of old and new, the note is appended rather than replacing
// prior notes, tags are merged, and blank identity fields are backfilled.
func mergeCapturedLead(existing *models.Lead, in capturedFields) {
	if in.Score > existing.Score {
		existing.Score = in.Score
	}
	existing.Notes = appendTimestampedNote(existing.Notes, fmt.Sprintf("Captured again via %s. %s", in.Source, in.Notes))
	existing.Tags = mergeTags(existing.Tags, in.Tags)
	if existing.Name == "" {
		existing.Name = in.Name
	}
	if existing.Email == "" {
		existing.Email = in.Email
	}
	if existing.Phone == "" {
		existing.Phone = in.Phone
	}
	if in.Interest != "" {
		existing.Interest = in.Interest
	}
}

// appendTimestampedNote appends, never replaces, the notes field.
func appendTimestampedNote(existing, note string) string {
	note = strings.TrimSpace(note)
	if note == "" {
		return existing
	}
	entry := fmt.Sprintf("[%s] %s", time.Now().UTC().Format("2006-01-02 15:04"), note)
	if existing == "" {
		return entry
	}
	return existing + "\n" + entry
}

func mergeTags(existing, incoming []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, t := range existing {
		seen[t] = true
	}
	for _, t := range incoming {
		if t != "" && !seen[t] {
			existing = append(existing, t)
			seen[t] = true
		}
	}
	return existing
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return "unknown"
}
