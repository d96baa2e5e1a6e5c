package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"cdmsuite/config"
	"cdmsuite/models"
)

// SequenceGenerator produces nurture sequences for a lead: best-effort via
// the chat-completion collaborator, guaranteed via deterministic templates.
// GenerateSequence never returns an error to its caller.
type SequenceGenerator struct {
	client   *http.Client
	logger   *log.Logger
	endpoint string
	apiKey   string
	model    string
	temp     float64
}

func NewSequenceGenerator(logger *log.Logger) *SequenceGenerator {
	timeout := time.Duration(config.AppConfig.AI.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &SequenceGenerator{
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
		endpoint: config.AppConfig.AI.APIURL,
		apiKey:   config.AppConfig.AI.APIKey,
		model:    config.AppConfig.AI.Model,
		temp:     config.AppConfig.AI.Temperature,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
	Temperature float64 `json:"temperature"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// generatedSequence is the JSON contract the collaborator must return.
type generatedSequence struct {
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	Type           string          `json:"type"`
	TargetAudience string          `json:"targetAudience"`
	Steps          []generatedStep `json:"steps"`
	Reasoning      string          `json:"reasoning"`
}

type generatedStep struct {
	StepType    string `json:"stepType"`
	Title       string `json:"title"`
	Subject     string `json:"subject,omitempty"`
	Content     string `json:"content"`
	DelayAmount int    `json:"delayAmount"`
	DelayUnit   string `json:"delayUnit"`
	DelayFrom   string `json:"delayFrom"`
	Reasoning   string `json:"reasoning,omitempty"`
}

// GenerateSequence returns a well-formed pending sequence for the lead. Any
// failure on the generative path (network, parse, structural validation)
// falls through to the deterministic template for the requested channel.
func (g *SequenceGenerator) GenerateSequence(ctx context.Context, lead *models.Lead, preferredType string) *models.Sequence {
	sequence, err := g.generateFromAPI(ctx, lead, preferredType)
	if err != nil {
		g.logger.Printf("AI sequence generation failed, using template fallback: %v", err)
		return FallbackSequence(lead, preferredType)
	}
	return sequence
}

func (g *SequenceGenerator) generateFromAPI(ctx context.Context, lead *models.Lead, preferredType string) (*models.Sequence, error) {
	prompt := buildSequencePrompt(lead, preferredType)

	reqBody := chatCompletionRequest{
		Model: g.model,
		Messages: []chatMessage{
			{Role: "system", Content: "You are a marketing automation specialist for a digital agency. Respond with a single JSON object only."},
			{Role: "user", Content: prompt},
		},
		Temperature: g.temp,
	}
	reqBody.ResponseFormat.Type = "json_object"

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("completion endpoint returned %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var completion chatCompletionResponse
	if err := json.Unmarshal(body, &completion); err != nil {
		return nil, fmt.Errorf("invalid completion envelope: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("completion returned no choices")
	}

	var generated generatedSequence
	if err := json.Unmarshal([]byte(completion.Choices[0].Message.Content), &generated); err != nil {
		return nil, fmt.Errorf("invalid sequence JSON: %w", err)
	}

	return g.buildSequence(lead, preferredType, prompt, generated)
}

// buildSequence validates the generated structure against the requested
// channel and converts it into a pending sequence.
func (g *SequenceGenerator) buildSequence(lead *models.Lead, preferredType, prompt string, generated generatedSequence) (*models.Sequence, error) {
	if len(generated.Steps) == 0 {
		return nil, fmt.Errorf("generated sequence has no steps")
	}

	// A wrong top-level type is coerced, not rejected
	if generated.Type != preferredType {
		g.logger.Printf("generated sequence type %q does not match requested %q, coercing", generated.Type, preferredType)
		generated.Type = preferredType
	}

	// Mixed must actually mix channels; a single-channel result is a hard
	// failure that falls through to the fallback
	if preferredType == models.SequenceTypeMixed {
		emails, smses := 0, 0
		for _, step := range generated.Steps {
			switch step.StepType {
			case models.StepTypeEmail:
				emails++
			case models.StepTypeSMS:
				smses++
			}
		}
		if emails == 0 || smses == 0 {
			return nil, fmt.Errorf("mixed sequence requires at least one email and one sms step, got %d/%d", emails, smses)
		}
	}

	steps := make([]models.SequenceStep, 0, len(generated.Steps))
	for i, gs := range generated.Steps {
		step, err := models.NewSequenceStep(i+1, gs.StepType, gs.Title, gs.Subject, gs.Content, gs.DelayAmount, gs.DelayUnit, gs.DelayFrom)
		if err != nil {
			return nil, fmt.Errorf("generated step %d: %w", i+1, err)
		}
		step.AISuggested = true
		step.AIReasoning = gs.Reasoning
		steps = append(steps, step)
	}

	name := generated.Name
	if name == "" {
		name = fmt.Sprintf("%s outreach for %s", capitalize(preferredType), orDefault(lead.Company, "new lead"))
	}

	return &models.Sequence{
		Name:           name,
		Description:    generated.Description,
		Type:           preferredType,
		TargetAudience: generated.TargetAudience,
		AIGenerated:    true,
		AIPrompt:       prompt,
		Status:         models.SequenceStatusPending,
		Steps:          steps,
	}, nil
}

func buildSequencePrompt(lead *models.Lead, preferredType string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Create a %s nurture sequence for this lead:\n", preferredType)
	fmt.Fprintf(&b, "- Name: %s\n", orDefault(lead.Name, "unknown"))
	fmt.Fprintf(&b, "- Company: %s\n", orDefault(lead.Company, "unknown"))
	fmt.Fprintf(&b, "- Interest: %s\n", orDefault(lead.Interest, "general marketing services"))
	fmt.Fprintf(&b, "- Source: %s\n", orDefault(lead.Source, "unknown"))
	fmt.Fprintf(&b, "- Score: %d\n\n", lead.Score)

	b.WriteString("Return a JSON object: {name, description, type, targetAudience, steps, reasoning}. ")
	b.WriteString("Each step: {stepType, title, subject, content, delayAmount, delayUnit, delayFrom, reasoning}. ")
	b.WriteString("delayUnit is one of minutes/hours/days/weeks; delayFrom is previous or start. ")

	switch preferredType {
	case models.SequenceTypeEmail:
		b.WriteString("All steps must be email steps. Subjects must be 70 characters or fewer.")
	case models.SequenceTypeSMS:
		b.WriteString("All steps must be sms steps. SMS content must be 160 characters or fewer.")
	case models.SequenceTypeMixed:
		b.WriteString("Alternate between email and sms steps; include at least one of each. Email subjects max 70 characters, sms content max 160 characters.")
	default:
		b.WriteString("Steps may be task or reminder steps with actionable content.")
	}
	return b.String()
}

// FallbackSequence is the deterministic template path. It always returns a
// well-formed 3-to-5-step sequence with the lead's details interpolated.
func FallbackSequence(lead *models.Lead, preferredType string) *models.Sequence {
	firstName := orDefault(lead.FirstName(), "there")
	company := orDefault(lead.Company, "your business")
	interest := orDefault(lead.Interest, "your marketing")

	var steps []models.SequenceStep
	var name, description string

	switch preferredType {
	case models.SequenceTypeSMS:
		name = "SMS Nurture - " + company
		description = "Three-touch SMS follow-up for new leads"
		steps = fallbackSMSSteps(firstName, company, interest)
	case models.SequenceTypeMixed:
		name = "Mixed Outreach - " + company
		description = "Email and SMS touchpoints for engaged leads"
		steps = fallbackMixedSteps(firstName, company, interest)
	default:
		name = "Email Nurture - " + company
		description = "Five-touch email nurture for new leads"
		steps = fallbackEmailSteps(firstName, company, interest)
	}

	return &models.Sequence{
		Name:           name,
		Description:    description,
		Type:           preferredType,
		TargetAudience: interest,
		Status:         models.SequenceStatusPending,
		Steps:          steps,
	}
}

func fallbackEmailSteps(firstName, company, interest string) []models.SequenceStep {
	return []models.SequenceStep{
		{
			Order: 1, StepType: models.StepTypeEmail, Active: true,
			Title:   "Introduction",
			Subject: fmt.Sprintf("Helping %s grow", company),
			Content: fmt.Sprintf("Hi %s,\n\nThanks for reaching out about %s. I took a quick look at %s and have a few ideas I'd love to share. Do you have 15 minutes this week?\n", firstName, interest, company),
			DelayAmount: 0, DelayUnit: models.DelayUnitDays, DelayFrom: models.DelayFromPrevious,
		},
		{
			Order: 2, StepType: models.StepTypeEmail, Active: true,
			Title:   "Value follow-up",
			Subject: fmt.Sprintf("3 quick wins for %s", company),
			Content: fmt.Sprintf("Hi %s,\n\nFollowing up with three quick wins we typically find for businesses investing in %s. Happy to walk you through them on a short call.\n", firstName, interest),
			DelayAmount: 3, DelayUnit: models.DelayUnitDays, DelayFrom: models.DelayFromPrevious,
		},
		{
			Order: 3, StepType: models.StepTypeEmail, Active: true,
			Title:   "Case study",
			Subject: "How we grew a client like you by 40%",
			Content: fmt.Sprintf("Hi %s,\n\nWanted to share a recent result: a client in a similar space saw a 40%% lift after we reworked their %s. The full story is a 2-minute read - want me to send it over?\n", firstName, interest),
			DelayAmount: 4, DelayUnit: models.DelayUnitDays, DelayFrom: models.DelayFromPrevious,
		},
		{
			Order: 4, StepType: models.StepTypeEmail, Active: true,
			Title:   "Check-in",
			Subject: fmt.Sprintf("Still thinking about %s?", interest),
			Content: fmt.Sprintf("Hi %s,\n\nJust checking in - is improving %s still on the roadmap for %s this quarter? If the timing is off, let me know what works better.\n", firstName, interest, company),
			DelayAmount: 5, DelayUnit: models.DelayUnitDays, DelayFrom: models.DelayFromPrevious,
		},
		{
			Order: 5, StepType: models.StepTypeEmail, Active: true,
			Title:   "Closing the loop",
			Subject: "Should I close your file?",
			Content: fmt.Sprintf("Hi %s,\n\nI haven't heard back, so I'll assume %s is covered for now. If anything changes, my door is open - just reply to this email.\n", firstName, interest),
			DelayAmount: 7, DelayUnit: models.DelayUnitDays, DelayFrom: models.DelayFromPrevious,
		},
	}
}

func fallbackSMSSteps(firstName, company, interest string) []models.SequenceStep {
	return []models.SequenceStep{
		{
			Order: 1, StepType: models.StepTypeSMS, Active: true,
			Title:   "Intro text",
			Content: fmt.Sprintf("Hi %s! Thanks for your interest in %s for %s. When's a good time for a quick call?", firstName, interest, company),
			DelayAmount: 0, DelayUnit: models.DelayUnitDays, DelayFrom: models.DelayFromPrevious,
		},
		{
			Order: 2, StepType: models.StepTypeSMS, Active: true,
			Title:   "Follow-up text",
			Content: fmt.Sprintf("Hi %s, following up on %s - we have a few openings this week if you'd like a free strategy call.", firstName, interest),
			DelayAmount: 2, DelayUnit: models.DelayUnitDays, DelayFrom: models.DelayFromPrevious,
		},
		{
			Order: 3, StepType: models.StepTypeSMS, Active: true,
			Title:   "Final text",
			Content: fmt.Sprintf("Last note from us, %s! Reply anytime if you want help with %s. Good luck!", firstName, interest),
			DelayAmount: 4, DelayUnit: models.DelayUnitDays, DelayFrom: models.DelayFromPrevious,
		},
	}
}

func fallbackMixedSteps(firstName, company, interest string) []models.SequenceStep {
	return []models.SequenceStep{
		{
			Order: 1, StepType: models.StepTypeEmail, Active: true,
			Title:   "Introduction email",
			Subject: fmt.Sprintf("Ideas for %s", company),
			Content: fmt.Sprintf("Hi %s,\n\nThanks for reaching out about %s. I pulled together a few ideas for %s - do you have 15 minutes this week to run through them?\n", firstName, interest, company),
			DelayAmount: 0, DelayUnit: models.DelayUnitDays, DelayFrom: models.DelayFromPrevious,
		},
		{
			Order: 2, StepType: models.StepTypeSMS, Active: true,
			Title:   "Text nudge",
			Content: fmt.Sprintf("Hi %s, just sent you an email about %s. Worth a quick look when you have a minute!", firstName, interest),
			DelayAmount: 2, DelayUnit: models.DelayUnitDays, DelayFrom: models.DelayFromPrevious,
		},
		{
			Order: 3, StepType: models.StepTypeEmail, Active: true,
			Title:   "Value email",
			Subject: fmt.Sprintf("3 quick wins for %s", company),
			Content: fmt.Sprintf("Hi %s,\n\nHere are three quick wins we typically find for businesses investing in %s. Happy to walk through them whenever suits.\n", firstName, interest),
			DelayAmount: 3, DelayUnit: models.DelayUnitDays, DelayFrom: models.DelayFromPrevious,
		},
		{
			Order: 4, StepType: models.StepTypeSMS, Active: true,
			Title:   "Text check-in",
			Content: fmt.Sprintf("Hi %s, any thoughts on those ideas for %s? Happy to jump on a quick call.", firstName, company),
			DelayAmount: 4, DelayUnit: models.DelayUnitDays, DelayFrom: models.DelayFromPrevious,
		},
		{
			Order: 5, StepType: models.StepTypeEmail, Active: true,
			Title:   "Closing email",
			Subject: "Should I close your file?",
			Content: fmt.Sprintf("Hi %s,\n\nI haven't heard back, so I'll assume %s is covered for now. If anything changes, just reply to this email.\n", firstName, interest),
			DelayAmount: 5, DelayUnit: models.DelayUnitDays, DelayFrom: models.DelayFromPrevious,
		},
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
