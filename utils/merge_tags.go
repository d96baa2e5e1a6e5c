package utils

import (
	"strings"

	"cdmsuite/models"
)

// Friendly fallbacks so an unresolved token never leaks into an outgoing
// message.
const (
	defaultFirstName = "there"
	defaultCompany   = "your company"
	defaultService   = "our services"
	defaultTeam      = "our team"
)

// ResolveMergeTags substitutes the fixed personalization token set in step
// content against the lead's data. Substitution is plain text; there is no
// HTML escaping.
func ResolveMergeTags(content string, lead *models.Lead) string {
	assignedTo := defaultTeam
	if lead.AssignedTo != nil && lead.AssignedTo.Name != "" {
		assignedTo = lead.AssignedTo.Name
	}

	replacer := strings.NewReplacer(
		"{{firstName}}", orDefault(lead.FirstName(), defaultFirstName),
		"{{lastName}}", orDefault(lead.LastName(), ""),
		"{{email}}", orDefault(lead.Email, ""),
		"{{company}}", orDefault(lead.Company, defaultCompany),
		"{{phone}}", orDefault(lead.Phone, ""),
		"{{serviceType}}", orDefault(lead.Interest, defaultService),
		"{{budget}}", orDefault(lead.Budget, "your budget"),
		"{{timeline}}", orDefault(lead.Timeline, "your timeline"),
		"{{assignedTo}}", assignedTo,
	)
	return replacer.Replace(content)
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
