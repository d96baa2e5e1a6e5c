package utils

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"cdmsuite/models"
)

// ParsedLead is one structured record extracted from a bulk-import line.
type ParsedLead struct {
	Name            string   `json:"name"`
	Email           string   `json:"email"`
	Phone           string   `json:"phone"`
	Company         string   `json:"company"`
	ServiceKeywords []string `json:"service_keywords"`
	Line            string   `json:"line"`
}

var (
	emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

	// Handles separators -, ., space, an optional country code and optional parens
	phoneRe = regexp.MustCompile(`(\+?\d{1,3}[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}`)

	// Capitalized run ending in a legal/company suffix
	companySuffixRe = regexp.MustCompile(`[A-Z][\w&'.\-]*(?:\s+[A-Z&][\w&'.\-]*)*\s+(?:Ltd|Inc|Corp|Corporation|LLC|Llc|Co|Company|Agency|Group|Studio|Studios|Solutions|Media|Digital)\.?`)

	// Fallback heuristic: consecutive capitalized words
	capitalizedRunRe = regexp.MustCompile(`[A-Z][a-z]+(?:\s+[A-Z][a-z]+)+`)
)

type serviceMatch struct {
	Services []string
	Tier     string
}

// Keyword table driving service inference. More specific phrases carry richer
// tiers; matching is longest-keyword-first so they win over generic terms.
var serviceKeywordMap = map[string]serviceMatch{
	"social media management":    {Services: []string{"Social Media Management"}, Tier: "premium"},
	"social media":               {Services: []string{"Social Media Management"}, Tier: "standard"},
	"search engine optimization": {Services: []string{"SEO"}, Tier: "premium"},
	"seo":                        {Services: []string{"SEO"}, Tier: "standard"},
	"website redesign":           {Services: []string{"Website Design"}, Tier: "premium"},
	"web design":                 {Services: []string{"Website Design"}, Tier: "standard"},
	"web development":            {Services: []string{"Website Design"}, Tier: "standard"},
	"website":                    {Services: []string{"Website Design"}, Tier: "basic"},
	"ecommerce":                  {Services: []string{"Website Design"}, Tier: "premium"},
	"google ads":                 {Services: []string{"PPC Advertising"}, Tier: "standard"},
	"facebook ads":               {Services: []string{"PPC Advertising"}, Tier: "standard"},
	"paid ads":                   {Services: []string{"PPC Advertising"}, Tier: "basic"},
	"ppc":                        {Services: []string{"PPC Advertising"}, Tier: "standard"},
	"email marketing":            {Services: []string{"Email Marketing"}, Tier: "standard"},
	"newsletter":                 {Services: []string{"Email Marketing"}, Tier: "basic"},
	"content marketing":          {Services: []string{"Content Marketing"}, Tier: "standard"},
	"blog":                       {Services: []string{"Content Marketing"}, Tier: "basic"},
	"branding":                   {Services: []string{"Branding"}, Tier: "standard"},
	"logo":                       {Services: []string{"Branding"}, Tier: "basic"},
	"reputation management":      {Services: []string{"Reputation Management"}, Tier: "standard"},
	"reviews":                    {Services: []string{"Reputation Management"}, Tier: "basic"},
}

// Monthly prices in cents, per service and tier
var servicePriceTable = map[string]map[string]int64{
	"Website Design":          {"basic": 150000, "standard": 350000, "premium": 750000},
	"SEO":                     {"basic": 50000, "standard": 120000, "premium": 250000},
	"Social Media Management": {"basic": 40000, "standard": 80000, "premium": 150000},
	"PPC Advertising":         {"basic": 60000, "standard": 100000, "premium": 200000},
	"Email Marketing":         {"basic": 30000, "standard": 70000, "premium": 120000},
	"Content Marketing":       {"basic": 40000, "standard": 90000, "premium": 160000},
	"Branding":                {"basic": 30000, "standard": 90000, "premium": 180000},
	"Reputation Management":   {"basic": 25000, "standard": 60000, "premium": 110000},
}

// Built once at init: keywords sorted longest-first so specific phrases beat
// their generic substrings without re-sorting per parse call.
var sortedServiceKeywords []string

func init() {
	sortedServiceKeywords = make([]string, 0, len(serviceKeywordMap))
	for keyword := range serviceKeywordMap {
		sortedServiceKeywords = append(sortedServiceKeywords, keyword)
	}
	sort.Slice(sortedServiceKeywords, func(i, j int) bool {
		if len(sortedServiceKeywords[i]) != len(sortedServiceKeywords[j]) {
			return len(sortedServiceKeywords[i]) > len(sortedServiceKeywords[j])
		}
		return sortedServiceKeywords[i] < sortedServiceKeywords[j]
	})
}

// ParseBulkLeadData parses free-text bulk input, one lead per line. Lines
// yielding no name are dropped.
func ParseBulkLeadData(text string) []ParsedLead {
	var leads []ParsedLead
	for _, line := range strings.Split(text, "\n") {
		if lead := parseLeadLine(line); lead != nil {
			leads = append(leads, *lead)
		}
	}
	return leads
}

func parseLeadLine(line string) *ParsedLead {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	email := emailRe.FindString(line)

	// Strip the email before phone matching so its digits cannot confuse the
	// phone pattern
	withoutEmail := line
	if email != "" {
		withoutEmail = strings.Replace(withoutEmail, email, "", 1)
	}
	phone := strings.TrimSpace(phoneRe.FindString(withoutEmail))

	name := extractName(line, email, phone)
	if name == "" {
		return nil
	}

	return &ParsedLead{
		Name:            name,
		Email:           email,
		Phone:           phone,
		Company:         extractCompany(line, name, email),
		ServiceKeywords: ExtractServiceKeywords(line),
		Line:            line,
	}
}

// extractName takes the text preceding the first -/, delimiter, with any
// extracted email and phone stripped out.
func extractName(line, email, phone string) string {
	segment := line
	if idx := strings.IndexAny(line, "-,"); idx != -1 {
		segment = line[:idx]
	}
	if email != "" {
		segment = strings.Replace(segment, email, "", 1)
	}
	if phone != "" {
		segment = strings.Replace(segment, phone, "", 1)
	}
	return strings.Trim(segment, " \t|;:")
}

func extractCompany(line, name, email string) string {
	if match := companySuffixRe.FindString(line); match != "" && match != name {
		return strings.TrimSuffix(match, ".")
	}

	// No legal suffix; fall back to the first run of capitalized words that
	// is not the name we already extracted
	for _, match := range capitalizedRunRe.FindAllString(line, -1) {
		if match != name && !strings.Contains(email, strings.ToLower(match)) {
			return match
		}
	}
	return ""
}

// ExtractServiceKeywords scans the lowercased line against the keyword index,
// longest keyword first, collecting every match.
func ExtractServiceKeywords(line string) []string {
	lower := strings.ToLower(line)
	var matches []string
	for _, keyword := range sortedServiceKeywords {
		if strings.Contains(lower, keyword) {
			matches = append(matches, keyword)
		}
	}
	return matches
}

// MapServicesToProposalItems expands matched keywords into priced proposal
// line items. Deduplicated by service name: because keywords arrive
// longest-first, the most specific tier for a service wins. With no matches
// at all the proposal opens with a free consultation.
func MapServicesToProposalItems(keywords []string) []models.ProposalItem {
	var items []models.ProposalItem
	seen := make(map[string]bool)

	for _, keyword := range keywords {
		match, ok := serviceKeywordMap[keyword]
		if !ok {
			continue
		}
		for _, service := range match.Services {
			if seen[service] {
				continue
			}
			seen[service] = true
			items = append(items, models.ProposalItem{
				Service:     service,
				Tier:        match.Tier,
				Description: service + " (" + match.Tier + ")",
				Price:       servicePriceTable[service][match.Tier],
			})
		}
	}

	if len(items) == 0 {
		items = append(items, models.ProposalItem{
			Service:     "Initial Consultation",
			Tier:        "basic",
			Description: "Free discovery call to scope your needs",
			Price:       0,
		})
	}
	return items
}

// BuildProposalForLead turns a lead's matched service keywords into a priced
// draft proposal. Shared by the proposal endpoint and the outbox worker.
func BuildProposalForLead(lead *models.Lead, createdByID uint) *models.Proposal {
	name := lead.Name
	if name == "" {
		name = lead.Email
	}

	proposal := &models.Proposal{
		LeadID:      lead.ID,
		CreatedByID: createdByID,
		Title:       fmt.Sprintf("Service Proposal - %s", name),
		Status:      models.ProposalStatusDraft,
		Items:       MapServicesToProposalItems(lead.ServiceKeywords),
	}
	proposal.RecalculateTotal()
	return proposal
}
