package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBulkLeadData(t *testing.T) {
	text := "John Smith - Acme Corp, 876-541-3595, john@acme.com - needs website and SEO\n" +
		"\n" +
		"Jane Doe, (555) 123-4567, interested in social media management\n" +
		"nobody@nowhere.com\n"

	leads := ParseBulkLeadData(text)
	require.Len(t, leads, 2)

	john := leads[0]
	assert.Equal(t, "John Smith", john.Name)
	assert.Equal(t, "john@acme.com", john.Email)
	assert.Equal(t, "876-541-3595", john.Phone)
	assert.Equal(t, "Acme Corp", john.Company)
	assert.Equal(t, []string{"website", "seo"}, john.ServiceKeywords)

	jane := leads[1]
	assert.Equal(t, "Jane Doe", jane.Name)
	assert.Empty(t, jane.Email)
	assert.Equal(t, "(555) 123-4567", jane.Phone)
	assert.Empty(t, jane.Company)
	assert.Equal(t, []string{"social media management", "social media"}, jane.ServiceKeywords)
}

func TestExtractServiceKeywordsLongestFirst(t *testing.T) {
	keywords := ExtractServiceKeywords("Need seo help, a blog and a newsletter")

	// Longer phrases come before shorter ones
	assert.Equal(t, []string{"newsletter", "blog", "seo"}, keywords)
}

func TestMapServicesToProposalItems(t *testing.T) {
	t.Run("dedupes by service keeping the most specific tier", func(t *testing.T) {
		items := MapServicesToProposalItems([]string{"social media management", "social media"})

		require.Len(t, items, 1)
		assert.Equal(t, "Social Media Management", items[0].Service)
		assert.Equal(t, "premium", items[0].Tier)
		assert.Equal(t, int64(150000), items[0].Price)
	})

	t.Run("multiple services", func(t *testing.T) {
		items := MapServicesToProposalItems([]string{"website", "seo"})

		require.Len(t, items, 2)
		assert.Equal(t, "Website Design", items[0].Service)
		assert.Equal(t, "basic", items[0].Tier)
		assert.Equal(t, "SEO", items[1].Service)
		assert.Equal(t, "standard", items[1].Tier)
	})

	t.Run("no matches falls back to consultation", func(t *testing.T) {
		items := MapServicesToProposalItems(nil)

		require.Len(t, items, 1)
		assert.Equal(t, "Initial Consultation", items[0].Service)
		assert.Equal(t, int64(0), items[0].Price)
	})

	t.Run("unknown keywords are ignored", func(t *testing.T) {
		items := MapServicesToProposalItems([]string{"skywriting", "logo"})

		require.Len(t, items, 1)
		assert.Equal(t, "Branding", items[0].Service)
		assert.Equal(t, "basic", items[0].Tier)
	})
}
