package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"cdmsuite/models"
)

func TestResolveMergeTags(t *testing.T) {
	lead := &models.Lead{
		Name:     "John Smith",
		Email:    "john@acme.com",
		Phone:    "876-541-3595",
		Company:  "Acme Corp",
		Interest: "seo",
		Budget:   "$2000/mo",
		Timeline: "next quarter",
	}

	content := "Hi {{firstName}} {{lastName}}, helping {{company}} with {{serviceType}} within {{budget}} by {{timeline}}. Reach us at {{email}} or {{phone}}. - {{assignedTo}}"
	got := ResolveMergeTags(content, lead)

	assert.Equal(t, "Hi John Smith, helping Acme Corp with seo within $2000/mo by next quarter. Reach us at john@acme.com or 876-541-3595. - our team", got)
}

func TestResolveMergeTagsDefaults(t *testing.T) {
	got := ResolveMergeTags("Hi {{firstName}} at {{company}}, about {{serviceType}}", &models.Lead{})
	assert.Equal(t, "Hi there at your company, about our services", got)
}

func TestResolveMergeTagsAssignedTo(t *testing.T) {
	lead := &models.Lead{
		Name:       "Jane Doe",
		AssignedTo: &models.User{Name: "Sam Rivera"},
	}
	got := ResolveMergeTags("{{assignedTo}} will be in touch, {{firstName}}", lead)
	assert.Equal(t, "Sam Rivera will be in touch, Jane", got)
}
