package utils

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cdmsuite/models"
)

func testGenerator(endpoint string) *SequenceGenerator {
	return &SequenceGenerator{
		client:   &http.Client{Timeout: 5 * time.Second},
		logger:   log.New(os.Stdout, "TEST: ", log.LstdFlags),
		endpoint: endpoint,
		apiKey:   "test-key",
		model:    "test-model",
		temp:     0.7,
	}
}

func completionServer(t *testing.T, sequence generatedSequence) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		content, err := json.Marshal(sequence)
		require.NoError(t, err)

		resp := map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": string(content)}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func testLead() *models.Lead {
	return &models.Lead{
		Name:     "John Smith",
		Email:    "john@acme.com",
		Company:  "Acme Corp",
		Interest: "seo",
		Score:    75,
	}
}

func TestGenerateSequenceFromAPI(t *testing.T) {
	server := completionServer(t, generatedSequence{
		Name:        "SEO Kickoff",
		Description: "Three-touch SEO nurture",
		Type:        "email",
		Steps: []generatedStep{
			{StepType: "email", Title: "Intro", Subject: "Hello", Content: "Hi {{firstName}}", DelayAmount: 0, DelayUnit: "days", DelayFrom: "previous", Reasoning: "warm open"},
			{StepType: "email", Title: "Follow up", Subject: "Re: Hello", Content: "Following up", DelayAmount: 3, DelayUnit: "days", DelayFrom: "previous"},
		},
	})
	defer server.Close()

	g := testGenerator(server.URL)
	sequence := g.GenerateSequence(context.Background(), testLead(), models.SequenceTypeEmail)

	require.NotNil(t, sequence)
	assert.Equal(t, "SEO Kickoff", sequence.Name)
	assert.Equal(t, models.SequenceTypeEmail, sequence.Type)
	assert.Equal(t, models.SequenceStatusPending, sequence.Status)
	assert.True(t, sequence.AIGenerated)
	assert.NotEmpty(t, sequence.AIPrompt)

	require.Len(t, sequence.Steps, 2)
	assert.Equal(t, 1, sequence.Steps[0].Order)
	assert.True(t, sequence.Steps[0].AISuggested)
	assert.Equal(t, "warm open", sequence.Steps[0].AIReasoning)
	assert.True(t, sequence.Steps[0].Active)
}

func TestGenerateSequenceCoercesWrongType(t *testing.T) {
	server := completionServer(t, generatedSequence{
		Name: "Wrong channel",
		Type: "email",
		Steps: []generatedStep{
			{StepType: "sms", Title: "Text", Content: "Hi there", DelayAmount: 0, DelayUnit: "days", DelayFrom: "previous"},
		},
	})
	defer server.Close()

	g := testGenerator(server.URL)
	sequence := g.GenerateSequence(context.Background(), testLead(), models.SequenceTypeSMS)

	require.NotNil(t, sequence)
	assert.Equal(t, models.SequenceTypeSMS, sequence.Type)
	assert.True(t, sequence.AIGenerated)
}

func TestGenerateSequenceMixedWithoutBothChannelsFallsBack(t *testing.T) {
	// Mixed result with only email steps must be rejected in favor of the
	// deterministic template
	server := completionServer(t, generatedSequence{
		Name: "Not actually mixed",
		Type: "mixed",
		Steps: []generatedStep{
			{StepType: "email", Title: "One", Subject: "S1", Content: "C1", DelayUnit: "days", DelayFrom: "previous"},
			{StepType: "email", Title: "Two", Subject: "S2", Content: "C2", DelayAmount: 2, DelayUnit: "days", DelayFrom: "previous"},
		},
	})
	defer server.Close()

	g := testGenerator(server.URL)
	sequence := g.GenerateSequence(context.Background(), testLead(), models.SequenceTypeMixed)

	require.NotNil(t, sequence)
	assert.False(t, sequence.AIGenerated)
	assert.Equal(t, models.SequenceTypeMixed, sequence.Type)

	emails, smses := 0, 0
	for _, step := range sequence.Steps {
		switch step.StepType {
		case models.StepTypeEmail:
			emails++
		case models.StepTypeSMS:
			smses++
		}
	}
	assert.Greater(t, emails, 0)
	assert.Greater(t, smses, 0)
}

func TestGenerateSequenceNetworkFailureFallsBack(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	server.Close() // connection refused

	g := testGenerator(server.URL)
	sequence := g.GenerateSequence(context.Background(), testLead(), models.SequenceTypeEmail)

	require.NotNil(t, sequence)
	assert.False(t, sequence.AIGenerated)
	assert.Equal(t, models.SequenceTypeEmail, sequence.Type)
	assert.Len(t, sequence.Steps, 5)
}

func TestFallbackSequenceInterpolatesLead(t *testing.T) {
	sequence := FallbackSequence(testLead(), models.SequenceTypeEmail)

	require.Len(t, sequence.Steps, 5)
	assert.Equal(t, "Email Nurture - Acme Corp", sequence.Name)
	assert.Contains(t, sequence.Steps[0].Content, "Hi John")
	assert.Contains(t, sequence.Steps[0].Subject, "Acme Corp")
	assert.Equal(t, models.SequenceStatusPending, sequence.Status)

	// Every step is immediately executable
	for _, step := range sequence.Steps {
		assert.True(t, step.Active)
		require.NoError(t, step.Validate())
	}
}

func TestFallbackSequenceSMS(t *testing.T) {
	sequence := FallbackSequence(&models.Lead{}, models.SequenceTypeSMS)

	require.Len(t, sequence.Steps, 3)
	assert.Equal(t, "SMS Nurture - your business", sequence.Name)
	assert.Contains(t, sequence.Steps[0].Content, "Hi there")
	for _, step := range sequence.Steps {
		assert.Equal(t, models.StepTypeSMS, step.StepType)
	}
}
