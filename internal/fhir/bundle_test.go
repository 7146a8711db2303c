package fhir

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAnalysisBundle(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	b := NewAnalysisBundle(Input{
		Age:       "28",
		VisitType: "Injury Evaluation",
		Report:    "## 🚨 TruthShield Clinical Alert — CRITICAL",
		Critical:  true,
		Answers:   []string{"Very much", "", "Somewhat"},
	}, now)

	assert.Equal(t, "Bundle", b.ResourceType)
	assert.Equal(t, "collection", b.Type)
	assert.NotEmpty(t, b.ID)
	require.Len(t, b.Entry, 4)

	kinds := []string{}
	for _, e := range b.Entry {
		var head struct {
			ResourceType string `json:"resourceType"`
		}
		require.NoError(t, json.Unmarshal(e.Resource, &head))
		kinds = append(kinds, head.ResourceType)
	}
	assert.Equal(t, []string{"Patient", "Encounter", "QuestionnaireResponse", "DetectedIssue"}, kinds)

	var p patient
	require.NoError(t, json.Unmarshal(b.Entry[0].Resource, &p))
	require.Len(t, p.Extension, 1)
	require.NotNil(t, p.Extension[0].ValueInteger)
	assert.Equal(t, 28, *p.Extension[0].ValueInteger)

	var qr questionnaireResponse
	require.NoError(t, json.Unmarshal(b.Entry[2].Resource, &qr))
	require.Len(t, qr.Item, 3)
	assert.Equal(t, "q1", qr.Item[0].LinkID)
	assert.Equal(t, "Very much", qr.Item[0].Answer[0].ValueString)
	assert.Empty(t, qr.Item[1].Answer)
	assert.Equal(t, "2026-03-01T09:30:00Z", qr.Authored)

	var issue detectedIssue
	require.NoError(t, json.Unmarshal(b.Entry[3].Resource, &issue))
	assert.Equal(t, "high", issue.Severity)
	assert.Equal(t, "## 🚨 TruthShield Clinical Alert — CRITICAL", issue.Detail)
}

func TestNewAnalysisBundleNonNumericAgeAndDefaults(t *testing.T) {
	b := NewAnalysisBundle(Input{Age: "Unknown"}, time.Now())

	var p patient
	require.NoError(t, json.Unmarshal(b.Entry[0].Resource, &p))
	assert.Equal(t, "Unknown", p.Extension[0].ValueString)
	assert.Nil(t, p.Extension[0].ValueInteger)

	var enc encounter
	require.NoError(t, json.Unmarshal(b.Entry[1].Resource, &enc))
	assert.Equal(t, "Routine", enc.Type[0].Text)
}

func TestValidateAndID(t *testing.T) {
	b := NewAnalysisBundle(Input{Age: "65", Report: "ok"}, time.Now())
	doc, err := json.Marshal(b)
	require.NoError(t, err)

	require.NoError(t, Validate(doc))
	id, err := ID(doc)
	require.NoError(t, err)
	assert.Equal(t, b.ID, id)

	_, err = ID([]byte(`{"resourceType":"Patient","id":"x"}`))
	assert.ErrorContains(t, err, "bundle validation failed")

	_, err = ID([]byte(`{"resourceType":"Bundle","id":"","type":"collection","entry":[]}`))
	assert.Error(t, err)

	_, err = ID([]byte(`not json`))
	assert.Error(t, err)
}

func TestBundleValidate(t *testing.T) {
	for _, in := range []Input{
		{Age: "16", VisitType: "Wellness Exam", Report: "r", Answers: []string{"Yes", ""}},
		{Age: "unknown", Critical: true},
		{},
	} {
		assert.NoError(t, NewAnalysisBundle(in, time.Now()).Validate(), "%+v", in)
	}

	empty := &Bundle{ResourceType: "Bundle", ID: "b1", Type: "collection"}
	assert.Error(t, empty.Validate())
}
