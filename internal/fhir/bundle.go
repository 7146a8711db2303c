// Package fhir emits the synthetic FHIR R4 bundle attached to every
// analysis. The bundle is display/copy material for the dashboard and the
// simulated EHR sync; nothing downstream consumes it.
package fhir

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"
)

//go:embed bundle.schema.json
var bundleSchema []byte

// Bundle represents a FHIR Bundle resource.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	ID           string        `json:"id"`
	Type         string        `json:"type"`
	Timestamp    *time.Time    `json:"timestamp,omitempty"`
	Entry        []BundleEntry `json:"entry"`
}

type BundleEntry struct {
	FullURL  string          `json:"fullUrl,omitempty"`
	Resource json.RawMessage `json:"resource"`
}

type Reference struct {
	Reference string `json:"reference"`
}

type Coding struct {
	System  string `json:"system,omitempty"`
	Code    string `json:"code"`
	Display string `json:"display,omitempty"`
}

type CodeableConcept struct {
	Coding []Coding `json:"coding,omitempty"`
	Text   string   `json:"text,omitempty"`
}

type Extension struct {
	URL          string `json:"url"`
	ValueString  string `json:"valueString,omitempty"`
	ValueInteger *int   `json:"valueInteger,omitempty"`
}

type patient struct {
	ResourceType string      `json:"resourceType"`
	ID           string      `json:"id"`
	Active       bool        `json:"active"`
	Extension    []Extension `json:"extension,omitempty"`
}

type encounter struct {
	ResourceType string            `json:"resourceType"`
	ID           string            `json:"id"`
	Status       string            `json:"status"`
	Class        Coding            `json:"class"`
	Type         []CodeableConcept `json:"type,omitempty"`
	Subject      Reference         `json:"subject"`
}

type qrItem struct {
	LinkID string     `json:"linkId"`
	Text   string     `json:"text,omitempty"`
	Answer []qrAnswer `json:"answer,omitempty"`
}

type qrAnswer struct {
	ValueString string `json:"valueString"`
}

type questionnaireResponse struct {
	ResourceType string    `json:"resourceType"`
	ID           string    `json:"id"`
	Status       string    `json:"status"`
	Subject      Reference `json:"subject"`
	Encounter    Reference `json:"encounter"`
	Authored     string    `json:"authored"`
	Item         []qrItem  `json:"item"`
}

type detectedIssue struct {
	ResourceType string          `json:"resourceType"`
	ID           string          `json:"id"`
	Status       string          `json:"status"`
	Code         CodeableConcept `json:"code"`
	Severity     string          `json:"severity"`
	Patient      Reference       `json:"patient"`
	Identified   string          `json:"identifiedDateTime"`
	Detail       string          `json:"detail"`
}

const ageExtensionURL = "http://truthshield.local/fhir/StructureDefinition/patient-age"

// Input is what an analysis contributes to the bundle.
type Input struct {
	Age       string
	VisitType string
	Report    string
	Critical  bool
	Answers   []string
}

// NewAnalysisBundle builds a collection bundle holding the anonymous
// patient, the visit, the flattened survey answers and the discrepancy
// report.
func NewAnalysisBundle(in Input, now time.Time) *Bundle {
	now = now.UTC()
	ts := now.Format(time.RFC3339)

	patientID := uuid.NewString()
	encounterID := uuid.NewString()
	subject := Reference{Reference: "Patient/" + patientID}

	p := patient{ResourceType: "Patient", ID: patientID, Active: true}
	if age := strings.TrimSpace(in.Age); age != "" {
		ext := Extension{URL: ageExtensionURL}
		if n, err := strconv.Atoi(age); err == nil {
			ext.ValueInteger = &n
		} else {
			ext.ValueString = age
		}
		p.Extension = []Extension{ext}
	}

	visit := strings.TrimSpace(in.VisitType)
	if visit == "" {
		visit = "Routine"
	}
	enc := encounter{
		ResourceType: "Encounter",
		ID:           encounterID,
		Status:       "in-progress",
		Class:        Coding{System: "http://terminology.hl7.org/CodeSystem/v3-ActCode", Code: "AMB", Display: "ambulatory"},
		Type:         []CodeableConcept{{Text: visit}},
		Subject:      subject,
	}

	items := make([]qrItem, 0, len(in.Answers))
	for i, a := range in.Answers {
		item := qrItem{LinkID: fmt.Sprintf("q%d", i+1)}
		if a != "" {
			item.Answer = []qrAnswer{{ValueString: a}}
		}
		items = append(items, item)
	}
	qr := questionnaireResponse{
		ResourceType: "QuestionnaireResponse",
		ID:           uuid.NewString(),
		Status:       "completed",
		Subject:      subject,
		Encounter:    Reference{Reference: "Encounter/" + encounterID},
		Authored:     ts,
		Item:         items,
	}

	severity := "moderate"
	if in.Critical {
		severity = "high"
	}
	issue := detectedIssue{
		ResourceType: "DetectedIssue",
		ID:           uuid.NewString(),
		Status:       "preliminary",
		Code:         CodeableConcept{Text: "Patient-reported vs documented discrepancy"},
		Severity:     severity,
		Patient:      subject,
		Identified:   ts,
		Detail:       in.Report,
	}

	b := &Bundle{
		ResourceType: "Bundle",
		ID:           uuid.NewString(),
		Type:         "collection",
		Timestamp:    &now,
	}
	for _, r := range []struct {
		kind, id string
		res      any
	}{
		{"Patient", p.ID, p},
		{"Encounter", enc.ID, enc},
		{"QuestionnaireResponse", qr.ID, qr},
		{"DetectedIssue", issue.ID, issue},
	} {
		raw, _ := json.Marshal(r.res)
		b.Entry = append(b.Entry, BundleEntry{FullURL: "urn:uuid:" + r.id, Resource: raw})
	}
	return b
}

// Validate checks a marshaled bundle against the embedded bundle schema.
func Validate(doc []byte) error {
	result, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(bundleSchema), gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("validation error: %w", err)
	}
	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return fmt.Errorf("bundle validation failed: %v", errs)
	}
	return nil
}

// Validate checks the encoded bundle against the embedded schema.
func (b *Bundle) Validate() error {
	doc, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encode bundle: %w", err)
	}
	return Validate(doc)
}

// ID extracts the bundle id from a bundle document after validating it.
func ID(doc []byte) (string, error) {
	if err := Validate(doc); err != nil {
		return "", err
	}
	var head struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(doc, &head); err != nil {
		return "", fmt.Errorf("decode bundle: %w", err)
	}
	return head.ID, nil
}
