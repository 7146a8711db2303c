package discrepancy

import (
	"fmt"
	"strings"
)

const systemPrompt = `You are TruthShield Clinical AI. Your role is identify potentially life-threatening or financially high-risk discrepancies.
CRITICAL: BE EXTREMELY CONCISE. Avoid long explanations. Frame discrepancies as "opportunities for conversation."
`

const analysisPrompt = `Analyze the survey vs. clinical notes. Identify ALL discrepancies.
BE EXTREMELY BRIEF. Use a simple list.

## Anonymous Patient Survey
%s

## Prior Clinical Notes
%s

## Instructions
For each discrepancy found, provide ONLY:
1. **Category**
2. **Fact Mapping**: (Survey says vs. Notes say)
3. **Severity**: CRITICAL | HIGH | MODERATE
4. **Reasoning**: (One short sentence)
5. **Approach**: (Short MI opener)

Keep the entire output under 150 tokens.
`

// Placeholder is the report shown when no model answer is available.
const Placeholder = "### ⚠️ MedGemma Intelligence Core Not Loaded\nTruthShield is currently synchronizing AI weights. Analysis will be available once the clinical model is initialized."

// SystemPrompt returns the system message used for live analysis.
func SystemPrompt() string { return systemPrompt }

// Prompt renders the live analysis prompt. Answered MCQs are appended to
// the survey as "- Q{n}: {answer}" lines; blank answers are skipped.
func Prompt(survey, notes string, answers []*string) string {
	var b strings.Builder
	b.WriteString(survey)
	b.WriteString("\n\nSTRUCTURED MCQS:")
	for i, a := range answers {
		if a == nil || *a == "" {
			continue
		}
		fmt.Fprintf(&b, "\n- Q%d: %s", i+1, *a)
	}
	return fmt.Sprintf(analysisPrompt, b.String(), notes)
}
