package generate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/halcyonlabs/structgen/internal/core/domain"
)

// PromptTemplateID names the prompt template recorded with every provenance
// entry, so operators can correlate log entries with template revisions.
const PromptTemplateID = "structured-output/v1"

// BuildPrompt renders the task prompt with stage context.
func BuildPrompt(task string, stage domain.StageContext) string {
	var b strings.Builder
	b.WriteString(task)

	if len(stage.AdditionalContext) > 0 {
		b.WriteString("\n\nContext:\n")
		keys := make([]string, 0, len(stage.AdditionalContext))
		for k := range stage.AdditionalContext {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %s\n", k, stage.AdditionalContext[k])
		}
	}

	return b.String()
}

// BuildSystemPrompt embeds the target schema and, from the second attempt
// onward, the previous attempt's violations for model self-correction.
// Feedback covers only the immediately preceding attempt.
func BuildSystemPrompt(schema domain.SchemaDescriptor, feedback []domain.ValidationError) string {
	var b strings.Builder

	b.WriteString("You produce structured output for a research workflow.\n")
	fmt.Fprintf(&b, "Respond with a single JSON document conforming to the %q schema below.\n", schema.Name)
	if schema.Description != "" {
		fmt.Fprintf(&b, "Schema purpose: %s\n", schema.Description)
	}
	b.WriteString("Do not include prose, explanations, or markdown outside the JSON document.\n\n")
	b.WriteString("JSON Schema:\n")
	b.Write(schema.Schema)
	b.WriteString("\n")

	if len(feedback) > 0 {
		b.WriteString("\nYour previous response failed validation. Fix every violation:\n")
		for _, v := range feedback {
			path := v.Path
			if path == "" {
				path = "(document root)"
			}
			fmt.Fprintf(&b, "- %s: %s\n", path, v.Message)
		}
	}

	return b.String()
}
