package pipeline

import (
	"fmt"
	"strings"

	"github.com/chatgw/chatgateway/internal/store"
)

// RenderSystemPrompt assembles a BotProfile's fields into the text the
// adapter sends as SystemPrompt. Grounded on the teacher's
// internal/core/llm/prompt_builder.go BuildSystemPrompt: one
// strings.Builder section per knowledge-base ingredient, written in
// order and skipped when empty, rather than a single template string.
func RenderSystemPrompt(profile *store.BotProfile) string {
	var sb strings.Builder

	sb.WriteString(profile.Identity)

	if profile.Description != "" {
		sb.WriteString("\n\n")
		sb.WriteString(profile.Description)
	}

	if profile.Style != "" {
		fmt.Fprintf(&sb, "\n\nCommunication style: %s.", profile.Style)
	}

	if profile.PrimaryLanguage != "" {
		sb.WriteString("\n\nPrimary language: ")
		sb.WriteString(profile.PrimaryLanguage)
		if profile.SecondaryLanguage != "" {
			fmt.Fprintf(&sb, " (secondary: %s)", profile.SecondaryLanguage)
		}
	}
	for _, rule := range profile.LanguageRules {
		sb.WriteString("\n- ")
		sb.WriteString(rule)
	}

	if len(profile.KnowledgeBase) > 0 {
		sb.WriteString("\n\n### KNOWLEDGE BASE\n")
		for _, item := range profile.KnowledgeBase {
			fmt.Fprintf(&sb, "- %s: %s\n", item.Topic, item.Content)
		}
	}

	if len(profile.InitialInteractions) > 0 {
		sb.WriteString("\n### OPENING LINES\n")
		for _, line := range profile.InitialInteractions {
			sb.WriteString("- ")
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	}

	if len(profile.InteractionGuidelines) > 0 {
		sb.WriteString("\n### GUIDELINES\n")
		for _, g := range profile.InteractionGuidelines {
			sb.WriteString("- ")
			sb.WriteString(g)
			sb.WriteString("\n")
		}
	}

	if len(profile.ExampleResponses) > 0 {
		sb.WriteString("\n### EXAMPLE RESPONSES\n")
		for _, ex := range profile.ExampleResponses {
			fmt.Fprintf(&sb, "- When: %s\n  Respond: %s\n", ex.Scenario, ex.Response)
		}
	}

	if len(profile.EdgeCases) > 0 {
		sb.WriteString("\n### EDGE CASES\n")
		for _, ec := range profile.EdgeCases {
			fmt.Fprintf(&sb, "- If %s: %s\n", ec.Case, ec.Action)
		}
	}

	if profile.ToolConfig != nil {
		fmt.Fprintf(&sb, "\n### TOOL USAGE: %s\n%s\n", profile.ToolConfig.Name, profile.ToolConfig.Description)
		for _, purpose := range profile.ToolConfig.Purposes {
			sb.WriteString("- ")
			sb.WriteString(purpose)
			sb.WriteString("\n")
		}
	}

	if profile.PrivacyGuidelines != "" {
		sb.WriteString("\n### PRIVACY\n")
		sb.WriteString(profile.PrivacyGuidelines)
	}

	return sb.String()
}
