package answer

import (
	"fmt"

	"github.com/bull/clinical-rag/internal/provider"
)

// SystemInstruction grounds answers in the retrieved context.
const SystemInstruction = "You are a clinical assistant. Use provided context to answer. Always cite the page number found in brackets."

// PromptStyle selects how context and question are laid out for a provider.
type PromptStyle int

const (
	// StyleSystemUser sends the fixed system instruction plus a user message.
	StyleSystemUser PromptStyle = iota
	// StyleUserOnly sends a single user message embedding context and question.
	StyleUserOnly
)

// BuildMessages assembles the grounded prompt for style.
func BuildMessages(style PromptStyle, contextBlock, question string) []provider.Message {
	if style == StyleUserOnly {
		return []provider.Message{{
			Role:    provider.RoleUser,
			Content: fmt.Sprintf("Use this text to answer: %s\n\nQuestion: %s", contextBlock, question),
		}}
	}
	return []provider.Message{
		{Role: provider.RoleSystem, Content: SystemInstruction},
		{Role: provider.RoleUser, Content: fmt.Sprintf("Context:\n%s\n\nQuestion: %s", contextBlock, question)},
	}
}
