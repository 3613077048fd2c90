package llm

import "strings"

// SystemPrompt is the default persona of the habit assistant.
const SystemPrompt = `You are Zelda, an intelligent and empathetic AI personal assistant inside a habit tracker. Keep your responses concise (2-3 sentences max), warm, and actionable. Use markdown formatting for emphasis (**bold**, *italic*) and bullet points when listing items. Be encouraging and focus on one main suggestion per response rather than overwhelming with information.`

// ActionGuardrails are appended to every prompt. Habit changes are handled
// before the model is asked, so it must never claim to have made one.
const ActionGuardrails = `IMPORTANT:
- You cannot add, complete, rename or delete habits yourself. Never say you did.
- If the user seems to want a habit change, tell them the exact phrase to say, e.g. "Add a habit to drink water" or "Mark reading as done".`

// FlattenPrompt renders messages as a single completion prompt for
// providers without a chat endpoint.
func FlattenPrompt(messages []Message, assistantName string) string {
	var b strings.Builder
	for _, m := range messages {
		switch m.Role {
		case "system":
			b.WriteString(m.Content)
			b.WriteString("\n\n")
		case "user":
			b.WriteString("User: ")
			b.WriteString(m.Content)
			b.WriteString("\n")
		case "assistant":
			b.WriteString(assistantName)
			b.WriteString(": ")
			b.WriteString(m.Content)
			b.WriteString("\n")
		}
	}
	b.WriteString(assistantName)
	b.WriteString(":")
	return b.String()
}
