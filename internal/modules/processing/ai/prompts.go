package ai

import "github.com/aiassist/core/internal/models"

var systemPrompts = map[Personality]string{
	PersonalityProfessional: `You are a professional AI assistant. Respond in a formal, business-appropriate manner.
Be precise, thorough, and maintain a professional tone. Focus on accuracy and clarity.`,
	PersonalityFriendly: `You are a friendly and helpful AI assistant. Be warm, approachable, and conversational.
Use a casual but respectful tone. Feel free to use appropriate emojis occasionally.`,
	PersonalityConcise: `You are a concise AI assistant. Provide brief, to-the-point responses.
Avoid unnecessary elaboration. Use bullet points when listing multiple items.`,
	PersonalityDetailed: `You are a detailed AI assistant. Provide comprehensive, thorough responses.
Include relevant context, examples, and explanations. Break down complex topics step by step.`,
}

func SystemPrompt(p Personality) string {
	if prompt, ok := systemPrompts[p]; ok {
		return prompt
	}
	return systemPrompts[PersonalityFriendly]
}

// BuildMessages assembles the provider prompt: the system preamble, the last
// HistoryWindow history entries without system ones, then the user message.
func BuildMessages(systemPrompt string, history []Message, userMessage string) []Message {
	if len(history) > HistoryWindow {
		history = history[len(history)-HistoryWindow:]
	}
	out := make([]Message, 0, len(history)+2)
	out = append(out, Message{Role: models.RoleMessageSystem, Content: systemPrompt})
	for _, m := range history {
		if m.Role == models.RoleMessageSystem {
			continue
		}
		out = append(out, m)
	}
	return append(out, Message{Role: models.RoleMessageUser, Content: userMessage})
}

// HistoryFrom converts stored conversation messages into prompt history.
func HistoryFrom(messages []models.Message) []Message {
	out := make([]Message, 0, len(messages))
	for _, m := range messages {
		out = append(out, Message{Role: m.Role, Content: m.Content})
	}
	return out
}
