package ai

import "unicode/utf8"

const (
	// MaxMessageLength is counted in characters after trimming.
	MaxMessageLength = 10000
	// HistoryWindow is how many prior messages are sent as context.
	HistoryWindow = 10
)

type Personality string

const (
	PersonalityProfessional Personality = "professional"
	PersonalityFriendly     Personality = "friendly"
	PersonalityConcise      Personality = "concise"
	PersonalityDetailed     Personality = "detailed"
)

var Personalities = []Personality{
	PersonalityProfessional,
	PersonalityFriendly,
	PersonalityConcise,
	PersonalityDetailed,
}

// NormalizePersonality maps unknown or empty values to friendly.
func NormalizePersonality(raw string) Personality {
	for _, p := range Personalities {
		if string(p) == raw {
			return p
		}
	}
	return PersonalityFriendly
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Request struct {
	Message     string
	History     []Message
	Personality string
}

type Tokens struct {
	Prompt     int `json:"prompt"`
	Completion int `json:"completion"`
	Total      int `json:"total"`
}

// Completion is what a provider returns for one call.
type Completion struct {
	Text   string
	Tokens Tokens
	Model  string
}

type Response struct {
	Text             string `json:"response"`
	Tokens           Tokens `json:"tokens"`
	Model            string `json:"model"`
	ProcessingTimeMs int64  `json:"processingTime"`
	IsMock           bool   `json:"isMock"`
}

type Status struct {
	Available  bool   `json:"available"`
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	Configured bool   `json:"configured"`
	Circuit    string `json:"circuit,omitempty"`
}

// estimateTokens is ceil(characters/4).
func estimateTokens(s string) int {
	return (utf8.RuneCountInString(s) + 3) / 4
}

// reportedTokens keeps the counts a provider reported and estimates both
// sides only when it reported none.
func reportedTokens(prompt, completion, total int, msgs []Message, text string) Tokens {
	if total <= 0 {
		total = prompt + completion
	}
	if total > 0 {
		return Tokens{Prompt: prompt, Completion: completion, Total: total}
	}
	est := Tokens{Completion: estimateTokens(text)}
	for _, m := range msgs {
		est.Prompt += estimateTokens(m.Content)
	}
	est.Total = est.Prompt + est.Completion
	return est
}
