package ai

import (
	"context"
	"hash/fnv"
	"regexp"
	"strings"
	"time"
)

const mockModel = "mock-model"

type messageKind string

const (
	kindGreeting messageKind = "greeting"
	kindQuestion messageKind = "question"
	kindTask     messageKind = "task"
	kindDefault  messageKind = "default"
)

var mockResponses = map[messageKind][]string{
	kindGreeting: {
		"Hello! How can I assist you today?",
		"Hi there! I'm here to help. What would you like to know?",
		"Greetings! I'm your AI assistant. What can I do for you?",
	},
	kindQuestion: {
		"That's a great question! Based on my knowledge, here's what I can tell you...",
		"I'd be happy to help with that. Let me provide some information...",
		"Interesting query! Here's my perspective on this...",
	},
	kindTask: {
		"I can definitely help you with that. Here's how we can approach this...",
		"Sure! Let me break this down step by step...",
		"I'd be glad to assist. Here's what I recommend...",
	},
	kindDefault: {
		"I understand you're asking about that topic. Here are my thoughts...",
		"Thank you for your message. Let me provide a helpful response...",
		"I appreciate your question. Here's what I can share...",
	},
}

var (
	greetingPattern = regexp.MustCompile(`^(hi|hello|hey|greetings)`)
	questionPattern = regexp.MustCompile(`^(what|how|why|when|where|who|which)`)
	taskPattern     = regexp.MustCompile(`^(can you|could you|please|help me|i need|i want)`)
)

func classifyMessage(message string) messageKind {
	lower := strings.ToLower(message)
	switch {
	case greetingPattern.MatchString(lower):
		return kindGreeting
	case strings.Contains(lower, "?") || questionPattern.MatchString(lower):
		return kindQuestion
	case taskPattern.MatchString(lower):
		return kindTask
	default:
		return kindDefault
	}
}

// MockProvider answers without any network call. The same message always
// yields the same answer.
type MockProvider struct {
	delay time.Duration
}

// NewMockProvider returns a mock that waits delay before answering, to make
// latency visible in development.
func NewMockProvider(delay time.Duration) *MockProvider {
	return &MockProvider{delay: delay}
}

func (p *MockProvider) Name() string  { return "mock" }
func (p *MockProvider) Model() string { return mockModel }
func (p *MockProvider) IsMock() bool  { return true }

func (p *MockProvider) Status() Status {
	return Status{Available: true, Provider: p.Name(), Model: mockModel}
}

// Complete answers the last user message of msgs. The personality is read
// from the system preamble.
func (p *MockProvider) Complete(ctx context.Context, msgs []Message) (*Completion, error) {
	if p.delay > 0 {
		timer := time.NewTimer(p.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, &ProviderError{Kind: KindUnavailable, Provider: p.Name(), Err: ctx.Err()}
		case <-timer.C:
		}
	}

	var message string
	personality := PersonalityFriendly
	for _, m := range msgs {
		switch m.Role {
		case "user":
			message = m.Content
		case "system":
			personality = personalityOfPrompt(m.Content)
		}
	}

	text := MockReply(message, personality)
	prompt := estimateTokens(message)
	completion := estimateTokens(text)
	return &Completion{
		Text:   text,
		Model:  mockModel,
		Tokens: Tokens{Prompt: prompt, Completion: completion, Total: prompt + completion},
	}, nil
}

// MockReply builds the canned reply for message in the given personality.
func MockReply(message string, personality Personality) string {
	candidates := mockResponses[classifyMessage(message)]
	h := fnv.New32a()
	_, _ = h.Write([]byte(message))
	base := candidates[int(h.Sum32()%uint32(len(candidates)))]

	switch personality {
	case PersonalityProfessional:
		return base + "\n\nThis response is generated in mock mode for demonstration purposes. In production, this would be a sophisticated AI-generated response tailored to your query."
	case PersonalityConcise:
		return base + "\n\n• Mock mode active\n• Add an AI provider key for real responses"
	case PersonalityDetailed:
		return base + "\n\nAdditional Context:\nThis is a mock response designed for development and testing. The AI service is currently running without a provider API key configured.\n\nTo enable real AI responses:\n1. Obtain an API key from your AI provider\n2. Add it to config.yml or the environment\n3. Restart the server\n\nYour original message was: \"" + message + "\""
	default:
		return base + " 😊\n\n[Note: This is a mock response. Configure an AI provider key for real AI responses!]"
	}
}

func personalityOfPrompt(prompt string) Personality {
	for p, text := range systemPrompts {
		if text == prompt {
			return p
		}
	}
	return PersonalityFriendly
}
