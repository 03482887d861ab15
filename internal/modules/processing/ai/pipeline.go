// Package ai turns a user message plus conversation history into an AI
// reply. It validates input, builds the prompt, calls the configured
// provider under a deadline and classifies failures. It never persists
// anything.
package ai

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
)

type Pipeline struct {
	provider Provider
	timeout  time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

func NewPipeline(provider Provider, timeout time.Duration, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{provider: provider, timeout: timeout, logger: logger, now: time.Now}
}

// Validate trims message and checks it is non-empty and within
// MaxMessageLength characters.
func Validate(message string) (string, error) {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return "", ErrEmptyMessage
	}
	if utf8.RuneCountInString(trimmed) > MaxMessageLength {
		return "", ErrMessageTooLong
	}
	return trimmed, nil
}

// Generate produces a reply for req. Validation failures are returned before
// the provider is called.
func (p *Pipeline) Generate(ctx context.Context, req Request) (*Response, error) {
	message, err := Validate(req.Message)
	if err != nil {
		return nil, err
	}
	personality := NormalizePersonality(req.Personality)
	msgs := BuildMessages(SystemPrompt(personality), req.History, message)

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	start := p.now()
	completion, err := p.provider.Complete(ctx, msgs)
	elapsed := p.now().Sub(start)
	if err != nil {
		p.logger.Error("AI generation failed",
			zap.String("provider", p.provider.Name()), zap.Duration("elapsed", elapsed), zap.Error(err))
		return nil, err
	}

	p.logger.Debug("AI response generated",
		zap.String("provider", p.provider.Name()),
		zap.String("model", completion.Model),
		zap.Int("tokens", completion.Tokens.Total),
		zap.Duration("elapsed", elapsed))

	return &Response{
		Text:             completion.Text,
		Tokens:           completion.Tokens,
		Model:            completion.Model,
		ProcessingTimeMs: elapsed.Milliseconds(),
		IsMock:           p.provider.IsMock(),
	}, nil
}

func (p *Pipeline) Status() Status {
	return p.provider.Status()
}
