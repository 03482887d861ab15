package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	neturl "net/url"
	"strings"
	"time"

	anthropicclient "github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aiassist/core/internal/config"
	openaiclient "github.com/openai/openai-go/v2"
	openaioption "github.com/openai/openai-go/v2/option"
	"github.com/sony/gobreaker"
	jetai "go.jetify.com/ai"
	jetapi "go.jetify.com/ai/api"
	jetanthropic "go.jetify.com/ai/provider/anthropic"
	jetopenai "go.jetify.com/ai/provider/openai"
	"go.uber.org/zap"
)

const (
	ProviderOpenAI           = "openai"
	ProviderAnthropic        = "anthropic"
	ProviderOpenAICompatible = "openai-compatible"

	defaultOpenAIModel    = "gpt-4o-mini"
	defaultAnthropicModel = "claude-haiku-4-5-20251001"
)

// Provider produces one completion for a prepared message list.
type Provider interface {
	Complete(ctx context.Context, msgs []Message) (*Completion, error)
	Name() string
	Model() string
	IsMock() bool
	Status() Status
}

type ProviderOption func(*RealProvider)

func WithHTTPClient(hc *http.Client) ProviderOption {
	return func(p *RealProvider) { p.httpClient = hc }
}

// WithAuthFailureHook is called when the provider rejects our credentials.
func WithAuthFailureHook(fn func(provider, model string)) ProviderOption {
	return func(p *RealProvider) { p.onAuthFailure = fn }
}

// WithBreakerSettings overrides the circuit breaker trip policy.
func WithBreakerSettings(consecutiveFailures uint32, openFor time.Duration) ProviderOption {
	return func(p *RealProvider) {
		p.tripAfter = consecutiveFailures
		p.openFor = openFor
	}
}

// NewProvider picks the real provider when a credential is configured and
// the mock otherwise.
func NewProvider(cfg config.AIProviderConfig, logger *zap.Logger, opts ...ProviderOption) (Provider, error) {
	if !cfg.Configured() {
		logger.Info("AI pipeline running in mock mode (no provider api key configured)")
		return NewMockProvider(0), nil
	}
	p, err := NewRealProvider(cfg, logger, opts...)
	if err != nil {
		return nil, err
	}
	logger.Info("AI pipeline initialized", zap.String("provider", p.Name()), zap.String("model", p.Model()))
	return p, nil
}

// RealProvider calls a hosted model behind a circuit breaker. Only
// unavailability counts as a breaker failure; rate limiting and bad
// credentials do not open the circuit.
type RealProvider struct {
	kind      string
	model     string
	apiKey    string
	endpoint  string
	maxTokens int

	lm            jetapi.LanguageModel
	httpClient    *http.Client
	breaker       *gobreaker.CircuitBreaker
	onAuthFailure func(provider, model string)
	logger        *zap.Logger

	tripAfter uint32
	openFor   time.Duration
}

func NewRealProvider(cfg config.AIProviderConfig, logger *zap.Logger, opts ...ProviderOption) (*RealProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("AI provider api key is empty")
	}
	kind := config.NormalizeProviderType(cfg.Type)
	if kind == "" {
		kind = ProviderOpenAI
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &RealProvider{
		kind:       kind,
		model:      strings.TrimSpace(cfg.Model),
		apiKey:     apiKey,
		endpoint:   strings.TrimSpace(cfg.Endpoint),
		maxTokens:  cfg.MaxTokens,
		httpClient: &http.Client{},
		logger:     logger,
		tripAfter:  5,
		openFor:    30 * time.Second,
	}
	if p.maxTokens <= 0 {
		p.maxTokens = 1000
	}
	for _, opt := range opts {
		opt(p)
	}

	switch kind {
	case ProviderAnthropic:
		if p.model == "" {
			p.model = defaultAnthropicModel
		}
		p.lm = buildAnthropicModel(p.model, apiKey, p.endpoint)
	case ProviderOpenAI:
		if p.model == "" {
			p.model = defaultOpenAIModel
		}
		p.lm = buildOpenAIModel(p.model, apiKey, p.endpoint)
	case ProviderOpenAICompatible:
		if p.model == "" {
			p.model = defaultOpenAIModel
		}
	default:
		return nil, fmt.Errorf("unsupported AI provider %q", cfg.Type)
	}

	p.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "ai-" + kind,
		Timeout: p.openFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= p.tripAfter
		},
		IsSuccessful: func(err error) bool {
			var perr *ProviderError
			if errors.As(err, &perr) {
				return perr.Kind != KindUnavailable
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("AI circuit breaker state changed",
				zap.String("breaker", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
	return p, nil
}

func (p *RealProvider) Name() string  { return p.kind }
func (p *RealProvider) Model() string { return p.model }
func (p *RealProvider) IsMock() bool  { return false }

func (p *RealProvider) Status() Status {
	state := p.breaker.State()
	return Status{
		Available:  state != gobreaker.StateOpen,
		Provider:   p.kind,
		Model:      p.model,
		Configured: true,
		Circuit:    state.String(),
	}
}

func (p *RealProvider) Complete(ctx context.Context, msgs []Message) (*Completion, error) {
	out, err := p.breaker.Execute(func() (interface{}, error) {
		return p.complete(ctx, msgs)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &ProviderError{Kind: KindUnavailable, Provider: p.kind, Err: err}
		}
		perr := p.classify(ctx, err)
		if perr.Kind == KindAuthFailure && p.onAuthFailure != nil {
			p.onAuthFailure(p.kind, p.model)
		}
		p.logger.Warn("AI provider call failed",
			zap.String("provider", p.kind), zap.String("kind", string(perr.Kind)), zap.Error(err))
		return nil, perr
	}
	return out.(*Completion), nil
}

func (p *RealProvider) complete(ctx context.Context, msgs []Message) (*Completion, error) {
	if p.kind == ProviderOpenAICompatible {
		return p.chatCompletions(ctx, msgs)
	}

	resp, err := jetai.GenerateText(ctx, buildAIPromptMessages(msgs),
		jetai.WithModel(p.lm),
		jetai.WithMaxOutputTokens(p.maxTokens),
	)
	if err != nil {
		return nil, p.classify(ctx, err)
	}
	text, err := extractTextFromAIResponse(resp)
	if err != nil {
		return nil, &ProviderError{Kind: KindFailed, Provider: p.kind, Err: err}
	}
	return &Completion{
		Text:   text,
		Model:  p.model,
		Tokens: reportedTokens(resp.Usage.InputTokens, resp.Usage.OutputTokens, resp.Usage.TotalTokens, msgs, text),
	}, nil
}

// classify maps SDK, HTTP and transport errors onto failure kinds.
func (p *RealProvider) classify(ctx context.Context, err error) *ProviderError {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr
	}
	out := &ProviderError{Kind: KindFailed, Provider: p.kind, Err: err}

	var anthropicErr *anthropicclient.Error
	var openaiErr *openaiclient.Error
	var netErr net.Error
	switch {
	case errors.As(err, &anthropicErr):
		out.StatusCode = anthropicErr.StatusCode
		out.Kind = kindForStatus(anthropicErr.StatusCode)
	case errors.As(err, &openaiErr):
		out.StatusCode = openaiErr.StatusCode
		out.Kind = kindForStatus(openaiErr.StatusCode)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled), ctx.Err() != nil:
		out.Kind = KindUnavailable
	case errors.As(err, &netErr):
		out.Kind = KindUnavailable
	}
	return out
}

func buildAnthropicModel(modelID, apiKey, endpoint string) jetapi.LanguageModel {
	opts := []anthropicoption.RequestOption{
		anthropicoption.WithAPIKey(apiKey),
		anthropicoption.WithMaxRetries(0),
	}
	if endpoint != "" {
		opts = append(opts, anthropicoption.WithBaseURL(strings.TrimRight(endpoint, "/")))
	}
	client := anthropicclient.NewClient(opts...)
	return jetanthropic.NewLanguageModel(modelID, jetanthropic.WithClient(client))
}

func buildOpenAIModel(modelID, apiKey, endpoint string) jetapi.LanguageModel {
	opts := []openaioption.RequestOption{
		openaioption.WithAPIKey(apiKey),
		openaioption.WithMaxRetries(0),
	}
	if normalized := normalizeOpenAIBaseURL(endpoint); normalized != "" {
		opts = append(opts, openaioption.WithBaseURL(normalized))
	}
	client := openaiclient.NewClient(opts...)
	return jetopenai.NewLanguageModel(modelID, jetopenai.WithClient(client))
}

func buildAIPromptMessages(msgs []Message) []jetapi.Message {
	out := make([]jetapi.Message, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case "system":
			out = append(out, &jetapi.SystemMessage{Content: m.Content})
		case "assistant":
			out = append(out, &jetapi.AssistantMessage{Content: jetapi.ContentFromText(m.Content)})
		default:
			out = append(out, &jetapi.UserMessage{Content: jetapi.ContentFromText(m.Content)})
		}
	}
	return out
}

func extractTextFromAIResponse(resp *jetapi.Response) (string, error) {
	if resp == nil {
		return "", errors.New("empty response from AI")
	}

	var full strings.Builder
	for _, block := range resp.Content {
		textBlock, ok := block.(*jetapi.TextBlock)
		if !ok || textBlock.Text == "" {
			continue
		}
		full.WriteString(textBlock.Text)
	}

	text := full.String()
	if strings.TrimSpace(text) == "" {
		return "", errors.New("empty response from AI")
	}
	return text, nil
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Model string `json:"model"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (p *RealProvider) chatCompletions(ctx context.Context, msgs []Message) (*Completion, error) {
	body, _ := json.Marshal(map[string]interface{}{
		"model":       p.model,
		"messages":    msgs,
		"max_tokens":  p.maxTokens,
		"temperature": 0.7,
	})

	endpoint := normalizeOpenAICompatibleEndpoint(p.endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, &ProviderError{Kind: KindFailed, Provider: p.kind, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, p.classify(ctx, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, p.classify(ctx, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &ProviderError{
			Kind:       kindForStatus(resp.StatusCode),
			Provider:   p.kind,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("openai-compatible error: %s", truncateText(strings.TrimSpace(string(respBody)), 200)),
		}
	}

	var result chatCompletionResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, &ProviderError{Kind: KindFailed, Provider: p.kind, Err: err}
	}
	if result.Error != nil && strings.TrimSpace(result.Error.Message) != "" {
		return nil, &ProviderError{Kind: KindFailed, Provider: p.kind, Err: fmt.Errorf("openai-compatible error: %s", result.Error.Message)}
	}
	if len(result.Choices) == 0 || strings.TrimSpace(result.Choices[0].Message.Content) == "" {
		return nil, &ProviderError{Kind: KindFailed, Provider: p.kind, Err: errors.New("empty response from AI")}
	}

	text := result.Choices[0].Message.Content
	out := &Completion{Text: text, Model: p.model}
	if result.Model != "" {
		out.Model = result.Model
	}
	if result.Usage != nil {
		out.Tokens = reportedTokens(result.Usage.PromptTokens, result.Usage.CompletionTokens, result.Usage.TotalTokens, msgs, text)
	} else {
		out.Tokens = reportedTokens(0, 0, 0, msgs, text)
	}
	return out, nil
}

func normalizeOpenAIBaseURL(raw string) string {
	base := strings.TrimSpace(raw)
	if base == "" {
		return ""
	}
	parsed, err := neturl.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return strings.TrimRight(base, "/")
	}

	path := strings.TrimRight(parsed.Path, "/")
	if !strings.HasSuffix(path, "/v1") {
		path += "/v1"
	}
	parsed.Path = path
	return strings.TrimRight(parsed.String(), "/")
}

func normalizeOpenAICompatibleEndpoint(raw string) string {
	base := strings.TrimSpace(raw)
	if base == "" {
		return "https://api.openai.com"
	}

	parsed, err := neturl.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return strings.TrimSuffix(strings.TrimRight(base, "/"), "/v1")
	}

	parsed.Path = strings.TrimSuffix(strings.TrimRight(parsed.Path, "/"), "/v1")
	return strings.TrimRight(parsed.String(), "/")
}

func truncateText(text string, maxLen int) string {
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	return string(runes[:maxLen]) + "..."
}
