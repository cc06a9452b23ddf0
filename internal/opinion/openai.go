// Package opinion provides optional secondary scorers consulted after the
// core fraud score is final.
package opinion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/opensource-finance/tenderwatch/internal/domain"
)

// ErrNoAnswer is returned when the provider reply carries no usable verdict.
var ErrNoAnswer = errors.New("opinion: no usable answer")

const systemPrompt = "You are a public procurement fraud analyst. " +
	"Given a payment claim, a rule-based risk score from 0 to 100 and the fraud indicators it raised, " +
	"estimate the probability that the claim is fraudulent. " +
	`Reply with a JSON object {"fraud_probability": <number between 0 and 1>, "rationale": "<one sentence>"}.`

// OpenAIScorer asks an OpenAI-compatible chat completion endpoint for a
// fraud probability.
type OpenAIScorer struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	limiter *rate.Limiter
}

// NewOpenAIScorer creates a scorer from configuration.
func NewOpenAIScorer(cfg domain.OpinionConfig) (*OpenAIScorer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &OpenAIScorer{
		client:  openai.NewClientWithConfig(clientConfig),
		model:   model,
		timeout: timeout,
		limiter: rate.NewLimiter(limit, burst),
	}, nil
}

// Name returns the provider name.
func (s *OpenAIScorer) Name() string {
	return "openai"
}

// Score implements domain.SecondaryScorer.
func (s *OpenAIScorer) Score(ctx context.Context, req domain.OpinionRequest) (*domain.SecondOpinion, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	prompt, err := buildPrompt(req)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		MaxTokens:   300,
		Temperature: 0.1,
	})
	if err != nil {
		return nil, fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrNoAnswer
	}

	verdict, err := parseVerdict(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}

	model := resp.Model
	if model == "" {
		model = s.model
	}
	return &domain.SecondOpinion{
		Provider:    s.Name(),
		Model:       model,
		Probability: verdict.Probability,
		Rationale:   verdict.Rationale,
	}, nil
}

type verdict struct {
	Probability *float64 `json:"fraud_probability"`
	Rationale   string   `json:"rationale"`
}

type parsedVerdict struct {
	Probability float64
	Rationale   string
}

func parseVerdict(content string) (parsedVerdict, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var v verdict
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &v); err != nil {
		return parsedVerdict{}, fmt.Errorf("%w: %v", ErrNoAnswer, err)
	}
	if v.Probability == nil || math.IsNaN(*v.Probability) {
		return parsedVerdict{}, fmt.Errorf("%w: missing fraud_probability", ErrNoAnswer)
	}
	return parsedVerdict{
		Probability: math.Max(0, math.Min(1, *v.Probability)),
		Rationale:   strings.TrimSpace(v.Rationale),
	}, nil
}

func buildPrompt(req domain.OpinionRequest) (string, error) {
	claim, err := json.Marshal(req.Claim)
	if err != nil {
		return "", fmt.Errorf("encode claim: %w", err)
	}

	flags := make([]string, len(req.Flags))
	for i, f := range req.Flags {
		flags[i] = string(f)
	}
	indicators := "none"
	if len(flags) > 0 {
		indicators = strings.Join(flags, ", ")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Claim: %s\n", claim)
	fmt.Fprintf(&b, "Rule-based score: %.1f\n", req.CoreScore)
	fmt.Fprintf(&b, "Indicators: %s\n", indicators)
	if req.Reasoning != "" {
		fmt.Fprintf(&b, "Findings: %s\n", req.Reasoning)
	}
	return b.String(), nil
}
