// Package review asks Claude for a second opinion on low-confidence city
// resolutions and records its suggestions next to the resolver's answer.
package review

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/city-synergy/internal/aggregate"
	"github.com/sells-group/city-synergy/internal/cityname"
	"github.com/sells-group/city-synergy/internal/config"
	"github.com/sells-group/city-synergy/internal/pipeline"
	"github.com/sells-group/city-synergy/internal/resilience"
	"github.com/sells-group/city-synergy/pkg/anthropic"
)

const systemPrompt = `You normalize free-text locations to canonical English city names.
Given a raw location string, reply with a single JSON object and nothing else:
{"city": "<English city name, or empty if the text names no city>", "confidence": <0..1>}
Use the common English exonym (Seoul, Munich, Ho Chi Minh City). Never answer with a country, state or district.`

// Suggestion is Claude's answer for one review item.
type Suggestion struct {
	Source     string          `json:"source"`
	Key        string          `json:"key,omitempty"`
	Input      string          `json:"input"`
	Current    string          `json:"current"`
	Method     cityname.Method `json:"method"`
	Suggested  string          `json:"suggested"`
	Confidence float64         `json:"confidence"`
	Agrees     bool            `json:"agrees"`
	Error      string          `json:"error,omitempty"`
}

type answer struct {
	City       string  `json:"city"`
	Confidence float64 `json:"confidence"`
}

// Reviewer sends review items to Claude one at a time, paced by a limiter.
type Reviewer struct {
	client    anthropic.Client
	resolver  *cityname.Resolver
	model     string
	maxTokens int64
	limiter   *rate.Limiter
	retry     resilience.Policy
	log       *zap.Logger
}

// New creates a Reviewer. A non-positive RatePerSec disables pacing.
func New(client anthropic.Client, resolver *cityname.Resolver, cfg config.AnthropicConfig) *Reviewer {
	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	retry := resilience.NewPolicy(cfg.MaxAttempts, cfg.BackoffMs, cfg.MaxBackoffMs)
	retry.OnRetry = resilience.LogRetries("review", "claude request")
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 256
	}
	return &Reviewer{
		client:    client,
		resolver:  resolver,
		model:     cfg.Model,
		maxTokens: maxTokens,
		limiter:   rate.NewLimiter(limit, 1),
		retry:     retry,
		log:       zap.L().With(zap.String("component", "review")),
	}
}

// Review asks about every distinct input in items. A failed request is
// recorded on its suggestion and does not stop the others; cancellation does.
func (r *Reviewer) Review(ctx context.Context, items []aggregate.ReviewItem) ([]Suggestion, anthropic.TokenUsage, error) {
	var usage anthropic.TokenUsage
	seen := make(map[string]bool, len(items))
	out := make([]Suggestion, 0, len(items))

	for _, item := range items {
		if seen[item.Input] {
			continue
		}
		seen[item.Input] = true

		if err := r.limiter.Wait(ctx); err != nil {
			return out, usage, eris.Wrap(err, "review: wait for rate limiter")
		}

		s := Suggestion{
			Source:  item.Source,
			Key:     item.Key,
			Input:   item.Input,
			Current: item.City,
			Method:  item.Method,
		}
		ans, u, err := r.ask(ctx, item.Input)
		usage = usage.Add(u)
		if err != nil {
			if ctx.Err() != nil {
				return out, usage, eris.Wrap(ctx.Err(), "review: cancelled")
			}
			r.log.Warn("review: request failed", zap.String("input", item.Input), zap.Error(err))
			s.Error = err.Error()
			out = append(out, s)
			continue
		}

		s.Suggested = r.canonical(ans.City)
		s.Confidence = min(max(ans.Confidence, 0), 1)
		s.Agrees = s.Suggested != "" && strings.EqualFold(s.Suggested, item.City)
		out = append(out, s)
	}

	usage.LogCost(r.model, "review")
	return out, usage, nil
}

// canonical runs Claude's answer back through the resolver so suggestions
// use the same spelling as the pipeline.
func (r *Reviewer) canonical(city string) string {
	city = strings.TrimSpace(city)
	if city == "" {
		return ""
	}
	if c := r.resolver.Normalize(city); c != "" {
		return c
	}
	return city
}

func (r *Reviewer) ask(ctx context.Context, input string) (answer, anthropic.TokenUsage, error) {
	temp := 0.0
	req := anthropic.MessageRequest{
		Model:       r.model,
		MaxTokens:   r.maxTokens,
		System:      systemPrompt,
		Messages:    []anthropic.Message{{Role: "user", Content: fmt.Sprintf("Location: %s", input)}},
		Temperature: &temp,
	}
	resp, err := resilience.Retry(ctx, r.retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return r.client.CreateMessage(ctx, req)
	})
	if err != nil {
		return answer{}, anthropic.TokenUsage{}, eris.Wrap(err, "review: claude request")
	}

	ans, err := parseAnswer(resp.Text())
	return ans, resp.Usage, err
}

// parseAnswer extracts the JSON object from a reply that may carry
// surrounding text.
func parseAnswer(text string) (answer, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return answer{}, eris.Errorf("review: no JSON in response: %q", text)
	}
	var a answer
	if err := json.Unmarshal([]byte(text[start:end+1]), &a); err != nil {
		return answer{}, eris.Wrap(err, "review: parse response JSON")
	}
	return a, nil
}

// RunFiles reviews the items in reviewPath and writes the suggestions to
// suggestionsPath.
func (r *Reviewer) RunFiles(ctx context.Context, reviewPath, suggestionsPath string) ([]Suggestion, error) {
	var items []aggregate.ReviewItem
	if err := pipeline.ReadJSON(reviewPath, &items); err != nil {
		return nil, err
	}

	suggestions, _, err := r.Review(ctx, items)
	if err != nil {
		return nil, err
	}
	if err := pipeline.WriteJSON(suggestionsPath, suggestions); err != nil {
		return nil, err
	}

	agree := 0
	for _, s := range suggestions {
		if s.Agrees {
			agree++
		}
	}
	r.log.Info("review: complete",
		zap.Int("items", len(suggestions)),
		zap.Int("agree", agree),
		zap.String("path", suggestionsPath),
	)
	return suggestions, nil
}
