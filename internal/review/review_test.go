package review

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/city-synergy/internal/aggregate"
	"github.com/sells-group/city-synergy/internal/cityname"
	"github.com/sells-group/city-synergy/internal/config"
	"github.com/sells-group/city-synergy/internal/pipeline"
	"github.com/sells-group/city-synergy/internal/resilience"
	"github.com/sells-group/city-synergy/pkg/anthropic"
)

type mockAnthropicClient struct {
	mock.Mock
}

func (m *mockAnthropicClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

func asking(input string) any {
	return mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return len(req.Messages) == 1 && strings.HasSuffix(req.Messages[0].Content, input)
	})
}

func reply(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
		Usage:   anthropic.TokenUsage{InputTokens: 100, OutputTokens: 10},
	}
}

func newReviewer(t *testing.T, client anthropic.Client) *Reviewer {
	t.Helper()
	r, err := cityname.NewDefault()
	require.NoError(t, err)
	return New(client, r, config.AnthropicConfig{Model: "claude-haiku-4-5-20251001", MaxTokens: 128})
}

var items = []aggregate.ReviewItem{
	{Source: "VPN", Input: "Hauptstrasse 5, Oberursel, Germany", City: "Oberursel", Method: cityname.MethodCountryContext},
	{Source: "VPN", Input: "12 Xyzzy Road, Quuxtown", City: "Xyzzy", Method: cityname.MethodFallbackToken},
	{Source: "KOTRA", Input: "Hauptstrasse 5, Oberursel, Germany", City: "Oberursel", Method: cityname.MethodCountryContext},
}

func TestReview(t *testing.T) {
	client := new(mockAnthropicClient)
	client.On("CreateMessage", mock.Anything, asking("Oberursel, Germany")).
		Return(reply(`{"city": "oberursel", "confidence": 0.9}`), nil).Once()
	client.On("CreateMessage", mock.Anything, asking("Quuxtown")).
		Return(reply("Here you go: {\"city\": \"Quuxtown\", \"confidence\": 1.4}"), nil).Once()

	suggestions, usage, err := newReviewer(t, client).Review(context.Background(), items)
	require.NoError(t, err)
	require.Len(t, suggestions, 2)

	assert.Equal(t, "Oberursel", suggestions[0].Suggested)
	assert.True(t, suggestions[0].Agrees)
	assert.InDelta(t, 0.9, suggestions[0].Confidence, 1e-9)
	assert.Equal(t, cityname.MethodCountryContext, suggestions[0].Method)

	assert.Equal(t, "Xyzzy", suggestions[1].Current)
	assert.Equal(t, "Quuxtown", suggestions[1].Suggested)
	assert.False(t, suggestions[1].Agrees)
	assert.Equal(t, 1.0, suggestions[1].Confidence)

	assert.Equal(t, anthropic.TokenUsage{InputTokens: 200, OutputTokens: 20}, usage)
	client.AssertExpectations(t)
}

func TestReview_RequestErrorRecorded(t *testing.T) {
	client := new(mockAnthropicClient)
	client.On("CreateMessage", mock.Anything, asking("Oberursel, Germany")).
		Return(nil, errors.New("overloaded")).Once()
	client.On("CreateMessage", mock.Anything, asking("Quuxtown")).
		Return(reply("I am not sure."), nil).Once()

	suggestions, _, err := newReviewer(t, client).Review(context.Background(), items[:2])
	require.NoError(t, err)
	require.Len(t, suggestions, 2)
	assert.Contains(t, suggestions[0].Error, "overloaded")
	assert.Empty(t, suggestions[0].Suggested)
	assert.Contains(t, suggestions[1].Error, "no JSON")
}

func TestReview_RetriesTransientErrors(t *testing.T) {
	client := new(mockAnthropicClient)
	client.On("CreateMessage", mock.Anything, asking("Quuxtown")).
		Return(nil, resilience.Transient(errors.New("overloaded"), 529)).Twice()
	client.On("CreateMessage", mock.Anything, asking("Quuxtown")).
		Return(reply(`{"city": "Quuxtown", "confidence": 0.7}`), nil).Once()

	r, err := cityname.NewDefault()
	require.NoError(t, err)
	reviewer := New(client, r, config.AnthropicConfig{MaxAttempts: 3, BackoffMs: 1, MaxBackoffMs: 2})

	suggestions, _, err := reviewer.Review(context.Background(), items[1:2])
	require.NoError(t, err)
	require.Len(t, suggestions, 1)
	assert.Empty(t, suggestions[0].Error)
	assert.Equal(t, "Quuxtown", suggestions[0].Suggested)
	client.AssertNumberOfCalls(t, "CreateMessage", 3)
}

func TestReview_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := new(mockAnthropicClient)
	_, _, err := newReviewer(t, client).Review(ctx, items)
	require.Error(t, err)
	client.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
}

func TestParseAnswer(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    answer
		wantErr bool
	}{
		{"bare", `{"city": "Seoul", "confidence": 1}`, answer{City: "Seoul", Confidence: 1}, false},
		{"wrapped", "```json\n{\"city\": \"Busan\", \"confidence\": 0.7}\n```", answer{City: "Busan", Confidence: 0.7}, false},
		{"empty city", `{"city": "", "confidence": 0.2}`, answer{Confidence: 0.2}, false},
		{"no json", "Seoul", answer{}, true},
		{"broken json", `{"city": }`, answer{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseAnswer(tt.text)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRunFiles(t *testing.T) {
	dir := t.TempDir()
	reviewPath := filepath.Join(dir, "normalization_review.json")
	suggestionsPath := filepath.Join(dir, "normalization_suggestions.json")
	require.NoError(t, pipeline.WriteJSON(reviewPath, items[:1]))

	client := new(mockAnthropicClient)
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(reply(`{"city": "Oberursel", "confidence": 0.95}`), nil).Once()

	got, err := newReviewer(t, client).RunFiles(context.Background(), reviewPath, suggestionsPath)
	require.NoError(t, err)
	require.Len(t, got, 1)

	var written []Suggestion
	require.NoError(t, pipeline.ReadJSON(suggestionsPath, &written))
	assert.Equal(t, got, written)
}

func TestRunFiles_MissingReviewFile(t *testing.T) {
	dir := t.TempDir()
	_, err := newReviewer(t, new(mockAnthropicClient)).RunFiles(context.Background(),
		filepath.Join(dir, "absent.json"), filepath.Join(dir, "out.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "absent.json")
}
