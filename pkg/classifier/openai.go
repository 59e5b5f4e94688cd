package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/sentify-hq/sentify-engine/pkg/models"
)

// verdictSystemMessage is shared by the chat model providers.
const verdictSystemMessage = `You classify the sentiment of financial news text for investors.
Respond with JSON only: {"label": "POSITIVE" or "NEGATIVE", "score": confidence between 0 and 1}.`

// OpenAI classifies with a chat completion model on any OpenAI-compatible
// endpoint.
type OpenAI struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

var _ Classifier = (*OpenAI)(nil)

// NewOpenAI creates an OpenAI-compatible classifier.
func NewOpenAI(endpoint, model, apiKey string, timeout time.Duration, logger *zap.Logger) (*OpenAI, error) {
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}

	clientConfig := openai.DefaultConfig(apiKey)
	if endpoint != "" {
		clientConfig.BaseURL = strings.TrimSuffix(endpoint, "/")
	}
	if timeout > 0 {
		clientConfig.HTTPClient = &http.Client{Timeout: timeout}
	}

	return &OpenAI{
		client: openai.NewClientWithConfig(clientConfig),
		model:  model,
		logger: logger.Named("openai-classifier"),
	}, nil
}

// verdict is the JSON object chat models are asked to answer with.
type verdict struct {
	Label string   `json:"label"`
	Score *float64 `json:"score"`
}

// Classify asks the model for a JSON verdict on text.
func (o *OpenAI) Classify(ctx context.Context, text string) (models.Sentiment, error) {
	start := time.Now()
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: verdictSystemMessage},
			{Role: openai.ChatMessageRoleUser, Content: truncate(text)},
		},
		Temperature: 0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		o.logger.Warn("Classification request failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return models.Sentiment{}, fmt.Errorf("failed to classify: %w", err)
	}
	if len(resp.Choices) == 0 {
		return models.Sentiment{}, errors.New("no choices in response")
	}

	return parseVerdict(resp.Choices[0].Message.Content)
}

// parseVerdict reads the JSON object out of a completion, tolerating
// surrounding prose or code fences.
func parseVerdict(content string) (models.Sentiment, error) {
	start := strings.IndexByte(content, '{')
	end := strings.LastIndexByte(content, '}')
	if start < 0 || end < start {
		return models.Sentiment{}, fmt.Errorf("no JSON object in completion %q", content)
	}

	var v verdict
	if err := json.Unmarshal([]byte(content[start:end+1]), &v); err != nil {
		return models.Sentiment{}, fmt.Errorf("failed to parse verdict: %w", err)
	}
	label, err := NormalizeLabel(v.Label)
	if err != nil {
		return models.Sentiment{}, err
	}
	if v.Score == nil {
		return models.Sentiment{}, errors.New("verdict has no score")
	}
	if err := CheckScore(*v.Score); err != nil {
		return models.Sentiment{}, err
	}
	return models.Sentiment{Label: label, Score: *v.Score}, nil
}
