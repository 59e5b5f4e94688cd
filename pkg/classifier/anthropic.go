package classifier

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"

	"github.com/sentify-hq/sentify-engine/pkg/models"
)

// anthropicMaxTokens is enough for the one-line JSON verdict.
const anthropicMaxTokens = 64

// Anthropic classifies with a Claude model through the Messages API.
type Anthropic struct {
	client *anthropic.Client
	model  string
	logger *zap.Logger
}

var _ Classifier = (*Anthropic)(nil)

// NewAnthropic creates a Messages API classifier. An empty endpoint uses the
// SDK's default base URL.
func NewAnthropic(endpoint, model, apiKey string, timeout time.Duration, logger *zap.Logger) (*Anthropic, error) {
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}

	var opts []anthropic.ClientOption
	if endpoint != "" {
		opts = append(opts, anthropic.WithBaseURL(strings.TrimSuffix(endpoint, "/")))
	}
	if timeout > 0 {
		opts = append(opts, anthropic.WithHTTPClient(&http.Client{Timeout: timeout}))
	}

	return &Anthropic{
		client: anthropic.NewClient(apiKey, opts...),
		model:  model,
		logger: logger.Named("anthropic-classifier"),
	}, nil
}

// Classify asks the model for the same JSON verdict the OpenAI provider uses.
func (a *Anthropic) Classify(ctx context.Context, text string) (models.Sentiment, error) {
	start := time.Now()
	content := truncate(text)
	temperature := float32(0)
	resp, err := a.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:       anthropic.Model(a.model),
		System:      verdictSystemMessage,
		MaxTokens:   anthropicMaxTokens,
		Temperature: &temperature,
		Messages: []anthropic.Message{
			{Role: anthropic.RoleUser, Content: []anthropic.MessageContent{
				{Type: "text", Text: &content},
			}},
		},
	})
	if err != nil {
		a.logger.Warn("Classification request failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return models.Sentiment{}, fmt.Errorf("failed to classify: %w", err)
	}

	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			return parseVerdict(*block.Text)
		}
	}
	return models.Sentiment{}, errors.New("no text block in response")
}
