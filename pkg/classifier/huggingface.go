package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sentify-hq/sentify-engine/pkg/logging"
	"github.com/sentify-hq/sentify-engine/pkg/models"
	"github.com/sentify-hq/sentify-engine/pkg/retry"
)

// HuggingFace calls a text-classification model on the Hugging Face
// inference API.
type HuggingFace struct {
	url        string
	apiKey     string
	httpClient *http.Client
	retry      *retry.Config
	logger     *zap.Logger
}

var _ Classifier = (*HuggingFace)(nil)

// NewHuggingFace creates a client for model served at endpoint.
func NewHuggingFace(endpoint, model, apiKey string, timeout time.Duration, logger *zap.Logger) *HuggingFace {
	return &HuggingFace{
		url:    strings.TrimSuffix(endpoint, "/") + "/models/" + model,
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		retry:  retry.UpstreamConfig(),
		logger: logger.Named("huggingface"),
	}
}

type hfRequest struct {
	Inputs  string    `json:"inputs"`
	Options hfOptions `json:"options"`
}

type hfOptions struct {
	WaitForModel bool `json:"wait_for_model"`
}

type hfLabel struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

type hfStatusError struct {
	status int
	body   string
}

func (e *hfStatusError) Error() string {
	return fmt.Sprintf("huggingface returned status %d: %s", e.status, e.body)
}

// 503 means the model is still loading.
func (e *hfStatusError) IsRetryable() bool {
	return e.status == http.StatusTooManyRequests || e.status >= 500
}

// Classify returns the highest scoring label for text.
func (h *HuggingFace) Classify(ctx context.Context, text string) (models.Sentiment, error) {
	payload, err := json.Marshal(hfRequest{Inputs: truncate(text), Options: hfOptions{WaitForModel: true}})
	if err != nil {
		return models.Sentiment{}, fmt.Errorf("failed to encode request: %w", err)
	}

	body, err := retry.DoIfRetryableWithResult(ctx, h.retry, func() ([]byte, error) {
		return h.post(ctx, payload)
	})
	if err != nil {
		h.logger.Warn("Classification request failed", zap.String("error", logging.SanitizeError(err)))
		return models.Sentiment{}, err
	}

	labels, err := parseLabels(body)
	if err != nil {
		return models.Sentiment{}, err
	}
	return pickBest(labels)
}

func (h *HuggingFace) post(ctx context.Context, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(payload))
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &hfStatusError{status: resp.StatusCode, body: logging.TruncateString(string(body), 200)}
	}
	return body, nil
}

// parseLabels accepts both the nested [[...]] and flat [...] response shapes.
func parseLabels(body []byte) ([]hfLabel, error) {
	var nested [][]hfLabel
	if err := json.Unmarshal(body, &nested); err == nil {
		var flat []hfLabel
		for _, group := range nested {
			flat = append(flat, group...)
		}
		return flat, nil
	}

	var flat []hfLabel
	if err := json.Unmarshal(body, &flat); err != nil {
		return nil, fmt.Errorf("failed to parse classification response: %w", err)
	}
	return flat, nil
}

func pickBest(labels []hfLabel) (models.Sentiment, error) {
	if len(labels) == 0 {
		return models.Sentiment{}, errors.New("classification response has no labels")
	}
	best := labels[0]
	for _, l := range labels[1:] {
		if l.Score > best.Score {
			best = l
		}
	}
	label, err := NormalizeLabel(best.Label)
	if err != nil {
		return models.Sentiment{}, err
	}
	if err := CheckScore(best.Score); err != nil {
		return models.Sentiment{}, err
	}
	return models.Sentiment{Label: label, Score: best.Score}, nil
}
