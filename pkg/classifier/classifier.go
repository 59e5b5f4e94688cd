// Package classifier labels text as positive or negative sentiment.
package classifier

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/sentify-hq/sentify-engine/pkg/models"
)

// maxInputRunes keeps requests under the models' input windows.
const maxInputRunes = 2000

// Classifier labels one piece of text.
type Classifier interface {
	Classify(ctx context.Context, text string) (models.Sentiment, error)
}

// NormalizeLabel maps provider labels onto POSITIVE or NEGATIVE.
func NormalizeLabel(label string) (string, error) {
	switch strings.ToUpper(strings.TrimSpace(label)) {
	case "POSITIVE", "POS", "LABEL_1":
		return models.SentimentPositive, nil
	case "NEGATIVE", "NEG", "LABEL_0":
		return models.SentimentNegative, nil
	}
	return "", fmt.Errorf("unknown sentiment label %q", label)
}

// CheckScore rejects confidences outside [0, 1].
func CheckScore(score float64) error {
	if math.IsNaN(score) || score < 0 || score > 1 {
		return fmt.Errorf("sentiment score %v outside [0, 1]", score)
	}
	return nil
}

func truncate(text string) string {
	if utf8.RuneCountInString(text) <= maxInputRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxInputRunes])
}
