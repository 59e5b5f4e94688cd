package classifier

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/sentify-hq/sentify-engine/pkg/config"
)

// New builds the configured provider behind a circuit breaker.
func New(cfg config.ClassifierConfig, logger *zap.Logger) (Classifier, error) {
	var provider Classifier
	switch cfg.Provider {
	case config.ClassifierHuggingFace:
		provider = NewHuggingFace(cfg.Endpoint, cfg.Model, cfg.APIKey, cfg.Timeout, logger)
	case config.ClassifierOpenAI:
		c, err := NewOpenAI(cfg.Endpoint, cfg.Model, cfg.APIKey, cfg.Timeout, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create openai classifier: %w", err)
		}
		provider = c
	case config.ClassifierAnthropic:
		c, err := NewAnthropic(cfg.Endpoint, cfg.Model, cfg.APIKey, cfg.Timeout, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create anthropic classifier: %w", err)
		}
		provider = c
	default:
		return nil, fmt.Errorf("unknown classifier provider %q", cfg.Provider)
	}

	logger.Info("Sentiment classifier configured",
		zap.String("provider", cfg.Provider),
		zap.String("model", cfg.Model))

	return NewBreaker(provider, cfg.BreakerThreshold, cfg.BreakerReset, logger), nil
}
