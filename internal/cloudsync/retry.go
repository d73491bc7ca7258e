package cloudsync

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"
)

type RetryConfig struct {
	MaxRetries int           `mapstructure:"max_retries" json:"maxRetries" yaml:"max_retries" validate:"min=0"`
	BaseDelay  time.Duration `mapstructure:"base_delay" json:"baseDelay" yaml:"base_delay"`
	MaxDelay   time.Duration `mapstructure:"max_delay" json:"maxDelay" yaml:"max_delay"`
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 2,
		BaseDelay:  250 * time.Millisecond,
		MaxDelay:   2 * time.Second,
	}
}

// delay returns the wait before retry number attempt+1.
func (c RetryConfig) delay(attempt int) time.Duration {
	d := time.Duration(float64(c.BaseDelay) * math.Pow(1.5, float64(attempt)))
	if c.MaxDelay > 0 && d > c.MaxDelay {
		d = c.MaxDelay
	}
	return d
}

func retryOperation(ctx context.Context, config RetryConfig, logger *logrus.Logger, name string, operation func(context.Context) error) error {
	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := operation(ctx)
		if err == nil {
			return nil
		}

		if attempt == config.MaxRetries {
			return fmt.Errorf("%s failed after %d retries: %w", name, config.MaxRetries, err)
		}

		delay := config.delay(attempt)
		logger.WithFields(logrus.Fields{
			"operation": name,
			"attempt":   attempt + 1,
			"delay":     delay,
			"error":     err.Error(),
		}).Warn("Retrying remote operation")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return nil
}
