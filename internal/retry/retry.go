package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/plainhr/plain/internal/metrics"
	"github.com/plainhr/plain/internal/models"
)

// Policy - параметры экспоненциальной задержки между попытками.
type Policy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	Jitter          float64
	MaxAttempts     int
}

func DefaultPolicy() Policy {
	return Policy{
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		Multiplier:      2,
		Jitter:          0.5,
		MaxAttempts:     3,
	}
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = p.Jitter
	// ограничиваем только число попыток
	b.MaxElapsedTime = 0
	b.Reset()

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
}

// IsRetryable сообщает, имеет ли смысл повторять операцию: клиентские ошибки
// и отмена контекста не повторяются.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return !models.IsClientError(err)
}

// Do выполняет op, повторяя её при временных ошибках согласно policy.
func Do(ctx context.Context, policy Policy, logger *zap.Logger, op func(ctx context.Context) error) error {
	_, err := DoValue(ctx, policy, logger, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

func DoValue[T any](ctx context.Context, policy Policy, logger *zap.Logger, op func(ctx context.Context) (T, error)) (T, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var result T
	attempt := 0
	operation := func() error {
		attempt++
		v, err := op(ctx)
		if err == nil {
			result = v
			return nil
		}
		if !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		metrics.RetryAttempts.WithLabelValues("retried").Inc()
		logger.Warn("Operation failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	err := backoff.RetryNotify(operation, policy.backOff(ctx), notify)
	if err != nil {
		metrics.RetryAttempts.WithLabelValues("failed").Inc()
		var zero T
		return zero, err
	}
	if attempt > 1 {
		metrics.RetryAttempts.WithLabelValues("recovered").Inc()
	}
	return result, nil
}
