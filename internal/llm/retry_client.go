package llm

import (
	"context"
	"time"

	swarmerrors "github.com/copp1723/swarm-sub001/internal/errors"
	"github.com/copp1723/swarm-sub001/internal/logging"
)

// retryClient wraps a Client with retry logic and a circuit breaker.
type retryClient struct {
	underlying     Client
	retryConfig    swarmerrors.RetryConfig
	circuitBreaker *swarmerrors.CircuitBreaker
	logger         logging.Logger
}

// NewRetryClient wraps a completion client with retry and circuit breaker
// protection. Transient provider failures are retried with exponential
// backoff; permanent failures surface immediately.
func NewRetryClient(client Client, retryConfig swarmerrors.RetryConfig, circuitBreaker *swarmerrors.CircuitBreaker) Client {
	if circuitBreaker == nil {
		circuitBreaker = swarmerrors.NewCircuitBreaker(client.Model(), swarmerrors.DefaultCircuitBreakerConfig())
	}
	return &retryClient{
		underlying:     client,
		retryConfig:    retryConfig,
		circuitBreaker: circuitBreaker,
		logger:         logging.NewLLMLogger("llm-retry"),
	}
}

// Complete executes a completion with retry logic.
func (c *retryClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	startTime := time.Now()

	resp, err := swarmerrors.RetryWithResultAndLog(ctx, c.retryConfig, func(ctx context.Context) (*CompletionResponse, error) {
		return swarmerrors.ExecuteFunc(c.circuitBreaker, ctx, func(ctx context.Context) (*CompletionResponse, error) {
			return c.underlying.Complete(ctx, req)
		})
	}, c.logger)

	duration := time.Since(startTime)

	if err != nil {
		c.logger.Warn("Completion failed after retries (model=%s, took %v): %v", c.underlying.Model(), duration, err)
		return nil, err
	}

	if duration > 5*time.Second {
		c.logger.Debug("Completion succeeded after %v (model=%s)", duration, c.underlying.Model())
	}

	return resp, nil
}

// Model returns the underlying model name.
func (c *retryClient) Model() string {
	return c.underlying.Model()
}
