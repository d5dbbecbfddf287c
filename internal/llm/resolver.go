package llm

import (
	"sync"

	swarmerrors "github.com/copp1723/swarm-sub001/internal/errors"
)

// NewResolver returns a Resolver that lazily constructs one retry-wrapped
// OpenAI-compatible client per model, sharing the provider configuration.
// Clients are cached; concurrent resolution of the same model yields the
// same instance.
func NewResolver(config Config) Resolver {
	var mu sync.Mutex
	clients := make(map[string]Client)

	retryConfig := swarmerrors.DefaultRetryConfig()
	if config.MaxRetries > 0 {
		retryConfig.MaxAttempts = config.MaxRetries
	}

	return func(model string) (Client, error) {
		mu.Lock()
		defer mu.Unlock()

		if client, ok := clients[model]; ok {
			return client, nil
		}

		base, err := NewOpenAIClient(model, config)
		if err != nil {
			return nil, err
		}
		client := NewRetryClient(base, retryConfig, nil)
		clients[model] = client
		return client, nil
	}
}
